package amqp

import (
	"encoding/json"
	"time"

	"fincore/internal/bus"
)

// InvalidationMessage is the wire form of a cache invalidation event. The
// scheduler worker publishes one per committed materialization; the API
// server consumes them to invalidate its in-memory statistics cache.
type InvalidationMessage struct {
	Kind       string    `json:"kind"`
	Date       string    `json:"date"`
	CategoryID int64     `json:"category_id"`
	UserID     int64     `json:"user_id"`
	RuleID     int64     `json:"rule_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewInvalidationMessage wraps a bus event for transport.
func NewInvalidationMessage(ev bus.Event) *InvalidationMessage {
	return &InvalidationMessage{
		Kind:       ev.Kind,
		Date:       ev.Date.Format("2006-01-02"),
		CategoryID: ev.CategoryID,
		UserID:     ev.UserID,
		RuleID:     ev.RuleID,
		Timestamp:  time.Now(),
	}
}

// Event converts the message back into a local bus event.
func (m *InvalidationMessage) Event() bus.Event {
	date, err := time.Parse("2006-01-02", m.Date)
	if err != nil {
		date = time.Time{}
	}
	return bus.Event{
		Kind:       m.Kind,
		Date:       date,
		CategoryID: m.CategoryID,
		UserID:     m.UserID,
		RuleID:     m.RuleID,
	}
}

func (m *InvalidationMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func InvalidationMessageFromJSON(data []byte) (*InvalidationMessage, error) {
	var msg InvalidationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
