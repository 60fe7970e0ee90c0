package amqp

import (
	"testing"
	"time"

	"fincore/internal/bus"
)

func TestInvalidationMessageCarriesEventAcrossProcesses(t *testing.T) {
	ev := bus.Event{
		Kind:       bus.EventTransactionsChanged,
		Date:       time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC),
		CategoryID: 3,
		UserID:     1,
		RuleID:     7,
	}

	data, err := NewInvalidationMessage(ev).ToJSON()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	msg, err := InvalidationMessageFromJSON(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	got := msg.Event()
	if got.Kind != ev.Kind || got.CategoryID != ev.CategoryID || got.UserID != ev.UserID || got.RuleID != ev.RuleID {
		t.Errorf("round trip lost fields: %+v", got)
	}
	if !got.Date.Equal(ev.Date) {
		t.Errorf("date = %v, want %v", got.Date, ev.Date)
	}
}

func TestInvalidationMessageFromJSONRejectsGarbage(t *testing.T) {
	if _, err := InvalidationMessageFromJSON([]byte("not json")); err == nil {
		t.Error("garbage payload decoded without error")
	}
}
