package core

import (
	"errors"
	"strings"
	"time"
)

const (
	CadenceMonthly  Cadence = "monthly"
	CadenceWeekly   Cadence = "weekly"
	CadenceInterval Cadence = "interval"
)

type (
	// Cadence is the recurrence interval type of a rule.
	Cadence string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// RecurringRule is a template that the scheduler turns into concrete
	// transactions, one per elapsed period.
	RecurringRule struct {
		ID           int64
		Name         string
		OwnerUserID  int64
		Amount       Money
		CategoryID   int64
		AccountID    int64
		Cadence      Cadence
		IntervalDays int // cadence "interval" only
		AnchorDay    int // day of month (monthly) or offset from Monday (weekly); 0 falls back to the start date's day
		StartDate    Date
		EndDate      Date   // zero when open-ended
		LastPeriod   string // last materialized period key, "" when never run
		Active       bool
	}

	// Transaction is a single ledger row. Negative amounts are expenses,
	// positive amounts are income. RuleID is zero for manual entries and
	// set to the originating rule for scheduler-generated ones.
	Transaction struct {
		ID         int64
		Date       Date
		Amount     Money
		CategoryID int64
		UserID     int64
		AccountID  int64
		Notes      string
		Tags       string
		RuleID     int64
		PeriodKey  string
	}
)

var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidCadence      = errors.New("invalid cadence")
	ErrInvalidInterval     = errors.New("interval days must be positive")
	ErrEmptyName           = errors.New("empty rule name")
	ErrRuleNotFound        = errors.New("recurring rule not found")
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrDuplicateInstance signals that a transaction for the same
	// (rule, period) pair already exists. Callers treat it as an
	// idempotent no-op, never as a failure.
	ErrDuplicateInstance = errors.New("instance already materialized for period")
)

// NewDate creates a Date from year, month, day in UTC.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses an ISO date string (YYYY-MM-DD).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

// ISO formats the date as YYYY-MM-DD, the representation stored in SQLite.
func (d Date) ISO() string {
	return d.Format("2006-01-02")
}

// YearMonth returns the YYYY-MM bucket of the date.
func (d Date) YearMonth() string {
	return d.Format("2006-01")
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}

func (m Money) Validate() error {
	if m.Cents == 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (t Transaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if t.CategoryID <= 0 {
		return errors.New("category is required")
	}
	if t.UserID <= 0 {
		return errors.New("user is required")
	}
	if len(t.Notes) > 500 {
		return errors.New("notes too long (max 500 characters)")
	}
	return nil
}

func (r RecurringRule) Validate() error {
	if len(strings.TrimSpace(r.Name)) == 0 {
		return ErrEmptyName
	}
	if err := r.StartDate.Validate(); err != nil {
		return errors.New("invalid start date: " + err.Error())
	}
	if !r.EndDate.IsZero() && r.EndDate.Before(r.StartDate.Time) {
		return errors.New("end date must not be before start date")
	}
	if err := r.Amount.Validate(); err != nil {
		return err
	}
	if r.CategoryID <= 0 {
		return errors.New("category is required")
	}
	if r.OwnerUserID <= 0 {
		return errors.New("owner user is required")
	}
	switch r.Cadence {
	case CadenceMonthly:
		if r.AnchorDay < 0 || r.AnchorDay > 31 {
			return errors.New("anchor day must be within 0..31")
		}
	case CadenceWeekly:
		if r.AnchorDay < 0 || r.AnchorDay > 6 {
			return errors.New("anchor weekday must be within 0..6")
		}
	case CadenceInterval:
		if r.IntervalDays < 1 {
			return ErrInvalidInterval
		}
	default:
		return ErrInvalidCadence
	}
	return nil
}
