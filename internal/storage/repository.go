// Package storage persists recurring rules and transactions in SQLite and
// runs the aggregation queries the statistics cache fronts.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fincore/internal/core"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// DB exposes the underlying handle for test seeding.
func (r *SQLiteRepository) DB() *sql.DB {
	return r.db
}

// --- transactions ---

// CreateTransaction inserts a manually entered transaction and returns it
// with its assigned id.
func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (date, amount_cents, category_id, user_id, account_id, notes, tags)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.Date.ISO(), t.Amount.Cents, t.CategoryID, t.UserID, nullableID(t.AccountID), t.Notes, t.Tags)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction id: %w", err)
	}
	t.ID = id

	slog.InfoContext(ctx, "Transaction saved",
		"id", t.ID,
		"date", t.Date.ISO(),
		"amount_cents", t.Amount.Cents)
	return t, nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, date, amount_cents, category_id, user_id, account_id, notes, tags, recurrence_id, period_key
		FROM transactions WHERE id = ?`, id)
	return scanTransaction(row)
}

// UpdateTransaction rewrites a transaction's user-editable fields.
func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET date = ?, amount_cents = ?, category_id = ?, user_id = ?, account_id = ?, notes = ?, tags = ?
		WHERE id = ?`,
		t.Date.ISO(), t.Amount.Cents, t.CategoryID, t.UserID, nullableID(t.AccountID), t.Notes, t.Tags, t.ID)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update transaction rows: %w", err)
	}
	if n == 0 {
		return core.ErrTransactionNotFound
	}
	return nil
}

// DeleteTransaction removes a transaction and returns the deleted row so
// the caller can publish an invalidation covering its date range.
func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	t, err := r.GetTransaction(ctx, id)
	if err != nil {
		return core.Transaction{}, err
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id); err != nil {
		return core.Transaction{}, fmt.Errorf("delete transaction: %w", err)
	}
	return t, nil
}

// --- recurring rules ---

func (r *SQLiteRepository) CreateRule(ctx context.Context, rule core.RecurringRule) (core.RecurringRule, error) {
	var endDate any
	if !rule.EndDate.IsZero() {
		endDate = rule.EndDate.ISO()
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO recurrences (name, owner_user_id, amount_cents, category_id, account_id,
		                         cadence, interval_days, anchor_day, start_date, end_date, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		rule.Name, rule.OwnerUserID, rule.Amount.Cents, rule.CategoryID, nullableID(rule.AccountID),
		string(rule.Cadence), rule.IntervalDays, rule.AnchorDay, rule.StartDate.ISO(), endDate)
	if err != nil {
		return core.RecurringRule{}, fmt.Errorf("insert recurrence: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return core.RecurringRule{}, fmt.Errorf("recurrence id: %w", err)
	}
	rule.ID = id
	rule.Active = true
	return rule, nil
}

func (r *SQLiteRepository) GetRule(ctx context.Context, id int64) (core.RecurringRule, error) {
	row := r.db.QueryRowContext(ctx, ruleSelect+` WHERE id = ?`, id)
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.RecurringRule{}, core.ErrRuleNotFound
	}
	return rule, err
}

// DeactivateRule soft-deletes a rule. The row stays because historical
// transactions reference it.
func (r *SQLiteRepository) DeactivateRule(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE recurrences SET active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deactivate recurrence: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate recurrence rows: %w", err)
	}
	if n == 0 {
		return core.ErrRuleNotFound
	}
	return nil
}

// ActiveRules lists rules eligible for materialization at the given time:
// active and started. Ended rules stay in the result because they may still
// owe periods up to their end date; DuePeriods clamps to it.
func (r *SQLiteRepository) ActiveRules(ctx context.Context, now time.Time) ([]core.RecurringRule, error) {
	today := now.UTC().Format("2006-01-02")
	rows, err := r.db.QueryContext(ctx, ruleSelect+`
		WHERE active = 1 AND start_date <= ?
		ORDER BY id`, today)
	if err != nil {
		return nil, fmt.Errorf("query active recurrences: %w", err)
	}
	defer rows.Close()

	var rules []core.RecurringRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recurrence: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// MaterializeInstance creates one transaction for (rule, period) and moves
// the rule's watermark, all inside a single store transaction: either both
// exist afterwards or neither does. Returns core.ErrDuplicateInstance when
// the period was already materialized, by this process or any other.
func (r *SQLiteRepository) MaterializeInstance(ctx context.Context, rule core.RecurringRule, periodKey string, due core.Date) (core.Transaction, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("begin materialize: %w", err)
	}
	defer tx.Rollback()

	var one int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM transactions WHERE recurrence_id = ? AND period_key = ? LIMIT 1`,
		rule.ID, periodKey).Scan(&one)
	if err == nil {
		return core.Transaction{}, core.ErrDuplicateInstance
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("check existing instance: %w", err)
	}

	instance := core.Transaction{
		Date:       due,
		Amount:     rule.Amount,
		CategoryID: rule.CategoryID,
		UserID:     rule.OwnerUserID,
		AccountID:  rule.AccountID,
		Notes:      "Recurring: " + rule.Name,
		Tags:       "recurring",
		RuleID:     rule.ID,
		PeriodKey:  periodKey,
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (date, amount_cents, category_id, user_id, account_id, notes, tags, recurrence_id, period_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		instance.Date.ISO(), instance.Amount.Cents, instance.CategoryID, instance.UserID,
		nullableID(instance.AccountID), instance.Notes, instance.Tags, instance.RuleID, instance.PeriodKey)
	if err != nil {
		// The unique index is the last-resort guard against a concurrent
		// scheduler instance racing past the existence check.
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return core.Transaction{}, core.ErrDuplicateInstance
		}
		return core.Transaction{}, fmt.Errorf("insert instance: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return core.Transaction{}, fmt.Errorf("instance id: %w", err)
	}
	instance.ID = id

	if _, err := tx.ExecContext(ctx,
		`UPDATE recurrences SET last_period = ? WHERE id = ?`, periodKey, rule.ID); err != nil {
		return core.Transaction{}, fmt.Errorf("update watermark: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return core.Transaction{}, fmt.Errorf("commit materialize: %w", err)
	}
	return instance, nil
}

// --- scanning helpers ---

const ruleSelect = `
	SELECT id, name, owner_user_id, amount_cents, category_id, account_id,
	       cadence, interval_days, anchor_day, start_date, end_date, last_period, active
	FROM recurrences`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (core.RecurringRule, error) {
	var (
		rule       core.RecurringRule
		accountID  sql.NullInt64
		startDate  string
		endDate    sql.NullString
		lastPeriod sql.NullString
		active     int
	)
	err := row.Scan(&rule.ID, &rule.Name, &rule.OwnerUserID, &rule.Amount.Cents, &rule.CategoryID,
		&accountID, (*string)(&rule.Cadence), &rule.IntervalDays, &rule.AnchorDay,
		&startDate, &endDate, &lastPeriod, &active)
	if err != nil {
		return core.RecurringRule{}, err
	}

	rule.AccountID = accountID.Int64
	rule.LastPeriod = lastPeriod.String
	rule.Active = active != 0
	if rule.StartDate, err = core.ParseDate(startDate); err != nil {
		return core.RecurringRule{}, fmt.Errorf("parse start date: %w", err)
	}
	if endDate.Valid && endDate.String != "" {
		if rule.EndDate, err = core.ParseDate(endDate.String); err != nil {
			return core.RecurringRule{}, fmt.Errorf("parse end date: %w", err)
		}
	}
	return rule, nil
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var (
		t         core.Transaction
		date      string
		accountID sql.NullInt64
		ruleID    sql.NullInt64
		periodKey sql.NullString
	)
	err := row.Scan(&t.ID, &date, &t.Amount.Cents, &t.CategoryID, &t.UserID,
		&accountID, &t.Notes, &t.Tags, &ruleID, &periodKey)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.ErrTransactionNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}

	t.AccountID = accountID.Int64
	t.RuleID = ruleID.Int64
	t.PeriodKey = periodKey.String
	if t.Date, err = core.ParseDate(date); err != nil {
		return core.Transaction{}, fmt.Errorf("parse transaction date: %w", err)
	}
	return t, nil
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
