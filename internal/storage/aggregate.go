package storage

import (
	"context"
	"fmt"

	"fincore/internal/core"
)

// Aggregation queries over the statistics window. Callers pass the window's
// month buckets (oldest first, YYYY-MM); the start of the window is the
// first day of the first bucket. Per-month results are zero-filled so every
// requested month appears even when it has no transactions.

// MonthlyExpenses sums expenses per month, optionally filtered by category
// and/or user (zero means no filter).
func (r *SQLiteRepository) MonthlyExpenses(ctx context.Context, months []string, categoryID, userID int64) ([]core.MonthlyExpense, error) {
	if len(months) == 0 {
		return nil, nil
	}

	query := `
		SELECT strftime('%Y-%m', date) AS ym,
		       COALESCE(SUM(CASE WHEN amount_cents < 0 THEN -amount_cents ELSE 0 END), 0) AS expenses
		FROM transactions
		WHERE date >= ?`
	args := []any{months[0] + "-01"}
	if categoryID > 0 {
		query += ` AND category_id = ?`
		args = append(args, categoryID)
	}
	if userID > 0 {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}
	query += ` GROUP BY ym`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query monthly expenses: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]int64)
	for rows.Next() {
		var ym string
		var cents int64
		if err := rows.Scan(&ym, &cents); err != nil {
			return nil, fmt.Errorf("scan monthly expenses: %w", err)
		}
		totals[ym] = cents
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return fillMonths(months, totals), nil
}

// RecurringMonthly sums scheduler-generated expenses per month.
func (r *SQLiteRepository) RecurringMonthly(ctx context.Context, months []string) ([]core.MonthlyExpense, error) {
	if len(months) == 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT strftime('%Y-%m', date) AS ym,
		       COALESCE(SUM(CASE WHEN amount_cents < 0 THEN -amount_cents ELSE 0 END), 0) AS expenses
		FROM transactions
		WHERE date >= ? AND recurrence_id IS NOT NULL
		GROUP BY ym`, months[0]+"-01")
	if err != nil {
		return nil, fmt.Errorf("query recurring monthly: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]int64)
	for rows.Next() {
		var ym string
		var cents int64
		if err := rows.Scan(&ym, &cents); err != nil {
			return nil, fmt.Errorf("scan recurring monthly: %w", err)
		}
		totals[ym] = cents
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return fillMonths(months, totals), nil
}

// CategoryTotals sums expenses by category over the window.
func (r *SQLiteRepository) CategoryTotals(ctx context.Context, windowStart string) ([]core.CategoryTotal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.name,
		       COALESCE(SUM(CASE WHEN t.amount_cents < 0 THEN -t.amount_cents ELSE 0 END), 0) AS total
		FROM transactions t
		JOIN categories c ON t.category_id = c.id
		WHERE t.date >= ?
		GROUP BY c.name
		ORDER BY total DESC`, windowStart)
	if err != nil {
		return nil, fmt.Errorf("query category totals: %w", err)
	}
	defer rows.Close()

	var totals []core.CategoryTotal
	for rows.Next() {
		var ct core.CategoryTotal
		if err := rows.Scan(&ct.Category, &ct.TotalCents); err != nil {
			return nil, fmt.Errorf("scan category totals: %w", err)
		}
		totals = append(totals, ct)
	}
	return totals, rows.Err()
}

// UserTotals sums expenses by user over the window.
func (r *SQLiteRepository) UserTotals(ctx context.Context, windowStart string) ([]core.UserTotal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT u.name,
		       COALESCE(SUM(CASE WHEN t.amount_cents < 0 THEN -t.amount_cents ELSE 0 END), 0) AS total
		FROM transactions t
		JOIN users u ON t.user_id = u.id
		WHERE t.date >= ?
		GROUP BY u.name
		ORDER BY total DESC`, windowStart)
	if err != nil {
		return nil, fmt.Errorf("query user totals: %w", err)
	}
	defer rows.Close()

	var totals []core.UserTotal
	for rows.Next() {
		var ut core.UserTotal
		if err := rows.Scan(&ut.User, &ut.TotalCents); err != nil {
			return nil, fmt.Errorf("scan user totals: %w", err)
		}
		totals = append(totals, ut)
	}
	return totals, rows.Err()
}

// DebugSnapshot reads raw counts for the uncached debug endpoint.
func (r *SQLiteRepository) DebugSnapshot(ctx context.Context, windowStart, windowEnd string) (core.DebugSnapshot, error) {
	snap := core.DebugSnapshot{WindowStart: windowStart, WindowEnd: windowEnd}

	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions`).Scan(&snap.TotalTransactions); err != nil {
		return snap, fmt.Errorf("count transactions: %w", err)
	}

	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(CASE WHEN amount_cents < 0 THEN 1 END),
		       COUNT(CASE WHEN amount_cents > 0 THEN 1 END),
		       COALESCE(MIN(date), ''),
		       COALESCE(MAX(date), ''),
		       COALESCE(SUM(CASE WHEN amount_cents < 0 THEN -amount_cents ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN amount_cents > 0 THEN amount_cents ELSE 0 END), 0)
		FROM transactions
		WHERE date >= ?`, windowStart).Scan(
		&snap.WindowCount, &snap.ExpenseCount, &snap.IncomeCount,
		&snap.MinDate, &snap.MaxDate, &snap.ExpenseCents, &snap.IncomeCents)
	if err != nil {
		return snap, fmt.Errorf("window counts: %w", err)
	}
	return snap, nil
}

func fillMonths(months []string, totals map[string]int64) []core.MonthlyExpense {
	out := make([]core.MonthlyExpense, 0, len(months))
	for _, ym := range months {
		out = append(out, core.MonthlyExpense{Month: ym, ExpenseCents: totals[ym]})
	}
	return out
}
