package core

// Aggregate rows served by the statistics endpoints. Expense totals are
// positive cents even though expense transactions are stored negative.

type MonthlyExpense struct {
	Month        string `json:"month"`
	ExpenseCents int64  `json:"expense_cents"`
}

type CategoryTotal struct {
	Category   string `json:"category"`
	TotalCents int64  `json:"total_cents"`
}

type UserTotal struct {
	User       string `json:"user"`
	TotalCents int64  `json:"total_cents"`
}

// DebugSnapshot is the uncached introspection payload: raw row counts and
// the date window the aggregations run over.
type DebugSnapshot struct {
	TotalTransactions int64  `json:"total_transactions"`
	WindowStart       string `json:"window_start"`
	WindowEnd         string `json:"window_end"`
	WindowCount       int64  `json:"window_count"`
	ExpenseCount      int64  `json:"expense_count"`
	IncomeCount       int64  `json:"income_count"`
	MinDate           string `json:"min_date"`
	MaxDate           string `json:"max_date"`
	ExpenseCents      int64  `json:"expense_cents"`
	IncomeCents       int64  `json:"income_cents"`
}
