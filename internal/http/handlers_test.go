package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fincore/internal/cache"
	"fincore/internal/core"
)

type fakeStats struct {
	monthly   []core.MonthlyExpense
	hit       bool
	err       error
	lastCat   int64
	lastUser  int64
	snapshot  core.DebugSnapshot
	debugHit  bool
	debugErr  error
	recurring []core.MonthlyExpense
}

func (f *fakeStats) MonthlyExpenses(ctx context.Context, categoryID, userID int64) ([]core.MonthlyExpense, bool, error) {
	f.lastCat, f.lastUser = categoryID, userID
	return f.monthly, f.hit, f.err
}

func (f *fakeStats) RecurringSummary(ctx context.Context) ([]core.MonthlyExpense, bool, error) {
	return f.recurring, f.hit, f.err
}

func (f *fakeStats) CategoryBreakdown(ctx context.Context) ([]core.CategoryTotal, bool, error) {
	return nil, f.hit, f.err
}

func (f *fakeStats) UserBreakdown(ctx context.Context) ([]core.UserTotal, bool, error) {
	return nil, f.hit, f.err
}

func (f *fakeStats) Debug(ctx context.Context) (core.DebugSnapshot, bool, error) {
	return f.snapshot, f.debugHit, f.debugErr
}

type fakeWriter struct {
	created   core.Transaction
	createErr error
	updateErr error
	deleteErr error
	deletedID int64
}

func (f *fakeWriter) Create(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if f.createErr != nil {
		return core.Transaction{}, f.createErr
	}
	t.ID = 7
	f.created = t
	return t, nil
}

func (f *fakeWriter) Update(ctx context.Context, t core.Transaction) error { return f.updateErr }

func (f *fakeWriter) Delete(ctx context.Context, id int64) error {
	f.deletedID = id
	return f.deleteErr
}

func (f *fakeWriter) Get(ctx context.Context, id int64) (core.Transaction, error) {
	return core.Transaction{}, core.ErrTransactionNotFound
}

type fakeRules struct {
	created core.RecurringRule
	err     error
}

func (f *fakeRules) Create(ctx context.Context, rule core.RecurringRule) (core.RecurringRule, error) {
	if f.err != nil {
		return core.RecurringRule{}, f.err
	}
	rule.ID = 3
	rule.Active = true
	f.created = rule
	return rule, nil
}

func (f *fakeRules) Deactivate(ctx context.Context, id int64) error { return f.err }

func testServer(t *testing.T, stats *fakeStats, tw *fakeWriter, rm *fakeRules) *Server {
	t.Helper()
	if stats == nil {
		stats = &fakeStats{}
	}
	if tw == nil {
		tw = &fakeWriter{}
	}
	if rm == nil {
		rm = &fakeRules{}
	}
	s := NewServer(":0", stats, tw, rm, cache.New(16, time.Minute, time.Second))
	t.Cleanup(func() { s.rateLimiter.stop() })
	return s
}

func doRequest(s *Server, method, target string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestMonthlyExpensesEndpoint(t *testing.T) {
	stats := &fakeStats{
		monthly: []core.MonthlyExpense{
			{Month: "2025-03", ExpenseCents: 3500},
			{Month: "2025-04", ExpenseCents: 4000},
		},
		hit: true,
	}
	s := testServer(t, stats, nil, nil)

	rec := doRequest(s, http.MethodGet, "/api/statistics/monthly-expenses?category_id=3&user_id=1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("X-Cache"); got != "HIT" {
		t.Errorf("X-Cache = %q, want HIT", got)
	}
	if stats.lastCat != 3 || stats.lastUser != 1 {
		t.Errorf("filters passed as %d/%d, want 3/1", stats.lastCat, stats.lastUser)
	}

	var rows []core.MonthlyExpense
	if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(rows) != 2 || rows[1].ExpenseCents != 4000 {
		t.Errorf("rows = %+v", rows)
	}
}

func TestMonthlyExpensesRejectsBadFilters(t *testing.T) {
	s := testServer(t, nil, nil, nil)

	for _, target := range []string{
		"/api/statistics/monthly-expenses?category_id=abc",
		"/api/statistics/monthly-expenses?user_id=0",
		"/api/statistics/monthly-expenses?user_id=-1",
	} {
		rec := doRequest(s, http.MethodGet, target, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, rec.Code)
		}
	}
}

func TestStatisticsErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"compute timeout", fmt.Errorf("monthly: %w", cache.ErrComputeTimeout), http.StatusGatewayTimeout},
		{"store failure", errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testServer(t, &fakeStats{err: tt.err}, nil, nil)
			rec := doRequest(s, http.MethodGet, "/api/statistics/monthly-expenses", nil)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestCreateTransactionEndpoint(t *testing.T) {
	tw := &fakeWriter{}
	s := testServer(t, nil, tw, nil)

	rec := doRequest(s, http.MethodPost, "/api/transactions", map[string]any{
		"date":        "2025-04-10",
		"amount":      "-45.50",
		"category_id": 2,
		"user_id":     1,
		"notes":       "weekly shop",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if tw.created.Amount.Cents != -4550 {
		t.Errorf("stored cents = %d, want -4550", tw.created.Amount.Cents)
	}

	var resp transactionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.ID != 7 || resp.Amount != "-45.50" || resp.Date != "2025-04-10" {
		t.Errorf("response = %+v", resp)
	}
}

func TestCreateTransactionValidation(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
	}{
		{"bad date", map[string]any{"date": "10/04/2025", "amount": "-1.00", "category_id": 1, "user_id": 1}},
		{"bad amount", map[string]any{"date": "2025-04-10", "amount": "lots", "category_id": 1, "user_id": 1}},
		{"zero amount", map[string]any{"date": "2025-04-10", "amount": "0", "category_id": 1, "user_id": 1}},
		{"missing category", map[string]any{"date": "2025-04-10", "amount": "-1.00", "user_id": 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tw := &fakeWriter{}
			s := testServer(t, nil, tw, nil)
			rec := doRequest(s, http.MethodPost, "/api/transactions", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (body %s)", rec.Code, rec.Body.String())
			}
			if tw.created.ID != 0 {
				t.Error("invalid payload reached the writer")
			}
		})
	}
}

func TestDeleteTransactionEndpoint(t *testing.T) {
	tw := &fakeWriter{}
	s := testServer(t, nil, tw, nil)

	rec := doRequest(s, http.MethodDelete, "/api/transactions/42", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if tw.deletedID != 42 {
		t.Errorf("deleted id = %d, want 42", tw.deletedID)
	}

	rec = doRequest(s, http.MethodDelete, "/api/transactions/abc", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	tw.deleteErr = core.ErrTransactionNotFound
	rec = doRequest(s, http.MethodDelete, "/api/transactions/42", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestCreateRuleEndpoint(t *testing.T) {
	rm := &fakeRules{}
	s := testServer(t, nil, nil, rm)

	rec := doRequest(s, http.MethodPost, "/api/recurrences", map[string]any{
		"name":          "Rent",
		"owner_user_id": 1,
		"amount":        "-1200.00",
		"category_id":   1,
		"cadence":       "monthly",
		"anchor_day":    1,
		"start_date":    "2025-01-01",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if rm.created.Amount.Cents != -120000 || rm.created.Cadence != core.CadenceMonthly {
		t.Errorf("created rule = %+v", rm.created)
	}

	var resp ruleResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.ID != 3 || !resp.Active || resp.Amount != "-1200.00" {
		t.Errorf("response = %+v", resp)
	}
}

func TestCreateRuleValidation(t *testing.T) {
	rm := &fakeRules{}
	s := testServer(t, nil, nil, rm)

	rec := doRequest(s, http.MethodPost, "/api/recurrences", map[string]any{
		"name":          "Oops",
		"owner_user_id": 1,
		"amount":        "-10.00",
		"category_id":   1,
		"cadence":       "yearly",
		"start_date":    "2025-01-01",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if rm.created.ID != 0 {
		t.Error("invalid rule reached the manager")
	}
}

func TestClearCacheEndpoint(t *testing.T) {
	s := testServer(t, nil, nil, nil)

	// Warm the cache, then clear it through the operator endpoint.
	key := cache.NewKey(cache.NamespaceMonthly)
	if _, _, err := s.cache.GetOrCompute(context.Background(), key, func(ctx context.Context) (any, error) {
		return "v", nil
	}); err != nil {
		t.Fatal(err)
	}

	rec := doRequest(s, http.MethodPost, "/api/statistics/clear-cache", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if s.cache.Size() != 0 {
		t.Errorf("cache size = %d after clear, want 0", s.cache.Size())
	}
}

func TestCacheStatsEndpoint(t *testing.T) {
	s := testServer(t, nil, nil, nil)

	rec := doRequest(s, http.MethodGet, "/api/statistics/cache-stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var stats map[string]cache.NamespaceStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if _, ok := stats[string(cache.NamespaceMonthly)]; !ok {
		t.Errorf("stats missing monthly namespace: %v", stats)
	}
}

func TestDebugEndpoint(t *testing.T) {
	stats := &fakeStats{
		snapshot: core.DebugSnapshot{TotalTransactions: 12, WindowCount: 9},
		debugHit: true,
	}
	s := testServer(t, stats, nil, nil)

	rec := doRequest(s, http.MethodGet, "/api/statistics/debug", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body struct {
		Snapshot    core.DebugSnapshot `json:"snapshot"`
		CacheStatus string             `json:"cache_status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Snapshot.TotalTransactions != 12 {
		t.Errorf("snapshot = %+v", body.Snapshot)
	}
	if body.CacheStatus != "HIT" {
		t.Errorf("cache_status = %q, want HIT", body.CacheStatus)
	}
}

func TestHealthEndpoints(t *testing.T) {
	s := testServer(t, nil, nil, nil)

	rec := doRequest(s, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d", rec.Code)
	}
	rec = doRequest(s, http.MethodGet, "/readyz", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("readyz status = %d", rec.Code)
	}
}

func TestWriteRateLimit(t *testing.T) {
	s := testServer(t, nil, &fakeWriter{}, nil)

	payload := map[string]any{"date": "2025-04-10", "amount": "-1.00", "category_id": 1, "user_id": 1}
	var last int
	for i := 0; i < 61; i++ {
		rec := doRequest(s, http.MethodPost, "/api/transactions", payload)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("61st write returned %d, want 429", last)
	}

	// Reads are never rate limited.
	rec := doRequest(s, http.MethodGet, "/api/statistics/monthly-expenses", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("read after limit returned %d, want 200", rec.Code)
	}
}
