package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"fincore/internal/core"
)

// transactionRequest is the write payload. Amount is a signed decimal
// string ("-12.34" is an expense of 12.34).
type transactionRequest struct {
	Date       string `json:"date"`
	Amount     string `json:"amount"`
	CategoryID int64  `json:"category_id"`
	UserID     int64  `json:"user_id"`
	AccountID  int64  `json:"account_id"`
	Notes      string `json:"notes"`
	Tags       string `json:"tags"`
}

type transactionResponse struct {
	ID         int64  `json:"id"`
	Date       string `json:"date"`
	Amount     string `json:"amount"`
	CategoryID int64  `json:"category_id"`
	UserID     int64  `json:"user_id"`
	AccountID  int64  `json:"account_id,omitempty"`
	Notes      string `json:"notes,omitempty"`
	Tags       string `json:"tags,omitempty"`
	RuleID     int64  `json:"rule_id,omitempty"`
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	t, ok := s.decodeTransaction(w, r)
	if !ok {
		return
	}

	created, err := s.transactions.Create(r.Context(), t)
	if err != nil {
		s.writeWriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toTransactionResponse(created))
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}

	t, ok := s.decodeTransaction(w, r)
	if !ok {
		return
	}
	t.ID = id

	if err := s.transactions.Update(r.Context(), t); err != nil {
		s.writeWriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toTransactionResponse(t))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}

	if err := s.transactions.Delete(r.Context(), id); err != nil {
		s.writeWriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "transaction deleted"})
}

func (s *Server) decodeTransaction(w http.ResponseWriter, r *http.Request) (core.Transaction, bool) {
	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return core.Transaction{}, false
	}

	date, err := core.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return core.Transaction{}, false
	}

	cents, err := core.ParseSignedCents(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return core.Transaction{}, false
	}

	t := core.Transaction{
		Date:       date,
		Amount:     core.Money{Cents: cents},
		CategoryID: req.CategoryID,
		UserID:     req.UserID,
		AccountID:  req.AccountID,
		Notes:      req.Notes,
		Tags:       req.Tags,
	}
	if err := t.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return core.Transaction{}, false
	}
	return t, true
}

func (s *Server) writeWriteError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrTransactionNotFound), errors.Is(err, core.ErrRuleNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidCadence),
		errors.Is(err, core.ErrInvalidInterval),
		errors.Is(err, core.ErrEmptyName):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.ErrorContext(r.Context(), "Write failed", "error", err)
		writeError(w, http.StatusInternalServerError, "write failed")
	}
}

func toTransactionResponse(t core.Transaction) transactionResponse {
	return transactionResponse{
		ID:         t.ID,
		Date:       t.Date.ISO(),
		Amount:     core.FormatCents(t.Amount.Cents),
		CategoryID: t.CategoryID,
		UserID:     t.UserID,
		AccountID:  t.AccountID,
		Notes:      t.Notes,
		Tags:       t.Tags,
		RuleID:     t.RuleID,
	}
}

func parsePathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}
