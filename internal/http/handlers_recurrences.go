package http

import (
	"encoding/json"
	"net/http"

	"fincore/internal/core"
)

type ruleRequest struct {
	Name         string `json:"name"`
	OwnerUserID  int64  `json:"owner_user_id"`
	Amount       string `json:"amount"`
	CategoryID   int64  `json:"category_id"`
	AccountID    int64  `json:"account_id"`
	Cadence      string `json:"cadence"`
	IntervalDays int    `json:"interval_days"`
	AnchorDay    int    `json:"anchor_day"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
}

type ruleResponse struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	OwnerUserID  int64  `json:"owner_user_id"`
	Amount       string `json:"amount"`
	CategoryID   int64  `json:"category_id"`
	AccountID    int64  `json:"account_id,omitempty"`
	Cadence      string `json:"cadence"`
	IntervalDays int    `json:"interval_days,omitempty"`
	AnchorDay    int    `json:"anchor_day,omitempty"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date,omitempty"`
	Active       bool   `json:"active"`
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	startDate, err := core.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start_date, expected YYYY-MM-DD")
		return
	}

	var endDate core.Date
	if req.EndDate != "" {
		if endDate, err = core.ParseDate(req.EndDate); err != nil {
			writeError(w, http.StatusBadRequest, "invalid end_date, expected YYYY-MM-DD")
			return
		}
	}

	cents, err := core.ParseSignedCents(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	rule := core.RecurringRule{
		Name:         req.Name,
		OwnerUserID:  req.OwnerUserID,
		Amount:       core.Money{Cents: cents},
		CategoryID:   req.CategoryID,
		AccountID:    req.AccountID,
		Cadence:      core.Cadence(req.Cadence),
		IntervalDays: req.IntervalDays,
		AnchorDay:    req.AnchorDay,
		StartDate:    startDate,
		EndDate:      endDate,
	}
	if err := rule.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := s.rules.Create(r.Context(), rule)
	if err != nil {
		s.writeWriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toRuleResponse(created))
}

func (s *Server) handleDeactivateRule(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid rule id")
		return
	}

	if err := s.rules.Deactivate(r.Context(), id); err != nil {
		s.writeWriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "rule deactivated"})
}

func toRuleResponse(rule core.RecurringRule) ruleResponse {
	resp := ruleResponse{
		ID:           rule.ID,
		Name:         rule.Name,
		OwnerUserID:  rule.OwnerUserID,
		Amount:       core.FormatCents(rule.Amount.Cents),
		CategoryID:   rule.CategoryID,
		AccountID:    rule.AccountID,
		Cadence:      string(rule.Cadence),
		IntervalDays: rule.IntervalDays,
		AnchorDay:    rule.AnchorDay,
		StartDate:    rule.StartDate.ISO(),
		Active:       rule.Active,
	}
	if !rule.EndDate.IsZero() {
		resp.EndDate = rule.EndDate.ISO()
	}
	return resp
}
