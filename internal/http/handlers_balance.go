package http

import (
	"net/http"

	"saldo/internal/analytics"
	"saldo/internal/auth"
	"saldo/internal/core"
)

func (s *Server) handleCurrentBalance(w http.ResponseWriter, r *http.Request) {
	view, err := s.ledger.CurrentBalance(r.Context(), auth.AccountID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Balance        core.Money `json:"balance"`
		InitialBalance core.Money `json:"initialBalance"`
		Currency       string     `json:"currency"`
		Formatted      string     `json:"formatted"`
	}{view.Balance, view.InitialBalance, view.Currency, view.Balance.Format(view.Currency)})
}

func (s *Server) handleBalanceHistory(w http.ResponseWriter, r *http.Request) {
	rng, days, err := ParseHistoryRange(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	points, err := s.ledger.BalanceSeries(r.Context(), auth.AccountID(r.Context()), days)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Range string               `json:"range"`
		Items []analytics.DayPoint `json:"items"`
	}{rng, points})
}

func (s *Server) handleVerifyBalance(w http.ResponseWriter, r *http.Request) {
	v, err := s.ledger.VerifyBalance(r.Context(), auth.AccountID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	res, err := s.ledger.Reconcile(r.Context(), auth.AccountID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
