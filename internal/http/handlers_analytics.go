package http

import (
	"net/http"
	"strings"

	"saldo/internal/auth"
	"saldo/internal/core"
)

func (s *Server) handleBalanceTrend(w http.ResponseWriter, r *http.Request) {
	days, err := ParseIntParam(r.URL.Query(), "days", 30, 1, 366)
	if err != nil {
		writeError(w, r, err)
		return
	}
	points, err := s.ledger.BalanceSeries(r.Context(), auth.AccountID(r.Context()), days)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

func (s *Server) handleMonthly(w http.ResponseWriter, r *http.Request) {
	months, err := ParseIntParam(r.URL.Query(), "months", 6, 1, 60)
	if err != nil {
		writeError(w, r, err)
		return
	}
	points, err := s.ledger.MonthlyTrend(r.Context(), auth.AccountID(r.Context()), months)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

// handleCategories defaults to the debit breakdown.
func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	kind := core.Debit
	if v := strings.TrimSpace(r.URL.Query().Get("type")); v != "" {
		k, err := core.ParseKind(v)
		if err != nil {
			writeError(w, r, fieldError("type", err.Error()))
			return
		}
		kind = k
	}
	shares, err := s.ledger.CategoryBreakdown(r.Context(), auth.AccountID(r.Context()), kind)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, shares)
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	report, err := s.ledger.Overview(r.Context(), auth.AccountID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
