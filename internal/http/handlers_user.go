package http

import (
	"net/http"

	"saldo/internal/auth"
	"saldo/internal/core"
)

type profileResponse struct {
	ID             string           `json:"id"`
	Email          string           `json:"email,omitempty"`
	Provider       string           `json:"provider,omitempty"`
	Preferences    core.Preferences `json:"preferences"`
	InitialBalance core.Money       `json:"initialBalance"`
	CurrentBalance core.Money       `json:"currentBalance"`
}

func newProfileResponse(r *http.Request, acct core.Account) profileResponse {
	id, _ := auth.FromContext(r.Context())
	return profileResponse{
		ID:             acct.ID,
		Email:          acct.Email,
		Provider:       id.Provider,
		Preferences:    acct.Preferences,
		InitialBalance: acct.InitialBalance,
		CurrentBalance: acct.CurrentBalance,
	}
}

func (s *Server) handleInitialBalance(w http.ResponseWriter, r *http.Request) {
	var req InitialBalanceRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	amount, err := req.Amount()
	if err != nil {
		writeError(w, r, err)
		return
	}
	acct, err := s.ledger.SetInitialBalance(r.Context(), auth.AccountID(r.Context()), amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		OK             bool       `json:"ok"`
		InitialBalance core.Money `json:"initialBalance"`
		CurrentBalance core.Money `json:"currentBalance"`
	}{true, acct.InitialBalance, acct.CurrentBalance})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	acct, err := s.ledger.Profile(r.Context(), auth.AccountID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newProfileResponse(r, acct))
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req ProfileRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	accountID := auth.AccountID(r.Context())
	current, err := s.ledger.Profile(r.Context(), accountID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	acct, err := s.ledger.UpdatePreferences(r.Context(), accountID, req.Apply(current.Preferences))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		OK          bool             `json:"ok"`
		Preferences core.Preferences `json:"preferences"`
	}{true, acct.Preferences})
}
