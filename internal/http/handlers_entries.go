package http

import (
	"net/http"

	"saldo/internal/auth"
	"saldo/internal/core"
)

type entryResponse struct {
	OK          bool       `json:"ok"`
	Transaction core.Entry `json:"transaction"`
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	q, err := ParseListQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := s.ledger.ListEntries(r.Context(), auth.AccountID(r.Context()), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	var req EntryRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := req.Input()
	if err != nil {
		writeError(w, r, err)
		return
	}
	entry, err := s.ledger.CreateEntry(r.Context(), auth.AccountID(r.Context()), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/transactions/"+entry.ID).
		Body(entryResponse{OK: true, Transaction: entry}).
		Write(w)
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := s.ledger.GetEntry(r.Context(), auth.AccountID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleUpdateEntry(w http.ResponseWriter, r *http.Request) {
	var req EntryRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := req.Input()
	if err != nil {
		writeError(w, r, err)
		return
	}
	entry, err := s.ledger.UpdateEntry(r.Context(), auth.AccountID(r.Context()), r.PathValue("id"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entryResponse{OK: true, Transaction: entry})
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	balance, err := s.ledger.DeleteEntry(r.Context(), auth.AccountID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		OK      bool       `json:"ok"`
		Balance core.Money `json:"balance"`
	}{true, balance})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	days, err := ParseIntParam(r.URL.Query(), "days", 30, 1, 366)
	if err != nil {
		writeError(w, r, err)
		return
	}
	summary, err := s.ledger.Summary(r.Context(), auth.AccountID(r.Context()), days)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
