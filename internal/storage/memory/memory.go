// Package memory is an in-process ledger store. State lives in maps
// guarded by a single RWMutex and is lost on restart.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"saldo/internal/core"
	"saldo/internal/ledger"
)

var ErrDuplicateEntry = errors.New("entry already exists")

type Store struct {
	mu       sync.RWMutex
	accounts map[string]core.Account
	entries  map[string]map[string]core.Entry
}

var _ ledger.TxStore = (*Store)(nil)

func New() *Store {
	return &Store{
		accounts: make(map[string]core.Account),
		entries:  make(map[string]map[string]core.Entry),
	}
}

func (s *Store) CreateAccount(_ context.Context, acct core.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[acct.ID]; ok {
		return core.ErrAccountExists
	}
	s.accounts[acct.ID] = acct
	s.entries[acct.ID] = make(map[string]core.Entry)
	return nil
}

func (s *Store) GetAccount(_ context.Context, accountID string) (core.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[accountID]
	if !ok {
		return core.Account{}, core.ErrNotFound
	}
	return acct, nil
}

func (s *Store) ListAccountIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.accounts))
	for id := range s.accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) UpdatePreferences(_ context.Context, accountID string, prefs core.Preferences) (core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[accountID]
	if !ok {
		return core.Account{}, core.ErrNotFound
	}
	acct.Preferences = prefs
	s.accounts[accountID] = acct
	return acct, nil
}

func (s *Store) GetEntry(_ context.Context, accountID, entryID string) (core.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[accountID][entryID]
	if !ok {
		return core.Entry{}, core.ErrNotFound
	}
	return e, nil
}

func (s *Store) ListEntries(_ context.Context, accountID string, q core.ListQuery) (core.Page, error) {
	q = q.Normalize()
	s.mu.RLock()
	matched := make([]core.Entry, 0)
	for _, e := range s.entries[accountID] {
		if q.Matches(e) {
			matched = append(matched, e)
		}
	}
	s.mu.RUnlock()

	core.SortEntries(matched, q.Sort)
	total := len(matched)
	start := min(q.Offset(), total)
	end := min(start+q.PageSize, total)
	return core.NewPage(matched[start:end], total, q), nil
}

// Snapshot returns entries ordered by date, oldest first.
func (s *Store) Snapshot(_ context.Context, accountID string) (core.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[accountID]
	if !ok {
		return core.Snapshot{}, core.ErrNotFound
	}
	entries := make([]core.Entry, 0, len(s.entries[accountID]))
	for _, e := range s.entries[accountID] {
		entries = append(entries, e)
	}
	core.SortEntries(entries, core.Sort{Field: core.SortDate})
	return core.Snapshot{Account: acct, Entries: entries}, nil
}

func (s *Store) InsertEntry(_ context.Context, e core.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(ledger.OpInsert, e); err != nil {
		return err
	}
	s.entries[e.AccountID][e.ID] = e
	return nil
}

func (s *Store) ReplaceEntry(_ context.Context, e core.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(ledger.OpReplace, e); err != nil {
		return err
	}
	s.entries[e.AccountID][e.ID] = e
	return nil
}

func (s *Store) DeleteEntry(_ context.Context, accountID, entryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(ledger.OpDelete, core.Entry{AccountID: accountID, ID: entryID}); err != nil {
		return err
	}
	delete(s.entries[accountID], entryID)
	return nil
}

func (s *Store) CompareAndSwapBalance(_ context.Context, u ledger.BalanceUpdate) (core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.swapLocked(u)
}

// Apply performs the entry write and the balance swap under one lock, so
// either both happen or neither does.
func (s *Store) Apply(_ context.Context, m ledger.Mutation) (core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.Op == ledger.OpNone {
		return s.accountLocked(m.Balance.AccountID)
	}
	if m.Op != ledger.OpBalance && m.Entry.AccountID != m.Balance.AccountID {
		return core.Account{}, fmt.Errorf("entry account %q does not match %q", m.Entry.AccountID, m.Balance.AccountID)
	}
	if err := s.checkVersionLocked(m.Balance); err != nil {
		return core.Account{}, err
	}
	if err := s.checkLocked(m.Op, m.Entry); err != nil {
		return core.Account{}, err
	}

	switch m.Op {
	case ledger.OpInsert, ledger.OpReplace:
		s.entries[m.Entry.AccountID][m.Entry.ID] = m.Entry
	case ledger.OpDelete:
		delete(s.entries[m.Entry.AccountID], m.Entry.ID)
	}
	return s.swapLocked(m.Balance)
}

func (s *Store) accountLocked(accountID string) (core.Account, error) {
	acct, ok := s.accounts[accountID]
	if !ok {
		return core.Account{}, core.ErrNotFound
	}
	return acct, nil
}

func (s *Store) checkVersionLocked(u ledger.BalanceUpdate) error {
	acct, err := s.accountLocked(u.AccountID)
	if err != nil {
		return err
	}
	if acct.Version != u.ExpectedVersion {
		return core.ErrVersionConflict
	}
	return nil
}

func (s *Store) swapLocked(u ledger.BalanceUpdate) (core.Account, error) {
	if err := s.checkVersionLocked(u); err != nil {
		return core.Account{}, err
	}
	acct := s.accounts[u.AccountID]
	acct.CurrentBalance = u.CurrentBalance
	acct.InitialBalance = u.InitialBalance
	acct.Version++
	if !u.UpdatedAt.IsZero() {
		acct.UpdatedAt = u.UpdatedAt
	}
	s.accounts[u.AccountID] = acct
	return acct, nil
}

// checkLocked validates that op can be applied to e without writing.
func (s *Store) checkLocked(op ledger.Op, e core.Entry) error {
	if op == ledger.OpBalance {
		return nil
	}
	byID, ok := s.entries[e.AccountID]
	if !ok {
		return core.ErrNotFound
	}
	_, exists := byID[e.ID]
	switch op {
	case ledger.OpInsert:
		if exists {
			return ErrDuplicateEntry
		}
	case ledger.OpReplace, ledger.OpDelete:
		if !exists {
			return core.ErrNotFound
		}
	}
	return nil
}
