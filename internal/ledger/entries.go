package ledger

import (
	"context"
	"fmt"

	"saldo/internal/core"
	"saldo/internal/events"
	"saldo/internal/log"
)

// CreateEntry records a new entry and moves the balance by its signed
// amount. The returned entry carries the resulting balance.
func (s *Service) CreateEntry(ctx context.Context, accountID string, in core.EntryInput) (core.Entry, error) {
	if err := requireAccount(accountID); err != nil {
		return core.Entry{}, err
	}
	if !s.allow(accountID, log.OpCreate) {
		return core.Entry{}, core.ErrRateLimited
	}
	in = in.Normalized()
	if err := in.Validate(); err != nil {
		return core.Entry{}, err
	}
	enc, err := s.seal(in.Description)
	if err != nil {
		return core.Entry{}, fmt.Errorf("seal description: %w", err)
	}

	now := s.clock()
	entry := core.Entry{
		ID:             s.newID(),
		AccountID:      accountID,
		DescriptionEnc: enc,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	entry.Assign(in)

	res, err := s.commit(ctx, accountID, log.OpCreate, func(_ context.Context, acct core.Account) (Mutation, error) {
		e := entry
		e.BalanceAfter = acct.CurrentBalance.Add(e.Signed())
		return Mutation{
			Op:    OpInsert,
			Entry: e,
			Balance: BalanceUpdate{
				CurrentBalance: e.BalanceAfter,
				InitialBalance: acct.InitialBalance,
			},
		}, nil
	})
	if err != nil {
		return core.Entry{}, err
	}

	created := res.Mutation.Entry
	s.structured.LogCommitted(ctx, log.OpCreate, accountID, created.ID, res.Delta().Cents, res.After.CurrentBalance.Cents)
	s.publish(ctx, events.NewLedgerEvent(events.EntryCreated, accountID, created.ID, res.Delta(), res.After.CurrentBalance, res.After.Version))
	return created, nil
}

func (s *Service) GetEntry(ctx context.Context, accountID, entryID string) (core.Entry, error) {
	if err := requireAccount(accountID); err != nil {
		return core.Entry{}, err
	}
	e, err := s.store.GetEntry(ctx, accountID, entryID)
	if err != nil {
		return core.Entry{}, err
	}
	s.reveal(ctx, &e)
	return e, nil
}

// UpdateEntry replaces the editable fields of an entry. The balance moves
// by the difference between the new and old signed amounts; only the
// edited entry's BalanceAfter is restamped.
func (s *Service) UpdateEntry(ctx context.Context, accountID, entryID string, in core.EntryInput) (core.Entry, error) {
	if err := requireAccount(accountID); err != nil {
		return core.Entry{}, err
	}
	if !s.allow(accountID, log.OpUpdate) {
		return core.Entry{}, core.ErrRateLimited
	}
	in = in.Normalized()
	if err := in.Validate(); err != nil {
		return core.Entry{}, err
	}
	enc, err := s.seal(in.Description)
	if err != nil {
		return core.Entry{}, fmt.Errorf("seal description: %w", err)
	}

	res, err := s.commit(ctx, accountID, log.OpUpdate, func(ctx context.Context, acct core.Account) (Mutation, error) {
		old, err := s.store.GetEntry(ctx, accountID, entryID)
		if err != nil {
			return Mutation{}, err
		}
		e := old
		e.Assign(in)
		e.DescriptionEnc = enc
		e.UpdatedAt = s.clock()
		e.BalanceAfter = acct.CurrentBalance.Sub(old.Signed()).Add(e.Signed())
		return Mutation{
			Op:    OpReplace,
			Entry: e,
			Balance: BalanceUpdate{
				CurrentBalance: e.BalanceAfter,
				InitialBalance: acct.InitialBalance,
			},
		}, nil
	})
	if err != nil {
		return core.Entry{}, err
	}

	updated := res.Mutation.Entry
	s.structured.LogCommitted(ctx, log.OpUpdate, accountID, updated.ID, res.Delta().Cents, res.After.CurrentBalance.Cents)
	s.publish(ctx, events.NewLedgerEvent(events.EntryUpdated, accountID, updated.ID, res.Delta(), res.After.CurrentBalance, res.After.Version))
	return updated, nil
}

// DeleteEntry removes an entry, reverses its effect, and returns the new
// balance.
func (s *Service) DeleteEntry(ctx context.Context, accountID, entryID string) (core.Money, error) {
	if err := requireAccount(accountID); err != nil {
		return core.Money{}, err
	}
	if !s.allow(accountID, log.OpDelete) {
		return core.Money{}, core.ErrRateLimited
	}

	res, err := s.commit(ctx, accountID, log.OpDelete, func(ctx context.Context, acct core.Account) (Mutation, error) {
		old, err := s.store.GetEntry(ctx, accountID, entryID)
		if err != nil {
			return Mutation{}, err
		}
		return Mutation{
			Op:    OpDelete,
			Entry: old,
			Balance: BalanceUpdate{
				CurrentBalance: acct.CurrentBalance.Sub(old.Signed()),
				InitialBalance: acct.InitialBalance,
			},
		}, nil
	})
	if err != nil {
		return core.Money{}, err
	}

	s.structured.LogCommitted(ctx, log.OpDelete, accountID, entryID, res.Delta().Cents, res.After.CurrentBalance.Cents)
	s.publish(ctx, events.NewLedgerEvent(events.EntryDeleted, accountID, entryID, res.Delta(), res.After.CurrentBalance, res.After.Version))
	return res.After.CurrentBalance, nil
}

// ListEntries returns one page of the account's entries.
func (s *Service) ListEntries(ctx context.Context, accountID string, q core.ListQuery) (core.Page, error) {
	if err := requireAccount(accountID); err != nil {
		return core.Page{}, err
	}
	if q.Kind != "" && !q.Kind.Valid() {
		return core.Page{}, &core.ValidationError{Fields: []core.FieldError{{Field: "type", Message: core.ErrInvalidKind.Error()}}}
	}
	q = q.Normalize()
	page, err := s.store.ListEntries(ctx, accountID, q)
	if err != nil {
		return core.Page{}, fmt.Errorf("list entries: %w", err)
	}
	for i := range page.Items {
		s.reveal(ctx, &page.Items[i])
	}
	return page, nil
}
