package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"saldo/internal/core"
	"saldo/internal/log"
)

// planFunc turns the freshly read account into the mutation to apply.
// It may return core.ErrVersionConflict to force a re-read.
type planFunc func(ctx context.Context, acct core.Account) (Mutation, error)

type committed struct {
	Before   core.Account
	After    core.Account
	Mutation Mutation
}

// Delta is the change applied to the current balance.
func (c committed) Delta() core.Money {
	return c.After.CurrentBalance.Sub(c.Before.CurrentBalance)
}

// commit is the only place that writes balances. It holds the per-account
// lock for the whole read-plan-apply cycle and repeats the cycle when the
// store reports that another writer moved the version in between.
func (s *Service) commit(ctx context.Context, accountID, op string, plan planFunc) (committed, error) {
	mu := s.accountLock(accountID)
	mu.Lock()
	defer mu.Unlock()

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			if err := s.backoff(ctx, attempt); err != nil {
				return committed{}, err
			}
		}

		acct, err := s.store.GetAccount(ctx, accountID)
		if err != nil {
			return committed{}, fmt.Errorf("load account: %w", err)
		}
		m, err := plan(ctx, acct)
		if errors.Is(err, core.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return committed{}, err
		}
		if m.Op == OpNone {
			return committed{Before: acct, After: acct, Mutation: m}, nil
		}
		if err := checkRange(op, m.Balance); err != nil {
			return committed{}, err
		}

		m.Balance.AccountID = accountID
		m.Balance.ExpectedVersion = acct.Version
		m.Balance.UpdatedAt = s.clock()

		after, err := s.apply(ctx, acct, m, op)
		if errors.Is(err, core.ErrVersionConflict) {
			s.logger.DebugContext(ctx, "Version conflict, retrying commit",
				log.FieldAccountID, accountID, log.FieldOperation, op, log.FieldAttempt, attempt+1)
			continue
		}
		if err != nil {
			return committed{}, err
		}
		return committed{Before: acct, After: after, Mutation: m}, nil
	}

	s.logger.WarnContext(ctx, "Commit gave up after repeated version conflicts",
		log.FieldAccountID, accountID, log.FieldOperation, op, log.FieldAttempt, s.maxRetries+1,
		log.FieldErrorType, log.ErrorTypeConflict)
	return committed{}, fmt.Errorf("%s after %d attempts: %w", op, s.maxRetries+1, core.ErrConflict)
}

// checkRange rejects a mutation that would carry a balance past
// core.MaxBalance. Inputs are bounded, so the plan arithmetic itself
// cannot overflow.
func checkRange(op string, b BalanceUpdate) error {
	field := "amount"
	if op == log.OpSeed {
		field = "initialBalance"
	}
	if b.CurrentBalance.InRange() && b.InitialBalance.InRange() {
		return nil
	}
	v := &core.ValidationError{}
	v.Add(field, "would move the balance past "+core.MaxBalance.String())
	return v
}

func (s *Service) apply(ctx context.Context, before core.Account, m Mutation, op string) (core.Account, error) {
	if s.tx != nil {
		return s.tx.Apply(ctx, m)
	}
	return s.applySplit(ctx, before, m, op)
}

// applySplit swaps the balance first, so a version conflict leaves nothing
// behind, then writes the entry. A failed entry write is undone by
// reversing the balance change; if that fails too the account is left
// inconsistent and a PartialWriteError is returned.
func (s *Service) applySplit(ctx context.Context, before core.Account, m Mutation, op string) (core.Account, error) {
	after, err := s.store.CompareAndSwapBalance(ctx, m.Balance)
	if err != nil {
		return core.Account{}, err
	}

	writeErr := ctx.Err()
	if writeErr == nil {
		writeErr = s.writeEntry(ctx, m)
	}
	if writeErr == nil {
		return after, nil
	}

	delta := m.Balance.CurrentBalance.Sub(before.CurrentBalance)
	initialDelta := m.Balance.InitialBalance.Sub(before.InitialBalance)
	if cerr := s.compensate(ctx, m.Balance.AccountID, delta, initialDelta); cerr != nil {
		pw := &core.PartialWriteError{
			AccountID: m.Balance.AccountID,
			EntryID:   m.Entry.ID,
			Op:        op,
			Cause:     errors.Join(writeErr, cerr),
		}
		s.structured.LogPartialWrite(ctx, op, pw.AccountID, pw.EntryID, pw.Cause)
		s.requestReconcile(ctx, pw.AccountID, "partial_write")
		return core.Account{}, pw
	}
	return core.Account{}, fmt.Errorf("%s entry: %w", op, writeErr)
}

func (s *Service) writeEntry(ctx context.Context, m Mutation) error {
	switch m.Op {
	case OpInsert:
		return s.store.InsertEntry(ctx, m.Entry)
	case OpReplace:
		return s.store.ReplaceEntry(ctx, m.Entry)
	case OpDelete:
		return s.store.DeleteEntry(ctx, m.Entry.AccountID, m.Entry.ID)
	}
	return nil
}

// compensate subtracts a previously applied balance change. It runs on a
// detached context so a cancelled request still gets rolled back.
func (s *Service) compensate(ctx context.Context, accountID string, delta, initialDelta core.Money) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensateTimeout)
	defer cancel()

	var err error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			if berr := s.backoff(ctx, attempt); berr != nil {
				return errors.Join(err, berr)
			}
		}
		var acct core.Account
		acct, err = s.store.GetAccount(ctx, accountID)
		if err != nil {
			continue
		}
		_, err = s.store.CompareAndSwapBalance(ctx, BalanceUpdate{
			AccountID:       accountID,
			ExpectedVersion: acct.Version,
			CurrentBalance:  acct.CurrentBalance.Sub(delta),
			InitialBalance:  acct.InitialBalance.Sub(initialDelta),
			UpdatedAt:       s.clock(),
		})
		if err == nil {
			s.logger.WarnContext(ctx, "Rolled back balance after failed entry write",
				log.FieldAccountID, accountID, log.FieldDeltaCents, delta.Cents)
			return nil
		}
	}
	return fmt.Errorf("compensate balance: %w", err)
}

// backoff sleeps a jittered, linearly growing interval.
func (s *Service) backoff(ctx context.Context, attempt int) error {
	base := s.retryBackoff * time.Duration(attempt)
	wait := base/2 + time.Duration(rand.Int64N(int64(base)+1))
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
