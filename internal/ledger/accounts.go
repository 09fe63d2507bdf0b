package ledger

import (
	"context"
	"errors"
	"fmt"

	"saldo/internal/core"
	"saldo/internal/events"
	"saldo/internal/log"
)

type BalanceView struct {
	Balance        core.Money `json:"balance"`
	InitialBalance core.Money `json:"initialBalance"`
	Currency       string     `json:"currency"`
}

// EnsureAccount returns the account, creating it with default preferences
// on first use. Concurrent first calls converge on the same account.
func (s *Service) EnsureAccount(ctx context.Context, accountID, email string) (core.Account, error) {
	if err := requireAccount(accountID); err != nil {
		return core.Account{}, err
	}
	acct, err := s.store.GetAccount(ctx, accountID)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return core.Account{}, fmt.Errorf("load account: %w", err)
	}

	now := s.clock()
	acct = core.Account{
		ID:          accountID,
		Email:       email,
		Version:     1,
		Preferences: core.DefaultPreferences(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = s.store.CreateAccount(ctx, acct)
	if errors.Is(err, core.ErrAccountExists) {
		return s.store.GetAccount(ctx, accountID)
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("create account: %w", err)
	}
	s.logger.InfoContext(ctx, "Account created", log.FieldAccountID, accountID)
	return acct, nil
}

func (s *Service) CurrentBalance(ctx context.Context, accountID string) (BalanceView, error) {
	if err := requireAccount(accountID); err != nil {
		return BalanceView{}, err
	}
	acct, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return BalanceView{}, err
	}
	return BalanceView{
		Balance:        acct.CurrentBalance,
		InitialBalance: acct.InitialBalance,
		Currency:       acct.Preferences.Currency,
	}, nil
}

// SetInitialBalance seeds the opening balance once. Existing entries keep
// their effect: the current balance moves by the difference between the
// new and the previous initial balance.
func (s *Service) SetInitialBalance(ctx context.Context, accountID string, amount core.Money) (core.Account, error) {
	if err := requireAccount(accountID); err != nil {
		return core.Account{}, err
	}
	if amount.IsNegative() {
		return core.Account{}, &core.ValidationError{Fields: []core.FieldError{{Field: "initialBalance", Message: "must be zero or greater"}}}
	}
	if !amount.InRange() {
		return core.Account{}, &core.ValidationError{Fields: []core.FieldError{{Field: "initialBalance", Message: "must be at most " + core.MaxBalance.String()}}}
	}
	if !s.allow(accountID, log.OpSeed) {
		return core.Account{}, core.ErrRateLimited
	}

	res, err := s.commit(ctx, accountID, log.OpSeed, func(_ context.Context, acct core.Account) (Mutation, error) {
		if acct.InitialBalance.Cents > 0 {
			return Mutation{}, core.ErrInitialBalanceSet
		}
		if amount == acct.InitialBalance {
			return Mutation{Op: OpNone}, nil
		}
		return Mutation{
			Op: OpBalance,
			Balance: BalanceUpdate{
				CurrentBalance: acct.CurrentBalance.Add(amount).Sub(acct.InitialBalance),
				InitialBalance: amount,
			},
		}, nil
	})
	if err != nil {
		return core.Account{}, err
	}
	if res.Mutation.Op != OpNone {
		s.structured.LogCommitted(ctx, log.OpSeed, accountID, "", res.Delta().Cents, res.After.CurrentBalance.Cents)
		s.publish(ctx, events.NewLedgerEvent(events.BalanceSeeded, accountID, "", res.Delta(), res.After.CurrentBalance, res.After.Version))
	}
	return res.After, nil
}

func (s *Service) Profile(ctx context.Context, accountID string) (core.Account, error) {
	if err := requireAccount(accountID); err != nil {
		return core.Account{}, err
	}
	return s.store.GetAccount(ctx, accountID)
}

func (s *Service) UpdatePreferences(ctx context.Context, accountID string, prefs core.Preferences) (core.Account, error) {
	if err := requireAccount(accountID); err != nil {
		return core.Account{}, err
	}
	if err := prefs.Validate(); err != nil {
		return core.Account{}, err
	}
	acct, err := s.store.UpdatePreferences(ctx, accountID, prefs)
	if err != nil {
		return core.Account{}, fmt.Errorf("update preferences: %w", err)
	}
	return acct, nil
}

// AccountIDs lists every account, for sweeps.
func (s *Service) AccountIDs(ctx context.Context) ([]string, error) {
	ids, err := s.store.ListAccountIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return ids, nil
}
