package ledger

import (
	"context"
	"fmt"

	"saldo/internal/core"
	"saldo/internal/events"
	"saldo/internal/log"
)

// Verification compares the cached balance with a replay of the log.
type Verification struct {
	AccountID  string     `json:"accountId"`
	Cached     core.Money `json:"cached"`
	Replayed   core.Money `json:"replayed"`
	Drift      core.Money `json:"drift"`
	Entries    int        `json:"entries"`
	Version    int64      `json:"version"`
	Consistent bool       `json:"consistent"`
}

type ReconcileResult struct {
	Verification
	Repaired bool `json:"repaired"`
}

func verify(snap core.Snapshot) Verification {
	replayed := snap.Replay()
	cached := snap.Account.CurrentBalance
	return Verification{
		AccountID:  snap.Account.ID,
		Cached:     cached,
		Replayed:   replayed,
		Drift:      cached.Sub(replayed),
		Entries:    len(snap.Entries),
		Version:    snap.Account.Version,
		Consistent: cached == replayed,
	}
}

// VerifyBalance reports drift without writing anything.
func (s *Service) VerifyBalance(ctx context.Context, accountID string) (Verification, error) {
	snap, err := s.snapshot(ctx, accountID)
	if err != nil {
		return Verification{}, err
	}
	return verify(snap), nil
}

// Reconcile rewrites the cached balance from the entry log when the two
// disagree. Concurrent calls for one account share a single run, which is
// detached from any one caller's cancellation and bounded by
// reconcileTimeout.
func (s *Service) Reconcile(ctx context.Context, accountID string) (ReconcileResult, error) {
	if err := requireAccount(accountID); err != nil {
		return ReconcileResult{}, err
	}
	v, err, _ := s.reconciles.Do(accountID, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reconcileTimeout)
		defer cancel()
		return s.reconcile(ctx, accountID)
	})
	if err != nil {
		return ReconcileResult{}, err
	}
	return v.(ReconcileResult), nil
}

func (s *Service) reconcile(ctx context.Context, accountID string) (ReconcileResult, error) {
	var result ReconcileResult
	res, err := s.commit(ctx, accountID, log.OpReconcile, func(ctx context.Context, acct core.Account) (Mutation, error) {
		snap, err := s.store.Snapshot(ctx, accountID)
		if err != nil {
			return Mutation{}, fmt.Errorf("snapshot: %w", err)
		}
		if snap.Account.Version != acct.Version {
			return Mutation{}, core.ErrVersionConflict
		}
		result = ReconcileResult{Verification: verify(snap)}
		if result.Consistent {
			return Mutation{Op: OpNone}, nil
		}
		return Mutation{
			Op: OpBalance,
			Balance: BalanceUpdate{
				CurrentBalance: result.Replayed,
				InitialBalance: acct.InitialBalance,
			},
		}, nil
	})
	if err != nil {
		return ReconcileResult{}, err
	}
	if res.Mutation.Op == OpNone {
		return result, nil
	}

	result.Repaired = true
	result.Version = res.After.Version
	s.logger.WarnContext(ctx, "Balance drift repaired",
		log.FieldAccountID, accountID,
		log.FieldDriftCents, result.Drift.Cents,
		log.FieldBalanceCents, res.After.CurrentBalance.Cents)
	s.publish(ctx, events.NewLedgerEvent(events.BalanceReconciled, accountID, "", res.Delta(), res.After.CurrentBalance, res.After.Version))
	return result, nil
}
