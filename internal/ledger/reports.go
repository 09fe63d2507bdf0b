package ledger

import (
	"context"
	"fmt"

	"saldo/internal/analytics"
	"saldo/internal/core"
)

type SummaryView struct {
	analytics.SummaryReport
	Currency string `json:"currency"`
}

func (s *Service) snapshot(ctx context.Context, accountID string) (core.Snapshot, error) {
	if err := requireAccount(accountID); err != nil {
		return core.Snapshot{}, err
	}
	snap, err := s.store.Snapshot(ctx, accountID)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("snapshot: %w", err)
	}
	return snap, nil
}

// Snapshot exposes a consistent read for reporting tools.
func (s *Service) Snapshot(ctx context.Context, accountID string) (core.Snapshot, error) {
	return s.snapshot(ctx, accountID)
}

func (s *Service) BalanceSeries(ctx context.Context, accountID string, days int) ([]analytics.DayPoint, error) {
	snap, err := s.snapshot(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return analytics.DailyBalanceSeries(snap, days, s.clock())
}

func (s *Service) MonthlyTrend(ctx context.Context, accountID string, months int) ([]analytics.MonthPoint, error) {
	snap, err := s.snapshot(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return analytics.MonthlyIncomeExpense(snap, months, s.clock())
}

func (s *Service) CategoryBreakdown(ctx context.Context, accountID string, kind core.Kind) ([]analytics.CategoryShare, error) {
	snap, err := s.snapshot(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return analytics.CategoryBreakdown(snap, kind), nil
}

func (s *Service) Overview(ctx context.Context, accountID string) (analytics.OverviewReport, error) {
	snap, err := s.snapshot(ctx, accountID)
	if err != nil {
		return analytics.OverviewReport{}, err
	}
	return analytics.Overview(snap), nil
}

func (s *Service) Summary(ctx context.Context, accountID string, days int) (SummaryView, error) {
	snap, err := s.snapshot(ctx, accountID)
	if err != nil {
		return SummaryView{}, err
	}
	r, err := analytics.Summary(snap, days, s.clock())
	if err != nil {
		return SummaryView{}, err
	}
	return SummaryView{SummaryReport: r, Currency: snap.Account.Preferences.Currency}, nil
}
