// Package storetest holds behaviour checks every ledger store must pass.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"saldo/internal/core"
	"saldo/internal/ledger"
)

var base = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func account(id string) core.Account {
	return core.Account{
		ID:          id,
		Email:       id + "@example.com",
		Version:     1,
		Preferences: core.DefaultPreferences(),
		CreatedAt:   base,
		UpdatedAt:   base,
	}
}

func entry(accountID, id string, kind core.Kind, cents int64, cat, desc string, day int) core.Entry {
	return core.Entry{
		ID:            id,
		AccountID:     accountID,
		Kind:          kind,
		Amount:        core.Cents(cents),
		Description:   desc,
		Category:      cat,
		PaymentMethod: core.PaymentCash,
		Date:          base.AddDate(0, 0, day),
		Metadata:      core.Metadata{Notes: "n-" + id},
		CreatedAt:     base.Add(time.Duration(day) * time.Minute),
		UpdatedAt:     base,
	}
}

// Run exercises the ledger.TxStore contract against stores built by open.
func Run(t *testing.T, open func(t *testing.T) ledger.TxStore) {
	ctx := context.Background()

	t.Run("accounts", func(t *testing.T) {
		s := open(t)
		if err := s.CreateAccount(ctx, account("a")); err != nil {
			t.Fatalf("CreateAccount: %v", err)
		}
		if err := s.CreateAccount(ctx, account("a")); !errors.Is(err, core.ErrAccountExists) {
			t.Fatalf("duplicate CreateAccount = %v, want ErrAccountExists", err)
		}
		if _, err := s.GetAccount(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("GetAccount(missing) = %v", err)
		}
		got, err := s.GetAccount(ctx, "a")
		if err != nil || got.Email != "a@example.com" || got.Version != 1 || got.Preferences.Currency != "INR" {
			t.Fatalf("GetAccount = %+v, %v", got, err)
		}
		if !got.CreatedAt.Equal(base) {
			t.Fatalf("CreatedAt = %v", got.CreatedAt)
		}

		prefs := core.Preferences{Currency: "EUR", Theme: "light", Notifications: false}
		updated, err := s.UpdatePreferences(ctx, "a", prefs)
		if err != nil || updated.Preferences != prefs {
			t.Fatalf("UpdatePreferences = %+v, %v", updated, err)
		}
		if _, err := s.UpdatePreferences(ctx, "missing", prefs); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("UpdatePreferences(missing) = %v", err)
		}

		if err := s.CreateAccount(ctx, account("b")); err != nil {
			t.Fatal(err)
		}
		ids, err := s.ListAccountIDs(ctx)
		if err != nil || len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
			t.Fatalf("ListAccountIDs = %v, %v", ids, err)
		}
	})

	t.Run("compare and swap", func(t *testing.T) {
		s := open(t)
		mustCreate(t, s, "a")

		acct, err := s.CompareAndSwapBalance(ctx, ledger.BalanceUpdate{
			AccountID: "a", ExpectedVersion: 1,
			CurrentBalance: core.Cents(500), InitialBalance: core.Cents(500),
			UpdatedAt: base.Add(time.Hour),
		})
		if err != nil || acct.Version != 2 || acct.CurrentBalance.Cents != 500 || acct.InitialBalance.Cents != 500 {
			t.Fatalf("CAS = %+v, %v", acct, err)
		}
		_, err = s.CompareAndSwapBalance(ctx, ledger.BalanceUpdate{AccountID: "a", ExpectedVersion: 1, CurrentBalance: core.Cents(1)})
		if !errors.Is(err, core.ErrVersionConflict) {
			t.Fatalf("stale CAS = %v, want ErrVersionConflict", err)
		}
		got, _ := s.GetAccount(ctx, "a")
		if got.CurrentBalance.Cents != 500 || got.Version != 2 {
			t.Fatalf("stale CAS wrote: %+v", got)
		}
		if _, err := s.CompareAndSwapBalance(ctx, ledger.BalanceUpdate{AccountID: "zzz", ExpectedVersion: 1}); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("CAS(missing) = %v", err)
		}
	})

	t.Run("entry crud", func(t *testing.T) {
		s := open(t)
		mustCreate(t, s, "a")
		mustCreate(t, s, "b")

		e := entry("a", "e1", core.Debit, 1250, "Food", "Lunch", 0)
		e.DescriptionEnc = "cipher"
		e.BalanceAfter = core.Cents(-1250)
		e.Metadata.Location = "Pune"
		if err := s.InsertEntry(ctx, e); err != nil {
			t.Fatalf("InsertEntry: %v", err)
		}
		if err := s.InsertEntry(ctx, e); err == nil {
			t.Fatal("duplicate InsertEntry should fail")
		}

		got, err := s.GetEntry(ctx, "a", "e1")
		if err != nil {
			t.Fatalf("GetEntry: %v", err)
		}
		if got.Amount.Cents != 1250 || got.Kind != core.Debit || got.DescriptionEnc != "cipher" ||
			got.BalanceAfter.Cents != -1250 || got.Metadata.Location != "Pune" || !got.Date.Equal(e.Date) {
			t.Fatalf("GetEntry = %+v", got)
		}
		if _, err := s.GetEntry(ctx, "b", "e1"); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("cross-account GetEntry = %v, want ErrNotFound", err)
		}

		got.Amount = core.Cents(900)
		if err := s.ReplaceEntry(ctx, got); err != nil {
			t.Fatalf("ReplaceEntry: %v", err)
		}
		if again, _ := s.GetEntry(ctx, "a", "e1"); again.Amount.Cents != 900 {
			t.Fatalf("replace not visible: %+v", again)
		}
		if err := s.ReplaceEntry(ctx, entry("a", "nope", core.Debit, 1, "x", "x", 0)); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("ReplaceEntry(missing) = %v", err)
		}
		if err := s.DeleteEntry(ctx, "b", "e1"); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("cross-account DeleteEntry = %v", err)
		}
		if err := s.DeleteEntry(ctx, "a", "e1"); err != nil {
			t.Fatalf("DeleteEntry: %v", err)
		}
		if _, err := s.GetEntry(ctx, "a", "e1"); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("GetEntry after delete = %v", err)
		}
	})

	t.Run("apply is atomic", func(t *testing.T) {
		s := open(t)
		mustCreate(t, s, "a")

		e := entry("a", "e1", core.Credit, 1000, "Salary", "Pay", 0)
		e.BalanceAfter = core.Cents(1000)
		acct, err := s.Apply(ctx, ledger.Mutation{
			Op: ledger.OpInsert, Entry: e,
			Balance: ledger.BalanceUpdate{AccountID: "a", ExpectedVersion: 1, CurrentBalance: core.Cents(1000)},
		})
		if err != nil || acct.Version != 2 || acct.CurrentBalance.Cents != 1000 {
			t.Fatalf("Apply insert = %+v, %v", acct, err)
		}

		// stale version: neither the entry nor the balance may change
		stale := entry("a", "e2", core.Credit, 5, "x", "x", 1)
		_, err = s.Apply(ctx, ledger.Mutation{
			Op: ledger.OpInsert, Entry: stale,
			Balance: ledger.BalanceUpdate{AccountID: "a", ExpectedVersion: 1, CurrentBalance: core.Cents(1005)},
		})
		if !errors.Is(err, core.ErrVersionConflict) {
			t.Fatalf("stale Apply = %v", err)
		}
		if _, err := s.GetEntry(ctx, "a", "e2"); !errors.Is(err, core.ErrNotFound) {
			t.Fatal("stale Apply inserted the entry")
		}

		// failing entry write: the balance must not move
		_, err = s.Apply(ctx, ledger.Mutation{
			Op: ledger.OpDelete, Entry: core.Entry{AccountID: "a", ID: "ghost"},
			Balance: ledger.BalanceUpdate{AccountID: "a", ExpectedVersion: 2, CurrentBalance: core.Cents(0)},
		})
		if !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("Apply delete ghost = %v", err)
		}
		got, _ := s.GetAccount(ctx, "a")
		if got.Version != 2 || got.CurrentBalance.Cents != 1000 {
			t.Fatalf("failed Apply moved the balance: %+v", got)
		}

		acct, err = s.Apply(ctx, ledger.Mutation{
			Op: ledger.OpDelete, Entry: e,
			Balance: ledger.BalanceUpdate{AccountID: "a", ExpectedVersion: 2, CurrentBalance: core.Cents(0)},
		})
		if err != nil || acct.Version != 3 || acct.CurrentBalance.Cents != 0 {
			t.Fatalf("Apply delete = %+v, %v", acct, err)
		}

		acct, err = s.Apply(ctx, ledger.Mutation{
			Op:      ledger.OpBalance,
			Balance: ledger.BalanceUpdate{AccountID: "a", ExpectedVersion: 3, CurrentBalance: core.Cents(700), InitialBalance: core.Cents(700)},
		})
		if err != nil || acct.InitialBalance.Cents != 700 || acct.Version != 4 {
			t.Fatalf("Apply balance = %+v, %v", acct, err)
		}
	})

	t.Run("dates round trip", func(t *testing.T) {
		s := open(t)
		mustCreate(t, s, "a")
		dates := map[string]time.Time{
			"epoch":    time.Unix(0, 0).UTC(),
			"earliest": core.MinEntryDate,
			"latest":   core.MaxEntryDate.Add(-time.Nanosecond),
		}
		for id, d := range dates {
			e := entry("a", id, core.Debit, 100, "Misc", id, 0)
			e.Date = d
			e.UpdatedAt = time.Time{}
			if err := s.InsertEntry(ctx, e); err != nil {
				t.Fatalf("insert %s: %v", id, err)
			}
		}
		for id, d := range dates {
			got, err := s.GetEntry(ctx, "a", id)
			if err != nil {
				t.Fatalf("GetEntry %s: %v", id, err)
			}
			if !got.Date.Equal(d) || got.Date.IsZero() {
				t.Errorf("%s: date = %v, want %v", id, got.Date, d)
			}
			if !got.UpdatedAt.IsZero() {
				t.Errorf("%s: zero updatedAt read back as %v", id, got.UpdatedAt)
			}
		}

		p, err := s.ListEntries(ctx, "a", core.ListQuery{
			From: time.Date(1500, 1, 1, 0, 0, 0, 0, time.UTC),
			To:   time.Date(2500, 1, 1, 0, 0, 0, 0, time.UTC),
			Sort: core.Sort{Field: core.SortDate},
		})
		if err != nil {
			t.Fatalf("ListEntries far range: %v", err)
		}
		if got := joinIDs(p.Items); got != "earliest,epoch,latest" {
			t.Errorf("far range ids = %q", got)
		}
	})

	t.Run("text search folds non-ascii case", func(t *testing.T) {
		s := open(t)
		mustCreate(t, s, "a")
		if err := s.InsertEntry(ctx, entry("a", "e1", core.Debit, 900, "Food", "ÉPICERIE Größe", 0)); err != nil {
			t.Fatal(err)
		}
		if err := s.InsertEntry(ctx, entry("a", "e2", core.Debit, 500, "Food", "Bakery", 1)); err != nil {
			t.Fatal(err)
		}
		for _, text := range []string{"épicerie", "ÉPICERIE GRÖ", "größe"} {
			p, err := s.ListEntries(ctx, "a", core.ListQuery{Text: text})
			if err != nil {
				t.Fatalf("ListEntries(%q): %v", text, err)
			}
			if got := joinIDs(p.Items); got != "e1" {
				t.Errorf("search %q = %q, want e1", text, got)
			}
		}

		e, err := s.GetEntry(ctx, "a", "e2")
		if err != nil {
			t.Fatal(err)
		}
		e.Description = "ÜBER Bäckerei"
		if err := s.ReplaceEntry(ctx, e); err != nil {
			t.Fatal(err)
		}
		p, err := s.ListEntries(ctx, "a", core.ListQuery{Text: "über bäck"})
		if err != nil {
			t.Fatal(err)
		}
		if got := joinIDs(p.Items); got != "e2" {
			t.Errorf("search after replace = %q, want e2", got)
		}
	})

	t.Run("list and snapshot", func(t *testing.T) {
		s := open(t)
		mustCreate(t, s, "a")
		mustCreate(t, s, "b")
		seed := []core.Entry{
			entry("a", "e1", core.Credit, 50000, "Salary", "May salary", 0),
			entry("a", "e2", core.Debit, 1500, "Food", "Weekly GROCERIES", 1),
			entry("a", "e3", core.Debit, 700, "Food", "Coffee 100%_off", 2),
			entry("a", "e4", core.Debit, 20000, "Rent", "Flat rent", 3),
			entry("b", "x1", core.Debit, 1, "Food", "other account", 1),
		}
		for _, e := range seed {
			if err := s.InsertEntry(ctx, e); err != nil {
				t.Fatalf("insert %s: %v", e.ID, err)
			}
		}

		tests := []struct {
			name  string
			q     core.ListQuery
			ids   string
			total int
			more  bool
		}{
			{"default sort date desc", core.ListQuery{}, "e4,e3,e2,e1", 4, false},
			{"kind", core.ListQuery{Kind: core.Credit}, "e1", 1, false},
			{"category", core.ListQuery{Category: "Food"}, "e3,e2", 2, false},
			{"text case-insensitive", core.ListQuery{Text: "groceries"}, "e2", 1, false},
			{"text with like wildcards", core.ListQuery{Text: "100%_"}, "e3", 1, false},
			{"wildcard is literal", core.ListQuery{Text: "%"}, "e3", 1, false},
			{"date range", core.ListQuery{From: base.AddDate(0, 0, 1), To: base.AddDate(0, 0, 3)}, "e3,e2", 2, false},
			{"amount asc", core.ListQuery{Sort: core.Sort{Field: core.SortAmount}}, "e3,e2,e4,e1", 4, false},
			{"category asc", core.ListQuery{Sort: core.Sort{Field: core.SortCategory}}, "e2,e3,e4,e1", 4, false},
			{"page 1", core.ListQuery{PageSize: 3}, "e4,e3,e2", 4, true},
			{"page 2", core.ListQuery{Page: 2, PageSize: 3}, "e1", 4, false},
			{"past the end", core.ListQuery{Page: 5, PageSize: 3}, "", 4, false},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				p, err := s.ListEntries(ctx, "a", tt.q)
				if err != nil {
					t.Fatalf("ListEntries: %v", err)
				}
				if got := joinIDs(p.Items); got != tt.ids {
					t.Errorf("ids = %q, want %q", got, tt.ids)
				}
				if p.Total != tt.total || p.HasMore != tt.more {
					t.Errorf("total=%d hasMore=%v, want %d %v", p.Total, p.HasMore, tt.total, tt.more)
				}
			})
		}

		snap, err := s.Snapshot(ctx, "a")
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		if snap.Account.ID != "a" || joinIDs(snap.Entries) != "e1,e2,e3,e4" {
			t.Fatalf("Snapshot = %s", joinIDs(snap.Entries))
		}
		if _, err := s.Snapshot(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("Snapshot(missing) = %v", err)
		}
	})
}

func mustCreate(t *testing.T, s ledger.Store, id string) {
	t.Helper()
	if err := s.CreateAccount(context.Background(), account(id)); err != nil {
		t.Fatalf("create account %s: %v", id, err)
	}
}

func joinIDs(entries []core.Entry) string {
	out := ""
	for i, e := range entries {
		if i > 0 {
			out += ","
		}
		out += e.ID
	}
	return out
}

