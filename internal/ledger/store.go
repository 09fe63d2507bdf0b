package ledger

import (
	"context"
	"time"

	"saldo/internal/core"
)

// Store is the persistence contract of the ledger. Reads of another
// account's entries must fail with core.ErrNotFound.
type Store interface {
	// CreateAccount fails with core.ErrAccountExists on a duplicate id.
	CreateAccount(ctx context.Context, acct core.Account) error
	GetAccount(ctx context.Context, accountID string) (core.Account, error)
	ListAccountIDs(ctx context.Context) ([]string, error)
	UpdatePreferences(ctx context.Context, accountID string, prefs core.Preferences) (core.Account, error)

	GetEntry(ctx context.Context, accountID, entryID string) (core.Entry, error)
	ListEntries(ctx context.Context, accountID string, q core.ListQuery) (core.Page, error)
	// Snapshot returns the account and every entry as of a single point in time.
	Snapshot(ctx context.Context, accountID string) (core.Snapshot, error)

	InsertEntry(ctx context.Context, e core.Entry) error
	ReplaceEntry(ctx context.Context, e core.Entry) error
	DeleteEntry(ctx context.Context, accountID, entryID string) error

	// CompareAndSwapBalance writes the balances and bumps the version only
	// if the stored version still equals u.ExpectedVersion; otherwise it
	// returns core.ErrVersionConflict and writes nothing.
	CompareAndSwapBalance(ctx context.Context, u BalanceUpdate) (core.Account, error)
}

// TxStore can apply an entry write and its balance change atomically.
type TxStore interface {
	Store
	Apply(ctx context.Context, m Mutation) (core.Account, error)
}

type BalanceUpdate struct {
	AccountID       string
	ExpectedVersion int64
	CurrentBalance  core.Money
	InitialBalance  core.Money
	UpdatedAt       time.Time
}

type Op int

const (
	// OpNone leaves the store untouched.
	OpNone Op = iota
	// OpBalance only swaps the balances.
	OpBalance
	OpInsert
	OpReplace
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpBalance:
		return "balance"
	case OpInsert:
		return "insert"
	case OpReplace:
		return "replace"
	case OpDelete:
		return "delete"
	}
	return "none"
}

// Mutation is one planned change: an optional entry write plus the
// balance swap that must accompany it.
type Mutation struct {
	Op      Op
	Entry   core.Entry
	Balance BalanceUpdate
}
