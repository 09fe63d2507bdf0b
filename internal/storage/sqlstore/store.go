// Package sqlstore persists the ledger in SQLite or PostgreSQL through
// database/sql. Amounts are integer cents and times are unix nanoseconds.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"saldo/internal/core"
	"saldo/internal/ledger"
	"saldo/internal/log"
)

type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

func (d Dialect) driverName() string {
	return string(d)
}

var ErrDuplicateEntry = errors.New("entry already exists")

type Store struct {
	db      *sql.DB
	dialect Dialect
	logger  *log.Logger
}

var _ ledger.TxStore = (*Store)(nil)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteDSN adds the connection pragmas the store relies on.
func SQLiteDSN(path string) string {
	return path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
}

// OpenSQLite opens (creating if needed) the database file at path and
// migrates it.
func OpenSQLite(ctx context.Context, path string, logger *log.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	dsn := SQLiteDSN(path)
	db, err := sql.Open(SQLite.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite serialises writers; one connection keeps transactions from
	// failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	return open(ctx, db, SQLite, dsn, logger)
}

func OpenPostgres(ctx context.Context, dsn string, logger *log.Logger) (*Store, error) {
	db, err := sql.Open(Postgres.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return open(ctx, db, Postgres, dsn, logger)
}

func open(ctx context.Context, db *sql.DB, dialect Dialect, dsn string, logger *log.Logger) (*Store, error) {
	logger = logger.WithComponent(log.ComponentStorage)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	version, err := RunMigrations(dialect, dsn)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	s := &Store{db: db, dialect: dialect, logger: logger}
	n, err := s.backfillDescriptionLC(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}
	if n > 0 {
		logger.Info("Backfilled search text", "entries", n)
	}
	logger.Info("Database ready", "dialect", string(dialect), "schema_version", version)
	return s, nil
}

// backfillDescriptionLC fills the search column of rows written before it
// existed. SQL LOWER only folds ASCII, so the folding happens here.
func (s *Store) backfillDescriptionLC(ctx context.Context) (int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT account_id, id, description FROM entries WHERE description_lc = '' AND description <> ''`)
	if err != nil {
		return 0, fmt.Errorf("find unindexed entries: %w", err)
	}
	type pending struct{ accountID, id, lc string }
	var todo []pending
	for rows.Next() {
		var p pending
		var desc string
		if err := rows.Scan(&p.accountID, &p.id, &desc); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan unindexed entry: %w", err)
		}
		p.lc = strings.ToLower(desc)
		todo = append(todo, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("find unindexed entries: %w", err)
	}
	if len(todo) == 0 {
		return 0, nil
	}

	err = s.withTx(ctx, nil, func(tx *sql.Tx) error {
		for _, p := range todo {
			if _, err := tx.ExecContext(ctx, s.rebind(`UPDATE entries SET description_lc = ? WHERE account_id = ? AND id = ?`),
				p.lc, p.accountID, p.id); err != nil {
				return fmt.Errorf("backfill entry %s: %w", p.id, err)
			}
		}
		return nil
	})
	return len(todo), err
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) readTxOptions() *sql.TxOptions {
	if s.dialect == Postgres {
		return &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	}
	return nil
}

func (s *Store) withTx(ctx context.Context, opts *sql.TxOptions, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// zeroNanos stores the zero time. It lies in 1677, before any date an
// entry may carry, so the unix epoch keeps its own value.
const zeroNanos = math.MinInt64

func nanos(t time.Time) int64 {
	if t.IsZero() {
		return zeroNanos
	}
	return t.UnixNano()
}

// rangeNanos clamps a query bound to the span entry dates may take, so
// far-off bounds match the same rows without overflowing UnixNano.
func rangeNanos(t time.Time) int64 {
	switch {
	case t.Before(core.MinEntryDate):
		return core.MinEntryDate.UnixNano()
	case t.After(core.MaxEntryDate):
		return core.MaxEntryDate.UnixNano()
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == zeroNanos {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

const accountColumns = `id, email, initial_balance_cents, current_balance_cents, version,
	currency, theme, notifications, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (core.Account, error) {
	var a core.Account
	var initial, current, created, updated int64
	err := row.Scan(&a.ID, &a.Email, &initial, &current, &a.Version,
		&a.Preferences.Currency, &a.Preferences.Theme, &a.Preferences.Notifications,
		&created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, core.ErrNotFound
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("scan account: %w", err)
	}
	a.InitialBalance = core.Cents(initial)
	a.CurrentBalance = core.Cents(current)
	a.CreatedAt = fromNanos(created)
	a.UpdatedAt = fromNanos(updated)
	return a, nil
}

func (s *Store) CreateAccount(ctx context.Context, a core.Account) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`),
		a.ID, a.Email, a.InitialBalance.Cents, a.CurrentBalance.Cents, a.Version,
		a.Preferences.Currency, a.Preferences.Theme, a.Preferences.Notifications,
		nanos(a.CreatedAt), nanos(a.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.ErrAccountExists
	}
	return nil
}

func (s *Store) getAccount(ctx context.Context, q querier, accountID string) (core.Account, error) {
	return scanAccount(q.QueryRowContext(ctx, s.rebind(`SELECT `+accountColumns+` FROM accounts WHERE id = ?`), accountID))
}

func (s *Store) GetAccount(ctx context.Context, accountID string) (core.Account, error) {
	return s.getAccount(ctx, s.db, accountID)
}

func (s *Store) ListAccountIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan account id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) UpdatePreferences(ctx context.Context, accountID string, prefs core.Preferences) (core.Account, error) {
	var acct core.Account
	err := s.withTx(ctx, nil, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.rebind(`UPDATE accounts SET currency = ?, theme = ?, notifications = ? WHERE id = ?`),
			prefs.Currency, prefs.Theme, prefs.Notifications, accountID)
		if err != nil {
			return fmt.Errorf("update preferences: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return core.ErrNotFound
		}
		acct, err = s.getAccount(ctx, tx, accountID)
		return err
	})
	return acct, err
}

const entryColumns = `account_id, id, kind, amount_cents, description, description_enc,
	category, payment_method, date, balance_after_cents, location, notes, created_at, updated_at`

func scanEntry(row interface{ Scan(...any) error }) (core.Entry, error) {
	var e core.Entry
	var kind, method string
	var amount, balance, date, created, updated int64
	err := row.Scan(&e.AccountID, &e.ID, &kind, &amount, &e.Description, &e.DescriptionEnc,
		&e.Category, &method, &date, &balance, &e.Metadata.Location, &e.Metadata.Notes,
		&created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Entry{}, core.ErrNotFound
	}
	if err != nil {
		return core.Entry{}, fmt.Errorf("scan entry: %w", err)
	}
	e.Kind = core.Kind(kind)
	e.PaymentMethod = core.PaymentMethod(method)
	e.Amount = core.Cents(amount)
	e.BalanceAfter = core.Cents(balance)
	e.Date = fromNanos(date)
	e.CreatedAt = fromNanos(created)
	e.UpdatedAt = fromNanos(updated)
	return e, nil
}

func (s *Store) GetEntry(ctx context.Context, accountID, entryID string) (core.Entry, error) {
	return scanEntry(s.db.QueryRowContext(ctx,
		s.rebind(`SELECT `+entryColumns+` FROM entries WHERE account_id = ? AND id = ?`), accountID, entryID))
}

var sortColumns = map[core.SortField]string{
	core.SortDate:      "date",
	core.SortAmount:    "amount_cents",
	core.SortCreatedAt: "created_at",
	core.SortCategory:  "category",
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// filter renders the WHERE clause of q for accountID.
func filter(accountID string, q core.ListQuery) (string, []any) {
	where := []string{"account_id = ?"}
	args := []any{accountID}
	if q.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(q.Kind))
	}
	if q.Category != "" {
		where = append(where, "category = ?")
		args = append(args, q.Category)
	}
	if q.Text != "" {
		where = append(where, `description_lc LIKE ? ESCAPE '\'`)
		args = append(args, "%"+likeEscaper.Replace(strings.ToLower(q.Text))+"%")
	}
	if !q.From.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, rangeNanos(q.From))
	}
	if !q.To.IsZero() {
		where = append(where, "date < ?")
		args = append(args, rangeNanos(q.To))
	}
	return strings.Join(where, " AND "), args
}

func orderBy(sort core.Sort) string {
	col, ok := sortColumns[sort.Field]
	if !ok {
		col = sortColumns[core.SortDate]
	}
	dir := "ASC"
	if sort.Desc {
		dir = "DESC"
	}
	return col + " " + dir + ", id " + dir
}

func (s *Store) ListEntries(ctx context.Context, accountID string, q core.ListQuery) (core.Page, error) {
	q = q.Normalize()
	where, args := filter(accountID, q)

	var page core.Page
	err := s.withTx(ctx, s.readTxOptions(), func(tx *sql.Tx) error {
		var total int
		if err := tx.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM entries WHERE `+where), args...).Scan(&total); err != nil {
			return fmt.Errorf("count entries: %w", err)
		}

		query := `SELECT ` + entryColumns + ` FROM entries WHERE ` + where +
			` ORDER BY ` + orderBy(q.Sort) + ` LIMIT ? OFFSET ?`
		items, err := s.queryEntries(ctx, tx, query, append(args, q.PageSize, q.Offset())...)
		if err != nil {
			return err
		}
		page = core.NewPage(items, total, q)
		return nil
	})
	return page, err
}

func (s *Store) queryEntries(ctx context.Context, q querier, query string, args ...any) ([]core.Entry, error) {
	rows, err := q.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	entries := make([]core.Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// Snapshot reads the account and its entries in one transaction, entries
// ordered by date, oldest first.
func (s *Store) Snapshot(ctx context.Context, accountID string) (core.Snapshot, error) {
	var snap core.Snapshot
	err := s.withTx(ctx, s.readTxOptions(), func(tx *sql.Tx) error {
		acct, err := s.getAccount(ctx, tx, accountID)
		if err != nil {
			return err
		}
		entries, err := s.queryEntries(ctx, tx,
			`SELECT `+entryColumns+` FROM entries WHERE account_id = ? ORDER BY date ASC, id ASC`, accountID)
		if err != nil {
			return err
		}
		snap = core.Snapshot{Account: acct, Entries: entries}
		return nil
	})
	return snap, err
}

func (s *Store) writeEntry(ctx context.Context, q querier, op ledger.Op, e core.Entry) error {
	var (
		res sql.Result
		err error
	)
	switch op {
	case ledger.OpInsert:
		var exists int
		err = q.QueryRowContext(ctx, s.rebind(`SELECT 1 FROM accounts WHERE id = ?`), e.AccountID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return core.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("check account: %w", err)
		}
		res, err = q.ExecContext(ctx, s.rebind(`INSERT INTO entries (`+entryColumns+`, description_lc)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT (account_id, id) DO NOTHING`),
			e.AccountID, e.ID, string(e.Kind), e.Amount.Cents, e.Description, e.DescriptionEnc,
			e.Category, string(e.PaymentMethod), nanos(e.Date), e.BalanceAfter.Cents,
			e.Metadata.Location, e.Metadata.Notes, nanos(e.CreatedAt), nanos(e.UpdatedAt),
			strings.ToLower(e.Description))
		if err != nil {
			return fmt.Errorf("insert entry: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrDuplicateEntry
		}
		return nil
	case ledger.OpReplace:
		res, err = q.ExecContext(ctx, s.rebind(`UPDATE entries SET kind = ?, amount_cents = ?, description = ?,
			description_lc = ?, description_enc = ?, category = ?, payment_method = ?, date = ?,
			balance_after_cents = ?, location = ?, notes = ?, created_at = ?, updated_at = ?
			WHERE account_id = ? AND id = ?`),
			string(e.Kind), e.Amount.Cents, e.Description, strings.ToLower(e.Description),
			e.DescriptionEnc, e.Category, string(e.PaymentMethod), nanos(e.Date), e.BalanceAfter.Cents,
			e.Metadata.Location, e.Metadata.Notes, nanos(e.CreatedAt), nanos(e.UpdatedAt),
			e.AccountID, e.ID)
		if err != nil {
			return fmt.Errorf("replace entry: %w", err)
		}
	case ledger.OpDelete:
		res, err = q.ExecContext(ctx, s.rebind(`DELETE FROM entries WHERE account_id = ? AND id = ?`), e.AccountID, e.ID)
		if err != nil {
			return fmt.Errorf("delete entry: %w", err)
		}
	default:
		return nil
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Store) InsertEntry(ctx context.Context, e core.Entry) error {
	return s.withTx(ctx, nil, func(tx *sql.Tx) error {
		return s.writeEntry(ctx, tx, ledger.OpInsert, e)
	})
}

func (s *Store) ReplaceEntry(ctx context.Context, e core.Entry) error {
	return s.writeEntry(ctx, s.db, ledger.OpReplace, e)
}

func (s *Store) DeleteEntry(ctx context.Context, accountID, entryID string) error {
	return s.writeEntry(ctx, s.db, ledger.OpDelete, core.Entry{AccountID: accountID, ID: entryID})
}

// swap performs the versioned balance update inside tx.
func (s *Store) swap(ctx context.Context, tx *sql.Tx, u ledger.BalanceUpdate) (core.Account, error) {
	var updatedAt sql.NullInt64
	if !u.UpdatedAt.IsZero() {
		updatedAt = sql.NullInt64{Int64: u.UpdatedAt.UnixNano(), Valid: true}
	}
	res, err := tx.ExecContext(ctx, s.rebind(`UPDATE accounts
		SET current_balance_cents = ?, initial_balance_cents = ?, version = version + 1,
			updated_at = COALESCE(?, updated_at)
		WHERE id = ? AND version = ?`),
		u.CurrentBalance.Cents, u.InitialBalance.Cents, updatedAt, u.AccountID, u.ExpectedVersion)
	if err != nil {
		return core.Account{}, fmt.Errorf("swap balance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.getAccount(ctx, tx, u.AccountID); err != nil {
			return core.Account{}, err
		}
		return core.Account{}, core.ErrVersionConflict
	}
	return s.getAccount(ctx, tx, u.AccountID)
}

func (s *Store) CompareAndSwapBalance(ctx context.Context, u ledger.BalanceUpdate) (core.Account, error) {
	var acct core.Account
	err := s.withTx(ctx, nil, func(tx *sql.Tx) error {
		var err error
		acct, err = s.swap(ctx, tx, u)
		return err
	})
	return acct, err
}

// Apply writes the entry and swaps the balance in a single transaction.
func (s *Store) Apply(ctx context.Context, m ledger.Mutation) (core.Account, error) {
	if m.Op == ledger.OpNone {
		return s.GetAccount(ctx, m.Balance.AccountID)
	}
	if m.Op != ledger.OpBalance && m.Entry.AccountID != m.Balance.AccountID {
		return core.Account{}, fmt.Errorf("entry account %q does not match %q", m.Entry.AccountID, m.Balance.AccountID)
	}

	var acct core.Account
	err := s.withTx(ctx, nil, func(tx *sql.Tx) error {
		var err error
		if acct, err = s.swap(ctx, tx, m.Balance); err != nil {
			return err
		}
		return s.writeEntry(ctx, tx, m.Op, m.Entry)
	})
	if err != nil {
		return core.Account{}, err
	}
	s.logger.DebugContext(ctx, "Mutation applied",
		log.FieldAccountID, acct.ID,
		log.FieldEntryID, m.Entry.ID,
		log.FieldOperation, m.Op.String(),
		log.FieldVersion, acct.Version)
	return acct, nil
}
