package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/subcommands"

	"saldo/internal/crypto"
	"saldo/internal/storage/sqlstore"
)

type migrateCmd struct {
	env *Env
}

func (*migrateCmd) Name() string     { return "migrate" }
func (*migrateCmd) Synopsis() string { return "apply pending database migrations" }
func (*migrateCmd) Usage() string {
	return `saldoctl migrate

  Brings the schema of the configured sqlite or postgres database up to
  date. The server also migrates on startup; this is for deploy pipelines.
`
}

func (*migrateCmd) SetFlags(*flag.FlagSet) {}

func (c *migrateCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := c.env.Config()
	if err != nil {
		return c.env.fail(err)
	}

	var (
		dialect sqlstore.Dialect
		dsn     string
	)
	switch cfg.DataBackend {
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(cfg.SQLiteDBPath), 0o755); err != nil {
			return c.env.fail(fmt.Errorf("create db directory: %w", err))
		}
		dialect, dsn = sqlstore.SQLite, sqlstore.SQLiteDSN(cfg.SQLiteDBPath)
	case "postgres":
		dialect, dsn = sqlstore.Postgres, cfg.PostgresDSN
	default:
		return c.env.fail(fmt.Errorf("backend %q has no schema to migrate", cfg.DataBackend))
	}

	version, err := sqlstore.RunMigrations(dialect, dsn)
	if err != nil {
		return c.env.fail(err)
	}
	fmt.Fprintf(c.env.Stdout, "%s schema at version %d\n", dialect, version)
	return subcommands.ExitSuccess
}

type genKeyCmd struct {
	env *Env
}

func (*genKeyCmd) Name() string     { return "genkey" }
func (*genKeyCmd) Synopsis() string { return "print a new DATA_ENCRYPTION_KEY" }
func (*genKeyCmd) Usage() string {
	return `saldoctl genkey

  Prints a random base64 encoded 256-bit key for sealing descriptions.
`
}

func (*genKeyCmd) SetFlags(*flag.FlagSet) {}

func (c *genKeyCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	key, err := crypto.GenerateKey()
	if err != nil {
		return c.env.fail(err)
	}
	fmt.Fprintln(c.env.Stdout, key)
	return subcommands.ExitSuccess
}
