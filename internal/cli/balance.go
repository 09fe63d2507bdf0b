package cli

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"saldo/internal/ledger"
	"saldo/internal/worker"
)

type verifyCmd struct {
	env     *Env
	account string
}

func (*verifyCmd) Name() string     { return "verify" }
func (*verifyCmd) Synopsis() string { return "compare cached balances with the entry log" }
func (*verifyCmd) Usage() string {
	return `saldoctl verify [-account <id>]

  Replays the entry log of one account, or of every account, and reports
  any drift from the cached balance. Nothing is written. Exits non-zero
  when an account has drifted.
`
}

func (c *verifyCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.account, "account", "", "Account to verify. Defaults to all accounts.")
}

func (c *verifyCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := c.env.open(ctx)
	if err != nil {
		return c.env.fail(err)
	}
	defer a.Close()

	ids := []string{c.account}
	if c.account == "" {
		if ids, err = a.Ledger.AccountIDs(ctx); err != nil {
			return c.env.fail(err)
		}
	}

	results := make([]ledger.Verification, 0, len(ids))
	for _, id := range ids {
		v, err := a.Ledger.VerifyBalance(ctx, id)
		if err != nil {
			return c.env.fail(fmt.Errorf("verify %s: %w", id, err))
		}
		results = append(results, v)
	}

	c.env.printMarkdown(VerificationMarkdown(results))
	for _, v := range results {
		if !v.Consistent {
			return subcommands.ExitFailure
		}
	}
	return subcommands.ExitSuccess
}

type reconcileCmd struct {
	env     *Env
	account string
	all     bool
}

func (*reconcileCmd) Name() string     { return "reconcile" }
func (*reconcileCmd) Synopsis() string { return "repair cached balances from the entry log" }
func (*reconcileCmd) Usage() string {
	return `saldoctl reconcile (-account <id> | -all)

  Rewrites the cached balance of drifted accounts from a replay of their
  entries. Consistent accounts are left untouched.
`
}

func (c *reconcileCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.account, "account", "", "Account to reconcile.")
	f.BoolVar(&c.all, "all", false, "Reconcile every account.")
}

func (c *reconcileCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if (c.account == "") == !c.all {
		fmt.Fprintln(c.env.Stderr, "exactly one of -account or -all is required")
		f.Usage()
		return subcommands.ExitUsageError
	}

	a, err := c.env.open(ctx)
	if err != nil {
		return c.env.fail(err)
	}
	defer a.Close()

	if c.all {
		w := worker.NewReconcileWorker(a.Ledger, nil, 0, c.env.Logger)
		stats, err := w.Sweep(ctx)
		if err != nil {
			return c.env.fail(err)
		}
		fmt.Fprintf(c.env.Stdout, "checked %d, repaired %d, failed %d\n", stats.Checked, stats.Repaired, stats.Failed)
		if stats.Failed > 0 {
			return subcommands.ExitFailure
		}
		return subcommands.ExitSuccess
	}

	res, err := a.Ledger.Reconcile(ctx, c.account)
	if err != nil {
		return c.env.fail(fmt.Errorf("reconcile %s: %w", c.account, err))
	}
	if res.Repaired {
		fmt.Fprintf(c.env.Stdout, "%s repaired: balance %s -> %s (version %d)\n",
			res.AccountID, res.Cached, res.Replayed, res.Version)
	} else {
		fmt.Fprintf(c.env.Stdout, "%s consistent at %s\n", res.AccountID, res.Cached)
	}
	return subcommands.ExitSuccess
}
