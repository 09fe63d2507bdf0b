package cli

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"saldo/internal/core"
)

type reportCmd struct {
	env     *Env
	account string
	months  int
	kind    string
}

func (*reportCmd) Name() string     { return "report" }
func (*reportCmd) Synopsis() string { return "print an account overview with monthly trend and categories" }
func (*reportCmd) Usage() string {
	return `saldoctl report -account <id> [-months <n>] [-type debit|credit]

  Renders the balance, lifetime totals, the monthly income and expense
  trend and the category breakdown of one account.
`
}

func (c *reportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.account, "account", "", "Account to report on.")
	f.IntVar(&c.months, "months", 6, "Number of months in the trend, 1 to 60.")
	f.StringVar(&c.kind, "type", string(core.Debit), "Entry type for the category breakdown.")
}

func (c *reportCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.account == "" {
		fmt.Fprintln(c.env.Stderr, "-account is required")
		f.Usage()
		return subcommands.ExitUsageError
	}
	kind, err := core.ParseKind(c.kind)
	if err != nil {
		return c.env.fail(err)
	}

	a, err := c.env.open(ctx)
	if err != nil {
		return c.env.fail(err)
	}
	defer a.Close()

	var r AccountReport
	r.AccountID = c.account
	r.Kind = kind
	if r.Balance, err = a.Ledger.CurrentBalance(ctx, c.account); err != nil {
		return c.env.fail(err)
	}
	if r.Overview, err = a.Ledger.Overview(ctx, c.account); err != nil {
		return c.env.fail(err)
	}
	if r.Months, err = a.Ledger.MonthlyTrend(ctx, c.account, c.months); err != nil {
		return c.env.fail(err)
	}
	if r.Categories, err = a.Ledger.CategoryBreakdown(ctx, c.account, kind); err != nil {
		return c.env.fail(err)
	}

	c.env.printMarkdown(ReportMarkdown(r))
	return subcommands.ExitSuccess
}
