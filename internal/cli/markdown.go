package cli

import (
	"fmt"
	"strings"

	"saldo/internal/analytics"
	"saldo/internal/core"
	"saldo/internal/ledger"
)

// AccountReport is everything the report command prints for one account.
type AccountReport struct {
	AccountID  string
	Balance    ledger.BalanceView
	Overview   analytics.OverviewReport
	Months     []analytics.MonthPoint
	Kind       core.Kind
	Categories []analytics.CategoryShare
}

// VerificationMarkdown renders one table row per verified account.
func VerificationMarkdown(results []ledger.Verification) string {
	var b strings.Builder
	b.WriteString("# Balance verification\n\n")
	if len(results) == 0 {
		b.WriteString("No accounts.\n")
		return b.String()
	}
	b.WriteString("| Account | Cached | Replayed | Drift | Entries | Status |\n")
	b.WriteString("|---|---:|---:|---:|---:|---|\n")
	drifted := 0
	for _, v := range results {
		status := "ok"
		if !v.Consistent {
			status = "**drift**"
			drifted++
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %d | %s |\n",
			v.AccountID, v.Cached, v.Replayed, v.Drift, v.Entries, status)
	}
	fmt.Fprintf(&b, "\n%d of %d accounts drifted.\n", drifted, len(results))
	return b.String()
}

// ReportMarkdown renders an account overview.
func ReportMarkdown(r AccountReport) string {
	cur := r.Balance.Currency
	var b strings.Builder
	fmt.Fprintf(&b, "# Account %s\n\n", r.AccountID)
	fmt.Fprintf(&b, "Balance: **%s** (initial %s)\n\n", r.Balance.Balance.Format(cur), r.Balance.InitialBalance.Format(cur))

	b.WriteString("## Overview\n\n")
	b.WriteString("| | |\n|---|---:|\n")
	fmt.Fprintf(&b, "| Income | %s |\n", r.Overview.TotalIncome.Format(cur))
	fmt.Fprintf(&b, "| Expenses | %s |\n", r.Overview.TotalExpenses.Format(cur))
	fmt.Fprintf(&b, "| Net | %s |\n", r.Overview.NetIncome.Format(cur))
	fmt.Fprintf(&b, "| Transactions | %d |\n", r.Overview.TransactionCount)
	fmt.Fprintf(&b, "| Average | %s |\n", r.Overview.AvgTransaction.Format(cur))
	top := r.Overview.TopCategory
	if top == "" {
		top = "-"
	}
	fmt.Fprintf(&b, "| Top category | %s |\n", top)

	if len(r.Months) > 0 {
		b.WriteString("\n## Monthly trend\n\n")
		b.WriteString("| Month | Income | Expenses | Net |\n|---|---:|---:|---:|\n")
		for _, m := range r.Months {
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
				m.Label, m.Income.Format(cur), m.Expenses.Format(cur), m.Net.Format(cur))
		}
	}

	fmt.Fprintf(&b, "\n## Categories (%s)\n\n", r.Kind)
	if len(r.Categories) == 0 {
		b.WriteString("No entries.\n")
		return b.String()
	}
	b.WriteString("| Category | Amount | Share |\n|---|---:|---:|\n")
	for _, c := range r.Categories {
		fmt.Fprintf(&b, "| %s | %s | %.1f%% |\n", c.Category, c.Amount.Format(cur), c.Percentage)
	}
	return b.String()
}
