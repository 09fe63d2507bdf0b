// Package analytics rebuilds balance history and aggregate views from a
// ledger snapshot. Every function is pure: same snapshot and clock, same
// result. Day and month boundaries are computed in UTC.
package analytics

import (
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"saldo/internal/core"
)

const (
	MaxWindowDays = 366
	MaxMonthsBack = 60

	// NoCategory is reported as top category when there are no debits.
	NoCategory = "None"
)

var (
	ErrInvalidWindow = errors.New("window must be between 1 and 366 days")
	ErrInvalidMonths = errors.New("months must be between 1 and 60")
)

type (
	DayPoint struct {
		Date    string     `json:"date"`
		Balance core.Money `json:"balance"`
	}

	MonthPoint struct {
		Year     int        `json:"year"`
		Month    int        `json:"month"`
		Label    string     `json:"month_label"`
		Income   core.Money `json:"income"`
		Expenses core.Money `json:"expenses"`
		Net      core.Money `json:"net"`
	}

	CategoryShare struct {
		Category   string     `json:"category"`
		Amount     core.Money `json:"amount"`
		Percentage float64    `json:"percentage"`
	}

	OverviewReport struct {
		TotalIncome      core.Money `json:"totalIncome"`
		TotalExpenses    core.Money `json:"totalExpenses"`
		NetIncome        core.Money `json:"netIncome"`
		TransactionCount int        `json:"transactionCount"`
		AvgTransaction   core.Money `json:"avgTransaction"`
		TopCategory      string     `json:"topCategory"`
	}

	SummaryReport struct {
		Days             int        `json:"days"`
		Income           core.Money `json:"income"`
		Expenses         core.Money `json:"expenses"`
		Net              core.Money `json:"net"`
		TransactionCount int        `json:"transactionCount"`
	}
)

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DailyBalanceSeries returns exactly windowDays end-of-day balances, oldest
// first, ending with the day containing now. The first point is anchored
// on the initial balance plus everything dated before the window.
func DailyBalanceSeries(snap core.Snapshot, windowDays int, now time.Time) ([]DayPoint, error) {
	if windowDays < 1 || windowDays > MaxWindowDays {
		return nil, ErrInvalidWindow
	}
	start := startOfDay(now).AddDate(0, 0, -(windowDays - 1))

	perDay := make(map[string]int64)
	running := snap.Account.InitialBalance.Cents
	for _, e := range snap.Entries {
		if e.Date.Before(start) {
			running += e.Signed().Cents
			continue
		}
		perDay[e.Date.UTC().Format(time.DateOnly)] += e.Signed().Cents
	}

	points := make([]DayPoint, 0, windowDays)
	for i := 0; i < windowDays; i++ {
		key := start.AddDate(0, 0, i).Format(time.DateOnly)
		running += perDay[key]
		points = append(points, DayPoint{Date: key, Balance: core.Cents(running)})
	}
	return points, nil
}

// MonthlyIncomeExpense buckets the last monthsBack calendar months,
// including the current one, oldest first. Expenses are reported negative.
func MonthlyIncomeExpense(snap core.Snapshot, monthsBack int, now time.Time) ([]MonthPoint, error) {
	if monthsBack < 1 || monthsBack > MaxMonthsBack {
		return nil, ErrInvalidMonths
	}
	now = now.UTC()
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(monthsBack - 1), 0)

	points := make([]MonthPoint, monthsBack)
	index := make(map[[2]int]int, monthsBack)
	for i := range points {
		m := first.AddDate(0, i, 0)
		points[i] = MonthPoint{Year: m.Year(), Month: int(m.Month()), Label: m.Format("Jan 2006")}
		index[[2]int{m.Year(), int(m.Month())}] = i
	}

	for _, e := range snap.Entries {
		d := e.Date.UTC()
		i, ok := index[[2]int{d.Year(), int(d.Month())}]
		if !ok {
			continue
		}
		switch e.Kind {
		case core.Credit:
			points[i].Income = points[i].Income.Add(e.Amount)
		case core.Debit:
			points[i].Expenses = points[i].Expenses.Sub(e.Amount)
		}
	}
	for i := range points {
		points[i].Net = points[i].Income.Add(points[i].Expenses)
	}
	return points, nil
}

// CategoryBreakdown sums entries of the given kind per category. An empty
// kind means debits. Results are sorted by amount descending.
func CategoryBreakdown(snap core.Snapshot, kind core.Kind) []CategoryShare {
	if kind == "" {
		kind = core.Debit
	}
	sums := make(map[string]int64)
	var total int64
	for _, e := range snap.Entries {
		if e.Kind != kind {
			continue
		}
		sums[e.Category] += e.Amount.Cents
		total += e.Amount.Cents
	}

	out := make([]CategoryShare, 0, len(sums))
	for cat, cents := range sums {
		share := CategoryShare{Category: cat, Amount: core.Cents(cents)}
		if total > 0 {
			pct := decimal.NewFromInt(cents).Mul(decimal.NewFromInt(100)).Div(decimal.NewFromInt(total))
			share.Percentage = pct.Round(2).InexactFloat64()
		}
		out = append(out, share)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount.Cents != out[j].Amount.Cents {
			return out[i].Amount.Cents > out[j].Amount.Cents
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// Overview computes all-time totals for the account.
func Overview(snap core.Snapshot) OverviewReport {
	r := OverviewReport{TopCategory: NoCategory}
	var magnitude int64
	for _, e := range snap.Entries {
		switch e.Kind {
		case core.Credit:
			r.TotalIncome = r.TotalIncome.Add(e.Amount)
		case core.Debit:
			r.TotalExpenses = r.TotalExpenses.Add(e.Amount)
		}
		magnitude += e.Amount.Cents
		r.TransactionCount++
	}
	r.NetIncome = r.TotalIncome.Sub(r.TotalExpenses)
	if r.TransactionCount > 0 {
		avg := decimal.NewFromInt(magnitude).Div(decimal.NewFromInt(int64(r.TransactionCount)))
		r.AvgTransaction = core.Cents(avg.Round(0).IntPart())
	}
	if shares := CategoryBreakdown(snap, core.Debit); len(shares) > 0 {
		r.TopCategory = shares[0].Category
	}
	return r
}

// Summary totals the entries dated within the last days days, today included.
func Summary(snap core.Snapshot, days int, now time.Time) (SummaryReport, error) {
	if days < 1 || days > MaxWindowDays {
		return SummaryReport{}, ErrInvalidWindow
	}
	start := startOfDay(now).AddDate(0, 0, -(days - 1))
	end := startOfDay(now).AddDate(0, 0, 1)

	r := SummaryReport{Days: days}
	for _, e := range snap.Entries {
		if e.Date.Before(start) || !e.Date.Before(end) {
			continue
		}
		switch e.Kind {
		case core.Credit:
			r.Income = r.Income.Add(e.Amount)
		case core.Debit:
			r.Expenses = r.Expenses.Add(e.Amount)
		}
		r.TransactionCount++
	}
	r.Net = r.Income.Sub(r.Expenses)
	return r, nil
}
