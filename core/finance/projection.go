package finance

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/murilobento/studiofisiopilates-sub000/core"
)

var (
	hundred     = decimal.NewFromInt(100)
	maxTrend    = decimal.NewFromInt(10)
	minTrend    = decimal.NewFromInt(-10)
	growthTrend = decimal.NewFromInt(5)
)

// MonthlyPoint holds the ledger totals of one month.
type MonthlyPoint struct {
	Month       time.Time       `json:"month"` // first day of the month
	Income      decimal.Decimal `json:"income"`
	Expenses    decimal.Decimal `json:"expenses"`
	Commissions decimal.Decimal `json:"commissions"`
}

func (p MonthlyPoint) Net() decimal.Decimal {
	return p.Income.Sub(p.Expenses).Sub(p.Commissions)
}

type ProjectedPoint struct {
	Month       time.Time       `json:"month"`
	Income      decimal.Decimal `json:"income"`
	Expenses    decimal.Decimal `json:"expenses"`
	Commissions decimal.Decimal `json:"commissions"`
	Net         decimal.Decimal `json:"net"`
}

// Trend is the monthly growth in percent between the first and last values,
// clamped to [-10, 10]. A series starting at zero grows 5% if it ends above zero.
func Trend(values []decimal.Decimal) decimal.Decimal {
	n := len(values)
	if n < 2 {
		return decimal.Zero
	}
	first, last := values[0], values[n-1]
	if first.IsZero() {
		if last.IsPositive() {
			return growthTrend
		}
		return decimal.Zero
	}
	trend := last.Sub(first).Div(first).Mul(hundred).Div(decimal.NewFromInt(int64(n - 1)))
	if trend.GreaterThan(maxTrend) {
		return maxTrend
	}
	if trend.LessThan(minTrend) {
		return minTrend
	}
	return trend
}

// Average is the arithmetic mean of values, zero when empty.
func Average(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	return decimal.Sum(decimal.Zero, values...).Div(decimal.NewFromInt(int64(len(values))))
}

// projectSeries extrapolates values: offset i is average × (1 + trend × (i+1) / 100).
func projectSeries(values []decimal.Decimal, monthsAhead int) []decimal.Decimal {
	avg, trend := Average(values), Trend(values)
	out := make([]decimal.Decimal, monthsAhead)
	for i := range out {
		growth := trend.Mul(decimal.NewFromInt(int64(i + 1))).Div(hundred)
		out[i] = core.Money(avg.Mul(decimal.NewFromInt(1).Add(growth)))
	}
	return out
}

// Project extrapolates each series of history monthsAhead months past its last month.
// history must be in chronological order.
func Project(history []MonthlyPoint, monthsAhead int) []ProjectedPoint {
	if monthsAhead <= 0 {
		return []ProjectedPoint{}
	}

	income := make([]decimal.Decimal, len(history))
	expenses := make([]decimal.Decimal, len(history))
	commissions := make([]decimal.Decimal, len(history))
	for i, p := range history {
		income[i], expenses[i], commissions[i] = p.Income, p.Expenses, p.Commissions
	}
	pIncome := projectSeries(income, monthsAhead)
	pExpenses := projectSeries(expenses, monthsAhead)
	pCommissions := projectSeries(commissions, monthsAhead)

	var start time.Time
	if len(history) > 0 {
		start = history[len(history)-1].Month
	}

	points := make([]ProjectedPoint, monthsAhead)
	for i := range points {
		points[i] = ProjectedPoint{
			Income:      pIncome[i],
			Expenses:    pExpenses[i],
			Commissions: pCommissions[i],
			Net:         pIncome[i].Sub(pExpenses[i]).Sub(pCommissions[i]),
		}
		if !start.IsZero() {
			points[i].Month = start.AddDate(0, i+1, 0)
		}
	}
	return points
}
