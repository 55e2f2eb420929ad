package main

import (
	"context"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/murilobento/studiofisiopilates-sub000/core/billing"
)

const monthLayout = "2006-01"

// generatePayments creates the missing payments of the current period.
// month and year both zero select the current period.
func (cli *commandLine) generatePayments(month, year int) error {
	period := billing.PeriodOf(cli.clock.Now())
	if month != 0 || year != 0 {
		var err error
		if period, err = billing.NewPeriod(month, year); err != nil {
			return err
		}
	}
	if err := billing.EnsureCurrentPeriod(cli.clock, period); err != nil {
		return err
	}

	res, err := cli.generator.Generate(context.Background(), period)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%s: %d created, %d already billed, %d active students\n",
		res.Period, len(res.Created), res.AlreadyExists, res.TotalStudents)
	for _, s := range res.Skipped {
		fmt.Fprintf(cli.out, "  skipped %s: %s\n", s.StudentID, s.Reason)
	}
	return nil
}

// expandTemplates keeps every active template expanded up to the horizon.
func (cli *commandLine) expandTemplates() error {
	results, err := cli.schedule.ExpandActive(context.Background())
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		res := results[id]
		fmt.Fprintf(cli.out, "%s: %d created, %d conflicts, %d past, %d existing\n",
			id, res.CreatedCount(), len(res.Conflicts), res.SkippedPast, res.SkippedExisting)
	}
	fmt.Fprintf(cli.out, "%d active templates\n", len(results))
	return nil
}

func (cli *commandLine) project(historyMonths, monthsAhead int) error {
	proj, err := cli.finance.ProjectAhead(context.Background(), historyMonths, monthsAhead)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cli.out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "month\tincome\texpenses\tcommissions\tnet\t")
	for _, p := range proj.History {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t\n", p.Month.Format(monthLayout),
			p.Income.StringFixed(2), p.Expenses.StringFixed(2), p.Commissions.StringFixed(2), p.Net().StringFixed(2))
	}
	for _, p := range proj.Points {
		fmt.Fprintf(w, "%s*\t%s\t%s\t%s\t%s\t\n", p.Month.Format(monthLayout),
			p.Income.StringFixed(2), p.Expenses.StringFixed(2), p.Commissions.StringFixed(2), p.Net.StringFixed(2))
	}
	if err = w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "trends: income %s%%, expenses %s%%, commissions %s%%\n",
		proj.IncomeTrend.StringFixed(2), proj.ExpenseTrend.StringFixed(2), proj.CommissionTrend.StringFixed(2))
	return nil
}
