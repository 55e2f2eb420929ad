package finance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/murilobento/studiofisiopilates-sub000/core"
)

const (
	defaultHistoryMonths = 6
	monthKey             = "2006-01"
)

type (
	Repository interface {
		CreateTransaction(ctx context.Context, t Transaction) (Transaction, error)
		// QueryTransactions returns the entries ordered by date then ID.
		QueryTransactions(ctx context.Context, filter *TransactionFilter) ([]Transaction, error)
		// MonthlyTotals sums the entries dated in [from, to) per month and type.
		// Months without entries are left out.
		MonthlyTotals(ctx context.Context, from, to time.Time) ([]MonthlyPoint, error)

		CreateExpense(ctx context.Context, e Expense) (Expense, error)
		QueryExpenses(ctx context.Context, filter *ExpenseFilter) ([]Expense, error)
	}

	Projection struct {
		History         []MonthlyPoint   `json:"history"`
		Points          []ProjectedPoint `json:"points"`
		IncomeTrend     decimal.Decimal  `json:"income_trend"`
		ExpenseTrend    decimal.Decimal  `json:"expense_trend"`
		CommissionTrend decimal.Decimal  `json:"commission_trend"`
	}

	Service struct {
		repo  Repository
		tx    core.Transactor
		clock core.Clock
	}
)

func NewService(repo Repository, tx core.Transactor, clock core.Clock) *Service {
	return &Service{repo: repo, tx: tx, clock: clock}
}

// Record appends an entry to the ledger. A zero TransactionDate means today.
func (svc *Service) Record(ctx context.Context, nt NewTransaction) (Transaction, error) {
	if !nt.Type.Valid() {
		return Transaction{}, fmt.Errorf("invalid transaction type %q", nt.Type)
	}
	now := svc.clock.Now()
	date := nt.TransactionDate
	if date.IsZero() {
		date = now
	}

	t := Transaction{
		ID:              ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()),
		Type:            nt.Type,
		Category:        nt.Category,
		Amount:          core.Money(nt.Amount),
		TransactionDate: calendarDay(date),
		Reference:       nt.Reference,
		Description:     nt.Description,
		CreatedAt:       now.UTC(),
	}
	t, err := svc.repo.CreateTransaction(ctx, t)
	return t, errors.Wrap(err, "creating transaction")
}

// RegisterExpense stores the expense together with its ledger entry.
func (svc *Service) RegisterExpense(ctx context.Context, ne NewExpense) (Expense, error) {
	exp := Expense{
		ID:          uuid.New().String(),
		Category:    ne.Category,
		Description: ne.Description,
		Amount:      core.Money(ne.Amount),
		ExpenseDate: calendarDay(ne.ExpenseDate),
		CreatedAt:   svc.clock.Now().UTC(),
	}

	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		t, err := svc.Record(ctx, NewTransaction{
			Type:            TypeExpense,
			Category:        exp.Category,
			Amount:          exp.Amount,
			TransactionDate: exp.ExpenseDate,
			Reference:       "expense:" + exp.ID,
			Description:     exp.Description,
		})
		if err != nil {
			return err
		}
		exp.TransactionID = t.ID
		exp, err = svc.repo.CreateExpense(ctx, exp)
		return errors.Wrap(err, "creating expense")
	})
	if err != nil {
		return Expense{}, err
	}
	return exp, nil
}

func (svc *Service) Transactions(ctx context.Context, filter *TransactionFilter) ([]Transaction, error) {
	ts, err := svc.repo.QueryTransactions(ctx, filter)
	return ts, errors.Wrap(err, "querying transactions")
}

func (svc *Service) Expenses(ctx context.Context, filter *ExpenseFilter) ([]Expense, error) {
	exps, err := svc.repo.QueryExpenses(ctx, filter)
	return exps, errors.Wrap(err, "querying expenses")
}

// MonthlyHistory returns the totals of the last `months` complete months, oldest first.
// Months without entries are zero.
func (svc *Service) MonthlyHistory(ctx context.Context, months int) ([]MonthlyPoint, error) {
	if months <= 0 {
		months = defaultHistoryMonths
	}
	now := svc.clock.Now()
	to := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	from := to.AddDate(0, -months, 0)

	totals, err := svc.repo.MonthlyTotals(ctx, from, to)
	if err != nil {
		return nil, errors.Wrap(err, "summing transactions")
	}
	byMonth := make(map[string]MonthlyPoint, len(totals))
	for _, p := range totals {
		byMonth[p.Month.Format(monthKey)] = p
	}

	history := make([]MonthlyPoint, months)
	for i := range history {
		month := from.AddDate(0, i, 0)
		p, ok := byMonth[month.Format(monthKey)]
		if !ok {
			p = MonthlyPoint{Income: decimal.Zero, Expenses: decimal.Zero, Commissions: decimal.Zero}
		}
		p.Month = month
		history[i] = p
	}
	return history, nil
}

// ProjectAhead projects monthsAhead months from the last historyMonths complete months.
func (svc *Service) ProjectAhead(ctx context.Context, historyMonths, monthsAhead int) (Projection, error) {
	history, err := svc.MonthlyHistory(ctx, historyMonths)
	if err != nil {
		return Projection{}, err
	}

	income := make([]decimal.Decimal, len(history))
	expenses := make([]decimal.Decimal, len(history))
	commissions := make([]decimal.Decimal, len(history))
	for i, p := range history {
		income[i], expenses[i], commissions[i] = p.Income, p.Expenses, p.Commissions
	}

	return Projection{
		History:         history,
		Points:          Project(history, monthsAhead),
		IncomeTrend:     Trend(income).Round(2),
		ExpenseTrend:    Trend(expenses).Round(2),
		CommissionTrend: Trend(commissions).Round(2),
	}, nil
}

// calendarDay keeps the calendar day of t as a UTC date.
func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
