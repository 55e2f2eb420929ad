package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/murilobento/studiofisiopilates-sub000/core/finance"
)

type financeRepository struct {
	db *DB
}

var _ finance.Repository = (*financeRepository)(nil)

func NewFinanceRepository(db *DB) *financeRepository {
	return &financeRepository{db: db}
}

func (repo *financeRepository) CreateTransaction(ctx context.Context, tx finance.Transaction) (finance.Transaction, error) {
	err := repo.db.write(ctx, func(t *tables) error {
		t.transactions = append(t.transactions, tx)
		return nil
	})
	return tx, err
}

func inRange(d, from, to time.Time) bool {
	if !from.IsZero() && d.Before(from) {
		return false
	}
	if !to.IsZero() && d.After(to) {
		return false
	}
	return true
}

func (repo *financeRepository) QueryTransactions(ctx context.Context, filter *finance.TransactionFilter) ([]finance.Transaction, error) {
	txs := make([]finance.Transaction, 0)
	repo.db.read(ctx, func(t *tables) {
		for _, tx := range t.transactions {
			if filter != nil {
				if filter.Type != "" && tx.Type != filter.Type {
					continue
				}
				if filter.Category != "" && tx.Category != filter.Category {
					continue
				}
				if filter.Reference != "" && tx.Reference != filter.Reference {
					continue
				}
				if !inRange(tx.TransactionDate, filter.From, filter.To) {
					continue
				}
			}
			txs = append(txs, tx)
		}
	})
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].TransactionDate.Equal(txs[j].TransactionDate) {
			return txs[i].TransactionDate.Before(txs[j].TransactionDate)
		}
		return txs[i].ID.Compare(txs[j].ID) < 0
	})
	return txs, nil
}

func (repo *financeRepository) MonthlyTotals(ctx context.Context, from, to time.Time) ([]finance.MonthlyPoint, error) {
	byMonth := make(map[time.Time]*finance.MonthlyPoint)
	repo.db.read(ctx, func(t *tables) {
		for _, tx := range t.transactions {
			if tx.TransactionDate.Before(from) || !tx.TransactionDate.Before(to) {
				continue
			}
			month := time.Date(tx.TransactionDate.Year(), tx.TransactionDate.Month(), 1, 0, 0, 0, 0, time.UTC)
			p, ok := byMonth[month]
			if !ok {
				p = &finance.MonthlyPoint{Month: month, Income: decimal.Zero, Expenses: decimal.Zero, Commissions: decimal.Zero}
				byMonth[month] = p
			}
			switch tx.Type {
			case finance.TypeIncome:
				p.Income = p.Income.Add(tx.Amount)
			case finance.TypeExpense:
				p.Expenses = p.Expenses.Add(tx.Amount)
			case finance.TypeCommission:
				p.Commissions = p.Commissions.Add(tx.Amount)
			}
		}
	})

	points := make([]finance.MonthlyPoint, 0, len(byMonth))
	for _, p := range byMonth {
		points = append(points, *p)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Month.Before(points[j].Month) })
	return points, nil
}

func (repo *financeRepository) CreateExpense(ctx context.Context, exp finance.Expense) (finance.Expense, error) {
	err := repo.db.write(ctx, func(t *tables) error {
		if exp.ID == "" {
			exp.ID = newID()
		}
		t.expenses = append(t.expenses, exp)
		return nil
	})
	return exp, err
}

func (repo *financeRepository) QueryExpenses(ctx context.Context, filter *finance.ExpenseFilter) ([]finance.Expense, error) {
	exps := make([]finance.Expense, 0)
	repo.db.read(ctx, func(t *tables) {
		for _, e := range t.expenses {
			if filter != nil {
				if filter.Category != "" && e.Category != filter.Category {
					continue
				}
				if !inRange(e.ExpenseDate, filter.From, filter.To) {
					continue
				}
			}
			exps = append(exps, e)
		}
	})
	sort.SliceStable(exps, func(i, j int) bool { return exps[i].ExpenseDate.Before(exps[j].ExpenseDate) })
	return exps, nil
}
