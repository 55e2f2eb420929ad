package sqlxrepos

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/murilobento/studiofisiopilates-sub000/core/finance"
)

const (
	transactionColumns = `id, type, category, amount, transaction_date, reference, description, created_at`
	expenseColumns     = `id, category, description, amount, expense_date, transaction_id, created_at`
)

type transactionRow struct {
	ID              string          `db:"id"`
	Type            string          `db:"type"`
	Category        string          `db:"category"`
	Amount          decimal.Decimal `db:"amount"`
	TransactionDate time.Time       `db:"transaction_date"`
	Reference       string          `db:"reference"`
	Description     string          `db:"description"`
	CreatedAt       time.Time       `db:"created_at"`
}

func (row transactionRow) transaction() (finance.Transaction, error) {
	id, err := ulid.Parse(row.ID)
	if err != nil {
		return finance.Transaction{}, errors.Wrapf(err, "parsing transaction id %q", row.ID)
	}
	return finance.Transaction{
		ID:              id,
		Type:            finance.Type(row.Type),
		Category:        row.Category,
		Amount:          row.Amount,
		TransactionDate: dateOf(row.TransactionDate),
		Reference:       row.Reference,
		Description:     row.Description,
		CreatedAt:       row.CreatedAt.UTC(),
	}, nil
}

type expenseRow struct {
	ID            string          `db:"id"`
	Category      string          `db:"category"`
	Description   string          `db:"description"`
	Amount        decimal.Decimal `db:"amount"`
	ExpenseDate   time.Time       `db:"expense_date"`
	TransactionID string          `db:"transaction_id"`
	CreatedAt     time.Time       `db:"created_at"`
}

func (row expenseRow) expense() (finance.Expense, error) {
	txID, err := ulid.Parse(row.TransactionID)
	if err != nil {
		return finance.Expense{}, errors.Wrapf(err, "parsing transaction id %q", row.TransactionID)
	}
	return finance.Expense{
		ID:            row.ID,
		Category:      row.Category,
		Description:   row.Description,
		Amount:        row.Amount,
		ExpenseDate:   dateOf(row.ExpenseDate),
		TransactionID: txID,
		CreatedAt:     row.CreatedAt.UTC(),
	}, nil
}

type monthlyRow struct {
	Month       time.Time       `db:"month"`
	Income      decimal.Decimal `db:"income"`
	Expenses    decimal.Decimal `db:"expenses"`
	Commissions decimal.Decimal `db:"commissions"`
}

type financeRepository struct {
	*Store
}

var _ finance.Repository = (*financeRepository)(nil)

func NewFinanceRepository(s *Store) *financeRepository {
	return &financeRepository{Store: s}
}

func (repo *financeRepository) CreateTransaction(ctx context.Context, t finance.Transaction) (finance.Transaction, error) {
	_, err := repo.ext(ctx).ExecContext(ctx,
		"INSERT INTO financial_transactions ("+transactionColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
		t.ID.String(), string(t.Type), t.Category, t.Amount, dateArg(t.TransactionDate), t.Reference, t.Description, t.CreatedAt.UTC())
	if err != nil {
		return finance.Transaction{}, dbErr(err, nil, "inserting transaction")
	}
	return t, nil
}

func (repo *financeRepository) QueryTransactions(ctx context.Context, filter *finance.TransactionFilter) ([]finance.Transaction, error) {
	var w where
	if filter != nil {
		if filter.Type != "" {
			w.add("type = ?", string(filter.Type))
		}
		if filter.Category != "" {
			w.add("category = ?", filter.Category)
		}
		if filter.Reference != "" {
			w.add("reference = ?", filter.Reference)
		}
		if !filter.From.IsZero() {
			w.add("transaction_date >= ?", dateArg(filter.From))
		}
		if !filter.To.IsZero() {
			w.add("transaction_date <= ?", dateArg(filter.To))
		}
	}

	ext := repo.ext(ctx)
	q, args, err := bind(ext, "SELECT "+transactionColumns+" FROM financial_transactions"+w.String()+" ORDER BY transaction_date, id", w.args...)
	if err != nil {
		return nil, err
	}
	var rows []transactionRow
	if err = ext.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, dbErr(err, nil, "querying transactions")
	}
	txs := make([]finance.Transaction, 0, len(rows))
	for _, row := range rows {
		t, err := row.transaction()
		if err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, nil
}

func (repo *financeRepository) MonthlyTotals(ctx context.Context, from, to time.Time) ([]finance.MonthlyPoint, error) {
	var rows []monthlyRow
	err := repo.ext(ctx).SelectContext(ctx, &rows, `
		SELECT date_trunc('month', transaction_date)::date AS month,
			COALESCE(SUM(amount) FILTER (WHERE type = 'income'), 0) AS income,
			COALESCE(SUM(amount) FILTER (WHERE type = 'expense'), 0) AS expenses,
			COALESCE(SUM(amount) FILTER (WHERE type = 'commission'), 0) AS commissions
		FROM financial_transactions
		WHERE transaction_date >= $1 AND transaction_date < $2
		GROUP BY 1
		ORDER BY 1`,
		dateArg(from), dateArg(to))
	if err != nil {
		return nil, dbErr(err, nil, "summing transactions")
	}
	points := make([]finance.MonthlyPoint, 0, len(rows))
	for _, row := range rows {
		points = append(points, finance.MonthlyPoint{
			Month:       dateOf(row.Month),
			Income:      row.Income,
			Expenses:    row.Expenses,
			Commissions: row.Commissions,
		})
	}
	return points, nil
}

func (repo *financeRepository) CreateExpense(ctx context.Context, e finance.Expense) (finance.Expense, error) {
	_, err := repo.ext(ctx).ExecContext(ctx,
		"INSERT INTO expenses ("+expenseColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7)",
		e.ID, e.Category, e.Description, e.Amount, dateArg(e.ExpenseDate), e.TransactionID.String(), e.CreatedAt.UTC())
	if err != nil {
		return finance.Expense{}, dbErr(err, nil, "inserting expense")
	}
	return e, nil
}

func (repo *financeRepository) QueryExpenses(ctx context.Context, filter *finance.ExpenseFilter) ([]finance.Expense, error) {
	var w where
	if filter != nil {
		if filter.Category != "" {
			w.add("category = ?", filter.Category)
		}
		if !filter.From.IsZero() {
			w.add("expense_date >= ?", dateArg(filter.From))
		}
		if !filter.To.IsZero() {
			w.add("expense_date <= ?", dateArg(filter.To))
		}
	}

	ext := repo.ext(ctx)
	q, args, err := bind(ext, "SELECT "+expenseColumns+" FROM expenses"+w.String()+" ORDER BY expense_date, created_at", w.args...)
	if err != nil {
		return nil, err
	}
	var rows []expenseRow
	if err = ext.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, dbErr(err, nil, "querying expenses")
	}
	exps := make([]finance.Expense, 0, len(rows))
	for _, row := range rows {
		e, err := row.expense()
		if err != nil {
			return nil, err
		}
		exps = append(exps, e)
	}
	return exps, nil
}
