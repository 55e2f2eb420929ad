package finance

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/murilobento/studiofisiopilates-sub000/core"
)

type Type string

const (
	TypeIncome     Type = "income"
	TypeExpense    Type = "expense"
	TypeCommission Type = "commission"
)

func (t Type) Valid() bool {
	switch t {
	case TypeIncome, TypeExpense, TypeCommission:
		return true
	}
	return false
}

// ledger categories
const (
	CategoryMonthlyPayment       = "monthly_payment"
	CategoryInstructorCommission = "instructor_commission"
)

// Transaction is an entry of the append-only ledger. Corrections are new entries.
type Transaction struct {
	ID              ulid.ULID       `json:"id"`
	Type            Type            `json:"type"`
	Category        string          `json:"category"`
	Amount          decimal.Decimal `json:"amount"`
	TransactionDate time.Time       `json:"transaction_date"`
	Reference       string          `json:"reference"`
	Description     string          `json:"description"`
	CreatedAt       time.Time       `json:"created_at"`
}

type NewTransaction struct {
	Type            Type
	Category        string
	Amount          decimal.Decimal
	TransactionDate time.Time
	Reference       string
	Description     string
}

// Expense is money spent by the studio: rent, equipment, salaries.
type Expense struct {
	ID            string          `json:"id"`
	Category      string          `json:"category"`
	Description   string          `json:"description"`
	Amount        decimal.Decimal `json:"amount"`
	ExpenseDate   time.Time       `json:"expense_date"`
	TransactionID ulid.ULID       `json:"transaction_id"`
	CreatedAt     time.Time       `json:"created_at"`
}

type NewExpense struct {
	Category    string          `json:"category" validate:"required"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount" validate:"gt=0"`
	ExpenseDate time.Time       `json:"expense_date" validate:"required"`
}

func (ne *NewExpense) Validate(validate *validator.Validate) error {
	ne.Category = core.CleanString(ne.Category, true /* lower */)
	ne.Description = core.CleanString(ne.Description)
	ne.Amount = core.Money(ne.Amount)
	return validate.Struct(ne)
}

// TransactionFilter bounds are dates, both included.
type TransactionFilter struct {
	Type      Type   `query:"type"`
	Category  string `query:"category"`
	Reference string `query:"reference"`
	From      time.Time
	To        time.Time
}

type ExpenseFilter struct {
	Category string `query:"category"`
	From     time.Time
	To       time.Time
}
