package billing

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/murilobento/studiofisiopilates-sub000/core"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusOverdue   Status = "overdue" // derived, never stored
	StatusCancelled Status = "cancelled"
)

// Payment is the monthly bill of a student.
type Payment struct {
	ID           string `json:"id"`
	StudentID    string `json:"student_id"`
	PlanID       string `json:"plan_id"`
	InstructorID string `json:"instructor_id"`
	// ReferenceMonth is the first day of the billed month.
	ReferenceMonth time.Time       `json:"reference_month"`
	OriginalAmount decimal.Decimal `json:"original_amount"`
	Discount       decimal.Decimal `json:"discount"`
	LateFee        decimal.Decimal `json:"late_fee"`
	Interest       decimal.Decimal `json:"interest"`
	Amount         decimal.Decimal `json:"amount"`
	DueDate        time.Time       `json:"due_date"`
	Status         Status          `json:"status"`
	PaidAt         *time.Time      `json:"paid_at"`
	PaymentMethod  string          `json:"payment_method"`
	Notes          string          `json:"notes"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// EffectiveStatus is the status shown to users: a pending payment whose due date has passed is overdue.
func (p Payment) EffectiveStatus(now time.Time) Status {
	if p.Status == StatusPending && p.IsOverdue(now) {
		return StatusOverdue
	}
	return p.Status
}

// IsOverdue compares calendar days only; a payment is not overdue on its due date.
func (p Payment) IsOverdue(now time.Time) bool {
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	dy, dm, dd := p.DueDate.Date()
	due := time.Date(dy, dm, dd, 0, 0, 0, 0, time.UTC)
	return due.Before(today)
}

// View is a Payment with its status resolved at read time.
type View struct {
	Payment
	Status Status `json:"status"`
}

func NewView(p Payment, now time.Time) View {
	return View{Payment: p, Status: p.EffectiveStatus(now)}
}

type CommissionStatus string

const (
	CommissionPending CommissionStatus = "pending"
	CommissionPaid    CommissionStatus = "paid"
)

// Commission is the share of a confirmed payment owed to an instructor.
type Commission struct {
	ID           string           `json:"id"`
	InstructorID string           `json:"instructor_id"`
	PaymentID    string           `json:"monthly_payment_id"`
	Rate         decimal.Decimal  `json:"rate"`
	Amount       decimal.Decimal  `json:"amount"`
	Status       CommissionStatus `json:"status"`
	PaidAt       *time.Time       `json:"paid_at"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// NewPayment is a manually created bill.
type NewPayment struct {
	StudentID string           `json:"student_id" validate:"required"`
	Month     int              `json:"month" validate:"required,min=1,max=12"`
	Year      int              `json:"year" validate:"required,min=2000,max=2100"`
	Amount    *decimal.Decimal `json:"amount" validate:"omitempty,gte=0"`
	Notes     string           `json:"notes"`
}

func (np *NewPayment) Validate(validate *validator.Validate) error {
	np.StudentID = core.CleanString(np.StudentID)
	np.Notes = core.CleanString(np.Notes)
	return validate.Struct(np)
}

// ProcessPayment confirms a payment. Adjustments default to zero.
type ProcessPayment struct {
	PaymentMethod string           `json:"payment_method" validate:"required,paymentmethod"`
	Discount      *decimal.Decimal `json:"discount" validate:"omitempty,gte=0"`
	LateFee       *decimal.Decimal `json:"late_fee" validate:"omitempty,gte=0"`
	Interest      *decimal.Decimal `json:"interest" validate:"omitempty,gte=0"`
	Notes         string           `json:"notes"`
}

func (pp *ProcessPayment) Validate(validate *validator.Validate) error {
	pp.PaymentMethod = core.CleanString(pp.PaymentMethod, true /* lower */)
	pp.Notes = core.CleanString(pp.Notes)
	return validate.Struct(pp)
}

type BatchProcessPayment struct {
	IDs []string `json:"ids" validate:"required,min=1"`
	ProcessPayment
}

func (bp *BatchProcessPayment) Validate(validate *validator.Validate) error {
	bp.PaymentMethod = core.CleanString(bp.PaymentMethod, true /* lower */)
	bp.Notes = core.CleanString(bp.Notes)
	return validate.Struct(bp)
}

type CancelPayment struct {
	Reason string `json:"reason"`
	// Force allows cancelling a paid payment.
	Force bool `json:"force"`
}

type PaymentFilter struct {
	StudentID      string
	InstructorID   string
	ReferenceMonth time.Time
	Statuses       []Status
}

type CommissionFilter struct {
	InstructorID string           `query:"instructor_id"`
	PaymentID    string           `query:"payment_id"`
	Status       CommissionStatus `query:"status"`
}
