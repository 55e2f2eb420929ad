package student

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/murilobento/studiofisiopilates-sub000/core"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusSuspended:
		return true
	}
	return false
}

// Plan is a monthly subscription offer.
type Plan struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	IsActive    bool            `json:"is_active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type Student struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Phone  string `json:"phone"`
	Status Status `json:"status"`
	PlanID string `json:"plan_id"`
	// CustomPrice overrides the plan price when set.
	CustomPrice  *decimal.Decimal `json:"custom_price"`
	InstructorID string           `json:"instructor_id"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

func (s Student) IsActive() bool { return s.Status == StatusActive }

// MonthlyPrice is the amount billed to the student each month.
func (s Student) MonthlyPrice(plan Plan) decimal.Decimal {
	if s.CustomPrice != nil {
		return core.Money(*s.CustomPrice)
	}
	return core.Money(plan.Price)
}

type NewPlan struct {
	Name        string          `json:"name" validate:"required"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price" validate:"gte=0"`
}

func (np *NewPlan) Validate(validate *validator.Validate) error {
	np.Name = core.CleanString(np.Name)
	np.Description = core.CleanString(np.Description)
	return validate.Struct(np)
}

type NewStudent struct {
	Name         string           `json:"name" validate:"required"`
	Email        string           `json:"email" validate:"omitempty,email"`
	Phone        string           `json:"phone"`
	PlanID       string           `json:"plan_id" validate:"required"`
	CustomPrice  *decimal.Decimal `json:"custom_price" validate:"omitempty,gte=0"`
	InstructorID string           `json:"instructor_id"`
}

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	ns.Email = core.CleanString(ns.Email, true /* lower */)
	ns.Phone = core.CleanString(ns.Phone)
	return validate.Struct(ns)
}

type UpdateStudent struct {
	Name         string           `json:"name"`
	Email        string           `json:"email" validate:"omitempty,email"`
	Phone        string           `json:"phone"`
	Status       Status           `json:"status" validate:"omitempty,oneof=active inactive suspended"`
	PlanID       string           `json:"plan_id"`
	CustomPrice  *decimal.Decimal `json:"custom_price" validate:"omitempty,gte=0"`
	ClearPrice   bool             `json:"clear_custom_price"`
	InstructorID *string          `json:"instructor_id"`
}

func (us *UpdateStudent) Validate(validate *validator.Validate) error {
	us.Name = core.CleanString(us.Name)
	us.Email = core.CleanString(us.Email, true /* lower */)
	us.Phone = core.CleanString(us.Phone)
	return validate.Struct(us)
}

type QueryFilter struct {
	Search       string `query:"search"`
	Status       Status `query:"status"`
	PlanID       string `query:"plan_id"`
	InstructorID string `query:"instructor_id"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	if !qf.Status.Valid() {
		qf.Status = ""
	}
}
