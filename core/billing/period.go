package billing

import (
	"fmt"
	"time"

	"github.com/murilobento/studiofisiopilates-sub000/core"
)

var ErrNotCurrentPeriod = core.NewValidationError(nil, core.FieldError{
	Field: "month",
	Error: "payments can only be generated for the current month",
})

// Period is a billed calendar month.
type Period struct {
	Month time.Month `json:"month"`
	Year  int        `json:"year"`
}

func NewPeriod(month, year int) (Period, error) {
	if month < 1 || month > 12 {
		return Period{}, core.NewValidationError(nil, core.FieldError{Field: "month", Error: "month must be between 1 and 12"})
	}
	if year < 2000 || year > 2100 {
		return Period{}, core.NewValidationError(nil, core.FieldError{Field: "year", Error: "year must be between 2000 and 2100"})
	}
	return Period{Month: time.Month(month), Year: year}, nil
}

// PeriodOf is the period t falls in, using t's location.
func PeriodOf(t time.Time) Period {
	return Period{Month: t.Month(), Year: t.Year()}
}

// ReferenceMonth is the first day of the period.
func (p Period) ReferenceMonth() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// DueDate is the last day of the period.
func (p Period) DueDate() time.Time {
	return p.ReferenceMonth().AddDate(0, 1, -1)
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// EnsureCurrentPeriod rejects any period other than the current month of clock.
func EnsureCurrentPeriod(clock core.Clock, p Period) error {
	if PeriodOf(clock.Now()) != p {
		return ErrNotCurrentPeriod
	}
	return nil
}
