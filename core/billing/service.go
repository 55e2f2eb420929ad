package billing

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/murilobento/studiofisiopilates-sub000/core"
	"github.com/murilobento/studiofisiopilates-sub000/core/finance"
	"github.com/murilobento/studiofisiopilates-sub000/core/student"
)

const entity = "payment"

var (
	// errors
	ErrPaymentNotFound    = core.NewNotFoundError("payment")
	ErrCommissionNotFound = core.NewNotFoundError("commission")

	// ErrPaymentExists is returned by the store when the student already has a payment for the reference month.
	ErrPaymentExists = core.NewConflictError("a payment already exists for this student and month")
	// ErrCommissionExists is returned by the store when the payment already has a commission.
	ErrCommissionExists = core.NewConflictError("a commission already exists for this payment")

	ErrNegativeAmount        = core.NewValidationError(nil, core.FieldError{Field: "discount", Error: "discount cannot exceed the payment amount"})
	ErrPaymentMethodRequired = core.NewValidationError(nil, core.FieldError{Field: "payment_method", Error: "payment method is required"})
)

type (
	Repository interface {
		// CreatePayment returns ErrPaymentExists when (StudentID, ReferenceMonth) is taken.
		CreatePayment(ctx context.Context, pay Payment) (Payment, error)
		GetPayment(ctx context.Context, id string) (Payment, error)
		// GetPaymentForUpdate locks the payment until the surrounding transaction ends.
		GetPaymentForUpdate(ctx context.Context, id string) (Payment, error)
		FindPayment(ctx context.Context, studentID string, referenceMonth time.Time) (Payment, error)
		// BilledStudentIDs lists the students having a payment for the reference month.
		BilledStudentIDs(ctx context.Context, referenceMonth time.Time) ([]string, error)
		QueryPayments(ctx context.Context, filter *PaymentFilter) ([]Payment, error)
		UpdatePayment(ctx context.Context, pay Payment) (Payment, error)

		// CreateCommission returns ErrCommissionExists when the payment already has one.
		CreateCommission(ctx context.Context, cm Commission) (Commission, error)
		GetCommission(ctx context.Context, id string) (Commission, error)
		GetCommissionForUpdate(ctx context.Context, id string) (Commission, error)
		GetCommissionByPayment(ctx context.Context, paymentID string) (Commission, error)
		QueryCommissions(ctx context.Context, filter *CommissionFilter) ([]Commission, error)
		UpdateCommission(ctx context.Context, cm Commission) (Commission, error)
	}

	// Ledger records financial transactions.
	Ledger interface {
		Record(ctx context.Context, nt finance.NewTransaction) (finance.Transaction, error)
	}

	// StudentSource provides the billed students and their plans.
	StudentSource interface {
		ActiveStudents(ctx context.Context) ([]student.Student, error)
		GetByID(ctx context.Context, id string) (student.Student, error)
		GetPlan(ctx context.Context, id string) (student.Plan, error)
	}

	// PaymentHook runs after a payment confirmation is committed.
	// Its failure never undoes the confirmation.
	PaymentHook interface {
		Name() string
		AfterPaid(ctx context.Context, pay Payment) error
	}

	HookError struct {
		Hook  string `json:"hook"`
		Error string `json:"error"`
	}

	// Confirmation is the outcome of processing a payment.
	Confirmation struct {
		Payment    View        `json:"payment"`
		HookErrors []HookError `json:"hook_errors,omitempty"`
	}

	BatchFailure struct {
		PaymentID string `json:"payment_id"`
		Error     string `json:"error"`
	}

	BatchResult struct {
		Processed int            `json:"processed"`
		Failed    int            `json:"failed"`
		Failures  []BatchFailure `json:"failures"`
	}

	Service struct {
		repo     Repository
		tx       core.Transactor
		ledger   Ledger
		students StudentSource
		clock    core.Clock
		logger   core.Logger
		hooks    []PaymentHook
	}
)

func NewService(
	repo Repository,
	tx core.Transactor,
	ledger Ledger,
	students StudentSource,
	clock core.Clock,
	logger core.Logger,
	hooks ...PaymentHook,
) *Service {
	return &Service{
		repo:     repo,
		tx:       tx,
		ledger:   ledger,
		students: students,
		clock:    clock,
		logger:   logger,
		hooks:    hooks,
	}
}

// PaymentReference links ledger entries back to their payment.
func PaymentReference(paymentID string) string {
	return "payment:" + paymentID
}

func (svc *Service) Get(ctx context.Context, id string) (View, error) {
	pay, err := svc.repo.GetPayment(ctx, id)
	if err != nil {
		return View{}, err
	}
	return NewView(pay, svc.clock.Now()), nil
}

// Query lists payments. Overdue is resolved at read time, so filtering on it filters pending payments.
func (svc *Service) Query(ctx context.Context, filter *PaymentFilter) ([]View, error) {
	var wanted map[Status]bool
	var stored []Status
	if filter != nil && len(filter.Statuses) > 0 {
		wanted = make(map[Status]bool, len(filter.Statuses))
		seen := make(map[Status]bool, len(filter.Statuses))
		for _, st := range filter.Statuses {
			wanted[st] = true
			if st == StatusOverdue {
				st = StatusPending
			}
			if !seen[st] {
				seen[st] = true
				stored = append(stored, st)
			}
		}
		f := *filter
		f.Statuses = stored
		filter = &f
	}

	payments, err := svc.repo.QueryPayments(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "querying payments")
	}

	now := svc.clock.Now()
	views := make([]View, 0, len(payments))
	for _, pay := range payments {
		v := NewView(pay, now)
		if wanted != nil && !wanted[v.Status] {
			continue
		}
		views = append(views, v)
	}
	return views, nil
}

// Create bills a student manually for a period.
func (svc *Service) Create(ctx context.Context, np NewPayment) (View, error) {
	period, err := NewPeriod(np.Month, np.Year)
	if err != nil {
		return View{}, err
	}
	st, err := svc.students.GetByID(ctx, np.StudentID)
	if err != nil {
		if errors.Cause(err) == student.ErrNotFound {
			return View{}, core.NewValidationError(err, core.FieldError{Field: "student_id", Error: err.Error()})
		}
		return View{}, errors.Wrap(err, "finding student")
	}
	plan, err := svc.students.GetPlan(ctx, st.PlanID)
	if err != nil {
		return View{}, errors.Wrap(err, "finding plan")
	}

	pay := newPayment(st, plan, period, svc.clock.Now())
	if np.Amount != nil {
		pay.OriginalAmount = core.Money(*np.Amount)
		pay.Amount = pay.OriginalAmount
	}
	pay.Notes = np.Notes

	err = svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		pay, err = svc.repo.CreatePayment(ctx, pay)
		return err
	})
	if err != nil {
		return View{}, errors.Wrap(err, "creating payment")
	}
	return NewView(pay, svc.clock.Now()), nil
}

// Process confirms a pending payment, records its income and then runs the payment hooks.
func (svc *Service) Process(ctx context.Context, id string, pp ProcessPayment) (Confirmation, error) {
	if strings.TrimSpace(pp.PaymentMethod) == "" {
		return Confirmation{}, ErrPaymentMethodRequired
	}

	var pay Payment
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if pay, err = svc.repo.GetPaymentForUpdate(ctx, id); err != nil {
			return err
		}
		if pay.Status != StatusPending {
			return core.NewInvalidTransitionError(entity, string(pay.Status), string(StatusPaid))
		}

		pay.Discount = amountOrZero(pp.Discount)
		pay.LateFee = amountOrZero(pp.LateFee)
		pay.Interest = amountOrZero(pp.Interest)
		pay.Amount = pay.OriginalAmount.Sub(pay.Discount).Add(pay.LateFee).Add(pay.Interest)
		if pay.Amount.IsNegative() {
			return ErrNegativeAmount
		}

		now := svc.clock.Now()
		paidAt := now.UTC()
		pay.Status = StatusPaid
		pay.PaidAt = &paidAt
		pay.PaymentMethod = pp.PaymentMethod
		pay.Notes = appendNote(pay.Notes, pp.Notes)
		pay.UpdatedAt = paidAt
		if pay, err = svc.repo.UpdatePayment(ctx, pay); err != nil {
			return errors.Wrap(err, "updating payment")
		}

		_, err = svc.ledger.Record(ctx, finance.NewTransaction{
			Type:            finance.TypeIncome,
			Category:        finance.CategoryMonthlyPayment,
			Amount:          pay.Amount,
			TransactionDate: now,
			Reference:       PaymentReference(pay.ID),
			Description:     "Monthly payment " + PeriodOf(pay.ReferenceMonth).String(),
		})
		return errors.Wrap(err, "recording income")
	})
	if err != nil {
		return Confirmation{}, err
	}

	return Confirmation{
		Payment:    NewView(pay, svc.clock.Now()),
		HookErrors: svc.runHooks(ctx, pay),
	}, nil
}

// runHooks calls every hook; failures are logged and reported, never returned.
func (svc *Service) runHooks(ctx context.Context, pay Payment) []HookError {
	var hookErrs []HookError
	for _, hook := range svc.hooks {
		if err := hook.AfterPaid(ctx, pay); err != nil {
			svc.logger.Error("payment hook failed: "+hook.Name(), err, map[string]interface{}{
				"hook":       hook.Name(),
				"payment_id": pay.ID,
			})
			hookErrs = append(hookErrs, HookError{Hook: hook.Name(), Error: err.Error()})
		}
	}
	return hookErrs
}

// ProcessBatch processes each payment on its own; a failure does not stop the batch.
func (svc *Service) ProcessBatch(ctx context.Context, ids []string, pp ProcessPayment) BatchResult {
	res := BatchResult{Failures: []BatchFailure{}}
	for _, id := range ids {
		if _, err := svc.Process(ctx, id, pp); err != nil {
			res.Failed++
			res.Failures = append(res.Failures, BatchFailure{PaymentID: id, Error: errors.Cause(err).Error()})
			continue
		}
		res.Processed++
	}
	return res
}

// Cancel cancels a pending payment. A paid payment is only cancelled with cp.Force,
// in which case its income is reversed in the ledger.
func (svc *Service) Cancel(ctx context.Context, id string, cp CancelPayment) (View, error) {
	var pay Payment
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if pay, err = svc.repo.GetPaymentForUpdate(ctx, id); err != nil {
			return err
		}
		switch {
		case pay.Status == StatusPending:
		case pay.Status == StatusPaid && cp.Force:
			if err = svc.reverseIncome(ctx, pay, "Cancelled payment "); err != nil {
				return err
			}
			pay.PaidAt = nil
			pay.PaymentMethod = ""
		default:
			return core.NewInvalidTransitionError(entity, string(pay.Status), string(StatusCancelled))
		}

		pay.Status = StatusCancelled
		pay.Notes = appendNote(pay.Notes, core.CleanString(cp.Reason))
		pay.UpdatedAt = svc.clock.Now().UTC()
		pay, err = svc.repo.UpdatePayment(ctx, pay)
		return errors.Wrap(err, "updating payment")
	})
	if err != nil {
		return View{}, err
	}
	return NewView(pay, svc.clock.Now()), nil
}

// UndoPayment moves a paid payment back to pending and reverses its income.
func (svc *Service) UndoPayment(ctx context.Context, id string) (View, error) {
	var pay Payment
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if pay, err = svc.repo.GetPaymentForUpdate(ctx, id); err != nil {
			return err
		}
		if pay.Status != StatusPaid {
			return core.NewInvalidTransitionError(entity, string(pay.Status), string(StatusPending))
		}
		if err = svc.reverseIncome(ctx, pay, "Reverted payment "); err != nil {
			return err
		}

		pay.Status = StatusPending
		pay.PaidAt = nil
		pay.PaymentMethod = ""
		pay.Discount = decimal.Zero
		pay.LateFee = decimal.Zero
		pay.Interest = decimal.Zero
		pay.Amount = pay.OriginalAmount
		pay.UpdatedAt = svc.clock.Now().UTC()
		pay, err = svc.repo.UpdatePayment(ctx, pay)
		return errors.Wrap(err, "updating payment")
	})
	if err != nil {
		return View{}, err
	}
	return NewView(pay, svc.clock.Now()), nil
}

// UndoCancel moves a cancelled payment back to pending.
func (svc *Service) UndoCancel(ctx context.Context, id string) (View, error) {
	var pay Payment
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if pay, err = svc.repo.GetPaymentForUpdate(ctx, id); err != nil {
			return err
		}
		if pay.Status != StatusCancelled {
			return core.NewInvalidTransitionError(entity, string(pay.Status), string(StatusPending))
		}
		pay.Status = StatusPending
		pay.UpdatedAt = svc.clock.Now().UTC()
		pay, err = svc.repo.UpdatePayment(ctx, pay)
		return errors.Wrap(err, "updating payment")
	})
	if err != nil {
		return View{}, err
	}
	return NewView(pay, svc.clock.Now()), nil
}

// reverseIncome appends a negative income entry; ledger entries are never changed.
func (svc *Service) reverseIncome(ctx context.Context, pay Payment, description string) error {
	_, err := svc.ledger.Record(ctx, finance.NewTransaction{
		Type:            finance.TypeIncome,
		Category:        finance.CategoryMonthlyPayment,
		Amount:          pay.Amount.Neg(),
		TransactionDate: svc.clock.Now(),
		Reference:       PaymentReference(pay.ID),
		Description:     description + PeriodOf(pay.ReferenceMonth).String(),
	})
	return errors.Wrap(err, "reversing income")
}

func newPayment(st student.Student, plan student.Plan, period Period, now time.Time) Payment {
	amount := st.MonthlyPrice(plan)
	stamp := now.UTC()
	return Payment{
		StudentID:      st.ID,
		PlanID:         plan.ID,
		InstructorID:   st.InstructorID,
		ReferenceMonth: period.ReferenceMonth(),
		OriginalAmount: amount,
		Discount:       decimal.Zero,
		LateFee:        decimal.Zero,
		Interest:       decimal.Zero,
		Amount:         amount,
		DueDate:        period.DueDate(),
		Status:         StatusPending,
		CreatedAt:      stamp,
		UpdatedAt:      stamp,
	}
}

func amountOrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return core.Money(*d)
}

func appendNote(notes, note string) string {
	if note == "" {
		return notes
	}
	if notes == "" {
		return note
	}
	return strings.TrimSpace(notes) + "\n" + note
}
