package billing

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/murilobento/studiofisiopilates-sub000/core"
	"github.com/murilobento/studiofisiopilates-sub000/core/finance"
	"github.com/murilobento/studiofisiopilates-sub000/core/user"
)

var ErrPaymentNotPaid = core.NewConflictError("commissions are only due on paid payments")

var hundred = decimal.NewFromInt(100)

// InstructorFinder looks instructors up.
type InstructorFinder interface {
	GetByID(ctx context.Context, id string) (user.User, error)
}

// CommissionAmount is rate percent of amount, rounded to cents.
func CommissionAmount(amount, rate decimal.Decimal) decimal.Decimal {
	return core.Money(amount.Mul(rate).Div(hundred))
}

// CommissionCalculator credits instructors with their share of confirmed payments.
// It runs as a PaymentHook.
type CommissionCalculator struct {
	repo        Repository
	tx          core.Transactor
	ledger      Ledger
	instructors InstructorFinder
	clock       core.Clock
}

var _ PaymentHook = (*CommissionCalculator)(nil)

func NewCommissionCalculator(repo Repository, tx core.Transactor, ledger Ledger, instructors InstructorFinder, clock core.Clock) *CommissionCalculator {
	return &CommissionCalculator{repo: repo, tx: tx, ledger: ledger, instructors: instructors, clock: clock}
}

func (c *CommissionCalculator) Name() string { return "commission" }

func (c *CommissionCalculator) AfterPaid(ctx context.Context, pay Payment) error {
	_, err := c.Calculate(ctx, pay)
	return err
}

// Calculate creates the commission of a paid payment along with its ledger entry.
// It returns nil when the instructor earns no commission, and the existing commission
// when the payment was already credited.
func (c *CommissionCalculator) Calculate(ctx context.Context, pay Payment) (*Commission, error) {
	if pay.Status != StatusPaid {
		return nil, ErrPaymentNotPaid
	}
	if pay.InstructorID == "" {
		return nil, nil
	}

	instructor, err := c.instructors.GetByID(ctx, pay.InstructorID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return nil, nil
		}
		return nil, errors.Wrap(err, "finding instructor")
	}
	if !instructor.HasCommission() {
		return nil, nil
	}

	var cm Commission
	err = c.tx.WithinTx(ctx, func(ctx context.Context) error {
		existing, err := c.repo.GetCommissionByPayment(ctx, pay.ID)
		switch {
		case err == nil:
			cm = existing
			return ErrCommissionExists
		case errors.Cause(err) != ErrCommissionNotFound:
			return err
		}

		now := c.clock.Now()
		cm, err = c.repo.CreateCommission(ctx, Commission{
			InstructorID: instructor.ID,
			PaymentID:    pay.ID,
			Rate:         *instructor.CommissionRate,
			Amount:       CommissionAmount(pay.Amount, *instructor.CommissionRate),
			Status:       CommissionPending,
			CreatedAt:    now.UTC(),
			UpdatedAt:    now.UTC(),
		})
		if err != nil {
			return err
		}

		txDate := now
		if pay.PaidAt != nil {
			txDate = *pay.PaidAt
		}
		_, err = c.ledger.Record(ctx, finance.NewTransaction{
			Type:            finance.TypeCommission,
			Category:        finance.CategoryInstructorCommission,
			Amount:          cm.Amount,
			TransactionDate: txDate,
			Reference:       PaymentReference(pay.ID),
			Description:     "Commission " + instructor.Name + " " + PeriodOf(pay.ReferenceMonth).String(),
		})
		return errors.Wrap(err, "recording commission")
	})
	switch {
	case err == nil:
		return &cm, nil
	case errors.Cause(err) == ErrCommissionExists:
		if cm.ID == "" {
			// lost a race against a concurrent confirmation
			if cm, err = c.repo.GetCommissionByPayment(ctx, pay.ID); err != nil {
				return nil, err
			}
		}
		return &cm, nil
	}
	return nil, err
}

// Pay marks a pending commission as paid to the instructor.
func (c *CommissionCalculator) Pay(ctx context.Context, id string) (Commission, error) {
	var cm Commission
	err := c.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if cm, err = c.repo.GetCommissionForUpdate(ctx, id); err != nil {
			return err
		}
		if cm.Status != CommissionPending {
			return core.NewInvalidTransitionError("commission", string(cm.Status), string(CommissionPaid))
		}
		now := c.clock.Now().UTC()
		cm.Status = CommissionPaid
		cm.PaidAt = &now
		cm.UpdatedAt = now
		cm, err = c.repo.UpdateCommission(ctx, cm)
		return err
	})
	if err != nil {
		return Commission{}, err
	}
	return cm, nil
}

func (c *CommissionCalculator) Get(ctx context.Context, id string) (Commission, error) {
	return c.repo.GetCommission(ctx, id)
}

func (c *CommissionCalculator) Query(ctx context.Context, filter *CommissionFilter) ([]Commission, error) {
	cms, err := c.repo.QueryCommissions(ctx, filter)
	return cms, errors.Wrap(err, "querying commissions")
}
