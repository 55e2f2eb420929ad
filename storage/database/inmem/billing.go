package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/murilobento/studiofisiopilates-sub000/core/billing"
)

type billingRepository struct {
	db *DB
}

var _ billing.Repository = (*billingRepository)(nil)

func NewBillingRepository(db *DB) *billingRepository {
	return &billingRepository{db: db}
}

func (repo *billingRepository) CreatePayment(ctx context.Context, pay billing.Payment) (billing.Payment, error) {
	err := repo.db.write(ctx, func(t *tables) error {
		// same rule as the unique (student_id, reference_month) index
		for _, p := range t.payments {
			if p.StudentID == pay.StudentID && p.ReferenceMonth.Equal(pay.ReferenceMonth) {
				return billing.ErrPaymentExists
			}
		}
		pay.ID = newID()
		t.payments[pay.ID] = pay
		return nil
	})
	if err != nil {
		return billing.Payment{}, err
	}
	return pay, nil
}

func (repo *billingRepository) GetPayment(ctx context.Context, id string) (billing.Payment, error) {
	var (
		pay   billing.Payment
		found bool
	)
	repo.db.read(ctx, func(t *tables) { pay, found = t.payments[id] })
	if !found {
		return billing.Payment{}, billing.ErrPaymentNotFound
	}
	return pay, nil
}

func (repo *billingRepository) GetPaymentForUpdate(ctx context.Context, id string) (billing.Payment, error) {
	return repo.GetPayment(ctx, id)
}

func (repo *billingRepository) FindPayment(ctx context.Context, studentID string, referenceMonth time.Time) (billing.Payment, error) {
	var (
		pay   billing.Payment
		found bool
	)
	repo.db.read(ctx, func(t *tables) {
		for _, p := range t.payments {
			if p.StudentID == studentID && p.ReferenceMonth.Equal(referenceMonth) {
				pay, found = p, true
				return
			}
		}
	})
	if !found {
		return billing.Payment{}, billing.ErrPaymentNotFound
	}
	return pay, nil
}

func (repo *billingRepository) BilledStudentIDs(ctx context.Context, referenceMonth time.Time) ([]string, error) {
	ids := make([]string, 0)
	repo.db.read(ctx, func(t *tables) {
		for _, p := range t.payments {
			if p.ReferenceMonth.Equal(referenceMonth) {
				ids = append(ids, p.StudentID)
			}
		}
	})
	sort.Strings(ids)
	return ids, nil
}

func (repo *billingRepository) QueryPayments(ctx context.Context, filter *billing.PaymentFilter) ([]billing.Payment, error) {
	payments := make([]billing.Payment, 0)
	repo.db.read(ctx, func(t *tables) {
		for _, p := range t.payments {
			if filter != nil {
				if filter.StudentID != "" && p.StudentID != filter.StudentID {
					continue
				}
				if filter.InstructorID != "" && p.InstructorID != filter.InstructorID {
					continue
				}
				if !filter.ReferenceMonth.IsZero() && !p.ReferenceMonth.Equal(filter.ReferenceMonth) {
					continue
				}
				if len(filter.Statuses) > 0 && !hasStatus(filter.Statuses, p.Status) {
					continue
				}
			}
			payments = append(payments, p)
		}
	})
	sort.Slice(payments, func(i, j int) bool {
		a, b := payments[i], payments[j]
		if !a.ReferenceMonth.Equal(b.ReferenceMonth) {
			return a.ReferenceMonth.After(b.ReferenceMonth)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return payments, nil
}

func hasStatus(statuses []billing.Status, st billing.Status) bool {
	for _, s := range statuses {
		if s == st {
			return true
		}
	}
	return false
}

func (repo *billingRepository) UpdatePayment(ctx context.Context, pay billing.Payment) (billing.Payment, error) {
	err := repo.db.write(ctx, func(t *tables) error {
		if _, ok := t.payments[pay.ID]; !ok {
			return billing.ErrPaymentNotFound
		}
		t.payments[pay.ID] = pay
		return nil
	})
	if err != nil {
		return billing.Payment{}, err
	}
	return pay, nil
}

func (repo *billingRepository) CreateCommission(ctx context.Context, cm billing.Commission) (billing.Commission, error) {
	err := repo.db.write(ctx, func(t *tables) error {
		for _, c := range t.commissions {
			if c.PaymentID == cm.PaymentID {
				return billing.ErrCommissionExists
			}
		}
		cm.ID = newID()
		t.commissions[cm.ID] = cm
		return nil
	})
	if err != nil {
		return billing.Commission{}, err
	}
	return cm, nil
}

func (repo *billingRepository) GetCommission(ctx context.Context, id string) (billing.Commission, error) {
	var (
		cm    billing.Commission
		found bool
	)
	repo.db.read(ctx, func(t *tables) { cm, found = t.commissions[id] })
	if !found {
		return billing.Commission{}, billing.ErrCommissionNotFound
	}
	return cm, nil
}

func (repo *billingRepository) GetCommissionForUpdate(ctx context.Context, id string) (billing.Commission, error) {
	return repo.GetCommission(ctx, id)
}

func (repo *billingRepository) GetCommissionByPayment(ctx context.Context, paymentID string) (billing.Commission, error) {
	var (
		cm    billing.Commission
		found bool
	)
	repo.db.read(ctx, func(t *tables) {
		for _, c := range t.commissions {
			if c.PaymentID == paymentID {
				cm, found = c, true
				return
			}
		}
	})
	if !found {
		return billing.Commission{}, billing.ErrCommissionNotFound
	}
	return cm, nil
}

func (repo *billingRepository) QueryCommissions(ctx context.Context, filter *billing.CommissionFilter) ([]billing.Commission, error) {
	cms := make([]billing.Commission, 0)
	repo.db.read(ctx, func(t *tables) {
		for _, c := range t.commissions {
			if filter != nil {
				if filter.InstructorID != "" && c.InstructorID != filter.InstructorID {
					continue
				}
				if filter.PaymentID != "" && c.PaymentID != filter.PaymentID {
					continue
				}
				if filter.Status != "" && c.Status != filter.Status {
					continue
				}
			}
			cms = append(cms, c)
		}
	})
	sort.Slice(cms, func(i, j int) bool {
		if !cms[i].CreatedAt.Equal(cms[j].CreatedAt) {
			return cms[i].CreatedAt.After(cms[j].CreatedAt)
		}
		return cms[i].ID < cms[j].ID
	})
	return cms, nil
}

func (repo *billingRepository) UpdateCommission(ctx context.Context, cm billing.Commission) (billing.Commission, error) {
	err := repo.db.write(ctx, func(t *tables) error {
		if _, ok := t.commissions[cm.ID]; !ok {
			return billing.ErrCommissionNotFound
		}
		t.commissions[cm.ID] = cm
		return nil
	})
	if err != nil {
		return billing.Commission{}, err
	}
	return cm, nil
}
