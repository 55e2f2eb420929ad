package inmemdb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/murilobento/studiofisiopilates-sub000/core/billing"
	"github.com/murilobento/studiofisiopilates-sub000/core/student"
)

var jan = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

func TestDB_WithinTx_rollback(t *testing.T) {
	ctx := context.Background()
	db := Open()
	students := NewStudentRepository(db)

	boom := errors.New("boom")
	err := db.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := students.CreatePlan(ctx, student.Plan{Name: "Monthly", Price: decimal.NewFromInt(200)}); err != nil {
			return err
		}
		// nested calls join the transaction
		return db.WithinTx(ctx, func(ctx context.Context) error {
			plans, err := students.QueryPlans(ctx)
			require.NoError(t, err)
			assert.Len(t, plans, 1)
			return boom
		})
	})
	assert.Equal(t, boom, err)

	plans, err := students.QueryPlans(ctx)
	require.NoError(t, err)
	assert.Empty(t, plans)
}

func TestDB_WithinTx_panicRollsBack(t *testing.T) {
	ctx := context.Background()
	db := Open()
	students := NewStudentRepository(db)

	assert.Panics(t, func() {
		_ = db.WithinTx(ctx, func(ctx context.Context) error {
			_, _ = students.CreatePlan(ctx, student.Plan{Name: "Monthly"})
			panic("unexpected")
		})
	})
	plans, err := students.QueryPlans(ctx)
	require.NoError(t, err)
	assert.Empty(t, plans)
}

func TestDB_WithinTx_commit(t *testing.T) {
	ctx := context.Background()
	db := Open()
	students := NewStudentRepository(db)

	err := db.WithinTx(ctx, func(ctx context.Context) error {
		_, err := students.CreatePlan(ctx, student.Plan{Name: "Monthly"})
		return err
	})
	require.NoError(t, err)

	plans, err := students.QueryPlans(ctx)
	require.NoError(t, err)
	assert.Len(t, plans, 1)

	db.Reset()
	plans, err = students.QueryPlans(ctx)
	require.NoError(t, err)
	assert.Empty(t, plans)
}

func TestBillingRepository_uniquePayment(t *testing.T) {
	ctx := context.Background()
	repo := NewBillingRepository(Open())

	pay := billing.Payment{StudentID: "s1", ReferenceMonth: jan, Status: billing.StatusPending}
	created, err := repo.CreatePayment(ctx, pay)
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	_, err = repo.CreatePayment(ctx, pay)
	assert.Equal(t, billing.ErrPaymentExists, err)

	found, err := repo.FindPayment(ctx, "s1", jan)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	_, err = repo.FindPayment(ctx, "s1", jan.AddDate(0, 1, 0))
	assert.Equal(t, billing.ErrPaymentNotFound, err)

	ids, err := repo.BilledStudentIDs(ctx, jan)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, ids)
}

func TestBillingRepository_uniqueCommission(t *testing.T) {
	ctx := context.Background()
	repo := NewBillingRepository(Open())

	_, err := repo.CreateCommission(ctx, billing.Commission{PaymentID: "p1", InstructorID: "i1"})
	require.NoError(t, err)
	_, err = repo.CreateCommission(ctx, billing.Commission{PaymentID: "p1", InstructorID: "i1"})
	assert.Equal(t, billing.ErrCommissionExists, err)
}
