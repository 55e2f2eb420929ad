package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/murilobento/studiofisiopilates-sub000/core"
	"github.com/murilobento/studiofisiopilates-sub000/core/billing"
	"github.com/murilobento/studiofisiopilates-sub000/core/finance"
	"github.com/murilobento/studiofisiopilates-sub000/core/student"
	"github.com/murilobento/studiofisiopilates-sub000/core/user"
	"github.com/murilobento/studiofisiopilates-sub000/tests"
)

var jan15 = time.Date(2024, time.January, 15, 10, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal { return testutil.Rate(s) }

func assertMoney(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), append([]interface{}{"want %s, got %s", want, got.String()}, msgAndArgs...)...)
}

func TestNewPeriod(t *testing.T) {
	tests := []struct {
		month, year int
		wantErr     bool
		wantDue     time.Time
	}{
		{1, 2024, false, time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC)},
		{2, 2024, false, time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC)},
		{2, 2023, false, time.Date(2023, time.February, 28, 0, 0, 0, 0, time.UTC)},
		{12, 2024, false, time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC)},
		{0, 2024, true, time.Time{}},
		{13, 2024, true, time.Time{}},
		{6, 1999, true, time.Time{}},
	}
	for _, tt := range tests {
		p, err := billing.NewPeriod(tt.month, tt.year)
		if tt.wantErr {
			assert.IsType(t, &core.ValidationError{}, err)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.wantDue, p.DueDate())
		assert.Equal(t, 1, p.ReferenceMonth().Day())
	}
}

func TestEnsureCurrentPeriod(t *testing.T) {
	clock := core.FixedClock(jan15)
	assert.NoError(t, billing.EnsureCurrentPeriod(clock, billing.Period{Month: time.January, Year: 2024}))
	assert.Equal(t, billing.ErrNotCurrentPeriod, billing.EnsureCurrentPeriod(clock, billing.Period{Month: time.February, Year: 2024}))
	assert.Equal(t, billing.ErrNotCurrentPeriod, billing.EnsureCurrentPeriod(clock, billing.Period{Month: time.January, Year: 2023}))
}

func TestPayment_EffectiveStatus(t *testing.T) {
	due := time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		status billing.Status
		now    time.Time
		want   billing.Status
	}{
		{"before due date", billing.StatusPending, jan15, billing.StatusPending},
		{"on due date", billing.StatusPending, time.Date(2024, time.January, 31, 23, 59, 0, 0, time.UTC), billing.StatusPending},
		{"day after due date", billing.StatusPending, time.Date(2024, time.February, 1, 0, 1, 0, 0, time.UTC), billing.StatusOverdue},
		{"paid late", billing.StatusPaid, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), billing.StatusPaid},
		{"cancelled late", billing.StatusCancelled, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), billing.StatusCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pay := billing.Payment{Status: tt.status, DueDate: due}
			assert.Equal(t, tt.want, pay.EffectiveStatus(tt.now))
			assert.Equal(t, tt.want, billing.NewView(pay, tt.now).Status)
		})
	}
}

func TestCommissionAmount(t *testing.T) {
	tests := []struct {
		amount, rate, want string
	}{
		{"100", "20", "20.00"},
		{"200", "0", "0"},
		{"150.55", "12.5", "18.82"},
		{"99.99", "33.33", "33.33"},
	}
	for _, tt := range tests {
		assertMoney(t, tt.want, billing.CommissionAmount(dec(tt.amount), dec(tt.rate)))
	}
}

type fixture struct {
	env        *testutil.Env
	instructor user.User
	plan       student.Plan
}

func setup(t *testing.T, now time.Time) fixture {
	env := testutil.NewEnv(t, now)
	return fixture{
		env:        env,
		instructor: testutil.CreateUser(t, env.Repos.Users, "Ana", "ana", "ana@studio.com", "", user.RoleInstructor, true, decPtr("20")),
		plan:       testutil.CreatePlan(t, env.Repos.Students, "Monthly", "200"),
	}
}

func (f fixture) student(t *testing.T, name string) student.Student {
	return testutil.CreateStudent(t, f.env.Repos.Students, name, f.plan.ID, f.instructor.ID, student.StatusActive, nil)
}

func (f fixture) payment(t *testing.T, st student.Student) billing.View {
	view, err := f.env.Payments.Create(context.Background(), billing.NewPayment{StudentID: st.ID, Month: 1, Year: 2024})
	require.NoError(t, err)
	return view
}

func (f fixture) ledger(t *testing.T, reference string) []finance.Transaction {
	txs, err := f.env.Finance.Transactions(context.Background(), &finance.TransactionFilter{Reference: reference})
	require.NoError(t, err)
	return txs
}

func TestGenerator_Generate(t *testing.T) {
	ctx := context.Background()
	f := setup(t, jan15)
	period := billing.Period{Month: time.January, Year: 2024}

	s1 := f.student(t, "S1")
	s2 := testutil.CreateStudent(t, f.env.Repos.Students, "S2", f.plan.ID, "", student.StatusActive, decPtr("150.5"))
	testutil.CreateStudent(t, f.env.Repos.Students, "Gone", f.plan.ID, "", student.StatusInactive, nil)

	res, err := f.env.Generator.Generate(ctx, period)
	require.NoError(t, err)
	assert.Len(t, res.Created, 2)
	assert.Zero(t, res.AlreadyExists)
	assert.Equal(t, 2, res.TotalStudents)

	byStudent := make(map[string]billing.Payment)
	for _, pay := range res.Created {
		byStudent[pay.StudentID] = pay
		assert.Equal(t, billing.StatusPending, pay.Status)
		assert.Equal(t, period.ReferenceMonth(), pay.ReferenceMonth)
		assert.Equal(t, period.DueDate(), pay.DueDate)
		assert.Equal(t, f.plan.ID, pay.PlanID)
	}
	assertMoney(t, "200", byStudent[s1.ID].Amount)
	assert.Equal(t, f.instructor.ID, byStudent[s1.ID].InstructorID)
	assertMoney(t, "150.5", byStudent[s2.ID].Amount, "custom price")

	// running again bills nobody twice
	res, err = f.env.Generator.Generate(ctx, period)
	require.NoError(t, err)
	assert.Empty(t, res.Created)
	assert.Equal(t, 2, res.AlreadyExists)

	// a newly activated student is billed on the next run
	s3 := f.student(t, "S3")
	report, err := f.env.Generator.CheckExisting(ctx, period)
	require.NoError(t, err)
	assert.True(t, report.HasExisting)
	assert.Equal(t, 2, report.ExistingCount)
	assert.Equal(t, 3, report.TotalStudents)
	assert.Equal(t, 1, report.NewStudents)

	res, err = f.env.Generator.Generate(ctx, period)
	require.NoError(t, err)
	require.Len(t, res.Created, 1)
	assert.Equal(t, s3.ID, res.Created[0].StudentID)
	assert.Equal(t, 2, res.AlreadyExists)
}

// retiredPlans hides some plans, as if they were removed after students subscribed.
type retiredPlans struct {
	*student.Service
	retired map[string]bool
}

func (r retiredPlans) GetPlan(ctx context.Context, id string) (student.Plan, error) {
	if r.retired[id] {
		return student.Plan{}, student.ErrPlanNotFound
	}
	return r.Service.GetPlan(ctx, id)
}

func TestGenerator_Generate_missingPlan(t *testing.T) {
	ctx := context.Background()
	f := setup(t, jan15)
	f.student(t, "S1")
	oldPlan := testutil.CreatePlan(t, f.env.Repos.Students, "Old", "90")
	orphan := testutil.CreateStudent(t, f.env.Repos.Students, "Orphan", oldPlan.ID, "", student.StatusActive, nil)

	students := retiredPlans{Service: f.env.Students, retired: map[string]bool{oldPlan.ID: true}}
	gen := billing.NewGenerator(f.env.Repos.Billing, f.env.Repos.Tx, students, f.env.Clock, f.env.Logger)

	res, err := gen.Generate(ctx, billing.Period{Month: time.January, Year: 2024})
	require.NoError(t, err)
	assert.Len(t, res.Created, 1)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, orphan.ID, res.Skipped[0].StudentID)
}

func TestService_Create_duplicate(t *testing.T) {
	ctx := context.Background()
	f := setup(t, jan15)
	st := f.student(t, "S1")
	f.payment(t, st)

	_, err := f.env.Payments.Create(ctx, billing.NewPayment{StudentID: st.ID, Month: 1, Year: 2024})
	assert.Equal(t, billing.ErrPaymentExists, errors.Cause(err))

	_, err = f.env.Payments.Create(ctx, billing.NewPayment{StudentID: "missing", Month: 1, Year: 2024})
	assert.IsType(t, &core.ValidationError{}, errors.Cause(err))
}

func TestService_Process(t *testing.T) {
	ctx := context.Background()
	f := setup(t, jan15)
	st := f.student(t, "S1")
	_, err := f.env.Students.Update(ctx, st, student.UpdateStudent{Email: "s1@mail.com"})
	require.NoError(t, err)
	view := f.payment(t, st)

	conf, err := f.env.Payments.Process(ctx, view.ID, billing.ProcessPayment{
		PaymentMethod: "pix",
		Discount:      decPtr("20"),
		LateFee:       decPtr("5"),
		Interest:      decPtr("1.5"),
	})
	require.NoError(t, err)
	assert.Empty(t, conf.HookErrors)

	pay := conf.Payment
	assert.Equal(t, billing.StatusPaid, pay.Status)
	assertMoney(t, "186.5", pay.Amount)
	assertMoney(t, "200", pay.OriginalAmount)
	require.NotNil(t, pay.PaidAt)
	assert.Equal(t, jan15, *pay.PaidAt)
	assert.Equal(t, "pix", pay.PaymentMethod)

	txs := f.ledger(t, billing.PaymentReference(pay.ID))
	require.Len(t, txs, 2)
	byType := map[finance.Type]finance.Transaction{}
	for _, tx := range txs {
		byType[tx.Type] = tx
	}
	assertMoney(t, "186.5", byType[finance.TypeIncome].Amount)
	assertMoney(t, "37.30", byType[finance.TypeCommission].Amount)

	cm, err := f.env.Commissions.Query(ctx, &billing.CommissionFilter{PaymentID: pay.ID})
	require.NoError(t, err)
	require.Len(t, cm, 1)
	assert.Equal(t, f.instructor.ID, cm[0].InstructorID)
	assertMoney(t, "20", cm[0].Rate)
	assert.Equal(t, billing.CommissionPending, cm[0].Status)

	sent := f.env.Mailer.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "s1@mail.com", sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, "186.50")

	_, err = f.env.Payments.Process(ctx, view.ID, billing.ProcessPayment{PaymentMethod: "cash"})
	assert.True(t, core.IsInvalidTransition(err))
}

func TestService_Process_discountTooHigh(t *testing.T) {
	ctx := context.Background()
	f := setup(t, jan15)
	view := f.payment(t, f.student(t, "S1"))

	_, err := f.env.Payments.Process(ctx, view.ID, billing.ProcessPayment{PaymentMethod: "cash", Discount: decPtr("250")})
	assert.Equal(t, billing.ErrNegativeAmount, errors.Cause(err))

	got, err := f.env.Payments.Get(ctx, view.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.StatusPending, got.Status)
	assert.Empty(t, f.ledger(t, billing.PaymentReference(view.ID)))
}

func TestService_Process_paymentMethodRequired(t *testing.T) {
	ctx := context.Background()
	f := setup(t, jan15)
	view := f.payment(t, f.student(t, "S1"))

	for _, method := range []string{"", "   "} {
		_, err := f.env.Payments.Process(ctx, view.ID, billing.ProcessPayment{PaymentMethod: method})
		assert.Equal(t, billing.ErrPaymentMethodRequired, errors.Cause(err))
	}

	got, err := f.env.Payments.Get(ctx, view.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.StatusPending, got.Status)
	assert.Empty(t, got.PaymentMethod)
	assert.Empty(t, f.ledger(t, billing.PaymentReference(view.ID)))
}

type failingHook struct{}

func (failingHook) Name() string { return "failing" }

func (failingHook) AfterPaid(context.Context, billing.Payment) error {
	return errors.New("mail server down")
}

func TestService_Process_hookFailureKeepsPayment(t *testing.T) {
	ctx := context.Background()
	f := setup(t, jan15)
	view := f.payment(t, f.student(t, "S1"))

	repos := f.env.Repos
	svc := billing.NewService(repos.Billing, repos.Tx, f.env.Finance, f.env.Students, f.env.Clock, f.env.Logger, failingHook{}, f.env.Commissions)

	conf, err := svc.Process(ctx, view.ID, billing.ProcessPayment{PaymentMethod: "cash"})
	require.NoError(t, err)
	require.Len(t, conf.HookErrors, 1)
	assert.Equal(t, "failing", conf.HookErrors[0].Hook)
	assert.Equal(t, billing.StatusPaid, conf.Payment.Status)

	// later hooks still ran
	_, err = repos.Billing.GetCommissionByPayment(ctx, view.ID)
	assert.NoError(t, err)
}

func TestService_UndoPayment(t *testing.T) {
	ctx := context.Background()
	f := setup(t, jan15)
	view := f.payment(t, f.student(t, "S1"))

	_, err := f.env.Payments.Process(ctx, view.ID, billing.ProcessPayment{PaymentMethod: "cash", Discount: decPtr("10")})
	require.NoError(t, err)

	undone, err := f.env.Payments.UndoPayment(ctx, view.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.StatusPending, undone.Status)
	assert.Nil(t, undone.PaidAt)
	assert.Empty(t, undone.PaymentMethod)
	assertMoney(t, "200", undone.Amount)
	assert.True(t, undone.Discount.IsZero())

	var income decimal.Decimal
	for _, tx := range f.ledger(t, billing.PaymentReference(view.ID)) {
		if tx.Type == finance.TypeIncome {
			income = income.Add(tx.Amount)
		}
	}
	assert.True(t, income.IsZero(), "income is reversed, got %s", income)

	_, err = f.env.Payments.UndoPayment(ctx, view.ID)
	assert.True(t, core.IsInvalidTransition(err))
}

func TestService_Cancel(t *testing.T) {
	ctx := context.Background()
	f := setup(t, jan15)

	t.Run("pending", func(t *testing.T) {
		view := f.payment(t, f.student(t, "Pending"))
		cancelled, err := f.env.Payments.Cancel(ctx, view.ID, billing.CancelPayment{Reason: "moved away"})
		require.NoError(t, err)
		assert.Equal(t, billing.StatusCancelled, cancelled.Status)
		assert.Contains(t, cancelled.Notes, "moved away")

		_, err = f.env.Payments.Cancel(ctx, view.ID, billing.CancelPayment{})
		assert.True(t, core.IsInvalidTransition(err))

		_, err = f.env.Payments.Process(ctx, view.ID, billing.ProcessPayment{PaymentMethod: "cash"})
		assert.True(t, core.IsInvalidTransition(err))
		got, err := f.env.Payments.Get(ctx, view.ID)
		require.NoError(t, err)
		assert.Equal(t, billing.StatusCancelled, got.Status)
		assert.Nil(t, got.PaidAt)
		assert.Empty(t, got.PaymentMethod)
		assert.Equal(t, cancelled.UpdatedAt, got.UpdatedAt)
		assertMoney(t, "200", got.Amount)
		assert.Empty(t, f.ledger(t, billing.PaymentReference(view.ID)))
		assert.Empty(t, f.env.Mailer.SentMessages())

		restored, err := f.env.Payments.UndoCancel(ctx, view.ID)
		require.NoError(t, err)
		assert.Equal(t, billing.StatusPending, restored.Status)

		_, err = f.env.Payments.UndoCancel(ctx, view.ID)
		assert.True(t, core.IsInvalidTransition(err))
	})

	t.Run("paid", func(t *testing.T) {
		view := f.payment(t, f.student(t, "Paid"))
		_, err := f.env.Payments.Process(ctx, view.ID, billing.ProcessPayment{PaymentMethod: "cash"})
		require.NoError(t, err)

		_, err = f.env.Payments.Cancel(ctx, view.ID, billing.CancelPayment{})
		assert.True(t, core.IsInvalidTransition(err))

		cancelled, err := f.env.Payments.Cancel(ctx, view.ID, billing.CancelPayment{Force: true})
		require.NoError(t, err)
		assert.Equal(t, billing.StatusCancelled, cancelled.Status)
		assert.Nil(t, cancelled.PaidAt)

		var income decimal.Decimal
		for _, tx := range f.ledger(t, billing.PaymentReference(view.ID)) {
			if tx.Type == finance.TypeIncome {
				income = income.Add(tx.Amount)
			}
		}
		assert.True(t, income.IsZero())
	})
}

func TestService_Query_overdue(t *testing.T) {
	ctx := context.Background()
	f := setup(t, jan15)
	overdue := f.payment(t, f.student(t, "Late"))
	paid := f.payment(t, f.student(t, "OnTime"))
	_, err := f.env.Payments.Process(ctx, paid.ID, billing.ProcessPayment{PaymentMethod: "cash"})
	require.NoError(t, err)

	f.env.Clock.Set(time.Date(2024, time.February, 2, 9, 0, 0, 0, time.UTC))

	views, err := f.env.Payments.Query(ctx, &billing.PaymentFilter{Statuses: []billing.Status{billing.StatusOverdue}})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, overdue.ID, views[0].ID)
	assert.Equal(t, billing.StatusOverdue, views[0].Status)

	views, err = f.env.Payments.Query(ctx, &billing.PaymentFilter{Statuses: []billing.Status{billing.StatusPending}})
	require.NoError(t, err)
	assert.Empty(t, views, "overdue payments are not listed as pending")

	// the stored status is unchanged; paying an overdue payment is allowed
	_, err = f.env.Payments.Process(ctx, overdue.ID, billing.ProcessPayment{PaymentMethod: "cash"})
	assert.NoError(t, err)
}

func TestService_ProcessBatch(t *testing.T) {
	ctx := context.Background()
	f := setup(t, jan15)
	p1 := f.payment(t, f.student(t, "S1"))
	p2 := f.payment(t, f.student(t, "S2"))

	res := f.env.Payments.ProcessBatch(ctx, []string{p1.ID, "missing", p2.ID}, billing.ProcessPayment{PaymentMethod: "cash"})
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "missing", res.Failures[0].PaymentID)
}

func TestCommissionCalculator(t *testing.T) {
	ctx := context.Background()
	f := setup(t, jan15)
	users := f.env.Repos.Users

	paid := func(t *testing.T, instructorID string) billing.Payment {
		st := testutil.CreateStudent(t, f.env.Repos.Students, "S", f.plan.ID, instructorID, student.StatusActive, decPtr("100"))
		view := f.payment(t, st)
		pay := view.Payment
		now := jan15
		pay.Status = billing.StatusPaid
		pay.PaidAt = &now
		return pay
	}

	t.Run("rate of 20 percent", func(t *testing.T) {
		cm, err := f.env.Commissions.Calculate(ctx, paid(t, f.instructor.ID))
		require.NoError(t, err)
		require.NotNil(t, cm)
		assertMoney(t, "20.00", cm.Amount)
	})

	t.Run("no commission rate", func(t *testing.T) {
		noRate := testutil.CreateUser(t, users, "Bia", "bia", "bia@studio.com", "", user.RoleInstructor, true, nil)
		cm, err := f.env.Commissions.Calculate(ctx, paid(t, noRate.ID))
		require.NoError(t, err)
		assert.Nil(t, cm)
	})

	t.Run("inactive instructor still earns", func(t *testing.T) {
		inactive := testutil.CreateUser(t, users, "Cris", "cris", "cris@studio.com", "", user.RoleInstructor, false, decPtr("10"))
		cm, err := f.env.Commissions.Calculate(ctx, paid(t, inactive.ID))
		require.NoError(t, err)
		require.NotNil(t, cm)
		assertMoney(t, "10", cm.Amount)
	})

	t.Run("unknown instructor", func(t *testing.T) {
		cm, err := f.env.Commissions.Calculate(ctx, paid(t, "ghost"))
		require.NoError(t, err)
		assert.Nil(t, cm)
	})

	t.Run("pending payment", func(t *testing.T) {
		pay := paid(t, f.instructor.ID)
		pay.Status = billing.StatusPending
		_, err := f.env.Commissions.Calculate(ctx, pay)
		assert.Equal(t, billing.ErrPaymentNotPaid, err)
	})

	t.Run("once per payment", func(t *testing.T) {
		pay := paid(t, f.instructor.ID)
		first, err := f.env.Commissions.Calculate(ctx, pay)
		require.NoError(t, err)
		second, err := f.env.Commissions.Calculate(ctx, pay)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Len(t, f.ledger(t, billing.PaymentReference(pay.ID)), 1)
	})

	t.Run("pay", func(t *testing.T) {
		cm, err := f.env.Commissions.Calculate(ctx, paid(t, f.instructor.ID))
		require.NoError(t, err)

		got, err := f.env.Commissions.Pay(ctx, cm.ID)
		require.NoError(t, err)
		assert.Equal(t, billing.CommissionPaid, got.Status)
		require.NotNil(t, got.PaidAt)

		_, err = f.env.Commissions.Pay(ctx, cm.ID)
		assert.True(t, core.IsInvalidTransition(err))
	})
}
