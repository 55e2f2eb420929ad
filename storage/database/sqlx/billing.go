package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/murilobento/studiofisiopilates-sub000/core/billing"
)

const (
	paymentColumns = `id, student_id, plan_id, instructor_id, reference_month, original_amount, discount, late_fee,
		interest, amount, due_date, status, paid_at, payment_method, notes, created_at, updated_at`
	commissionColumns = `id, instructor_id, monthly_payment_id, rate, amount, status, paid_at, created_at, updated_at`

	paymentStudentMonthIdx = "monthly_payments_student_month_idx"
	commissionPaymentKey   = "commissions_monthly_payment_id_key"
)

type paymentRow struct {
	ID             string          `db:"id"`
	StudentID      string          `db:"student_id"`
	PlanID         string          `db:"plan_id"`
	InstructorID   null.String     `db:"instructor_id"`
	ReferenceMonth time.Time       `db:"reference_month"`
	OriginalAmount decimal.Decimal `db:"original_amount"`
	Discount       decimal.Decimal `db:"discount"`
	LateFee        decimal.Decimal `db:"late_fee"`
	Interest       decimal.Decimal `db:"interest"`
	Amount         decimal.Decimal `db:"amount"`
	DueDate        time.Time       `db:"due_date"`
	Status         string          `db:"status"`
	PaidAt         null.Time       `db:"paid_at"`
	PaymentMethod  null.String     `db:"payment_method"`
	Notes          string          `db:"notes"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

func (row paymentRow) payment() billing.Payment {
	pay := billing.Payment{
		ID:             row.ID,
		StudentID:      row.StudentID,
		PlanID:         row.PlanID,
		InstructorID:   row.InstructorID.String,
		ReferenceMonth: dateOf(row.ReferenceMonth),
		OriginalAmount: row.OriginalAmount,
		Discount:       row.Discount,
		LateFee:        row.LateFee,
		Interest:       row.Interest,
		Amount:         row.Amount,
		DueDate:        dateOf(row.DueDate),
		Status:         billing.Status(row.Status),
		PaymentMethod:  row.PaymentMethod.String,
		Notes:          row.Notes,
		CreatedAt:      row.CreatedAt.UTC(),
		UpdatedAt:      row.UpdatedAt.UTC(),
	}
	if row.PaidAt.Valid {
		paidAt := row.PaidAt.Time.UTC()
		pay.PaidAt = &paidAt
	}
	return pay
}

// paymentArgs binds the date columns as calendar days.
func paymentArgs(pay billing.Payment) map[string]interface{} {
	return map[string]interface{}{
		"id":              pay.ID,
		"student_id":      pay.StudentID,
		"plan_id":         pay.PlanID,
		"instructor_id":   null.NewString(pay.InstructorID, pay.InstructorID != ""),
		"reference_month": dateArg(pay.ReferenceMonth),
		"original_amount": pay.OriginalAmount,
		"discount":        pay.Discount,
		"late_fee":        pay.LateFee,
		"interest":        pay.Interest,
		"amount":          pay.Amount,
		"due_date":        dateArg(pay.DueDate),
		"status":          string(pay.Status),
		"paid_at":         null.TimeFromPtr(pay.PaidAt),
		"payment_method":  null.NewString(pay.PaymentMethod, pay.PaymentMethod != ""),
		"notes":           pay.Notes,
		"created_at":      pay.CreatedAt.UTC(),
		"updated_at":      pay.UpdatedAt.UTC(),
	}
}

type commissionRow struct {
	ID           string          `db:"id"`
	InstructorID string          `db:"instructor_id"`
	PaymentID    string          `db:"monthly_payment_id"`
	Rate         decimal.Decimal `db:"rate"`
	Amount       decimal.Decimal `db:"amount"`
	Status       string          `db:"status"`
	PaidAt       null.Time       `db:"paid_at"`
	CreatedAt    time.Time       `db:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"`
}

func toCommissionRow(cm billing.Commission) commissionRow {
	return commissionRow{
		ID:           cm.ID,
		InstructorID: cm.InstructorID,
		PaymentID:    cm.PaymentID,
		Rate:         cm.Rate,
		Amount:       cm.Amount,
		Status:       string(cm.Status),
		PaidAt:       null.TimeFromPtr(cm.PaidAt),
		CreatedAt:    cm.CreatedAt.UTC(),
		UpdatedAt:    cm.UpdatedAt.UTC(),
	}
}

func (row commissionRow) commission() billing.Commission {
	cm := billing.Commission{
		ID:           row.ID,
		InstructorID: row.InstructorID,
		PaymentID:    row.PaymentID,
		Rate:         row.Rate,
		Amount:       row.Amount,
		Status:       billing.CommissionStatus(row.Status),
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
	if row.PaidAt.Valid {
		paidAt := row.PaidAt.Time.UTC()
		cm.PaidAt = &paidAt
	}
	return cm
}

type billingRepository struct {
	*Store
}

var _ billing.Repository = (*billingRepository)(nil)

func NewBillingRepository(s *Store) *billingRepository {
	return &billingRepository{Store: s}
}

func (repo *billingRepository) CreatePayment(ctx context.Context, pay billing.Payment) (billing.Payment, error) {
	pay.ID = uuid.New().String()
	_, err := sqlx.NamedExecContext(ctx, repo.ext(ctx), `
		INSERT INTO monthly_payments (`+paymentColumns+`)
		VALUES (:id, :student_id, :plan_id, :instructor_id, :reference_month, :original_amount, :discount, :late_fee,
			:interest, :amount, :due_date, :status, :paid_at, :payment_method, :notes, :created_at, :updated_at)`,
		paymentArgs(pay))
	if err != nil {
		if isUniqueViolation(err, paymentStudentMonthIdx) {
			return billing.Payment{}, billing.ErrPaymentExists
		}
		return billing.Payment{}, dbErr(err, nil, "inserting payment")
	}
	return pay, nil
}

func (repo *billingRepository) getPayment(ctx context.Context, id string, lock bool) (billing.Payment, error) {
	if !validID(id) {
		return billing.Payment{}, billing.ErrPaymentNotFound
	}
	q := "SELECT " + paymentColumns + " FROM monthly_payments WHERE id = $1 AND deleted_at IS NULL"
	if lock {
		q += " FOR UPDATE"
	}
	var row paymentRow
	if err := repo.ext(ctx).GetContext(ctx, &row, q, id); err != nil {
		return billing.Payment{}, dbErr(err, billing.ErrPaymentNotFound, "getting payment")
	}
	return row.payment(), nil
}

func (repo *billingRepository) GetPayment(ctx context.Context, id string) (billing.Payment, error) {
	return repo.getPayment(ctx, id, false)
}

func (repo *billingRepository) GetPaymentForUpdate(ctx context.Context, id string) (billing.Payment, error) {
	return repo.getPayment(ctx, id, true)
}

func (repo *billingRepository) FindPayment(ctx context.Context, studentID string, referenceMonth time.Time) (billing.Payment, error) {
	var row paymentRow
	err := repo.ext(ctx).GetContext(ctx, &row,
		"SELECT "+paymentColumns+" FROM monthly_payments WHERE student_id = $1 AND reference_month = $2 AND deleted_at IS NULL",
		studentID, dateArg(referenceMonth))
	if err != nil {
		return billing.Payment{}, dbErr(err, billing.ErrPaymentNotFound, "finding payment")
	}
	return row.payment(), nil
}

func (repo *billingRepository) BilledStudentIDs(ctx context.Context, referenceMonth time.Time) ([]string, error) {
	ids := make([]string, 0)
	err := repo.ext(ctx).SelectContext(ctx, &ids,
		"SELECT student_id FROM monthly_payments WHERE reference_month = $1 AND deleted_at IS NULL ORDER BY student_id",
		dateArg(referenceMonth))
	return ids, dbErr(err, nil, "listing billed students")
}

func (repo *billingRepository) QueryPayments(ctx context.Context, filter *billing.PaymentFilter) ([]billing.Payment, error) {
	var w where
	w.add("deleted_at IS NULL")
	if filter != nil {
		if filter.StudentID != "" {
			w.add("student_id = ?", filter.StudentID)
		}
		if filter.InstructorID != "" {
			w.add("instructor_id = ?", filter.InstructorID)
		}
		if !filter.ReferenceMonth.IsZero() {
			w.add("reference_month = ?", dateArg(filter.ReferenceMonth))
		}
		if len(filter.Statuses) > 0 {
			statuses := make([]string, 0, len(filter.Statuses))
			for _, st := range filter.Statuses {
				statuses = append(statuses, string(st))
			}
			w.add("status IN (?)", statuses)
		}
	}

	ext := repo.ext(ctx)
	q, args, err := bind(ext, "SELECT "+paymentColumns+" FROM monthly_payments"+w.String()+" ORDER BY reference_month DESC, created_at, id", w.args...)
	if err != nil {
		return nil, err
	}
	var rows []paymentRow
	if err = ext.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, dbErr(err, nil, "querying payments")
	}
	payments := make([]billing.Payment, 0, len(rows))
	for _, row := range rows {
		payments = append(payments, row.payment())
	}
	return payments, nil
}

func (repo *billingRepository) UpdatePayment(ctx context.Context, pay billing.Payment) (billing.Payment, error) {
	res, err := sqlx.NamedExecContext(ctx, repo.ext(ctx), `
		UPDATE monthly_payments SET
			original_amount = :original_amount, discount = :discount, late_fee = :late_fee, interest = :interest,
			amount = :amount, status = :status, paid_at = :paid_at, payment_method = :payment_method,
			notes = :notes, updated_at = :updated_at
		WHERE id = :id AND deleted_at IS NULL`,
		paymentArgs(pay))
	if err != nil {
		return billing.Payment{}, dbErr(err, nil, "updating payment")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return billing.Payment{}, billing.ErrPaymentNotFound
	}
	return pay, nil
}

func (repo *billingRepository) CreateCommission(ctx context.Context, cm billing.Commission) (billing.Commission, error) {
	cm.ID = uuid.New().String()
	row := toCommissionRow(cm)
	_, err := sqlx.NamedExecContext(ctx, repo.ext(ctx), `
		INSERT INTO commissions (`+commissionColumns+`)
		VALUES (:id, :instructor_id, :monthly_payment_id, :rate, :amount, :status, :paid_at, :created_at, :updated_at)`,
		row)
	if err != nil {
		if isUniqueViolation(err, commissionPaymentKey) {
			return billing.Commission{}, billing.ErrCommissionExists
		}
		return billing.Commission{}, dbErr(err, nil, "inserting commission")
	}
	return row.commission(), nil
}

func (repo *billingRepository) getCommission(ctx context.Context, col, val string, lock bool) (billing.Commission, error) {
	if !validID(val) {
		return billing.Commission{}, billing.ErrCommissionNotFound
	}
	q := "SELECT " + commissionColumns + " FROM commissions WHERE " + col + " = $1"
	if lock {
		q += " FOR UPDATE"
	}
	var row commissionRow
	if err := repo.ext(ctx).GetContext(ctx, &row, q, val); err != nil {
		return billing.Commission{}, dbErr(err, billing.ErrCommissionNotFound, "getting commission")
	}
	return row.commission(), nil
}

func (repo *billingRepository) GetCommission(ctx context.Context, id string) (billing.Commission, error) {
	return repo.getCommission(ctx, "id", id, false)
}

func (repo *billingRepository) GetCommissionForUpdate(ctx context.Context, id string) (billing.Commission, error) {
	return repo.getCommission(ctx, "id", id, true)
}

func (repo *billingRepository) GetCommissionByPayment(ctx context.Context, paymentID string) (billing.Commission, error) {
	return repo.getCommission(ctx, "monthly_payment_id", paymentID, false)
}

func (repo *billingRepository) QueryCommissions(ctx context.Context, filter *billing.CommissionFilter) ([]billing.Commission, error) {
	var w where
	if filter != nil {
		if filter.InstructorID != "" {
			w.add("instructor_id = ?", filter.InstructorID)
		}
		if filter.PaymentID != "" {
			w.add("monthly_payment_id = ?", filter.PaymentID)
		}
		if filter.Status != "" {
			w.add("status = ?", string(filter.Status))
		}
	}

	ext := repo.ext(ctx)
	q, args, err := bind(ext, "SELECT "+commissionColumns+" FROM commissions"+w.String()+" ORDER BY created_at DESC, id", w.args...)
	if err != nil {
		return nil, err
	}
	var rows []commissionRow
	if err = ext.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, dbErr(err, nil, "querying commissions")
	}
	cms := make([]billing.Commission, 0, len(rows))
	for _, row := range rows {
		cms = append(cms, row.commission())
	}
	return cms, nil
}

func (repo *billingRepository) UpdateCommission(ctx context.Context, cm billing.Commission) (billing.Commission, error) {
	row := toCommissionRow(cm)
	res, err := sqlx.NamedExecContext(ctx, repo.ext(ctx),
		"UPDATE commissions SET status = :status, paid_at = :paid_at, updated_at = :updated_at WHERE id = :id",
		row)
	if err != nil {
		return billing.Commission{}, dbErr(err, nil, "updating commission")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return billing.Commission{}, billing.ErrCommissionNotFound
	}
	return row.commission(), nil
}
