package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/murilobento/studiofisiopilates-sub000/core/student"
)

const (
	planColumns    = `id, name, description, price, is_active, created_at, updated_at`
	studentColumns = `id, name, email, phone, status, plan_id, custom_price, instructor_id, created_at, updated_at`
)

type planRow struct {
	ID          string          `db:"id"`
	Name        string          `db:"name"`
	Description string          `db:"description"`
	Price       decimal.Decimal `db:"price"`
	IsActive    bool            `db:"is_active"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

func (row planRow) plan() student.Plan {
	return student.Plan{
		ID:          row.ID,
		Name:        row.Name,
		Description: row.Description,
		Price:       row.Price,
		IsActive:    row.IsActive,
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
}

type studentRow struct {
	ID           string              `db:"id"`
	Name         string              `db:"name"`
	Email        null.String         `db:"email"`
	Phone        null.String         `db:"phone"`
	Status       string              `db:"status"`
	PlanID       string              `db:"plan_id"`
	CustomPrice  decimal.NullDecimal `db:"custom_price"`
	InstructorID null.String         `db:"instructor_id"`
	CreatedAt    time.Time           `db:"created_at"`
	UpdatedAt    time.Time           `db:"updated_at"`
}

func toStudentRow(st student.Student) studentRow {
	row := studentRow{
		ID:           st.ID,
		Name:         st.Name,
		Email:        null.NewString(st.Email, st.Email != ""),
		Phone:        null.NewString(st.Phone, st.Phone != ""),
		Status:       string(st.Status),
		PlanID:       st.PlanID,
		InstructorID: null.NewString(st.InstructorID, st.InstructorID != ""),
		CreatedAt:    st.CreatedAt.UTC(),
		UpdatedAt:    st.UpdatedAt.UTC(),
	}
	if st.CustomPrice != nil {
		row.CustomPrice = decimal.NullDecimal{Decimal: *st.CustomPrice, Valid: true}
	}
	return row
}

func (row studentRow) student() student.Student {
	st := student.Student{
		ID:           row.ID,
		Name:         row.Name,
		Email:        row.Email.String,
		Phone:        row.Phone.String,
		Status:       student.Status(row.Status),
		PlanID:       row.PlanID,
		InstructorID: row.InstructorID.String,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
	if row.CustomPrice.Valid {
		price := row.CustomPrice.Decimal
		st.CustomPrice = &price
	}
	return st
}

type studentRepository struct {
	*Store
}

var _ student.Repository = (*studentRepository)(nil)

func NewStudentRepository(s *Store) *studentRepository {
	return &studentRepository{Store: s}
}

func (repo *studentRepository) CreatePlan(ctx context.Context, plan student.Plan) (student.Plan, error) {
	plan.ID = uuid.New().String()
	row := planRow{
		ID:          plan.ID,
		Name:        plan.Name,
		Description: plan.Description,
		Price:       plan.Price,
		IsActive:    plan.IsActive,
		CreatedAt:   plan.CreatedAt.UTC(),
		UpdatedAt:   plan.UpdatedAt.UTC(),
	}
	_, err := sqlx.NamedExecContext(ctx, repo.ext(ctx), `
		INSERT INTO plans (`+planColumns+`)
		VALUES (:id, :name, :description, :price, :is_active, :created_at, :updated_at)`,
		row)
	if err != nil {
		return student.Plan{}, dbErr(err, nil, "inserting plan")
	}
	return row.plan(), nil
}

func (repo *studentRepository) GetPlan(ctx context.Context, id string) (student.Plan, error) {
	if !validID(id) {
		return student.Plan{}, student.ErrPlanNotFound
	}
	var row planRow
	err := repo.ext(ctx).GetContext(ctx, &row, "SELECT "+planColumns+" FROM plans WHERE id = $1", id)
	if err != nil {
		return student.Plan{}, dbErr(err, student.ErrPlanNotFound, "getting plan")
	}
	return row.plan(), nil
}

func (repo *studentRepository) QueryPlans(ctx context.Context) ([]student.Plan, error) {
	var rows []planRow
	if err := repo.ext(ctx).SelectContext(ctx, &rows, "SELECT "+planColumns+" FROM plans ORDER BY name, id"); err != nil {
		return nil, dbErr(err, nil, "querying plans")
	}
	plans := make([]student.Plan, 0, len(rows))
	for _, row := range rows {
		plans = append(plans, row.plan())
	}
	return plans, nil
}

func (repo *studentRepository) CreateStudent(ctx context.Context, st student.Student) (student.Student, error) {
	st.ID = uuid.New().String()
	row := toStudentRow(st)
	_, err := sqlx.NamedExecContext(ctx, repo.ext(ctx), `
		INSERT INTO students (`+studentColumns+`)
		VALUES (:id, :name, :email, :phone, :status, :plan_id, :custom_price, :instructor_id, :created_at, :updated_at)`,
		row)
	if err != nil {
		return student.Student{}, dbErr(err, nil, "inserting student")
	}
	return row.student(), nil
}

func (repo *studentRepository) GetStudent(ctx context.Context, id string) (student.Student, error) {
	if !validID(id) {
		return student.Student{}, student.ErrNotFound
	}
	var row studentRow
	err := repo.ext(ctx).GetContext(ctx, &row, "SELECT "+studentColumns+" FROM students WHERE id = $1", id)
	if err != nil {
		return student.Student{}, dbErr(err, student.ErrNotFound, "getting student")
	}
	return row.student(), nil
}

func (repo *studentRepository) QueryStudents(ctx context.Context, filter *student.QueryFilter) ([]student.Student, error) {
	var w where
	if filter != nil {
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			w.add("(name ILIKE ? OR email ILIKE ?)", val, val)
		}
		if filter.Status != "" {
			w.add("status = ?", string(filter.Status))
		}
		if filter.PlanID != "" {
			w.add("plan_id = ?", filter.PlanID)
		}
		if filter.InstructorID != "" {
			w.add("instructor_id = ?", filter.InstructorID)
		}
	}

	ext := repo.ext(ctx)
	q, args, err := bind(ext, "SELECT "+studentColumns+" FROM students"+w.String()+" ORDER BY name, id", w.args...)
	if err != nil {
		return nil, err
	}
	var rows []studentRow
	if err = ext.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, dbErr(err, nil, "querying students")
	}
	students := make([]student.Student, 0, len(rows))
	for _, row := range rows {
		students = append(students, row.student())
	}
	return students, nil
}

func (repo *studentRepository) UpdateStudent(ctx context.Context, st student.Student) (student.Student, error) {
	row := toStudentRow(st)
	res, err := sqlx.NamedExecContext(ctx, repo.ext(ctx), `
		UPDATE students SET
			name = :name, email = :email, phone = :phone, status = :status, plan_id = :plan_id,
			custom_price = :custom_price, instructor_id = :instructor_id, updated_at = :updated_at
		WHERE id = :id`,
		row)
	if err != nil {
		return student.Student{}, dbErr(err, nil, "updating student")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return student.Student{}, student.ErrNotFound
	}
	return row.student(), nil
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
