package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/murilobento/studiofisiopilates-sub000/core/student"
)

type studentRepository struct {
	db *DB
}

var _ student.Repository = (*studentRepository)(nil)

func NewStudentRepository(db *DB) *studentRepository {
	return &studentRepository{db: db}
}

func (repo *studentRepository) CreatePlan(ctx context.Context, plan student.Plan) (student.Plan, error) {
	err := repo.db.write(ctx, func(t *tables) error {
		plan.ID = newID()
		t.plans[plan.ID] = plan
		return nil
	})
	return plan, err
}

func (repo *studentRepository) GetPlan(ctx context.Context, id string) (student.Plan, error) {
	var (
		plan  student.Plan
		found bool
	)
	repo.db.read(ctx, func(t *tables) { plan, found = t.plans[id] })
	if !found {
		return student.Plan{}, student.ErrPlanNotFound
	}
	return plan, nil
}

func (repo *studentRepository) QueryPlans(ctx context.Context) ([]student.Plan, error) {
	plans := make([]student.Plan, 0)
	repo.db.read(ctx, func(t *tables) {
		for _, p := range t.plans {
			plans = append(plans, p)
		}
	})
	sort.Slice(plans, func(i, j int) bool { return plans[i].Name < plans[j].Name })
	return plans, nil
}

func (repo *studentRepository) CreateStudent(ctx context.Context, st student.Student) (student.Student, error) {
	err := repo.db.write(ctx, func(t *tables) error {
		if _, ok := t.plans[st.PlanID]; !ok {
			return student.ErrPlanNotFound
		}
		st.ID = newID()
		t.students[st.ID] = st
		return nil
	})
	if err != nil {
		return student.Student{}, err
	}
	return st, nil
}

func (repo *studentRepository) GetStudent(ctx context.Context, id string) (student.Student, error) {
	var (
		st    student.Student
		found bool
	)
	repo.db.read(ctx, func(t *tables) { st, found = t.students[id] })
	if !found {
		return student.Student{}, student.ErrNotFound
	}
	return st, nil
}

func (repo *studentRepository) QueryStudents(ctx context.Context, filter *student.QueryFilter) ([]student.Student, error) {
	students := make([]student.Student, 0)
	repo.db.read(ctx, func(t *tables) {
		for _, st := range t.students {
			if filter != nil {
				if s := strings.ToLower(filter.Search); s != "" &&
					!(strings.Contains(strings.ToLower(st.Name), s) || strings.Contains(st.Email, s)) {
					continue
				}
				if filter.Status != "" && st.Status != filter.Status {
					continue
				}
				if filter.PlanID != "" && st.PlanID != filter.PlanID {
					continue
				}
				if filter.InstructorID != "" && st.InstructorID != filter.InstructorID {
					continue
				}
			}
			students = append(students, st)
		}
	})
	sort.Slice(students, func(i, j int) bool {
		if students[i].Name != students[j].Name {
			return students[i].Name < students[j].Name
		}
		return students[i].ID < students[j].ID
	})
	return students, nil
}

func (repo *studentRepository) UpdateStudent(ctx context.Context, st student.Student) (student.Student, error) {
	err := repo.db.write(ctx, func(t *tables) error {
		if _, ok := t.students[st.ID]; !ok {
			return student.ErrNotFound
		}
		if _, ok := t.plans[st.PlanID]; !ok {
			return student.ErrPlanNotFound
		}
		t.students[st.ID] = st
		return nil
	})
	if err != nil {
		return student.Student{}, err
	}
	return st, nil
}
