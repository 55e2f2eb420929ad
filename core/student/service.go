package student

import (
	"context"

	"github.com/pkg/errors"

	"github.com/murilobento/studiofisiopilates-sub000/core"
)

var (
	// errors
	ErrNotFound     = core.NewNotFoundError("student")
	ErrPlanNotFound = core.NewNotFoundError("plan")
)

type (
	Repository interface {
		CreatePlan(ctx context.Context, plan Plan) (Plan, error)
		GetPlan(ctx context.Context, id string) (Plan, error)
		QueryPlans(ctx context.Context) ([]Plan, error)

		CreateStudent(ctx context.Context, st Student) (Student, error)
		GetStudent(ctx context.Context, id string) (Student, error)
		QueryStudents(ctx context.Context, filter *QueryFilter) ([]Student, error)
		UpdateStudent(ctx context.Context, st Student) (Student, error)
	}

	Service struct {
		repo  Repository
		clock core.Clock
	}
)

func NewService(repo Repository, clock core.Clock) *Service {
	return &Service{repo: repo, clock: clock}
}

func (svc *Service) CreatePlan(ctx context.Context, np NewPlan) (Plan, error) {
	now := svc.clock.Now().UTC()
	return svc.repo.CreatePlan(ctx, Plan{
		Name:        np.Name,
		Description: np.Description,
		Price:       core.Money(np.Price),
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func (svc *Service) GetPlan(ctx context.Context, id string) (Plan, error) {
	return svc.repo.GetPlan(ctx, id)
}

func (svc *Service) Plans(ctx context.Context) ([]Plan, error) {
	return svc.repo.QueryPlans(ctx)
}

func (svc *Service) checkPlan(ctx context.Context, id string) error {
	if _, err := svc.repo.GetPlan(ctx, id); err != nil {
		if errors.Cause(err) == ErrPlanNotFound {
			return core.NewValidationError(err, core.FieldError{Field: "plan_id", Error: err.Error()})
		}
		return errors.Wrap(err, "finding plan")
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, ns NewStudent) (Student, error) {
	if err := svc.checkPlan(ctx, ns.PlanID); err != nil {
		return Student{}, err
	}
	now := svc.clock.Now().UTC()
	return svc.repo.CreateStudent(ctx, Student{
		Name:         ns.Name,
		Email:        ns.Email,
		Phone:        ns.Phone,
		Status:       StatusActive,
		PlanID:       ns.PlanID,
		CustomPrice:  ns.CustomPrice,
		InstructorID: ns.InstructorID,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

func (svc *Service) GetByID(ctx context.Context, id string) (Student, error) {
	return svc.repo.GetStudent(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter) ([]Student, error) {
	return svc.repo.QueryStudents(ctx, filter)
}

// ActiveStudents lists the students billed every month.
func (svc *Service) ActiveStudents(ctx context.Context) ([]Student, error) {
	return svc.repo.QueryStudents(ctx, &QueryFilter{Status: StatusActive})
}

func (svc *Service) Update(ctx context.Context, st Student, us UpdateStudent) (Student, error) {
	if us.PlanID != "" && us.PlanID != st.PlanID {
		if err := svc.checkPlan(ctx, us.PlanID); err != nil {
			return Student{}, err
		}
		st.PlanID = us.PlanID
	}
	if us.Name != "" {
		st.Name = us.Name
	}
	if us.Email != "" {
		st.Email = us.Email
	}
	if us.Phone != "" {
		st.Phone = us.Phone
	}
	if us.Status != "" {
		st.Status = us.Status
	}
	if us.ClearPrice {
		st.CustomPrice = nil
	} else if us.CustomPrice != nil {
		st.CustomPrice = us.CustomPrice
	}
	if us.InstructorID != nil {
		st.InstructorID = *us.InstructorID
	}
	st.UpdatedAt = svc.clock.Now().UTC()
	return svc.repo.UpdateStudent(ctx, st)
}
