package billing

import (
	"context"

	"github.com/pkg/errors"

	"github.com/murilobento/studiofisiopilates-sub000/core"
	"github.com/murilobento/studiofisiopilates-sub000/core/student"
)

type (
	SkippedStudent struct {
		StudentID string `json:"student_id"`
		Reason    string `json:"reason"`
	}

	GenerateResult struct {
		Period        Period           `json:"period"`
		Created       []Payment        `json:"created"`
		AlreadyExists int              `json:"already_exists"`
		TotalStudents int              `json:"total_students"`
		Skipped       []SkippedStudent `json:"skipped,omitempty"`
	}

	ExistingReport struct {
		Period        Period `json:"period"`
		HasExisting   bool   `json:"has_existing"`
		ExistingCount int    `json:"existing_count"`
		TotalStudents int    `json:"total_students"`
		NewStudents   int    `json:"new_students"`
	}

	// Generator bills every active student once per month.
	Generator struct {
		repo     Repository
		tx       core.Transactor
		students StudentSource
		clock    core.Clock
		logger   core.Logger
	}
)

func NewGenerator(repo Repository, tx core.Transactor, students StudentSource, clock core.Clock, logger core.Logger) *Generator {
	return &Generator{repo: repo, tx: tx, students: students, clock: clock, logger: logger}
}

// Generate creates the missing payments of the period. Running it again only bills
// students activated since the previous run.
func (g *Generator) Generate(ctx context.Context, period Period) (GenerateResult, error) {
	students, err := g.students.ActiveStudents(ctx)
	if err != nil {
		return GenerateResult{}, errors.Wrap(err, "listing active students")
	}

	res := GenerateResult{Period: period, Created: []Payment{}, TotalStudents: len(students)}
	plans := make(map[string]student.Plan)
	ref := period.ReferenceMonth()

	for _, st := range students {
		plan, ok := plans[st.PlanID]
		if !ok {
			if plan, err = g.students.GetPlan(ctx, st.PlanID); err != nil {
				if errors.Cause(err) != student.ErrPlanNotFound {
					return res, errors.Wrap(err, "finding plan")
				}
				g.logger.Warn("student without plan left out of billing", map[string]interface{}{
					"student_id": st.ID,
					"period":     period.String(),
				})
				res.Skipped = append(res.Skipped, SkippedStudent{StudentID: st.ID, Reason: err.Error()})
				continue
			}
			plans[st.PlanID] = plan
		}

		var pay Payment
		err = g.tx.WithinTx(ctx, func(ctx context.Context) error {
			_, err := g.repo.FindPayment(ctx, st.ID, ref)
			switch {
			case err == nil:
				return ErrPaymentExists
			case errors.Cause(err) != ErrPaymentNotFound:
				return err
			}
			pay, err = g.repo.CreatePayment(ctx, newPayment(st, plan, period, g.clock.Now()))
			return err
		})
		switch {
		case err == nil:
			res.Created = append(res.Created, pay)
		case errors.Cause(err) == ErrPaymentExists:
			res.AlreadyExists++
		default:
			return res, errors.Wrapf(err, "billing student %s", st.ID)
		}
	}

	g.logger.Info("monthly payments generated", map[string]interface{}{
		"period":         period.String(),
		"created":        len(res.Created),
		"already_exists": res.AlreadyExists,
		"total_students": res.TotalStudents,
	})
	return res, nil
}

// CheckExisting reports how much of the period is already billed without changing anything.
func (g *Generator) CheckExisting(ctx context.Context, period Period) (ExistingReport, error) {
	students, err := g.students.ActiveStudents(ctx)
	if err != nil {
		return ExistingReport{}, errors.Wrap(err, "listing active students")
	}
	billed, err := g.repo.BilledStudentIDs(ctx, period.ReferenceMonth())
	if err != nil {
		return ExistingReport{}, errors.Wrap(err, "listing billed students")
	}

	billedSet := make(map[string]bool, len(billed))
	for _, id := range billed {
		billedSet[id] = true
	}
	newStudents := 0
	for _, st := range students {
		if !billedSet[st.ID] {
			newStudents++
		}
	}

	return ExistingReport{
		Period:        period,
		HasExisting:   len(billed) > 0,
		ExistingCount: len(billed),
		TotalStudents: len(students),
		NewStudents:   newStudents,
	}, nil
}
