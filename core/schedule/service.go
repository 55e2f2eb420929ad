package schedule

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/murilobento/studiofisiopilates-sub000/core"
	"github.com/murilobento/studiofisiopilates-sub000/core/student"
	"github.com/murilobento/studiofisiopilates-sub000/core/user"
)

var (
	// errors
	ErrClassNotFound    = core.NewNotFoundError("class")
	ErrTemplateNotFound = core.NewNotFoundError("template")

	ErrInstructorBusy   = core.NewConflictError("instructor already has a class at this time")
	ErrClassFull        = core.NewConflictError("class is full")
	ErrAlreadyEnrolled  = core.NewConflictError("student is already enrolled in this class")
	ErrNotEnrolled      = core.NewConflictError("student is not enrolled in this class")
	ErrClassNotEditable = core.NewConflictError("only scheduled classes can be changed")
)

type (
	Repository interface {
		CreateClass(ctx context.Context, cls Class) (Class, error)
		GetClass(ctx context.Context, id string) (Class, error)
		// GetClassForUpdate locks the class until the surrounding transaction ends.
		GetClassForUpdate(ctx context.Context, id string) (Class, error)
		QueryClasses(ctx context.Context, filter *ClassFilter, ordering []core.DBOrdering) ([]Class, error)
		UpdateClass(ctx context.Context, cls Class) (Class, error)
		// ClassExists reports whether templateID already has a class starting at start.
		ClassExists(ctx context.Context, templateID string, start time.Time) (bool, error)
		// DeleteFutureClasses deletes the classes of templateID starting after `after`.
		DeleteFutureClasses(ctx context.Context, templateID string, after time.Time) (int, error)
		// LockInstructor serializes bookings of an instructor until the surrounding transaction ends.
		LockInstructor(ctx context.Context, instructorID string) error

		CreateTemplate(ctx context.Context, tpl Template) (Template, error)
		GetTemplate(ctx context.Context, id string) (Template, error)
		QueryTemplates(ctx context.Context, filter *TemplateFilter) ([]Template, error)
		UpdateTemplate(ctx context.Context, tpl Template) (Template, error)
		DeleteTemplate(ctx context.Context, id string) error
	}

	// InstructorFinder looks instructors up.
	InstructorFinder interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	// StudentFinder looks students up.
	StudentFinder interface {
		GetByID(ctx context.Context, id string) (student.Student, error)
	}

	Service struct {
		repo        Repository
		tx          core.Transactor
		checker     *ConflictChecker
		instructors InstructorFinder
		students    StudentFinder
		clock       core.Clock
		conf        ExpandConfig
		logger      core.Logger
	}
)

func NewService(
	repo Repository,
	tx core.Transactor,
	instructors InstructorFinder,
	students StudentFinder,
	clock core.Clock,
	conf ExpandConfig,
	logger core.Logger,
) *Service {
	return &Service{
		repo:        repo,
		tx:          tx,
		checker:     NewConflictChecker(repo),
		instructors: instructors,
		students:    students,
		clock:       clock,
		conf:        conf,
		logger:      logger,
	}
}

func (svc *Service) HasConflict(ctx context.Context, instructorID string, start, end time.Time, excludeID string) (bool, error) {
	return svc.checker.HasConflict(ctx, instructorID, start, end, excludeID)
}

func (svc *Service) checkInstructor(ctx context.Context, id string) error {
	usr, err := svc.instructors.GetByID(ctx, id)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return core.NewValidationError(err, core.FieldError{Field: "instructor_id", Error: "instructor not found"})
		}
		return errors.Wrap(err, "finding instructor")
	}
	if !usr.IsActive {
		return core.NewValidationError(nil, core.FieldError{Field: "instructor_id", Error: "instructor is not active"})
	}
	return nil
}

func (svc *Service) checkStudents(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if _, err := svc.students.GetByID(ctx, id); err != nil {
			if errors.Cause(err) == student.ErrNotFound {
				return core.NewValidationError(err, core.FieldError{Field: "student_ids", Error: "student " + id + " not found"})
			}
			return errors.Wrap(err, "finding student")
		}
	}
	return nil
}

// Classes

func (svc *Service) GetClass(ctx context.Context, id string) (Class, error) {
	return svc.repo.GetClass(ctx, id)
}

func (svc *Service) QueryClasses(ctx context.Context, filter *ClassFilter, ordering []core.DBOrdering) ([]Class, error) {
	return svc.repo.QueryClasses(ctx, filter, ordering)
}

// CreateClass books a single class. The instructor must be free during the class.
func (svc *Service) CreateClass(ctx context.Context, nc NewClass) (Class, error) {
	if err := svc.checkInstructor(ctx, nc.InstructorID); err != nil {
		return Class{}, err
	}
	if err := svc.checkStudents(ctx, nc.StudentIDs); err != nil {
		return Class{}, err
	}

	var cls Class
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := svc.repo.LockInstructor(ctx, nc.InstructorID); err != nil {
			return errors.Wrap(err, "locking instructor schedule")
		}
		busy, err := svc.checker.HasConflict(ctx, nc.InstructorID, nc.StartTime, nc.EndTime, "")
		if err != nil {
			return err
		}
		if busy {
			return ErrInstructorBusy
		}

		now := svc.clock.Now().UTC()
		cls, err = svc.repo.CreateClass(ctx, Class{
			Title:        nc.Title,
			InstructorID: nc.InstructorID,
			StartTime:    nc.StartTime,
			EndTime:      nc.EndTime,
			MaxStudents:  nc.MaxStudents,
			Status:       StatusScheduled,
			StudentIDs:   nc.StudentIDs,
			Notes:        nc.Notes,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
		return errors.Wrap(err, "creating class")
	})
	return cls, err
}

func (svc *Service) UpdateClass(ctx context.Context, id string, uc UpdateClass) (Class, error) {
	if uc.InstructorID != "" {
		if err := svc.checkInstructor(ctx, uc.InstructorID); err != nil {
			return Class{}, err
		}
	}

	var cls Class
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if cls, err = svc.repo.GetClassForUpdate(ctx, id); err != nil {
			return err
		}
		if cls.Status != StatusScheduled {
			return ErrClassNotEditable
		}

		if uc.Title != "" {
			cls.Title = uc.Title
		}
		if uc.InstructorID != "" {
			cls.InstructorID = uc.InstructorID
		}
		if uc.StartTime != nil {
			cls.StartTime = *uc.StartTime
		}
		if uc.EndTime != nil {
			cls.EndTime = *uc.EndTime
		}
		if uc.MaxStudents != nil {
			cls.MaxStudents = *uc.MaxStudents
		}
		if uc.Notes != nil {
			cls.Notes = core.CleanString(*uc.Notes)
		}

		if !cls.StartTime.Before(cls.EndTime) {
			return core.NewValidationError(nil, core.FieldError{Field: "end_time", Error: "end time must be after start time"})
		}
		if len(cls.StudentIDs) > cls.MaxStudents {
			return core.NewValidationError(nil, core.FieldError{Field: "max_students", Error: "capacity is below the number of enrolled students"})
		}

		if err := svc.repo.LockInstructor(ctx, cls.InstructorID); err != nil {
			return errors.Wrap(err, "locking instructor schedule")
		}
		busy, err := svc.checker.HasConflict(ctx, cls.InstructorID, cls.StartTime, cls.EndTime, cls.ID)
		if err != nil {
			return err
		}
		if busy {
			return ErrInstructorBusy
		}

		cls.UpdatedAt = svc.clock.Now().UTC()
		cls, err = svc.repo.UpdateClass(ctx, cls)
		return errors.Wrap(err, "updating class")
	})
	return cls, err
}

// Enroll adds a student to a scheduled class that still has room.
func (svc *Service) Enroll(ctx context.Context, classID, studentID string) (Class, error) {
	if err := svc.checkStudents(ctx, []string{studentID}); err != nil {
		return Class{}, err
	}

	var cls Class
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if cls, err = svc.repo.GetClassForUpdate(ctx, classID); err != nil {
			return err
		}
		if cls.Status != StatusScheduled {
			return ErrClassNotEditable
		}
		if cls.HasStudent(studentID) {
			return ErrAlreadyEnrolled
		}
		if cls.IsFull() {
			return ErrClassFull
		}

		cls.StudentIDs = append(cls.StudentIDs, studentID)
		cls.UpdatedAt = svc.clock.Now().UTC()
		cls, err = svc.repo.UpdateClass(ctx, cls)
		return errors.Wrap(err, "enrolling student")
	})
	return cls, err
}

func (svc *Service) Unenroll(ctx context.Context, classID, studentID string) (Class, error) {
	var cls Class
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if cls, err = svc.repo.GetClassForUpdate(ctx, classID); err != nil {
			return err
		}
		if cls.Status != StatusScheduled {
			return ErrClassNotEditable
		}
		if !cls.HasStudent(studentID) {
			return ErrNotEnrolled
		}

		ids := make([]string, 0, len(cls.StudentIDs)-1)
		for _, id := range cls.StudentIDs {
			if id != studentID {
				ids = append(ids, id)
			}
		}
		cls.StudentIDs = ids
		cls.UpdatedAt = svc.clock.Now().UTC()
		cls, err = svc.repo.UpdateClass(ctx, cls)
		return errors.Wrap(err, "unenrolling student")
	})
	return cls, err
}

func (svc *Service) Complete(ctx context.Context, id string) (Class, error) {
	return svc.transition(ctx, id, StatusCompleted)
}

func (svc *Service) Cancel(ctx context.Context, id string) (Class, error) {
	return svc.transition(ctx, id, StatusCancelled)
}

// transition moves a scheduled class to a final status.
func (svc *Service) transition(ctx context.Context, id string, to ClassStatus) (Class, error) {
	var cls Class
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if cls, err = svc.repo.GetClassForUpdate(ctx, id); err != nil {
			return err
		}
		if cls.Status != StatusScheduled {
			return core.NewInvalidTransitionError("class", string(cls.Status), string(to))
		}
		cls.Status = to
		cls.UpdatedAt = svc.clock.Now().UTC()
		cls, err = svc.repo.UpdateClass(ctx, cls)
		return errors.Wrap(err, "updating class status")
	})
	return cls, err
}

// Templates

func (svc *Service) GetTemplate(ctx context.Context, id string) (Template, error) {
	return svc.repo.GetTemplate(ctx, id)
}

func (svc *Service) QueryTemplates(ctx context.Context, filter *TemplateFilter) ([]Template, error) {
	return svc.repo.QueryTemplates(ctx, filter)
}

// CreateTemplate stores the template and expands it into classes, atomically.
func (svc *Service) CreateTemplate(ctx context.Context, nt NewTemplate) (Template, ExpandResult, error) {
	if err := svc.checkInstructor(ctx, nt.InstructorID); err != nil {
		return Template{}, ExpandResult{}, err
	}
	if err := svc.checkStudents(ctx, nt.StudentIDs); err != nil {
		return Template{}, ExpandResult{}, err
	}

	var (
		tpl Template
		res ExpandResult
	)
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		now := svc.clock.Now().UTC()
		var err error
		tpl, err = svc.repo.CreateTemplate(ctx, Template{
			Title:                 nt.Title,
			InstructorID:          nt.InstructorID,
			DayOfWeek:             nt.DayOfWeek,
			StartTime:             nt.StartTime,
			EndTime:               nt.EndTime,
			StartDate:             nt.StartDate,
			EndDate:               nt.EndDate,
			MaxStudents:           nt.MaxStudents,
			AutoReplicateStudents: nt.AutoReplicateStudents,
			StudentIDs:            nt.StudentIDs,
			IsActive:              true,
			CreatedAt:             now,
			UpdatedAt:             now,
		})
		if err != nil {
			return errors.Wrap(err, "creating template")
		}
		var notBefore time.Time
		if svc.conf.SkipPast {
			notBefore = now
		}
		res, err = svc.expand(ctx, tpl, notBefore)
		return err
	})
	if err != nil {
		return Template{}, ExpandResult{}, err
	}
	svc.logExpansion(tpl, res)
	return tpl, res, nil
}

// Expand creates the missing upcoming classes of an active template.
// Slots that already started are history and never backfilled.
func (svc *Service) Expand(ctx context.Context, tpl Template) (ExpandResult, error) {
	return svc.expand(ctx, tpl, svc.clock.Now())
}

// expand creates the missing classes of tpl starting at or after notBefore.
func (svc *Service) expand(ctx context.Context, tpl Template, notBefore time.Time) (ExpandResult, error) {
	res := ExpandResult{Created: []Class{}, Conflicts: []Slot{}}
	if !tpl.IsActive {
		return res, nil
	}

	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		now := svc.clock.Now()
		from, to := ExpandRange(tpl, now, svc.conf)
		if err := svc.repo.LockInstructor(ctx, tpl.InstructorID); err != nil {
			return errors.Wrap(err, "locking instructor schedule")
		}
		for _, slot := range Occurrences(tpl, from, to, svc.conf.location()) {
			if slot.Start.Before(notBefore) {
				res.SkippedPast++
				continue
			}

			exists, err := svc.repo.ClassExists(ctx, tpl.ID, slot.Start)
			if err != nil {
				return errors.Wrap(err, "checking existing class")
			}
			if exists {
				res.SkippedExisting++
				continue
			}

			if svc.conf.ConflictPolicy == ConflictSkip {
				busy, err := svc.checker.HasConflict(ctx, tpl.InstructorID, slot.Start, slot.End, "")
				if err != nil {
					return err
				}
				if busy {
					res.Conflicts = append(res.Conflicts, slot)
					continue
				}
			}

			tplID := tpl.ID
			stamp := now.UTC()
			cls, err := svc.repo.CreateClass(ctx, Class{
				Title:        tpl.Title,
				InstructorID: tpl.InstructorID,
				TemplateID:   &tplID,
				StartTime:    slot.Start,
				EndTime:      slot.End,
				MaxStudents:  tpl.MaxStudents,
				Status:       StatusScheduled,
				StudentIDs:   tpl.replicatedStudents(),
				CreatedAt:    stamp,
				UpdatedAt:    stamp,
			})
			if err != nil {
				return errors.Wrap(err, "creating class")
			}
			res.Created = append(res.Created, cls)
		}
		return nil
	})
	if err != nil {
		return ExpandResult{}, err
	}
	return res, nil
}

// DeleteFutureInstances deletes the classes of tpl that have not started yet.
func (svc *Service) DeleteFutureInstances(ctx context.Context, tpl Template) (int, error) {
	n, err := svc.repo.DeleteFutureClasses(ctx, tpl.ID, svc.clock.Now())
	if err != nil {
		return 0, errors.Wrap(err, "deleting future classes")
	}
	return n, nil
}

// UpdateTemplate replaces the rule, deletes its future classes and expands it again, atomically.
func (svc *Service) UpdateTemplate(ctx context.Context, id string, ut UpdateTemplate) (Template, ExpandResult, error) {
	if err := svc.checkInstructor(ctx, ut.InstructorID); err != nil {
		return Template{}, ExpandResult{}, err
	}
	if err := svc.checkStudents(ctx, ut.StudentIDs); err != nil {
		return Template{}, ExpandResult{}, err
	}

	var (
		tpl Template
		res ExpandResult
	)
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if tpl, err = svc.repo.GetTemplate(ctx, id); err != nil {
			return err
		}

		tpl.Title = ut.Title
		tpl.InstructorID = ut.InstructorID
		tpl.DayOfWeek = ut.DayOfWeek
		tpl.StartTime = ut.StartTime
		tpl.EndTime = ut.EndTime
		tpl.StartDate = ut.StartDate
		tpl.EndDate = ut.EndDate
		tpl.MaxStudents = ut.MaxStudents
		tpl.AutoReplicateStudents = ut.AutoReplicateStudents
		tpl.StudentIDs = ut.StudentIDs
		tpl.UpdatedAt = svc.clock.Now().UTC()
		if tpl, err = svc.repo.UpdateTemplate(ctx, tpl); err != nil {
			return errors.Wrap(err, "updating template")
		}

		if _, err = svc.DeleteFutureInstances(ctx, tpl); err != nil {
			return err
		}
		res, err = svc.Expand(ctx, tpl)
		return err
	})
	if err != nil {
		return Template{}, ExpandResult{}, err
	}
	svc.logExpansion(tpl, res)
	return tpl, res, nil
}

// SetTemplateActive pauses or resumes a template.
// Pausing deletes its future classes; resuming expands it again.
func (svc *Service) SetTemplateActive(ctx context.Context, id string, active bool) (Template, ExpandResult, error) {
	var (
		tpl Template
		res = ExpandResult{Created: []Class{}, Conflicts: []Slot{}}
	)
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if tpl, err = svc.repo.GetTemplate(ctx, id); err != nil {
			return err
		}
		if tpl.IsActive == active {
			return nil
		}

		tpl.IsActive = active
		tpl.UpdatedAt = svc.clock.Now().UTC()
		if tpl, err = svc.repo.UpdateTemplate(ctx, tpl); err != nil {
			return errors.Wrap(err, "updating template")
		}
		if !active {
			_, err = svc.DeleteFutureInstances(ctx, tpl)
			return err
		}
		res, err = svc.Expand(ctx, tpl)
		return err
	})
	if err != nil {
		return Template{}, ExpandResult{}, err
	}
	return tpl, res, nil
}

// DeleteTemplate removes the template and its future classes. Past classes are kept.
func (svc *Service) DeleteTemplate(ctx context.Context, id string) (int, error) {
	var deleted int
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		tpl, err := svc.repo.GetTemplate(ctx, id)
		if err != nil {
			return err
		}
		if deleted, err = svc.DeleteFutureInstances(ctx, tpl); err != nil {
			return err
		}
		return errors.Wrap(svc.repo.DeleteTemplate(ctx, id), "deleting template")
	})
	return deleted, err
}

// ExpandActive tops up every active template, e.g. to move open-ended templates' horizon forward.
func (svc *Service) ExpandActive(ctx context.Context) (map[string]ExpandResult, error) {
	active := true
	tpls, err := svc.repo.QueryTemplates(ctx, &TemplateFilter{IsActive: &active})
	if err != nil {
		return nil, errors.Wrap(err, "querying active templates")
	}

	results := make(map[string]ExpandResult, len(tpls))
	for _, tpl := range tpls {
		res, err := svc.Expand(ctx, tpl)
		if err != nil {
			return results, errors.Wrapf(err, "expanding template %s", tpl.ID)
		}
		svc.logExpansion(tpl, res)
		results[tpl.ID] = res
	}
	return results, nil
}

func (svc *Service) logExpansion(tpl Template, res ExpandResult) {
	if len(res.Conflicts) > 0 {
		svc.logger.Warn("template expansion skipped conflicting slots", map[string]interface{}{
			"template_id": tpl.ID,
			"conflicts":   len(res.Conflicts),
		})
	}
}
