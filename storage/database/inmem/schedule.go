package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/murilobento/studiofisiopilates-sub000/core"
	"github.com/murilobento/studiofisiopilates-sub000/core/schedule"
)

type scheduleRepository struct {
	db *DB
}

var _ schedule.Repository = (*scheduleRepository)(nil)

func NewScheduleRepository(db *DB) *scheduleRepository {
	return &scheduleRepository{db: db}
}

func copyClass(cls schedule.Class) schedule.Class {
	cls.StudentIDs = cloneIDs(cls.StudentIDs)
	if cls.TemplateID != nil {
		id := *cls.TemplateID
		cls.TemplateID = &id
	}
	return cls
}

func copyTemplate(tpl schedule.Template) schedule.Template {
	tpl.StudentIDs = cloneIDs(tpl.StudentIDs)
	if tpl.EndDate != nil {
		end := *tpl.EndDate
		tpl.EndDate = &end
	}
	return tpl
}

func (repo *scheduleRepository) CreateClass(ctx context.Context, cls schedule.Class) (schedule.Class, error) {
	cls = copyClass(cls)
	err := repo.db.write(ctx, func(t *tables) error {
		if cls.TemplateID != nil {
			// same rule as the unique (template_id, start_time) index
			for _, c := range t.classes {
				if c.TemplateID != nil && *c.TemplateID == *cls.TemplateID && c.StartTime.Equal(cls.StartTime) {
					return core.NewConflictError("template already has a class at this time")
				}
			}
		}
		cls.ID = newID()
		t.classes[cls.ID] = cls
		return nil
	})
	if err != nil {
		return schedule.Class{}, err
	}
	return copyClass(cls), nil
}

func (repo *scheduleRepository) GetClass(ctx context.Context, id string) (schedule.Class, error) {
	var (
		cls   schedule.Class
		found bool
	)
	repo.db.read(ctx, func(t *tables) { cls, found = t.classes[id] })
	if !found {
		return schedule.Class{}, schedule.ErrClassNotFound
	}
	return copyClass(cls), nil
}

// GetClassForUpdate relies on the transaction write lock.
func (repo *scheduleRepository) GetClassForUpdate(ctx context.Context, id string) (schedule.Class, error) {
	return repo.GetClass(ctx, id)
}

func matchClass(cls schedule.Class, filter *schedule.ClassFilter) bool {
	if filter == nil {
		return true
	}
	if filter.InstructorID != "" && cls.InstructorID != filter.InstructorID {
		return false
	}
	if filter.TemplateID != "" && (cls.TemplateID == nil || *cls.TemplateID != filter.TemplateID) {
		return false
	}
	if filter.StudentID != "" && !cls.HasStudent(filter.StudentID) {
		return false
	}
	if filter.ExcludeID != "" && cls.ID == filter.ExcludeID {
		return false
	}
	if len(filter.Statuses) > 0 {
		ok := false
		for _, st := range filter.Statuses {
			if cls.Status == st {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if !filter.From.IsZero() && !cls.EndTime.After(filter.From) {
		return false
	}
	if !filter.To.IsZero() && !cls.StartTime.Before(filter.To) {
		return false
	}
	return true
}

func (repo *scheduleRepository) QueryClasses(ctx context.Context, filter *schedule.ClassFilter, ordering []core.DBOrdering) ([]schedule.Class, error) {
	classes := make([]schedule.Class, 0)
	repo.db.read(ctx, func(t *tables) {
		for _, cls := range t.classes {
			if matchClass(cls, filter) {
				classes = append(classes, copyClass(cls))
			}
		}
	})

	desc := len(ordering) > 0 && ordering[0].Field == "start_time" && !ordering[0].Ascending
	sort.Slice(classes, func(i, j int) bool {
		a, b := classes[i], classes[j]
		if !a.StartTime.Equal(b.StartTime) {
			return a.StartTime.Before(b.StartTime) != desc
		}
		return a.ID < b.ID
	})
	return classes, nil
}

func (repo *scheduleRepository) UpdateClass(ctx context.Context, cls schedule.Class) (schedule.Class, error) {
	cls = copyClass(cls)
	err := repo.db.write(ctx, func(t *tables) error {
		if _, ok := t.classes[cls.ID]; !ok {
			return schedule.ErrClassNotFound
		}
		t.classes[cls.ID] = cls
		return nil
	})
	if err != nil {
		return schedule.Class{}, err
	}
	return copyClass(cls), nil
}

func (repo *scheduleRepository) ClassExists(ctx context.Context, templateID string, start time.Time) (bool, error) {
	var exists bool
	repo.db.read(ctx, func(t *tables) {
		for _, cls := range t.classes {
			if cls.TemplateID != nil && *cls.TemplateID == templateID && cls.StartTime.Equal(start) {
				exists = true
				return
			}
		}
	})
	return exists, nil
}

func (repo *scheduleRepository) DeleteFutureClasses(ctx context.Context, templateID string, after time.Time) (int, error) {
	var deleted int
	err := repo.db.write(ctx, func(t *tables) error {
		for id, cls := range t.classes {
			if cls.TemplateID != nil && *cls.TemplateID == templateID && cls.StartTime.After(after) {
				delete(t.classes, id)
				deleted++
			}
		}
		return nil
	})
	return deleted, err
}

// LockInstructor is a no-op: transactions already hold the database lock.
func (repo *scheduleRepository) LockInstructor(ctx context.Context, instructorID string) error {
	return nil
}

func (repo *scheduleRepository) CreateTemplate(ctx context.Context, tpl schedule.Template) (schedule.Template, error) {
	tpl = copyTemplate(tpl)
	err := repo.db.write(ctx, func(t *tables) error {
		tpl.ID = newID()
		t.templates[tpl.ID] = tpl
		return nil
	})
	return copyTemplate(tpl), err
}

func (repo *scheduleRepository) GetTemplate(ctx context.Context, id string) (schedule.Template, error) {
	var (
		tpl   schedule.Template
		found bool
	)
	repo.db.read(ctx, func(t *tables) { tpl, found = t.templates[id] })
	if !found {
		return schedule.Template{}, schedule.ErrTemplateNotFound
	}
	return copyTemplate(tpl), nil
}

func (repo *scheduleRepository) QueryTemplates(ctx context.Context, filter *schedule.TemplateFilter) ([]schedule.Template, error) {
	tpls := make([]schedule.Template, 0)
	repo.db.read(ctx, func(t *tables) {
		for _, tpl := range t.templates {
			if filter != nil {
				if filter.InstructorID != "" && tpl.InstructorID != filter.InstructorID {
					continue
				}
				if filter.IsActive != nil && tpl.IsActive != *filter.IsActive {
					continue
				}
			}
			tpls = append(tpls, copyTemplate(tpl))
		}
	})
	sort.Slice(tpls, func(i, j int) bool {
		a, b := tpls[i], tpls[j]
		if a.DayOfWeek != b.DayOfWeek {
			return a.DayOfWeek < b.DayOfWeek
		}
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		return a.ID < b.ID
	})
	return tpls, nil
}

func (repo *scheduleRepository) UpdateTemplate(ctx context.Context, tpl schedule.Template) (schedule.Template, error) {
	tpl = copyTemplate(tpl)
	err := repo.db.write(ctx, func(t *tables) error {
		if _, ok := t.templates[tpl.ID]; !ok {
			return schedule.ErrTemplateNotFound
		}
		t.templates[tpl.ID] = tpl
		return nil
	})
	if err != nil {
		return schedule.Template{}, err
	}
	return copyTemplate(tpl), nil
}

// DeleteTemplate detaches the remaining classes, like ON DELETE SET NULL.
func (repo *scheduleRepository) DeleteTemplate(ctx context.Context, id string) error {
	return repo.db.write(ctx, func(t *tables) error {
		if _, ok := t.templates[id]; !ok {
			return schedule.ErrTemplateNotFound
		}
		delete(t.templates, id)
		for cid, cls := range t.classes {
			if cls.TemplateID != nil && *cls.TemplateID == id {
				cls.TemplateID = nil
				t.classes[cid] = cls
			}
		}
		return nil
	})
}
