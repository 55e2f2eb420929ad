package schedule

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/murilobento/studiofisiopilates-sub000/core"
)

type ClassStatus string

const (
	StatusScheduled ClassStatus = "scheduled"
	StatusCompleted ClassStatus = "completed"
	StatusCancelled ClassStatus = "cancelled"
)

// Class is one concrete session in the calendar.
type Class struct {
	ID           string      `json:"id"`
	Title        string      `json:"title"`
	InstructorID string      `json:"instructor_id"`
	TemplateID   *string     `json:"template_id"`
	StartTime    time.Time   `json:"start_time"`
	EndTime      time.Time   `json:"end_time"`
	MaxStudents  int         `json:"max_students"`
	Status       ClassStatus `json:"status"`
	StudentIDs   []string    `json:"student_ids"`
	Notes        string      `json:"notes"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

func (c Class) IsFull() bool { return len(c.StudentIDs) >= c.MaxStudents }

func (c Class) HasStudent(id string) bool {
	for _, sid := range c.StudentIDs {
		if sid == id {
			return true
		}
	}
	return false
}

// Template is a weekly recurrence rule expanded into classes.
type Template struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	InstructorID string `json:"instructor_id"`
	// DayOfWeek is the ISO weekday: 1 = Monday ... 7 = Sunday.
	DayOfWeek             int        `json:"day_of_week"`
	StartTime             TimeOfDay  `json:"start_time"`
	EndTime               TimeOfDay  `json:"end_time"`
	StartDate             time.Time  `json:"start_date"`
	EndDate               *time.Time `json:"end_date"`
	MaxStudents           int        `json:"max_students"`
	AutoReplicateStudents bool       `json:"auto_replicate_students"`
	StudentIDs            []string   `json:"student_ids"`
	IsActive              bool       `json:"is_active"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

func (t Template) Weekday() time.Weekday {
	return time.Weekday(t.DayOfWeek % 7)
}

// replicatedStudents are the template students copied into each class, up to capacity.
func (t Template) replicatedStudents() []string {
	if !t.AutoReplicateStudents || len(t.StudentIDs) == 0 {
		return []string{}
	}
	ids := uniqueIDs(t.StudentIDs)
	if len(ids) > t.MaxStudents {
		ids = ids[:t.MaxStudents]
	}
	return ids
}

type NewClass struct {
	Title        string    `json:"title" validate:"required"`
	InstructorID string    `json:"instructor_id" validate:"required"`
	StartTime    time.Time `json:"start_time" validate:"required"`
	EndTime      time.Time `json:"end_time" validate:"required,gtfield=StartTime"`
	MaxStudents  int       `json:"max_students" validate:"required,min=1"`
	StudentIDs   []string  `json:"student_ids"`
	Notes        string    `json:"notes"`
}

func (nc *NewClass) Validate(validate *validator.Validate) error {
	nc.Title = core.CleanString(nc.Title)
	nc.Notes = core.CleanString(nc.Notes)
	nc.StudentIDs = uniqueIDs(nc.StudentIDs)
	if err := validate.Struct(nc); err != nil {
		return err
	}
	if len(nc.StudentIDs) > nc.MaxStudents {
		return core.NewValidationError(nil, core.FieldError{Field: "student_ids", Error: "more students than the class capacity"})
	}
	return nil
}

// UpdateClass defines what may be changed on a scheduled class.
type UpdateClass struct {
	Title        string     `json:"title"`
	InstructorID string     `json:"instructor_id"`
	StartTime    *time.Time `json:"start_time"`
	EndTime      *time.Time `json:"end_time"`
	MaxStudents  *int       `json:"max_students" validate:"omitempty,min=1"`
	Notes        *string    `json:"notes"`
}

func (uc *UpdateClass) Validate(validate *validator.Validate) error {
	uc.Title = core.CleanString(uc.Title)
	uc.InstructorID = core.CleanString(uc.InstructorID)
	return validate.Struct(uc)
}

type NewTemplate struct {
	Title                 string     `json:"title" validate:"required"`
	InstructorID          string     `json:"instructor_id" validate:"required"`
	DayOfWeek             int        `json:"day_of_week" validate:"required,min=1,max=7"`
	StartTime             TimeOfDay  `json:"start_time"`
	EndTime               TimeOfDay  `json:"end_time" validate:"gtfield=StartTime"`
	StartDate             time.Time  `json:"start_date" validate:"required"`
	EndDate               *time.Time `json:"end_date" validate:"omitempty,gtefield=StartDate"`
	MaxStudents           int        `json:"max_students" validate:"required,min=1"`
	AutoReplicateStudents bool       `json:"auto_replicate_students"`
	StudentIDs            []string   `json:"student_ids"`
}

func (nt *NewTemplate) Validate(validate *validator.Validate) error {
	nt.Title = core.CleanString(nt.Title)
	nt.StudentIDs = uniqueIDs(nt.StudentIDs)
	return validate.Struct(nt)
}

// UpdateTemplate replaces the recurrence rule. Future classes are regenerated from it.
type UpdateTemplate NewTemplate

func (ut *UpdateTemplate) Validate(validate *validator.Validate) error {
	nt := NewTemplate(*ut)
	if err := nt.Validate(validate); err != nil {
		return err
	}
	*ut = UpdateTemplate(nt)
	return nil
}

type ClassFilter struct {
	InstructorID string        `query:"instructor_id"`
	TemplateID   string        `query:"template_id"`
	StudentID    string        `query:"student_id"`
	Statuses     []ClassStatus `query:"status"`
	// From and To select classes overlapping [From, To).
	From      time.Time
	To        time.Time
	ExcludeID string
}

type TemplateFilter struct {
	InstructorID string `query:"instructor_id"`
	IsActive     *bool  `query:"is_active"`
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = core.CleanString(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
