package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/volatiletech/null/v8"

	"github.com/murilobento/studiofisiopilates-sub000/core"
	"github.com/murilobento/studiofisiopilates-sub000/core/schedule"
)

const (
	classColumns    = `id, title, instructor_id, template_id, start_time, end_time, max_students, status, notes, created_at, updated_at`
	templateColumns = `id, title, instructor_id, day_of_week, start_time, end_time, start_date, end_date, max_students,
		auto_replicate_students, is_active, created_at, updated_at`

	classTemplateStartIdx = "classes_template_start_idx"
)

var classOrderings = map[string]bool{"start_time": true, "end_time": true, "created_at": true, "title": true}

type classRow struct {
	ID           string      `db:"id"`
	Title        string      `db:"title"`
	InstructorID string      `db:"instructor_id"`
	TemplateID   null.String `db:"template_id"`
	StartTime    time.Time   `db:"start_time"`
	EndTime      time.Time   `db:"end_time"`
	MaxStudents  int         `db:"max_students"`
	Status       string      `db:"status"`
	Notes        string      `db:"notes"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
}

func toClassRow(cls schedule.Class) classRow {
	return classRow{
		ID:           cls.ID,
		Title:        cls.Title,
		InstructorID: cls.InstructorID,
		TemplateID:   null.StringFromPtr(cls.TemplateID),
		StartTime:    cls.StartTime.UTC(),
		EndTime:      cls.EndTime.UTC(),
		MaxStudents:  cls.MaxStudents,
		Status:       string(cls.Status),
		Notes:        cls.Notes,
		CreatedAt:    cls.CreatedAt.UTC(),
		UpdatedAt:    cls.UpdatedAt.UTC(),
	}
}

func (row classRow) class(studentIDs []string) schedule.Class {
	if studentIDs == nil {
		studentIDs = []string{}
	}
	return schedule.Class{
		ID:           row.ID,
		Title:        row.Title,
		InstructorID: row.InstructorID,
		TemplateID:   row.TemplateID.Ptr(),
		StartTime:    row.StartTime.UTC(),
		EndTime:      row.EndTime.UTC(),
		MaxStudents:  row.MaxStudents,
		Status:       schedule.ClassStatus(row.Status),
		StudentIDs:   studentIDs,
		Notes:        row.Notes,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
}

type templateRow struct {
	ID                    string             `db:"id"`
	Title                 string             `db:"title"`
	InstructorID          string             `db:"instructor_id"`
	DayOfWeek             int                `db:"day_of_week"`
	StartTime             schedule.TimeOfDay `db:"start_time"`
	EndTime               schedule.TimeOfDay `db:"end_time"`
	StartDate             time.Time          `db:"start_date"`
	EndDate               null.Time          `db:"end_date"`
	MaxStudents           int                `db:"max_students"`
	AutoReplicateStudents bool               `db:"auto_replicate_students"`
	IsActive              bool               `db:"is_active"`
	CreatedAt             time.Time          `db:"created_at"`
	UpdatedAt             time.Time          `db:"updated_at"`
}

func (row templateRow) template(studentIDs []string) schedule.Template {
	if studentIDs == nil {
		studentIDs = []string{}
	}
	tpl := schedule.Template{
		ID:                    row.ID,
		Title:                 row.Title,
		InstructorID:          row.InstructorID,
		DayOfWeek:             row.DayOfWeek,
		StartTime:             row.StartTime,
		EndTime:               row.EndTime,
		StartDate:             dateOf(row.StartDate),
		MaxStudents:           row.MaxStudents,
		AutoReplicateStudents: row.AutoReplicateStudents,
		StudentIDs:            studentIDs,
		IsActive:              row.IsActive,
		CreatedAt:             row.CreatedAt.UTC(),
		UpdatedAt:             row.UpdatedAt.UTC(),
	}
	if row.EndDate.Valid {
		end := dateOf(row.EndDate.Time)
		tpl.EndDate = &end
	}
	return tpl
}

// templateArgs binds the date columns as calendar days.
func templateArgs(tpl schedule.Template) map[string]interface{} {
	var endDate interface{}
	if tpl.EndDate != nil {
		endDate = dateArg(*tpl.EndDate)
	}
	return map[string]interface{}{
		"id":                      tpl.ID,
		"title":                   tpl.Title,
		"instructor_id":           tpl.InstructorID,
		"day_of_week":             tpl.DayOfWeek,
		"start_time":              tpl.StartTime,
		"end_time":                tpl.EndTime,
		"start_date":              dateArg(tpl.StartDate),
		"end_date":                endDate,
		"max_students":            tpl.MaxStudents,
		"auto_replicate_students": tpl.AutoReplicateStudents,
		"is_active":               tpl.IsActive,
		"created_at":              tpl.CreatedAt.UTC(),
		"updated_at":              tpl.UpdatedAt.UTC(),
	}
}

type memberRow struct {
	OwnerID   string `db:"owner_id"`
	StudentID string `db:"student_id"`
}

type scheduleRepository struct {
	*Store
}

var _ schedule.Repository = (*scheduleRepository)(nil)

func NewScheduleRepository(s *Store) *scheduleRepository {
	return &scheduleRepository{Store: s}
}

// members loads the ordered student ids of the given classes or templates.
func (repo *scheduleRepository) members(ctx context.Context, table, ownerCol string, ownerIDs []string) (map[string][]string, error) {
	res := make(map[string][]string, len(ownerIDs))
	if len(ownerIDs) == 0 {
		return res, nil
	}
	ext := repo.ext(ctx)
	q, args, err := bind(ext,
		"SELECT "+ownerCol+" AS owner_id, student_id FROM "+table+" WHERE "+ownerCol+" IN (?) ORDER BY "+ownerCol+", position",
		ownerIDs)
	if err != nil {
		return nil, err
	}
	var rows []memberRow
	if err = ext.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, dbErr(err, nil, "querying "+table)
	}
	for _, row := range rows {
		res[row.OwnerID] = append(res[row.OwnerID], row.StudentID)
	}
	return res, nil
}

// setMembers replaces the student ids of a class or template.
func (repo *scheduleRepository) setMembers(ctx context.Context, table, ownerCol, ownerID string, studentIDs []string) error {
	ext := repo.ext(ctx)
	if _, err := ext.ExecContext(ctx, "DELETE FROM "+table+" WHERE "+ownerCol+" = $1", ownerID); err != nil {
		return dbErr(err, nil, "clearing "+table)
	}
	for i, sid := range studentIDs {
		_, err := ext.ExecContext(ctx,
			"INSERT INTO "+table+" ("+ownerCol+", student_id, position) VALUES ($1, $2, $3)",
			ownerID, sid, i)
		if err != nil {
			return dbErr(err, nil, "inserting into "+table)
		}
	}
	return nil
}

func (repo *scheduleRepository) classes(ctx context.Context, rows []classRow) ([]schedule.Class, error) {
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	members, err := repo.members(ctx, "class_students", "class_id", ids)
	if err != nil {
		return nil, err
	}
	classes := make([]schedule.Class, 0, len(rows))
	for _, row := range rows {
		classes = append(classes, row.class(members[row.ID]))
	}
	return classes, nil
}

func (repo *scheduleRepository) CreateClass(ctx context.Context, cls schedule.Class) (schedule.Class, error) {
	var created schedule.Class
	err := repo.WithinTx(ctx, func(ctx context.Context) error {
		cls.ID = uuid.New().String()
		row := toClassRow(cls)
		_, err := sqlx.NamedExecContext(ctx, repo.ext(ctx), `
			INSERT INTO classes (`+classColumns+`)
			VALUES (:id, :title, :instructor_id, :template_id, :start_time, :end_time, :max_students, :status, :notes, :created_at, :updated_at)`,
			row)
		if err != nil {
			if isUniqueViolation(err, classTemplateStartIdx) {
				return core.NewConflictError("template already has a class at this time")
			}
			return dbErr(err, nil, "inserting class")
		}
		if err = repo.setMembers(ctx, "class_students", "class_id", cls.ID, cls.StudentIDs); err != nil {
			return err
		}
		created = row.class(append([]string{}, cls.StudentIDs...))
		return nil
	})
	return created, err
}

func (repo *scheduleRepository) getClass(ctx context.Context, id string, lock bool) (schedule.Class, error) {
	if !validID(id) {
		return schedule.Class{}, schedule.ErrClassNotFound
	}
	q := "SELECT " + classColumns + " FROM classes WHERE id = $1"
	if lock {
		q += " FOR UPDATE"
	}
	var row classRow
	if err := repo.ext(ctx).GetContext(ctx, &row, q, id); err != nil {
		return schedule.Class{}, dbErr(err, schedule.ErrClassNotFound, "getting class")
	}
	classes, err := repo.classes(ctx, []classRow{row})
	if err != nil {
		return schedule.Class{}, err
	}
	return classes[0], nil
}

func (repo *scheduleRepository) GetClass(ctx context.Context, id string) (schedule.Class, error) {
	return repo.getClass(ctx, id, false)
}

func (repo *scheduleRepository) GetClassForUpdate(ctx context.Context, id string) (schedule.Class, error) {
	return repo.getClass(ctx, id, true)
}

func (repo *scheduleRepository) QueryClasses(ctx context.Context, filter *schedule.ClassFilter, ordering []core.DBOrdering) ([]schedule.Class, error) {
	var w where
	if filter != nil {
		if filter.InstructorID != "" {
			w.add("instructor_id = ?", filter.InstructorID)
		}
		if filter.TemplateID != "" {
			w.add("template_id = ?", filter.TemplateID)
		}
		if filter.StudentID != "" {
			w.add("id IN (SELECT class_id FROM class_students WHERE student_id = ?)", filter.StudentID)
		}
		if filter.ExcludeID != "" {
			w.add("id <> ?", filter.ExcludeID)
		}
		if len(filter.Statuses) > 0 {
			statuses := make([]string, 0, len(filter.Statuses))
			for _, st := range filter.Statuses {
				statuses = append(statuses, string(st))
			}
			w.add("status IN (?)", statuses)
		}
		// classes overlapping [From, To)
		if !filter.From.IsZero() {
			w.add("end_time > ?", filter.From.UTC())
		}
		if !filter.To.IsZero() {
			w.add("start_time < ?", filter.To.UTC())
		}
	}

	ext := repo.ext(ctx)
	q, args, err := bind(ext, "SELECT "+classColumns+" FROM classes"+w.String()+orderBy(ordering, classOrderings, "start_time ASC, id ASC"), w.args...)
	if err != nil {
		return nil, err
	}
	var rows []classRow
	if err = ext.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, dbErr(err, nil, "querying classes")
	}
	return repo.classes(ctx, rows)
}

func (repo *scheduleRepository) UpdateClass(ctx context.Context, cls schedule.Class) (schedule.Class, error) {
	var updated schedule.Class
	err := repo.WithinTx(ctx, func(ctx context.Context) error {
		row := toClassRow(cls)
		res, err := sqlx.NamedExecContext(ctx, repo.ext(ctx), `
			UPDATE classes SET
				title = :title, instructor_id = :instructor_id, template_id = :template_id,
				start_time = :start_time, end_time = :end_time, max_students = :max_students,
				status = :status, notes = :notes, updated_at = :updated_at
			WHERE id = :id`,
			row)
		if err != nil {
			return dbErr(err, nil, "updating class")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return schedule.ErrClassNotFound
		}
		if err = repo.setMembers(ctx, "class_students", "class_id", cls.ID, cls.StudentIDs); err != nil {
			return err
		}
		updated = row.class(append([]string{}, cls.StudentIDs...))
		return nil
	})
	return updated, err
}

func (repo *scheduleRepository) ClassExists(ctx context.Context, templateID string, start time.Time) (bool, error) {
	var exists bool
	err := repo.ext(ctx).GetContext(ctx, &exists,
		"SELECT EXISTS (SELECT 1 FROM classes WHERE template_id = $1 AND start_time = $2)",
		templateID, start.UTC())
	return exists, dbErr(err, nil, "checking class")
}

func (repo *scheduleRepository) DeleteFutureClasses(ctx context.Context, templateID string, after time.Time) (int, error) {
	res, err := repo.ext(ctx).ExecContext(ctx,
		"DELETE FROM classes WHERE template_id = $1 AND start_time > $2",
		templateID, after.UTC())
	if err != nil {
		return 0, dbErr(err, nil, "deleting future classes")
	}
	n, err := res.RowsAffected()
	return int(n), dbErr(err, nil, "deleting future classes")
}

// LockInstructor takes a transaction-scoped advisory lock keyed on the instructor,
// so concurrent bookings check for conflicts one at a time.
func (repo *scheduleRepository) LockInstructor(ctx context.Context, instructorID string) error {
	_, err := repo.ext(ctx).ExecContext(ctx,
		"SELECT pg_advisory_xact_lock(hashtext('classes:' || $1))", instructorID)
	return dbErr(err, nil, "locking instructor schedule")
}

func (repo *scheduleRepository) templates(ctx context.Context, rows []templateRow) ([]schedule.Template, error) {
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	members, err := repo.members(ctx, "class_template_students", "template_id", ids)
	if err != nil {
		return nil, err
	}
	tpls := make([]schedule.Template, 0, len(rows))
	for _, row := range rows {
		tpls = append(tpls, row.template(members[row.ID]))
	}
	return tpls, nil
}

func (repo *scheduleRepository) CreateTemplate(ctx context.Context, tpl schedule.Template) (schedule.Template, error) {
	err := repo.WithinTx(ctx, func(ctx context.Context) error {
		tpl.ID = uuid.New().String()
		_, err := sqlx.NamedExecContext(ctx, repo.ext(ctx), `
			INSERT INTO class_templates (`+templateColumns+`)
			VALUES (:id, :title, :instructor_id, :day_of_week, :start_time, :end_time, :start_date, :end_date,
				:max_students, :auto_replicate_students, :is_active, :created_at, :updated_at)`,
			templateArgs(tpl))
		if err != nil {
			return dbErr(err, nil, "inserting template")
		}
		return repo.setMembers(ctx, "class_template_students", "template_id", tpl.ID, tpl.StudentIDs)
	})
	if err != nil {
		return schedule.Template{}, err
	}
	return repo.GetTemplate(ctx, tpl.ID)
}

func (repo *scheduleRepository) GetTemplate(ctx context.Context, id string) (schedule.Template, error) {
	if !validID(id) {
		return schedule.Template{}, schedule.ErrTemplateNotFound
	}
	var row templateRow
	if err := repo.ext(ctx).GetContext(ctx, &row, "SELECT "+templateColumns+" FROM class_templates WHERE id = $1", id); err != nil {
		return schedule.Template{}, dbErr(err, schedule.ErrTemplateNotFound, "getting template")
	}
	tpls, err := repo.templates(ctx, []templateRow{row})
	if err != nil {
		return schedule.Template{}, err
	}
	return tpls[0], nil
}

func (repo *scheduleRepository) QueryTemplates(ctx context.Context, filter *schedule.TemplateFilter) ([]schedule.Template, error) {
	var w where
	if filter != nil {
		if filter.InstructorID != "" {
			w.add("instructor_id = ?", filter.InstructorID)
		}
		if filter.IsActive != nil {
			w.add("is_active = ?", *filter.IsActive)
		}
	}

	ext := repo.ext(ctx)
	q, args, err := bind(ext, "SELECT "+templateColumns+" FROM class_templates"+w.String()+" ORDER BY day_of_week, start_time, id", w.args...)
	if err != nil {
		return nil, err
	}
	var rows []templateRow
	if err = ext.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, dbErr(err, nil, "querying templates")
	}
	return repo.templates(ctx, rows)
}

func (repo *scheduleRepository) UpdateTemplate(ctx context.Context, tpl schedule.Template) (schedule.Template, error) {
	err := repo.WithinTx(ctx, func(ctx context.Context) error {
		res, err := sqlx.NamedExecContext(ctx, repo.ext(ctx), `
			UPDATE class_templates SET
				title = :title, instructor_id = :instructor_id, day_of_week = :day_of_week,
				start_time = :start_time, end_time = :end_time, start_date = :start_date, end_date = :end_date,
				max_students = :max_students, auto_replicate_students = :auto_replicate_students,
				is_active = :is_active, updated_at = :updated_at
			WHERE id = :id`,
			templateArgs(tpl))
		if err != nil {
			return dbErr(err, nil, "updating template")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return schedule.ErrTemplateNotFound
		}
		return repo.setMembers(ctx, "class_template_students", "template_id", tpl.ID, tpl.StudentIDs)
	})
	if err != nil {
		return schedule.Template{}, err
	}
	return repo.GetTemplate(ctx, tpl.ID)
}

func (repo *scheduleRepository) DeleteTemplate(ctx context.Context, id string) error {
	if !validID(id) {
		return schedule.ErrTemplateNotFound
	}
	res, err := repo.ext(ctx).ExecContext(ctx, "DELETE FROM class_templates WHERE id = $1", id)
	if err != nil {
		return dbErr(err, nil, "deleting template")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return schedule.ErrTemplateNotFound
	}
	return nil
}
