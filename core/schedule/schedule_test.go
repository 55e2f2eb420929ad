package schedule_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/murilobento/studiofisiopilates-sub000/core"
	"github.com/murilobento/studiofisiopilates-sub000/core/schedule"
	"github.com/murilobento/studiofisiopilates-sub000/core/user"
	"github.com/murilobento/studiofisiopilates-sub000/tests"
)

func at(day, hour, min int) time.Time {
	return time.Date(2024, time.January, day, hour, min, 0, 0, time.UTC)
}

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name                       string
		aStart, aEnd, bStart, bEnd time.Time
		want                       bool
	}{
		{"same interval", at(10, 9, 0), at(10, 10, 0), at(10, 9, 0), at(10, 10, 0), true},
		{"b inside a", at(10, 9, 0), at(10, 11, 0), at(10, 9, 30), at(10, 10, 0), true},
		{"partial start", at(10, 9, 0), at(10, 10, 0), at(10, 8, 30), at(10, 9, 30), true},
		{"partial end", at(10, 9, 0), at(10, 10, 0), at(10, 9, 59), at(10, 11, 0), true},
		{"b ends when a starts", at(10, 9, 0), at(10, 10, 0), at(10, 8, 0), at(10, 9, 0), false},
		{"b starts when a ends", at(10, 9, 0), at(10, 10, 0), at(10, 10, 0), at(10, 11, 0), false},
		{"disjoint", at(10, 9, 0), at(10, 10, 0), at(11, 9, 0), at(11, 10, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, schedule.Overlaps(tt.aStart, tt.aEnd, tt.bStart, tt.bEnd))
			assert.Equal(t, tt.want, schedule.Overlaps(tt.bStart, tt.bEnd, tt.aStart, tt.aEnd), "symmetric")
		})
	}
}

func TestOccurrences(t *testing.T) {
	tpl := schedule.Template{
		DayOfWeek: 3, // Wednesday
		StartTime: schedule.NewTimeOfDay(9, 0, 0),
		EndTime:   schedule.NewTimeOfDay(10, 0, 0),
	}

	tests := []struct {
		name      string
		dayOfWeek int
		from, to  time.Time
		wantDays  []int
	}{
		{"wednesdays of january", 3, at(1, 0, 0), at(31, 0, 0), []int{3, 10, 17, 24, 31}},
		{"range starts on the weekday", 3, at(10, 0, 0), at(17, 0, 0), []int{10, 17}},
		{"sunday is day 7", 7, at(1, 0, 0), at(14, 0, 0), []int{7, 14}},
		{"monday is day 1", 1, at(1, 0, 0), at(8, 0, 0), []int{1, 8}},
		{"no matching day", 3, at(4, 0, 0), at(9, 0, 0), nil},
		{"reversed range", 3, at(31, 0, 0), at(1, 0, 0), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tpl.DayOfWeek = tt.dayOfWeek
			slots := schedule.Occurrences(tpl, tt.from, tt.to, time.UTC)
			require.Len(t, slots, len(tt.wantDays))
			for i, day := range tt.wantDays {
				assert.Equal(t, at(day, 9, 0), slots[i].Start)
				assert.Equal(t, at(day, 10, 0), slots[i].End)
			}
		})
	}
}

func TestOccurrences_location(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	tpl := schedule.Template{
		DayOfWeek: 3,
		StartTime: schedule.NewTimeOfDay(18, 30, 0),
		EndTime:   schedule.NewTimeOfDay(19, 30, 0),
	}
	slots := schedule.Occurrences(tpl, at(1, 0, 0), at(7, 0, 0), loc)
	require.Len(t, slots, 1)
	assert.Equal(t, time.Date(2024, time.January, 3, 18, 30, 0, 0, loc), slots[0].Start)
	assert.Equal(t, 21, slots[0].Start.UTC().Hour())
}

func TestExpandRange(t *testing.T) {
	end := at(31, 0, 0)
	conf := schedule.ExpandConfig{HorizonMonths: 2, Location: time.UTC}

	from, to := schedule.ExpandRange(schedule.Template{StartDate: at(1, 0, 0), EndDate: &end}, at(15, 12, 0), conf)
	assert.Equal(t, at(1, 0, 0), from)
	assert.Equal(t, at(31, 0, 0), to)

	// open-ended: horizon counted from today
	from, to = schedule.ExpandRange(schedule.Template{StartDate: at(1, 0, 0)}, at(15, 12, 0), conf)
	assert.Equal(t, at(1, 0, 0), from)
	assert.Equal(t, time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC), to)

	// open-ended starting in the future: horizon counted from the start date
	from, to = schedule.ExpandRange(schedule.Template{StartDate: at(20, 0, 0)}, at(15, 12, 0), schedule.ExpandConfig{})
	assert.Equal(t, at(20, 0, 0), from)
	assert.Equal(t, time.Date(2024, time.April, 20, 0, 0, 0, 0, time.UTC), to)
}

func TestParseConflictPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    schedule.ConflictPolicy
		wantErr bool
	}{
		{"", schedule.ConflictIgnore, false},
		{"ignore", schedule.ConflictIgnore, false},
		{" SKIP ", schedule.ConflictSkip, false},
		{"reject", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := schedule.ParseConflictPolicy(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTimeOfDay(t *testing.T) {
	tod, err := schedule.ParseTimeOfDay("07:30")
	require.NoError(t, err)
	assert.Equal(t, "07:30:00", tod.String())

	data, err := tod.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"07:30:00"`, string(data))

	var scanned schedule.TimeOfDay
	require.NoError(t, scanned.Scan([]byte("18:45:10.000000")))
	assert.Equal(t, schedule.NewTimeOfDay(18, 45, 10), scanned)

	_, err = schedule.ParseTimeOfDay("25:00")
	assert.Error(t, err)
}

type fixture struct {
	env        *testutil.Env
	instructor user.User
}

func setup(t *testing.T, now time.Time, opts ...func(conf *core.Config)) fixture {
	env := testutil.NewEnv(t, now, opts...)
	instructor := testutil.CreateUser(t, env.Repos.Users, "Ana", "ana", "ana@studio.com", "", user.RoleInstructor, true, nil)
	return fixture{env: env, instructor: instructor}
}

func (f fixture) newTemplate(day int, start, end time.Time, endDate *time.Time) schedule.NewTemplate {
	return schedule.NewTemplate{
		Title:        "Pilates",
		InstructorID: f.instructor.ID,
		DayOfWeek:    day,
		StartTime:    schedule.NewTimeOfDay(9, 0, 0),
		EndTime:      schedule.NewTimeOfDay(10, 0, 0),
		StartDate:    start,
		EndDate:      endDate,
		MaxStudents:  3,
	}
}

func (f fixture) newClass(start, end time.Time) schedule.NewClass {
	return schedule.NewClass{
		Title:        "Private",
		InstructorID: f.instructor.ID,
		StartTime:    start,
		EndTime:      end,
		MaxStudents:  1,
	}
}

func TestService_CreateClass(t *testing.T) {
	ctx := context.Background()
	f := setup(t, at(1, 8, 0))
	svc := f.env.Schedule

	_, err := svc.CreateClass(ctx, f.newClass(at(10, 9, 0), at(10, 10, 0)))
	require.NoError(t, err)

	tests := []struct {
		name       string
		start, end time.Time
		wantErr    error
	}{
		{"overlapping", at(10, 9, 30), at(10, 10, 30), schedule.ErrInstructorBusy},
		{"containing", at(10, 8, 0), at(10, 11, 0), schedule.ErrInstructorBusy},
		{"touching before", at(10, 8, 0), at(10, 9, 0), nil},
		{"touching after", at(10, 10, 0), at(10, 11, 0), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateClass(ctx, f.newClass(tt.start, tt.end))
			assert.Equal(t, tt.wantErr, errors.Cause(err))
		})
	}

	t.Run("inactive instructor", func(t *testing.T) {
		inactive := testutil.CreateUser(t, f.env.Repos.Users, "Bia", "bia", "bia@studio.com", "", user.RoleInstructor, false, nil)
		nc := f.newClass(at(12, 9, 0), at(12, 10, 0))
		nc.InstructorID = inactive.ID
		_, err := svc.CreateClass(ctx, nc)
		assert.IsType(t, &core.ValidationError{}, errors.Cause(err))
	})
}

func TestService_HasConflict_ignoresCancelledAndExcluded(t *testing.T) {
	ctx := context.Background()
	f := setup(t, at(1, 8, 0))
	svc := f.env.Schedule

	cls, err := svc.CreateClass(ctx, f.newClass(at(10, 9, 0), at(10, 10, 0)))
	require.NoError(t, err)

	busy, err := svc.HasConflict(ctx, f.instructor.ID, at(10, 9, 0), at(10, 10, 0), "")
	require.NoError(t, err)
	assert.True(t, busy)

	busy, err = svc.HasConflict(ctx, f.instructor.ID, at(10, 9, 0), at(10, 10, 0), cls.ID)
	require.NoError(t, err)
	assert.False(t, busy, "excluded class")

	_, err = svc.Cancel(ctx, cls.ID)
	require.NoError(t, err)
	busy, err = svc.HasConflict(ctx, f.instructor.ID, at(10, 9, 0), at(10, 10, 0), "")
	require.NoError(t, err)
	assert.False(t, busy, "cancelled class")
}

func TestService_CreateTemplate(t *testing.T) {
	ctx := context.Background()
	end := at(31, 0, 0)

	tests := []struct {
		name         string
		now          time.Time
		policy       schedule.ConflictPolicy
		skipPast     bool
		busy         bool
		wantCreated  int
		wantConflict int
		wantPast     int
	}{
		{"every wednesday", at(1, 8, 0), schedule.ConflictIgnore, false, false, 5, 0, 0},
		{"conflicts ignored", at(1, 8, 0), schedule.ConflictIgnore, false, true, 5, 0, 0},
		{"conflicts skipped", at(1, 8, 0), schedule.ConflictSkip, false, true, 4, 1, 0},
		{"past slots kept", at(15, 8, 0), schedule.ConflictIgnore, false, false, 5, 0, 0},
		{"past slots skipped", at(15, 8, 0), schedule.ConflictIgnore, true, false, 3, 0, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t, tt.now, func(conf *core.Config) {
				conf.Schedule.ConflictPolicy = string(tt.policy)
				conf.Schedule.SkipPast = tt.skipPast
			})
			if tt.busy {
				_, err := f.env.Schedule.CreateClass(ctx, f.newClass(at(10, 9, 30), at(10, 10, 30)))
				require.NoError(t, err)
			}

			tpl, res, err := f.env.Schedule.CreateTemplate(ctx, f.newTemplate(3, at(1, 0, 0), at(31, 0, 0), &end))
			require.NoError(t, err)
			assert.True(t, tpl.IsActive)
			assert.Len(t, res.Created, tt.wantCreated)
			assert.Len(t, res.Conflicts, tt.wantConflict)
			assert.Equal(t, tt.wantPast, res.SkippedPast)
			for _, cls := range res.Created {
				require.NotNil(t, cls.TemplateID)
				assert.Equal(t, tpl.ID, *cls.TemplateID)
				assert.Equal(t, time.Wednesday, cls.StartTime.Weekday())
				assert.Equal(t, schedule.StatusScheduled, cls.Status)
			}
		})
	}
}

func TestService_Expand_idempotent(t *testing.T) {
	ctx := context.Background()
	f := setup(t, at(1, 8, 0))
	end := at(31, 0, 0)

	tpl, res, err := f.env.Schedule.CreateTemplate(ctx, f.newTemplate(3, at(1, 0, 0), end, &end))
	require.NoError(t, err)
	require.Len(t, res.Created, 5)

	res, err = f.env.Schedule.Expand(ctx, tpl)
	require.NoError(t, err)
	assert.Empty(t, res.Created)
	assert.Equal(t, 5, res.SkippedExisting)

	tpl.IsActive = false
	res, err = f.env.Schedule.Expand(ctx, tpl)
	require.NoError(t, err)
	assert.Empty(t, res.Created)
	assert.Zero(t, res.SkippedExisting)
}

func TestService_Expand_replicatesStudents(t *testing.T) {
	ctx := context.Background()
	f := setup(t, at(1, 8, 0))
	plan := testutil.CreatePlan(t, f.env.Repos.Students, "Monthly", "200")
	var ids []string
	for _, name := range []string{"A", "B", "C", "D"} {
		ids = append(ids, testutil.CreateStudent(t, f.env.Repos.Students, name, plan.ID, "", "active", nil).ID)
	}

	end := at(7, 0, 0)
	nt := f.newTemplate(3, at(1, 0, 0), end, &end)
	nt.AutoReplicateStudents = true
	nt.StudentIDs = ids

	_, res, err := f.env.Schedule.CreateTemplate(ctx, nt)
	require.NoError(t, err)
	require.Len(t, res.Created, 1)
	assert.Equal(t, ids[:3], res.Created[0].StudentIDs, "capped at capacity")
}

func TestService_TemplateLifecycle(t *testing.T) {
	ctx := context.Background()
	f := setup(t, at(15, 8, 0))
	svc := f.env.Schedule
	end := at(31, 0, 0)

	tpl, res, err := svc.CreateTemplate(ctx, f.newTemplate(3, at(1, 0, 0), end, &end))
	require.NoError(t, err)
	require.Len(t, res.Created, 5)

	// moving the rule to fridays replaces the future wednesdays only
	ut := schedule.UpdateTemplate(f.newTemplate(5, at(1, 0, 0), end, &end))
	tpl, res, err = svc.UpdateTemplate(ctx, tpl.ID, ut)
	require.NoError(t, err)
	assert.Len(t, res.Created, 2) // 19, 26
	assert.Equal(t, 2, res.SkippedPast)
	assert.Equal(t, 5, tpl.DayOfWeek)

	classes, err := svc.QueryClasses(ctx, &schedule.ClassFilter{TemplateID: tpl.ID}, nil)
	require.NoError(t, err)
	var wednesdays, fridays int
	for _, cls := range classes {
		switch cls.StartTime.Weekday() {
		case time.Wednesday:
			wednesdays++
		case time.Friday:
			fridays++
			assert.True(t, cls.StartTime.After(at(15, 8, 0)), "no backdated fridays")
		}
	}
	assert.Equal(t, 2, wednesdays, "past classes are kept")
	assert.Equal(t, 2, fridays)

	tpl, _, err = svc.SetTemplateActive(ctx, tpl.ID, false)
	require.NoError(t, err)
	assert.False(t, tpl.IsActive)
	classes, err = svc.QueryClasses(ctx, &schedule.ClassFilter{TemplateID: tpl.ID}, nil)
	require.NoError(t, err)
	assert.Len(t, classes, 2, "only the past wednesdays remain")

	// resuming a week later skips the friday that went by while paused
	f.env.Clock.Set(at(22, 8, 0))
	_, res, err = svc.SetTemplateActive(ctx, tpl.ID, true)
	require.NoError(t, err)
	require.Len(t, res.Created, 1)
	assert.Equal(t, at(26, 9, 0), res.Created[0].StartTime)
	assert.Equal(t, 3, res.SkippedPast)

	deleted, err := svc.DeleteTemplate(ctx, tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	_, err = svc.GetTemplate(ctx, tpl.ID)
	assert.Equal(t, schedule.ErrTemplateNotFound, errors.Cause(err))
}

func TestService_UpdateTemplate_timeOfDay(t *testing.T) {
	ctx := context.Background()
	f := setup(t, at(15, 8, 0))
	svc := f.env.Schedule
	end := at(31, 0, 0)

	tpl, res, err := svc.CreateTemplate(ctx, f.newTemplate(3, at(1, 0, 0), end, &end))
	require.NoError(t, err)
	require.Len(t, res.Created, 5)

	ut := schedule.UpdateTemplate(f.newTemplate(3, at(1, 0, 0), end, &end))
	ut.StartTime = schedule.NewTimeOfDay(11, 0, 0)
	ut.EndTime = schedule.NewTimeOfDay(12, 0, 0)
	_, res, err = svc.UpdateTemplate(ctx, tpl.ID, ut)
	require.NoError(t, err)
	require.Len(t, res.Created, 3)
	for i, day := range []int{17, 24, 31} {
		assert.Equal(t, at(day, 11, 0), res.Created[i].StartTime)
	}

	classes, err := svc.QueryClasses(ctx, &schedule.ClassFilter{TemplateID: tpl.ID}, nil)
	require.NoError(t, err)
	perDay := map[int][]int{}
	for _, cls := range classes {
		perDay[cls.StartTime.Day()] = append(perDay[cls.StartTime.Day()], cls.StartTime.Hour())
	}
	assert.Equal(t, map[int][]int{3: {9}, 10: {9}, 17: {11}, 24: {11}, 31: {11}}, perDay)
}

func TestService_Enrollment(t *testing.T) {
	ctx := context.Background()
	f := setup(t, at(1, 8, 0))
	svc := f.env.Schedule
	plan := testutil.CreatePlan(t, f.env.Repos.Students, "Monthly", "200")
	s1 := testutil.CreateStudent(t, f.env.Repos.Students, "S1", plan.ID, "", "active", nil)
	s2 := testutil.CreateStudent(t, f.env.Repos.Students, "S2", plan.ID, "", "active", nil)

	cls, err := svc.CreateClass(ctx, f.newClass(at(10, 9, 0), at(10, 10, 0)))
	require.NoError(t, err)

	cls, err = svc.Enroll(ctx, cls.ID, s1.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{s1.ID}, cls.StudentIDs)

	_, err = svc.Enroll(ctx, cls.ID, s1.ID)
	assert.Equal(t, schedule.ErrAlreadyEnrolled, errors.Cause(err))

	_, err = svc.Enroll(ctx, cls.ID, s2.ID)
	assert.Equal(t, schedule.ErrClassFull, errors.Cause(err))

	cls, err = svc.Unenroll(ctx, cls.ID, s1.ID)
	require.NoError(t, err)
	assert.Empty(t, cls.StudentIDs)

	_, err = svc.Unenroll(ctx, cls.ID, s1.ID)
	assert.Equal(t, schedule.ErrNotEnrolled, errors.Cause(err))
}

func TestService_ClassTransitions(t *testing.T) {
	ctx := context.Background()
	f := setup(t, at(1, 8, 0))
	svc := f.env.Schedule

	cls, err := svc.CreateClass(ctx, f.newClass(at(10, 9, 0), at(10, 10, 0)))
	require.NoError(t, err)

	cls, err = svc.Complete(ctx, cls.ID)
	require.NoError(t, err)
	assert.Equal(t, schedule.StatusCompleted, cls.Status)

	_, err = svc.Cancel(ctx, cls.ID)
	assert.True(t, core.IsInvalidTransition(err))

	title := "Renamed"
	_, err = svc.UpdateClass(ctx, cls.ID, schedule.UpdateClass{Title: title})
	assert.Equal(t, schedule.ErrClassNotEditable, errors.Cause(err))

	_, err = svc.Complete(ctx, "missing")
	assert.True(t, core.IsNotFound(err))
}

func TestService_UpdateClass(t *testing.T) {
	ctx := context.Background()
	f := setup(t, at(1, 8, 0))
	svc := f.env.Schedule

	_, err := svc.CreateClass(ctx, f.newClass(at(10, 9, 0), at(10, 10, 0)))
	require.NoError(t, err)
	cls, err := svc.CreateClass(ctx, f.newClass(at(10, 11, 0), at(10, 12, 0)))
	require.NoError(t, err)

	// its own slot never conflicts
	end := at(10, 12, 30)
	cls, err = svc.UpdateClass(ctx, cls.ID, schedule.UpdateClass{EndTime: &end})
	require.NoError(t, err)
	assert.Equal(t, end, cls.EndTime)

	start := at(10, 9, 30)
	_, err = svc.UpdateClass(ctx, cls.ID, schedule.UpdateClass{StartTime: &start})
	assert.Equal(t, schedule.ErrInstructorBusy, errors.Cause(err))

	start = at(10, 13, 0)
	_, err = svc.UpdateClass(ctx, cls.ID, schedule.UpdateClass{StartTime: &start})
	assert.IsType(t, &core.ValidationError{}, errors.Cause(err))
}

func TestService_ExpandActive(t *testing.T) {
	ctx := context.Background()
	f := setup(t, at(1, 8, 0))
	svc := f.env.Schedule

	tpl, res, err := svc.CreateTemplate(ctx, f.newTemplate(1, at(1, 0, 0), at(1, 0, 0), nil))
	require.NoError(t, err)
	initial := len(res.Created)
	require.NotZero(t, initial)

	// a month later the open-ended horizon moved forward
	f.env.Clock.Set(time.Date(2024, time.February, 1, 8, 0, 0, 0, time.UTC))
	results, err := svc.ExpandActive(ctx)
	require.NoError(t, err)
	require.Contains(t, results, tpl.ID)
	assert.NotEmpty(t, results[tpl.ID].Created)
	assert.Equal(t, 5, results[tpl.ID].SkippedPast) // mondays of january
	assert.Equal(t, initial-5, results[tpl.ID].SkippedExisting)
}

func TestService_ExpandActive_doesNotBackfill(t *testing.T) {
	ctx := context.Background()
	f := setup(t, at(15, 8, 0))
	svc := f.env.Schedule
	end := at(31, 0, 0)

	tpl, _, err := svc.CreateTemplate(ctx, f.newTemplate(3, at(1, 0, 0), end, &end))
	require.NoError(t, err)
	ut := schedule.UpdateTemplate(f.newTemplate(3, at(1, 0, 0), end, &end))
	ut.StartTime = schedule.NewTimeOfDay(11, 0, 0)
	ut.EndTime = schedule.NewTimeOfDay(12, 0, 0)
	_, _, err = svc.UpdateTemplate(ctx, tpl.ID, ut)
	require.NoError(t, err)

	results, err := svc.ExpandActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, results[tpl.ID].Created)
	assert.Equal(t, 2, results[tpl.ID].SkippedPast) // 3 and 10 at 11:00
	assert.Equal(t, 3, results[tpl.ID].SkippedExisting)
}

func TestService_CreateClass_concurrent(t *testing.T) {
	ctx := context.Background()
	f := setup(t, at(1, 8, 0))

	const n = 8
	var (
		wg   sync.WaitGroup
		errs = make(chan error, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			start := at(10, 9, i)
			_, err := f.env.Schedule.CreateClass(ctx, f.newClass(start, start.Add(time.Hour)))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	var booked int
	for err := range errs {
		if err == nil {
			booked++
			continue
		}
		assert.Equal(t, schedule.ErrInstructorBusy, errors.Cause(err))
	}
	assert.Equal(t, 1, booked)

	classes, err := f.env.Schedule.QueryClasses(ctx, &schedule.ClassFilter{InstructorID: f.instructor.ID}, nil)
	require.NoError(t, err)
	assert.Len(t, classes, 1)
}
