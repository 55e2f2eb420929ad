package schedule

import (
	"fmt"
	"time"

	"github.com/murilobento/studiofisiopilates-sub000/core"
)

// ConflictPolicy decides what expansion does with a slot overlapping another class of the instructor.
type ConflictPolicy string

const (
	// ConflictIgnore creates the class anyway.
	ConflictIgnore ConflictPolicy = "ignore"
	// ConflictSkip leaves the slot out and reports it.
	ConflictSkip ConflictPolicy = "skip"
)

const defaultHorizonMonths = 3

func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch p := ConflictPolicy(core.CleanString(s, true /* lower */)); p {
	case ConflictIgnore, ConflictSkip:
		return p, nil
	case "":
		return ConflictIgnore, nil
	}
	return "", fmt.Errorf("invalid conflict policy %q", s)
}

type ExpandConfig struct {
	ConflictPolicy ConflictPolicy
	// SkipPast leaves out slots starting before now when a template is first created.
	SkipPast bool
	// HorizonMonths bounds the expansion of templates without an end date.
	HorizonMonths int
	Location      *time.Location
}

func NewExpandConfig(conf *core.Config) (ExpandConfig, error) {
	policy, err := ParseConflictPolicy(conf.Schedule.ConflictPolicy)
	if err != nil {
		return ExpandConfig{}, err
	}
	return ExpandConfig{
		ConflictPolicy: policy,
		SkipPast:       conf.Schedule.SkipPast,
		HorizonMonths:  conf.Schedule.HorizonMonths,
		Location:       conf.Location(),
	}, nil
}

func (c ExpandConfig) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

func (c ExpandConfig) horizon() int {
	if c.HorizonMonths <= 0 {
		return defaultHorizonMonths
	}
	return c.HorizonMonths
}

type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type ExpandResult struct {
	Created         []Class `json:"created"`
	Conflicts       []Slot  `json:"conflicts"`
	SkippedPast     int     `json:"skipped_past"`
	SkippedExisting int     `json:"skipped_existing"`
}

func (r ExpandResult) CreatedCount() int { return len(r.Created) }

// ExpandRange is the calendar range a template covers: [StartDate, EndDate], or the configured
// horizon counted from the later of StartDate and today when the template has no end date.
func ExpandRange(tpl Template, now time.Time, conf ExpandConfig) (from, to time.Time) {
	loc := conf.location()
	from = dateIn(tpl.StartDate, loc)
	if tpl.EndDate != nil {
		return from, dateIn(*tpl.EndDate, loc)
	}
	base := dateIn(now.In(loc), loc)
	if from.After(base) {
		base = from
	}
	return from, base.AddDate(0, conf.horizon(), 0)
}

// Occurrences lists the slots of tpl on every matching weekday within [from, to], both dates included.
func Occurrences(tpl Template, from, to time.Time, loc *time.Location) []Slot {
	if loc == nil {
		loc = time.UTC
	}
	from, to = dateIn(from, loc), dateIn(to, loc)
	if to.Before(from) {
		return nil
	}

	// first matching day
	offset := (int(tpl.Weekday()) - int(from.Weekday()) + 7) % 7
	day := from.AddDate(0, 0, offset)

	var slots []Slot
	for !day.After(to) {
		slots = append(slots, Slot{
			Start: tpl.StartTime.On(day, loc),
			End:   tpl.EndTime.On(day, loc),
		})
		day = day.AddDate(0, 0, 7)
	}
	return slots
}

// dateIn keeps the calendar day of t and moves it to midnight in loc.
func dateIn(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
