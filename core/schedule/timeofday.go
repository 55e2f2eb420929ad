package schedule

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time within a day, stored as the offset from midnight.
type TimeOfDay time.Duration

const timeOfDayLayout = "15:04:05"

func NewTimeOfDay(hour, min, sec int) TimeOfDay {
	return TimeOfDay(time.Duration(hour)*time.Hour + time.Duration(min)*time.Minute + time.Duration(sec)*time.Second)
}

// ParseTimeOfDay accepts "15:04" and "15:04:05".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	layout := timeOfDayLayout
	if strings.Count(s, ":") == 1 {
		layout = "15:04"
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return NewTimeOfDay(t.Hour(), t.Minute(), t.Second()), nil
}

func (t TimeOfDay) Valid() bool {
	return t >= 0 && time.Duration(t) < 24*time.Hour
}

func (t TimeOfDay) clock() (hour, min, sec int) {
	d := time.Duration(t)
	return int(d / time.Hour), int((d % time.Hour) / time.Minute), int((d % time.Minute) / time.Second)
}

func (t TimeOfDay) String() string {
	h, m, s := t.clock()
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// On places t on the calendar day of date, in loc.
func (t TimeOfDay) On(date time.Time, loc *time.Location) time.Time {
	y, m, d := date.Date()
	h, mi, s := t.clock()
	return time.Date(y, m, d, h, mi, s, 0, loc)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Scan reads a postgres TIME column.
func (t *TimeOfDay) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return t.scanString(string(v))
	case string:
		return t.scanString(v)
	case time.Time:
		*t = NewTimeOfDay(v.Hour(), v.Minute(), v.Second())
		return nil
	case nil:
		*t = 0
		return nil
	}
	return fmt.Errorf("cannot scan %T into TimeOfDay", src)
}

func (t *TimeOfDay) scanString(s string) error {
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i] // drop fractional seconds
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t TimeOfDay) Value() (driver.Value, error) {
	return t.String(), nil
}
