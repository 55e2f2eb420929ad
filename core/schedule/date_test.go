package schedule_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/murilobento/studiofisiopilates-sub000/core/schedule"
)

func TestNewTemplate_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantStart time.Time
		wantEnd   *time.Time
		wantErr   bool
	}{
		{
			name:      "plain dates",
			body:      `{"start_date": "2024-01-01", "end_date": "2024-01-31"}`,
			wantStart: at(1, 0, 0),
			wantEnd:   timePtr(at(31, 0, 0)),
		},
		{
			name:      "timestamps",
			body:      `{"start_date": "2024-01-01T00:00:00Z", "end_date": "2024-01-31T00:00:00Z"}`,
			wantStart: at(1, 0, 0),
			wantEnd:   timePtr(at(31, 0, 0)),
		},
		{name: "open ended", body: `{"start_date": "2024-01-01", "end_date": null}`, wantStart: at(1, 0, 0)},
		{name: "no dates", body: `{}`},
		{name: "bad date", body: `{"start_date": "01/01/2024"}`, wantErr: true},
		{name: "not a string", body: `{"start_date": 20240101}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var nt schedule.NewTemplate
			err := json.Unmarshal([]byte(tt.body), &nt)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.wantStart.Equal(nt.StartDate), "start: %s", nt.StartDate)
			if tt.wantEnd == nil {
				assert.Nil(t, nt.EndDate)
			} else if assert.NotNil(t, nt.EndDate) {
				assert.True(t, tt.wantEnd.Equal(*nt.EndDate), "end: %s", *nt.EndDate)
			}
		})
	}

	t.Run("other fields", func(t *testing.T) {
		var ut schedule.UpdateTemplate
		body := `{"title": "Pilates", "day_of_week": 3, "start_time": "09:00", "end_time": "10:00", "start_date": "2024-01-01", "max_students": 4}`
		require.NoError(t, json.Unmarshal([]byte(body), &ut))
		assert.Equal(t, "Pilates", ut.Title)
		assert.Equal(t, 3, ut.DayOfWeek)
		assert.Equal(t, schedule.NewTimeOfDay(9, 0, 0), ut.StartTime)
		assert.Equal(t, schedule.NewTimeOfDay(10, 0, 0), ut.EndTime)
		assert.Equal(t, 4, ut.MaxStudents)
		assert.True(t, at(1, 0, 0).Equal(ut.StartDate))
	})
}

func timePtr(t time.Time) *time.Time { return &t }
