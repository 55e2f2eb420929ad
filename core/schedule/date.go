package schedule

import (
	"encoding/json"
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// jsonDate reads a calendar date given as "2006-01-02" or as an RFC 3339 timestamp.
// Plain dates are midnight UTC; only their calendar day matters.
type jsonDate time.Time

func (d *jsonDate) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for _, layout := range []string{time.RFC3339, dateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			*d = jsonDate(t)
			return nil
		}
	}
	return fmt.Errorf("invalid date %q", s)
}

// UnmarshalJSON accepts start_date and end_date as plain dates as well as timestamps.
func (nt *NewTemplate) UnmarshalJSON(data []byte) error {
	type alias NewTemplate
	aux := struct {
		*alias
		StartDate jsonDate  `json:"start_date"`
		EndDate   *jsonDate `json:"end_date"`
	}{alias: (*alias)(nt)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	nt.StartDate = time.Time(aux.StartDate)
	nt.EndDate = nil
	if aux.EndDate != nil {
		end := time.Time(*aux.EndDate)
		nt.EndDate = &end
	}
	return nil
}

func (ut *UpdateTemplate) UnmarshalJSON(data []byte) error {
	return (*NewTemplate)(ut).UnmarshalJSON(data)
}
