package service

import (
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// parseTimestamp accepts RFC3339 or a bare YYYY-MM-DD, which is read as
// midnight in loc.
func parseTimestamp(field, v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(dateLayout, v, loc); err == nil {
		return t, nil
	}
	return time.Time{}, invalid(field, "must be RFC3339 or YYYY-MM-DD")
}

// dayRange turns inclusive local dates into [from, to). Either bound may be empty.
func dayRange(startField, start, endField, end string, loc *time.Location) (*time.Time, *time.Time, error) {
	var from, to *time.Time
	if start = strings.TrimSpace(start); start != "" {
		d, err := time.ParseInLocation(dateLayout, start, loc)
		if err != nil {
			return nil, nil, invalid(startField, "must be YYYY-MM-DD")
		}
		from = &d
	}
	if end = strings.TrimSpace(end); end != "" {
		d, err := time.ParseInLocation(dateLayout, end, loc)
		if err != nil {
			return nil, nil, invalid(endField, "must be YYYY-MM-DD")
		}
		// include the whole day
		d = d.AddDate(0, 0, 1)
		to = &d
	}
	if from != nil && to != nil && !from.Before(*to) {
		return nil, nil, invalid(endField, "must not be before %s", startField)
	}
	return from, to, nil
}
