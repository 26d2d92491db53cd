package models

import (
	"bytes"
	"encoding/json"
	"time"
)

// timestampLayouts are tried in order. Layouts without a zone are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// Timestamp is an ISO-8601 instant from the backend. Raw keeps the original text so a
// value no layout understands can still be displayed; Time is zero in that case.
type Timestamp struct {
	Time time.Time
	Raw  string
}

// NewTimestamp returns a Timestamp for t with its RFC 3339 form as Raw.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t, Raw: t.Format(time.RFC3339Nano)}
}

// ParseTimestamp parses s with the first matching layout. An unparseable s is not an
// error: the result carries s as Raw and a zero Time.
func ParseTimestamp(s string) Timestamp {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return Timestamp{Time: t, Raw: s}
		}
	}
	return Timestamp{Raw: s}
}

// Valid reports whether Time was parsed.
func (ts Timestamp) Valid() bool {
	return !ts.Time.IsZero()
}

// UnmarshalJSON accepts a JSON string (any ISO-8601 form) or null.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*ts = Timestamp{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*ts = ParseTimestamp(s)
	return nil
}

// MarshalJSON writes Raw back unchanged.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(ts.Raw)
}
