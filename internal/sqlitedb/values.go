package sqlitedb

import (
	"database/sql"
	"strings"
	"time"
)

// TimeLayout is fixed width so stored timestamps sort lexically in time order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTime renders t in UTC using TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a value written by FormatTime, also accepting RFC3339.
func ParseTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if ts, err := time.Parse(TimeLayout, value); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}

// NullableString maps an empty string to SQL NULL.
func NullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

// NullableTime maps a nil or zero time to SQL NULL.
func NullableTime(value *time.Time) any {
	if value == nil || value.IsZero() {
		return nil
	}
	return FormatTime(*value)
}

// TimePtr parses a nullable timestamp column.
func TimePtr(value sql.NullString) *time.Time {
	if !value.Valid || strings.TrimSpace(value.String) == "" {
		return nil
	}
	ts, err := ParseTime(value.String)
	if err != nil {
		return nil
	}
	return &ts
}

// Time parses a non-null timestamp column, returning the zero time on failure.
func Time(value sql.NullString) time.Time {
	if ts := TimePtr(value); ts != nil {
		return *ts
	}
	return time.Time{}
}
