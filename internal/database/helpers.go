package database

import (
	"database/sql"
	"time"
)

// Scanner is satisfied by *sql.Row and *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// Millis converts t to the unix-millisecond form stored in every time column.
func Millis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

// FromMillis converts a stored unix-millisecond value back to UTC.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// NullableMillis stores nil for a missing time.
func NullableMillis(value *time.Time) any {
	if value == nil || value.IsZero() {
		return nil
	}
	return Millis(*value)
}

// TimePtr converts a nullable millisecond column.
func TimePtr(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	t := FromMillis(value.Int64)
	return &t
}

// NullableString stores nil for an empty string.
func NullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func BoolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

// Placeholders returns "?,?,?" for count arguments.
func Placeholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

// StringArgs widens a string slice for use as query arguments.
func StringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
