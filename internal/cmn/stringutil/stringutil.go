package stringutil

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// FormatTime returns the time formatted as RFC 3339 in UTC, or an empty
// string for the zero time.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// ParseTime parses an RFC 3339 time string. Empty input yields the zero time.
func ParseTime(val string) (time.Time, error) {
	if val == "" || val == "-" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, val)
}

// TruncString returns the string truncated to at most max bytes.
func TruncString(val string, max int) string {
	if len(val) > max {
		return val[:max]
	}
	return val
}

// RemoveQuotes removes leading and trailing double quotes from a string if
// present, and unescapes the content using strconv.Unquote.
func RemoveQuotes(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		if unquoted, err := strconv.Unquote(s); err == nil {
			return unquoted
		}
	}
	return s
}

// IsJSON reports whether the string is a syntactically valid JSON document.
func IsJSON(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	return json.Valid([]byte(s))
}

// FlattenHeader joins multi-valued header entries the way they are
// recorded on step results.
func FlattenHeader(values []string) string {
	return strings.Join(values, ", ")
}
