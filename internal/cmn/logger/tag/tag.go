// Package tag provides standardized tag functions for structured logging.
//
// All tag keys use kebab-case naming convention for consistency.
// Use these functions instead of raw strings to ensure consistent
// and type-safe log output across the codebase.
package tag

import (
	"log/slog"
	"time"
)

// Core identification tags

func String(key, value string) slog.Attr {
	return slog.String(key, value)
}

// Error creates a tag for error objects.
func Error(err any) slog.Attr {
	return slog.Any("err", err)
}

// Suite creates a tag for test suite names.
func Suite(name string) slog.Attr {
	return slog.String("suite", name)
}

// Step creates a tag for test step names.
func Step(name string) slog.Attr {
	return slog.String("step", name)
}

// StepID creates a tag for test step identifiers.
func StepID(id string) slog.Attr {
	return slog.String("step-id", id)
}

// RunID creates a tag for run execution IDs.
func RunID(id string) slog.Attr {
	return slog.String("run-id", id)
}

// Environment creates a tag for environment names.
func Environment(name string) slog.Attr {
	return slog.String("environment", name)
}

// Attempt creates a tag for attempt numbers.
func Attempt(n int) slog.Attr {
	return slog.Int("attempt", n)
}

// Execution context tags

// Status creates a tag for execution status values.
func Status(status string) slog.Attr {
	return slog.String("status", status)
}

// ResponseCode creates a tag for HTTP response codes.
func ResponseCode(code int) slog.Attr {
	return slog.Int("response-code", code)
}

// Timeout creates a tag for timeout duration values.
func Timeout(d time.Duration) slog.Attr {
	return slog.Duration("timeout", d)
}

// Duration creates a tag for time durations.
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Dependency creates a tag for dependency step names.
func Dependency(name string) slog.Attr {
	return slog.String("dependency", name)
}

// Variable creates a tag for extracted variable names.
func Variable(name string) slog.Attr {
	return slog.String("variable", name)
}

// Placeholder creates a tag for unresolved placeholder expressions.
func Placeholder(p string) slog.Attr {
	return slog.String("placeholder", p)
}

// JSONPath creates a tag for JSON-path expressions.
func JSONPath(p string) slog.Attr {
	return slog.String("json-path", p)
}

// Connector and verification tags

// Connector creates a tag for connector types (SQL, REDIS, ...).
func Connector(t string) slog.Attr {
	return slog.String("connector", t)
}

// Verification creates a tag for verification names.
func Verification(name string) slog.Attr {
	return slog.String("verification", name)
}

// Query creates a tag for connector queries.
func Query(q string) slog.Attr {
	return slog.String("query", q)
}

// Network and service tags

// Addr creates a tag for network addresses (host:port or socket path).
func Addr(addr string) slog.Attr {
	return slog.String("addr", addr)
}

// Host creates a tag for host addresses.
func Host(host string) slog.Attr {
	return slog.String("host", host)
}

// Port creates a tag for port numbers.
func Port(port int) slog.Attr {
	return slog.Int("port", port)
}

// URL creates a tag for URL values.
func URL(url string) slog.Attr {
	return slog.String("url", url)
}

// Method creates a tag for HTTP methods.
func Method(m string) slog.Attr {
	return slog.String("method", m)
}

// Scheduler tags

// ScheduleID creates a tag for schedule identifiers.
func ScheduleID(id string) slog.Attr {
	return slog.String("schedule-id", id)
}

// CronExpr creates a tag for cron expressions.
func CronExpr(expr string) slog.Attr {
	return slog.String("cron-expr", expr)
}

// NextRun creates a tag for next scheduled run time.
func NextRun(t time.Time) slog.Attr {
	return slog.Time("next-run", t)
}

// Path and file tags

// File creates a tag for file paths.
func File(path string) slog.Attr {
	return slog.String("file", path)
}

// Dir creates a tag for directory paths.
func Dir(path string) slog.Attr {
	return slog.String("dir", path)
}

// Type and metadata tags

// Type creates a tag for type values.
func Type(t string) slog.Attr {
	return slog.String("type", t)
}

// Name creates a tag for generic names (prefer specific tags like Step, Suite).
func Name(name string) slog.Attr {
	return slog.String("name", name)
}

// Count creates a tag for numeric counts.
func Count(n int) slog.Attr {
	return slog.Int("count", n)
}

// Version creates a tag for version values.
func Version(v string) slog.Attr {
	return slog.String("version", v)
}

// Reason creates a tag for reason for an action or state.
func Reason(r string) slog.Attr {
	return slog.String("reason", r)
}

// Value creates a tag for generic values.
func Value(v any) slog.Attr {
	return slog.Any("value", v)
}

// Key creates a tag for key names.
func Key(k string) slog.Attr {
	return slog.String("key", k)
}
