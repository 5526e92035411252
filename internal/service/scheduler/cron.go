package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/probeflow/probeflow/internal/core"
)

// cronParser accepts second-resolution expressions. Five-field
// expressions are normalized to minute resolution before parsing.
var cronParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// ParseCron parses a cron expression. A 5-field expression fires at
// minute resolution; a 6th leading field adds seconds.
func ParseCron(expr string) (cron.Schedule, error) {
	normalized := expr
	if len(strings.Fields(expr)) == 5 {
		normalized = "0 " + expr
	}
	parsed, err := cronParser.Parse(normalized)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrCronExprInvalid, err)
	}
	return parsed, nil
}

// Preview returns the next n fire times of the expression after from.
func Preview(expr string, from time.Time, n int) ([]time.Time, error) {
	parsed, err := ParseCron(expr)
	if err != nil {
		return nil, err
	}
	times := make([]time.Time, 0, n)
	next := from
	for i := 0; i < n; i++ {
		next = parsed.Next(next)
		if next.IsZero() {
			break
		}
		times = append(times, next)
	}
	return times, nil
}
