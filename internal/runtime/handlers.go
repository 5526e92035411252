package runtime

import (
	"sort"
	"strconv"

	"github.com/probeflow/probeflow/internal/core"
)

// MatchesCode reports whether a handler pattern matches an HTTP status.
// Patterns are an exact code ("404") or carry case-insensitive "x"
// wildcards per digit ("4xx", "40x").
func MatchesCode(pattern string, status int) bool {
	code := strconv.Itoa(status)
	if len(pattern) != len(code) {
		return false
	}
	for i := 0; i < len(pattern); i++ {
		if pattern[i] == 'x' || pattern[i] == 'X' {
			continue
		}
		if pattern[i] != code[i] {
			return false
		}
	}
	return true
}

// SelectHandler picks the first handler matching the status in ascending
// priority order. Returns nil when no handler matches.
func SelectHandler(handlers []core.ResponseHandler, status int) *core.ResponseHandler {
	if len(handlers) == 0 {
		return nil
	}
	ordered := make([]core.ResponseHandler, len(handlers))
	copy(ordered, handlers)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})
	for i := range ordered {
		if MatchesCode(ordered[i].MatchCode, status) {
			return &ordered[i]
		}
	}
	return nil
}

// RetryPolicy derives the outer retry bound from the step's handlers:
// the RETRY handler with the largest retryCount wins. A zero count means
// no retries.
func RetryPolicy(handlers []core.ResponseHandler) (retryCount, retryDelaySeconds int) {
	for _, h := range handlers {
		if h.Action != core.ActionRetry {
			continue
		}
		if h.RetryCount > retryCount {
			retryCount = h.RetryCount
			retryDelaySeconds = h.RetryDelaySeconds
		}
	}
	return retryCount, retryDelaySeconds
}
