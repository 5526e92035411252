package runtime

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/probeflow/probeflow/internal/core"
)

// Compare applies an assertion operator to the textual actual/expected
// pair. Ordering operators compare numerically when both sides parse as
// floats and lexically otherwise.
func Compare(op core.Operator, actual, expected string) bool {
	switch op {
	case core.OpEquals:
		return actual == expected
	case core.OpNotEquals:
		return actual != expected
	case core.OpContains:
		return strings.Contains(actual, expected)
	case core.OpNotContains:
		return !strings.Contains(actual, expected)
	case core.OpRegex:
		re, err := regexp.Compile(expected)
		if err != nil {
			return false
		}
		return re.MatchString(actual)
	case core.OpGT:
		return ordered(actual, expected) > 0
	case core.OpLT:
		return ordered(actual, expected) < 0
	case core.OpGTE:
		return ordered(actual, expected) >= 0
	case core.OpLTE:
		return ordered(actual, expected) <= 0
	case core.OpExists:
		return actual != ""
	case core.OpNotExists:
		return actual == ""
	default:
		return false
	}
}

// ordered returns -1, 0 or 1 comparing actual against expected,
// numerically when possible.
func ordered(actual, expected string) int {
	a, errA := strconv.ParseFloat(strings.TrimSpace(actual), 64)
	e, errE := strconv.ParseFloat(strings.TrimSpace(expected), 64)
	if errA == nil && errE == nil {
		switch {
		case a < e:
			return -1
		case a > e:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(actual, expected)
}

// EvaluateAssertion extracts the assertion's JSON path from the raw
// result document and applies its operator.
func EvaluateAssertion(doc string, a core.Assertion) core.AssertionResult {
	actual := ExtractJSONPath(doc, a.JSONPath)
	return core.AssertionResult{
		JSONPath:      a.JSONPath,
		Operator:      a.Operator,
		ExpectedValue: a.ExpectedValue,
		ActualValue:   actual,
		Passed:        Compare(a.Operator, actual, a.ExpectedValue),
	}
}
