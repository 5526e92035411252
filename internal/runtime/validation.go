package runtime

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/probeflow/probeflow/internal/core"
)

// Validate runs one response validation against the captured response.
// Headers are the response headers with flattened values.
func Validate(v core.ResponseValidation, statusBody string, headers map[string]string) core.ValidationResult {
	switch v.ValidationType {
	case core.ValidationHeader:
		return validateHeader(v, headers)
	case core.ValidationBodyField:
		return validateBodyField(v, statusBody)
	case core.ValidationBodyExactMatch:
		return validateBodyMatch(v, statusBody)
	case core.ValidationBodyDataType:
		return validateBodyDataType(v, statusBody)
	default:
		return core.ValidationResult{
			ValidationType: v.ValidationType,
			Passed:         false,
			Message:        fmt.Sprintf("unknown validation type %q", v.ValidationType),
		}
	}
}

func validateHeader(v core.ResponseValidation, headers map[string]string) core.ValidationResult {
	actual := HeaderValue(headers, v.HeaderName)
	passed := Compare(v.Operator, actual, v.ExpectedValue)
	res := core.ValidationResult{
		ValidationType: v.ValidationType,
		Passed:         passed,
		Expected:       v.ExpectedValue,
		Actual:         actual,
	}
	if !passed {
		res.Message = fmt.Sprintf("header %q: %s %s failed against %q", v.HeaderName, v.Operator, v.ExpectedValue, actual)
	}
	return res
}

func validateBodyField(v core.ResponseValidation, body string) core.ValidationResult {
	actual := ExtractJSONPath(body, v.JSONPath)
	passed := Compare(v.Operator, actual, v.ExpectedValue)
	res := core.ValidationResult{
		ValidationType: v.ValidationType,
		Passed:         passed,
		Expected:       v.ExpectedValue,
		Actual:         actual,
	}
	if !passed {
		res.Message = fmt.Sprintf("body field %s: %s %s failed against %q", v.JSONPath, v.Operator, v.ExpectedValue, actual)
	}
	return res
}

func validateBodyDataType(v core.ResponseValidation, body string) core.ValidationResult {
	actual := string(ClassifyJSONPath(body, v.JSONPath))
	passed := strings.EqualFold(actual, v.ExpectedValue)
	res := core.ValidationResult{
		ValidationType: v.ValidationType,
		Passed:         passed,
		Expected:       v.ExpectedValue,
		Actual:         actual,
	}
	if !passed {
		res.Message = fmt.Sprintf("body node %s is %s, expected %s", v.JSONPath, actual, v.ExpectedValue)
	}
	return res
}

func validateBodyMatch(v core.ResponseValidation, body string) core.ValidationResult {
	res := core.ValidationResult{
		ValidationType: v.ValidationType,
		Expected:       v.ExpectedValue,
		Actual:         body,
	}
	var expected, actual any
	if err := json.Unmarshal([]byte(v.ExpectedValue), &expected); err != nil {
		res.Message = "expected body is not valid JSON"
		return res
	}
	if err := json.Unmarshal([]byte(body), &actual); err != nil {
		res.Message = "response body is not valid JSON"
		return res
	}

	mode := v.MatchMode
	if mode == "" {
		mode = core.MatchStrict
	}
	switch mode {
	case core.MatchStrict:
		res.Passed = reflect.DeepEqual(expected, actual)
	case core.MatchFlexible:
		res.Passed = flexibleMatch(expected, actual)
	case core.MatchStructure:
		res.Passed = structureMatch(expected, actual)
	default:
		res.Message = fmt.Sprintf("unknown match mode %q", mode)
		return res
	}
	if !res.Passed {
		res.Message = fmt.Sprintf("body mismatch under %s mode", mode)
	}
	return res
}

// flexibleMatch requires every key and element of expected to be present
// and matching in actual. Objects in actual may carry extra keys; arrays
// must have equal size but may be ordered differently.
func flexibleMatch(expected, actual any) bool {
	switch exp := expected.(type) {
	case map[string]any:
		act, ok := actual.(map[string]any)
		if !ok {
			return false
		}
		for k, ev := range exp {
			av, present := act[k]
			if !present || !flexibleMatch(ev, av) {
				return false
			}
		}
		return true
	case []any:
		act, ok := actual.([]any)
		if !ok || len(act) != len(exp) {
			return false
		}
		used := make([]bool, len(act))
		for _, ev := range exp {
			matched := false
			for i, av := range act {
				if used[i] || !flexibleMatch(ev, av) {
					continue
				}
				used[i] = true
				matched = true
				break
			}
			if !matched {
				return false
			}
		}
		return true
	default:
		return reflect.DeepEqual(expected, actual)
	}
}

// structureMatch requires actual to mirror expected's shape. Object keys
// and array positions must exist; primitive values are not compared.
func structureMatch(expected, actual any) bool {
	switch exp := expected.(type) {
	case map[string]any:
		act, ok := actual.(map[string]any)
		if !ok {
			return false
		}
		for k, ev := range exp {
			av, present := act[k]
			if !present || !structureMatch(ev, av) {
				return false
			}
		}
		return true
	case []any:
		act, ok := actual.([]any)
		if !ok || len(act) < len(exp) {
			return false
		}
		for i, ev := range exp {
			if !structureMatch(ev, act[i]) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// HeaderValue looks a header up by case-insensitive name.
func HeaderValue(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
