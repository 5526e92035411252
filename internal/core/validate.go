package core

import (
	"fmt"
	"strings"
)

var validMethods = map[string]struct{}{
	"GET": {}, "POST": {}, "PUT": {}, "DELETE": {}, "PATCH": {},
}

// ValidateSuite checks a suite definition before it is saved. It returns
// an ErrorList describing every problem found, including cyclic
// dependencies.
func ValidateSuite(suite *TestSuite) error {
	var errs ErrorList

	if suite.Name == "" {
		errs = append(errs, ErrSuiteNameRequired)
	}

	stepIDs := make(map[string]struct{}, len(suite.Steps))
	stepNames := make(map[string]struct{}, len(suite.Steps))
	for i := range suite.Steps {
		step := &suite.Steps[i]
		if step.Name == "" {
			errs = append(errs, NewValidationError("steps", step.ID, ErrStepNameRequired))
			continue
		}
		if _, ok := stepNames[step.Name]; ok {
			errs = append(errs, NewValidationError("steps", step.Name, ErrStepNameDuplicate))
		}
		stepNames[step.Name] = struct{}{}
		if _, ok := stepIDs[step.ID]; ok {
			errs = append(errs, NewValidationError("steps", step.ID, ErrStepIDDuplicate))
		}
		stepIDs[step.ID] = struct{}{}

		if _, ok := validMethods[strings.ToUpper(step.Method)]; !ok {
			errs = append(errs, NewValidationError("steps", step.Method, ErrInvalidMethod))
		}
		if step.CacheTTLSeconds < 0 {
			errs = append(errs, NewValidationError("steps", step.Name, ErrNegativeCacheTTL))
		}
	}

	for i := range suite.Steps {
		step := &suite.Steps[i]
		for _, dep := range step.Dependencies {
			if dep.DependsOnStepID == step.ID {
				errs = append(errs, NewValidationError("dependencies", step.Name, ErrSelfDependency))
				continue
			}
			if _, ok := stepIDs[dep.DependsOnStepID]; !ok {
				errs = append(errs, NewValidationError("dependencies",
					fmt.Sprintf("%s -> %s", step.Name, dep.DependsOnStepID), ErrUnknownDependency))
			}
		}
	}

	if len(errs) == 0 && hasCycle(suite) {
		errs = append(errs, ErrCircularDependency)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// hasCycle runs Kahn's algorithm over the dependency edges; any node
// left with a positive in-degree sits on a cycle.
func hasCycle(suite *TestSuite) bool {
	inDegrees := make(map[string]int, len(suite.Steps))
	dependents := make(map[string][]string)
	for i := range suite.Steps {
		step := &suite.Steps[i]
		inDegrees[step.ID] += 0
		for _, dep := range step.Dependencies {
			inDegrees[step.ID]++
			dependents[dep.DependsOnStepID] = append(dependents[dep.DependsOnStepID], step.ID)
		}
	}

	var q []string
	for id, degree := range inDegrees {
		if degree == 0 {
			q = append(q, id)
		}
	}

	for len(q) > 0 {
		f := q[0]
		q = q[1:]
		for _, to := range dependents[f] {
			inDegrees[to]--
			if inDegrees[to] == 0 {
				q = append(q, to)
			}
		}
	}

	for _, degree := range inDegrees {
		if degree > 0 {
			return true
		}
	}
	return false
}

// ValidateEnvironment checks an environment definition before it is saved.
func ValidateEnvironment(env *Environment) error {
	var errs ErrorList

	if env.Name == "" {
		errs = append(errs, ErrEnvNameRequired)
	}

	keys := make(map[string]struct{}, len(env.Variables))
	for _, v := range env.Variables {
		if _, ok := keys[v.Key]; ok {
			errs = append(errs, NewValidationError("variables", v.Key, ErrVariableKeyDuplicate))
		}
		keys[v.Key] = struct{}{}
	}

	names := make(map[string]struct{}, len(env.Connectors))
	for _, c := range env.Connectors {
		if _, ok := names[c.Name]; ok {
			errs = append(errs, NewValidationError("connectors", c.Name, ErrConnectorNameDuplicate))
		}
		names[c.Name] = struct{}{}
	}

	fileKeys := make(map[string]struct{}, len(env.Files))
	for _, f := range env.Files {
		if _, ok := fileKeys[f.FileKey]; ok {
			errs = append(errs, NewValidationError("files", f.FileKey, ErrFileKeyDuplicate))
		}
		fileKeys[f.FileKey] = struct{}{}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ValidateSchedule checks a schedule definition before it is saved.
func ValidateSchedule(sched *RunSchedule) error {
	var errs ErrorList
	if sched.SuiteName == "" {
		errs = append(errs, ErrScheduleSuiteRequired)
	}
	if sched.CronExpr == "" {
		errs = append(errs, ErrScheduleCronRequired)
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}
