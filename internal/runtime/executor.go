package runtime

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/probeflow/probeflow/internal/cmn/backoff"
	"github.com/probeflow/probeflow/internal/cmn/logger"
	"github.com/probeflow/probeflow/internal/cmn/logger/tag"
	"github.com/probeflow/probeflow/internal/cmn/stringutil"
	"github.com/probeflow/probeflow/internal/core"
)

// Scope is the resolution and caching scope a step executes in: the
// environment, the suite's steps by id, the within-run result cache,
// the extracted-variable namespace and the manual-input cache. The
// suite executor owns the maps; the step executor only reads them.
type Scope struct {
	Env     *core.Environment
	Steps   map[string]*core.TestStep
	Results map[string]*core.StepExecutionResult
	Vars    map[string]string
	Inputs  map[string]string
}

func (s *Scope) resolver(clock func() time.Time, warn func(string)) Resolver {
	return Resolver{Env: s.Env, Vars: s.Vars, Inputs: s.Inputs, Warn: warn, Now: clock}
}

// forSideEffect clones the mutable namespaces so a fire-and-forget
// execution cannot race with steps still running in the main scope.
func (s *Scope) forSideEffect() *Scope {
	return &Scope{
		Env:     s.Env,
		Steps:   s.Steps,
		Results: maps.Clone(s.Results),
		Vars:    maps.Clone(s.Vars),
		Inputs:  maps.Clone(s.Inputs),
	}
}

// StepExecutor turns one test step into a StepExecutionResult: it gates
// on dependencies, assembles and dispatches the HTTP request, applies
// response handlers with retries, extracts variables and runs response
// validations. Verifications are coordinated by the suite executor.
type StepExecutor struct {
	client *resty.Client
	clock  func() time.Time
}

// NewStepExecutor returns a step executor backed by a shared HTTP client.
func NewStepExecutor() *StepExecutor {
	return &StepExecutor{client: resty.New(), clock: time.Now}
}

// Execute runs the step pipeline and returns its result. The result is
// always non-nil; HTTP and handler failures are reported through the
// result status, never as an error.
func (e *StepExecutor) Execute(ctx context.Context, step *core.TestStep, scope *Scope) *core.StepExecutionResult {
	res := &core.StepExecutionResult{StepID: step.ID, StepName: step.Name}

	if name, blocked := failedDependency(step, scope); blocked {
		res.Status = core.StepSkipped
		res.ErrorMessage = fmt.Sprintf("Skipped because dependency '%s' did not succeed", name)
		logger.Info(ctx, "Step skipped", tag.Step(step.Name), tag.Dependency(name))
		return res
	}

	r := scope.resolver(e.clock, func(msg string) {
		res.Warnings = append(res.Warnings, msg)
	})
	spec := e.buildRequest(step, scope, r, res)

	logger.Info(ctx, "Executing step",
		tag.Step(step.Name), tag.Method(spec.method), tag.URL(spec.url))
	e.dispatch(ctx, step, spec, scope, res)

	if res.ResponseCode > 0 {
		e.extract(ctx, step, spec, res)
		for _, v := range step.Validations {
			res.ValidationResults = append(res.ValidationResults, Validate(v, res.ResponseBody, res.ResponseHeaders))
		}
		FinalizeStatus(res)
	}

	logger.Info(ctx, "Step finished",
		tag.Step(step.Name),
		tag.Status(string(res.Status)),
		tag.ResponseCode(res.ResponseCode),
		tag.Duration(time.Duration(res.DurationMs)*time.Millisecond))
	return res
}

// failedDependency returns the display name of the first dependency
// whose cached result is absent, ERROR or SKIPPED.
func failedDependency(step *core.TestStep, scope *Scope) (string, bool) {
	for _, dep := range step.Dependencies {
		prior := scope.Results[dep.DependsOnStepID]
		if prior != nil && prior.Status != core.StepError && prior.Status != core.StepSkipped {
			continue
		}
		if s, ok := scope.Steps[dep.DependsOnStepID]; ok {
			return s.Name, true
		}
		return dep.DependsOnStepID, true
	}
	return "", false
}

// requestSpec is the fully resolved request, built once per step
// execution and replayed verbatim on every retry attempt.
type requestSpec struct {
	method  string
	url     string
	params  map[string]string
	headers map[string]string
	body    string
	fields  map[string]string
	files   []filePart
	isForm  bool
}

type filePart struct {
	name        string
	fileName    string
	contentType string
	content     []byte
}

func (e *StepExecutor) buildRequest(step *core.TestStep, scope *Scope, r Resolver, res *core.StepExecutionResult) *requestSpec {
	spec := &requestSpec{method: strings.ToUpper(step.Method)}

	spec.url = r.Resolve(step.URL)
	if strings.HasPrefix(spec.url, "/") && scope.Env != nil && scope.Env.BaseURL != "" {
		spec.url = strings.TrimSuffix(scope.Env.BaseURL, "/") + spec.url
	}
	if len(step.QueryParams) > 0 {
		spec.params = make(map[string]string, len(step.QueryParams))
		for _, p := range step.QueryParams {
			spec.params[p.Key] = r.Resolve(p.Value)
		}
	}

	spec.headers = make(map[string]string)
	if scope.Env != nil {
		for _, h := range scope.Env.DefaultHeaders {
			if slices.Contains(step.DisabledDefaultHeaders, h.Key) {
				continue
			}
			spec.headers[h.Key] = r.ResolveHeaderValue(h)
		}
	}
	for _, h := range step.Headers {
		spec.headers[h.Key] = r.Resolve(h.Value)
	}

	switch step.BodyType {
	case core.BodyJSON:
		spec.body = r.Resolve(step.Body)
	case core.BodyFormData:
		spec.isForm = true
		spec.fields = make(map[string]string)
		for _, f := range step.FormData {
			key, isFile := fileKeyFor(f)
			if !isFile {
				spec.fields[f.Name] = r.Resolve(f.Value)
				continue
			}
			var asset core.FileAsset
			var found bool
			if scope.Env != nil {
				asset, found = scope.Env.File(key)
			}
			if !found {
				res.Warnings = append(res.Warnings, fmt.Sprintf("Unknown file reference: ${FILE:%s}", key))
				continue
			}
			spec.files = append(spec.files, filePart{
				name:        f.Name,
				fileName:    asset.FileName,
				contentType: asset.ContentType,
				content:     asset.Content,
			})
		}
	}

	res.RequestURL = spec.url
	res.RequestBody = spec.body
	res.RequestHeaders = spec.headers
	res.RequestQueryParams = spec.params
	return spec
}

// fileKeyFor returns the environment file key for a form field that is
// a file part, either by its declared type or a ${FILE:key} value.
func fileKeyFor(f core.FormField) (string, bool) {
	if key, ok := FileReference(f.Value); ok {
		return key, true
	}
	if f.Type == core.FormFieldFile {
		return f.Value, true
	}
	return "", false
}

// dispatch performs the HTTP call under the handler-derived retry
// policy and settles the HTTP-level status on the result.
func (e *StepExecutor) dispatch(ctx context.Context, step *core.TestStep, spec *requestSpec, scope *Scope, res *core.StepExecutionResult) {
	retries, delaySeconds := RetryPolicy(step.Handlers)
	retrier := backoff.NewRetrier(backoff.NewConstantPolicy(time.Duration(delaySeconds)*time.Second, retries))
	started := time.Now()
	defer func() {
		res.DurationMs = time.Since(started).Milliseconds()
	}()

	for attempt := 0; ; attempt++ {
		res.Attempts = attempt + 1

		rsp, err := e.send(ctx, spec)
		if err != nil {
			res.Status = core.StepError
			res.ResponseCode = 0
			res.ErrorMessage = err.Error()
			logger.Warn(ctx, "HTTP request failed", tag.Step(step.Name), tag.URL(spec.url), tag.Error(err))
			return
		}

		res.ResponseCode = rsp.StatusCode()
		res.ResponseBody = string(rsp.Body())
		res.ResponseHeaders = flattenHeaders(rsp.Header())

		handler := SelectHandler(step.Handlers, rsp.StatusCode())
		if handler == nil {
			if rsp.IsSuccess() {
				res.Status = successStatus(attempt)
			} else {
				res.Status = core.StepError
				res.ErrorMessage = fmt.Sprintf("Unexpected response code %d", rsp.StatusCode())
			}
			return
		}

		switch handler.Action {
		case core.ActionError:
			res.Status = core.StepError
			res.ErrorMessage = fmt.Sprintf("Handler matched code %d with ERROR action", rsp.StatusCode())
			return
		case core.ActionRetry:
			interval, rerr := retrier.Next()
			if rerr != nil {
				res.Status = core.StepError
				res.ErrorMessage = fmt.Sprintf("Retry attempts exhausted after %d attempts", res.Attempts)
				return
			}
			logger.Info(ctx, "Retrying step",
				tag.Step(step.Name), tag.ResponseCode(rsp.StatusCode()), tag.Attempt(res.Attempts))
			if !sleepCtx(ctx, interval) {
				res.Status = core.StepError
				res.ErrorMessage = ctx.Err().Error()
				return
			}
		case core.ActionFireSideEffect:
			res.Status = successStatus(attempt)
			e.fireSideEffect(ctx, handler.SideEffectStepID, scope)
			return
		default:
			res.Status = successStatus(attempt)
			return
		}
	}
}

func successStatus(attempt int) core.StepStatus {
	if attempt > 0 {
		return core.StepRetried
	}
	return core.StepSuccess
}

// send builds a fresh request per attempt; multipart readers are
// consumed on use and cannot be replayed.
func (e *StepExecutor) send(ctx context.Context, spec *requestSpec) (*resty.Response, error) {
	req := e.client.R().SetContext(ctx)
	if len(spec.headers) > 0 {
		req.SetHeaders(spec.headers)
	}
	if len(spec.params) > 0 {
		req.SetQueryParams(spec.params)
	}
	switch {
	case spec.isForm:
		if len(spec.fields) > 0 {
			req.SetMultipartFormData(spec.fields)
		}
		for _, f := range spec.files {
			req.SetMultipartField(f.name, f.fileName, f.contentType, bytes.NewReader(f.content))
		}
	case spec.body != "":
		req.SetBody([]byte(spec.body))
	}
	return req.Execute(spec.method, spec.url)
}

// fireSideEffect runs the named step detached from the calling run. The
// result is logged and discarded.
func (e *StepExecutor) fireSideEffect(ctx context.Context, stepID string, scope *Scope) {
	target, ok := scope.Steps[stepID]
	if !ok {
		logger.Warn(ctx, "Side-effect step not found", tag.StepID(stepID))
		return
	}
	snapshot := scope.forSideEffect()
	detached := context.WithoutCancel(ctx)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error(detached, "Side-effect step panicked", tag.Step(target.Name), tag.Error(r))
			}
		}()
		out := e.Execute(detached, target, snapshot)
		logger.Info(detached, "Side-effect step finished",
			tag.Step(target.Name), tag.Status(string(out.Status)), tag.ResponseCode(out.ResponseCode))
	}()
}

// extract computes the step's published variables. Failures yield empty
// values and a log line but never fail the step.
func (e *StepExecutor) extract(ctx context.Context, step *core.TestStep, spec *requestSpec, res *core.StepExecutionResult) {
	if len(step.Extractions) == 0 {
		return
	}
	res.ExtractedVariables = make(map[string]string, len(step.Extractions))
	for _, ev := range step.Extractions {
		val := extractValue(ev, spec, res)
		if val == "" {
			logger.Warn(ctx, "Variable extraction yielded no value",
				tag.Step(step.Name), tag.Variable(ev.VariableName), tag.String("source", string(ev.Source)))
		}
		res.ExtractedVariables[ev.VariableName] = val
	}
}

func extractValue(ev core.ExtractVariable, spec *requestSpec, res *core.StepExecutionResult) string {
	switch ev.Source {
	case core.SourceResponseBody:
		return ExtractJSONPath(res.ResponseBody, ev.JSONPath)
	case core.SourceResponseHeader:
		return HeaderValue(res.ResponseHeaders, ev.JSONPath)
	case core.SourceStatusCode:
		return strconv.Itoa(res.ResponseCode)
	case core.SourceRequestBody:
		return ExtractJSONPath(spec.body, ev.JSONPath)
	case core.SourceRequestHeader:
		return HeaderValue(spec.headers, ev.JSONPath)
	case core.SourceQueryParam:
		return spec.params[ev.JSONPath]
	case core.SourceRequestURL:
		return spec.url
	default:
		return ""
	}
}

// FinalizeStatus downgrades an HTTP-successful result to
// VERIFICATION_FAILED when any validation or verification did not pass.
// Called after validations and again after verifications complete.
func FinalizeStatus(res *core.StepExecutionResult) {
	if !res.Status.IsSuccess() {
		return
	}
	for _, v := range res.ValidationResults {
		if !v.Passed {
			res.Status = core.StepVerificationFailed
			return
		}
	}
	for _, v := range res.VerificationResults {
		if v.Status != core.VerificationSuccess {
			res.Status = core.StepVerificationFailed
			return
		}
	}
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vals := range h {
		out[k] = stringutil.FlattenHeader(vals)
	}
	return out
}

// sleepCtx sleeps for d unless the context is cancelled first. Reports
// whether the full duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
