package core

// TestSuite is an ordered collection of test steps sharing a dependency DAG.
type TestSuite struct {
	// Name identifies the suite.
	Name string `json:"name"`
	// Description is optional free text.
	Description string `json:"description,omitempty"`
	// DefaultEnvironment is the environment used when a run does not name one.
	DefaultEnvironment string `json:"defaultEnvironment,omitempty"`
	// Steps in definition order.
	Steps []TestStep `json:"steps"`
}

// StepByID returns the step with the given id.
func (s *TestSuite) StepByID(id string) (*TestStep, bool) {
	for i := range s.Steps {
		if s.Steps[i].ID == id {
			return &s.Steps[i], true
		}
	}
	return nil, false
}

// StepByName returns the step with the given name.
func (s *TestSuite) StepByName(name string) (*TestStep, bool) {
	for i := range s.Steps {
		if s.Steps[i].Name == name {
			return &s.Steps[i], true
		}
	}
	return nil, false
}

// StepMap returns the steps indexed by id.
func (s *TestSuite) StepMap() map[string]*TestStep {
	m := make(map[string]*TestStep, len(s.Steps))
	for i := range s.Steps {
		m[s.Steps[i].ID] = &s.Steps[i]
	}
	return m
}

// BodyType selects how a step's request body is built.
type BodyType string

const (
	BodyNone     BodyType = "NONE"
	BodyJSON     BodyType = "JSON"
	BodyFormData BodyType = "FORM_DATA"
)

// KeyValue is an ordered key/value template entry for headers and
// query parameters.
type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// FormFieldType selects how a form-data field is emitted.
type FormFieldType string

const (
	FormFieldText FormFieldType = "text"
	FormFieldFile FormFieldType = "file"
)

// FormField is one multipart form field.
type FormField struct {
	// Name is the multipart field name.
	Name string `json:"name"`
	// Value is the text value or a ${FILE:key} reference.
	Value string `json:"value"`
	// Type marks the field as a text or file part.
	Type FormFieldType `json:"type,omitempty"`
}

// TestStep is one HTTP call definition plus its extraction, validation,
// verification and control-flow metadata.
type TestStep struct {
	// ID is the stable identifier referenced by dependencies.
	ID string `json:"id"`
	// Name is the display name, unique within the suite.
	Name string `json:"name"`
	// Description is optional free text.
	Description string `json:"description,omitempty"`

	// Method is the HTTP method (GET, POST, PUT, DELETE, PATCH).
	Method string `json:"method"`
	// URL is the request URL template. Relative URLs (leading slash) are
	// prefixed with the environment base URL.
	URL string `json:"url"`
	// Headers are the step header templates, overriding env defaults on
	// key collision.
	Headers []KeyValue `json:"headers,omitempty"`
	// QueryParams are the query parameter templates.
	QueryParams []KeyValue `json:"queryParams,omitempty"`
	// BodyType selects how the request body is built.
	BodyType BodyType `json:"bodyType,omitempty"`
	// Body is the body template for JSON bodies.
	Body string `json:"body,omitempty"`
	// FormData lists the multipart fields for FORM_DATA bodies.
	FormData []FormField `json:"formData,omitempty"`

	// Cacheable marks the result reusable by dependents within one run.
	Cacheable bool `json:"cacheable,omitempty"`
	// CacheTTLSeconds bounds reuse of a cacheable result; 0 means no expiry.
	CacheTTLSeconds int `json:"cacheTtlSeconds,omitempty"`
	// DependencyOnly excludes the step from the top-level execution order;
	// it is materialized on demand when a dependent needs it.
	DependencyOnly bool `json:"dependencyOnly,omitempty"`
	// DisabledDefaultHeaders lists env default header keys to skip.
	DisabledDefaultHeaders []string `json:"disabledDefaultHeaders,omitempty"`
	// SortOrder breaks ties between steps that are ready at the same time.
	SortOrder int `json:"sortOrder,omitempty"`
	// GroupName is an optional display grouping.
	GroupName string `json:"groupName,omitempty"`

	// Dependencies declare the steps whose results this step consumes.
	Dependencies []Dependency `json:"dependencies,omitempty"`
	// Handlers map response codes to control-flow actions.
	Handlers []ResponseHandler `json:"responseHandlers,omitempty"`
	// Extractions publish values from the request or response as variables.
	Extractions []ExtractVariable `json:"extractVariables,omitempty"`
	// Validations assert on the HTTP response itself.
	Validations []ResponseValidation `json:"responseValidations,omitempty"`
	// Verifications cross-check side effects against backend systems.
	Verifications []Verification `json:"verifications,omitempty"`
}

// Dependency is a producer-consumer edge between steps.
type Dependency struct {
	// DependsOnStepID is the id of the producing step in the same suite.
	DependsOnStepID string `json:"dependsOnStepId"`
	// UseCache permits consuming the producer's cached result. When false
	// the producer is always re-executed.
	UseCache bool `json:"useCache"`
	// ReuseManualInput silently reuses cached manual inputs when the
	// producer is re-executed due to TTL expiry.
	ReuseManualInput bool `json:"reuseManualInput,omitempty"`
}

// HandlerAction is what a matching response handler does.
type HandlerAction string

const (
	ActionSuccess        HandlerAction = "SUCCESS"
	ActionError          HandlerAction = "ERROR"
	ActionRetry          HandlerAction = "RETRY"
	ActionFireSideEffect HandlerAction = "FIRE_SIDE_EFFECT"
)

// ResponseHandler maps a response code pattern to a control-flow action.
type ResponseHandler struct {
	// MatchCode is an exact code ("404") or a wildcard pattern ("4xx", "40x").
	MatchCode string `json:"matchCode"`
	// Action applied when the code matches.
	Action HandlerAction `json:"action"`
	// SideEffectStepID names the step fired by FIRE_SIDE_EFFECT.
	SideEffectStepID string `json:"sideEffectStepId,omitempty"`
	// RetryCount bounds RETRY attempts.
	RetryCount int `json:"retryCount,omitempty"`
	// RetryDelaySeconds is the pause between RETRY attempts.
	RetryDelaySeconds int `json:"retryDelaySeconds,omitempty"`
	// Priority orders handler evaluation; lower wins.
	Priority int `json:"priority,omitempty"`
}

// ExtractSource selects where an extracted variable is read from.
type ExtractSource string

const (
	SourceResponseBody   ExtractSource = "RESPONSE_BODY"
	SourceResponseHeader ExtractSource = "RESPONSE_HEADER"
	SourceStatusCode     ExtractSource = "STATUS_CODE"
	SourceRequestBody    ExtractSource = "REQUEST_BODY"
	SourceRequestHeader  ExtractSource = "REQUEST_HEADER"
	SourceQueryParam     ExtractSource = "QUERY_PARAM"
	SourceRequestURL     ExtractSource = "REQUEST_URL"
)

// ExtractVariable publishes a value from the request or response under
// "<stepName>.<variableName>".
type ExtractVariable struct {
	// VariableName is the name the value is published under.
	VariableName string `json:"variableName"`
	// JSONPath selects the value for body sources; header, param and
	// status sources use the key or no path at all.
	JSONPath string `json:"jsonPath,omitempty"`
	// Source selects where the value is read from.
	Source ExtractSource `json:"source"`
}

// Operator compares an actual value against an expected value.
// Shared by verifications and validations.
type Operator string

const (
	OpEquals      Operator = "EQUALS"
	OpNotEquals   Operator = "NOT_EQUALS"
	OpContains    Operator = "CONTAINS"
	OpNotContains Operator = "NOT_CONTAINS"
	OpRegex       Operator = "REGEX"
	OpGT          Operator = "GT"
	OpLT          Operator = "LT"
	OpGTE         Operator = "GTE"
	OpLTE         Operator = "LTE"
	OpExists      Operator = "EXISTS"
	OpNotExists   Operator = "NOT_EXISTS"
)

// Assertion is one JSON-path comparison against a verification result.
type Assertion struct {
	JSONPath      string   `json:"jsonPath"`
	Operator      Operator `json:"operator"`
	ExpectedValue string   `json:"expectedValue,omitempty"`
}

// Verification cross-checks a step's side effects against a backend
// system through a named connector.
type Verification struct {
	// ConnectorName references an environment connector.
	ConnectorName string `json:"connectorName"`
	// Query is the backend query template.
	Query string `json:"query"`
	// TimeoutSeconds is the pre-listener wait (preListen) or the
	// post-request delay before querying.
	TimeoutSeconds int `json:"timeoutSeconds,omitempty"`
	// QueryTimeoutSeconds bounds the query call itself.
	QueryTimeoutSeconds int `json:"queryTimeoutSeconds,omitempty"`
	// PreListen starts consuming from the backend before the HTTP call.
	PreListen bool `json:"preListen,omitempty"`
	// Assertions evaluated against the returned result, in order.
	Assertions []Assertion `json:"assertions,omitempty"`
}

// ValidationType selects the response validation class.
type ValidationType string

const (
	ValidationHeader         ValidationType = "HEADER"
	ValidationBodyExactMatch ValidationType = "BODY_EXACT_MATCH"
	ValidationBodyField      ValidationType = "BODY_FIELD"
	ValidationBodyDataType   ValidationType = "BODY_DATA_TYPE"
)

// MatchMode selects how BODY_EXACT_MATCH compares bodies.
type MatchMode string

const (
	// MatchStrict requires structural JSON equality.
	MatchStrict MatchMode = "STRICT"
	// MatchFlexible requires every expected key/index to exist and match;
	// the actual document may be a superset.
	MatchFlexible MatchMode = "FLEXIBLE"
	// MatchStructure requires expected object keys and array positions to
	// exist, ignoring primitive values.
	MatchStructure MatchMode = "STRUCTURE"
)

// ResponseValidation asserts on the HTTP response itself.
type ResponseValidation struct {
	// ValidationType selects the validation class.
	ValidationType ValidationType `json:"validationType"`
	// HeaderName is the header to compare for HEADER validations.
	HeaderName string `json:"headerName,omitempty"`
	// JSONPath selects the node for BODY_FIELD and BODY_DATA_TYPE.
	JSONPath string `json:"jsonPath,omitempty"`
	// Operator compares the selected value for HEADER and BODY_FIELD.
	Operator Operator `json:"operator,omitempty"`
	// ExpectedValue is the comparison operand. For BODY_EXACT_MATCH it is
	// the expected body; for BODY_DATA_TYPE the expected type name.
	ExpectedValue string `json:"expectedValue,omitempty"`
	// MatchMode selects the BODY_EXACT_MATCH comparison mode.
	MatchMode MatchMode `json:"matchMode,omitempty"`
}
