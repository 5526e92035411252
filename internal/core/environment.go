package core

// ValueType selects how an environment variable or default header value
// is produced at resolution time.
type ValueType string

const (
	// ValueStatic substitutes the stored value after placeholder resolution.
	ValueStatic ValueType = "STATIC"
	// ValueVariable resolves the value as the name of another variable.
	// Only valid on default headers.
	ValueVariable ValueType = "VARIABLE"
	// ValueUUID generates a fresh v4 UUID per expansion.
	ValueUUID ValueType = "UUID"
	// ValueISOTimestamp substitutes the current instant in ISO-8601 at UTC.
	ValueISOTimestamp ValueType = "ISO_TIMESTAMP"
)

// EnvVariable is a named value available to ${NAME} placeholders.
type EnvVariable struct {
	// Key is the variable name, unique within the environment.
	Key string `json:"key"`
	// Value is the stored value; ignored for UUID and ISO_TIMESTAMP types.
	Value string `json:"value"`
	// ValueType selects how the value is produced.
	ValueType ValueType `json:"valueType"`
	// Secret masks the value on API responses and exports.
	Secret bool `json:"secret,omitempty"`
}

// DefaultHeader is a header added to every request of the environment
// unless the step disables it.
type DefaultHeader struct {
	// Key is the header name.
	Key string `json:"key"`
	// Value is interpreted according to ValueType.
	Value string `json:"value"`
	// ValueType selects how the value is produced.
	ValueType ValueType `json:"valueType"`
}

// ConnectorType identifies a verification backend driver.
type ConnectorType string

const (
	ConnectorMySQL         ConnectorType = "MYSQL"
	ConnectorPostgres      ConnectorType = "POSTGRES"
	ConnectorOracle        ConnectorType = "ORACLE"
	ConnectorSQLServer     ConnectorType = "SQLSERVER"
	ConnectorRedis         ConnectorType = "REDIS"
	ConnectorElasticsearch ConnectorType = "ELASTICSEARCH"
	ConnectorKafka         ConnectorType = "KAFKA"
	ConnectorRabbitMQ      ConnectorType = "RABBITMQ"
	ConnectorMongoDB       ConnectorType = "MONGODB"
)

// Connector is a named backend connection available to verifications.
type Connector struct {
	// Name is unique within the environment.
	Name string `json:"name"`
	// Type selects the driver.
	Type ConnectorType `json:"type"`
	// Config is the driver-specific connection configuration.
	Config map[string]string `json:"config"`
}

// FileAsset is a named file available to FORM_DATA steps via ${FILE:key}.
type FileAsset struct {
	// FileKey is unique within the environment.
	FileKey string `json:"fileKey"`
	// FileName is the original name sent as the multipart filename.
	FileName string `json:"fileName"`
	// ContentType is the MIME type of the file part.
	ContentType string `json:"contentType"`
	// Content holds the file bytes. Populated by the store on load and
	// never serialized with the environment definition.
	Content []byte `json:"-"`
}

// Environment is a named collection of variables, default headers,
// connectors and files that a suite runs against.
type Environment struct {
	// Name identifies the environment.
	Name string `json:"name"`
	// Description is optional free text.
	Description string `json:"description,omitempty"`
	// BaseURL is prepended to step URLs that start with a slash.
	BaseURL string `json:"baseUrl,omitempty"`
	// VariablesFrom optionally names a dotenv file whose entries are
	// merged into Variables as STATIC variables at load time. Explicit
	// entries win over file entries.
	VariablesFrom string `json:"variablesFrom,omitempty"`
	// Variables available to ${NAME} placeholders, in definition order.
	Variables []EnvVariable `json:"variables,omitempty"`
	// DefaultHeaders added to every request, in definition order.
	DefaultHeaders []DefaultHeader `json:"defaultHeaders,omitempty"`
	// Connectors available to verifications, in definition order.
	Connectors []Connector `json:"connectors,omitempty"`
	// Files available to form-data steps, in definition order.
	Files []FileAsset `json:"files,omitempty"`
}

// Variable returns the variable with the given key.
func (e *Environment) Variable(key string) (EnvVariable, bool) {
	for _, v := range e.Variables {
		if v.Key == key {
			return v, true
		}
	}
	return EnvVariable{}, false
}

// Connector returns the connector with the given name.
func (e *Environment) Connector(name string) (Connector, bool) {
	for _, c := range e.Connectors {
		if c.Name == name {
			return c, true
		}
	}
	return Connector{}, false
}

// File returns the file asset with the given key.
func (e *Environment) File(key string) (FileAsset, bool) {
	for _, f := range e.Files {
		if f.FileKey == key {
			return f, true
		}
	}
	return FileAsset{}, false
}

const maskedValue = "******"

// Masked returns a copy of the environment with secret variable values
// replaced so it can be returned over the API.
func (e *Environment) Masked() *Environment {
	masked := *e
	masked.Variables = make([]EnvVariable, len(e.Variables))
	copy(masked.Variables, e.Variables)
	for i, v := range masked.Variables {
		if v.Secret {
			masked.Variables[i].Value = maskedValue
		}
	}
	return &masked
}
