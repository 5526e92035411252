package connector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/probeflow/probeflow/internal/cmn/logger"
	"github.com/probeflow/probeflow/internal/cmn/logger/tag"
	"github.com/probeflow/probeflow/internal/core"
)

// Driver executes verification queries against one backend type.
// Implementations open a fresh connection per call and release it before
// returning; the gateway never pools backend handles. The returned
// string must be JSON so the assertion layer can walk it; drivers that
// read non-JSON data wrap it.
type Driver interface {
	// Type identifies the backend this driver serves.
	Type() core.ConnectorType

	// Execute runs one query. The context carries the query deadline.
	Execute(ctx context.Context, config map[string]string, query string) (string, error)

	// Ping checks connectivity without running a query.
	Ping(ctx context.Context, config map[string]string) error
}

// Registry maps connector types to drivers.
type Registry struct {
	drivers map[core.ConnectorType]Driver
}

// NewRegistry creates an empty driver registry.
func NewRegistry() *Registry {
	return &Registry{drivers: make(map[core.ConnectorType]Driver)}
}

// Register adds a driver to the registry.
func (r *Registry) Register(d Driver) {
	r.drivers[d.Type()] = d
}

// Get retrieves a driver by connector type.
func (r *Registry) Get(t core.ConnectorType) (Driver, bool) {
	d, ok := r.drivers[t]
	return d, ok
}

// globalRegistry is the default driver registry. Drivers self-register
// from their package init.
var globalRegistry = NewRegistry()

// Register adds a driver to the global registry.
func Register(d Driver) {
	globalRegistry.Register(d)
}

// Get retrieves a driver from the global registry.
func Get(t core.ConnectorType) (Driver, bool) {
	return globalRegistry.Get(t)
}

// ErrUnsupportedType is returned for connector types with no registered
// driver.
var ErrUnsupportedType = errors.New("unsupported connector type")

// Executor is the engine-facing surface of the gateway. The verification
// coordinator depends on this interface so tests can substitute a fake
// backend.
type Executor interface {
	Execute(ctx context.Context, connector core.Connector, query string, timeout time.Duration) (string, error)
	TestConnection(ctx context.Context, connector core.Connector) (err error)
}

// Gateway dispatches queries to registered drivers. It is stateless;
// every call acquires and releases its own backend connection.
type Gateway struct {
	registry *Registry
}

var _ Executor = (*Gateway)(nil)

// NewGateway creates a gateway over the global driver registry.
func NewGateway() *Gateway {
	return &Gateway{registry: globalRegistry}
}

// NewGatewayWith creates a gateway over a custom registry.
func NewGatewayWith(registry *Registry) *Gateway {
	return &Gateway{registry: registry}
}

// Execute runs a query through the connector's driver with the given
// timeout. A zero timeout leaves the caller's context deadline in force.
func (g *Gateway) Execute(ctx context.Context, connector core.Connector, query string, timeout time.Duration) (string, error) {
	driver, ok := g.registry.Get(connector.Type)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, connector.Type)
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	started := time.Now()
	result, err := driver.Execute(ctx, connector.Config, query)
	logger.Debug(ctx, "Connector query executed",
		tag.Connector(connector.Name),
		tag.Type(string(connector.Type)),
		tag.Duration(time.Since(started)),
		tag.Error(err),
	)
	return result, err
}

// connectTestTimeout bounds connectivity checks from the admin API.
const connectTestTimeout = 10 * time.Second

// TestConnection checks a connector's connectivity using the probe the
// backend expects: a trivial query for the SQL family, PING for Redis,
// a root GET for Elasticsearch, and a driver-level ping everywhere else.
func (g *Gateway) TestConnection(ctx context.Context, connector core.Connector) error {
	driver, ok := g.registry.Get(connector.Type)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedType, connector.Type)
	}
	ctx, cancel := context.WithTimeout(ctx, connectTestTimeout)
	defer cancel()

	switch connector.Type {
	case core.ConnectorMySQL, core.ConnectorPostgres, core.ConnectorSQLServer:
		_, err := driver.Execute(ctx, connector.Config, "SELECT 1")
		return err
	case core.ConnectorOracle:
		_, err := driver.Execute(ctx, connector.Config, "SELECT 1 FROM DUAL")
		return err
	case core.ConnectorRedis:
		_, err := driver.Execute(ctx, connector.Config, "PING")
		return err
	case core.ConnectorElasticsearch:
		_, err := driver.Execute(ctx, connector.Config, "GET /")
		return err
	default:
		return driver.Ping(ctx, connector.Config)
	}
}
