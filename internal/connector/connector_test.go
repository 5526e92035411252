package connector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/probeflow/probeflow/internal/core"
)

type fakeDriver struct {
	connectorType core.ConnectorType
	lastQuery     string
	pinged        bool
	result        string
	err           error
	sawDeadline   bool
}

func (d *fakeDriver) Type() core.ConnectorType { return d.connectorType }

func (d *fakeDriver) Execute(ctx context.Context, _ map[string]string, query string) (string, error) {
	d.lastQuery = query
	_, d.sawDeadline = ctx.Deadline()
	return d.result, d.err
}

func (d *fakeDriver) Ping(context.Context, map[string]string) error {
	d.pinged = true
	return d.err
}

func TestGatewayExecute(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	driver := &fakeDriver{connectorType: core.ConnectorRedis, result: `{"result":"PONG"}`}
	registry.Register(driver)
	gateway := NewGatewayWith(registry)

	conn := core.Connector{Name: "cache", Type: core.ConnectorRedis}

	t.Run("DispatchesToDriver", func(t *testing.T) {
		out, err := gateway.Execute(context.Background(), conn, "GET k", 5*time.Second)
		require.NoError(t, err)
		require.Equal(t, `{"result":"PONG"}`, out)
		require.Equal(t, "GET k", driver.lastQuery)
		require.True(t, driver.sawDeadline)
	})
	t.Run("ZeroTimeoutKeepsCallerContext", func(t *testing.T) {
		_, err := gateway.Execute(context.Background(), conn, "GET k", 0)
		require.NoError(t, err)
		require.False(t, driver.sawDeadline)
	})
	t.Run("UnsupportedType", func(t *testing.T) {
		_, err := gateway.Execute(context.Background(), core.Connector{Type: "SQLITE"}, "q", 0)
		require.ErrorIs(t, err, ErrUnsupportedType)
	})
}

func TestGatewayTestConnection(t *testing.T) {
	t.Parallel()

	queryProbes := map[core.ConnectorType]string{
		core.ConnectorMySQL:         "SELECT 1",
		core.ConnectorPostgres:      "SELECT 1",
		core.ConnectorSQLServer:     "SELECT 1",
		core.ConnectorOracle:        "SELECT 1 FROM DUAL",
		core.ConnectorRedis:         "PING",
		core.ConnectorElasticsearch: "GET /",
	}
	for connectorType, probe := range queryProbes {
		t.Run(string(connectorType), func(t *testing.T) {
			registry := NewRegistry()
			driver := &fakeDriver{connectorType: connectorType}
			registry.Register(driver)
			gateway := NewGatewayWith(registry)

			err := gateway.TestConnection(context.Background(), core.Connector{Type: connectorType})
			require.NoError(t, err)
			require.Equal(t, probe, driver.lastQuery)
			require.False(t, driver.pinged)
		})
	}

	pingProbes := []core.ConnectorType{
		core.ConnectorKafka,
		core.ConnectorRabbitMQ,
		core.ConnectorMongoDB,
	}
	for _, connectorType := range pingProbes {
		t.Run(string(connectorType), func(t *testing.T) {
			registry := NewRegistry()
			driver := &fakeDriver{connectorType: connectorType}
			registry.Register(driver)
			gateway := NewGatewayWith(registry)

			err := gateway.TestConnection(context.Background(), core.Connector{Type: connectorType})
			require.NoError(t, err)
			require.True(t, driver.pinged)
			require.Empty(t, driver.lastQuery)
		})
	}

	t.Run("UnsupportedType", func(t *testing.T) {
		gateway := NewGatewayWith(NewRegistry())
		err := gateway.TestConnection(context.Background(), core.Connector{Type: core.ConnectorRedis})
		require.ErrorIs(t, err, ErrUnsupportedType)
	})
}

func TestGlobalRegistry(t *testing.T) {
	// The drivers package registers globally from init, but this package
	// must not depend on it, so register a private type here.
	driver := &fakeDriver{connectorType: core.ConnectorType("TEST")}
	Register(driver)
	got, ok := Get(core.ConnectorType("TEST"))
	require.True(t, ok)
	require.Same(t, driver, got.(*fakeDriver))
}
