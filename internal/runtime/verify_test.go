package runtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probeflow/probeflow/internal/core"
)

type fakeGateway struct {
	mu       sync.Mutex
	queries  []string
	timeouts []time.Duration
	result   string
	err      error
	release  chan struct{}
}

func (f *fakeGateway) Execute(ctx context.Context, _ core.Connector, query string, timeout time.Duration) (string, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.timeouts = append(f.timeouts, timeout)
	f.mu.Unlock()
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.result, f.err
}

func (f *fakeGateway) TestConnection(context.Context, core.Connector) error {
	return f.err
}

func (f *fakeGateway) recorded() ([]string, []time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...), append([]time.Duration(nil), f.timeouts...)
}

func verifyEnv() *core.Environment {
	return &core.Environment{
		Name: "staging",
		Connectors: []core.Connector{
			{Name: "orders-db", Type: core.ConnectorPostgres, Config: map[string]string{"host": "db"}},
			{Name: "order-events", Type: core.ConnectorKafka, Config: map[string]string{"brokers": "kafka:9092"}},
			{Name: "cache", Type: core.ConnectorRedis, Config: map[string]string{"host": "redis"}},
		},
	}
}

func TestVerifier_Collect(t *testing.T) {
	t.Run("AssertionsPass", func(t *testing.T) {
		gw := &fakeGateway{result: `[{"id":"o-1","status":"CONFIRMED"}]`}
		v := NewVerifier(gw)
		step := &core.TestStep{
			ID:   "create",
			Name: "Create Order",
			Verifications: []core.Verification{{
				ConnectorName:       "orders-db",
				Query:               "SELECT * FROM orders WHERE id = '{{Create Order.orderId}}'",
				QueryTimeoutSeconds: 7,
				Assertions: []core.Assertion{
					{JSONPath: "[0].status", Operator: core.OpEquals, ExpectedValue: "CONFIRMED"},
					{JSONPath: "[0].id", Operator: core.OpExists},
				},
			}},
		}
		scope := testScope(verifyEnv(), step)
		scope.Vars["Create Order.orderId"] = "o-1"

		results := v.Collect(context.Background(), step, scope, nil, nil)
		require.Len(t, results, 1)
		assert.Equal(t, core.VerificationSuccess, results[0].Status)
		assert.Len(t, results[0].AssertionResults, 2)

		queries, timeouts := gw.recorded()
		require.Len(t, queries, 1)
		assert.Equal(t, "SELECT * FROM orders WHERE id = 'o-1'", queries[0])
		assert.Equal(t, 7*time.Second, timeouts[0])
	})

	t.Run("FailedAssertionMarksFailed", func(t *testing.T) {
		gw := &fakeGateway{result: `[{"status":"PENDING"}]`}
		v := NewVerifier(gw)
		step := &core.TestStep{
			ID:   "create",
			Name: "Create Order",
			Verifications: []core.Verification{{
				ConnectorName: "orders-db",
				Query:         "SELECT status FROM orders",
				Assertions: []core.Assertion{
					{JSONPath: "[0].status", Operator: core.OpEquals, ExpectedValue: "CONFIRMED"},
					{JSONPath: "[0].status", Operator: core.OpExists},
				},
			}},
		}
		results := v.Collect(context.Background(), step, testScope(verifyEnv(), step), nil, nil)
		require.Len(t, results, 1)
		assert.Equal(t, core.VerificationFailed, results[0].Status)
		assert.Equal(t, "1 of 2 assertions failed", results[0].Message)
		assert.False(t, results[0].AssertionResults[0].Passed)
		assert.True(t, results[0].AssertionResults[1].Passed)
	})

	t.Run("ConnectorErrorIsVerificationError", func(t *testing.T) {
		gw := &fakeGateway{err: errors.New("dial tcp: connection refused")}
		v := NewVerifier(gw)
		step := &core.TestStep{
			ID:   "create",
			Name: "Create Order",
			Verifications: []core.Verification{{
				ConnectorName: "orders-db",
				Query:         "SELECT 1",
				Assertions:    []core.Assertion{{JSONPath: "[0]", Operator: core.OpExists}},
			}},
		}
		results := v.Collect(context.Background(), step, testScope(verifyEnv(), step), nil, nil)
		require.Len(t, results, 1)
		assert.Equal(t, core.VerificationError, results[0].Status)
		assert.Contains(t, results[0].Message, "connection refused")
		assert.Empty(t, results[0].AssertionResults)
	})

	t.Run("UnknownConnector", func(t *testing.T) {
		v := NewVerifier(&fakeGateway{})
		step := &core.TestStep{
			ID:   "create",
			Name: "Create Order",
			Verifications: []core.Verification{{
				ConnectorName: "nonexistent",
				Query:         "SELECT 1",
			}},
		}
		results := v.Collect(context.Background(), step, testScope(verifyEnv(), step), nil, nil)
		require.Len(t, results, 1)
		assert.Equal(t, core.VerificationError, results[0].Status)
		assert.Equal(t, `connector "nonexistent" not found in environment`, results[0].Message)
	})
}

func TestVerifier_PreListeners(t *testing.T) {
	t.Run("AwaitsSpawnedListener", func(t *testing.T) {
		gw := &fakeGateway{result: `{"value":"order-created"}`, release: make(chan struct{})}
		v := NewVerifier(gw)
		v.settle = time.Millisecond
		step := &core.TestStep{
			ID:   "create",
			Name: "Create Order",
			Verifications: []core.Verification{{
				ConnectorName:  "order-events",
				Query:          "topic=orders",
				PreListen:      true,
				TimeoutSeconds: 30,
				Assertions: []core.Assertion{
					{JSONPath: "value", Operator: core.OpContains, ExpectedValue: "order-created"},
				},
			}},
		}
		scope := testScope(verifyEnv(), step)

		listeners := v.StartPreListeners(context.Background(), step, scope)
		require.Len(t, listeners, 1)

		// The listener query is in flight before the HTTP call would go out.
		require.Eventually(t, func() bool {
			queries, _ := gw.recorded()
			return len(queries) == 1
		}, time.Second, 5*time.Millisecond)

		close(gw.release)
		results := v.Collect(context.Background(), step, scope, listeners, nil)
		require.Len(t, results, 1)
		assert.Equal(t, core.VerificationSuccess, results[0].Status)

		_, timeouts := gw.recorded()
		assert.Equal(t, 30*time.Second, timeouts[0])
	})

	t.Run("KafkaKeyFilterStrippedWhenUnresolved", func(t *testing.T) {
		gw := &fakeGateway{result: `{"value":"ok"}`}
		v := NewVerifier(gw)
		v.settle = time.Millisecond
		step := &core.TestStep{
			ID:   "create",
			Name: "Create Order",
			Verifications: []core.Verification{{
				ConnectorName: "order-events",
				Query:         "topic=orders\nkey={{Create Order.orderId}}",
				PreListen:     true,
			}},
		}
		scope := testScope(verifyEnv(), step)

		listeners := v.StartPreListeners(context.Background(), step, scope)
		results := v.Collect(context.Background(), step, scope, listeners, nil)
		require.Len(t, results, 1)

		queries, _ := gw.recorded()
		require.Len(t, queries, 1)
		assert.Equal(t, "topic=orders\n", queries[0])
		assert.Equal(t, "topic=orders\n", results[0].Query)
	})

	t.Run("KafkaKeyFilterKeptWhenResolved", func(t *testing.T) {
		gw := &fakeGateway{result: `{"value":"ok"}`}
		v := NewVerifier(gw)
		v.settle = time.Millisecond
		step := &core.TestStep{
			ID:   "create",
			Name: "Create Order",
			Verifications: []core.Verification{{
				ConnectorName: "order-events",
				Query:         "topic=orders\nkey={{Login.tenant}}",
				PreListen:     true,
			}},
		}
		scope := testScope(verifyEnv(), step)
		scope.Vars["Login.tenant"] = "acme"

		listeners := v.StartPreListeners(context.Background(), step, scope)
		v.Collect(context.Background(), step, scope, listeners, nil)

		queries, _ := gw.recorded()
		require.Len(t, queries, 1)
		assert.Equal(t, "topic=orders\nkey=acme", queries[0])
	})

	t.Run("NonKafkaListenerKeepsUnresolvedQuery", func(t *testing.T) {
		gw := &fakeGateway{result: `{"result":null}`}
		v := NewVerifier(gw)
		v.settle = time.Millisecond
		step := &core.TestStep{
			ID:   "create",
			Name: "Create Order",
			Verifications: []core.Verification{{
				ConnectorName: "cache",
				Query:         "GET order:{{Create Order.orderId}}",
				PreListen:     true,
			}},
		}
		scope := testScope(verifyEnv(), step)

		listeners := v.StartPreListeners(context.Background(), step, scope)
		v.Collect(context.Background(), step, scope, listeners, nil)

		queries, _ := gw.recorded()
		require.Len(t, queries, 1)
		assert.Equal(t, "GET order:{{Create Order.orderId}}", queries[0])
	})

	t.Run("MixedVerificationsKeepDefinitionOrder", func(t *testing.T) {
		gw := &fakeGateway{result: `{"value":"ok"}`}
		v := NewVerifier(gw)
		v.settle = time.Millisecond
		step := &core.TestStep{
			ID:   "create",
			Name: "Create Order",
			Verifications: []core.Verification{
				{ConnectorName: "orders-db", Query: "SELECT 1"},
				{ConnectorName: "order-events", Query: "topic=orders", PreListen: true},
				{ConnectorName: "cache", Query: "GET order:o-1"},
			},
		}
		scope := testScope(verifyEnv(), step)

		listeners := v.StartPreListeners(context.Background(), step, scope)
		require.Len(t, listeners, 1)

		results := v.Collect(context.Background(), step, scope, listeners, nil)
		require.Len(t, results, 3)
		assert.Equal(t, "orders-db", results[0].ConnectorName)
		assert.Equal(t, "order-events", results[1].ConnectorName)
		assert.Equal(t, "cache", results[2].ConnectorName)
	})
}
