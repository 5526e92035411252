package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/probeflow/probeflow/internal/cmn/logger"
	"github.com/probeflow/probeflow/internal/cmn/logger/tag"
	"github.com/probeflow/probeflow/internal/connector"
	"github.com/probeflow/probeflow/internal/core"
)

// defaultListenerSettle is how long pre-listeners get to establish
// their backend connections before the HTTP call goes out.
const defaultListenerSettle = 500 * time.Millisecond

// Verifier coordinates a step's data verifications: pre-listen queries
// spawned before the HTTP call, post-delay queries after it, and the
// assertion evaluation on whatever the connector returns. Connector
// failures and timeouts surface as ERROR verification results, never as
// step transport failures.
type Verifier struct {
	gateway connector.Executor
	clock   func() time.Time
	settle  time.Duration
}

// NewVerifier returns a verifier dispatching through the given gateway.
func NewVerifier(gateway connector.Executor) *Verifier {
	return &Verifier{gateway: gateway, clock: time.Now, settle: defaultListenerSettle}
}

// preListener is one in-flight pre-listen verification. The goroutine
// delivers exactly one result on the buffered channel.
type preListener struct {
	verification core.Verification
	result       chan core.VerificationResult
}

// StartPreListeners spawns the step's preListen verifications so they
// observe side effects of the upcoming HTTP call, then waits briefly
// for the connections to settle. Queries resolve against the current
// scope; a Kafka listener whose query still references the step's own
// not-yet-available variables falls back to topic-level filtering.
func (v *Verifier) StartPreListeners(ctx context.Context, step *core.TestStep, scope *Scope) []*preListener {
	var listeners []*preListener
	for _, ver := range step.Verifications {
		if !ver.PreListen {
			continue
		}
		query := v.listenQuery(ver, scope)
		timeout := time.Duration(ver.TimeoutSeconds) * time.Second
		pl := &preListener{
			verification: ver,
			result:       make(chan core.VerificationResult, 1),
		}
		logger.Debug(ctx, "Starting pre-listener",
			tag.Step(step.Name), tag.Connector(ver.ConnectorName), tag.Timeout(timeout))
		go func() {
			pl.result <- v.run(ctx, pl.verification, query, scope.Env, timeout)
		}()
		listeners = append(listeners, pl)
	}
	if len(listeners) > 0 {
		sleepCtx(ctx, v.settle)
	}
	return listeners
}

// listenQuery resolves a pre-listen query. Unresolved step variables
// are expected here (the step has not run yet) so no warnings are
// recorded for them.
func (v *Verifier) listenQuery(ver core.Verification, scope *Scope) string {
	r := scope.resolver(v.clock, nil)
	query := r.Resolve(ver.Query)
	if !HasUnresolvedStepVars(query) {
		return query
	}
	if scope.Env != nil {
		if conn, ok := scope.Env.Connector(ver.ConnectorName); ok && conn.Type == core.ConnectorKafka {
			return StripKafkaKeyFilter(query)
		}
	}
	return query
}

// Collect finishes the step's verifications in definition order:
// pre-listened ones await their spawned task, the rest sleep their
// post-request delay and then query the connector.
func (v *Verifier) Collect(ctx context.Context, step *core.TestStep, scope *Scope, listeners []*preListener, warn func(string)) []core.VerificationResult {
	if len(step.Verifications) == 0 {
		return nil
	}
	results := make([]core.VerificationResult, 0, len(step.Verifications))
	next := 0
	for _, ver := range step.Verifications {
		if ver.PreListen {
			pl := listeners[next]
			next++
			select {
			case r := <-pl.result:
				results = append(results, r)
			case <-ctx.Done():
				results = append(results, core.VerificationResult{
					ConnectorName: ver.ConnectorName,
					Query:         ver.Query,
					Status:        core.VerificationError,
					Message:       ctx.Err().Error(),
				})
			}
			continue
		}

		if ver.TimeoutSeconds > 0 {
			sleepCtx(ctx, time.Duration(ver.TimeoutSeconds)*time.Second)
		}
		r := scope.resolver(v.clock, warn)
		query := r.Resolve(ver.Query)
		results = append(results, v.run(ctx, ver, query, scope.Env,
			time.Duration(ver.QueryTimeoutSeconds)*time.Second))
	}
	return results
}

// run executes one verification query and evaluates its assertions.
func (v *Verifier) run(ctx context.Context, ver core.Verification, query string, env *core.Environment, timeout time.Duration) core.VerificationResult {
	res := core.VerificationResult{ConnectorName: ver.ConnectorName, Query: query}
	started := time.Now()
	defer func() {
		res.DurationMs = time.Since(started).Milliseconds()
	}()

	var conn core.Connector
	found := false
	if env != nil {
		conn, found = env.Connector(ver.ConnectorName)
	}
	if !found {
		res.Status = core.VerificationError
		res.Message = fmt.Sprintf("connector %q not found in environment", ver.ConnectorName)
		return res
	}

	raw, err := v.gateway.Execute(ctx, conn, query, timeout)
	if err != nil {
		res.Status = core.VerificationError
		res.Message = err.Error()
		logger.Warn(ctx, "Verification query failed",
			tag.Connector(ver.ConnectorName), tag.Type(string(conn.Type)), tag.Error(err))
		return res
	}

	res.Status = core.VerificationSuccess
	failed := 0
	for _, a := range ver.Assertions {
		ar := EvaluateAssertion(raw, a)
		if !ar.Passed {
			failed++
		}
		res.AssertionResults = append(res.AssertionResults, ar)
	}
	if failed > 0 {
		res.Status = core.VerificationFailed
		res.Message = fmt.Sprintf("%d of %d assertions failed", failed, len(ver.Assertions))
	}
	return res
}
