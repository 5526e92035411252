package backoff

import (
	"errors"
	"sync"
	"time"
)

// ErrRetriesExhausted is returned when the maximum number of retries
// has been reached.
var ErrRetriesExhausted = errors.New("retries exhausted")

// RetryPolicy computes the wait before the next retry attempt.
type RetryPolicy interface {
	// ComputeNextInterval returns the duration to wait before retry
	// number retryCount, or an error when no more retries are allowed.
	ComputeNextInterval(retryCount int) (time.Duration, error)
}

// ConstantPolicy waits the same interval between retries. The zero
// interval retries immediately.
type ConstantPolicy struct {
	// Interval is the wait between retries.
	Interval time.Duration
	// MaxRetries caps the number of retries; zero allows none.
	MaxRetries int
}

// NewConstantPolicy creates a constant-interval policy with the given
// retry cap.
func NewConstantPolicy(interval time.Duration, maxRetries int) *ConstantPolicy {
	return &ConstantPolicy{Interval: interval, MaxRetries: maxRetries}
}

func (p *ConstantPolicy) ComputeNextInterval(retryCount int) (time.Duration, error) {
	if retryCount >= p.MaxRetries {
		return 0, ErrRetriesExhausted
	}
	return p.Interval, nil
}

// Retrier tracks attempt state for one operation across retries.
type Retrier struct {
	policy RetryPolicy

	mu         sync.Mutex
	retryCount int
}

// NewRetrier creates a Retrier over the given policy.
func NewRetrier(policy RetryPolicy) *Retrier {
	return &Retrier{policy: policy}
}

// Next returns the interval to wait before the next retry and advances
// the attempt counter. It returns ErrRetriesExhausted when the policy
// allows no further attempts.
func (r *Retrier) Next() (time.Duration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	interval, err := r.policy.ComputeNextInterval(r.retryCount)
	if err != nil {
		return 0, err
	}
	r.retryCount++
	return interval, nil
}

// Reset returns the Retrier to its initial state.
func (r *Retrier) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retryCount = 0
}
