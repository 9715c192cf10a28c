// Package backoff implements backoff policies for retrying operations.
//
// Use Retry or RetryUntilCancel with a BackOff to run an operation until it
// succeeds, the policy gives up, or the context is cancelled.
package backoff

import (
	"math/rand"
	"time"
)

// BackOff is a backoff policy for retrying an operation.
type BackOff interface {
	// NextBackOff returns the duration to wait before retrying the
	// operation, or Stop to indicate that no more retries should be made.
	NextBackOff() time.Duration

	// Reset to initial state.
	Reset()
}

// Stop indicates that no more retries should be made for use in NextBackOff().
const Stop time.Duration = -1

// ZeroBackOff is a fixed backoff policy whose backoff time is always zero,
// meaning that the operation is retried immediately without waiting,
// indefinitely.
type ZeroBackOff struct{}

func (b *ZeroBackOff) Reset() {}

func (b *ZeroBackOff) NextBackOff() time.Duration { return 0 }

// StopBackOff is a fixed backoff policy that always returns Stop, meaning
// that the operation should never be retried.
type StopBackOff struct{}

func (b *StopBackOff) Reset() {}

func (b *StopBackOff) NextBackOff() time.Duration { return Stop }

// ConstantBackOff is a backoff policy that always returns the same backoff
// delay, indefinitely.
type ConstantBackOff struct {
	Interval time.Duration
}

func (b *ConstantBackOff) Reset() {}

func (b *ConstantBackOff) NextBackOff() time.Duration { return b.Interval }

func NewConstantBackOff(d time.Duration) *ConstantBackOff {
	return &ConstantBackOff{Interval: d}
}

// Default values for ExponentialBackOff.
const (
	DefaultInitialInterval     = 500 * time.Millisecond
	DefaultRandomizationFactor = 0.5
	DefaultMultiplier          = 1.5
	DefaultMaxInterval         = 60 * time.Second
	DefaultMaxElapsedTime      = 15 * time.Minute
)

// ExponentialBackOff is a backoff policy whose delay grows exponentially,
// with added jitter:
//
//	delay = CurrentInterval * (random value in [1-RandomizationFactor, 1+RandomizationFactor])
//
// NextBackOff returns Stop once MaxElapsedTime has passed since Reset (or
// construction).  MaxElapsedTime == 0 means retry forever.
//
// ExponentialBackOff is not thread-safe.
type ExponentialBackOff struct {
	InitialInterval     time.Duration
	RandomizationFactor float64
	Multiplier          float64
	MaxInterval         time.Duration
	MaxElapsedTime      time.Duration

	currentInterval time.Duration
	startTime       time.Time
}

// NewExponentialBackOff creates an instance of ExponentialBackOff using
// default values.
func NewExponentialBackOff() *ExponentialBackOff {
	b := &ExponentialBackOff{
		InitialInterval:     DefaultInitialInterval,
		RandomizationFactor: DefaultRandomizationFactor,
		Multiplier:          DefaultMultiplier,
		MaxInterval:         DefaultMaxInterval,
		MaxElapsedTime:      DefaultMaxElapsedTime,
	}
	b.Reset()
	return b
}

func (b *ExponentialBackOff) Reset() {
	b.currentInterval = b.InitialInterval
	b.startTime = time.Now()
}

func (b *ExponentialBackOff) NextBackOff() time.Duration {
	if b.MaxElapsedTime != 0 && time.Since(b.startTime) > b.MaxElapsedTime {
		return Stop
	}
	next := b.currentInterval
	if b.RandomizationFactor > 0 {
		delta := b.RandomizationFactor * float64(next)
		minInterval := float64(next) - delta
		next = time.Duration(minInterval + rand.Float64()*2*delta)
	}
	b.currentInterval = time.Duration(float64(b.currentInterval) * b.Multiplier)
	if b.currentInterval > b.MaxInterval {
		b.currentInterval = b.MaxInterval
	}
	return next
}

type maxTriesBackOff struct {
	delegate BackOff
	max, n   uint64
}

// WithMaxRetries wraps a BackOff so that it stops after max retries.
func WithMaxRetries(b BackOff, max uint64) BackOff {
	return &maxTriesBackOff{delegate: b, max: max}
}

func (b *maxTriesBackOff) NextBackOff() time.Duration {
	if b.n >= b.max {
		return Stop
	}
	b.n++
	return b.delegate.NextBackOff()
}

func (b *maxTriesBackOff) Reset() {
	b.n = 0
	b.delegate.Reset()
}
