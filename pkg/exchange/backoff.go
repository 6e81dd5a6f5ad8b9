package exchange

import (
	"math/rand"
	"time"
)

// RandomSource provides random values for timeout randomization.
// Allows injection of deterministic sources for testing.
type RandomSource interface {
	// Float64 returns a random float64 in [0.0, 1.0).
	Float64() float64
}

// defaultRandomSource uses math/rand for production.
type defaultRandomSource struct{}

func (defaultRandomSource) Float64() float64 {
	return rand.Float64()
}

// DefaultRandomSource is the default random source using math/rand.
var DefaultRandomSource RandomSource = defaultRandomSource{}

// BackoffCalculator computes retransmission timeouts.
//
// The schedule from RFC 7252 Section 4.2:
//
//	timeout(0) = AckTimeout * uniform(1.0, AckRandomFactor)
//	timeout(i) = timeout(i-1) * TimeoutScale
//
// With TimeoutScale = 2 this is the standard doubling backoff; with
// TimeoutScale = 1 the interval stays constant, which keeps tests
// deterministic.
type BackoffCalculator struct {
	params Params
	random RandomSource
}

// NewBackoffCalculator creates a backoff calculator with the given random
// source. If random is nil, DefaultRandomSource is used.
func NewBackoffCalculator(params Params, random RandomSource) *BackoffCalculator {
	if random == nil {
		random = DefaultRandomSource
	}
	return &BackoffCalculator{params: params, random: random}
}

// InitialTimeout computes the randomized timeout for the first transmission.
func (b *BackoffCalculator) InitialTimeout() time.Duration {
	factor := 1.0 + b.random.Float64()*(b.params.AckRandomFactor-1.0)
	return time.Duration(float64(b.params.AckTimeout) * factor)
}

// NextTimeout computes the timeout following the given one.
func (b *BackoffCalculator) NextTimeout(current time.Duration) time.Duration {
	return time.Duration(float64(current) * b.params.TimeoutScale)
}

// MinInitialTimeout returns the smallest possible initial timeout (no
// randomization). Useful for tests and documentation.
func (b *BackoffCalculator) MinInitialTimeout() time.Duration {
	return b.params.AckTimeout
}

// MaxInitialTimeout returns the largest possible initial timeout (full
// randomization). Useful for tests and documentation.
func (b *BackoffCalculator) MaxInitialTimeout() time.Duration {
	return time.Duration(float64(b.params.AckTimeout) * b.params.AckRandomFactor)
}
