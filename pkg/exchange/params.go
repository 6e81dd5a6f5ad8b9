package exchange

import "time"

// Transmission parameters from RFC 7252 Section 4.8.
const (
	// DefaultAckTimeout is the initial acknowledgement timeout base.
	// Spec: ACK_TIMEOUT = 2s
	DefaultAckTimeout = 2 * time.Second

	// DefaultAckRandomFactor randomizes the initial timeout to avoid
	// synchronization effects.
	// Spec: ACK_RANDOM_FACTOR = 1.5
	DefaultAckRandomFactor = 1.5

	// DefaultTimeoutScale is the factor applied to the timeout on each
	// retransmission. 2.0 gives the standard exponential backoff; 1.0
	// degenerates to constant-interval retransmission, which is useful
	// for deterministic testing.
	DefaultTimeoutScale = 2.0

	// DefaultMaxRetransmit is the maximum number of retransmissions for
	// one Confirmable message chain. After this many retransmissions
	// without acknowledgement, the exchange fails terminally.
	// Spec: MAX_RETRANSMIT = 4
	DefaultMaxRetransmit = 4
)

// lifetimeMargin pads the deduplication window beyond the maximum
// retransmission span to absorb network latency and processing delay.
const lifetimeMargin = 2 * time.Second

// Params holds the reliability-layer timing configuration.
// The zero value is not usable; call DefaultParams or fill every field.
type Params struct {
	// AckTimeout is the base acknowledgement timeout.
	AckTimeout time.Duration

	// AckRandomFactor scales the initial timeout by a uniform random
	// value in [1.0, AckRandomFactor]. Must be >= 1.0.
	AckRandomFactor float64

	// TimeoutScale is the multiplier applied to the current timeout on
	// each retransmission. Must be >= 1.0.
	TimeoutScale float64

	// MaxRetransmit is the maximum number of retransmissions per
	// Confirmable message chain.
	MaxRetransmit int
}

// DefaultParams returns the RFC 7252 default transmission parameters.
func DefaultParams() Params {
	return Params{
		AckTimeout:      DefaultAckTimeout,
		AckRandomFactor: DefaultAckRandomFactor,
		TimeoutScale:    DefaultTimeoutScale,
		MaxRetransmit:   DefaultMaxRetransmit,
	}
}

// Validate checks the parameters for errors.
func (p Params) Validate() error {
	if p.AckTimeout <= 0 {
		return ErrInvalidParams
	}
	if p.AckRandomFactor < 1.0 {
		return ErrInvalidParams
	}
	if p.TimeoutScale < 1.0 {
		return ErrInvalidParams
	}
	if p.MaxRetransmit < 0 {
		return ErrInvalidParams
	}
	return nil
}

// MaxTransmitSpan returns the maximum time from the first transmission of
// a Confirmable message to its last retransmission, assuming maximum
// randomization (RFC 7252 Section 4.8.2). With the default parameters
// this is 45 seconds.
func (p Params) MaxTransmitSpan() time.Duration {
	span := 0.0
	timeout := float64(p.AckTimeout) * p.AckRandomFactor
	for i := 0; i < p.MaxRetransmit; i++ {
		span += timeout
		timeout *= p.TimeoutScale
	}
	return time.Duration(span)
}

// ExchangeLifetime returns how long a (message ID, peer) pair must be
// remembered for deduplication: the maximum retransmission window of the
// original request plus a safety margin.
func (p Params) ExchangeLifetime() time.Duration {
	return p.MaxTransmitSpan() + lifetimeMargin
}
