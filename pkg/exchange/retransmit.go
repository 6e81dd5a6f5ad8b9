package exchange

import (
	"time"

	"github.com/pion/logging"
)

// TransmitFunc performs one transmission attempt for an exchange. The
// manager's implementation runs the interceptor hooks and honors message
// cancellation, so retransmissions observe the same rules as the first
// transmission.
type TransmitFunc func(ex *Exchange) error

// Scheduler drives retransmissions for pending exchanges.
//
// Each exchange carries its own timer. When the timer fires and the
// exchange is still pending, the original encoded bytes are resent and
// the timer is re-armed with the scaled timeout, until MaxRetransmit
// retransmissions have been spent; the next firing after that fails the
// exchange terminally.
//
// Every timer firing carries the generation it was armed under. Any
// state change (acknowledgement, cancellation, re-arming) bumps the
// generation, so a firing that raced with the change finds a mismatch
// and does nothing.
type Scheduler struct {
	store    *Store
	params   Params
	backoff  *BackoffCalculator
	transmit TransmitFunc

	log logging.LeveledLogger
}

// NewScheduler creates a retransmission scheduler. If random is nil,
// DefaultRandomSource is used.
func NewScheduler(store *Store, params Params, random RandomSource, transmit TransmitFunc, loggerFactory logging.LoggerFactory) *Scheduler {
	s := &Scheduler{
		store:    store,
		params:   params,
		backoff:  NewBackoffCalculator(params, random),
		transmit: transmit,
	}
	if loggerFactory != nil {
		s.log = loggerFactory.NewLogger("retransmit")
	}
	return s
}

// Start arms the exchange with a fresh randomized initial timeout.
// The first transmission must already have been sent by the caller.
func (s *Scheduler) Start(ex *Exchange) {
	s.arm(ex, 0, s.backoff.InitialTimeout())
}

// StartSeeded arms the exchange with retransmission state inherited from
// a superseded predecessor: the failed transmission count carries over
// and the predecessor's current timeout is reused unchanged. A zero
// timeout falls back to a fresh initial timeout.
func (s *Scheduler) StartSeeded(ex *Exchange, failedTransmissions int, currentTimeout time.Duration) {
	if currentTimeout <= 0 {
		currentTimeout = s.backoff.InitialTimeout()
	}
	s.arm(ex, failedTransmissions, currentTimeout)
}

func (s *Scheduler) arm(ex *Exchange, failedTransmissions int, timeout time.Duration) {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	if ex.state.IsTerminal() {
		return
	}
	ex.failedTransmissions = failedTransmissions
	ex.currentTimeout = timeout
	ex.generation++
	gen := ex.generation
	ex.timer = time.AfterFunc(timeout, func() {
		s.onTimeout(ex, gen)
	})
}

// onTimeout handles a timer firing for the given generation.
func (s *Scheduler) onTimeout(ex *Exchange, gen uint64) {
	ex.mu.Lock()
	if ex.state.IsTerminal() || ex.generation != gen {
		ex.mu.Unlock()
		return
	}

	if ex.failedTransmissions >= s.params.MaxRetransmit {
		ex.mu.Unlock()
		s.store.Fail(ex)
		return
	}

	ex.failedTransmissions++
	ex.currentTimeout = s.backoff.NextTimeout(ex.currentTimeout)
	ex.generation++
	nextGen := ex.generation
	ex.timer = time.AfterFunc(ex.currentTimeout, func() {
		s.onTimeout(ex, nextGen)
	})
	attempt := ex.failedTransmissions
	ex.mu.Unlock()

	if s.log != nil {
		s.log.Debugf("retransmitting: mid=%d peer=%s attempt=%d/%d",
			ex.key.MessageID, ex.key.Peer, attempt, s.params.MaxRetransmit)
	}
	if err := s.transmit(ex); err != nil && s.log != nil {
		s.log.Warnf("retransmission send failed: mid=%d peer=%s: %v",
			ex.key.MessageID, ex.key.Peer, err)
	}
}
