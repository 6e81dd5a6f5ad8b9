package exchange

import (
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/backkem/coap/pkg/message"
	"github.com/backkem/coap/pkg/transport"
)

// FailHandler is notified when an exchange fails terminally after
// exhausting its retransmissions. The observe layer uses it to evict all
// relations held by the unreachable peer.
type FailHandler func(ex *Exchange)

// Store tracks in-flight exchanges. Every exchange is indexed twice: by
// (message ID, peer) for acknowledgement matching and by (token, peer)
// for response and notification matching.
//
// Completion operations are idempotent: completing, rejecting, failing or
// cancelling an exchange that already reached a terminal state is a no-op.
// This absorbs the race between a late acknowledgement and a concurrently
// firing retransmission timer.
type Store struct {
	mu      sync.Mutex
	byKey   map[Key]*Exchange
	byToken map[tokenKey]*Exchange

	onFail FailHandler

	log logging.LeveledLogger
}

// tokenKey scopes a token to its peer.
type tokenKey struct {
	Token string
	Peer  string
}

// NewStore creates an empty exchange store.
func NewStore(onFail FailHandler, loggerFactory logging.LoggerFactory) *Store {
	s := &Store{
		byKey:   make(map[Key]*Exchange),
		byToken: make(map[tokenKey]*Exchange),
		onFail:  onFail,
	}
	if loggerFactory != nil {
		s.log = loggerFactory.NewLogger("exchange")
	}
	return s
}

// Register creates and indexes a new pending exchange for the encoded
// message. Returns ErrExchangeExists if the (message ID, peer) key is
// already in flight.
func (s *Store) Register(msg *message.Message, data []byte, peer transport.PeerAddress) (*Exchange, error) {
	ex := newExchange(msg, data, peer)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byKey[ex.key]; ok {
		return nil, ErrExchangeExists
	}
	s.byKey[ex.key] = ex
	if len(ex.token) > 0 {
		s.byToken[tokenKey{Token: ex.token, Peer: ex.key.Peer}] = ex
	}
	return ex, nil
}

// FindByKey returns the exchange for the given (message ID, peer) key.
func (s *Store) FindByKey(messageID uint16, peer transport.PeerAddress) (*Exchange, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ex, ok := s.byKey[Key{MessageID: messageID, Peer: peer.Key()}]
	return ex, ok
}

// FindByToken returns the exchange for the given (token, peer) pair.
func (s *Store) FindByToken(token []byte, peer transport.PeerAddress) (*Exchange, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ex, ok := s.byToken[tokenKey{Token: string(token), Peer: peer.Key()}]
	return ex, ok
}

// Complete marks the exchange acknowledged and removes it from the store.
// Returns false if the exchange was already terminal.
func (s *Store) Complete(ex *Exchange, resp *message.Message) bool {
	if !ex.transition(StateAcknowledged, resp, nil) {
		return false
	}
	s.remove(ex)
	if s.log != nil {
		s.log.Tracef("exchange acknowledged: mid=%d peer=%s", ex.key.MessageID, ex.key.Peer)
	}
	ex.resolve(OutcomeAcknowledged)
	return true
}

// Reject marks the exchange rejected by a peer Reset and removes it from
// the store. Returns false if the exchange was already terminal.
func (s *Store) Reject(ex *Exchange) bool {
	if !ex.transition(StateRejected, nil, ErrRejected) {
		return false
	}
	s.remove(ex)
	if s.log != nil {
		s.log.Debugf("exchange rejected: mid=%d peer=%s", ex.key.MessageID, ex.key.Peer)
	}
	ex.resolve(OutcomeRejected)
	return true
}

// Fail marks the exchange failed after retransmission exhaustion, removes
// it from the store and notifies the failure handler. Returns false if
// the exchange was already terminal.
func (s *Store) Fail(ex *Exchange) bool {
	if !ex.transition(StateFailed, nil, ErrRetransmitTimeout) {
		return false
	}
	s.remove(ex)
	if s.log != nil {
		s.log.Warnf("exchange failed after %d retransmissions: mid=%d peer=%s",
			ex.FailedTransmissions(), ex.key.MessageID, ex.key.Peer)
	}
	ex.resolve(OutcomeTimeout)
	if s.onFail != nil {
		s.onFail(ex)
	}
	return true
}

// Cancel withdraws the exchange without treating it as a failure and
// returns the retransmission state a superseding exchange must inherit:
// the failed transmission count and the timeout currently in effect.
// A zero currentTimeout means the exchange never armed its timer. No
// failure handler and no resolution callback fire. Returns ok=false if
// the exchange was already terminal.
func (s *Store) Cancel(ex *Exchange) (failedTransmissions int, currentTimeout time.Duration, ok bool) {
	ex.mu.Lock()
	if ex.state.IsTerminal() {
		ex.mu.Unlock()
		return 0, 0, false
	}
	ex.state = StateCancelled
	ex.generation++
	if ex.timer != nil {
		ex.timer.Stop()
		ex.timer = nil
	}
	ex.err = ErrCancelled
	failed := ex.failedTransmissions
	timeout := ex.currentTimeout
	ex.mu.Unlock()

	close(ex.done)
	s.remove(ex)
	if s.log != nil {
		s.log.Tracef("exchange cancelled: mid=%d peer=%s", ex.key.MessageID, ex.key.Peer)
	}
	return failed, timeout, true
}

// remove drops the exchange from both indexes.
func (s *Store) remove(ex *Exchange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byKey, ex.key)
	if len(ex.token) > 0 {
		tk := tokenKey{Token: ex.token, Peer: ex.key.Peer}
		if cur, ok := s.byToken[tk]; ok && cur == ex {
			delete(s.byToken, tk)
		}
	}
}

// Count returns the number of in-flight exchanges.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byKey)
}

// CancelAll withdraws every in-flight exchange, for shutdown.
func (s *Store) CancelAll() {
	s.mu.Lock()
	all := make([]*Exchange, 0, len(s.byKey))
	for _, ex := range s.byKey {
		all = append(all, ex)
	}
	s.mu.Unlock()

	for _, ex := range all {
		s.Cancel(ex)
	}
}
