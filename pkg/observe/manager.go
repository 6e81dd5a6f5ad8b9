package observe

import (
	"sync"

	"github.com/pion/logging"

	"github.com/backkem/coap/pkg/exchange"
	"github.com/backkem/coap/pkg/message"
	"github.com/backkem/coap/pkg/transport"
)

// relationKey identifies a relation by its (peer, token) pair.
type relationKey struct {
	Peer  string
	Token string
}

// Config configures the observe manager.
type Config struct {
	// Exchanges is the reliability layer notifications are sent through.
	// Required.
	Exchanges *exchange.Manager

	// Observable reports whether the resource at the given path supports
	// observation. If nil, every path is observable.
	Observable func(path string) bool

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Manager keeps the observe relation registry and drives notifications.
//
// Relations are indexed three ways: by (peer, token) for registration and
// Reset handling, by resource path for change notification fan-out, and
// by peer for the eviction sweep. The reliability layer reports outcomes
// per notification exchange; a rejection cancels the one relation it
// belongs to, while retransmission exhaustion cancels every relation the
// peer holds, because an unreachable peer is unreachable for all of them.
type Manager struct {
	exchanges  *exchange.Manager
	observable func(string) bool

	mu     sync.Mutex
	byKey  map[relationKey]*Relation
	byPath map[string]map[relationKey]*Relation
	byPeer map[string]map[relationKey]*Relation

	log logging.LeveledLogger
}

// NewManager creates an observe manager.
func NewManager(config Config) *Manager {
	m := &Manager{
		exchanges:  config.Exchanges,
		observable: config.Observable,
		byKey:      make(map[relationKey]*Relation),
		byPath:     make(map[string]map[relationKey]*Relation),
		byPeer:     make(map[string]map[relationKey]*Relation),
	}
	if config.LoggerFactory != nil {
		m.log = config.LoggerFactory.NewLogger("observe")
	}
	return m
}

// Subscribe registers an observer for the resource at path. A repeated
// registration with the same (peer, token) refreshes the existing
// relation; a token already bound to a different path is rebound.
func (m *Manager) Subscribe(path string, peer transport.PeerAddress, token []byte) (*Relation, error) {
	if m.observable != nil && !m.observable(path) {
		return nil, ErrNotObservable
	}

	key := relationKey{Peer: peer.Key(), Token: string(token)}

	m.mu.Lock()
	if existing, ok := m.byKey[key]; ok {
		if existing.path == path {
			m.mu.Unlock()
			return existing, nil
		}
		m.removeLocked(existing, key)
		existing.markCancelled()
	}

	rel := newRelation(path, peer, token)
	m.byKey[key] = rel
	m.indexLocked(rel, key)
	m.mu.Unlock()

	if m.log != nil {
		m.log.Debugf("observer registered: path=%s peer=%s tkn=%x", path, key.Peer, token)
	}
	return rel, nil
}

// Unsubscribe removes the relation for the given (peer, token), cancelling
// any in-flight notification.
func (m *Manager) Unsubscribe(peer transport.PeerAddress, token []byte) (*Relation, error) {
	key := relationKey{Peer: peer.Key(), Token: string(token)}

	m.mu.Lock()
	rel, ok := m.byKey[key]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNoRelation
	}
	m.removeLocked(rel, key)
	m.mu.Unlock()

	m.cancel(rel)
	if m.log != nil {
		m.log.Debugf("observer deregistered: path=%s peer=%s tkn=%x", rel.path, key.Peer, token)
	}
	return rel, nil
}

// Get returns the relation for the given (peer, token).
func (m *Manager) Get(peer transport.PeerAddress, token []byte) (*Relation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rel, ok := m.byKey[relationKey{Peer: peer.Key(), Token: string(token)}]
	return rel, ok
}

// Count returns the number of active relations.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byKey)
}

// CountForPeer returns the number of relations held by the given peer.
func (m *Manager) CountForPeer(peer transport.PeerAddress) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byPeer[peer.Key()])
}

// Notify sends a notification with the given payload to every observer of
// the resource at path. Confirmable notifications become tracked
// exchanges; if a prior notification to the same observer is still in
// flight it is superseded and its retransmission state carries over.
// Returns the number of observers notified.
func (m *Manager) Notify(path string, payload []byte, confirmable bool) int {
	m.mu.Lock()
	relations := make([]*Relation, 0, len(m.byPath[path]))
	for _, rel := range m.byPath[path] {
		relations = append(relations, rel)
	}
	m.mu.Unlock()

	notified := 0
	for _, rel := range relations {
		if m.notifyRelation(rel, payload, confirmable) {
			notified++
		}
	}
	return notified
}

func (m *Manager) notifyRelation(rel *Relation, payload []byte, confirmable bool) bool {
	msg := message.NewResponse(message.CodeContent, rel.Token(), payload)
	msg.SetObserve(rel.NextSeq())

	if !confirmable {
		msg.Type = message.TypeNonConfirmable
		if _, err := m.exchanges.SendNotification(msg, rel.peer, nil); err != nil {
			if m.log != nil {
				m.log.Warnf("sending notification failed: %s: %v", rel, err)
			}
			return false
		}
		return true
	}

	if !rel.markNotifying() {
		return false
	}
	msg.Type = message.TypeConfirmable
	if _, err := m.exchanges.SendNotification(msg, rel.peer, m.resolveFor(rel)); err != nil {
		if m.log != nil {
			m.log.Warnf("sending notification failed: %s: %v", rel, err)
		}
		rel.markEstablished()
		return false
	}
	return true
}

// resolveFor maps a notification exchange outcome onto the relation
// lifecycle.
func (m *Manager) resolveFor(rel *Relation) exchange.ResolveFunc {
	return func(_ *exchange.Exchange, outcome exchange.Outcome) {
		switch outcome {
		case exchange.OutcomeAcknowledged:
			rel.markEstablished()
		case exchange.OutcomeRejected:
			// The peer rejected this notification: only this relation ends.
			m.Cancel(rel)
		case exchange.OutcomeTimeout:
			// The peer stopped acknowledging: every relation it holds ends.
			m.CancelPeer(rel.peer.Key())
		}
	}
}

// Cancel removes and cancels a single relation.
func (m *Manager) Cancel(rel *Relation) {
	key := relationKey{Peer: rel.peer.Key(), Token: rel.token}

	m.mu.Lock()
	if cur, ok := m.byKey[key]; ok && cur == rel {
		m.removeLocked(rel, key)
	}
	m.mu.Unlock()

	m.cancel(rel)
}

// CancelPeer cancels every relation held by the given peer and returns
// the cancelled relations.
func (m *Manager) CancelPeer(peerKey string) []*Relation {
	m.mu.Lock()
	keys := make([]relationKey, 0, len(m.byPeer[peerKey]))
	relations := make([]*Relation, 0, len(m.byPeer[peerKey]))
	for key, rel := range m.byPeer[peerKey] {
		keys = append(keys, key)
		relations = append(relations, rel)
	}
	for i, key := range keys {
		m.removeLocked(relations[i], key)
	}
	m.mu.Unlock()

	for _, rel := range relations {
		m.cancel(rel)
	}
	if len(relations) > 0 && m.log != nil {
		m.log.Infof("evicted %d relation(s) for unresponsive peer %s", len(relations), peerKey)
	}
	return relations
}

// HandleExchangeFailure is the exchange-layer failure hook: any exchange
// toward a peer exhausting its retransmissions evicts the peer's
// relations.
func (m *Manager) HandleExchangeFailure(ex *exchange.Exchange) {
	m.CancelPeer(ex.Key().Peer)
}

// CancelAll cancels every relation, for shutdown.
func (m *Manager) CancelAll() {
	m.mu.Lock()
	relations := make([]*Relation, 0, len(m.byKey))
	keys := make([]relationKey, 0, len(m.byKey))
	for key, rel := range m.byKey {
		keys = append(keys, key)
		relations = append(relations, rel)
	}
	for i, key := range keys {
		m.removeLocked(relations[i], key)
	}
	m.mu.Unlock()

	for _, rel := range relations {
		m.cancel(rel)
	}
}

// cancel marks the relation cancelled and withdraws its in-flight
// notification exchange, if any.
func (m *Manager) cancel(rel *Relation) {
	if !rel.markCancelled() {
		return
	}
	if ex, ok := m.exchanges.Store().FindByToken(rel.Token(), rel.peer); ok {
		m.exchanges.Store().Cancel(ex)
	}
	if m.log != nil {
		m.log.Debugf("relation cancelled: path=%s peer=%s tkn=%x", rel.path, rel.peer.Key(), rel.Token())
	}
}

// indexLocked adds the relation to the path and peer indexes.
// Caller holds m.mu.
func (m *Manager) indexLocked(rel *Relation, key relationKey) {
	if m.byPath[rel.path] == nil {
		m.byPath[rel.path] = make(map[relationKey]*Relation)
	}
	m.byPath[rel.path][key] = rel

	if m.byPeer[key.Peer] == nil {
		m.byPeer[key.Peer] = make(map[relationKey]*Relation)
	}
	m.byPeer[key.Peer][key] = rel
}

// removeLocked drops the relation from all indexes. Caller holds m.mu.
func (m *Manager) removeLocked(rel *Relation, key relationKey) {
	delete(m.byKey, key)
	if paths := m.byPath[rel.path]; paths != nil {
		delete(paths, key)
		if len(paths) == 0 {
			delete(m.byPath, rel.path)
		}
	}
	if peers := m.byPeer[key.Peer]; peers != nil {
		delete(peers, key)
		if len(peers) == 0 {
			delete(m.byPeer, key.Peer)
		}
	}
}
