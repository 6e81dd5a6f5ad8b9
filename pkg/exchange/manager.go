package exchange

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/backkem/coap/pkg/message"
	"github.com/backkem/coap/pkg/transport"
)

// SendFunc hands an encoded datagram to the transport.
type SendFunc func(data []byte, peer transport.PeerAddress) error

// RequestHandler processes an inbound request and returns the response to
// piggyback on the acknowledgement. A nil response means the request is
// answered with an empty acknowledgement (CON) or not at all (NON).
type RequestHandler func(req *message.Message, peer transport.PeerAddress) *message.Message

// ResponseHandler processes an inbound separate response, typically an
// observe notification arriving at a client. It reports whether the
// response token was recognized; unrecognized Confirmable responses are
// rejected with a Reset so the sender stops retransmitting.
type ResponseHandler func(resp *message.Message, peer transport.PeerAddress) bool

// Config configures the exchange manager.
type Config struct {
	// Params are the transmission parameters. The zero value selects the
	// RFC 7252 defaults.
	Params Params

	// Send hands encoded datagrams to the transport.
	// Required.
	Send SendFunc

	// RequestHandler processes inbound requests.
	RequestHandler RequestHandler

	// ResponseHandler processes inbound separate responses.
	ResponseHandler ResponseHandler

	// FailureHandler is notified when an exchange exhausts its
	// retransmissions.
	FailureHandler FailHandler

	// Interceptors observe every message crossing the layer.
	Interceptors []Interceptor

	// RandomSource randomizes retransmission timeouts.
	// If nil, a math/rand source is used.
	RandomSource RandomSource

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Manager ties the reliability components together: the exchange store,
// the retransmission scheduler, the deduplicator and the interceptor
// chain. It is the single entry and exit point for messages between the
// transport and the layers above.
type Manager struct {
	params    Params
	send      SendFunc
	onRequest RequestHandler
	onRespond ResponseHandler

	store *Store
	sched *Scheduler
	dedup *Deduplicator
	chain *interceptorChain
	mids  *message.MIDAllocator

	mu     sync.RWMutex
	closed bool

	log logging.LeveledLogger
}

// NewManager creates an exchange manager and starts its background
// deduplication sweep. Call Close on shutdown.
func NewManager(config Config) (*Manager, error) {
	if config.Send == nil {
		return nil, ErrInvalidParams
	}
	params := config.Params
	if params == (Params{}) {
		params = DefaultParams()
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		params:    params,
		send:      config.Send,
		onRequest: config.RequestHandler,
		onRespond: config.ResponseHandler,
		chain:     newInterceptorChain(config.Interceptors, config.LoggerFactory),
		mids:      message.NewMIDAllocator(),
	}
	m.store = NewStore(config.FailureHandler, config.LoggerFactory)
	m.sched = NewScheduler(m.store, params, config.RandomSource, m.transmit, config.LoggerFactory)
	m.dedup = NewDeduplicator(params.ExchangeLifetime(), config.LoggerFactory)
	if config.LoggerFactory != nil {
		m.log = config.LoggerFactory.NewLogger("exchange")
	}

	m.dedup.Start()
	return m, nil
}

// Close cancels all in-flight exchanges and stops background work.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.closed = true
	m.mu.Unlock()

	m.dedup.Stop()
	m.store.CancelAll()
	return nil
}

func (m *Manager) isClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// Params returns the transmission parameters in effect.
func (m *Manager) Params() Params {
	return m.params
}

// Store returns the exchange store.
func (m *Manager) Store() *Store {
	return m.store
}

// SendRequest sends a request to the peer. Confirmable requests are
// tracked as exchanges and retransmitted until acknowledged; the returned
// exchange's WaitResponse blocks for the outcome. Non-confirmable
// requests are fire-and-forget and return a nil exchange.
func (m *Manager) SendRequest(msg *message.Message, peer transport.PeerAddress) (*Exchange, error) {
	if m.isClosed() {
		return nil, ErrClosed
	}
	if !msg.Code.IsRequest() {
		return nil, ErrInvalidMessage
	}
	if msg.Type != message.TypeConfirmable && msg.Type != message.TypeNonConfirmable {
		return nil, ErrInvalidMessage
	}

	msg.MessageID = m.mids.Next(peer.Key())
	data, err := msg.Encode()
	if err != nil {
		return nil, err
	}

	if msg.Type == message.TypeNonConfirmable {
		m.chain.sendRequest(msg)
		if msg.IsCancelled() {
			return nil, nil
		}
		return nil, m.send(data, peer)
	}

	ex, err := m.store.Register(msg, data, peer)
	if err != nil {
		return nil, err
	}
	if err := m.transmit(ex); err != nil {
		m.store.Cancel(ex)
		return nil, err
	}
	m.sched.Start(ex)
	return ex, nil
}

// SendNotification sends a notification for an observe relation. If a
// prior notification to the same (token, peer) is still in flight it is
// superseded: the old exchange is cancelled without a failure event and
// the new one inherits its failed transmission count and current timeout,
// so an unresponsive peer cannot be kept alive by a fast-changing
// resource. The resolve callback reports the new exchange's outcome.
func (m *Manager) SendNotification(msg *message.Message, peer transport.PeerAddress, resolve ResolveFunc) (*Exchange, error) {
	if m.isClosed() {
		return nil, ErrClosed
	}
	if !msg.Code.IsResponse() {
		return nil, ErrInvalidMessage
	}
	if msg.Type != message.TypeConfirmable && msg.Type != message.TypeNonConfirmable {
		return nil, ErrInvalidMessage
	}

	var (
		inherited      bool
		priorFailed    int
		priorTimeout   time.Duration
		priorMessageID uint16
	)
	if prior, ok := m.store.FindByToken(msg.Token, peer); ok {
		if failed, timeout, cancelled := m.store.Cancel(prior); cancelled {
			inherited = true
			priorFailed = failed
			priorTimeout = timeout
			priorMessageID = prior.key.MessageID
		}
	}

	msg.MessageID = m.mids.Next(peer.Key())
	data, err := msg.Encode()
	if err != nil {
		return nil, err
	}

	if msg.Type == message.TypeNonConfirmable {
		m.chain.sendResponse(msg)
		if msg.IsCancelled() {
			return nil, nil
		}
		return nil, m.send(data, peer)
	}

	ex, err := m.store.Register(msg, data, peer)
	if err != nil {
		return nil, err
	}
	ex.SetResolveFunc(resolve)
	if inherited && m.log != nil {
		m.log.Debugf("notification supersedes mid=%d: mid=%d peer=%s failed=%d",
			priorMessageID, msg.MessageID, ex.key.Peer, priorFailed)
	}
	if err := m.transmit(ex); err != nil {
		m.store.Cancel(ex)
		return nil, err
	}
	if inherited {
		m.sched.StartSeeded(ex, priorFailed, priorTimeout)
	} else {
		m.sched.Start(ex)
	}
	return ex, nil
}

// transmit performs one transmission attempt for an exchange: it runs the
// send-side interceptor hooks, honors message cancellation and hands the
// encoded bytes to the transport. Retransmissions come through here too.
func (m *Manager) transmit(ex *Exchange) error {
	switch {
	case ex.msg.Code.IsRequest():
		m.chain.sendRequest(ex.msg)
	case ex.msg.Code.IsResponse():
		m.chain.sendResponse(ex.msg)
	default:
		m.chain.sendEmptyMessage(ex.msg)
	}
	if ex.msg.IsCancelled() {
		// Synthetic loss: bookkeeping proceeds, nothing hits the wire.
		return nil
	}
	return m.send(ex.data, ex.peer)
}

// sendEmpty builds, intercepts and sends an empty ACK or RST.
func (m *Manager) sendEmpty(msg *message.Message, peer transport.PeerAddress) {
	data, err := msg.Encode()
	if err != nil {
		return
	}
	m.chain.sendEmptyMessage(msg)
	if msg.IsCancelled() {
		return
	}
	if err := m.send(data, peer); err != nil && m.log != nil {
		m.log.Warnf("sending %s failed: peer=%s: %v", msg.Type, peer, err)
	}
}

// HandleDatagram is the transport's inbound entry point. It decodes the
// datagram and dispatches by message type.
func (m *Manager) HandleDatagram(dg *transport.Datagram) {
	if m.isClosed() {
		return
	}

	msg, err := message.Decode(dg.Data)
	if err != nil {
		m.handleDecodeError(dg, err)
		return
	}

	peer := dg.Peer
	switch msg.Type {
	case message.TypeAcknowledgement:
		m.handleAck(msg, peer)
	case message.TypeReset:
		m.chain.receiveEmptyMessage(msg)
		if msg.IsCancelled() {
			return
		}
		if ex, ok := m.store.FindByKey(msg.MessageID, peer); ok {
			m.store.Reject(ex)
		}
	case message.TypeConfirmable, message.TypeNonConfirmable:
		switch {
		case msg.Code.IsRequest():
			m.handleRequest(msg, peer)
		case msg.Code.IsResponse():
			m.handleResponse(msg, peer)
		case msg.Type == message.TypeConfirmable:
			// CoAP ping: empty CON is answered with a Reset.
			m.chain.receiveEmptyMessage(msg)
			if !msg.IsCancelled() {
				m.sendEmpty(message.NewReset(msg.MessageID), peer)
			}
		}
	}
}

// handleDecodeError rejects Confirmable messages carrying an unknown
// critical option with a Reset; anything else undecodable is dropped.
func (m *Manager) handleDecodeError(dg *transport.Datagram, err error) {
	if err == message.ErrUnknownCriticalOption && len(dg.Data) >= 4 {
		mid := binary.BigEndian.Uint16(dg.Data[2:4])
		if message.Type(dg.Data[0]>>4&0x3) == message.TypeConfirmable {
			m.sendEmpty(message.NewReset(mid), dg.Peer)
			return
		}
	}
	if m.log != nil {
		m.log.Debugf("dropping undecodable datagram from %s: %v", dg.Peer, err)
	}
}

// handleAck completes the matching exchange. A piggybacked response
// (non-empty code) carries the answer; an empty acknowledgement just
// confirms receipt.
func (m *Manager) handleAck(msg *message.Message, peer transport.PeerAddress) {
	if msg.Code.IsEmpty() {
		m.chain.receiveEmptyMessage(msg)
	} else {
		m.chain.receiveResponse(msg)
	}
	if msg.IsCancelled() {
		return
	}

	ex, ok := m.store.FindByKey(msg.MessageID, peer)
	if !ok {
		return
	}
	if msg.Code.IsEmpty() {
		m.store.Complete(ex, nil)
	} else {
		m.store.Complete(ex, msg)
	}
}

// handleRequest runs an inbound request through deduplication and the
// request handler, piggybacking the response on the acknowledgement.
func (m *Manager) handleRequest(msg *message.Message, peer transport.PeerAddress) {
	m.chain.receiveRequest(msg)
	if msg.IsCancelled() {
		return
	}

	confirmable := msg.Type == message.TypeConfirmable
	if confirmable {
		cached, isNew := m.dedup.Register(msg.MessageID, peer)
		if !isNew {
			if cached != nil {
				// Retransmitted request: replay the original response.
				if err := m.send(cached, peer); err != nil && m.log != nil {
					m.log.Warnf("replaying response failed: peer=%s: %v", peer, err)
				}
			}
			return
		}
	}

	if m.onRequest == nil {
		if confirmable {
			m.sendEmpty(message.NewReset(msg.MessageID), peer)
		}
		return
	}

	resp := m.onRequest(msg, peer)
	if resp == nil {
		if confirmable {
			m.sendEmpty(message.NewAck(msg.MessageID), peer)
		}
		return
	}

	if confirmable {
		resp.Type = message.TypeAcknowledgement
		resp.MessageID = msg.MessageID
	} else {
		resp.Type = message.TypeNonConfirmable
		resp.MessageID = m.mids.Next(peer.Key())
	}
	if len(resp.Token) == 0 {
		resp.Token = msg.Token
	}

	data, err := resp.Encode()
	if err != nil {
		if m.log != nil {
			m.log.Errorf("encoding response failed: %v", err)
		}
		return
	}
	if confirmable {
		m.dedup.CacheResponse(msg.MessageID, peer, data)
	}

	m.chain.sendResponse(resp)
	if resp.IsCancelled() {
		return
	}
	if err := m.send(data, peer); err != nil && m.log != nil {
		m.log.Warnf("sending response failed: peer=%s: %v", peer, err)
	}
}

// handleResponse processes an inbound separate response, typically a
// notification at an observing client. Recognized Confirmable responses
// are acknowledged; unrecognized ones are rejected with a Reset so the
// sender cancels the relation and stops retransmitting.
func (m *Manager) handleResponse(msg *message.Message, peer transport.PeerAddress) {
	m.chain.receiveResponse(msg)
	if msg.IsCancelled() {
		return
	}

	confirmable := msg.Type == message.TypeConfirmable
	if confirmable {
		cached, isNew := m.dedup.Register(msg.MessageID, peer)
		if !isNew {
			if cached != nil {
				if err := m.send(cached, peer); err != nil && m.log != nil {
					m.log.Warnf("replaying acknowledgement failed: peer=%s: %v", peer, err)
				}
			}
			return
		}
	}

	handled := m.onRespond != nil && m.onRespond(msg, peer)
	if !handled {
		m.sendEmpty(message.NewReset(msg.MessageID), peer)
		return
	}
	if !confirmable {
		return
	}
	ack := message.NewAck(msg.MessageID)
	if data, err := ack.Encode(); err == nil {
		m.dedup.CacheResponse(msg.MessageID, peer, data)
	}
	m.sendEmpty(ack, peer)
}
