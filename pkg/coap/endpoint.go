// Package coap ties the transport, reliability and observe layers into a
// CoAP endpoint serving observable resources.
package coap

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/pion/logging"

	"github.com/backkem/coap/pkg/discovery"
	"github.com/backkem/coap/pkg/exchange"
	"github.com/backkem/coap/pkg/message"
	"github.com/backkem/coap/pkg/observe"
	"github.com/backkem/coap/pkg/transport"
)

// Endpoint is a CoAP endpoint: a resource registry served over the
// reliability layer, with observe support. The same endpoint can act as
// a client by issuing requests and handling notifications.
type Endpoint struct {
	config Config
	log    logging.LeveledLogger

	transport *transport.Manager
	exchanges *exchange.Manager
	observes  *observe.Manager
	adv       *discovery.Advertiser

	mu        sync.RWMutex
	resources map[string]Resource
	started   bool
	closed    bool
}

// NewEndpoint creates a CoAP endpoint with the given configuration.
// The endpoint is created but not listening. Call Start to begin.
func NewEndpoint(config Config) (*Endpoint, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	ep := &Endpoint{
		config:    config,
		resources: make(map[string]Resource),
	}
	if config.LoggerFactory != nil {
		ep.log = config.LoggerFactory.NewLogger("coap")
	}

	exm, err := exchange.NewManager(exchange.Config{
		Params:          config.Params,
		Send:            ep.sendDatagram,
		RequestHandler:  ep.handleRequest,
		ResponseHandler: config.NotificationHandler,
		FailureHandler:  ep.handleExchangeFailure,
		Interceptors:    config.Interceptors,
		RandomSource:    config.RandomSource,
		LoggerFactory:   config.LoggerFactory,
	})
	if err != nil {
		return nil, fmt.Errorf("creating exchange manager: %w", err)
	}
	ep.exchanges = exm

	tm, err := transport.NewManager(transport.ManagerConfig{
		Port:          config.Port,
		Conn:          config.Conn,
		Handler:       exm.HandleDatagram,
		LoggerFactory: config.LoggerFactory,
	})
	if err != nil {
		exm.Close()
		return nil, fmt.Errorf("creating transport manager: %w", err)
	}
	ep.transport = tm

	ep.observes = observe.NewManager(observe.Config{
		Exchanges:     exm,
		Observable:    ep.isObservable,
		LoggerFactory: config.LoggerFactory,
	})

	if config.Advertise != nil {
		adv, err := discovery.NewAdvertiser(*config.Advertise)
		if err != nil {
			exm.Close()
			return nil, fmt.Errorf("creating advertiser: %w", err)
		}
		ep.adv = adv
	}

	return ep, nil
}

// Start begins listening for datagrams and, if configured, advertising
// the endpoint over mDNS.
func (ep *Endpoint) Start() error {
	ep.mu.Lock()
	if ep.closed {
		ep.mu.Unlock()
		return ErrClosed
	}
	if ep.started {
		ep.mu.Unlock()
		return ErrAlreadyStarted
	}
	ep.started = true
	ep.mu.Unlock()

	if err := ep.transport.Start(); err != nil {
		return fmt.Errorf("starting transport: %w", err)
	}
	if ep.adv != nil {
		if err := ep.adv.Start(); err != nil {
			return fmt.Errorf("starting advertiser: %w", err)
		}
	}
	if ep.log != nil {
		ep.log.Infof("endpoint listening on %v", ep.transport.LocalAddr())
	}
	return nil
}

// Close stops the endpoint: advertisement, observe relations, in-flight
// exchanges and the transport.
func (ep *Endpoint) Close() error {
	ep.mu.Lock()
	if ep.closed {
		ep.mu.Unlock()
		return ErrClosed
	}
	ep.closed = true
	ep.mu.Unlock()

	if ep.adv != nil {
		ep.adv.Close()
	}
	ep.observes.CancelAll()
	ep.exchanges.Close()
	return ep.transport.Stop()
}

// LocalAddr returns the address the endpoint listens on.
func (ep *Endpoint) LocalAddr() net.Addr {
	return ep.transport.LocalAddr()
}

// Observes returns the observe relation manager.
func (ep *Endpoint) Observes() *observe.Manager {
	return ep.observes
}

// Exchanges returns the reliability-layer manager.
func (ep *Endpoint) Exchanges() *exchange.Manager {
	return ep.exchanges
}

// AddResource registers a resource at the given path. Observable
// resources are bound to the observe notification path.
func (ep *Endpoint) AddResource(path string, res Resource) error {
	path = strings.Trim(path, "/")
	if path == "" {
		return ErrInvalidPath
	}

	ep.mu.Lock()
	defer ep.mu.Unlock()
	if _, ok := ep.resources[path]; ok {
		return ErrResourceExists
	}
	ep.resources[path] = res

	if or, ok := res.(*ObservedResource); ok {
		or.bind(path, ep.observes.Notify, !ep.config.NonConfirmableNotifications)
	}
	return nil
}

// Resource returns the resource registered at path.
func (ep *Endpoint) Resource(path string) (Resource, bool) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()
	res, ok := ep.resources[strings.Trim(path, "/")]
	return res, ok
}

// Request sends a Confirmable request to a peer and waits for the
// response. Intended for clients built on the endpoint.
func (ep *Endpoint) Request(ctx context.Context, msg *message.Message, peer transport.PeerAddress) (*message.Message, error) {
	ex, err := ep.exchanges.SendRequest(msg, peer)
	if err != nil {
		return nil, err
	}
	if ex == nil {
		return nil, nil
	}
	return ex.WaitResponse(ctx)
}

// sendDatagram hands encoded bytes to the transport.
func (ep *Endpoint) sendDatagram(data []byte, peer transport.PeerAddress) error {
	return ep.transport.Send(data, peer)
}

// isObservable reports whether the resource at path accepts observers.
func (ep *Endpoint) isObservable(path string) bool {
	ep.mu.RLock()
	defer ep.mu.RUnlock()
	res, ok := ep.resources[path]
	return ok && res.IsObservable()
}

// handleExchangeFailure evicts every observe relation of a peer whose
// exchange exhausted its retransmissions.
func (ep *Endpoint) handleExchangeFailure(ex *exchange.Exchange) {
	ep.observes.HandleExchangeFailure(ex)
}

// handleRequest dispatches an inbound request to the resource registry.
// Observe registrations and deregistrations are processed here; the
// response is piggybacked on the acknowledgement by the exchange layer.
func (ep *Endpoint) handleRequest(req *message.Message, peer transport.PeerAddress) *message.Message {
	if req.Code != message.CodeGET {
		return message.NewResponse(message.CodeMethodNotAllowed, req.Token, nil)
	}

	path := strings.Join(req.Path, "/")
	ep.mu.RLock()
	res, ok := ep.resources[path]
	ep.mu.RUnlock()
	if !ok {
		return message.NewResponse(message.CodeNotFound, req.Token, nil)
	}

	if req.IsDeregistration() {
		if _, err := ep.observes.Unsubscribe(peer, req.Token); err == nil && ep.log != nil {
			ep.log.Debugf("observer deregistered from %s", path)
		}
	}

	resp := res.HandleRequest(req, peer)
	if resp == nil {
		return message.NewResponse(message.CodeInternalError, req.Token, nil)
	}

	if req.IsRegistration() {
		rel, err := ep.observes.Subscribe(path, peer, req.Token)
		if err == nil {
			// The registration response doubles as the first notification.
			resp.SetObserve(rel.NextSeq())
		}
		// A non-observable resource answers the request without the
		// Observe option, declining the registration.
	}
	return resp
}
