package transport

import (
	"fmt"
	"net"
	"sync"

	"github.com/pion/logging"
)

// Manager owns the datagram transport for a CoAP endpoint.
// It provides a unified send/receive interface so the reliability layer
// never touches sockets directly.
type Manager struct {
	udp     *UDP
	handler DatagramHandler

	mu      sync.RWMutex
	started bool
	closed  bool
}

// ManagerConfig configures the transport manager.
type ManagerConfig struct {
	// Port is the port to listen on (default: 5683).
	Port int

	// Handler is called for each received datagram.
	// Required.
	Handler DatagramHandler

	// Conn is an optional pre-existing packet connection for testing.
	Conn net.PacketConn

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// NewManager creates a new transport manager with the given configuration.
func NewManager(config ManagerConfig) (*Manager, error) {
	if config.Handler == nil {
		return nil, ErrNoHandler
	}

	if config.Port == 0 {
		config.Port = DefaultPort
	}

	m := &Manager{
		handler: config.Handler,
	}

	udp, err := NewUDP(UDPConfig{
		Conn:          config.Conn,
		ListenAddr:    fmt.Sprintf(":%d", config.Port),
		Handler:       config.Handler,
		LoggerFactory: config.LoggerFactory,
	})
	if err != nil {
		return nil, fmt.Errorf("creating UDP transport: %w", err)
	}
	m.udp = udp

	return m, nil
}

// Start begins listening for datagrams.
func (m *Manager) Start() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.mu.Unlock()

	return m.udp.Start()
}

// Stop closes the transport.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.closed = true
	m.mu.Unlock()

	return m.udp.Stop()
}

// Send sends a datagram to the specified peer address.
func (m *Manager) Send(data []byte, peer PeerAddress) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrClosed
	}
	m.mu.RUnlock()

	if !peer.IsValid() {
		return ErrInvalidAddress
	}

	return m.udp.Send(data, peer.Addr)
}

// LocalAddr returns the local address the manager is listening on.
func (m *Manager) LocalAddr() net.Addr {
	return m.udp.LocalAddr()
}
