package transport

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/pion/logging"
)

// DefaultPort is the default CoAP port (RFC 7252 Section 6.1).
const DefaultPort = 5683

// UDPConfig configures the UDP transport.
type UDPConfig struct {
	// Conn is an optional pre-existing PacketConn to use.
	// If nil, a new connection will be created using ListenAddr.
	Conn net.PacketConn

	// ListenAddr is the address to listen on (e.g., ":5683").
	// Ignored if Conn is provided.
	ListenAddr string

	// Handler is called for each received datagram.
	// Required.
	Handler DatagramHandler

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// UDP moves datagrams between a net.PacketConn and a DatagramHandler.
// One goroutine owns the receive side; Send may be called from any
// goroutine.
type UDP struct {
	conn    net.PacketConn
	handler DatagramHandler
	log     logging.LeveledLogger

	mu      sync.RWMutex
	started bool
	closed  bool
	wg      sync.WaitGroup
}

// NewUDP creates a UDP transport. When no connection is supplied one is
// opened on ListenAddr (an ephemeral port if that is empty too).
func NewUDP(config UDPConfig) (*UDP, error) {
	if config.Handler == nil {
		return nil, ErrNoHandler
	}

	conn := config.Conn
	if conn == nil {
		addr := config.ListenAddr
		if addr == "" {
			addr = ":0"
		}
		c, err := net.ListenPacket("udp", addr)
		if err != nil {
			return nil, err
		}
		conn = c
	}

	u := &UDP{
		conn:    conn,
		handler: config.Handler,
	}
	if config.LoggerFactory != nil {
		u.log = config.LoggerFactory.NewLogger("transport-udp")
	}
	return u, nil
}

// Start launches the read loop. Datagrams are delivered to the
// configured Handler.
func (u *UDP) Start() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	switch {
	case u.closed:
		return ErrClosed
	case u.started:
		return ErrAlreadyStarted
	}
	u.started = true

	if u.log != nil {
		u.log.Infof("listening on %s", u.conn.LocalAddr())
	}
	u.wg.Add(1)
	go u.readLoop()
	return nil
}

// Stop closes the connection and waits for the read loop to exit. It is
// safe to call on a transport that was never started.
func (u *UDP) Stop() error {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return ErrClosed
	}
	u.closed = true
	u.mu.Unlock()

	// Unblock a pending ReadFrom on conns that ignore Close.
	u.conn.SetReadDeadline(time.Now())
	err := u.conn.Close()
	u.wg.Wait()

	if u.log != nil {
		u.log.Infof("stopped")
	}
	return err
}

func (u *UDP) isClosed() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.closed
}

// Send writes one datagram to the peer.
func (u *UDP) Send(data []byte, addr net.Addr) error {
	switch {
	case u.isClosed():
		return ErrClosed
	case addr == nil:
		return ErrInvalidAddress
	case len(data) > MaxDatagramSize:
		return ErrDatagramTooLarge
	}

	if _, err := u.conn.WriteTo(data, addr); err != nil {
		if u.log != nil {
			u.log.Warnf("send to %v failed: %v", addr, err)
		}
		return err
	}
	if u.log != nil {
		u.log.Tracef("sent %d bytes to %v", len(data), addr)
	}
	return nil
}

// LocalAddr returns the local address the transport is listening on.
func (u *UDP) LocalAddr() net.Addr {
	return u.conn.LocalAddr()
}

// readLoop reads datagrams until the connection closes. Each datagram is
// copied out of the read buffer before it reaches the handler, so the
// handler may retain it.
func (u *UDP) readLoop() {
	defer u.wg.Done()

	buf := make([]byte, MaxDatagramSize)
	for {
		n, addr, err := u.conn.ReadFrom(buf)
		if err != nil {
			if u.isClosed() || errors.Is(err, net.ErrClosed) {
				return
			}
			if u.log != nil {
				u.log.Warnf("read failed: %v", err)
			}
			continue
		}
		if n == 0 {
			continue
		}

		if u.log != nil {
			u.log.Tracef("received %d bytes from %v", n, addr)
		}
		u.handler(&Datagram{
			Data: append([]byte(nil), buf[:n]...),
			Peer: NewPeerAddress(addr),
		})
	}
}
