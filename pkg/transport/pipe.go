package transport

import (
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/pion/transport/v3/test"
)

// NetworkCondition configures network behavior simulation.
// Use this to test protocol behavior under adverse network conditions.
type NetworkCondition struct {
	// DropRate is the probability of dropping a packet (0.0 - 1.0).
	DropRate float64

	// DelayMin is the minimum delay to add to each packet.
	DelayMin time.Duration

	// DelayMax is the maximum delay to add to each packet.
	// Actual delay is uniformly distributed between DelayMin and DelayMax.
	DelayMax time.Duration

	// DuplicateRate is the probability of duplicating a packet (0.0 - 1.0).
	DuplicateRate float64
}

// PipeConfig configures a Pipe.
type PipeConfig struct {
	// AutoProcess enables automatic message delivery in a background goroutine.
	// Default: true
	AutoProcess bool

	// ProcessInterval is how often the auto-processor checks for messages.
	// Default: 1ms
	ProcessInterval time.Duration
}

// DefaultPipeConfig returns the default pipe configuration.
func DefaultPipeConfig() PipeConfig {
	return PipeConfig{
		AutoProcess:     true,
		ProcessInterval: 1 * time.Millisecond,
	}
}

// Pipe provides bidirectional in-memory packet communication between two
// endpoints. It wraps pion's test.Bridge and adds network condition
// simulation.
//
// By default, Pipe automatically delivers messages in a background
// goroutine. Use SetAutoProcess(false) or NewPipeWithConfig for manual
// control. Use Pipe for deterministic, flaky-free tests without real
// network I/O.
type Pipe struct {
	bridge *test.Bridge

	mu              sync.RWMutex
	condition       NetworkCondition
	closed          bool
	rng             *rand.Rand
	autoProcess     bool
	processInterval time.Duration
	stopCh          chan struct{}
	wg              sync.WaitGroup
}

// NewPipe creates a new bidirectional pipe with auto-processing enabled.
func NewPipe() *Pipe {
	return NewPipeWithConfig(DefaultPipeConfig())
}

// NewPipeWithConfig creates a new pipe with the given configuration.
func NewPipeWithConfig(config PipeConfig) *Pipe {
	p := &Pipe{
		bridge:          test.NewBridge(),
		rng:             rand.New(rand.NewSource(time.Now().UnixNano())),
		autoProcess:     config.AutoProcess,
		processInterval: config.ProcessInterval,
		stopCh:          make(chan struct{}),
	}

	if config.ProcessInterval == 0 {
		p.processInterval = 1 * time.Millisecond
	}

	if p.autoProcess {
		p.startAutoProcess()
	}

	return p
}

// startAutoProcess starts the background message delivery goroutine.
func (p *Pipe) startAutoProcess() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.processInterval)
		defer ticker.Stop()

		for {
			select {
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.bridge.Tick()
			}
		}
	}()
}

// SetAutoProcess enables or disables automatic message delivery.
// When disabled, you must call Tick() or Process() manually.
// This is useful for deterministic testing of specific packet orderings.
func (p *Pipe) SetAutoProcess(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.autoProcess == enabled {
		return
	}

	p.autoProcess = enabled

	if enabled {
		p.stopCh = make(chan struct{})
		p.startAutoProcess()
	} else {
		close(p.stopCh)
		p.wg.Wait()
	}
}

// SetCondition configures network condition simulation.
// The conditions apply to packets in both directions.
func (p *Pipe) SetCondition(cond NetworkCondition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.condition = cond
}

// Condition returns the current network condition configuration.
func (p *Pipe) Condition() NetworkCondition {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.condition
}

// Tick delivers one packet in each direction (if available).
// Returns the number of packets delivered (0, 1, or 2).
func (p *Pipe) Tick() int {
	return p.bridge.Tick()
}

// Process delivers all queued packets.
// Returns the number of packets delivered.
func (p *Pipe) Process() int {
	count := 0
	for {
		n := p.Tick()
		if n == 0 {
			break
		}
		count += n
	}
	return count
}

// Close closes both endpoints of the pipe and stops auto-processing.
func (p *Pipe) Close() error {
	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true

	if p.autoProcess {
		close(p.stopCh)
	}
	p.mu.Unlock()

	// Wait for goroutine outside lock
	p.wg.Wait()

	var errs []error
	if err := p.bridge.GetConn0().Close(); err != nil {
		errs = append(errs, err)
	}
	if err := p.bridge.GetConn1().Close(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// PipeAddr implements net.Addr for pipe endpoints.
type PipeAddr struct {
	ID   int // Endpoint ID (0 or 1)
	Port int // Logical port number
}

// Network returns "pipe".
func (a PipeAddr) Network() string { return "pipe" }

// String returns a string representation of the address.
func (a PipeAddr) String() string { return fmt.Sprintf("pipe:%d:%d", a.ID, a.Port) }

// PipePacketConn wraps a Pipe endpoint to implement net.PacketConn.
// This allows pipes to be used with the UDP transport layer.
type PipePacketConn struct {
	conn     net.Conn
	localID  int
	port     int
	peerAddr net.Addr
	pipe     *Pipe
}

// ReadFrom reads a packet from the pipe.
// The returned address is the peer's address.
func (c *PipePacketConn) ReadFrom(b []byte) (n int, addr net.Addr, err error) {
	n, err = c.conn.Read(b)
	return n, c.peerAddr, err
}

// WriteTo writes a packet to the pipe.
// The addr parameter is ignored since the pipe has only one peer.
func (c *PipePacketConn) WriteTo(b []byte, addr net.Addr) (n int, err error) {
	// Apply network conditions if configured
	if c.pipe != nil {
		c.pipe.mu.RLock()
		cond := c.pipe.condition
		rng := c.pipe.rng
		c.pipe.mu.RUnlock()

		// Check for drop
		if cond.DropRate > 0 && rng.Float64() < cond.DropRate {
			return len(b), nil // Silently drop
		}

		// Apply delay
		if cond.DelayMax > 0 {
			delay := cond.DelayMin
			if cond.DelayMax > cond.DelayMin {
				delay += time.Duration(rng.Int63n(int64(cond.DelayMax - cond.DelayMin)))
			}
			if delay > 0 {
				time.Sleep(delay)
			}
		}

		// Check for duplicate - send twice
		if cond.DuplicateRate > 0 && rng.Float64() < cond.DuplicateRate {
			if _, err := c.conn.Write(b); err != nil {
				return 0, err
			}
			// Fall through to send second copy
		}
	}

	return c.conn.Write(b)
}

// Close closes the pipe connection.
func (c *PipePacketConn) Close() error {
	return c.conn.Close()
}

// LocalAddr returns the local address.
func (c *PipePacketConn) LocalAddr() net.Addr {
	return PipeAddr{ID: c.localID, Port: c.port}
}

// SetDeadline sets the read and write deadlines.
func (c *PipePacketConn) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

// SetReadDeadline sets the read deadline.
func (c *PipePacketConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// SetWriteDeadline sets the write deadline.
func (c *PipePacketConn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

// Verify PipePacketConn implements net.PacketConn.
var _ net.PacketConn = (*PipePacketConn)(nil)

// NewPipeConnPair creates two connected net.PacketConn instances backed by
// the given pipe. Conn 0 and conn 1 see each other as peers on the given
// logical port.
func NewPipeConnPair(pipe *Pipe, port int) (*PipePacketConn, *PipePacketConn) {
	c0 := &PipePacketConn{
		conn:     pipe.bridge.GetConn0(),
		localID:  0,
		port:     port,
		peerAddr: PipeAddr{ID: 1, Port: port},
		pipe:     pipe,
	}
	c1 := &PipePacketConn{
		conn:     pipe.bridge.GetConn1(),
		localID:  1,
		port:     port,
		peerAddr: PipeAddr{ID: 0, Port: port},
		pipe:     pipe,
	}
	return c0, c1
}

// PipeManagerConfig configures a PipeManagerPair.
type PipeManagerConfig struct {
	// Handlers are the datagram handlers for each manager.
	// Handlers[0] is for Manager(0), Handlers[1] is for Manager(1).
	Handlers [2]DatagramHandler

	// PipeConfig configures the underlying pipe (optional).
	PipeConfig PipeConfig
}

// PipeManagerPair provides two connected Manager instances for testing.
// Datagrams sent from one manager arrive at the other via an in-memory pipe.
type PipeManagerPair struct {
	managers [2]*Manager
	pipe     *Pipe
	port     int
}

// NewPipeManagerPair creates a pair of connected Manager instances for
// testing. Both managers are started automatically and ready to use.
func NewPipeManagerPair(config PipeManagerConfig) (*PipeManagerPair, error) {
	if config.PipeConfig.ProcessInterval == 0 {
		config.PipeConfig = DefaultPipeConfig()
	}

	port := DefaultPort
	pair := &PipeManagerPair{
		pipe: NewPipeWithConfig(config.PipeConfig),
		port: port,
	}

	conns := [2]net.PacketConn{}
	conns[0], conns[1] = NewPipeConnPair(pair.pipe, port)

	for i := 0; i < 2; i++ {
		mgr, err := NewManager(ManagerConfig{
			Port:    port,
			Handler: config.Handlers[i],
			Conn:    conns[i],
		})
		if err != nil {
			pair.Close()
			return nil, err
		}
		pair.managers[i] = mgr

		if err := mgr.Start(); err != nil {
			pair.Close()
			return nil, err
		}
	}

	return pair, nil
}

// Manager returns the manager at the given index (0 or 1).
func (p *PipeManagerPair) Manager(id int) *Manager {
	if id < 0 || id > 1 {
		return nil
	}
	return p.managers[id]
}

// PeerAddress returns the address needed to send datagrams TO the manager
// at the given index.
func (p *PipeManagerPair) PeerAddress(id int) PeerAddress {
	if id < 0 || id > 1 {
		return PeerAddress{}
	}
	return NewPeerAddress(PipeAddr{ID: id, Port: p.port})
}

// Pipe returns the underlying pipe for configuration (e.g., network
// conditions).
func (p *PipeManagerPair) Pipe() *Pipe {
	return p.pipe
}

// Close stops both managers and closes the pipe.
func (p *PipeManagerPair) Close() error {
	for i := 0; i < 2; i++ {
		if p.managers[i] != nil {
			// Ignore errors - manager may already be stopped
			p.managers[i].Stop()
		}
	}

	if p.pipe != nil {
		p.pipe.Close()
	}

	return nil
}
