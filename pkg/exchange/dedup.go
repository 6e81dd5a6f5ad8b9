package exchange

import (
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/backkem/coap/pkg/transport"
)

// sweepDivisor sets the sweep interval relative to the entry lifetime.
const sweepDivisor = 4

// Deduplicator detects retransmitted inbound Confirmable messages and
// replays the original response instead of re-executing the request.
//
// A (message ID, peer) pair is remembered for the exchange lifetime.
// While the original request is still being processed the entry has no
// response yet; duplicates arriving in that window are silently dropped
// rather than processed twice.
type Deduplicator struct {
	mu      sync.Mutex
	entries map[Key]*dedupEntry

	lifetime time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once

	log logging.LeveledLogger
}

type dedupEntry struct {
	response []byte
	expires  time.Time
}

// NewDeduplicator creates a deduplicator whose entries live for the given
// lifetime. Call Start to begin expiry sweeps and Stop on shutdown.
func NewDeduplicator(lifetime time.Duration, loggerFactory logging.LoggerFactory) *Deduplicator {
	d := &Deduplicator{
		entries:  make(map[Key]*dedupEntry),
		lifetime: lifetime,
		stopCh:   make(chan struct{}),
	}
	if loggerFactory != nil {
		d.log = loggerFactory.NewLogger("dedup")
	}
	return d
}

// Start launches the background expiry sweep.
func (d *Deduplicator) Start() {
	go d.sweepLoop()
}

// Stop terminates the background sweep.
func (d *Deduplicator) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopCh)
	})
}

// Register records an inbound (message ID, peer) pair. It returns
// isNew=true for a first sighting, which the caller should process
// normally. For a duplicate it returns the cached response to replay,
// or nil if the original request is still being processed and the
// duplicate must be dropped.
func (d *Deduplicator) Register(messageID uint16, peer transport.PeerAddress) (cached []byte, isNew bool) {
	key := Key{MessageID: messageID, Peer: peer.Key()}
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if e, ok := d.entries[key]; ok && now.Before(e.expires) {
		if d.log != nil {
			d.log.Debugf("duplicate message: mid=%d peer=%s", messageID, key.Peer)
		}
		return e.response, false
	}
	d.entries[key] = &dedupEntry{expires: now.Add(d.lifetime)}
	return nil, true
}

// CacheResponse stores the encoded response for a previously registered
// (message ID, peer) pair so later duplicates can replay it.
func (d *Deduplicator) CacheResponse(messageID uint16, peer transport.PeerAddress, response []byte) {
	key := Key{MessageID: messageID, Peer: peer.Key()}

	d.mu.Lock()
	defer d.mu.Unlock()

	if e, ok := d.entries[key]; ok {
		e.response = response
	}
}

// Count returns the number of remembered entries, including expired ones
// not yet swept.
func (d *Deduplicator) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

func (d *Deduplicator) sweepLoop() {
	interval := d.lifetime / sweepDivisor
	if interval < time.Millisecond {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.sweep(time.Now())
		case <-d.stopCh:
			return
		}
	}
}

func (d *Deduplicator) sweep(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for key, e := range d.entries {
		if !now.Before(e.expires) {
			delete(d.entries, key)
		}
	}
}
