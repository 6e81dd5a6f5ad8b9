package discovery

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
)

// mockResolver returns pre-registered entries without network I/O.
type mockResolver struct {
	mu      sync.Mutex
	entries []*zeroconf.ServiceEntry
}

func (m *mockResolver) add(entry *zeroconf.ServiceEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
}

func (m *mockResolver) emit(ctx context.Context, entries chan<- *zeroconf.ServiceEntry) error {
	m.mu.Lock()
	snapshot := append([]*zeroconf.ServiceEntry(nil), m.entries...)
	m.mu.Unlock()

	for _, entry := range snapshot {
		select {
		case entries <- entry:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (m *mockResolver) Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	return m.emit(ctx, entries)
}

func (m *mockResolver) Lookup(ctx context.Context, instance, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	return m.emit(ctx, entries)
}

func testEntry(instance string, port int) *zeroconf.ServiceEntry {
	return &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{
			Instance: instance,
			Service:  ServiceCoAP,
			Domain:   DefaultDomain,
		},
		HostName: instance + ".local.",
		Port:     port,
		Text:     []string{"rt=sensors/temperature"},
		AddrIPv4: []net.IP{net.ParseIP("192.0.2.10")},
	}
}

func TestResolverBrowse(t *testing.T) {
	mock := &mockResolver{}
	mock.add(testEntry("SENSOR-A", 5683))
	mock.add(testEntry("SENSOR-B", 6683))

	r, err := NewResolver(ResolverConfig{
		MDNSResolver:  mock,
		BrowseTimeout: 200 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	results, err := r.Browse(context.Background())
	if err != nil {
		t.Fatalf("Browse: %v", err)
	}

	var found []ResolvedService
	for svc := range results {
		found = append(found, svc)
	}
	if len(found) != 2 {
		t.Fatalf("discovered %d services, want 2", len(found))
	}
	if found[0].InstanceName != "SENSOR-A" {
		t.Errorf("unexpected instance: %q", found[0].InstanceName)
	}
	addr := found[1].Addr()
	if addr == nil || addr.Port != 6683 {
		t.Errorf("unexpected address: %v", addr)
	}
}

func TestResolverLookup(t *testing.T) {
	mock := &mockResolver{}
	mock.add(testEntry("SENSOR-A", 5683))
	mock.add(testEntry("SENSOR-B", 6683))

	r, err := NewResolver(ResolverConfig{MDNSResolver: mock})
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	svc, err := r.Lookup(context.Background(), "SENSOR-B")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if svc.Port != 6683 {
		t.Errorf("unexpected port: %d", svc.Port)
	}
	if len(svc.Text) != 1 || svc.Text[0] != "rt=sensors/temperature" {
		t.Errorf("unexpected TXT records: %v", svc.Text)
	}
}

func TestResolverLookupNotFound(t *testing.T) {
	mock := &mockResolver{}
	mock.add(testEntry("SENSOR-A", 5683))

	r, err := NewResolver(ResolverConfig{
		MDNSResolver:  mock,
		LookupTimeout: 100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	if _, err := r.Lookup(context.Background(), "SENSOR-Z"); !errors.Is(err, ErrServiceNotFound) {
		t.Fatalf("expected ErrServiceNotFound, got %v", err)
	}
}

func TestResolvedServiceAddrEmpty(t *testing.T) {
	svc := ResolvedService{Port: 5683}
	if addr := svc.Addr(); addr != nil {
		t.Errorf("expected nil address, got %v", addr)
	}
}
