package discovery

import (
	"errors"
	"net"
	"testing"
)

// mockServer records Shutdown calls.
type mockServer struct {
	shutdowns int
}

func (m *mockServer) Shutdown() {
	m.shutdowns++
}

// mockFactory records registrations and returns a mockServer.
type mockFactory struct {
	instance string
	service  string
	domain   string
	port     int
	txt      []string
	server   *mockServer
	err      error
}

func (m *mockFactory) Register(instance, service, domain string, port int, txt []string, _ []net.Interface) (MDNSServer, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.instance = instance
	m.service = service
	m.domain = domain
	m.port = port
	m.txt = txt
	m.server = &mockServer{}
	return m.server, nil
}

func TestAdvertiserStart(t *testing.T) {
	factory := &mockFactory{}
	adv, err := NewAdvertiser(Config{
		Instance:      "sensor-1",
		Port:          5683,
		TXT:           []string{"rt=temperature"},
		ServerFactory: factory,
	})
	if err != nil {
		t.Fatalf("NewAdvertiser failed: %v", err)
	}

	if err := adv.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !adv.IsAdvertising() {
		t.Error("IsAdvertising() = false after Start")
	}
	if factory.service != ServiceCoAP {
		t.Errorf("service = %q, want %q", factory.service, ServiceCoAP)
	}
	if factory.domain != DefaultDomain {
		t.Errorf("domain = %q, want %q", factory.domain, DefaultDomain)
	}
	if factory.port != 5683 {
		t.Errorf("port = %d, want 5683", factory.port)
	}
	if factory.instance != "sensor-1" {
		t.Errorf("instance = %q, want sensor-1", factory.instance)
	}
	if adv.InstanceName() != "sensor-1" {
		t.Errorf("InstanceName() = %q, want sensor-1", adv.InstanceName())
	}
	if len(factory.txt) != 1 || factory.txt[0] != "rt=temperature" {
		t.Errorf("txt = %v, want [rt=temperature]", factory.txt)
	}

	if err := adv.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start = %v, want ErrAlreadyStarted", err)
	}
}

func TestAdvertiserRandomInstance(t *testing.T) {
	factory := &mockFactory{}
	adv, _ := NewAdvertiser(Config{ServerFactory: factory})

	if err := adv.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if len(factory.instance) != 16 {
		t.Errorf("random instance = %q, want 16 hex chars", factory.instance)
	}
	if factory.port != DefaultPort {
		t.Errorf("port = %d, want default %d", factory.port, DefaultPort)
	}
}

func TestAdvertiserStopAndClose(t *testing.T) {
	factory := &mockFactory{}
	adv, _ := NewAdvertiser(Config{ServerFactory: factory})

	if err := adv.Stop(); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Stop before Start = %v, want ErrNotStarted", err)
	}

	if err := adv.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := adv.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if factory.server.shutdowns != 1 {
		t.Errorf("shutdowns = %d, want 1", factory.server.shutdowns)
	}
	if adv.IsAdvertising() {
		t.Error("IsAdvertising() = true after Stop")
	}

	if err := adv.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := adv.Start(); !errors.Is(err, ErrClosed) {
		t.Errorf("Start after Close = %v, want ErrClosed", err)
	}
}

func TestAdvertiserRegisterError(t *testing.T) {
	factory := &mockFactory{err: errors.New("bind failed")}
	adv, _ := NewAdvertiser(Config{ServerFactory: factory})

	if err := adv.Start(); err == nil {
		t.Fatal("Start succeeded, want registration error")
	}
	if adv.IsAdvertising() {
		t.Error("IsAdvertising() = true after failed Start")
	}
}
