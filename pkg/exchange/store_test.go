package exchange

import (
	"errors"
	"testing"

	"github.com/backkem/coap/pkg/message"
	"github.com/backkem/coap/pkg/transport"
)

func testPeer(t *testing.T, addr string) transport.PeerAddress {
	t.Helper()
	peer, err := transport.AddrFromString(addr)
	if err != nil {
		t.Fatalf("AddrFromString(%q) failed: %v", addr, err)
	}
	return peer
}

func testMessage(mid uint16, token string) *message.Message {
	msg := message.NewGet("light")
	msg.MessageID = mid
	msg.Token = []byte(token)
	return msg
}

func TestStoreRegisterAndFind(t *testing.T) {
	store := NewStore(nil, nil)
	peer := testPeer(t, "127.0.0.1:5683")
	msg := testMessage(42, "tk")

	ex, err := store.Register(msg, []byte{1, 2, 3}, peer)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if store.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", store.Count())
	}

	if got, ok := store.FindByKey(42, peer); !ok || got != ex {
		t.Errorf("FindByKey(42) = %v, %v; want registered exchange", got, ok)
	}
	if got, ok := store.FindByToken([]byte("tk"), peer); !ok || got != ex {
		t.Errorf("FindByToken(tk) = %v, %v; want registered exchange", got, ok)
	}
	if _, ok := store.FindByKey(43, peer); ok {
		t.Error("FindByKey(43) found an exchange, want none")
	}

	other := testPeer(t, "127.0.0.2:5683")
	if _, ok := store.FindByKey(42, other); ok {
		t.Error("FindByKey scoped to wrong peer found an exchange")
	}
	if _, ok := store.FindByToken([]byte("tk"), other); ok {
		t.Error("FindByToken scoped to wrong peer found an exchange")
	}
}

func TestStoreRegisterDuplicateKey(t *testing.T) {
	store := NewStore(nil, nil)
	peer := testPeer(t, "127.0.0.1:5683")

	if _, err := store.Register(testMessage(42, "a"), nil, peer); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, err := store.Register(testMessage(42, "b"), nil, peer); !errors.Is(err, ErrExchangeExists) {
		t.Errorf("Register duplicate = %v, want ErrExchangeExists", err)
	}

	// The same message ID toward a different peer is a distinct exchange.
	other := testPeer(t, "127.0.0.2:5683")
	if _, err := store.Register(testMessage(42, "a"), nil, other); err != nil {
		t.Errorf("Register same mid other peer = %v, want nil", err)
	}
}

func TestStoreCompleteIdempotent(t *testing.T) {
	store := NewStore(nil, nil)
	peer := testPeer(t, "127.0.0.1:5683")
	ex, _ := store.Register(testMessage(1, "tk"), nil, peer)

	resolved := 0
	ex.SetResolveFunc(func(*Exchange, Outcome) { resolved++ })

	if !store.Complete(ex, nil) {
		t.Fatal("first Complete returned false")
	}
	if store.Complete(ex, nil) {
		t.Error("second Complete returned true, want idempotent no-op")
	}
	if store.Reject(ex) {
		t.Error("Reject after Complete returned true")
	}
	if store.Fail(ex) {
		t.Error("Fail after Complete returned true")
	}
	if _, _, ok := store.Cancel(ex); ok {
		t.Error("Cancel after Complete returned true")
	}

	if ex.State() != StateAcknowledged {
		t.Errorf("State() = %v, want Acknowledged", ex.State())
	}
	if resolved != 1 {
		t.Errorf("resolve callback ran %d times, want 1", resolved)
	}
	if store.Count() != 0 {
		t.Errorf("Count() = %d, want 0", store.Count())
	}

	select {
	case <-ex.Done():
	default:
		t.Error("Done() not closed after Complete")
	}
}

func TestStoreFailNotifiesHandler(t *testing.T) {
	var failed []*Exchange
	store := NewStore(func(ex *Exchange) { failed = append(failed, ex) }, nil)
	peer := testPeer(t, "127.0.0.1:5683")
	ex, _ := store.Register(testMessage(1, "tk"), nil, peer)

	var outcome Outcome
	ex.SetResolveFunc(func(_ *Exchange, o Outcome) { outcome = o })

	if !store.Fail(ex) {
		t.Fatal("Fail returned false")
	}
	if len(failed) != 1 || failed[0] != ex {
		t.Errorf("failure handler got %v, want the failed exchange", failed)
	}
	if outcome != OutcomeTimeout {
		t.Errorf("resolve outcome = %v, want Timeout", outcome)
	}
	if ex.State() != StateFailed {
		t.Errorf("State() = %v, want Failed", ex.State())
	}
}

func TestStoreCancelReturnsSeedWithoutEvents(t *testing.T) {
	handlerCalls := 0
	store := NewStore(func(*Exchange) { handlerCalls++ }, nil)
	peer := testPeer(t, "127.0.0.1:5683")
	ex, _ := store.Register(testMessage(1, "tk"), nil, peer)

	resolved := 0
	ex.SetResolveFunc(func(*Exchange, Outcome) { resolved++ })

	ex.mu.Lock()
	ex.failedTransmissions = 3
	ex.currentTimeout = 1600
	ex.mu.Unlock()

	failed, timeout, ok := store.Cancel(ex)
	if !ok {
		t.Fatal("Cancel returned false")
	}
	if failed != 3 {
		t.Errorf("Cancel failed count = %d, want 3", failed)
	}
	if timeout != 1600 {
		t.Errorf("Cancel timeout = %v, want 1600", timeout)
	}
	if handlerCalls != 0 {
		t.Errorf("failure handler ran %d times on Cancel, want 0", handlerCalls)
	}
	if resolved != 0 {
		t.Errorf("resolve callback ran %d times on Cancel, want 0", resolved)
	}
	if ex.State() != StateCancelled {
		t.Errorf("State() = %v, want Cancelled", ex.State())
	}
	if store.Count() != 0 {
		t.Errorf("Count() = %d, want 0", store.Count())
	}
}

func TestStoreCancelAll(t *testing.T) {
	store := NewStore(nil, nil)
	peer := testPeer(t, "127.0.0.1:5683")
	ex1, _ := store.Register(testMessage(1, "a"), nil, peer)
	ex2, _ := store.Register(testMessage(2, "b"), nil, peer)

	store.CancelAll()

	if store.Count() != 0 {
		t.Errorf("Count() = %d, want 0", store.Count())
	}
	if ex1.State() != StateCancelled || ex2.State() != StateCancelled {
		t.Errorf("states = %v, %v; want both Cancelled", ex1.State(), ex2.State())
	}
}
