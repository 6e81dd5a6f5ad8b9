package message

import "testing"

func TestMIDAllocatorIncrementsPerPeer(t *testing.T) {
	a := NewMIDAllocator()

	first := a.Next("10.0.0.1:5683")
	second := a.Next("10.0.0.1:5683")
	if second != first+1 {
		t.Errorf("second MID = %d, want %d", second, first+1)
	}

	// Independent sequence per peer.
	other := a.Next("10.0.0.2:5683")
	_ = other
	third := a.Next("10.0.0.1:5683")
	if third != first+2 {
		t.Errorf("third MID = %d, want %d", third, first+2)
	}
}

func TestCancelFlag(t *testing.T) {
	m := NewGet("x")
	if m.IsCancelled() {
		t.Error("new message should not be cancelled")
	}
	m.Cancel()
	if !m.IsCancelled() {
		t.Error("message should be cancelled")
	}
}

func TestCodeClassification(t *testing.T) {
	if !CodeGET.IsRequest() {
		t.Error("GET should be a request")
	}
	if CodeGET.IsResponse() {
		t.Error("GET should not be a response")
	}
	if !CodeContent.IsResponse() {
		t.Error("2.05 should be a response")
	}
	if !CodeEmpty.IsEmpty() {
		t.Error("0.00 should be empty")
	}
	if CodeContent.Class() != 2 || CodeContent.Detail() != 5 {
		t.Errorf("2.05 = %d.%02d", CodeContent.Class(), CodeContent.Detail())
	}
}
