package message

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRequest(t *testing.T) {
	m := NewGet("sensors", "temp")
	m.MessageID = 0x1234
	m.Token = []byte{0xde, 0xad}
	m.SetObserve(ObserveRegister)

	data, err := m.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if got.Type != TypeConfirmable {
		t.Errorf("type = %v, want CON", got.Type)
	}
	if got.Code != CodeGET {
		t.Errorf("code = %v, want GET", got.Code)
	}
	if got.MessageID != 0x1234 {
		t.Errorf("message ID = %#x, want 0x1234", got.MessageID)
	}
	if !bytes.Equal(got.Token, []byte{0xde, 0xad}) {
		t.Errorf("token = %x, want dead", got.Token)
	}
	if len(got.Path) != 2 || got.Path[0] != "sensors" || got.Path[1] != "temp" {
		t.Errorf("path = %v, want [sensors temp]", got.Path)
	}
	if !got.IsRegistration() {
		t.Error("message should be an observe registration")
	}
}

func TestEncodeDecodeNotification(t *testing.T) {
	m := NewResponse(CodeContent, []byte{0x01}, []byte("21.5"))
	m.Type = TypeConfirmable
	m.MessageID = 7
	m.SetObserve(300) // needs 2-byte encoding

	data, err := m.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if !got.IsNotification() {
		t.Fatal("message should be a notification")
	}
	if got.Observe != 300 {
		t.Errorf("observe = %d, want 300", got.Observe)
	}
	if !bytes.Equal(got.Payload, []byte("21.5")) {
		t.Errorf("payload = %q, want 21.5", got.Payload)
	}
}

func TestEncodeDecodeEmptyMessages(t *testing.T) {
	for _, tt := range []struct {
		name string
		msg  *Message
		typ  Type
	}{
		{"ack", NewAck(42), TypeAcknowledgement},
		{"reset", NewReset(43), TypeReset},
	} {
		t.Run(tt.name, func(t *testing.T) {
			data, err := tt.msg.Encode()
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			if len(data) != 4 {
				t.Errorf("empty message length = %d, want 4", len(data))
			}

			got, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if got.Type != tt.typ {
				t.Errorf("type = %v, want %v", got.Type, tt.typ)
			}
			if !got.Code.IsEmpty() {
				t.Errorf("code = %v, want empty", got.Code)
			}
		})
	}
}

func TestObserveSequenceWidths(t *testing.T) {
	for _, seq := range []uint32{0, 1, 255, 256, 65535, 65536, ObserveModulus - 1} {
		m := NewResponse(CodeContent, []byte{0x01}, nil)
		m.Type = TypeNonConfirmable
		m.SetObserve(seq)

		data, err := m.Encode()
		if err != nil {
			t.Fatalf("Encode(%d) failed: %v", seq, err)
		}
		got, err := Decode(data)
		if err != nil {
			t.Fatalf("Decode(%d) failed: %v", seq, err)
		}
		if got.Observe != seq {
			t.Errorf("observe = %d, want %d", got.Observe, seq)
		}
	}
}

func TestObserveWrapsAtModulus(t *testing.T) {
	m := &Message{}
	m.SetObserve(ObserveModulus + 5)
	if m.Observe != 5 {
		t.Errorf("observe = %d, want 5 (wrapped)", m.Observe)
	}
}

func TestDecodeRejectsUnknownCriticalOption(t *testing.T) {
	// CON GET with option number 9999 (odd = critical).
	m := NewGet("x")
	m.MessageID = 1
	data, err := m.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	// Append an unknown critical option after Uri-Path (11).
	// Delta = 9999 - 11 = 9988 -> nibble 14 + 2 ext bytes (9988-269=9719).
	ext := 9719
	data = append(data, 0xe0, byte(ext>>8), byte(ext))

	_, err = Decode(data)
	if err != ErrUnknownCriticalOption {
		t.Errorf("Decode error = %v, want ErrUnknownCriticalOption", err)
	}
}

func TestDecodeSkipsUnknownElectiveOption(t *testing.T) {
	// Max-Age (14) is elective and unknown to the engine.
	m := NewGet("x")
	m.MessageID = 1
	data, err := m.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	// Delta = 14 - 11 = 3, length 1.
	data = append(data, 0x31, 60)

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(got.Path) != 1 || got.Path[0] != "x" {
		t.Errorf("path = %v, want [x]", got.Path)
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, tt := range []struct {
		name string
		data []byte
		want error
	}{
		{"short", []byte{0x40, 0x01}, ErrMessageTooShort},
		{"bad version", []byte{0x80, 0x01, 0x00, 0x01}, ErrInvalidVersion},
		{"token overruns", []byte{0x48, 0x01, 0x00, 0x01, 0xaa}, ErrMessageTooShort},
		{"reserved nibble", []byte{0x40, 0x01, 0x00, 0x01, 0xf0}, ErrInvalidOption},
		{"truncated option", []byte{0x40, 0x01, 0x00, 0x01, 0x62, 0xaa}, ErrTruncatedOption},
		{"bare payload marker", []byte{0x40, 0x01, 0x00, 0x01, 0xff}, ErrTruncatedOption},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			if err != tt.want {
				t.Errorf("Decode error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestEncodeRejectsLongToken(t *testing.T) {
	m := NewGet("x")
	m.Token = make([]byte, 9)
	if _, err := m.Encode(); err != ErrTokenTooLong {
		t.Errorf("Encode error = %v, want ErrTokenTooLong", err)
	}
}

func TestEncodeIdentical(t *testing.T) {
	m := NewResponse(CodeContent, []byte{0x02}, []byte("payload"))
	m.Type = TypeConfirmable
	m.MessageID = 99
	m.SetObserve(12)

	a, err := m.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	b, err := m.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("repeated encodes should be byte-identical")
	}
}
