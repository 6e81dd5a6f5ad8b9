package message

import (
	"fmt"
	"sync/atomic"
)

// MaxTokenLength is the maximum token length in bytes (RFC 7252 Section 3).
const MaxTokenLength = 8

// ObserveModulus bounds Observe sequence numbers. The option value is a
// 0-3 byte unsigned integer, so sequence numbers wrap at 2^24
// (RFC 7641 Section 4.4).
const ObserveModulus = 1 << 24

// Observe option values carried on subscribe/unsubscribe requests
// (RFC 7641 Section 2).
const (
	// ObserveRegister on a GET request asks the server to add the client
	// to the list of observers for the target resource.
	ObserveRegister uint32 = 0

	// ObserveDeregister on a GET request removes an existing registration.
	ObserveDeregister uint32 = 1
)

// Message is a single CoAP message. It is the unit handed between the
// transport, reliability and observe layers.
//
// The cancelled flag is a side-channel for interceptors: a cancelled message
// is never handed to the transport (synthetic loss) but all reliability
// bookkeeping proceeds as if it had been sent.
type Message struct {
	// Type is the message type (CON, NON, ACK, RST).
	Type Type

	// Code is the request method or response code.
	Code Code

	// MessageID is the 16-bit message ID, scoped to the peer address.
	MessageID uint16

	// Token correlates a response (or notification) with the request that
	// caused it. 0-8 bytes, opaque to the server.
	Token []byte

	// Path holds the Uri-Path segments for requests.
	Path []string

	// HasObserve indicates the Observe option is present.
	HasObserve bool

	// Observe is the Observe option value: 0/1 on requests
	// (register/deregister), the notification sequence number on responses.
	Observe uint32

	// Payload is the message body (may be nil).
	Payload []byte

	cancelled atomic.Bool
}

// NewGet creates a GET request for the given path segments.
func NewGet(path ...string) *Message {
	return &Message{
		Type: TypeConfirmable,
		Code: CodeGET,
		Path: path,
	}
}

// NewAck creates an empty Acknowledgement for the given message ID.
func NewAck(messageID uint16) *Message {
	return &Message{
		Type:      TypeAcknowledgement,
		Code:      CodeEmpty,
		MessageID: messageID,
	}
}

// NewReset creates a Reset for the given message ID.
func NewReset(messageID uint16) *Message {
	return &Message{
		Type:      TypeReset,
		Code:      CodeEmpty,
		MessageID: messageID,
	}
}

// NewResponse creates a response message with the given code and payload.
// Type and MessageID are filled in by the sending layer.
func NewResponse(code Code, token, payload []byte) *Message {
	return &Message{
		Code:    code,
		Token:   token,
		Payload: payload,
	}
}

// SetObserve sets the Observe option value.
func (m *Message) SetObserve(seq uint32) {
	m.HasObserve = true
	m.Observe = seq % ObserveModulus
}

// IsRegistration returns true for a request that registers an observer.
func (m *Message) IsRegistration() bool {
	return m.Code.IsRequest() && m.HasObserve && m.Observe == ObserveRegister
}

// IsDeregistration returns true for a request that removes a registration.
func (m *Message) IsDeregistration() bool {
	return m.Code.IsRequest() && m.HasObserve && m.Observe == ObserveDeregister
}

// IsNotification returns true for a response carrying an Observe sequence
// number.
func (m *Message) IsNotification() bool {
	return m.Code.IsResponse() && m.HasObserve
}

// Cancel marks the message as cancelled. A cancelled message is withheld
// from the transport; it is how interceptors synthesize message loss.
func (m *Message) Cancel() {
	m.cancelled.Store(true)
}

// IsCancelled reports whether the message has been cancelled.
func (m *Message) IsCancelled() bool {
	return m.cancelled.Load()
}

// String returns a compact description for logging.
func (m *Message) String() string {
	obs := ""
	if m.HasObserve {
		obs = fmt.Sprintf(" obs=%d", m.Observe)
	}
	return fmt.Sprintf("%s mid=%d tkn=%x code=%d.%02d%s len=%d",
		m.Type, m.MessageID, m.Token, m.Code.Class(), m.Code.Detail(), obs, len(m.Payload))
}
