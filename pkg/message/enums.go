// Package message implements the CoAP message model and wire codec.
//
// The message layer is deliberately small: it covers the fields the
// reliability layer inspects (type, message ID, token, Observe option) plus
// the Uri-Path option needed for request routing. Options are parsed
// generically so that unknown critical options are detected and rejected at
// the parse boundary.
//
// Spec References:
//   - RFC 7252 Section 3: Message Format
//   - RFC 7641 Section 2: The Observe Option
package message

// Type is the CoAP message type carried in the header.
type Type uint8

const (
	// TypeConfirmable requires acknowledgement and is subject to
	// retransmission by the reliability layer.
	TypeConfirmable Type = 0

	// TypeNonConfirmable does not require acknowledgement.
	TypeNonConfirmable Type = 1

	// TypeAcknowledgement acknowledges a Confirmable message. May carry a
	// piggybacked response payload.
	TypeAcknowledgement Type = 2

	// TypeReset indicates a received message could not be processed.
	TypeReset Type = 3
)

// String returns a human-readable name for the message type.
func (t Type) String() string {
	switch t {
	case TypeConfirmable:
		return "CON"
	case TypeNonConfirmable:
		return "NON"
	case TypeAcknowledgement:
		return "ACK"
	case TypeReset:
		return "RST"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the type is a defined value.
func (t Type) IsValid() bool {
	return t <= TypeReset
}

// Code is the CoAP request method or response code (class.detail).
type Code uint8

// codeOf builds a Code from its class and detail parts.
func codeOf(class, detail uint8) Code {
	return Code(class<<5 | detail&0x1f)
}

// Request methods and response codes used by the engine.
var (
	CodeEmpty            = codeOf(0, 0)
	CodeGET              = codeOf(0, 1)
	CodeContent          = codeOf(2, 5)
	CodeBadRequest       = codeOf(4, 0)
	CodeNotFound         = codeOf(4, 4)
	CodeMethodNotAllowed = codeOf(4, 5)
	CodeInternalError    = codeOf(5, 0)
)

// Class returns the code class (0 = request, 2/4/5 = response).
func (c Code) Class() uint8 {
	return uint8(c) >> 5
}

// Detail returns the code detail within its class.
func (c Code) Detail() uint8 {
	return uint8(c) & 0x1f
}

// IsRequest returns true for request method codes (class 0, nonzero detail).
func (c Code) IsRequest() bool {
	return c.Class() == 0 && c.Detail() != 0
}

// IsResponse returns true for response codes (class 2, 4 or 5).
func (c Code) IsResponse() bool {
	class := c.Class()
	return class == 2 || class == 4 || class == 5
}

// IsEmpty returns true for the Empty code (used by standalone ACK and RST).
func (c Code) IsEmpty() bool {
	return c == CodeEmpty
}
