package message

import "errors"

// Errors returned by the message package.
var (
	// ErrMessageTooShort is returned when a datagram is shorter than the
	// fixed header plus the declared token length.
	ErrMessageTooShort = errors.New("message: message too short")

	// ErrInvalidVersion is returned for an unsupported protocol version.
	ErrInvalidVersion = errors.New("message: invalid protocol version")

	// ErrInvalidType is returned for an undefined message type.
	ErrInvalidType = errors.New("message: invalid message type")

	// ErrTokenTooLong is returned when a token exceeds 8 bytes.
	ErrTokenTooLong = errors.New("message: token exceeds 8 bytes")

	// ErrInvalidOption is returned for a malformed option encoding.
	ErrInvalidOption = errors.New("message: invalid option encoding")

	// ErrTruncatedOption is returned when an option extends past the end
	// of the message.
	ErrTruncatedOption = errors.New("message: truncated option")

	// ErrUnknownCriticalOption is returned when a message carries a
	// critical option the engine does not recognize. The message must be
	// rejected with a Reset.
	ErrUnknownCriticalOption = errors.New("message: unknown critical option")
)
