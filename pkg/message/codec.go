package message

import (
	"encoding/binary"
)

// CoAP option numbers used by the engine (RFC 7252 Section 5.10,
// RFC 7641 Section 2).
const (
	OptionObserve uint16 = 6
	OptionURIPath uint16 = 11
)

// headerLen is the fixed CoAP header size.
const headerLen = 4

// protocolVersion is the CoAP version number (RFC 7252 Section 3).
const protocolVersion = 1

// payloadMarker separates options from the payload.
const payloadMarker = 0xff

// optionCritical reports whether an option number is critical.
// Per RFC 7252 Section 5.4.1, odd option numbers are critical: a message
// carrying an unknown critical option must be rejected.
func optionCritical(number uint16) bool {
	return number&1 == 1
}

// Encode serializes the message to its wire representation.
func (m *Message) Encode() ([]byte, error) {
	if len(m.Token) > MaxTokenLength {
		return nil, ErrTokenTooLong
	}
	if !m.Type.IsValid() {
		return nil, ErrInvalidType
	}

	buf := make([]byte, 0, headerLen+len(m.Token)+16+len(m.Payload))
	buf = append(buf,
		byte(protocolVersion<<6)|byte(m.Type)<<4|byte(len(m.Token)),
		byte(m.Code),
		byte(m.MessageID>>8),
		byte(m.MessageID),
	)
	buf = append(buf, m.Token...)

	// Options are encoded in ascending option-number order:
	// Observe (6) before Uri-Path (11).
	prev := uint16(0)
	if m.HasObserve {
		buf = appendOption(buf, OptionObserve-prev, encodeObserve(m.Observe))
		prev = OptionObserve
	}
	for _, segment := range m.Path {
		buf = appendOption(buf, OptionURIPath-prev, []byte(segment))
		prev = OptionURIPath
	}

	if len(m.Payload) > 0 {
		buf = append(buf, payloadMarker)
		buf = append(buf, m.Payload...)
	}
	return buf, nil
}

// appendOption encodes one option with the given delta and value.
func appendOption(buf []byte, delta uint16, value []byte) []byte {
	dn, dext := optionNibble(delta)
	ln, lext := optionNibble(uint16(len(value)))
	buf = append(buf, dn<<4|ln)
	buf = append(buf, dext...)
	buf = append(buf, lext...)
	return append(buf, value...)
}

// optionNibble computes the 4-bit nibble and extension bytes for a delta or
// length value (RFC 7252 Section 3.1).
func optionNibble(v uint16) (byte, []byte) {
	switch {
	case v < 13:
		return byte(v), nil
	case v < 269:
		return 13, []byte{byte(v - 13)}
	default:
		return 14, []byte{byte((v - 269) >> 8), byte(v - 269)}
	}
}

// encodeObserve encodes an Observe sequence number as a 0-3 byte uint.
func encodeObserve(seq uint32) []byte {
	seq %= ObserveModulus
	switch {
	case seq == 0:
		return nil
	case seq < 1<<8:
		return []byte{byte(seq)}
	case seq < 1<<16:
		return []byte{byte(seq >> 8), byte(seq)}
	default:
		return []byte{byte(seq >> 16), byte(seq >> 8), byte(seq)}
	}
}

// Decode parses a wire-format message.
//
// A message carrying an unknown critical option fails with
// ErrUnknownCriticalOption; the caller is expected to reject it with a
// Reset. Unknown elective options are skipped.
func Decode(data []byte) (*Message, error) {
	if len(data) < headerLen {
		return nil, ErrMessageTooShort
	}

	version := data[0] >> 6
	if version != protocolVersion {
		return nil, ErrInvalidVersion
	}

	m := &Message{
		Type:      Type(data[0] >> 4 & 0x3),
		Code:      Code(data[1]),
		MessageID: binary.BigEndian.Uint16(data[2:4]),
	}

	tkl := int(data[0] & 0xf)
	if tkl > MaxTokenLength {
		return nil, ErrTokenTooLong
	}
	if len(data) < headerLen+tkl {
		return nil, ErrMessageTooShort
	}
	if tkl > 0 {
		m.Token = append([]byte(nil), data[headerLen:headerLen+tkl]...)
	}

	rest := data[headerLen+tkl:]
	number := uint16(0)
	for len(rest) > 0 {
		if rest[0] == payloadMarker {
			if len(rest) == 1 {
				return nil, ErrTruncatedOption
			}
			m.Payload = append([]byte(nil), rest[1:]...)
			return m, nil
		}

		delta, value, remaining, err := readOption(rest)
		if err != nil {
			return nil, err
		}
		number += delta
		rest = remaining

		switch number {
		case OptionObserve:
			if len(value) > 3 {
				return nil, ErrInvalidOption
			}
			seq := uint32(0)
			for _, b := range value {
				seq = seq<<8 | uint32(b)
			}
			m.SetObserve(seq)
		case OptionURIPath:
			m.Path = append(m.Path, string(value))
		default:
			if optionCritical(number) {
				return nil, ErrUnknownCriticalOption
			}
			// Unknown elective option: skip.
		}
	}
	return m, nil
}

// readOption parses one option, returning its delta, value and the
// remaining bytes.
func readOption(data []byte) (delta uint16, value, rest []byte, err error) {
	dn := data[0] >> 4
	ln := data[0] & 0xf
	if dn == 15 || ln == 15 {
		return 0, nil, nil, ErrInvalidOption
	}
	data = data[1:]

	delta, data, err = readOptionExt(dn, data)
	if err != nil {
		return 0, nil, nil, err
	}
	length, data, err := readOptionExt(ln, data)
	if err != nil {
		return 0, nil, nil, err
	}
	if int(length) > len(data) {
		return 0, nil, nil, ErrTruncatedOption
	}
	return delta, data[:length], data[length:], nil
}

// readOptionExt resolves a delta/length nibble with its extension bytes.
func readOptionExt(nibble byte, data []byte) (uint16, []byte, error) {
	switch nibble {
	case 13:
		if len(data) < 1 {
			return 0, nil, ErrTruncatedOption
		}
		return uint16(data[0]) + 13, data[1:], nil
	case 14:
		if len(data) < 2 {
			return 0, nil, ErrTruncatedOption
		}
		return binary.BigEndian.Uint16(data[:2]) + 269, data[2:], nil
	default:
		return uint16(nibble), data, nil
	}
}
