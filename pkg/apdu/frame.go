// Package apdu implements the framing of EN 50221 Application Protocol Data Units.
//
// WIRE FORMAT:
//
//	apdu_tag (3 bytes, big-endian) || length_field (BER) || payload (length bytes)
//
// Decoding never copies: the payload returned by Body is a sub-slice of the inbound
// buffer and is only valid while the caller owns that buffer.
package apdu

import (
	"fmt"

	"github.com/gregLibert/en50221/pkg/ber"
)

// Encode builds a complete APDU from a tag and its payload.
// The length field uses the minimal BER form, so payloads above 127 bytes get a long form.
func Encode(tag Tag, body []byte) ([]byte, error) {
	buf := make([]byte, 0, TagSize+ber.EncodedSize(len(body))+len(body))

	tb := tag.Bytes()
	buf = append(buf, tb[:]...)

	buf, err := ber.AppendLength(buf, len(body))
	if err != nil {
		return nil, fmt.Errorf("failed to encode length of %s: %w", tag, err)
	}
	return append(buf, body...), nil
}

// EncodeEmpty builds the 4-byte APDU of a request without payload.
func EncodeEmpty(tag Tag) []byte {
	tb := tag.Bytes()
	return []byte{tb[0], tb[1], tb[2], 0x00}
}

// Body decodes the length field at the start of payload (the bytes following the tag)
// and returns exactly the declared number of payload bytes.
//
// It fails with ErrMalformedLength when the length field itself is invalid and with
// ErrShortData when the buffer cannot satisfy the declared length. Trailing bytes beyond
// the declared length are ignored.
func Body(payload []byte) ([]byte, error) {
	declared, n, err := ber.DecodeLength(payload)
	if err != nil {
		return nil, err
	}

	available := len(payload) - n
	if declared > available {
		return nil, fmt.Errorf("%w: declared length %d, %d bytes available", ErrShortData, declared, available)
	}
	return payload[n : n+declared], nil
}

// Split separates a raw APDU into its tag and its declared payload.
func Split(raw []byte) (Tag, []byte, error) {
	tag, err := ReadTag(raw)
	if err != nil {
		return 0, nil, err
	}
	body, err := Body(raw[TagSize:])
	if err != nil {
		return tag, nil, fmt.Errorf("%s: %w", tag, err)
	}
	return tag, body, nil
}
