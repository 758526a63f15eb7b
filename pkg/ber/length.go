// Package ber implements the ASN.1 BER length field used by EN 50221 APDUs.
//
// LENGTH FORMS:
//   - Short form: a single byte 0x00..0x7F carries the length directly.
//   - Long form: the first byte is 0x80|N, followed by N big-endian length bytes.
//
// The Common Interface never carries APDUs larger than 64 KiB, so the long form is
// limited to two length bytes. The indefinite form (0x80) is not allowed.
package ber

import (
	"errors"
	"fmt"
)

const (
	// MaxShortLength is the largest value encodable on a single byte.
	MaxShortLength = 0x7F

	// MaxLengthBytes is the largest N accepted in the long form (0x80|N).
	MaxLengthBytes = 2

	// MaxLength is the largest length representable with MaxLengthBytes.
	MaxLength = 0xFFFF

	longFormFlag = 0x80
)

// ErrMalformedLength reports a length field that is truncated or not representable.
var ErrMalformedLength = errors.New("ber: malformed length")

// DecodeLength reads a BER length field at the start of buf.
// It returns the decoded value and the number of bytes the field occupied.
func DecodeLength(buf []byte) (int, int, error) {
	if len(buf) == 0 {
		return 0, 0, fmt.Errorf("%w: empty buffer", ErrMalformedLength)
	}

	first := buf[0]
	if first&longFormFlag == 0 {
		return int(first), 1, nil
	}

	count := int(first &^ longFormFlag)
	if count == 0 {
		return 0, 0, fmt.Errorf("%w: indefinite form not supported", ErrMalformedLength)
	}
	if count > MaxLengthBytes {
		return 0, 0, fmt.Errorf("%w: %d length bytes exceeds limit of %d", ErrMalformedLength, count, MaxLengthBytes)
	}
	if count > len(buf)-1 {
		return 0, 0, fmt.Errorf("%w: need %d length bytes, have %d", ErrMalformedLength, count, len(buf)-1)
	}

	value := 0
	for _, b := range buf[1 : 1+count] {
		value = value<<8 | int(b)
	}
	return value, 1 + count, nil
}

// EncodedSize returns the number of bytes EncodeLength produces for v.
func EncodedSize(v int) int {
	switch {
	case v <= MaxShortLength:
		return 1
	case v <= 0xFF:
		return 2
	default:
		return 3
	}
}

// EncodeLength returns the canonical (minimal) BER encoding of v.
func EncodeLength(v int) ([]byte, error) {
	return AppendLength(make([]byte, 0, EncodedSize(v)), v)
}

// AppendLength appends the canonical BER encoding of v to dst.
func AppendLength(dst []byte, v int) ([]byte, error) {
	if v < 0 || v > MaxLength {
		return dst, fmt.Errorf("%w: value %d out of range [0, %d]", ErrMalformedLength, v, MaxLength)
	}

	switch {
	case v <= MaxShortLength:
		return append(dst, byte(v)), nil
	case v <= 0xFF:
		return append(dst, longFormFlag|1, byte(v)), nil
	default:
		return append(dst, longFormFlag|2, byte(v>>8), byte(v)), nil
	}
}
