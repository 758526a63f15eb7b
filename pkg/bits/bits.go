// Package bits holds the bit and BCD helpers needed by the resource payload layouts.
package bits

// Bit returns a byte with only the n-th bit set (1 to 8).
func Bit(n uint) byte {
	if n < 1 || n > 8 {
		return 0
	}
	return 1 << (n - 1)
}

// IsSet checks if the n-th bit is set (1 to 8).
func IsSet(b byte, n uint) bool {
	return b&Bit(n) != 0
}

// GetRange extracts the value from a range of bits (e.g., bits 4 to 3).
// Example: GetRange(0b00001100, 4, 3) returns 3 (0b11)
func GetRange(b byte, high, low uint) byte {
	if high < low || high > 8 || low < 1 {
		return 0
	}

	width := high - low + 1
	mask := byte((1 << width) - 1)

	return (b >> (low - 1)) & mask
}

// PIDMask keeps the 13 significant bits of an MPEG-2 packet identifier.
const PIDMask = 0x1FFF

// PID reads a 13-bit packet identifier stored in the low bits of two big-endian bytes.
func PID(hi, lo byte) uint16 {
	return (uint16(hi)<<8 | uint16(lo)) & PIDMask
}

// ToBCD packs a value in 0..99 into one binary-coded decimal byte.
// Out of range values are reduced modulo 100.
func ToBCD(v int) byte {
	v %= 100
	if v < 0 {
		v = -v
	}
	return byte(v/10)<<4 | byte(v%10)
}

// FromBCD unpacks one binary-coded decimal byte.
// The second result is false when a nibble is not a decimal digit.
func FromBCD(b byte) (int, bool) {
	hi := GetRange(b, 8, 5)
	lo := GetRange(b, 4, 1)
	if hi > 9 || lo > 9 {
		return 0, false
	}
	return int(hi)*10 + int(lo), true
}
