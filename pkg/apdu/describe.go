package apdu

import (
	"fmt"
	"strings"

	"github.com/moov-io/bertlv"
)

// Describe generates a readable report of one or more concatenated APDUs.
// The split is delegated to BER-TLV decoding since APDU tags and lengths follow BER.
func Describe(raw []byte) (string, error) {
	packets, err := bertlv.Decode(raw)
	if err != nil {
		return "", fmt.Errorf("bertlv decode failed: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("=== EN 50221 APDU TRACE ===")

	for _, p := range packets {
		sb.WriteString("\n")
		sb.WriteString(describePacket(p))
	}

	return sb.String(), nil
}

func describePacket(p bertlv.TLV) string {
	name := fmt.Sprintf("[%s] not an EN 50221 object", strings.ToUpper(p.Tag))
	if tag, err := ParseTagHex(p.Tag); err == nil && tag.Known() {
		name = tag.Verbose()
	}

	value := p.Value
	if len(p.TLVs) > 0 {
		if enc, err := bertlv.Encode(p.TLVs); err == nil {
			value = enc
		}
	}

	if len(value) == 0 {
		return fmt.Sprintf("    - %s (0 bytes)", name)
	}
	return fmt.Sprintf("    - %s (%d bytes): %X (%q)", name, len(value), value, MakeSafeASCII(value))
}

// MakeSafeASCII replaces non-printable bytes with '.' so binary payloads can be logged.
func MakeSafeASCII(data []byte) string {
	return strings.Map(func(r rune) rune {
		if r >= 32 && r <= 126 {
			return r
		}
		return '.'
	}, string(data))
}
