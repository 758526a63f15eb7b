package apdu

import (
	"fmt"
	"strconv"
)

// APDU Tag Logic according to EN 50221 §8.
//
// Every application-layer object starts with a 3-byte tag (apdu_tag). The first two bytes
// are always 0x9F 0x80..0x84 and the last byte selects the object inside the resource:
//
//	9F 80 2X -> Application Information
//	9F 80 3X -> Conditional Access Support
//	9F 84 0X -> DVB Host Control
//	9F 84 4X -> Date-Time
//
// The tag space happens to be BER-TLV compatible (0x9F announces a multi-byte tag, 0x80..0x84
// carries the continuation bit), which is why generic BER-TLV tooling can split CI traces.

// TagSize is the number of bytes an APDU tag occupies on the wire.
const TagSize = 3

// Tag is a 24-bit APDU tag.
type Tag uint32

// Known APDU tags.
const (
	TagAppInfoEnquiry Tag = 0x9F8020
	TagAppInfo        Tag = 0x9F8021
	TagEnterMenu      Tag = 0x9F8022
	TagDataRateInfo   Tag = 0x9F8024

	TagCAInfoEnquiry Tag = 0x9F8030
	TagCAInfo        Tag = 0x9F8031
	TagCAPMT         Tag = 0x9F8032
	TagCAPMTReply    Tag = 0x9F8033

	TagTune         Tag = 0x9F8400
	TagReplace      Tag = 0x9F8401
	TagClearReplace Tag = 0x9F8402
	TagAskRelease   Tag = 0x9F8403

	TagDateTimeEnquiry Tag = 0x9F8440
	TagDateTime        Tag = 0x9F8441
)

var tagNames = map[Tag]string{
	TagAppInfoEnquiry:  "application_info_enq",
	TagAppInfo:         "application_info",
	TagEnterMenu:       "enter_menu",
	TagDataRateInfo:    "data_rate_info",
	TagCAInfoEnquiry:   "ca_info_enq",
	TagCAInfo:          "ca_info",
	TagCAPMT:           "ca_pmt",
	TagCAPMTReply:      "ca_pmt_reply",
	TagTune:            "tune",
	TagReplace:         "replace",
	TagClearReplace:    "clear_replace",
	TagAskRelease:      "ask_release",
	TagDateTimeEnquiry: "date_time_enq",
	TagDateTime:        "date_time",
}

// Bytes returns the big-endian 3-byte wire form of the tag.
func (t Tag) Bytes() [TagSize]byte {
	return [TagSize]byte{byte(t >> 16), byte(t >> 8), byte(t)}
}

// Known reports whether the tag belongs to a resource implemented by this module.
func (t Tag) Known() bool {
	_, ok := tagNames[t]
	return ok
}

// String returns the EN 50221 object name, or the hex value for unknown tags.
func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Tag(%06X)", uint32(t))
}

// Verbose returns a readable description combining the raw value and the name.
func (t Tag) Verbose() string {
	return fmt.Sprintf("[%06X] %s", uint32(t), t.String())
}

// ReadTag extracts the big-endian tag from the first three bytes of data.
func ReadTag(data []byte) (Tag, error) {
	if len(data) < TagSize {
		return 0, fmt.Errorf("%w: need %d tag bytes, have %d", ErrShortData, TagSize, len(data))
	}
	return Tag(uint32(data[0])<<16 | uint32(data[1])<<8 | uint32(data[2])), nil
}

// ParseTagHex converts the hexadecimal tag notation used by BER-TLV tooling ("9F8021").
func ParseTagHex(s string) (Tag, error) {
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid tag %q: %w", s, err)
	}
	if v > 0xFFFFFF {
		return 0, fmt.Errorf("invalid tag %q: wider than %d bytes", s, TagSize)
	}
	return Tag(v), nil
}
