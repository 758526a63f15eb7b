package en50221

import (
	"fmt"
	"time"

	"github.com/gregLibert/en50221/pkg/apdu"
	"github.com/gregLibert/en50221/pkg/bits"
)

// DATE-TIME RESOURCE (EN 50221 §8.5.2):
//
// The module sends date_time_enq with a response_interval in seconds. The host answers with
// date_time immediately and then, if the interval is non-zero, every interval seconds. The
// periodic sending is the application's job; this resource only decodes and encodes.
//
// date_time payload:
//
//	UTC_time      40 bits  (16-bit Modified Julian Date, then hh mm ss in BCD)
//	local_offset  16 bits  (optional, signed minutes)

const (
	dateTimeEnquirySize = 1
	utcTimeSize         = 5
	localOffsetSize     = 2

	// mjdUnixEpoch is the Modified Julian Date of 1970-01-01.
	mjdUnixEpoch  = 40587
	secondsPerDay = 86400
)

// DateTimeEnquiryHandler receives date_time_enq. A zero interval asks for a single answer.
type DateTimeEnquiryHandler func(slotID uint8, sessionNumber uint16, responseInterval time.Duration) error

// DateTime is the Date-Time resource.
type DateTime struct {
	*engine
	handler handlerSlot[DateTimeEnquiryHandler]
}

// NewDateTime creates a Date-Time resource sending through sender.
func NewDateTime(sender Sender, opts ...Option) (*DateTime, error) {
	e, err := newEngine(ResourceDateTime, sender, opts)
	if err != nil {
		return nil, err
	}

	dt := &DateTime{engine: e}
	e.decoders[apdu.TagDateTimeEnquiry] = dt.parseEnquiry
	return dt, nil
}

// Close releases the handlers. Calls made after Close fail with ErrClosed.
func (dt *DateTime) Close() error {
	if dt.shutdown() {
		dt.handler.store(nil)
	}
	return nil
}

// RegisterHandler replaces the date_time_enq handler. A nil handler disables delivery.
func (dt *DateTime) RegisterHandler(h DateTimeEnquiryHandler) {
	dt.handler.store(h)
}

// SendDateTime sends date_time carrying only the UTC time.
func (dt *DateTime) SendDateTime(sessionNumber uint16, utc time.Time) error {
	body, err := encodeUTCTime(utc)
	if err != nil {
		return err
	}
	return dt.sendBody(sessionNumber, apdu.TagDateTime, body)
}

// SendDateTimeWithOffset sends date_time carrying the UTC time and the local offset.
// The offset is truncated to whole minutes.
func (dt *DateTime) SendDateTimeWithOffset(sessionNumber uint16, utc time.Time, offset time.Duration) error {
	body, err := encodeUTCTime(utc)
	if err != nil {
		return err
	}

	minutes := int64(offset / time.Minute)
	if minutes < -0x8000 || minutes > 0x7FFF {
		return fmt.Errorf("%w: local offset %s", ErrInvalidArgument, offset)
	}
	m := uint16(int16(minutes))
	body = append(body, byte(m>>8), byte(m))

	return dt.sendBody(sessionNumber, apdu.TagDateTime, body)
}

// encodeUTCTime converts t into the 40-bit MJD + BCD representation.
func encodeUTCTime(t time.Time) ([]byte, error) {
	t = t.UTC()

	secs := t.Unix()
	days := secs / secondsPerDay
	if secs%secondsPerDay < 0 {
		days--
	}

	mjd := days + mjdUnixEpoch
	if mjd < 0 || mjd > 0xFFFF {
		return nil, fmt.Errorf("%w: %s not representable as a 16-bit MJD", ErrInvalidArgument, t.Format(time.RFC3339))
	}

	body := make([]byte, utcTimeSize, utcTimeSize+localOffsetSize)
	body[0] = byte(mjd >> 8)
	body[1] = byte(mjd)
	body[2] = bits.ToBCD(t.Hour())
	body[3] = bits.ToBCD(t.Minute())
	body[4] = bits.ToBCD(t.Second())
	return body, nil
}

// DecodeDateTime reads a date_time payload back into a UTC time and its optional local
// offset. hasOffset is false for the 5-byte form.
func DecodeDateTime(body []byte) (utc time.Time, offset time.Duration, hasOffset bool, err error) {
	if len(body) != utcTimeSize && len(body) != utcTimeSize+localOffsetSize {
		return time.Time{}, 0, false, fmt.Errorf("%w: date_time payload of %d bytes", ErrShortData, len(body))
	}

	mjd := int64(body[0])<<8 | int64(body[1])
	hh, okH := bits.FromBCD(body[2])
	mm, okM := bits.FromBCD(body[3])
	ss, okS := bits.FromBCD(body[4])
	if !okH || !okM || !okS || hh > 23 || mm > 59 || ss > 59 {
		return time.Time{}, 0, false, fmt.Errorf("%w: invalid BCD time %X", ErrInvalidArgument, body[2:5])
	}

	secs := (mjd-mjdUnixEpoch)*secondsPerDay + int64(hh*3600+mm*60+ss)
	utc = time.Unix(secs, 0).UTC()

	if len(body) == utcTimeSize {
		return utc, 0, false, nil
	}
	minutes := int16(uint16(body[5])<<8 | uint16(body[6]))
	return utc, time.Duration(minutes) * time.Minute, true, nil
}

func (dt *DateTime) parseEnquiry(slotID uint8, sessionNumber uint16, body []byte) error {
	if err := dt.requireLength(apdu.TagDateTimeEnquiry, slotID, sessionNumber, body, dateTimeEnquirySize); err != nil {
		return err
	}

	interval := time.Duration(body[0]) * time.Second

	h := dt.handler.load()
	if h == nil {
		return nil
	}
	dt.delivered()
	return h(slotID, sessionNumber, interval)
}
