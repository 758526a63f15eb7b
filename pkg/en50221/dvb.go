package en50221

import (
	"encoding/binary"

	"github.com/gregLibert/en50221/pkg/apdu"
	"github.com/gregLibert/en50221/pkg/bits"
)

// DVB HOST CONTROL RESOURCE (EN 50221 §8.5.1):
//
// Lets the module take control of the host tuner: tune to a service, replace one PID by
// another in the transport stream, and undo a replacement. The host asks the module to
// give control back with ask_release.
//
//	tune:          network_id 16 | original_network_id 16 | transport_stream_id 16 | service_id 16
//	replace:       replacement_ref 8 | reserved 3 | replaced_PID 13 | reserved 3 | replacement_PID 13
//	clear_replace: replacement_ref 8

const (
	tuneSize         = 8
	replaceSize      = 5
	clearReplaceSize = 1
)

// Tune is a decoded tune object.
type Tune struct {
	NetworkID         uint16
	OriginalNetworkID uint16
	TransportStreamID uint16
	ServiceID         uint16
}

// Replace is a decoded replace object.
type Replace struct {
	ReplacementRef uint8
	ReplacedPID    uint16
	ReplacementPID uint16
}

// DVBHandler receives the host control requests of a module.
// The whole handler is replaced at once, so the three methods always come from the
// same registration.
type DVBHandler interface {
	Tune(slotID uint8, sessionNumber uint16, tune Tune) error
	Replace(slotID uint8, sessionNumber uint16, replace Replace) error
	ClearReplace(slotID uint8, sessionNumber uint16, replacementRef uint8) error
}

// DVBHandlerFuncs adapts plain functions to DVBHandler. Nil members accept the request silently.
type DVBHandlerFuncs struct {
	OnTune         func(slotID uint8, sessionNumber uint16, tune Tune) error
	OnReplace      func(slotID uint8, sessionNumber uint16, replace Replace) error
	OnClearReplace func(slotID uint8, sessionNumber uint16, replacementRef uint8) error
}

// Tune calls OnTune if set.
func (f DVBHandlerFuncs) Tune(slotID uint8, sessionNumber uint16, tune Tune) error {
	if f.OnTune == nil {
		return nil
	}
	return f.OnTune(slotID, sessionNumber, tune)
}

// Replace calls OnReplace if set.
func (f DVBHandlerFuncs) Replace(slotID uint8, sessionNumber uint16, replace Replace) error {
	if f.OnReplace == nil {
		return nil
	}
	return f.OnReplace(slotID, sessionNumber, replace)
}

// ClearReplace calls OnClearReplace if set.
func (f DVBHandlerFuncs) ClearReplace(slotID uint8, sessionNumber uint16, replacementRef uint8) error {
	if f.OnClearReplace == nil {
		return nil
	}
	return f.OnClearReplace(slotID, sessionNumber, replacementRef)
}

// DVB is the DVB Host Control resource.
type DVB struct {
	*engine
	handler handlerSlot[DVBHandler]
}

// NewDVB creates a DVB Host Control resource sending through sender.
func NewDVB(sender Sender, opts ...Option) (*DVB, error) {
	e, err := newEngine(ResourceDVBHostControl, sender, opts)
	if err != nil {
		return nil, err
	}

	dvb := &DVB{engine: e}
	e.decoders[apdu.TagTune] = dvb.parseTune
	e.decoders[apdu.TagReplace] = dvb.parseReplace
	e.decoders[apdu.TagClearReplace] = dvb.parseClearReplace
	return dvb, nil
}

// Close releases the handlers. Calls made after Close fail with ErrClosed.
func (dvb *DVB) Close() error {
	if dvb.shutdown() {
		dvb.handler.store(nil)
	}
	return nil
}

// RegisterHandler replaces the host control handler. A nil handler disables delivery.
func (dvb *DVB) RegisterHandler(h DVBHandler) {
	dvb.handler.store(h)
}

// AskRelease asks the module to hand tuner control back to the host.
func (dvb *DVB) AskRelease(sessionNumber uint16) error {
	return dvb.sendEmpty(sessionNumber, apdu.TagAskRelease)
}

func (dvb *DVB) parseTune(slotID uint8, sessionNumber uint16, body []byte) error {
	if err := dvb.requireLength(apdu.TagTune, slotID, sessionNumber, body, tuneSize); err != nil {
		return err
	}

	tune := Tune{
		NetworkID:         binary.BigEndian.Uint16(body[0:2]),
		OriginalNetworkID: binary.BigEndian.Uint16(body[2:4]),
		TransportStreamID: binary.BigEndian.Uint16(body[4:6]),
		ServiceID:         binary.BigEndian.Uint16(body[6:8]),
	}

	h := dvb.handler.load()
	if h == nil {
		return nil
	}
	dvb.delivered()
	return h.Tune(slotID, sessionNumber, tune)
}

func (dvb *DVB) parseReplace(slotID uint8, sessionNumber uint16, body []byte) error {
	if err := dvb.requireLength(apdu.TagReplace, slotID, sessionNumber, body, replaceSize); err != nil {
		return err
	}

	replace := Replace{
		ReplacementRef: body[0],
		ReplacedPID:    bits.PID(body[1], body[2]),
		ReplacementPID: bits.PID(body[3], body[4]),
	}

	h := dvb.handler.load()
	if h == nil {
		return nil
	}
	dvb.delivered()
	return h.Replace(slotID, sessionNumber, replace)
}

func (dvb *DVB) parseClearReplace(slotID uint8, sessionNumber uint16, body []byte) error {
	if err := dvb.requireLength(apdu.TagClearReplace, slotID, sessionNumber, body, clearReplaceSize); err != nil {
		return err
	}

	h := dvb.handler.load()
	if h == nil {
		return nil
	}
	dvb.delivered()
	return h.ClearReplace(slotID, sessionNumber, body[0])
}
