package en50221

import (
	"errors"
	"fmt"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/gregLibert/en50221/pkg/apdu"
)

// decodeFunc handles the declared payload of one APDU tag.
type decodeFunc func(slotID uint8, sessionNumber uint16, body []byte) error

// engine carries what every resource shares: the send capability, the tag table,
// diagnostics and counters. Resources embed it and add their handler slots.
type engine struct {
	id       ResourceID
	sender   Sender
	logger   *zap.Logger
	policy   LengthPolicy
	stats    *counters
	closed   *atomic.Bool
	decoders map[apdu.Tag]decodeFunc
}

func newEngine(id ResourceID, sender Sender, opts []Option) (*engine, error) {
	if sender == nil {
		return nil, fmt.Errorf("%s: %w", id, ErrNilSender)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &engine{
		id:       id,
		sender:   sender,
		logger:   o.logger.With(zap.Stringer("resource", id)),
		policy:   o.policy,
		stats:    newCounters(),
		closed:   atomic.NewBool(false),
		decoders: make(map[apdu.Tag]decodeFunc),
	}, nil
}

// ID returns the resource identifier this instance serves.
func (e *engine) ID() ResourceID {
	return e.id
}

// Policy returns the configured LengthPolicy.
func (e *engine) Policy() LengthPolicy {
	return e.policy
}

// Stats returns a snapshot of the processing counters.
func (e *engine) Stats() Stats {
	return e.stats.snapshot()
}

// Message decodes one APDU received on a session.
//
// It fails with ErrShortData when data cannot hold a tag or the declared payload,
// with ErrMalformedLength when the length field is invalid and with ErrUnexpectedTag
// when the tag is not handled by this resource. Otherwise it returns the handler's
// result, or nil when no handler is registered.
func (e *engine) Message(slotID uint8, sessionNumber uint16, _ uint32, data []byte) error {
	if e.closed.Load() {
		return fmt.Errorf("%s: %w", e.id, ErrClosed)
	}
	e.stats.dispatched.Inc()

	tag, err := apdu.ReadTag(data)
	if err != nil {
		e.stats.rejected.Inc()
		e.logger.Error("received short data",
			zap.Uint8("slot", slotID), zap.Uint16("session", sessionNumber), zap.Int("length", len(data)))
		return err
	}

	decode, ok := e.decoders[tag]
	if !ok {
		e.stats.rejected.Inc()
		e.logger.Error("received unexpected tag",
			zap.Uint8("slot", slotID), zap.Uint16("session", sessionNumber), zap.String("tag", fmt.Sprintf("%06X", uint32(tag))))
		return fmt.Errorf("%w: %s", ErrUnexpectedTag, tag.Verbose())
	}

	body, err := apdu.Body(data[apdu.TagSize:])
	if err != nil {
		e.stats.rejected.Inc()
		msg := "received data with invalid length"
		if errors.Is(err, ErrShortData) {
			msg = "received short data"
		}
		e.logger.Error(msg,
			zap.Uint8("slot", slotID), zap.Uint16("session", sessionNumber), zap.Stringer("tag", tag), zap.Error(err))
		return fmt.Errorf("%s: %w", tag, err)
	}

	return decode(slotID, sessionNumber, body)
}

// shutdown marks the engine closed. It reports false if it already was.
func (e *engine) shutdown() bool {
	if !e.closed.CompareAndSwap(false, true) {
		return false
	}
	e.logger.Debug("resource closed", zap.Any("stats", e.stats.snapshot()))
	return true
}

// requireLength checks the fixed-field minimum of a decoder.
func (e *engine) requireLength(tag apdu.Tag, slotID uint8, sessionNumber uint16, body []byte, min int) error {
	if len(body) >= min {
		return nil
	}
	e.stats.rejected.Inc()
	e.logger.Error("received short data",
		zap.Uint8("slot", slotID), zap.Uint16("session", sessionNumber), zap.Stringer("tag", tag),
		zap.Int("length", len(body)), zap.Int("minimum", min))
	return fmt.Errorf("%s: %w: payload of %d bytes, need at least %d", tag, ErrShortData, len(body), min)
}

// fitLength validates a length carried inside a payload against the room left for it.
// Under PolicyClamp the length is reduced to room; under PolicyReject the APDU fails.
func (e *engine) fitLength(tag apdu.Tag, slotID uint8, sessionNumber uint16, field string, declared, room int) (int, error) {
	if declared <= room {
		return declared, nil
	}

	fields := []zap.Field{
		zap.Uint8("slot", slotID), zap.Uint16("session", sessionNumber), zap.Stringer("tag", tag),
		zap.String("field", field), zap.Int("declared", declared), zap.Int("available", room),
	}

	if e.policy == PolicyReject {
		e.stats.rejected.Inc()
		e.logger.Error("received bad embedded length", fields...)
		return 0, fmt.Errorf("%s: %w: %s length %d exceeds remaining %d bytes", tag, ErrShortData, field, declared, room)
	}

	e.stats.clamped.Inc()
	e.logger.Warn("received bad embedded length - adjusting", fields...)
	return room, nil
}

// delivered records a handler invocation.
func (e *engine) delivered() {
	e.stats.delivered.Inc()
}

// send forwards an encoded APDU to the Sender. A failure keeps the Sender's error in the
// chain next to ErrTransport; nothing is retried.
func (e *engine) send(sessionNumber uint16, tag apdu.Tag, raw []byte) error {
	if e.closed.Load() {
		return fmt.Errorf("%s: %w", e.id, ErrClosed)
	}
	if err := e.sender.SendData(sessionNumber, raw); err != nil {
		e.logger.Warn("send failed",
			zap.Uint16("session", sessionNumber), zap.Stringer("tag", tag), zap.Error(err))
		return fmt.Errorf("%w: %s on session %d: %w", ErrTransport, tag, sessionNumber, err)
	}
	e.stats.sent.Inc()
	e.logger.Debug("sent apdu",
		zap.Uint16("session", sessionNumber), zap.Stringer("tag", tag), zap.Int("length", len(raw)))
	return nil
}

// sendEmpty sends a request that carries no payload.
func (e *engine) sendEmpty(sessionNumber uint16, tag apdu.Tag) error {
	return e.send(sessionNumber, tag, apdu.EncodeEmpty(tag))
}

// sendBody wraps body in tag and BER length before sending it.
func (e *engine) sendBody(sessionNumber uint16, tag apdu.Tag, body []byte) error {
	raw, err := apdu.Encode(tag, body)
	if err != nil {
		return err
	}
	return e.send(sessionNumber, tag, raw)
}
