package en50221

import (
	"errors"
)

// ErrNilSender is returned by constructors when no send capability is supplied.
var ErrNilSender = errors.New("en50221: sender is required")

// ErrClosed is returned by every operation of a resource after Close.
var ErrClosed = errors.New("en50221: resource closed")

// ErrInvalidArgument reports a request parameter that cannot be encoded.
var ErrInvalidArgument = errors.New("en50221: invalid argument")

// Sender abstracts the session layer's outbound path.
// SendData must transmit data on the given session; the slice is not retained by the caller.
type Sender interface {
	SendData(sessionNumber uint16, data []byte) error
}

// SenderFunc adapts a plain function to the Sender interface.
type SenderFunc func(sessionNumber uint16, data []byte) error

// SendData calls f(sessionNumber, data).
func (f SenderFunc) SendData(sessionNumber uint16, data []byte) error {
	return f(sessionNumber, data)
}
