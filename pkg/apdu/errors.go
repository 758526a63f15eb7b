package apdu

import (
	"errors"

	"github.com/gregLibert/en50221/pkg/ber"
)

// Failure taxonomy shared by every resource. All of them are local to a single
// encode, decode or dispatch call.
var (
	// ErrShortData reports a buffer too short for the structure it should contain.
	ErrShortData = errors.New("apdu: short data")

	// ErrMalformedLength reports an invalid BER length field.
	ErrMalformedLength = ber.ErrMalformedLength

	// ErrUnexpectedTag reports a tag outside the receiving resource's tag set.
	ErrUnexpectedTag = errors.New("apdu: unexpected tag")

	// ErrTransport marks a failure reported by the send capability.
	ErrTransport = errors.New("apdu: transport failure")
)
