/*
Package en50221 implements the application-layer resources of the EN 50221 Common Interface.

A resource is a logical service offered by the host to a Conditional Access Module (CAM):
Application Information, Conditional Access Support, Date-Time, DVB Host Control. Each one
exchanges APDUs (tag + BER length + payload) over sessions opened by the session layer.

# Boundary

This package sits between the session layer and the application:

  - Outbound, every resource owns a Sender supplied at construction. Requests such as
    AI.Enquiry build the APDU and hand it to Sender.SendData with the session number.
  - Inbound, the session layer calls Resource.Message with the reassembled APDU of a session.
    The tag selects a decoder; the decoded object is delivered to the registered handler.

# Concurrency

Message may be called from the transport goroutine while the application registers handlers
or sends requests from its own goroutines. The handler is read under a lock, the lock is
released, then the handler runs. A handler may therefore call back into the resource (send a
reply, replace itself) without deadlocking.

# Usage Example

	ai, err := en50221.NewAI(sessionLayer, en50221.WithLogger(logger))
	if err != nil {
	    log.Fatal(err)
	}

	ai.RegisterHandler(func(slot uint8, session uint16, info en50221.AppInfo) error {
	    fmt.Printf("CAM in slot %d: %s\n", slot, info.MenuString)
	    return nil
	})

	// When the session layer opens a session for ResourceApplicationInformation:
	if err := ai.Enquiry(session); err != nil {
	    log.Printf("enquiry failed: %v", err)
	}

	// From the session layer receive path:
	err = ai.Message(slot, session, uint32(en50221.ResourceApplicationInformation), apduBytes)
*/
package en50221

import (
	"fmt"

	"github.com/gregLibert/en50221/pkg/apdu"
)

// ResourceID identifies a resource class, type and version (EN 50221 §8.2.2).
type ResourceID uint32

// Public resource identifiers of the resources implemented here.
const (
	ResourceApplicationInformation ResourceID = 0x00020041
	ResourceConditionalAccess      ResourceID = 0x00030041
	ResourceDVBHostControl         ResourceID = 0x00200041
	ResourceDateTime               ResourceID = 0x00240041
)

var resourceNames = map[ResourceID]string{
	ResourceApplicationInformation: "application_information",
	ResourceConditionalAccess:      "conditional_access",
	ResourceDVBHostControl:         "dvb_host_control",
	ResourceDateTime:               "date_time",
}

// Class returns the resource class (bits 29-16).
func (r ResourceID) Class() uint16 { return uint16(r>>16) & 0x3FFF }

// Type returns the resource type (bits 15-6).
func (r ResourceID) Type() uint16 { return uint16(r>>6) & 0x3FF }

// Version returns the resource version (bits 5-0).
func (r ResourceID) Version() uint8 { return uint8(r & 0x3F) }

// String returns the resource name, or the hex value for unknown resources.
func (r ResourceID) String() string {
	if name, ok := resourceNames[r]; ok {
		return name
	}
	return fmt.Sprintf("ResourceID(%08X)", uint32(r))
}

// Resource is the entry point the session layer uses to deliver APDUs.
type Resource interface {
	// Message decodes one APDU received on a session and delivers it to the
	// registered handler. The resourceID is accepted for symmetry with the
	// session layer and ignored.
	Message(slotID uint8, sessionNumber uint16, resourceID uint32, data []byte) error

	// ID returns the resource identifier this instance serves.
	ID() ResourceID

	// Stats returns a snapshot of the processing counters.
	Stats() Stats

	// Close unregisters every handler and makes later calls fail with ErrClosed.
	// The session layer must stop delivering to the resource before closing it.
	Close() error
}

// Failure taxonomy, shared with package apdu so errors.Is works across both.
var (
	ErrShortData       = apdu.ErrShortData
	ErrMalformedLength = apdu.ErrMalformedLength
	ErrUnexpectedTag   = apdu.ErrUnexpectedTag
	ErrTransport       = apdu.ErrTransport
)

var (
	_ Resource = (*AI)(nil)
	_ Resource = (*CA)(nil)
	_ Resource = (*DateTime)(nil)
	_ Resource = (*DVB)(nil)
)
