package en50221

import (
	"encoding/binary"
	"fmt"

	"github.com/gregLibert/en50221/pkg/apdu"
	"github.com/gregLibert/en50221/pkg/bits"
)

// CONDITIONAL ACCESS SUPPORT RESOURCE (EN 50221 §8.4.3):
//
// ca_info lists the CA_system_ids the module can descramble. ca_pmt hands the module the
// programme's CA descriptors; when the ca_pmt_cmd_id is "query" the module answers with
// ca_pmt_reply stating, per programme and per elementary stream, whether it can descramble.
//
// ca_pmt_reply payload:
//
//	program_number                 16 bits
//	reserved 2 | version_number 5 | current_next_indicator 1
//	CA_enable_flag 1 | CA_enable 7    (CA_enable present only if the flag is set)
//	for each elementary stream:
//	    reserved 3 | elementary_PID 13
//	    CA_enable_flag 1 | CA_enable 7

const (
	caPMTReplyFixedSize = 4
	caPMTReplyEntrySize = 3
)

// CAEnableValue is the CA_enable field of ca_pmt_reply.
type CAEnableValue uint8

const (
	CAEnableDescramblingPossible           CAEnableValue = 0x01
	CAEnablePossibleUnderPurchaseDialogue  CAEnableValue = 0x02
	CAEnablePossibleUnderTechnicalDialogue CAEnableValue = 0x03
	CAEnableNotPossibleNoEntitlement       CAEnableValue = 0x71
	CAEnableNotPossibleTechnicalReasons    CAEnableValue = 0x73
)

// String returns a readable description of the CA_enable value.
func (v CAEnableValue) String() string {
	switch v {
	case CAEnableDescramblingPossible:
		return "descrambling possible"
	case CAEnablePossibleUnderPurchaseDialogue:
		return "descrambling possible under conditions (purchase dialogue)"
	case CAEnablePossibleUnderTechnicalDialogue:
		return "descrambling possible under conditions (technical dialogue)"
	case CAEnableNotPossibleNoEntitlement:
		return "descrambling not possible (because no entitlement)"
	case CAEnableNotPossibleTechnicalReasons:
		return "descrambling not possible (for technical reasons)"
	default:
		return fmt.Sprintf("CAEnable(%02X)", uint8(v))
	}
}

// CAEnable is a CA_enable_flag and CA_enable pair. Value is meaningless when Present is false.
type CAEnable struct {
	Present bool
	Value   CAEnableValue
}

func parseCAEnable(b byte) CAEnable {
	return CAEnable{
		Present: bits.IsSet(b, 8),
		Value:   CAEnableValue(bits.GetRange(b, 7, 1)),
	}
}

// CAPMTReplyStream is the per elementary stream part of ca_pmt_reply.
type CAPMTReplyStream struct {
	ElementaryPID uint16
	CAEnable      CAEnable
}

// CAPMTReply is a decoded ca_pmt_reply object.
type CAPMTReply struct {
	ProgramNumber uint16
	VersionNumber uint8
	CurrentNext   bool
	CAEnable      CAEnable
	Streams       []CAPMTReplyStream
}

// CAInfoHandler receives the CA_system_ids announced with ca_info.
type CAInfoHandler func(slotID uint8, sessionNumber uint16, caSystemIDs []uint16) error

// CAPMTReplyHandler receives ca_pmt_reply objects.
type CAPMTReplyHandler func(slotID uint8, sessionNumber uint16, reply CAPMTReply) error

// CA is the Conditional Access Support resource.
type CA struct {
	*engine
	infoHandler  handlerSlot[CAInfoHandler]
	replyHandler handlerSlot[CAPMTReplyHandler]
}

// NewCA creates a Conditional Access Support resource sending through sender.
func NewCA(sender Sender, opts ...Option) (*CA, error) {
	e, err := newEngine(ResourceConditionalAccess, sender, opts)
	if err != nil {
		return nil, err
	}

	ca := &CA{engine: e}
	e.decoders[apdu.TagCAInfo] = ca.parseInfo
	e.decoders[apdu.TagCAPMTReply] = ca.parsePMTReply
	return ca, nil
}

// Close releases the handlers. Calls made after Close fail with ErrClosed.
func (ca *CA) Close() error {
	if ca.shutdown() {
		ca.infoHandler.store(nil)
		ca.replyHandler.store(nil)
	}
	return nil
}

// RegisterInfoHandler replaces the ca_info handler. A nil handler disables delivery.
func (ca *CA) RegisterInfoHandler(h CAInfoHandler) {
	ca.infoHandler.store(h)
}

// RegisterPMTReplyHandler replaces the ca_pmt_reply handler. A nil handler disables delivery.
func (ca *CA) RegisterPMTReplyHandler(h CAPMTReplyHandler) {
	ca.replyHandler.store(h)
}

// InfoEnquiry sends ca_info_enq on the session.
func (ca *CA) InfoEnquiry(sessionNumber uint16) error {
	return ca.sendEmpty(sessionNumber, apdu.TagCAInfoEnquiry)
}

// PMT sends a ca_pmt object. caPMT is the already encoded ca_pmt payload
// (ca_pmt_list_management onwards); it is framed with the tag and BER length here.
func (ca *CA) PMT(sessionNumber uint16, caPMT []byte) error {
	if len(caPMT) == 0 {
		return fmt.Errorf("%w: empty ca_pmt", ErrInvalidArgument)
	}
	return ca.sendBody(sessionNumber, apdu.TagCAPMT, caPMT)
}

func (ca *CA) parseInfo(slotID uint8, sessionNumber uint16, body []byte) error {
	size, err := ca.fitLength(apdu.TagCAInfo, slotID, sessionNumber,
		"ca_system_id list", len(body), len(body)&^1)
	if err != nil {
		return err
	}

	ids := make([]uint16, 0, size/2)
	for i := 0; i+1 < size; i += 2 {
		ids = append(ids, binary.BigEndian.Uint16(body[i:i+2]))
	}

	h := ca.infoHandler.load()
	if h == nil {
		return nil
	}
	ca.delivered()
	return h(slotID, sessionNumber, ids)
}

func (ca *CA) parsePMTReply(slotID uint8, sessionNumber uint16, body []byte) error {
	if err := ca.requireLength(apdu.TagCAPMTReply, slotID, sessionNumber, body, caPMTReplyFixedSize); err != nil {
		return err
	}

	reply := CAPMTReply{
		ProgramNumber: binary.BigEndian.Uint16(body[0:2]),
		VersionNumber: bits.GetRange(body[2], 6, 2),
		CurrentNext:   bits.IsSet(body[2], 1),
		CAEnable:      parseCAEnable(body[3]),
	}

	loop := body[caPMTReplyFixedSize:]
	size, err := ca.fitLength(apdu.TagCAPMTReply, slotID, sessionNumber,
		"elementary stream loop", len(loop), len(loop)-len(loop)%caPMTReplyEntrySize)
	if err != nil {
		return err
	}

	for i := 0; i+caPMTReplyEntrySize <= size; i += caPMTReplyEntrySize {
		reply.Streams = append(reply.Streams, CAPMTReplyStream{
			ElementaryPID: bits.PID(loop[i], loop[i+1]),
			CAEnable:      parseCAEnable(loop[i+2]),
		})
	}

	h := ca.replyHandler.load()
	if h == nil {
		return nil
	}
	ca.delivered()
	return h(slotID, sessionNumber, reply)
}
