package en50221

import (
	"encoding/binary"
	"fmt"

	"github.com/gregLibert/en50221/pkg/apdu"
)

// APPLICATION INFORMATION RESOURCE (EN 50221 §8.4.2):
//
// The host asks the module to describe itself with application_info_enq; the module answers
// with application_info. The host can also ask the module to open its top-level menu with
// enter_menu.
//
// application_info payload:
//
//	application_type             8 bits
//	application_manufacturer    16 bits
//	manufacturer_code           16 bits
//	menu_string_length           8 bits
//	text_char                    menu_string_length bytes

// appInfoFixedSize is the size of the fields preceding the menu string.
const appInfoFixedSize = 6

// ApplicationType is the application_type field of application_info.
type ApplicationType uint8

const (
	ApplicationTypeConditionalAccess ApplicationType = 0x01
	ApplicationTypeEPG               ApplicationType = 0x02
)

// String returns a readable name for the application type.
func (t ApplicationType) String() string {
	switch t {
	case ApplicationTypeConditionalAccess:
		return "Conditional Access"
	case ApplicationTypeEPG:
		return "Electronic Programme Guide"
	default:
		return fmt.Sprintf("ApplicationType(%02X)", uint8(t))
	}
}

// DataRate is the transport stream rate announced with data_rate_info (CI v1.3).
type DataRate uint8

const (
	DataRate72Mbps DataRate = 0x00
	DataRate96Mbps DataRate = 0x01
)

// AppInfo is a decoded application_info object.
//
// MenuString borrows from the buffer passed to Message: it is only valid during the
// handler call and must be copied to be kept.
type AppInfo struct {
	ApplicationType  ApplicationType
	ManufacturerID   uint16
	ManufacturerCode uint16
	MenuString       []byte
}

// AppInfoHandler receives application_info objects.
// Its error is returned unchanged by Message.
type AppInfoHandler func(slotID uint8, sessionNumber uint16, info AppInfo) error

// AI is the Application Information resource. One instance serves every session
// opened on ResourceApplicationInformation.
type AI struct {
	*engine
	handler handlerSlot[AppInfoHandler]
}

// NewAI creates an Application Information resource sending through sender.
func NewAI(sender Sender, opts ...Option) (*AI, error) {
	e, err := newEngine(ResourceApplicationInformation, sender, opts)
	if err != nil {
		return nil, err
	}

	ai := &AI{engine: e}
	e.decoders[apdu.TagAppInfo] = ai.parseAppInfo
	return ai, nil
}

// Close releases the handlers. Calls made after Close fail with ErrClosed.
func (ai *AI) Close() error {
	if ai.shutdown() {
		ai.handler.store(nil)
	}
	return nil
}

// RegisterHandler replaces the application_info handler. A nil handler disables delivery.
func (ai *AI) RegisterHandler(h AppInfoHandler) {
	ai.handler.store(h)
}

// Enquiry sends application_info_enq on the session.
func (ai *AI) Enquiry(sessionNumber uint16) error {
	return ai.sendEmpty(sessionNumber, apdu.TagAppInfoEnquiry)
}

// EnterMenu asks the module to open its top-level MMI menu.
func (ai *AI) EnterMenu(sessionNumber uint16) error {
	return ai.sendEmpty(sessionNumber, apdu.TagEnterMenu)
}

// DataRateInfo tells the module which transport stream rate the host supports.
func (ai *AI) DataRateInfo(sessionNumber uint16, rate DataRate) error {
	if rate != DataRate72Mbps && rate != DataRate96Mbps {
		return fmt.Errorf("%w: data rate %d", ErrInvalidArgument, rate)
	}
	return ai.sendBody(sessionNumber, apdu.TagDataRateInfo, []byte{byte(rate)})
}

func (ai *AI) parseAppInfo(slotID uint8, sessionNumber uint16, body []byte) error {
	if err := ai.requireLength(apdu.TagAppInfo, slotID, sessionNumber, body, appInfoFixedSize); err != nil {
		return err
	}

	menuLength, err := ai.fitLength(apdu.TagAppInfo, slotID, sessionNumber,
		"menu_string", int(body[5]), len(body)-appInfoFixedSize)
	if err != nil {
		return err
	}

	info := AppInfo{
		ApplicationType:  ApplicationType(body[0]),
		ManufacturerID:   binary.BigEndian.Uint16(body[1:3]),
		ManufacturerCode: binary.BigEndian.Uint16(body[3:5]),
		MenuString:       body[appInfoFixedSize : appInfoFixedSize+menuLength : appInfoFixedSize+menuLength],
	}

	h := ai.handler.load()
	if h == nil {
		return nil
	}
	ai.delivered()
	return h(slotID, sessionNumber, info)
}
