package en50221

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/moov-io/bertlv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregLibert/en50221/pkg/apdu"
)

const (
	testSlot    uint8  = 1
	testSession uint16 = 7
)

func TestNewAI_NilSender(t *testing.T) {
	_, err := NewAI(nil)
	assert.ErrorIs(t, err, ErrNilSender)
}

func TestAI_Requests(t *testing.T) {
	tests := []struct {
		name     string
		send     func(ai *AI) error
		tag      apdu.Tag
		expected []byte
	}{
		{"Enquiry", func(ai *AI) error { return ai.Enquiry(testSession) }, apdu.TagAppInfoEnquiry, apdu.Hex("9F8020 00")},
		{"Enter Menu", func(ai *AI) error { return ai.EnterMenu(testSession) }, apdu.TagEnterMenu, apdu.Hex("9F8022 00")},
		{"Data Rate 96", func(ai *AI) error { return ai.DataRateInfo(testSession, DataRate96Mbps) }, apdu.TagDataRateInfo, apdu.Hex("9F8024 01 01")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &recordingSender{}
			ai := mustAI(t, sender)

			if err := tt.send(ai); err != nil {
				t.Fatalf("request failed: %v", err)
			}

			want := []sentAPDU{{Session: testSession, Data: tt.expected}}
			if diff := cmp.Diff(want, sender.all()); diff != "" {
				t.Errorf("sent mismatch (-want +got):\n%s", diff)
			}

			tag, _, err := apdu.Split(tt.expected)
			if err != nil || tag != tt.tag {
				t.Errorf("Split(%X) = %s, %v; want %s", tt.expected, tag, err, tt.tag)
			}
			if got := ai.Stats().Sent; got != 1 {
				t.Errorf("Stats().Sent = %d; want 1", got)
			}
		})
	}
}

func TestAI_Requests_DecodeAsBERTLV(t *testing.T) {
	sender := &recordingSender{}
	ai := mustAI(t, sender)
	require.NoError(t, ai.Enquiry(1))
	require.NoError(t, ai.EnterMenu(1))

	for _, s := range sender.all() {
		packets, err := bertlv.Decode(s.Data)
		require.NoError(t, err)
		require.Len(t, packets, 1)
		assert.Empty(t, packets[0].Value)

		tag, err := apdu.ParseTagHex(packets[0].Tag)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(tag.Verbose(), "[9F802"))
	}
}

func TestAI_DataRateInfo_Invalid(t *testing.T) {
	sender := &recordingSender{}
	ai := mustAI(t, sender)

	err := ai.DataRateInfo(testSession, DataRate(7))
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Empty(t, sender.all())
}

func TestAI_TransportFailure(t *testing.T) {
	sender := &recordingSender{err: errLinkDown}
	ai := mustAI(t, sender)

	err := ai.Enquiry(testSession)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, errLinkDown)
	assert.Equal(t, uint64(0), ai.Stats().Sent)
}

func TestAI_Message_ShortData(t *testing.T) {
	ai := mustAI(t, &recordingSender{})

	for _, data := range [][]byte{nil, {}, {0x9F}, {0x9F, 0x80}} {
		err := ai.Message(testSlot, testSession, uint32(ResourceApplicationInformation), data)
		assert.ErrorIs(t, err, ErrShortData, "data %X", data)
	}
	assert.Equal(t, uint64(4), ai.Stats().Rejected)
}

func TestAI_Message_UnexpectedTag(t *testing.T) {
	logger, logs := observedLogger()
	ai := mustAI(t, &recordingSender{}, WithLogger(logger))

	called := false
	ai.RegisterHandler(func(uint8, uint16, AppInfo) error {
		called = true
		return nil
	})

	for _, data := range [][]byte{apdu.Hex("000000"), apdu.Hex("9F8020 00"), apdu.Hex("9F8031 00")} {
		err := ai.Message(testSlot, testSession, 0, data)
		assert.ErrorIs(t, err, ErrUnexpectedTag, "data %X", data)
	}
	assert.False(t, called)

	entries := logs.FilterMessage("received unexpected tag").All()
	require.Len(t, entries, 3)
	assert.Equal(t, "000000", entries[0].ContextMap()["tag"])
}

func TestAI_Message_AppInfo(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected AppInfo
	}{
		{
			name: "Empty Menu",
			data: apdu.Hex("9F8021 06", "01 0001 0002 00"),
			expected: AppInfo{
				ApplicationType:  ApplicationTypeConditionalAccess,
				ManufacturerID:   1,
				ManufacturerCode: 2,
				MenuString:       []byte{},
			},
		},
		{
			name: "With Menu",
			data: apdu.Hex("9F8021 0A", "01 4A20 3301 04", "4D454E55"),
			expected: AppInfo{
				ApplicationType:  ApplicationTypeConditionalAccess,
				ManufacturerID:   0x4A20,
				ManufacturerCode: 0x3301,
				MenuString:       []byte("MENU"),
			},
		},
		{
			name: "Long Form Length",
			data: apdu.Hex("9F8021 81 0A", "02 0001 0002 04", "4D454E55"),
			expected: AppInfo{
				ApplicationType:  ApplicationTypeEPG,
				ManufacturerID:   1,
				ManufacturerCode: 2,
				MenuString:       []byte("MENU"),
			},
		},
		{
			name: "Trailing Bytes After Declared Length",
			data: apdu.Hex("9F8021 07", "01 0001 0002 01 41", "FFFF"),
			expected: AppInfo{
				ApplicationType:  ApplicationTypeConditionalAccess,
				ManufacturerID:   1,
				ManufacturerCode: 2,
				MenuString:       []byte("A"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ai := mustAI(t, &recordingSender{})

			var got []AppInfo
			ai.RegisterHandler(func(slot uint8, session uint16, info AppInfo) error {
				if slot != testSlot || session != testSession {
					t.Errorf("handler called with slot %d session %d", slot, session)
				}
				info.MenuString = append([]byte{}, info.MenuString...)
				got = append(got, info)
				return nil
			})

			if err := ai.Message(testSlot, testSession, uint32(ResourceApplicationInformation), tt.data); err != nil {
				t.Fatalf("Message failed: %v", err)
			}
			if diff := cmp.Diff([]AppInfo{tt.expected}, got); diff != "" {
				t.Errorf("AppInfo mismatch (-want +got):\n%s", diff)
			}
			if d := ai.Stats().Delivered; d != 1 {
				t.Errorf("Stats().Delivered = %d; want 1", d)
			}
		})
	}
}

func TestAI_Message_ClampMenuLength(t *testing.T) {
	logger, logs := observedLogger()
	ai := mustAI(t, &recordingSender{}, WithLogger(logger))

	var got []AppInfo
	ai.RegisterHandler(func(_ uint8, _ uint16, info AppInfo) error {
		got = append(got, info)
		return nil
	})

	tests := []struct {
		name    string
		data    []byte
		wantLen int
	}{
		{"Declared Six, Menu 200", apdu.Hex("9F8021 06", "01 0001 0002 C8"), 0},
		{"Declared Eight, Menu 5", apdu.Hex("9F8021 08", "01 0001 0002 05 4142"), 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = nil
			require.NoError(t, ai.Message(testSlot, testSession, 0, tt.data))
			require.Len(t, got, 1)
			assert.Len(t, got[0].MenuString, tt.wantLen)
			assert.Equal(t, uint8(1), uint8(got[0].ApplicationType))
		})
	}

	assert.Equal(t, uint64(2), ai.Stats().Clamped)
	assert.Equal(t, 2, logs.FilterMessage("received bad embedded length - adjusting").Len())
}

func TestAI_Message_RejectPolicy(t *testing.T) {
	ai := mustAI(t, &recordingSender{}, WithLengthPolicy(PolicyReject))

	called := false
	ai.RegisterHandler(func(uint8, uint16, AppInfo) error {
		called = true
		return nil
	})

	err := ai.Message(testSlot, testSession, 0, apdu.Hex("9F8021 06", "01 0001 0002 C8"))
	assert.ErrorIs(t, err, ErrShortData)
	assert.False(t, called)
	assert.Equal(t, PolicyReject, ai.Policy())

	stats := ai.Stats()
	assert.Equal(t, uint64(1), stats.Rejected)
	assert.Equal(t, uint64(0), stats.Clamped)
}

func TestAI_Message_InvalidPayload(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"Declared Below Minimum", apdu.Hex("9F8021 05", "01 0001 0002"), ErrShortData},
		{"Declared Zero", apdu.Hex("9F8021 00"), ErrShortData},
		{"Declared Exceeds Buffer", apdu.Hex("9F8021 10", "01 0001 0002 00"), ErrShortData},
		{"Missing Length", apdu.Hex("9F8021"), ErrMalformedLength},
		{"Truncated Long Form", apdu.Hex("9F8021 82 00"), ErrMalformedLength},
		{"Length Too Wide", apdu.Hex("9F8021 83 000006", "01 0001 0002 00"), ErrMalformedLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ai := mustAI(t, &recordingSender{})
			called := false
			ai.RegisterHandler(func(uint8, uint16, AppInfo) error {
				called = true
				return nil
			})

			if err := ai.Message(testSlot, testSession, 0, tt.data); !errors.Is(err, tt.wantErr) {
				t.Errorf("Message(%X) error = %v; want %v", tt.data, err, tt.wantErr)
			}
			if called {
				t.Error("handler must not run on invalid payload")
			}
		})
	}
}

func TestAI_Message_LengthLogs(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		message string
	}{
		{"Declared Exceeds Buffer", apdu.Hex("9F8021 10", "01 0001 0002 00"), "received short data"},
		{"Truncated Long Form", apdu.Hex("9F8021 82 00"), "received data with invalid length"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, logs := observedLogger()
			ai := mustAI(t, &recordingSender{}, WithLogger(logger))

			if err := ai.Message(testSlot, testSession, 0, tt.data); err == nil {
				t.Fatalf("Message(%X) succeeded; want error", tt.data)
			}
			entries := logs.All()
			if len(entries) != 1 || entries[0].Message != tt.message {
				t.Errorf("logged %v; want one %q entry", entries, tt.message)
			}
		})
	}
}

func TestAI_Message_NoHandler(t *testing.T) {
	ai := mustAI(t, &recordingSender{})

	err := ai.Message(testSlot, testSession, 0, apdu.Hex("9F8021 06", "01 0001 0002 00"))
	assert.NoError(t, err)
	assert.Equal(t, uint64(0), ai.Stats().Delivered)
}

func TestAI_Message_HandlerErrorPropagates(t *testing.T) {
	ai := mustAI(t, &recordingSender{})
	errApp := errors.New("application refused")
	ai.RegisterHandler(func(uint8, uint16, AppInfo) error { return errApp })

	err := ai.Message(testSlot, testSession, 0, apdu.Hex("9F8021 06", "01 0001 0002 00"))
	assert.Same(t, errApp, err)
}

func TestAI_Message_HandlerReentry(t *testing.T) {
	sender := &recordingSender{}
	ai := mustAI(t, sender)

	ai.RegisterHandler(func(_ uint8, session uint16, _ AppInfo) error {
		ai.RegisterHandler(nil)
		return ai.EnterMenu(session)
	})

	data := apdu.Hex("9F8021 06", "01 0001 0002 00")
	require.NoError(t, ai.Message(testSlot, testSession, 0, data))
	require.NoError(t, ai.Message(testSlot, testSession, 0, data))

	sent := sender.all()
	require.Len(t, sent, 1)
	assert.Equal(t, apdu.Hex("9F8022 00"), sent[0].Data)
}

func TestAI_Message_MenuStringCannotGrowIntoBuffer(t *testing.T) {
	ai := mustAI(t, &recordingSender{})
	data := apdu.Hex("9F8021 07", "01 0001 0002 01 41", "EE")

	ai.RegisterHandler(func(_ uint8, _ uint16, info AppInfo) error {
		_ = append(info.MenuString, 'X')
		return nil
	})
	require.NoError(t, ai.Message(testSlot, testSession, 0, data))
	assert.Equal(t, byte(0xEE), data[len(data)-1])
}
