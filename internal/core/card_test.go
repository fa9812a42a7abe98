package core_test

import (
	"errors"
	"regexp"
	"testing"

	"github.com/SimplyPrint/nfc-reader/internal/core"
	"github.com/SimplyPrint/nfc-reader/internal/core/coretest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatSerial(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{"empty", []byte{}, ""},
		{"nil", nil, ""},
		{"leading zero and max", []byte{0x00, 0xFF, 0x0A}, "00FF0A"},
		{"uid with status word", []byte{0x04, 0x42, 0x48, 0x8A, 0x90, 0x00}, "0442488A9000"},
		{"single byte", []byte{0x7}, "07"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, core.FormatSerial(tt.in))
		})
	}
}

func TestFormatSerialAllBytes(t *testing.T) {
	hexRE := regexp.MustCompile(`^[0-9A-F]*$`)
	seen := make(map[string]byte, 256)

	for i := 0; i < 256; i++ {
		got := core.FormatSerial([]byte{byte(i)})
		require.Len(t, got, 2)
		require.Regexp(t, hexRE, got)
		if prev, dup := seen[got]; dup {
			t.Fatalf("bytes %02x and %02x both format as %q", prev, i, got)
		}
		seen[got] = byte(i)
	}

	long := make([]byte, core.MaxBufferSize)
	for i := range long {
		long[i] = byte(i * 7)
	}
	got := core.FormatSerial(long)
	assert.Len(t, got, 2*len(long))
	assert.Regexp(t, hexRE, got)
}

func TestConnectUsesSharedAnyProtocol(t *testing.T) {
	sc := coretest.NewMockContext()

	card, err := core.Connect(sc, "Reader A")
	require.NoError(t, err)
	assert.NotNil(t, card)
	assert.Equal(t, []string{"Reader A"}, sc.ConnectedTo())
	assert.Equal(t, []coretest.ConnectCall{
		{Reader: "Reader A", ShareMode: core.ShareShared, Protocol: core.ProtocolAny},
	}, sc.Connects())
}

func TestConnectFailure(t *testing.T) {
	sc := coretest.NewMockContext().WithConnectError(errors.New("card removed"))

	_, err := core.Connect(sc, "Reader A")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrCardConnectFailed)
	assert.Equal(t, "Context::connect failed: card removed", err.Error())
}

func TestReadSerialNumberSendsGetData(t *testing.T) {
	card := coretest.NewMockCard([]byte{0x12, 0x34, 0x56, 0x78})

	rsp, err := core.ReadSerialNumber(card)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x12, 0x34, 0x56, 0x78}, rsp)

	sent := card.Transmitted()
	require.Len(t, sent, 1)
	assert.Equal(t, []byte{0xFF, 0xCA, 0x00, 0x00, 0x00}, sent[0])
}

func TestReadSerialNumberForwardsCardErrorStatus(t *testing.T) {
	// 6A81: function not supported. Still a driver-level success.
	card := coretest.NewMockCard([]byte{0x6A, 0x81})

	rsp, err := core.ReadSerialNumber(card)
	require.NoError(t, err)
	assert.Equal(t, "6A81", core.FormatSerial(rsp))
}

func TestReadSerialNumberTransmitFailure(t *testing.T) {
	driverErr := errors.New("timeout")
	card := coretest.NewMockCard(nil).WithError(driverErr)

	_, err := core.ReadSerialNumber(card)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTransmitFailed)
	assert.ErrorIs(t, err, driverErr)
	assert.Equal(t, "Card::transmit failed: timeout", err.Error())
}
