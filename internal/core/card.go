package core

import "fmt"

// MaxBufferSize is the largest short APDU response PC/SC defines
// (256 data bytes plus status word, with headroom), so the longest reply
// FormatSerial should ever see. Transmit does not use it: scard allocates
// its own extended-length receive buffer.
const MaxBufferSize = 264

// GetDataCommand asks the reader for the UID of the card in the field:
// FF CA 00 00 00 (GET DATA, all available bytes).
var GetDataCommand = []byte{0xFF, 0xCA, 0x00, 0x00, 0x00}

// Connect opens a shared connection to the card on reader, accepting any
// protocol. Only call after AwaitPresence has returned.
func Connect(sc SmartCardContext, reader string) (SmartCard, error) {
	card, err := sc.Connect(reader, ShareShared, ProtocolAny)
	if err != nil {
		return nil, newReaderError(KindCardConnectFailed, err)
	}
	return card, nil
}

// ReadSerialNumber sends GET DATA and returns the response exactly as the
// driver reported it, status word included.
//
// The status word is not checked: a card that answers 6A81 yields "6A81".
func ReadSerialNumber(card SmartCard) ([]byte, error) {
	cmd := make([]byte, len(GetDataCommand))
	copy(cmd, GetDataCommand)

	rsp, err := card.Transmit(cmd)
	if err != nil {
		return nil, newReaderError(KindTransmitFailed, err)
	}
	return rsp, nil
}

// FormatSerial renders b as uppercase hex, two digits per byte, no separator.
func FormatSerial(b []byte) string {
	return fmt.Sprintf("%X", b)
}
