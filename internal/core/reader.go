package core

import (
	"context"

	"github.com/SimplyPrint/nfc-reader/internal/logging"
)

// CardRead is the result of one successful read.
type CardRead struct {
	Reader string `json:"reader"`
	Serial string `json:"serial"`
	Raw    []byte `json:"-"`
}

// Reader reads card serial numbers. It keeps no PC/SC state between calls:
// every ReadCardID establishes, uses and releases its own context.
type Reader struct {
	factory ContextFactory
}

// NewReader returns a Reader backed by factory. A nil factory uses real PC/SC.
func NewReader(factory ContextFactory) *Reader {
	if factory == nil {
		factory = DefaultContextFactory{}
	}
	return &Reader{factory: factory}
}

// ReadCardID waits for a card on the first reader and returns its serial
// number. It blocks until a card is presented unless ctx is cancelled.
func (r *Reader) ReadCardID(ctx context.Context) (*CardRead, error) {
	sc, err := Establish(r.factory)
	if err != nil {
		return nil, err
	}
	defer sc.Release()

	readers, err := ListReaders(sc)
	if err != nil {
		return nil, err
	}

	reader, err := SelectReader(readers)
	if err != nil {
		return nil, err
	}

	logging.Debug(logging.CatCard, "Waiting for card", map[string]any{
		"reader": reader,
	})
	if err := AwaitPresence(ctx, sc, reader); err != nil {
		return nil, err
	}

	card, err := Connect(sc, reader)
	if err != nil {
		return nil, err
	}
	defer card.Disconnect(LeaveCard)

	rsp, err := ReadSerialNumber(card)
	if err != nil {
		return nil, err
	}

	return &CardRead{
		Reader: reader,
		Serial: FormatSerial(rsp),
		Raw:    rsp,
	}, nil
}

// ListReaders enumerates readers on a short-lived context, for diagnostics.
func (r *Reader) ListReaders() ([]string, error) {
	sc, err := Establish(r.factory)
	if err != nil {
		return nil, err
	}
	defer sc.Release()

	readers, err := sc.ListReaders()
	if err != nil {
		return nil, newReaderError(KindEnumerationFailed, err)
	}
	return readers, nil
}
