package core

import (
	"context"
	"fmt"

	"github.com/SimplyPrint/nfc-reader/internal/logging"
)

// Establish opens a fresh PC/SC context. The caller owns it and must Release it.
func Establish(factory ContextFactory) (SmartCardContext, error) {
	sc, err := factory.EstablishContext()
	if err != nil {
		return nil, newReaderError(KindSubsystemUnavailable, err)
	}
	return sc, nil
}

// ListReaders returns the readers registered with the context, in the order
// the driver reports them.
func ListReaders(sc SmartCardContext) ([]string, error) {
	readers, err := sc.ListReaders()
	if err != nil {
		return nil, newReaderError(KindEnumerationFailed, err)
	}

	logging.Info(logging.CatCard, fmt.Sprintf("Found %d readers", len(readers)), map[string]any{
		"readers": readers,
	})
	return readers, nil
}

// SelectReader picks the first reader. Deployments are assumed to have a
// single reader attached.
func SelectReader(readers []string) (string, error) {
	if len(readers) == 0 {
		return "", ErrNoReaderFound
	}
	return readers[0], nil
}

// AwaitPresence blocks until a card is present on reader.
//
// There is no timeout: the wait ends when a card is presented or the driver
// reports an error. Pass a cancellable ctx to abort the wait; the blocked
// status query is then cancelled through the PC/SC context and the returned
// error wraps ctx.Err().
func AwaitPresence(ctx context.Context, sc SmartCardContext, reader string) error {
	if done := ctx.Done(); done != nil {
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			select {
			case <-done:
				_ = sc.Cancel()
			case <-stop:
			}
		}()
	}

	states := []ReaderState{{Reader: reader, CurrentState: StateUnaware}}
	for {
		if err := ctx.Err(); err != nil {
			return newReaderError(KindStatusQueryFailed, err)
		}
		if err := sc.GetStatusChange(states, InfiniteTimeout); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return newReaderError(KindStatusQueryFailed, ctxErr)
			}
			return newReaderError(KindStatusQueryFailed, err)
		}

		logging.Debug(logging.CatCard, "Reader state", map[string]any{
			"reader": reader,
			"state":  fmt.Sprintf("0x%04x", uint32(states[0].EventState)),
		})

		if states[0].Present() {
			return nil
		}
		states[0].Sync()
	}
}
