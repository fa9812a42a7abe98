package core

import "fmt"

// ErrorKind identifies the stage of a card read that failed.
type ErrorKind int

const (
	KindSubsystemUnavailable ErrorKind = iota + 1
	KindEnumerationFailed
	KindNoReaderFound
	KindStatusQueryFailed
	KindCardConnectFailed
	KindTransmitFailed
)

// Operation names the driver call behind each kind. These strings are part of
// the HTTP error body clients match on.
func (k ErrorKind) Operation() string {
	switch k {
	case KindSubsystemUnavailable:
		return "Context::establish"
	case KindEnumerationFailed:
		return "Context::list_readers"
	case KindNoReaderFound:
		return "Context::select_reader"
	case KindStatusQueryFailed:
		return "Context::get_status_change"
	case KindCardConnectFailed:
		return "Context::connect"
	case KindTransmitFailed:
		return "Card::transmit"
	default:
		return "unknown"
	}
}

func (k ErrorKind) String() string {
	switch k {
	case KindSubsystemUnavailable:
		return "SubsystemUnavailable"
	case KindEnumerationFailed:
		return "EnumerationFailed"
	case KindNoReaderFound:
		return "NoReaderFound"
	case KindStatusQueryFailed:
		return "StatusQueryFailed"
	case KindCardConnectFailed:
		return "CardConnectFailed"
	case KindTransmitFailed:
		return "TransmitFailed"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// ReaderError is returned by every stage of a card read. Err holds the
// driver error and is nil only for KindNoReaderFound.
type ReaderError struct {
	Kind ErrorKind
	Err  error
}

func (e *ReaderError) Error() string {
	if e.Kind == KindNoReaderFound {
		return "No reader found"
	}
	if e.Err == nil {
		return e.Kind.Operation() + " failed"
	}
	return fmt.Sprintf("%s failed: %v", e.Kind.Operation(), e.Err)
}

func (e *ReaderError) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels below, so callers can write
// errors.Is(err, core.ErrTransmitFailed).
func (e *ReaderError) Is(target error) bool {
	t, ok := target.(*ReaderError)
	if !ok || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrSubsystemUnavailable = &ReaderError{Kind: KindSubsystemUnavailable}
	ErrEnumerationFailed    = &ReaderError{Kind: KindEnumerationFailed}
	ErrNoReaderFound        = &ReaderError{Kind: KindNoReaderFound}
	ErrStatusQueryFailed    = &ReaderError{Kind: KindStatusQueryFailed}
	ErrCardConnectFailed    = &ReaderError{Kind: KindCardConnectFailed}
	ErrTransmitFailed       = &ReaderError{Kind: KindTransmitFailed}
)

func newReaderError(kind ErrorKind, err error) *ReaderError {
	return &ReaderError{Kind: kind, Err: err}
}
