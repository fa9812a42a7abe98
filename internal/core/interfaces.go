package core

import (
	"context"
	"time"
)

// StateFlag is a PC/SC reader state bitset.
type StateFlag uint32

// Reader state bits, values as defined by PC/SC.
const (
	StateUnaware     StateFlag = 0x0000
	StateIgnore      StateFlag = 0x0001
	StateChanged     StateFlag = 0x0002
	StateUnknown     StateFlag = 0x0004
	StateUnavailable StateFlag = 0x0008
	StateEmpty       StateFlag = 0x0010
	StatePresent     StateFlag = 0x0020
	StateAtrMatch    StateFlag = 0x0040
	StateExclusive   StateFlag = 0x0080
	StateInUse       StateFlag = 0x0100
	StateMute        StateFlag = 0x0200
	StateUnpowered   StateFlag = 0x0400
)

// InfiniteTimeout makes GetStatusChange block until the reader state changes.
const InfiniteTimeout time.Duration = -1

// ReaderState tracks one reader across GetStatusChange calls.
type ReaderState struct {
	Reader       string
	CurrentState StateFlag
	EventState   StateFlag
}

// Present reports whether the last observed event state includes a card.
func (rs *ReaderState) Present() bool {
	return rs.EventState&StatePresent != 0
}

// Sync makes the last observed state the tracked one, so the next query
// blocks until the state changes again.
func (rs *ReaderState) Sync() {
	rs.CurrentState = rs.EventState
}

// SmartCardContext represents an established PC/SC context
type SmartCardContext interface {
	ListReaders() ([]string, error)
	GetStatusChange(states []ReaderState, timeout time.Duration) error
	Connect(reader string, shareMode uint32, protocol uint32) (SmartCard, error)
	// Cancel aborts a GetStatusChange blocked on this context.
	Cancel() error
	Release() error
}

// SmartCard represents a connected smart card for transmitting commands
type SmartCard interface {
	Transmit(cmd []byte) ([]byte, error)
	Disconnect(disposition uint32) error
}

// ContextFactory creates SmartCardContext instances
// This allows for dependency injection and mocking in tests
type ContextFactory interface {
	EstablishContext() (SmartCardContext, error)
}

// CardIDReader reads the serial number of the next card presented.
// Used by the API layer for dependency injection and mocking in tests.
type CardIDReader interface {
	ReadCardID(ctx context.Context) (*CardRead, error)
}

// ReaderLister enumerates readers without waiting for a card.
type ReaderLister interface {
	ListReaders() ([]string, error)
}
