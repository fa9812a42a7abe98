// Package coretest provides scripted PC/SC contexts and cards for tests.
package coretest

import (
	"errors"
	"sync"
	"time"

	"github.com/SimplyPrint/nfc-reader/internal/core"
)

// ErrCancelled is returned by a blocking GetStatusChange after Cancel.
var ErrCancelled = errors.New("the action was cancelled by an SCardCancel request")

// MockFactory implements core.ContextFactory.
type MockFactory struct {
	mu          sync.Mutex
	ctx         *MockContext
	err         error
	established int
}

// NewMockFactory returns a factory that hands out ctx on every call.
func NewMockFactory(ctx *MockContext) *MockFactory {
	return &MockFactory{ctx: ctx}
}

// WithError makes EstablishContext fail.
func (f *MockFactory) WithError(err error) *MockFactory {
	f.err = err
	return f
}

func (f *MockFactory) EstablishContext() (core.SmartCardContext, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.established++
	if f.err != nil {
		return nil, f.err
	}
	return f.ctx, nil
}

// Established returns how many times EstablishContext was called.
func (f *MockFactory) Established() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.established
}

// MockContext implements core.SmartCardContext with a scripted sequence of
// reader event states.
type MockContext struct {
	mu         sync.Mutex
	readers    []string
	listErr    error
	events     []core.StateFlag
	statusErr  error
	block      bool
	connectErr error
	card       *MockCard

	polls       []core.StateFlag // CurrentState seen by each GetStatusChange
	timeouts    []time.Duration
	connectedTo []string
	connects    []ConnectCall
	released    bool
	cancel      chan struct{}
	cancelled   bool
}

// NewMockContext creates a context with one reader and a present card.
func NewMockContext() *MockContext {
	return &MockContext{
		readers: []string{"ACS ACR122U PICC Interface"},
		events:  []core.StateFlag{core.StatePresent | core.StateChanged},
		card:    NewMockCard([]byte{0x04, 0x42, 0x48, 0x8A, 0x90, 0x00}),
		cancel:  make(chan struct{}),
	}
}

// WithReaders sets the readers reported by ListReaders.
func (m *MockContext) WithReaders(readers ...string) *MockContext {
	m.readers = readers
	return m
}

// WithListError makes ListReaders fail.
func (m *MockContext) WithListError(err error) *MockContext {
	m.listErr = err
	return m
}

// WithEvents scripts the event state reported by successive GetStatusChange
// calls. Once the script is exhausted further calls block until Cancel.
func (m *MockContext) WithEvents(events ...core.StateFlag) *MockContext {
	m.events = events
	return m
}

// WithStatusError makes the first GetStatusChange call after the scripted
// events fail with err.
func (m *MockContext) WithStatusError(err error) *MockContext {
	m.statusErr = err
	return m
}

// Blocking makes every GetStatusChange block until Cancel.
func (m *MockContext) Blocking() *MockContext {
	m.block = true
	return m
}

// WithConnectError makes Connect fail.
func (m *MockContext) WithConnectError(err error) *MockContext {
	m.connectErr = err
	return m
}

// WithCard sets the card returned by Connect.
func (m *MockContext) WithCard(card *MockCard) *MockContext {
	m.card = card
	return m
}

func (m *MockContext) ListReaders() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]string, len(m.readers))
	copy(out, m.readers)
	return out, nil
}

func (m *MockContext) GetStatusChange(states []core.ReaderState, timeout time.Duration) error {
	m.mu.Lock()
	m.polls = append(m.polls, states[0].CurrentState)
	m.timeouts = append(m.timeouts, timeout)
	if !m.block && len(m.events) > 0 {
		states[0].EventState = m.events[0]
		m.events = m.events[1:]
		m.mu.Unlock()
		return nil
	}
	if !m.block && m.statusErr != nil {
		err := m.statusErr
		m.mu.Unlock()
		return err
	}
	cancel := m.cancel
	m.mu.Unlock()

	<-cancel
	return ErrCancelled
}

func (m *MockContext) Connect(reader string, shareMode uint32, protocol uint32) (core.SmartCard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectedTo = append(m.connectedTo, reader)
	m.connects = append(m.connects, ConnectCall{Reader: reader, ShareMode: shareMode, Protocol: protocol})
	if m.connectErr != nil {
		return nil, m.connectErr
	}
	return m.card, nil
}

func (m *MockContext) Cancel() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.cancelled {
		m.cancelled = true
		close(m.cancel)
	}
	return nil
}

func (m *MockContext) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released = true
	return nil
}

// Polls returns the tracked CurrentState passed to each GetStatusChange call.
func (m *MockContext) Polls() []core.StateFlag {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.StateFlag, len(m.polls))
	copy(out, m.polls)
	return out
}

// Timeouts returns the timeout passed to each GetStatusChange call.
func (m *MockContext) Timeouts() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.timeouts...)
}

// ConnectCall records the arguments of one Connect.
type ConnectCall struct {
	Reader    string
	ShareMode uint32
	Protocol  uint32
}

// Connects returns the arguments of every Connect call.
func (m *MockContext) Connects() []ConnectCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ConnectCall(nil), m.connects...)
}

// ConnectedTo returns the readers passed to Connect.
func (m *MockContext) ConnectedTo() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.connectedTo...)
}

// Released reports whether Release was called.
func (m *MockContext) Released() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.released
}

// MockCard implements core.SmartCard.
type MockCard struct {
	mu           sync.Mutex
	response     []byte
	err          error
	transmitted  [][]byte
	disconnected bool
}

// NewMockCard returns a card that answers every command with response.
func NewMockCard(response []byte) *MockCard {
	return &MockCard{response: response}
}

// WithError makes Transmit fail.
func (c *MockCard) WithError(err error) *MockCard {
	c.err = err
	return c
}

func (c *MockCard) Transmit(cmd []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transmitted = append(c.transmitted, append([]byte(nil), cmd...))
	if c.disconnected {
		return nil, errors.New("card disconnected")
	}
	if c.err != nil {
		return nil, c.err
	}
	return append([]byte(nil), c.response...), nil
}

func (c *MockCard) Disconnect(disposition uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
	return nil
}

// Transmitted returns every command sent to the card.
func (c *MockCard) Transmitted() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.transmitted...)
}

// Disconnected reports whether Disconnect was called.
func (c *MockCard) Disconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}
