package core

import (
	"errors"
	"time"

	"github.com/ebfe/scard"
)

// Share modes, protocols and dispositions passed through to the driver.
const (
	ShareShared = uint32(scard.ShareShared)
	ProtocolAny = uint32(scard.ProtocolAny)
	LeaveCard   = uint32(scard.LeaveCard)
)

// DefaultContextFactory is the production factory that uses real PC/SC
type DefaultContextFactory struct{}

// EstablishContext opens a new PC/SC context with system scope.
func (DefaultContextFactory) EstablishContext() (SmartCardContext, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, err
	}
	return &pcscContext{ctx: ctx}, nil
}

// pcscContext adapts *scard.Context to SmartCardContext.
type pcscContext struct {
	ctx *scard.Context
}

func (c *pcscContext) ListReaders() ([]string, error) {
	readers, err := c.ctx.ListReaders()
	if errors.Is(err, scard.ErrNoReadersAvailable) {
		// pcsclite reports an empty reader group as an error
		return nil, nil
	}
	return readers, err
}

func (c *pcscContext) GetStatusChange(states []ReaderState, timeout time.Duration) error {
	rs := make([]scard.ReaderState, len(states))
	for i, s := range states {
		rs[i] = scard.ReaderState{
			Reader:       s.Reader,
			CurrentState: scard.StateFlag(s.CurrentState),
		}
	}

	if err := c.ctx.GetStatusChange(rs, timeout); err != nil {
		return err
	}

	for i := range states {
		states[i].EventState = StateFlag(rs[i].EventState)
	}
	return nil
}

func (c *pcscContext) Connect(reader string, shareMode uint32, protocol uint32) (SmartCard, error) {
	card, err := c.ctx.Connect(reader, scard.ShareMode(shareMode), scard.Protocol(protocol))
	if err != nil {
		return nil, err
	}
	return &pcscCard{card: card}, nil
}

func (c *pcscContext) Cancel() error {
	return c.ctx.Cancel()
}

func (c *pcscContext) Release() error {
	return c.ctx.Release()
}

// pcscCard adapts *scard.Card to SmartCard.
type pcscCard struct {
	card *scard.Card
}

func (c *pcscCard) Transmit(cmd []byte) ([]byte, error) {
	return c.card.Transmit(cmd)
}

func (c *pcscCard) Disconnect(disposition uint32) error {
	return c.card.Disconnect(scard.Disposition(disposition))
}
