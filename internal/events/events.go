// Package events fans successful card reads out to interested parties.
package events

import (
	"errors"
	"time"
)

// CardRead is published after a serial number was read.
type CardRead struct {
	RequestID string    `json:"requestId"`
	Reader    string    `json:"reader"`
	Serial    string    `json:"serial"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher delivers card-read events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	PublishCardRead(ev CardRead) error
}

// Multi publishes to every publisher in order and joins their errors.
type Multi []Publisher

func (m Multi) PublishCardRead(ev CardRead) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.PublishCardRead(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards every event.
type Nop struct{}

func (Nop) PublishCardRead(CardRead) error { return nil }
