// Package notify tells a human which room to join.
package notify

import (
	"context"
	"errors"
)

// Notice is what a notifier delivers: the room and, when a web client is
// configured, a link that opens it.
type Notice struct {
	Room string `json:"room"`
	URL  string `json:"url,omitempty"`
}

// Notifier delivers a notice once per call, right after the room exists.
type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

// Multi delivers to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notice) error {
	var errs []error
	for _, nt := range m {
		if err := nt.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, n Notice) error

func (f Func) Notify(ctx context.Context, n Notice) error { return f(ctx, n) }
