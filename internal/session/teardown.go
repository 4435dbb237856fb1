package session

import (
	"errors"
	"log/slog"
)

type release struct {
	name string
	fn   func() error
}

// teardown releases resources in reverse acquisition order. Each release
// runs at most once, so running the stack again is a no-op.
type teardown struct {
	stack []release
	log   *slog.Logger
}

func (t *teardown) push(name string, fn func() error) {
	t.stack = append(t.stack, release{name: name, fn: fn})
}

func (t *teardown) len() int { return len(t.stack) }

func (t *teardown) run() error {
	var errs []error
	for len(t.stack) > 0 {
		r := t.stack[len(t.stack)-1]
		t.stack = t.stack[:len(t.stack)-1]

		if err := r.fn(); err != nil {
			t.log.Warn("release failed", "resource", r.name, "error", err)
			errs = append(errs, err)
			continue
		}
		t.log.Debug("released", "resource", r.name)
	}
	return errors.Join(errs...)
}
