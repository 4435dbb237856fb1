// Package trigger decides when the next call starts.
package trigger

import (
	"bufio"
	"context"
	"errors"
	"io"
	"sync"
)

// ErrExhausted is returned by Wait when no further trigger will ever come.
var ErrExhausted = errors.New("no more triggers")

// Trigger blocks until the next call should start.
type Trigger interface {
	Wait(ctx context.Context) error
}

// Once fires a single time and is exhausted afterwards.
type Once struct {
	mu    sync.Mutex
	fired bool
}

func (o *Once) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fired {
		return ErrExhausted
	}
	o.fired = true
	return nil
}

// Line fires once per line read from r. EOF exhausts it.
type Line struct {
	lines chan struct{}
	done  chan struct{}
	err   error
}

// NewLine starts reading r in the background.
func NewLine(r io.Reader) *Line {
	l := &Line{
		lines: make(chan struct{}),
		done:  make(chan struct{}),
	}
	go l.read(r)
	return l
}

func (l *Line) read(r io.Reader) {
	defer close(l.done)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		l.lines <- struct{}{}
	}
	l.err = sc.Err()
}

func (l *Line) Wait(ctx context.Context) error {
	select {
	case <-l.lines:
		return nil
	case <-l.done:
		if l.err != nil {
			return l.err
		}
		return ErrExhausted
	case <-ctx.Done():
		return ctx.Err()
	}
}
