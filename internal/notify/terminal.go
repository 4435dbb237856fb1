package notify

import (
	"context"
	"fmt"
	"io"

	"github.com/BioHazard786/doorcall/internal/ui"
)

// Terminal prints the room in a box.
type Terminal struct {
	w io.Writer
}

func NewTerminal(w io.Writer) *Terminal {
	return &Terminal{w: w}
}

func (t *Terminal) Notify(_ context.Context, n Notice) error {
	_, err := fmt.Fprintln(t.w, ui.NewRoomInfo(n.Room, n.URL).View())
	return err
}
