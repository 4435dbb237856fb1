//go:build !linux || !cgo

package media

import (
	"errors"
	"log/slog"

	"github.com/pion/webrtc/v4"
)

// errNoCapture is returned where this build has no capture drivers.
var errNoCapture = errors.New("local capture is not supported on this platform")

type capturer struct{}

func newCapturer() *capturer { return &capturer{} }

func (*capturer) registerCodecs(me *webrtc.MediaEngine) error {
	return me.RegisterDefaultCodecs()
}

func (*capturer) capture(Constraints, *slog.Logger) ([]webrtc.TrackLocal, []closer, error) {
	return nil, nil, errNoCapture
}
