// Package media owns local capture and the sink for remote tracks.
package media

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/BioHazard786/doorcall/internal/callerr"
	"github.com/BioHazard786/doorcall/internal/config"
	"github.com/pion/webrtc/v4"
)

// Constraints describe what to capture.
type Constraints struct {
	Video       bool
	Audio       bool
	Width       int
	Height      int
	FPS         int
	ReceiveOnly bool
}

// ConstraintsFromConfig maps the media section of the config.
func ConstraintsFromConfig(mc config.MediaConfig) Constraints {
	return Constraints{
		Video:       mc.Video,
		Audio:       mc.Audio,
		Width:       mc.Width,
		Height:      mc.Height,
		FPS:         mc.FPS,
		ReceiveOnly: mc.ReceiveOnly,
	}
}

// Options configure a Bridge.
type Options struct {
	Constraints Constraints
	// RecordDir is where remote tracks are written, one subdirectory per
	// session. Empty means remote media is drained and discarded.
	RecordDir string
	Session   string
	Logger    *slog.Logger
}

// Bridge acquires local tracks for one call and sinks the remote ones.
type Bridge struct {
	opts Options
	dev  *capturer
	log  *slog.Logger

	mu       sync.Mutex
	local    []closer
	sinks    []*sink
	released bool
}

type closer interface {
	Close() error
}

// NewBridge creates a bridge. No device is opened until AcquireLocalTracks.
func NewBridge(opts Options) *Bridge {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{
		opts: opts,
		dev:  newCapturer(),
		log:  log.With("component", "media"),
	}
}

// RegisterCodecs installs the codecs local capture produces into me.
func (b *Bridge) RegisterCodecs(me *webrtc.MediaEngine) error {
	return b.dev.registerCodecs(me)
}

// AcquireLocalTracks opens the capture devices. In receive-only mode it
// returns no tracks and no error.
func (b *Bridge) AcquireLocalTracks(ctx context.Context) ([]webrtc.TrackLocal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.released {
		return nil, callerr.Device("acquire local tracks", callerr.ErrClosed)
	}
	if b.opts.Constraints.ReceiveOnly {
		b.log.Info("receive-only, skipping capture")
		return nil, nil
	}
	if !b.opts.Constraints.Video && !b.opts.Constraints.Audio {
		return nil, callerr.Device("acquire local tracks", errors.New("video and audio are both disabled"))
	}
	if err := ctx.Err(); err != nil {
		return nil, callerr.Device("acquire local tracks", err)
	}

	tracks, closers, err := b.dev.capture(b.opts.Constraints, b.log)
	if err != nil {
		return nil, callerr.Device("acquire local tracks", err)
	}
	b.local = append(b.local, closers...)
	b.log.Info("local media captured", "tracks", len(tracks))
	return tracks, nil
}

// AttachRemoteSink starts consuming src in the background.
func (b *Bridge) AttachRemoteSink(src RemoteSource) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.released {
		b.log.Warn("remote track after release", "kind", src.Kind().String())
		return
	}

	w, path, err := b.openWriter(src)
	if err != nil {
		b.log.Warn("recording disabled for track", "kind", src.Kind().String(), "error", err)
	}
	s := newSink(src, w, b.log)
	b.sinks = append(b.sinks, s)
	go s.run()

	if path != "" {
		b.log.Info("recording remote track", "kind", src.Kind().String(), "path", path)
	}
}

func (b *Bridge) openWriter(src RemoteSource) (rtpWriter, string, error) {
	if b.opts.RecordDir == "" {
		return nil, "", nil
	}
	dir := filepath.Join(b.opts.RecordDir, b.opts.Session)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, "", err
	}
	return newWriter(dir, len(b.sinks), src.Codec())
}

// Release stops the sinks, then the local capture tracks. Safe to call more
// than once.
func (b *Bridge) Release() error {
	b.mu.Lock()
	if b.released {
		b.mu.Unlock()
		return nil
	}
	b.released = true
	sinks, local := b.sinks, b.local
	b.sinks, b.local = nil, nil
	b.mu.Unlock()

	var errs []error
	for _, s := range sinks {
		if err := s.stop(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, c := range local {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	b.log.Debug("media released", "sinks", len(sinks), "tracks", len(local))

	if err := errors.Join(errs...); err != nil {
		return callerr.Device("release", err)
	}
	return nil
}
