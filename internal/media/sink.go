package media

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
)

// RemoteSource is the read side of a remote track. *webrtc.TrackRemote satisfies it.
type RemoteSource interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
	Kind() webrtc.RTPCodecType
	Codec() webrtc.RTPCodecParameters
}

type rtpWriter interface {
	WriteRTP(pkt *rtp.Packet) error
	Close() error
}

func newWriter(dir string, n int, codec webrtc.RTPCodecParameters) (rtpWriter, string, error) {
	switch strings.ToLower(codec.MimeType) {
	case strings.ToLower(webrtc.MimeTypeOpus):
		path := filepath.Join(dir, fmt.Sprintf("audio-%d.ogg", n))
		channels := codec.Channels
		if channels == 0 {
			channels = 2
		}
		w, err := oggwriter.New(path, codec.ClockRate, channels)
		return w, path, err

	case strings.ToLower(webrtc.MimeTypeVP8):
		path := filepath.Join(dir, fmt.Sprintf("video-%d.ivf", n))
		w, err := ivfwriter.New(path)
		return w, path, err

	default:
		return nil, "", fmt.Errorf("no recorder for codec %q", codec.MimeType)
	}
}

// sink drains one remote track. The reader runs until the track ends; stop
// only detaches the writer.
type sink struct {
	src RemoteSource
	log *slog.Logger

	mu      sync.Mutex
	w       rtpWriter
	stopped bool
	packets int
}

func newSink(src RemoteSource, w rtpWriter, log *slog.Logger) *sink {
	return &sink{src: src, w: w, log: log}
}

func (s *sink) run() {
	for {
		pkt, _, err := s.src.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Debug("remote track ended", "kind", s.src.Kind().String(), "error", err)
			}
			return
		}
		s.write(pkt)
	}
}

func (s *sink) write(pkt *rtp.Packet) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || s.w == nil {
		return
	}
	if err := s.w.WriteRTP(pkt); err != nil {
		s.log.Warn("write remote packet", "error", err)
		return
	}
	s.packets++
}

func (s *sink) stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil
	}
	s.stopped = true
	if s.w == nil {
		return nil
	}
	s.log.Debug("sink stopped", "kind", s.src.Kind().String(), "packets", s.packets)
	return s.w.Close()
}
