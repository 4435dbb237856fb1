//go:build linux && cgo

package media

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
)

const videoBitRate = 500_000

// capturer opens V4L2 cameras and ALSA/Pulse microphones through mediadevices.
type capturer struct {
	once     sync.Once
	selector *mediadevices.CodecSelector
	err      error
}

func newCapturer() *capturer { return &capturer{} }

func (c *capturer) codecSelector() (*mediadevices.CodecSelector, error) {
	c.once.Do(func() {
		vpxParams, err := vpx.NewVP8Params()
		if err != nil {
			c.err = err
			return
		}
		vpxParams.BitRate = videoBitRate

		opusParams, err := opus.NewParams()
		if err != nil {
			c.err = err
			return
		}

		c.selector = mediadevices.NewCodecSelector(
			mediadevices.WithVideoEncoders(&vpxParams),
			mediadevices.WithAudioEncoders(&opusParams),
		)
	})
	return c.selector, c.err
}

func (c *capturer) registerCodecs(me *webrtc.MediaEngine) error {
	selector, err := c.codecSelector()
	if err != nil {
		return err
	}
	selector.Populate(me)
	return nil
}

type attempt struct {
	video, audio bool
	label        string
}

func attempts(cons Constraints) []attempt {
	var out []attempt
	if cons.Video && cons.Audio {
		out = append(out, attempt{true, true, "video+audio"})
	}
	if cons.Video {
		out = append(out, attempt{true, false, "video-only"})
	}
	if cons.Audio {
		out = append(out, attempt{false, true, "audio-only"})
	}
	return out
}

// capture tries the richest combination first so a missing microphone does
// not cost the camera, and the other way around.
func (c *capturer) capture(cons Constraints, log *slog.Logger) ([]webrtc.TrackLocal, []closer, error) {
	selector, err := c.codecSelector()
	if err != nil {
		return nil, nil, err
	}

	if devices := mediadevices.EnumerateDevices(); len(devices) == 0 {
		log.Warn("no media devices found")
	} else {
		for _, d := range devices {
			log.Debug("media device", "kind", d.Kind, "label", d.Label)
		}
	}

	var errs []error
	for _, a := range attempts(cons) {
		constraints := mediadevices.MediaStreamConstraints{Codec: selector}
		if a.video {
			constraints.Video = func(m *mediadevices.MediaTrackConstraints) {
				// MJPEG nodes on some cameras yield frames the VP8 encoder rejects.
				m.FrameFormat = prop.FrameFormatOneOf{
					frame.FormatYUYV,
					frame.FormatI420,
					frame.FormatI444,
					frame.FormatRGBA,
				}
				if cons.Width > 0 {
					m.Width = prop.Int(cons.Width)
				}
				if cons.Height > 0 {
					m.Height = prop.Int(cons.Height)
				}
				if cons.FPS > 0 {
					m.FrameRate = prop.Float(cons.FPS)
				}
			}
		}
		if a.audio {
			constraints.Audio = func(*mediadevices.MediaTrackConstraints) {}
		}

		stream, err := mediadevices.GetUserMedia(constraints)
		if err != nil {
			log.Warn("capture attempt failed", "attempt", a.label, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", a.label, err))
			continue
		}

		var (
			tracks  []webrtc.TrackLocal
			closers []closer
		)
		for _, track := range stream.GetTracks() {
			track.OnEnded(func(err error) {
				if err != nil {
					log.Warn("local track ended", "kind", track.Kind().String(), "error", err)
				}
			})
			tracks = append(tracks, track)
			closers = append(closers, track)
		}
		log.Info("capture attempt succeeded", "attempt", a.label)
		return tracks, closers, nil
	}

	if len(errs) == 0 {
		return nil, nil, errors.New("nothing to capture")
	}
	return nil, nil, errors.Join(errs...)
}
