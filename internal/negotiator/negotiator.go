// Package negotiator wraps a pion PeerConnection that answers a single
// remote offer per call.
package negotiator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/BioHazard786/doorcall/internal/callerr"
	"github.com/BioHazard786/doorcall/internal/config"
	"github.com/BioHazard786/doorcall/internal/events"
	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
)

// CodecRegistrar installs the codecs the local media can produce.
type CodecRegistrar interface {
	RegisterCodecs(me *webrtc.MediaEngine) error
}

// ICEConfig is the ICE part of a peer connection configuration.
type ICEConfig struct {
	Servers []webrtc.ICEServer
	Policy  webrtc.ICETransportPolicy
}

// ICEFromConfig builds the ICE configuration from the application config.
func ICEFromConfig(cfg *config.Config) ICEConfig {
	var servers []webrtc.ICEServer
	if stun := cfg.GetSTUNServers(); stun != nil {
		servers = append(servers, webrtc.ICEServer{URLs: stun})
	}

	turnServers := cfg.GetTURNServers()
	if turnServers != nil {
		username, password := cfg.GetTURNCredentials()
		servers = append(servers, webrtc.ICEServer{
			URLs:       turnServers,
			Username:   username,
			Credential: password,
		})
	}

	policy := webrtc.ICETransportPolicyAll
	if turnServers != nil && (cfg.ForceRelay || RelayAdvised()) {
		policy = webrtc.ICETransportPolicyRelay
	}
	return ICEConfig{Servers: servers, Policy: policy}
}

// Session is one peer connection. It is created per call and closed during teardown.
type Session struct {
	pc  *webrtc.PeerConnection
	log *slog.Logger

	mu      sync.Mutex
	onTrack func(*webrtc.TrackRemote)
	closed  bool
}

// New creates a session. codecs may be nil, in which case the default codec
// set is registered.
func New(ice ICEConfig, codecs CodecRegistrar, log *slog.Logger) (*Session, error) {
	if log == nil {
		log = slog.Default()
	}

	me := &webrtc.MediaEngine{}
	if codecs != nil {
		if err := codecs.RegisterCodecs(me); err != nil {
			return nil, callerr.Negotiation("register codecs", err)
		}
	} else if err := me.RegisterDefaultCodecs(); err != nil {
		return nil, callerr.Negotiation("register codecs", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(me, registry); err != nil {
		return nil, callerr.Negotiation("register interceptors", err)
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(me),
		webrtc.WithInterceptorRegistry(registry),
	)

	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers:         ice.Servers,
		ICETransportPolicy: ice.Policy,
	})
	if err != nil {
		return nil, callerr.Negotiation("create peer connection", err)
	}

	s := &Session{pc: pc, log: log.With("component", "negotiator")}

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.log.Info("peer connection state changed", "state", state.String())
	})
	pc.OnTrack(s.handleTrack)

	return s, nil
}

// AddLocalTracks adds the captured tracks. With no tracks the session
// receives only, through one recv-only transceiver per media kind.
func (s *Session) AddLocalTracks(tracks []webrtc.TrackLocal) error {
	if len(tracks) == 0 {
		for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeVideo, webrtc.RTPCodecTypeAudio} {
			_, err := s.pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
				Direction: webrtc.RTPTransceiverDirectionRecvonly,
			})
			if err != nil {
				return callerr.Negotiation("add transceiver", err)
			}
		}
		s.log.Debug("no local tracks, receiving only")
		return nil
	}

	for _, track := range tracks {
		sender, err := s.pc.AddTrack(track)
		if err != nil {
			return callerr.Negotiation("add track", err)
		}
		go drainRTCP(sender)
	}
	return nil
}

// drainRTCP reads incoming RTCP so the interceptors keep running.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

// OnTrack registers fn for every remote track. Set it before the remote
// description is applied.
func (s *Session) OnTrack(fn func(*webrtc.TrackRemote)) {
	s.mu.Lock()
	s.onTrack = fn
	s.mu.Unlock()
}

func (s *Session) handleTrack(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	s.log.Info("remote track", "kind", track.Kind().String(), "codec", track.Codec().MimeType)

	if track.Kind() == webrtc.RTPCodecTypeVideo {
		// Ask for a keyframe so a recording starts decodable.
		err := s.pc.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: uint32(track.SSRC())}})
		if err != nil {
			s.log.Debug("picture loss indication failed", "error", err)
		}
	}

	s.mu.Lock()
	fn := s.onTrack
	s.mu.Unlock()
	if fn != nil {
		fn(track)
	}
}

// ApplyRemoteDescription validates the offer and applies it.
func (s *Session) ApplyRemoteDescription(desc events.SessionDescription) error {
	if err := ValidateOffer(desc); err != nil {
		return err
	}
	err := s.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  desc.SDP,
	})
	if err != nil {
		return callerr.Negotiation("set remote description", err)
	}
	return nil
}

// ValidateOffer checks that desc is a parsable offer with at least one media section.
func ValidateOffer(desc events.SessionDescription) error {
	if desc.Type != events.TypeOffer {
		return callerr.Negotiation("validate offer", fmt.Errorf("expected offer, got %q", desc.Type))
	}
	var parsed sdp.SessionDescription
	if err := parsed.Unmarshal([]byte(desc.SDP)); err != nil {
		return callerr.Negotiation("parse offer", err)
	}
	if len(parsed.MediaDescriptions) == 0 {
		return callerr.Negotiation("validate offer", errors.New("offer has no media sections"))
	}
	return nil
}

// CreateLocalAnswer creates the answer, waits for ICE gathering and returns
// the complete local description.
func (s *Session) CreateLocalAnswer(ctx context.Context) (events.SessionDescription, error) {
	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return events.SessionDescription{}, callerr.Negotiation("create answer", err)
	}

	gathered := webrtc.GatheringCompletePromise(s.pc)
	if err := s.pc.SetLocalDescription(answer); err != nil {
		return events.SessionDescription{}, callerr.Negotiation("set local description", err)
	}

	select {
	case <-gathered:
	case <-ctx.Done():
		return events.SessionDescription{}, callerr.Negotiation("gather candidates", ctx.Err())
	}

	local := s.pc.LocalDescription()
	if local == nil {
		return events.SessionDescription{}, callerr.Negotiation("create answer", errors.New("no local description"))
	}
	return events.SessionDescription{SDP: local.SDP, Type: events.TypeAnswer}, nil
}

// Close closes the peer connection. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if err := s.pc.Close(); err != nil {
		return callerr.Wrap("close peer connection", err, "")
	}
	s.log.Debug("peer connection closed")
	return nil
}
