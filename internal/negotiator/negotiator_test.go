package negotiator

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/BioHazard786/doorcall/internal/callerr"
	"github.com/BioHazard786/doorcall/internal/config"
	"github.com/BioHazard786/doorcall/internal/events"
	"github.com/BioHazard786/doorcall/internal/logging"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newOfferer plays the browser: it offers to send and receive audio and video.
func newOfferer(t *testing.T) (*webrtc.PeerConnection, events.SessionDescription) {
	t.Helper()

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	t.Cleanup(func() { pc.Close() })

	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeVideo, webrtc.RTPCodecTypeAudio} {
		_, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionSendrecv,
		})
		require.NoError(t, err)
	}

	offer, err := pc.CreateOffer(nil)
	require.NoError(t, err)
	gathered := webrtc.GatheringCompletePromise(pc)
	require.NoError(t, pc.SetLocalDescription(offer))
	<-gathered

	return pc, events.SessionDescription{SDP: pc.LocalDescription().SDP, Type: events.TypeOffer}
}

func newSession(t *testing.T) *Session {
	t.Helper()
	s, err := New(ICEConfig{}, nil, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSession_AnswersOfferReceiveOnly(t *testing.T) {
	offerer, offer := newOfferer(t)
	s := newSession(t)

	require.NoError(t, s.AddLocalTracks(nil))
	require.NoError(t, s.ApplyRemoteDescription(offer))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	answer, err := s.CreateLocalAnswer(ctx)
	require.NoError(t, err)

	assert.Equal(t, events.TypeAnswer, answer.Type)
	assert.Contains(t, answer.SDP, "a=recvonly")
	assert.Contains(t, answer.SDP, "a=candidate")

	require.NoError(t, offerer.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer.SDP,
	}))
}

func TestSession_AnswersWithLocalTrack(t *testing.T) {
	_, offer := newOfferer(t)
	s := newSession(t)

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "doorcall")
	require.NoError(t, err)

	require.NoError(t, s.AddLocalTracks([]webrtc.TrackLocal{track}))
	require.NoError(t, s.ApplyRemoteDescription(offer))

	answer, err := s.CreateLocalAnswer(context.Background())
	require.NoError(t, err)
	assert.Contains(t, answer.SDP, "a=sendrecv")
	assert.Contains(t, answer.SDP, "VP8")
}

func TestSession_CreateAnswerCanceled(t *testing.T) {
	_, offer := newOfferer(t)
	s := newSession(t)
	require.NoError(t, s.ApplyRemoteDescription(offer))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.CreateLocalAnswer(ctx)
	if err != nil {
		// Gathering may finish before the canceled context is observed.
		assert.ErrorIs(t, err, callerr.ErrNegotiation)
	}
}

func TestValidateOffer(t *testing.T) {
	_, offer := newOfferer(t)
	require.NoError(t, ValidateOffer(offer))

	tests := []struct {
		name string
		desc events.SessionDescription
	}{
		{"answer type", events.SessionDescription{SDP: offer.SDP, Type: events.TypeAnswer}},
		{"garbage", events.SessionDescription{SDP: "not sdp at all", Type: events.TypeOffer}},
		{"no media", events.SessionDescription{
			SDP:  "v=0\r\no=- 1 1 IN IP4 0.0.0.0\r\ns=-\r\nt=0 0\r\n",
			Type: events.TypeOffer,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOffer(tt.desc)
			require.Error(t, err)
			assert.ErrorIs(t, err, callerr.ErrNegotiation)
		})
	}
}

func TestSession_ApplyInvalidOfferIsNegotiationError(t *testing.T) {
	s := newSession(t)
	err := s.ApplyRemoteDescription(events.SessionDescription{SDP: "v=0", Type: events.TypeOffer})
	assert.ErrorIs(t, err, callerr.ErrNegotiation)
}

func TestSession_CloseIdempotent(t *testing.T) {
	s, err := New(ICEConfig{}, nil, logging.Discard())
	require.NoError(t, err)
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

func TestICEFromConfig(t *testing.T) {
	cfg := &config.Config{STUNServer: "stun:stun.example:3478"}
	ice := ICEFromConfig(cfg)
	require.Len(t, ice.Servers, 1)
	assert.Equal(t, []string{"stun:stun.example:3478"}, ice.Servers[0].URLs)
	assert.Equal(t, webrtc.ICETransportPolicyAll, ice.Policy)

	cfg = &config.Config{
		STUNServer: "stun:stun.example:3478",
		TURNServer: "turn.example",
		TURNUser:   "door",
		TURNPass:   "bell",
		ForceRelay: true,
	}
	ice = ICEFromConfig(cfg)
	require.Len(t, ice.Servers, 2)
	assert.Equal(t, "door", ice.Servers[1].Username)
	assert.Equal(t, "bell", ice.Servers[1].Credential)
	assert.Equal(t, webrtc.ICETransportPolicyRelay, ice.Policy)
}

func TestICEFromConfig_NoSTUN(t *testing.T) {
	assert.Empty(t, ICEFromConfig(&config.Config{}).Servers)
}

func stubInterfaces(t *testing.T, list ...iface) {
	t.Helper()
	orig := interfaces
	interfaces = func() []iface { return list }
	t.Cleanup(func() { interfaces = orig })
}

func TestICEFromConfig_RelayAdvisedBehindTunnel(t *testing.T) {
	cfg := &config.Config{TURNServer: "turn.example"}

	stubInterfaces(t, iface{name: "eth0", flags: net.FlagUp})
	assert.Equal(t, webrtc.ICETransportPolicyAll, ICEFromConfig(cfg).Policy)

	stubInterfaces(t, iface{name: "wg0", flags: net.FlagUp})
	assert.Equal(t, webrtc.ICETransportPolicyRelay, ICEFromConfig(cfg).Policy)

	// Without TURN there is nothing to relay through.
	assert.Equal(t, webrtc.ICETransportPolicyAll, ICEFromConfig(&config.Config{}).Policy)
}

func TestRelayAdvised(t *testing.T) {
	cgnat := &net.IPNet{IP: net.IPv4(100, 96, 1, 2), Mask: net.CIDRMask(10, 32)}
	lan := &net.IPNet{IP: net.IPv4(192, 168, 1, 20), Mask: net.CIDRMask(24, 32)}

	tests := []struct {
		name string
		list []iface
		want bool
	}{
		{"plain lan", []iface{{name: "eth0", flags: net.FlagUp, addrs: []net.Addr{lan}}}, false},
		{"wireguard", []iface{{name: "wg0", flags: net.FlagUp}}, true},
		{"openvpn upper case", []iface{{name: "TUN1", flags: net.FlagUp}}, true},
		{"tunnel down", []iface{{name: "tun0"}}, false},
		{"loopback ignored", []iface{{name: "tun-lo", flags: net.FlagUp | net.FlagLoopback}}, false},
		{"cgnat address", []iface{{name: "eth0", flags: net.FlagUp, addrs: []net.Addr{lan, cgnat}}}, true},
		{"ipaddr form", []iface{{name: "en0", flags: net.FlagUp, addrs: []net.Addr{&net.IPAddr{IP: net.IPv4(100, 64, 0, 1)}}}}, true},
		{"none", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, relayAdvised(tt.list))
		})
	}
}
