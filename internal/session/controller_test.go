package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BioHazard786/doorcall/internal/callerr"
	"github.com/BioHazard786/doorcall/internal/config"
	"github.com/BioHazard786/doorcall/internal/events"
	"github.com/BioHazard786/doorcall/internal/logging"
	"github.com/BioHazard786/doorcall/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRoom = "porch"

func newController(h *harness, timeout time.Duration, opts ...Option) *Controller {
	cfg := &config.Config{
		ServerURL: "ws://rendezvous.test/ws",
		Room:      testRoom,
		Timeout:   timeout,
	}
	opts = append([]Option{WithLogger(logging.Discard())}, opts...)
	return New(cfg, h.deps(), opts...)
}

func TestRunOnce_HappyPath(t *testing.T) {
	h := newHarness()
	h.sig.onJoin = push(created(testRoom), events.New(events.PeerArrived, nil), events.New(events.Invite, offer))
	h.sig.onAnswer = push(events.New(events.Terminate, events.Room{Name: testRoom}))

	report, err := newController(h, time.Second).RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeCompleted, report.Outcome)
	assert.Equal(t, []string{"join(porch)", "ok(answer)", "bye(porch)"}, report.Emitted)
	assert.Equal(t, []State{
		StateIdle, StateConnected, StateRoomPending, StateAwaitingPeer,
		StateAwaitingInvite, StateNegotiating, StateActive, StateClosing, StateIdle,
	}, report.Path)
	assert.Equal(t, []string{
		"signaling.connect",
		"signaling.join",
		"media.new",
		"negotiator.new",
		"media.acquire",
		"negotiator.tracks",
		"negotiator.apply",
		"negotiator.answer",
		"signaling.ok",
		"signaling.bye",
		"media.release",
		"negotiator.close",
		"signaling.disconnect",
	}, h.j.all())

	require.Len(t, h.notices, 1)
	assert.Equal(t, testRoom, h.notices[0].Room)
	assert.NotEmpty(t, report.SessionID)
	assert.False(t, report.Ended.Before(report.Started))
}

func TestRunOnce_RoomTakenEmitsNoBye(t *testing.T) {
	for _, kind := range []events.Kind{events.RoomJoined, events.RoomFull} {
		t.Run(kind.String(), func(t *testing.T) {
			h := newHarness()
			h.sig.onJoin = push(events.New(kind, events.Room{Name: testRoom}))

			report, err := newController(h, time.Second).RunOnce(context.Background())
			require.NoError(t, err)

			assert.Equal(t, OutcomeRoomTaken, report.Outcome)
			assert.Equal(t, []string{"join(porch)"}, report.Emitted)
			assert.Zero(t, h.j.count("signaling.bye"))
			assert.Equal(t, 1, h.j.count("signaling.disconnect"))
			assert.Zero(t, h.j.count("media.new"))
			assert.Empty(t, h.notices)
			assert.Equal(t, StateIdle, report.Path[len(report.Path)-1])
		})
	}
}

func TestRunOnce_PeerTimeout(t *testing.T) {
	h := newHarness()
	h.sig.onJoin = push(created(testRoom))

	report, err := newController(h, 30*time.Millisecond).RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomePeerTimeout, report.Outcome)
	assert.Equal(t, []string{"join(porch)", "bye"}, report.Emitted)
	assert.Equal(t, 1, h.j.count("signaling.bye"))
	require.Len(t, h.sig.byes, 1)
	assert.Nil(t, h.sig.byes[0])
	assert.Zero(t, h.j.count("media.new"))
	assert.Zero(t, h.j.count("negotiator.new"))
	assert.Equal(t, 1, h.j.count("signaling.disconnect"))
	require.Len(t, h.notices, 1)
}

func TestRunOnce_UnexpectedEventWhileAwaitingPeer(t *testing.T) {
	h := newHarness()
	h.sig.onJoin = push(created(testRoom), events.New(events.Invite, offer))

	report, err := newController(h, time.Second).RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomePeerTimeout, report.Outcome)
	assert.Equal(t, 1, h.j.count("signaling.bye"))
	assert.Zero(t, h.j.count("media.new"))
}

func TestRunOnce_InviteTimeout(t *testing.T) {
	h := newHarness()
	h.sig.onJoin = push(created(testRoom), events.New(events.PeerArrived, nil))

	report, err := newController(h, 30*time.Millisecond).RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeInviteTimeout, report.Outcome)
	assert.Equal(t, []string{"join(porch)", "bye"}, report.Emitted)
	assert.Zero(t, h.j.count("media.new"))
	assert.Zero(t, h.j.count("media.acquire"))
	assert.Zero(t, h.j.count("negotiator.new"))
	assert.Equal(t, []State{
		StateIdle, StateConnected, StateRoomPending, StateAwaitingPeer, StateAwaitingInvite, StateIdle,
	}, report.Path)
}

func TestRunOnce_NegotiationFailureTearsDown(t *testing.T) {
	h := newHarness()
	h.sig.onJoin = push(created(testRoom), events.New(events.PeerArrived, nil), events.New(events.Invite, offer))
	h.neg.applyErr = callerr.Negotiation("set remote description", assert.AnError)

	report, err := newController(h, time.Second).RunOnce(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, callerr.ErrNegotiation)
	assert.ErrorIs(t, report.Err, callerr.ErrNegotiation)

	assert.Equal(t, OutcomeFailed, report.Outcome)
	assert.Equal(t, []string{"join(porch)", "bye(porch)"}, report.Emitted)
	assert.Zero(t, h.j.count("signaling.ok"))
	assert.Equal(t, []string{"signaling.bye", "media.release", "negotiator.close", "signaling.disconnect"},
		h.j.all()[len(h.j.all())-4:])
	assert.Contains(t, report.Path, StateClosing)
}

func TestRunOnce_DeviceFailureTearsDown(t *testing.T) {
	h := newHarness()
	h.sig.onJoin = push(created(testRoom), events.New(events.PeerArrived, nil), events.New(events.Invite, offer))
	h.media.acquireErr = callerr.Device("acquire local tracks", assert.AnError)

	report, err := newController(h, time.Second).RunOnce(context.Background())
	assert.ErrorIs(t, err, callerr.ErrDevice)
	assert.Equal(t, OutcomeFailed, report.Outcome)
	assert.Zero(t, h.j.count("negotiator.apply"))
	assert.Equal(t, 1, h.j.count("media.release"))
	assert.Equal(t, 1, h.j.count("negotiator.close"))
	assert.Equal(t, 1, h.j.count("signaling.disconnect"))
}

func TestRunOnce_InviteWithoutDescription(t *testing.T) {
	h := newHarness()
	h.sig.onJoin = push(created(testRoom), events.New(events.PeerArrived, nil), events.New(events.Invite, nil))

	report, err := newController(h, time.Second).RunOnce(context.Background())
	assert.ErrorIs(t, err, callerr.ErrNegotiation)
	assert.Equal(t, OutcomeFailed, report.Outcome)
	assert.Zero(t, h.j.count("media.new"))
	assert.Equal(t, []string{"join(porch)", "bye(porch)"}, report.Emitted)
}

func TestRunOnce_ActiveTimeoutStillTearsDown(t *testing.T) {
	h := newHarness()
	h.sig.onJoin = push(created(testRoom), events.New(events.PeerArrived, nil), events.New(events.Invite, offer))

	report, err := newController(h, 30*time.Millisecond).RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeNoTerminate, report.Outcome)
	assert.Equal(t, []string{"join(porch)", "ok(answer)", "bye(porch)"}, report.Emitted)
	assert.Equal(t, []string{"signaling.bye", "media.release", "negotiator.close", "signaling.disconnect"},
		h.j.all()[len(h.j.all())-4:])
}

func TestRunOnce_ActiveIgnoresOtherEvents(t *testing.T) {
	h := newHarness()
	h.sig.onJoin = push(created(testRoom), events.New(events.PeerArrived, nil), events.New(events.Invite, offer))
	h.sig.onAnswer = push(
		events.New(events.PeerArrived, nil),
		events.New(events.Invite, offer),
		events.New(events.Terminate, nil),
	)

	report, err := newController(h, time.Second).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, report.Outcome)
	assert.Equal(t, 1, h.j.count("negotiator.apply"))
}

func TestRunOnce_ConnectionError(t *testing.T) {
	h := newHarness()
	h.sig.connectErr = errUnreachable

	report, err := newController(h, time.Second).RunOnce(context.Background())
	assert.True(t, callerr.IsConnection(err))
	assert.Equal(t, OutcomeFailed, report.Outcome)
	assert.Equal(t, []State{StateIdle}, report.Path)
	assert.Empty(t, report.Emitted)
	assert.Zero(t, h.j.count("signaling.disconnect"))
}

func TestRunOnce_CanceledWhileWaitingForRoom(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	h.sig.onJoin = func(*events.Queue) { cancel() }

	report, err := newController(h, time.Second).RunOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, OutcomeCanceled, report.Outcome)
	assert.Zero(t, h.j.count("signaling.bye"))
	assert.Equal(t, 1, h.j.count("signaling.disconnect"))
	assert.Equal(t, StateIdle, report.Path[len(report.Path)-1])
}

func TestRunOnce_CanceledDuringCall(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	h.sig.onJoin = push(created(testRoom), events.New(events.PeerArrived, nil), events.New(events.Invite, offer))
	h.sig.onAnswer = func(*events.Queue) { cancel() }

	report, err := newController(h, time.Second).RunOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, OutcomeCanceled, report.Outcome)
	assert.Equal(t, []string{"join(porch)", "ok(answer)", "bye(porch)"}, report.Emitted)
	assert.Equal(t, 1, h.j.count("media.release"))
	assert.Equal(t, StateIdle, report.Path[len(report.Path)-1])
}

func TestRunOnce_GeneratedRoomPerCall(t *testing.T) {
	h := newHarness()
	h.sig.onJoin = push(events.New(events.RoomFull, nil))

	names := []string{"first-room", "second-room"}
	c := newController(h, time.Second, WithRoomNames(func() string {
		n := names[0]
		names = names[1:]
		return n
	}))
	c.cfg.Room = ""

	r1, err := c.RunOnce(context.Background())
	require.NoError(t, err)
	r2, err := c.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "first-room", r1.Room)
	assert.Equal(t, "second-room", r2.Room)
	assert.NotEqual(t, r1.SessionID, r2.SessionID)
}

func TestRunOnce_ObserverAndMetrics(t *testing.T) {
	h := newHarness()
	h.sig.onJoin = push(created(testRoom))

	m := metrics.New()
	var seen []string
	c := newController(h, 10*time.Millisecond,
		WithMetrics(m),
		WithObserver(func(from, to State) { seen = append(seen, from+">"+to) }),
	)

	_, err := c.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"idle>connected", "connected>room_pending", "room_pending>awaiting_peer", "awaiting_peer>idle",
	}, seen)
	n, err := testutil.GatherAndCount(m.Registry(), "doorcall_state_transitions_total")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	n, err = testutil.GatherAndCount(m.Registry(), "doorcall_sessions_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRunOnce_StrayFirstEventIsProtocolFailure(t *testing.T) {
	for _, kind := range []events.Kind{events.PeerArrived, events.Terminate} {
		t.Run(kind.String(), func(t *testing.T) {
			h := newHarness()
			h.sig.onJoin = push(events.New(kind, nil))

			report, err := newController(h, time.Second).RunOnce(context.Background())
			assert.ErrorIs(t, err, callerr.ErrProtocol)
			assert.Equal(t, OutcomeFailed, report.Outcome)
			assert.Zero(t, h.j.count("signaling.bye"))
			assert.Equal(t, 1, h.j.count("signaling.disconnect"))
			assert.Equal(t, StateIdle, report.Path[len(report.Path)-1])
		})
	}
}

func closeQueue(q *events.Queue) {
	q.Close(callerr.Connection("read", errors.New("unexpected EOF")))
}

func TestRunOnce_ConnectionLost(t *testing.T) {
	tests := []struct {
		name     string
		onJoin   func(q *events.Queue)
		onAnswer func(q *events.Queue)
		emitted  []string
		released int
	}{
		{
			name:    "waiting for room",
			onJoin:  closeQueue,
			emitted: []string{"join(porch)"},
		},
		{
			name: "waiting for peer",
			onJoin: func(q *events.Queue) {
				q.Push(created(testRoom))
				closeQueue(q)
			},
			emitted: []string{"join(porch)"},
		},
		{
			name:     "during call",
			onJoin:   push(created(testRoom), events.New(events.PeerArrived, nil), events.New(events.Invite, offer)),
			onAnswer: closeQueue,
			emitted:  []string{"join(porch)", "ok(answer)"},
			released: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			h.sig.onJoin = tt.onJoin
			h.sig.onAnswer = tt.onAnswer

			start := time.Now()
			report, err := newController(h, 5*time.Second).RunOnce(context.Background())
			assert.Less(t, time.Since(start), 2*time.Second)
			assert.True(t, callerr.IsConnection(err), "got %v", err)
			assert.Equal(t, OutcomeFailed, report.Outcome)
			assert.Equal(t, tt.emitted, report.Emitted)
			assert.Zero(t, h.j.count("signaling.bye"))
			assert.Equal(t, tt.released, h.j.count("media.release"))
			assert.Equal(t, 1, h.j.count("signaling.disconnect"))
			assert.Equal(t, StateIdle, report.Path[len(report.Path)-1])
		})
	}
}

func TestRunOnce_StrayEventsDoNotExtendCall(t *testing.T) {
	h := newHarness()
	stop := make(chan struct{})
	t.Cleanup(func() { close(stop) })

	h.sig.onJoin = push(created(testRoom), events.New(events.PeerArrived, nil), events.New(events.Invite, offer))
	h.sig.onAnswer = func(q *events.Queue) {
		go func() {
			tick := time.NewTicker(10 * time.Millisecond)
			defer tick.Stop()
			for {
				select {
				case <-stop:
					return
				case <-tick.C:
					q.Push(events.New(events.PeerArrived, nil))
				}
			}
		}()
	}

	start := time.Now()
	report, err := newController(h, 100*time.Millisecond).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoTerminate, report.Outcome)
	assert.Less(t, time.Since(start), time.Second)
}
