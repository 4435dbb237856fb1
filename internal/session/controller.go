// Package session runs one call per trigger: it opens the room, waits for
// the peer and its offer, answers, and tears everything down again.
package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BioHazard786/doorcall/internal/callerr"
	"github.com/BioHazard786/doorcall/internal/config"
	"github.com/BioHazard786/doorcall/internal/events"
	"github.com/BioHazard786/doorcall/internal/media"
	"github.com/BioHazard786/doorcall/internal/metrics"
	"github.com/BioHazard786/doorcall/internal/negotiator"
	"github.com/BioHazard786/doorcall/internal/notify"
	"github.com/BioHazard786/doorcall/internal/room"
	"github.com/BioHazard786/doorcall/internal/signaling"
	"github.com/BioHazard786/doorcall/internal/trigger"
	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"github.com/pion/webrtc/v4"
)

// MediaBridge is the local capture and remote sink for one call.
type MediaBridge interface {
	negotiator.CodecRegistrar
	AcquireLocalTracks(ctx context.Context) ([]webrtc.TrackLocal, error)
	AttachRemoteSink(src media.RemoteSource)
	Release() error
}

// Negotiator is the offer/answer session for one call.
type Negotiator interface {
	AddLocalTracks(tracks []webrtc.TrackLocal) error
	OnTrack(fn func(*webrtc.TrackRemote))
	ApplyRemoteDescription(desc events.SessionDescription) error
	CreateLocalAnswer(ctx context.Context) (events.SessionDescription, error)
	Close() error
}

// Deps build the per-call collaborators. Every call gets fresh instances.
type Deps struct {
	Signaling  func(q *events.Queue) signaling.Channel
	Media      func(sessionID string) MediaBridge
	Negotiator func(codecs negotiator.CodecRegistrar) (Negotiator, error)
	Notifier   notify.Notifier
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger calls derive their loggers from.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithMetrics records session outcomes and state transitions in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithObserver is called on every state change, from the controller goroutine.
func WithObserver(fn func(from, to State)) Option {
	return func(c *Controller) { c.observer = fn }
}

// WithReports is called with the report of every finished call.
func WithReports(fn func(Report)) Option {
	return func(c *Controller) { c.onReport = fn }
}

// WithRoomNames replaces the room name generator.
func WithRoomNames(fn func() string) Option {
	return func(c *Controller) { c.rooms = fn }
}

// Controller drives calls. It is not safe for concurrent use; one call runs at a time.
type Controller struct {
	cfg  *config.Config
	deps Deps

	log      *slog.Logger
	metrics  *metrics.Metrics
	observer func(from, to State)
	onReport func(Report)
	rooms    func() string
}

// New creates a controller that builds its collaborators from deps for every call.
func New(cfg *config.Config, deps Deps, opts ...Option) *Controller {
	c := &Controller{
		cfg:   cfg,
		deps:  deps,
		log:   slog.Default(),
		rooms: room.Generate,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Loop runs one call per trigger until ctx is done or the trigger is
// exhausted. A connection failure ends the loop unless KeepGoing is set.
func (c *Controller) Loop(ctx context.Context, t trigger.Trigger) error {
	for {
		if err := t.Wait(ctx); err != nil {
			if errors.Is(err, trigger.ErrExhausted) {
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		report, err := c.RunOnce(ctx)
		if err == nil {
			continue
		}
		switch {
		case ctx.Err() != nil:
			return nil
		case callerr.IsConnection(err) && !c.cfg.KeepGoing:
			return err
		default:
			c.log.Error("call failed", "session", report.SessionID, "outcome", report.Outcome, "error", err)
		}
	}
}

// call is the state of one RunOnce invocation.
type call struct {
	c        *Controller
	ctx      context.Context
	log      *slog.Logger
	machine  *fsm.FSM
	queue    *events.Queue
	sig      signaling.Channel
	teardown *teardown
	report   Report

	releaseErr error
	// connLost is set once the signaling connection dropped under us.
	connLost bool
}

// RunOnce runs exactly one call. Every resource it acquires is released
// before it returns. The returned error is also recorded in the report.
func (c *Controller) RunOnce(ctx context.Context) (Report, error) {
	id := uuid.NewString()
	name := c.cfg.Room
	if name == "" {
		name = c.rooms()
	}

	log := c.log.With("component", "session", "session", id, "room", name)
	cl := &call{
		c:        c,
		ctx:      ctx,
		log:      log,
		queue:    events.NewQueue(),
		teardown: &teardown{log: log},
		report: Report{
			SessionID: id,
			Room:      name,
			Path:      []State{StateIdle},
			Started:   time.Now(),
		},
	}
	cl.machine = newMachine(cl.entered)

	outcome, err := cl.run()

	// Covers every path, including ones that never reached closing.
	if terr := errors.Join(cl.releaseErr, cl.teardown.run()); terr != nil && err == nil {
		err = terr
	}
	if cur := cl.machine.Current(); cur != StateIdle {
		log.Warn("call ended outside idle", "state", cur)
	}

	cl.report.Outcome = outcome
	cl.report.Ended = time.Now()
	cl.report.Err = err

	c.metrics.ObserveSession(string(outcome), cl.report.Duration())
	log.Info("call finished", "outcome", outcome, "duration", cl.report.Duration().Round(time.Millisecond))
	if c.onReport != nil {
		c.onReport(cl.report)
	}
	return cl.report, err
}

func (cl *call) entered(from, to State) {
	cl.report.Path = append(cl.report.Path, to)
	cl.log.Debug("state changed", "from", from, "to", to)
	cl.c.metrics.ObserveTransition(from, to)
	if cl.c.observer != nil {
		cl.c.observer(from, to)
	}
}

// fire steps the machine. Cancellation of the call must not block a step,
// so the machine runs on a context that is never canceled.
func (cl *call) fire(event string) {
	if err := cl.machine.Event(context.WithoutCancel(cl.ctx), event); err != nil {
		cl.log.Error("invalid transition", "event", event, "state", cl.machine.Current(), "error", err)
	}
}

func (cl *call) run() (Outcome, error) {
	name := cl.report.Room
	cfg := cl.c.cfg

	sig := cl.c.deps.Signaling(cl.queue)
	if err := sig.Connect(cl.ctx, cfg.ServerURL); err != nil {
		if cl.ctx.Err() != nil {
			return OutcomeCanceled, cl.ctx.Err()
		}
		return OutcomeFailed, err
	}
	cl.sig = sig
	cl.teardown.push("signaling", sig.Disconnect)
	cl.fire(evConnect)

	if err := sig.Join(name); err != nil {
		cl.fire(evAbort)
		return OutcomeFailed, callerr.Connection("join", err)
	}
	cl.emitted(signaling.EventJoin, name)
	cl.fire(evJoin)

	// The join acknowledgement has no deadline.
	ev, err := cl.queue.Pop(cl.ctx)
	if err != nil {
		cl.fire(evAbort)
		if cl.ctx.Err() != nil {
			return OutcomeCanceled, err
		}
		return OutcomeFailed, cl.lost("await room", err)
	}
	switch ev.Kind {
	case events.RoomCreated:
	case events.RoomJoined, events.RoomFull:
		// Someone else already holds the room; nothing was created here.
		cl.log.Info("room not created", "event", ev.String())
		cl.fire(evAbort)
		return OutcomeRoomTaken, nil
	default:
		cl.log.Warn("unexpected reply to join", "event", ev.String())
		cl.fire(evAbort)
		return OutcomeFailed, callerr.Protocol("await room", errors.New("got "+ev.String()))
	}
	cl.fire(evRoomCreated)
	cl.notify(name)

	if _, err := cl.awaitEvent(events.PeerArrived); err != nil {
		return cl.abortWait(OutcomePeerTimeout, err)
	}
	cl.fire(evPeerArrived)

	ev, err = cl.awaitEvent(events.Invite)
	if err != nil {
		return cl.abortWait(OutcomeInviteTimeout, err)
	}
	cl.fire(evInvite)

	if err := cl.negotiate(ev); err != nil {
		cl.log.Error("negotiation failed", "error", err)
		cl.fire(evFail)
		cl.close()
		return OutcomeFailed, err
	}
	cl.fire(evAnswered)

	outcome, err := cl.active()
	cl.close()
	return outcome, err
}

var errUnexpected = errors.New("unexpected event")

// awaitEvent pops once with the call timeout. Anything but kind is an error.
func (cl *call) awaitEvent(kind events.Kind) (events.Event, error) {
	ev, err := cl.queue.PopTimeout(cl.ctx, cl.c.cfg.Timeout)
	switch {
	case errors.Is(err, events.ErrTimeout):
		cl.log.Info("timed out", "waiting_for", kind.String(), "timeout", cl.c.cfg.Timeout)
		return ev, err
	case err != nil:
		return ev, err
	case ev.Kind != kind:
		cl.log.Info("unexpected event", "waiting_for", kind.String(), "event", ev.String())
		return ev, errUnexpected
	}
	return ev, nil
}

// abortWait leaves a room this side created before any media was set up.
// Timeouts and stray events end the call with onTimeout.
func (cl *call) abortWait(onTimeout Outcome, err error) (Outcome, error) {
	if cl.ctx.Err() == nil && !errors.Is(err, events.ErrTimeout) && !errors.Is(err, errUnexpected) {
		cl.fire(evAbort)
		return OutcomeFailed, cl.lost("await peer", err)
	}
	cl.bye("")
	cl.fire(evAbort)
	if err := cl.ctx.Err(); err != nil {
		return OutcomeCanceled, err
	}
	return onTimeout, nil
}

// lost records that the signaling connection is gone and returns it as a
// connection error.
func (cl *call) lost(op string, err error) error {
	cl.connLost = true
	cl.log.Warn("signaling connection lost", "error", err)
	if callerr.IsConnection(err) {
		return err
	}
	return callerr.Connection(op, err)
}

func (cl *call) notify(name string) {
	n := notify.Notice{Room: name, URL: cl.c.cfg.GetRoomLink(name)}
	if cl.c.deps.Notifier == nil {
		return
	}
	if err := cl.c.deps.Notifier.Notify(cl.ctx, n); err != nil {
		cl.log.Warn("notify failed", "error", err)
	}
}

// negotiate answers the offer carried by invite. Resources are pushed on the
// teardown stack as soon as they exist.
func (cl *call) negotiate(invite events.Event) error {
	offer, ok := invite.Description()
	if !ok {
		return callerr.Negotiation("read invite", errors.New("invite carries no session description"))
	}

	bridge := cl.c.deps.Media(cl.report.SessionID)
	neg, err := cl.c.deps.Negotiator(bridge)
	if err != nil {
		return err
	}
	cl.teardown.push("negotiator", neg.Close)

	tracks, err := bridge.AcquireLocalTracks(cl.ctx)
	cl.teardown.push("media", bridge.Release)
	if err != nil {
		return err
	}

	if err := neg.AddLocalTracks(tracks); err != nil {
		return err
	}
	neg.OnTrack(func(track *webrtc.TrackRemote) {
		bridge.AttachRemoteSink(track)
	})

	if err := neg.ApplyRemoteDescription(offer); err != nil {
		return err
	}
	answer, err := neg.CreateLocalAnswer(cl.ctx)
	if err != nil {
		return err
	}

	if err := cl.sig.Emit(events.Acknowledge, answer); err != nil {
		return callerr.Connection("emit answer", err)
	}
	cl.emitted(signaling.EventOK, string(answer.Type))
	return nil
}

// active waits for the peer to hang up, at most one timeout from entering.
// Other events do not end the call and do not extend it.
func (cl *call) active() (Outcome, error) {
	deadline := time.Now().Add(cl.c.cfg.Timeout)
	for {
		ev, err := cl.queue.PopUntil(cl.ctx, deadline)
		switch {
		case errors.Is(err, events.ErrTimeout):
			cl.log.Warn("no terminate received", "timeout", cl.c.cfg.Timeout)
			cl.fire(evFail)
			return OutcomeNoTerminate, nil
		case err != nil && cl.ctx.Err() != nil:
			cl.fire(evFail)
			return OutcomeCanceled, err
		case err != nil:
			cl.fire(evFail)
			return OutcomeFailed, cl.lost("await hang-up", err)
		case ev.Kind == events.Terminate:
			cl.log.Info("peer hung up")
			cl.fire(evTerminate)
			return OutcomeCompleted, nil
		default:
			cl.log.Debug("ignoring event during call", "event", ev.String())
		}
	}
}

// close relinquishes the room, then releases everything in reverse order.
func (cl *call) close() {
	cl.bye(cl.report.Room)
	cl.releaseErr = cl.teardown.run()
	cl.fire(evClose)
}

// bye emits Terminate, carrying the room name when one is given.
func (cl *call) bye(name string) {
	if cl.connLost {
		return
	}
	var payload events.Payload
	if name != "" {
		payload = events.Room{Name: name}
	}
	if err := cl.sig.Emit(events.Terminate, payload); err != nil {
		cl.log.Warn("emit failed", "event", signaling.EventBye, "error", err)
		return
	}
	cl.emitted(signaling.EventBye, name)
}

// emitted records an outbound event as event or event(arg).
func (cl *call) emitted(event, arg string) {
	if arg != "" {
		event = event + "(" + arg + ")"
	}
	cl.report.Emitted = append(cl.report.Emitted, event)
}
