package session

import (
	"context"
	"errors"
	"sync"

	"github.com/BioHazard786/doorcall/internal/callerr"
	"github.com/BioHazard786/doorcall/internal/events"
	"github.com/BioHazard786/doorcall/internal/media"
	"github.com/BioHazard786/doorcall/internal/negotiator"
	"github.com/BioHazard786/doorcall/internal/notify"
	"github.com/BioHazard786/doorcall/internal/signaling"
	"github.com/pion/webrtc/v4"
)

// journal records collaborator calls across all fakes in call order.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(e string) {
	j.mu.Lock()
	j.entries = append(j.entries, e)
	j.mu.Unlock()
}

func (j *journal) all() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

func (j *journal) count(e string) int {
	n := 0
	for _, x := range j.all() {
		if x == e {
			n++
		}
	}
	return n
}

type fakeSignaling struct {
	j          *journal
	q          *events.Queue
	connectErr error
	onJoin     func(q *events.Queue)
	onAnswer   func(q *events.Queue)
	byes       []events.Payload
}

func (f *fakeSignaling) Connect(context.Context, string) error {
	f.j.add("signaling.connect")
	return f.connectErr
}

func (f *fakeSignaling) Join(string) error {
	f.j.add("signaling.join")
	if f.onJoin != nil {
		f.onJoin(f.q)
	}
	return nil
}

func (f *fakeSignaling) Emit(kind events.Kind, payload events.Payload) error {
	switch kind {
	case events.Acknowledge:
		f.j.add("signaling.ok")
		if f.onAnswer != nil {
			f.onAnswer(f.q)
		}
	case events.Terminate:
		f.j.add("signaling.bye")
		f.byes = append(f.byes, payload)
	default:
		return errors.New("unexpected emit")
	}
	return nil
}

func (f *fakeSignaling) Disconnect() error {
	f.j.add("signaling.disconnect")
	return nil
}

type fakeMedia struct {
	j          *journal
	acquireErr error
	released   bool
}

func (f *fakeMedia) RegisterCodecs(*webrtc.MediaEngine) error { return nil }

func (f *fakeMedia) AcquireLocalTracks(context.Context) ([]webrtc.TrackLocal, error) {
	f.j.add("media.acquire")
	if f.acquireErr != nil {
		return nil, f.acquireErr
	}
	return nil, nil
}

func (f *fakeMedia) AttachRemoteSink(media.RemoteSource) {}

func (f *fakeMedia) Release() error {
	if f.released {
		return nil
	}
	f.released = true
	f.j.add("media.release")
	return nil
}

type fakeNegotiator struct {
	j        *journal
	applyErr error
}

func (f *fakeNegotiator) AddLocalTracks([]webrtc.TrackLocal) error {
	f.j.add("negotiator.tracks")
	return nil
}

func (f *fakeNegotiator) OnTrack(func(*webrtc.TrackRemote)) {}

func (f *fakeNegotiator) ApplyRemoteDescription(events.SessionDescription) error {
	f.j.add("negotiator.apply")
	return f.applyErr
}

func (f *fakeNegotiator) CreateLocalAnswer(context.Context) (events.SessionDescription, error) {
	f.j.add("negotiator.answer")
	return events.SessionDescription{SDP: "v=0\r\n", Type: events.TypeAnswer}, nil
}

func (f *fakeNegotiator) Close() error {
	f.j.add("negotiator.close")
	return nil
}

// harness wires fakes into Deps and records what the controller did.
type harness struct {
	j       *journal
	sig     *fakeSignaling
	media   *fakeMedia
	neg     *fakeNegotiator
	notices []notify.Notice
}

func newHarness() *harness {
	j := &journal{}
	return &harness{
		j:     j,
		sig:   &fakeSignaling{j: j},
		media: &fakeMedia{j: j},
		neg:   &fakeNegotiator{j: j},
	}
}

func (h *harness) deps() Deps {
	return Deps{
		Signaling: func(q *events.Queue) signaling.Channel {
			h.sig.q = q
			return h.sig
		},
		Media: func(string) MediaBridge {
			h.j.add("media.new")
			return h.media
		},
		Negotiator: func(negotiator.CodecRegistrar) (Negotiator, error) {
			h.j.add("negotiator.new")
			return h.neg, nil
		},
		Notifier: notify.Func(func(_ context.Context, n notify.Notice) error {
			h.notices = append(h.notices, n)
			return nil
		}),
	}
}

var offer = events.SessionDescription{SDP: "v=0\r\n", Type: events.TypeOffer}

func push(kinds ...events.Event) func(q *events.Queue) {
	return func(q *events.Queue) {
		for _, ev := range kinds {
			q.Push(ev)
		}
	}
}

func created(room string) events.Event {
	return events.New(events.RoomCreated, events.Room{Name: room})
}

var errUnreachable = callerr.Connection("connect", errors.New("dial tcp: connection refused"))
