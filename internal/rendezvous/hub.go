package rendezvous

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/BioHazard786/doorcall/internal/metrics"
	"github.com/BioHazard786/doorcall/internal/room"
	"github.com/BioHazard786/doorcall/internal/signaling"
)

type envelope struct {
	msg  *signaling.Message
	from *Client
}

// Hub owns every room and client. All state is mutated from the Run goroutine only.
type Hub struct {
	rooms map[string]*Room

	register   chan *Client
	unregister chan *Client
	inbound    chan *envelope
	done       chan struct{}

	metrics *metrics.Metrics
	log     *slog.Logger
}

// NewHub creates a hub. m may be nil.
func NewHub(m *metrics.Metrics, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		rooms:      make(map[string]*Room),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan *envelope),
		done:       make(chan struct{}),
		metrics:    m,
		log:        log.With("component", "rendezvous"),
	}
}

// Run processes hub traffic until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.log.Debug("client registered", "remote", c.conn.RemoteAddr().String())

		case c := <-h.unregister:
			h.handleLeave(c, true)
			close(c.send)
			h.log.Debug("client unregistered", "remote", c.conn.RemoteAddr().String())

		case env := <-h.inbound:
			h.handle(env)
		}
	}
}

func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) dispatch(env *envelope) bool {
	select {
	case h.inbound <- env:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) handle(env *envelope) {
	msg, from := env.msg, env.from
	h.metrics.SignalingMessage(msg.Event)

	switch msg.Event {
	case signaling.EventJoin:
		var name string
		if err := json.Unmarshal(msg.Data, &name); err != nil || !room.Valid(name) {
			// Refused like a taken room so the joiner stops waiting.
			h.log.Warn("join with invalid room name", "remote", from.conn.RemoteAddr().String())
			h.send(from, signaling.EventFull, name)
			return
		}
		h.handleJoin(from, name)

	case signaling.EventInvite, signaling.EventOK, signaling.EventICECandidate:
		h.relay(from, msg)

	case signaling.EventBye:
		h.relay(from, msg)
		h.handleLeave(from, false)

	default:
		h.log.Debug("unknown event", "event", msg.Event)
	}
}

func (h *Hub) handleJoin(c *Client, name string) {
	if c.room != "" {
		h.handleLeave(c, true)
	}

	r, ok := h.rooms[name]
	switch {
	case !ok:
		r = &Room{Name: name}
		h.rooms[name] = r
		r.add(c)
		h.metrics.RoomOpened()
		h.log.Info("room created", "room", name)
		h.send(c, signaling.EventCreated, name)

	case r.full():
		h.log.Info("room full", "room", name)
		h.send(c, signaling.EventFull, name)

	default:
		peer := r.other(c)
		r.add(c)
		h.log.Info("peer joined", "room", name)
		h.send(c, signaling.EventJoined, name)
		if peer != nil {
			h.send(peer, signaling.EventNewPeer, nil)
		}
	}
}

// handleLeave removes c from its room. When notify is set the remaining
// participant gets a bye, as if c had hung up.
func (h *Hub) handleLeave(c *Client, notify bool) {
	if c.room == "" {
		return
	}
	r, ok := h.rooms[c.room]
	if !ok {
		c.room = ""
		return
	}

	name := r.Name
	r.remove(c)
	if peer := r.other(c); peer != nil && notify {
		h.send(peer, signaling.EventBye, name)
	}
	if len(r.Members) == 0 {
		delete(h.rooms, name)
		h.metrics.RoomClosed()
		h.log.Info("room closed", "room", name)
	}
}

func (h *Hub) relay(from *Client, msg *signaling.Message) {
	if from.room == "" {
		h.log.Debug("relay outside a room", "event", msg.Event)
		return
	}
	r, ok := h.rooms[from.room]
	if !ok {
		return
	}
	if peer := r.other(from); peer != nil {
		h.deliver(peer, msg)
	}
}

func (h *Hub) send(c *Client, event string, data any) {
	msg, err := signaling.NewMessage(event, data)
	if err != nil {
		h.log.Error("encode message", "event", event, "error", err)
		return
	}
	h.deliver(c, msg)
}

// deliver never blocks the hub; a client that cannot keep up loses messages.
func (h *Hub) deliver(c *Client, msg *signaling.Message) {
	select {
	case c.send <- msg:
	default:
		h.log.Warn("dropping message for slow client", "event", msg.Event)
	}
}
