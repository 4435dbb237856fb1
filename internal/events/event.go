package events

import "fmt"

// Kind identifies a signaling event flowing through the queue.
type Kind int

const (
	RoomCreated Kind = iota + 1
	RoomJoined
	RoomFull
	PeerArrived
	Invite
	Acknowledge
	Terminate
)

func (k Kind) String() string {
	switch k {
	case RoomCreated:
		return "RoomCreated"
	case RoomJoined:
		return "RoomJoined"
	case RoomFull:
		return "RoomFull"
	case PeerArrived:
		return "PeerArrived"
	case Invite:
		return "Invite"
	case Acknowledge:
		return "Acknowledge"
	case Terminate:
		return "Terminate"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// DescriptionType is the role of a session description in an offer/answer exchange.
type DescriptionType string

const (
	TypeOffer  DescriptionType = "offer"
	TypeAnswer DescriptionType = "answer"
)

// Payload is implemented by every value an Event can carry.
type Payload interface {
	isPayload()
}

// Room carries a room name (created, joined, full, bye).
type Room struct {
	Name string
}

// SessionDescription is an SDP offer or answer. It is never mutated after creation.
type SessionDescription struct {
	SDP  string          `json:"sdp"`
	Type DescriptionType `json:"type"`
}

func (Room) isPayload()               {}
func (SessionDescription) isPayload() {}

// Event is a single queued signaling event.
type Event struct {
	Kind    Kind
	Payload Payload
}

// New builds an event with the given payload (which may be nil).
func New(kind Kind, payload Payload) Event {
	return Event{Kind: kind, Payload: payload}
}

// Room returns the room name carried by the event, if any.
func (e Event) Room() (string, bool) {
	r, ok := e.Payload.(Room)
	if !ok {
		return "", false
	}
	return r.Name, true
}

// Description returns the session description carried by the event, if any.
func (e Event) Description() (SessionDescription, bool) {
	d, ok := e.Payload.(SessionDescription)
	return d, ok
}

func (e Event) String() string {
	switch p := e.Payload.(type) {
	case Room:
		return fmt.Sprintf("%s(%s)", e.Kind, p.Name)
	case SessionDescription:
		return fmt.Sprintf("%s(%s)", e.Kind, p.Type)
	default:
		return e.Kind.String()
	}
}
