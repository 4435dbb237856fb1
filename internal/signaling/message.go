package signaling

import "encoding/json"

// Message is one websocket frame exchanged with the rendezvous server.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Wire event names.
const (
	EventJoin = "join"
	EventOK   = "ok"
	EventBye  = "bye"

	EventCreated      = "created"
	EventJoined       = "joined"
	EventFull         = "full"
	EventNewPeer      = "new_peer"
	EventInvite       = "invite"
	EventICECandidate = "ice_candidate"
)

// NewMessage encodes data (which may be nil) into a Message.
func NewMessage(event string, data any) (*Message, error) {
	msg := &Message{Event: event}
	if data == nil {
		return msg, nil
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	msg.Data = raw
	return msg, nil
}
