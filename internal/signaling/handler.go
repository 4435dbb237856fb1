package signaling

import (
	"encoding/json"
	"fmt"

	"github.com/BioHazard786/doorcall/internal/events"
)

// Translate maps an inbound wire message to a queue event. ok is false for
// messages the call flow does not consume.
func Translate(msg *Message) (ev events.Event, ok bool) {
	switch msg.Event {
	case EventCreated:
		return events.New(events.RoomCreated, roomPayload(msg.Data)), true

	case EventJoined:
		return events.New(events.RoomJoined, roomPayload(msg.Data)), true

	case EventFull:
		return events.New(events.RoomFull, roomPayload(msg.Data)), true

	case EventNewPeer:
		return events.New(events.PeerArrived, nil), true

	case EventInvite:
		desc, err := decodeDescription(msg.Data)
		if err != nil {
			// Still delivered so the controller can fail the negotiation.
			return events.New(events.Invite, nil), true
		}
		return events.New(events.Invite, desc), true

	case EventBye:
		return events.New(events.Terminate, roomPayload(msg.Data)), true

	default:
		return events.Event{}, false
	}
}

// Encode maps an outbound event to its wire message.
func Encode(kind events.Kind, payload events.Payload) (*Message, error) {
	switch kind {
	case events.Acknowledge:
		desc, ok := payload.(events.SessionDescription)
		if !ok {
			return nil, fmt.Errorf("%s requires a session description", kind)
		}
		return NewMessage(EventOK, desc)

	case events.Terminate:
		switch p := payload.(type) {
		case nil:
			return NewMessage(EventBye, nil)
		case events.Room:
			return NewMessage(EventBye, p.Name)
		default:
			return nil, fmt.Errorf("%s payload must be a room or empty", kind)
		}

	default:
		return nil, fmt.Errorf("%s cannot be emitted", kind)
	}
}

// roomPayload returns nil when data is absent or not a JSON string.
func roomPayload(data json.RawMessage) events.Payload {
	if len(data) == 0 {
		return nil
	}
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return nil
	}
	return events.Room{Name: name}
}

func decodeDescription(data json.RawMessage) (events.SessionDescription, error) {
	var desc events.SessionDescription
	if len(data) == 0 {
		return desc, fmt.Errorf("empty session description")
	}
	if err := json.Unmarshal(data, &desc); err != nil {
		return desc, err
	}
	if desc.SDP == "" {
		return desc, fmt.Errorf("session description has no sdp")
	}
	return desc, nil
}
