package session

import (
	"context"

	"github.com/looplab/fsm"
)

// State is a controller state. Every call starts and ends in StateIdle.
type State = string

const (
	StateIdle           State = "idle"
	StateConnected      State = "connected"
	StateRoomPending    State = "room_pending"
	StateAwaitingPeer   State = "awaiting_peer"
	StateAwaitingInvite State = "awaiting_invite"
	StateNegotiating    State = "negotiating"
	StateActive         State = "active"
	StateClosing        State = "closing"
)

// Machine events.
const (
	evConnect     = "connect"
	evJoin        = "join"
	evRoomCreated = "room_created"
	evPeerArrived = "peer_arrived"
	evInvite      = "invite"
	evAnswered    = "answered"
	evTerminate   = "terminate"
	evFail        = "fail"
	evAbort       = "abort"
	evClose       = "close"
)

func newMachine(onTransition func(from, to State)) *fsm.FSM {
	return fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: evConnect, Src: []string{StateIdle}, Dst: StateConnected},
			{Name: evJoin, Src: []string{StateConnected}, Dst: StateRoomPending},
			{Name: evRoomCreated, Src: []string{StateRoomPending}, Dst: StateAwaitingPeer},
			{Name: evPeerArrived, Src: []string{StateAwaitingPeer}, Dst: StateAwaitingInvite},
			{Name: evInvite, Src: []string{StateAwaitingInvite}, Dst: StateNegotiating},
			{Name: evAnswered, Src: []string{StateNegotiating}, Dst: StateActive},
			{Name: evTerminate, Src: []string{StateActive}, Dst: StateClosing},
			{Name: evFail, Src: []string{StateNegotiating, StateActive}, Dst: StateClosing},
			{Name: evAbort, Src: []string{StateConnected, StateRoomPending, StateAwaitingPeer, StateAwaitingInvite}, Dst: StateIdle},
			{Name: evClose, Src: []string{StateClosing}, Dst: StateIdle},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				onTransition(e.Src, e.Dst)
			},
		},
	)
}
