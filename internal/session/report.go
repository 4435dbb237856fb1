package session

import "time"

// Outcome classifies how a call ended.
type Outcome string

const (
	OutcomeCompleted     Outcome = "completed"
	OutcomeRoomTaken     Outcome = "aborted_room_taken"
	OutcomePeerTimeout   Outcome = "peer_timeout"
	OutcomeInviteTimeout Outcome = "invite_timeout"
	OutcomeNoTerminate   Outcome = "no_terminate"
	OutcomeFailed        Outcome = "failed"
	OutcomeCanceled      Outcome = "canceled"
)

// Report describes one finished call.
type Report struct {
	SessionID string
	Room      string
	Outcome   Outcome
	// Path lists every state entered, starting with idle.
	Path []State
	// Emitted lists the outbound signaling events in the order they were sent.
	Emitted []string
	Started time.Time
	Ended   time.Time
	Err     error
}

func (r Report) Duration() time.Duration {
	return r.Ended.Sub(r.Started)
}
