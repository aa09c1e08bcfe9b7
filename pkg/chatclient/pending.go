package chatclient

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type PendingState int

const (
	StatePending PendingState = iota
	StateConfirmed
	StateFailed
)

func (s PendingState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateConfirmed:
		return "confirmed"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("PendingState(%d)", int(s))
}

var ErrInvalidTransition = errors.New("chatclient: invalid pending transition")

// PendingMessage is an optimistic placeholder for one send attempt.
// It moves Pending -> Confirmed or Pending -> Failed, exactly once.
type PendingMessage struct {
	TempID      string
	RoomID      string
	Draft       Draft
	SubmittedAt time.Time

	State    PendingState
	ServerID string
	Err      error
}

func NewPending(roomID string, d Draft, now time.Time) *PendingMessage {
	if d.Kind == "" {
		d.Kind = KindText
	}
	return &PendingMessage{
		TempID:      "temp-" + uuid.NewString(),
		RoomID:      roomID,
		Draft:       d,
		SubmittedAt: now,
		State:       StatePending,
	}
}

func (p *PendingMessage) Confirm(serverID string) error {
	if p.State != StatePending || serverID == "" {
		return fmt.Errorf("%w: confirm from %s", ErrInvalidTransition, p.State)
	}
	p.State = StateConfirmed
	p.ServerID = serverID
	return nil
}

func (p *PendingMessage) Fail(err error) error {
	if p.State != StatePending {
		return fmt.Errorf("%w: fail from %s", ErrInvalidTransition, p.State)
	}
	p.State = StateFailed
	p.Err = err
	return nil
}

// Retry starts a new, distinct attempt with the same draft.
func (p *PendingMessage) Retry(now time.Time) *PendingMessage {
	return NewPending(p.RoomID, p.Draft, now)
}
