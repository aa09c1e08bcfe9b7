package domain

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type Kind string

const (
	KindText    Kind = "TEXT"
	KindImage   Kind = "IMAGE"
	KindSystem  Kind = "SYSTEM"
	KindConfirm Kind = "CONFIRM"
)

func (k Kind) Valid() bool {
	switch k {
	case KindText, KindImage, KindSystem, KindConfirm:
		return true
	}
	return false
}

type Message struct {
	ID         string    `db:"id" json:"id"`
	RoomID     string    `db:"room_id" json:"roomId"`
	AuthorID   string    `db:"author_id" json:"authorId,omitempty"`
	Kind       Kind      `db:"kind" json:"kind"`
	Content    *string   `db:"content" json:"content"`
	Attachment *string   `db:"attachment_url" json:"attachment"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

// Before is the room-local total order: created_at, then id.
func (m Message) Before(o Message) bool {
	if !m.CreatedAt.Equal(o.CreatedAt) {
		return m.CreatedAt.Before(o.CreatedAt)
	}
	return m.ID < o.ID
}

// NewMessage is an append request; the store assigns id and timestamp.
type NewMessage struct {
	RoomID     string
	AuthorID   string
	Kind       Kind
	Content    *string
	Attachment *string
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewMessageID returns a ULID for t; ids created within the same millisecond stay increasing.
func NewMessageID(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// Now is the storage clock: UTC, truncated to what postgres keeps.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
