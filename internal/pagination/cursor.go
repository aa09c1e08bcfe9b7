// Package pagination implements the keyset cursor shared by the message stores.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"
)

const (
	DefaultLimit = 100
	MaxLimit     = 500
)

var ErrInvalidCursor = fmt.Errorf("%w: invalid cursor", domain.ErrValidation)

// Cursor is the position of the last message a client has seen.
type Cursor struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
}

func After(m domain.Message) Cursor {
	return Cursor{CreatedAt: m.CreatedAt, ID: m.ID}
}

func Encode(c Cursor) string {
	data, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(data)
}

// Decode returns nil for an empty token.
func Decode(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: decode base64: %v", ErrInvalidCursor, err)
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: decode json: %v", ErrInvalidCursor, err)
	}
	if c.ID == "" || c.CreatedAt.IsZero() {
		return nil, ErrInvalidCursor
	}
	return &c, nil
}

func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Next is the cursor to continue from after page; an empty page keeps the previous token.
func Next(page []domain.Message, prev string) string {
	if len(page) == 0 {
		return prev
	}
	return Encode(After(page[len(page)-1]))
}
