package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrTransientDelivery = errors.New("transient delivery failure")
	ErrStore             = errors.New("store failure")

	// ErrAlreadyExists is a storage unique violation; it never leaves the service layer.
	ErrAlreadyExists = errors.New("already exists")
)

var (
	ErrRoomNotFound    = fmt.Errorf("room %w", ErrNotFound)
	ErrProductNotFound = fmt.Errorf("product %w", ErrNotFound)
	ErrNotParticipant  = fmt.Errorf("%w: not a room participant", ErrForbidden)
)

// Validationf builds an ErrValidation with a client-facing reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}
