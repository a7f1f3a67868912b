package app

import (
	"errors"
	"fmt"
)

// Error taxonomy: handlers branch on the two bases with errors.Is, the
// specific sentinels carry the user-visible message. Store and issuer
// failures are wrapped with %w and surface as neither base.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")

	ErrUsernameRequired    = fmt.Errorf("%w: username required", ErrInvalidInput)
	ErrNumberRequired      = fmt.Errorf("%w: number required", ErrInvalidInput)
	ErrDeviceTokenRequired = fmt.Errorf("%w: deviceToken required", ErrInvalidInput)
	ErrMessageRequired     = fmt.Errorf("%w: message required", ErrInvalidInput)
	ErrSelfChat            = fmt.Errorf("%w: cannot open a chat with yourself", ErrInvalidInput)
	ErrNotParticipant      = fmt.Errorf("%w: username is not a participant of this chat", ErrInvalidInput)

	ErrUserNotFound  = fmt.Errorf("user %w", ErrNotFound)
	ErrDriveNotFound = fmt.Errorf("drive %w", ErrNotFound)
	ErrChatNotFound  = fmt.Errorf("chat %w", ErrNotFound)
)
