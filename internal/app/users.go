package app

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"

	"ridelink/pkg/domain"
	"ridelink/pkg/treestore"
)

// hashNumber derives the stable pseudonymous identifier for a phone number.
// It is an opaque handle, not a security boundary: the same number always
// yields the same hash so re-registration keeps the same identity subject.
func hashNumber(number string) string {
	sum := sha3.Sum256([]byte(number))
	return hex.EncodeToString(sum[:])
}

// RegisterUser creates (or silently replaces) the user record keyed by
// username and returns it with a freshly issued auth token.
//
// Replacement is wholesale: a re-registration resets created/modified and
// drops the drives/chats index maps. That matches the deployed behavior the
// clients rely on; Reconcile rebuilds the dropped index entries.
func (a *App) RegisterUser(ctx context.Context, username, number, location string) (domain.User, error) {
	username = strings.TrimSpace(username)
	number = strings.TrimSpace(number)
	if username == "" {
		return domain.User{}, ErrUsernameRequired
	}
	if number == "" {
		return domain.User{}, ErrNumberRequired
	}
	hash := hashNumber(number)
	token, err := a.issuer.IssueToken(hash)
	if err != nil {
		return domain.User{}, fmt.Errorf("issue token: %w", err)
	}
	now := a.nowMillis()
	user := domain.User{
		UUID:     uuid.NewString(),
		Username: username,
		Number:   number,
		Location: location,
		Hash:     hash,
		Token:    token,
		Created:  now,
		Modified: now,
	}
	if err := a.store.Write(ctx, userPath(username), user); err != nil {
		return domain.User{}, fmt.Errorf("store user: %w", err)
	}
	return user, nil
}

// AttachDevice merges the push device token into an existing user record
// without touching any other field.
func (a *App) AttachDevice(ctx context.Context, username, deviceToken string) (domain.User, error) {
	username = strings.TrimSpace(username)
	deviceToken = strings.TrimSpace(deviceToken)
	if username == "" {
		return domain.User{}, ErrUsernameRequired
	}
	if deviceToken == "" {
		return domain.User{}, ErrDeviceTokenRequired
	}
	user, ok, err := a.GetUser(ctx, username)
	if err != nil {
		return domain.User{}, err
	}
	if !ok {
		return domain.User{}, ErrUserNotFound
	}
	now := a.nowMillis()
	err = a.store.Merge(ctx, userPath(username), map[string]any{
		"deviceToken": deviceToken,
		"modified":    now,
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("store device token: %w", err)
	}
	user.DeviceToken = deviceToken
	user.Modified = now
	return user, nil
}

// GetUser returns the user record, reporting absence without an error.
func (a *App) GetUser(ctx context.Context, username string) (domain.User, bool, error) {
	if strings.TrimSpace(username) == "" {
		return domain.User{}, false, ErrUsernameRequired
	}
	raw, err := a.store.Read(ctx, userPath(username))
	if err != nil {
		return domain.User{}, false, fmt.Errorf("load user: %w", err)
	}
	if raw == nil {
		return domain.User{}, false, nil
	}
	var user domain.User
	if err := treestore.Decode(raw, &user); err != nil {
		return domain.User{}, false, fmt.Errorf("load user: %w", err)
	}
	return user, true, nil
}

// RemoveUser deletes the user record. Absent usernames are a no-op; the
// user's drives and chats stay addressable (indexes become dangling and are
// treated as absence by readers).
func (a *App) RemoveUser(ctx context.Context, username string) error {
	if strings.TrimSpace(username) == "" {
		return ErrUsernameRequired
	}
	if err := a.store.Delete(ctx, userPath(username)); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

// ListUsers returns every registered user keyed by username. Full scan,
// suitable for the small registries this service manages.
func (a *App) ListUsers(ctx context.Context) (map[string]domain.User, error) {
	raw, err := a.store.Read(ctx, usersPath)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	users := make(map[string]domain.User)
	if raw == nil {
		return users, nil
	}
	if err := treestore.Decode(raw, &users); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	for username, user := range users {
		user.Username = username
		users[username] = user
	}
	return users, nil
}
