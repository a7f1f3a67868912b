package app

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"ridelink/pkg/domain"
	"ridelink/pkg/treestore"
)

// PostDrive appends a new active drive and indexes it under its owner.
// The index write is best-effort: on failure the drive still exists and
// Reconcile restores user→drive reachability.
func (a *App) PostDrive(ctx context.Context, username, from, to string) (domain.Drive, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return domain.Drive{}, ErrUsernameRequired
	}
	now := a.nowMillis()
	drive := domain.Drive{
		Username: username,
		From:     from,
		To:       to,
		Created:  now,
		Modified: now,
		Active:   true,
	}
	id, err := a.fan.WritePrimary(ctx, drivesPath, drive)
	if err != nil {
		return domain.Drive{}, err
	}
	drive.ID = id
	_ = a.fan.WriteIndex(ctx, treestore.Join(usersPath, username, drivesPath, id), true)
	return drive, nil
}

// CancelDrive flips a drive to inactive. Re-cancelling is allowed and only
// refreshes modified; active never goes back to true.
func (a *App) CancelDrive(ctx context.Context, id string) (domain.Drive, error) {
	drive, ok, err := a.GetDrive(ctx, id)
	if err != nil {
		return domain.Drive{}, err
	}
	if !ok {
		return domain.Drive{}, ErrDriveNotFound
	}
	now := a.nowMillis()
	// Cancellation must be observable through modified even within one
	// clock millisecond.
	if now <= drive.Modified {
		now = drive.Modified + 1
	}
	err = a.store.Merge(ctx, drivePath(id), map[string]any{
		"active":   false,
		"modified": now,
	})
	if err != nil {
		return domain.Drive{}, fmt.Errorf("cancel drive: %w", err)
	}
	drive.Active = false
	drive.Modified = now
	return drive, nil
}

// GetDrive returns the drive record, reporting absence without an error.
func (a *App) GetDrive(ctx context.Context, id string) (domain.Drive, bool, error) {
	if strings.TrimSpace(id) == "" {
		return domain.Drive{}, false, fmt.Errorf("%w: drive id required", ErrInvalidInput)
	}
	raw, err := a.store.Read(ctx, drivePath(id))
	if err != nil {
		return domain.Drive{}, false, fmt.Errorf("load drive: %w", err)
	}
	if raw == nil {
		return domain.Drive{}, false, nil
	}
	var drive domain.Drive
	if err := treestore.Decode(raw, &drive); err != nil {
		return domain.Drive{}, false, fmt.Errorf("load drive: %w", err)
	}
	drive.ID = id
	return drive, true, nil
}

// ListDrives returns all drives in creation order.
func (a *App) ListDrives(ctx context.Context) ([]domain.Drive, error) {
	raw, err := a.store.Read(ctx, drivesPath)
	if err != nil {
		return nil, fmt.Errorf("list drives: %w", err)
	}
	if raw == nil {
		return nil, nil
	}
	byID := make(map[string]domain.Drive)
	if err := treestore.Decode(raw, &byID); err != nil {
		return nil, fmt.Errorf("list drives: %w", err)
	}
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	// Generated keys sort lexicographically in creation order.
	sort.Strings(ids)
	drives := make([]domain.Drive, 0, len(ids))
	for _, id := range ids {
		drive := byID[id]
		drive.ID = id
		drives = append(drives, drive)
	}
	return drives, nil
}

// ListDrivesByUsername returns the given owner's drives in creation order,
// resolved through the store's ordered equality query.
func (a *App) ListDrivesByUsername(ctx context.Context, username string) ([]domain.Drive, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrUsernameRequired
	}
	matches, err := a.store.QueryEqual(ctx, drivesPath, "username", username)
	if err != nil {
		return nil, fmt.Errorf("list drives by username: %w", err)
	}
	drives := make([]domain.Drive, 0, len(matches))
	for _, m := range matches {
		var drive domain.Drive
		if err := treestore.Decode(m.Value, &drive); err != nil {
			return nil, fmt.Errorf("list drives by username: %w", err)
		}
		drive.ID = m.Key
		drives = append(drives, drive)
	}
	return drives, nil
}
