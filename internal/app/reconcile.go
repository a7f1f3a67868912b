package app

import (
	"context"
	"fmt"

	"ridelink/pkg/treestore"
)

// ReconcileReport summarizes one audit pass over the adjacency indexes.
type ReconcileReport struct {
	// Missing lists index paths whose primary record exists but whose
	// index entry was absent (the fan-out gap this audit exists for).
	Missing []string `json:"missing,omitempty"`
	// Dangling lists index paths that reference a primary record that no
	// longer exists. Readers already treat them as absence.
	Dangling []string `json:"dangling,omitempty"`
	// Repaired and Removed list the paths actually fixed; both stay empty
	// outside repair mode.
	Repaired []string `json:"repaired,omitempty"`
	Removed  []string `json:"removed,omitempty"`
}

// Reconcile audits the denormalized indexes against the primary records.
// Cross-path writes are not transactional, so a crash or failed index write
// can leave a drive or chat unreachable from its users; this pass finds
// those gaps and, in repair mode, rewrites the missing entries and removes
// dangling ones.
//
// An index entry is only expected while its user (or drive) record exists:
// deleting a user orphans their drives on purpose, and the audit must not
// resurrect the user record by writing into it.
func (a *App) Reconcile(ctx context.Context, repair bool) (ReconcileReport, error) {
	var report ReconcileReport

	users, err := a.ListUsers(ctx)
	if err != nil {
		return report, err
	}
	drives, err := a.ListDrives(ctx)
	if err != nil {
		return report, err
	}
	chats, err := a.listChats(ctx)
	if err != nil {
		return report, err
	}
	driveIDs := make(map[string]bool, len(drives))
	for _, d := range drives {
		driveIDs[d.ID] = true
	}
	chatIDs := make(map[string]bool, len(chats))
	for id := range chats {
		chatIDs[id] = true
	}

	var expected []string
	for _, d := range drives {
		if _, ok := users[d.Username]; ok {
			expected = append(expected, treestore.Join(usersPath, d.Username, drivesPath, d.ID))
		}
	}
	for id, chat := range chats {
		for _, p := range chat.Participants {
			if _, ok := users[p]; ok {
				expected = append(expected, treestore.Join(usersPath, p, chatsPath, id))
			}
		}
		if driveIDs[chat.DriveID] {
			expected = append(expected, treestore.Join(drivesPath, chat.DriveID, chatsPath, id))
		}
	}
	for _, path := range expected {
		value, err := a.store.Read(ctx, path)
		if err != nil {
			return report, fmt.Errorf("reconcile read %s: %w", path, err)
		}
		if value != nil {
			continue
		}
		report.Missing = append(report.Missing, path)
		if !repair {
			continue
		}
		if err := a.store.Write(ctx, path, true); err != nil {
			return report, fmt.Errorf("reconcile repair %s: %w", path, err)
		}
		report.Repaired = append(report.Repaired, path)
	}

	// Reverse direction: index entries pointing at removed primaries.
	for username, user := range users {
		for driveID := range user.Drives {
			if !driveIDs[driveID] {
				a.flagDangling(ctx, &report, repair, treestore.Join(usersPath, username, drivesPath, driveID))
			}
		}
		for chatID := range user.Chats {
			if !chatIDs[chatID] {
				a.flagDangling(ctx, &report, repair, treestore.Join(usersPath, username, chatsPath, chatID))
			}
		}
	}
	for _, d := range drives {
		for chatID := range d.Chats {
			if !chatIDs[chatID] {
				a.flagDangling(ctx, &report, repair, treestore.Join(drivesPath, d.ID, chatsPath, chatID))
			}
		}
	}
	return report, nil
}

func (a *App) flagDangling(ctx context.Context, report *ReconcileReport, repair bool, path string) {
	report.Dangling = append(report.Dangling, path)
	if !repair {
		return
	}
	if err := a.store.Delete(ctx, path); err != nil {
		a.logger.Warn("dangling index removal failed", "path", path, "err", err)
		return
	}
	report.Removed = append(report.Removed, path)
}

// listChats loads all chat records keyed by id. Internal to reconciliation;
// the public surface reads chats one at a time.
func (a *App) listChats(ctx context.Context) (map[string]chatRecord, error) {
	raw, err := a.store.Read(ctx, chatsPath)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	chats := make(map[string]chatRecord)
	if raw == nil {
		return chats, nil
	}
	if err := treestore.Decode(raw, &chats); err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	return chats, nil
}

// chatRecord is the slice of a chat the audit needs.
type chatRecord struct {
	DriveID      string   `json:"driveId"`
	Participants []string `json:"participants"`
}
