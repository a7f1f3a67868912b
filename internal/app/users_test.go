package app

import (
	"context"
	"errors"
	"testing"
)

func TestRegisterUserStoresRecordAndIssuesToken(t *testing.T) {
	a, _, _ := newTestApp(t)
	ctx := context.Background()

	user, err := a.RegisterUser(ctx, "alice", "555-0100", "Berlin")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.UUID == "" {
		t.Fatalf("expected generated uuid")
	}
	if user.Hash == "" || user.Hash == "555-0100" {
		t.Fatalf("expected derived hash, got %q", user.Hash)
	}
	if user.Token != "token-for-"+user.Hash {
		t.Fatalf("token not keyed by number hash: %q", user.Token)
	}
	if user.Created == 0 || user.Created != user.Modified {
		t.Fatalf("expected created == modified, got %d/%d", user.Created, user.Modified)
	}
	stored, ok, err := a.GetUser(ctx, "alice")
	if err != nil || !ok {
		t.Fatalf("get after register: ok=%v err=%v", ok, err)
	}
	if stored.Location != "Berlin" || stored.Number != "555-0100" {
		t.Fatalf("stored record mismatch: %#v", stored)
	}
}

func TestRegisterUserValidatesInput(t *testing.T) {
	a, _, _ := newTestApp(t)
	ctx := context.Background()

	if _, err := a.RegisterUser(ctx, "", "555", "X"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for empty username, got %v", err)
	}
	if _, err := a.RegisterUser(ctx, "alice", "", "X"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for empty number, got %v", err)
	}
}

func TestReRegisterOverwritesRecord(t *testing.T) {
	a, store, _ := newTestApp(t)
	ctx := context.Background()

	first, err := a.RegisterUser(ctx, "a", "555", "X")
	if err != nil {
		t.Fatalf("first register: %v", err)
	}
	// Simulate an index entry added later by the drive ledger.
	if err := store.Write(ctx, "users/a/drives/d1", true); err != nil {
		t.Fatalf("seed index: %v", err)
	}
	second, err := a.RegisterUser(ctx, "a", "555", "Y")
	if err != nil {
		t.Fatalf("second register: %v", err)
	}
	if second.Hash != first.Hash {
		t.Fatalf("same number must derive same hash: %q vs %q", first.Hash, second.Hash)
	}
	stored, ok, err := a.GetUser(ctx, "a")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if stored.Created != second.Created || stored.Created <= first.Created {
		t.Fatalf("overwrite must reset created: first=%d second=%d stored=%d",
			first.Created, second.Created, stored.Created)
	}
	if stored.Location != "Y" {
		t.Fatalf("expected overwritten location, got %q", stored.Location)
	}
	if len(stored.Drives) != 0 {
		t.Fatalf("overwrite semantics drop index maps, got %#v", stored.Drives)
	}
}

func TestAttachDevice(t *testing.T) {
	a, _, _ := newTestApp(t)
	ctx := context.Background()

	if _, err := a.AttachDevice(ctx, "ghost", "tok"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	registered, err := a.RegisterUser(ctx, "bob", "556", "Rome")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	updated, err := a.AttachDevice(ctx, "bob", "device-token-1")
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if updated.DeviceToken != "device-token-1" {
		t.Fatalf("device token not set: %#v", updated)
	}
	if updated.Modified <= registered.Modified {
		t.Fatalf("modified must advance on attach")
	}
	stored, ok, _ := a.GetUser(ctx, "bob")
	if !ok || stored.DeviceToken != "device-token-1" || stored.Location != "Rome" {
		t.Fatalf("merge must keep other fields: %#v", stored)
	}
	if stored.Token != registered.Token {
		t.Fatalf("attach must not touch the auth token")
	}
}

func TestGetUserAbsentIsNotAnError(t *testing.T) {
	a, _, _ := newTestApp(t)
	_, ok, err := a.GetUser(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected absence")
	}
}

func TestRemoveUserIsIdempotent(t *testing.T) {
	a, _, _ := newTestApp(t)
	ctx := context.Background()
	if _, err := a.RegisterUser(ctx, "carol", "557", "Oslo"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := a.RemoveUser(ctx, "carol"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok, _ := a.GetUser(ctx, "carol"); ok {
		t.Fatalf("user should be gone")
	}
	if err := a.RemoveUser(ctx, "carol"); err != nil {
		t.Fatalf("second remove should be a no-op: %v", err)
	}
}

func TestListUsers(t *testing.T) {
	a, _, _ := newTestApp(t)
	ctx := context.Background()
	for _, name := range []string{"u1", "u2", "u3"} {
		if _, err := a.RegisterUser(ctx, name, "555-"+name, "X"); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	users, err := a.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(users) != 3 {
		t.Fatalf("expected 3 users, got %d", len(users))
	}
	if users["u2"].Username != "u2" {
		t.Fatalf("expected map keyed by username: %#v", users["u2"])
	}
}
