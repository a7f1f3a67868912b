package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func seedDrive(t *testing.T, a *App) (ownerDrive string) {
	t.Helper()
	ctx := context.Background()
	if _, err := a.RegisterUser(ctx, "owner", "555-1", "Berlin"); err != nil {
		t.Fatalf("register owner: %v", err)
	}
	if _, err := a.RegisterUser(ctx, "rider", "555-2", "Hamburg"); err != nil {
		t.Fatalf("register rider: %v", err)
	}
	drive, err := a.PostDrive(ctx, "owner", "Berlin", "Hamburg")
	if err != nil {
		t.Fatalf("post drive: %v", err)
	}
	return drive.ID
}

func TestOpenChatBuildsTitleAndParticipants(t *testing.T) {
	a, store, _ := newTestApp(t)
	ctx := context.Background()
	driveID := seedDrive(t, a)

	chat, err := a.OpenChat(ctx, driveID, "rider")
	if err != nil {
		t.Fatalf("open chat: %v", err)
	}
	if chat.Title != "Berlin - Hamburg" {
		t.Fatalf("unexpected title: %q", chat.Title)
	}
	if !chat.HasParticipant("owner") || !chat.HasParticipant("rider") || len(chat.Participants) != 2 {
		t.Fatalf("unexpected participants: %v", chat.Participants)
	}
	if chat.DriveID != driveID {
		t.Fatalf("chat must reference its drive")
	}
	for _, path := range []string{
		"users/rider/chats/" + chat.ID,
		"users/owner/chats/" + chat.ID,
		"drives/" + driveID + "/chats/" + chat.ID,
	} {
		entry, err := store.Read(ctx, path)
		if err != nil {
			t.Fatalf("read %s: %v", path, err)
		}
		if entry != true {
			t.Fatalf("missing index entry at %s", path)
		}
	}
}

func TestOpenChatUnknownDrive(t *testing.T) {
	a, _, _ := newTestApp(t)
	if _, err := a.OpenChat(context.Background(), "nope", "rider"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOpenChatRejectsSelfChatByDefault(t *testing.T) {
	a, _, _ := newTestApp(t)
	driveID := seedDrive(t, a)
	if _, err := a.OpenChat(context.Background(), driveID, "owner"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected self-chat rejection, got %v", err)
	}
}

func TestOpenChatSelfChatPolicySwitch(t *testing.T) {
	a, _, _ := newTestApp(t, func(cfg *Config) { cfg.AllowSelfChat = true })
	driveID := seedDrive(t, a)
	chat, err := a.OpenChat(context.Background(), driveID, "owner")
	if err != nil {
		t.Fatalf("policy should permit self-chat: %v", err)
	}
	if len(chat.Participants) != 2 {
		t.Fatalf("self-chat still records both slots: %v", chat.Participants)
	}
}

func TestPostMessageRejectsNonParticipant(t *testing.T) {
	a, _, _ := newTestApp(t)
	ctx := context.Background()
	driveID := seedDrive(t, a)
	chat, err := a.OpenChat(ctx, driveID, "rider")
	if err != nil {
		t.Fatalf("open chat: %v", err)
	}
	if _, err := a.PostMessage(ctx, chat.ID, "stranger", "hi"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected non-participant rejection, got %v", err)
	}
}

func TestPostMessageUnknownChat(t *testing.T) {
	a, _, _ := newTestApp(t)
	if _, err := a.PostMessage(context.Background(), "nope", "rider", "hi"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPostMessageNotifiesRecipientDevice(t *testing.T) {
	a, _, notifier := newTestApp(t)
	ctx := context.Background()
	driveID := seedDrive(t, a)
	if _, err := a.AttachDevice(ctx, "owner", "owner-device"); err != nil {
		t.Fatalf("attach device: %v", err)
	}
	chat, err := a.OpenChat(ctx, driveID, "rider")
	if err != nil {
		t.Fatalf("open chat: %v", err)
	}
	msg, err := a.PostMessage(ctx, chat.ID, "rider", "see you at 9")
	if err != nil {
		t.Fatalf("post message: %v", err)
	}
	sent := notifier.payloads()
	if len(sent) != 1 {
		t.Fatalf("expected one push, got %d", len(sent))
	}
	p := sent[0]
	if p.TargetToken != "owner-device" {
		t.Fatalf("push must target the counterpart, got %q", p.TargetToken)
	}
	if p.Data["chatId"] != chat.ID || p.Data["messageId"] != msg.ID {
		t.Fatalf("correlation ids mismatch: %#v", p.Data)
	}
	if p.Title != chat.Title || p.Body != "see you at 9" {
		t.Fatalf("unexpected payload: %#v", p)
	}
}

func TestPostMessageWithoutDeviceTokenSkipsPush(t *testing.T) {
	a, _, notifier := newTestApp(t)
	ctx := context.Background()
	driveID := seedDrive(t, a)
	chat, err := a.OpenChat(ctx, driveID, "rider")
	if err != nil {
		t.Fatalf("open chat: %v", err)
	}
	if _, err := a.PostMessage(ctx, chat.ID, "rider", "hello"); err != nil {
		t.Fatalf("post message: %v", err)
	}
	if len(notifier.payloads()) != 0 {
		t.Fatalf("no device token registered, push must be skipped")
	}
}

func TestPostMessageSwallowsNotifierFailure(t *testing.T) {
	a, _, notifier := newTestApp(t)
	ctx := context.Background()
	driveID := seedDrive(t, a)
	if _, err := a.AttachDevice(ctx, "owner", "owner-device"); err != nil {
		t.Fatalf("attach device: %v", err)
	}
	chat, err := a.OpenChat(ctx, driveID, "rider")
	if err != nil {
		t.Fatalf("open chat: %v", err)
	}
	notifier.fail = errors.New("push endpoint down")
	msg, err := a.PostMessage(ctx, chat.ID, "rider", "hi")
	if err != nil {
		t.Fatalf("notifier failure must never fail the post: %v", err)
	}
	if msg.ID == "" {
		t.Fatalf("message must still be stored")
	}
}

func TestPostMessageRecipientIsAlwaysTheOtherParticipant(t *testing.T) {
	a, _, notifier := newTestApp(t)
	ctx := context.Background()
	driveID := seedDrive(t, a)
	if _, err := a.AttachDevice(ctx, "owner", "owner-device"); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if _, err := a.AttachDevice(ctx, "rider", "rider-device"); err != nil {
		t.Fatalf("attach: %v", err)
	}
	chat, err := a.OpenChat(ctx, driveID, "rider")
	if err != nil {
		t.Fatalf("open chat: %v", err)
	}
	if _, err := a.PostMessage(ctx, chat.ID, "rider", "from rider"); err != nil {
		t.Fatalf("post: %v", err)
	}
	if _, err := a.PostMessage(ctx, chat.ID, "owner", "from owner"); err != nil {
		t.Fatalf("post: %v", err)
	}
	sent := notifier.payloads()
	if len(sent) != 2 {
		t.Fatalf("expected two pushes, got %d", len(sent))
	}
	if sent[0].TargetToken != "owner-device" || sent[1].TargetToken != "rider-device" {
		t.Fatalf("pushes must cross over: %q then %q", sent[0].TargetToken, sent[1].TargetToken)
	}
}

func TestConcurrentPostMessagesLoseNothing(t *testing.T) {
	a, _, _ := newTestApp(t)
	ctx := context.Background()
	driveID := seedDrive(t, a)
	chat, err := a.OpenChat(ctx, driveID, "rider")
	if err != nil {
		t.Fatalf("open chat: %v", err)
	}

	const workers = 12
	ids := make(chan string, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			msg, err := a.PostMessage(ctx, chat.ID, "rider", fmt.Sprintf("message %d", i))
			if err != nil {
				t.Errorf("post message %d: %v", i, err)
				return
			}
			ids <- msg.ID
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate message id %s", id)
		}
		seen[id] = true
	}
	stored, ok, err := a.GetChat(ctx, chat.ID)
	if err != nil || !ok {
		t.Fatalf("get chat: ok=%v err=%v", ok, err)
	}
	if len(stored.Messages) != workers {
		t.Fatalf("expected %d messages, got %d", workers, len(stored.Messages))
	}
	for id := range seen {
		if _, ok := stored.Messages[id]; !ok {
			t.Fatalf("message %s lost", id)
		}
	}
}

func TestGetMessageRoundTrip(t *testing.T) {
	a, _, _ := newTestApp(t)
	ctx := context.Background()
	driveID := seedDrive(t, a)
	chat, err := a.OpenChat(ctx, driveID, "rider")
	if err != nil {
		t.Fatalf("open chat: %v", err)
	}
	msg, err := a.PostMessage(ctx, chat.ID, "rider", "hello there")
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	got, ok, err := a.GetMessage(ctx, chat.ID, msg.ID)
	if err != nil || !ok {
		t.Fatalf("get message: ok=%v err=%v", ok, err)
	}
	if got.Message != "hello there" || got.Username != "rider" || got.ID != msg.ID {
		t.Fatalf("round trip mismatch: %#v", got)
	}
	if _, ok, err := a.GetMessage(ctx, chat.ID, "absent"); err != nil || ok {
		t.Fatalf("absent message must report ok=false without error, ok=%v err=%v", ok, err)
	}
}
