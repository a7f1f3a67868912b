package app

import (
	"context"
	"fmt"
	"strings"

	"ridelink/pkg/domain"
	"ridelink/pkg/fanout"
	"ridelink/pkg/notify"
	"ridelink/pkg/treestore"
)

// OpenChat creates a chat bound to a drive. The requester becomes the first
// participant, the drive owner the second. Three index writes make the chat
// discoverable from both users and from the drive; all are best-effort.
func (a *App) OpenChat(ctx context.Context, driveID, requester string) (domain.Chat, error) {
	requester = strings.TrimSpace(requester)
	if requester == "" {
		return domain.Chat{}, ErrUsernameRequired
	}
	drive, ok, err := a.GetDrive(ctx, driveID)
	if err != nil {
		return domain.Chat{}, err
	}
	if !ok {
		return domain.Chat{}, ErrDriveNotFound
	}
	owner := drive.Username
	if requester == owner && !a.allowSelfChat {
		return domain.Chat{}, ErrSelfChat
	}
	now := a.nowMillis()
	chat := domain.Chat{
		DriveID:      driveID,
		Title:        drive.From + " - " + drive.To,
		Participants: []string{requester, owner},
		Created:      now,
		Modified:     now,
	}
	id, err := a.fan.WritePrimary(ctx, chatsPath, chat)
	if err != nil {
		return domain.Chat{}, err
	}
	chat.ID = id
	_ = a.fan.WriteIndexes(ctx,
		fanout.IndexEntry{Path: treestore.Join(usersPath, requester, chatsPath, id), Value: true},
		fanout.IndexEntry{Path: treestore.Join(usersPath, owner, chatsPath, id), Value: true},
		fanout.IndexEntry{Path: treestore.Join(drivesPath, driveID, chatsPath, id), Value: true},
	)
	return chat, nil
}

// PostMessage appends a message to a chat, refreshes the user→chat index
// for both participants, and pushes a notification to the counterpart's
// device when one is registered. Only participants may post.
func (a *App) PostMessage(ctx context.Context, chatID, username, text string) (domain.Message, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return domain.Message{}, ErrUsernameRequired
	}
	if strings.TrimSpace(text) == "" {
		return domain.Message{}, ErrMessageRequired
	}
	chat, ok, err := a.GetChat(ctx, chatID)
	if err != nil {
		return domain.Message{}, err
	}
	if !ok {
		return domain.Message{}, ErrChatNotFound
	}
	recipient, ok := chat.Recipient(username)
	if !ok {
		return domain.Message{}, ErrNotParticipant
	}
	now := a.nowMillis()
	msg := domain.Message{
		Username: username,
		Message:  text,
		Created:  now,
		Modified: now,
	}
	id, err := a.fan.WritePrimary(ctx, treestore.Join(chatsPath, chatID, "messages"), msg)
	if err != nil {
		return domain.Message{}, err
	}
	msg.ID = id
	// Index entries are keyed by the chat id, so each participant lists
	// the chat once no matter how many messages it carries.
	_ = a.fan.WriteIndexes(ctx,
		fanout.IndexEntry{Path: treestore.Join(usersPath, chat.Participants[0], chatsPath, chatID), Value: true},
		fanout.IndexEntry{Path: treestore.Join(usersPath, chat.Participants[1], chatsPath, chatID), Value: true},
	)
	if err := a.store.Merge(ctx, chatPath(chatID), map[string]any{"modified": now}); err != nil {
		a.logger.Warn("chat modified refresh failed", "chat_id", chatID, "err", err)
	}
	a.notifyRecipient(ctx, chat, msg, recipient)
	return msg, nil
}

// notifyRecipient is fire-and-forget: a missing device token skips the push
// silently, a transport failure is logged and never surfaced to the sender.
func (a *App) notifyRecipient(ctx context.Context, chat domain.Chat, msg domain.Message, recipient string) {
	user, ok, err := a.GetUser(ctx, recipient)
	if err != nil {
		a.logger.Warn("push recipient lookup failed", "chat_id", chat.ID, "recipient", recipient, "err", err)
		return
	}
	if !ok || user.DeviceToken == "" {
		return
	}
	payload := notify.Payload{
		TargetToken: user.DeviceToken,
		Data: map[string]string{
			"chatId":    chat.ID,
			"messageId": msg.ID,
		},
		Title: chat.Title,
		Body:  msg.Message,
	}
	if err := a.notifier.Send(ctx, payload); err != nil {
		a.logger.Warn("push delivery failed", "chat_id", chat.ID, "message_id", msg.ID, "err", err)
	}
}

// GetChat returns the chat record with its messages, reporting absence
// without an error.
func (a *App) GetChat(ctx context.Context, id string) (domain.Chat, bool, error) {
	if strings.TrimSpace(id) == "" {
		return domain.Chat{}, false, fmt.Errorf("%w: chat id required", ErrInvalidInput)
	}
	raw, err := a.store.Read(ctx, chatPath(id))
	if err != nil {
		return domain.Chat{}, false, fmt.Errorf("load chat: %w", err)
	}
	if raw == nil {
		return domain.Chat{}, false, nil
	}
	var chat domain.Chat
	if err := treestore.Decode(raw, &chat); err != nil {
		return domain.Chat{}, false, fmt.Errorf("load chat: %w", err)
	}
	chat.ID = id
	for key, msg := range chat.Messages {
		msg.ID = key
		chat.Messages[key] = msg
	}
	return chat, true, nil
}

// GetMessage returns one message of a chat, reporting absence without an
// error.
func (a *App) GetMessage(ctx context.Context, chatID, messageID string) (domain.Message, bool, error) {
	if strings.TrimSpace(chatID) == "" || strings.TrimSpace(messageID) == "" {
		return domain.Message{}, false, fmt.Errorf("%w: chat id and message id required", ErrInvalidInput)
	}
	raw, err := a.store.Read(ctx, treestore.Join(chatsPath, chatID, "messages", messageID))
	if err != nil {
		return domain.Message{}, false, fmt.Errorf("load message: %w", err)
	}
	if raw == nil {
		return domain.Message{}, false, nil
	}
	var msg domain.Message
	if err := treestore.Decode(raw, &msg); err != nil {
		return domain.Message{}, false, fmt.Errorf("load message: %w", err)
	}
	msg.ID = messageID
	return msg, true, nil
}
