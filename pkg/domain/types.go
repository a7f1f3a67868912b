package domain

// Field names on these records are part of the wire contract shared with the
// mobile clients and must not be renamed.

// User is a registered rider or driver, keyed by username.
type User struct {
	UUID        string          `json:"uuid"`
	Username    string          `json:"username"`
	Number      string          `json:"number"`
	Location    string          `json:"location"`
	Hash        string          `json:"hash"`
	Token       string          `json:"token"`
	DeviceToken string          `json:"deviceToken,omitempty"`
	Created     int64           `json:"created"`
	Modified    int64           `json:"modified"`
	Drives      map[string]bool `json:"drives,omitempty"`
	Chats       map[string]bool `json:"chats,omitempty"`
}

// Drive is a posted ride offer. It stays addressable after cancellation;
// Active flips to false exactly once and never back.
type Drive struct {
	ID       string          `json:"id,omitempty"`
	Username string          `json:"username"`
	From     string          `json:"from"`
	To       string          `json:"to"`
	Created  int64           `json:"created"`
	Modified int64           `json:"modified"`
	Active   bool            `json:"active"`
	Chats    map[string]bool `json:"chats,omitempty"`
}

// Chat is a two-party conversation bound to exactly one drive.
// Participants holds the requester first and the drive owner second.
type Chat struct {
	ID           string             `json:"id,omitempty"`
	DriveID      string             `json:"driveId"`
	Title        string             `json:"title"`
	Participants []string           `json:"participants"`
	Created      int64              `json:"created"`
	Modified     int64              `json:"modified"`
	Messages     map[string]Message `json:"messages,omitempty"`
}

// Message is a single chat message. Username must be one of the enclosing
// chat's two participants.
type Message struct {
	ID       string `json:"id,omitempty"`
	Username string `json:"username"`
	Message  string `json:"message"`
	Created  int64  `json:"created"`
	Modified int64  `json:"modified"`
}

// Recipient returns the participant on the other side of the given sender,
// or false when the sender is not part of the chat.
func (c Chat) Recipient(sender string) (string, bool) {
	if len(c.Participants) != 2 {
		return "", false
	}
	switch sender {
	case c.Participants[0]:
		return c.Participants[1], true
	case c.Participants[1]:
		return c.Participants[0], true
	}
	return "", false
}

// HasParticipant reports whether username is one of the chat's two parties.
func (c Chat) HasParticipant(username string) bool {
	for _, p := range c.Participants {
		if p == username {
			return true
		}
	}
	return false
}
