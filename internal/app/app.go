// Package app holds the domain core: user registry, drive ledger, and chat
// coordination over a shared hierarchical store. Every operation is a short
// chain of sequential store calls with no in-process shared state; the
// denormalized adjacency indexes (user→drives, user→chats, drive→chats) are
// maintained through best-effort fan-out writes and repaired by Reconcile.
package app

import (
	"errors"
	"log/slog"
	"time"

	"ridelink/pkg/fanout"
	"ridelink/pkg/identity"
	"ridelink/pkg/notify"
	"ridelink/pkg/treestore"
)

const (
	usersPath  = "users"
	drivesPath = "drives"
	chatsPath  = "chats"
)

// Config wires the external collaborators into the core.
type Config struct {
	Store    treestore.Store
	Issuer   identity.Issuer
	Notifier notify.Notifier
	// AllowSelfChat permits a drive owner to open a chat on their own
	// drive. Off by default; kept as a policy switch because some markets
	// use self-chats as ride notes.
	AllowSelfChat bool
	Logger        *slog.Logger
	// Now overrides the clock in tests.
	Now func() time.Time
}

// App is the domain core, constructed once at process start.
type App struct {
	store         treestore.Store
	issuer        identity.Issuer
	notifier      notify.Notifier
	fan           *fanout.Writer
	allowSelfChat bool
	logger        *slog.Logger
	now           func() time.Time
}

// New validates the wiring and builds the core.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("app: store required")
	}
	if cfg.Issuer == nil {
		return nil, errors.New("app: identity issuer required")
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &App{
		store:         cfg.Store,
		issuer:        cfg.Issuer,
		notifier:      notifier,
		fan:           fanout.NewWriter(cfg.Store, logger),
		allowSelfChat: cfg.AllowSelfChat,
		logger:        logger,
		now:           now,
	}, nil
}

// nowMillis is the record timestamp: epoch milliseconds, matching the wire
// contract of the mobile clients.
func (a *App) nowMillis() int64 {
	return a.now().UnixMilli()
}

func userPath(username string) string {
	return treestore.Join(usersPath, username)
}

func drivePath(id string) string {
	return treestore.Join(drivesPath, id)
}

func chatPath(id string) string {
	return treestore.Join(chatsPath, id)
}
