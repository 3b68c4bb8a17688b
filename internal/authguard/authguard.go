// Package authguard classifies failed remote calls.
//
// An authentication failure is the only event that invalidates a whole
// session: the guard runs the session's reset hook once and sends the shopper
// to the login entry point. Every other failure leaves local state as it is
// and produces a transient notice.
package authguard

import (
	"errors"
	"log/slog"
	"sync"

	"storefront/internal/model"
)

// Outcome is what the guard did with a failure.
type Outcome int

const (
	OutcomeNone      Outcome = iota // no error
	OutcomeTransient                // notice surfaced, state kept
	OutcomeReset                    // session torn down
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeTransient:
		return "transient"
	case OutcomeReset:
		return "reset"
	default:
		return "unknown"
	}
}

// Level is the severity of a Notice.
type Level string

const (
	LevelTransient Level = "transient"
	LevelInfo      Level = "info"
)

// Notice is a user-visible message.
type Notice struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// Navigator moves the shopper to the login entry point.
type Navigator interface {
	ToLogin()
}

// Notifier surfaces a notice to the shopper.
type Notifier interface {
	Notify(Notice)
}

// Guard inspects failures for one session.
type Guard struct {
	reset    func()
	nav      Navigator
	notifier Notifier
	logger   *slog.Logger
}

// New creates a Guard. reset must clear every session-scoped store; it is
// called at most once per authentication failure.
func New(reset func(), nav Navigator, notifier Notifier, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{reset: reset, nav: nav, notifier: notifier, logger: logger}
}

// Check classifies err. op names the failed operation for logs.
func (g *Guard) Check(op string, err error) Outcome {
	if err == nil {
		return OutcomeNone
	}

	if model.IsAuthFailure(err) {
		g.logger.Warn("session rejected by storefront API, resetting", "op", op, "error", err)
		if g.reset != nil {
			g.reset()
		}
		if g.nav != nil {
			g.nav.ToLogin()
		}
		return OutcomeReset
	}

	g.logger.Warn("remote call failed", "op", op, "error", err)
	if g.notifier != nil {
		g.notifier.Notify(Notice{Level: LevelTransient, Message: model.UserMessage(err)})
	}
	return OutcomeTransient
}

// Inbox collects navigation and notices for a session until a transport
// drains them. It implements both Navigator and Notifier.
type Inbox struct {
	mu       sync.Mutex
	redirect bool
	notices  []Notice
}

// ToLogin implements Navigator.
func (b *Inbox) ToLogin() {
	b.mu.Lock()
	b.redirect = true
	b.mu.Unlock()
}

// Notify implements Notifier.
func (b *Inbox) Notify(n Notice) {
	b.mu.Lock()
	b.notices = append(b.notices, n)
	b.mu.Unlock()
}

// Drain returns and clears the pending redirect flag and notices.
func (b *Inbox) Drain() (redirect bool, notices []Notice) {
	b.mu.Lock()
	defer b.mu.Unlock()

	redirect, notices = b.redirect, b.notices
	b.redirect, b.notices = false, nil
	return redirect, notices
}

// IsLoginRequired reports whether err is a guest rejection that should send
// the shopper to login without a reset.
func IsLoginRequired(err error) bool {
	return errors.Is(err, model.ErrLoginRequired)
}

var (
	_ Navigator = (*Inbox)(nil)
	_ Notifier  = (*Inbox)(nil)
)
