// Package notify provides cross-platform desktop notifications for Telestore.
// It uses github.com/gen2brain/beeep for cross-platform notification support.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gen2brain/beeep"

	"github.com/telestore/telestore/internal/events"
	"github.com/telestore/telestore/internal/logging"
)

const appTitle = "Telestore"

// Notifier handles desktop notifications.
type Notifier struct {
	logger *logging.Logger
	cfg    Config
	send   func(title, message string) error
	mu     sync.RWMutex
}

// Config holds notification configuration.
type Config struct {
	// Enabled determines if notifications are sent.
	Enabled bool

	// ShowTransferComplete shows notifications for finished uploads and downloads.
	ShowTransferComplete bool

	// ShowTransferFailed shows notifications for failed transfers.
	ShowTransferFailed bool

	// ShowLockout shows a notification when passcode entry is locked.
	ShowLockout bool
}

// DefaultConfig returns the default notification configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:              true,
		ShowTransferComplete: true,
		ShowTransferFailed:   true,
		ShowLockout:          true,
	}
}

// NewNotifier creates a new notifier with the given configuration.
func NewNotifier(cfg *Config, logger *logging.Logger) *Notifier {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Notifier{
		logger: logger.WithComponent("notify"),
		cfg:    *cfg,
		send:   sendDesktop,
	}
}

// SetEnabled enables or disables notifications.
func (n *Notifier) SetEnabled(enabled bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cfg.Enabled = enabled
}

// IsEnabled returns whether notifications are enabled.
func (n *Notifier) IsEnabled() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.cfg.Enabled
}

func (n *Notifier) config() Config {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.cfg
}

// TransferComplete sends a notification for a finished transfer.
func (n *Notifier) TransferComplete(direction, name string) {
	cfg := n.config()
	if !cfg.Enabled || !cfg.ShowTransferComplete {
		return
	}

	title := titleCase(direction) + " Complete"
	message := fmt.Sprintf("\"%s\" finished.", truncate(name, 60))

	if err := n.send(title, message); err != nil {
		n.logger.Warn().Err(err).Str("name", name).Msg("Failed to send transfer complete notification")
	}
}

// TransferFailed sends a notification for a failed transfer.
func (n *Notifier) TransferFailed(direction, name, errorMsg string) {
	cfg := n.config()
	if !cfg.Enabled || !cfg.ShowTransferFailed {
		return
	}

	title := titleCase(direction) + " Failed"
	message := fmt.Sprintf("\"%s\" failed:\n%s", truncate(name, 40), truncate(errorMsg, 100))

	if err := n.send(title, message); err != nil {
		n.logger.Warn().Err(err).Str("name", name).Msg("Failed to send transfer failed notification")
	}
}

// LockedOut sends a notification when passcode entry is locked until until.
func (n *Notifier) LockedOut(until time.Time) {
	cfg := n.config()
	if !cfg.Enabled || !cfg.ShowLockout {
		return
	}

	message := fmt.Sprintf("Too many failed passcode attempts.\nTry again at %s.", until.Local().Format("15:04:05"))

	if err := n.send(appTitle, message); err != nil {
		n.logger.Warn().Err(err).Msg("Failed to send lockout notification")
	}
}

// Alert sends an alert notification (error level).
// This is for critical issues that require user attention.
func (n *Notifier) Alert(message string) {
	if !n.IsEnabled() {
		return
	}

	title := appTitle + " Alert"

	if err := beeep.Alert(title, message, ""); err != nil {
		if err := n.send(title, message); err != nil {
			n.logger.Error().Err(err).Str("message", message).Msg("Failed to send alert notification")
		}
	}
}

// Run turns transfer and lockout events from bus into notifications until
// ctx is done or the bus is closed.
func (n *Notifier) Run(ctx context.Context, bus *events.EventBus) {
	ch := bus.SubscribeAll()
	defer bus.UnsubscribeAll(ch)

	locked := false
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			switch e := ev.(type) {
			case *events.TransferEvent:
				switch e.Type() {
				case events.EventTransferCompleted:
					n.TransferComplete(e.Direction, e.Name)
				case events.EventTransferFailed:
					n.TransferFailed(e.Direction, e.Name, e.Error)
				}
			case *events.LockoutEvent:
				// Notify on the transition into a lockout only.
				nowLocked := !e.LockedUntil.IsZero()
				if nowLocked && !locked {
					n.LockedOut(e.LockedUntil)
				}
				locked = nowLocked
			}
		}
	}
}

// sendDesktop shows a native notification:
// - Windows: toast notifications
// - macOS: NSUserNotificationCenter
// - Linux: D-Bus notifications
func sendDesktop(title, message string) error {
	return beeep.Notify(title, message, "")
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func titleCase(s string) string {
	if s == "" {
		return "Transfer"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
