package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/telestore/telestore/internal/events"
)

type recorder struct {
	mu     sync.Mutex
	titles []string
	bodies []string
}

func (r *recorder) send(title, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.titles = append(r.titles, title)
	r.bodies = append(r.bodies, message)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.titles)
}

func newTestNotifier(cfg *Config) (*Notifier, *recorder) {
	rec := &recorder{}
	n := NewNotifier(cfg, nil)
	n.send = rec.send
	return n, rec
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if !cfg.Enabled {
		t.Error("Expected Enabled to be true by default")
	}
	if !cfg.ShowTransferComplete {
		t.Error("Expected ShowTransferComplete to be true by default")
	}
	if !cfg.ShowTransferFailed {
		t.Error("Expected ShowTransferFailed to be true by default")
	}
	if !cfg.ShowLockout {
		t.Error("Expected ShowLockout to be true by default")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"short", 10, "short"},
		{"exactly10c", 10, "exactly10c"},
		{"this is a long string", 10, "this is..."},
		{"", 10, ""},
		{"abc", 3, "abc"},
		{"abcd", 3, "..."},
	}

	for _, tt := range tests {
		result := truncate(tt.input, tt.maxLen)
		if result != tt.expected {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, result, tt.expected)
		}
	}
}

func TestTransferNotifications(t *testing.T) {
	n, rec := newTestNotifier(nil)

	n.TransferComplete("upload", "report.pdf")
	n.TransferFailed("download", "photo.png", "connection reset")

	if rec.count() != 2 {
		t.Fatalf("expected 2 notifications, got %d", rec.count())
	}
	if rec.titles[0] != "Upload Complete" {
		t.Errorf("unexpected title %q", rec.titles[0])
	}
	if rec.titles[1] != "Download Failed" {
		t.Errorf("unexpected title %q", rec.titles[1])
	}
}

func TestNotifierRespectsConfig(t *testing.T) {
	n, rec := newTestNotifier(&Config{Enabled: true, ShowTransferComplete: false, ShowTransferFailed: true})

	n.TransferComplete("upload", "a")
	n.LockedOut(time.Now().Add(time.Minute))
	if rec.count() != 0 {
		t.Errorf("expected disabled kinds to be skipped, got %d", rec.count())
	}

	n.SetEnabled(false)
	n.TransferFailed("upload", "a", "boom")
	if rec.count() != 0 {
		t.Error("expected no notifications while disabled")
	}
	if n.IsEnabled() {
		t.Error("expected IsEnabled to be false")
	}
}

func TestRunFromBus(t *testing.T) {
	n, rec := newTestNotifier(nil)
	bus := events.NewEventBus(100)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		n.Run(ctx, bus)
		close(done)
	}()

	// Wait for Run to subscribe.
	deadline := time.Now().Add(2 * time.Second)
	for bus.SubscriberCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	now := time.Now()
	publish := []events.Event{
		&events.TransferEvent{BaseEvent: events.BaseEvent{EventType: events.EventTransferUpdated, Time: now}, Direction: "upload", Name: "a"},
		&events.TransferEvent{BaseEvent: events.BaseEvent{EventType: events.EventTransferCompleted, Time: now}, Direction: "upload", Name: "a"},
		&events.LockoutEvent{BaseEvent: events.BaseEvent{EventType: events.EventLockoutChanged, Time: now}, LockedUntil: now.Add(time.Minute)},
		&events.LockoutEvent{BaseEvent: events.BaseEvent{EventType: events.EventLockoutChanged, Time: now}, LockedUntil: now.Add(time.Minute)},
		&events.TransferEvent{BaseEvent: events.BaseEvent{EventType: events.EventTransferFailed, Time: now}, Direction: "download", Name: "b", Error: "boom"},
	}
	for _, ev := range publish {
		bus.Publish(ev)
	}

	deadline = time.Now().Add(2 * time.Second)
	for rec.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	if rec.count() != 3 {
		t.Fatalf("expected complete, lockout and failure notifications, got %v", rec.titles)
	}
	if rec.titles[1] != appTitle {
		t.Errorf("expected one lockout notification, got %v", rec.titles)
	}
}
