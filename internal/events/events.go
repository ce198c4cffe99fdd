// Package events carries domain notifications (transfer lifecycle, lockout and
// session changes, file list refreshes, logs) from the state components to
// any number of listeners such as desktop notifications or the CLI.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/telestore/telestore/internal/constants"
)

// EventType defines the types of events that can be emitted
type EventType string

const (
	EventLog EventType = "log"

	// Transfer registry events
	EventTransferUpdated   EventType = "transfer_updated"   // Record created or progress changed
	EventTransferCompleted EventType = "transfer_completed" // Record reached completed
	EventTransferFailed    EventType = "transfer_failed"    // Record reached error
	EventTransferRemoved   EventType = "transfer_removed"   // Record cleaned up or cleared

	EventLockoutChanged  EventType = "lockout_changed"
	EventSessionChanged  EventType = "session_changed"
	EventFileListChanged EventType = "file_list_changed"

	// EventBridgeFailure is published for every failed bridge call.
	EventBridgeFailure EventType = "bridge_failure"
)

// LogLevel defines log severity levels
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Event is the base interface for all events
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common event fields
type BaseEvent struct {
	EventType EventType
	Time      time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// LogEvent represents log messages
type LogEvent struct {
	BaseEvent
	Level     LogLevel
	Message   string
	Component string
	Error     error
}

// TransferEvent describes a change to one transfer record.
type TransferEvent struct {
	BaseEvent
	TransferID string
	Direction  string // "upload" or "download"
	Name       string
	Progress   int // 0-100
	Speed      string
	Status     string
	Error      string
}

// LockoutEvent describes a passcode state transition.
type LockoutEvent struct {
	BaseEvent
	Phase             string
	HasPasscode       bool
	Verified          bool
	AttemptsRemaining int
	LockedUntil       time.Time // zero when not locked
	Error             string
}

// SessionEvent describes an authentication state change.
type SessionEvent struct {
	BaseEvent
	Authenticated bool
	Username      string
	Error         string
}

// FileListEvent is published whenever the cached file listing changes.
type FileListEvent struct {
	BaseEvent
	Count   int
	Loading bool
	Error   string
}

// BridgeFailureEvent is published when a bridge call fails.
type BridgeFailureEvent struct {
	BaseEvent
	Operation string
	Error     error
}

// EventBus manages event subscriptions and publishing
type EventBus struct {
	subscribers   map[EventType][]chan Event
	all           []chan Event // Subscribers to all events
	mu            sync.RWMutex
	bufferSize    int
	closed        bool
	droppedEvents atomic.Int64 // Count of dropped events due to full buffers
}

// NewEventBus creates a new event bus with specified buffer size
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = constants.EventBusDefaultBuffer
	}
	if bufferSize > constants.EventBusMaxBuffer {
		bufferSize = constants.EventBusMaxBuffer
	}
	return &EventBus{
		subscribers: make(map[EventType][]chan Event),
		all:         make([]chan Event, 0),
		bufferSize:  bufferSize,
	}
}

// Subscribe creates a subscription to a specific event type
func (eb *EventBus) Subscribe(eventType EventType) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)
	return ch
}

// SubscribeAll creates a subscription to all events
func (eb *EventBus) SubscribeAll() <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.all = append(eb.all, ch)
	return ch
}

// Publish sends an event to all subscribers without blocking. Events for a
// subscriber whose buffer is full are dropped and counted.
func (eb *EventBus) Publish(event Event) {
	if eb == nil {
		return
	}

	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}

	for _, ch := range eb.subscribers[event.Type()] {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}

	for _, ch := range eb.all {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}
}

// Close shuts down the event bus and closes all channels
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	eb.closed = true

	for _, channels := range eb.subscribers {
		for _, ch := range channels {
			close(ch)
		}
	}

	for _, ch := range eb.all {
		close(ch)
	}
}

// PublishLog is a convenience method for publishing log events
func (eb *EventBus) PublishLog(level LogLevel, message, component string, err error) {
	eb.Publish(&LogEvent{
		BaseEvent: BaseEvent{
			EventType: EventLog,
			Time:      time.Now(),
		},
		Level:     level,
		Message:   message,
		Component: component,
		Error:     err,
	})
}

// PublishBridgeFailure is a convenience method for publishing failed bridge calls
func (eb *EventBus) PublishBridgeFailure(operation string, err error) {
	eb.Publish(&BridgeFailureEvent{
		BaseEvent: BaseEvent{
			EventType: EventBridgeFailure,
			Time:      time.Now(),
		},
		Operation: operation,
		Error:     err,
	})
}

// Unsubscribe removes a subscription channel from a specific event type.
// The channel is not closed; the caller simply stops receiving.
func (eb *EventBus) Unsubscribe(eventType EventType, ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	subscribers := eb.subscribers[eventType]
	for i, subCh := range subscribers {
		if subCh == ch {
			subscribers[i] = subscribers[len(subscribers)-1]
			eb.subscribers[eventType] = subscribers[:len(subscribers)-1]
			break
		}
	}
}

// UnsubscribeAll removes a subscription channel from all event types
func (eb *EventBus) UnsubscribeAll(ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	for eventType, subscribers := range eb.subscribers {
		for i, subCh := range subscribers {
			if subCh == ch {
				subscribers[i] = subscribers[len(subscribers)-1]
				eb.subscribers[eventType] = subscribers[:len(subscribers)-1]
				break
			}
		}
	}

	for i, subCh := range eb.all {
		if subCh == ch {
			eb.all[i] = eb.all[len(eb.all)-1]
			eb.all = eb.all[:len(eb.all)-1]
			break
		}
	}
}

// GetDroppedEventCount returns the total number of events dropped due to full buffers
func (eb *EventBus) GetDroppedEventCount() int64 {
	return eb.droppedEvents.Load()
}

// ResetDroppedEventCount resets the dropped event counter to zero
func (eb *EventBus) ResetDroppedEventCount() int64 {
	return eb.droppedEvents.Swap(0)
}

// SubscriberCount returns the number of open subscriptions.
func (eb *EventBus) SubscriberCount() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	n := len(eb.all)
	for _, channels := range eb.subscribers {
		n += len(channels)
	}
	return n
}
