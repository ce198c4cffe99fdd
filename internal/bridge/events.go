package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Direction routes a transfer event to the upload or download collection.
// It comes from the notification name, never from the id.
type Direction string

const (
	DirectionUpload   Direction = "upload"
	DirectionDownload Direction = "download"
)

// EventKind tags a TransferEvent.
type EventKind int

const (
	EventProgress EventKind = iota + 1
	EventComplete
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventProgress:
		return "progress"
	case EventComplete:
		return "complete"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Pushed notification names.
const (
	NotifyUploadProgress   = "onUploadProgress"
	NotifyUploadComplete   = "onUploadComplete"
	NotifyUploadError      = "onUploadError"
	NotifyDownloadProgress = "onDownloadProgress"
	NotifyDownloadComplete = "onDownloadComplete"
	NotifyDownloadError    = "onDownloadError"
)

// TransferEvent is the tagged variant of a pushed transfer notification.
// Progress, Speed and StatusMessage are set for EventProgress; Error for
// EventError.
type TransferEvent struct {
	Direction     Direction
	Kind          EventKind
	ID            string
	Progress      int
	Speed         string
	StatusMessage string
	Error         string
}

var notificationKinds = map[string]struct {
	dir  Direction
	kind EventKind
}{
	NotifyUploadProgress:   {DirectionUpload, EventProgress},
	NotifyUploadComplete:   {DirectionUpload, EventComplete},
	NotifyUploadError:      {DirectionUpload, EventError},
	NotifyDownloadProgress: {DirectionDownload, EventProgress},
	NotifyDownloadComplete: {DirectionDownload, EventComplete},
	NotifyDownloadError:    {DirectionDownload, EventError},
}

// DecodeNotification converts a pushed notification into a TransferEvent.
// Progress args are (id, progress, speed, statusMessage) with the last two
// optional; error args are (id, detail).
func DecodeNotification(n Notification) (TransferEvent, error) {
	nk, ok := notificationKinds[n.Name]
	if !ok {
		return TransferEvent{}, fmt.Errorf("unknown notification %q", n.Name)
	}
	if len(n.Args) < 1 {
		return TransferEvent{}, fmt.Errorf("%s: missing transfer id", n.Name)
	}

	id, err := argString(n.Args[0])
	if err != nil || id == "" {
		return TransferEvent{}, fmt.Errorf("%s: invalid transfer id: %s", n.Name, n.Args[0])
	}

	ev := TransferEvent{Direction: nk.dir, Kind: nk.kind, ID: id}

	switch nk.kind {
	case EventProgress:
		if len(n.Args) < 2 {
			return TransferEvent{}, fmt.Errorf("%s: missing progress", n.Name)
		}
		var p float64
		if err := json.Unmarshal(n.Args[1], &p); err != nil {
			return TransferEvent{}, fmt.Errorf("%s: invalid progress: %w", n.Name, err)
		}
		ev.Progress = min(max(int(math.Round(p)), 0), 100)
		if len(n.Args) > 2 {
			ev.Speed, _ = argString(n.Args[2])
		}
		if len(n.Args) > 3 {
			ev.StatusMessage, _ = argString(n.Args[3])
		}
	case EventError:
		if len(n.Args) > 1 {
			ev.Error, _ = argString(n.Args[1])
		}
	}

	return ev, nil
}

// argString accepts a JSON string or number.
func argString(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	return n.String(), nil
}

// OnTransferEvent registers a handler for pushed transfer events. Handlers
// run synchronously in registration order. The returned func unregisters.
func (a *Adapter) OnTransferEvent(handler func(TransferEvent)) (unsubscribe func()) {
	a.mu.Lock()
	a.nextID++
	id := a.nextID
	a.handlers = append(a.handlers, handlerEntry{id: id, fn: handler})
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		for i, h := range a.handlers {
			if h.id == id {
				a.handlers = append(a.handlers[:i:i], a.handlers[i+1:]...)
				return
			}
		}
	}
}

// Dispatch delivers ev to every registered handler.
func (a *Adapter) Dispatch(ev TransferEvent) {
	a.mu.RLock()
	handlers := make([]func(TransferEvent), len(a.handlers))
	for i, h := range a.handlers {
		handlers[i] = h.fn
	}
	a.mu.RUnlock()

	for _, fn := range handlers {
		fn(ev)
	}
}

// HandleNotification decodes and dispatches one pushed notification.
// Undecodable notifications are logged and dropped.
func (a *Adapter) HandleNotification(n Notification) {
	ev, err := DecodeNotification(n)
	if err != nil {
		a.logger.Warn().Err(err).Str("notification", n.Name).Msg("Dropping pushed notification")
		return
	}
	a.Dispatch(ev)
}

// Listen pumps notifications from src into the dispatcher until ctx is done
// or src closes.
func (a *Adapter) Listen(ctx context.Context, src EventSource) error {
	return src.Listen(ctx, a.HandleNotification)
}
