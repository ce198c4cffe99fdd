package transfer

import (
	"context"
	"errors"
	"maps"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/telestore/telestore/internal/bridge"
	"github.com/telestore/telestore/internal/constants"
	"github.com/telestore/telestore/internal/events"
	"github.com/telestore/telestore/internal/logging"
	"github.com/telestore/telestore/internal/state"
)

// ErrEmptyID is returned when a download is started for a file without id.
var ErrEmptyID = errors.New("transfer id is empty")

// API is the subset of bridge operations the registry needs.
type API interface {
	PickAndUpload(ctx context.Context) (bridge.UploadAck, error)
	DownloadFile(ctx context.Context, fileID string) (bridge.DownloadAck, error)
	OnTransferEvent(handler func(bridge.TransferEvent)) (unsubscribe func())
}

// Refresher reloads the file listing after a transfer completes.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// UploadOutcome reports how the backend acknowledged an upload request.
type UploadOutcome struct {
	Status bridge.UploadStatus
	File   string
}

// Started reports whether the backend began an upload.
func (o UploadOutcome) Started() bool {
	return o.Status == bridge.UploadStarted
}

type timerKey struct {
	kind Kind
	id   string
}

type cleanupTimer struct {
	timer clockwork.Timer
	gen   uint64
}

// Registry owns the upload and download collections. Every mutation goes
// through its methods, produces a new Snapshot and notifies subscribers.
type Registry struct {
	api          API
	files        Refresher
	clock        clockwork.Clock
	cleanupDelay time.Duration
	eventBus     *events.EventBus
	logger       *logging.Logger

	mu        sync.Mutex
	snap      Snapshot
	timers    map[timerKey]cleanupTimer
	timerGen  uint64
	closed    bool
	unsubEvts func()

	observers  state.Observers[Snapshot]
	refreshing sync.WaitGroup
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock sets the clock used for cleanup timers.
func WithClock(c clockwork.Clock) Option {
	return func(r *Registry) { r.clock = c }
}

// WithCleanupDelay sets how long a completed record stays visible.
func WithCleanupDelay(d time.Duration) Option {
	return func(r *Registry) { r.cleanupDelay = d }
}

// WithRefresher sets the file listing reloaded after completions.
func WithRefresher(f Refresher) Option {
	return func(r *Registry) { r.files = f }
}

// WithEventBus publishes transfer events on bus.
func WithEventBus(bus *events.EventBus) Option {
	return func(r *Registry) { r.eventBus = bus }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l.WithComponent("transfer")
		}
	}
}

// NewRegistry creates a registry and registers its event handler with api.
func NewRegistry(api API, opts ...Option) *Registry {
	r := &Registry{
		api:          api,
		clock:        clockwork.NewRealClock(),
		cleanupDelay: constants.TransferCleanupDelay,
		logger:       logging.NewNop(),
		snap: Snapshot{
			uploads:   map[string]Record{},
			downloads: map[string]Record{},
		},
		timers: make(map[timerKey]cleanupTimer),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.unsubEvts = api.OnTransferEvent(r.HandleEvent)
	return r
}

// Snapshot returns the current state.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snap
}

// Stats counts the current records.
func (r *Registry) Stats() Stats {
	return r.Snapshot().Stats()
}

// Subscribe registers fn for every new snapshot.
func (r *Registry) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	return r.observers.Subscribe(fn)
}

// StartUpload asks the backend to pick a file and start uploading it. It
// returns once the backend acknowledges; records appear with the first
// pushed event, so a cancelled picker leaves no trace.
func (r *Registry) StartUpload(ctx context.Context) (UploadOutcome, error) {
	ack, err := r.api.PickAndUpload(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("Upload trigger failed")
		return UploadOutcome{}, err
	}
	if ack.Status != bridge.UploadStarted {
		ack.Status = bridge.UploadCancelled
	}
	r.logger.Debug().Str("status", string(ack.Status)).Str("file", ack.File).Msg("Upload acknowledged")
	return UploadOutcome{Status: ack.Status, File: ack.File}, nil
}

// StartDownload creates an active record for file and asks the backend to
// start downloading it. If the request fails the record moves to error and
// the error is returned.
func (r *Registry) StartDownload(ctx context.Context, file bridge.FileMetadata) error {
	if file.ID == "" {
		return ErrEmptyID
	}

	key := timerKey{KindDownload, file.ID}
	r.mutate(key, events.EventTransferUpdated, func(now time.Time, _ Record, _ bool) (Record, bool) {
		r.cancelTimerLocked(key)
		return Record{
			ID:        file.ID,
			Kind:      KindDownload,
			File:      file,
			Progress:  0,
			Speed:     constants.SpeedUnknown,
			Status:    StatusActive,
			CreatedAt: now,
			UpdatedAt: now,
		}, true
	})

	if _, err := r.api.DownloadFile(ctx, file.ID); err != nil {
		r.logger.Error().Err(err).Str("id", file.ID).Msg("Download trigger failed")
		r.OnError(KindDownload, file.ID, bridge.Message(err))
		return err
	}
	return nil
}

// HandleEvent applies one pushed transfer event. It is registered with the
// bridge at construction.
func (r *Registry) HandleEvent(ev bridge.TransferEvent) {
	kind := kindOf(ev.Direction)
	switch ev.Kind {
	case bridge.EventProgress:
		r.OnProgress(kind, ev.ID, ev.Progress, ev.Speed, ev.StatusMessage)
	case bridge.EventComplete:
		r.OnComplete(kind, ev.ID)
	case bridge.EventError:
		r.OnError(kind, ev.ID, ev.Error)
	default:
		r.logger.Warn().Str("id", ev.ID).Int("kind", int(ev.Kind)).Msg("Ignoring transfer event of unknown kind")
	}
}

// OnProgress upserts the record for id, forcing it active. An unknown id
// gets a placeholder record: the backend may report transfers this client
// never started. A pending removal for id is cancelled.
func (r *Registry) OnProgress(kind Kind, id string, progress int, speed, statusMessage string) {
	if speed == "" {
		speed = constants.SpeedUnknown
	}
	key := timerKey{kind, id}
	r.mutate(key, events.EventTransferUpdated, func(now time.Time, rec Record, exists bool) (Record, bool) {
		if !exists {
			rec = newPlaceholder(kind, id, now)
		}
		r.cancelTimerLocked(key)
		rec.Progress = progress
		rec.Speed = speed
		rec.StatusMessage = statusMessage
		rec.Status = StatusActive
		rec.Error = ""
		rec.UpdatedAt = now
		return rec, true
	})
}

// OnComplete marks id completed, refreshes the file listing in the
// background and schedules the record's removal. Completion for an id with
// no record is a stale event and is ignored.
func (r *Registry) OnComplete(kind Kind, id string) {
	key := timerKey{kind, id}
	applied := r.mutate(key, events.EventTransferCompleted, func(now time.Time, rec Record, exists bool) (Record, bool) {
		if !exists {
			return rec, false
		}
		rec.Status = StatusCompleted
		rec.Progress = 100
		rec.Error = ""
		if kind == KindUpload {
			rec.Speed = constants.SpeedDone
		}
		rec.UpdatedAt = now
		r.scheduleRemovalLocked(key)
		return rec, true
	})
	if !applied {
		r.logger.Debug().Str("kind", string(kind)).Str("id", id).Msg("Ignoring completion for unknown transfer")
		return
	}
	r.refreshFiles()
}

// OnError moves id to error, keeping its last progress. Error records are
// never removed automatically. An unknown id gets a placeholder record.
func (r *Registry) OnError(kind Kind, id, detail string) {
	key := timerKey{kind, id}
	r.mutate(key, events.EventTransferFailed, func(now time.Time, rec Record, exists bool) (Record, bool) {
		if !exists {
			rec = newPlaceholder(kind, id, now)
		}
		r.cancelTimerLocked(key)
		rec.Status = StatusError
		rec.Error = detail
		rec.Speed = constants.SpeedUnknown
		rec.UpdatedAt = now
		return rec, true
	})
}

// ClearCompleted removes every completed record from both collections and
// cancels their pending removals. Active and error records stay.
func (r *Registry) ClearCompleted() int {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return 0
	}

	var removed []Record
	uploads := maps.Clone(r.snap.uploads)
	downloads := maps.Clone(r.snap.downloads)
	for _, coll := range []map[string]Record{uploads, downloads} {
		for id, rec := range coll {
			if rec.Status != StatusCompleted {
				continue
			}
			r.cancelTimerLocked(timerKey{rec.Kind, id})
			delete(coll, id)
			removed = append(removed, rec)
		}
	}
	if len(removed) == 0 {
		r.mu.Unlock()
		return 0
	}
	snap := r.commitLocked(uploads, downloads)
	r.mu.Unlock()

	r.publish(snap)
	for _, rec := range removed {
		r.publishEvent(events.EventTransferRemoved, rec)
	}
	return len(removed)
}

// Clear removes one record regardless of status, e.g. to dismiss an error.
func (r *Registry) Clear(kind Kind, id string) bool {
	key := timerKey{kind, id}
	r.mu.Lock()
	rec, ok := r.snap.collection(kind)[id]
	if !ok || r.closed {
		r.mu.Unlock()
		return false
	}
	r.cancelTimerLocked(key)
	snap := r.removeLocked(key)
	r.mu.Unlock()

	r.publish(snap)
	r.publishEvent(events.EventTransferRemoved, rec)
	return true
}

// Close unregisters the event handler, stops pending removals and waits for
// background refreshes.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	for key := range r.timers {
		r.cancelTimerLocked(key)
	}
	unsub := r.unsubEvts
	r.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	r.refreshing.Wait()
}

func newPlaceholder(kind Kind, id string, now time.Time) Record {
	return Record{
		ID:        id,
		Kind:      kind,
		File:      bridge.FileMetadata{ID: id, Name: placeholderName(kind)},
		Speed:     constants.SpeedUnknown,
		Status:    StatusActive,
		CreatedAt: now,
	}
}

// mutate runs fn on the record for key under the lock. fn returns the new
// record and whether to store it. Observers and the bus are notified after
// the lock is released.
func (r *Registry) mutate(key timerKey, evType events.EventType, fn func(now time.Time, rec Record, exists bool) (Record, bool)) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	cur, exists := r.snap.collection(key.kind)[key.id]
	next, store := fn(r.clock.Now(), cur, exists)
	if !store {
		r.mu.Unlock()
		return false
	}

	uploads, downloads := r.snap.uploads, r.snap.downloads
	if key.kind == KindDownload {
		downloads = maps.Clone(downloads)
		downloads[key.id] = next
	} else {
		uploads = maps.Clone(uploads)
		uploads[key.id] = next
	}
	snap := r.commitLocked(uploads, downloads)
	r.mu.Unlock()

	r.publish(snap)
	r.publishEvent(evType, next)
	return true
}

func (r *Registry) removeLocked(key timerKey) Snapshot {
	uploads, downloads := r.snap.uploads, r.snap.downloads
	if key.kind == KindDownload {
		downloads = maps.Clone(downloads)
		delete(downloads, key.id)
	} else {
		uploads = maps.Clone(uploads)
		delete(uploads, key.id)
	}
	return r.commitLocked(uploads, downloads)
}

func (r *Registry) commitLocked(uploads, downloads map[string]Record) Snapshot {
	r.snap = Snapshot{
		version:   r.snap.version + 1,
		uploads:   uploads,
		downloads: downloads,
	}
	return r.snap
}

// scheduleRemovalLocked (re)arms the removal timer for key. Any earlier
// timer for the same key is cancelled, and a timer that fires after being
// superseded is ignored by generation.
func (r *Registry) scheduleRemovalLocked(key timerKey) {
	r.cancelTimerLocked(key)
	r.timerGen++
	gen := r.timerGen
	t := r.clock.AfterFunc(r.cleanupDelay, func() { r.expire(key, gen) })
	r.timers[key] = cleanupTimer{timer: t, gen: gen}
}

func (r *Registry) cancelTimerLocked(key timerKey) {
	if ct, ok := r.timers[key]; ok {
		ct.timer.Stop()
		delete(r.timers, key)
	}
}

func (r *Registry) expire(key timerKey, gen uint64) {
	r.mu.Lock()
	ct, ok := r.timers[key]
	if !ok || ct.gen != gen || r.closed {
		r.mu.Unlock()
		return
	}
	delete(r.timers, key)

	rec, exists := r.snap.collection(key.kind)[key.id]
	if !exists || rec.Status != StatusCompleted {
		r.mu.Unlock()
		return
	}
	snap := r.removeLocked(key)
	r.mu.Unlock()

	r.publish(snap)
	r.publishEvent(events.EventTransferRemoved, rec)
}

// refreshFiles reloads the listing without blocking the event path.
// Failures are logged only.
func (r *Registry) refreshFiles() {
	if r.files == nil {
		return
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.refreshing.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.refreshing.Done()
		ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultCallTimeout)
		defer cancel()
		if err := r.files.Refresh(ctx); err != nil {
			r.logger.Warn().Err(err).Msg("File list refresh after transfer failed")
		}
	}()
}

func (r *Registry) publish(snap Snapshot) {
	r.observers.Notify(snap.version, snap)
}

func (r *Registry) publishEvent(evType events.EventType, rec Record) {
	r.eventBus.Publish(&events.TransferEvent{
		BaseEvent: events.BaseEvent{
			EventType: evType,
			Time:      time.Now(),
		},
		TransferID: rec.ID,
		Direction:  string(rec.Kind),
		Name:       rec.Name(),
		Progress:   rec.Progress,
		Speed:      rec.Speed,
		Status:     string(rec.Status),
		Error:      rec.Error,
	})
}
