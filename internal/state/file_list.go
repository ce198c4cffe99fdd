package state

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/telestore/telestore/internal/bridge"
	"github.com/telestore/telestore/internal/events"
	"github.com/telestore/telestore/internal/logging"
)

// FileAPI is the subset of bridge operations the file list needs.
type FileAPI interface {
	ListFiles(ctx context.Context) ([]bridge.FileMetadata, error)
	RenameFile(ctx context.Context, fileID, newName string, metadataMessageID int64) (bridge.Result, error)
	DeleteFile(ctx context.Context, fileID string, metadataMessageID int64) (bridge.Result, error)
}

// SortKey selects the ordering used by FileListSnapshot.Sorted.
type SortKey string

const (
	SortByName SortKey = "name"
	SortBySize SortKey = "size"
	SortByType SortKey = "type"
)

// FileListSnapshot is an immutable view of the cached listing.
type FileListSnapshot struct {
	version  uint64
	files    []bridge.FileMetadata
	loading  bool
	err      string
	loadedAt time.Time
}

func (s FileListSnapshot) Version() uint64     { return s.version }
func (s FileListSnapshot) Loading() bool       { return s.loading }
func (s FileListSnapshot) Error() string       { return s.err }
func (s FileListSnapshot) LoadedAt() time.Time { return s.loadedAt }
func (s FileListSnapshot) Len() int            { return len(s.files) }

// Files returns the files in backend order.
func (s FileListSnapshot) Files() []bridge.FileMetadata {
	out := make([]bridge.FileMetadata, len(s.files))
	copy(out, s.files)
	return out
}

// Find returns the file with the given id.
func (s FileListSnapshot) Find(id string) (bridge.FileMetadata, bool) {
	for _, f := range s.files {
		if f.ID == id {
			return f, true
		}
	}
	return bridge.FileMetadata{}, false
}

// Sorted returns a sorted copy of the files. Unknown keys sort by name.
func (s FileListSnapshot) Sorted(by SortKey, ascending bool) []bridge.FileMetadata {
	out := s.Files()
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]

		var less bool
		switch by {
		case SortBySize:
			less = a.Size < b.Size
		case SortByType:
			less = strings.ToLower(a.MimeType) < strings.ToLower(b.MimeType)
		default:
			less = strings.ToLower(a.Name) < strings.ToLower(b.Name)
		}

		if ascending {
			return less
		}
		return !less
	})
	return out
}

// Mutation is the outcome of a rename or delete. A backend rejection is
// reported here, not as an error.
type Mutation struct {
	Success bool
	Error   string
}

// FileList caches the last listing and reloads it after mutations.
type FileList struct {
	api      FileAPI
	eventBus *events.EventBus
	logger   *logging.Logger

	mu       sync.Mutex
	snap     FileListSnapshot
	inflight int
	loadSeq  uint64 // last issued load
	applied  uint64 // last load whose result was applied

	observers Observers[FileListSnapshot]
}

// NewFileList creates an empty file list.
func NewFileList(api FileAPI, eventBus *events.EventBus, logger *logging.Logger) *FileList {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &FileList{
		api:      api,
		eventBus: eventBus,
		logger:   logger.WithComponent("files"),
		snap:     FileListSnapshot{files: []bridge.FileMetadata{}},
	}
}

// Snapshot returns the current listing.
func (f *FileList) Snapshot() FileListSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

// Subscribe registers fn for every new snapshot.
func (f *FileList) Subscribe(fn func(FileListSnapshot)) (unsubscribe func()) {
	return f.observers.Subscribe(fn)
}

// Load fetches list_files. The error is also recorded in the snapshot. When
// loads overlap, a slower older response never overwrites a newer one.
func (f *FileList) Load(ctx context.Context) error {
	f.mu.Lock()
	f.loadSeq++
	seq := f.loadSeq
	f.inflight++
	snap := f.commitLocked(func(s *FileListSnapshot) {
		s.loading = true
		s.err = ""
	})
	f.mu.Unlock()
	f.publish(snap)

	files, err := f.api.ListFiles(ctx)

	f.mu.Lock()
	f.inflight--
	stale := seq < f.applied
	if !stale {
		f.applied = seq
	}
	snap = f.commitLocked(func(s *FileListSnapshot) {
		s.loading = f.inflight > 0
		if stale {
			return
		}
		if err != nil {
			s.err = bridge.Message(err)
			return
		}
		s.files = files
		s.err = ""
		s.loadedAt = time.Now()
	})
	f.mu.Unlock()
	f.publish(snap)

	if err != nil {
		f.logger.Error().Err(err).Msg("Failed to load files")
		return err
	}
	if stale {
		f.logger.Debug().Uint64("seq", seq).Msg("Discarded stale file listing")
	}
	return nil
}

// Refresh reloads the listing.
func (f *FileList) Refresh(ctx context.Context) error {
	return f.Load(ctx)
}

// Rename renames file and reloads the listing on success.
func (f *FileList) Rename(ctx context.Context, file bridge.FileMetadata, newName string) (Mutation, error) {
	res, err := f.api.RenameFile(ctx, file.ID, newName, file.MetadataMessageID)
	return f.afterMutation(ctx, "rename", res, err)
}

// Delete deletes file and reloads the listing on success.
func (f *FileList) Delete(ctx context.Context, file bridge.FileMetadata) (Mutation, error) {
	res, err := f.api.DeleteFile(ctx, file.ID, file.MetadataMessageID)
	return f.afterMutation(ctx, "delete", res, err)
}

func (f *FileList) afterMutation(ctx context.Context, op string, res bridge.Result, err error) (Mutation, error) {
	if err != nil {
		msg := bridge.Message(err)
		f.setError(msg)
		return Mutation{Error: msg}, err
	}
	if !res.Success {
		f.logger.Warn().Str("op", op).Str("error", res.Error).Msg("File operation rejected")
		f.setError(res.Error)
		return Mutation{Error: res.Error}, nil
	}
	if err := f.Load(ctx); err != nil {
		f.logger.Warn().Err(err).Str("op", op).Msg("Reload after file operation failed")
	}
	return Mutation{Success: true}, nil
}

func (f *FileList) setError(msg string) {
	f.mu.Lock()
	snap := f.commitLocked(func(s *FileListSnapshot) { s.err = msg })
	f.mu.Unlock()
	f.publish(snap)
}

// commitLocked applies mutate to a copy of the current snapshot and installs
// it under a new version. Caller holds f.mu.
func (f *FileList) commitLocked(mutate func(*FileListSnapshot)) FileListSnapshot {
	next := f.snap
	mutate(&next)
	next.version = f.snap.version + 1
	f.snap = next
	return next
}

func (f *FileList) publish(snap FileListSnapshot) {
	if !f.observers.Notify(snap.version, snap) {
		return
	}
	f.eventBus.Publish(&events.FileListEvent{
		BaseEvent: events.BaseEvent{
			EventType: events.EventFileListChanged,
			Time:      time.Now(),
		},
		Count:   len(snap.files),
		Loading: snap.loading,
		Error:   snap.err,
	})
}
