// Package transfer tracks bridge-driven uploads and downloads. The backend
// runs the transfers; the registry observes them through pushed events and
// reconciles duplicate or out-of-order notifications into one record per id.
package transfer

import (
	"sort"
	"time"

	"github.com/telestore/telestore/internal/bridge"
	"github.com/telestore/telestore/internal/constants"
)

// Kind indicates whether a record is an upload or download.
type Kind string

const (
	KindUpload   Kind = "upload"
	KindDownload Kind = "download"
)

func kindOf(d bridge.Direction) Kind {
	if d == bridge.DirectionDownload {
		return KindDownload
	}
	return KindUpload
}

func placeholderName(k Kind) string {
	if k == KindDownload {
		return constants.DownloadPlaceholderName
	}
	return constants.UploadPlaceholderName
}

// Status represents the current state of a transfer record.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Record is the observable state of one transfer.
type Record struct {
	ID            string
	Kind          Kind
	File          bridge.FileMetadata
	Progress      int    // 0-100, last reported value
	Speed         string // display string, "-" when unknown
	Status        Status
	Error         string // only meaningful when Status is StatusError
	StatusMessage string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Name returns the display name of the transfer subject.
func (r Record) Name() string {
	if r.File.Name == "" {
		return placeholderName(r.Kind)
	}
	return r.File.Name
}

// IsTerminal returns true if the record reached completed or error.
func (r Record) IsTerminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusError
}

// Stats counts records by status.
type Stats struct {
	Active    int
	Completed int
	Failed    int
}

// Total returns the number of records.
func (s Stats) Total() int {
	return s.Active + s.Completed + s.Failed
}

func (s *Stats) add(r Record) {
	switch r.Status {
	case StatusActive:
		s.Active++
	case StatusCompleted:
		s.Completed++
	case StatusError:
		s.Failed++
	}
}

// Snapshot is an immutable view of both collections. A new Snapshot with a
// higher Version is produced on every mutation.
type Snapshot struct {
	version   uint64
	uploads   map[string]Record
	downloads map[string]Record
}

// Version increases with every mutation.
func (s Snapshot) Version() uint64 {
	return s.version
}

// Get returns the record for id in the given collection.
func (s Snapshot) Get(kind Kind, id string) (Record, bool) {
	r, ok := s.collection(kind)[id]
	return r, ok
}

// Uploads returns upload records, oldest first.
func (s Snapshot) Uploads() []Record {
	return sortedRecords(s.uploads)
}

// Downloads returns download records, oldest first.
func (s Snapshot) Downloads() []Record {
	return sortedRecords(s.downloads)
}

// All returns uploads followed by downloads.
func (s Snapshot) All() []Record {
	return append(s.Uploads(), s.Downloads()...)
}

// Len returns the number of records of the given kind.
func (s Snapshot) Len(kind Kind) int {
	return len(s.collection(kind))
}

// Stats counts records across both collections.
func (s Snapshot) Stats() Stats {
	var st Stats
	for _, r := range s.uploads {
		st.add(r)
	}
	for _, r := range s.downloads {
		st.add(r)
	}
	return st
}

func (s Snapshot) collection(kind Kind) map[string]Record {
	if kind == KindDownload {
		return s.downloads
	}
	return s.uploads
}

func sortedRecords(m map[string]Record) []Record {
	out := make([]Record, 0, len(m))
	for _, r := range m {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
