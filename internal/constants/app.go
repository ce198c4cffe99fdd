package constants

import (
	"time"
)

// Transfer tracking
const (
	// TransferCleanupDelay - how long a completed transfer stays visible before
	// it is removed from the registry (3s)
	TransferCleanupDelay = 3000 * time.Millisecond

	// UploadPlaceholderName / DownloadPlaceholderName - display names used for
	// records created by an event before any file metadata is known
	UploadPlaceholderName   = "Uploading..."
	DownloadPlaceholderName = "Downloading..."

	// SpeedUnknown - speed sentinel for records with no reported speed
	SpeedUnknown = "-"

	// SpeedDone - speed shown once an upload has completed
	SpeedDone = "Done"
)

// Passcode lockout
const (
	// DefaultMaxPasscodeAttempts - attempts allowed before the backend applies
	// the long lockout tier
	DefaultMaxPasscodeAttempts = 5

	// MinLockoutDuration - lower bound applied to backend-issued lockout
	// durations so LockedUntil is always strictly in the future
	MinLockoutDuration = 1 * time.Second

	// WeakPasscodeScore - zxcvbn scores at or below this are reported as weak
	WeakPasscodeScore = 1
)

// Bridge
const (
	// DefaultCallTimeout - upper bound for a single bridge call (30s)
	// Uploads return as soon as the backend acknowledges, so this only has to
	// cover the native picker and metadata lookups
	DefaultCallTimeout = 30 * time.Second

	// DialTimeout - timeout for connecting to the backend socket (5s)
	DialTimeout = 5 * time.Second

	// PushBuffer - pushed notifications buffered per client connection; further
	// notifications are dropped until the listener catches up
	PushBuffer = 256

	// MaxMessageSize - largest single JSON line accepted on the bridge socket (4 MB)
	MaxMessageSize = 4 * 1024 * 1024
)

// Event System
const (
	// EventBusDefaultBuffer - default buffer size for event channels (1000)
	// 1000 events is generous for typical event throughput
	EventBusDefaultBuffer = 1000

	// EventBusMaxBuffer - maximum buffer size for high-throughput scenarios (5000)
	EventBusMaxBuffer = 5000
)

// Authentication
const (
	// QRPollInterval - how often the QR login status is polled (2s)
	QRPollInterval = 2 * time.Second
)

// UI Updates
const (
	// ProgressRefreshRate - refresh rate for terminal progress bars (~3/sec)
	ProgressRefreshRate = 300 * time.Millisecond
)
