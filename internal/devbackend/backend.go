// Package devbackend is an in-memory stand-in for the storage backend. It
// serves every bridge operation over ipc and simulates transfers by pushing
// progress notifications, so the client can be exercised end to end without
// the real service.
package devbackend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/telestore/telestore/internal/bridge"
	"github.com/telestore/telestore/internal/constants"
	"github.com/telestore/telestore/internal/logging"
)

// ValidCode is the only login code sign_in accepts.
const ValidCode = "12345"

// Remote failures. Their text reaches the client unchanged.
var (
	errNotAuthorized = errors.New("Not authorized")
	errFileNotFound  = errors.New("File not found")
)

// Broadcaster pushes a notification to every connected client.
type Broadcaster interface {
	Broadcast(name string, args ...any) error
}

// Backend implements ipc.Handler.
type Backend struct {
	clock       clockwork.Clock
	logger      *logging.Logger
	maxAttempts int
	lockFor     time.Duration
	step        time.Duration
	password    string
	qrPolls     int

	ctx       context.Context
	cancel    context.CancelFunc
	transfers sync.WaitGroup

	mu            sync.Mutex
	out           Broadcaster
	authenticated bool
	user          bridge.User
	passcode      string
	failed        int
	lockedUntil   time.Time
	files         []bridge.FileMetadata
	uploads       int
	qr            map[string]int
}

// Option configures a Backend.
type Option func(*Backend)

// WithClock drives lockouts and simulated transfers from c.
func WithClock(c clockwork.Clock) Option {
	return func(b *Backend) { b.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(b *Backend) {
		if l != nil {
			b.logger = l.WithComponent("dev-backend")
		}
	}
}

// WithStep sets the interval between simulated progress notifications.
func WithStep(d time.Duration) Option {
	return func(b *Backend) { b.step = d }
}

// WithLockout sets the failed attempt budget and the lockout applied when it
// runs out.
func WithLockout(maxAttempts int, lockFor time.Duration) Option {
	return func(b *Backend) {
		b.maxAttempts = maxAttempts
		b.lockFor = lockFor
	}
}

// WithTwoFactorPassword makes sign_in require password after a valid code.
func WithTwoFactorPassword(password string) Option {
	return func(b *Backend) { b.password = password }
}

// WithSignedIn starts the backend authenticated.
func WithSignedIn(user bridge.User) Option {
	return func(b *Backend) {
		b.authenticated = true
		b.user = user
	}
}

// WithFiles seeds the file listing.
func WithFiles(files ...bridge.FileMetadata) Option {
	return func(b *Backend) { b.files = append(b.files, files...) }
}

// New creates a backend. Pushed notifications are dropped until
// SetBroadcaster is called.
func New(opts ...Option) *Backend {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Backend{
		clock:       clockwork.NewRealClock(),
		logger:      logging.NewNop(),
		maxAttempts: constants.DefaultMaxPasscodeAttempts,
		lockFor:     30 * time.Second,
		step:        500 * time.Millisecond,
		qrPolls:     2,
		ctx:         ctx,
		cancel:      cancel,
		qr:          make(map[string]int),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SetBroadcaster sets where transfer notifications are pushed.
func (b *Backend) SetBroadcaster(out Broadcaster) {
	b.mu.Lock()
	b.out = out
	b.mu.Unlock()
}

// Close stops simulated transfers and waits for them.
func (b *Backend) Close() {
	b.cancel()
	b.transfers.Wait()
}

// HandleCall serves one bridge operation.
func (b *Backend) HandleCall(_ context.Context, method string, args []json.RawMessage) (any, error) {
	b.logger.Debug().Str("method", method).Int("args", len(args)).Msg("Call")

	switch method {
	case bridge.OpCheckAuth:
		return b.checkAuth(), nil
	case bridge.OpRequestCode:
		return b.requestCode(stringArg(args, 0)), nil
	case bridge.OpSignIn:
		return b.signIn(stringArg(args, 0), stringArg(args, 1), stringArg(args, 2)), nil
	case bridge.OpLogout:
		return b.logout(), nil
	case bridge.OpRequestQR:
		return b.requestQR(), nil
	case bridge.OpCheckQRStatus:
		return b.checkQRStatus(stringArg(args, 0)), nil
	case bridge.OpListFiles:
		return b.listFiles()
	case bridge.OpPickAndUpload:
		return b.pickAndUpload()
	case bridge.OpDownloadFile:
		return b.downloadFile(stringArg(args, 0))
	case bridge.OpRenameFile:
		return b.renameFile(stringArg(args, 0), stringArg(args, 1)), nil
	case bridge.OpDeleteFile:
		return b.deleteFile(stringArg(args, 0)), nil
	case bridge.OpHasPasscode:
		return b.hasPasscode(), nil
	case bridge.OpSetPasscode:
		return b.setPasscode(stringArg(args, 0)), nil
	case bridge.OpVerifyPasscode:
		return b.verifyPasscode(stringArg(args, 0)), nil
	case bridge.OpResetEncryption:
		return b.resetEncryption(), nil
	case bridge.OpChangePasscode:
		return b.changePasscode(stringArg(args, 0), stringArg(args, 1)), nil
	case bridge.OpLog:
		b.logger.Info().Str("level", stringArg(args, 0)).Msg(stringArg(args, 1))
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown method %q", method)
	}
}

func (b *Backend) checkAuth() bridge.AuthStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.authenticated {
		return bridge.AuthStatus{}
	}
	user := b.user
	return bridge.AuthStatus{Authenticated: true, User: &user}
}

func (b *Backend) requestCode(phone string) bridge.Result {
	if strings.TrimSpace(phone) == "" {
		return bridge.Result{Error: "Phone number is required"}
	}
	return bridge.Result{Success: true}
}

func (b *Backend) signIn(phone, code, password string) bridge.SignInResult {
	if code != ValidCode {
		return bridge.SignInResult{Error: "Invalid code"}
	}
	if b.password != "" {
		if password == "" {
			return bridge.SignInResult{Status: "needs_password"}
		}
		if password != b.password {
			return bridge.SignInResult{Error: "Invalid password"}
		}
	}

	b.mu.Lock()
	b.authenticated = true
	b.user = bridge.User{ID: 1, Phone: phone}
	b.mu.Unlock()
	return bridge.SignInResult{Success: true}
}

func (b *Backend) logout() bridge.Result {
	b.mu.Lock()
	b.authenticated = false
	b.user = bridge.User{}
	b.mu.Unlock()
	return bridge.Result{Success: true}
}

func (b *Backend) requestQR() bridge.QRRequest {
	token := uuid.NewString()
	b.mu.Lock()
	b.qr[token] = 0
	b.mu.Unlock()
	return bridge.QRRequest{URL: "tg://login?token=" + token, TokenID: token, ExpiresIn: 30}
}

// checkQRStatus confirms a token after a few polls.
func (b *Backend) checkQRStatus(token string) bridge.QRStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	polls, ok := b.qr[token]
	if !ok {
		return bridge.QRStatus{Status: bridge.QRExpired}
	}
	polls++
	if polls < b.qrPolls {
		b.qr[token] = polls
		return bridge.QRStatus{Status: bridge.QRWaiting}
	}
	delete(b.qr, token)
	b.authenticated = true
	b.user = bridge.User{ID: 1, Username: "qr"}
	return bridge.QRStatus{Status: bridge.QRConfirmed}
}

func (b *Backend) listFiles() ([]bridge.FileMetadata, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.authenticated {
		return nil, errNotAuthorized
	}
	files := make([]bridge.FileMetadata, len(b.files))
	copy(files, b.files)
	return files, nil
}

func (b *Backend) findLocked(id string) int {
	for i, f := range b.files {
		if f.ID == id {
			return i
		}
	}
	return -1
}

func (b *Backend) renameFile(id, name string) bridge.Result {
	if strings.TrimSpace(name) == "" {
		return bridge.Result{Error: "Name is required"}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.findLocked(id)
	if i < 0 {
		return bridge.Result{Error: "File not found"}
	}
	b.files[i].Name = name
	return bridge.Result{Success: true}
}

func (b *Backend) deleteFile(id string) bridge.Result {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.findLocked(id)
	if i < 0 {
		return bridge.Result{Error: "File not found"}
	}
	b.files = append(b.files[:i], b.files[i+1:]...)
	return bridge.Result{Success: true}
}

func stringArg(args []json.RawMessage, i int) string {
	if i >= len(args) {
		return ""
	}
	var s string
	if err := json.Unmarshal(args[i], &s); err != nil {
		return strings.Trim(string(args[i]), `"`)
	}
	return s
}
