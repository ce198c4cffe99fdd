package devbackend

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telestore/telestore/internal/bridge"
	"github.com/telestore/telestore/internal/config"
	"github.com/telestore/telestore/internal/core"
	"github.com/telestore/telestore/internal/ipc"
	"github.com/telestore/telestore/internal/lockout"
	"github.com/telestore/telestore/internal/transfer"
)

type pushed struct {
	name string
	args []any
}

type recorder struct {
	mu     sync.Mutex
	pushes []pushed
}

func (r *recorder) Broadcast(name string, args ...any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushes = append(r.pushes, pushed{name: name, args: args})
	return nil
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.pushes))
	for i, p := range r.pushes {
		names[i] = p.name
	}
	return names
}

func call[T any](t *testing.T, b *Backend, method string, args ...string) T {
	t.Helper()
	raw := make([]json.RawMessage, len(args))
	for i, a := range args {
		raw[i] = json.RawMessage(a)
	}
	res, err := b.HandleCall(context.Background(), method, raw)
	require.NoError(t, err)
	typed, ok := res.(T)
	require.True(t, ok, "unexpected result type %T", res)
	return typed
}

func TestVerifyPasscode_LockoutRules(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b := New(WithClock(clock), WithLockout(3, 30*time.Second))
	defer b.Close()

	require.True(t, call[bridge.Result](t, b, bridge.OpSetPasscode, `"hunter22"`).Success)

	res := call[bridge.VerifyResult](t, b, bridge.OpVerifyPasscode, `"nope"`)
	assert.Equal(t, bridge.VerifyIncorrect, res.Error)
	assert.Equal(t, 2, res.AttemptsRemaining)

	call[bridge.VerifyResult](t, b, bridge.OpVerifyPasscode, `"nope"`)
	res = call[bridge.VerifyResult](t, b, bridge.OpVerifyPasscode, `"nope"`)
	assert.Equal(t, bridge.VerifyTooManyAttempts, res.Error)
	assert.Equal(t, 30, res.LockedFor)
	assert.Equal(t, 0, res.AttemptsRemaining)

	clock.Advance(10 * time.Second)
	res = call[bridge.VerifyResult](t, b, bridge.OpVerifyPasscode, `"hunter22"`)
	assert.Equal(t, bridge.VerifyLockedOut, res.Error)
	assert.Equal(t, 20, res.RetryAfter)

	clock.Advance(20 * time.Second)
	res = call[bridge.VerifyResult](t, b, bridge.OpVerifyPasscode, `"hunter22"`)
	assert.True(t, res.Valid)
}

func TestSetAndChangePasscode(t *testing.T) {
	b := New()
	defer b.Close()

	assert.False(t, call[bridge.PasscodeStatus](t, b, bridge.OpHasPasscode).HasPasscode)
	assert.Contains(t, call[bridge.Result](t, b, bridge.OpSetPasscode, `"abc"`).Error, "at least")
	require.True(t, call[bridge.Result](t, b, bridge.OpSetPasscode, `"abcd"`).Success)
	assert.Equal(t, "Passcode already set", call[bridge.Result](t, b, bridge.OpSetPasscode, `"efgh"`).Error)

	assert.Equal(t, "Incorrect passcode", call[bridge.Result](t, b, bridge.OpChangePasscode, `"zzzz"`, `"efgh"`).Error)
	assert.True(t, call[bridge.Result](t, b, bridge.OpChangePasscode, `"abcd"`, `"efgh"`).Success)
	assert.True(t, call[bridge.VerifyResult](t, b, bridge.OpVerifyPasscode, `"efgh"`).Valid)
}

func TestResetEncryption(t *testing.T) {
	b := New(WithFiles(
		bridge.FileMetadata{ID: "f1", Chunks: []bridge.FileChunk{{Index: 0}, {Index: 1}}},
		bridge.FileMetadata{ID: "f2", Chunks: []bridge.FileChunk{{Index: 0}}},
	))
	defer b.Close()
	call[bridge.Result](t, b, bridge.OpSetPasscode, `"abcd"`)

	res := call[bridge.ResetResult](t, b, bridge.OpResetEncryption)

	assert.Equal(t, bridge.ResetResult{Success: true, PasscodeDeleted: 1, EncryptedFilesDeleted: 2, ChunksDeleted: 3}, res)
	assert.False(t, call[bridge.PasscodeStatus](t, b, bridge.OpHasPasscode).HasPasscode)
}

func TestSignIn(t *testing.T) {
	b := New(WithTwoFactorPassword("secret"))
	defer b.Close()

	assert.Equal(t, "Invalid code", call[bridge.SignInResult](t, b, bridge.OpSignIn, `"+100"`, `"000"`, `""`).Error)
	assert.True(t, call[bridge.SignInResult](t, b, bridge.OpSignIn, `"+100"`, `"12345"`, `""`).NeedsPassword())
	assert.Equal(t, "Invalid password", call[bridge.SignInResult](t, b, bridge.OpSignIn, `"+100"`, `"12345"`, `"x"`).Error)
	assert.True(t, call[bridge.SignInResult](t, b, bridge.OpSignIn, `"+100"`, `"12345"`, `"secret"`).Success)

	status := call[bridge.AuthStatus](t, b, bridge.OpCheckAuth)
	require.True(t, status.Authenticated)
	assert.Equal(t, "+100", status.User.Phone)
}

func TestQRConfirmsAfterPolls(t *testing.T) {
	b := New()
	defer b.Close()

	qr := call[bridge.QRRequest](t, b, bridge.OpRequestQR)
	token := `"` + qr.TokenID + `"`

	assert.Equal(t, bridge.QRWaiting, call[bridge.QRStatus](t, b, bridge.OpCheckQRStatus, token).Status)
	assert.Equal(t, bridge.QRConfirmed, call[bridge.QRStatus](t, b, bridge.OpCheckQRStatus, token).Status)
	assert.Equal(t, bridge.QRExpired, call[bridge.QRStatus](t, b, bridge.OpCheckQRStatus, token).Status)
	assert.True(t, call[bridge.AuthStatus](t, b, bridge.OpCheckAuth).Authenticated)
}

func TestFilesRequireAuth(t *testing.T) {
	b := New()
	defer b.Close()

	_, err := b.HandleCall(context.Background(), bridge.OpListFiles, nil)
	require.ErrorIs(t, err, errNotAuthorized)

	_, err = b.HandleCall(context.Background(), "bogus", nil)
	require.Error(t, err)
}

func TestRenameAndDelete(t *testing.T) {
	b := New(WithSignedIn(bridge.User{ID: 1}), WithFiles(bridge.FileMetadata{ID: "f1", Name: "a.txt"}))
	defer b.Close()

	assert.Equal(t, "File not found", call[bridge.Result](t, b, bridge.OpRenameFile, `"nope"`, `"b.txt"`, `0`).Error)
	assert.True(t, call[bridge.Result](t, b, bridge.OpRenameFile, `"f1"`, `"b.txt"`, `0`).Success)

	files := call[[]bridge.FileMetadata](t, b, bridge.OpListFiles)
	require.Len(t, files, 1)
	assert.Equal(t, "b.txt", files[0].Name)

	assert.True(t, call[bridge.Result](t, b, bridge.OpDeleteFile, `"f1"`, `0`).Success)
	assert.Empty(t, call[[]bridge.FileMetadata](t, b, bridge.OpListFiles))
}

func TestUploadSimulation(t *testing.T) {
	rec := &recorder{}
	b := New(WithSignedIn(bridge.User{ID: 1}), WithStep(time.Millisecond))
	b.SetBroadcaster(rec)
	defer b.Close()

	ack := call[bridge.UploadAck](t, b, bridge.OpPickAndUpload)
	assert.Equal(t, bridge.UploadStarted, ack.Status)
	assert.Equal(t, "upload-1.bin", ack.File)

	require.Eventually(t, func() bool {
		names := rec.names()
		return len(names) > 0 && names[len(names)-1] == bridge.NotifyUploadComplete
	}, 2*time.Second, 5*time.Millisecond)

	assert.Len(t, rec.names(), progressSteps+2)
	files := call[[]bridge.FileMetadata](t, b, bridge.OpListFiles)
	require.Len(t, files, 1)
	assert.Equal(t, "upload-1.bin", files[0].Name)
}

func TestDownloadUnknownFile(t *testing.T) {
	b := New(WithSignedIn(bridge.User{ID: 1}))
	defer b.Close()

	_, err := b.HandleCall(context.Background(), bridge.OpDownloadFile, []json.RawMessage{json.RawMessage(`"missing"`)})
	require.ErrorIs(t, err, errFileNotFound)
}

// TestEndToEnd drives the engine against the backend over a real socket.
func TestEndToEnd(t *testing.T) {
	b := New(
		WithSignedIn(bridge.User{ID: 1, FirstName: "Ada"}),
		WithFiles(bridge.FileMetadata{ID: "f1", Name: "a.txt", Size: 10}),
		WithStep(time.Millisecond),
	)
	defer b.Close()

	server := ipc.NewServerWithPath(b, nil, filepath.Join(t.TempDir(), "dev.sock"))
	require.NoError(t, server.Start())
	defer server.Stop()
	b.SetBroadcaster(server)

	client, err := ipc.Dial(context.Background(), server.SocketPath(), nil)
	require.NoError(t, err)
	defer client.Close()

	e, err := core.New(config.New(), client)
	require.NoError(t, err)
	defer e.Close()
	require.NoError(t, e.Start(context.Background()))

	assert.True(t, e.Session().Snapshot().Authenticated)
	assert.Equal(t, lockout.PhaseUnconfigured, e.Passcode().Phase())
	assert.Equal(t, 1, e.Files().Snapshot().Len())

	file, ok := e.Files().Snapshot().Find("f1")
	require.True(t, ok)
	require.NoError(t, e.Transfers().StartDownload(context.Background(), file))

	require.Eventually(t, func() bool {
		rec, ok := e.Transfers().Snapshot().Get(transfer.KindDownload, "f1")
		return ok && rec.Status == transfer.StatusCompleted
	}, 2*time.Second, 5*time.Millisecond)

	out, err := e.Transfers().StartUpload(context.Background())
	require.NoError(t, err)
	require.True(t, out.Started())

	require.Eventually(t, func() bool {
		return e.Files().Snapshot().Len() == 2
	}, 2*time.Second, 5*time.Millisecond, "upload completion should refresh the listing")
}
