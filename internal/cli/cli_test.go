package cli

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telestore/telestore/internal/bridge"
	"github.com/telestore/telestore/internal/config"
	"github.com/telestore/telestore/internal/devbackend"
	"github.com/telestore/telestore/internal/ipc"
	"github.com/telestore/telestore/internal/lockout"
)

// TestCommandStructure checks every top-level command is registered and
// runnable.
func TestCommandStructure(t *testing.T) {
	root := NewRootCmd()
	AddCommands(root)

	for _, name := range []string{"status", "files", "upload", "download", "watch", "passcode", "auth", "config", "dev-backend", "completion"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
		assert.NotEmpty(t, cmd.Short, name)
	}
}

func TestSubcommands(t *testing.T) {
	cases := []struct {
		group *cobra.Command
		names []string
	}{
		{newFilesCmd(), []string{"list", "rename", "delete"}},
		{newPasscodeCmd(), []string{"status", "setup", "verify", "change", "reset", "skip"}},
		{newAuthCmd(), []string{"check", "login", "qr", "logout"}},
		{newConfigCmd(), []string{"init", "show", "path"}},
	}
	for _, tc := range cases {
		for _, name := range tc.names {
			cmd, _, err := tc.group.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, cmd.Name(), "%s %s", tc.group.Name(), name)
			assert.NotNil(t, cmd.RunE, "%s %s has no RunE", tc.group.Name(), name)
		}
	}
}

func TestDescribePhase(t *testing.T) {
	assert.Equal(t, "not set", describePhase(lockout.PhaseUnconfigured, 0))
	assert.Equal(t, "set, not verified", describePhase(lockout.PhaseUnverified, 0))
	assert.Equal(t, "verified", describePhase(lockout.PhaseVerified, 0))
	assert.Equal(t, "locked, retry in 30s", describePhase(lockout.PhaseLockedShort, 30*time.Second))
	assert.Contains(t, describePhase(lockout.PhaseLockedLong, time.Hour), "too many attempts")
}

func TestPluralize(t *testing.T) {
	assert.Equal(t, "0 files", pluralize(0, "file"))
	assert.Equal(t, "1 file", pluralize(1, "file"))
	assert.Equal(t, "3 chunks", pluralize(3, "chunk"))
}

func TestPrintFiles(t *testing.T) {
	var out bytes.Buffer
	printFiles(&out, nil)
	assert.Equal(t, "No files.\n", out.String())

	out.Reset()
	printFiles(&out, []bridge.FileMetadata{
		{ID: "f1", Name: "a.txt", Size: 1000, MimeType: "text/plain"},
		{ID: "f2", Name: "long-name.bin", Size: 2000},
	})
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "a.txt")
	assert.Contains(t, lines[1], "1.0 kB")
	assert.Contains(t, lines[2], "-")
	assert.Equal(t, "3.0 kB in 2 files", lines[4])
}

func TestPrompter(t *testing.T) {
	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetIn(strings.NewReader("  hello \nYes\nn\nsecret\nsecret\nabc\nabd\n"))
	cmd.SetOut(&out)
	p := newPrompter(cmd)

	line, err := p.line("Name: ")
	require.NoError(t, err)
	assert.Equal(t, "hello", line)
	assert.Equal(t, "Name: ", out.String())

	ok, err := p.confirm("Sure?")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.confirm("Sure?")
	require.NoError(t, err)
	assert.False(t, ok)

	secret, err := p.newSecret("New: ")
	require.NoError(t, err)
	assert.Equal(t, "secret", secret)

	_, err = p.newSecret("New: ")
	assert.EqualError(t, err, "passcodes do not match")
}

func TestPrompter_LastLineWithoutNewline(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.SetIn(strings.NewReader("12345"))
	cmd.SetOut(&bytes.Buffer{})

	code, err := newPrompter(cmd).line("Code: ")
	require.NoError(t, err)
	assert.Equal(t, "12345", code)
}

func TestConfigInitAndShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.ini")

	out, err := runCLI(t, "", "--config", path, "config", "init", "--socket-path", "/tmp/x.sock")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration saved to: "+path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.sock", cfg.Bridge.SocketPath)

	out, err = runCLI(t, "", "--config", path, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")

	out, err = runCLI(t, "", "--config", path, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "socket_path    = /tmp/x.sock")
	assert.Contains(t, out, "max_attempts   = 5")

	out, err = runCLI(t, "", "--config", path, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, path+"\n", out)
}

// startDevBackend serves a dev backend on a temp socket for the duration of
// the test.
func startDevBackend(t *testing.T, opts ...devbackend.Option) string {
	t.Helper()
	opts = append([]devbackend.Option{devbackend.WithStep(time.Millisecond)}, opts...)
	b := devbackend.New(opts...)
	server := ipc.NewServerWithPath(b, nil, filepath.Join(t.TempDir(), "dev.sock"))
	require.NoError(t, server.Start())
	b.SetBroadcaster(server)
	t.Cleanup(func() {
		server.Stop()
		b.Close()
	})
	return server.SocketPath()
}

// runCLI executes the full command tree against an isolated config file and
// returns stdout.
func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	AddCommands(root)

	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))

	hasConfig := false
	for _, a := range args {
		if a == "--config" {
			hasConfig = true
		}
	}
	if !hasConfig {
		args = append([]string{"--config", filepath.Join(t.TempDir(), "none.ini")}, args...)
	}
	root.SetArgs(args)

	err := root.Execute()
	return out.String(), err
}

func TestEndToEnd_Files(t *testing.T) {
	socket := startDevBackend(t,
		devbackend.WithSignedIn(bridge.User{ID: 1, FirstName: "Ada"}),
		devbackend.WithFiles(
			bridge.FileMetadata{ID: "f1", Name: "a.txt", Size: 10},
			bridge.FileMetadata{ID: "f2", Name: "b.txt", Size: 20},
		),
	)

	out, err := runCLI(t, "", "--socket", socket, "files", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "a.txt")
	assert.Contains(t, out, "in 2 files")

	out, err = runCLI(t, "", "--socket", socket, "files", "rename", "f1", "renamed.txt")
	require.NoError(t, err)
	assert.Contains(t, out, "renamed.txt")

	out, err = runCLI(t, "n\n", "--socket", socket, "files", "delete", "f2")
	require.NoError(t, err)
	assert.Contains(t, out, "Cancelled.")

	_, err = runCLI(t, "", "--socket", socket, "files", "delete", "f2", "--yes")
	require.NoError(t, err)

	out, err = runCLI(t, "", "--socket", socket, "files", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "renamed.txt")
	assert.NotContains(t, out, "b.txt")

	out, err = runCLI(t, "", "--socket", socket, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "signed in as Ada")
	assert.Contains(t, out, "Files:     1")
}

func TestEndToEnd_Passcode(t *testing.T) {
	socket := startDevBackend(t, devbackend.WithLockout(3, time.Minute))
	const passcode = "Xk9#mQ2!vLp7@zR4"

	out, err := runCLI(t, "", "--socket", socket, "passcode", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "not set")

	out, err = runCLI(t, passcode+"\n"+passcode+"\n", "--socket", socket, "passcode", "setup")
	require.NoError(t, err)
	assert.Contains(t, out, "Passcode set.")

	_, err = runCLI(t, "", "--socket", socket, "passcode", "skip")
	require.Error(t, err)

	_, err = runCLI(t, "wrong\n", "--socket", socket, "passcode", "verify")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 attempts left")

	out, err = runCLI(t, passcode+"\n", "--socket", socket, "passcode", "verify")
	require.NoError(t, err)
	assert.Contains(t, out, "Passcode accepted.")
}

func TestEndToEnd_Login(t *testing.T) {
	socket := startDevBackend(t)

	out, err := runCLI(t, devbackend.ValidCode+"\n", "--socket", socket, "auth", "login", "--phone", "+15550000")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as")

	out, err = runCLI(t, "", "--socket", socket, "auth", "check")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as")

	out, err = runCLI(t, "", "--socket", socket, "auth", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed out.")
}

func TestBackendUnreachable(t *testing.T) {
	_, err := runCLI(t, "", "--socket", filepath.Join(t.TempDir(), "missing.sock"), "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend not reachable")
}

func TestEndToEnd_DownloadWait(t *testing.T) {
	socket := startDevBackend(t,
		devbackend.WithSignedIn(bridge.User{ID: 1, FirstName: "Ada"}),
		devbackend.WithFiles(bridge.FileMetadata{ID: "f1", Name: "a.txt", Size: 10}),
	)

	_, err := runCLI(t, "", "--socket", socket, "download", "f1", "--wait")
	require.NoError(t, err)

	_, err = runCLI(t, "", "--socket", socket, "download", "missing")
	require.Error(t, err)
}
