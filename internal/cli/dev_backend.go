package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/telestore/telestore/internal/bridge"
	"github.com/telestore/telestore/internal/devbackend"
	"github.com/telestore/telestore/internal/ipc"
)

// demoFiles seeds the listing with --demo.
var demoFiles = []bridge.FileMetadata{
	{ID: "demo-1", Name: "report.pdf", Size: 2_400_000, MimeType: "application/pdf"},
	{ID: "demo-2", Name: "holiday.jpg", Size: 5_100_000, MimeType: "image/jpeg"},
	{ID: "demo-3", Name: "notes.txt", Size: 1_200, MimeType: "text/plain"},
}

// newDevBackendCmd creates the 'dev-backend' command.
func newDevBackendCmd() *cobra.Command {
	var (
		step        time.Duration
		password    string
		signedIn    bool
		demo        bool
		maxAttempts int
		lockFor     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "dev-backend",
		Short: "Run an in-memory backend for testing",
		Long: `Run an in-memory backend on the backend socket until interrupted.

State is kept in memory and lost on exit. The login code is always ` + devbackend.ValidCode + `.
Uploads and downloads are simulated with progress notifications.

Examples:
  telestore dev-backend --demo --signed-in
  telestore dev-backend --2fa-password hunter2 --step 200ms`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			log := GetLogger()

			opts := []devbackend.Option{
				devbackend.WithLogger(log),
				devbackend.WithStep(step),
				devbackend.WithLockout(maxAttempts, lockFor),
			}
			if password != "" {
				opts = append(opts, devbackend.WithTwoFactorPassword(password))
			}
			if signedIn {
				opts = append(opts, devbackend.WithSignedIn(bridge.User{ID: 1, FirstName: "Dev", Username: "dev"}))
			}
			if demo {
				opts = append(opts, devbackend.WithFiles(demoFiles...))
			}

			backend := devbackend.New(opts...)
			server := ipc.NewServerWithPath(backend, log, resolveSocket(cfg))
			if err := server.Start(); err != nil {
				backend.Close()
				return err
			}
			backend.SetBroadcaster(server)

			fmt.Fprintf(cmd.OutOrStdout(), "Dev backend listening on %s (Ctrl+C to stop)\n", server.SocketPath())

			<-GetContext().Done()

			server.Stop()
			backend.Close()
			return nil
		},
	}

	cmd.Flags().DurationVar(&step, "step", 500*time.Millisecond, "Interval between simulated progress updates")
	cmd.Flags().StringVar(&password, "2fa-password", "", "Require this two-step verification password at sign in")
	cmd.Flags().BoolVar(&signedIn, "signed-in", false, "Start already signed in")
	cmd.Flags().BoolVar(&demo, "demo", false, "Seed the file listing with sample files")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 5, "Failed passcode attempts before a lockout")
	cmd.Flags().DurationVar(&lockFor, "lockout", 30*time.Second, "Lockout duration once attempts run out")

	return cmd
}
