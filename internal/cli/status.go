package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/telestore/telestore/internal/lockout"
)

// newStatusCmd creates the 'status' command.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show session, passcode and storage status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(GetContext(), func(b *backendConn) error {
				printStatus(cmd.OutOrStdout(), b)
				return nil
			})
		},
	}
}

func printStatus(out io.Writer, b *backendConn) {
	sess := b.Session().Snapshot()
	switch {
	case sess.Authenticated:
		fmt.Fprintf(out, "Account:   signed in as %s\n", sess.User.DisplayName())
	case sess.Error != "":
		fmt.Fprintf(out, "Account:   unknown (%s)\n", sess.Error)
	default:
		fmt.Fprintln(out, "Account:   signed out")
	}

	pc := b.Passcode().Snapshot()
	fmt.Fprintf(out, "Passcode:  %s\n", describePhase(b.Passcode().Phase(), b.Passcode().RetryIn()))
	if pc.Error != "" {
		fmt.Fprintf(out, "           %s\n", pc.Error)
	}

	files := b.Files().Snapshot()
	if files.Error() != "" {
		fmt.Fprintf(out, "Files:     unavailable (%s)\n", files.Error())
	} else {
		var total int64
		for _, f := range files.Files() {
			total += f.Size
		}
		fmt.Fprintf(out, "Files:     %d (%s)\n", files.Len(), humanize.Bytes(uint64(total)))
	}

	stats := b.Transfers().Stats()
	fmt.Fprintf(out, "Transfers: %d active, %d completed, %d failed\n", stats.Active, stats.Completed, stats.Failed)
	if dropped := b.DroppedEvents(); dropped > 0 {
		fmt.Fprintf(out, "Events:    %d dropped\n", dropped)
	}
}

func describePhase(p lockout.Phase, retryIn time.Duration) string {
	switch p {
	case lockout.PhaseUnconfigured:
		return "not set"
	case lockout.PhaseVerified:
		return "verified"
	case lockout.PhaseLockedShort:
		return fmt.Sprintf("locked, retry in %s", retryIn)
	case lockout.PhaseLockedLong:
		return fmt.Sprintf("locked after too many attempts, retry in %s", retryIn)
	default:
		return "set, not verified"
	}
}
