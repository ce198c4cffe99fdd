package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/telestore/telestore/internal/lockout"
)

// newPasscodeCmd creates the 'passcode' command group.
func newPasscodeCmd() *cobra.Command {
	passcodeCmd := &cobra.Command{
		Use:   "passcode",
		Short: "Manage the encryption passcode",
		Long: `Commands for the passcode protecting encrypted files.

Failed verifications spend attempts. When they run out the backend locks
passcode entry for a while; further attempts are refused until it expires.`,
	}

	passcodeCmd.AddCommand(newPasscodeStatusCmd())
	passcodeCmd.AddCommand(newPasscodeSetupCmd())
	passcodeCmd.AddCommand(newPasscodeVerifyCmd())
	passcodeCmd.AddCommand(newPasscodeChangeCmd())
	passcodeCmd.AddCommand(newPasscodeResetCmd())
	passcodeCmd.AddCommand(newPasscodeSkipCmd())

	return passcodeCmd
}

func newPasscodeStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a passcode is set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(GetContext(), func(b *backendConn) error {
				m := b.Passcode()
				s := m.Snapshot()
				if s.Error != "" {
					return errors.New(s.Error)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Passcode: %s\n", describePhase(m.Phase(), m.RetryIn()))
				return nil
			})
		},
	}
}

func newPasscodeSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Set the first passcode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(GetContext(), func(b *backendConn) error {
				out := cmd.OutOrStdout()
				m := b.Passcode()
				if m.Snapshot().HasPasscode {
					return errors.New("a passcode is already set; use 'passcode change'")
				}

				p := newPrompter(cmd)
				passcode, err := p.newSecret("New passcode: ")
				if err != nil {
					return err
				}
				if !confirmStrength(p, b, passcode) {
					fmt.Fprintln(out, "Cancelled.")
					return nil
				}

				res, err := m.Setup(GetContext(), passcode)
				if err != nil {
					return err
				}
				if !res.Success {
					return fmt.Errorf("setup failed: %s", res.Error)
				}
				fmt.Fprintln(out, "Passcode set.")
				return nil
			})
		},
	}
}

func newPasscodeVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check a passcode against the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(GetContext(), func(b *backendConn) error {
				out := cmd.OutOrStdout()
				m := b.Passcode()
				switch m.Phase() {
				case lockout.PhaseUnconfigured:
					return errors.New("no passcode is set; use 'passcode setup'")
				}

				passcode, err := newPrompter(cmd).secret("Passcode: ")
				if err != nil {
					return err
				}
				res, err := m.Verify(GetContext(), passcode)
				if err != nil {
					return err
				}

				switch res.Kind {
				case lockout.OutcomeValid:
					fmt.Fprintln(out, "Passcode accepted.")
					return nil
				case lockout.OutcomeIncorrect:
					return fmt.Errorf("%s (%s left)", res.Message, pluralize(res.AttemptsRemaining, "attempt"))
				default:
					return fmt.Errorf("%s (locked until %s)", res.Message, res.LockedUntil.Local().Format("15:04:05"))
				}
			})
		},
	}
}

func newPasscodeChangeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "change",
		Short: "Change the passcode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(GetContext(), func(b *backendConn) error {
				p := newPrompter(cmd)
				oldPasscode, err := p.secret("Current passcode: ")
				if err != nil {
					return err
				}
				newPasscode, err := p.newSecret("New passcode: ")
				if err != nil {
					return err
				}
				if !confirmStrength(p, b, newPasscode) {
					fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
					return nil
				}

				res, err := b.Passcode().Change(GetContext(), oldPasscode, newPasscode)
				if err != nil {
					return err
				}
				if !res.Success {
					return fmt.Errorf("change failed: %s", res.Error)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Passcode changed.")
				return nil
			})
		},
	}
}

func newPasscodeResetCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete the passcode and every encrypted file",
		Long: `Delete the passcode and every encrypted file on the backend.

This cannot be undone. Use it when the passcode is lost.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(GetContext(), func(b *backendConn) error {
				out := cmd.OutOrStdout()
				if !yes {
					ok, err := newPrompter(cmd).confirm("This permanently deletes all encrypted files. Continue?")
					if err != nil {
						return err
					}
					if !ok {
						fmt.Fprintln(out, "Cancelled.")
						return nil
					}
				}

				res, err := b.Passcode().Reset(GetContext())
				if err != nil {
					return err
				}
				if !res.Success {
					return fmt.Errorf("reset failed: %s", b.Passcode().Snapshot().Error)
				}
				fmt.Fprintf(out, "Reset complete: %s, %s deleted.\n",
					pluralize(res.EncryptedFilesDeleted, "file"), pluralize(res.ChunksDeleted, "chunk"))
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")

	return cmd
}

func newPasscodeSkipCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "skip",
		Short: "Continue without a passcode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(GetContext(), func(b *backendConn) error {
				m := b.Passcode()
				if m.Snapshot().HasPasscode {
					return errors.New("a passcode is set; use 'passcode verify'")
				}
				m.Skip()
				fmt.Fprintf(cmd.OutOrStdout(), "Passcode: %s\n", describePhase(m.Phase(), 0))
				return nil
			})
		},
	}
}

// confirmStrength warns about an easily guessed passcode and asks whether to
// use it anyway.
func confirmStrength(p *prompter, b *backendConn, passcode string) bool {
	if !b.Config().Passcode.WarnWeak {
		return true
	}
	strength := lockout.EstimateStrength(passcode)
	if !strength.Weak() {
		return true
	}
	fmt.Fprintf(p.out, "Warning: this passcode is easy to guess (cracked in %s).\n", strength.CrackTime)
	ok, err := p.confirm("Use it anyway?")
	return err == nil && ok
}
