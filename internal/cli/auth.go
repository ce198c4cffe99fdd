package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// newAuthCmd creates the 'auth' command group.
func newAuthCmd() *cobra.Command {
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Sign in to and out of the storage account",
	}

	authCmd.AddCommand(newAuthCheckCmd())
	authCmd.AddCommand(newAuthLoginCmd())
	authCmd.AddCommand(newAuthQRCmd())
	authCmd.AddCommand(newAuthLogoutCmd())

	return authCmd
}

func newAuthCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Show whether the backend is signed in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(GetContext(), func(b *backendConn) error {
				s := b.Session().Snapshot()
				switch {
				case s.Error != "":
					return errors.New(s.Error)
				case s.Authenticated:
					fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", s.User.DisplayName())
				default:
					fmt.Fprintln(cmd.OutOrStdout(), "Not signed in.")
				}
				return nil
			})
		},
	}
}

func newAuthLoginCmd() *cobra.Command {
	var phone string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with a phone number and login code",
		Long: `Sign in with a phone number. A login code is sent to the account and
asked for here; accounts with two-step verification are also asked for
their password.

Examples:
  telestore auth login
  telestore auth login --phone +15551234567`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()
			return withBackend(ctx, func(b *backendConn) error {
				out := cmd.OutOrStdout()
				sess := b.Session()
				if s := sess.Snapshot(); s.Authenticated {
					fmt.Fprintf(out, "Already signed in as %s\n", s.User.DisplayName())
					return nil
				}

				p := newPrompter(cmd)
				var err error
				if phone == "" {
					if phone, err = p.line("Phone number: "); err != nil {
						return err
					}
				}

				res, err := sess.RequestCode(ctx, phone)
				if err != nil {
					return err
				}
				if !res.Success {
					return fmt.Errorf("could not send code: %s", res.Error)
				}

				code, err := p.line("Login code: ")
				if err != nil {
					return err
				}
				signIn, err := sess.SignIn(ctx, phone, code, "")
				if err != nil {
					return err
				}
				if signIn.NeedsPassword() {
					password, err := p.secret("Password: ")
					if err != nil {
						return err
					}
					if signIn, err = sess.SignIn(ctx, phone, code, password); err != nil {
						return err
					}
				}
				if !signIn.Success {
					return fmt.Errorf("sign in failed: %s", signIn.Error)
				}

				fmt.Fprintf(out, "Signed in as %s\n", sess.Snapshot().User.DisplayName())
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&phone, "phone", "", "Phone number in international format")

	return cmd
}

func newAuthQRCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "qr",
		Short: "Sign in by scanning a QR code from another device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()
			return withBackend(ctx, func(b *backendConn) error {
				out := cmd.OutOrStdout()
				sess := b.Session()

				qr, err := sess.RequestQR(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Open this link on a signed-in device (expires in %ds):\n  %s\n", qr.ExpiresIn, qr.URL)
				fmt.Fprintln(out, "Waiting for confirmation...")

				status, err := sess.WaitForQR(ctx, qr.TokenID)
				if err != nil {
					return err
				}
				if status.NeedsPassword {
					return errors.New("this account needs its password; use 'auth login' instead")
				}
				if !sess.Snapshot().Authenticated {
					return fmt.Errorf("QR login %s", status.Status)
				}
				fmt.Fprintf(out, "Signed in as %s\n", sess.Snapshot().User.DisplayName())
				return nil
			})
		},
	}
}

func newAuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(GetContext(), func(b *backendConn) error {
				res, err := b.Session().Logout(GetContext())
				if err != nil {
					return err
				}
				if !res.Success {
					return fmt.Errorf("logout failed: %s", res.Error)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
				return nil
			})
		},
	}
}
