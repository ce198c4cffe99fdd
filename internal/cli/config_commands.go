package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/telestore/telestore/internal/config"
	"github.com/telestore/telestore/internal/ipc"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage telestore configuration",
		Long: `Configuration management commands for telestore.

Commands:
  init  - Write a configuration file with default settings
  show  - Display current configuration
  path  - Show configuration file path

Settings can also be overridden with TELESTORE_* environment variables,
for example TELESTORE_SOCKET_PATH or TELESTORE_LOG_LEVEL.`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultPath()
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var force bool
	var socket string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with default settings",
		Long: `Write a configuration file with default settings.

Use --force to overwrite an existing configuration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			path := configPath()

			if !force {
				if _, err := os.Stat(path); err == nil {
					fmt.Fprintf(out, "Configuration already exists at: %s\n", path)
					fmt.Fprintln(out, "Use --force to overwrite or run 'config show' to view current config.")
					return nil
				}
			}

			cfg := config.New()
			cfg.Bridge.SocketPath = socket
			if err := config.Save(cfg, path); err != nil {
				return err
			}

			GetLogger().Info().Str("path", path).Msg("Configuration written")
			fmt.Fprintf(out, "Configuration saved to: %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing configuration")
	cmd.Flags().StringVar(&socket, "socket-path", "", "Backend socket to store in the configuration")

	return cmd
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Long:  `Display the effective configuration, including environment overrides.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			printConfig(cmd.OutOrStdout(), configPath(), cfg)
			return nil
		},
	}
}

func printConfig(out io.Writer, path string, cfg *config.Config) {
	socket := cfg.Bridge.SocketPath
	if socket == "" {
		socket = ipc.DefaultSocketPath() + " (default)"
	}

	fmt.Fprintf(out, "Configuration file: %s\n\n", path)
	fmt.Fprintln(out, "[bridge]")
	fmt.Fprintf(out, "  socket_path    = %s\n", socket)
	fmt.Fprintf(out, "  call_timeout   = %s\n", cfg.Bridge.CallTimeout)
	fmt.Fprintf(out, "  mocks          = %t\n", cfg.Bridge.Mocks)
	fmt.Fprintf(out, "  forward_logs   = %t\n", cfg.Bridge.ForwardLogs)
	fmt.Fprintln(out, "[transfers]")
	fmt.Fprintf(out, "  cleanup_delay  = %s\n", cfg.Transfers.CleanupDelay)
	fmt.Fprintln(out, "[passcode]")
	fmt.Fprintf(out, "  max_attempts   = %d\n", cfg.Passcode.MaxAttempts)
	fmt.Fprintf(out, "  warn_weak      = %t\n", cfg.Passcode.WarnWeak)
	fmt.Fprintln(out, "[logging]")
	fmt.Fprintf(out, "  level          = %s\n", cfg.Logging.Level)
	fmt.Fprintln(out, "[notifications]")
	fmt.Fprintf(out, "  enabled        = %t\n", cfg.Notifications.Enabled)
	fmt.Fprintf(out, "  show_transfer_complete = %t\n", cfg.Notifications.ShowTransferComplete)
	fmt.Fprintf(out, "  show_transfer_failed   = %t\n", cfg.Notifications.ShowTransferFailed)
	fmt.Fprintf(out, "  show_lockout           = %t\n", cfg.Notifications.ShowLockout)
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), configPath())
			return nil
		},
	}
}
