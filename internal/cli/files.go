package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/telestore/telestore/internal/bridge"
	"github.com/telestore/telestore/internal/state"
)

// newFilesCmd creates the 'files' command group.
func newFilesCmd() *cobra.Command {
	filesCmd := &cobra.Command{
		Use:   "files",
		Short: "File operations (list, rename, delete)",
		Long:  `Commands for managing files stored by the backend.`,
	}

	filesCmd.AddCommand(newFilesListCmd())
	filesCmd.AddCommand(newFilesRenameCmd())
	filesCmd.AddCommand(newFilesDeleteCmd())

	return filesCmd
}

// newFilesListCmd creates the 'files list' command.
func newFilesListCmd() *cobra.Command {
	var sortBy string
	var descending bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List stored files",
		Long: `List stored files.

Examples:
  telestore files list
  telestore files list --sort size --desc`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key := state.SortKey(strings.ToLower(sortBy))
			switch key {
			case state.SortByName, state.SortBySize, state.SortByType:
			default:
				return fmt.Errorf("--sort must be one of name, size, type, got %q", sortBy)
			}

			return withBackend(GetContext(), func(b *backendConn) error {
				snap := b.Files().Snapshot()
				if snap.Error() != "" {
					return errors.New(snap.Error())
				}
				printFiles(cmd.OutOrStdout(), snap.Sorted(key, !descending))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&sortBy, "sort", string(state.SortByName), "Sort by name, size or type")
	cmd.Flags().BoolVar(&descending, "desc", false, "Sort in descending order")

	return cmd
}

func printFiles(out io.Writer, files []bridge.FileMetadata) {
	if len(files) == 0 {
		fmt.Fprintln(out, "No files.")
		return
	}

	idWidth, nameWidth := len("ID"), len("NAME")
	for _, f := range files {
		idWidth = max(idWidth, len(f.ID))
		nameWidth = max(nameWidth, len(f.Name))
	}

	fmt.Fprintf(out, "%-*s  %-*s  %10s  %s\n", idWidth, "ID", nameWidth, "NAME", "SIZE", "TYPE")
	var total int64
	for _, f := range files {
		mime := f.MimeType
		if mime == "" {
			mime = "-"
		}
		fmt.Fprintf(out, "%-*s  %-*s  %10s  %s\n", idWidth, f.ID, nameWidth, f.Name, humanize.Bytes(uint64(f.Size)), mime)
		total += f.Size
	}
	fmt.Fprintf(out, "\n%s in %s\n", humanize.Bytes(uint64(total)), pluralize(len(files), "file"))
}

// newFilesRenameCmd creates the 'files rename' command.
func newFilesRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <file-id> <new-name>",
		Short: "Rename a stored file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			newName := strings.TrimSpace(args[1])
			if newName == "" {
				return errors.New("new name must not be empty")
			}

			return withBackend(GetContext(), func(b *backendConn) error {
				file, err := findFile(b, args[0])
				if err != nil {
					return err
				}
				res, err := b.Files().Rename(GetContext(), file, newName)
				if err != nil {
					return err
				}
				if !res.Success {
					return fmt.Errorf("rename failed: %s", res.Error)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s to %s\n", file.Name, newName)
				return nil
			})
		},
	}
}

// newFilesDeleteCmd creates the 'files delete' command.
func newFilesDeleteCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:     "delete <file-id>",
		Aliases: []string{"rm"},
		Short:   "Delete a stored file",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(GetContext(), func(b *backendConn) error {
				file, err := findFile(b, args[0])
				if err != nil {
					return err
				}
				if !yes {
					ok, err := newPrompter(cmd).confirm(fmt.Sprintf("Delete %s?", file.Name))
					if err != nil {
						return err
					}
					if !ok {
						fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
						return nil
					}
				}

				res, err := b.Files().Delete(GetContext(), file)
				if err != nil {
					return err
				}
				if !res.Success {
					return fmt.Errorf("delete failed: %s", res.Error)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", file.Name)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")

	return cmd
}

func findFile(b *backendConn, id string) (bridge.FileMetadata, error) {
	snap := b.Files().Snapshot()
	if snap.Error() != "" {
		return bridge.FileMetadata{}, errors.New(snap.Error())
	}
	file, ok := snap.Find(id)
	if !ok {
		return bridge.FileMetadata{}, fmt.Errorf("file %q not found", id)
	}
	return file, nil
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
