package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/telestore/telestore/internal/progress"
	"github.com/telestore/telestore/internal/transfer"
)

// newUploadCmd creates the 'upload' command.
func newUploadCmd() *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Pick a file and upload it",
		Long: `Ask the backend to open its file picker and upload the chosen file.

Examples:
  telestore upload
  telestore upload --wait`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()
			return withBackend(ctx, func(b *backendConn) error {
				out := cmd.OutOrStdout()
				reg := b.Transfers()

				// Uploads get their id from the backend, so follow the first
				// new one.
				known := make(map[string]bool)
				for _, rec := range reg.Snapshot().Uploads() {
					known[rec.ID] = true
				}

				res, err := reg.StartUpload(ctx)
				if err != nil {
					return err
				}
				if !res.Started() {
					fmt.Fprintln(out, "Upload cancelled.")
					return nil
				}
				if !wait {
					fmt.Fprintf(out, "Upload started: %s\n", res.File)
					return nil
				}

				bar := progress.NewSingleBar(out, res.File)
				id := ""
				return follow(ctx, reg, bar, func(s transfer.Snapshot) (transfer.Record, bool) {
					if id == "" {
						for _, rec := range s.Uploads() {
							if !known[rec.ID] {
								id = rec.ID
								break
							}
						}
					}
					return s.Get(transfer.KindUpload, id)
				})
			})
		},
	}

	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for the upload to finish and show progress")

	return cmd
}

// newDownloadCmd creates the 'download' command.
func newDownloadCmd() *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "download <file-id>",
		Short: "Download a stored file",
		Long: `Ask the backend to download a stored file.

Examples:
  telestore download 1f0c2a
  telestore download 1f0c2a --wait`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()
			return withBackend(ctx, func(b *backendConn) error {
				out := cmd.OutOrStdout()
				file, err := findFile(b, args[0])
				if err != nil {
					return err
				}

				reg := b.Transfers()
				if err := reg.StartDownload(ctx, file); err != nil {
					return err
				}
				if !wait {
					fmt.Fprintf(out, "Download started: %s\n", file.Name)
					return nil
				}

				bar := progress.NewSingleBar(out, file.Name)
				return follow(ctx, reg, bar, func(s transfer.Snapshot) (transfer.Record, bool) {
					return s.Get(transfer.KindDownload, file.ID)
				})
			})
		},
	}

	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for the download to finish and show progress")

	return cmd
}

// follow drives bar from the record pick selects until it completes or
// fails.
func follow(ctx context.Context, reg *transfer.Registry, bar *progress.SingleBar, pick func(transfer.Snapshot) (transfer.Record, bool)) error {
	changed := make(chan struct{}, 1)
	unsubscribe := reg.Subscribe(func(transfer.Snapshot) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	for {
		if rec, ok := pick(reg.Snapshot()); ok {
			switch rec.Status {
			case transfer.StatusCompleted:
				bar.Update(rec)
				bar.Finish()
				return nil
			case transfer.StatusError:
				err := errors.New(rec.Error)
				bar.Fail(err)
				return err
			default:
				bar.Update(rec)
			}
		}

		select {
		case <-ctx.Done():
			bar.Fail(nil)
			return ctx.Err()
		case <-changed:
		}
	}
}

// newWatchCmd creates the 'watch' command.
func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Show live progress of all transfers until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()
			return withBackend(ctx, func(b *backendConn) error {
				view := newView(cmd.OutOrStdout())
				unsubscribe := b.Transfers().Subscribe(view.Render)
				view.Render(b.Transfers().Snapshot())

				fmt.Fprintln(view.Writer(), "Watching transfers, press Ctrl+C to stop.")
				<-ctx.Done()

				unsubscribe()
				view.Close()
				if dropped := b.DroppedEvents(); dropped > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "%d events were dropped while watching.\n", dropped)
				}
				return nil
			})
		},
	}
}

func newView(out io.Writer) *progress.TransferView {
	if f, ok := out.(*os.File); ok {
		return progress.NewTransferView(f)
	}
	return progress.NewPlainTransferView(out)
}
