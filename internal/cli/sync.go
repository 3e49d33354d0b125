package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"docqa/internal/report"
	"docqa/internal/service"
	"docqa/internal/tui"
)

// ErrDocumentsFailed is returned by sync --fail-on-error when any document failed.
var ErrDocumentsFailed = errors.New("some documents failed to sync")

type syncFlags struct {
	dryRun      bool
	progress    bool
	failOnError bool
	root        string
	metadata    string
	storeName   string
}

func newSyncCmd(a *app) *cobra.Command {
	var f syncFlags
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Upload new documents from the corpus to the store",
		Long: `Resolve the store, list its documents and upload every local file whose
name is not present yet, attaching metadata from the side table. Waits for
all import operations and prints a summary.

Examples:
  docqa sync
  docqa sync --dry-run
  docqa sync --root ./docs --metadata ./docs/meta.csv --progress`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.root != "" {
				a.cfg.Corpus.Root = f.root
			}
			if f.metadata != "" {
				a.cfg.Metadata.Path = f.metadata
			}
			if f.storeName != "" {
				a.cfg.Index.StoreDisplayName = f.storeName
			}

			if f.progress && isTerminal(cmd.OutOrStdout()) {
				if err := a.muteConsole(); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, closeRuntime, err := a.runtime(ctx)
			if err != nil {
				return err
			}
			defer closeRuntime()

			rep, err := a.runSync(ctx, cmd, rt, f)
			if err != nil {
				return err
			}
			if f.failOnError {
				return failuresError(rep)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "show what would be uploaded without uploading")
	cmd.Flags().BoolVar(&f.progress, "progress", false, "show a live progress view (terminals only)")
	cmd.Flags().BoolVar(&f.failOnError, "fail-on-error", false, "exit non-zero if any document fails")
	cmd.Flags().StringVar(&f.root, "root", "", "override corpus.root")
	cmd.Flags().StringVar(&f.metadata, "metadata", "", "override metadata.path")
	cmd.Flags().StringVar(&f.storeName, "store-name", "", "override index.store_display_name for new stores")
	return cmd
}

func (a *app) runSync(ctx context.Context, cmd *cobra.Command, rt *service.Runtime, f syncFlags) (report.Report, error) {
	opts := service.SyncOptions{DryRun: f.dryRun}
	out := cmd.OutOrStdout()

	if f.progress && isTerminal(out) {
		return tui.Run(ctx, func(ctx context.Context, p service.Progress) (report.Report, error) {
			opts.Progress = p
			return rt.Sync(ctx, opts)
		})
	}

	rep, err := rt.Sync(ctx, opts)
	if err != nil {
		return rep, err
	}
	if isTerminal(out) {
		fmt.Fprintln(out, rep.Styled())
	} else if err := rep.WriteText(out); err != nil {
		return rep, err
	}
	return rep, nil
}

func failuresError(rep report.Report) error {
	if !rep.HasFailures() {
		return nil
	}
	return fmt.Errorf("%w: %d of %d", ErrDocumentsFailed, rep.Failed, rep.Attempted())
}

func isTerminal(w any) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
