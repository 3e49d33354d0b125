// Package cli wires the docqa commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"docqa/internal/config"
	"docqa/internal/domain"
	"docqa/internal/indexstore"
	"docqa/internal/journal"
	"docqa/internal/logging"
	"docqa/internal/service"
)

// app is the state shared by all commands of one invocation.
type app struct {
	cfgPath  string
	logLevel string

	cfg    *config.AppConfig
	logCfg logging.Config
	log    *zap.Logger
}

// NewRootCmd creates the root command with all subcommands.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "docqa",
		Short: "Sync a local document corpus into a Gemini File Search store",
		Long: `docqa keeps a managed File Search store in step with a local folder of
documents. Files already present in the store (by name) are skipped, new
files are uploaded with their metadata and the import operations are
tracked until they finish.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&a.cfgPath, "config", "c", "", "path to YAML config (default ./docqa.yaml or ~/.config/docqa/config.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")

	root.AddCommand(newSyncCmd(a))
	root.AddCommand(newStatusCmd(a))
	root.AddCommand(newHistoryCmd(a))
	return root
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func (a *app) init() error {
	var err error
	if a.cfgPath == "" {
		a.cfg, a.cfgPath, err = config.LoadDefault()
	} else {
		a.cfg, err = config.Load(a.cfgPath)
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if a.logLevel != "" {
		a.cfg.Logging.Level = a.logLevel
	}
	a.logCfg = logging.Config{
		Level:  a.cfg.Logging.Level,
		Format: a.cfg.Logging.Format,
		File:   a.cfg.Logging.File,
	}
	a.log, err = logging.New(a.logCfg)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	a.log.Debug("config loaded", zap.String("path", a.cfgPath))
	return nil
}

// muteConsole rebuilds the logger without terminal output, keeping the log
// file if one is configured.
func (a *app) muteConsole() error {
	quiet := a.logCfg
	quiet.Console = io.Discard
	log, err := logging.New(quiet)
	if err != nil {
		return err
	}
	_ = a.log.Sync()
	a.logCfg, a.log = quiet, log
	return nil
}

func (a *app) openIndex(ctx context.Context) (domain.IndexService, error) {
	return indexstore.Open(ctx, a.cfg.Index, indexstore.RetryConfig(a.cfg.Retry), a.log)
}

var errJournalDisabled = errors.New("journal is disabled (journal.path is empty)")

func (a *app) openJournal() (*journal.Journal, error) {
	if a.cfg.Journal.Path == "" {
		return nil, errJournalDisabled
	}
	return journal.Open(a.cfg.Journal.Path)
}

// runtime builds the sync runtime. The returned closer releases the journal.
func (a *app) runtime(ctx context.Context) (*service.Runtime, func(), error) {
	index, err := a.openIndex(ctx)
	if err != nil {
		return nil, nil, err
	}
	j, err := a.openJournal()
	switch {
	case errors.Is(err, errJournalDisabled):
		j = nil
	case err != nil:
		a.log.Warn("run journal unavailable", zap.Error(err))
		j = nil
	}
	closer := func() {
		if j != nil {
			j.Close()
		}
	}
	return service.NewRuntime(a.cfg, index, j, a.log), closer, nil
}
