// Package service runs a sync of the local corpus into the index store.
package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"docqa/internal/config"
	"docqa/internal/corpus"
	"docqa/internal/domain"
	"docqa/internal/journal"
	"docqa/internal/metadata"
	"docqa/internal/reconcile"
	"docqa/internal/report"
	"docqa/internal/storestate"
	"docqa/internal/tracker"
)

// Phase names a step of a sync run.
type Phase string

const (
	PhaseResolve  Phase = "resolving store"
	PhaseScan     Phase = "scanning corpus"
	PhasePlan     Phase = "listing remote documents"
	PhaseUpload   Phase = "uploading"
	PhaseTrack    Phase = "waiting for imports"
	PhaseFinished Phase = "finished"
)

// Progress receives run events. OnOutcome may be called concurrently.
type Progress interface {
	OnPhase(phase Phase, detail string)
	OnOutcome(domain.Outcome)
}

type noProgress struct{}

func (noProgress) OnPhase(Phase, string)    {}
func (noProgress) OnOutcome(domain.Outcome) {}

// SyncOptions tune a single run.
type SyncOptions struct {
	// DryRun stops after planning and uploads nothing.
	DryRun   bool
	Progress Progress
}

// Runtime carries the collaborators shared by every command.
type Runtime struct {
	Config *config.AppConfig
	Index  domain.IndexService
	Log    *zap.Logger
	// Journal is optional.
	Journal *journal.Journal
	Now     func() time.Time
}

// NewRuntime creates a runtime. j may be nil.
func NewRuntime(cfg *config.AppConfig, index domain.IndexService, j *journal.Journal, log *zap.Logger) *Runtime {
	return &Runtime{Config: cfg, Index: index, Log: log, Journal: j, Now: time.Now}
}

func (rt *Runtime) resolver() *storestate.Resolver {
	return storestate.NewResolver(
		rt.Index,
		storestate.File{Path: rt.Config.Index.StateFile},
		rt.Config.Index.StoreDisplayName,
		rt.Log.Named("store"),
	)
}

// Sync reconciles the corpus with the store. Per-document failures are
// part of the report; the error is reserved for problems that stop the run
// before or during planning.
func (rt *Runtime) Sync(ctx context.Context, opts SyncOptions) (report.Report, error) {
	progress := opts.Progress
	if progress == nil {
		progress = noProgress{}
	}
	cfg := rt.Config
	started := rt.Now()

	progress.OnPhase(PhaseResolve, cfg.Index.StoreDisplayName)
	store, err := rt.resolver().Resolve(ctx)
	if err != nil {
		return report.Report{}, fmt.Errorf("resolve store: %w", err)
	}
	rt.Log.Info("using store", zap.String("store", store.Name), zap.String("display_name", store.DisplayName))

	meta := metadata.LoadOrEmpty(cfg.Metadata.Path, rt.Log.Named("metadata"))

	progress.OnPhase(PhaseScan, cfg.Corpus.Root)
	files, err := corpus.NewScanner(cfg.Corpus.Root, cfg.Corpus.Extensions, rt.Log.Named("corpus")).
		WithSkipHidden(cfg.Corpus.SkipHidden).
		Scan()
	if err != nil {
		return report.Report{}, err
	}
	rt.Log.Info("scanned corpus", zap.String("root", cfg.Corpus.Root), zap.Int("files", len(files)))

	engine := reconcile.NewEngine(rt.Index, meta, reconcile.Options{
		OnDuplicate: reconcile.DuplicatePolicy(cfg.Corpus.OnDuplicate),
		Chunking:    chunking(cfg.Upload),
	}, rt.Log.Named("reconcile"))

	progress.OnPhase(PhasePlan, store.Name)
	plan, err := engine.Plan(ctx, store, files)
	if err != nil {
		return report.Report{}, err
	}
	dups := reconcile.DuplicateOutcomes(plan.Duplicates)

	in := report.Input{
		Store:      store,
		DryRun:     opts.DryRun,
		Existing:   len(plan.Existing),
		Candidates: len(files),
		Skipped:    len(plan.Skipped),
		Planned:    len(plan.ToUpload),
		Duplicates: dups,
	}
	if opts.DryRun {
		for _, f := range plan.ToUpload {
			rt.Log.Info("would upload", zap.String("name", f.Name), zap.String("path", f.RelPath))
		}
		rep := report.Build(in)
		rt.record(ctx, started, rep)
		progress.OnPhase(PhaseFinished, "dry run")
		return rep, nil
	}

	progress.OnPhase(PhaseUpload, fmt.Sprintf("%d files", len(plan.ToUpload)))
	res := engine.Submit(ctx, store, plan.ToUpload)
	for _, f := range res.Failures {
		progress.OnOutcome(f)
	}
	in.SubmitFailures = res.Failures

	progress.OnPhase(PhaseTrack, fmt.Sprintf("%d operations", len(res.Submissions)))
	tr := tracker.New(rt.Index, tracker.Config{
		PollInterval:     cfg.Tracker.PollInterval(),
		OperationTimeout: cfg.Tracker.OperationTimeout(),
		Concurrency:      cfg.Tracker.Concurrency,
	}, rt.Log.Named("tracker")).WithObserver(tracker.ObserverFunc(progress.OnOutcome))
	in.Tracked = tr.Wait(ctx, res.Submissions)

	rep := report.Build(in)
	rt.record(ctx, started, rep)
	progress.OnPhase(PhaseFinished, "")
	return rep, nil
}

func (rt *Runtime) record(ctx context.Context, started time.Time, rep report.Report) {
	if rt.Journal == nil {
		return
	}
	id, err := rt.Journal.Record(context.WithoutCancel(ctx), started, rt.Now(), rep)
	if err != nil {
		rt.Log.Warn("could not record run in journal", zap.Error(err))
		return
	}
	rt.Log.Debug("run recorded", zap.String("run_id", id))
}

// Status returns the recorded store without creating one.
func (rt *Runtime) Status(ctx context.Context) (domain.IndexStore, error) {
	return rt.resolver().Current(ctx)
}

func chunking(c config.UploadConfig) *domain.ChunkingConfig {
	if c.MaxTokensPerChunk <= 0 && c.MaxOverlapTokens <= 0 {
		return nil
	}
	return &domain.ChunkingConfig{MaxTokensPerChunk: c.MaxTokensPerChunk, MaxOverlapTokens: c.MaxOverlapTokens}
}
