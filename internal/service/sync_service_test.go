package service

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"docqa/internal/config"
	"docqa/internal/domain"
	"docqa/internal/indexstore/memory"
	"docqa/internal/journal"
)

type fixture struct {
	dir string
	cfg *config.AppConfig
	svc *memory.Service
}

func newFixture(t *testing.T, files map[string]string) *fixture {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "source_files")
	for rel, body := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	cfg, err := config.Load(filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	cfg.Index.Type = "memory"
	cfg.Index.StateFile = filepath.Join(dir, "file_search_store_name.txt")
	cfg.Corpus.Root = root
	cfg.Metadata.Path = filepath.Join(dir, "files_metadata.csv")
	cfg.Tracker.PollIntervalMillis = 1
	cfg.Tracker.OperationTimeoutSecs = 5
	cfg.Journal.Path = ""

	svc := memory.NewService()
	svc.PollsUntilDone = 2
	return &fixture{dir: dir, cfg: cfg, svc: svc}
}

func (f *fixture) runtime(j *journal.Journal) *Runtime {
	return NewRuntime(f.cfg, f.svc, j, zap.NewNop())
}

func TestSync_SecondRunUploadsNothing(t *testing.T) {
	f := newFixture(t, map[string]string{"a.md": "# a", "docs/b.pdf": "%PDF", "c.txt": "c"})
	ctx := context.Background()

	first, err := f.runtime(nil).Sync(ctx, SyncOptions{})
	if err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if first.Submitted != 3 || first.Succeeded != 3 || first.TotalInStore != 3 {
		t.Errorf("first report = %+v", first)
	}

	second, err := f.runtime(nil).Sync(ctx, SyncOptions{})
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if second.Submitted != 0 || second.Skipped != 3 || second.TotalInStore != 3 {
		t.Errorf("second report = %+v", second)
	}
	if second.StoreName != first.StoreName {
		t.Errorf("store changed: %s -> %s", first.StoreName, second.StoreName)
	}
	if f.svc.Uploads() != 3 {
		t.Errorf("uploads = %d, want 3", f.svc.Uploads())
	}
}

func TestSync_DeletedStoreIsReplaced(t *testing.T) {
	f := newFixture(t, map[string]string{"a.md": "a"})
	ctx := context.Background()

	first, err := f.runtime(nil).Sync(ctx, SyncOptions{})
	if err != nil {
		t.Fatal(err)
	}
	f.svc.DeleteStore(first.StoreName)

	second, err := f.runtime(nil).Sync(ctx, SyncOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if second.StoreName == first.StoreName {
		t.Fatal("expected a new store")
	}
	if second.Submitted != 1 || second.Existing != 0 {
		t.Errorf("second report = %+v", second)
	}
	data, _ := os.ReadFile(f.cfg.Index.StateFile)
	if string(data) != second.StoreName {
		t.Errorf("state file = %q, want %q", data, second.StoreName)
	}
}

func TestSync_MetadataAppliesToEveryExtension(t *testing.T) {
	f := newFixture(t, map[string]string{"a.md": "a", "a.txt": "a", "a.pdf": "a", "other.md": "o"})
	csv := "article_filename;article_name;is_archived;is_news;article_year\na;Report A;0;yes;NULL\n"
	if err := os.WriteFile(f.cfg.Metadata.Path, []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}

	rep, err := f.runtime(nil).Sync(context.Background(), SyncOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Succeeded != 4 {
		t.Fatalf("report = %+v", rep)
	}
	for _, d := range f.svc.Documents(rep.StoreName) {
		if d.DisplayName == "other.md" {
			if len(d.Metadata) != 0 {
				t.Errorf("other.md metadata = %+v", d.Metadata)
			}
			continue
		}
		keys := map[string]domain.CustomMetadata{}
		for _, m := range d.Metadata {
			keys[m.Key] = m
		}
		if _, ok := keys["article_year"]; ok {
			t.Errorf("%s: NULL year must not be attached", d.DisplayName)
		}
		news, ok := keys["is_news"]
		if !ok || news.NumericValue == nil || *news.NumericValue != 0 {
			t.Errorf("%s: is_news = %+v", d.DisplayName, news)
		}
		if name := keys["article_name"]; name.StringValue == nil || *name.StringValue != "Report A" {
			t.Errorf("%s: article_name = %+v", d.DisplayName, name)
		}
	}
}

func TestSync_DryRunUploadsNothing(t *testing.T) {
	f := newFixture(t, map[string]string{"a.md": "a", "b.md": "b"})

	rep, err := f.runtime(nil).Sync(context.Background(), SyncOptions{DryRun: true})
	if err != nil {
		t.Fatal(err)
	}
	if !rep.DryRun || rep.Submitted != 2 || rep.Succeeded != 0 {
		t.Errorf("report = %+v", rep)
	}
	if f.svc.Uploads() != 0 {
		t.Errorf("uploads = %d, want 0", f.svc.Uploads())
	}
}

type recorder struct {
	mu       sync.Mutex
	phases   []Phase
	outcomes []domain.Outcome
}

func (r *recorder) OnPhase(p Phase, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phases = append(r.phases, p)
}

func (r *recorder) OnOutcome(o domain.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

func TestSync_FailuresAreReportedAndJournaled(t *testing.T) {
	f := newFixture(t, map[string]string{"good.md": "g", "bad.pdf": "b", "rejected.txt": "r"})
	f.svc.ImportErrors["bad.pdf"] = "could not parse"
	f.svc.UploadErrors["rejected.txt"] = domain.ErrInvalidArgument

	j, err := journal.Open(filepath.Join(f.dir, ".docqa", "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()

	rt := f.runtime(j)
	rt.Now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }
	rec := &recorder{}

	rep, err := rt.Sync(context.Background(), SyncOptions{Progress: rec})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Succeeded != 1 || rep.Failed != 2 || rep.TotalInStore != 1 {
		t.Errorf("report = %+v", rep)
	}
	if len(rec.outcomes) != 3 {
		t.Errorf("progress outcomes = %+v", rec.outcomes)
	}
	if rec.phases[len(rec.phases)-1] != PhaseFinished {
		t.Errorf("phases = %v", rec.phases)
	}

	latest, err := j.Latest(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	failed, err := j.Failed(context.Background(), latest.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 2 {
		t.Errorf("journaled failures = %+v", failed)
	}
}

func TestSync_MissingCorpusRootFails(t *testing.T) {
	f := newFixture(t, nil)
	f.cfg.Corpus.Root = filepath.Join(f.dir, "nope")
	if _, err := f.runtime(nil).Sync(context.Background(), SyncOptions{}); err == nil {
		t.Fatal("expected error for missing corpus root")
	}
}

func TestStatus(t *testing.T) {
	f := newFixture(t, map[string]string{"a.md": "a"})
	ctx := context.Background()
	if _, err := f.runtime(nil).Status(ctx); err == nil {
		t.Fatal("expected error without a recorded store")
	}
	rep, err := f.runtime(nil).Sync(ctx, SyncOptions{})
	if err != nil {
		t.Fatal(err)
	}
	store, err := f.runtime(nil).Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if store.Name != rep.StoreName || store.ActiveDocuments != 1 {
		t.Errorf("status = %+v", store)
	}
}

func TestSync_SkipHiddenSetting(t *testing.T) {
	f := newFixture(t, map[string]string{"a.md": "a", ".archive/old.md": "old"})

	rep, err := f.runtime(nil).Sync(context.Background(), SyncOptions{DryRun: true})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Candidates != 2 {
		t.Errorf("default candidates = %d, want 2", rep.Candidates)
	}

	f.cfg.Corpus.SkipHidden = true
	rep, err = f.runtime(nil).Sync(context.Background(), SyncOptions{DryRun: true})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Candidates != 1 {
		t.Errorf("skip_hidden candidates = %d, want 1", rep.Candidates)
	}
}
