package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"docqa/internal/domain"
	"docqa/internal/report"
)

func openTemp(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "state", "journal.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordAndQuery(t *testing.T) {
	ctx := context.Background()
	j := openTemp(t)

	if _, err := j.Latest(ctx); !errors.Is(err, ErrNoRuns) {
		t.Fatalf("Latest on empty journal: %v", err)
	}

	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	first := report.Build(report.Input{
		Store:    domain.IndexStore{Name: "fileSearchStores/s1", DisplayName: "docs"},
		Existing: 0,
		Tracked:  []domain.Outcome{{DisplayName: "a.md", Status: domain.StatusSucceeded}},
	})
	if _, err := j.Record(ctx, base, base.Add(time.Minute), first); err != nil {
		t.Fatalf("Record: %v", err)
	}

	second := report.Build(report.Input{
		Store:    domain.IndexStore{Name: "fileSearchStores/s1", DisplayName: "docs"},
		Existing: 1,
		Tracked: []domain.Outcome{
			{DisplayName: "b.pdf", Path: "x/b.pdf", OperationName: "op-2", Status: domain.StatusFailed, Kind: domain.FailureImport, Reason: "bad pdf"},
			{DisplayName: "c.md", Status: domain.StatusSucceeded},
		},
	})
	id, err := j.Record(ctx, base.Add(time.Hour), base.Add(time.Hour+time.Minute), second)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	runs, err := j.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != id {
		t.Fatalf("runs = %+v", runs)
	}
	if runs[0].Succeeded != 1 || runs[0].Failed != 1 || runs[0].Existing != 1 {
		t.Errorf("latest run counts = %+v", runs[0])
	}
	if !runs[0].StartedAt.Equal(base.Add(time.Hour)) {
		t.Errorf("StartedAt = %v", runs[0].StartedAt)
	}

	latest, err := j.Latest(ctx)
	if err != nil || latest.ID != id {
		t.Fatalf("Latest = %+v, %v", latest, err)
	}

	failed, err := j.Failed(ctx, id)
	if err != nil {
		t.Fatalf("Failed: %v", err)
	}
	if len(failed) != 1 || failed[0].DisplayName != "b.pdf" || failed[0].Kind != domain.FailureImport || failed[0].Reason != "bad pdf" {
		t.Errorf("failed = %+v", failed)
	}
}

func TestRecentLimit(t *testing.T) {
	ctx := context.Background()
	j := openTemp(t)
	now := time.Now()
	for i := 0; i < 3; i++ {
		r := report.Build(report.Input{Store: domain.IndexStore{Name: "s"}})
		if _, err := j.Record(ctx, now.Add(time.Duration(i)*time.Second), now, r); err != nil {
			t.Fatal(err)
		}
	}
	runs, err := j.Recent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Errorf("len = %d, want 2", len(runs))
	}
}
