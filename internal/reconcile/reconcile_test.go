package reconcile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"go.uber.org/zap"

	"docqa/internal/domain"
	"docqa/internal/indexstore/memory"
	"docqa/internal/metadata"
)

func candidates(names ...string) []domain.CandidateFile {
	out := make([]domain.CandidateFile, 0, len(names))
	for _, n := range names {
		out = append(out, domain.CandidateFile{Path: n, RelPath: n, Name: filepath.Base(n)})
	}
	return out
}

func names(files []domain.CandidateFile) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.Name)
	}
	sort.Strings(out)
	return out
}

func TestPartition_Scenario(t *testing.T) {
	toUpload, skipped := Partition(
		candidates("a.md", "b.pdf", "c.txt"),
		[]domain.ExistingDocument{{Name: "fileSearchStores/s/documents/1", DisplayName: "b.pdf"}},
	)
	if got := strings.Join(names(toUpload), ","); got != "a.md,c.txt" {
		t.Errorf("toUpload = %s", got)
	}
	if got := strings.Join(names(skipped), ","); got != "b.pdf" {
		t.Errorf("skipped = %s", got)
	}
}

func TestPartition_IsExactSplit(t *testing.T) {
	all := candidates("x/a.md", "y/a.md", "b.pdf", "c.txt", "d.doc", "e.docx")
	existing := []domain.ExistingDocument{{DisplayName: "a.md"}, {DisplayName: "e.docx"}, {DisplayName: "zzz.pdf"}}

	toUpload, skipped := Partition(all, existing)
	if len(toUpload)+len(skipped) != len(all) {
		t.Fatalf("union size %d, want %d", len(toUpload)+len(skipped), len(all))
	}
	inSkip := map[string]bool{}
	for _, f := range skipped {
		inSkip[f.RelPath] = true
		if f.Name != "a.md" && f.Name != "e.docx" {
			t.Errorf("%s skipped without remote match", f.Name)
		}
	}
	for _, f := range toUpload {
		if inSkip[f.RelPath] {
			t.Errorf("%s in both sets", f.RelPath)
		}
	}
}

func TestSplitDuplicates_KeepsFirst(t *testing.T) {
	unique, dups := SplitDuplicates(candidates("2023/report.pdf", "2024/report.pdf", "a.md"))
	if len(unique) != 2 || unique[0].RelPath != "2023/report.pdf" {
		t.Errorf("unique = %+v", unique)
	}
	if len(dups) != 1 || dups[0].RelPath != "2024/report.pdf" {
		t.Errorf("dups = %+v", dups)
	}
}

func writeCorpus(t *testing.T, rels ...string) []domain.CandidateFile {
	t.Helper()
	root := t.TempDir()
	var out []domain.CandidateFile
	for _, rel := range rels {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("content of "+rel), 0o644); err != nil {
			t.Fatal(err)
		}
		out = append(out, domain.CandidateFile{Path: p, RelPath: rel, Name: filepath.Base(rel)})
	}
	return out
}

func TestEngine_PlanFlagsDuplicates(t *testing.T) {
	ctx := context.Background()
	svc := memory.NewService()
	store, _ := svc.CreateStore(ctx, "docs")
	files := writeCorpus(t, "a/report.pdf", "b/report.pdf", "c.md")

	plan, err := NewEngine(svc, nil, Options{}, zap.NewNop()).Plan(ctx, store, files)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.ToUpload) != 2 || len(plan.Duplicates) != 1 {
		t.Errorf("plan = %+v", plan)
	}

	_, err = NewEngine(svc, nil, Options{OnDuplicate: DuplicateFail}, zap.NewNop()).Plan(ctx, store, files)
	if !errors.Is(err, ErrDuplicateNames) {
		t.Fatalf("err = %v, want ErrDuplicateNames", err)
	}
}

func TestEngine_PlanListingFailureAborts(t *testing.T) {
	ctx := context.Background()
	svc := memory.NewService()
	store, _ := svc.CreateStore(ctx, "docs")
	svc.ListError = domain.ErrTransient

	_, err := NewEngine(svc, nil, Options{}, zap.NewNop()).Plan(ctx, store, writeCorpus(t, "a.md"))
	if !errors.Is(err, domain.ErrTransient) {
		t.Fatalf("err = %v, want ErrTransient", err)
	}
}

func TestEngine_SubmitAttachesMetadataAndIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	svc := memory.NewService()
	svc.UploadErrors["rejected.pdf"] = errors.New("file too large")
	store, _ := svc.CreateStore(ctx, "docs")

	files := writeCorpus(t, "a.md", "rejected.pdf", "c.txt")
	files = append(files, domain.CandidateFile{Path: filepath.Join(t.TempDir(), "gone.md"), RelPath: "gone.md", Name: "gone.md"})

	meta, err := metadata.Parse(strings.NewReader(
		"article_filename;article_name;is_archived;is_news;article_year\na;Report A;1;0;2023\n"), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	res := NewEngine(svc, meta, Options{Chunking: &domain.ChunkingConfig{MaxTokensPerChunk: 100}}, zap.NewNop()).
		Submit(ctx, store, files)

	if len(res.Submissions) != 2 {
		t.Fatalf("submissions = %d, want 2", len(res.Submissions))
	}
	if len(res.Failures) != 2 {
		t.Fatalf("failures = %+v", res.Failures)
	}
	for _, f := range res.Failures {
		if f.Kind != domain.FailureSubmit || f.Reason == "" {
			t.Errorf("unexpected failure %+v", f)
		}
	}

	docs := svc.Documents(store.Name)
	byName := map[string]memory.Document{}
	for _, d := range docs {
		byName[d.DisplayName] = d
	}
	a := byName["a.md"]
	if len(a.Metadata) != 4 {
		t.Fatalf("a.md metadata = %+v", a.Metadata)
	}
	if a.Metadata[0].Key != "article_name" || *a.Metadata[0].StringValue != "Report A" {
		t.Errorf("article_name = %+v", a.Metadata[0])
	}
	if a.MIMEType != "text/markdown" {
		t.Errorf("MIMEType = %q", a.MIMEType)
	}
	if c := byName["c.txt"]; len(c.Metadata) != 0 {
		t.Errorf("c.txt should have no metadata, got %+v", c.Metadata)
	}
}

func TestEngine_SubmitCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	svc := memory.NewService()
	store, _ := svc.CreateStore(context.Background(), "docs")
	cancel()

	res := NewEngine(svc, nil, Options{}, zap.NewNop()).Submit(ctx, store, writeCorpus(t, "a.md"))
	if len(res.Submissions) != 0 || len(res.Failures) != 1 || res.Failures[0].Kind != domain.FailureCanceled {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestMIMEType(t *testing.T) {
	tests := map[string]string{
		"a.md":   "text/markdown",
		"A.PDF":  "application/pdf",
		"x.docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"blob":   "application/octet-stream",
	}
	for in, want := range tests {
		if got := MIMEType(in); got != want {
			t.Errorf("MIMEType(%q) = %q, want %q", in, got, want)
		}
	}
}
