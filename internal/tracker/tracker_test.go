package tracker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"docqa/internal/domain"
	"docqa/internal/indexstore/memory"
)

func submit(t *testing.T, svc *memory.Service, store domain.IndexStore, names ...string) []domain.Submission {
	t.Helper()
	var subs []domain.Submission
	for _, n := range names {
		op, err := svc.UploadDocument(context.Background(), store.Name, domain.UploadRequest{
			DisplayName: n,
			Content:     strings.NewReader("x"),
		})
		if err != nil {
			t.Fatalf("upload %s: %v", n, err)
		}
		subs = append(subs, domain.Submission{
			File:      domain.CandidateFile{Path: "/corpus/" + n, RelPath: n, Name: n},
			Operation: op,
		})
	}
	return subs
}

func fastConfig() Config {
	return Config{PollInterval: time.Millisecond, OperationTimeout: time.Second, Concurrency: 2}
}

func TestWait_OneSucceedsOneFails(t *testing.T) {
	svc := memory.NewService()
	svc.PollsUntilDone = 3
	svc.ImportErrors["bad.pdf"] = "unsupported encoding"
	store, _ := svc.CreateStore(context.Background(), "docs")
	subs := submit(t, svc, store, "good.md", "bad.pdf")

	var mu sync.Mutex
	var seen []string
	tr := New(svc, fastConfig(), zap.NewNop()).WithObserver(ObserverFunc(func(o domain.Outcome) {
		mu.Lock()
		seen = append(seen, o.DisplayName)
		mu.Unlock()
	}))

	out := tr.Wait(context.Background(), subs)
	if len(out) != 2 {
		t.Fatalf("outcomes = %d, want 2", len(out))
	}
	if out[0].DisplayName != "good.md" || out[0].Status != domain.StatusSucceeded {
		t.Errorf("out[0] = %+v", out[0])
	}
	if out[1].DisplayName != "bad.pdf" || out[1].Status != domain.StatusFailed || out[1].Kind != domain.FailureImport {
		t.Errorf("out[1] = %+v", out[1])
	}
	if !strings.Contains(out[1].Reason, "unsupported encoding") {
		t.Errorf("reason = %q", out[1].Reason)
	}
	if len(seen) != 2 {
		t.Errorf("observer saw %v", seen)
	}
	if docs := svc.Documents(store.Name); len(docs) != 1 || docs[0].DisplayName != "good.md" {
		t.Errorf("store documents = %+v", docs)
	}
}

func TestWait_AlreadyDoneIsNotPolled(t *testing.T) {
	svc := memory.NewService()
	store, _ := svc.CreateStore(context.Background(), "docs")
	subs := submit(t, svc, store, "a.md")
	svc.OperationErrors["a.md"] = errors.New("should not be called")

	out := New(svc, fastConfig(), zap.NewNop()).Wait(context.Background(), subs)
	if out[0].Status != domain.StatusSucceeded {
		t.Errorf("outcome = %+v", out[0])
	}
}

func TestWait_Timeout(t *testing.T) {
	svc := memory.NewService()
	svc.NeverFinish["stuck.pdf"] = true
	store, _ := svc.CreateStore(context.Background(), "docs")
	subs := submit(t, svc, store, "stuck.pdf", "ok.md")

	cfg := fastConfig()
	cfg.OperationTimeout = 20 * time.Millisecond
	out := New(svc, cfg, zap.NewNop()).Wait(context.Background(), subs)

	if out[0].Kind != domain.FailureTimeout {
		t.Errorf("stuck outcome = %+v", out[0])
	}
	if out[1].Status != domain.StatusSucceeded {
		t.Errorf("ok outcome = %+v", out[1])
	}
}

func TestWait_PollErrorIsIsolated(t *testing.T) {
	svc := memory.NewService()
	svc.PollsUntilDone = 2
	store, _ := svc.CreateStore(context.Background(), "docs")
	subs := submit(t, svc, store, "a.md", "b.md")
	svc.OperationErrors["a.md"] = domain.ErrPermission

	out := New(svc, fastConfig(), zap.NewNop()).Wait(context.Background(), subs)
	if out[0].Kind != domain.FailurePoll || !strings.Contains(out[0].Reason, "permission") {
		t.Errorf("a.md outcome = %+v", out[0])
	}
	if out[1].Status != domain.StatusSucceeded {
		t.Errorf("b.md outcome = %+v", out[1])
	}
}

func TestWait_Canceled(t *testing.T) {
	svc := memory.NewService()
	svc.NeverFinish["a.md"] = true
	store, _ := svc.CreateStore(context.Background(), "docs")
	subs := submit(t, svc, store, "a.md")

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	cfg := fastConfig()
	cfg.OperationTimeout = time.Minute
	out := New(svc, cfg, zap.NewNop()).Wait(ctx, subs)
	if out[0].Kind != domain.FailureCanceled {
		t.Errorf("outcome = %+v", out[0])
	}
}

func TestWait_Empty(t *testing.T) {
	out := New(memory.NewService(), Config{}, zap.NewNop()).Wait(context.Background(), nil)
	if len(out) != 0 {
		t.Errorf("outcomes = %v", out)
	}
}
