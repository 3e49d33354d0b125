// Package reconcile decides which local files must be uploaded to an index
// store and submits them.
//
// Remote documents are identified only by display name, which is the base
// filename of the local file. Content is never compared.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"docqa/internal/domain"
	"docqa/internal/metadata"
)

// DuplicatePolicy decides what happens when several local files share a name.
type DuplicatePolicy string

const (
	// DuplicateWarn uploads the first file by relative path and reports the rest.
	DuplicateWarn DuplicatePolicy = "warn"
	// DuplicateFail aborts the run before anything is uploaded.
	DuplicateFail DuplicatePolicy = "fail"
)

// ErrDuplicateNames is returned under DuplicateFail when names collide.
var ErrDuplicateNames = errors.New("duplicate document names in corpus")

// Partition splits candidates by display-name membership in the remote
// listing. Every candidate lands in exactly one of the two slices.
func Partition(candidates []domain.CandidateFile, existing []domain.ExistingDocument) (toUpload, skipped []domain.CandidateFile) {
	present := make(map[string]struct{}, len(existing))
	for _, d := range existing {
		present[d.DisplayName] = struct{}{}
	}
	for _, f := range candidates {
		if _, ok := present[f.Name]; ok {
			skipped = append(skipped, f)
		} else {
			toUpload = append(toUpload, f)
		}
	}
	return toUpload, skipped
}

// SplitDuplicates keeps the first file of each name in unique and returns
// the later ones in dups. Input order decides which file is first.
func SplitDuplicates(files []domain.CandidateFile) (unique, dups []domain.CandidateFile) {
	seen := make(map[string]struct{}, len(files))
	for _, f := range files {
		if _, ok := seen[f.Name]; ok {
			dups = append(dups, f)
			continue
		}
		seen[f.Name] = struct{}{}
		unique = append(unique, f)
	}
	return unique, dups
}

// Plan is the outcome of comparing the corpus with a store.
type Plan struct {
	Existing   []domain.ExistingDocument
	ToUpload   []domain.CandidateFile
	Skipped    []domain.CandidateFile
	Duplicates []domain.CandidateFile
}

// Result is what Submit hands over to the tracker.
type Result struct {
	Submissions []domain.Submission
	Failures    []domain.Outcome
}

// Options configures an Engine.
type Options struct {
	OnDuplicate DuplicatePolicy
	Chunking    *domain.ChunkingConfig
}

// Engine reconciles candidates against one store.
type Engine struct {
	index domain.IndexService
	meta  metadata.Table
	opts  Options
	log   *zap.Logger
}

// NewEngine creates an engine.
func NewEngine(index domain.IndexService, meta metadata.Table, opts Options, log *zap.Logger) *Engine {
	if opts.OnDuplicate == "" {
		opts.OnDuplicate = DuplicateWarn
	}
	if meta == nil {
		meta = metadata.Table{}
	}
	return &Engine{index: index, meta: meta, opts: opts, log: log}
}

// Plan lists the store and partitions the candidates. A listing failure is
// returned as is: without a complete skip-set every file would be uploaded
// again.
func (e *Engine) Plan(ctx context.Context, store domain.IndexStore, candidates []domain.CandidateFile) (Plan, error) {
	existing, err := e.index.ListDocuments(ctx, store.Name)
	if err != nil {
		return Plan{}, fmt.Errorf("list existing documents: %w", err)
	}
	e.log.Info("fetched existing documents", zap.Int("count", len(existing)))

	toUpload, skipped := Partition(candidates, existing)
	unique, dups := SplitDuplicates(toUpload)

	if len(dups) > 0 {
		for _, d := range dups {
			e.log.Warn("document name collides with another file in the corpus",
				zap.String("name", d.Name), zap.String("path", d.RelPath))
		}
		if e.opts.OnDuplicate == DuplicateFail {
			return Plan{}, fmt.Errorf("%w: %d files, first %q", ErrDuplicateNames, len(dups), dups[0].Name)
		}
	}
	for _, f := range skipped {
		e.log.Debug("already uploaded, skipping", zap.String("name", f.Name))
	}

	return Plan{Existing: existing, ToUpload: unique, Skipped: skipped, Duplicates: dups}, nil
}

// Submit uploads every planned file. A failing file is recorded and the
// batch continues.
func (e *Engine) Submit(ctx context.Context, store domain.IndexStore, files []domain.CandidateFile) Result {
	var res Result
	for _, f := range files {
		if ctx.Err() != nil {
			res.Failures = append(res.Failures, failure(f, domain.FailureCanceled, ctx.Err()))
			continue
		}
		op, err := e.submitOne(ctx, store, f)
		if err != nil {
			e.log.Error("upload failed", zap.String("path", f.RelPath), zap.Error(err))
			res.Failures = append(res.Failures, failure(f, domain.FailureSubmit, err))
			continue
		}
		e.log.Info("upload initiated", zap.String("name", f.Name), zap.String("operation", op.Name))
		res.Submissions = append(res.Submissions, domain.Submission{File: f, Operation: op})
	}
	return res
}

func (e *Engine) submitOne(ctx context.Context, store domain.IndexStore, f domain.CandidateFile) (domain.Operation, error) {
	fh, err := os.Open(f.Path)
	if err != nil {
		return domain.Operation{}, err
	}
	defer fh.Close()

	req := domain.UploadRequest{
		DisplayName: f.Name,
		MIMEType:    MIMEType(f.Name),
		Content:     fh,
		Chunking:    e.opts.Chunking,
	}
	if info, err := fh.Stat(); err == nil {
		req.Size = info.Size()
	}
	if rec, ok := e.meta.Lookup(f.Name); ok {
		req.Metadata = rec.CustomMetadata()
		e.log.Debug("metadata attached", zap.String("name", f.Name), zap.Int("fields", len(req.Metadata)))
	} else {
		e.log.Info("no metadata found", zap.String("name", f.Name))
	}
	return e.index.UploadDocument(ctx, store.Name, req)
}

func failure(f domain.CandidateFile, kind domain.FailureKind, err error) domain.Outcome {
	return domain.Outcome{
		DisplayName: f.Name,
		Path:        f.RelPath,
		Status:      domain.StatusFailed,
		Kind:        kind,
		Reason:      err.Error(),
	}
}

// DuplicateOutcomes reports files held back because of a name collision.
func DuplicateOutcomes(dups []domain.CandidateFile) []domain.Outcome {
	out := make([]domain.Outcome, 0, len(dups))
	for _, d := range dups {
		out = append(out, domain.Outcome{
			DisplayName: d.Name,
			Path:        d.RelPath,
			Status:      domain.StatusDuplicate,
			Reason:      "another file with the same name is uploaded in this run",
		})
	}
	return out
}

var documentTypes = map[string]string{
	".md":   "text/markdown",
	".txt":  "text/plain",
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// MIMEType returns the upload content type for a file name.
func MIMEType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if t, ok := documentTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
