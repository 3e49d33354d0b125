package memory

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"docqa/internal/domain"
)

// Document is a stored document as seen by the in-memory service.
type Document struct {
	Name        string
	DisplayName string
	MIMEType    string
	Size        int64
	Metadata    []domain.CustomMetadata
}

type store struct {
	info domain.IndexStore
	docs []Document
}

type operation struct {
	name      string
	storeName string
	doc       Document
	pollsLeft int
	err       *domain.OperationError
	done      bool
}

// Service is an in-process index service. Operations complete after a
// configurable number of polls, which makes it usable both for dry runs and
// as a test double for the remote API.
type Service struct {
	mu     sync.Mutex
	stores map[string]*store
	ops    map[string]*operation
	seq    int

	// PollsUntilDone is how many GetOperation calls report a pending job.
	PollsUntilDone int
	// ImportErrors fails the import of a display name with the given message.
	ImportErrors map[string]string
	// UploadErrors rejects the upload of a display name outright.
	UploadErrors map[string]error
	// OperationErrors makes GetOperation fail for a display name.
	OperationErrors map[string]error
	// NeverFinish keeps operations of these display names pending forever.
	NeverFinish map[string]bool
	// ListError makes ListDocuments fail.
	ListError error

	uploads int
}

// NewService creates an empty in-memory service.
func NewService() *Service {
	return &Service{
		stores:          map[string]*store{},
		ops:             map[string]*operation{},
		ImportErrors:    map[string]string{},
		UploadErrors:    map[string]error{},
		OperationErrors: map[string]error{},
		NeverFinish:     map[string]bool{},
	}
}

var _ domain.IndexService = (*Service)(nil)

func (s *Service) CreateStore(ctx context.Context, displayName string) (domain.IndexStore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	info := domain.IndexStore{
		Name:        fmt.Sprintf("fileSearchStores/mem-%d", s.seq),
		DisplayName: displayName,
	}
	s.stores[info.Name] = &store{info: info}
	return info, nil
}

func (s *Service) GetStore(ctx context.Context, name string) (domain.IndexStore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stores[name]
	if !ok {
		return domain.IndexStore{}, fmt.Errorf("store %s: %w", name, domain.ErrNotFound)
	}
	info := st.info
	info.ActiveDocuments = int64(len(st.docs))
	for _, op := range s.ops {
		if op.storeName == name && !op.done {
			info.PendingDocuments++
		}
	}
	return info, nil
}

// DeleteStore removes a store, as if it had been deleted remotely.
func (s *Service) DeleteStore(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.stores, name)
}

// AddDocument places a document directly into a store.
func (s *Service) AddDocument(storeName, displayName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stores[storeName]
	if !ok {
		return fmt.Errorf("store %s: %w", storeName, domain.ErrNotFound)
	}
	s.seq++
	st.docs = append(st.docs, Document{
		Name:        fmt.Sprintf("%s/documents/doc-%d", storeName, s.seq),
		DisplayName: displayName,
	})
	return nil
}

// Documents returns a copy of the documents in a store.
func (s *Service) Documents(storeName string) []Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stores[storeName]
	if !ok {
		return nil
	}
	out := make([]Document, len(st.docs))
	copy(out, st.docs)
	return out
}

// Uploads returns how many uploads were accepted.
func (s *Service) Uploads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploads
}

func (s *Service) ListDocuments(ctx context.Context, storeName string) ([]domain.ExistingDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListError != nil {
		return nil, s.ListError
	}
	st, ok := s.stores[storeName]
	if !ok {
		return nil, fmt.Errorf("store %s: %w", storeName, domain.ErrNotFound)
	}
	out := make([]domain.ExistingDocument, 0, len(st.docs))
	for _, d := range st.docs {
		out = append(out, domain.ExistingDocument{Name: d.Name, DisplayName: d.DisplayName})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Service) UploadDocument(ctx context.Context, storeName string, req domain.UploadRequest) (domain.Operation, error) {
	var size int64
	if req.Content != nil {
		n, err := io.Copy(io.Discard, req.Content)
		if err != nil {
			return domain.Operation{}, fmt.Errorf("read %s: %w", req.DisplayName, err)
		}
		size = n
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.UploadErrors[req.DisplayName]; err != nil {
		return domain.Operation{}, err
	}
	if _, ok := s.stores[storeName]; !ok {
		return domain.Operation{}, fmt.Errorf("store %s: %w", storeName, domain.ErrNotFound)
	}
	s.seq++
	s.uploads++
	op := &operation{
		name:      fmt.Sprintf("%s/upload/operations/op-%d", storeName, s.seq),
		storeName: storeName,
		doc: Document{
			Name:        fmt.Sprintf("%s/documents/doc-%d", storeName, s.seq),
			DisplayName: req.DisplayName,
			MIMEType:    req.MIMEType,
			Size:        size,
			Metadata:    append([]domain.CustomMetadata(nil), req.Metadata...),
		},
		pollsLeft: s.PollsUntilDone,
	}
	if msg, ok := s.ImportErrors[req.DisplayName]; ok {
		op.err = &domain.OperationError{Code: 13, Message: msg}
	}
	s.ops[op.name] = op
	if op.pollsLeft <= 0 && !s.NeverFinish[req.DisplayName] {
		s.finish(op)
	}
	return s.snapshot(op), nil
}

func (s *Service) GetOperation(ctx context.Context, name string) (domain.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.ops[name]
	if !ok {
		return domain.Operation{}, fmt.Errorf("operation %s: %w", name, domain.ErrNotFound)
	}
	if err := s.OperationErrors[op.doc.DisplayName]; err != nil {
		return domain.Operation{}, err
	}
	if !op.done && !s.NeverFinish[op.doc.DisplayName] {
		op.pollsLeft--
		if op.pollsLeft <= 0 {
			s.finish(op)
		}
	}
	return s.snapshot(op), nil
}

func (s *Service) finish(op *operation) {
	op.done = true
	if op.err != nil {
		return
	}
	if st, ok := s.stores[op.storeName]; ok {
		st.docs = append(st.docs, op.doc)
	}
}

func (s *Service) snapshot(op *operation) domain.Operation {
	out := domain.Operation{Name: op.name, Done: op.done}
	if op.done && op.err != nil {
		e := *op.err
		out.Error = &e
	}
	return out
}
