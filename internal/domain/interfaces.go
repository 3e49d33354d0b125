package domain

import (
	"context"
	"fmt"
	"io"
)

// IndexStore is a remote, named container of documents for semantic retrieval.
type IndexStore struct {
	Name             string
	DisplayName      string
	ActiveDocuments  int64
	PendingDocuments int64
	FailedDocuments  int64
	SizeBytes        int64
}

// ExistingDocument is a document already present in an index store.
type ExistingDocument struct {
	Name        string
	DisplayName string
}

// CustomMetadata is one attribute attached to an uploaded document.
// Exactly one of StringValue and NumericValue is set.
type CustomMetadata struct {
	Key          string
	StringValue  *string
	NumericValue *float64
}

// ChunkingConfig controls how the remote service splits a document.
// Zero values leave the service defaults in place.
type ChunkingConfig struct {
	MaxTokensPerChunk int
	MaxOverlapTokens  int
}

// UploadRequest describes a single upload+import into a store.
type UploadRequest struct {
	DisplayName string
	MIMEType    string
	Size        int64
	Content     io.Reader
	Metadata    []CustomMetadata
	Chunking    *ChunkingConfig
}

// OperationError is the job-level error reported by a finished operation.
type OperationError struct {
	Code    int
	Message string
}

func (e *OperationError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
	}
	return e.Message
}

// Operation is an asynchronous remote import job.
type Operation struct {
	Name  string
	Done  bool
	Error *OperationError
}

// IndexService is the remote semantic index consumed by the sync engine.
type IndexService interface {
	CreateStore(ctx context.Context, displayName string) (IndexStore, error)
	GetStore(ctx context.Context, name string) (IndexStore, error)
	ListDocuments(ctx context.Context, storeName string) ([]ExistingDocument, error)
	UploadDocument(ctx context.Context, storeName string, req UploadRequest) (Operation, error)
	GetOperation(ctx context.Context, name string) (Operation, error)
}
