package gemini

import (
	"encoding/json"
	"strconv"
	"strings"

	"docqa/internal/domain"
)

// int64String decodes proto3 JSON int64 fields, which arrive as strings.
type int64String int64

func (n *int64String) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return err
	}
	*n = int64String(v)
	return nil
}

type fileSearchStore struct {
	Name                  string      `json:"name,omitempty"`
	DisplayName           string      `json:"displayName,omitempty"`
	ActiveDocumentsCount  int64String `json:"activeDocumentsCount,omitempty"`
	PendingDocumentsCount int64String `json:"pendingDocumentsCount,omitempty"`
	FailedDocumentsCount  int64String `json:"failedDocumentsCount,omitempty"`
	SizeBytes             int64String `json:"sizeBytes,omitempty"`
}

func (s fileSearchStore) toDomain() domain.IndexStore {
	return domain.IndexStore{
		Name:             s.Name,
		DisplayName:      s.DisplayName,
		ActiveDocuments:  int64(s.ActiveDocumentsCount),
		PendingDocuments: int64(s.PendingDocumentsCount),
		FailedDocuments:  int64(s.FailedDocumentsCount),
		SizeBytes:        int64(s.SizeBytes),
	}
}

type document struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	State       string `json:"state,omitempty"`
}

type listDocumentsResponse struct {
	Documents     []document `json:"documents"`
	NextPageToken string     `json:"nextPageToken"`
}

type status struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type operation struct {
	Name     string          `json:"name"`
	Done     bool            `json:"done"`
	Error    *status         `json:"error,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
}

func (o operation) toDomain() domain.Operation {
	out := domain.Operation{Name: o.Name, Done: o.Done}
	if o.Error != nil && (o.Error.Code != 0 || o.Error.Message != "") {
		out.Error = &domain.OperationError{Code: o.Error.Code, Message: o.Error.Message}
	}
	return out
}

type customMetadata struct {
	Key          string   `json:"key"`
	StringValue  *string  `json:"stringValue,omitempty"`
	NumericValue *float64 `json:"numericValue,omitempty"`
}

type whiteSpaceConfig struct {
	MaxTokensPerChunk int `json:"maxTokensPerChunk,omitempty"`
	MaxOverlapTokens  int `json:"maxOverlapTokens,omitempty"`
}

type chunkingConfig struct {
	WhiteSpaceConfig whiteSpaceConfig `json:"whiteSpaceConfig"`
}

type uploadMetadata struct {
	DisplayName    string           `json:"displayName"`
	MIMEType       string           `json:"mimeType,omitempty"`
	CustomMetadata []customMetadata `json:"customMetadata,omitempty"`
	ChunkingConfig *chunkingConfig  `json:"chunkingConfig,omitempty"`
}

func newUploadMetadata(req domain.UploadRequest) uploadMetadata {
	m := uploadMetadata{DisplayName: req.DisplayName, MIMEType: req.MIMEType}
	for _, cm := range req.Metadata {
		m.CustomMetadata = append(m.CustomMetadata, customMetadata{
			Key:          cm.Key,
			StringValue:  cm.StringValue,
			NumericValue: cm.NumericValue,
		})
	}
	if req.Chunking != nil && (req.Chunking.MaxTokensPerChunk > 0 || req.Chunking.MaxOverlapTokens > 0) {
		m.ChunkingConfig = &chunkingConfig{WhiteSpaceConfig: whiteSpaceConfig{
			MaxTokensPerChunk: req.Chunking.MaxTokensPerChunk,
			MaxOverlapTokens:  req.Chunking.MaxOverlapTokens,
		}}
	}
	return m
}
