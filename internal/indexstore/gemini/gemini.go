// Package gemini is a REST client for the Gemini File Search API.
//
// Stores, documents and upload operations live under
// /v1beta/fileSearchStores; uploads go through the media endpoint
// /upload/v1beta/{store}:uploadToFileSearchStore as multipart/related.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"

	"docqa/internal/domain"
	"docqa/internal/retry"
)

// DefaultBaseURL is the public Generative Language API endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com"

// Scopes requested when authenticating with Application Default Credentials.
var Scopes = []string{
	"https://www.googleapis.com/auth/cloud-platform",
	"https://www.googleapis.com/auth/generative-language.retriever",
}

// Config configures the client.
type Config struct {
	BaseURL string
	// APIKey authenticates with the x-goog-api-key header.
	APIKey string
	// TokenSource authenticates with OAuth2 bearer tokens when APIKey is empty.
	TokenSource oauth2.TokenSource
	Timeout     time.Duration
	PageSize    int
	Retry       retry.Config
	Logger      *zap.Logger
}

// Client implements domain.IndexService over HTTP.
type Client struct {
	baseURL  string
	apiKey   string
	pageSize int
	retry    retry.Config
	client   *http.Client
	log      *zap.Logger
}

var _ domain.IndexService = (*Client)(nil)

// NewClient creates a client. Either APIKey or TokenSource must be set.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" && cfg.TokenSource == nil {
		return nil, errors.New("gemini: an API key or token source is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	t := cfg.Timeout
	if t == 0 {
		t = 2 * time.Minute
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	hc := &http.Client{Timeout: t}
	if cfg.APIKey == "" {
		hc = oauth2.NewClient(ctx, cfg.TokenSource)
		hc.Timeout = t
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		pageSize: cfg.PageSize,
		retry:    cfg.Retry,
		client:   hc,
		log:      cfg.Logger,
	}, nil
}

// DefaultTokenSource returns Application Default Credentials for the API.
func DefaultTokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	ts, err := google.DefaultTokenSource(ctx, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("application default credentials: %w", err)
	}
	return ts, nil
}

// CreateStore provisions a new store. Not retried: creation is not idempotent.
func (c *Client) CreateStore(ctx context.Context, displayName string) (domain.IndexStore, error) {
	var out fileSearchStore
	body := fileSearchStore{DisplayName: displayName}
	if err := c.doJSON(ctx, http.MethodPost, c.apiURL("v1beta", "fileSearchStores"), body, &out); err != nil {
		return domain.IndexStore{}, fmt.Errorf("create store %q: %w", displayName, err)
	}
	return out.toDomain(), nil
}

func (c *Client) GetStore(ctx context.Context, name string) (domain.IndexStore, error) {
	u, err := c.resourceURL(name)
	if err != nil {
		return domain.IndexStore{}, err
	}
	out, err := retry.DoWithResult(ctx, c.retry, isTransient, func() (fileSearchStore, error) {
		var s fileSearchStore
		err := c.doJSON(ctx, http.MethodGet, u, nil, &s)
		return s, err
	})
	if err != nil {
		return domain.IndexStore{}, fmt.Errorf("get store %s: %w", name, err)
	}
	return out.toDomain(), nil
}

// ListDocuments walks every page of the store's document listing.
func (c *Client) ListDocuments(ctx context.Context, storeName string) ([]domain.ExistingDocument, error) {
	base, err := c.resourceURL(storeName + "/documents")
	if err != nil {
		return nil, err
	}
	var docs []domain.ExistingDocument
	pageToken := ""
	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("pageSize", fmt.Sprint(c.pageSize))
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}
		u := base + "?" + q.Encode()

		resp, err := retry.DoWithResult(ctx, c.retry, isTransient, func() (listDocumentsResponse, error) {
			var r listDocumentsResponse
			err := c.doJSON(ctx, http.MethodGet, u, nil, &r)
			return r, err
		})
		if err != nil {
			return nil, fmt.Errorf("list documents of %s (page %d): %w", storeName, page, err)
		}
		for _, d := range resp.Documents {
			docs = append(docs, domain.ExistingDocument{Name: d.Name, DisplayName: d.DisplayName})
		}
		c.log.Debug("listed document page",
			zap.String("store", storeName), zap.Int("page", page), zap.Int("documents", len(resp.Documents)))
		if resp.NextPageToken == "" {
			return docs, nil
		}
		pageToken = resp.NextPageToken
	}
}

// UploadDocument streams the file and its metadata in one multipart/related
// request and returns the import operation.
func (c *Client) UploadDocument(ctx context.Context, storeName string, req domain.UploadRequest) (domain.Operation, error) {
	if req.Content == nil {
		return domain.Operation{}, fmt.Errorf("upload %s: %w: no content", req.DisplayName, domain.ErrInvalidArgument)
	}
	u, err := c.mediaURL(storeName + ":uploadToFileSearchStore")
	if err != nil {
		return domain.Operation{}, err
	}
	meta, err := json.Marshal(newUploadMetadata(req))
	if err != nil {
		return domain.Operation{}, fmt.Errorf("encode upload metadata: %w", err)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeMultipart(mw, meta, req))
	}()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u+"?uploadType=multipart", pr)
	if err != nil {
		pr.Close()
		return domain.Operation{}, err
	}
	httpReq.Header.Set("Content-Type", "multipart/related; boundary="+mw.Boundary())
	httpReq.Header.Set("X-Goog-Upload-Protocol", "multipart")

	var op operation
	if err := c.send(httpReq, &op); err != nil {
		pr.Close()
		return domain.Operation{}, fmt.Errorf("upload %s: %w", req.DisplayName, err)
	}
	return op.toDomain(), nil
}

func writeMultipart(mw *multipart.Writer, meta []byte, req domain.UploadRequest) error {
	mh := textproto.MIMEHeader{}
	mh.Set("Content-Type", "application/json; charset=UTF-8")
	part, err := mw.CreatePart(mh)
	if err != nil {
		return err
	}
	if _, err := part.Write(meta); err != nil {
		return err
	}

	fh := textproto.MIMEHeader{}
	mimeType := req.MIMEType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	fh.Set("Content-Type", mimeType)
	part, err = mw.CreatePart(fh)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, req.Content); err != nil {
		return fmt.Errorf("read %s: %w", req.DisplayName, err)
	}
	return mw.Close()
}

func (c *Client) GetOperation(ctx context.Context, name string) (domain.Operation, error) {
	u, err := c.resourceURL(name)
	if err != nil {
		return domain.Operation{}, err
	}
	op, err := retry.DoWithResult(ctx, c.retry, isTransient, func() (operation, error) {
		var o operation
		err := c.doJSON(ctx, http.MethodGet, u, nil, &o)
		return o, err
	})
	if err != nil {
		return domain.Operation{}, fmt.Errorf("get operation %s: %w", name, err)
	}
	return op.toDomain(), nil
}

func (c *Client) apiURL(segments ...string) string {
	return c.baseURL + "/" + strings.Join(segments, "/")
}

// resourceURL maps a resource name such as fileSearchStores/abc to its
// v1beta URL, escaping each path segment.
func (c *Client) resourceURL(name string) (string, error) {
	p, err := escapeName(name)
	if err != nil {
		return "", err
	}
	return c.apiURL("v1beta", p), nil
}

func (c *Client) mediaURL(name string) (string, error) {
	p, err := escapeName(name)
	if err != nil {
		return "", err
	}
	return c.apiURL("upload", "v1beta", p), nil
}

func escapeName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty resource name", domain.ErrInvalidArgument)
	}
	parts := strings.Split(strings.Trim(name, "/"), "/")
	for i, p := range parts {
		if p == "" || p == "." || p == ".." {
			return "", fmt.Errorf("%w: bad resource name %q", domain.ErrInvalidArgument, name)
		}
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/"), nil
}

func (c *Client) doJSON(ctx context.Context, method, u string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	if c.apiKey != "" {
		req.Header.Set("x-goog-api-key", c.apiKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %w", domain.ErrTransient, err)
	}
	defer resp.Body.Close()

	if err := googleapi.CheckResponse(resp); err != nil {
		return classify(err)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

// classify wraps an API error with the matching domain sentinel.
func classify(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return err
	}
	switch {
	case gerr.Code == http.StatusNotFound:
		return fmt.Errorf("%w: %w", domain.ErrNotFound, err)
	case gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden:
		return fmt.Errorf("%w: %w", domain.ErrPermission, err)
	case gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500:
		return fmt.Errorf("%w: %w", domain.ErrTransient, err)
	case gerr.Code == http.StatusBadRequest:
		return fmt.Errorf("%w: %w", domain.ErrInvalidArgument, err)
	}
	return err
}

func isTransient(err error) bool {
	return errors.Is(err, domain.ErrTransient)
}
