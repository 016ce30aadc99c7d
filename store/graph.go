package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/vinayprograms/agentcollab/errors"
	"github.com/vinayprograms/agentcollab/logging"
)

// DefaultGraphBaseURL is the Microsoft Graph v1.0 endpoint.
const DefaultGraphBaseURL = "https://graph.microsoft.com/v1.0"

// TokenSource supplies bearer tokens for Graph requests.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// GraphConfig holds GraphStore configuration.
type GraphConfig struct {
	// Tokens supplies the bearer token for every request. Required.
	Tokens TokenSource

	// BaseURL is the Graph API root.
	// Default: DefaultGraphBaseURL
	BaseURL string

	// SitePath selects the SharePoint site: "root" or a site id / path
	// such as "contoso.sharepoint.com:/sites/team:".
	// Default: "root"
	SitePath string

	// Folder is the mailbox folder at the drive root.
	// Default: "AgentMessages"
	Folder string

	// Timeout bounds every request.
	// Default: 30s
	Timeout time.Duration

	// RequestsPerSecond paces outgoing requests. Zero disables pacing.
	RequestsPerSecond float64

	// HTTPClient overrides the client used for requests.
	HTTPClient *http.Client

	// Logger receives request diagnostics.
	Logger *logging.Logger
}

// DefaultGraphConfig returns configuration with sensible defaults.
func DefaultGraphConfig() GraphConfig {
	return GraphConfig{
		BaseURL:  DefaultGraphBaseURL,
		SitePath: "root",
		Folder:   "AgentMessages",
		Timeout:  30 * time.Second,
	}
}

// GraphStore implements ObjectStore on a folder of a SharePoint document
// library through Microsoft Graph.
type GraphStore struct {
	config  GraphConfig
	client  *http.Client
	limiter *rate.Limiter
	log     *logging.Logger
	closed  atomic.Bool

	driveMu sync.Mutex
	driveID string
}

// NewGraphStore creates a Graph-backed store. The drive id is resolved on
// first use.
func NewGraphStore(cfg GraphConfig) (*GraphStore, error) {
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("token source required")
	}
	def := DefaultGraphConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.SitePath == "" {
		cfg.SitePath = def.SitePath
	}
	if cfg.Folder == "" {
		cfg.Folder = def.Folder
	}
	if err := ValidateKey(cfg.Folder); err != nil {
		return nil, fmt.Errorf("folder %q: %w", cfg.Folder, err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Nop()
	}

	s := &GraphStore{
		config: cfg,
		client: client,
		log:    log.WithComponent("store.graph"),
	}
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return s, nil
}

// driveItem is the subset of a Graph driveItem the store reads.
type driveItem struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	ETag                 string    `json:"eTag"`
	Size                 int64     `json:"size"`
	LastModifiedDateTime time.Time `json:"lastModifiedDateTime"`
	DownloadURL          string    `json:"@microsoft.graph.downloadUrl"`
}

func (it driveItem) entry() Entry {
	return Entry{
		Key:      it.Name,
		ETag:     it.ETag,
		Modified: it.LastModifiedDateTime,
		Size:     it.Size,
		Handle:   it.DownloadURL,
	}
}

type childrenPage struct {
	Value    []driveItem `json:"value"`
	NextLink string      `json:"@odata.nextLink"`
}

// EnsureContainer creates the mailbox folder, treating a name conflict as
// success.
func (s *GraphStore) EnsureContainer(ctx context.Context) (Ensured, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	drive, err := s.drive(ctx)
	if err != nil {
		return 0, err
	}

	body, _ := json.Marshal(map[string]any{
		"name":                              s.config.Folder,
		"folder":                            map[string]any{},
		"@microsoft.graph.conflictBehavior": "fail",
	})
	resp, err := s.do(ctx, http.MethodPost, s.api("/drives/%s/root/children", drive), body, "application/json", nil)
	if err != nil {
		return 0, err
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return Created, nil
	case http.StatusConflict:
		return AlreadyExists, nil
	default:
		return 0, storeError(resp, "create folder")
	}
}

// List pages through the folder children, newest first. The cursor is the
// Graph next link.
func (s *GraphStore) List(ctx context.Context, opts ListOptions) (*Page, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	var target string
	if opts.Cursor != "" {
		if !strings.HasPrefix(opts.Cursor, s.config.BaseURL+"/") {
			return nil, ErrInvalidCursor
		}
		target = opts.Cursor
	} else {
		drive, err := s.drive(ctx)
		if err != nil {
			return nil, err
		}
		q := url.Values{}
		q.Set("$top", strconv.Itoa(normalizeLimit(opts.Limit)))
		q.Set("$orderby", "lastModifiedDateTime desc")
		target = s.api("/drives/%s/root:/%s:/children", drive, url.PathEscape(s.config.Folder)) + "?" + q.Encode()
	}

	resp, err := s.do(ctx, http.MethodGet, target, nil, "", nil)
	if err != nil {
		return nil, err
	}
	defer drain(resp)

	if resp.StatusCode == http.StatusNotFound {
		// No folder yet means no messages.
		return &Page{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, storeError(resp, "list folder")
	}

	var children childrenPage
	if err := json.NewDecoder(resp.Body).Decode(&children); err != nil {
		return nil, errors.Store(resp.StatusCode, "list folder: malformed response", errors.WithCause(err))
	}

	page := &Page{Next: children.NextLink}
	for _, it := range children.Value {
		page.Entries = append(page.Entries, it.entry())
	}
	return page, nil
}

// Fetch downloads a listed entry through its pre-authenticated download
// URL. Entries listed without one fall back to Get.
func (s *GraphStore) Fetch(ctx context.Context, e Entry) (*Object, error) {
	if e.Handle == "" {
		return s.Get(ctx, e.Key)
	}
	if s.closed.Load() {
		return nil, ErrClosed
	}

	value, err := s.download(ctx, e.Handle)
	if err != nil {
		return nil, err
	}
	return &Object{Key: e.Key, Value: value, ETag: e.ETag, Modified: e.Modified}, nil
}

// Get reads item metadata for the etag, then downloads the content.
func (s *GraphStore) Get(ctx context.Context, key string) (*Object, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, ErrClosed
	}
	drive, err := s.drive(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := s.do(ctx, http.MethodGet, s.itemURL(drive, key), nil, "", nil)
	if err != nil {
		return nil, err
	}
	defer drain(resp)

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, storeError(resp, "get "+key)
	}

	var it driveItem
	if err := json.NewDecoder(resp.Body).Decode(&it); err != nil {
		return nil, errors.Store(resp.StatusCode, "get "+key+": malformed response", errors.WithCause(err))
	}

	var value []byte
	if it.DownloadURL != "" {
		value, err = s.download(ctx, it.DownloadURL)
	} else {
		value, err = s.content(ctx, drive, key)
	}
	if err != nil {
		return nil, err
	}
	return &Object{Key: key, Value: value, ETag: it.ETag, Modified: it.LastModifiedDateTime}, nil
}

// Put uploads the content in one request. Conditional writes use If-Match
// and the fail conflict behaviour.
func (s *GraphStore) Put(ctx context.Context, key string, value []byte, opts PutOptions) (*Object, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, ErrClosed
	}
	drive, err := s.drive(ctx)
	if err != nil {
		return nil, err
	}

	target := s.itemURL(drive, key) + ":/content"
	if opts.IfNoneMatch {
		target += "?@microsoft.graph.conflictBehavior=fail"
	}
	header := http.Header{}
	if opts.IfMatch != "" {
		header.Set("If-Match", opts.IfMatch)
	}

	resp, err := s.do(ctx, http.MethodPut, target, value, "application/json", header)
	if err != nil {
		return nil, err
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusPreconditionFailed, http.StatusConflict:
		return nil, ErrPreconditionFailed
	case http.StatusNotFound:
		if opts.IfMatch != "" {
			return nil, ErrPreconditionFailed
		}
		return nil, storeError(resp, "put "+key)
	default:
		return nil, storeError(resp, "put "+key)
	}

	obj := &Object{Key: key, Value: value}
	var it driveItem
	if err := json.NewDecoder(resp.Body).Decode(&it); err == nil {
		obj.ETag = it.ETag
		obj.Modified = it.LastModifiedDateTime
	}
	return obj, nil
}

// Close marks the store closed and releases idle connections.
func (s *GraphStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.client.CloseIdleConnections()
	return nil
}

// drive resolves and caches the document library id of the site.
func (s *GraphStore) drive(ctx context.Context) (string, error) {
	s.driveMu.Lock()
	defer s.driveMu.Unlock()

	if s.driveID != "" {
		return s.driveID, nil
	}

	resp, err := s.do(ctx, http.MethodGet, s.api("/sites/%s/drive", s.config.SitePath), nil, "", nil)
	if err != nil {
		return "", err
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		return "", storeError(resp, "resolve drive")
	}

	var d struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil || d.ID == "" {
		return "", errors.Store(resp.StatusCode, "resolve drive: malformed response", errors.WithCause(err))
	}

	s.driveID = d.ID
	s.log.Debug("drive resolved", logging.Fields{"site": s.config.SitePath, "drive": d.ID})
	return s.driveID, nil
}

func (s *GraphStore) download(ctx context.Context, link string) ([]byte, error) {
	// Download URLs are pre-authenticated and reject a bearer token.
	resp, err := s.send(ctx, http.MethodGet, link, nil, "", nil, false)
	if err != nil {
		return nil, err
	}
	defer drain(resp)

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, storeError(resp, "download")
	}
	return readBody(resp)
}

func (s *GraphStore) content(ctx context.Context, drive, key string) ([]byte, error) {
	resp, err := s.do(ctx, http.MethodGet, s.itemURL(drive, key)+":/content", nil, "", nil)
	if err != nil {
		return nil, err
	}
	defer drain(resp)

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, storeError(resp, "download "+key)
	}
	return readBody(resp)
}

func (s *GraphStore) api(format string, args ...any) string {
	return s.config.BaseURL + fmt.Sprintf(format, args...)
}

func (s *GraphStore) itemURL(drive, key string) string {
	return s.api("/drives/%s/root:/%s/%s", drive, url.PathEscape(s.config.Folder), url.PathEscape(key))
}

func (s *GraphStore) do(ctx context.Context, method, target string, body []byte, contentType string, header http.Header) (*http.Response, error) {
	return s.send(ctx, method, target, body, contentType, header, true)
}

// send performs one request under the configured timeout. Transport
// failures become STORE errors with status 0.
func (s *GraphStore) send(ctx context.Context, method, target string, body []byte, contentType string, header http.Header, authorize bool) (*http.Response, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, "request pacing")
		}
	}

	// The token chain may block on an interactive login, so it runs under
	// the caller's context rather than the request timeout.
	var token string
	if authorize {
		var err error
		if token, err = s.config.Tokens.Token(ctx); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		cancel()
		return nil, errors.Internal("build request", errors.WithCause(err))
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if authorize {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		cancel()
		s.log.Warn("request failed", logging.Fields{"method": method, "error": err.Error()})
		return nil, errors.Store(0, method+" request failed: "+err.Error(), errors.WithCause(err))
	}
	resp.Body = &cancelBody{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// cancelBody releases the request context once the body is closed.
type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

const maxErrorBody = 4 << 10

func storeError(resp *http.Response, op string) error {
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := fmt.Sprintf("%s: HTTP %d", op, resp.StatusCode)
	if text := strings.TrimSpace(string(detail)); text != "" {
		msg += ": " + text
	}
	return errors.Store(resp.StatusCode, msg)
}

func readBody(resp *http.Response) ([]byte, error) {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Store(0, "read response body", errors.WithCause(err))
	}
	return data, nil
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
}
