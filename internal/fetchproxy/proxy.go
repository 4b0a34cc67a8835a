// Package fetchproxy fetches resources on behalf of callers that cannot reach
// them directly and hands them back as data URLs.
package fetchproxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/facecloak/internal/constants"
	"github.com/kozaktomas/facecloak/internal/logging"
)

// TypeFetchImage is the only message type the proxy understands.
const TypeFetchImage = "fetchImage"

var (
	// ErrUnknownMessage is returned by Handle for unsupported message types.
	ErrUnknownMessage = errors.New("unknown message type")
	// ErrTooLarge is returned when a resource exceeds the fetch size limit.
	ErrTooLarge = errors.New("resource exceeds size limit")
	// ErrSchemeNotAllowed is returned by RemoteOnly fetchers for non-http(s) URLs.
	ErrSchemeNotAllowed = errors.New("url scheme not allowed")
)

// ImageFetcher returns the resource behind a URL as a data URL.
type ImageFetcher interface {
	FetchImage(ctx context.Context, rawURL string) (string, error)
}

// Message is a request sent to the proxy.
type Message struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// StatusError is returned when the upstream answers with a non-2xx status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetching %s: unexpected status %d", e.URL, e.StatusCode)
}

// Proxy fetches http(s), file and data URLs. It holds no per-request state,
// so any number of fetches may run at once.
type Proxy struct {
	client  *http.Client
	maxSize int64
	log     zerolog.Logger
}

// Option configures a Proxy.
type Option func(*Proxy)

// WithHTTPClient replaces the HTTP client used for network fetches.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Proxy) {
		p.client = c
	}
}

// WithMaxSize caps the number of bytes read for one resource.
func WithMaxSize(n int64) Option {
	return func(p *Proxy) {
		if n > 0 {
			p.maxSize = n
		}
	}
}

// New creates a Proxy. The default client has no timeout; callers bound
// requests through their context.
func New(opts ...Option) *Proxy {
	p := &Proxy{
		client:  &http.Client{},
		maxSize: constants.MaxFetchSize,
		log:     logging.Component("fetchproxy"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handle dispatches a message.
func (p *Proxy) Handle(ctx context.Context, msg Message) (string, error) {
	switch msg.Type {
	case TypeFetchImage:
		return p.FetchImage(ctx, msg.URL)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
	}
}

// FetchImage fetches rawURL and re-encodes the body as a base64 data URL.
func (p *Proxy) FetchImage(ctx context.Context, rawURL string) (string, error) {
	data, mimeType, err := p.Fetch(ctx, rawURL)
	if err != nil {
		return "", err
	}
	p.log.Debug().Str("url", rawURL).Str("mime", mimeType).Int("bytes", len(data)).Msg("fetched image")
	return EncodeDataURL(mimeType, data), nil
}

// Fetch returns the raw bytes behind rawURL together with their MIME type.
func (p *Proxy) Fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("parsing url: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return p.fetchHTTP(ctx, u.String())
	case "file":
		return p.fetchFile(u)
	case "data":
		mimeType, data, err := DecodeDataURL(rawURL)
		return data, mimeType, err
	default:
		return nil, "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
}

func (p *Proxy) fetchHTTP(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("creating request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	data, err := readLimited(resp.Body, p.maxSize)
	if err != nil {
		return nil, "", fmt.Errorf("reading response: %w", err)
	}

	mimeType := ""
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err == nil {
			mimeType = mt
		}
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = DetectMIMEType(data)
	}
	return data, mimeType, nil
}

func (p *Proxy) fetchFile(u *url.URL) ([]byte, string, error) {
	path := filepath.FromSlash(u.Path)
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("reading resource: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, "", fmt.Errorf("reading resource: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, "", fmt.Errorf("reading resource: %s is not a regular file", path)
	}
	data, err := readLimited(f, p.maxSize)
	if err != nil {
		return nil, "", fmt.Errorf("reading resource: %w", err)
	}
	mimeType := DetectMIMEType(data)
	if mimeType == "application/octet-stream" || strings.HasPrefix(mimeType, "text/plain") {
		if byExt := mime.TypeByExtension(filepath.Ext(path)); byExt != "" {
			mimeType, _, _ = strings.Cut(byExt, ";")
		}
	}
	return data, mimeType, nil
}

// readLimited reads r to the end, failing with ErrTooLarge past limit bytes.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
	}
	return data, nil
}

// IsRemoteURL reports whether raw is an absolute http or https URL.
func IsRemoteURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

// RemoteOnly wraps f so that only absolute http(s) URLs are fetched. Local
// file resources stay private to the process that bundles them.
func RemoteOnly(f ImageFetcher) ImageFetcher {
	return remoteOnly{next: f}
}

type remoteOnly struct {
	next ImageFetcher
}

func (r remoteOnly) FetchImage(ctx context.Context, rawURL string) (string, error) {
	if !IsRemoteURL(rawURL) {
		return "", fmt.Errorf("%w: %s", ErrSchemeNotAllowed, rawURL)
	}
	return r.next.FetchImage(ctx, rawURL)
}
