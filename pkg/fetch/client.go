// Package fetch retrieves remote and local image sources.
//
// Remote sources are fetched over HTTP with retry for transient failures.
// Relative sources resolve against a base URL (the page the document came
// from) or, for CLI use, a base directory on disk.
//
// Every failure is reported as a FETCH_ERROR wrapping a more specific cause
// (NOT_FOUND, NETWORK_ERROR, INVALID_PATH).
package fetch

import (
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/matzehuels/imgembed/pkg/buildinfo"
	"github.com/matzehuels/imgembed/pkg/errors"
	"github.com/matzehuels/imgembed/pkg/httputil"
	"github.com/matzehuels/imgembed/pkg/observability"
)

// Defaults for [Options].
const (
	DefaultTimeout    = 10 * time.Second
	DefaultMaxBytes   = 32 << 20
	DefaultAttempts   = 3
	DefaultRetryDelay = 250 * time.Millisecond
)

// Response is a fetched source.
type Response struct {
	URL         string
	ContentType string
	Body        []byte
}

// IsVector reports whether the response should be treated as SVG markup:
// the content type mentions svg or xml, or the URL path ends in .svg.
func (r *Response) IsVector() bool {
	ct := strings.ToLower(r.ContentType)
	if strings.Contains(ct, "svg") || strings.Contains(ct, "xml") {
		return true
	}
	p := r.URL
	if u, err := url.Parse(r.URL); err == nil {
		p = u.Path
	}
	return strings.HasSuffix(strings.ToLower(p), ".svg")
}

// Options configures a [Client].
type Options struct {
	BaseURL    string
	BaseDir    string
	Timeout    time.Duration
	MaxBytes   int64
	Attempts   int
	RetryDelay time.Duration
	Headers    map[string]string
	HTTPClient *http.Client
}

// Client fetches image sources.
type Client struct {
	http     *http.Client
	base     *url.URL
	baseDir  string
	headers  map[string]string
	maxBytes int64
	attempts int
	delay    time.Duration
}

// NewClient creates a Client, filling unset options with defaults.
func NewClient(opts Options) (*Client, error) {
	c := &Client{
		http:     opts.HTTPClient,
		baseDir:  opts.BaseDir,
		headers:  opts.Headers,
		maxBytes: opts.MaxBytes,
		attempts: opts.Attempts,
		delay:    opts.RetryDelay,
	}
	if c.http == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		c.http = &http.Client{Timeout: timeout}
	}
	if c.maxBytes <= 0 {
		c.maxBytes = DefaultMaxBytes
	}
	if c.attempts <= 0 {
		c.attempts = DefaultAttempts
	}
	if c.delay <= 0 {
		c.delay = DefaultRetryDelay
	}
	if opts.BaseURL != "" {
		if err := errors.ValidateURL(opts.BaseURL); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "base url")
		}
		u, err := url.Parse(opts.BaseURL)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse base url")
		}
		c.base = u
	}
	return c, nil
}

// Fetch retrieves src. Absolute http(s) URLs are fetched directly;
// protocol-relative URLs use https; file:// URLs and relative paths read
// from the base directory; other relative references resolve against the
// base URL.
func (c *Client) Fetch(ctx context.Context, src string) (*Response, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, errors.New(errors.ErrCodeFetch, "empty source")
	}

	lower := strings.ToLower(src)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return c.get(ctx, src)
	case strings.HasPrefix(src, "//"):
		return c.get(ctx, "https:"+src)
	case strings.HasPrefix(lower, "file://"):
		u, err := url.Parse(src)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeFetch, err, "parse %s", src)
		}
		rel, err := c.relToBase(u.Path)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeFetch, err, "local source %q", src)
		}
		return c.readLocal(ctx, rel, src)
	case c.base != nil:
		ref, err := url.Parse(src)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeFetch, err, "parse %s", src)
		}
		if ref.Scheme != "" {
			return nil, errors.New(errors.ErrCodeFetch, "unsupported scheme %q", ref.Scheme)
		}
		return c.get(ctx, c.base.ResolveReference(ref).String())
	case c.baseDir != "":
		return c.readLocal(ctx, src, src)
	}
	return nil, errors.New(errors.ErrCodeFetch, "cannot resolve relative source %q without a base URL or directory", src)
}

func (c *Client) get(ctx context.Context, rawURL string) (*Response, error) {
	var resp *Response
	err := httputil.Retry(ctx, c.attempts, c.delay, func() error {
		r, err := c.doRequest(ctx, rawURL)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFetch, err, "fetch %s", rawURL)
	}
	return resp, nil
}

func (c *Client) doRequest(ctx context.Context, rawURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "build request")
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent())
	req.Header.Set("Accept", "image/*,*/*;q=0.8")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	hooks := observability.HTTP()
	host, p := req.URL.Host, req.URL.Path
	hooks.OnRequest(ctx, req.Method, host, p)
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		hooks.OnError(ctx, req.Method, host, p, err)
		return nil, &httputil.RetryableError{Err: errors.Wrap(errors.ErrCodeNetwork, err, "request failed")}
	}
	defer resp.Body.Close()
	hooks.OnResponse(ctx, req.Method, host, p, resp.StatusCode, time.Since(start))

	if err := checkStatus(resp.StatusCode); err != nil {
		if re, ok := err.(*httputil.RetryableError); ok {
			re.After = httputil.RetryAfter(resp.Header, time.Now())
		}
		return nil, err
	}

	body, err := readLimited(resp.Body, c.maxBytes)
	if err != nil {
		return nil, err
	}
	return &Response{
		URL:         resp.Request.URL.String(),
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

func checkStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return errors.New(errors.ErrCodeNotFound, "status %d", code)
	case code == http.StatusTooManyRequests || code >= 500:
		return &httputil.RetryableError{Err: errors.New(errors.ErrCodeNetwork, "status %d", code)}
	default:
		return errors.New(errors.ErrCodeNetwork, "status %d", code)
	}
}

func (c *Client) readLocal(ctx context.Context, rel, display string) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.baseDir == "" {
		return nil, errors.New(errors.ErrCodeFetch, "local source %q requires a base directory", display)
	}
	rel = strings.TrimPrefix(filepath.ToSlash(rel), "./")
	if err := errors.ValidatePath(rel); err != nil {
		return nil, errors.Wrap(errors.ErrCodeFetch, err, "local source %q", display)
	}

	f, err := os.Open(filepath.Join(c.baseDir, filepath.FromSlash(rel)))
	if os.IsNotExist(err) {
		return nil, errors.Wrap(errors.ErrCodeFetch, errors.New(errors.ErrCodeNotFound, "%s", rel), "read %s", display)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFetch, err, "read %s", display)
	}
	defer f.Close()

	body, err := readLimited(f, c.maxBytes)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFetch, err, "read %s", display)
	}
	return &Response{
		URL:         rel,
		ContentType: mime.TypeByExtension(filepath.Ext(rel)),
		Body:        body,
	}, nil
}

// relToBase maps an absolute file:// path to a path relative to the base
// directory. Paths outside the base directory are rejected.
func (c *Client) relToBase(p string) (string, error) {
	if c.baseDir == "" {
		return "", errors.New(errors.ErrCodeInvalidPath, "local sources are disabled")
	}
	base, err := filepath.Abs(c.baseDir)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidPath, err, "base directory")
	}
	rel, err := filepath.Rel(base, filepath.FromSlash(p))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.New(errors.ErrCodeInvalidPath, "%s is outside the base directory", p)
	}
	return filepath.ToSlash(rel), nil
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, &httputil.RetryableError{Err: errors.Wrap(errors.ErrCodeNetwork, err, "read body")}
	}
	if int64(len(body)) > limit {
		return nil, errors.New(errors.ErrCodeFetch, "body exceeds %d bytes", limit)
	}
	return body, nil
}
