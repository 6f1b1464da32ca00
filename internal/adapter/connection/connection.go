// Package connection implements the default Connection adapter: a
// single endpoint's HTTP execution capability (spec.md §4.2), grounded
// on the teacher's health.HealthClient/performSingleCheck request
// shape and proxy transport plumbing, generalized from "one-shot
// health probe" to "arbitrary method/path/body exchange with gzip and
// streaming support".
package connection

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/olla-labs/estransport/internal/core/domain"
	"github.com/olla-labs/estransport/internal/core/ports"
	"github.com/olla-labs/estransport/internal/version"
	"github.com/olla-labs/estransport/pkg/pool"
)

// decompressBufPool reuses *bytes.Buffer across gzip-decoded response
// bodies, the same Pool[T] wrapper the teacher uses for its hot-path
// buffers.
var decompressBufPool = pool.NewLitePool(func() *bytes.Buffer {
	return &bytes.Buffer{}
})

// HTTPClient is the subset of *http.Client a Connection needs; tests
// substitute a fake to avoid opening sockets.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Default is the production Connection: one endpoint, one *http.Client,
// TCP keep-alive tuned for connection reuse across repeated requests.
type Default struct {
	client       HTTPClient
	conn         *domain.Connection
	authHeader   string
	openRequests int64
}

// New builds a Connection for desc, applying pool-level defaults
// (auth header, TLS options) when desc doesn't override them.
func New(desc domain.Descriptor, defaults ports.PoolDefaults) (*Default, error) {
	u, err := url.Parse(desc.URL)
	if err != nil {
		return nil, domain.NewConfigurationError("url", desc.URL, err)
	}

	id := desc.ID
	if id == "" {
		id = u.String()
	}

	roles := desc.Roles
	if roles == nil {
		roles = domain.NewDefaultRoleSet()
	}

	tlsOpts := desc.TLSOptions
	if tlsOpts == nil {
		tlsOpts = defaults.TLSOptions
	}

	headers := desc.Headers
	if headers == nil {
		headers = map[string]string{}
	}

	dialer := &net.Dialer{Timeout: 30 * time.Second}
	return &Default{
		client: &http.Client{
			Transport: &http.Transport{
				DisableCompression:  true, // Connection negotiates gzip itself
				MaxIdleConnsPerHost: 8,
				IdleConnTimeout:     90 * time.Second,
				DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
					conn, err := dialer.DialContext(ctx, network, addr)
					if err != nil {
						return nil, err
					}
					if tc, ok := conn.(*net.TCPConn); ok {
						_ = tc.SetNoDelay(true)
					}
					return conn, nil
				},
			},
		},
		authHeader: defaults.AuthHeader,
		conn: &domain.Connection{
			URL:        u,
			ID:         id,
			Headers:    headers,
			TLSOptions: tlsOpts,
			Roles:      roles,
			Status:     domain.StatusAlive,
		},
	}, nil
}

func (c *Default) ID() string                      { return c.conn.ID }
func (c *Default) Descriptor() *domain.Connection  { return c.conn }
func (c *Default) IncrementOpenRequests()           { atomic.AddInt64(&c.conn.OpenRequests, 1) }
func (c *Default) DecrementOpenRequests() {
	if atomic.AddInt64(&c.conn.OpenRequests, -1) < 0 {
		atomic.StoreInt64(&c.conn.OpenRequests, 0)
	}
}

func (c *Default) SetRole(role domain.Role, enabled bool) error {
	return c.conn.Roles.Set(role, enabled)
}

// validatePath enforces spec.md's ERR_UNESCAPED_CHARACTERS invariant:
// every rune in the request path must be within U+0021..U+00FF.
func validatePath(path string) error {
	for _, r := range path {
		if r < 0x21 || r > 0xFF {
			return &domain.ErrUnescapedCharacters{Path: path}
		}
	}
	if !utf8.ValidString(path) {
		return &domain.ErrUnescapedCharacters{Path: path}
	}
	return nil
}

type abortHandle struct {
	cancel context.CancelFunc
	done   int32
}

func (h *abortHandle) Abort() {
	if atomic.CompareAndSwapInt32(&h.done, 0, 1) {
		h.cancel()
	}
}

// Request issues one HTTP exchange and invokes callback with the
// result. It returns an AbortHandle the caller may use to cancel the
// in-flight request; callback still fires once, with a context error.
func (c *Default) Request(ctx context.Context, params ports.RequestParams, callback func(*ports.Response, error)) ports.AbortHandle {
	if err := validatePath(params.Path); err != nil {
		callback(nil, err)
		return &abortHandle{cancel: func() {}}
	}

	reqCtx, cancel := context.WithCancel(ctx)
	if params.TimeoutMs > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, time.Duration(params.TimeoutMs)*time.Millisecond)
	}
	handle := &abortHandle{cancel: cancel}

	c.IncrementOpenRequests()
	go func() {
		defer c.DecrementOpenRequests()
		resp, err := c.do(reqCtx, params)
		if reqCtx.Err() != nil && err != nil {
			if reqCtx.Err() == context.DeadlineExceeded {
				err = domain.NewTimeoutError(c.conn.ID, "", params.TimeoutMs, err)
			}
		}
		callback(resp, err)
	}()
	return handle
}

// joinPath resolves a request path against the Connection's base
// pathname with exactly one "/" between them (spec.md §4.2 "resolves
// path against pathname with slash-normalization").
func joinPath(base, path string) string {
	switch {
	case strings.HasSuffix(base, "/") && strings.HasPrefix(path, "/"):
		return base + path[1:]
	case !strings.HasSuffix(base, "/") && !strings.HasPrefix(path, "/") && base != "" && path != "":
		return base + "/" + path
	default:
		return base + path
	}
}

func (c *Default) do(ctx context.Context, params ports.RequestParams) (*ports.Response, error) {
	target := c.conn.URL.ResolveReference(&url.URL{Path: joinPath(c.conn.URL.Path, params.Path), RawQuery: params.Querystring})

	var bodyReader io.Reader
	if params.Body != nil {
		bodyReader = params.Body
	} else if len(params.BodyBytes) > 0 {
		bodyReader = bytes.NewReader(params.BodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, params.Method, target.String(), bodyReader)
	if err != nil {
		return nil, domain.NewConnectionError(c.conn.ID, "", err)
	}

	req.Header.Set("User-Agent", version.CachedUserAgent())
	req.Header.Set("Accept-Encoding", "gzip")
	for k, v := range c.conn.Headers {
		req.Header.Set(k, v)
	}
	if c.authHeader != "" {
		req.Header.Set("Authorization", c.authHeader)
	}
	for k, v := range params.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, domain.NewTimeoutError(c.conn.ID, "", params.TimeoutMs, err)
		}
		return nil, domain.NewConnectionError(c.conn.ID, "", err)
	}

	if params.AsStream {
		return &ports.Response{StatusCode: resp.StatusCode, Headers: resp.Header, Stream: resp.Body}, nil
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return nil, domain.NewConnectionError(c.conn.ID, "", err)
	}

	return &ports.Response{StatusCode: resp.StatusCode, Headers: resp.Header, Body: body}, nil
}

// readBody drains the response, transparently gunzipping when
// Content-Encoding says so (spec.md §4.2 "transparent decompression").
func readBody(resp *http.Response) ([]byte, error) {
	reader := resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(reader)
		if err != nil {
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		defer gz.Close()
		buf := decompressBufPool.Get()
		buf.Reset()
		defer decompressBufPool.Put(buf)
		if _, err := io.Copy(buf, gz); err != nil {
			return nil, fmt.Errorf("gzip read: %w", err)
		}
		out := make([]byte, buf.Len())
		copy(out, buf.Bytes())
		return out, nil
	}
	return io.ReadAll(reader)
}

// Close waits until openRequests reaches zero, polling every second,
// then releases the HTTP agent (spec.md §3 "destroyed only via
// pool.empty ... close ... waits until openRequests == 0").
func (c *Default) Close(ctx context.Context) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for atomic.LoadInt64(&c.conn.OpenRequests) > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	if tr, ok := c.client.(*http.Client); ok {
		if t, ok := tr.Transport.(*http.Transport); ok {
			t.CloseIdleConnections()
		}
	}
	return nil
}
