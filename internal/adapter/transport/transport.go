// Package transport implements the orchestrator (spec.md §4.6): the
// request pipeline (select → serialize → compress → HTTP call →
// classify → retry/sniff → decode) and the sniffing protocol that
// refreshes pool membership. Grounded on the teacher's
// proxy/core.RetryHandler.ExecuteWithRetry (failover-on-connection-
// error loop, retry counting) and discovery.StaticDiscoveryService's
// periodic refresh idiom, generalized from "HTTP proxy with endpoint
// failover" to "single logical request against a node-aware pool".
package transport

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/olla-labs/estransport/internal/adapter/serializer"
	"github.com/olla-labs/estransport/internal/core/domain"
	"github.com/olla-labs/estransport/internal/core/ports"
)

// Compression selects outgoing body compression (spec.md §4.6 config).
type Compression string

const (
	CompressionNone Compression = ""
	CompressionGzip Compression = "gzip"
)

// Config is the Transport constructor's option set (spec.md §4.6,
// §6 "Configuration").
type Config struct {
	MaxRetries             int
	RequestTimeoutMs       int64
	SuggestCompression     bool
	Compression            Compression
	Headers                map[string]string
	SniffIntervalMs        int64
	SniffOnStart           bool
	SniffOnConnectionFault bool
	SniffEndpoint          string
	Name                   string
	OpaqueIDPrefix         string
	GenerateRequestID      func() string
}

func (c Config) validate() error {
	if c.Compression != CompressionNone && c.Compression != CompressionGzip {
		return domain.NewConfigurationError("compression", c.Compression, fmt.Errorf("must be %q or empty", CompressionGzip))
	}
	return nil
}

// Params is the per-call request description (spec.md §4.6.1).
type Params struct {
	Method      string
	Path        string
	Querystring map[string]interface{}
	Body        interface{}
	BulkBody    []interface{}
	AsStream    bool
}

// Options is the per-call override set.
type Options struct {
	MaxRetries      *int
	Compression     *Compression
	Querystring     map[string]interface{}
	Headers         map[string]string
	OpaqueID        string
	RequestTimeout  *int64
	Ignore          []int
	RequestID       string
	Name            string
}

// Result is what Transport hands back on success.
type Result struct {
	StatusCode int
	Headers    map[string][]string
	Body       interface{}
	Warnings   []string
	Meta       domain.RequestMeta
}

// Handle lets the caller abort an in-flight request (spec.md §4.6.1
// "Return value").
type Handle struct {
	abort func()
}

func (h *Handle) Abort() { h.abort() }

// Transport is the orchestrator.
type Transport struct {
	cfg        Config
	pool       ports.Pool
	filter     ports.Filter
	selector   ports.Selector
	serializer serializer.Serializer
	emitter    ports.Emitter

	requestIDCounter uint32
	sniffInProgress  atomic.Bool
	nextSniff        atomic.Int64
}

func New(cfg Config, p ports.Pool, filter ports.Filter, selector ports.Selector, ser serializer.Serializer, emitter ports.Emitter) (*Transport, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	t := &Transport{cfg: cfg, pool: p, filter: filter, selector: selector, serializer: ser, emitter: emitter}
	if cfg.SniffOnStart {
		go t.Sniff(context.Background(), domain.SniffOnStart, "", nil)
	}
	return t, nil
}

func (t *Transport) nextRequestID() string {
	if t.cfg.GenerateRequestID != nil {
		return t.cfg.GenerateRequestID()
	}
	n := atomic.AddUint32(&t.requestIDCounter, 1) & 0x7FFFFFFF
	return strconv.FormatUint(uint64(n), 10)
}

// Request runs the full pipeline described in spec.md §4.6.1 and
// invokes callback exactly once.
func (t *Transport) Request(ctx context.Context, params Params, opts Options, callback func(*Result, error)) *Handle {
	meta := &domain.RequestMeta{
		ID:        opts.RequestID,
		Name:      opts.Name,
		StartedAt: time.Now(),
	}
	if meta.ID == "" {
		meta.ID = t.nextRequestID()
	}
	if meta.Name == "" {
		meta.Name = t.cfg.Name
	}

	maxRetries := t.cfg.MaxRetries
	if opts.MaxRetries != nil {
		maxRetries = *opts.MaxRetries
	}

	bodyBytes, bodyStream, contentType, err := t.encodeBody(params)
	if err != nil {
		callback(nil, err)
		return &Handle{abort: func() {}}
	}
	if bodyStream != nil {
		maxRetries = 0
	}

	compression := t.cfg.Compression
	if opts.Compression != nil {
		compression = *opts.Compression
	}

	var contentEncoding string
	if compression == CompressionGzip && bodyStream != nil {
		bodyStream = gzipPipe(bodyStream)
		contentEncoding = "gzip"
	} else if compression == CompressionGzip && len(bodyBytes) > 0 {
		bodyBytes, err = gzipBytes(bodyBytes)
		if err != nil {
			callback(nil, domain.NewSerializationError(err))
			return &Handle{abort: func() {}}
		}
		contentEncoding = "gzip"
	}

	qsMap := params.Querystring
	if opts.Querystring != nil {
		merged := make(map[string]interface{}, len(qsMap)+len(opts.Querystring))
		for k, v := range qsMap {
			merged[k] = v
		}
		for k, v := range opts.Querystring {
			merged[k] = v
		}
		qsMap = merged
	}
	qs, err := t.serializer.QSerialize(qsMap)
	if err != nil {
		callback(nil, err)
		return &Handle{abort: func() {}}
	}

	headers := make(map[string]string, len(t.cfg.Headers)+len(opts.Headers)+3)
	for k, v := range t.cfg.Headers {
		headers[strings.ToLower(k)] = v
	}
	for k, v := range opts.Headers {
		headers[strings.ToLower(k)] = v
	}
	if contentType != "" {
		if _, ok := headers["content-type"]; !ok {
			headers["content-type"] = contentType
		}
	}
	if contentEncoding != "" {
		headers["content-encoding"] = contentEncoding
	}
	if t.cfg.SuggestCompression {
		headers["accept-encoding"] = "gzip,deflate"
	}
	if opts.OpaqueID != "" {
		prefix := t.cfg.OpaqueIDPrefix
		headers["x-opaque-id"] = prefix + opts.OpaqueID
	}

	timeoutMs := t.cfg.RequestTimeoutMs
	if opts.RequestTimeout != nil {
		timeoutMs = *opts.RequestTimeout
	}

	reqParams := ports.RequestParams{
		Method:      params.Method,
		Path:        params.Path,
		Querystring: qs,
		BodyBytes:   bodyBytes,
		Body:        bodyStream,
		Headers:     headers,
		TimeoutMs:   timeoutMs,
		AsStream:    params.AsStream,
	}

	var currentAbort atomic.Value
	handle := &Handle{abort: func() {
		meta.Aborted = true
		if h, ok := currentAbort.Load().(ports.AbortHandle); ok && h != nil {
			h.Abort()
		}
	}}

	var makeRequest func()
	makeRequest = func() {
		if meta.Aborted {
			callback(nil, domain.NewRequestAbortedError(meta.ID))
			return
		}

		conn, err := t.pool.GetConnection(ctx, ports.SelectOptions{Now: time.Now(), RequestID: meta.ID, Name: meta.Name}, t.filter, t.selector)
		if err != nil {
			callback(nil, err)
			return
		}
		meta.ConnID = conn.ID()

		if t.emitter != nil {
			t.emitter.EmitRequest(*meta)
		}
		t.maybeSniffOnInterval(ctx)

		abortHandle := conn.Request(ctx, reqParams, func(resp *ports.Response, err error) {
			t.onResponse(ctx, conn, params, meta, maxRetries, opts.Ignore, resp, err, makeRequest, callback)
		})
		currentAbort.Store(abortHandle)
	}

	makeRequest()
	return handle
}

func (t *Transport) onResponse(
	ctx context.Context,
	conn ports.Connection,
	params Params,
	meta *domain.RequestMeta,
	maxRetries int,
	ignore []int,
	resp *ports.Response,
	err error,
	retry func(),
	callback func(*Result, error),
) {
	if err != nil {
		// An abort cancels the in-flight attempt's context, which the
		// Connection surfaces as a plain connection error (only a
		// context.DeadlineExceeded gets TimeoutError) — never as
		// RequestAbortedError. meta.Aborted is the authoritative signal
		// here: checked before MarkDead/retry so an aborted request never
		// marks its connection dead and never retries (spec.md §5, P8).
		if meta.Aborted {
			callback(nil, domain.NewRequestAbortedError(meta.ID))
			return
		}

		t.pool.MarkDead(conn)
		if t.cfg.SniffOnConnectionFault {
			go t.Sniff(context.Background(), domain.SniffOnConnectionFault, meta.ID, nil)
		}

		if _, aborted := err.(*domain.RequestAbortedError); aborted {
			callback(nil, err)
			return
		}

		if meta.Attempts < maxRetries {
			meta.Attempts++
			retry()
			return
		}

		if _, isTimeout := err.(*domain.TimeoutError); !isTimeout {
			err = domain.NewConnectionError(conn.ID(), meta.ID, err)
		}
		if t.emitter != nil {
			t.emitter.EmitResponse(*meta, err, nil)
		}
		callback(nil, err)
		return
	}

	result := &Result{StatusCode: resp.StatusCode, Headers: resp.Headers, Meta: *meta}
	if warn := headerValue(resp.Headers, "Warning"); warn != "" {
		result.Warnings = splitWarning(warn)
	}

	if params.AsStream {
		result.Body = resp.Stream
		if t.emitter != nil {
			t.emitter.EmitResponse(*meta, nil, resp)
		}
		callback(result, nil)
		return
	}

	body := resp.Body
	contentType := headerValue(resp.Headers, "Content-Type")
	if strings.Contains(contentType, "application/json") && params.Method != http.MethodHead && len(body) > 0 {
		var decoded interface{}
		if derr := t.serializer.Deserialize(body, &decoded); derr != nil {
			callback(nil, derr)
			return
		}
		result.Body = decoded
	} else if params.Method == http.MethodHead {
		result.Body = resp.StatusCode >= 200 && resp.StatusCode < 300
	} else {
		result.Body = body
	}

	ignoreStatusCode := containsInt(ignore, resp.StatusCode) || (params.Method == http.MethodHead && resp.StatusCode == 404)

	if !ignoreStatusCode && (resp.StatusCode == 502 || resp.StatusCode == 503 || resp.StatusCode == 504) {
		t.pool.MarkDead(conn)
		if meta.Attempts < maxRetries && resp.StatusCode != 429 {
			meta.Attempts++
			retry()
			return
		}
	} else {
		t.pool.MarkAlive(conn)
	}

	if !ignoreStatusCode && resp.StatusCode >= 400 {
		respErr := &domain.ResponseError{
			RequestID: meta.ID, ConnID: conn.ID(), Method: params.Method, Path: params.Path,
			StatusCode: resp.StatusCode, Body: result.Body,
		}
		if m, ok := result.Body.(map[string]interface{}); ok {
			if e, ok := m["error"].(map[string]interface{}); ok {
				if typ, ok := e["type"].(string); ok {
					respErr.BodyType = typ
				}
			}
		}
		if t.emitter != nil {
			t.emitter.EmitResponse(*meta, respErr, resp)
		}
		callback(nil, respErr)
		return
	}

	if params.Method == http.MethodHead && resp.StatusCode == 404 {
		result.Body = false
	}

	if t.emitter != nil {
		t.emitter.EmitResponse(*meta, nil, resp)
	}
	callback(result, nil)
}

func headerValue(h map[string][]string, key string) string {
	for k, v := range h {
		if strings.EqualFold(k, key) && len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

func splitWarning(raw string) []string {
	var out []string
	var cur strings.Builder
	inQuotes := false
	for _, r := range raw {
		switch r {
		case '"':
			inQuotes = !inQuotes
			cur.WriteRune(r)
		case ',':
			if inQuotes {
				cur.WriteRune(r)
			} else {
				out = append(out, strings.TrimSpace(cur.String()))
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		out = append(out, strings.TrimSpace(cur.String()))
	}
	return out
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// encodeBody implements spec.md §4.6.1 step 4: exactly one of body or
// bulkBody may be set.
func (t *Transport) encodeBody(params Params) (bodyBytes []byte, bodyStream io.Reader, contentType string, err error) {
	if params.Body != nil && params.BulkBody != nil {
		return nil, nil, "", domain.NewConfigurationError("body", nil, fmt.Errorf("exactly one of body or bulkBody may be set"))
	}

	if params.BulkBody != nil {
		data, err := t.serializer.NDSerialize(params.BulkBody)
		if err != nil {
			return nil, nil, "", err
		}
		return data, nil, "application/x-ndjson", nil
	}

	switch v := params.Body.(type) {
	case nil:
		return nil, nil, "", nil
	case io.Reader:
		return nil, v, "application/json", nil
	case string:
		return []byte(v), nil, "application/json", nil
	case []byte:
		return v, nil, "application/json", nil
	default:
		data, err := t.serializer.Serialize(v)
		if err != nil {
			return nil, nil, "", err
		}
		return data, nil, "application/json", nil
	}
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// gzipPipe wraps a stream body in a gzip transformer by compressing it
// on the fly into a pipe, so a stream body never needs to be buffered
// in full (spec.md §4.6.1 step 4, "stream and compression is gzip").
func gzipPipe(src io.Reader) io.Reader {
	pr, pw := io.Pipe()
	gz := gzip.NewWriter(pw)
	go func() {
		_, err := io.Copy(gz, src)
		if err != nil {
			gz.Close()
			pw.CloseWithError(err)
			return
		}
		if err := gz.Close(); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.Close()
	}()
	return pr
}
