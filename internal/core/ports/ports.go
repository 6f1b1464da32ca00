// Package ports declares the seams between the transport orchestrator
// and its pluggable collaborators: the connection pool, selector,
// filter, event sink, and the injectable HTTP execution capability.
package ports

import (
	"context"
	"io"
	"time"

	"github.com/olla-labs/estransport/internal/core/domain"
)

// RequestParams is the input to Connection.Request: everything needed
// to build and issue one HTTP exchange against a single endpoint.
type RequestParams struct {
	Method      string
	Path        string
	Querystring string
	Body        io.Reader
	BodyBytes   []byte
	Headers     map[string]string
	TimeoutMs   int64
	AsStream    bool
}

// Response is what a Connection hands back to Transport after the
// wire exchange completes (or fails).
type Response struct {
	StatusCode int
	Headers    map[string][]string
	Body       []byte
	Stream     io.ReadCloser
}

// AbortHandle is returned by Connection.Request and by Transport's
// callback-style Request; Abort is idempotent and safe after completion.
type AbortHandle interface {
	Abort()
}

// Connection is the injectable HTTP execution capability for a single
// endpoint (spec.md §4.2, §9 "pluggable HTTP layer").
type Connection interface {
	ID() string
	Descriptor() *domain.Connection
	Request(ctx context.Context, params RequestParams, callback func(*Response, error)) AbortHandle
	Close(ctx context.Context) error
	SetRole(role domain.Role, enabled bool) error
	IncrementOpenRequests()
	DecrementOpenRequests()
}

// ConnectionFactory builds Connection adapters from descriptors; the
// pool uses it so tests can inject fakes without opening sockets.
type ConnectionFactory interface {
	New(desc domain.Descriptor, defaults PoolDefaults) (Connection, error)
}

// PoolDefaults are the pool-level fallbacks applied to a Connection
// created from a bare URL string or a descriptor that doesn't override
// them (spec.md §4.3).
type PoolDefaults struct {
	AuthHeader string
	TLSOptions map[string]interface{}
}

// Pool is the shape both ConnectionPool and CloudConnectionPool
// implement (spec.md §9): selection, health transitions, membership
// update, and teardown.
type Pool interface {
	GetConnection(ctx context.Context, opts SelectOptions, filter Filter, selector Selector) (Connection, error)
	MarkAlive(conn Connection)
	MarkDead(conn Connection)
	Update(ctx context.Context, nodes []domain.Descriptor) error
	AddConnection(ctx context.Context, nodes ...domain.Descriptor) error
	RemoveConnection(ctx context.Context, conn Connection) error
	Empty(ctx context.Context) error
	NodesToHost(nodes map[string]SniffNode, protocolDefault string) []domain.Descriptor
	Size() int
	Get(id string) (Connection, bool)
}

// SelectOptions carries the resurrection/selection context for one
// GetConnection call.
type SelectOptions struct {
	Now       time.Time
	RequestID string
	Name      string
}

// SniffNode is the per-node shape of a sniff response body (spec.md §6
// "Sniff response format"): {http: {publish_address}, roles: [...]}.
type SniffNode struct {
	HTTP  struct{ PublishAddress string }
	Roles []string
}

// Selector chooses one Connection from a non-empty, filter-approved,
// alive list (spec.md §4.4, §9).
type Selector interface {
	Select(alive []Connection) (Connection, error)
	Name() string
}

// Filter is a predicate excluding undesirable nodes from selection,
// e.g. the default master-only exclusion.
type Filter func(conn Connection) bool

// Emitter is the injected event sink capability (spec.md §9 "Event
// emission as a capability"); when absent all emits are no-ops.
type Emitter interface {
	EmitRequest(meta domain.RequestMeta)
	EmitResponse(meta domain.RequestMeta, err error, resp *Response)
	EmitSniff(meta domain.RequestMeta, err error, hosts []*domain.Descriptor, reason domain.SniffReason)
	EmitResurrect(strategy, name string, requestID string, conn Connection, isAlive bool)
}
