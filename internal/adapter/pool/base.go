// Package pool implements the connection pool family (spec.md §4.3-
// §4.5): BaseConnectionPool's construction/membership semantics, the
// standard ConnectionPool's health tracking and resurrection, and the
// degenerate single-endpoint CloudConnectionPool. Grounded on the
// teacher's discovery.StaticEndpointRepository for the mutex-guarded
// membership map and diff-on-update idiom.
package pool

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/olla-labs/estransport/internal/core/domain"
	"github.com/olla-labs/estransport/internal/core/ports"
)

// Base owns the Connection set of the standard pool (Standard embeds it;
// Cloud keeps its single Connection itself): deterministic
// construction from descriptors and update semantics that preserve
// Connection identity across sniffs (spec.md §4.3).
type Base struct {
	mu          sync.RWMutex
	byID        map[string]ports.Connection
	order       []string
	factory     ports.ConnectionFactory
	defaults    ports.PoolDefaults
}

func newBase(factory ports.ConnectionFactory, defaults ports.PoolDefaults) *Base {
	return &Base{
		byID:     make(map[string]ports.Connection),
		factory:  factory,
		defaults: defaults,
	}
}

// createConnection builds a Connection from desc; userinfo on the URL
// becomes its auth header, overriding the pool default. Only ever
// called from Update while b.mu is already held for writing, so it
// reads byID/newByID directly instead of re-acquiring the lock —
// sync.RWMutex is not reentrant, and a nested RLock here deadlocks
// every Update that needs to create a genuinely new Connection.
// newByID is the batch of Connections Update has already built this
// call, so two new nodes in the same Update sharing an id are also
// caught.
func (b *Base) createConnection(desc domain.Descriptor, newByID map[string]ports.Connection) (ports.Connection, error) {
	u, err := url.Parse(desc.URL)
	if err != nil {
		return nil, domain.NewConfigurationError("url", desc.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, domain.NewConfigurationError("scheme", u.Scheme, fmt.Errorf("only http and https are accepted"))
	}

	defaults := b.defaults
	if u.User != nil {
		user := u.User.Username()
		pass, _ := u.User.Password()
		defaults.AuthHeader = basicAuthHeader(user, pass)
		stripped := *u
		stripped.User = nil
		desc.URL = stripped.String()
	}

	id := desc.ID
	if id == "" {
		id = desc.URL
	}
	if _, exists := b.byID[id]; exists {
		return nil, fmt.Errorf("duplicate connection id %q", id)
	}
	if _, exists := newByID[id]; exists {
		return nil, fmt.Errorf("duplicate connection id %q", id)
	}

	return b.factory.New(desc, defaults)
}

func basicAuthHeader(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

// findByURL returns the Connection whose URL equals rawURL: the URL
// half of the id-vs-href duplicate rule from spec.md §4.3
// "addConnection". Connections without a URL never match.
func (b *Base) findByURL(rawURL string) (ports.Connection, bool) {
	for _, id := range b.order {
		conn := b.byID[id]
		if u := conn.Descriptor().URL; u != nil && u.String() == rawURL {
			return conn, true
		}
	}
	return nil, false
}

// AddConnection delegates to Update with the union of current and new
// nodes, first rejecting any new node that duplicates an existing
// connection's id or URL (spec.md §4.3 "duplicate id or duplicate URL
// on addConnection ... is a fatal error for that call"). Update itself
// treats an id/URL match as a reuse, not an error — the upfront check
// here is what makes AddConnection's stricter contract hold.
func (b *Base) AddConnection(ctx context.Context, nodes ...domain.Descriptor) error {
	b.mu.RLock()
	existing := make([]domain.Descriptor, 0, len(b.order))
	for _, id := range b.order {
		conn := b.byID[id]
		existing = append(existing, descriptorOf(conn))
	}

	seenIDs := make(map[string]bool, len(nodes))
	seenURLs := make(map[string]bool, len(nodes))
	for _, node := range nodes {
		id := node.ID
		if id == "" {
			id = node.URL
		}
		if _, ok := b.byID[id]; ok || seenIDs[id] {
			b.mu.RUnlock()
			return fmt.Errorf("duplicate connection id %q", id)
		}
		if _, ok := b.findByURL(node.URL); ok || seenURLs[node.URL] {
			b.mu.RUnlock()
			return fmt.Errorf("duplicate connection url %q", node.URL)
		}
		seenIDs[id] = true
		seenURLs[node.URL] = true
	}
	b.mu.RUnlock()

	return b.Update(ctx, append(existing, nodes...))
}

func descriptorOf(conn ports.Connection) domain.Descriptor {
	d := conn.Descriptor()
	return domain.Descriptor{URL: d.URL.String(), ID: d.ID, Roles: d.Roles.Clone(), Headers: d.Headers, TLSOptions: d.TLSOptions}
}

// RemoveConnection calls Update with the set minus that id.
func (b *Base) RemoveConnection(ctx context.Context, conn ports.Connection) error {
	b.mu.RLock()
	remaining := make([]domain.Descriptor, 0, len(b.order))
	for _, id := range b.order {
		if id == conn.ID() {
			continue
		}
		remaining = append(remaining, descriptorOf(b.byID[id]))
	}
	b.mu.RUnlock()
	return b.Update(ctx, remaining)
}

// Update reconciles the pool membership against nodes: reusing
// Connections whose id matches, re-keying ones whose URL matches under
// a new id, creating the rest, and closing/dropping anything no longer
// present (spec.md §4.3 "update").
func (b *Base) Update(ctx context.Context, nodes []domain.Descriptor) error {
	b.mu.Lock()

	keepIDs := make(map[string]bool, len(nodes))
	newByID := make(map[string]ports.Connection, len(nodes))
	newOrder := make([]string, 0, len(nodes))

	for _, node := range nodes {
		if existing, ok := b.byID[node.ID]; ok && node.ID != "" {
			keepIDs[node.ID] = true
			newByID[node.ID] = existing
			newOrder = append(newOrder, node.ID)
			continue
		}
		if existing, ok := b.findByURL(node.URL); ok {
			// Re-key: discovery assigned a different id for the same URL.
			id := node.ID
			if id == "" {
				id = node.URL
			}
			keepIDs[existing.ID()] = true
			newByID[id] = existing
			newOrder = append(newOrder, id)
			continue
		}

		conn, err := b.createConnection(node, newByID)
		if err != nil {
			b.mu.Unlock()
			return err
		}
		newByID[conn.ID()] = conn
		newOrder = append(newOrder, conn.ID())
	}

	var dropped []ports.Connection
	for _, id := range b.order {
		if !keepIDs[id] {
			dropped = append(dropped, b.byID[id])
		}
	}

	b.byID = newByID
	b.order = newOrder
	b.mu.Unlock()

	for _, conn := range dropped {
		_ = conn.Close(ctx)
	}
	return nil
}

// Empty closes every Connection and clears the set.
func (b *Base) Empty(ctx context.Context) error {
	b.mu.Lock()
	conns := make([]ports.Connection, 0, len(b.order))
	for _, id := range b.order {
		conns = append(conns, b.byID[id])
	}
	b.byID = make(map[string]ports.Connection)
	b.order = nil
	b.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close(ctx)
	}
	return nil
}

// Size returns the current connection count.
func (b *Base) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.order)
}

func (b *Base) all() []ports.Connection {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]ports.Connection, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.byID[id])
	}
	return out
}

func (b *Base) get(id string) (ports.Connection, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c, ok := b.byID[id]
	return c, ok
}

// Get looks up a Connection by id, used by Transport to recover the
// connection a completed request ran against (e.g. to read its URL
// scheme when building a sniff's protocol default).
func (b *Base) Get(id string) (ports.Connection, bool) {
	return b.get(id)
}

// NodesToHost converts a sniff response's node mapping into
// descriptors (spec.md §4.3 "nodesToHost").
func (b *Base) NodesToHost(nodes map[string]ports.SniffNode, protocolDefault string) []domain.Descriptor {
	out := make([]domain.Descriptor, 0, len(nodes))
	for id, node := range nodes {
		addr := node.HTTP.PublishAddress
		host := addr
		if idx := strings.Index(addr, "/"); idx >= 0 {
			host = addr[:idx] + addr[strings.LastIndex(addr, ":"):]
		}
		if !strings.Contains(host, "://") {
			host = protocolDefault + "://" + host
		}

		roles := domain.NewRoleSet()
		known := map[string]domain.Role{"master": domain.RoleMaster, "data": domain.RoleData, "ingest": domain.RoleIngest, "ml": domain.RoleML}
		for _, r := range node.Roles {
			if role, ok := known[r]; ok {
				_ = roles.Set(role, true)
			}
		}
		out = append(out, domain.Descriptor{ID: id, URL: host, Roles: roles})
	}
	return out
}
