package pool

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"github.com/olla-labs/estransport/internal/core/domain"
	"github.com/olla-labs/estransport/internal/core/ports"
)

// Cloud is the degenerate single-endpoint pool (spec.md §4.5):
// always returns the same Connection, cached on first Update, dead or
// not, since there is nothing else to select.
type Cloud struct {
	factory  ports.ConnectionFactory
	defaults ports.PoolDefaults

	mu   sync.RWMutex
	conn ports.Connection
}

func NewCloud(factory ports.ConnectionFactory, defaults ports.PoolDefaults) *Cloud {
	return &Cloud{factory: factory, defaults: defaults}
}

// ParseCloudID decodes the "name:base64(host$id1$id2)" cloud id format
// (spec.md §6) into the effective https URL and TLS version hint.
func ParseCloudID(cloudID string) (rawURL string, tlsOptions map[string]interface{}, err error) {
	parts := strings.SplitN(cloudID, ":", 2)
	if len(parts) != 2 {
		return "", nil, domain.NewConfigurationError("cloud.id", cloudID, fmt.Errorf("missing name:payload separator"))
	}

	decoded, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", nil, domain.NewConfigurationError("cloud.id", cloudID, err)
	}

	segments := strings.Split(string(decoded), "$")
	if len(segments) < 2 {
		return "", nil, domain.NewConfigurationError("cloud.id", cloudID, fmt.Errorf("expected host$id1$id2 payload"))
	}
	host, id1 := segments[0], segments[1]

	return fmt.Sprintf("https://%s.%s", id1, host), map[string]interface{}{"minVersion": "TLSv1.2"}, nil
}

// Update builds the single cached Connection from nodes[0] if not
// already cached.
func (c *Cloud) Update(ctx context.Context, nodes []domain.Descriptor) error {
	if len(nodes) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}
	conn, err := c.factory.New(nodes[0], c.defaults)
	if err != nil {
		return err
	}
	c.conn = conn
	return nil
}

func (c *Cloud) AddConnection(ctx context.Context, nodes ...domain.Descriptor) error {
	return c.Update(ctx, nodes)
}

func (c *Cloud) RemoveConnection(ctx context.Context, conn ports.Connection) error {
	return c.Empty(ctx)
}

// GetConnection unconditionally returns the cached Connection (spec.md
// §4.5): filter/selector are accepted for interface parity but unused.
func (c *Cloud) GetConnection(ctx context.Context, opts ports.SelectOptions, filter ports.Filter, selector ports.Selector) (ports.Connection, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn == nil {
		return nil, domain.NewNoLivingConnectionsError(opts.RequestID)
	}
	return c.conn, nil
}

func (c *Cloud) MarkAlive(conn ports.Connection) {
	conn.Descriptor().Status = domain.StatusAlive
}

func (c *Cloud) MarkDead(conn ports.Connection) {
	conn.Descriptor().Status = domain.StatusDead
}

// Empty clears the cached reference.
func (c *Cloud) Empty(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		return conn.Close(ctx)
	}
	return nil
}

func (c *Cloud) NodesToHost(nodes map[string]ports.SniffNode, protocolDefault string) []domain.Descriptor {
	return (&Base{}).NodesToHost(nodes, protocolDefault)
}

// Get returns the cached Connection if id matches it.
func (c *Cloud) Get(id string) (ports.Connection, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn == nil || c.conn.ID() != id {
		return nil, false
	}
	return c.conn, true
}

func (c *Cloud) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn == nil {
		return 0
	}
	return 1
}
