package pool

import (
	"context"
	"math"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/olla-labs/estransport/internal/core/domain"
	"github.com/olla-labs/estransport/internal/core/ports"
)

// ResurrectStrategy selects how a dead Connection is probed before
// being returned to service (spec.md §3 "resurrectStrategy").
type ResurrectStrategy string

const (
	ResurrectNone       ResurrectStrategy = "none"
	ResurrectPing       ResurrectStrategy = "ping"
	ResurrectOptimistic ResurrectStrategy = "optimistic"

	resurrectTimeoutBase   = 60 * time.Second
	resurrectTimeoutCutoff = 5
)

// deadEntry is one member of the pool's dead list, kept sorted
// ascending by resurrectTimeout.
type deadEntry struct {
	id      string
	timeout time.Time
}

// Standard is the multi-endpoint ConnectionPool (spec.md §4.4): adds
// the dead list, resurrection strategies, and filtered selection on
// top of Base.
type Standard struct {
	*Base

	mu                sync.Mutex
	dead              []deadEntry
	sniffEnabled      bool
	resurrectStrategy ResurrectStrategy
	pingTimeoutMs     int64
	emitter           ports.Emitter
	httpDo            func(ctx context.Context, conn ports.Connection, timeoutMs int64) (statusCode int, err error)
}

// Options configures a Standard pool at construction.
type Options struct {
	Factory           ports.ConnectionFactory
	Defaults          ports.PoolDefaults
	SniffEnabled      bool
	ResurrectStrategy ResurrectStrategy
	PingTimeoutMs     int64
	Emitter           ports.Emitter
}

func New(opts Options) *Standard {
	strategy := opts.ResurrectStrategy
	if strategy == "" {
		strategy = ResurrectPing
	}
	s := &Standard{
		Base:              newBase(opts.Factory, opts.Defaults),
		sniffEnabled:      opts.SniffEnabled,
		resurrectStrategy: strategy,
		pingTimeoutMs:     opts.PingTimeoutMs,
		emitter:           opts.Emitter,
	}
	s.httpDo = s.pingConnection
	return s
}

func (s *Standard) singleEndpointExempt() bool {
	return s.Size() == 1 && !s.sniffEnabled
}

// MarkAlive removes conn from the dead list and resets its health
// counters (spec.md §4.4 "markAlive").
func (s *Standard) MarkAlive(conn ports.Connection) {
	if s.singleEndpointExempt() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeFromDeadLocked(conn.ID())
	d := conn.Descriptor()
	d.Status = domain.StatusAlive
	d.DeadCount = 0
	d.ResurrectTimeout = time.Time{}
}

// MarkDead appends conn to the dead list (if absent), increments
// deadCount, and computes the exponential resurrectTimeout backoff
// (spec.md §4.4 "markDead").
func (s *Standard) MarkDead(conn ports.Connection) {
	if s.singleEndpointExempt() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	d := conn.Descriptor()
	d.Status = domain.StatusDead
	d.DeadCount++

	exp := d.DeadCount - 1
	if exp > resurrectTimeoutCutoff {
		exp = resurrectTimeoutCutoff
	}
	backoff := time.Duration(math.Pow(2, float64(exp))) * resurrectTimeoutBase
	d.ResurrectTimeout = time.Now().Add(backoff)

	s.upsertDeadLocked(conn.ID(), d.ResurrectTimeout)
}

func (s *Standard) removeFromDeadLocked(id string) {
	for i, e := range s.dead {
		if e.id == id {
			s.dead = append(s.dead[:i], s.dead[i+1:]...)
			return
		}
	}
}

func (s *Standard) upsertDeadLocked(id string, timeout time.Time) {
	s.removeFromDeadLocked(id)
	s.dead = append(s.dead, deadEntry{id: id, timeout: timeout})
	sort.Slice(s.dead, func(i, j int) bool { return s.dead[i].timeout.Before(s.dead[j].timeout) })
}

// Resurrect attempts to revive the head of the dead list, per the
// configured strategy (spec.md §4.4 "resurrect").
func (s *Standard) Resurrect(ctx context.Context, now time.Time, requestID, name string) {
	if s.resurrectStrategy == ResurrectNone {
		return
	}

	s.mu.Lock()
	if len(s.dead) == 0 {
		s.mu.Unlock()
		return
	}
	head := s.dead[0]
	s.mu.Unlock()

	conn, ok := s.get(head.id)
	if !ok {
		s.mu.Lock()
		s.removeFromDeadLocked(head.id)
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	notYet := conn.Descriptor().ResurrectTimeout.After(now)
	s.mu.Unlock()
	if notYet {
		return
	}

	var isAlive bool
	switch s.resurrectStrategy {
	case ResurrectOptimistic:
		s.mu.Lock()
		s.removeFromDeadLocked(conn.ID())
		s.mu.Unlock()
		conn.Descriptor().Status = domain.StatusAlive
		isAlive = true
	case ResurrectPing:
		statusCode, err := s.httpDo(ctx, conn, s.pingTimeoutMs)
		if err != nil || statusCode == http.StatusBadGateway || statusCode == http.StatusServiceUnavailable || statusCode == http.StatusGatewayTimeout {
			s.MarkDead(conn)
			isAlive = false
		} else {
			s.MarkAlive(conn)
			isAlive = true
		}
	}

	if s.emitter != nil {
		s.emitter.EmitResurrect(string(s.resurrectStrategy), name, requestID, conn, isAlive)
	}
}

// pingConnection issues a HEAD / against conn, the default ping probe
// used by the "ping" resurrection strategy, grounded on the teacher's
// health.HealthClient.performSingleCheck.
func (s *Standard) pingConnection(ctx context.Context, conn ports.Connection, timeoutMs int64) (int, error) {
	result := make(chan struct {
		status int
		err    error
	}, 1)
	conn.Request(ctx, ports.RequestParams{Method: http.MethodHead, Path: "/", TimeoutMs: timeoutMs}, func(resp *ports.Response, err error) {
		if err != nil {
			result <- struct {
				status int
				err    error
			}{0, err}
			return
		}
		result <- struct {
			status int
			err    error
		}{resp.StatusCode, nil}
	})
	r := <-result
	return r.status, r.err
}

// GetConnection performs a non-blocking resurrection attempt, then
// selects among the alive, filter-approved connections (spec.md §4.4
// "getConnection").
func (s *Standard) GetConnection(ctx context.Context, opts ports.SelectOptions, filter ports.Filter, selector ports.Selector) (ports.Connection, error) {
	go s.Resurrect(context.Background(), opts.Now, opts.RequestID, opts.Name)

	var alive []ports.Connection
	for _, conn := range s.all() {
		if conn.Descriptor().Status != domain.StatusAlive {
			continue
		}
		if filter != nil && !filter(conn) {
			continue
		}
		alive = append(alive, conn)
	}
	if len(alive) == 0 {
		return nil, domain.NewNoLivingConnectionsError(opts.RequestID)
	}
	return selector.Select(alive)
}
