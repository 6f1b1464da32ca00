package pool

import (
	"context"
	"testing"
	"time"

	"github.com/olla-labs/estransport/internal/core/domain"
	"github.com/olla-labs/estransport/internal/core/ports"
)

// fakeConn is a minimal ports.Connection that performs no I/O, letting
// pool tests exercise health/selection logic without sockets.
type fakeConn struct {
	desc      *domain.Connection
	onRequest func(ports.RequestParams) (*ports.Response, error)
	closed    bool
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{desc: &domain.Connection{
		ID:     id,
		Roles:  domain.NewDefaultRoleSet(),
		Status: domain.StatusAlive,
	}}
}

func (f *fakeConn) ID() string                     { return f.desc.ID }
func (f *fakeConn) Descriptor() *domain.Connection { return f.desc }
func (f *fakeConn) Close(ctx context.Context) error { f.closed = true; return nil }
func (f *fakeConn) SetRole(role domain.Role, enabled bool) error {
	return f.desc.Roles.Set(role, enabled)
}
func (f *fakeConn) IncrementOpenRequests() { f.desc.OpenRequests++ }
func (f *fakeConn) DecrementOpenRequests() { f.desc.OpenRequests-- }
func (f *fakeConn) Request(ctx context.Context, params ports.RequestParams, callback func(*ports.Response, error)) ports.AbortHandle {
	resp, err := f.onRequest(params)
	callback(resp, err)
	return noopAbort{}
}

type noopAbort struct{}

func (noopAbort) Abort() {}

// fakeFactory builds fakeConns keyed by the descriptor's id (or URL,
// when no id was given), so a test can script each endpoint's ping
// behaviour.
type fakeFactory struct {
	respond func(id string, params ports.RequestParams) (*ports.Response, error)
}

func (f *fakeFactory) New(desc domain.Descriptor, defaults ports.PoolDefaults) (ports.Connection, error) {
	id := desc.ID
	if id == "" {
		id = desc.URL
	}
	conn := newFakeConn(id)
	conn.onRequest = func(params ports.RequestParams) (*ports.Response, error) {
		return f.respond(id, params)
	}
	return conn, nil
}

func TestMarkDeadBackoffSequence(t *testing.T) {
	factory := &fakeFactory{respond: func(string, ports.RequestParams) (*ports.Response, error) {
		return &ports.Response{StatusCode: 200}, nil
	}}
	p := New(Options{Factory: factory, SniffEnabled: true})
	if err := p.Update(context.Background(), []domain.Descriptor{
		{ID: "a", URL: "http://a.example"},
		{ID: "b", URL: "http://b.example"},
	}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	conn, _ := p.get("a")

	start := time.Now()
	p.MarkDead(conn)
	t1 := conn.Descriptor().ResurrectTimeout.Sub(start)

	p.MarkDead(conn)
	t2 := conn.Descriptor().ResurrectTimeout.Sub(start)

	p.MarkDead(conn)
	t3 := conn.Descriptor().ResurrectTimeout.Sub(start)

	if t1 < 59*time.Second || t1 > 61*time.Second {
		t.Errorf("expected first backoff ~60s, got %v", t1)
	}
	if t2 < 119*time.Second || t2 > 121*time.Second {
		t.Errorf("expected second backoff ~120s, got %v", t2)
	}
	if t3 < 239*time.Second || t3 > 241*time.Second {
		t.Errorf("expected third backoff ~240s, got %v", t3)
	}
}

func TestMarkDeadDiscipline(t *testing.T) {
	factory := &fakeFactory{respond: func(string, ports.RequestParams) (*ports.Response, error) {
		return &ports.Response{StatusCode: 200}, nil
	}}
	p := New(Options{Factory: factory, SniffEnabled: true})
	_ = p.Update(context.Background(), []domain.Descriptor{
		{ID: "a", URL: "http://a.example"},
		{ID: "b", URL: "http://b.example"},
	})
	conn, _ := p.get("a")

	p.MarkDead(conn)
	if conn.Descriptor().Status != domain.StatusDead {
		t.Fatalf("expected status dead after MarkDead")
	}
	found := false
	for _, e := range p.dead {
		if e.id == "a" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected id present in dead list")
	}

	p.MarkAlive(conn)
	if conn.Descriptor().Status != domain.StatusAlive {
		t.Errorf("expected status alive after MarkAlive")
	}
	for _, e := range p.dead {
		if e.id == "a" {
			t.Errorf("expected id removed from dead list after MarkAlive")
		}
	}
}

func TestSingleEndpointImmortality(t *testing.T) {
	factory := &fakeFactory{respond: func(string, ports.RequestParams) (*ports.Response, error) {
		return &ports.Response{StatusCode: 200}, nil
	}}
	p := New(Options{Factory: factory, SniffEnabled: false})
	_ = p.Update(context.Background(), []domain.Descriptor{{ID: "solo", URL: "http://solo.example"}})
	conn, _ := p.get("solo")

	p.MarkDead(conn)
	if conn.Descriptor().Status != domain.StatusAlive {
		t.Errorf("expected sole connection to remain alive, got %s", conn.Descriptor().Status)
	}
}

func TestResurrectPingMarksDeadOn503(t *testing.T) {
	factory := &fakeFactory{respond: func(id string, params ports.RequestParams) (*ports.Response, error) {
		return &ports.Response{StatusCode: 503}, nil
	}}
	p := New(Options{Factory: factory, SniffEnabled: true, ResurrectStrategy: ResurrectPing})
	_ = p.Update(context.Background(), []domain.Descriptor{
		{ID: "a", URL: "http://a.example"},
		{ID: "b", URL: "http://b.example"},
	})
	conn, _ := p.get("a")
	p.MarkDead(conn)
	conn.Descriptor().ResurrectTimeout = time.Now().Add(-time.Second)

	p.Resurrect(context.Background(), time.Now(), "req-1", "")

	if conn.Descriptor().Status != domain.StatusDead {
		t.Errorf("expected connection to remain dead after failed ping, got %s", conn.Descriptor().Status)
	}
	if conn.Descriptor().DeadCount != 2 {
		t.Errorf("expected deadCount to escalate to 2, got %d", conn.Descriptor().DeadCount)
	}
}

func TestResurrectOptimisticSkipsProbe(t *testing.T) {
	probed := false
	factory := &fakeFactory{respond: func(id string, params ports.RequestParams) (*ports.Response, error) {
		probed = true
		return &ports.Response{StatusCode: 503}, nil
	}}
	p := New(Options{Factory: factory, SniffEnabled: true, ResurrectStrategy: ResurrectOptimistic})
	_ = p.Update(context.Background(), []domain.Descriptor{
		{ID: "a", URL: "http://a.example"},
		{ID: "b", URL: "http://b.example"},
	})
	conn, _ := p.get("a")
	p.MarkDead(conn)
	conn.Descriptor().ResurrectTimeout = time.Now().Add(-time.Second)

	p.Resurrect(context.Background(), time.Now(), "req-1", "")

	if probed {
		t.Errorf("optimistic strategy must not issue a network probe")
	}
	if conn.Descriptor().Status != domain.StatusAlive {
		t.Errorf("expected optimistic resurrection to mark alive without probing")
	}
}

func TestGetConnectionNoLivingConnections(t *testing.T) {
	factory := &fakeFactory{respond: func(string, ports.RequestParams) (*ports.Response, error) {
		return &ports.Response{StatusCode: 200}, nil
	}}
	p := New(Options{Factory: factory, SniffEnabled: true})
	_ = p.Update(context.Background(), []domain.Descriptor{{ID: "a", URL: "http://a.example"}})
	conn, _ := p.get("a")
	p.MarkDead(conn)

	_, err := p.GetConnection(context.Background(), ports.SelectOptions{Now: time.Now()}, nil, nil)
	if _, ok := err.(*domain.NoLivingConnectionsError); !ok {
		t.Fatalf("expected NoLivingConnectionsError, got %v", err)
	}
}

func TestUpdatePreservesIdentityByID(t *testing.T) {
	factory := &fakeFactory{respond: func(string, ports.RequestParams) (*ports.Response, error) {
		return &ports.Response{StatusCode: 200}, nil
	}}
	base := newBase(factory, ports.PoolDefaults{})
	_ = base.Update(context.Background(), []domain.Descriptor{{ID: "a", URL: "http://a.example"}})
	first, _ := base.get("a")

	_ = base.Update(context.Background(), []domain.Descriptor{{ID: "a", URL: "http://a.example"}})
	second, _ := base.get("a")

	if first != second {
		t.Errorf("expected Update to preserve Connection identity for retained id")
	}
}

func TestUpdateClosesDroppedConnections(t *testing.T) {
	factory := &fakeFactory{respond: func(string, ports.RequestParams) (*ports.Response, error) {
		return &ports.Response{StatusCode: 200}, nil
	}}
	base := newBase(factory, ports.PoolDefaults{})
	_ = base.Update(context.Background(), []domain.Descriptor{{ID: "a", URL: "http://a.example"}})
	conn, _ := base.get("a")

	_ = base.Update(context.Background(), []domain.Descriptor{{ID: "b", URL: "http://b.example"}})

	if !conn.(*fakeConn).closed {
		t.Errorf("expected dropped connection to be closed")
	}
	if _, ok := base.get("a"); ok {
		t.Errorf("expected dropped connection to be removed from the set")
	}
}
