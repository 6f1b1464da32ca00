package selector

import (
	"context"
	"testing"

	"github.com/olla-labs/estransport/internal/core/domain"
	"github.com/olla-labs/estransport/internal/core/ports"
)

// fakeConn is a minimal ports.Connection stand-in; selectors only read
// Descriptor(), so every other method is an unused stub.
type fakeConn struct {
	id           string
	openRequests int64
}

func (f *fakeConn) ID() string { return f.id }
func (f *fakeConn) Descriptor() *domain.Connection {
	return &domain.Connection{ID: f.id, OpenRequests: f.openRequests}
}
func (f *fakeConn) Close(context.Context) error                   { return nil }
func (f *fakeConn) SetRole(domain.Role, bool) error                { return nil }
func (f *fakeConn) IncrementOpenRequests()                        {}
func (f *fakeConn) DecrementOpenRequests()                        {}
func (f *fakeConn) Request(context.Context, ports.RequestParams, func(*ports.Response, error)) ports.AbortHandle {
	return nil
}

func makeAlive(n int) []ports.Connection {
	alive := make([]ports.Connection, n)
	for i := 0; i < n; i++ {
		alive[i] = &fakeConn{id: string(rune('a' + i))}
	}
	return alive
}

func TestRoundRobinVisitsEachOnceInWindow(t *testing.T) {
	alive := makeAlive(6)
	sel := NewRoundRobin()

	var got []int
	for i := 0; i < 7; i++ {
		conn, err := sel.Select(alive)
		if err != nil {
			t.Fatalf("Select failed: %v", err)
		}
		for idx, c := range alive {
			if c.ID() == conn.ID() {
				got = append(got, idx)
			}
		}
	}

	want := []int{0, 1, 2, 3, 4, 5, 0}
	if len(got) != len(want) {
		t.Fatalf("expected %d selections, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("selection %d: got index %d, want %d", i, got[i], want[i])
		}
	}
}

func TestRoundRobinEmptyList(t *testing.T) {
	sel := NewRoundRobin()
	if _, err := sel.Select(nil); err == nil {
		t.Errorf("expected error selecting from empty list")
	}
}

func TestRandomSelectReturnsMember(t *testing.T) {
	alive := makeAlive(4)
	sel := NewRandom()
	for i := 0; i < 20; i++ {
		conn, err := sel.Select(alive)
		if err != nil {
			t.Fatalf("Select failed: %v", err)
		}
		found := false
		for _, c := range alive {
			if c.ID() == conn.ID() {
				found = true
			}
		}
		if !found {
			t.Errorf("Random.Select returned a connection not in the input list")
		}
	}
}

func TestLeastConnectionsPicksFewest(t *testing.T) {
	alive := []ports.Connection{
		&fakeConn{id: "a", openRequests: 5},
		&fakeConn{id: "b", openRequests: 1},
		&fakeConn{id: "c", openRequests: 3},
	}
	sel := NewLeastConnections()
	conn, err := sel.Select(alive)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if conn.ID() != "b" {
		t.Errorf("expected least-loaded connection 'b', got %q", conn.ID())
	}
}

func TestLeastConnectionsEmptyList(t *testing.T) {
	sel := NewLeastConnections()
	if _, err := sel.Select(nil); err == nil {
		t.Errorf("expected error selecting from empty list")
	}
}
