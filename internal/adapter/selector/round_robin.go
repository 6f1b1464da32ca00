// Package selector implements the pluggable Selector strategies
// (spec.md §4.4, §9): round-robin, random, and least-connections,
// adapted from the teacher's balancer package.
package selector

import (
	"math/rand"
	"sync/atomic"

	"github.com/olla-labs/estransport/internal/core/domain"
	"github.com/olla-labs/estransport/internal/core/ports"
)

const (
	NameRoundRobin       = "round-robin"
	NameRandom           = "random"
	NameLeastConnections = "least-connections"
)

// RoundRobin chooses the next candidate in a cyclic, lock-free order,
// grounded on the teacher's balancer.RoundRobinSelector.
type RoundRobin struct {
	counter uint64
}

func NewRoundRobin() *RoundRobin { return &RoundRobin{} }

func (r *RoundRobin) Name() string { return NameRoundRobin }

func (r *RoundRobin) Select(alive []ports.Connection) (ports.Connection, error) {
	if len(alive) == 0 {
		return nil, domain.NewNoLivingConnectionsError("")
	}
	current := atomic.AddUint64(&r.counter, 1) - 1
	return alive[current%uint64(len(alive))], nil
}

// Random picks a uniformly random living candidate.
type Random struct{}

func NewRandom() *Random { return &Random{} }

func (r *Random) Name() string { return NameRandom }

func (r *Random) Select(alive []ports.Connection) (ports.Connection, error) {
	if len(alive) == 0 {
		return nil, domain.NewNoLivingConnectionsError("")
	}
	return alive[rand.Intn(len(alive))], nil
}
