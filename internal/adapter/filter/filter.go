// Package filter implements the Filter predicates applied before
// selection (spec.md §4.4): the default master-only exclusion and a
// helper for building role-based custom filters.
package filter

import (
	"github.com/olla-labs/estransport/internal/core/domain"
	"github.com/olla-labs/estransport/internal/core/ports"
)

// Default excludes any connection whose role set is exactly {master},
// mirroring the teacher's routable-status exclusion idiom in
// balancer.RoundRobinSelector.Select but keyed off role composition
// instead of health status (health is handled earlier, by the pool's
// alive list).
func Default(conn ports.Connection) bool {
	return !conn.Descriptor().Roles.MasterOnly()
}

// RequireRole returns a filter that keeps only connections advertising
// the given role.
func RequireRole(role domain.Role) ports.Filter {
	return func(conn ports.Connection) bool {
		return conn.Descriptor().Roles.Has(role)
	}
}

// All combines filters with logical AND; a connection must pass every
// filter to be selected.
func All(filters ...ports.Filter) ports.Filter {
	return func(conn ports.Connection) bool {
		for _, f := range filters {
			if !f(conn) {
				return false
			}
		}
		return true
	}
}
