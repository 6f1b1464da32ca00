package selector

import (
	"github.com/olla-labs/estransport/internal/core/domain"
	"github.com/olla-labs/estransport/internal/core/ports"
)

// LeastConnections picks the candidate with the fewest open requests,
// adapted from the teacher's LeastConnectionsSelector. Unlike the
// teacher, it reads the count straight off each Connection's own
// descriptor rather than keeping a side map, since a Connection
// already tracks OpenRequests for itself.
type LeastConnections struct{}

func NewLeastConnections() *LeastConnections { return &LeastConnections{} }

func (l *LeastConnections) Name() string { return NameLeastConnections }

func (l *LeastConnections) Select(alive []ports.Connection) (ports.Connection, error) {
	if len(alive) == 0 {
		return nil, domain.NewNoLivingConnectionsError("")
	}

	selected := alive[0]
	min := selected.Descriptor().OpenRequests
	for _, conn := range alive[1:] {
		if n := conn.Descriptor().OpenRequests; n < min {
			min = n
			selected = conn
		}
	}
	return selected, nil
}
