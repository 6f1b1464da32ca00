package connection

import (
	"github.com/olla-labs/estransport/internal/core/domain"
	"github.com/olla-labs/estransport/internal/core/ports"
)

// Factory is the default ports.ConnectionFactory, producing Default
// connections. Pools depend on ports.ConnectionFactory so tests can
// substitute fakes.
type Factory struct{}

func NewFactory() *Factory { return &Factory{} }

func (f *Factory) New(desc domain.Descriptor, defaults ports.PoolDefaults) (ports.Connection, error) {
	return New(desc, defaults)
}
