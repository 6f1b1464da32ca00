// Package events adapts the teacher's generic pkg/eventbus.EventBus
// into the Transport's Emitter capability (spec.md §6): a lock-free
// pub/sub sink for the request/response/sniff/resurrect lifecycle
// events, with all-subscribers-absent being a no-op by construction
// (Publish on an EventBus with zero subscribers just returns 0).
package events

import (
	"context"

	"github.com/olla-labs/estransport/internal/core/domain"
	"github.com/olla-labs/estransport/internal/core/ports"
	"github.com/olla-labs/estransport/pkg/eventbus"
)

// Kind discriminates the four event shapes carried on one bus.
type Kind string

const (
	KindRequest   Kind = "request"
	KindResponse  Kind = "response"
	KindSniff     Kind = "sniff"
	KindResurrect Kind = "resurrect"
)

// Event is the single envelope type published on the bus; only the
// field matching Kind is populated.
type Event struct {
	Kind Kind

	Meta domain.RequestMeta
	Err  error
	Resp *ports.Response

	Hosts  []*domain.Descriptor
	Reason domain.SniffReason

	Strategy  string
	Name      string
	RequestID string
	Conn      ports.Connection
	IsAlive   bool
}

// Bus is the concrete ports.Emitter implementation.
type Bus struct {
	eb *eventbus.EventBus[Event]
}

func New() *Bus {
	return &Bus{eb: eventbus.New[Event]()}
}

func (b *Bus) Subscribe() (<-chan Event, func()) {
	return b.eb.Subscribe(context.Background())
}

func (b *Bus) EmitRequest(meta domain.RequestMeta) {
	b.eb.PublishAsync(Event{Kind: KindRequest, Meta: meta})
}

func (b *Bus) EmitResponse(meta domain.RequestMeta, err error, resp *ports.Response) {
	b.eb.PublishAsync(Event{Kind: KindResponse, Meta: meta, Err: err, Resp: resp})
}

func (b *Bus) EmitSniff(meta domain.RequestMeta, err error, hosts []*domain.Descriptor, reason domain.SniffReason) {
	b.eb.PublishAsync(Event{Kind: KindSniff, Meta: meta, Err: err, Hosts: hosts, Reason: reason})
}

func (b *Bus) EmitResurrect(strategy, name, requestID string, conn ports.Connection, isAlive bool) {
	b.eb.PublishAsync(Event{Kind: KindResurrect, Strategy: strategy, Name: name, RequestID: requestID, Conn: conn, IsAlive: isAlive})
}

func (b *Bus) Shutdown() { b.eb.Shutdown() }

var _ ports.Emitter = (*Bus)(nil)
