package domain

import "time"

// SniffReason names why a cluster discovery probe fired (spec.md §4.6.3).
type SniffReason string

const (
	SniffOnStart            SniffReason = "sniff-on-start"
	SniffInterval           SniffReason = "sniff-interval"
	SniffOnConnectionFault  SniffReason = "sniff-on-connection-fault"
	SniffDefault            SniffReason = "default"
)

// SniffRecord is attached to a request's metadata when a sniff fired
// as part of handling that request.
type SniffRecord struct {
	Hosts  []*Descriptor
	Reason SniffReason
}

// RequestMeta is the per-in-flight-request bookkeeping Transport owns
// across the whole attempt/retry lifecycle (spec.md §3 "Request meta").
type RequestMeta struct {
	Context    interface{}
	Name       string
	ID         string
	Attempts   int
	Aborted    bool
	ConnID     string
	Sniff      *SniffRecord
	StartedAt  time.Time
}
