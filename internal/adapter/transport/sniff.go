package transport

import (
	"context"
	"time"

	"github.com/olla-labs/estransport/internal/core/domain"
	"github.com/olla-labs/estransport/internal/core/ports"
)

// maybeSniffOnInterval fires a background sniff when the scheduled
// window has elapsed, checked inline inside the request path per
// spec.md §4.6.2 "interval (checked inside getConnection)".
func (t *Transport) maybeSniffOnInterval(ctx context.Context) {
	if t.cfg.SniffIntervalMs <= 0 {
		return
	}
	now := time.Now().UnixMilli()
	next := t.nextSniff.Load()
	if next != 0 && now < next {
		return
	}
	go t.Sniff(context.Background(), domain.SniffInterval, "", nil)
}

// Sniff issues GET sniffEndpoint through the normal request pipeline
// and applies the resulting node list to the pool (spec.md §4.6.2).
// Reentrant calls while one is already in flight are dropped silently.
func (t *Transport) Sniff(ctx context.Context, reason domain.SniffReason, requestID string, done func(err error, hosts []*domain.Descriptor)) {
	if !t.sniffInProgress.CompareAndSwap(false, true) {
		return
	}
	defer t.sniffInProgress.Store(false)

	if t.cfg.SniffIntervalMs > 0 {
		defer t.nextSniff.Store(time.Now().Add(time.Duration(t.cfg.SniffIntervalMs) * time.Millisecond).UnixMilli())
	}

	meta := domain.RequestMeta{ID: requestID}
	if meta.ID == "" {
		meta.ID = t.nextRequestID()
	}

	result := make(chan struct {
		res *Result
		err error
	}, 1)

	t.Request(ctx, Params{Method: "GET", Path: t.cfg.SniffEndpoint}, Options{RequestID: meta.ID}, func(res *Result, err error) {
		result <- struct {
			res *Result
			err error
		}{res, err}
	})
	outcome := <-result

	var hosts []*domain.Descriptor
	var sniffErr error
	if outcome.err != nil {
		sniffErr = outcome.err
	} else if body, ok := outcome.res.Body.(map[string]interface{}); ok {
		nodes := parseSniffNodes(body)
		protocol := "http"
		if conn, ok := t.pool.Get(outcome.res.Meta.ConnID); ok && conn.Descriptor().URL != nil {
			protocol = conn.Descriptor().URL.Scheme
		}
		descs := t.pool.NodesToHost(nodes, protocol)
		hosts = make([]*domain.Descriptor, len(descs))
		for i := range descs {
			hosts[i] = &descs[i]
		}
		_ = t.pool.Update(ctx, descriptorsToSlice(hosts))
	}

	meta.Sniff = &domain.SniffRecord{Hosts: hosts, Reason: reason}
	if t.emitter != nil {
		t.emitter.EmitSniff(meta, sniffErr, hosts, reason)
	}
	if done != nil {
		done(sniffErr, hosts)
	}
}

func descriptorsToSlice(hosts []*domain.Descriptor) []domain.Descriptor {
	out := make([]domain.Descriptor, len(hosts))
	for i, h := range hosts {
		out[i] = *h
	}
	return out
}

// parseSniffNodes decodes the generic JSON-decoded nodes map (already
// produced by Serializer.Deserialize) into typed SniffNode values.
func parseSniffNodes(body map[string]interface{}) map[string]ports.SniffNode {
	raw, _ := body["nodes"].(map[string]interface{})
	out := make(map[string]ports.SniffNode, len(raw))
	for id, v := range raw {
		entry, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		var node ports.SniffNode
		if httpMap, ok := entry["http"].(map[string]interface{}); ok {
			if addr, ok := httpMap["publish_address"].(string); ok {
				node.HTTP.PublishAddress = addr
			}
		}
		if roles, ok := entry["roles"].([]interface{}); ok {
			for _, r := range roles {
				if s, ok := r.(string); ok {
					node.Roles = append(node.Roles, s)
				}
			}
		}
		out[id] = node
	}
	return out
}
