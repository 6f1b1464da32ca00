// Package metrics subscribes to the Transport's event bus and exposes
// Prometheus counters/histograms for requests (one per attempt, so
// retries are included but not counted separately), responses,
// resurrections and sniffs — a pull-based generalisation of the teacher's
// atomics-based ProxyStats counters (internal/adapter/proxy/core), and
// this pack's most natural home for prometheus/client_golang.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/olla-labs/estransport/internal/adapter/events"
)

// Collector owns a private Prometheus registry so a single process
// can run more than one Transport without metric name collisions.
type Collector struct {
	Registry *prometheus.Registry

	requests    prometheus.Counter
	responses   *prometheus.CounterVec
	resurrects  *prometheus.CounterVec
	sniffs      *prometheus.CounterVec
	requestTook prometheus.Histogram

	cancel context.CancelFunc
}

func New(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		Registry: reg,
		requests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "requests_total", Help: "Total requests issued.",
		}),
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "responses_total", Help: "Responses by outcome.",
		}, []string{"outcome"}),
		resurrects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "resurrections_total", Help: "Resurrection attempts by result.",
		}, []string{"alive"}),
		sniffs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "sniffs_total", Help: "Sniff attempts by outcome.",
		}, []string{"outcome"}),
		requestTook: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "request_duration_seconds", Help: "Wall-clock time from request dispatch to terminal response, across all attempts.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(c.requests, c.responses, c.resurrects, c.sniffs, c.requestTook)
	return c
}

// Attach subscribes to bus and updates counters until Detach is called
// or the subscription channel is closed.
func (c *Collector) Attach(bus *events.Bus) {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	ch, unsubscribe := bus.Subscribe()
	go func() {
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				c.observe(ev)
			}
		}
	}()
}

func (c *Collector) Detach() {
	if c.cancel != nil {
		c.cancel()
	}
}

func (c *Collector) observe(ev events.Event) {
	switch ev.Kind {
	case events.KindRequest:
		c.requests.Inc()
	case events.KindResponse:
		outcome := "success"
		if ev.Err != nil {
			outcome = "error"
		}
		c.responses.WithLabelValues(outcome).Inc()
		if !ev.Meta.StartedAt.IsZero() {
			c.requestTook.Observe(time.Since(ev.Meta.StartedAt).Seconds())
		}
	case events.KindResurrect:
		c.resurrects.WithLabelValues(boolLabel(ev.IsAlive)).Inc()
	case events.KindSniff:
		outcome := "success"
		if ev.Err != nil {
			outcome = "error"
		}
		c.sniffs.WithLabelValues(outcome).Inc()
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
