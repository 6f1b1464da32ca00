package domain

import "time"

// ResurrectResult is the outcome of one resurrection attempt against a
// dead Connection (spec.md §4.4), grounded on the teacher's
// HealthCheckResult shape.
type ResurrectResult struct {
	Err        error
	StatusCode int
	Latency    time.Duration
	IsAlive    bool
}
