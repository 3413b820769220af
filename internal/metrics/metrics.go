// Package metrics holds the cross-cutting counters surfaced by the indexing
// core. Counters are plain atomics; callers snapshot them for logs or tests.
package metrics

import "sync/atomic"

// Metrics aggregates every counter the core maintains. A single instance is
// shared by the parser engine, the apply engine, and the pipeline.
type Metrics struct {
	ParseFailures         atomic.Int64
	ExtractionDiagnostics atomic.Int64
	IdentityCollisions    atomic.Int64
	OversizedSkips        atomic.Int64
	CacheEvictions        atomic.Int64

	PatchesApplied atomic.Int64
	ApplyRetries   atomic.Int64
	PatchesParked  atomic.Int64
	ApplyQueueLag  atomic.Int64

	EventsProcessed atomic.Int64
	EventsFailed    atomic.Int64
	EventsFiltered  atomic.Int64
	StaleDiscards   atomic.Int64
}

// New returns a zeroed metrics set.
func New() *Metrics {
	return &Metrics{}
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	ParseFailures         int64 `json:"parse_failures"`
	ExtractionDiagnostics int64 `json:"extraction_diagnostics"`
	IdentityCollisions    int64 `json:"identity_collisions"`
	OversizedSkips        int64 `json:"oversized_skips"`
	CacheEvictions        int64 `json:"cache_evictions"`
	PatchesApplied        int64 `json:"patches_applied"`
	ApplyRetries          int64 `json:"apply_retries"`
	PatchesParked         int64 `json:"patches_parked"`
	ApplyQueueLag         int64 `json:"apply_queue_lag"`
	EventsProcessed       int64 `json:"events_processed"`
	EventsFailed          int64 `json:"events_failed"`
	EventsFiltered        int64 `json:"events_filtered"`
	StaleDiscards         int64 `json:"stale_discards"`
}

// Snapshot copies the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		ParseFailures:         m.ParseFailures.Load(),
		ExtractionDiagnostics: m.ExtractionDiagnostics.Load(),
		IdentityCollisions:    m.IdentityCollisions.Load(),
		OversizedSkips:        m.OversizedSkips.Load(),
		CacheEvictions:        m.CacheEvictions.Load(),
		PatchesApplied:        m.PatchesApplied.Load(),
		ApplyRetries:          m.ApplyRetries.Load(),
		PatchesParked:         m.PatchesParked.Load(),
		ApplyQueueLag:         m.ApplyQueueLag.Load(),
		EventsProcessed:       m.EventsProcessed.Load(),
		EventsFailed:          m.EventsFailed.Load(),
		EventsFiltered:        m.EventsFiltered.Load(),
		StaleDiscards:         m.StaleDiscards.Load(),
	}
}
