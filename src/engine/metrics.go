package engine

import "sync/atomic"

// Metrics captures lightweight runtime counters for observability.
type Metrics struct {
	contextsBuilt  atomic.Int64
	sectionsOut    atomic.Int64
	degraded       atomic.Int64
	storeFailures  atomic.Int64
	recordsSkipped atomic.Int64
	summaries      atomic.Int64
	indexWarmed    atomic.Int64
}

func (m *Metrics) IncContextsBuilt()       { m.contextsBuilt.Add(1) }
func (m *Metrics) IncSectionsOut(n int)    { m.sectionsOut.Add(int64(n)) }
func (m *Metrics) IncDegraded()            { m.degraded.Add(1) }
func (m *Metrics) IncStoreFailures()       { m.storeFailures.Add(1) }
func (m *Metrics) IncRecordsSkipped(n int) { m.recordsSkipped.Add(int64(n)) }
func (m *Metrics) IncSummaries()           { m.summaries.Add(1) }
func (m *Metrics) IncIndexWarmed(n int)    { m.indexWarmed.Add(int64(n)) }

// MetricsSnapshot returns the current values for reporting/logging.
type MetricsSnapshot struct {
	ContextsBuilt  int64 `json:"contexts_built"`
	SectionsOut    int64 `json:"sections_out"`
	Degraded       int64 `json:"degraded"`
	StoreFailures  int64 `json:"store_failures"`
	RecordsSkipped int64 `json:"records_skipped"`
	Summaries      int64 `json:"summaries"`
	IndexWarmed    int64 `json:"index_warmed"`
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	return MetricsSnapshot{
		ContextsBuilt:  m.contextsBuilt.Load(),
		SectionsOut:    m.sectionsOut.Load(),
		Degraded:       m.degraded.Load(),
		StoreFailures:  m.storeFailures.Load(),
		RecordsSkipped: m.recordsSkipped.Load(),
		Summaries:      m.summaries.Load(),
		IndexWarmed:    m.indexWarmed.Load(),
	}
}
