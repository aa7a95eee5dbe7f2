// Package materialize implements the C6 analytics materialiser: it reads
// raw events back out of the time-series log (C1 tsdb) and upserts them
// into the relational store's structured tables, the same two-database
// shape as original_source/agent/analytics_processor.py's AnalyticsProcessor.
// The main agent calls these as on-demand tools (C7); a separate scheduled
// process can call RunFullSync for batch catch-up.
package materialize

import (
	"github.com/engintel/platform/internal/store/relational"
	"github.com/engintel/platform/internal/store/tsdb"
)

// Materializer pairs the time-series source with the relational sink.
type Materializer struct {
	events *tsdb.Store
	rel    *relational.Store
}

// New builds a Materializer over the given stores.
func New(events *tsdb.Store, rel *relational.Store) *Materializer {
	return &Materializer{events: events, rel: rel}
}

// SyncResult is the common result shape every sync_* operation returns,
// matching the {success, ..., message} dict shape of the Python reference.
type SyncResult struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`
}

// appendError caps the error list at 10 entries, mirroring
// analytics_processor.py's errors[:10] truncation.
func appendError(errs []string, msg string) []string {
	if len(errs) >= 10 {
		return errs
	}
	return append(errs, msg)
}
