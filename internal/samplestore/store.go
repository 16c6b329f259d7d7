// Package samplestore holds the raw timestamped samples ingested for a
// watch rule, keyed by rule name, and answers half-open time-range queries
// over them.
package samplestore

import (
	"context"
	"time"

	"github.com/kubenetlabs/watchrule/internal/watchrule"
)

// Store is the port the scheduler and HTTP ingestion handler use to
// persist and query a rule's raw samples. Implementations need not retain
// samples outside a bounded retention window; Prune is how callers enforce
// that bound explicitly.
type Store interface {
	// Insert appends a sample under ruleKey. Order of insertion need not
	// match timestamp order; implementations sort as needed for Query.
	Insert(ctx context.Context, ruleKey string, sample watchrule.Sample) error

	// Query returns the samples under ruleKey with Timestamp in the
	// half-open interval [start, end).
	Query(ctx context.Context, ruleKey string, start, end time.Time) ([]watchrule.Sample, error)

	// Prune discards samples under ruleKey older than cutoff.
	Prune(ctx context.Context, ruleKey string, cutoff time.Time) error
}
