package samplestore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kubenetlabs/watchrule/internal/watchrule"
)

// MemoryStore keeps samples in process memory, one sorted slice per rule
// key. It is the default backend for single-process deployments and for
// tests; it is lost on restart.
type MemoryStore struct {
	mu      sync.Mutex
	samples map[string][]watchrule.Sample
}

// NewMemoryStore returns an empty MemoryStore ready for use.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{samples: make(map[string][]watchrule.Sample)}
}

func (m *MemoryStore) Insert(_ context.Context, ruleKey string, sample watchrule.Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bucket := m.samples[ruleKey]

	// Samples usually arrive in chronological order, so appending and
	// checking is the common case; out-of-order arrivals fall back to a
	// binary search for the insertion point.
	if len(bucket) == 0 || !sample.Timestamp.Before(bucket[len(bucket)-1].Timestamp) {
		m.samples[ruleKey] = append(bucket, sample)
		return nil
	}

	idx := sort.Search(len(bucket), func(i int) bool {
		return bucket[i].Timestamp.After(sample.Timestamp)
	})
	bucket = append(bucket, watchrule.Sample{})
	copy(bucket[idx+1:], bucket[idx:])
	bucket[idx] = sample
	m.samples[ruleKey] = bucket
	return nil
}

func (m *MemoryStore) Query(_ context.Context, ruleKey string, start, end time.Time) ([]watchrule.Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bucket := m.samples[ruleKey]
	lo := sort.Search(len(bucket), func(i int) bool {
		return !bucket[i].Timestamp.Before(start)
	})
	hi := sort.Search(len(bucket), func(i int) bool {
		return !bucket[i].Timestamp.Before(end)
	})
	if lo >= hi {
		return nil, nil
	}

	out := make([]watchrule.Sample, hi-lo)
	copy(out, bucket[lo:hi])
	return out, nil
}

func (m *MemoryStore) Prune(_ context.Context, ruleKey string, cutoff time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bucket := m.samples[ruleKey]
	idx := sort.Search(len(bucket), func(i int) bool {
		return !bucket[i].Timestamp.Before(cutoff)
	})
	if idx == 0 {
		return nil
	}
	remaining := make([]watchrule.Sample, len(bucket)-idx)
	copy(remaining, bucket[idx:])
	m.samples[ruleKey] = remaining
	return nil
}
