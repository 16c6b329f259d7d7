package samplestore

import (
	"context"
	"testing"
	"time"

	"github.com/kubenetlabs/watchrule/internal/watchrule"
)

func sampleAt(offset time.Duration, base time.Time, value float64) watchrule.Sample {
	return watchrule.Sample{MetricName: "cpu", Timestamp: base.Add(offset), Value: value}
}

func TestMemoryStore_QueryHalfOpenRange(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Unix(1_700_000_000, 0)

	for i, v := range []float64{10, 20, 30, 40} {
		if err := store.Insert(ctx, "rule-a", sampleAt(time.Duration(i)*time.Second, base, v)); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	got, err := store.Query(ctx, "rule-a", base, base.Add(3*time.Second))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d samples, want 3 (end excluded)", len(got))
	}
	for i, s := range got {
		if s.Value != float64((i+1)*10) {
			t.Errorf("sample %d value = %v, want %v", i, s.Value, (i+1)*10)
		}
	}
}

func TestMemoryStore_OutOfOrderInsert(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Unix(1_700_000_000, 0)

	store.Insert(ctx, "rule-a", sampleAt(3*time.Second, base, 40))
	store.Insert(ctx, "rule-a", sampleAt(1*time.Second, base, 20))
	store.Insert(ctx, "rule-a", sampleAt(2*time.Second, base, 30))
	store.Insert(ctx, "rule-a", sampleAt(0, base, 10))

	got, err := store.Query(ctx, "rule-a", base, base.Add(4*time.Second))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	want := []float64{10, 20, 30, 40}
	if len(got) != len(want) {
		t.Fatalf("got %d samples, want %d", len(got), len(want))
	}
	for i, v := range want {
		if got[i].Value != v {
			t.Errorf("sample %d = %v, want %v (ordering not restored)", i, got[i].Value, v)
		}
	}
}

func TestMemoryStore_QueryUnknownRuleKey(t *testing.T) {
	store := NewMemoryStore()
	got, err := store.Query(context.Background(), "nope", time.Now(), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if got != nil {
		t.Errorf("got %v, want nil", got)
	}
}

func TestMemoryStore_Prune(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Unix(1_700_000_000, 0)

	for i, v := range []float64{10, 20, 30, 40} {
		store.Insert(ctx, "rule-a", sampleAt(time.Duration(i)*time.Second, base, v))
	}

	if err := store.Prune(ctx, "rule-a", base.Add(2*time.Second)); err != nil {
		t.Fatalf("Prune: %v", err)
	}

	got, err := store.Query(ctx, "rule-a", base, base.Add(10*time.Second))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 2 || got[0].Value != 30 || got[1].Value != 40 {
		t.Fatalf("got %v, want samples at 30 and 40 only", got)
	}
}

func TestMemoryStore_RuleKeysIsolated(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Unix(1_700_000_000, 0)

	store.Insert(ctx, "rule-a", sampleAt(0, base, 1))
	store.Insert(ctx, "rule-b", sampleAt(0, base, 2))

	a, _ := store.Query(ctx, "rule-a", base, base.Add(time.Second))
	b, _ := store.Query(ctx, "rule-b", base, base.Add(time.Second))
	if len(a) != 1 || a[0].Value != 1 {
		t.Errorf("rule-a = %v, want one sample with value 1", a)
	}
	if len(b) != 1 || b[0].Value != 2 {
		t.Errorf("rule-b = %v, want one sample with value 2", b)
	}
}
