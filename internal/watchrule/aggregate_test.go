package watchrule

import (
	"testing"
	"time"
)

func samplesOf(values ...float64) []Sample {
	out := make([]Sample, len(values))
	for i, v := range values {
		out[i] = Sample{MetricName: "test_metric", Timestamp: time.Unix(int64(i), 0), Value: v}
	}
	return out
}

func TestAggregate_EmptyIsNoValue(t *testing.T) {
	for _, stat := range []Statistic{StatisticSum, StatisticAverage, StatisticMinimum, StatisticMaximum, StatisticSampleCount} {
		if _, ok := Aggregate(stat, nil); ok {
			t.Errorf("Aggregate(%s, nil) ok = true, want false", stat)
		}
	}
}

func TestAggregate_Statistics(t *testing.T) {
	tests := []struct {
		name string
		stat Statistic
		in   []float64
		want float64
	}{
		{"sum", StatisticSum, []float64{17, 23, 85}, 125},
		{"average", StatisticAverage, []float64{117, 23}, 70},
		{"average rounds", StatisticAverage, []float64{117, 23, 195}, 111.66666666666667},
		{"minimum", StatisticMinimum, []float64{77, 53, 25}, 25},
		{"maximum", StatisticMaximum, []float64{7, 23, 35}, 35},
		{"sample count", StatisticSampleCount, []float64{1, 1, 1}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Aggregate(tt.stat, samplesOf(tt.in...))
			if !ok {
				t.Fatalf("Aggregate(%s) ok = false, want true", tt.stat)
			}
			if got != tt.want {
				t.Errorf("Aggregate(%s) = %v, want %v", tt.stat, got, tt.want)
			}
		})
	}
}

// Aggregate must not depend on input order.
func TestAggregate_PermutationInvariant(t *testing.T) {
	forward := samplesOf(7, 23, 35, 11, 91)
	reversed := samplesOf(91, 11, 35, 23, 7)

	for _, stat := range []Statistic{StatisticSum, StatisticAverage, StatisticMinimum, StatisticMaximum, StatisticSampleCount} {
		a, _ := Aggregate(stat, forward)
		b, _ := Aggregate(stat, reversed)
		if a != b {
			t.Errorf("Aggregate(%s) not permutation invariant: %v != %v", stat, a, b)
		}
	}
}

func TestAggregate_UnknownStatistic(t *testing.T) {
	if _, ok := Aggregate(Statistic("Bogus"), samplesOf(1, 2)); ok {
		t.Error("Aggregate with unknown statistic: ok = true, want false")
	}
}
