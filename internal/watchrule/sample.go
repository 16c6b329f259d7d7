package watchrule

import "time"

// Sample is an immutable, timestamped metric data point. Equality is
// structural — samples carry no identity of their own.
type Sample struct {
	MetricName string
	Timestamp  time.Time
	Value      float64
	Unit       string
	// Dimensions narrows which rule(s) a sample feeds, e.g. {"host": "web-1"}.
	Dimensions map[string]string
}

// MatchesDimensions reports whether s carries at least the key/value pairs
// in want. An empty want matches everything.
func (s Sample) MatchesDimensions(want map[string]string) bool {
	for k, v := range want {
		if s.Dimensions[k] != v {
			return false
		}
	}
	return true
}
