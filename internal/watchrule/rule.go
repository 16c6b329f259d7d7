package watchrule

import "time"

// Statistic is the reducer applied to the samples in a rule's window.
type Statistic string

const (
	StatisticSum         Statistic = "Sum"
	StatisticAverage     Statistic = "Average"
	StatisticMinimum     Statistic = "Minimum"
	StatisticMaximum     Statistic = "Maximum"
	StatisticSampleCount Statistic = "SampleCount"
)

func (s Statistic) Valid() bool {
	switch s {
	case StatisticSum, StatisticAverage, StatisticMinimum, StatisticMaximum, StatisticSampleCount:
		return true
	}
	return false
}

// Comparison is the operator a rule's aggregate value is checked against.
type Comparison string

const (
	ComparisonGreaterThan        Comparison = "GreaterThanThreshold"
	ComparisonGreaterThanOrEqual Comparison = "GreaterThanOrEqualToThreshold"
	ComparisonLessThan           Comparison = "LessThanThreshold"
	ComparisonLessThanOrEqual    Comparison = "LessThanOrEqualToThreshold"
)

func (c Comparison) Valid() bool {
	switch c {
	case ComparisonGreaterThan, ComparisonGreaterThanOrEqual, ComparisonLessThan, ComparisonLessThanOrEqual:
		return true
	}
	return false
}

// State is a rule's position in the NORMAL/ALARM/NODATA machine.
type State string

const (
	StateNormal  State = "NORMAL"
	StateAlarm   State = "ALARM"
	StateNoData  State = "NODATA"
)

func (s State) Valid() bool {
	switch s {
	case StateNormal, StateAlarm, StateNoData:
		return true
	}
	return false
}

// Rule is the persistent configuration of one watch. EvaluationPeriods is
// parsed and carried but the evaluator always treats a rule as single-period
// (see evaluate.go).
type Rule struct {
	Name              string
	StackID           string
	MetricName        string
	Namespace         string
	Dimensions        map[string]string
	Period            time.Duration
	EvaluationPeriods int
	Statistic         Statistic
	Comparison        Comparison
	Threshold         float64
	// Actions maps a destination state to the ordered action identifiers
	// fired when a transition lands on it.
	Actions        map[State][]string
	Description    string
	ActionsEnabled bool
}

// RuleRuntime is the mutable evaluation state of a Rule.
type RuleRuntime struct {
	State             State
	StateReason       string
	StateReasonData   string
	LastEvaluated     time.Time
	StateUpdatedTime  time.Time
	ConfigUpdatedTime time.Time
}

// Validate checks the structural invariants a Rule must satisfy before it
// can be created or updated. It never touches the clock or any store.
func (r Rule) Validate() error {
	if r.Name == "" {
		return errRequired("name")
	}
	if r.MetricName == "" {
		return errRequired("metric_name")
	}
	if r.Period <= 0 {
		return errInvalid("period", "must be a positive duration")
	}
	if !r.Statistic.Valid() {
		return errInvalid("statistic", string(r.Statistic))
	}
	if !r.Comparison.Valid() {
		return errInvalid("comparison", string(r.Comparison))
	}
	for state := range r.Actions {
		if !state.Valid() {
			return errInvalid("actions key", string(state))
		}
	}
	return nil
}
