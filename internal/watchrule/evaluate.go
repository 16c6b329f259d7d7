package watchrule

import (
	"fmt"
	"time"
)

// WindowBounds returns the half-open window [start, end) a rule's next
// evaluation will consider, given its runtime's last evaluation time.
func WindowBounds(runtime RuleRuntime, period time.Duration) (start, end time.Time) {
	return runtime.LastEvaluated, runtime.LastEvaluated.Add(period)
}

// Result is what a single Evaluate call produces.
type Result struct {
	State        State
	Actions      []string
	Transitioned bool
}

// Evaluate runs one cadence-gated evaluation of rule against samples,
// mutating runtime in place and returning the action identifiers to
// dispatch. It is a pure function of its arguments — the only state it
// reads or writes is runtime, and it never touches a clock or store itself.
//
// samples must already be restricted to rule's window; callers query the
// sample store with [runtime.LastEvaluated, runtime.LastEvaluated+Period).
func Evaluate(rule Rule, runtime *RuleRuntime, samples []Sample, now time.Time) Result {
	if now.Sub(runtime.LastEvaluated) < rule.Period {
		return Result{State: runtime.State, Actions: nil, Transitioned: false}
	}

	aggregateValue, ok := Aggregate(rule.Statistic, samples)

	var newState State
	switch {
	case !ok:
		newState = StateNoData
	case Compare(rule.Comparison, aggregateValue, rule.Threshold):
		newState = StateAlarm
	default:
		newState = StateNormal
	}

	oldState := runtime.State
	runtime.LastEvaluated = now

	transitioned := newState != oldState
	if transitioned {
		runtime.State = newState
		runtime.StateUpdatedTime = now
		if ok {
			runtime.StateReason = fmt.Sprintf("Threshold Crossed: %d datapoint(s) were %s than the threshold (%v). The most recent datapoints: %v.",
				len(samples), comparisonVerb(rule.Comparison), rule.Threshold, aggregateValue)
		} else {
			runtime.StateReason = "Insufficient Data: no datapoints were received in the evaluation window."
		}
		runtime.StateReasonData = fmt.Sprintf("statistic=%s value=%v threshold=%v", rule.Statistic, aggregateValue, rule.Threshold)
	}

	var actions []string
	if transitioned {
		actions = dispatch(rule, oldState, newState)
	}

	return Result{State: newState, Actions: actions, Transitioned: transitioned}
}

func comparisonVerb(op Comparison) string {
	switch op {
	case ComparisonGreaterThan, ComparisonGreaterThanOrEqual:
		return "greater"
	case ComparisonLessThan, ComparisonLessThanOrEqual:
		return "less"
	default:
		return "unequal"
	}
}
