package watchrule

import "testing"

func TestDispatch_SelfLoopEmitsNothing(t *testing.T) {
	rule := Rule{ActionsEnabled: true, Actions: map[State][]string{StateNormal: {"X"}}}
	if got := dispatch(rule, StateNormal, StateNormal); got != nil {
		t.Errorf("self-loop dispatch = %v, want nil", got)
	}
}

func TestDispatch_DisabledSuppressesActions(t *testing.T) {
	rule := Rule{ActionsEnabled: false, Actions: map[State][]string{StateAlarm: {"A", "B"}}}
	if got := dispatch(rule, StateNormal, StateAlarm); got != nil {
		t.Errorf("disabled dispatch = %v, want nil", got)
	}
}

func TestDispatch_OrderAndDuplicatesPreserved(t *testing.T) {
	rule := Rule{
		ActionsEnabled: true,
		Actions: map[State][]string{
			StateAlarm: {"A", "B", "A"},
		},
	}
	got := dispatch(rule, StateNormal, StateAlarm)
	want := []string{"A", "B", "A"}
	if len(got) != len(want) {
		t.Fatalf("dispatch = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("dispatch[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDispatch_NoActionsConfigured(t *testing.T) {
	rule := Rule{ActionsEnabled: true, Actions: map[State][]string{}}
	if got := dispatch(rule, StateNormal, StateAlarm); got != nil {
		t.Errorf("dispatch with no configured actions = %v, want nil", got)
	}
}
