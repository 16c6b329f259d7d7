package database

import (
	"context"
	"time"

	"github.com/kubenetlabs/watchrule/internal/watchrule"
)

// Store defines the config database interface for audit logs, watch
// rules, and saved views.
type Store interface {
	// Migrate runs schema migrations.
	Migrate(ctx context.Context) error
	// Close closes the database connection.
	Close() error

	// Audit log
	InsertAuditEntry(ctx context.Context, entry AuditEntry) error
	ListAuditEntries(ctx context.Context, opts AuditListOptions) ([]AuditEntry, int64, error)
	GetAuditEntry(ctx context.Context, id string) (*AuditEntry, error)

	// Watch rules
	ListWatchRules(ctx context.Context) ([]WatchRule, error)
	GetWatchRule(ctx context.Context, name string) (*WatchRule, error)
	CreateWatchRule(ctx context.Context, rule WatchRule) error
	UpdateWatchRule(ctx context.Context, rule WatchRule) error
	DeleteWatchRule(ctx context.Context, name string) error
	SaveRuntime(ctx context.Context, name string, runtime watchrule.RuleRuntime) error

	// Saved views
	ListSavedViews(ctx context.Context, userID string) ([]SavedView, error)
	CreateSavedView(ctx context.Context, view SavedView) error
	DeleteSavedView(ctx context.Context, id string) error
}

// AuditEntry represents a single audit log record.
type AuditEntry struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	User       string    `json:"user"`
	Action     string    `json:"action"`     // create, update, delete
	Resource   string    `json:"resource"`   // e.g., "WatchRule"
	Name       string    `json:"name"`       // resource name
	Namespace  string    `json:"namespace"`  // resource namespace
	Cluster    string    `json:"cluster"`    // cluster context, if any
	BeforeJSON string    `json:"beforeJson"` // JSON snapshot before change
	AfterJSON  string    `json:"afterJson"`  // JSON snapshot after change
}

// AuditListOptions controls pagination and filtering for audit queries.
type AuditListOptions struct {
	Offset    int
	Limit     int
	Resource  string
	Action    string
	User      string
	Namespace string
	Since     *time.Time
}

// WatchRule is the persisted row for a watch rule, carrying both its
// configuration and its current evaluation state in a single row, the way
// the teacher's AlertRule carries configuration and enablement together.
// Field names follow the external vocabulary (AlarmActions, OKActions,
// StateValue, ...) so the row can be marshaled to JSON for the HTTP surface
// without a translation layer.
type WatchRule struct {
	Name                     string            `json:"name"`
	StackID                  string            `json:"stackId"`
	Namespace                string            `json:"namespace"`
	MetricName               string            `json:"metricName"`
	Dimensions               map[string]string `json:"dimensions,omitempty"`
	Statistic                string            `json:"statistic"`
	ComparisonOperator       string            `json:"comparisonOperator"`
	Threshold                float64           `json:"threshold"`
	PeriodSeconds            int               `json:"period"`
	EvaluationPeriods        int               `json:"evaluationPeriods"`
	ActionsEnabled           bool              `json:"actionsEnabled"`
	AlarmActions             []string          `json:"alarmActions,omitempty"`
	OKActions                []string          `json:"okActions,omitempty"`
	InsufficientDataActions  []string          `json:"insufficientDataActions,omitempty"`
	Description              string            `json:"alarmDescription"`

	StateValue                          string    `json:"stateValue"`
	StateReason                         string    `json:"stateReason"`
	StateReasonData                     string    `json:"stateReasonData"`
	StateUpdatedTimestamp               time.Time `json:"stateUpdatedTimestamp"`
	LastEvaluated                       time.Time `json:"-"`
	AlarmConfigurationUpdatedTimestamp  time.Time `json:"alarmConfigurationUpdatedTimestamp"`
}

// ToRule converts the persisted row into the pure watchrule.Rule the
// evaluator operates on.
func (w WatchRule) ToRule() watchrule.Rule {
	actions := map[watchrule.State][]string{}
	if len(w.AlarmActions) > 0 {
		actions[watchrule.StateAlarm] = w.AlarmActions
	}
	if len(w.OKActions) > 0 {
		actions[watchrule.StateNormal] = w.OKActions
	}
	if len(w.InsufficientDataActions) > 0 {
		actions[watchrule.StateNoData] = w.InsufficientDataActions
	}
	return watchrule.Rule{
		Name:              w.Name,
		StackID:           w.StackID,
		MetricName:        w.MetricName,
		Namespace:         w.Namespace,
		Dimensions:        w.Dimensions,
		Period:            time.Duration(w.PeriodSeconds) * time.Second,
		EvaluationPeriods: w.EvaluationPeriods,
		Statistic:         watchrule.Statistic(w.Statistic),
		Comparison:        watchrule.Comparison(w.ComparisonOperator),
		Threshold:         w.Threshold,
		Actions:           actions,
		Description:       w.Description,
		ActionsEnabled:    w.ActionsEnabled,
	}
}

// ToRuntime converts the persisted row into a watchrule.RuleRuntime.
func (w WatchRule) ToRuntime() watchrule.RuleRuntime {
	return watchrule.RuleRuntime{
		State:             watchrule.State(w.StateValue),
		StateReason:       w.StateReason,
		StateReasonData:   w.StateReasonData,
		LastEvaluated:     w.LastEvaluated,
		StateUpdatedTime:  w.StateUpdatedTimestamp,
		ConfigUpdatedTime: w.AlarmConfigurationUpdatedTimestamp,
	}
}

// RuleFromDomain builds the row representation of rule and its runtime,
// ready for CreateWatchRule/UpdateWatchRule.
func RuleFromDomain(rule watchrule.Rule, runtime watchrule.RuleRuntime) WatchRule {
	w := WatchRule{
		Name:                    rule.Name,
		StackID:                 rule.StackID,
		Namespace:               rule.Namespace,
		MetricName:              rule.MetricName,
		Dimensions:              rule.Dimensions,
		Statistic:               string(rule.Statistic),
		ComparisonOperator:      string(rule.Comparison),
		Threshold:               rule.Threshold,
		PeriodSeconds:           int(rule.Period / time.Second),
		EvaluationPeriods:       rule.EvaluationPeriods,
		ActionsEnabled:          rule.ActionsEnabled,
		AlarmActions:            rule.Actions[watchrule.StateAlarm],
		OKActions:               rule.Actions[watchrule.StateNormal],
		InsufficientDataActions: rule.Actions[watchrule.StateNoData],
		Description:             rule.Description,

		StateValue:                         string(runtime.State),
		StateReason:                        runtime.StateReason,
		StateReasonData:                    runtime.StateReasonData,
		StateUpdatedTimestamp:              runtime.StateUpdatedTime,
		LastEvaluated:                      runtime.LastEvaluated,
		AlarmConfigurationUpdatedTimestamp: runtime.ConfigUpdatedTime,
	}
	return w
}

// SavedView is a user-specific saved dashboard/filter configuration.
type SavedView struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	ViewType  string    `json:"viewType"` // e.g., "dashboard", "log-query", "metrics"
	Config    string    `json:"config"`   // JSON config
	CreatedAt time.Time `json:"createdAt"`
}
