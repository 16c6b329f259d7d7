package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kubenetlabs/watchrule/internal/watchrule"
)

func jsonUnmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres opens a connection to a PostgreSQL database.
func NewPostgres(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &PostgresStore{db: db}, nil
}

// Migrate creates tables if they don't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, postgresSchema)
	return err
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// InsertAuditEntry inserts a new audit log entry.
func (s *PostgresStore) InsertAuditEntry(ctx context.Context, entry AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, timestamp, "user", action, resource, name, namespace, cluster, before_json, after_json)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.ID, entry.Timestamp, entry.User, entry.Action, entry.Resource,
		entry.Name, entry.Namespace, entry.Cluster, entry.BeforeJSON, entry.AfterJSON,
	)
	return err
}

// ListAuditEntries returns paginated audit entries with optional filters.
func (s *PostgresStore) ListAuditEntries(ctx context.Context, opts AuditListOptions) ([]AuditEntry, int64, error) {
	var conditions []string
	var args []interface{}
	argIdx := 1

	if opts.Resource != "" {
		conditions = append(conditions, fmt.Sprintf("resource = $%d", argIdx))
		args = append(args, opts.Resource)
		argIdx++
	}
	if opts.Action != "" {
		conditions = append(conditions, fmt.Sprintf("action = $%d", argIdx))
		args = append(args, opts.Action)
		argIdx++
	}
	if opts.User != "" {
		conditions = append(conditions, fmt.Sprintf(`"user" = $%d`, argIdx))
		args = append(args, opts.User)
		argIdx++
	}
	if opts.Namespace != "" {
		conditions = append(conditions, fmt.Sprintf("namespace = $%d", argIdx))
		args = append(args, opts.Namespace)
		argIdx++
	}
	if opts.Since != nil {
		conditions = append(conditions, fmt.Sprintf("timestamp >= $%d", argIdx))
		args = append(args, *opts.Since)
		argIdx++
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	// Count total
	var total int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM audit_log %s", where)
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	// Fetch page
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := opts.Offset

	query := fmt.Sprintf(
		`SELECT id, timestamp, "user", action, resource, name, namespace, cluster, before_json, after_json FROM audit_log %s ORDER BY timestamp DESC LIMIT $%d OFFSET $%d`,
		where, argIdx, argIdx+1,
	)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.User, &e.Action, &e.Resource, &e.Name, &e.Namespace, &e.Cluster, &e.BeforeJSON, &e.AfterJSON); err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

// GetAuditEntry returns a single audit entry by ID.
func (s *PostgresStore) GetAuditEntry(ctx context.Context, id string) (*AuditEntry, error) {
	var e AuditEntry
	err := s.db.QueryRowContext(ctx,
		`SELECT id, timestamp, "user", action, resource, name, namespace, cluster, before_json, after_json FROM audit_log WHERE id = $1`,
		id,
	).Scan(&e.ID, &e.Timestamp, &e.User, &e.Action, &e.Resource, &e.Name, &e.Namespace, &e.Cluster, &e.BeforeJSON, &e.AfterJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &e, err
}

const postgresWatchRuleColumns = `name, stack_id, namespace, metric_name, dimensions, statistic,
	comparison_operator, threshold, period_seconds, evaluation_periods,
	actions_enabled, alarm_actions, ok_actions, insufficient_data_actions, description,
	state_value, state_reason, state_reason_data, state_updated_at, last_evaluated, config_updated_at`

func scanPostgresWatchRule(row interface{ Scan(...any) error }) (WatchRule, error) {
	var w WatchRule
	var dimensionsJSON, alarmJSON, okJSON, insufficientJSON []byte
	err := row.Scan(
		&w.Name, &w.StackID, &w.Namespace, &w.MetricName, &dimensionsJSON, &w.Statistic,
		&w.ComparisonOperator, &w.Threshold, &w.PeriodSeconds, &w.EvaluationPeriods,
		&w.ActionsEnabled, &alarmJSON, &okJSON, &insufficientJSON, &w.Description,
		&w.StateValue, &w.StateReason, &w.StateReasonData, &w.StateUpdatedTimestamp, &w.LastEvaluated, &w.AlarmConfigurationUpdatedTimestamp,
	)
	if err != nil {
		return WatchRule{}, err
	}
	if len(dimensionsJSON) > 0 {
		if err := jsonUnmarshal(dimensionsJSON, &w.Dimensions); err != nil {
			return WatchRule{}, err
		}
	}
	if len(alarmJSON) > 0 {
		if err := jsonUnmarshal(alarmJSON, &w.AlarmActions); err != nil {
			return WatchRule{}, err
		}
	}
	if len(okJSON) > 0 {
		if err := jsonUnmarshal(okJSON, &w.OKActions); err != nil {
			return WatchRule{}, err
		}
	}
	if len(insufficientJSON) > 0 {
		if err := jsonUnmarshal(insufficientJSON, &w.InsufficientDataActions); err != nil {
			return WatchRule{}, err
		}
	}
	return w, nil
}

// ListWatchRules returns all watch rules ordered by name.
func (s *PostgresStore) ListWatchRules(ctx context.Context) ([]WatchRule, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+postgresWatchRuleColumns+" FROM watch_rules ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []WatchRule
	for rows.Next() {
		w, err := scanPostgresWatchRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, w)
	}
	return rules, rows.Err()
}

// GetWatchRule returns a single watch rule by name.
func (s *PostgresStore) GetWatchRule(ctx context.Context, name string) (*WatchRule, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+postgresWatchRuleColumns+" FROM watch_rules WHERE name = $1", name)
	w, err := scanPostgresWatchRule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// CreateWatchRule creates a new watch rule, initializing its runtime to
// NORMAL with the creation time as its first last-evaluated anchor.
func (s *PostgresStore) CreateWatchRule(ctx context.Context, rule WatchRule) error {
	dimensionsJSON, alarmJSON, okJSON, insufficientJSON, err := marshalWatchRuleJSON(rule)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if rule.StateValue == "" {
		rule.StateValue = string(watchrule.StateNormal)
	}
	if rule.LastEvaluated.IsZero() {
		rule.LastEvaluated = now
	}
	if rule.AlarmConfigurationUpdatedTimestamp.IsZero() {
		rule.AlarmConfigurationUpdatedTimestamp = now
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO watch_rules (`+postgresWatchRuleColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		rule.Name, rule.StackID, rule.Namespace, rule.MetricName, jsonOrNull(dimensionsJSON), rule.Statistic,
		rule.ComparisonOperator, rule.Threshold, rule.PeriodSeconds, rule.EvaluationPeriods,
		rule.ActionsEnabled, jsonOrNull(alarmJSON), jsonOrNull(okJSON), jsonOrNull(insufficientJSON), rule.Description,
		rule.StateValue, rule.StateReason, rule.StateReasonData, rule.StateUpdatedTimestamp, rule.LastEvaluated, rule.AlarmConfigurationUpdatedTimestamp,
	)
	return err
}

// UpdateWatchRule updates a watch rule's configuration fields, bumping its
// config-updated timestamp. It does not touch runtime state; use
// SaveRuntime for that.
func (s *PostgresStore) UpdateWatchRule(ctx context.Context, rule WatchRule) error {
	dimensionsJSON, alarmJSON, okJSON, insufficientJSON, err := marshalWatchRuleJSON(rule)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE watch_rules SET stack_id = $1, namespace = $2, metric_name = $3, dimensions = $4, statistic = $5,
			comparison_operator = $6, threshold = $7, period_seconds = $8, evaluation_periods = $9,
			actions_enabled = $10, alarm_actions = $11, ok_actions = $12, insufficient_data_actions = $13, description = $14,
			config_updated_at = $15
		 WHERE name = $16`,
		rule.StackID, rule.Namespace, rule.MetricName, jsonOrNull(dimensionsJSON), rule.Statistic,
		rule.ComparisonOperator, rule.Threshold, rule.PeriodSeconds, rule.EvaluationPeriods,
		rule.ActionsEnabled, jsonOrNull(alarmJSON), jsonOrNull(okJSON), jsonOrNull(insufficientJSON), rule.Description,
		time.Now().UTC(), rule.Name,
	)
	return err
}

// DeleteWatchRule deletes a watch rule by name.
func (s *PostgresStore) DeleteWatchRule(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM watch_rules WHERE name = $1", name)
	return err
}

// SaveRuntime persists runtime's evaluation state onto the rule named name.
func (s *PostgresStore) SaveRuntime(ctx context.Context, name string, runtime watchrule.RuleRuntime) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE watch_rules SET state_value = $1, state_reason = $2, state_reason_data = $3, state_updated_at = $4, last_evaluated = $5 WHERE name = $6`,
		string(runtime.State), runtime.StateReason, runtime.StateReasonData, runtime.StateUpdatedTime, runtime.LastEvaluated, name,
	)
	return err
}

func jsonOrNull(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// ListSavedViews returns saved views for a user.
func (s *PostgresStore) ListSavedViews(ctx context.Context, userID string) ([]SavedView, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, user_id, name, view_type, config, created_at FROM saved_views WHERE user_id = $1 ORDER BY name",
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var views []SavedView
	for rows.Next() {
		var v SavedView
		if err := rows.Scan(&v.ID, &v.UserID, &v.Name, &v.ViewType, &v.Config, &v.CreatedAt); err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

// CreateSavedView creates a new saved view.
func (s *PostgresStore) CreateSavedView(ctx context.Context, view SavedView) error {
	if view.ID == "" {
		view.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO saved_views (id, user_id, name, view_type, config, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		view.ID, view.UserID, view.Name, view.ViewType, view.Config, time.Now().UTC(),
	)
	return err
}

// DeleteSavedView deletes a saved view by ID.
func (s *PostgresStore) DeleteSavedView(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM saved_views WHERE id = $1", id)
	return err
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS audit_log (
	id UUID PRIMARY KEY,
	timestamp TIMESTAMPTZ NOT NULL,
	"user" TEXT NOT NULL DEFAULT '',
	action TEXT NOT NULL,
	resource TEXT NOT NULL,
	name TEXT NOT NULL,
	namespace TEXT NOT NULL DEFAULT '',
	cluster TEXT NOT NULL DEFAULT '',
	before_json JSONB NOT NULL DEFAULT '{}',
	after_json JSONB NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_log(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_resource ON audit_log(resource);
CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_log(action);

CREATE TABLE IF NOT EXISTS watch_rules (
	name TEXT PRIMARY KEY,
	stack_id TEXT NOT NULL DEFAULT '',
	namespace TEXT NOT NULL DEFAULT '',
	metric_name TEXT NOT NULL,
	dimensions JSONB,
	statistic TEXT NOT NULL,
	comparison_operator TEXT NOT NULL,
	threshold DOUBLE PRECISION NOT NULL,
	period_seconds INTEGER NOT NULL,
	evaluation_periods INTEGER NOT NULL DEFAULT 1,
	actions_enabled BOOLEAN NOT NULL DEFAULT TRUE,
	alarm_actions JSONB,
	ok_actions JSONB,
	insufficient_data_actions JSONB,
	description TEXT NOT NULL DEFAULT '',
	state_value TEXT NOT NULL DEFAULT 'NORMAL',
	state_reason TEXT NOT NULL DEFAULT '',
	state_reason_data TEXT NOT NULL DEFAULT '',
	state_updated_at TIMESTAMPTZ,
	last_evaluated TIMESTAMPTZ,
	config_updated_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS saved_views (
	id UUID PRIMARY KEY,
	user_id TEXT NOT NULL,
	name TEXT NOT NULL,
	view_type TEXT NOT NULL,
	config JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_saved_views_user ON saved_views(user_id);
`
