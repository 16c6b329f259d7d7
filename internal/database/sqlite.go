package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/kubenetlabs/watchrule/internal/watchrule"
)

// SQLiteStore implements Store using SQLite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens or creates a SQLite database at the given path.
// It automatically creates the parent directory if it doesn't exist.
func NewSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite is single-writer
	return &SQLiteStore{db: db}, nil
}

// Migrate creates tables if they don't exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteSchema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// InsertAuditEntry inserts a new audit log entry.
func (s *SQLiteStore) InsertAuditEntry(ctx context.Context, entry AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, timestamp, user, action, resource, name, namespace, cluster, before_json, after_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Timestamp, entry.User, entry.Action, entry.Resource,
		entry.Name, entry.Namespace, entry.Cluster, entry.BeforeJSON, entry.AfterJSON,
	)
	return err
}

// ListAuditEntries returns paginated audit entries with optional filters.
func (s *SQLiteStore) ListAuditEntries(ctx context.Context, opts AuditListOptions) ([]AuditEntry, int64, error) {
	var conditions []string
	var args []interface{}

	if opts.Resource != "" {
		conditions = append(conditions, "resource = ?")
		args = append(args, opts.Resource)
	}
	if opts.Action != "" {
		conditions = append(conditions, "action = ?")
		args = append(args, opts.Action)
	}
	if opts.User != "" {
		conditions = append(conditions, "user = ?")
		args = append(args, opts.User)
	}
	if opts.Namespace != "" {
		conditions = append(conditions, "namespace = ?")
		args = append(args, opts.Namespace)
	}
	if opts.Since != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, *opts.Since)
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
		"SELECT id, timestamp, user, action, resource, name, namespace, cluster, before_json, after_json FROM audit_log %s ORDER BY timestamp DESC LIMIT ? OFFSET ?",
		where,
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
func (s *SQLiteStore) GetAuditEntry(ctx context.Context, id string) (*AuditEntry, error) {
	var e AuditEntry
	err := s.db.QueryRowContext(ctx,
		"SELECT id, timestamp, user, action, resource, name, namespace, cluster, before_json, after_json FROM audit_log WHERE id = ?",
		id,
	).Scan(&e.ID, &e.Timestamp, &e.User, &e.Action, &e.Resource, &e.Name, &e.Namespace, &e.Cluster, &e.BeforeJSON, &e.AfterJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &e, err
}

// watchRuleColumns lists the column order shared by every watch_rules
// SELECT in this file, so scans stay lined up with inserts.
const watchRuleColumns = `name, stack_id, namespace, metric_name, dimensions, statistic,
	comparison_operator, threshold, period_seconds, evaluation_periods,
	actions_enabled, alarm_actions, ok_actions, insufficient_data_actions, description,
	state_value, state_reason, state_reason_data, state_updated_at, last_evaluated, config_updated_at`

func scanWatchRule(row interface{ Scan(...any) error }) (WatchRule, error) {
	var w WatchRule
	var dimensionsJSON, alarmJSON, okJSON, insufficientJSON sql.NullString
	err := row.Scan(
		&w.Name, &w.StackID, &w.Namespace, &w.MetricName, &dimensionsJSON, &w.Statistic,
		&w.ComparisonOperator, &w.Threshold, &w.PeriodSeconds, &w.EvaluationPeriods,
		&w.ActionsEnabled, &alarmJSON, &okJSON, &insufficientJSON, &w.Description,
		&w.StateValue, &w.StateReason, &w.StateReasonData, &w.StateUpdatedTimestamp, &w.LastEvaluated, &w.AlarmConfigurationUpdatedTimestamp,
	)
	if err != nil {
		return WatchRule{}, err
	}
	if dimensionsJSON.Valid && dimensionsJSON.String != "" {
		if err := json.Unmarshal([]byte(dimensionsJSON.String), &w.Dimensions); err != nil {
			return WatchRule{}, fmt.Errorf("decode dimensions: %w", err)
		}
	}
	if alarmJSON.Valid && alarmJSON.String != "" {
		if err := json.Unmarshal([]byte(alarmJSON.String), &w.AlarmActions); err != nil {
			return WatchRule{}, fmt.Errorf("decode alarm_actions: %w", err)
		}
	}
	if okJSON.Valid && okJSON.String != "" {
		if err := json.Unmarshal([]byte(okJSON.String), &w.OKActions); err != nil {
			return WatchRule{}, fmt.Errorf("decode ok_actions: %w", err)
		}
	}
	if insufficientJSON.Valid && insufficientJSON.String != "" {
		if err := json.Unmarshal([]byte(insufficientJSON.String), &w.InsufficientDataActions); err != nil {
			return WatchRule{}, fmt.Errorf("decode insufficient_data_actions: %w", err)
		}
	}
	return w, nil
}

// ListWatchRules returns all watch rules ordered by name.
func (s *SQLiteStore) ListWatchRules(ctx context.Context) ([]WatchRule, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+watchRuleColumns+" FROM watch_rules ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []WatchRule
	for rows.Next() {
		w, err := scanWatchRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, w)
	}
	return rules, rows.Err()
}

// GetWatchRule returns a single watch rule by name.
func (s *SQLiteStore) GetWatchRule(ctx context.Context, name string) (*WatchRule, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+watchRuleColumns+" FROM watch_rules WHERE name = ?", name)
	w, err := scanWatchRule(row)
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
func (s *SQLiteStore) CreateWatchRule(ctx context.Context, rule WatchRule) error {
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
		`INSERT INTO watch_rules (`+watchRuleColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.Name, rule.StackID, rule.Namespace, rule.MetricName, dimensionsJSON, rule.Statistic,
		rule.ComparisonOperator, rule.Threshold, rule.PeriodSeconds, rule.EvaluationPeriods,
		rule.ActionsEnabled, alarmJSON, okJSON, insufficientJSON, rule.Description,
		rule.StateValue, rule.StateReason, rule.StateReasonData, rule.StateUpdatedTimestamp, rule.LastEvaluated, rule.AlarmConfigurationUpdatedTimestamp,
	)
	return err
}

// UpdateWatchRule updates a watch rule's configuration fields, bumping its
// config-updated timestamp. It does not touch runtime state; use
// SaveRuntime for that.
func (s *SQLiteStore) UpdateWatchRule(ctx context.Context, rule WatchRule) error {
	dimensionsJSON, alarmJSON, okJSON, insufficientJSON, err := marshalWatchRuleJSON(rule)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE watch_rules SET stack_id = ?, namespace = ?, metric_name = ?, dimensions = ?, statistic = ?,
			comparison_operator = ?, threshold = ?, period_seconds = ?, evaluation_periods = ?,
			actions_enabled = ?, alarm_actions = ?, ok_actions = ?, insufficient_data_actions = ?, description = ?,
			config_updated_at = ?
		 WHERE name = ?`,
		rule.StackID, rule.Namespace, rule.MetricName, dimensionsJSON, rule.Statistic,
		rule.ComparisonOperator, rule.Threshold, rule.PeriodSeconds, rule.EvaluationPeriods,
		rule.ActionsEnabled, alarmJSON, okJSON, insufficientJSON, rule.Description,
		time.Now().UTC(), rule.Name,
	)
	return err
}

// DeleteWatchRule deletes a watch rule by name.
func (s *SQLiteStore) DeleteWatchRule(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM watch_rules WHERE name = ?", name)
	return err
}

// SaveRuntime persists runtime's evaluation state onto the rule named name.
func (s *SQLiteStore) SaveRuntime(ctx context.Context, name string, runtime watchrule.RuleRuntime) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE watch_rules SET state_value = ?, state_reason = ?, state_reason_data = ?, state_updated_at = ?, last_evaluated = ? WHERE name = ?`,
		string(runtime.State), runtime.StateReason, runtime.StateReasonData, runtime.StateUpdatedTime, runtime.LastEvaluated, name,
	)
	return err
}

func marshalWatchRuleJSON(rule WatchRule) (dimensions, alarm, ok, insufficient string, err error) {
	if dimensions, err = marshalOrEmpty(rule.Dimensions); err != nil {
		return
	}
	if alarm, err = marshalOrEmpty(rule.AlarmActions); err != nil {
		return
	}
	if ok, err = marshalOrEmpty(rule.OKActions); err != nil {
		return
	}
	if insufficient, err = marshalOrEmpty(rule.InsufficientDataActions); err != nil {
		return
	}
	return
}

func marshalOrEmpty(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ListSavedViews returns saved views for a user.
func (s *SQLiteStore) ListSavedViews(ctx context.Context, userID string) ([]SavedView, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, user_id, name, view_type, config, created_at FROM saved_views WHERE user_id = ? ORDER BY name",
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
func (s *SQLiteStore) CreateSavedView(ctx context.Context, view SavedView) error {
	if view.ID == "" {
		view.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO saved_views (id, user_id, name, view_type, config, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		view.ID, view.UserID, view.Name, view.ViewType, view.Config, time.Now().UTC(),
	)
	return err
}

// DeleteSavedView deletes a saved view by ID.
func (s *SQLiteStore) DeleteSavedView(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM saved_views WHERE id = ?", id)
	return err
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS audit_log (
	id TEXT PRIMARY KEY,
	timestamp DATETIME NOT NULL,
	user TEXT NOT NULL DEFAULT '',
	action TEXT NOT NULL,
	resource TEXT NOT NULL,
	name TEXT NOT NULL,
	namespace TEXT NOT NULL DEFAULT '',
	cluster TEXT NOT NULL DEFAULT '',
	before_json TEXT NOT NULL DEFAULT '',
	after_json TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_log(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_resource ON audit_log(resource);
CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_log(action);
CREATE INDEX IF NOT EXISTS idx_audit_cluster ON audit_log(cluster);

CREATE TABLE IF NOT EXISTS watch_rules (
	name TEXT PRIMARY KEY,
	stack_id TEXT NOT NULL DEFAULT '',
	namespace TEXT NOT NULL DEFAULT '',
	metric_name TEXT NOT NULL,
	dimensions TEXT NOT NULL DEFAULT '',
	statistic TEXT NOT NULL,
	comparison_operator TEXT NOT NULL,
	threshold REAL NOT NULL,
	period_seconds INTEGER NOT NULL,
	evaluation_periods INTEGER NOT NULL DEFAULT 1,
	actions_enabled BOOLEAN NOT NULL DEFAULT 1,
	alarm_actions TEXT NOT NULL DEFAULT '',
	ok_actions TEXT NOT NULL DEFAULT '',
	insufficient_data_actions TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	state_value TEXT NOT NULL DEFAULT 'NORMAL',
	state_reason TEXT NOT NULL DEFAULT '',
	state_reason_data TEXT NOT NULL DEFAULT '',
	state_updated_at DATETIME,
	last_evaluated DATETIME,
	config_updated_at DATETIME
);

CREATE TABLE IF NOT EXISTS saved_views (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	name TEXT NOT NULL,
	view_type TEXT NOT NULL,
	config TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_saved_views_user ON saved_views(user_id);
`
