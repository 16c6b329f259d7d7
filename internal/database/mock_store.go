package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kubenetlabs/watchrule/internal/watchrule"
)

// MockStore is an in-memory implementation of the Store interface for testing.
type MockStore struct {
	mu         sync.Mutex
	audits     []AuditEntry
	watchRules map[string]WatchRule
	savedViews []SavedView
}

// NewMockStore returns an initialized MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		audits:     []AuditEntry{},
		watchRules: make(map[string]WatchRule),
		savedViews: []SavedView{},
	}
}

// Migrate is a no-op for the mock store.
func (m *MockStore) Migrate(_ context.Context) error {
	return nil
}

// Close is a no-op for the mock store.
func (m *MockStore) Close() error {
	return nil
}

// InsertAuditEntry appends an audit entry to the in-memory slice.
func (m *MockStore) InsertAuditEntry(_ context.Context, entry AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, entry)
	return nil
}

// ListAuditEntries returns audit entries with optional filtering and pagination.
func (m *MockStore) ListAuditEntries(_ context.Context, opts AuditListOptions) ([]AuditEntry, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var filtered []AuditEntry
	for _, e := range m.audits {
		if opts.Resource != "" && e.Resource != opts.Resource {
			continue
		}
		if opts.Action != "" && e.Action != opts.Action {
			continue
		}
		if opts.User != "" && e.User != opts.User {
			continue
		}
		if opts.Namespace != "" && e.Namespace != opts.Namespace {
			continue
		}
		if opts.Since != nil && e.Timestamp.Before(*opts.Since) {
			continue
		}
		filtered = append(filtered, e)
	}

	total := int64(len(filtered))

	// Apply pagination
	start := opts.Offset
	if start > len(filtered) {
		start = len(filtered)
	}
	end := len(filtered)
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}

	result := filtered[start:end]
	return result, total, nil
}

// GetAuditEntry returns the audit entry with the given ID, or nil if not found.
func (m *MockStore) GetAuditEntry(_ context.Context, id string) (*AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.audits {
		if e.ID == id {
			entry := e
			return &entry, nil
		}
	}
	return nil, nil
}

// ListWatchRules returns all watch rules, ordered by name.
func (m *MockStore) ListWatchRules(_ context.Context) ([]WatchRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rules := make([]WatchRule, 0, len(m.watchRules))
	for _, r := range m.watchRules {
		rules = append(rules, r)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].Name < rules[j].Name })
	return rules, nil
}

// GetWatchRule returns the watch rule with the given name, or nil if not found.
func (m *MockStore) GetWatchRule(_ context.Context, name string) (*WatchRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.watchRules[name]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

// CreateWatchRule stores a new watch rule.
func (m *MockStore) CreateWatchRule(_ context.Context, rule WatchRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.watchRules[rule.Name]; exists {
		return fmt.Errorf("watch rule %q already exists", rule.Name)
	}
	m.watchRules[rule.Name] = rule
	return nil
}

// UpdateWatchRule updates an existing watch rule, bumping its config
// timestamp.
func (m *MockStore) UpdateWatchRule(_ context.Context, rule WatchRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.watchRules[rule.Name]; !exists {
		return fmt.Errorf("watch rule %q not found", rule.Name)
	}
	rule.AlarmConfigurationUpdatedTimestamp = time.Now().UTC()
	m.watchRules[rule.Name] = rule
	return nil
}

// DeleteWatchRule removes a watch rule by name.
func (m *MockStore) DeleteWatchRule(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.watchRules[name]; !exists {
		return fmt.Errorf("watch rule %q not found", name)
	}
	delete(m.watchRules, name)
	return nil
}

// SaveRuntime persists runtime's evaluation state back onto the rule named
// name, leaving its configuration fields untouched.
func (m *MockStore) SaveRuntime(_ context.Context, name string, runtime watchrule.RuleRuntime) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.watchRules[name]
	if !ok {
		return fmt.Errorf("watch rule %q not found", name)
	}
	r.StateValue = string(runtime.State)
	r.StateReason = runtime.StateReason
	r.StateReasonData = runtime.StateReasonData
	r.LastEvaluated = runtime.LastEvaluated
	r.StateUpdatedTimestamp = runtime.StateUpdatedTime
	m.watchRules[name] = r
	return nil
}

// ListSavedViews returns saved views for a given user ID.
func (m *MockStore) ListSavedViews(_ context.Context, userID string) ([]SavedView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var views []SavedView
	for _, v := range m.savedViews {
		if v.UserID == userID {
			views = append(views, v)
		}
	}
	return views, nil
}

// CreateSavedView stores a new saved view.
func (m *MockStore) CreateSavedView(_ context.Context, view SavedView) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.savedViews = append(m.savedViews, view)
	return nil
}

// DeleteSavedView removes a saved view by ID.
func (m *MockStore) DeleteSavedView(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, v := range m.savedViews {
		if v.ID == id {
			m.savedViews = append(m.savedViews[:i], m.savedViews[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("saved view with id %s not found", id)
}
