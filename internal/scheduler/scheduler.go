// Package scheduler drives per-rule cadence: it owns a min-heap of next-due
// evaluation times, wakes on a ticker, and dispatches due rules to a bounded
// worker pool that calls watchrule.Evaluate and persists the result.
package scheduler

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/kubenetlabs/watchrule/internal/database"
	"github.com/kubenetlabs/watchrule/internal/metrics"
	"github.com/kubenetlabs/watchrule/internal/samplestore"
	"github.com/kubenetlabs/watchrule/internal/watcherr"
	"github.com/kubenetlabs/watchrule/internal/watchrule"
)

// tickInterval is how often the scheduler loop wakes to check the heap for
// due rules. It is independent of any individual rule's period.
const tickInterval = time.Second

// maxConcurrentEvaluations bounds how many rule evaluations run at once.
const maxConcurrentEvaluations = 8

// Scheduler periodically evaluates watch rules against their ingested
// samples, advancing each rule's NORMAL/ALARM/NODATA state and persisting
// the result.
type Scheduler struct {
	store   database.Store
	samples samplestore.Store

	mu         sync.Mutex
	queue      dueQueue
	index      map[string]*dueEntry // ruleName -> heap entry, for removal
	inFlight   map[string]bool
	quarantine map[string]bool // rules skipped after a Corrupt error

	sem    *semaphore.Weighted
	cancel context.CancelFunc
}

// New returns a Scheduler reading rules from store and samples from
// samples. Call Load then Start to begin evaluating.
func New(store database.Store, samples samplestore.Store) *Scheduler {
	return &Scheduler{
		store:      store,
		samples:    samples,
		index:      make(map[string]*dueEntry),
		inFlight:   make(map[string]bool),
		quarantine: make(map[string]bool),
		sem:        semaphore.NewWeighted(maxConcurrentEvaluations),
	}
}

// Load populates the heap from persisted rules, recovering each rule's
// next-due time as last_evaluated + period so a restart doesn't lose the
// schedule.
func (s *Scheduler) Load(ctx context.Context) error {
	rules, err := s.store.ListWatchRules(ctx)
	if err != nil {
		return watcherr.New(watcherr.Transient, "Scheduler.Load", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range rules {
		rule := row.ToRule()
		runtime := row.ToRuntime()
		dueAt := runtime.LastEvaluated.Add(rule.Period)
		s.pushLocked(rule.Name, dueAt)
	}
	return nil
}

// AddRule schedules name's first evaluation at dueAt, replacing any
// existing schedule entry for the same name. Handlers call this after
// CreateWatchRule/UpdateWatchRule.
func (s *Scheduler) AddRule(name string, dueAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.quarantine, name)
	metrics.QuarantinedRules.Set(float64(len(s.quarantine)))
	s.removeLocked(name)
	s.pushLocked(name, dueAt)
}

// RemoveRule drops name from the schedule. Handlers call this after
// DeleteWatchRule.
func (s *Scheduler) RemoveRule(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
	delete(s.quarantine, name)
	metrics.QuarantinedRules.Set(float64(len(s.quarantine)))
}

// Reload clears name's quarantine, the operator-facing recovery path for a
// rule the evaluator marked Corrupt.
func (s *Scheduler) Reload(name string, dueAt time.Time) {
	s.AddRule(name, dueAt)
}

func (s *Scheduler) pushLocked(name string, dueAt time.Time) {
	entry := &dueEntry{ruleName: name, dueAt: dueAt}
	heap.Push(&s.queue, entry)
	s.index[name] = entry
	metrics.ActiveRules.Set(float64(len(s.index)))
}

func (s *Scheduler) removeLocked(name string) {
	entry, ok := s.index[name]
	if !ok {
		return
	}
	heap.Remove(&s.queue, entry.index)
	delete(s.index, name)
	metrics.ActiveRules.Set(float64(len(s.index)))
}

// Start begins the background scheduling loop. It runs until ctx is
// cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	slog.Info("scheduler starting", "tick_interval", tickInterval)

	go func() {
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				slog.Info("scheduler stopped")
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// Stop cancels the background scheduling loop.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

// tick pops every rule due by now and dispatches it to the worker pool.
func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now()

	var due []string
	s.mu.Lock()
	for len(s.queue) > 0 && !s.queue[0].dueAt.After(now) {
		entry := heap.Pop(&s.queue).(*dueEntry)
		delete(s.index, entry.ruleName)

		if s.quarantine[entry.ruleName] {
			continue
		}
		if s.inFlight[entry.ruleName] {
			// Already running; skip this tick and retry on the next one
			// rather than queueing a second concurrent evaluation.
			slog.Debug("scheduler: rule already in flight, deferring", "rule", entry.ruleName)
			s.pushLocked(entry.ruleName, now.Add(tickInterval))
			continue
		}
		s.inFlight[entry.ruleName] = true
		due = append(due, entry.ruleName)
	}
	s.mu.Unlock()

	for _, name := range due {
		go s.runOne(ctx, name)
	}
}

func (s *Scheduler) runOne(ctx context.Context, name string) {
	defer func() {
		s.mu.Lock()
		delete(s.inFlight, name)
		s.mu.Unlock()
	}()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer s.sem.Release(1)

	nextDue, err := s.evaluate(ctx, name)
	if err != nil {
		if watcherr.Is(err, watcherr.Corrupt) {
			slog.Error("scheduler: quarantining rule after corrupt state", "rule", name, "error", err)
			s.mu.Lock()
			s.quarantine[name] = true
			metrics.QuarantinedRules.Set(float64(len(s.quarantine)))
			s.mu.Unlock()
			return
		}
		if !watcherr.Is(err, watcherr.Transient) {
			slog.Warn("scheduler: evaluation failed, dropping rule from schedule", "rule", name, "error", err)
			return
		}
		slog.Warn("scheduler: evaluation failed, rescheduling", "rule", name, "error", err)
		nextDue = time.Now().Add(tickInterval)
	}

	s.mu.Lock()
	s.pushLocked(name, nextDue)
	s.mu.Unlock()
}

// evaluate runs one evaluation of the named rule: load it, query its
// sample window, run watchrule.Evaluate, persist the new runtime, and log
// any dispatched action identifiers. It returns the rule's next due time.
func (s *Scheduler) evaluate(ctx context.Context, name string) (time.Time, error) {
	_, nextDue, err := s.evaluateInternal(ctx, name, false)
	return nextDue, err
}

// EvaluateNow runs an immediate evaluation of name outside the scheduler's
// own cadence, for the operator-facing manual evaluate endpoint. It still
// calls the real Evaluate function; it just forces now to rule's window
// boundary instead of waiting for the scheduler's next tick, and reschedules
// name's next due time from the result. It returns the persisted row.
func (s *Scheduler) EvaluateNow(ctx context.Context, name string) (*database.WatchRule, error) {
	_, nextDue, err := s.evaluateInternal(ctx, name, true)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	delete(s.quarantine, name)
	s.removeLocked(name)
	s.pushLocked(name, nextDue)
	s.mu.Unlock()

	return s.store.GetWatchRule(ctx, name)
}

func (s *Scheduler) evaluateInternal(ctx context.Context, name string, force bool) (watchrule.Result, time.Time, error) {
	evalStart := time.Now()

	row, err := s.store.GetWatchRule(ctx, name)
	if err != nil {
		metrics.ObserveEvaluation("error", time.Since(evalStart))
		return watchrule.Result{}, time.Time{}, watcherr.New(watcherr.Transient, "Scheduler.evaluate", err)
	}
	if row == nil {
		metrics.ObserveEvaluation("error", time.Since(evalStart))
		return watchrule.Result{}, time.Time{}, watcherr.New(watcherr.NotFound, "Scheduler.evaluate", nil)
	}

	rule := row.ToRule()
	runtime := row.ToRuntime()

	start, end := watchrule.WindowBounds(runtime, rule.Period)
	samples, err := s.samples.Query(ctx, name, start, end)
	if err != nil {
		metrics.ObserveEvaluation("error", time.Since(evalStart))
		return watchrule.Result{}, time.Time{}, watcherr.New(watcherr.Transient, "Scheduler.evaluate", err)
	}

	filtered := samples[:0:0]
	for _, sample := range samples {
		if sample.MatchesDimensions(rule.Dimensions) {
			filtered = append(filtered, sample)
		}
	}

	now := time.Now()
	if force && now.Sub(runtime.LastEvaluated) < rule.Period {
		now = runtime.LastEvaluated.Add(rule.Period)
	}

	result := watchrule.Evaluate(rule, &runtime, filtered, now)

	if err := s.store.SaveRuntime(ctx, name, runtime); err != nil {
		metrics.ObserveEvaluation("error", time.Since(evalStart))
		return watchrule.Result{}, time.Time{}, watcherr.New(watcherr.Transient, "Scheduler.evaluate", err)
	}

	metrics.ObserveEvaluation("success", time.Since(evalStart))

	if result.Transitioned {
		metrics.ObserveTransition(string(result.State), result.Actions)
		slog.Info("watch rule transitioned",
			"rule", name, "state", result.State, "actions", result.Actions)
	}

	if err := s.samples.Prune(ctx, name, start); err != nil {
		slog.Debug("scheduler: prune failed", "rule", name, "error", err)
	}

	return result, runtime.LastEvaluated.Add(rule.Period), nil
}
