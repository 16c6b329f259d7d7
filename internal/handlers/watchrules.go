package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/kubenetlabs/watchrule/internal/database"
	"github.com/kubenetlabs/watchrule/internal/samplestore"
	"github.com/kubenetlabs/watchrule/internal/scheduler"
	"github.com/kubenetlabs/watchrule/internal/watcherr"
	"github.com/kubenetlabs/watchrule/internal/watchrule"
)

var validate = validator.New()

// WatchRuleHandler serves the watch rule CRUD, sample ingestion, manual
// evaluate, and state-snapshot endpoints.
type WatchRuleHandler struct {
	Store     database.Store
	Samples   samplestore.Store
	Scheduler *scheduler.Scheduler
}

// watchRuleRequest is the validated request body for create/update.
type watchRuleRequest struct {
	Name                    string            `json:"name" validate:"required"`
	StackID                 string            `json:"stackId"`
	Namespace               string            `json:"namespace"`
	MetricName              string            `json:"metricName" validate:"required"`
	Dimensions              map[string]string `json:"dimensions"`
	Statistic               string            `json:"statistic" validate:"required,oneof=Sum Average Minimum Maximum SampleCount"`
	ComparisonOperator      string            `json:"comparisonOperator" validate:"required,oneof=GreaterThanThreshold GreaterThanOrEqualToThreshold LessThanThreshold LessThanOrEqualToThreshold"`
	Threshold               float64           `json:"threshold" validate:"required"`
	PeriodSeconds           int               `json:"period" validate:"required,gt=0"`
	EvaluationPeriods       int               `json:"evaluationPeriods"`
	ActionsEnabled          bool              `json:"actionsEnabled"`
	AlarmActions            []string          `json:"alarmActions"`
	OKActions               []string          `json:"okActions"`
	InsufficientDataActions []string          `json:"insufficientDataActions"`
	Description             string            `json:"alarmDescription"`
}

func (req watchRuleRequest) toRow() database.WatchRule {
	actions := map[watchrule.State][]string{}
	if len(req.AlarmActions) > 0 {
		actions[watchrule.StateAlarm] = req.AlarmActions
	}
	if len(req.OKActions) > 0 {
		actions[watchrule.StateNormal] = req.OKActions
	}
	if len(req.InsufficientDataActions) > 0 {
		actions[watchrule.StateNoData] = req.InsufficientDataActions
	}
	rule := watchrule.Rule{
		Name:              req.Name,
		StackID:           req.StackID,
		Namespace:         req.Namespace,
		MetricName:        req.MetricName,
		Dimensions:        req.Dimensions,
		Period:            time.Duration(req.PeriodSeconds) * time.Second,
		EvaluationPeriods: req.EvaluationPeriods,
		Statistic:         watchrule.Statistic(req.Statistic),
		Comparison:        watchrule.Comparison(req.ComparisonOperator),
		Threshold:         req.Threshold,
		Actions:           actions,
		Description:       req.Description,
		ActionsEnabled:    req.ActionsEnabled,
	}
	return database.RuleFromDomain(rule, watchrule.RuleRuntime{State: watchrule.StateNormal})
}

// List returns every configured watch rule.
func (h *WatchRuleHandler) List(w http.ResponseWriter, r *http.Request) {
	rules, err := h.Store.ListWatchRules(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

// Get returns a single watch rule by name.
func (h *WatchRuleHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	rule, err := h.Store.GetWatchRule(r.Context(), name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rule == nil {
		writeError(w, http.StatusNotFound, "watch rule not found")
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// Create validates and stores a new watch rule, then schedules its first
// evaluation one period from now.
func (h *WatchRuleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req watchRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	row := req.toRow()
	now := time.Now()
	row.LastEvaluated = now
	row.StateUpdatedTimestamp = now
	row.AlarmConfigurationUpdatedTimestamp = now

	if err := h.Store.CreateWatchRule(r.Context(), row); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if h.Scheduler != nil {
		h.Scheduler.AddRule(row.Name, now.Add(row.ToRule().Period))
	}

	auditLog(h.Store, r.Context(), "create", "WatchRule", row.Name, row.Namespace, nil, row)

	writeJSON(w, http.StatusCreated, row)
}

// Update validates and replaces a watch rule's configuration, bumping its
// config-updated timestamp. It does not reset evaluation state.
func (h *WatchRuleHandler) Update(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	before, err := h.Store.GetWatchRule(r.Context(), name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if before == nil {
		writeError(w, http.StatusNotFound, "watch rule not found")
		return
	}

	var req watchRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Name = name
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	row := req.toRow()
	row.StateValue = before.StateValue
	row.StateReason = before.StateReason
	row.StateReasonData = before.StateReasonData
	row.StateUpdatedTimestamp = before.StateUpdatedTimestamp
	row.LastEvaluated = before.LastEvaluated

	if err := h.Store.UpdateWatchRule(r.Context(), row); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	after, err := h.Store.GetWatchRule(r.Context(), name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if h.Scheduler != nil && after != nil {
		h.Scheduler.AddRule(name, after.LastEvaluated.Add(after.ToRule().Period))
	}

	auditLog(h.Store, r.Context(), "update", "WatchRule", name, row.Namespace, before, after)

	writeJSON(w, http.StatusOK, after)
}

// Delete removes a watch rule and drops it from the scheduler.
func (h *WatchRuleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	before, err := h.Store.GetWatchRule(r.Context(), name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := h.Store.DeleteWatchRule(r.Context(), name); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if h.Scheduler != nil {
		h.Scheduler.RemoveRule(name)
	}

	ns := ""
	if before != nil {
		ns = before.Namespace
	}
	auditLog(h.Store, r.Context(), "delete", "WatchRule", name, ns, before, nil)

	w.WriteHeader(http.StatusNoContent)
}

// sampleRequest is the wire shape for one ingested sample.
type sampleRequest struct {
	Value      float64           `json:"value" validate:"required"`
	Timestamp  *time.Time        `json:"timestamp"`
	Unit       string            `json:"unit"`
	Dimensions map[string]string `json:"dimensions"`
}

// IngestSamples accepts one or more samples for a watch rule's metric,
// addressed by the rule's name.
func (h *WatchRuleHandler) IngestSamples(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	rule, err := h.Store.GetWatchRule(r.Context(), name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rule == nil {
		writeError(w, http.StatusNotFound, "watch rule not found")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var reqs []sampleRequest
	if err := json.Unmarshal(body, &reqs); err != nil {
		// Accept a single sample object as well as a batch array.
		var single sampleRequest
		if serr := json.Unmarshal(body, &single); serr != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		reqs = []sampleRequest{single}
	}

	batchID := uuid.NewString()
	for _, sr := range reqs {
		if err := validate.Struct(sr); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		ts := time.Now()
		if sr.Timestamp != nil {
			ts = *sr.Timestamp
		}
		sample := watchrule.Sample{
			MetricName: rule.MetricName,
			Timestamp:  ts,
			Value:      sr.Value,
			Unit:       sr.Unit,
			Dimensions: sr.Dimensions,
		}
		if err := h.Samples.Insert(r.Context(), name, sample); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"batchId": batchID, "accepted": len(reqs)})
}

// Evaluate forces an immediate evaluation of a watch rule, bypassing the
// scheduler's wait for the next due tick.
func (h *WatchRuleHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler unavailable")
		return
	}

	name := chi.URLParam(r, "name")
	row, err := h.Scheduler.EvaluateNow(r.Context(), name)
	if watcherr.Is(err, watcherr.NotFound) {
		writeError(w, http.StatusNotFound, "watch rule not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if row == nil {
		writeError(w, http.StatusNotFound, "watch rule not found")
		return
	}

	writeJSON(w, http.StatusOK, row)
}

// State returns a watch rule's current runtime snapshot.
func (h *WatchRuleHandler) State(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	rule, err := h.Store.GetWatchRule(r.Context(), name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rule == nil {
		writeError(w, http.StatusNotFound, "watch rule not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"stateValue":                         rule.StateValue,
		"stateReason":                        rule.StateReason,
		"stateReasonData":                    rule.StateReasonData,
		"stateUpdatedTimestamp":              rule.StateUpdatedTimestamp,
		"alarmConfigurationUpdatedTimestamp": rule.AlarmConfigurationUpdatedTimestamp,
	})
}
