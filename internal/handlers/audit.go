package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kubenetlabs/watchrule/internal/database"
)

// AuditHandler serves the audit trail recorded by auditLog for every
// watch rule create/update/delete.
type AuditHandler struct {
	Store database.Store
}

// List returns audit log entries, optionally filtered by resource, action,
// user, namespace, offset, and limit.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		writeStoreUnavailable(w)
		return
	}

	q := r.URL.Query()
	opts := database.AuditListOptions{
		Resource:  q.Get("resource"),
		Action:    q.Get("action"),
		User:      q.Get("user"),
		Namespace: q.Get("namespace"),
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Offset = n
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Limit = n
		}
	}

	entries, total, err := h.Store.ListAuditEntries(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"total":   total,
	})
}

// Diff returns a single audit entry, including its before/after snapshots.
func (h *AuditHandler) Diff(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		writeStoreUnavailable(w)
		return
	}

	id := chi.URLParam(r, "id")
	entry, err := h.Store.GetAuditEntry(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entry == nil {
		writeError(w, http.StatusNotFound, "audit entry not found")
		return
	}

	writeJSON(w, http.StatusOK, entry)
}
