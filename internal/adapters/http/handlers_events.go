package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/core-platform/M04-account-security-service/internal/domain"
	"github.com/viralforge/mesh/services/core-platform/M04-account-security-service/internal/ports"
)

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := ports.EventFilter{
		Category: domain.EventCategory(query.Get("category")),
		Severity: domain.Severity(query.Get("severity")),
	}
	filter.Limit, _ = strconv.Atoi(query.Get("limit"))
	filter.Offset, _ = strconv.Atoi(query.Get("offset"))

	if raw := query.Get("owner_id"); raw != "" {
		ownerID, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid owner id")
			return
		}
		filter.OwnerID = &ownerID
	}
	if raw := query.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "since must be RFC3339")
			return
		}
		filter.Since = &since
	}

	events, err := h.sink.Events(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, events)
}

func (h *Handler) eventSummary(w http.ResponseWriter, r *http.Request) {
	hours, _ := strconv.Atoi(r.URL.Query().Get("since_hours"))
	if hours <= 0 {
		hours = 24
	}
	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)

	counts, err := h.sink.SeverityCounts(r.Context(), since)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"since":       since,
		"by_severity": counts,
	})
}

func (h *Handler) updateInvestigation(w http.ResponseWriter, r *http.Request) {
	eventID, err := uuid.Parse(chi.URLParam(r, "eventID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid event id")
		return
	}
	var req struct {
		Status   string `json:"status"`
		Assignee string `json:"assignee"`
		Notes    string `json:"notes"`
	}
	if !decodeBody(r, &req) {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}
	investigation := domain.Investigation{
		Status:   domain.InvestigationStatus(req.Status),
		Assignee: req.Assignee,
		Notes:    req.Notes,
	}
	if err := h.sink.UpdateInvestigation(r.Context(), eventID, investigation); err != nil {
		writeDomainError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "investigation updated")
}
