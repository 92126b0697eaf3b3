package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/core-platform/M04-account-security-service/internal/domain"
)

type sessionPayload struct {
	Token          string    `json:"token"`
	OwnerID        uuid.UUID `json:"owner_id"`
	IPAddress      string    `json:"ip_address,omitempty"`
	UserAgent      string    `json:"user_agent,omitempty"`
	DeviceClass    string    `json:"device_class"`
	Browser        string    `json:"browser,omitempty"`
	OS             string    `json:"os,omitempty"`
	Fingerprint    string    `json:"fingerprint"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	IsActive       bool      `json:"is_active"`
}

func toSessionPayload(session domain.Session) sessionPayload {
	return sessionPayload{
		Token:          session.Token,
		OwnerID:        session.OwnerID,
		IPAddress:      session.Origin.IPAddress,
		UserAgent:      session.Origin.UserAgent,
		DeviceClass:    string(session.Origin.DeviceClass),
		Browser:        session.Origin.Browser,
		OS:             session.Origin.OS,
		Fingerprint:    session.Fingerprint,
		CreatedAt:      session.CreatedAt,
		ExpiresAt:      session.ExpiresAt,
		LastActivityAt: session.LastActivityAt,
		IsActive:       session.IsActive,
	}
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OwnerID string        `json:"owner_id"`
		Origin  originPayload `json:"origin"`
	}
	if !decodeBody(r, &req) {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}
	ownerID, err := uuid.Parse(req.OwnerID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid owner id")
		return
	}
	session, err := h.sessions.Create(r.Context(), ownerID, req.Origin.toDomain())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, toSessionPayload(session))
}

func (h *Handler) validateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token  string        `json:"token"`
		Action string        `json:"action"`
		Origin originPayload `json:"origin"`
	}
	if !decodeBody(r, &req) {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}
	ownerID, err := h.sessions.Validate(r.Context(), req.Token, req.Action, req.Origin.toDomain())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"owner_id": ownerID})
}

func (h *Handler) invalidateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token  string `json:"token"`
		Reason string `json:"reason"`
		By     string `json:"by"`
	}
	if !decodeBody(r, &req) || req.Token == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "token is required")
		return
	}
	reason := domain.InvalidationReason(req.Reason)
	if req.Reason == "" {
		reason = domain.InvalidationUserLogout
	}
	if err := h.sessions.Invalidate(r.Context(), req.Token, reason, req.By); err != nil {
		writeDomainError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "session invalidated")
}

func (h *Handler) invalidateAllSessions(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid account id")
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if !decodeBody(r, &req) {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}
	reason := domain.InvalidationReason(req.Reason)
	if req.Reason == "" {
		reason = domain.InvalidationSecurity
	}
	count, err := h.sessions.InvalidateAllForOwner(r.Context(), accountID, reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"invalidated": count})
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid account id")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	sessions, err := h.sessions.ListForOwner(r.Context(), accountID, limit, offset)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	payload := make([]sessionPayload, 0, len(sessions))
	for _, session := range sessions {
		payload = append(payload, toSessionPayload(session))
	}
	writeSuccess(w, http.StatusOK, payload)
}
