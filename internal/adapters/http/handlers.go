package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/core-platform/M04-account-security-service/internal/domain"
)

type originPayload struct {
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
}

func (p originPayload) toDomain() domain.Origin {
	return domain.Origin{IPAddress: p.IPAddress, UserAgent: p.UserAgent}
}

func decodeBody(r *http.Request, dst any) bool {
	return json.NewDecoder(r.Body).Decode(dst) == nil
}

func accountIDParam(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "accountID"))
	return id, err == nil
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, "ok")
}

func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	if h.readyFn != nil {
		if err := h.readyFn(r); err != nil {
			writeError(w, http.StatusServiceUnavailable, "NOT_READY", err.Error())
			return
		}
	}
	writeMessage(w, http.StatusOK, "ready")
}

func (h *Handler) recordAttempt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identifier string        `json:"identifier"`
		Succeeded  bool          `json:"succeeded"`
		Origin     originPayload `json:"origin"`
	}
	if !decodeBody(r, &req) {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}
	if err := h.guard.RecordAttempt(r.Context(), req.Identifier, req.Succeeded, req.Origin.toDomain()); err != nil {
		writeDomainError(w, err)
		return
	}
	locked, err := h.guard.IsLocked(r.Context(), req.Identifier)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"locked": locked})
}

func (h *Handler) unlockAccount(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid account id")
		return
	}
	var req struct {
		ClearedBy string `json:"cleared_by"`
	}
	if !decodeBody(r, &req) {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}
	if err := h.guard.Unlock(r.Context(), accountID, req.ClearedBy); err != nil {
		writeDomainError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "account unlocked")
}

func (h *Handler) rateLimitCheck(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identifier    string `json:"identifier"`
		Action        string `json:"action"`
		Limit         int    `json:"limit"`
		WindowSeconds int    `json:"window_seconds"`
	}
	if !decodeBody(r, &req) || req.Identifier == "" || req.Action == "" || req.Limit <= 0 || req.WindowSeconds <= 0 {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "identifier, action, limit and window_seconds are required")
		return
	}
	decision := h.limiter.Check(r.Context(), req.Identifier, req.Action, req.Limit, time.Duration(req.WindowSeconds)*time.Second)
	writeSuccess(w, http.StatusOK, map[string]any{
		"allowed":   decision.Allowed,
		"remaining": decision.Remaining,
		"reset_at":  decision.ResetAt,
	})
}

func (h *Handler) assessThreat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OwnerID string        `json:"owner_id"`
		Action  string        `json:"action"`
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
	assessment := h.scorer.Assess(r.Context(), ownerID, req.Action, req.Origin.toDomain().Enrich())
	writeSuccess(w, http.StatusOK, map[string]any{
		"risk_score": assessment.RiskScore,
		"threats":    assessment.Threats,
	})
}

func (h *Handler) twoFactorSetup(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid account id")
		return
	}
	setup, err := h.twoFactor.Setup(r.Context(), accountID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, map[string]any{
		"secret":           setup.Secret,
		"provisioning_uri": setup.ProvisioningURI,
		"backup_codes":     setup.BackupCodes,
	})
}

func (h *Handler) twoFactorVerify(w http.ResponseWriter, r *http.Request) {
	h.twoFactorCode(w, r, h.twoFactor.Verify, "two-factor code verified")
}

func (h *Handler) twoFactorDisable(w http.ResponseWriter, r *http.Request) {
	h.twoFactorCode(w, r, h.twoFactor.Disable, "two-factor authentication disabled")
}

func (h *Handler) twoFactorCode(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, accountID uuid.UUID, code string) error, message string) {
	accountID, ok := accountIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid account id")
		return
	}
	var req struct {
		Code string `json:"code"`
	}
	if !decodeBody(r, &req) {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}
	if err := op(r.Context(), accountID, req.Code); err != nil {
		writeDomainError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, message)
}
