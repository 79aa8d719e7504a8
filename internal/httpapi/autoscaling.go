package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"classroomd/internal/apperr"
	"classroomd/internal/autoscaler"
	"classroomd/internal/identity"
	"classroomd/internal/store"
)

type autoscalingHandlers struct {
	store  store.Store
	engine *autoscaler.Engine
}

type policyRequest struct {
	ContainerID       uuid.UUID `json:"container_id"`
	ScaleUpCPU        float64   `json:"scale_up_cpu"`
	ScaleUpMem        float64   `json:"scale_up_mem"`
	ScaleDownCPU      float64   `json:"scale_down_cpu"`
	ScaleDownMem      float64   `json:"scale_down_mem"`
	MinReplicas       int       `json:"min_replicas"`
	MaxReplicas       int       `json:"max_replicas"`
	CooldownSeconds   int       `json:"cooldown_seconds"`
	EvaluationSeconds int       `json:"evaluation_seconds"`
	Enabled           bool      `json:"enabled"`
}

func (h *autoscalingHandlers) createPolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, err := identity.GetUserContext(ctx)
	if err != nil {
		writeError(ctx, w, "autoscaling.create", apperr.NotAuthorized("autoscaling.create", "authentication required"))
		return
	}

	var req policyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(ctx, w, "autoscaling.create", err)
		return
	}

	c, err := h.store.GetContainer(ctx, req.ContainerID)
	if err != nil {
		writeError(ctx, w, "autoscaling.create", err)
		return
	}
	if c.Owner != user.Email {
		writeError(ctx, w, "autoscaling.create", apperr.NotAuthorized("autoscaling.create", "not your container"))
		return
	}
	if _, err := h.store.GetPolicyByContainer(ctx, req.ContainerID); err == nil {
		writeError(ctx, w, "autoscaling.create", apperr.Conflict("autoscaling.create", "a policy already exists for this container"))
		return
	}

	policy := &store.ScalingPolicy{
		ID: uuid.New(), ContainerID: req.ContainerID,
		ScaleUpCPU: req.ScaleUpCPU, ScaleUpMem: req.ScaleUpMem,
		ScaleDownCPU: req.ScaleDownCPU, ScaleDownMem: req.ScaleDownMem,
		MinReplicas: req.MinReplicas, MaxReplicas: req.MaxReplicas,
		CooldownSeconds: req.CooldownSeconds, EvaluationSeconds: req.EvaluationSeconds,
		Enabled: req.Enabled,
	}
	if err := h.store.CreatePolicy(ctx, policy); err != nil {
		writeError(ctx, w, "autoscaling.create", err)
		return
	}
	writeJSON(w, http.StatusCreated, policy)
}

func (h *autoscalingHandlers) listPolicies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, err := identity.GetUserContext(ctx)
	if err != nil {
		writeError(ctx, w, "autoscaling.list", apperr.NotAuthorized("autoscaling.list", "authentication required"))
		return
	}
	policies, err := h.store.ListPoliciesByOwner(ctx, user.Email)
	if err != nil {
		writeError(ctx, w, "autoscaling.list", err)
		return
	}
	writeJSON(w, http.StatusOK, policies)
}

func (h *autoscalingHandlers) updatePolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, err := identity.GetUserContext(ctx)
	if err != nil {
		writeError(ctx, w, "autoscaling.update", apperr.NotAuthorized("autoscaling.update", "authentication required"))
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(ctx, w, "autoscaling.update", apperr.InvalidInput("autoscaling.update", "invalid policy id"))
		return
	}
	policy, err := h.store.GetPolicy(ctx, id)
	if err != nil {
		writeError(ctx, w, "autoscaling.update", err)
		return
	}
	c, err := h.store.GetContainer(ctx, policy.ContainerID)
	if err != nil || c.Owner != user.Email {
		writeError(ctx, w, "autoscaling.update", apperr.NotAuthorized("autoscaling.update", "not your policy"))
		return
	}

	var req policyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(ctx, w, "autoscaling.update", err)
		return
	}
	policy.ScaleUpCPU, policy.ScaleUpMem = req.ScaleUpCPU, req.ScaleUpMem
	policy.ScaleDownCPU, policy.ScaleDownMem = req.ScaleDownCPU, req.ScaleDownMem
	policy.MinReplicas, policy.MaxReplicas = req.MinReplicas, req.MaxReplicas
	policy.CooldownSeconds, policy.EvaluationSeconds = req.CooldownSeconds, req.EvaluationSeconds
	policy.Enabled = req.Enabled

	if err := h.store.UpdatePolicy(ctx, policy); err != nil {
		writeError(ctx, w, "autoscaling.update", err)
		return
	}
	writeJSON(w, http.StatusOK, policy)
}

// policyForCaller fetches the policy and its container, rejecting access
// unless the caller owns the container, mirroring updatePolicy's check.
func (h *autoscalingHandlers) policyForCaller(ctx context.Context, op string, id uuid.UUID) (*store.ScalingPolicy, error) {
	user, err := identity.GetUserContext(ctx)
	if err != nil {
		return nil, apperr.NotAuthorized(op, "authentication required")
	}
	policy, err := h.store.GetPolicy(ctx, id)
	if err != nil {
		return nil, err
	}
	c, err := h.store.GetContainer(ctx, policy.ContainerID)
	if err != nil || c.Owner != user.Email {
		return nil, apperr.NotAuthorized(op, "not your policy")
	}
	return policy, nil
}

func (h *autoscalingHandlers) deletePolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(ctx, w, "autoscaling.delete", apperr.InvalidInput("autoscaling.delete", "invalid policy id"))
		return
	}
	if _, err := h.policyForCaller(ctx, "autoscaling.delete", id); err != nil {
		writeError(ctx, w, "autoscaling.delete", err)
		return
	}
	if err := h.store.DeletePolicy(ctx, id); err != nil {
		writeError(ctx, w, "autoscaling.delete", err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (h *autoscalingHandlers) togglePolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(ctx, w, "autoscaling.toggle", apperr.InvalidInput("autoscaling.toggle", "invalid policy id"))
		return
	}
	policy, err := h.policyForCaller(ctx, "autoscaling.toggle", id)
	if err != nil {
		writeError(ctx, w, "autoscaling.toggle", err)
		return
	}
	policy.Enabled = !policy.Enabled
	if err := h.store.UpdatePolicy(ctx, policy); err != nil {
		writeError(ctx, w, "autoscaling.toggle", err)
		return
	}
	writeJSON(w, http.StatusOK, policy)
}

func (h *autoscalingHandlers) listEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, err := identity.GetUserContext(ctx)
	if err != nil {
		writeError(ctx, w, "autoscaling.events", apperr.NotAuthorized("autoscaling.events", "authentication required"))
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	events, err := h.store.ListEvents(ctx, user.Email, limit)
	if err != nil {
		writeError(ctx, w, "autoscaling.events", err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *autoscalingHandlers) evaluateNow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, err := identity.GetUserContext(ctx)
	if err != nil {
		writeError(ctx, w, "autoscaling.evaluate_now", apperr.NotAuthorized("autoscaling.evaluate_now", "authentication required"))
		return
	}
	if err := h.engine.EvaluateNow(ctx, user.Email); err != nil {
		writeError(ctx, w, "autoscaling.evaluate_now", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "evaluated"})
}
