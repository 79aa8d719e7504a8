package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"classroomd/internal/apperr"
	"classroomd/internal/billing"
	"classroomd/internal/enum"
	"classroomd/internal/identity"
	"classroomd/internal/store"
)

type billingHandlers struct {
	store  store.Store
	engine *billing.Engine
}

// requireContainerOwner fetches the container and rejects access unless
// the caller owns it, mirroring containers.go's ownership check.
func (h *billingHandlers) requireContainerOwner(ctx context.Context, op string, containerID uuid.UUID) error {
	user, err := identity.GetUserContext(ctx)
	if err != nil {
		return apperr.NotAuthorized(op, "authentication required")
	}
	c, err := h.store.GetContainer(ctx, containerID)
	if err != nil {
		return err
	}
	if c.Owner != user.Email && !user.IsTeacher() {
		return apperr.NotAuthorized(op, "not your container")
	}
	return nil
}

func (h *billingHandlers) pricingModels(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	models, err := h.store.ListPricingModels(ctx)
	if err != nil {
		writeError(ctx, w, "billing.pricing_models", err)
		return
	}
	writeJSON(w, http.StatusOK, models)
}

type realTimeRequest struct {
	ContainerID uuid.UUID     `json:"container_id"`
	HoursBack   float64       `json:"hours_back"`
	Provider    enum.Provider `json:"provider"`
}

func (h *billingHandlers) realTimeCalculate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req realTimeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(ctx, w, "billing.real_time", err)
		return
	}
	if req.HoursBack <= 0 {
		req.HoursBack = 1
	}
	if err := h.requireContainerOwner(ctx, "billing.real_time", req.ContainerID); err != nil {
		writeError(ctx, w, "billing.real_time", err)
		return
	}

	result, err := h.engine.RealTimeBilling(ctx, req.ContainerID, req.HoursBack, req.Provider)
	if err != nil {
		writeError(ctx, w, "billing.real_time", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type simulateRequest struct {
	CPUCores        float64       `json:"cpu_cores"`
	MemoryGB        float64       `json:"memory_gb"`
	StorageGB       float64       `json:"storage_gb"`
	DurationHours   float64       `json:"duration_hours"`
	Provider        enum.Provider `json:"provider"`
}

func (h *billingHandlers) simulate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req simulateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(ctx, w, "billing.simulate", err)
		return
	}
	if req.DurationHours <= 0 {
		writeError(ctx, w, "billing.simulate", apperr.InvalidInput("billing.simulate", "duration_hours must be positive"))
		return
	}

	result, err := h.engine.Simulate(ctx, req.CPUCores, req.MemoryGB, req.StorageGB, req.DurationHours, req.Provider)
	if err != nil {
		writeError(ctx, w, "billing.simulate", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *billingHandlers) usageHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(ctx, w, "billing.usage_history", apperr.InvalidInput("billing.usage_history", "invalid container id"))
		return
	}
	if err := h.requireContainerOwner(ctx, "billing.usage_history", id); err != nil {
		writeError(ctx, w, "billing.usage_history", err)
		return
	}

	end := time.Now()
	start := end.Add(-24 * time.Hour)
	if v := r.URL.Query().Get("hours_back"); v != "" {
		if hours, perr := time.ParseDuration(v + "h"); perr == nil {
			start = end.Add(-hours)
		}
	}

	usage, err := h.store.ListUsage(ctx, id, start, end)
	if err != nil {
		writeError(ctx, w, "billing.usage_history", err)
		return
	}
	writeJSON(w, http.StatusOK, usage)
}
