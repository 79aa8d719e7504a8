package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"classroomd/internal/apperr"
	"classroomd/internal/docker"
	"classroomd/internal/enum"
	"classroomd/internal/identity"
	"classroomd/internal/store"
)

type containerHandlers struct {
	store  store.Store
	driver *docker.Client
}

type deployRequest struct {
	Name               string            `json:"name"`
	DeploymentType     string            `json:"deployment_type"`
	Image              string            `json:"image"`
	CPULimitMillicores int               `json:"cpu_limit_millicores"`
	MemoryLimitMB      int               `json:"memory_limit_mb"`
	Env                map[string]string `json:"env"`
}

func (h *containerHandlers) deploy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, err := identity.GetUserContext(ctx)
	if err != nil {
		writeError(ctx, w, "containers.deploy", apperr.NotAuthorized("containers.deploy", "authentication required"))
		return
	}

	var req deployRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(ctx, w, "containers.deploy", err)
		return
	}
	if req.Name == "" || req.Image == "" {
		writeError(ctx, w, "containers.deploy", apperr.InvalidInput("containers.deploy", "name and image are required"))
		return
	}
	if req.CPULimitMillicores <= 0 {
		req.CPULimitMillicores = 500
	}
	if req.MemoryLimitMB <= 0 {
		req.MemoryLimitMB = 256
	}

	port, err := h.store.NextFreePort(ctx, 3000)
	if err != nil {
		writeError(ctx, w, "containers.deploy", err)
		return
	}

	image := req.Image
	c := &store.Container{
		ID:                 uuid.New(),
		Owner:              user.Email,
		Name:               req.Name,
		Image:              &image,
		Status:             enum.ContainerPending,
		Port:               &port,
		CPULimitMillicores: req.CPULimitMillicores,
		MemoryLimitMB:      req.MemoryLimitMB,
		Env:                req.Env,
		DeploymentType:     enum.DeploymentType(req.DeploymentType),
		Kind:               enum.ContainerKindPrimary,
	}
	if c.DeploymentType == "" {
		c.DeploymentType = enum.DeploymentSimulated
	}

	// c.Port points at port, so a re-picked port is used on the next try.
	for attempt := 1; ; attempt++ {
		err = h.store.CreateContainer(ctx, c)
		if err == nil || apperr.KindOf(err) != apperr.KindConflict || attempt == 3 {
			break
		}
		// Another deploy may have taken the port first; pick the next free one.
		if port, err = h.store.NextFreePort(ctx, 3000); err != nil {
			break
		}
	}
	if err != nil {
		writeError(ctx, w, "containers.deploy", err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *containerHandlers) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, err := identity.GetUserContext(ctx)
	if err != nil {
		writeError(ctx, w, "containers.list", apperr.NotAuthorized("containers.list", "authentication required"))
		return
	}

	containers, err := h.store.ListContainers(ctx, user.Email, user.IsTeacher())
	if err != nil {
		writeError(ctx, w, "containers.list", err)
		return
	}
	writeJSON(w, http.StatusOK, containers)
}

func (h *containerHandlers) transition(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		user, err := identity.GetUserContext(ctx)
		if err != nil {
			writeError(ctx, w, "containers."+action, apperr.NotAuthorized("containers."+action, "authentication required"))
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(ctx, w, "containers."+action, apperr.InvalidInput("containers."+action, "invalid container id"))
			return
		}

		c, err := h.store.GetContainer(ctx, id)
		if err != nil {
			writeError(ctx, w, "containers."+action, err)
			return
		}
		if c.Owner != user.Email && !user.IsTeacher() {
			writeError(ctx, w, "containers."+action, apperr.NotAuthorized("containers."+action, "not your container"))
			return
		}

		if action == "start" {
			err = h.start(ctx, c)
		} else {
			err = h.stop(ctx, c)
		}
		if err != nil {
			writeError(ctx, w, "containers."+action, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

func (h *containerHandlers) start(ctx context.Context, c *store.Container) error {
	if c.DeploymentType != enum.DeploymentSimulated {
		if h.driver == nil {
			return apperr.DriverUnavailable("containers.start", "container driver is not configured", nil)
		}
		handle, err := h.driver.Run(ctx, docker.RunSpec{
			Owner: c.Owner, Name: c.Name, Image: *c.Image,
			HostPort: *c.Port, GuestPort: *c.Port,
			CPUCores: float64(c.CPULimitMillicores) / 1000.0, MemoryMB: c.MemoryLimitMB,
			Env: c.Env, RestartPolicy: "unless-stopped",
		})
		if err != nil {
			return apperr.DriverFailure("containers.start", "failed to start container", err)
		}
		c.EngineHandle = &handle
	}
	c.Status = enum.ContainerRunning
	now := nowPtr()
	c.StartedAt = now
	return h.store.UpdateContainer(ctx, c)
}

func (h *containerHandlers) stop(ctx context.Context, c *store.Container) error {
	if c.EngineHandle != nil {
		if err := h.driver.Stop(ctx, *c.EngineHandle); err != nil {
			return apperr.DriverFailure("containers.stop", "failed to stop container", err)
		}
	}
	c.Status = enum.ContainerStopped
	c.StoppedAt = nowPtr()
	return h.store.UpdateContainer(ctx, c)
}

func (h *containerHandlers) delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, err := identity.GetUserContext(ctx)
	if err != nil {
		writeError(ctx, w, "containers.delete", apperr.NotAuthorized("containers.delete", "authentication required"))
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(ctx, w, "containers.delete", apperr.InvalidInput("containers.delete", "invalid container id"))
		return
	}

	c, err := h.store.GetContainer(ctx, id)
	if err != nil {
		writeError(ctx, w, "containers.delete", err)
		return
	}
	if c.Owner != user.Email && !user.IsTeacher() {
		writeError(ctx, w, "containers.delete", apperr.NotAuthorized("containers.delete", "not your container"))
		return
	}

	if c.EngineHandle != nil {
		_ = h.driver.Remove(ctx, *c.EngineHandle)
	}
	if err := h.store.DeleteContainer(ctx, id); err != nil {
		writeError(ctx, w, "containers.delete", err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
