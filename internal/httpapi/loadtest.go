package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"classroomd/internal/apperr"
	"classroomd/internal/identity"
	"classroomd/internal/loadtest"
	"classroomd/internal/store"
)

type loadtestHandlers struct {
	store  store.Store
	engine *loadtest.Engine
}

type startLoadTestRequest struct {
	ContainerID     uuid.UUID `json:"container_id"`
	TargetURL       string    `json:"target_url"`
	TotalRequests   int       `json:"total_requests"`
	Concurrency     int       `json:"concurrency"`
	DurationSeconds int       `json:"duration_seconds"`
}

func (h *loadtestHandlers) start(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, err := identity.GetUserContext(ctx)
	if err != nil {
		writeError(ctx, w, "loadtest.start", apperr.NotAuthorized("loadtest.start", "authentication required"))
		return
	}

	var req startLoadTestRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(ctx, w, "loadtest.start", err)
		return
	}

	container, err := h.store.GetContainer(ctx, req.ContainerID)
	if err != nil {
		writeError(ctx, w, "loadtest.start", err)
		return
	}
	if container.Owner != user.Email && !user.IsTeacher() {
		writeError(ctx, w, "loadtest.start", apperr.NotAuthorized("loadtest.start", "not your container"))
		return
	}

	lt, err := h.engine.Start(ctx, user.Email, req.ContainerID, req.TargetURL, req.TotalRequests, req.Concurrency, req.DurationSeconds)
	if err != nil {
		writeError(ctx, w, "loadtest.start", err)
		return
	}
	writeJSON(w, http.StatusCreated, lt)
}

// loadTestForCaller fetches the load test and rejects access unless the
// caller owns it or holds a teacher/admin role, mirroring containers.go's
// ownership check.
func (h *loadtestHandlers) loadTestForCaller(ctx context.Context, id uuid.UUID) (*store.LoadTest, error) {
	user, err := identity.GetUserContext(ctx)
	if err != nil {
		return nil, apperr.NotAuthorized("loadtest", "authentication required")
	}
	lt, err := h.store.GetLoadTest(ctx, id)
	if err != nil {
		return nil, err
	}
	if lt.Owner != user.Email && !user.IsTeacher() {
		return nil, apperr.NotAuthorized("loadtest", "not your load test")
	}
	return lt, nil
}

func (h *loadtestHandlers) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(ctx, w, "loadtest.get", apperr.InvalidInput("loadtest.get", "invalid load test id"))
		return
	}
	lt, err := h.loadTestForCaller(ctx, id)
	if err != nil {
		writeError(ctx, w, "loadtest.get", err)
		return
	}

	progress := 0.0
	if lt.TotalRequests > 0 {
		progress = float64(lt.RequestsDone+lt.RequestsFailed) / float64(lt.TotalRequests) * 100
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"load_test":        lt,
		"progress_percent": progress,
	})
}

func (h *loadtestHandlers) cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(ctx, w, "loadtest.cancel", apperr.InvalidInput("loadtest.cancel", "invalid load test id"))
		return
	}
	lt, err := h.loadTestForCaller(ctx, id)
	if err != nil {
		writeError(ctx, w, "loadtest.cancel", err)
		return
	}
	if lt.Status.IsTerminal() {
		writeError(ctx, w, "loadtest.cancel", apperr.InvalidInput("loadtest.cancel", "load test is already in a terminal state"))
		return
	}
	h.engine.Cancel(id)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

func (h *loadtestHandlers) history(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, err := identity.GetUserContext(ctx)
	if err != nil {
		writeError(ctx, w, "loadtest.history", apperr.NotAuthorized("loadtest.history", "authentication required"))
		return
	}

	var containerID *uuid.UUID
	if v := r.URL.Query().Get("container_id"); v != "" {
		parsed, err := uuid.Parse(v)
		if err != nil {
			writeError(ctx, w, "loadtest.history", apperr.InvalidInput("loadtest.history", "invalid container_id"))
			return
		}
		containerID = &parsed
	}

	page := intQuery(r, "page", 1)
	pageSize := intQuery(r, "page_size", 20)

	// page is 1-based here; the store takes a 0-based page index.
	tests, total, err := h.store.ListLoadTests(ctx, user.Email, containerID, page-1, pageSize)
	if err != nil {
		writeError(ctx, w, "loadtest.history", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": tests, "total": total, "page": page, "page_size": pageSize,
	})
}

// stream implements GET /loadtest/{id}/metrics/stream as Server-Sent
// Events, reading from the running task's single in-process snapshot
// channel (spec.md §6 SSE framing). Concurrent streams of the same test
// share that channel, so each receives only part of the snapshots.
func (h *loadtestHandlers) stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(ctx, w, "loadtest.stream", apperr.InvalidInput("loadtest.stream", "invalid load test id"))
		return
	}
	if _, err := h.loadTestForCaller(ctx, id); err != nil {
		writeError(ctx, w, "loadtest.stream", err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(ctx, w, "loadtest.stream", apperr.Internal("loadtest.stream", fmt.Errorf("streaming unsupported")))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	snapshots := h.engine.Snapshots(id)
	if snapshots == nil {
		h.writeComplete(w, flusher, ctx, id)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snapshots:
			if !ok {
				h.writeComplete(w, flusher, ctx, id)
				return
			}
			data, _ := json.Marshal(snap)
			fmt.Fprintf(w, "event: metric\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}

func (h *loadtestHandlers) writeComplete(w http.ResponseWriter, flusher http.Flusher, ctx context.Context, id uuid.UUID) {
	lt, err := h.store.GetLoadTest(ctx, id)
	if err != nil {
		return
	}
	payload := map[string]interface{}{
		"status": lt.Status, "total_completed": lt.RequestsDone, "total_failed": lt.RequestsFailed,
	}
	data, _ := json.Marshal(payload)
	fmt.Fprintf(w, "event: complete\ndata: %s\n\n", data)
	flusher.Flush()
}

func intQuery(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
