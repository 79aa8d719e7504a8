package httpapi

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"classroomd/internal/identity"
	"classroomd/internal/store"
)

type monitoringHandlers struct {
	store store.Store
}

type containerSnapshot struct {
	ContainerID string  `json:"container_id"`
	Name        string  `json:"name"`
	CPUPercent  float64 `json:"cpu_percent"`
	MemoryGB    float64 `json:"memory_gb"`
}

// overview aggregates per-owner CPU/memory plus per-container snapshots
// from the most recent ResourceUsage row of each of the caller's
// containers (spec.md §6 "/monitoring/overview").
func (h *monitoringHandlers) overview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, err := identity.GetUserContext(ctx)
	if err != nil {
		writeError(ctx, w, "monitoring.overview", err)
		return
	}

	containers, err := h.store.ListContainers(ctx, user.Email, user.IsTeacher())
	if err != nil {
		writeError(ctx, w, "monitoring.overview", err)
		return
	}

	var totalCPU, totalMem float64
	snapshots := make([]containerSnapshot, 0, len(containers))
	for _, c := range containers {
		samples, err := h.store.ListUsage(ctx, c.ID, time.Time{}, time.Now())
		if err != nil || len(samples) == 0 {
			snapshots = append(snapshots, containerSnapshot{ContainerID: c.ID.String(), Name: c.Name})
			continue
		}
		latest := samples[len(samples)-1]
		totalCPU += latest.CPUPercent
		totalMem += latest.MemoryGB
		snapshots = append(snapshots, containerSnapshot{
			ContainerID: c.ID.String(), Name: c.Name,
			CPUPercent: latest.CPUPercent, MemoryGB: latest.MemoryGB,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_cpu_percent": totalCPU,
		"total_memory_gb":   totalMem,
		"containers":        snapshots,
	})
}

// metrics refreshes the prometheus GaugeVecs from the latest usage
// sample per running container, then delegates to promhttp for the
// text-format scrape (spec.md §6 "/monitoring/metrics").
func (h *monitoringHandlers) metrics(registry *prometheus.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		containers, err := h.store.ListRunningContainersWithHandle(ctx)
		if err == nil {
			for _, c := range containers {
				samples, err := h.store.ListUsage(ctx, c.ID, time.Time{}, time.Now())
				if err != nil || len(samples) == 0 {
					continue
				}
				latest := samples[len(samples)-1]
				labels := map[string]string{
					"container_id": c.ID.String(), "container_name": c.Name, "user_id": c.Owner,
				}
				cpuUsagePercent.With(labels).Set(latest.CPUPercent)
				memoryUsageBytes.With(labels).Set(latest.MemoryMB * 1024 * 1024)
				memoryLimitBytes.With(labels).Set(float64(c.MemoryLimitMB) * 1024 * 1024)
				networkRxBytes.With(labels).Set(float64(latest.NetworkRxBytes))
				networkTxBytes.With(labels).Set(float64(latest.NetworkTxBytes))
			}
		}
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	}
}
