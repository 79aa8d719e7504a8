package httpapi

import "github.com/prometheus/client_golang/prometheus"

// Per-container gauges exported at /monitoring/metrics, refreshed from
// the latest ResourceUsage row per running container on each scrape.
var (
	cpuUsagePercent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "classroomd",
			Name:      "cpu_usage_percent",
			Help:      "Most recently sampled CPU utilization percentage.",
		},
		[]string{"container_id", "container_name", "user_id"},
	)

	memoryUsageBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "classroomd",
			Name:      "memory_usage_bytes",
			Help:      "Most recently sampled memory usage in bytes.",
		},
		[]string{"container_id", "container_name", "user_id"},
	)

	memoryLimitBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "classroomd",
			Name:      "memory_limit_bytes",
			Help:      "Configured memory limit in bytes.",
		},
		[]string{"container_id", "container_name", "user_id"},
	)

	networkRxBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "classroomd",
			Name:      "network_rx_bytes",
			Help:      "Most recently sampled cumulative received network bytes.",
		},
		[]string{"container_id", "container_name", "user_id"},
	)

	networkTxBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "classroomd",
			Name:      "network_tx_bytes",
			Help:      "Most recently sampled cumulative transmitted network bytes.",
		},
		[]string{"container_id", "container_name", "user_id"},
	)
)

// metricsCollectors returns every collector this package registers, for
// a caller-owned prometheus.Registry.
func metricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{cpuUsagePercent, memoryUsageBytes, memoryLimitBytes, networkRxBytes, networkTxBytes}
}
