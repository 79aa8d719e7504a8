// Package store defines the persistence port the core subsystems depend
// on (§6 "persistence store... external collaborator") plus the entity
// types mirrored from SPEC_FULL.md §3. Two implementations exist:
// sqlstore (Postgres via sqlx, for production) and memstore (in-process,
// for tests and for running the teaching sandbox without a database).
package store

import (
	"time"

	"github.com/google/uuid"

	"classroomd/internal/enum"
)

// User owns containers, policies, and load tests.
type User struct {
	ID           uuid.UUID `db:"id"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	Role         enum.Role `db:"role"`
	Verified     bool      `db:"verified"`
}

// Container is a user-owned container, either a primary deployment or an
// autoscaler-spawned replica of one.
type Container struct {
	ID                 uuid.UUID             `db:"id"`
	Owner              string                `db:"owner"`
	Name               string                `db:"name"`
	Image              *string               `db:"image"`
	Status             enum.ContainerStatus  `db:"status"`
	Port               *int                  `db:"port"`
	CPULimitMillicores int                   `db:"cpu_limit_millicores"`
	MemoryLimitMB      int                   `db:"memory_limit_mb"`
	Env                map[string]string     `db:"-"`
	DeploymentType     enum.DeploymentType   `db:"deployment_type"`
	EngineHandle       *string               `db:"engine_handle"`
	Kind               enum.ContainerKind    `db:"kind"`
	ParentID           *uuid.UUID            `db:"parent_id"`
	CreatedAt          time.Time             `db:"created_at"`
	StartedAt          *time.Time            `db:"started_at"`
	StoppedAt          *time.Time            `db:"stopped_at"`
}

// IsReplica reports whether this container is an autoscaler-spawned replica.
func (c *Container) IsReplica() bool { return c.Kind == enum.ContainerKindReplica }

// ScalingPolicy is the single scaling policy attached to a container.
type ScalingPolicy struct {
	ID                uuid.UUID  `db:"id"`
	ContainerID       uuid.UUID  `db:"container_id"`
	ScaleUpCPU        float64    `db:"scale_up_cpu"`
	ScaleUpMem        float64    `db:"scale_up_mem"`
	ScaleDownCPU      float64    `db:"scale_down_cpu"`
	ScaleDownMem      float64    `db:"scale_down_mem"`
	MinReplicas       int        `db:"min_replicas"`
	MaxReplicas       int        `db:"max_replicas"`
	CooldownSeconds   int        `db:"cooldown_seconds"`
	EvaluationSeconds int        `db:"evaluation_seconds"`
	Enabled           bool       `db:"enabled"`
	LastScaledAt      *time.Time `db:"last_scaled_at"`
}

// ScalingEvent is one append-only audit row for a policy decision.
type ScalingEvent struct {
	ID             uuid.UUID          `db:"id"`
	PolicyID       uuid.UUID          `db:"policy_id"`
	ContainerID    uuid.UUID          `db:"container_id"`
	Action         enum.ScalingAction `db:"action"`
	TriggerMetric  enum.ScalingTrigger `db:"trigger_metric"`
	MetricValue    float64            `db:"metric_value"`
	ReplicasBefore int                `db:"replicas_before"`
	ReplicasAfter  int                `db:"replicas_after"`
	CreatedAt      time.Time          `db:"created_at"`
}

// LoadTest is one load-test run against a container.
type LoadTest struct {
	ID              uuid.UUID            `db:"id"`
	Owner           string               `db:"owner"`
	ContainerID     uuid.UUID            `db:"container_id"`
	TargetURL       string               `db:"target_url"`
	TotalRequests   int                  `db:"total_requests"`
	Concurrency     int                  `db:"concurrency"`
	DurationSeconds int                  `db:"duration_seconds"`
	Status          enum.LoadTestStatus  `db:"status"`
	ErrorMessage    string               `db:"error_message"`
	RequestsSent    int                  `db:"requests_sent"`
	RequestsDone    int                  `db:"requests_completed"`
	RequestsFailed  int                  `db:"requests_failed"`
	AvgResponseMS   float64              `db:"avg_response_ms"`
	MinResponseMS   float64              `db:"min_response_ms"`
	MaxResponseMS   float64              `db:"max_response_ms"`
	PeakCPU         float64              `db:"peak_cpu"`
	PeakMemory      float64              `db:"peak_memory"`
	CreatedAt       time.Time            `db:"created_at"`
	StartedAt       *time.Time           `db:"started_at"`
	CompletedAt     *time.Time           `db:"completed_at"`
}

// LoadTestMetric is one 2s progress snapshot of a running LoadTest.
type LoadTestMetric struct {
	ID             uuid.UUID `db:"id"`
	TestID         uuid.UUID `db:"test_id"`
	Timestamp      time.Time `db:"timestamp"`
	CPUPercent     float64   `db:"cpu_percent"`
	MemoryMB       float64   `db:"memory_mb"`
	Completed      int       `db:"completed"`
	Failed         int       `db:"failed"`
	ActiveRequests int       `db:"active_requests"`
}

// ResourceUsage is one time-series sample for a container.
type ResourceUsage struct {
	ID             uuid.UUID `db:"id"`
	ContainerID    uuid.UUID `db:"container_id"`
	Timestamp      time.Time `db:"timestamp"`
	CPUPercent     float64   `db:"cpu_percent"`
	CPUCoresUsed   float64   `db:"cpu_cores_used"`
	MemoryMB       float64   `db:"memory_mb"`
	MemoryGB       float64   `db:"memory_gb"`
	StorageGB      float64   `db:"storage_gb"`
	NetworkRxBytes int64     `db:"net_rx_bytes"`
	NetworkTxBytes int64     `db:"net_tx_bytes"`
}

// PricingModel is one provider's hourly/monthly rate table.
type PricingModel struct {
	Provider          enum.Provider `db:"provider"`
	CPUPerHour        float64       `db:"cpu_per_hour"`
	MemoryPerGBHour   float64       `db:"memory_per_gb_hour"`
	StoragePerGBMonth float64       `db:"storage_per_gb_month"`
	SSDPerGBMonth     *float64      `db:"ssd_per_gb_month"`
	HDDPerGBMonth     *float64      `db:"hdd_per_gb_month"`
}

// BillingSnapshot is a precomputed cost breakdown for a container over a window.
type BillingSnapshot struct {
	ContainerID uuid.UUID     `db:"container_id"`
	Provider    enum.Provider `db:"provider"`
	WindowStart time.Time     `db:"window_start"`
	WindowEnd   time.Time     `db:"window_end"`
	CPUCost     float64       `db:"cpu_cost"`
	MemoryCost  float64       `db:"memory_cost"`
	StorageCost float64       `db:"storage_cost"`
	TotalCost   float64       `db:"total_cost"`
}
