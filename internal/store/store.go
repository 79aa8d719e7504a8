package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"classroomd/internal/enum"
)

// Store is the full persistence port the HTTP layer and engines depend
// on. Per SPEC_FULL.md §9 "Dynamic configuration," engines are
// constructed with an explicit Store value (no service locator).
//
// WithTx runs fn inside one ACID transaction; if fn returns an error the
// transaction rolls back and that error is returned unchanged. Nested
// calls to WithTx on the Tx passed to fn simply reuse the same
// transaction. This is how the autoscaler satisfies SPEC_FULL.md §4.1's
// "commit atomically; on any failure, roll back" requirement.
type Store interface {
	Users
	Containers
	Policies
	Events
	LoadTests
	LoadTestMetrics
	Usage
	Pricing

	WithTx(ctx context.Context, fn func(Store) error) error
	Close() error
}

type Users interface {
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	// CreateUser is used only by the /auth/* register stub (SPEC_FULL.md
	// §6) — identity issuance is otherwise treated as an external
	// collaborator.
	CreateUser(ctx context.Context, u *User) error
}

type Containers interface {
	CreateContainer(ctx context.Context, c *Container) error
	GetContainer(ctx context.Context, id uuid.UUID) (*Container, error)
	ListContainers(ctx context.Context, owner string, allOwners bool) ([]*Container, error)
	ListReplicas(ctx context.Context, parentID uuid.UUID) ([]*Container, error)
	UpdateContainer(ctx context.Context, c *Container) error
	DeleteContainer(ctx context.Context, id uuid.UUID) error
	// NextFreePort returns the lowest free port >= floor not already
	// assigned to any container. Callers must retry CreateContainer on a
	// Conflict error (unique index loses the race) per SPEC_FULL.md §5.
	NextFreePort(ctx context.Context, floor int) (int, error)
}

type Policies interface {
	CreatePolicy(ctx context.Context, p *ScalingPolicy) error
	GetPolicy(ctx context.Context, id uuid.UUID) (*ScalingPolicy, error)
	GetPolicyByContainer(ctx context.Context, containerID uuid.UUID) (*ScalingPolicy, error)
	ListEnabledPolicies(ctx context.Context) ([]*ScalingPolicy, error)
	ListPoliciesByOwner(ctx context.Context, owner string) ([]*ScalingPolicy, error)
	UpdatePolicy(ctx context.Context, p *ScalingPolicy) error
	DeletePolicy(ctx context.Context, id uuid.UUID) error
}

type Events interface {
	CreateEvent(ctx context.Context, e *ScalingEvent) error
	ListEvents(ctx context.Context, owner string, limit int) ([]*ScalingEvent, error)
}

type LoadTests interface {
	CreateLoadTest(ctx context.Context, t *LoadTest) error
	GetLoadTest(ctx context.Context, id uuid.UUID) (*LoadTest, error)
	UpdateLoadTest(ctx context.Context, t *LoadTest) error
	ListLoadTests(ctx context.Context, owner string, containerID *uuid.UUID, page, pageSize int) ([]*LoadTest, int, error)
}

type LoadTestMetrics interface {
	CreateLoadTestMetric(ctx context.Context, m *LoadTestMetric) error
	ListLoadTestMetrics(ctx context.Context, testID uuid.UUID) ([]*LoadTestMetric, error)
}

type Usage interface {
	RecordUsage(ctx context.Context, u *ResourceUsage) error
	ListUsage(ctx context.Context, containerID uuid.UUID, start, end time.Time) ([]*ResourceUsage, error)
	ListRunningContainersWithHandle(ctx context.Context) ([]*Container, error)
}

type Pricing interface {
	GetPricingModel(ctx context.Context, provider enum.Provider) (*PricingModel, error)
	ListPricingModels(ctx context.Context) ([]*PricingModel, error)
	// UpsertPricingModel is idempotent by provider key, used by the
	// billing engine's startup seeding (SPEC_FULL.md §4.3).
	UpsertPricingModel(ctx context.Context, p *PricingModel) error
}
