// Package autoscaler evaluates every enabled scaling policy on a fixed
// tick, synthesizing metrics for simulated containers and deferring
// driver-level replica provisioning to an adapter (SPEC_FULL.md §4.1).
package autoscaler

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"classroomd/internal/enum"
	"classroomd/internal/logger"
	"classroomd/internal/store"
)

// MetricSampler reports a container's current resource utilization.
// Real containers are sampled through the driver (SPEC_FULL.md §4.4);
// simulated containers use randomSample below.
type MetricSampler interface {
	// Sample returns cpu and mem as percentages in [0,100].
	Sample(ctx context.Context, c *store.Container) (cpuPct, memPct float64, err error)
}

// driverSampler samples a real container's stats through its engine handle.
type driverSampler interface {
	Sample(ctx context.Context, engineHandle string) (cpuPct, memPct float64, err error)
}

// Engine owns the 30s policy-evaluation tick described in SPEC_FULL.md
// §4.1, grounded on volaticloud/internal/monitor.BotMonitor's
// ticker/stopChan/doneChan loop shape (its Coordinator, which exists only
// to split work across multiple control-plane instances, has no
// SPEC_FULL component: this system is single-process, see DESIGN.md).
type Engine struct {
	store    store.Store
	driver   driverSampler
	interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

func New(st store.Store, driver driverSampler, interval time.Duration) *Engine {
	return &Engine{
		store:    st,
		driver:   driver,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the tick loop. The caller's ctx governs cancellation;
// Stop additionally allows the owning Scheduler to halt this engine
// independently of the other background tasks.
func (e *Engine) Start(ctx context.Context) {
	go e.loop(ctx)
}

// Stop signals the loop to exit and waits for it to finish the tick it
// may be mid-way through.
func (e *Engine) Stop() {
	close(e.stopCh)
	<-e.doneCh
}

func (e *Engine) loop(ctx context.Context) {
	defer close(e.doneCh)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// Tick evaluates every enabled policy exactly once. Ticks never overlap:
// only the loop goroutine invokes Tick, serially. The manual trigger goes
// through EvaluateNow, which is not serialized with Tick.
func (e *Engine) Tick(ctx context.Context) {
	lctx := logger.WithComponent(ctx, "autoscaler")
	log := logger.GetLogger(lctx)

	policies, err := e.store.ListEnabledPolicies(ctx)
	if err != nil {
		log.Error("listing enabled policies failed", zap.Error(err))
		return
	}

	for _, policy := range policies {
		if err := e.evaluatePolicy(ctx, policy); err != nil {
			log.Warn("policy evaluation failed",
				zap.String("policy_id", policy.ID.String()), zap.Error(err))
		}
	}
}

// EvaluateNow runs one evaluation pass over every enabled policy owned by
// owner, for the manual-trigger teaching aid (SPEC_FULL.md §4.1).
func (e *Engine) EvaluateNow(ctx context.Context, owner string) error {
	policies, err := e.store.ListPoliciesByOwner(ctx, owner)
	if err != nil {
		return err
	}
	var faults *multierror.Error
	for _, policy := range policies {
		if !policy.Enabled {
			continue
		}
		if err := e.evaluatePolicy(ctx, policy); err != nil {
			faults = multierror.Append(faults, fmt.Errorf("policy %s: %w", policy.ID, err))
		}
	}
	return faults.ErrorOrNil()
}

func (e *Engine) evaluatePolicy(ctx context.Context, policy *store.ScalingPolicy) error {
	container, err := e.store.GetContainer(ctx, policy.ContainerID)
	if err != nil {
		return err
	}

	cpuPct, memPct, err := e.sample(ctx, container)
	if err != nil {
		return err
	}

	replicas, err := e.store.ListReplicas(ctx, container.ID)
	if err != nil {
		return err
	}
	currentReplicas := countRunning(container, replicas)

	decision := decide(policy, currentReplicas, cpuPct, memPct)
	if decision.action == "" {
		return nil
	}

	return e.store.WithTx(ctx, func(tx store.Store) error {
		return e.commit(ctx, tx, policy, container, replicas, decision)
	})
}

func (e *Engine) sample(ctx context.Context, c *store.Container) (cpuPct, memPct float64, err error) {
	if c.DeploymentType == enum.DeploymentSimulated || c.EngineHandle == nil {
		return randomSample()
	}
	return e.driver.Sample(ctx, *c.EngineHandle)
}

// randomSample synthesizes cpu% ∈ [3,15] and mem% ∈ [10,30], uniform, for
// simulated containers (SPEC_FULL.md §4.1 "pedagogical demos").
func randomSample() (cpuPct, memPct float64, err error) {
	cpuPct = 3 + rand.Float64()*(15-3)
	memPct = 10 + rand.Float64()*(30-10)
	return cpuPct, memPct, nil
}

func countRunning(parent *store.Container, replicas []*store.Container) int {
	n := 0
	if parent.Status == enum.ContainerRunning {
		n++
	}
	for _, r := range replicas {
		if r.Status == enum.ContainerRunning {
			n++
		}
	}
	return n
}

type decision struct {
	action  enum.ScalingAction
	trigger enum.ScalingTrigger
	value   float64
}

// decide implements the ordered scale_up / scale_down / no-op rule from
// SPEC_FULL.md §4.1, with cpu winning ties on the scale_up trigger.
func decide(policy *store.ScalingPolicy, replicas int, cpuPct, memPct float64) decision {
	if !policy.Enabled || !cooldownElapsed(policy) {
		return decision{}
	}

	if replicas < policy.MaxReplicas && (cpuPct >= policy.ScaleUpCPU || memPct >= policy.ScaleUpMem) {
		if cpuPct >= policy.ScaleUpCPU {
			return decision{action: enum.ScalingActionUp, trigger: enum.TriggerCPU, value: cpuPct}
		}
		return decision{action: enum.ScalingActionUp, trigger: enum.TriggerMemory, value: memPct}
	}

	if replicas > policy.MinReplicas && cpuPct < policy.ScaleDownCPU && memPct < policy.ScaleDownMem {
		return decision{action: enum.ScalingActionDown, trigger: enum.TriggerBothLow, value: cpuPct}
	}

	return decision{}
}

func cooldownElapsed(policy *store.ScalingPolicy) bool {
	if policy.LastScaledAt == nil {
		return true
	}
	return time.Since(*policy.LastScaledAt) >= time.Duration(policy.CooldownSeconds)*time.Second
}

// commit applies the decided action, records the event, and advances
// last_scaled_at — all inside the caller's transaction, so a failure at
// any step rolls the whole commit back (SPEC_FULL.md §4.1 step 6).
func (e *Engine) commit(ctx context.Context, tx store.Store, policy *store.ScalingPolicy, parent *store.Container, replicas []*store.Container, d decision) error {
	before := countRunning(parent, replicas)
	after := before

	switch d.action {
	case enum.ScalingActionUp:
		n := len(replicas) + 1
		port := 0
		if parent.Port != nil {
			port = *parent.Port + n
		}
		replica := &store.Container{
			ID:             uuid.New(),
			Owner:          parent.Owner,
			Name:           fmt.Sprintf("%s-replica-%d", parent.Name, n),
			Image:          parent.Image,
			Status:         enum.ContainerPending,
			Port:           intPtr(port),
			CPULimitMillicores: parent.CPULimitMillicores,
			MemoryLimitMB:  parent.MemoryLimitMB,
			DeploymentType: parent.DeploymentType,
			Kind:           enum.ContainerKindReplica,
			ParentID:       &parent.ID,
			CreatedAt:      time.Now(),
		}
		if err := tx.CreateContainer(ctx, replica); err != nil {
			return err
		}
		after = before + 1

	case enum.ScalingActionDown:
		target := newestRunningReplica(replicas)
		if target == nil {
			return nil // nothing to scale down, treat as no-op rather than fault
		}
		target.Status = enum.ContainerStopped
		now := time.Now()
		target.StoppedAt = &now
		if err := tx.UpdateContainer(ctx, target); err != nil {
			return err
		}
		after = before - 1
	}

	event := &store.ScalingEvent{
		ID:             uuid.New(),
		PolicyID:       policy.ID,
		ContainerID:    parent.ID,
		Action:         d.action,
		TriggerMetric:  d.trigger,
		MetricValue:    d.value,
		ReplicasBefore: before,
		ReplicasAfter:  after,
		CreatedAt:      time.Now(),
	}
	if err := tx.CreateEvent(ctx, event); err != nil {
		return err
	}

	now := time.Now()
	policy.LastScaledAt = &now
	return tx.UpdatePolicy(ctx, policy)
}

// newestRunningReplica picks the most recently created running replica,
// resolving SPEC_FULL.md §9's downscale-selection open question.
func newestRunningReplica(replicas []*store.Container) *store.Container {
	var candidates []*store.Container
	for _, r := range replicas {
		if r.Status == enum.ContainerRunning {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})
	return candidates[0]
}

func intPtr(i int) *int { return &i }
