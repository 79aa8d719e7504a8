package autoscaler

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"classroomd/internal/enum"
	"classroomd/internal/store"
)

func testPolicy() *store.ScalingPolicy {
	return &store.ScalingPolicy{
		ID:                uuid.New(),
		ScaleUpCPU:        70,
		ScaleUpMem:        80,
		ScaleDownCPU:      20,
		ScaleDownMem:      30,
		MinReplicas:       1,
		MaxReplicas:       5,
		CooldownSeconds:   60,
		EvaluationSeconds: 30,
		Enabled:           true,
	}
}

func TestDecideScaleUpOnCPU(t *testing.T) {
	p := testPolicy()
	d := decide(p, 2, 75, 10)
	assert.Equal(t, enum.ScalingActionUp, d.action)
	assert.Equal(t, enum.TriggerCPU, d.trigger)
}

func TestDecideScaleUpOnMemoryWhenCPULow(t *testing.T) {
	p := testPolicy()
	d := decide(p, 2, 10, 85)
	assert.Equal(t, enum.ScalingActionUp, d.action)
	assert.Equal(t, enum.TriggerMemory, d.trigger)
}

func TestDecideCPUWinsTieOnBothThresholdsTripped(t *testing.T) {
	p := testPolicy()
	d := decide(p, 2, 75, 85)
	assert.Equal(t, enum.TriggerCPU, d.trigger)
}

func TestDecideNoScaleUpAtMaxReplicas(t *testing.T) {
	p := testPolicy()
	d := decide(p, 5, 99, 99)
	assert.Empty(t, d.action)
}

func TestDecideScaleDownWhenBothLow(t *testing.T) {
	p := testPolicy()
	d := decide(p, 3, 5, 5)
	assert.Equal(t, enum.ScalingActionDown, d.action)
	assert.Equal(t, enum.TriggerBothLow, d.trigger)
}

func TestDecideNoScaleDownAtMinReplicas(t *testing.T) {
	p := testPolicy()
	d := decide(p, 1, 5, 5)
	assert.Empty(t, d.action)
}

func TestDecideNoScaleDownWhenOnlyOneMetricLow(t *testing.T) {
	p := testPolicy()
	d := decide(p, 3, 5, 50)
	assert.Empty(t, d.action)
}

func TestDecideRespectsCooldown(t *testing.T) {
	p := testPolicy()
	recent := time.Now().Add(-10 * time.Second)
	p.LastScaledAt = &recent
	d := decide(p, 2, 99, 99)
	assert.Empty(t, d.action, "cooldown of 60s should block a scale-up 10s after last_scaled_at")
}

func TestDecideAllowsAfterCooldownElapses(t *testing.T) {
	p := testPolicy()
	past := time.Now().Add(-120 * time.Second)
	p.LastScaledAt = &past
	d := decide(p, 2, 99, 99)
	assert.Equal(t, enum.ScalingActionUp, d.action)
}

func TestDecideNullLastScaledAlwaysPassesCooldown(t *testing.T) {
	p := testPolicy()
	p.LastScaledAt = nil
	assert.True(t, cooldownElapsed(p))
}

func TestDecideDisabledPolicyNeverActs(t *testing.T) {
	p := testPolicy()
	p.Enabled = false
	d := decide(p, 2, 99, 99)
	assert.Empty(t, d.action)
}

func TestNewestRunningReplicaPicksMostRecent(t *testing.T) {
	older := &store.Container{ID: uuid.New(), Status: enum.ContainerRunning, CreatedAt: time.Now().Add(-time.Hour)}
	newer := &store.Container{ID: uuid.New(), Status: enum.ContainerRunning, CreatedAt: time.Now()}
	stopped := &store.Container{ID: uuid.New(), Status: enum.ContainerStopped, CreatedAt: time.Now().Add(time.Hour)}

	got := newestRunningReplica([]*store.Container{older, newer, stopped})
	assert.Equal(t, newer.ID, got.ID)
}

func TestNewestRunningReplicaNilWhenNoneRunning(t *testing.T) {
	stopped := &store.Container{ID: uuid.New(), Status: enum.ContainerStopped}
	assert.Nil(t, newestRunningReplica([]*store.Container{stopped}))
}

func TestCountRunningIncludesParentAndReplicas(t *testing.T) {
	parent := &store.Container{Status: enum.ContainerRunning}
	replicas := []*store.Container{
		{Status: enum.ContainerRunning},
		{Status: enum.ContainerStopped},
	}
	assert.Equal(t, 2, countRunning(parent, replicas))
}
