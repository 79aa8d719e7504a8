package autoscaler

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classroomd/internal/enum"
	"classroomd/internal/store"
	"classroomd/internal/store/memstore"
)

func seedSimulatedContainer(t *testing.T, st *memstore.Store, cpuUp, memUp float64) (*store.Container, *store.ScalingPolicy) {
	t.Helper()
	port := 9000
	c := &store.Container{
		ID:             uuid.New(),
		Owner:          "alice",
		Name:           "web",
		Status:         enum.ContainerRunning,
		Port:           &port,
		DeploymentType: enum.DeploymentSimulated,
		Kind:           enum.ContainerKindPrimary,
	}
	require.NoError(t, st.CreateContainer(context.Background(), c))

	p := &store.ScalingPolicy{
		ID:                uuid.New(),
		ContainerID:       c.ID,
		ScaleUpCPU:        cpuUp,
		ScaleUpMem:        memUp,
		ScaleDownCPU:      1, // effectively never trips in this test
		ScaleDownMem:      1,
		MinReplicas:       1,
		MaxReplicas:       5,
		CooldownSeconds:   60,
		EvaluationSeconds: 30,
		Enabled:           true,
	}
	require.NoError(t, st.CreatePolicy(context.Background(), p))
	return c, p
}

// TestEvaluatePolicyAlwaysScalesUpAtZeroThreshold forces a scale_up by
// setting thresholds below the simulated metric floor (cpu>=3, mem>=10),
// then checks a replica, an event, and last_scaled_at all landed together.
func TestEvaluatePolicyAlwaysScalesUpAtZeroThreshold(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	container, policy := seedSimulatedContainer(t, st, 0, 0)

	engine := New(st, nil, 0)
	require.NoError(t, engine.evaluatePolicy(ctx, policy))

	replicas, err := st.ListReplicas(ctx, container.ID)
	require.NoError(t, err)
	require.Len(t, replicas, 1)
	assert.Equal(t, enum.ContainerKindReplica, replicas[0].Kind)
	assert.Equal(t, container.ID, *replicas[0].ParentID)
	assert.Equal(t, "web-replica-1", replicas[0].Name)

	events, err := st.ListEvents(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, enum.ScalingActionUp, events[0].Action)

	updated, err := st.GetPolicy(ctx, policy.ID)
	require.NoError(t, err)
	assert.NotNil(t, updated.LastScaledAt)
}

// TestEvaluatePolicyNoOpLeavesNoTrace ensures a tick that decides no-op
// creates neither a replica nor an event.
func TestEvaluatePolicyNoOpLeavesNoTrace(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	container, policy := seedSimulatedContainer(t, st, 99, 99)

	engine := New(st, nil, 0)
	require.NoError(t, engine.evaluatePolicy(ctx, policy))

	replicas, err := st.ListReplicas(ctx, container.ID)
	require.NoError(t, err)
	assert.Empty(t, replicas)

	events, err := st.ListEvents(ctx, "alice", 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

// TestEvaluatePolicyCooldownBlocksSecondScaleUp checks that a policy
// just scaled cannot scale again within its cooldown window.
func TestEvaluatePolicyCooldownBlocksSecondScaleUp(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	container, policy := seedSimulatedContainer(t, st, 0, 0)

	engine := New(st, nil, 0)
	require.NoError(t, engine.evaluatePolicy(ctx, policy))
	require.NoError(t, engine.evaluatePolicy(ctx, policy))

	replicas, err := st.ListReplicas(ctx, container.ID)
	require.NoError(t, err)
	assert.Len(t, replicas, 1, "second tick within cooldown must not scale again")
}
