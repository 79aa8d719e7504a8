package loadtest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classroomd/internal/enum"
	"classroomd/internal/store"
	"classroomd/internal/store/memstore"
)

func seedRunningContainer(t *testing.T, st *memstore.Store, port int) *store.Container {
	t.Helper()
	c := &store.Container{
		ID:             uuid.New(),
		Owner:          "bob",
		Name:           "target",
		Status:         enum.ContainerRunning,
		Port:           &port,
		DeploymentType: enum.DeploymentSimulated,
		Kind:           enum.ContainerKindPrimary,
	}
	require.NoError(t, st.CreateContainer(context.Background(), c))
	return c
}

func TestEngineStartRejectsNonRunningContainer(t *testing.T) {
	st := memstore.New()
	port := 9000
	c := &store.Container{
		ID: uuid.New(), Owner: "bob", Name: "stopped", Status: enum.ContainerStopped, Port: &port,
	}
	require.NoError(t, st.CreateContainer(context.Background(), c))

	engine := New(st, nil)
	_, err := engine.Start(context.Background(), "bob", c.ID, "", 5, 2, 1)
	assert.Error(t, err)
}

func TestEngineRunsToCompletionAndAggregates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	st := memstore.New()
	c := seedRunningContainer(t, st, 9001)

	engine := New(st, nil)
	lt, err := engine.Start(context.Background(), "bob", c.ID, srv.URL, 5, 2, 1)
	require.NoError(t, err)

	deadline := time.Now().Add(5 * time.Second)
	for {
		got, err := st.GetLoadTest(context.Background(), lt.ID)
		require.NoError(t, err)
		if got.Status.IsTerminal() {
			assert.Equal(t, enum.LoadTestCompleted, got.Status)
			assert.Equal(t, 5, got.RequestsDone+got.RequestsFailed)
			assert.GreaterOrEqual(t, got.RequestsDone, 0)
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("load test did not finish in time")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestEngineCancelMarksTestCancelled(t *testing.T) {
	blocker := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocker
		w.WriteHeader(http.StatusOK)
	}))
	defer func() {
		close(blocker)
		srv.Close()
	}()

	st := memstore.New()
	c := seedRunningContainer(t, st, 9002)

	engine := New(st, nil)
	lt, err := engine.Start(context.Background(), "bob", c.ID, srv.URL, 100, 5, 10)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	engine.Cancel(lt.ID)

	deadline := time.Now().Add(5 * time.Second)
	for {
		got, err := st.GetLoadTest(context.Background(), lt.ID)
		require.NoError(t, err)
		if got.Status.IsTerminal() {
			assert.Equal(t, enum.LoadTestCancelled, got.Status)
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("cancelled load test did not finish in time")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestAggregateLatencies(t *testing.T) {
	avg, min, max := aggregateLatencies([]float64{10, 20, 30})
	assert.Equal(t, 20.0, avg)
	assert.Equal(t, 10.0, min)
	assert.Equal(t, 30.0, max)
}

func TestAggregateLatenciesEmpty(t *testing.T) {
	avg, min, max := aggregateLatencies(nil)
	assert.Zero(t, avg)
	assert.Zero(t, min)
	assert.Zero(t, max)
}
