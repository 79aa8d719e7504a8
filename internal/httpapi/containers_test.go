package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classroomd/internal/enum"
	"classroomd/internal/identity"
	"classroomd/internal/store"
	"classroomd/internal/store/memstore"
)

func authedRequest(method, target string, body []byte, user *identity.UserContext) *http.Request {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	ctx := identity.SetUserContext(req.Context(), user)
	return req.WithContext(ctx)
}

func TestContainersDeployDefaultsLimitsAndSimulatesByDefault(t *testing.T) {
	st := memstore.New()
	h := &containerHandlers{store: st}
	user := &identity.UserContext{UserID: uuid.New(), Email: "alice@example.com", Role: enum.RoleStudent}

	body, _ := json.Marshal(deployRequest{Name: "grader", Image: "ghcr.io/classroom/grader:latest"})
	req := authedRequest(http.MethodPost, "/containers/deploy", body, user)
	rec := httptest.NewRecorder()

	h.deploy(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var c store.Container
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))
	assert.Equal(t, 500, c.CPULimitMillicores)
	assert.Equal(t, 256, c.MemoryLimitMB)
	assert.Equal(t, enum.DeploymentSimulated, c.DeploymentType)
	assert.Equal(t, enum.ContainerPending, c.Status)
}

func TestContainersDeployRejectsMissingFields(t *testing.T) {
	st := memstore.New()
	h := &containerHandlers{store: st}
	user := &identity.UserContext{UserID: uuid.New(), Email: "alice@example.com", Role: enum.RoleStudent}

	body, _ := json.Marshal(deployRequest{Name: ""})
	req := authedRequest(http.MethodPost, "/containers/deploy", body, user)
	rec := httptest.NewRecorder()

	h.deploy(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestContainersStartSimulatedSkipsDriver(t *testing.T) {
	st := memstore.New()
	h := &containerHandlers{store: st}
	port := 3001
	c := &store.Container{
		ID: uuid.New(), Owner: "alice@example.com", Name: "grader", Port: &port,
		Status: enum.ContainerPending, DeploymentType: enum.DeploymentSimulated, Kind: enum.ContainerKindPrimary,
	}
	require.NoError(t, st.CreateContainer(context.Background(), c))

	require.NoError(t, h.start(context.Background(), c))
	assert.Equal(t, enum.ContainerRunning, c.Status)
	assert.NotNil(t, c.StartedAt)
	assert.Nil(t, c.EngineHandle)
}

func TestContainersStartRealDeploymentWithoutDriverFails(t *testing.T) {
	st := memstore.New()
	h := &containerHandlers{store: st, driver: nil}
	image := "nginx:latest"
	port := 3002
	c := &store.Container{
		ID: uuid.New(), Owner: "alice@example.com", Name: "web", Image: &image, Port: &port,
		Status: enum.ContainerPending, DeploymentType: enum.DeploymentType("docker"), Kind: enum.ContainerKindPrimary,
	}
	require.NoError(t, st.CreateContainer(context.Background(), c))

	err := h.start(context.Background(), c)
	require.Error(t, err)
}

func TestContainersTransitionRejectsNonOwner(t *testing.T) {
	st := memstore.New()
	h := &containerHandlers{store: st}
	port := 3003
	c := &store.Container{
		ID: uuid.New(), Owner: "alice@example.com", Name: "grader", Port: &port,
		Status: enum.ContainerPending, DeploymentType: enum.DeploymentSimulated, Kind: enum.ContainerKindPrimary,
	}
	require.NoError(t, st.CreateContainer(context.Background(), c))

	intruder := &identity.UserContext{UserID: uuid.New(), Email: "mallory@example.com", Role: enum.RoleStudent}
	req := authedRequest(http.MethodPost, "/containers/"+c.ID.String()+"/start", nil, intruder)
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("id", c.ID.String())
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
	rec := httptest.NewRecorder()

	h.transition("start")(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestContainersListScopesToOwner(t *testing.T) {
	st := memstore.New()
	h := &containerHandlers{store: st}
	for i, owner := range []string{"alice@example.com", "bob@example.com"} {
		port := 3100 + i
		c := &store.Container{
			ID: uuid.New(), Owner: owner, Name: "c-" + owner, Port: &port,
			Status: enum.ContainerPending, DeploymentType: enum.DeploymentSimulated, Kind: enum.ContainerKindPrimary,
		}
		require.NoError(t, st.CreateContainer(context.Background(), c))
	}

	user := &identity.UserContext{UserID: uuid.New(), Email: "alice@example.com", Role: enum.RoleStudent}
	req := authedRequest(http.MethodGet, "/containers", nil, user)
	rec := httptest.NewRecorder()

	h.list(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var containers []*store.Container
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &containers))
	assert.Len(t, containers, 1)
	assert.Equal(t, "alice@example.com", containers[0].Owner)
}
