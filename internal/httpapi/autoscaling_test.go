package httpapi

import (
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

func seedOwnedContainer(t *testing.T, st *memstore.Store, owner string) *store.Container {
	t.Helper()
	port := 4000
	c := &store.Container{
		ID: uuid.New(), Owner: owner, Name: "target", Port: &port,
		Status: enum.ContainerRunning, DeploymentType: enum.DeploymentSimulated, Kind: enum.ContainerKindPrimary,
	}
	require.NoError(t, st.CreateContainer(context.Background(), c))
	return c
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func TestAutoscalingCreatePolicyRejectsDuplicate(t *testing.T) {
	st := memstore.New()
	h := &autoscalingHandlers{store: st}
	owner := &identity.UserContext{UserID: uuid.New(), Email: "alice@example.com", Role: enum.RoleStudent}
	container := seedOwnedContainer(t, st, owner.Email)

	body, _ := json.Marshal(policyRequest{ContainerID: container.ID, MinReplicas: 1, MaxReplicas: 3})
	req1 := authedRequest(http.MethodPost, "/autoscaling/policies", body, owner)
	h.createPolicy(httptest.NewRecorder(), req1)

	req2 := authedRequest(http.MethodPost, "/autoscaling/policies", body, owner)
	rec2 := httptest.NewRecorder()
	h.createPolicy(rec2, req2)

	assert.Equal(t, http.StatusConflict, rec2.Code)
}

func TestAutoscalingCreatePolicyRejectsNonOwner(t *testing.T) {
	st := memstore.New()
	h := &autoscalingHandlers{store: st}
	container := seedOwnedContainer(t, st, "alice@example.com")

	intruder := &identity.UserContext{UserID: uuid.New(), Email: "mallory@example.com", Role: enum.RoleStudent}
	body, _ := json.Marshal(policyRequest{ContainerID: container.ID, MinReplicas: 1, MaxReplicas: 3})
	req := authedRequest(http.MethodPost, "/autoscaling/policies", body, intruder)
	rec := httptest.NewRecorder()

	h.createPolicy(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAutoscalingTogglePolicyFlipsEnabled(t *testing.T) {
	st := memstore.New()
	h := &autoscalingHandlers{store: st}
	owner := &identity.UserContext{UserID: uuid.New(), Email: "alice@example.com", Role: enum.RoleStudent}
	container := seedOwnedContainer(t, st, owner.Email)

	policy := &store.ScalingPolicy{ID: uuid.New(), ContainerID: container.ID, MinReplicas: 1, MaxReplicas: 2, Enabled: true}
	require.NoError(t, st.CreatePolicy(context.Background(), policy))

	req := authedRequest(http.MethodPost, "/autoscaling/policies/"+policy.ID.String()+"/toggle", nil, owner)
	req = withURLParam(req, "id", policy.ID.String())
	rec := httptest.NewRecorder()

	h.togglePolicy(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var updated store.ScalingPolicy
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.False(t, updated.Enabled)
}

func TestAutoscalingTogglePolicyRejectsNonOwner(t *testing.T) {
	st := memstore.New()
	h := &autoscalingHandlers{store: st}
	container := seedOwnedContainer(t, st, "alice@example.com")
	policy := &store.ScalingPolicy{ID: uuid.New(), ContainerID: container.ID, MinReplicas: 1, MaxReplicas: 2, Enabled: true}
	require.NoError(t, st.CreatePolicy(context.Background(), policy))

	intruder := &identity.UserContext{UserID: uuid.New(), Email: "mallory@example.com", Role: enum.RoleStudent}
	req := authedRequest(http.MethodPost, "/autoscaling/policies/"+policy.ID.String()+"/toggle", nil, intruder)
	req = withURLParam(req, "id", policy.ID.String())
	rec := httptest.NewRecorder()

	h.togglePolicy(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAutoscalingDeletePolicyRejectsNonOwner(t *testing.T) {
	st := memstore.New()
	h := &autoscalingHandlers{store: st}
	container := seedOwnedContainer(t, st, "alice@example.com")
	policy := &store.ScalingPolicy{ID: uuid.New(), ContainerID: container.ID, MinReplicas: 1, MaxReplicas: 2, Enabled: true}
	require.NoError(t, st.CreatePolicy(context.Background(), policy))

	intruder := &identity.UserContext{UserID: uuid.New(), Email: "mallory@example.com", Role: enum.RoleStudent}
	req := authedRequest(http.MethodDelete, "/autoscaling/policies/"+policy.ID.String(), nil, intruder)
	req = withURLParam(req, "id", policy.ID.String())
	rec := httptest.NewRecorder()

	h.deletePolicy(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAutoscalingListPoliciesScopesToOwner(t *testing.T) {
	st := memstore.New()
	h := &autoscalingHandlers{store: st}
	aliceContainer := seedOwnedContainer(t, st, "alice@example.com")
	require.NoError(t, st.CreatePolicy(context.Background(), &store.ScalingPolicy{
		ID: uuid.New(), ContainerID: aliceContainer.ID, MinReplicas: 1, MaxReplicas: 2,
	}))

	owner := &identity.UserContext{UserID: uuid.New(), Email: "alice@example.com", Role: enum.RoleStudent}
	req := authedRequest(http.MethodGet, "/autoscaling/policies", nil, owner)
	rec := httptest.NewRecorder()

	h.listPolicies(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var policies []*store.ScalingPolicy
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &policies))
	assert.Len(t, policies, 1)
}
