package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classroomd/internal/enum"
	"classroomd/internal/identity"
	"classroomd/internal/loadtest"
	"classroomd/internal/store"
	"classroomd/internal/store/memstore"
)

func TestLoadTestGetReportsProgressPercent(t *testing.T) {
	st := memstore.New()
	user := &identity.UserContext{UserID: uuid.New(), Email: "alice@example.com", Role: enum.RoleStudent}
	lt := &store.LoadTest{
		ID: uuid.New(), Owner: "alice@example.com", ContainerID: uuid.New(),
		TotalRequests: 100, RequestsDone: 40, RequestsFailed: 10, Status: enum.LoadTestRunning,
	}
	require.NoError(t, st.CreateLoadTest(context.Background(), lt))

	h := &loadtestHandlers{store: st, engine: loadtest.New(st, nil)}
	req := authedRequest(http.MethodGet, "/loadtest/"+lt.ID.String(), nil, user)
	req = withURLParam(req, "id", lt.ID.String())
	rec := httptest.NewRecorder()

	h.get(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.InDelta(t, 50.0, resp["progress_percent"], 0.0001)
}

func TestLoadTestGetRejectsInvalidID(t *testing.T) {
	st := memstore.New()
	h := &loadtestHandlers{store: st, engine: loadtest.New(st, nil)}
	req := httptest.NewRequest(http.MethodGet, "/loadtest/not-a-uuid", nil)
	req = withURLParam(req, "id", "not-a-uuid")
	rec := httptest.NewRecorder()

	h.get(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoadTestGetRejectsNonOwner(t *testing.T) {
	st := memstore.New()
	lt := &store.LoadTest{
		ID: uuid.New(), Owner: "alice@example.com", ContainerID: uuid.New(),
		TotalRequests: 100, RequestsDone: 40, Status: enum.LoadTestRunning,
	}
	require.NoError(t, st.CreateLoadTest(context.Background(), lt))

	h := &loadtestHandlers{store: st, engine: loadtest.New(st, nil)}
	intruder := &identity.UserContext{UserID: uuid.New(), Email: "mallory@example.com", Role: enum.RoleStudent}
	req := authedRequest(http.MethodGet, "/loadtest/"+lt.ID.String(), nil, intruder)
	req = withURLParam(req, "id", lt.ID.String())
	rec := httptest.NewRecorder()

	h.get(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLoadTestCancelRejectsAlreadyTerminal(t *testing.T) {
	st := memstore.New()
	user := &identity.UserContext{UserID: uuid.New(), Email: "alice@example.com", Role: enum.RoleStudent}
	lt := &store.LoadTest{
		ID: uuid.New(), Owner: "alice@example.com", ContainerID: uuid.New(),
		TotalRequests: 10, RequestsDone: 10, Status: enum.LoadTestCompleted,
	}
	require.NoError(t, st.CreateLoadTest(context.Background(), lt))

	h := &loadtestHandlers{store: st, engine: loadtest.New(st, nil)}
	req := authedRequest(http.MethodDelete, "/loadtest/"+lt.ID.String(), nil, user)
	req = withURLParam(req, "id", lt.ID.String())
	rec := httptest.NewRecorder()

	h.cancel(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoadTestCancelRejectsNonOwner(t *testing.T) {
	st := memstore.New()
	lt := &store.LoadTest{
		ID: uuid.New(), Owner: "alice@example.com", ContainerID: uuid.New(),
		TotalRequests: 10, RequestsDone: 4, Status: enum.LoadTestRunning,
	}
	require.NoError(t, st.CreateLoadTest(context.Background(), lt))

	h := &loadtestHandlers{store: st, engine: loadtest.New(st, nil)}
	intruder := &identity.UserContext{UserID: uuid.New(), Email: "mallory@example.com", Role: enum.RoleStudent}
	req := authedRequest(http.MethodDelete, "/loadtest/"+lt.ID.String(), nil, intruder)
	req = withURLParam(req, "id", lt.ID.String())
	rec := httptest.NewRecorder()

	h.cancel(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLoadTestStreamFallsBackToCompleteWhenNoActiveChannel(t *testing.T) {
	st := memstore.New()
	user := &identity.UserContext{UserID: uuid.New(), Email: "alice@example.com", Role: enum.RoleStudent}
	lt := &store.LoadTest{
		ID: uuid.New(), Owner: "alice@example.com", ContainerID: uuid.New(),
		TotalRequests: 10, RequestsDone: 10, Status: enum.LoadTestCompleted,
	}
	require.NoError(t, st.CreateLoadTest(context.Background(), lt))

	h := &loadtestHandlers{store: st, engine: loadtest.New(st, nil)}
	req := authedRequest(http.MethodGet, "/loadtest/"+lt.ID.String()+"/metrics/stream", nil, user)
	req = withURLParam(req, "id", lt.ID.String())
	rec := httptest.NewRecorder()

	h.stream(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "event: complete")
}

func TestLoadTestStreamRejectsNonOwner(t *testing.T) {
	st := memstore.New()
	lt := &store.LoadTest{
		ID: uuid.New(), Owner: "alice@example.com", ContainerID: uuid.New(),
		TotalRequests: 10, RequestsDone: 10, Status: enum.LoadTestCompleted,
	}
	require.NoError(t, st.CreateLoadTest(context.Background(), lt))

	h := &loadtestHandlers{store: st, engine: loadtest.New(st, nil)}
	intruder := &identity.UserContext{UserID: uuid.New(), Email: "mallory@example.com", Role: enum.RoleStudent}
	req := authedRequest(http.MethodGet, "/loadtest/"+lt.ID.String()+"/metrics/stream", nil, intruder)
	req = withURLParam(req, "id", lt.ID.String())
	rec := httptest.NewRecorder()

	h.stream(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}
