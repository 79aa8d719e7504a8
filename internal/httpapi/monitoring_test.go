package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classroomd/internal/enum"
	"classroomd/internal/identity"
	"classroomd/internal/store"
	"classroomd/internal/store/memstore"
)

func TestMonitoringOverviewAggregatesLatestSample(t *testing.T) {
	st := memstore.New()
	h := &monitoringHandlers{store: st}
	owner := &identity.UserContext{UserID: uuid.New(), Email: "alice@example.com", Role: enum.RoleStudent}
	container := seedOwnedContainer(t, st, owner.Email)

	require.NoError(t, st.RecordUsage(context.Background(), &store.ResourceUsage{
		ID: uuid.New(), ContainerID: container.ID, Timestamp: time.Now().Add(-time.Minute),
		CPUPercent: 10, MemoryGB: 0.5,
	}))
	require.NoError(t, st.RecordUsage(context.Background(), &store.ResourceUsage{
		ID: uuid.New(), ContainerID: container.ID, Timestamp: time.Now(),
		CPUPercent: 25, MemoryGB: 1.0,
	}))

	req := authedRequest(http.MethodGet, "/monitoring/overview", nil, owner)
	rec := httptest.NewRecorder()

	h.overview(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.InDelta(t, 25.0, resp["total_cpu_percent"], 0.0001)
	assert.InDelta(t, 1.0, resp["total_memory_gb"], 0.0001)
}
