package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classroomd/internal/billing"
	"classroomd/internal/enum"
	"classroomd/internal/identity"
	"classroomd/internal/store"
	"classroomd/internal/store/memstore"
)

type noopBillingSampler struct{}

func (noopBillingSampler) Sample(ctx context.Context, handle string) (float64, float64, float64, error) {
	return 0, 0, 0, nil
}

func TestBillingSimulateReturnsComputedCost(t *testing.T) {
	st := memstore.New()
	engine := billing.New(st, noopBillingSampler{}, nil, time.Minute, time.Minute)
	h := &billingHandlers{store: st, engine: engine}

	body, _ := json.Marshal(simulateRequest{CPUCores: 2, MemoryGB: 4, StorageGB: 50, DurationHours: 10, Provider: enum.ProviderAWS})
	req := httptest.NewRequest(http.MethodPost, "/billing/scenario/simulate", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.simulate(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var result billing.CostBreakdown
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.InDelta(t, 1.4548, result.TotalCost, 0.0001)
}

func TestBillingSimulateRejectsZeroDuration(t *testing.T) {
	st := memstore.New()
	engine := billing.New(st, noopBillingSampler{}, nil, time.Minute, time.Minute)
	h := &billingHandlers{store: st, engine: engine}

	body, _ := json.Marshal(simulateRequest{CPUCores: 1, MemoryGB: 1, DurationHours: 0, Provider: enum.ProviderAWS})
	req := httptest.NewRequest(http.MethodPost, "/billing/scenario/simulate", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.simulate(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBillingPricingModelsListsSeeded(t *testing.T) {
	st := memstore.New()
	engine := billing.New(st, noopBillingSampler{}, nil, time.Minute, time.Minute)
	require.NoError(t, engine.SeedDefaultRates(context.Background()))
	h := &billingHandlers{store: st, engine: engine}

	req := httptest.NewRequest(http.MethodGet, "/billing/pricing-models", nil)
	rec := httptest.NewRecorder()

	h.pricingModels(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var models []*store.PricingModel
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &models))
	assert.Len(t, models, 3)
}

func TestBillingRealTimeCalculateRejectsNonOwner(t *testing.T) {
	st := memstore.New()
	engine := billing.New(st, noopBillingSampler{}, nil, time.Minute, time.Minute)
	h := &billingHandlers{store: st, engine: engine}
	container := seedOwnedContainer(t, st, "alice@example.com")

	intruder := &identity.UserContext{UserID: uuid.New(), Email: "mallory@example.com", Role: enum.RoleStudent}
	body, _ := json.Marshal(realTimeRequest{ContainerID: container.ID, HoursBack: 1, Provider: enum.ProviderAWS})
	req := authedRequest(http.MethodPost, "/billing/real-time", body, intruder)
	rec := httptest.NewRecorder()

	h.realTimeCalculate(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestBillingUsageHistoryRejectsNonOwner(t *testing.T) {
	st := memstore.New()
	engine := billing.New(st, noopBillingSampler{}, nil, time.Minute, time.Minute)
	h := &billingHandlers{store: st, engine: engine}
	container := seedOwnedContainer(t, st, "alice@example.com")

	intruder := &identity.UserContext{UserID: uuid.New(), Email: "mallory@example.com", Role: enum.RoleStudent}
	req := authedRequest(http.MethodGet, "/billing/usage/"+container.ID.String(), nil, intruder)
	req = withURLParam(req, "id", container.ID.String())
	rec := httptest.NewRecorder()

	h.usageHistory(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}
