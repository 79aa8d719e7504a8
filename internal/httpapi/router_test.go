package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"classroomd/internal/autoscaler"
	"classroomd/internal/billing"
	"classroomd/internal/identity"
	"classroomd/internal/loadtest"
	"classroomd/internal/store/memstore"
)

func testRouter(t *testing.T) http.Handler {
	t.Helper()
	st := memstore.New()
	tokens := identity.NewTokenManager("test-secret", time.Hour)
	autoscalerEngine := autoscaler.New(st, nil, time.Minute)
	loadTestEngine := loadtest.New(st, nil)
	billingEngine := billing.New(st, noopBillingSampler{}, nil, time.Minute, time.Minute)

	return NewRouter(Deps{
		Store: st, Tokens: tokens,
		Autoscaler: autoscalerEngine, LoadTest: loadTestEngine, Billing: billingEngine,
		FrontendURL: "http://localhost:3000", BaseLogger: zap.NewNop(),
	})
}

func TestRouterHealthCheck(t *testing.T) {
	router := testRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterRejectsUnauthenticatedContainerList(t *testing.T) {
	router := testRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/containers", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouterRegisterThenListContainersWithToken(t *testing.T) {
	router := testRouter(t)

	regBody, _ := json.Marshal(registerRequest{Email: "alice@example.com", Password: "hunter2"})
	regReq := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewReader(regBody))
	regRec := httptest.NewRecorder()
	router.ServeHTTP(regRec, regReq)
	require.Equal(t, http.StatusOK, regRec.Code)

	var auth authResponse
	require.NoError(t, json.Unmarshal(regRec.Body.Bytes(), &auth))

	listReq := httptest.NewRequest(http.MethodGet, "/containers", nil)
	listReq.Header.Set("Authorization", "Bearer "+auth.Token)
	listRec := httptest.NewRecorder()
	router.ServeHTTP(listRec, listReq)

	require.Equal(t, http.StatusOK, listRec.Code)
	var containers []interface{}
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &containers))
	assert.Empty(t, containers)
}
