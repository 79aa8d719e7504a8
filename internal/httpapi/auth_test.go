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

	"classroomd/internal/identity"
	"classroomd/internal/store/memstore"
)

func newAuthHandlers() *authHandlers {
	return &authHandlers{store: memstore.New(), tokens: identity.NewTokenManager("test-secret", time.Hour)}
}

func TestAuthRegisterIssuesToken(t *testing.T) {
	h := newAuthHandlers()
	body, _ := json.Marshal(registerRequest{Email: "alice@example.com", Password: "hunter2"})
	req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.register(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp authResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "alice@example.com", resp.Email)
	assert.Equal(t, "student", resp.Role)
}

func TestAuthRegisterRejectsDuplicateEmail(t *testing.T) {
	h := newAuthHandlers()
	body, _ := json.Marshal(registerRequest{Email: "alice@example.com", Password: "hunter2"})

	req1 := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewReader(body))
	h.register(httptest.NewRecorder(), req1)

	req2 := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewReader(body))
	rec2 := httptest.NewRecorder()
	h.register(rec2, req2)

	assert.Equal(t, http.StatusConflict, rec2.Code)
}

func TestAuthLoginRejectsWrongPassword(t *testing.T) {
	h := newAuthHandlers()
	regBody, _ := json.Marshal(registerRequest{Email: "bob@example.com", Password: "correct-horse"})
	h.register(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewReader(regBody)))

	loginBody, _ := json.Marshal(loginRequest{Email: "bob@example.com", Password: "wrong"})
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(loginBody))
	rec := httptest.NewRecorder()

	h.login(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAuthLoginSucceedsWithCorrectPassword(t *testing.T) {
	h := newAuthHandlers()
	regBody, _ := json.Marshal(registerRequest{Email: "carol@example.com", Password: "swordfish"})
	h.register(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewReader(regBody)))

	loginBody, _ := json.Marshal(loginRequest{Email: "carol@example.com", Password: "swordfish"})
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(loginBody))
	rec := httptest.NewRecorder()

	h.login(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp authResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)
}

func TestAuthVerifyIsStub(t *testing.T) {
	h := newAuthHandlers()
	rec := httptest.NewRecorder()
	h.verify(rec, httptest.NewRequest(http.MethodPost, "/auth/verify", nil))
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}
