// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SafeVault Contributors

package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safevault/safevault/internal/access"
	"github.com/safevault/safevault/internal/auth"
	"github.com/safevault/safevault/internal/auth/memory"
	"github.com/safevault/safevault/internal/httpapi"
)

type testAPI struct {
	t      *testing.T
	server *httptest.Server
	users  *memory.UserRepository
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	users := memory.NewUserRepository()
	registry := auth.NewRegistry(time.Hour)
	svc, err := auth.NewService(users, registry, auth.NewArgon2idHasher(), nil)
	require.NoError(t, err)
	gate, err := access.NewGate(registry, nil)
	require.NoError(t, err)

	handler := httpapi.NewHandler(svc, users, gate, nil, nil)
	server := httptest.NewServer(httpapi.NewRouter(handler))
	t.Cleanup(server.Close)

	return &testAPI{t: t, server: server, users: users}
}

// do issues a request and decodes the JSON response body, if any.
func (a *testAPI) do(method, path, token string, body any) (int, map[string]any) {
	a.t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(a.t, err)
		reqBody = bytes.NewBuffer(data)
	} else {
		reqBody = &bytes.Buffer{}
	}

	req, err := http.NewRequest(method, a.server.URL+path, reqBody)
	require.NoError(a.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.server.Client().Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp.StatusCode, decoded
}

func (a *testAPI) register(username, email, password, role string) (int, map[string]any) {
	a.t.Helper()
	return a.do(http.MethodPost, "/register", "", map[string]string{
		"username": username,
		"email":    email,
		"password": password,
		"role":     role,
	})
}

func (a *testAPI) login(username, password string) (int, map[string]any) {
	a.t.Helper()
	return a.do(http.MethodPost, "/login", "", map[string]string{
		"username": username,
		"password": password,
	})
}

// loginToken logs in and returns the session token, failing the test on
// any other outcome.
func (a *testAPI) loginToken(username, password string) string {
	a.t.Helper()
	status, body := a.login(username, password)
	require.Equal(a.t, http.StatusOK, status)
	data, ok := body["data"].(map[string]any)
	require.True(a.t, ok)
	token, ok := data["token"].(string)
	require.True(a.t, ok)
	require.NotEmpty(a.t, token)
	return token
}

func TestRegister(t *testing.T) {
	t.Run("valid registration returns 201", func(t *testing.T) {
		api := newTestAPI(t)
		status, body := api.register("alice", "alice@example.com", "Password123!", "")
		assert.Equal(t, http.StatusCreated, status)

		data := body["data"].(map[string]any)
		assert.Equal(t, "alice", data["username"])
		assert.Equal(t, "user", data["role"])
		assert.NotEmpty(t, data["user_id"])
	})

	t.Run("username is sanitized before storage", func(t *testing.T) {
		api := newTestAPI(t)
		status, _ := api.register("  <b>alice</b>  ", "alice@example.com", "Password123!", "")
		require.Equal(t, http.StatusCreated, status)

		stored, err := api.users.GetByUsername(context.Background(), "alice")
		require.NoError(t, err)
		assert.Equal(t, "alice", stored.Username)
	})

	t.Run("script payload in username is neutralized", func(t *testing.T) {
		api := newTestAPI(t)
		status, _ := api.register(`eve<script>alert("xss")</script>`, "eve@example.com", "Password123!", "")
		require.Equal(t, http.StatusCreated, status)

		stored, err := api.users.GetByUsername(context.Background(), "eve")
		require.NoError(t, err)
		assert.Equal(t, "eve", stored.Username)
		assert.NotContains(t, stored.Username, "<script")
	})

	t.Run("username that sanitizes to empty is rejected", func(t *testing.T) {
		api := newTestAPI(t)
		status, body := api.register("<script>alert(1)</script>", "x@example.com", "Password123!", "")
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "VALIDATION_ERROR", body["code"])
	})

	t.Run("invalid email is rejected", func(t *testing.T) {
		api := newTestAPI(t)
		status, body := api.register("alice", "not-an-email", "Password123!", "")
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "VALIDATION_ERROR", body["code"])
	})

	t.Run("short password is rejected", func(t *testing.T) {
		api := newTestAPI(t)
		status, _ := api.register("alice", "alice@example.com", "short", "")
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("unknown role is rejected", func(t *testing.T) {
		api := newTestAPI(t)
		status, _ := api.register("alice", "alice@example.com", "Password123!", "root")
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("duplicate username returns 409", func(t *testing.T) {
		api := newTestAPI(t)
		status, _ := api.register("alice", "alice@example.com", "Password123!", "")
		require.Equal(t, http.StatusCreated, status)

		status, body := api.register("alice", "other@example.com", "Password456!", "")
		assert.Equal(t, http.StatusConflict, status)
		assert.Equal(t, "DUPLICATE_USER", body["code"])
	})

	t.Run("malformed body returns 400", func(t *testing.T) {
		api := newTestAPI(t)
		req, err := http.NewRequest(http.MethodPost, api.server.URL+"/register", bytes.NewBufferString("{not json"))
		require.NoError(t, err)
		resp, err := api.server.Client().Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestLogin(t *testing.T) {
	t.Run("valid credentials return a token", func(t *testing.T) {
		api := newTestAPI(t)
		status, _ := api.register("alice", "alice@example.com", "Password123!", "")
		require.Equal(t, http.StatusCreated, status)

		status, body := api.login("alice", "Password123!")
		assert.Equal(t, http.StatusOK, status)

		data := body["data"].(map[string]any)
		assert.NotEmpty(t, data["token"])
		assert.Equal(t, "user", data["role"])
		assert.NotEmpty(t, data["expires_at"])
	})

	t.Run("wrong password returns 401", func(t *testing.T) {
		api := newTestAPI(t)
		status, _ := api.register("alice", "alice@example.com", "Password123!", "")
		require.Equal(t, http.StatusCreated, status)

		status, body := api.login("alice", "WrongPassword!")
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "INVALID_CREDENTIALS", body["code"])
	})

	t.Run("unknown user returns the same 401", func(t *testing.T) {
		api := newTestAPI(t)
		status, body := api.login("nobody", "Password123!")
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "INVALID_CREDENTIALS", body["code"])
	})

	t.Run("locked account returns 423", func(t *testing.T) {
		api := newTestAPI(t)
		status, _ := api.register("alice", "alice@example.com", "Password123!", "")
		require.Equal(t, http.StatusCreated, status)

		for i := 0; i < auth.LockoutThreshold; i++ {
			status, _ := api.login("alice", "WrongPassword!")
			require.Equal(t, http.StatusUnauthorized, status)
		}

		status, body := api.login("alice", "Password123!")
		assert.Equal(t, http.StatusLocked, status)
		assert.Equal(t, "ACCOUNT_LOCKED", body["code"])
	})
}

func TestLogout(t *testing.T) {
	api := newTestAPI(t)
	status, _ := api.register("alice", "alice@example.com", "Password123!", "")
	require.Equal(t, http.StatusCreated, status)
	token := api.loginToken("alice", "Password123!")

	status, _ = api.do(http.MethodPost, "/logout", token, nil)
	assert.Equal(t, http.StatusNoContent, status)

	// The token no longer authenticates anything.
	status, _ = api.do(http.MethodGet, "/admin", token, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	// Logging out again, or with no token at all, still succeeds.
	status, _ = api.do(http.MethodPost, "/logout", token, nil)
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = api.do(http.MethodPost, "/logout", "", nil)
	assert.Equal(t, http.StatusNoContent, status)
}

func TestAdminEndpoint(t *testing.T) {
	api := newTestAPI(t)

	status, _ := api.register("alice", "alice@example.com", "Password123!", "")
	require.Equal(t, http.StatusCreated, status)
	status, _ = api.register("bob", "bob@example.com", "Hunter2hunter2!", "admin")
	require.Equal(t, http.StatusCreated, status)

	t.Run("no token returns 401", func(t *testing.T) {
		status, body := api.do(http.MethodGet, "/admin", "", nil)
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "UNAUTHENTICATED", body["code"])
	})

	t.Run("garbage token returns 401", func(t *testing.T) {
		status, _ := api.do(http.MethodGet, "/admin", "deadbeef", nil)
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("user token returns 403", func(t *testing.T) {
		token := api.loginToken("alice", "Password123!")
		status, body := api.do(http.MethodGet, "/admin", token, nil)
		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, "FORBIDDEN", body["code"])
	})

	t.Run("admin token returns 200", func(t *testing.T) {
		token := api.loginToken("bob", "Hunter2hunter2!")
		status, body := api.do(http.MethodGet, "/admin", token, nil)
		assert.Equal(t, http.StatusOK, status)
		data := body["data"].(map[string]any)
		assert.Equal(t, "admin", data["role"])
	})
}

func TestAdminUsers(t *testing.T) {
	api := newTestAPI(t)

	// The ampersand survives sanitization but must be encoded at render.
	status, _ := api.register("a&b", "ab@example.com", "Password123!", "")
	require.Equal(t, http.StatusCreated, status)
	status, _ = api.register("bob", "bob@example.com", "Hunter2hunter2!", "admin")
	require.Equal(t, http.StatusCreated, status)

	t.Run("no token returns 401", func(t *testing.T) {
		status, _ := api.do(http.MethodGet, "/admin/users", "", nil)
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("user token returns 403", func(t *testing.T) {
		token := api.loginToken("a&b", "Password123!")
		status, _ := api.do(http.MethodGet, "/admin/users", token, nil)
		assert.Equal(t, http.StatusForbidden, status)
	})

	t.Run("admin token lists display-encoded usernames", func(t *testing.T) {
		token := api.loginToken("bob", "Hunter2hunter2!")
		status, body := api.do(http.MethodGet, "/admin/users", token, nil)
		require.Equal(t, http.StatusOK, status)

		data := body["data"].(map[string]any)
		users := data["users"].([]any)
		require.Len(t, users, 2)

		first := users[0].(map[string]any)
		assert.Equal(t, "a&amp;b", first["username"])
		second := users[1].(map[string]any)
		assert.Equal(t, "bob", second["username"])
	})
}

// brokenRepo fails every operation, simulating a store outage.
type brokenRepo struct{}

var errDown = errors.New("connection refused")

func (brokenRepo) Create(context.Context, *auth.User) error { return errDown }
func (brokenRepo) GetByUsername(context.Context, string) (*auth.User, error) {
	return nil, errDown
}
func (brokenRepo) Update(context.Context, *auth.User) error   { return errDown }
func (brokenRepo) List(context.Context) ([]*auth.User, error) { return nil, errDown }

func TestStoreUnavailable(t *testing.T) {
	registry := auth.NewRegistry(time.Hour)
	svc, err := auth.NewService(brokenRepo{}, registry, auth.NewArgon2idHasher(), nil)
	require.NoError(t, err)
	gate, err := access.NewGate(registry, nil)
	require.NoError(t, err)

	handler := httpapi.NewHandler(svc, brokenRepo{}, gate, nil, nil)
	server := httptest.NewServer(httpapi.NewRouter(handler))
	t.Cleanup(server.Close)

	api := &testAPI{t: t, server: server}

	status, body := api.register("alice", "alice@example.com", "Password123!", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "STORE_UNAVAILABLE", body["code"])

	status, body = api.login("alice", "Password123!")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "STORE_UNAVAILABLE", body["code"])
}
