package handler_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redislib "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	apiHandler "github.com/fastygo/tasktracker/api/handler"
	"github.com/fastygo/tasktracker/domain"
	"github.com/fastygo/tasktracker/internal/infrastructure/monitor"
	"github.com/fastygo/tasktracker/internal/middleware"
	"github.com/fastygo/tasktracker/internal/observability"
	"github.com/fastygo/tasktracker/internal/router"
	"github.com/fastygo/tasktracker/pkg/httpcontext"
	"github.com/fastygo/tasktracker/repository/memory"
	redisRepo "github.com/fastygo/tasktracker/repository/redis"
	authUC "github.com/fastygo/tasktracker/usecase/auth"
	profileUC "github.com/fastygo/tasktracker/usecase/profile"
	taskUC "github.com/fastygo/tasktracker/usecase/task"
)

type envelope struct {
	Status string          `json:"status"`
	Code   string          `json:"code"`
	Data   json.RawMessage `json:"data"`
	Error  string          `json:"error"`
	Meta   json.RawMessage `json:"meta"`
}

type staticStatus monitor.Status

func (s staticStatus) GetStatus() monitor.Status { return monitor.Status(s) }

type app struct {
	handler  fasthttp.RequestHandler
	tasks    *memory.TaskStore
	recorder *observability.Recorder
}

func newApp(t *testing.T) *app {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redislib.NewClient(&redislib.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := zap.NewNop()
	recorder := observability.New(observability.Settings{Enabled: true}, logger)
	users := memory.NewUserRepository()
	tasks := memory.NewTaskStore()
	sessions := redisRepo.NewSessionRepository(client, time.Hour)
	tokens := authUC.NewTokenIssuer("secret", "tasktracker", time.Hour)

	auth := authUC.New(users, sessions, tokens, logger).WithHashCost(bcrypt.MinCost)
	coordinator := taskUC.New(tasks, redisRepo.NewCache(client, ""), nil, recorder, logger, taskUC.Config{})
	adapter := httpcontext.NewAdapter(time.Second)

	handlers := router.Handlers{
		Auth:    apiHandler.NewAuthHandler(auth, adapter, logger),
		Profile: apiHandler.NewProfileHandler(profileUC.New(users, logger), adapter, logger),
		Task:    apiHandler.NewTaskHandler(coordinator, adapter, logger),
		Health:  apiHandler.NewHealthHandler(staticStatus{PostgreSQL: true, Redis: true}, recorder, adapter, logger),
	}
	r := router.New(handlers, middleware.JWTAuth(tokens, auth, time.Second, logger), router.Options{EnableMetrics: true})
	return &app{handler: r.Handler, tasks: tasks, recorder: recorder}
}

func (a *app) do(t *testing.T, method, path, token string, body interface{}) (int, envelope, *fasthttp.Response) {
	t.Helper()
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.Header.SetMethod(method)
	req.SetRequestURI(path)
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		req.SetBody(raw)
		req.Header.SetContentType("application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	var ctx fasthttp.RequestCtx
	ctx.Init(req, nil, nil)
	a.handler(&ctx)

	var env envelope
	if len(ctx.Response.Body()) > 0 {
		require.NoError(t, json.Unmarshal(ctx.Response.Body(), &env), string(ctx.Response.Body()))
	}
	resp := &fasthttp.Response{}
	ctx.Response.CopyTo(resp)
	return ctx.Response.StatusCode(), env, resp
}

func (a *app) register(t *testing.T, email string) string {
	t.Helper()
	status, env, _ := a.do(t, "POST", "/api/v1/auth/register", "", map[string]string{
		"name": "User", "email": email, "password": "password123",
	})
	require.Equal(t, http.StatusCreated, status, env.Error)
	var res struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &res))
	require.NotEmpty(t, res.Token)
	return res.Token
}

func TestTaskLifecycleOverHTTP(t *testing.T) {
	a := newApp(t)
	token := a.register(t, "ada@example.com")

	status, env, _ := a.do(t, "POST", "/api/v1/tasks", token, map[string]string{"title": "Write report", "description": "Q2"})
	require.Equal(t, http.StatusCreated, status, env.Error)
	var created domain.Task
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, domain.TaskStatusPending, created.Status)

	status, env, _ = a.do(t, "GET", "/api/v1/tasks", token, nil)
	require.Equal(t, http.StatusOK, status)
	var list []domain.Task
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 1)
	assert.JSONEq(t, `{"count":1}`, string(env.Meta))

	status, _, _ = a.do(t, "GET", "/api/v1/tasks/"+created.ID, token, nil)
	assert.Equal(t, http.StatusOK, status)

	status, env, _ = a.do(t, "PATCH", "/api/v1/tasks/"+created.ID, token, map[string]string{"status": "IN_PROGRESS"})
	require.Equal(t, http.StatusOK, status, env.Error)

	status, env, _ = a.do(t, "POST", "/api/v1/tasks/"+created.ID+"/mark-done", token, nil)
	require.Equal(t, http.StatusOK, status)
	var done domain.Task
	require.NoError(t, json.Unmarshal(env.Data, &done))
	assert.Equal(t, domain.TaskStatusDone, done.Status)
	assert.NotNil(t, done.CompletedAt)

	status, env, _ = a.do(t, "GET", "/api/v1/tasks/stats", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"total":1,"pending":0,"in_progress":0,"done":1}`, string(env.Data))

	status, _, _ = a.do(t, "DELETE", "/api/v1/tasks/"+created.ID, token, nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, env, _ = a.do(t, "GET", "/api/v1/tasks/"+created.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", env.Code)

	status, env, _ = a.do(t, "GET", "/api/v1/tasks", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"count":0}`, string(env.Meta))
}

func TestValidationErrorsCarryFields(t *testing.T) {
	a := newApp(t)
	token := a.register(t, "ada@example.com")

	status, env, _ := a.do(t, "POST", "/api/v1/tasks", token, map[string]string{"title": "ab"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID", env.Code)
	assert.Contains(t, string(env.Meta), `"title"`)

	status, env, _ = a.do(t, "POST", "/api/v1/tasks", token, map[string]string{"description": "no title"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(env.Meta), `"title"`)

	status, _, _ = a.do(t, "PATCH", "/api/v1/tasks/whatever", token, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Zero(t, a.tasks.Len())
}

func TestDueDateAcceptsCalendarDates(t *testing.T) {
	a := newApp(t)
	token := a.register(t, "ada@example.com")

	status, env, _ := a.do(t, "POST", "/api/v1/tasks", token, map[string]string{"title": "File taxes", "due_date": "2025-12-31"})
	require.Equal(t, http.StatusCreated, status, env.Error)
	var created domain.Task
	require.NoError(t, json.Unmarshal(env.Data, &created))
	require.NotNil(t, created.DueDate)
	assert.Equal(t, time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC), created.DueDate.UTC())

	status, env, _ = a.do(t, "PATCH", "/api/v1/tasks/"+created.ID, token, map[string]string{"due_date": "2026-01-15T09:00:00Z"})
	require.Equal(t, http.StatusOK, status, env.Error)
	var updated domain.Task
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	require.NotNil(t, updated.DueDate)
	assert.Equal(t, 9, updated.DueDate.Hour())

	status, env, _ = a.do(t, "POST", "/api/v1/tasks", token, map[string]string{"title": "File taxes", "due_date": "31/12/2025"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(env.Meta), `"due_date"`)
}

func TestTasksAreScopedToOwner(t *testing.T) {
	a := newApp(t)
	owner := a.register(t, "owner@example.com")
	other := a.register(t, "other@example.com")

	_, env, _ := a.do(t, "POST", "/api/v1/tasks", owner, map[string]string{"title": "Private"})
	var created domain.Task
	require.NoError(t, json.Unmarshal(env.Data, &created))

	for _, call := range []struct{ method, path string }{
		{"GET", "/api/v1/tasks/" + created.ID},
		{"POST", "/api/v1/tasks/" + created.ID + "/mark-done"},
		{"DELETE", "/api/v1/tasks/" + created.ID},
	} {
		status, _, _ := a.do(t, call.method, call.path, other, nil)
		assert.Equal(t, http.StatusNotFound, status, call.path)
	}

	_, env, _ = a.do(t, "GET", "/api/v1/tasks", other, nil)
	assert.JSONEq(t, `{"count":0}`, string(env.Meta))
}

func TestAuthRequired(t *testing.T) {
	a := newApp(t)

	status, env, _ := a.do(t, "GET", "/api/v1/tasks", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", env.Code)

	status, _, _ = a.do(t, "GET", "/api/v1/tasks", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestLogoutRevokesToken(t *testing.T) {
	a := newApp(t)
	token := a.register(t, "ada@example.com")

	status, _, _ := a.do(t, "GET", "/api/v1/users/me", token, nil)
	require.Equal(t, http.StatusOK, status)

	status, _, _ = a.do(t, "POST", "/api/v1/auth/logout", token, nil)
	require.Equal(t, http.StatusNoContent, status)

	status, _, _ = a.do(t, "GET", "/api/v1/users/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestLoginAndDuplicateRegistration(t *testing.T) {
	a := newApp(t)
	a.register(t, "ada@example.com")

	status, env, _ := a.do(t, "POST", "/api/v1/auth/register", "", map[string]string{
		"name": "Again", "email": "ada@example.com", "password": "password123",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "CONFLICT", env.Code)

	status, _, _ = a.do(t, "POST", "/api/v1/auth/login", "", map[string]string{"email": "ada@example.com", "password": "password123"})
	assert.Equal(t, http.StatusOK, status)

	status, env, _ = a.do(t, "POST", "/api/v1/auth/login", "", map[string]string{"email": "ada@example.com", "password": "nope-nope"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", env.Code)
}

func TestStoreOutageIsUnavailable(t *testing.T) {
	a := newApp(t)
	token := a.register(t, "ada@example.com")
	a.tasks.Err = errors.New("dial tcp: connection refused")

	status, env, resp := a.do(t, "POST", "/api/v1/tasks", token, map[string]string{"title": "Will fail"})
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "UNAVAILABLE", env.Code)
	assert.NotContains(t, env.Error, "connection refused")
	assert.Equal(t, "1", string(resp.Header.Peek("Retry-After")))
}

func TestHealthAndMetrics(t *testing.T) {
	a := newApp(t)

	status, _, _ := a.do(t, "GET", "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)

	status, env, _ := a.do(t, "GET", "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(env.Data), `"cache_hits"`)
}
