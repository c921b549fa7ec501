package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/community-service/internal/api/http/handlers"
	"github.com/spec-kit/community-service/internal/auth"
	"github.com/spec-kit/community-service/internal/domain"
	"github.com/spec-kit/community-service/internal/observability"
	"github.com/spec-kit/community-service/internal/permission"
	"github.com/spec-kit/community-service/internal/repository"
	"github.com/spec-kit/community-service/internal/service"
	apperrors "github.com/spec-kit/community-service/pkg/util/errorutil"
)

type tokenStore struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func (s *tokenStore) GetByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (s *tokenStore) SetRefreshToken(_ context.Context, id string, digest *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		u.RefreshTokenHash = digest
	}
	return nil
}

// stubFlows answers every flow with canned data and records admin calls.
type stubFlows struct {
	tokens     *auth.TokenService
	store      *tokenStore
	roleCalls  []domain.Role
	loggedOut  []string
	refreshErr error
}

func (s *stubFlows) session(ctx context.Context, id string) (*service.Session, error) {
	user, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	pair, err := s.tokens.Issue(ctx, user)
	if err != nil {
		return nil, err
	}
	return &service.Session{User: user, Tokens: pair}, nil
}

func (s *stubFlows) Register(ctx context.Context, _, _, _ string) (*service.Session, error) {
	return s.session(ctx, "member")
}

func (s *stubFlows) Login(ctx context.Context, email, password string) (*service.Session, error) {
	if password != "password-1" {
		return nil, apperrors.NewUnauthorized("invalid email or password")
	}
	return s.session(ctx, "member")
}

func (s *stubFlows) Refresh(context.Context, string) (*service.Session, error) {
	return nil, s.refreshErr
}

func (s *stubFlows) Logout(_ context.Context, userID string) error {
	s.loggedOut = append(s.loggedOut, userID)
	return nil
}

func (s *stubFlows) Me(ctx context.Context, userID string) (*domain.User, error) {
	return s.store.GetByID(ctx, userID)
}

func (s *stubFlows) RequestPasswordReset(context.Context, string) (*repository.PasswordResetToken, error) {
	return &repository.PasswordResetToken{Token: "reset-1", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (s *stubFlows) ConfirmPasswordReset(context.Context, string, string) error {
	return nil
}

func (s *stubFlows) ChangePassword(ctx context.Context, userID, _, _ string) (*service.Session, error) {
	return s.session(ctx, userID)
}

func (s *stubFlows) ChangeRole(ctx context.Context, _ service.Actor, targetID string, newRole domain.Role) (*domain.User, error) {
	s.roleCalls = append(s.roleCalls, newRole)
	user, err := s.store.GetByID(ctx, targetID)
	if err != nil {
		return nil, apperrors.NewNotFound("user", nil)
	}
	user.Role = newRole
	return user, nil
}

func (s *stubFlows) RevokeSessions(context.Context, service.Actor, string) error {
	return nil
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type server struct {
	app   *fiber.App
	flows *stubFlows
}

func newServer(t *testing.T, rps float64, postgres error) *server {
	t.Helper()
	store := &tokenStore{users: map[string]*domain.User{
		"member": {ID: "member", Role: domain.RoleUser, Email: "m@example.com"},
		"admin":  {ID: "admin", Role: domain.RoleAdmin, Email: "a@example.com"},
	}}
	tokens := auth.NewTokenService(auth.TokenConfig{Issuer: "test", AccessSecret: "a", RefreshSecret: "r"}, store, nil)
	engine := permission.NewEngine(nil)
	metrics := observability.NewMetrics("test")
	logger := zap.NewNop()
	guard := auth.NewGuard(tokens, engine, nil, metrics, logger)
	flows := &stubFlows{tokens: tokens, store: store}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logger, metrics)})
	RegisterMiddlewares(app, logger, metrics, time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:      handlers.NewHealthHandler("test", "dev", stubPinger{err: postgres}, stubPinger{err: errors.New("redis down")}),
		Auth:        handlers.NewAuthHandler(flows, guard, engine),
		Admin:       handlers.NewAdminHandler(flows),
		Guard:       guard,
		Metrics:     metrics,
		MetricsPath: "/metrics",
		RateLimit:   RateLimitMiddleware(ctx, rps, 1, logger),
	})
	return &server{app: app, flows: flows}
}

func (s *server) token(t *testing.T, userID string) string {
	t.Helper()
	sess, err := s.flows.session(context.Background(), userID)
	require.NoError(t, err)
	return sess.Tokens.AccessToken
}

func (s *server) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestLoginReturnsTokenPairShape(t *testing.T) {
	s := newServer(t, 100, nil)

	resp, body := s.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "m@example.com", "password": "password-1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["accessToken"])
	assert.NotEmpty(t, body["refreshToken"])
	user, _ := body["user"].(map[string]any)
	assert.Equal(t, "member", user["id"])
	assert.Equal(t, "USER", user["role"])
}

func TestLoginValidationAndFailure(t *testing.T) {
	s := newServer(t, 100, nil)

	resp, body := s.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "m@example.com"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, apperrors.CodeValidation, errorCode(body))

	resp, body = s.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "m@example.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, apperrors.CodeUnauthorized, errorCode(body))
}

func TestRefreshRejectionCarriesTokenCode(t *testing.T) {
	s := newServer(t, 100, nil)
	s.flows.refreshErr = auth.ToDomainError(auth.ErrTokenRevoked)

	resp, body := s.do(t, http.MethodPost, "/auth/refresh", "", map[string]string{"refreshToken": "stale"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, apperrors.CodeTokenRevoked, errorCode(body))
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newServer(t, 100, nil)

	resp, body := s.do(t, http.MethodGet, "/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, apperrors.CodeUnauthorized, errorCode(body))

	resp, body = s.do(t, http.MethodGet, "/auth/me", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, apperrors.CodeTokenInvalid, errorCode(body))

	resp, body = s.do(t, http.MethodGet, "/auth/me", s.token(t, "member"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, _ := body["data"].(map[string]any)
	assert.Equal(t, "member", data["id"])
}

func TestLogoutRevokesCaller(t *testing.T) {
	s := newServer(t, 100, nil)

	resp, _ := s.do(t, http.MethodPost, "/auth/logout", s.token(t, "member"), nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, []string{"member"}, s.flows.loggedOut)
}

func TestPermissionsEndpoints(t *testing.T) {
	s := newServer(t, 100, nil)
	member := s.token(t, "member")

	resp, body := s.do(t, http.MethodGet, "/auth/permissions", member, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, _ := body["data"].(map[string]any)
	assert.Equal(t, "USER", data["role"])
	grants, _ := data["permissions"].(map[string]any)
	assert.Equal(t, true, grants["VIEW_CONTENT"])

	resp, body = s.do(t, http.MethodPost, "/auth/permissions/check", member, map[string]string{"permission": "MODERATE_CONTENT"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, _ = body["data"].(map[string]any)
	assert.Equal(t, false, data["allowed"])

	resp, body = s.do(t, http.MethodPost, "/auth/permissions/check", member, map[string]string{"permission": "VIEW_CONTENT"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, _ = body["data"].(map[string]any)
	assert.Equal(t, true, data["allowed"])

	resp, body = s.do(t, http.MethodPost, "/auth/permissions/check", member, map[string]string{"permission": "FLY"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, apperrors.CodeValidation, errorCode(body))
}

func TestAdminRoleChangeGuarded(t *testing.T) {
	s := newServer(t, 100, nil)

	resp, body := s.do(t, http.MethodPatch, "/admin/users/member/role", s.token(t, "member"), map[string]string{"role": "MODERATOR"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, apperrors.CodePermissionDenied, errorCode(body))
	assert.Empty(t, s.flows.roleCalls)

	resp, body = s.do(t, http.MethodPatch, "/admin/users/member/role", s.token(t, "admin"), map[string]string{"role": "moderator"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, _ := body["data"].(map[string]any)
	assert.Equal(t, "MODERATOR", data["role"])
	assert.Equal(t, []domain.Role{domain.RoleModerator}, s.flows.roleCalls)

	resp, _ = s.do(t, http.MethodPatch, "/admin/users/member/role", "", map[string]string{"role": "MODERATOR"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPasswordResetRequestReturnsToken(t *testing.T) {
	s := newServer(t, 100, nil)

	resp, body := s.do(t, http.MethodPost, "/auth/password/reset/request", "", map[string]string{"email": "m@example.com"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	data, _ := body["data"].(map[string]any)
	assert.Equal(t, "reset-1", data["resetToken"])
}

func TestPublicAuthEndpointsAreRateLimited(t *testing.T) {
	s := newServer(t, 0.001, nil)
	creds := map[string]string{"email": "m@example.com", "password": "password-1"}

	resp, _ := s.do(t, http.MethodPost, "/auth/login", "", creds)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := s.do(t, http.MethodPost, "/auth/login", "", creds)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, apperrors.CodeRateLimited, errorCode(body))
	assert.NotEmpty(t, resp.Header.Get(fiber.HeaderRetryAfter))
}

func TestHealthAndMetrics(t *testing.T) {
	s := newServer(t, 100, nil)

	resp, _ := s.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := s.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "redis outage only degrades readiness")
	assert.Equal(t, "ready", body["status"])

	resp, _ = s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	down := newServer(t, 100, errors.New("pg down"))
	resp, _ = down.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestUnknownRouteIsNotFound(t *testing.T) {
	s := newServer(t, 100, nil)

	resp, body := s.do(t, http.MethodGet, "/auth/unknown", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, apperrors.CodeNotFound, errorCode(body))
}
