package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/community-service/internal/domain"
	"github.com/spec-kit/community-service/internal/observability"
	"github.com/spec-kit/community-service/internal/repository"
)

type memoryStore struct {
	mu       sync.Mutex
	users    map[string]*domain.User
	getCalls int
	getErr   error
}

func newMemoryStore(users ...*domain.User) *memoryStore {
	s := &memoryStore{users: make(map[string]*domain.User)}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *memoryStore) GetByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	if s.getErr != nil {
		return nil, s.getErr
	}
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (s *memoryStore) SetRefreshToken(_ context.Context, id string, digest *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.RefreshTokenHash = digest
	return nil
}

func (s *memoryStore) storedDigest(id string) *string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[id].RefreshTokenHash
}

func testTokenConfig() TokenConfig {
	return TokenConfig{
		Issuer:        "test",
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
	}
}

func newTestTokenService(t *testing.T, users ...*domain.User) (*TokenService, *memoryStore) {
	t.Helper()
	store := newMemoryStore(users...)
	return NewTokenService(testTokenConfig(), store, nil), store
}

func TestIssueThenVerifyAccess(t *testing.T) {
	user := &domain.User{ID: "u-1", Role: domain.RoleVerifiedUser}
	svc, store := newTestTokenService(t, user)

	pair, err := svc.Issue(context.Background(), user)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	identity, err := svc.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u-1", identity.UserID)
	assert.Equal(t, domain.RoleVerifiedUser, identity.Role)
	assert.Equal(t, 0, store.getCalls, "verify must not touch the credential store")

	require.NotNil(t, store.storedDigest("u-1"))
	assert.Equal(t, HashToken(pair.RefreshToken), *store.storedDigest("u-1"))
}

func TestVerifyAccessFailures(t *testing.T) {
	user := &domain.User{ID: "u-1", Role: domain.RoleUser}
	svc, _ := newTestTokenService(t, user)
	pair, err := svc.Issue(context.Background(), user)
	require.NoError(t, err)

	t.Run("expired", func(t *testing.T) {
		svc.now = func() time.Time { return time.Now().Add(16 * time.Minute) }
		defer func() { svc.now = time.Now }()

		_, err := svc.VerifyAccess(pair.AccessToken)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("refresh token is not an access token", func(t *testing.T) {
		_, err := svc.VerifyAccess(pair.RefreshToken)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := svc.VerifyAccess("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := svc.VerifyAccess("  ")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("foreign signature", func(t *testing.T) {
		cfg := testTokenConfig()
		cfg.AccessSecret = "other-secret"
		other := NewTokenService(cfg, newMemoryStore(&domain.User{ID: "u-1"}), nil)
		foreign, err := other.Issue(context.Background(), &domain.User{ID: "u-1", Role: domain.RoleSuperAdmin})
		require.NoError(t, err)

		_, err = svc.VerifyAccess(foreign.AccessToken)
		assert.ErrorIs(t, err, ErrInvalidToken)
		assert.NotErrorIs(t, err, ErrTokenExpired)
	})
}

func TestRefreshRotation(t *testing.T) {
	user := &domain.User{ID: "u-1", Role: domain.RoleUser}
	svc, _ := newTestTokenService(t, user)
	ctx := context.Background()

	pair1, err := svc.Issue(ctx, user)
	require.NoError(t, err)

	pair2, refreshed, err := svc.Refresh(ctx, pair1.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "u-1", refreshed.ID)
	assert.NotEqual(t, pair1.RefreshToken, pair2.RefreshToken)

	_, _, err = svc.Refresh(ctx, pair1.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	pair3, _, err := svc.Refresh(ctx, pair2.RefreshToken)
	require.NoError(t, err)

	identity, err := svc.VerifyAccess(pair3.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, identity.Role)
}

func TestRefreshSupersededByNewIssue(t *testing.T) {
	user := &domain.User{ID: "u-1", Role: domain.RoleUser}
	svc, _ := newTestTokenService(t, user)
	ctx := context.Background()

	old, err := svc.Issue(ctx, user)
	require.NoError(t, err)
	_, err = svc.Issue(ctx, user)
	require.NoError(t, err)

	_, _, err = svc.Refresh(ctx, old.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)
}

func TestRefreshAfterRevoke(t *testing.T) {
	user := &domain.User{ID: "u-1", Role: domain.RoleUser}
	svc, store := newTestTokenService(t, user)
	ctx := context.Background()

	pair, err := svc.Issue(ctx, user)
	require.NoError(t, err)
	require.NoError(t, svc.Revoke(ctx, "u-1"))
	assert.Nil(t, store.storedDigest("u-1"))

	_, _, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)
}

func TestRefreshFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("expired", func(t *testing.T) {
		user := &domain.User{ID: "u-1", Role: domain.RoleUser}
		svc, _ := newTestTokenService(t, user)
		pair, err := svc.Issue(ctx, user)
		require.NoError(t, err)

		svc.now = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }
		_, _, err = svc.Refresh(ctx, pair.RefreshToken)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("access token rejected", func(t *testing.T) {
		user := &domain.User{ID: "u-1", Role: domain.RoleUser}
		svc, _ := newTestTokenService(t, user)
		pair, err := svc.Issue(ctx, user)
		require.NoError(t, err)

		_, _, err = svc.Refresh(ctx, pair.AccessToken)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("user deleted", func(t *testing.T) {
		user := &domain.User{ID: "u-1", Role: domain.RoleUser}
		svc, store := newTestTokenService(t, user)
		pair, err := svc.Issue(ctx, user)
		require.NoError(t, err)
		delete(store.users, "u-1")

		_, _, err = svc.Refresh(ctx, pair.RefreshToken)
		assert.ErrorIs(t, err, ErrTokenRevoked)
	})

	t.Run("suspended user is logged out", func(t *testing.T) {
		user := &domain.User{ID: "u-1", Role: domain.RoleUser}
		svc, store := newTestTokenService(t, user)
		pair, err := svc.Issue(ctx, user)
		require.NoError(t, err)
		store.users["u-1"].Status = domain.UserStatusSuspended

		_, _, err = svc.Refresh(ctx, pair.RefreshToken)
		assert.ErrorIs(t, err, ErrTokenRevoked)
		assert.Nil(t, store.storedDigest("u-1"))
	})
}

func TestRefreshStoreErrorIsCounted(t *testing.T) {
	ctx := context.Background()
	user := &domain.User{ID: "u-1", Role: domain.RoleUser}
	store := newMemoryStore(user)
	metrics := observability.NewMetrics("test")
	svc := NewTokenService(testTokenConfig(), store, metrics)

	pair, err := svc.Issue(ctx, user)
	require.NoError(t, err)

	store.getErr = errors.New("connection reset")
	_, _, err = svc.Refresh(ctx, pair.RefreshToken)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTokenRevoked)

	expected := `
# HELP test_auth_token_operations_total Token issue/verify/refresh/revoke outcomes.
# TYPE test_auth_token_operations_total counter
test_auth_token_operations_total{operation="issue",outcome="ok"} 1
test_auth_token_operations_total{operation="refresh",outcome="store_error"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(metrics.Registry(), strings.NewReader(expected), "test_auth_token_operations_total"))
}

func TestIssueRequiresUser(t *testing.T) {
	svc, _ := newTestTokenService(t)
	_, err := svc.Issue(context.Background(), &domain.User{})
	assert.Error(t, err)
}

func TestToDomainErrorCodes(t *testing.T) {
	svc, _ := newTestTokenService(t)
	_, err := svc.VerifyAccess("garbage")

	mapped := ToDomainError(err)
	assert.Contains(t, mapped.Error(), "invalid token")
	assert.ErrorIs(t, mapped, ErrInvalidToken)
}
