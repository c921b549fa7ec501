package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/community-service/internal/auth"
	"github.com/spec-kit/community-service/internal/config"
	"github.com/spec-kit/community-service/internal/domain"
	"github.com/spec-kit/community-service/internal/events"
	"github.com/spec-kit/community-service/internal/repository"
	apperrors "github.com/spec-kit/community-service/pkg/util/errorutil"
)

var errInvalidCredentials = apperrors.NewUnauthorized("invalid email or password")

// TokenIssuer is the part of the token service the auth flows drive.
type TokenIssuer interface {
	Issue(ctx context.Context, user *domain.User) (*domain.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, *domain.User, error)
	Revoke(ctx context.Context, userID string) error
}

// Session is the outcome of every flow that hands out tokens.
type Session struct {
	User   *domain.User
	Tokens *domain.TokenPair
}

// Actor identifies the authenticated caller of an administrative flow.
type Actor struct {
	UserID string
	Role   domain.Role
}

// AuthService coordinates registration, login and session lifecycle flows.
type AuthService struct {
	users      repository.UserRepository
	resets     repository.PasswordResetRepository
	tokens     TokenIssuer
	throttle   auth.LoginThrottle
	dispatcher events.Dispatcher
	logger     *zap.Logger
	bcryptCost int
	resetTTL   time.Duration
	now        func() time.Time
}

// AuthDependencies encapsulates collaborators for the auth service.
type AuthDependencies struct {
	UserRepo          repository.UserRepository
	PasswordResetRepo repository.PasswordResetRepository
	Tokens            TokenIssuer
	Throttle          auth.LoginThrottle
	Dispatcher        events.Dispatcher
	Logger            *zap.Logger
}

// NewAuthService builds the service. Throttle and Dispatcher are optional.
func NewAuthService(cfg config.AuthConfig, deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	resetTTL := time.Duration(cfg.PasswordResetTTLMinutes) * time.Minute
	if resetTTL <= 0 {
		resetTTL = 30 * time.Minute
	}
	return &AuthService{
		users:      deps.UserRepo,
		resets:     deps.PasswordResetRepo,
		tokens:     deps.Tokens,
		throttle:   deps.Throttle,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		bcryptCost: cfg.BcryptCost,
		resetTTL:   resetTTL,
		now:        time.Now,
	}
}

// Register creates a USER account and signs it in.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (*Session, error) {
	email = normalizeEmail(email)
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, apperrors.NewConflict("email already registered", nil)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewInternalError(err)
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	user := &domain.User{
		Name:         strings.TrimSpace(name),
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleUser,
		Status:       domain.UserStatusActive,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewConflict("email already registered", nil)
		}
		return nil, apperrors.NewInternalError(err)
	}

	pair, err := s.tokens.Issue(ctx, user)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	s.publish(ctx, events.New(events.EventUserRegistered, user.ID, actorOf(user), nil))
	return &Session{User: user, Tokens: pair}, nil
}

// Login verifies credentials and issues a pair, replacing any session the
// user had elsewhere. Repeated failures lock the email for a while.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	email = normalizeEmail(email)

	if s.throttle != nil {
		allowed, retryAfter, err := s.throttle.Allow(ctx, email)
		if err != nil {
			s.logger.Warn("login throttle unavailable", zap.Error(err))
		} else if !allowed {
			return nil, apperrors.NewRateLimited("too many failed login attempts", int(math.Ceil(retryAfter.Seconds())))
		}
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.loginFailed(ctx, email, "unknown_email")
			return nil, errInvalidCredentials
		}
		return nil, apperrors.NewInternalError(err)
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		s.loginFailed(ctx, email, "bad_password")
		return nil, errInvalidCredentials
	}
	if user.Status == domain.UserStatusSuspended {
		return nil, apperrors.NewForbidden("account suspended")
	}

	if s.throttle != nil {
		if err := s.throttle.Reset(ctx, email); err != nil {
			s.logger.Warn("reset login throttle", zap.Error(err))
		}
	}

	pair, err := s.tokens.Issue(ctx, user)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	s.publish(ctx, events.New(events.EventUserLoggedIn, user.ID, actorOf(user), nil))
	return &Session{User: user, Tokens: pair}, nil
}

// Refresh rotates the pair. Token failures come back as 401 domain errors
// carrying TOKEN_INVALID, TOKEN_EXPIRED or TOKEN_REVOKED.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	pair, user, err := s.tokens.Refresh(ctx, refreshToken)
	if err != nil {
		if reason := refreshFailure(err); reason != "" {
			s.publish(ctx, events.New(events.EventRefreshRejected, "", events.Actor{}, events.RefreshRejectedPayload{Reason: reason}))
			return nil, auth.ToDomainError(err)
		}
		return nil, apperrors.NewInternalError(err)
	}
	s.publish(ctx, events.New(events.EventTokenRefreshed, user.ID, actorOf(user), nil))
	return &Session{User: user, Tokens: pair}, nil
}

// Logout clears the caller's refresh token.
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	if err := s.tokens.Revoke(ctx, userID); err != nil {
		return apperrors.NewInternalError(err)
	}
	s.publish(ctx, events.New(events.EventSessionRevoked, userID, events.Actor{UserID: userID},
		events.SessionRevokedPayload{Reason: "logout"}))
	return nil
}

// Me loads the caller's account.
func (s *AuthService) Me(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, notFoundOrInternal("user", err)
	}
	return user, nil
}

// RequestPasswordReset stores a reset token for email. Unknown emails yield
// a nil token and no error so callers cannot probe for accounts.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) (*repository.PasswordResetToken, error) {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, apperrors.NewInternalError(err)
	}

	token := &repository.PasswordResetToken{
		UserID:    user.ID,
		Token:     uuid.NewString(),
		ExpiresAt: s.now().Add(s.resetTTL),
	}
	if err := s.resets.Create(ctx, token); err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	s.publish(ctx, events.New(events.EventPasswordResetIssued, user.ID, events.Actor{}, nil))
	return token, nil
}

// ConfirmPasswordReset sets a new password and ends the user's session.
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, tokenStr, newPassword string) error {
	invalid := apperrors.NewValidationError("invalid or expired reset token", nil)

	token, err := s.resets.GetByToken(ctx, tokenStr)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return invalid
		}
		return apperrors.NewInternalError(err)
	}
	if !token.Usable(s.now()) {
		return invalid
	}
	// Claim before writing: a concurrent confirm with the same token must
	// not reach the password update.
	if err := s.resets.MarkUsed(ctx, token.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return invalid
		}
		return apperrors.NewInternalError(err)
	}

	user, err := s.users.GetByID(ctx, token.UserID)
	if err != nil {
		return notFoundOrInternal("user", err)
	}
	hash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	user.PasswordHash = hash
	if err := s.users.Update(ctx, user); err != nil {
		return apperrors.NewInternalError(err)
	}
	if err := s.tokens.Revoke(ctx, user.ID); err != nil {
		return apperrors.NewInternalError(err)
	}

	s.publish(ctx, events.New(events.EventPasswordChanged, user.ID, events.Actor{}, nil))
	return nil
}

// ChangePassword verifies the current password, stores the new one and
// issues a fresh pair so every other session stops refreshing.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) (*Session, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, notFoundOrInternal("user", err)
	}
	if err := auth.ComparePassword(user.PasswordHash, currentPassword); err != nil {
		return nil, apperrors.NewValidationError("current password is incorrect", nil)
	}

	hash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	user.PasswordHash = hash
	if err := s.users.Update(ctx, user); err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	pair, err := s.tokens.Issue(ctx, user)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	s.publish(ctx, events.New(events.EventPasswordChanged, user.ID, actorOf(user), nil))
	return &Session{User: user, Tokens: pair}, nil
}

// ChangeRole moves target to newRole. The caller already holds MANAGE_ROLES;
// here it must also outrank both the current and the new role. The target's
// refresh token is revoked so the new role takes effect on the next login.
func (s *AuthService) ChangeRole(ctx context.Context, actor Actor, targetID string, newRole domain.Role) (*domain.User, error) {
	if !newRole.Valid() {
		return nil, apperrors.NewValidationError("unknown role", map[string]any{"role": string(newRole)})
	}
	if actor.UserID == targetID {
		return nil, apperrors.NewForbidden("cannot change own role")
	}

	target, err := s.users.GetByID(ctx, targetID)
	if err != nil {
		return nil, notFoundOrInternal("user", err)
	}
	if !auth.CanAssignRole(actor.Role, target.Role, newRole) {
		return nil, apperrors.NewForbidden("role change exceeds caller's rank")
	}

	oldRole := target.Role
	if oldRole == newRole {
		return target, nil
	}
	// Revoke before the role update; a failed revoke leaves the role untouched.
	if err := s.tokens.Revoke(ctx, target.ID); err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if err := s.users.UpdateRole(ctx, target.ID, newRole); err != nil {
		return nil, notFoundOrInternal("user", err)
	}
	target.Role = newRole
	target.RefreshTokenHash = nil

	s.publish(ctx, events.New(events.EventRoleChanged, target.ID, events.Actor{UserID: actor.UserID, Role: actor.Role},
		events.RoleChangedPayload{OldRole: oldRole, NewRole: newRole}))
	return target, nil
}

// RevokeSessions forces target to log in again once its access token expires.
func (s *AuthService) RevokeSessions(ctx context.Context, actor Actor, targetID string) error {
	target, err := s.users.GetByID(ctx, targetID)
	if err != nil {
		return notFoundOrInternal("user", err)
	}
	if actor.UserID != target.ID && actor.Role != domain.RoleSuperAdmin && !actor.Role.HasHigherRole(target.Role) {
		return apperrors.NewForbidden("cannot revoke sessions of an equal or higher role")
	}
	if err := s.tokens.Revoke(ctx, target.ID); err != nil {
		return apperrors.NewInternalError(err)
	}
	s.publish(ctx, events.New(events.EventSessionRevoked, target.ID, events.Actor{UserID: actor.UserID, Role: actor.Role},
		events.SessionRevokedPayload{Reason: "admin"}))
	return nil
}

func (s *AuthService) loginFailed(ctx context.Context, email, reason string) {
	if s.throttle != nil {
		if err := s.throttle.RecordFailure(ctx, email); err != nil {
			s.logger.Warn("record login failure", zap.Error(err))
		}
	}
	s.publish(ctx, events.New(events.EventLoginFailed, "", events.Actor{},
		events.LoginFailedPayload{Email: email, Reason: reason}))
}

func (s *AuthService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func refreshFailure(err error) string {
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		return "expired"
	case errors.Is(err, auth.ErrTokenRevoked):
		return "revoked"
	case errors.Is(err, auth.ErrInvalidToken):
		return "invalid"
	default:
		return ""
	}
}

func notFoundOrInternal(resource string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound(resource, nil)
	}
	return apperrors.NewInternalError(err)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func actorOf(user *domain.User) events.Actor {
	return events.Actor{UserID: user.ID, Role: user.Role}
}
