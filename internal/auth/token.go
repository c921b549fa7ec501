package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/spec-kit/community-service/internal/domain"
	"github.com/spec-kit/community-service/internal/observability"
	"github.com/spec-kit/community-service/internal/repository"
)

// CredentialStore is the narrow view of the user store the token service needs.
type CredentialStore interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	SetRefreshToken(ctx context.Context, id string, digest *string) error
}

// TokenConfig holds signing material and lifetimes. The two secrets must differ.
type TokenConfig struct {
	Issuer        string
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// TokenService is the only component that mints and validates tokens.
type TokenService struct {
	issuer        string
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	store         CredentialStore
	metrics       *observability.Metrics
	now           func() time.Time
}

// NewTokenService builds a new service.
func NewTokenService(cfg TokenConfig, store CredentialStore, metrics *observability.Metrics) *TokenService {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	return &TokenService{
		issuer:        cfg.Issuer,
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		store:         store,
		metrics:       metrics,
		now:           time.Now,
	}
}

// Claims describes the JWT payload of both token kinds. Role is only set on access tokens.
type Claims struct {
	Role domain.Role      `json:"role,omitempty"`
	Type domain.TokenType `json:"typ"`
	jwt.RegisteredClaims
}

// Issue mints a new pair for user and stores the refresh token digest,
// replacing whatever was stored before. This is the rotation point.
func (s *TokenService) Issue(ctx context.Context, user *domain.User) (*domain.TokenPair, error) {
	if user == nil || strings.TrimSpace(user.ID) == "" {
		return nil, errors.New("issue: user id is required")
	}

	now := s.now().UTC()
	accessToken, accessExp, err := s.sign(s.accessSecret, domain.TokenTypeAccess, user.ID, user.Role, now, s.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refreshToken, refreshExp, err := s.sign(s.refreshSecret, domain.TokenTypeRefresh, user.ID, "", now, s.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	digest := HashToken(refreshToken)
	if err := s.store.SetRefreshToken(ctx, user.ID, &digest); err != nil {
		s.metrics.RecordTokenOperation("issue", "store_error")
		return nil, fmt.Errorf("store refresh token: %w", err)
	}
	user.RefreshTokenHash = &digest
	s.metrics.RecordTokenOperation("issue", "ok")

	return &domain.TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// VerifyAccess checks signature, type and expiry of an access token.
// It never touches the credential store.
func (s *TokenService) VerifyAccess(token string) (*domain.Identity, error) {
	claims, err := s.parse(token, s.accessSecret, domain.TokenTypeAccess)
	if err != nil {
		s.metrics.RecordTokenOperation("verify", outcome(err))
		return nil, err
	}
	return &domain.Identity{
		UserID:    claims.Subject,
		Role:      claims.Role,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Refresh exchanges a refresh token for a new pair. The token must be
// authentic, unexpired and equal to the value stored for its user;
// a superseded or cleared token yields ErrTokenRevoked.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, *domain.User, error) {
	claims, err := s.parse(refreshToken, s.refreshSecret, domain.TokenTypeRefresh)
	if err != nil {
		s.metrics.RecordTokenOperation("refresh", outcome(err))
		return nil, nil, err
	}

	user, err := s.store.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.metrics.RecordTokenOperation("refresh", "revoked")
			return nil, nil, fmt.Errorf("%w: unknown subject", ErrTokenRevoked)
		}
		s.metrics.RecordTokenOperation("refresh", "store_error")
		return nil, nil, fmt.Errorf("load user: %w", err)
	}

	if !user.HasActiveSession() || !digestEqual(*user.RefreshTokenHash, HashToken(refreshToken)) {
		s.metrics.RecordTokenOperation("refresh", "revoked")
		return nil, nil, fmt.Errorf("%w: refresh token superseded", ErrTokenRevoked)
	}
	if user.Status == domain.UserStatusSuspended {
		if err := s.Revoke(ctx, user.ID); err != nil {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("%w: account suspended", ErrTokenRevoked)
	}

	pair, err := s.Issue(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	s.metrics.RecordTokenOperation("refresh", "ok")
	return pair, user, nil
}

// Revoke clears the stored refresh token, ending the user's ability to refresh.
// Access tokens already issued stay valid until they expire.
func (s *TokenService) Revoke(ctx context.Context, userID string) error {
	if err := s.store.SetRefreshToken(ctx, userID, nil); err != nil {
		s.metrics.RecordTokenOperation("revoke", "store_error")
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	s.metrics.RecordTokenOperation("revoke", "ok")
	return nil
}

// AccessTTL returns the configured access token lifetime.
func (s *TokenService) AccessTTL() time.Duration {
	return s.accessTTL
}

func (s *TokenService) sign(secret []byte, typ domain.TokenType, subject string, role domain.Role, now time.Time, ttl time.Duration) (string, time.Time, error) {
	expiresAt := now.Add(ttl)
	claims := &Claims{
		Role: role,
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

func (s *TokenService) parse(tokenStr string, secret []byte, want domain.TokenType) (*Claims, error) {
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return nil, ErrInvalidToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("%w: unexpected claims", ErrInvalidToken)
	}
	if claims.Type != want {
		return nil, fmt.Errorf("%w: expected %s token", ErrInvalidToken, want)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: subject missing", ErrInvalidToken)
	}
	return claims, nil
}

// HashToken returns the hex SHA-256 digest stored in place of a refresh token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func digestEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrTokenRevoked):
		return "revoked"
	default:
		return "invalid"
	}
}
