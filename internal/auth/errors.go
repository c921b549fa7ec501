package auth

import (
	"errors"

	apperrors "github.com/spec-kit/community-service/pkg/util/errorutil"
)

// Token and authorization failure kinds. Callers match them with errors.Is.
var (
	// ErrInvalidToken covers malformed tokens, bad signatures and wrong token types. Not retryable.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is recoverable: the session client refreshes and retries.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked means the refresh token no longer matches the stored one.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrPermissionDenied is returned for a valid session lacking a grant.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrMissingCredentials is returned when no bearer token was presented.
	ErrMissingCredentials = errors.New("missing credentials")
)

// ToDomainError maps token failures onto the HTTP error taxonomy.
// Errors that are not token failures are passed through unchanged.
func ToDomainError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrTokenExpired):
		return apperrors.NewTokenError(apperrors.CodeTokenExpired, "token expired", err)
	case errors.Is(err, ErrTokenRevoked):
		return apperrors.NewTokenError(apperrors.CodeTokenRevoked, "session revoked", err)
	case errors.Is(err, ErrInvalidToken):
		return apperrors.NewTokenError(apperrors.CodeTokenInvalid, "invalid token", err)
	case errors.Is(err, ErrMissingCredentials):
		return apperrors.NewTokenError(apperrors.CodeUnauthorized, "authentication required", err)
	default:
		return err
	}
}
