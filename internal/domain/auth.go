package domain

import "time"

// TokenType differentiates the two halves of a token pair.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// TokenPair is returned by login and refresh. It is never persisted as a whole;
// only a digest of RefreshToken is stored on the user record.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Identity is what a verified access token proves about its bearer.
type Identity struct {
	UserID    string
	Role      Role
	TokenID   string
	ExpiresAt time.Time
}
