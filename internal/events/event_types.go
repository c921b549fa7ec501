package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/community-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventUserRegistered      EventType = "user_registered"
	EventUserLoggedIn        EventType = "user_logged_in"
	EventLoginFailed         EventType = "login_failed"
	EventTokenRefreshed      EventType = "token_refreshed"
	EventRefreshRejected     EventType = "refresh_rejected"
	EventSessionRevoked      EventType = "session_revoked"
	EventPasswordChanged     EventType = "password_changed"
	EventPasswordResetIssued EventType = "password_reset_issued"
	EventRoleChanged         EventType = "role_changed"
)

// Actor identifies who caused the event. Empty for anonymous callers.
type Actor struct {
	UserID string      `json:"user_id,omitempty"`
	Role   domain.Role `json:"role,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	UserID    string      `json:"user_id,omitempty"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// New stamps an event with an id and the current time.
func New(eventType EventType, userID string, actor Actor, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		UserID:    userID,
		Actor:     actor,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// LoginFailedPayload payload.
type LoginFailedPayload struct {
	Email  string `json:"email"`
	Reason string `json:"reason"`
}

// RefreshRejectedPayload payload. Reason is one of invalid, expired, revoked.
type RefreshRejectedPayload struct {
	Reason string `json:"reason"`
}

// SessionRevokedPayload payload.
type SessionRevokedPayload struct {
	Reason string `json:"reason"`
}

// RoleChangedPayload payload.
type RoleChangedPayload struct {
	OldRole domain.Role `json:"old_role"`
	NewRole domain.Role `json:"new_role"`
}
