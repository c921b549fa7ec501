package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/community-service/internal/events"
	"github.com/spec-kit/community-service/internal/observability"
)

// AuditService writes an audit log line for every auth event.
type AuditService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewAuditService creates the service.
func NewAuditService(dispatcher events.Dispatcher, logger *zap.Logger, metrics *observability.Metrics) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{
		dispatcher: dispatcher,
		logger:     logger.Named("audit"),
		metrics:    metrics,
	}
}

// RegisterHandlers subscribes to events.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	a.dispatcher.Subscribe(events.EventUserRegistered, a.handleInfo)
	a.dispatcher.Subscribe(events.EventUserLoggedIn, a.handleInfo)
	a.dispatcher.Subscribe(events.EventTokenRefreshed, a.handleDebug)
	a.dispatcher.Subscribe(events.EventSessionRevoked, a.handleInfo)
	a.dispatcher.Subscribe(events.EventPasswordChanged, a.handleInfo)
	a.dispatcher.Subscribe(events.EventPasswordResetIssued, a.handleInfo)
	a.dispatcher.Subscribe(events.EventRoleChanged, a.handleInfo)
	a.dispatcher.Subscribe(events.EventLoginFailed, a.handleWarn)
	a.dispatcher.Subscribe(events.EventRefreshRejected, a.handleRefreshRejected)
}

func (a *AuditService) handleInfo(_ context.Context, event events.Event) error {
	a.logger.Info(string(event.Type), fields(event)...)
	return nil
}

func (a *AuditService) handleDebug(_ context.Context, event events.Event) error {
	a.logger.Debug(string(event.Type), fields(event)...)
	return nil
}

func (a *AuditService) handleWarn(_ context.Context, event events.Event) error {
	a.logger.Warn(string(event.Type), fields(event)...)
	return nil
}

// A revoked refresh token that is still presented is either a stale client
// or a stolen token replayed after rotation.
func (a *AuditService) handleRefreshRejected(_ context.Context, event events.Event) error {
	if payload, ok := event.Payload.(events.RefreshRejectedPayload); ok {
		a.metrics.RecordTokenOperation("refresh_rejected", payload.Reason)
		if payload.Reason == "revoked" {
			a.logger.Warn("superseded refresh token presented", fields(event)...)
			return nil
		}
	}
	a.logger.Info(string(event.Type), fields(event)...)
	return nil
}

func fields(event events.Event) []zap.Field {
	out := []zap.Field{
		zap.String("event_id", event.ID),
		zap.Time("timestamp", event.Timestamp),
	}
	if event.UserID != "" {
		out = append(out, zap.String("user_id", event.UserID))
	}
	if event.Actor.UserID != "" {
		out = append(out, zap.String("actor_id", event.Actor.UserID), zap.String("actor_role", event.Actor.Role.String()))
	}
	if event.Payload != nil {
		out = append(out, zap.Any("payload", event.Payload))
	}
	return out
}
