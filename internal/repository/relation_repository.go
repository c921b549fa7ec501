package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/community-service/internal/domain"
)

// RelationRepository answers ownership, assignment and community membership
// questions for a (resource, user) pair. It backs the route guard's
// authorization context and never caches.
type RelationRepository interface {
	Resolve(ctx context.Context, resourceType domain.ResourceType, resourceID, userID string) (domain.ResourceRelation, error)
}

type relationRepository struct {
	pool *pgxpool.Pool
}

// NewRelationRepository returns a Postgres-backed implementation.
func NewRelationRepository(pool *pgxpool.Pool) RelationRepository {
	return &relationRepository{pool: pool}
}

// Each query selects (is_owner, is_assigned, in_community) for $1 = resource id, $2 = user id.
var relationQueries = map[domain.ResourceType]string{
	domain.ResourceProject: `
        SELECT COALESCE(p.owner_id = $2, FALSE),
               EXISTS (SELECT 1 FROM project_assignments pa WHERE pa.project_id = p.id AND pa.user_id = $2),
               EXISTS (SELECT 1 FROM community_members cm WHERE cm.community_id = p.community_id AND cm.user_id = $2)
        FROM projects p WHERE p.id = $1`,
	domain.ResourceEvent: `
        SELECT COALESCE(e.organizer_id = $2, FALSE),
               EXISTS (SELECT 1 FROM event_assignments ea WHERE ea.event_id = e.id AND ea.user_id = $2),
               EXISTS (SELECT 1 FROM community_members cm WHERE cm.community_id = e.community_id AND cm.user_id = $2)
        FROM events e WHERE e.id = $1`,
	domain.ResourceCommunity: `
        SELECT COALESCE(c.creator_id = $2, FALSE),
               EXISTS (SELECT 1 FROM community_members cm WHERE cm.community_id = c.id AND cm.user_id = $2 AND cm.role = 'admin'),
               EXISTS (SELECT 1 FROM community_members cm WHERE cm.community_id = c.id AND cm.user_id = $2)
        FROM communities c WHERE c.id = $1`,
	domain.ResourceComment: `
        SELECT COALESCE(cm.author_id = $2, FALSE),
               FALSE,
               COALESCE(EXISTS (SELECT 1 FROM community_members m WHERE m.community_id = cm.community_id AND m.user_id = $2), FALSE)
        FROM comments cm WHERE cm.id = $1`,
	domain.ResourceMessage: `
        SELECT COALESCE(m.sender_id = $2, FALSE),
               COALESCE(m.recipient_id = $2, FALSE),
               FALSE
        FROM messages m WHERE m.id = $1`,
	domain.ResourceUser: `
        SELECT u.id = $2, FALSE, FALSE
        FROM users u WHERE u.id = $1`,
}

func (r *relationRepository) Resolve(ctx context.Context, resourceType domain.ResourceType, resourceID, userID string) (domain.ResourceRelation, error) {
	query, ok := relationQueries[resourceType]
	if !ok {
		return domain.ResourceRelation{}, fmt.Errorf("unsupported resource type %q", resourceType)
	}

	rel := domain.ResourceRelation{Exists: true}
	err := r.pool.QueryRow(ctx, query, resourceID, userID).Scan(&rel.IsOwner, &rel.IsAssigned, &rel.InCommunity)
	if err != nil {
		if err = mapError(err); errors.Is(err, ErrNotFound) {
			return domain.ResourceRelation{}, nil
		}
		return domain.ResourceRelation{}, err
	}
	return rel, nil
}
