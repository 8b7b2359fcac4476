package repositories

import (
	"context"

	"github.com/vidfriends/friendships/internal/models"
)

// RelationshipReader exposes the read-only lookups used by list views.
type RelationshipReader interface {
	FindBetween(ctx context.Context, a, b models.ParticipantKey) (models.Relationship, error)
	FindAllInvolving(ctx context.Context, participant models.ParticipantKey) ([]models.Relationship, error)
	FindAllInvolvingWithStatus(ctx context.Context, participant models.ParticipantKey, status models.Status) ([]models.Relationship, error)
	ExistsBetweenWithStatus(ctx context.Context, a, b models.ParticipantKey, statuses ...models.Status) (bool, error)
}

// RelationshipRepository defines data access for relationship records.
//
// At most one record exists per unordered pair; Create returns ErrConflict
// when the pair is already taken. FindBetween returns ErrNotFound when the
// pair has no record. Timestamps are maintained by the repository.
type RelationshipRepository interface {
	RelationshipReader
	Create(ctx context.Context, rel models.Relationship) (models.Relationship, error)
	Update(ctx context.Context, rel models.Relationship) (models.Relationship, error)
	Delete(ctx context.Context, rel models.Relationship) error

	// WithinTx runs fn against a repository bound to a single transaction.
	WithinTx(ctx context.Context, fn func(ctx context.Context, repo RelationshipRepository) error) error
}
