package handlers

import (
	"context"

	"github.com/vidfriends/friendships/internal/models"
)

// RelationshipEngine captures the state transitions exposed over HTTP.
type RelationshipEngine interface {
	SendRequest(ctx context.Context, actor, target models.Participant) (models.Relationship, error)
	AcceptRequest(ctx context.Context, actor, source models.Participant) (models.Relationship, error)
	DenyRequest(ctx context.Context, actor, source models.Participant) (models.Relationship, error)
	RemoveRelationship(ctx context.Context, actor, target models.Participant) error
	Block(ctx context.Context, actor, target models.Participant) (models.Relationship, error)
	Unblock(ctx context.Context, actor, target models.Participant) error

	IsFriendWith(ctx context.Context, actor, target models.Participant) (bool, error)
	HasPendingRequestFrom(ctx context.Context, actor, source models.Participant) (bool, error)
	HasBlocked(ctx context.Context, actor, target models.Participant) (bool, error)
	IsBlockedBy(ctx context.Context, actor, other models.Participant) (bool, error)
	CanSendRequest(ctx context.Context, actor, target models.Participant) (bool, error)
	RelationshipWith(ctx context.Context, actor, target models.Participant) (models.Relationship, error)
}

// RelationshipQueries captures the read-side views exposed over HTTP.
type RelationshipQueries interface {
	ListFriends(ctx context.Context, actor models.Participant, page models.Page) ([]models.Connection, error)
	ListPendingIncoming(ctx context.Context, actor models.Participant, page models.Page) ([]models.Connection, error)
	ListPendingOutgoing(ctx context.Context, actor models.Participant, page models.Page) ([]models.Connection, error)
	ListDenied(ctx context.Context, actor models.Participant, page models.Page) ([]models.Connection, error)
	ListBlocked(ctx context.Context, actor models.Participant, page models.Page) ([]models.Connection, error)
	FriendsOfFriends(ctx context.Context, actor models.Participant, page models.Page) ([]models.ParticipantKey, error)
}
