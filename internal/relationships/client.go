package relationships

import (
	"context"

	"github.com/vidfriends/friendships/internal/models"
)

// Client is the engine bound to a single participant. Host entities hold a
// Client instead of carrying relationship methods themselves.
type Client struct {
	engine  *Engine
	queries *QueryService
	self    models.Participant
}

// NewClient binds engine and queries to self.
func NewClient(engine *Engine, queries *QueryService, self models.Participant) *Client {
	return &Client{engine: engine, queries: queries, self: self}
}

// For returns a Client for self using a query service over the engine's store.
func (e *Engine) For(self models.Participant) *Client {
	return NewClient(e, NewQueryService(e.store), self)
}

// Self returns the identity the client acts as.
func (c *Client) Self() models.ParticipantKey {
	return c.self.IdentityKey().Normalize()
}

func (c *Client) SendRequestTo(ctx context.Context, target models.Participant) (models.Relationship, error) {
	return c.engine.SendRequest(ctx, c.self, target)
}

func (c *Client) AcceptRequestFrom(ctx context.Context, source models.Participant) (models.Relationship, error) {
	return c.engine.AcceptRequest(ctx, c.self, source)
}

func (c *Client) DenyRequestFrom(ctx context.Context, source models.Participant) (models.Relationship, error) {
	return c.engine.DenyRequest(ctx, c.self, source)
}

func (c *Client) Remove(ctx context.Context, target models.Participant) error {
	return c.engine.RemoveRelationship(ctx, c.self, target)
}

func (c *Client) Block(ctx context.Context, target models.Participant) (models.Relationship, error) {
	return c.engine.Block(ctx, c.self, target)
}

func (c *Client) Unblock(ctx context.Context, target models.Participant) error {
	return c.engine.Unblock(ctx, c.self, target)
}

func (c *Client) IsFriendWith(ctx context.Context, other models.Participant) (bool, error) {
	return c.engine.IsFriendWith(ctx, c.self, other)
}

func (c *Client) HasPendingRequestFrom(ctx context.Context, source models.Participant) (bool, error) {
	return c.engine.HasPendingRequestFrom(ctx, c.self, source)
}

func (c *Client) HasBlocked(ctx context.Context, other models.Participant) (bool, error) {
	return c.engine.HasBlocked(ctx, c.self, other)
}

func (c *Client) IsBlockedBy(ctx context.Context, other models.Participant) (bool, error) {
	return c.engine.IsBlockedBy(ctx, c.self, other)
}

func (c *Client) CanSendRequestTo(ctx context.Context, target models.Participant) (bool, error) {
	return c.engine.CanSendRequest(ctx, c.self, target)
}

func (c *Client) RelationshipWith(ctx context.Context, other models.Participant) (models.Relationship, error) {
	return c.engine.RelationshipWith(ctx, c.self, other)
}

func (c *Client) Friends(ctx context.Context, page models.Page) ([]models.Connection, error) {
	return c.queries.ListFriends(ctx, c.self, page)
}

func (c *Client) PendingIncoming(ctx context.Context, page models.Page) ([]models.Connection, error) {
	return c.queries.ListPendingIncoming(ctx, c.self, page)
}

func (c *Client) PendingOutgoing(ctx context.Context, page models.Page) ([]models.Connection, error) {
	return c.queries.ListPendingOutgoing(ctx, c.self, page)
}

func (c *Client) FriendsOfFriends(ctx context.Context, page models.Page) ([]models.ParticipantKey, error) {
	return c.queries.FriendsOfFriends(ctx, c.self, page)
}

func (c *Client) All(ctx context.Context, page models.Page) ([]models.Connection, error) {
	return c.queries.ListAll(ctx, c.self, page)
}

func (c *Client) Pending(ctx context.Context, page models.Page) ([]models.Connection, error) {
	return c.queries.ListPending(ctx, c.self, page)
}

func (c *Client) Denied(ctx context.Context, page models.Page) ([]models.Connection, error) {
	return c.queries.ListDenied(ctx, c.self, page)
}

// Blocked lists blocks on either side; Blocking only those c placed.
func (c *Client) Blocked(ctx context.Context, page models.Page) ([]models.Connection, error) {
	return c.queries.ListBlocked(ctx, c.self, page)
}

func (c *Client) Blocking(ctx context.Context, page models.Page) ([]models.Connection, error) {
	return c.queries.ListBlocking(ctx, c.self, page)
}

func (c *Client) FriendCount(ctx context.Context) (int, error) {
	return c.queries.CountFriends(ctx, c.self)
}
