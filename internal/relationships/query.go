package relationships

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/vidfriends/friendships/internal/models"
	"github.com/vidfriends/friendships/internal/repositories"
)

const defaultFanoutLimit = 8

// QueryService builds read-side views over relationship records. It takes no
// locks; a view may reflect the state before or after a concurrent write.
type QueryService struct {
	store  repositories.RelationshipReader
	fanout int
}

// QueryOption customises a QueryService.
type QueryOption func(*QueryService)

// WithFanoutLimit caps concurrent store reads in FriendsOfFriends.
func WithFanoutLimit(limit int) QueryOption {
	return func(q *QueryService) {
		if limit > 0 {
			q.fanout = limit
		}
	}
}

// NewQueryService constructs a QueryService over store.
func NewQueryService(store repositories.RelationshipReader, opts ...QueryOption) *QueryService {
	q := &QueryService{store: store, fanout: defaultFanoutLimit}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// ListAll returns every relationship involving actor.
func (q *QueryService) ListAll(ctx context.Context, actor models.Participant, page models.Page) ([]models.Connection, error) {
	self, err := participantKey(actor)
	if err != nil {
		return nil, err
	}
	rels, err := q.store.FindAllInvolving(ctx, self)
	if err != nil {
		return nil, storeError("list all", err)
	}
	return connections(self, rels, page, nil), nil
}

// ListFriends returns actor's accepted relationships.
func (q *QueryService) ListFriends(ctx context.Context, actor models.Participant, page models.Page) ([]models.Connection, error) {
	return q.byStatus(ctx, "list friends", actor, models.StatusAccepted, page, nil)
}

// ListPendingIncoming returns pending requests sent to actor.
func (q *QueryService) ListPendingIncoming(ctx context.Context, actor models.Participant, page models.Page) ([]models.Connection, error) {
	return q.byStatus(ctx, "list pending incoming", actor, models.StatusPending, page, models.Relationship.IsRecipient)
}

// ListPendingOutgoing returns pending requests actor has sent.
func (q *QueryService) ListPendingOutgoing(ctx context.Context, actor models.Participant, page models.Page) ([]models.Connection, error) {
	return q.byStatus(ctx, "list pending outgoing", actor, models.StatusPending, page, models.Relationship.IsSender)
}

// ListPending returns pending requests in either direction.
func (q *QueryService) ListPending(ctx context.Context, actor models.Participant, page models.Page) ([]models.Connection, error) {
	return q.byStatus(ctx, "list pending", actor, models.StatusPending, page, nil)
}

// ListDenied returns denied requests where actor is either party.
func (q *QueryService) ListDenied(ctx context.Context, actor models.Participant, page models.Page) ([]models.Connection, error) {
	return q.byStatus(ctx, "list denied", actor, models.StatusDenied, page, nil)
}

// ListBlocked returns blocks where actor is either party.
func (q *QueryService) ListBlocked(ctx context.Context, actor models.Participant, page models.Page) ([]models.Connection, error) {
	return q.byStatus(ctx, "list blocked", actor, models.StatusBlocked, page, nil)
}

// ListBlocking returns blocks actor has placed.
func (q *QueryService) ListBlocking(ctx context.Context, actor models.Participant, page models.Page) ([]models.Connection, error) {
	return q.byStatus(ctx, "list blocking", actor, models.StatusBlocked, page, models.Relationship.IsSender)
}

// CountFriends returns how many accepted relationships actor has.
func (q *QueryService) CountFriends(ctx context.Context, actor models.Participant) (int, error) {
	self, err := participantKey(actor)
	if err != nil {
		return 0, err
	}
	rels, err := q.store.FindAllInvolvingWithStatus(ctx, self, models.StatusAccepted)
	if err != nil {
		return 0, storeError("count friends", err)
	}
	return len(rels), nil
}

// FriendsOfFriends returns participants accepted by one of actor's friends,
// excluding actor and actor's direct friends, ordered by kind then ID.
func (q *QueryService) FriendsOfFriends(ctx context.Context, actor models.Participant, page models.Page) ([]models.ParticipantKey, error) {
	self, err := participantKey(actor)
	if err != nil {
		return nil, err
	}

	direct, err := q.store.FindAllInvolvingWithStatus(ctx, self, models.StatusAccepted)
	if err != nil {
		return nil, storeError("friends of friends", err)
	}

	friends := make([]models.ParticipantKey, 0, len(direct))
	exclude := map[models.ParticipantKey]struct{}{self: {}}
	for _, rel := range direct {
		peer := rel.Other(self)
		if _, seen := exclude[peer]; seen {
			continue
		}
		exclude[peer] = struct{}{}
		friends = append(friends, peer)
	}

	hops := make([][]models.Relationship, len(friends))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(q.fanout)
	for i, friend := range friends {
		i, friend := i, friend
		g.Go(func() error {
			rels, err := q.store.FindAllInvolvingWithStatus(gctx, friend, models.StatusAccepted)
			if err != nil {
				return err
			}
			hops[i] = rels
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, storeError("friends of friends", err)
	}

	found := make(map[models.ParticipantKey]struct{})
	for i, friend := range friends {
		for _, rel := range hops[i] {
			candidate := rel.Other(friend)
			if _, skip := exclude[candidate]; skip {
				continue
			}
			found[candidate] = struct{}{}
		}
	}

	out := make([]models.ParticipantKey, 0, len(found))
	for key := range found {
		out = append(out, key)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })

	start, end := page.Bounds(len(out))
	return out[start:end], nil
}

func (q *QueryService) byStatus(ctx context.Context, op string, actor models.Participant, status models.Status, page models.Page, role func(models.Relationship, models.ParticipantKey) bool) ([]models.Connection, error) {
	self, err := participantKey(actor)
	if err != nil {
		return nil, err
	}
	rels, err := q.store.FindAllInvolvingWithStatus(ctx, self, status)
	if err != nil {
		return nil, storeError(op, err)
	}
	return connections(self, rels, page, role), nil
}

// connections filters rels by role, orders them newest first with ID as the
// tie-break, and slices out the requested page.
func connections(self models.ParticipantKey, rels []models.Relationship, page models.Page, role func(models.Relationship, models.ParticipantKey) bool) []models.Connection {
	kept := make([]models.Relationship, 0, len(rels))
	for _, rel := range rels {
		if role == nil || role(rel, self) {
			kept = append(kept, rel)
		}
	}
	sort.Slice(kept, func(i, j int) bool {
		if !kept[i].UpdatedAt.Equal(kept[j].UpdatedAt) {
			return kept[i].UpdatedAt.After(kept[j].UpdatedAt)
		}
		return kept[i].ID < kept[j].ID
	})

	start, end := page.Bounds(len(kept))
	out := make([]models.Connection, 0, end-start)
	for _, rel := range kept[start:end] {
		out = append(out, models.Connection{Peer: rel.Other(self), Relationship: rel})
	}
	return out
}

func participantKey(p models.Participant) (models.ParticipantKey, error) {
	if p == nil {
		return models.ParticipantKey{}, ErrInvalidParticipant
	}
	key := p.IdentityKey().Normalize()
	if key.IsZero() {
		return models.ParticipantKey{}, ErrInvalidParticipant
	}
	return key, nil
}
