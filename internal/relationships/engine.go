package relationships

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/vidfriends/friendships/internal/logging"
	"github.com/vidfriends/friendships/internal/models"
	"github.com/vidfriends/friendships/internal/repositories"
)

// Engine applies relationship transitions against a repository. Every
// mutating call is a single read-decide-write unit inside WithinTx.
type Engine struct {
	store    repositories.RelationshipRepository
	observer Observer
	timeout  time.Duration
}

// Option customises an Engine.
type Option func(*Engine)

// WithObserver registers an observer notified after each committed change.
func WithObserver(observer Observer) Option {
	return func(e *Engine) {
		if observer != nil {
			e.observer = observer
		}
	}
}

// WithTimeout bounds each engine operation. Zero disables the bound.
func WithTimeout(timeout time.Duration) Option {
	return func(e *Engine) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

// NewEngine constructs an Engine backed by store.
func NewEngine(store repositories.RelationshipRepository, opts ...Option) *Engine {
	e := &Engine{store: store, observer: NopObserver{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store exposes the repository the engine writes to.
func (e *Engine) Store() repositories.RelationshipRepository {
	return e.store
}

// SendRequest asks target to befriend actor. A pending request in the other
// direction is accepted instead.
func (e *Engine) SendRequest(ctx context.Context, actor, target models.Participant) (models.Relationship, error) {
	return e.mutate(ctx, ActionRequest, actor, target)
}

// AcceptRequest accepts the pending request source sent to actor.
func (e *Engine) AcceptRequest(ctx context.Context, actor, source models.Participant) (models.Relationship, error) {
	return e.mutate(ctx, ActionAccept, actor, source)
}

// DenyRequest denies the pending request source sent to actor.
func (e *Engine) DenyRequest(ctx context.Context, actor, source models.Participant) (models.Relationship, error) {
	return e.mutate(ctx, ActionDeny, actor, source)
}

// RemoveRelationship deletes a pending or accepted relationship. Removing a
// relationship that does not exist succeeds.
func (e *Engine) RemoveRelationship(ctx context.Context, actor, target models.Participant) error {
	_, err := e.mutate(ctx, ActionRemove, actor, target)
	return err
}

// Block replaces whatever the pair holds with a block owned by actor.
func (e *Engine) Block(ctx context.Context, actor, target models.Participant) (models.Relationship, error) {
	return e.mutate(ctx, ActionBlock, actor, target)
}

// Unblock lifts a block previously placed by actor.
func (e *Engine) Unblock(ctx context.Context, actor, target models.Participant) error {
	_, err := e.mutate(ctx, ActionUnblock, actor, target)
	return err
}

// IsFriendWith reports whether the pair has an accepted relationship.
func (e *Engine) IsFriendWith(ctx context.Context, actor, target models.Participant) (bool, error) {
	return e.HasAcceptedRelationshipWith(ctx, actor, target)
}

// HasAcceptedRelationshipWith reports whether the pair has an accepted relationship.
func (e *Engine) HasAcceptedRelationshipWith(ctx context.Context, actor, target models.Participant) (bool, error) {
	a, t, err := keys(actor, target)
	if err != nil {
		return false, err
	}
	if a == t {
		return false, nil
	}
	ok, err := e.store.ExistsBetweenWithStatus(ctx, a, t, models.StatusAccepted)
	if err != nil {
		return false, storeError("exists accepted", err)
	}
	return ok, nil
}

// HasPendingRequestFrom reports whether source has a pending request to actor.
func (e *Engine) HasPendingRequestFrom(ctx context.Context, actor, source models.Participant) (bool, error) {
	rel, found, err := e.lookup(ctx, actor, source)
	if err != nil || !found {
		return false, err
	}
	return rel.Status == models.StatusPending && rel.IsSender(source.IdentityKey().Normalize()), nil
}

// HasBlocked reports whether actor has blocked target.
func (e *Engine) HasBlocked(ctx context.Context, actor, target models.Participant) (bool, error) {
	rel, found, err := e.lookup(ctx, actor, target)
	if err != nil || !found {
		return false, err
	}
	return rel.Status == models.StatusBlocked && rel.IsSender(actor.IdentityKey().Normalize()), nil
}

// IsBlockedBy reports whether other has blocked actor.
func (e *Engine) IsBlockedBy(ctx context.Context, actor, other models.Participant) (bool, error) {
	return e.HasBlocked(ctx, other, actor)
}

// CanSendRequest reports whether a request from actor to target would open a
// new pending request: the pair has no record or a denied one.
func (e *Engine) CanSendRequest(ctx context.Context, actor, target models.Participant) (bool, error) {
	a, t, err := keys(actor, target)
	if err != nil {
		return false, err
	}
	if a == t {
		return false, nil
	}
	rel, found, err := e.lookup(ctx, a, t)
	if err != nil {
		return false, err
	}
	return !found || rel.Status == models.StatusDenied, nil
}

// RelationshipWith returns the pair's record or ErrNoRelationship.
func (e *Engine) RelationshipWith(ctx context.Context, actor, target models.Participant) (models.Relationship, error) {
	rel, found, err := e.lookup(ctx, actor, target)
	if err != nil {
		return models.Relationship{}, err
	}
	if !found {
		return models.Relationship{}, ErrNoRelationship
	}
	return rel, nil
}

func (e *Engine) lookup(ctx context.Context, actor, target models.Participant) (models.Relationship, bool, error) {
	a, t, err := keys(actor, target)
	if err != nil {
		return models.Relationship{}, false, err
	}
	if a == t {
		return models.Relationship{}, false, nil
	}
	rel, err := e.store.FindBetween(ctx, a, t)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.Relationship{}, false, nil
		}
		return models.Relationship{}, false, storeError("find between", err)
	}
	return rel, true, nil
}

// mutate runs one transition inside a store transaction. A write that loses a
// race (ErrConflict on insert, ErrNotFound on update or delete) is reconciled
// by re-reading and deciding again once; a second loss is a StoreError.
func (e *Engine) mutate(ctx context.Context, action Action, actor, target models.Participant) (result models.Relationship, err error) {
	a, t, err := keys(actor, target)
	if err != nil {
		return models.Relationship{}, err
	}

	ctx, span := logging.StartSpan(ctx, "relationships."+string(action),
		slog.String("actor", a.String()),
		slog.String("target", t.String()),
	)
	defer func() { span.End(err) }()

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	var transition Transition
	err = e.store.WithinTx(ctx, func(ctx context.Context, repo repositories.RelationshipRepository) error {
		var lost error
		for attempt := 0; attempt < 2; attempt++ {
			tr, applyErr := apply(ctx, repo, action, a, t)
			switch {
			case applyErr == nil:
				transition = tr
				return nil
			case isEngineError(applyErr):
				return applyErr
			case raceLost(applyErr):
				lost = applyErr
				logging.FromContext(ctx).Debug("relationship write lost a race, reconciling",
					slog.Int("attempt", attempt+1),
					slog.String("error", applyErr.Error()),
				)
			default:
				return storeError(string(action), applyErr)
			}
		}
		return storeError(string(action), lost)
	})
	if err != nil {
		if !isEngineError(err) {
			err = storeError(string(action), err)
		}
		return models.Relationship{}, err
	}

	if transition.Changed() {
		e.observer.RelationshipChanged(ctx, transition)
	}
	if transition.To != nil {
		return *transition.To, nil
	}
	return models.Relationship{}, nil
}

func apply(ctx context.Context, repo repositories.RelationshipRepository, action Action, actor, target models.ParticipantKey) (Transition, error) {
	tr := Transition{Action: action, Actor: actor, Target: target}

	existing, err := repo.FindBetween(ctx, actor, target)
	switch {
	case err == nil:
		tr.From = &existing
	case errors.Is(err, repositories.ErrNotFound):
	default:
		return Transition{}, err
	}

	p, err := decide(action, tr.From, actor, target)
	if err != nil {
		return Transition{}, err
	}

	switch p.write {
	case writeNone:
		tr.To = tr.From
	case writeCreate:
		created, err := repo.Create(ctx, p.next)
		if err != nil {
			return Transition{}, err
		}
		tr.To = &created
	case writeUpdate:
		updated, err := repo.Update(ctx, p.next)
		if err != nil {
			return Transition{}, err
		}
		tr.To = &updated
	case writeDelete:
		if err := repo.Delete(ctx, *tr.From); err != nil {
			return Transition{}, err
		}
	case writeReplace:
		if err := repo.Delete(ctx, *tr.From); err != nil {
			return Transition{}, err
		}
		created, err := repo.Create(ctx, p.next)
		if err != nil {
			return Transition{}, err
		}
		tr.To = &created
	}
	tr.write = p.write
	return tr, nil
}

func raceLost(err error) bool {
	return errors.Is(err, repositories.ErrConflict) || errors.Is(err, repositories.ErrNotFound)
}

func keys(actor, target models.Participant) (models.ParticipantKey, models.ParticipantKey, error) {
	a, err := participantKey(actor)
	if err != nil {
		return models.ParticipantKey{}, models.ParticipantKey{}, err
	}
	t, err := participantKey(target)
	if err != nil {
		return models.ParticipantKey{}, models.ParticipantKey{}, err
	}
	return a, t, nil
}
