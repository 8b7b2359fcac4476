package relationships

import (
	"context"
	"log/slog"

	"github.com/vidfriends/friendships/internal/logging"
	"github.com/vidfriends/friendships/internal/models"
)

// Transition describes one committed engine operation. From is nil when the
// pair had no record; To is nil when the operation left none.
type Transition struct {
	Action Action
	Actor  models.ParticipantKey
	Target models.ParticipantKey
	From   *models.Relationship
	To     *models.Relationship

	write writeKind
}

// Changed reports whether the operation wrote to the store.
func (t Transition) Changed() bool {
	return t.write != writeNone
}

func (t Transition) attrs() []any {
	attrs := []any{
		slog.String("action", string(t.Action)),
		slog.String("actor", t.Actor.String()),
		slog.String("target", t.Target.String()),
		slog.String("write", t.write.String()),
	}
	if t.From != nil {
		attrs = append(attrs, slog.String("from", t.From.Status.String()))
	}
	if t.To != nil {
		attrs = append(attrs,
			slog.String("to", t.To.Status.String()),
			slog.String("relationship_id", t.To.ID),
		)
	}
	return attrs
}

// Observer is notified after a transition commits.
type Observer interface {
	RelationshipChanged(ctx context.Context, t Transition)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, t Transition)

func (f ObserverFunc) RelationshipChanged(ctx context.Context, t Transition) {
	f(ctx, t)
}

// NopObserver ignores every transition.
type NopObserver struct{}

func (NopObserver) RelationshipChanged(context.Context, Transition) {}

// LogObserver records each transition on the context logger.
type LogObserver struct{}

func (LogObserver) RelationshipChanged(ctx context.Context, t Transition) {
	logging.FromContext(ctx).Info("relationship changed", t.attrs()...)
}

// Observers fans a transition out to several observers in order.
type Observers []Observer

func (o Observers) RelationshipChanged(ctx context.Context, t Transition) {
	for _, observer := range o {
		observer.RelationshipChanged(ctx, t)
	}
}
