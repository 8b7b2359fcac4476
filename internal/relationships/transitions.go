package relationships

import (
	"fmt"

	"github.com/vidfriends/friendships/internal/models"
)

// Action names a mutating engine operation.
type Action string

const (
	ActionRequest Action = "request"
	ActionAccept  Action = "accept"
	ActionDeny    Action = "deny"
	ActionRemove  Action = "remove"
	ActionBlock   Action = "block"
	ActionUnblock Action = "unblock"
)

type writeKind int

const (
	writeNone writeKind = iota
	writeCreate
	writeUpdate
	writeDelete
	// writeReplace deletes the current record and creates next in its place.
	writeReplace
)

func (w writeKind) String() string {
	switch w {
	case writeCreate:
		return "create"
	case writeUpdate:
		return "update"
	case writeDelete:
		return "delete"
	case writeReplace:
		return "replace"
	default:
		return "none"
	}
}

// plan is the outcome of a transition decision: which write to perform and
// the record it should leave behind.
type plan struct {
	write writeKind
	next  models.Relationship
}

type decideFunc func(current *models.Relationship, actor, target models.ParticipantKey) (plan, error)

var transitions = map[Action]decideFunc{
	ActionRequest: decideRequest,
	ActionAccept:  decideRespond(models.StatusAccepted),
	ActionDeny:    decideRespond(models.StatusDenied),
	ActionRemove:  decideRemove,
	ActionBlock:   decideBlock,
	ActionUnblock: decideUnblock,
}

// decide computes the transition for action given the pair's current record
// (nil when the pair has none). It never performs I/O.
func decide(action Action, current *models.Relationship, actor, target models.ParticipantKey) (plan, error) {
	fn, ok := transitions[action]
	if !ok {
		return plan{}, fmt.Errorf("unknown relationship action %q", action)
	}
	return fn(current, actor, target)
}

func decideRequest(current *models.Relationship, actor, target models.ParticipantKey) (plan, error) {
	if actor == target {
		return plan{}, ErrSelfReference
	}
	if current == nil {
		return plan{write: writeCreate, next: models.Relationship{
			Sender:    actor,
			Recipient: target,
			Status:    models.StatusPending,
		}}, nil
	}

	next := *current
	switch current.Status {
	case models.StatusPending:
		if current.IsRecipient(actor) {
			next.Status = models.StatusAccepted
			return plan{write: writeUpdate, next: next}, nil
		}
		return plan{}, ErrDuplicateRequest
	case models.StatusAccepted:
		return plan{}, ErrAlreadyFriends
	case models.StatusDenied:
		next.Sender, next.Recipient = actor, target
		next.Status = models.StatusPending
		return plan{write: writeUpdate, next: next}, nil
	case models.StatusBlocked:
		if current.IsRecipient(actor) {
			return plan{}, ErrBlocked
		}
		next.Sender, next.Recipient = actor, target
		next.Status = models.StatusPending
		return plan{write: writeUpdate, next: next}, nil
	default:
		return plan{}, fmt.Errorf("relationship %s has unknown status %d", current.ID, int16(current.Status))
	}
}

// decideRespond covers accept and deny: only the recipient of a pending
// request from source may answer it.
func decideRespond(outcome models.Status) decideFunc {
	return func(current *models.Relationship, actor, source models.ParticipantKey) (plan, error) {
		if current == nil || current.Status != models.StatusPending {
			return plan{}, ErrNoPendingRequest
		}
		if !current.IsSender(source) || !current.IsRecipient(actor) {
			return plan{}, ErrNoPendingRequest
		}
		next := *current
		next.Status = outcome
		return plan{write: writeUpdate, next: next}, nil
	}
}

func decideRemove(current *models.Relationship, actor, target models.ParticipantKey) (plan, error) {
	if actor == target {
		return plan{}, ErrSelfReference
	}
	if current == nil {
		return plan{write: writeNone}, nil
	}
	switch current.Status {
	case models.StatusAccepted, models.StatusPending:
		return plan{write: writeDelete, next: *current}, nil
	case models.StatusDenied, models.StatusBlocked:
		return plan{write: writeNone, next: *current}, nil
	default:
		return plan{}, fmt.Errorf("relationship %s has unknown status %d", current.ID, int16(current.Status))
	}
}

func decideBlock(current *models.Relationship, actor, target models.ParticipantKey) (plan, error) {
	if actor == target {
		return plan{}, ErrSelfReference
	}
	blocked := models.Relationship{
		Sender:    actor,
		Recipient: target,
		Status:    models.StatusBlocked,
	}
	if current == nil {
		return plan{write: writeCreate, next: blocked}, nil
	}
	if current.Status == models.StatusBlocked && current.IsSender(actor) {
		return plan{write: writeNone, next: *current}, nil
	}
	blocked.ID = current.ID
	return plan{write: writeReplace, next: blocked}, nil
}

func decideUnblock(current *models.Relationship, actor, target models.ParticipantKey) (plan, error) {
	if actor == target {
		return plan{}, ErrSelfReference
	}
	if current == nil || current.Status != models.StatusBlocked || !current.IsSender(actor) {
		return plan{}, ErrNotBlockedByYou
	}
	return plan{write: writeDelete, next: *current}, nil
}
