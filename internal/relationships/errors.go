package relationships

import (
	"errors"
	"fmt"
)

var (
	// ErrSelfReference indicates an operation named the same participant on both sides.
	ErrSelfReference = errors.New("participant cannot form a relationship with itself")
	// ErrDuplicateRequest indicates the actor already has a pending request to the target.
	ErrDuplicateRequest = errors.New("friend request already pending")
	// ErrAlreadyFriends indicates the pair already has an accepted relationship.
	ErrAlreadyFriends = errors.New("participants are already friends")
	// ErrBlocked indicates the actor has been blocked by the target.
	ErrBlocked = errors.New("participant is blocked")
	// ErrNoPendingRequest indicates there is no pending request in the expected direction.
	ErrNoPendingRequest = errors.New("no pending friend request")
	// ErrNotBlockedByYou indicates only the blocker may lift a block.
	ErrNotBlockedByYou = errors.New("relationship is not blocked by this participant")
	// ErrNoRelationship indicates the pair has no relationship record.
	ErrNoRelationship = errors.New("no relationship between participants")
	// ErrInvalidParticipant indicates a participant key without an identifier.
	ErrInvalidParticipant = errors.New("participant identifier must be provided")
	// ErrStore matches every StoreError via errors.Is.
	ErrStore = errors.New("relationship store failure")
)

// StoreError reports a persistence failure surfaced by the repository.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("relationship store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrStore) match any StoreError.
func (e *StoreError) Is(target error) bool {
	return target == ErrStore
}

func storeError(op string, err error) error {
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// isEngineError reports whether err is one of the precondition failures
// detected before any write.
func isEngineError(err error) bool {
	for _, target := range []error{
		ErrSelfReference,
		ErrDuplicateRequest,
		ErrAlreadyFriends,
		ErrBlocked,
		ErrNoPendingRequest,
		ErrNotBlockedByYou,
		ErrNoRelationship,
		ErrInvalidParticipant,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
