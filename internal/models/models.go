package models

import (
	"fmt"
	"strings"
	"time"
)

// DefaultKind is assumed for participants that do not declare a kind.
const DefaultKind = "user"

// ParticipantKey identifies one side of a relationship. Kind discriminates
// between heterogeneous participant types that share an ID space.
type ParticipantKey struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

// Key builds a ParticipantKey, defaulting the kind when empty.
func Key(kind, id string) ParticipantKey {
	return ParticipantKey{Kind: kind, ID: id}.Normalize()
}

// UserKey is shorthand for a participant of the default kind.
func UserKey(id string) ParticipantKey {
	return ParticipantKey{Kind: DefaultKind, ID: id}
}

// Normalize trims whitespace and applies the default kind.
func (k ParticipantKey) Normalize() ParticipantKey {
	k.Kind = strings.TrimSpace(k.Kind)
	k.ID = strings.TrimSpace(k.ID)
	if k.Kind == "" {
		k.Kind = DefaultKind
	}
	return k
}

// IsZero reports whether the key carries no identifier.
func (k ParticipantKey) IsZero() bool {
	return strings.TrimSpace(k.ID) == ""
}

// Less orders keys by kind then ID.
func (k ParticipantKey) Less(other ParticipantKey) bool {
	if k.Kind != other.Kind {
		return k.Kind < other.Kind
	}
	return k.ID < other.ID
}

func (k ParticipantKey) String() string {
	return k.Kind + ":" + k.ID
}

// IdentityKey lets a bare key be used wherever a Participant is accepted.
func (k ParticipantKey) IdentityKey() ParticipantKey {
	return k
}

// Participant is anything that can take part in a relationship.
type Participant interface {
	IdentityKey() ParticipantKey
}

// PairKey returns the canonical key for the unordered pair {a, b}.
func PairKey(a, b ParticipantKey) string {
	if b.Less(a) {
		a, b = b, a
	}
	return a.String() + "|" + b.String()
}

// Relationship is the single persisted record for an unordered pair.
// Sender is whoever currently holds the initiating role.
type Relationship struct {
	ID        string         `json:"id"`
	Sender    ParticipantKey `json:"sender"`
	Recipient ParticipantKey `json:"recipient"`
	Status    Status         `json:"status"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// PairKey returns the canonical unordered key of the relationship.
func (r Relationship) PairKey() string {
	return PairKey(r.Sender, r.Recipient)
}

// Involves reports whether k is either side of the relationship.
func (r Relationship) Involves(k ParticipantKey) bool {
	return r.Sender == k || r.Recipient == k
}

// IsSender reports whether k holds the initiating role.
func (r Relationship) IsSender(k ParticipantKey) bool {
	return r.Sender == k
}

// IsRecipient reports whether k is on the receiving side.
func (r Relationship) IsRecipient(k ParticipantKey) bool {
	return r.Recipient == k
}

// Other returns the opposite side from k.
func (r Relationship) Other(k ParticipantKey) ParticipantKey {
	if r.Sender == k {
		return r.Recipient
	}
	return r.Sender
}

// Connection pairs a relationship with the participant on the far side.
type Connection struct {
	Peer         ParticipantKey `json:"peer"`
	Relationship Relationship   `json:"relationship"`
}

// Page selects a window of a list result. A non-positive Size means unpaged.
type Page struct {
	Size   int
	Number int
}

// Bounds returns the [start, end) slice bounds for a list of length n.
func (p Page) Bounds(n int) (int, int) {
	if p.Size <= 0 {
		return 0, n
	}
	number := p.Number
	if number < 1 {
		number = 1
	}
	start := (number - 1) * p.Size
	if start > n {
		start = n
	}
	end := start + p.Size
	if end > n {
		end = n
	}
	return start, end
}

func (p Page) String() string {
	return fmt.Sprintf("size=%d page=%d", p.Size, p.Number)
}
