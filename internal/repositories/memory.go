package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vidfriends/friendships/internal/models"
)

// NewInMemoryRelationshipRepository returns a RelationshipRepository backed by in-memory maps.
func NewInMemoryRelationshipRepository() *InMemoryRelationshipRepository {
	return &InMemoryRelationshipRepository{
		records: make(map[string]models.Relationship),
		pairs:   make(map[string]string),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// InMemoryRelationshipRepository implements RelationshipRepository for tests
// and local development. Each call is atomic on its own. WithinTx runs one
// transaction at a time and undoes its writes when fn fails.
type InMemoryRelationshipRepository struct {
	txMu    sync.Mutex
	mu      sync.RWMutex
	records map[string]models.Relationship
	pairs   map[string]string
	now     func() time.Time
}

// WithNowFunc allows tests to override the time source.
func (r *InMemoryRelationshipRepository) WithNowFunc(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// FindBetween returns the record for the unordered pair {a, b}.
func (r *InMemoryRelationshipRepository) FindBetween(_ context.Context, a, b models.ParticipantKey) (models.Relationship, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.pairs[models.PairKey(a, b)]
	if !ok {
		return models.Relationship{}, ErrNotFound
	}
	return r.records[id], nil
}

// FindAllInvolving returns every record where participant is sender or recipient.
func (r *InMemoryRelationshipRepository) FindAllInvolving(_ context.Context, participant models.ParticipantKey) ([]models.Relationship, error) {
	return r.filter(func(rel models.Relationship) bool {
		return rel.Involves(participant)
	}), nil
}

// FindAllInvolvingWithStatus narrows FindAllInvolving to a single status.
func (r *InMemoryRelationshipRepository) FindAllInvolvingWithStatus(_ context.Context, participant models.ParticipantKey, status models.Status) ([]models.Relationship, error) {
	return r.filter(func(rel models.Relationship) bool {
		return rel.Status == status && rel.Involves(participant)
	}), nil
}

// ExistsBetweenWithStatus reports whether the pair has a record in one of the statuses.
func (r *InMemoryRelationshipRepository) ExistsBetweenWithStatus(ctx context.Context, a, b models.ParticipantKey, statuses ...models.Status) (bool, error) {
	rel, err := r.FindBetween(ctx, a, b)
	if err != nil {
		if err == ErrNotFound {
			return false, nil
		}
		return false, err
	}
	for _, status := range statuses {
		if rel.Status == status {
			return true, nil
		}
	}
	return false, nil
}

// Create stores a new record, assigning an ID when none is set.
func (r *InMemoryRelationshipRepository) Create(_ context.Context, rel models.Relationship) (models.Relationship, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pair := rel.PairKey()
	if _, taken := r.pairs[pair]; taken {
		return models.Relationship{}, ErrConflict
	}
	if rel.ID == "" {
		rel.ID = uuid.NewString()
	}
	if _, taken := r.records[rel.ID]; taken {
		return models.Relationship{}, ErrConflict
	}

	now := r.now()
	rel.CreatedAt = now
	rel.UpdatedAt = now

	r.records[rel.ID] = rel
	r.pairs[pair] = rel.ID
	return rel, nil
}

// Update replaces the sender, recipient and status of an existing record.
func (r *InMemoryRelationshipRepository) Update(_ context.Context, rel models.Relationship) (models.Relationship, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.records[rel.ID]
	if !ok {
		return models.Relationship{}, ErrNotFound
	}

	oldPair, newPair := current.PairKey(), rel.PairKey()
	if oldPair != newPair {
		if _, taken := r.pairs[newPair]; taken {
			return models.Relationship{}, ErrConflict
		}
		delete(r.pairs, oldPair)
		r.pairs[newPair] = rel.ID
	}

	current.Sender = rel.Sender
	current.Recipient = rel.Recipient
	current.Status = rel.Status
	current.UpdatedAt = r.now()

	r.records[rel.ID] = current
	return current, nil
}

// Delete removes a record by ID.
func (r *InMemoryRelationshipRepository) Delete(_ context.Context, rel models.Relationship) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.records[rel.ID]
	if !ok {
		return ErrNotFound
	}
	delete(r.records, rel.ID)
	delete(r.pairs, current.PairKey())
	return nil
}

// WithinTx runs fn against a transaction view of the repository. Transactions
// are serialised; calls made outside WithinTx are not blocked by them.
func (r *InMemoryRelationshipRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, repo RelationshipRepository) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()

	tx := &memoryTx{InMemoryRelationshipRepository: r}
	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// Len reports how many records are stored. Useful for tests.
func (r *InMemoryRelationshipRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

func (r *InMemoryRelationshipRepository) filter(keep func(models.Relationship) bool) []models.Relationship {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.Relationship
	for _, rel := range r.records {
		if keep(rel) {
			out = append(out, rel)
		}
	}
	return out
}

func (r *InMemoryRelationshipRepository) get(id string) (models.Relationship, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rel, ok := r.records[id]
	return rel, ok
}

// restore puts record id back to prev, or drops it when it did not exist.
func (r *InMemoryRelationshipRepository) restore(id string, prev models.Relationship, existed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.records[id]; ok {
		delete(r.pairs, current.PairKey())
		delete(r.records, id)
	}
	if existed {
		r.records[id] = prev
		r.pairs[prev.PairKey()] = id
	}
}

// memoryTx is the repository handed to WithinTx callbacks. It journals the
// prior state of every record it writes.
type memoryTx struct {
	*InMemoryRelationshipRepository
	undo []func()
}

func (tx *memoryTx) Create(ctx context.Context, rel models.Relationship) (models.Relationship, error) {
	created, err := tx.InMemoryRelationshipRepository.Create(ctx, rel)
	if err != nil {
		return models.Relationship{}, err
	}
	tx.remember(created.ID, models.Relationship{}, false)
	return created, nil
}

func (tx *memoryTx) Update(ctx context.Context, rel models.Relationship) (models.Relationship, error) {
	prev, existed := tx.get(rel.ID)
	updated, err := tx.InMemoryRelationshipRepository.Update(ctx, rel)
	if err != nil {
		return models.Relationship{}, err
	}
	tx.remember(rel.ID, prev, existed)
	return updated, nil
}

func (tx *memoryTx) Delete(ctx context.Context, rel models.Relationship) error {
	prev, existed := tx.get(rel.ID)
	if err := tx.InMemoryRelationshipRepository.Delete(ctx, rel); err != nil {
		return err
	}
	tx.remember(rel.ID, prev, existed)
	return nil
}

// WithinTx joins the enclosing transaction.
func (tx *memoryTx) WithinTx(ctx context.Context, fn func(ctx context.Context, repo RelationshipRepository) error) error {
	return fn(ctx, tx)
}

func (tx *memoryTx) remember(id string, prev models.Relationship, existed bool) {
	tx.undo = append(tx.undo, func() { tx.restore(id, prev, existed) })
}

func (tx *memoryTx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

var _ RelationshipRepository = (*memoryTx)(nil)
