package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vidfriends/friendships/internal/models"
)

const (
	txMaxRetries  = 3
	txBaseBackoff = 20 * time.Millisecond

	mysqlDeadlock        = 1213
	mysqlLockWaitTimeout = 1205
)

// relationshipRecord is the gorm mapping of the relationships table.
type relationshipRecord struct {
	ID            string        `gorm:"primaryKey;size:36"`
	PairKey       string        `gorm:"size:512;not null;uniqueIndex:idx_relationships_pair"`
	SenderKind    string        `gorm:"size:64;not null;index:idx_relationships_sender"`
	SenderID      string        `gorm:"size:191;not null;index:idx_relationships_sender"`
	RecipientKind string        `gorm:"size:64;not null;index:idx_relationships_recipient"`
	RecipientID   string        `gorm:"size:191;not null;index:idx_relationships_recipient"`
	Status        models.Status `gorm:"not null;default:0;index"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (relationshipRecord) TableName() string {
	return "relationships"
}

func toRecord(rel models.Relationship) relationshipRecord {
	return relationshipRecord{
		ID:            rel.ID,
		PairKey:       rel.PairKey(),
		SenderKind:    rel.Sender.Kind,
		SenderID:      rel.Sender.ID,
		RecipientKind: rel.Recipient.Kind,
		RecipientID:   rel.Recipient.ID,
		Status:        rel.Status,
		CreatedAt:     rel.CreatedAt,
		UpdatedAt:     rel.UpdatedAt,
	}
}

func (rec relationshipRecord) model() models.Relationship {
	return models.Relationship{
		ID:        rec.ID,
		Sender:    models.ParticipantKey{Kind: rec.SenderKind, ID: rec.SenderID},
		Recipient: models.ParticipantKey{Kind: rec.RecipientKind, ID: rec.RecipientID},
		Status:    rec.Status,
		CreatedAt: rec.CreatedAt.UTC(),
		UpdatedAt: rec.UpdatedAt.UTC(),
	}
}

// GormRelationshipRepository persists relationships through gorm (SQLite or MySQL).
type GormRelationshipRepository struct {
	db   *gorm.DB
	inTx bool
}

// NewGormRelationshipRepository constructs a relationship repository on a gorm handle.
func NewGormRelationshipRepository(db *gorm.DB) *GormRelationshipRepository {
	return &GormRelationshipRepository{db: db}
}

// AutoMigrate creates or updates the relationships table and its indexes.
func (r *GormRelationshipRepository) AutoMigrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&relationshipRecord{}); err != nil {
		return fmt.Errorf("migrate relationships: %w", err)
	}
	return nil
}

// WithinTx runs fn inside a gorm transaction; any returned error rolls it
// back. On MySQL the pair read inside the transaction takes a row lock, and a
// transaction chosen as a deadlock victim is rerun from the start.
func (r *GormRelationshipRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, repo RelationshipRepository) error) error {
	if r.inTx {
		return fn(ctx, r)
	}

	for attempt := 0; ; attempt++ {
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(ctx, &GormRelationshipRepository{db: tx, inTx: true})
		})
		if err == nil || attempt >= txMaxRetries || !retryableTxError(err) {
			return err
		}

		select {
		case <-ctx.Done():
			return err
		case <-time.After(txBaseBackoff << attempt):
		}
	}
}

// FindBetween fetches the record for the unordered pair {a, b}.
func (r *GormRelationshipRepository) FindBetween(ctx context.Context, a, b models.ParticipantKey) (models.Relationship, error) {
	var rec relationshipRecord
	err := r.pairQuery(ctx, a, b).Take(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Relationship{}, ErrNotFound
		}
		return models.Relationship{}, fmt.Errorf("select relationship between %s and %s: %w", a, b, err)
	}
	return rec.model(), nil
}

// pairQuery selects the pair's row. Inside a MySQL transaction it is a
// locking read, so it sees rows committed after the snapshot and holds the
// row (or the gap) until commit. SQLite runs on a single connection and has
// no FOR UPDATE.
func (r *GormRelationshipRepository) pairQuery(ctx context.Context, a, b models.ParticipantKey) *gorm.DB {
	query := r.db.WithContext(ctx).Where("pair_key = ?", models.PairKey(a, b))
	if r.inTx && r.db.Dialector.Name() == "mysql" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return query
}

// FindAllInvolving returns records where the participant is sender or recipient.
func (r *GormRelationshipRepository) FindAllInvolving(ctx context.Context, participant models.ParticipantKey) ([]models.Relationship, error) {
	return r.list(r.involving(ctx, participant))
}

// FindAllInvolvingWithStatus narrows FindAllInvolving to a single status.
func (r *GormRelationshipRepository) FindAllInvolvingWithStatus(ctx context.Context, participant models.ParticipantKey, status models.Status) ([]models.Relationship, error) {
	return r.list(r.involving(ctx, participant).Where("status = ?", status))
}

// ExistsBetweenWithStatus reports whether the pair has a record in one of the statuses.
func (r *GormRelationshipRepository) ExistsBetweenWithStatus(ctx context.Context, a, b models.ParticipantKey, statuses ...models.Status) (bool, error) {
	if len(statuses) == 0 {
		return false, nil
	}

	var count int64
	err := r.db.WithContext(ctx).
		Model(&relationshipRecord{}).
		Where("pair_key = ? AND status IN ?", models.PairKey(a, b), statuses).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check relationship between %s and %s: %w", a, b, err)
	}
	return count > 0, nil
}

// Create persists a new relationship, returning ErrConflict if the pair is taken.
func (r *GormRelationshipRepository) Create(ctx context.Context, rel models.Relationship) (models.Relationship, error) {
	rec := toRecord(rel)
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.CreatedAt = time.Time{}
	rec.UpdatedAt = time.Time{}

	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return models.Relationship{}, ErrConflict
		}
		return models.Relationship{}, fmt.Errorf("insert relationship: %w", err)
	}
	return rec.model(), nil
}

// Update rewrites the direction and status of an existing relationship.
func (r *GormRelationshipRepository) Update(ctx context.Context, rel models.Relationship) (models.Relationship, error) {
	rec := toRecord(rel)

	res := r.db.WithContext(ctx).
		Model(&relationshipRecord{}).
		Where("id = ?", rec.ID).
		Updates(map[string]any{
			"pair_key":       rec.PairKey,
			"sender_kind":    rec.SenderKind,
			"sender_id":      rec.SenderID,
			"recipient_kind": rec.RecipientKind,
			"recipient_id":   rec.RecipientID,
			"status":         rec.Status,
		})
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return models.Relationship{}, ErrConflict
		}
		return models.Relationship{}, fmt.Errorf("update relationship: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.Relationship{}, ErrNotFound
	}

	var stored relationshipRecord
	if err := r.db.WithContext(ctx).Where("id = ?", rec.ID).Take(&stored).Error; err != nil {
		return models.Relationship{}, fmt.Errorf("reload relationship: %w", err)
	}
	return stored.model(), nil
}

// Delete removes a relationship by ID.
func (r *GormRelationshipRepository) Delete(ctx context.Context, rel models.Relationship) error {
	res := r.db.WithContext(ctx).Where("id = ?", rel.ID).Delete(&relationshipRecord{})
	if res.Error != nil {
		return fmt.Errorf("delete relationship: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormRelationshipRepository) involving(ctx context.Context, participant models.ParticipantKey) *gorm.DB {
	return r.db.WithContext(ctx).
		Where("((sender_kind = ? AND sender_id = ?) OR (recipient_kind = ? AND recipient_id = ?))",
			participant.Kind, participant.ID, participant.Kind, participant.ID)
}

func (r *GormRelationshipRepository) list(query *gorm.DB) ([]models.Relationship, error) {
	var recs []relationshipRecord
	if err := query.Order("updated_at DESC, id ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("query relationships: %w", err)
	}

	out := make([]models.Relationship, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.model())
	}
	return out, nil
}

func retryableTxError(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDeadlock || myErr.Number == mysqlLockWaitTimeout
	}
	return false
}

var _ RelationshipRepository = (*GormRelationshipRepository)(nil)
