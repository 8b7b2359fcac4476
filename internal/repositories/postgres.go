package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	crdbpgx "github.com/cockroachdb/cockroach-go/v2/crdb/crdbpgxv5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vidfriends/friendships/internal/db"
	"github.com/vidfriends/friendships/internal/models"
)

const relationshipColumns = `id, sender_kind, sender_id, recipient_kind, recipient_id, status, created_at, updated_at`

// querier is satisfied by both a pooled connection and an open transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRelationshipRepository provides PostgreSQL-backed persistence for relationships.
type PostgresRelationshipRepository struct {
	pool db.Pool
	tx   pgx.Tx
	now  func() time.Time
}

// NewPostgresRelationshipRepository constructs a relationship repository backed by PostgreSQL.
func NewPostgresRelationshipRepository(pool db.Pool) *PostgresRelationshipRepository {
	return &PostgresRelationshipRepository{
		pool: pool,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (r *PostgresRelationshipRepository) with(ctx context.Context, fn func(q querier) error) error {
	if r.tx != nil {
		return fn(r.tx)
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	return fn(conn)
}

// WithinTx runs fn inside a SERIALIZABLE transaction. Serialization failures
// restart fn from the beginning; fn must therefore be free of side effects
// outside the repository it is handed.
func (r *PostgresRelationshipRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, repo RelationshipRepository) error) error {
	if r.tx != nil {
		return fn(ctx, r)
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	return crdbpgx.ExecuteTx(ctx, conn, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(tx pgx.Tx) error {
		return fn(ctx, &PostgresRelationshipRepository{pool: r.pool, tx: tx, now: r.now})
	})
}

// FindBetween fetches the record for the unordered pair {a, b}.
func (r *PostgresRelationshipRepository) FindBetween(ctx context.Context, a, b models.ParticipantKey) (models.Relationship, error) {
	var rel models.Relationship
	err := r.with(ctx, func(q querier) error {
		row := q.QueryRow(ctx, `
        SELECT `+relationshipColumns+`
        FROM relationships
        WHERE pair_key = $1
    `, models.PairKey(a, b))

		var err error
		rel, err = scanRelationship(row)
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Relationship{}, ErrNotFound
		}
		return models.Relationship{}, fmt.Errorf("select relationship between %s and %s: %w", a, b, err)
	}
	return rel, nil
}

// FindAllInvolving returns records where the participant is sender or recipient.
func (r *PostgresRelationshipRepository) FindAllInvolving(ctx context.Context, participant models.ParticipantKey) ([]models.Relationship, error) {
	return r.list(ctx, `
        SELECT `+relationshipColumns+`
        FROM relationships
        WHERE (sender_kind = $1 AND sender_id = $2)
           OR (recipient_kind = $1 AND recipient_id = $2)
        ORDER BY updated_at DESC, id ASC
    `, participant.Kind, participant.ID)
}

// FindAllInvolvingWithStatus narrows FindAllInvolving to a single status.
func (r *PostgresRelationshipRepository) FindAllInvolvingWithStatus(ctx context.Context, participant models.ParticipantKey, status models.Status) ([]models.Relationship, error) {
	return r.list(ctx, `
        SELECT `+relationshipColumns+`
        FROM relationships
        WHERE status = $3
          AND ((sender_kind = $1 AND sender_id = $2)
            OR (recipient_kind = $1 AND recipient_id = $2))
        ORDER BY updated_at DESC, id ASC
    `, participant.Kind, participant.ID, status)
}

// ExistsBetweenWithStatus reports whether the pair has a record in one of the statuses.
func (r *PostgresRelationshipRepository) ExistsBetweenWithStatus(ctx context.Context, a, b models.ParticipantKey, statuses ...models.Status) (bool, error) {
	if len(statuses) == 0 {
		return false, nil
	}

	codes := make([]int16, 0, len(statuses))
	for _, status := range statuses {
		codes = append(codes, int16(status))
	}

	var exists bool
	err := r.with(ctx, func(q querier) error {
		return q.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM relationships
            WHERE pair_key = $1 AND status = ANY($2)
        )
    `, models.PairKey(a, b), codes).Scan(&exists)
	})
	if err != nil {
		return false, fmt.Errorf("check relationship between %s and %s: %w", a, b, err)
	}
	return exists, nil
}

// Create persists a new relationship. A record already holding the pair
// yields ErrConflict.
func (r *PostgresRelationshipRepository) Create(ctx context.Context, rel models.Relationship) (models.Relationship, error) {
	if rel.ID == "" {
		rel.ID = uuid.NewString()
	}
	now := r.now()
	rel.CreatedAt = now
	rel.UpdatedAt = now

	err := r.with(ctx, func(q querier) error {
		tag, err := q.Exec(ctx, `
        INSERT INTO relationships (id, pair_key, sender_kind, sender_id, recipient_kind, recipient_id, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (pair_key) DO NOTHING
    `, rel.ID, rel.PairKey(), rel.Sender.Kind, rel.Sender.ID, rel.Recipient.Kind, rel.Recipient.ID, rel.Status, rel.CreatedAt, rel.UpdatedAt)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrConflict
		}
		return nil
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.Is(err, ErrConflict) || (errors.As(err, &pgErr) && pgErr.Code == "23505") {
			return models.Relationship{}, ErrConflict
		}
		return models.Relationship{}, fmt.Errorf("insert relationship: %w", err)
	}

	return rel, nil
}

// Update rewrites the direction and status of an existing relationship.
func (r *PostgresRelationshipRepository) Update(ctx context.Context, rel models.Relationship) (models.Relationship, error) {
	updatedAt := r.now()

	err := r.with(ctx, func(q querier) error {
		row := q.QueryRow(ctx, `
        UPDATE relationships
        SET pair_key = $2,
            sender_kind = $3,
            sender_id = $4,
            recipient_kind = $5,
            recipient_id = $6,
            status = $7,
            updated_at = $8
        WHERE id = $1
        RETURNING `+relationshipColumns+`
    `, rel.ID, rel.PairKey(), rel.Sender.Kind, rel.Sender.ID, rel.Recipient.Kind, rel.Recipient.ID, rel.Status, updatedAt)

		var err error
		rel, err = scanRelationship(row)
		return err
	})
	if err != nil {
		var pgErr *pgconn.PgError
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return models.Relationship{}, ErrNotFound
		case errors.As(err, &pgErr) && pgErr.Code == "23505":
			return models.Relationship{}, ErrConflict
		}
		return models.Relationship{}, fmt.Errorf("update relationship: %w", err)
	}

	return rel, nil
}

// Delete removes a relationship by ID.
func (r *PostgresRelationshipRepository) Delete(ctx context.Context, rel models.Relationship) error {
	var affected int64
	err := r.with(ctx, func(q querier) error {
		tag, err := q.Exec(ctx, `
        DELETE FROM relationships
        WHERE id = $1
    `, rel.ID)
		affected = tag.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("delete relationship: %w", err)
	}

	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *PostgresRelationshipRepository) list(ctx context.Context, sql string, args ...any) ([]models.Relationship, error) {
	var out []models.Relationship
	err := r.with(ctx, func(q querier) error {
		rows, err := q.Query(ctx, sql, args...)
		if err != nil {
			return fmt.Errorf("query relationships: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			rel, err := scanRelationship(rows)
			if err != nil {
				return fmt.Errorf("scan relationship: %w", err)
			}
			out = append(out, rel)
		}

		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate relationships: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func scanRelationship(row pgx.Row) (models.Relationship, error) {
	var rel models.Relationship
	if err := row.Scan(
		&rel.ID,
		&rel.Sender.Kind, &rel.Sender.ID,
		&rel.Recipient.Kind, &rel.Recipient.ID,
		&rel.Status,
		&rel.CreatedAt, &rel.UpdatedAt,
	); err != nil {
		return models.Relationship{}, err
	}
	rel.CreatedAt = rel.CreatedAt.UTC()
	rel.UpdatedAt = rel.UpdatedAt.UTC()
	return rel, nil
}

var _ RelationshipRepository = (*PostgresRelationshipRepository)(nil)
var _ RelationshipRepository = (*InMemoryRelationshipRepository)(nil)
