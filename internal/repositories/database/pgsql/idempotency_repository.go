package pgsql

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/payflowhq/escrow_backend/internal/apperrors"
	"github.com/payflowhq/escrow_backend/internal/core/domain"
	portsrepo "github.com/payflowhq/escrow_backend/internal/core/ports/repositories"
	"github.com/payflowhq/escrow_backend/internal/models"
)

// PgxIdempotencyRepository persists idempotency key reservations.
type PgxIdempotencyRepository struct {
	BaseRepository
}

// NewIdempotencyRepository creates a new repository for idempotency records.
func NewIdempotencyRepository(pool *pgxpool.Pool) *PgxIdempotencyRepository {
	return &PgxIdempotencyRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.IdempotencyRepositoryFacade = (*PgxIdempotencyRepository)(nil)

// Reserve inserts the record, or returns the stored one when the key is
// already taken. ON CONFLICT DO NOTHING makes the race between two callers
// resolve inside the database: exactly one insert lands.
func (r *PgxIdempotencyRepository) Reserve(ctx context.Context, record domain.IdempotencyRecord) (*domain.IdempotencyRecord, bool, error) {
	tag, err := r.Pool.Exec(ctx, `
		INSERT INTO idempotency_records (key, operation_type, response, created_at, expires_at)
		VALUES ($1, $2, NULL, $3, $4)
		ON CONFLICT (key) DO NOTHING;`,
		record.Key, record.OperationType, record.CreatedAt, record.ExpiresAt)
	if err != nil {
		return nil, false, apperrors.NewAppError(500, "failed to reserve idempotency key", err)
	}
	if tag.RowsAffected() == 1 {
		return &record, true, nil
	}

	var m models.IdempotencyRecord
	err = r.Pool.QueryRow(ctx, `
		SELECT key, operation_type, response, created_at, expires_at
		FROM idempotency_records WHERE key = $1;`,
		record.Key).Scan(&m.Key, &m.OperationType, &m.Response, &m.CreatedAt, &m.ExpiresAt)
	if err != nil {
		// The row can vanish between the failed insert and this read if a
		// concurrent failed operation released the key; treat it as a
		// conflict the caller should retry.
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, apperrors.ErrIdempotencyKeyConflict
		}
		return nil, false, apperrors.NewAppError(500, "failed to load idempotency record", err)
	}

	existing := domain.IdempotencyRecord{
		Key:           m.Key,
		OperationType: m.OperationType,
		Response:      json.RawMessage(m.Response),
		CreatedAt:     m.CreatedAt,
		ExpiresAt:     m.ExpiresAt,
	}
	return &existing, false, nil
}

// SetResponse stores the response for a reservation. Write-once: a record
// that already carries a response is left untouched.
func (r *PgxIdempotencyRepository) SetResponse(ctx context.Context, key string, response json.RawMessage) error {
	_, err := r.Pool.Exec(ctx, `
		UPDATE idempotency_records SET response = $2
		WHERE key = $1 AND response IS NULL;`,
		key, []byte(response))
	if err != nil {
		return apperrors.NewAppError(500, "failed to store idempotency response", err)
	}
	return nil
}

// DeleteKey removes a reservation so the key can be retried.
func (r *PgxIdempotencyRepository) DeleteKey(ctx context.Context, key string) error {
	_, err := r.Pool.Exec(ctx, `DELETE FROM idempotency_records WHERE key = $1;`, key)
	if err != nil {
		return apperrors.NewAppError(500, "failed to delete idempotency key", err)
	}
	return nil
}

// DeleteExpired purges records past their retention window.
func (r *PgxIdempotencyRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.Pool.Exec(ctx, `DELETE FROM idempotency_records WHERE expires_at < $1;`, cutoff)
	if err != nil {
		return 0, apperrors.NewAppError(500, "failed to purge expired idempotency records", err)
	}
	return tag.RowsAffected(), nil
}
