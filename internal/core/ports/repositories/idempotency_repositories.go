package repositories

import (
	"context"
	"encoding/json"
	"time"

	"github.com/payflowhq/escrow_backend/internal/core/domain"
)

// IdempotencyRepositoryFacade persists idempotency reservations.
type IdempotencyRepositoryFacade interface {
	// Reserve attempts to insert the record. It relies on the key's
	// uniqueness constraint (insert-or-fail): when the key already exists the
	// stored record is returned with inserted=false, otherwise the new record
	// is written and inserted=true.
	Reserve(ctx context.Context, record domain.IdempotencyRecord) (existing *domain.IdempotencyRecord, inserted bool, err error)

	// SetResponse attaches the computed response to a reservation. The
	// response is write-once; subsequent calls are no-ops.
	SetResponse(ctx context.Context, key string, response json.RawMessage) error

	// DeleteKey removes a single reservation, used to free keys whose
	// operation failed before a response was stored.
	DeleteKey(ctx context.Context, key string) error

	// DeleteExpired purges records whose expiry is before the cutoff and
	// returns how many were removed.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
