package services

import (
	"context"
	"encoding/json"
)

// IdempotencySvcFacade deduplicates retried mutating operations by
// caller-supplied key.
type IdempotencySvcFacade interface {
	// CheckAndReserve returns the previously stored response when the key is
	// already settled, or atomically reserves the key and returns
	// proceed=true. A reused key whose first execution is still in flight, or
	// one reserved for a different operation type, fails with
	// apperrors.ErrIdempotencyKeyConflict.
	CheckAndReserve(ctx context.Context, key, operationType string) (stored json.RawMessage, proceed bool, err error)

	// SaveResponse attaches the computed result to the reservation so replays
	// are byte-identical. Write-once.
	SaveResponse(ctx context.Context, key string, response interface{}) error

	// Release frees a reservation whose operation failed before producing a
	// response, so the caller may retry with the same key.
	Release(ctx context.Context, key string) error

	// CleanupExpired purges records past their retention window.
	CleanupExpired(ctx context.Context) (int64, error)
}
