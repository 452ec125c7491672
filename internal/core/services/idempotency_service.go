package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/payflowhq/escrow_backend/internal/apperrors"
	"github.com/payflowhq/escrow_backend/internal/core/domain"
	portsrepo "github.com/payflowhq/escrow_backend/internal/core/ports/repositories"
	portssvc "github.com/payflowhq/escrow_backend/internal/core/ports/services"
	"github.com/payflowhq/escrow_backend/internal/middleware"
)

// DefaultIdempotencyRetention is how long reservations are honored.
const DefaultIdempotencyRetention = 7 * 24 * time.Hour

// idempotencyService deduplicates retried mutating operations. Reservation
// is insert-or-fail against the key's uniqueness constraint, never
// read-then-write, so two simultaneous first-time callers cannot both win.
type idempotencyService struct {
	repo      portsrepo.IdempotencyRepositoryFacade
	retention time.Duration
}

// NewIdempotencyService creates a new IdempotencyService.
func NewIdempotencyService(repo portsrepo.IdempotencyRepositoryFacade, retention time.Duration) portssvc.IdempotencySvcFacade {
	if retention <= 0 {
		retention = DefaultIdempotencyRetention
	}
	return &idempotencyService{repo: repo, retention: retention}
}

var _ portssvc.IdempotencySvcFacade = (*idempotencyService)(nil)

// CheckAndReserve returns the stored response for a settled key, or reserves
// the key atomically and reports proceed=true.
func (s *idempotencyService) CheckAndReserve(ctx context.Context, key, operationType string) (json.RawMessage, bool, error) {
	now := time.Now().UTC()
	record := domain.IdempotencyRecord{
		Key:           key,
		OperationType: operationType,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.retention),
	}

	existing, inserted, err := s.repo.Reserve(ctx, record)
	if err != nil {
		return nil, false, fmt.Errorf("failed to reserve idempotency key: %w", err)
	}
	if inserted {
		return nil, true, nil
	}

	if existing.Expired(now) {
		return nil, false, fmt.Errorf("key %s: %w", key, apperrors.ErrExpiredIdempotencyRecord)
	}
	if existing.OperationType != operationType {
		return nil, false, fmt.Errorf("key %s reserved for %s, got %s: %w",
			key, existing.OperationType, operationType, apperrors.ErrIdempotencyKeyConflict)
	}
	if existing.Response == nil {
		// First execution still in flight; the racer must back off and retry.
		return nil, false, fmt.Errorf("key %s still in flight: %w", key, apperrors.ErrIdempotencyKeyConflict)
	}
	return existing.Response, false, nil
}

// SaveResponse attaches the computed result to the reservation.
func (s *idempotencyService) SaveResponse(ctx context.Context, key string, response interface{}) error {
	data, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("failed to marshal idempotent response: %w", err)
	}
	return s.repo.SetResponse(ctx, key, data)
}

// Release frees a reservation whose operation failed before a response was
// stored.
func (s *idempotencyService) Release(ctx context.Context, key string) error {
	return s.repo.DeleteKey(ctx, key)
}

// CleanupExpired purges records past their retention window.
func (s *idempotencyService) CleanupExpired(ctx context.Context) (int64, error) {
	purged, err := s.repo.DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired idempotency records: %w", err)
	}
	if purged > 0 {
		middleware.GetLoggerFromCtx(ctx).Info("Purged expired idempotency records", slog.Int64("count", purged))
	}
	return purged, nil
}
