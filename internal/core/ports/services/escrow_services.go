package services

import (
	"context"

	"github.com/payflowhq/escrow_backend/internal/core/domain"
	"github.com/payflowhq/escrow_backend/internal/dto"
)

// Actor identifies who is invoking an engine operation, plus the
// caller-supplied idempotency key (empty for internal callers such as the
// sweeper, which rely on the engine's own idempotence).
type Actor struct {
	ID             string
	Type           domain.InitiatorType
	IdempotencyKey string
}

// EscrowSvcFacade is the escrow transaction engine: every status transition
// is coupled to its paired ledger legs inside one atomic commit.
type EscrowSvcFacade interface {
	// CreateTransaction persists a new transaction in PENDING.
	CreateTransaction(ctx context.Context, req dto.CreateTransactionRequest, actor Actor) (*domain.Transaction, error)

	// HoldInEscrow debits the buyer and credits the escrow wallet by the same
	// amount, moving PENDING -> ESCROW_HELD.
	HoldInEscrow(ctx context.Context, transactionID string, actor Actor) (*domain.Transaction, error)

	// Release debits escrow and credits the seller (amount minus fee) and the
	// fee wallet, moving {ESCROW_HELD,DISPUTED} -> COMPLETED.
	Release(ctx context.Context, transactionID string, actor Actor) (*domain.Transaction, error)

	// Refund debits escrow and credits the buyer the full original amount,
	// moving {ESCROW_HELD,DISPUTED} -> REFUNDED. The fee is realized only on
	// COMPLETED, never kept on refund.
	Refund(ctx context.Context, transactionID, reason string, actor Actor) (*domain.Transaction, error)

	// Dispute moves ESCROW_HELD -> DISPUTED without fund movement.
	Dispute(ctx context.Context, transactionID, reason string, actor Actor) (*domain.Transaction, error)

	// ResolveDispute delegates to Release or Refund depending on
	// inFavorOfSeller; recorded with an ADMIN initiator.
	ResolveDispute(ctx context.Context, transactionID string, inFavorOfSeller bool, reason string, actor Actor) (*domain.Transaction, error)

	// Cancel moves PENDING -> CANCELED with no fund movement. From
	// ESCROW_HELD it is a composite refund-then-cancel in one atomic commit.
	Cancel(ctx context.Context, transactionID, reason string, actor Actor) (*domain.Transaction, error)

	// GetTransaction returns the current snapshot.
	GetTransaction(ctx context.Context, transactionID string) (*domain.Transaction, error)

	// GetAvailableActions lists the events permitted from the transaction's
	// persisted status.
	GetAvailableActions(ctx context.Context, transactionID string) ([]string, error)

	// ListHistory returns the transaction's status audit trail, oldest first.
	ListHistory(ctx context.Context, transactionID string) ([]domain.TransactionHistoryEntry, error)
}
