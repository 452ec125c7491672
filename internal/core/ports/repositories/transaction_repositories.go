package repositories

import (
	"context"
	"time"

	"github.com/payflowhq/escrow_backend/internal/core/domain"
)

// TransactionRepositoryFacade persists escrow transactions, their history
// and the atomic transition commits that pair status changes with ledger legs.
type TransactionRepositoryFacade interface {
	// SaveTransaction inserts a new transaction together with its creation
	// history row in one database transaction.
	SaveTransaction(ctx context.Context, txn domain.Transaction, history domain.TransactionHistoryEntry) error

	// FindTransactionByID returns the transaction or apperrors.ErrTransactionNotFound.
	FindTransactionByID(ctx context.Context, transactionID string) (*domain.Transaction, error)

	// CommitTransition executes a transition plan atomically: it locks the
	// transaction row, re-checks plan.ExpectedStatus (returning
	// apperrors.ErrInvalidTransition when the status has advanced), locks the
	// involved wallets in id order, applies the ledger legs (failing with
	// apperrors.ErrInsufficientFunds if a debit would go negative), updates
	// the transaction row and appends the history row. Everything rolls back
	// together on any failure.
	CommitTransition(ctx context.Context, plan domain.TransitionPlan) (*domain.Transaction, error)

	// ListExpired returns transactions in the given statuses whose expiration
	// date is before asOf, up to limit rows.
	ListExpired(ctx context.Context, statuses []domain.TransactionStatus, asOf time.Time, limit int) ([]domain.Transaction, error)

	// FindHistoryByTransactionID returns the append-only status history,
	// oldest first.
	FindHistoryByTransactionID(ctx context.Context, transactionID string) ([]domain.TransactionHistoryEntry, error)
}
