package repositories

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/payflowhq/escrow_backend/internal/core/domain"
	"github.com/shopspring/decimal"
)

// WalletRepositoryFacade persists wallets and their append-only ledger.
type WalletRepositoryFacade interface {
	// SaveWallet inserts a new wallet with zeroed balances.
	SaveWallet(ctx context.Context, wallet domain.Wallet) error

	// FindWalletByID returns the wallet with all its currency balances, or
	// apperrors.ErrWalletNotFound.
	FindWalletByID(ctx context.Context, walletID string) (*domain.Wallet, error)

	// FindWalletByOwnerID returns the (non-system) wallet owned by ownerID.
	FindWalletByOwnerID(ctx context.Context, ownerID string) (*domain.Wallet, error)

	// GetOrCreateSystemWallet returns the singleton system wallet of the given
	// kind, creating it on first use. The lookup-or-create is race-safe: it is
	// backed by a uniqueness constraint, not read-then-write.
	GetOrCreateSystemWallet(ctx context.Context, kind domain.SystemWalletKind) (*domain.Wallet, error)

	// UpdateWalletStatus changes the wallet's administrative status.
	UpdateWalletStatus(ctx context.Context, walletID string, status domain.WalletStatus, updatedBy string, updatedAt time.Time) error

	// ApplyEntry mutates one wallet balance and appends its ledger row in a
	// single commit. Fails with apperrors.ErrInsufficientFunds when a debit
	// would drive the balance negative.
	ApplyEntry(ctx context.Context, walletID, currency string, amount decimal.Decimal, relatedTxID *string, description string) (*domain.LedgerEntry, error)

	// ApplyLegsInTx applies a set of ledger legs inside an existing database
	// transaction: wallets are locked in id order, balances re-read under the
	// lock, entries chained with balance_before/balance_after. Used by
	// TransactionRepositoryFacade.CommitTransition.
	ApplyLegsInTx(ctx context.Context, tx pgx.Tx, legs []domain.LedgerLeg, relatedTxID string, now time.Time) ([]domain.LedgerEntry, error)

	// ListEntries returns ledger entries for a (wallet, currency) pair,
	// oldest first.
	ListEntries(ctx context.Context, walletID, currency string) ([]domain.LedgerEntry, error)

	// SumEntries recomputes a balance from the entry chain.
	SumEntries(ctx context.Context, walletID, currency string) (decimal.Decimal, error)

	// SumDebitsSince totals user-initiated debit magnitudes since the given
	// instant, for daily/monthly limit enforcement.
	SumDebitsSince(ctx context.Context, walletID, currency string, since time.Time) (decimal.Decimal, error)
}
