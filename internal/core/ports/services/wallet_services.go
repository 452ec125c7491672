package services

import (
	"context"

	"github.com/payflowhq/escrow_backend/internal/core/domain"
	"github.com/payflowhq/escrow_backend/internal/dto"
	"github.com/shopspring/decimal"
)

// WalletSvcFacade is the wallet ledger: balances are mutated only through
// ledger entries, one atomic commit per entry.
type WalletSvcFacade interface {
	CreateWallet(ctx context.Context, req dto.CreateWalletRequest, creatorID string) (*domain.Wallet, error)
	GetWallet(ctx context.Context, walletID string) (*domain.Wallet, error)
	GetWalletByOwner(ctx context.Context, ownerID string) (*domain.Wallet, error)

	// GetBalance reads the stored balance for one currency; unknown currencies
	// read as zero.
	GetBalance(ctx context.Context, walletID, currency string) (decimal.Decimal, error)

	// CloseWallet retires a wallet; it is never deleted.
	CloseWallet(ctx context.Context, walletID, updatedBy string) error

	// GetOrCreateSystemWallet returns the escrow or fee singleton wallet.
	GetOrCreateSystemWallet(ctx context.Context, kind domain.SystemWalletKind) (*domain.Wallet, error)

	// Deposit credits a wallet outside of any escrow transaction. A non-empty
	// idempotencyKey routes the call through the idempotency guard.
	Deposit(ctx context.Context, walletID, currency string, amount decimal.Decimal, description, idempotencyKey string) (*domain.LedgerEntry, error)

	// Withdraw debits a wallet, enforcing the wallet's daily and monthly
	// debit limits for user wallets. A non-empty idempotencyKey routes the
	// call through the idempotency guard.
	Withdraw(ctx context.Context, walletID, currency string, amount decimal.Decimal, description, idempotencyKey string) (*domain.LedgerEntry, error)

	ListEntries(ctx context.Context, walletID, currency string) ([]domain.LedgerEntry, error)

	// Reconcile recomputes the balance from the entry chain and reports drift
	// against the stored balance.
	Reconcile(ctx context.Context, walletID, currency string) (*dto.ReconcileResult, error)
}
