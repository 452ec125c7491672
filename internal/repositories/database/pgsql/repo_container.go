package pgsql

import (
	"github.com/jackc/pgx/v5/pgxpool"
	portsrepo "github.com/payflowhq/escrow_backend/internal/core/ports/repositories"
)

func NewRepositoryProvider(dbPool *pgxpool.Pool) portsrepo.RepositoryProvider {
	walletRepo := NewWalletRepository(dbPool)
	transactionRepo := NewTransactionRepository(dbPool, walletRepo)
	idempotencyRepo := NewIdempotencyRepository(dbPool)

	return portsrepo.RepositoryProvider{
		TransactionRepo: transactionRepo,
		WalletRepo:      walletRepo,
		IdempotencyRepo: idempotencyRepo,
	}
}
