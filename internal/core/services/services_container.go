package services

import (
	"log/slog"

	portsrepo "github.com/payflowhq/escrow_backend/internal/core/ports/repositories"
	portssvc "github.com/payflowhq/escrow_backend/internal/core/ports/services"
	"github.com/payflowhq/escrow_backend/internal/events"
	"github.com/payflowhq/escrow_backend/pkg/config"
)

// NewServiceContainer creates a new service container with properly initialized dependencies.
func NewServiceContainer(cfg *config.Config, repos portsrepo.RepositoryProvider, publisher *events.Publisher, logger *slog.Logger) *portssvc.ServiceContainer {
	container := &portssvc.ServiceContainer{}
	container.Publisher = publisher

	container.Idempotency = NewIdempotencyService(repos.IdempotencyRepo, cfg.IdempotencyRetention)
	container.Wallet = NewWalletService(repos.WalletRepo, container.Idempotency)
	container.Escrow = NewEscrowService(
		repos.TransactionRepo,
		repos.WalletRepo,
		container.Idempotency,
		publisher,
		cfg.TransactionExpiry,
	)
	container.Sweeper = NewSweeperService(
		repos.TransactionRepo,
		container.Escrow,
		container.Idempotency,
		publisher,
		cfg.SweepInterval,
		logger,
	)

	return container
}
