package services

import (
	"context"

	"github.com/payflowhq/escrow_backend/internal/core/domain"
)

// EventPublisherFacade fans out state-change notifications to in-process
// subscribers. Publish must never fail the underlying financial operation.
type EventPublisherFacade interface {
	Publish(ctx context.Context, event domain.Event)

	// RecentEvents returns up to n of the most recently published events,
	// newest last.
	RecentEvents(n int) []domain.Event
}

// SweeperSvcFacade is the deadline-driven compensation sweeper.
type SweeperSvcFacade interface {
	// Start launches the periodic sweep loop; it returns immediately.
	Start(ctx context.Context)
	// Stop halts the loop between cycles and waits for an in-flight cycle to
	// finish its current item.
	Stop()
	// SweepOnce runs a single sweep cycle synchronously.
	SweepOnce(ctx context.Context) error
}

// ServiceContainer holds instances of all the application services.
// This is the main entry point for accessing service functionality and
// is used throughout the application, particularly in the handlers.
type ServiceContainer struct {
	Escrow      EscrowSvcFacade
	Wallet      WalletSvcFacade
	Idempotency IdempotencySvcFacade
	Sweeper     SweeperSvcFacade
	Publisher   EventPublisherFacade
}
