package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/payflowhq/escrow_backend/internal/core/domain"
	portsrepo "github.com/payflowhq/escrow_backend/internal/core/ports/repositories"
	portssvc "github.com/payflowhq/escrow_backend/internal/core/ports/services"
)

// Sweeper defaults.
const (
	DefaultSweepInterval  = 5 * time.Minute
	DefaultSweepBatchSize = 100
)

// sweeperService force-advances transactions past their deadline: expired
// PENDING transactions are canceled, expired ESCROW_HELD ones refunded. It
// calls the same engine entry points as any other caller and relies on the
// engine's idempotence when overlapping cycles pick up the same transaction.
type sweeperService struct {
	txRepo      portsrepo.TransactionRepositoryFacade
	engine      portssvc.EscrowSvcFacade
	idempotency portssvc.IdempotencySvcFacade
	publisher   portssvc.EventPublisherFacade
	logger      *slog.Logger

	interval  time.Duration
	batchSize int

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewSweeperService creates the timeout sweeper.
func NewSweeperService(
	txRepo portsrepo.TransactionRepositoryFacade,
	engine portssvc.EscrowSvcFacade,
	idempotency portssvc.IdempotencySvcFacade,
	publisher portssvc.EventPublisherFacade,
	interval time.Duration,
	logger *slog.Logger,
) portssvc.SweeperSvcFacade {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &sweeperService{
		txRepo:      txRepo,
		engine:      engine,
		idempotency: idempotency,
		publisher:   publisher,
		logger:      logger,
		interval:    interval,
		batchSize:   DefaultSweepBatchSize,
	}
}

var _ portssvc.SweeperSvcFacade = (*sweeperService)(nil)

// Start launches the periodic sweep loop.
func (s *sweeperService) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.started = true

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		s.logger.Info("Sweeper started", slog.Duration("interval", s.interval))
		for {
			select {
			case <-loopCtx.Done():
				s.logger.Info("Sweeper stopped")
				return
			case <-ticker.C:
				if err := s.SweepOnce(loopCtx); err != nil {
					s.logger.Error("Sweep cycle failed", slog.String("error", err.Error()))
				}
			}
		}
	}()
}

// Stop halts the loop between cycles. Items already being processed finish;
// the sweeper is never interrupted mid-item.
func (s *sweeperService) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.started = false
	s.mu.Unlock()

	cancel()
	<-done
}

// SweepOnce runs one sweep cycle synchronously. Each item is processed in
// isolation: a failure on one transaction never aborts the batch.
func (s *sweeperService) SweepOnce(ctx context.Context) error {
	now := time.Now().UTC()
	expired, err := s.txRepo.ListExpired(ctx,
		[]domain.TransactionStatus{domain.StatusPending, domain.StatusEscrowHeld}, now, s.batchSize)
	if err != nil {
		return err
	}

	actor := portssvc.Actor{ID: domain.SystemOwnerID, Type: domain.InitiatorSystem}
	handled := 0
	for _, txn := range expired {
		var updated *domain.Transaction
		var opErr error

		switch txn.Status {
		case domain.StatusPending:
			updated, opErr = s.engine.Cancel(ctx, txn.TransactionID, "expired", actor)
		case domain.StatusEscrowHeld:
			updated, opErr = s.engine.Refund(ctx, txn.TransactionID, "expired", actor)
		default:
			continue
		}

		if opErr != nil {
			s.logger.Error("Sweeper failed to advance expired transaction",
				slog.String("transaction_id", txn.TransactionID),
				slog.String("status", string(txn.Status)),
				slog.String("error", opErr.Error()))
			continue
		}

		handled++
		s.publisher.Publish(ctx, domain.Event{
			Type:      domain.EventTransactionUpdated,
			Timestamp: time.Now().UTC(),
			Payload: map[string]interface{}{
				"transaction_id":  updated.TransactionID,
				"transaction_uid": updated.TransactionUID,
				"buyer_id":        updated.BuyerID,
				"seller_id":       updated.SellerID,
				"amount":          updated.Amount.String(),
				"currency":        updated.Currency,
				"status":          string(updated.Status),
				"reason":          "expired",
			},
		})
	}

	if len(expired) > 0 {
		s.logger.Info("Sweep cycle completed", slog.Int("expired", len(expired)), slog.Int("handled", handled))
	}

	if _, err := s.idempotency.CleanupExpired(ctx); err != nil {
		s.logger.Error("Idempotency cleanup failed", slog.String("error", err.Error()))
	}
	return nil
}
