package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/payflowhq/escrow_backend/internal/apperrors"
	"github.com/payflowhq/escrow_backend/internal/core/domain"
	"github.com/payflowhq/escrow_backend/internal/core/fsm"
	portsrepo "github.com/payflowhq/escrow_backend/internal/core/ports/repositories"
	portssvc "github.com/payflowhq/escrow_backend/internal/core/ports/services"
	"github.com/payflowhq/escrow_backend/internal/dto"
	"github.com/payflowhq/escrow_backend/internal/middleware"
)

// DefaultTransactionExpiry is applied when a create request carries no
// explicit deadline.
const DefaultTransactionExpiry = 72 * time.Hour

// Operation type tags recorded on idempotency reservations.
const (
	OpCreateTransaction = "escrow.create_transaction"
	OpHoldInEscrow      = "escrow.hold_in_escrow"
	OpRelease           = "escrow.release"
	OpRefund            = "escrow.refund"
	OpDispute           = "escrow.dispute"
	OpResolveDispute    = "escrow.resolve_dispute"
	OpCancel            = "escrow.cancel"
)

var (
	ErrBuyerIsSeller    = errors.New("buyer and seller must differ")
	ErrFeeExceedsAmount = errors.New("fee amount exceeds transaction amount")
)

// escrowService orchestrates the escrow transaction lifecycle: each status
// transition is validated against the FSM table and committed atomically
// together with the ledger legs it requires.
type escrowService struct {
	txRepo      portsrepo.TransactionRepositoryFacade
	walletRepo  portsrepo.WalletRepositoryFacade
	idempotency portssvc.IdempotencySvcFacade
	publisher   portssvc.EventPublisherFacade

	// machines caches in-memory FSM snapshots per transaction id. Persisted
	// status is authoritative; snapshots are reconciled on every access.
	machines *fsm.Registry[string, domain.TransactionStatus, domain.TransactionEvent]

	defaultExpiry time.Duration
}

// NewEscrowService creates the escrow transaction engine.
func NewEscrowService(
	txRepo portsrepo.TransactionRepositoryFacade,
	walletRepo portsrepo.WalletRepositoryFacade,
	idempotency portssvc.IdempotencySvcFacade,
	publisher portssvc.EventPublisherFacade,
	defaultExpiry time.Duration,
) portssvc.EscrowSvcFacade {
	if defaultExpiry <= 0 {
		defaultExpiry = DefaultTransactionExpiry
	}
	return &escrowService{
		txRepo:        txRepo,
		walletRepo:    walletRepo,
		idempotency:   idempotency,
		publisher:     publisher,
		machines:      fsm.NewRegistry[string](newEscrowMachine),
		defaultExpiry: defaultExpiry,
	}
}

var _ portssvc.EscrowSvcFacade = (*escrowService)(nil)

// machineFor returns the cached machine for a transaction, reconciled to its
// persisted status.
func (s *escrowService) machineFor(txn domain.Transaction) *fsm.Machine[domain.TransactionStatus, domain.TransactionEvent] {
	m := s.machines.Get(txn.TransactionID)
	m.SetCurrent(txn.Status)
	return m
}

// withIdempotency wraps a mutating operation with the idempotency guard.
// Internal callers pass an empty key and rely on the engine's own
// state-based idempotence instead.
func (s *escrowService) withIdempotency(ctx context.Context, actor portssvc.Actor, opType string, fn func() (*domain.Transaction, error)) (*domain.Transaction, error) {
	if actor.IdempotencyKey == "" {
		return fn()
	}

	logger := middleware.GetLoggerFromCtx(ctx)
	stored, proceed, err := s.idempotency.CheckAndReserve(ctx, actor.IdempotencyKey, opType)
	if err != nil {
		return nil, err
	}
	if !proceed {
		var snapshot domain.Transaction
		if err := json.Unmarshal(stored, &snapshot); err != nil {
			return nil, fmt.Errorf("failed to decode stored idempotent response for key %s: %w", actor.IdempotencyKey, err)
		}
		logger.Info("Replayed idempotent response", slog.String("idempotency_key", actor.IdempotencyKey), slog.String("operation", opType))
		return &snapshot, nil
	}

	txn, err := fn()
	if err != nil {
		// Free the reservation so the caller may retry with the same key.
		if relErr := s.idempotency.Release(ctx, actor.IdempotencyKey); relErr != nil {
			logger.Error("Failed to release idempotency reservation", slog.String("idempotency_key", actor.IdempotencyKey), slog.String("error", relErr.Error()))
		}
		return nil, err
	}

	if err := s.idempotency.SaveResponse(ctx, actor.IdempotencyKey, txn); err != nil {
		// The operation already committed; a lost response only costs replay fidelity.
		logger.Error("Failed to save idempotent response", slog.String("idempotency_key", actor.IdempotencyKey), slog.String("error", err.Error()))
	}
	return txn, nil
}

// emit publishes a state-change notification. Publish never fails the
// financial operation.
func (s *escrowService) emit(ctx context.Context, eventType domain.EventType, txn *domain.Transaction) {
	payload := map[string]interface{}{
		"transaction_id":  txn.TransactionID,
		"transaction_uid": txn.TransactionUID,
		"buyer_id":        txn.BuyerID,
		"seller_id":       txn.SellerID,
		"amount":          txn.Amount.String(),
		"currency":        txn.Currency,
		"fee_amount":      txn.FeeAmount.String(),
		"fee_percentage":  txn.FeePercentage.String(),
		"status":          string(txn.Status),
	}
	for _, key := range []string{domain.MetaListingID, domain.MetaItemID, domain.MetaSaleID} {
		if v, ok := txn.Metadata[key]; ok {
			payload[key] = v
		}
	}
	s.publisher.Publish(ctx, domain.Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
}

// CreateTransaction persists a new transaction in PENDING.
func (s *escrowService) CreateTransaction(ctx context.Context, req dto.CreateTransactionRequest, actor portssvc.Actor) (*domain.Transaction, error) {
	return s.withIdempotency(ctx, actor, OpCreateTransaction, func() (*domain.Transaction, error) {
		logger := middleware.GetLoggerFromCtx(ctx)

		if req.Amount.LessThanOrEqual(decimal.Zero) {
			return nil, fmt.Errorf("%w: amount must be positive", apperrors.ErrValidation)
		}
		if req.BuyerID == req.SellerID {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrValidation, ErrBuyerIsSeller)
		}
		if req.FeePercentage.IsNegative() || req.FeePercentage.GreaterThan(decimal.NewFromInt(100)) {
			return nil, fmt.Errorf("%w: fee percentage must be between 0 and 100", apperrors.ErrValidation)
		}

		wallet, err := s.walletRepo.FindWalletByID(ctx, req.WalletID)
		if err != nil {
			return nil, err
		}
		if wallet.OwnerID != req.BuyerID {
			return nil, fmt.Errorf("%w: wallet %s is not owned by buyer %s", apperrors.ErrValidation, req.WalletID, req.BuyerID)
		}

		feeAmount := req.Amount.Mul(req.FeePercentage).Div(decimal.NewFromInt(100)).Round(2)
		if feeAmount.GreaterThan(req.Amount) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrValidation, ErrFeeExceedsAmount)
		}

		expiry := s.defaultExpiry
		if req.ExpiresIn != nil && *req.ExpiresIn > 0 {
			expiry = *req.ExpiresIn
		}

		now := time.Now().UTC()
		txn := domain.Transaction{
			TransactionID:  uuid.NewString(),
			TransactionUID: uuid.NewString(),
			BuyerID:        req.BuyerID,
			SellerID:       req.SellerID,
			Amount:         req.Amount,
			Currency:       req.Currency,
			FeeAmount:      feeAmount,
			FeePercentage:  req.FeePercentage,
			Status:         domain.StatusPending,
			WalletID:       req.WalletID,
			Metadata:       req.Metadata,
			ExpiresAt:      now.Add(expiry),
			AuditFields: domain.AuditFields{
				CreatedAt:     now,
				CreatedBy:     actor.ID,
				LastUpdatedAt: now,
				LastUpdatedBy: actor.ID,
			},
		}

		history := domain.TransactionHistoryEntry{
			HistoryID:     uuid.NewString(),
			TransactionID: txn.TransactionID,
			NewStatus:     domain.StatusPending,
			InitiatorID:   actor.ID,
			InitiatorType: actor.Type,
			CreatedAt:     now,
		}

		if err := s.txRepo.SaveTransaction(ctx, txn, history); err != nil {
			logger.Error("Failed to save transaction", slog.String("error", err.Error()))
			return nil, fmt.Errorf("failed to save transaction: %w", err)
		}

		logger.Info("Transaction created", slog.String("transaction_id", txn.TransactionID), slog.String("buyer_id", txn.BuyerID), slog.String("seller_id", txn.SellerID))
		s.emit(ctx, domain.EventTransactionCreated, &txn)
		return &txn, nil
	})
}

// transitionStamp mutates the timestamp column matching a new status.
type transitionStamp func(t *domain.Transaction, now time.Time)

// applyTransition validates the event against the FSM, builds the transition
// plan and commits it atomically. The repository re-checks the expected
// status under the transaction's row lock, so concurrent fund-moving
// operations on one transaction are linearized.
func (s *escrowService) applyTransition(
	ctx context.Context,
	txn *domain.Transaction,
	event domain.TransactionEvent,
	legs []domain.LedgerLeg,
	actor portssvc.Actor,
	reason string,
	stamp transitionStamp,
) (*domain.Transaction, error) {
	m := s.machineFor(*txn)
	target, err := m.Peek(event)
	if err != nil {
		return nil, fmt.Errorf("transaction %s: %w", txn.TransactionID, err)
	}

	now := time.Now().UTC()
	previous := txn.Status

	updated := *txn
	updated.Status = target
	if stamp != nil {
		stamp(&updated, now)
	}
	updated.LastUpdatedAt = now
	updated.LastUpdatedBy = actor.ID

	plan := domain.TransitionPlan{
		Transaction:    updated,
		ExpectedStatus: previous,
		History: domain.TransactionHistoryEntry{
			HistoryID:      uuid.NewString(),
			TransactionID:  txn.TransactionID,
			PreviousStatus: &previous,
			NewStatus:      target,
			InitiatorID:    actor.ID,
			InitiatorType:  actor.Type,
			Reason:         reason,
			CreatedAt:      now,
		},
		Legs: legs,
	}

	committed, err := s.txRepo.CommitTransition(ctx, plan)
	if err != nil {
		return nil, err
	}

	// Advance the in-memory snapshot and its diagnostic history. The
	// persisted status already moved, so this cannot influence correctness.
	if _, ferr := m.Trigger(ctx, event, nil); ferr != nil {
		middleware.GetLoggerFromCtx(ctx).Warn("FSM snapshot out of sync after commit",
			slog.String("transaction_id", txn.TransactionID), slog.String("error", ferr.Error()))
	}
	if committed.Status.IsTerminal() {
		s.machines.Evict(committed.TransactionID)
	}
	return committed, nil
}

// HoldInEscrow debits the buyer wallet and credits the escrow wallet by the
// identical amount, moving PENDING -> ESCROW_HELD.
func (s *escrowService) HoldInEscrow(ctx context.Context, transactionID string, actor portssvc.Actor) (*domain.Transaction, error) {
	return s.withIdempotency(ctx, actor, OpHoldInEscrow, func() (*domain.Transaction, error) {
		txn, err := s.txRepo.FindTransactionByID(ctx, transactionID)
		if err != nil {
			return nil, err
		}
		if txn.Status == domain.StatusEscrowHeld {
			return txn, nil // already held, nothing to re-apply
		}

		buyerWallet, err := s.walletRepo.FindWalletByID(ctx, txn.WalletID)
		if err != nil {
			return nil, err
		}
		if buyerWallet.Status != domain.WalletActive {
			return nil, fmt.Errorf("wallet %s: %w", buyerWallet.WalletID, apperrors.ErrWalletInactive)
		}
		if buyerWallet.Balance(txn.Currency).LessThan(txn.Amount) {
			return nil, fmt.Errorf("wallet %s holds %s %s, needs %s: %w",
				buyerWallet.WalletID, buyerWallet.Balance(txn.Currency), txn.Currency, txn.Amount, apperrors.ErrInsufficientFunds)
		}

		escrowWallet, err := s.walletRepo.GetOrCreateSystemWallet(ctx, domain.SystemWalletEscrow)
		if err != nil {
			return nil, err
		}

		legs := []domain.LedgerLeg{
			{WalletID: buyerWallet.WalletID, Currency: txn.Currency, Amount: txn.Amount.Neg(), Description: "escrow hold"},
			{WalletID: escrowWallet.WalletID, Currency: txn.Currency, Amount: txn.Amount, Description: "escrow hold"},
		}

		committed, err := s.applyTransition(ctx, txn, domain.EventHold, legs, actor, "", func(t *domain.Transaction, now time.Time) {
			t.EscrowHeldAt = &now
		})
		if err != nil {
			return nil, err
		}

		middleware.GetLoggerFromCtx(ctx).Info("Funds held in escrow",
			slog.String("transaction_id", committed.TransactionID), slog.String("amount", committed.Amount.String()))
		s.emit(ctx, domain.EventEscrowFundsHeld, committed)
		return committed, nil
	})
}

// Release pays the seller (amount minus fee), credits the fee wallet and
// completes the transaction.
func (s *escrowService) Release(ctx context.Context, transactionID string, actor portssvc.Actor) (*domain.Transaction, error) {
	return s.withIdempotency(ctx, actor, OpRelease, func() (*domain.Transaction, error) {
		return s.release(ctx, transactionID, "", actor)
	})
}

func (s *escrowService) release(ctx context.Context, transactionID, reason string, actor portssvc.Actor) (*domain.Transaction, error) {
	txn, err := s.txRepo.FindTransactionByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txn.Status == domain.StatusCompleted {
		return txn, nil
	}

	escrowWallet, err := s.walletRepo.GetOrCreateSystemWallet(ctx, domain.SystemWalletEscrow)
	if err != nil {
		return nil, err
	}
	sellerWallet, err := s.walletRepo.FindWalletByOwnerID(ctx, txn.SellerID)
	if err != nil {
		return nil, err
	}

	legs := []domain.LedgerLeg{
		{WalletID: escrowWallet.WalletID, Currency: txn.Currency, Amount: txn.Amount.Neg(), Description: "escrow release"},
		{WalletID: sellerWallet.WalletID, Currency: txn.Currency, Amount: txn.SellerAmount(), Description: "escrow release"},
	}
	if txn.FeeAmount.IsPositive() {
		feeWallet, err := s.walletRepo.GetOrCreateSystemWallet(ctx, domain.SystemWalletFee)
		if err != nil {
			return nil, err
		}
		legs = append(legs, domain.LedgerLeg{
			WalletID: feeWallet.WalletID, Currency: txn.Currency, Amount: txn.FeeAmount, Description: "escrow fee",
		})
	}

	committed, err := s.applyTransition(ctx, txn, domain.EventRelease, legs, actor, reason, func(t *domain.Transaction, now time.Time) {
		t.CompletedAt = &now
	})
	if err != nil {
		return nil, err
	}

	middleware.GetLoggerFromCtx(ctx).Info("Escrow funds released",
		slog.String("transaction_id", committed.TransactionID),
		slog.String("seller_amount", committed.SellerAmount().String()),
		slog.String("fee_amount", committed.FeeAmount.String()))
	s.emit(ctx, domain.EventEscrowFundsReleased, committed)
	s.emit(ctx, domain.EventTransactionCompleted, committed)
	return committed, nil
}

// Refund returns the full original amount to the buyer. The fee is realized
// only on COMPLETED, so a refund never withholds it.
func (s *escrowService) Refund(ctx context.Context, transactionID, reason string, actor portssvc.Actor) (*domain.Transaction, error) {
	return s.withIdempotency(ctx, actor, OpRefund, func() (*domain.Transaction, error) {
		return s.refund(ctx, transactionID, reason, actor)
	})
}

func (s *escrowService) refund(ctx context.Context, transactionID, reason string, actor portssvc.Actor) (*domain.Transaction, error) {
	txn, err := s.txRepo.FindTransactionByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txn.Status == domain.StatusRefunded {
		return txn, nil
	}

	escrowWallet, err := s.walletRepo.GetOrCreateSystemWallet(ctx, domain.SystemWalletEscrow)
	if err != nil {
		return nil, err
	}

	legs := []domain.LedgerLeg{
		{WalletID: escrowWallet.WalletID, Currency: txn.Currency, Amount: txn.Amount.Neg(), Description: "escrow refund"},
		{WalletID: txn.WalletID, Currency: txn.Currency, Amount: txn.Amount, Description: "escrow refund"},
	}

	committed, err := s.applyTransition(ctx, txn, domain.EventRefund, legs, actor, reason, func(t *domain.Transaction, now time.Time) {
		t.RefundedAt = &now
	})
	if err != nil {
		return nil, err
	}

	middleware.GetLoggerFromCtx(ctx).Info("Escrow funds refunded",
		slog.String("transaction_id", committed.TransactionID), slog.String("reason", reason))
	s.emit(ctx, domain.EventEscrowFundsRefunded, committed)
	return committed, nil
}

// Dispute flags an ESCROW_HELD transaction; funds stay in escrow.
func (s *escrowService) Dispute(ctx context.Context, transactionID, reason string, actor portssvc.Actor) (*domain.Transaction, error) {
	return s.withIdempotency(ctx, actor, OpDispute, func() (*domain.Transaction, error) {
		txn, err := s.txRepo.FindTransactionByID(ctx, transactionID)
		if err != nil {
			return nil, err
		}
		if txn.Status == domain.StatusDisputed {
			return txn, nil
		}

		committed, err := s.applyTransition(ctx, txn, domain.EventDispute, nil, actor, reason, func(t *domain.Transaction, now time.Time) {
			t.DisputedAt = &now
		})
		if err != nil {
			return nil, err
		}

		middleware.GetLoggerFromCtx(ctx).Info("Transaction disputed",
			slog.String("transaction_id", committed.TransactionID), slog.String("reason", reason))
		s.emit(ctx, domain.EventTransactionDisputed, committed)
		return committed, nil
	})
}

// ResolveDispute settles a DISPUTED transaction by releasing to the seller or
// refunding the buyer. Always recorded with an ADMIN initiator.
func (s *escrowService) ResolveDispute(ctx context.Context, transactionID string, inFavorOfSeller bool, reason string, actor portssvc.Actor) (*domain.Transaction, error) {
	actor.Type = domain.InitiatorAdmin
	return s.withIdempotency(ctx, actor, OpResolveDispute, func() (*domain.Transaction, error) {
		if inFavorOfSeller {
			return s.release(ctx, transactionID, reason, actor)
		}
		return s.refund(ctx, transactionID, reason, actor)
	})
}

// Cancel terminates a PENDING transaction, or refunds-then-cancels an
// ESCROW_HELD one as a single composite commit.
func (s *escrowService) Cancel(ctx context.Context, transactionID, reason string, actor portssvc.Actor) (*domain.Transaction, error) {
	return s.withIdempotency(ctx, actor, OpCancel, func() (*domain.Transaction, error) {
		txn, err := s.txRepo.FindTransactionByID(ctx, transactionID)
		if err != nil {
			return nil, err
		}
		if txn.Status == domain.StatusCanceled {
			return txn, nil
		}

		var legs []domain.LedgerLeg
		fundsMoved := false
		if txn.Status == domain.StatusEscrowHeld {
			// Composite cancel: the held amount flows back to the buyer in the
			// same commit that marks the transaction CANCELED.
			escrowWallet, err := s.walletRepo.GetOrCreateSystemWallet(ctx, domain.SystemWalletEscrow)
			if err != nil {
				return nil, err
			}
			legs = []domain.LedgerLeg{
				{WalletID: escrowWallet.WalletID, Currency: txn.Currency, Amount: txn.Amount.Neg(), Description: "cancel refund"},
				{WalletID: txn.WalletID, Currency: txn.Currency, Amount: txn.Amount, Description: "cancel refund"},
			}
			fundsMoved = true
		}

		committed, err := s.applyTransition(ctx, txn, domain.EventCancel, legs, actor, reason, func(t *domain.Transaction, now time.Time) {
			t.CanceledAt = &now
			if fundsMoved {
				t.RefundedAt = &now
			}
		})
		if err != nil {
			return nil, err
		}

		middleware.GetLoggerFromCtx(ctx).Info("Transaction canceled",
			slog.String("transaction_id", committed.TransactionID), slog.String("reason", reason))
		if fundsMoved {
			s.emit(ctx, domain.EventEscrowFundsRefunded, committed)
		}
		s.emit(ctx, domain.EventTransactionUpdated, committed)
		return committed, nil
	})
}

// GetTransaction returns the current persisted snapshot.
func (s *escrowService) GetTransaction(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	return s.txRepo.FindTransactionByID(ctx, transactionID)
}

// GetAvailableActions lists the events permitted from the transaction's
// persisted status, used to compute available actions for callers.
func (s *escrowService) GetAvailableActions(ctx context.Context, transactionID string) ([]string, error) {
	txn, err := s.txRepo.FindTransactionByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	events := s.machineFor(*txn).AvailableEvents()
	actions := make([]string, len(events))
	for i, e := range events {
		actions[i] = string(e)
	}
	return actions, nil
}

// ListHistory returns the transaction's status audit trail, oldest first.
func (s *escrowService) ListHistory(ctx context.Context, transactionID string) ([]domain.TransactionHistoryEntry, error) {
	if _, err := s.txRepo.FindTransactionByID(ctx, transactionID); err != nil {
		return nil, err
	}
	return s.txRepo.FindHistoryByTransactionID(ctx, transactionID)
}
