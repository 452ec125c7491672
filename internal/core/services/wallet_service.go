package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/payflowhq/escrow_backend/internal/apperrors"
	"github.com/payflowhq/escrow_backend/internal/core/domain"
	portsrepo "github.com/payflowhq/escrow_backend/internal/core/ports/repositories"
	portssvc "github.com/payflowhq/escrow_backend/internal/core/ports/services"
	"github.com/payflowhq/escrow_backend/internal/dto"
	"github.com/payflowhq/escrow_backend/internal/middleware"
)

// Operation type tags recorded on idempotency reservations.
const (
	OpWalletDeposit  = "wallet.deposit"
	OpWalletWithdraw = "wallet.withdraw"
)

// walletService provides the wallet ledger operations. A balance is mutated
// only through ApplyEntry-style commits that pair the new balance with its
// immutable ledger row.
type walletService struct {
	walletRepo  portsrepo.WalletRepositoryFacade
	idempotency portssvc.IdempotencySvcFacade
}

// NewWalletService creates a new WalletService.
func NewWalletService(walletRepo portsrepo.WalletRepositoryFacade, idempotency portssvc.IdempotencySvcFacade) portssvc.WalletSvcFacade {
	return &walletService{walletRepo: walletRepo, idempotency: idempotency}
}

var _ portssvc.WalletSvcFacade = (*walletService)(nil)

// CreateWallet onboards a new user wallet with zeroed balances.
func (s *walletService) CreateWallet(ctx context.Context, req dto.CreateWalletRequest, creatorID string) (*domain.Wallet, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	if req.OwnerID == domain.SystemOwnerID {
		return nil, fmt.Errorf("%w: owner id %s is reserved for system wallets", apperrors.ErrValidation, domain.SystemOwnerID)
	}
	if req.DailyDebitLimit.IsNegative() || req.MonthlyDebitLimit.IsNegative() {
		return nil, fmt.Errorf("%w: debit limits must not be negative", apperrors.ErrValidation)
	}

	now := time.Now().UTC()
	wallet := domain.Wallet{
		WalletID:          uuid.NewString(),
		WalletUID:         uuid.NewString(),
		OwnerID:           req.OwnerID,
		Status:            domain.WalletActive,
		Balances:          map[string]decimal.Decimal{},
		DailyDebitLimit:   req.DailyDebitLimit,
		MonthlyDebitLimit: req.MonthlyDebitLimit,
		AuditFields: domain.AuditFields{
			CreatedAt:     now,
			CreatedBy:     creatorID,
			LastUpdatedAt: now,
			LastUpdatedBy: creatorID,
		},
	}

	if err := s.walletRepo.SaveWallet(ctx, wallet); err != nil {
		logger.Error("Failed to save wallet", slog.String("error", err.Error()), slog.String("owner_id", req.OwnerID))
		return nil, fmt.Errorf("failed to save wallet: %w", err)
	}

	logger.Info("Wallet created", slog.String("wallet_id", wallet.WalletID), slog.String("owner_id", wallet.OwnerID))
	return &wallet, nil
}

// GetWallet returns a wallet with all its currency balances.
func (s *walletService) GetWallet(ctx context.Context, walletID string) (*domain.Wallet, error) {
	return s.walletRepo.FindWalletByID(ctx, walletID)
}

// GetWalletByOwner returns the wallet owned by ownerID.
func (s *walletService) GetWalletByOwner(ctx context.Context, ownerID string) (*domain.Wallet, error) {
	return s.walletRepo.FindWalletByOwnerID(ctx, ownerID)
}

// GetBalance reads the stored balance for one currency. Currencies the
// wallet has never touched read as zero.
func (s *walletService) GetBalance(ctx context.Context, walletID, currency string) (decimal.Decimal, error) {
	wallet, err := s.walletRepo.FindWalletByID(ctx, walletID)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return wallet.Balance(currency), nil
}

// CloseWallet retires a wallet. Wallets are never deleted.
func (s *walletService) CloseWallet(ctx context.Context, walletID, updatedBy string) error {
	wallet, err := s.walletRepo.FindWalletByID(ctx, walletID)
	if err != nil {
		return err
	}
	if wallet.IsSystem() {
		return fmt.Errorf("%w: system wallets cannot be closed", apperrors.ErrForbidden)
	}
	for currency, balance := range wallet.Balances {
		if !balance.IsZero() {
			return fmt.Errorf("%w: wallet %s still holds %s %s", apperrors.ErrConflict, walletID, balance, currency)
		}
	}
	return s.walletRepo.UpdateWalletStatus(ctx, walletID, domain.WalletClosed, updatedBy, time.Now().UTC())
}

// GetOrCreateSystemWallet returns the escrow or fee singleton wallet.
func (s *walletService) GetOrCreateSystemWallet(ctx context.Context, kind domain.SystemWalletKind) (*domain.Wallet, error) {
	return s.walletRepo.GetOrCreateSystemWallet(ctx, kind)
}

// withIdempotency wraps a fund-moving wallet operation with the idempotency
// guard. Callers without a key fall through unguarded.
func (s *walletService) withIdempotency(ctx context.Context, key, opType string, fn func() (*domain.LedgerEntry, error)) (*domain.LedgerEntry, error) {
	if key == "" {
		return fn()
	}

	logger := middleware.GetLoggerFromCtx(ctx)
	stored, proceed, err := s.idempotency.CheckAndReserve(ctx, key, opType)
	if err != nil {
		return nil, err
	}
	if !proceed {
		var entry domain.LedgerEntry
		if err := json.Unmarshal(stored, &entry); err != nil {
			return nil, fmt.Errorf("failed to decode stored idempotent response for key %s: %w", key, err)
		}
		logger.Info("Replayed idempotent response", slog.String("idempotency_key", key), slog.String("operation", opType))
		return &entry, nil
	}

	entry, err := fn()
	if err != nil {
		if relErr := s.idempotency.Release(ctx, key); relErr != nil {
			logger.Error("Failed to release idempotency reservation", slog.String("idempotency_key", key), slog.String("error", relErr.Error()))
		}
		return nil, err
	}

	if err := s.idempotency.SaveResponse(ctx, key, entry); err != nil {
		// The entry already committed; a lost response only costs replay fidelity.
		logger.Error("Failed to save idempotent response", slog.String("idempotency_key", key), slog.String("error", err.Error()))
	}
	return entry, nil
}

// Deposit credits a wallet outside of any escrow transaction.
func (s *walletService) Deposit(ctx context.Context, walletID, currency string, amount decimal.Decimal, description, idempotencyKey string) (*domain.LedgerEntry, error) {
	return s.withIdempotency(ctx, idempotencyKey, OpWalletDeposit, func() (*domain.LedgerEntry, error) {
		if amount.LessThanOrEqual(decimal.Zero) {
			return nil, fmt.Errorf("%w: deposit amount must be positive", apperrors.ErrValidation)
		}
		if err := s.requireActive(ctx, walletID); err != nil {
			return nil, err
		}
		return s.walletRepo.ApplyEntry(ctx, walletID, currency, amount, nil, description)
	})
}

// Withdraw debits a wallet, enforcing daily and monthly debit limits for
// user wallets.
func (s *walletService) Withdraw(ctx context.Context, walletID, currency string, amount decimal.Decimal, description, idempotencyKey string) (*domain.LedgerEntry, error) {
	return s.withIdempotency(ctx, idempotencyKey, OpWalletWithdraw, func() (*domain.LedgerEntry, error) {
		if amount.LessThanOrEqual(decimal.Zero) {
			return nil, fmt.Errorf("%w: withdrawal amount must be positive", apperrors.ErrValidation)
		}

		wallet, err := s.walletRepo.FindWalletByID(ctx, walletID)
		if err != nil {
			return nil, err
		}
		if wallet.Status != domain.WalletActive {
			return nil, fmt.Errorf("wallet %s: %w", walletID, apperrors.ErrWalletInactive)
		}
		if !wallet.IsSystem() {
			if err := s.checkDebitLimits(ctx, wallet, currency, amount); err != nil {
				return nil, err
			}
		}

		entry, err := s.walletRepo.ApplyEntry(ctx, walletID, currency, amount.Neg(), nil, description)
		if err != nil {
			return nil, err
		}
		middleware.GetLoggerFromCtx(ctx).Info("Withdrawal applied",
			slog.String("wallet_id", walletID), slog.String("amount", amount.String()), slog.String("currency", currency))
		return entry, nil
	})
}

// checkDebitLimits rejects a withdrawal that would exceed the wallet's daily
// or monthly debit caps. Zero-valued caps mean no limit.
func (s *walletService) checkDebitLimits(ctx context.Context, wallet *domain.Wallet, currency string, amount decimal.Decimal) error {
	now := time.Now().UTC()

	if wallet.DailyDebitLimit.IsPositive() {
		dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		spent, err := s.walletRepo.SumDebitsSince(ctx, wallet.WalletID, currency, dayStart)
		if err != nil {
			return fmt.Errorf("failed to compute daily debits: %w", err)
		}
		if spent.Add(amount).GreaterThan(wallet.DailyDebitLimit) {
			return fmt.Errorf("%w: daily debit limit %s exceeded", apperrors.ErrValidation, wallet.DailyDebitLimit)
		}
	}

	if wallet.MonthlyDebitLimit.IsPositive() {
		monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		spent, err := s.walletRepo.SumDebitsSince(ctx, wallet.WalletID, currency, monthStart)
		if err != nil {
			return fmt.Errorf("failed to compute monthly debits: %w", err)
		}
		if spent.Add(amount).GreaterThan(wallet.MonthlyDebitLimit) {
			return fmt.Errorf("%w: monthly debit limit %s exceeded", apperrors.ErrValidation, wallet.MonthlyDebitLimit)
		}
	}
	return nil
}

// ListEntries returns the ledger entries for a (wallet, currency) pair,
// oldest first.
func (s *walletService) ListEntries(ctx context.Context, walletID, currency string) ([]domain.LedgerEntry, error) {
	if _, err := s.walletRepo.FindWalletByID(ctx, walletID); err != nil {
		return nil, err
	}
	return s.walletRepo.ListEntries(ctx, walletID, currency)
}

// Reconcile recomputes the balance from the entry chain and reports drift
// against the stored balance. Summing all entries for a (wallet, currency)
// pair must always equal the stored balance.
func (s *walletService) Reconcile(ctx context.Context, walletID, currency string) (*dto.ReconcileResult, error) {
	wallet, err := s.walletRepo.FindWalletByID(ctx, walletID)
	if err != nil {
		return nil, err
	}

	computed, err := s.walletRepo.SumEntries(ctx, walletID, currency)
	if err != nil {
		return nil, fmt.Errorf("failed to sum ledger entries: %w", err)
	}
	entries, err := s.walletRepo.ListEntries(ctx, walletID, currency)
	if err != nil {
		return nil, err
	}

	stored := wallet.Balance(currency)
	result := &dto.ReconcileResult{
		WalletID:        walletID,
		Currency:        currency,
		StoredBalance:   stored,
		ComputedBalance: computed,
		Consistent:      stored.Equal(computed),
		EntryCount:      len(entries),
	}
	if !result.Consistent {
		middleware.GetLoggerFromCtx(ctx).Error("Ledger reconciliation drift detected",
			slog.String("wallet_id", walletID), slog.String("currency", currency),
			slog.String("stored", stored.String()), slog.String("computed", computed.String()))
	}
	return result, nil
}

func (s *walletService) requireActive(ctx context.Context, walletID string) error {
	wallet, err := s.walletRepo.FindWalletByID(ctx, walletID)
	if err != nil {
		return err
	}
	if wallet.Status != domain.WalletActive {
		return fmt.Errorf("wallet %s: %w", walletID, apperrors.ErrWalletInactive)
	}
	return nil
}
