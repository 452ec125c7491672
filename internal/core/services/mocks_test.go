package services_test

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/payflowhq/escrow_backend/internal/core/domain"
	portssvc "github.com/payflowhq/escrow_backend/internal/core/ports/services"
	"github.com/payflowhq/escrow_backend/internal/dto"
)

// MockTransactionRepository is a mock type for the TransactionRepositoryFacade interface
type MockTransactionRepository struct {
	mock.Mock
}

func (m *MockTransactionRepository) SaveTransaction(ctx context.Context, txn domain.Transaction, history domain.TransactionHistoryEntry) error {
	args := m.Called(ctx, txn, history)
	return args.Error(0)
}

func (m *MockTransactionRepository) FindTransactionByID(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) CommitTransition(ctx context.Context, plan domain.TransitionPlan) (*domain.Transaction, error) {
	args := m.Called(ctx, plan)
	// Tests may register a function to echo the committed plan back, since
	// the service stamps timestamps the expectation cannot know up front.
	if fn, ok := args.Get(0).(func(domain.TransitionPlan) *domain.Transaction); ok {
		return fn(plan), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) ListExpired(ctx context.Context, statuses []domain.TransactionStatus, asOf time.Time, limit int) ([]domain.Transaction, error) {
	args := m.Called(ctx, statuses, asOf, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) FindHistoryByTransactionID(ctx context.Context, transactionID string) ([]domain.TransactionHistoryEntry, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.TransactionHistoryEntry), args.Error(1)
}

// MockWalletRepository is a mock type for the WalletRepositoryFacade interface
type MockWalletRepository struct {
	mock.Mock
}

func (m *MockWalletRepository) SaveWallet(ctx context.Context, wallet domain.Wallet) error {
	args := m.Called(ctx, wallet)
	return args.Error(0)
}

func (m *MockWalletRepository) FindWalletByID(ctx context.Context, walletID string) (*domain.Wallet, error) {
	args := m.Called(ctx, walletID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Wallet), args.Error(1)
}

func (m *MockWalletRepository) FindWalletByOwnerID(ctx context.Context, ownerID string) (*domain.Wallet, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Wallet), args.Error(1)
}

func (m *MockWalletRepository) GetOrCreateSystemWallet(ctx context.Context, kind domain.SystemWalletKind) (*domain.Wallet, error) {
	args := m.Called(ctx, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Wallet), args.Error(1)
}

func (m *MockWalletRepository) UpdateWalletStatus(ctx context.Context, walletID string, status domain.WalletStatus, updatedBy string, updatedAt time.Time) error {
	args := m.Called(ctx, walletID, status, updatedBy, updatedAt)
	return args.Error(0)
}

func (m *MockWalletRepository) ApplyEntry(ctx context.Context, walletID, currency string, amount decimal.Decimal, relatedTxID *string, description string) (*domain.LedgerEntry, error) {
	args := m.Called(ctx, walletID, currency, amount, relatedTxID, description)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LedgerEntry), args.Error(1)
}

func (m *MockWalletRepository) ApplyLegsInTx(ctx context.Context, tx pgx.Tx, legs []domain.LedgerLeg, relatedTxID string, now time.Time) ([]domain.LedgerEntry, error) {
	args := m.Called(ctx, tx, legs, relatedTxID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.LedgerEntry), args.Error(1)
}

func (m *MockWalletRepository) ListEntries(ctx context.Context, walletID, currency string) ([]domain.LedgerEntry, error) {
	args := m.Called(ctx, walletID, currency)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.LedgerEntry), args.Error(1)
}

func (m *MockWalletRepository) SumEntries(ctx context.Context, walletID, currency string) (decimal.Decimal, error) {
	args := m.Called(ctx, walletID, currency)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockWalletRepository) SumDebitsSince(ctx context.Context, walletID, currency string, since time.Time) (decimal.Decimal, error) {
	args := m.Called(ctx, walletID, currency, since)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

// MockIdempotencyRepository is a mock type for the IdempotencyRepositoryFacade interface
type MockIdempotencyRepository struct {
	mock.Mock
}

func (m *MockIdempotencyRepository) Reserve(ctx context.Context, record domain.IdempotencyRecord) (*domain.IdempotencyRecord, bool, error) {
	args := m.Called(ctx, record)
	var existing *domain.IdempotencyRecord
	if args.Get(0) != nil {
		existing = args.Get(0).(*domain.IdempotencyRecord)
	}
	return existing, args.Bool(1), args.Error(2)
}

func (m *MockIdempotencyRepository) SetResponse(ctx context.Context, key string, response json.RawMessage) error {
	args := m.Called(ctx, key, response)
	return args.Error(0)
}

func (m *MockIdempotencyRepository) DeleteKey(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockIdempotencyRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

// MockIdempotencyService is a mock type for the IdempotencySvcFacade interface
type MockIdempotencyService struct {
	mock.Mock
}

func (m *MockIdempotencyService) CheckAndReserve(ctx context.Context, key, operationType string) (json.RawMessage, bool, error) {
	args := m.Called(ctx, key, operationType)
	var stored json.RawMessage
	if args.Get(0) != nil {
		stored = args.Get(0).(json.RawMessage)
	}
	return stored, args.Bool(1), args.Error(2)
}

func (m *MockIdempotencyService) SaveResponse(ctx context.Context, key string, response interface{}) error {
	args := m.Called(ctx, key, response)
	return args.Error(0)
}

func (m *MockIdempotencyService) Release(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockIdempotencyService) CleanupExpired(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// MockPublisher is a mock type for the EventPublisherFacade interface
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, event domain.Event) {
	m.Called(ctx, event)
}

func (m *MockPublisher) RecentEvents(n int) []domain.Event {
	args := m.Called(n)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]domain.Event)
}

// MockEscrowService is a mock type for the EscrowSvcFacade interface
type MockEscrowService struct {
	mock.Mock
}

func (m *MockEscrowService) CreateTransaction(ctx context.Context, req dto.CreateTransactionRequest, actor portssvc.Actor) (*domain.Transaction, error) {
	args := m.Called(ctx, req, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transaction), args.Error(1)
}

func (m *MockEscrowService) HoldInEscrow(ctx context.Context, transactionID string, actor portssvc.Actor) (*domain.Transaction, error) {
	args := m.Called(ctx, transactionID, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transaction), args.Error(1)
}

func (m *MockEscrowService) Release(ctx context.Context, transactionID string, actor portssvc.Actor) (*domain.Transaction, error) {
	args := m.Called(ctx, transactionID, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transaction), args.Error(1)
}

func (m *MockEscrowService) Refund(ctx context.Context, transactionID, reason string, actor portssvc.Actor) (*domain.Transaction, error) {
	args := m.Called(ctx, transactionID, reason, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transaction), args.Error(1)
}

func (m *MockEscrowService) Dispute(ctx context.Context, transactionID, reason string, actor portssvc.Actor) (*domain.Transaction, error) {
	args := m.Called(ctx, transactionID, reason, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transaction), args.Error(1)
}

func (m *MockEscrowService) ResolveDispute(ctx context.Context, transactionID string, inFavorOfSeller bool, reason string, actor portssvc.Actor) (*domain.Transaction, error) {
	args := m.Called(ctx, transactionID, inFavorOfSeller, reason, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transaction), args.Error(1)
}

func (m *MockEscrowService) Cancel(ctx context.Context, transactionID, reason string, actor portssvc.Actor) (*domain.Transaction, error) {
	args := m.Called(ctx, transactionID, reason, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transaction), args.Error(1)
}

func (m *MockEscrowService) GetTransaction(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transaction), args.Error(1)
}

func (m *MockEscrowService) GetAvailableActions(ctx context.Context, transactionID string) ([]string, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockEscrowService) ListHistory(ctx context.Context, transactionID string) ([]domain.TransactionHistoryEntry, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.TransactionHistoryEntry), args.Error(1)
}
