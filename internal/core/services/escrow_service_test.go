package services_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/payflowhq/escrow_backend/internal/apperrors"
	"github.com/payflowhq/escrow_backend/internal/core/domain"
	portssvc "github.com/payflowhq/escrow_backend/internal/core/ports/services"
	"github.com/payflowhq/escrow_backend/internal/core/services"
	"github.com/payflowhq/escrow_backend/internal/dto"
)

type EscrowServiceTestSuite struct {
	suite.Suite
	mockTxRepo     *MockTransactionRepository
	mockWalletRepo *MockWalletRepository
	mockIdem       *MockIdempotencyService
	mockPublisher  *MockPublisher
	service        portssvc.EscrowSvcFacade

	buyerID  string
	sellerID string
}

func (suite *EscrowServiceTestSuite) SetupTest() {
	suite.mockTxRepo = new(MockTransactionRepository)
	suite.mockWalletRepo = new(MockWalletRepository)
	suite.mockIdem = new(MockIdempotencyService)
	suite.mockPublisher = new(MockPublisher)
	suite.service = services.NewEscrowService(
		suite.mockTxRepo,
		suite.mockWalletRepo,
		suite.mockIdem,
		suite.mockPublisher,
		72*time.Hour,
	)
	suite.buyerID = uuid.NewString()
	suite.sellerID = uuid.NewString()
}

// actor without an idempotency key; the guard is exercised separately.
func (suite *EscrowServiceTestSuite) userActor() portssvc.Actor {
	return portssvc.Actor{ID: suite.buyerID, Type: domain.InitiatorUser}
}

func (suite *EscrowServiceTestSuite) buyerWallet(balance decimal.Decimal) *domain.Wallet {
	return &domain.Wallet{
		WalletID:  "wallet-buyer",
		WalletUID: uuid.NewString(),
		OwnerID:   suite.buyerID,
		Status:    domain.WalletActive,
		Balances:  map[string]decimal.Decimal{"USD": balance},
	}
}

func (suite *EscrowServiceTestSuite) sellerWallet() *domain.Wallet {
	return &domain.Wallet{
		WalletID: "wallet-seller",
		OwnerID:  suite.sellerID,
		Status:   domain.WalletActive,
		Balances: map[string]decimal.Decimal{},
	}
}

func systemWallet(kind domain.SystemWalletKind) *domain.Wallet {
	id := "wallet-escrow"
	if kind == domain.SystemWalletFee {
		id = "wallet-fee"
	}
	return &domain.Wallet{
		WalletID:   id,
		OwnerID:    domain.SystemOwnerID,
		SystemKind: &kind,
		Status:     domain.WalletActive,
		Balances:   map[string]decimal.Decimal{},
	}
}

func (suite *EscrowServiceTestSuite) baseTransaction(status domain.TransactionStatus) *domain.Transaction {
	return &domain.Transaction{
		TransactionID:  "txn-1",
		TransactionUID: uuid.NewString(),
		BuyerID:        suite.buyerID,
		SellerID:       suite.sellerID,
		Amount:         decimal.NewFromInt(100),
		Currency:       "USD",
		FeeAmount:      decimal.RequireFromString("2.50"),
		FeePercentage:  decimal.RequireFromString("2.5"),
		Status:         status,
		WalletID:       "wallet-buyer",
		ExpiresAt:      time.Now().UTC().Add(time.Hour),
	}
}

// echoCommittedPlan makes the CommitTransition mock return the planned
// transaction snapshot, mirroring what the real repository does on success.
func echoCommittedPlan(plan domain.TransitionPlan) *domain.Transaction {
	committed := plan.Transaction
	return &committed
}

func (suite *EscrowServiceTestSuite) allowPublish() {
	suite.mockPublisher.On("Publish", mock.Anything, mock.Anything).Maybe()
}

func (suite *EscrowServiceTestSuite) publishedTypes() []domain.EventType {
	var types []domain.EventType
	for _, call := range suite.mockPublisher.Calls {
		if call.Method == "Publish" {
			types = append(types, call.Arguments.Get(1).(domain.Event).Type)
		}
	}
	return types
}

// --- CreateTransaction ---

func (suite *EscrowServiceTestSuite) TestCreateTransaction_Success() {
	ctx := context.Background()
	suite.allowPublish()
	req := dto.CreateTransactionRequest{
		BuyerID:       suite.buyerID,
		SellerID:      suite.sellerID,
		WalletID:      "wallet-buyer",
		Amount:        decimal.NewFromInt(100),
		Currency:      "USD",
		FeePercentage: decimal.RequireFromString("2.5"),
	}

	suite.mockWalletRepo.On("FindWalletByID", ctx, "wallet-buyer").
		Return(suite.buyerWallet(decimal.NewFromInt(500)), nil).Once()
	suite.mockTxRepo.On("SaveTransaction", ctx,
		mock.AnythingOfType("domain.Transaction"), mock.AnythingOfType("domain.TransactionHistoryEntry")).
		Return(nil).Once()

	txn, err := suite.service.CreateTransaction(ctx, req, suite.userActor())

	suite.Require().NoError(err)
	suite.Require().NotNil(txn)
	suite.Equal(domain.StatusPending, txn.Status)
	suite.True(txn.FeeAmount.Equal(decimal.RequireFromString("2.50")), "fee is 2.5%% of 100 rounded to cents, got %s", txn.FeeAmount)
	suite.True(txn.SellerAmount().Equal(decimal.RequireFromString("97.50")))
	suite.NotEmpty(txn.TransactionID)
	suite.WithinDuration(time.Now().UTC().Add(72*time.Hour), txn.ExpiresAt, time.Minute)

	savedHistory := suite.mockTxRepo.Calls[0].Arguments.Get(2).(domain.TransactionHistoryEntry)
	suite.Nil(savedHistory.PreviousStatus, "creation history row has no previous status")
	suite.Equal(domain.StatusPending, savedHistory.NewStatus)

	suite.Equal([]domain.EventType{domain.EventTransactionCreated}, suite.publishedTypes())
	suite.mockTxRepo.AssertExpectations(suite.T())
}

func (suite *EscrowServiceTestSuite) TestCreateTransaction_RejectsNonPositiveAmount() {
	req := dto.CreateTransactionRequest{
		BuyerID:  suite.buyerID,
		SellerID: suite.sellerID,
		WalletID: "wallet-buyer",
		Amount:   decimal.Zero,
		Currency: "USD",
	}
	_, err := suite.service.CreateTransaction(context.Background(), req, suite.userActor())
	suite.ErrorIs(err, apperrors.ErrValidation)
	suite.mockTxRepo.AssertNotCalled(suite.T(), "SaveTransaction", mock.Anything, mock.Anything, mock.Anything)
}

func (suite *EscrowServiceTestSuite) TestCreateTransaction_RejectsBuyerAsSeller() {
	req := dto.CreateTransactionRequest{
		BuyerID:  suite.buyerID,
		SellerID: suite.buyerID,
		WalletID: "wallet-buyer",
		Amount:   decimal.NewFromInt(10),
		Currency: "USD",
	}
	_, err := suite.service.CreateTransaction(context.Background(), req, suite.userActor())
	suite.ErrorIs(err, apperrors.ErrValidation)
}

func (suite *EscrowServiceTestSuite) TestCreateTransaction_RejectsForeignWallet() {
	ctx := context.Background()
	req := dto.CreateTransactionRequest{
		BuyerID:  suite.buyerID,
		SellerID: suite.sellerID,
		WalletID: "wallet-other",
		Amount:   decimal.NewFromInt(10),
		Currency: "USD",
	}
	other := suite.sellerWallet()
	suite.mockWalletRepo.On("FindWalletByID", ctx, "wallet-other").Return(other, nil).Once()

	_, err := suite.service.CreateTransaction(ctx, req, suite.userActor())
	suite.ErrorIs(err, apperrors.ErrValidation)
}

func (suite *EscrowServiceTestSuite) TestCreateTransaction_RejectsFeePercentageOutOfRange() {
	req := dto.CreateTransactionRequest{
		BuyerID:       suite.buyerID,
		SellerID:      suite.sellerID,
		WalletID:      "wallet-buyer",
		Amount:        decimal.NewFromInt(10),
		Currency:      "USD",
		FeePercentage: decimal.NewFromInt(101),
	}
	_, err := suite.service.CreateTransaction(context.Background(), req, suite.userActor())
	suite.ErrorIs(err, apperrors.ErrValidation)
}

// --- HoldInEscrow ---

func (suite *EscrowServiceTestSuite) TestHoldInEscrow_Success() {
	ctx := context.Background()
	suite.allowPublish()
	txn := suite.baseTransaction(domain.StatusPending)
	// boundary: balance exactly equals the amount
	wallet := suite.buyerWallet(decimal.NewFromInt(100))

	suite.mockTxRepo.On("FindTransactionByID", ctx, "txn-1").Return(txn, nil).Once()
	suite.mockWalletRepo.On("FindWalletByID", ctx, "wallet-buyer").Return(wallet, nil).Once()
	suite.mockWalletRepo.On("GetOrCreateSystemWallet", ctx, domain.SystemWalletEscrow).
		Return(systemWallet(domain.SystemWalletEscrow), nil).Once()

	var plan domain.TransitionPlan
	suite.mockTxRepo.On("CommitTransition", ctx, mock.AnythingOfType("domain.TransitionPlan")).
		Run(func(args mock.Arguments) { plan = args.Get(1).(domain.TransitionPlan) }).
		Return(echoCommittedPlan, nil).
		Once()

	committed, err := suite.service.HoldInEscrow(ctx, "txn-1", suite.userActor())

	suite.Require().NoError(err)
	suite.Equal(domain.StatusEscrowHeld, committed.Status)
	suite.NotNil(committed.EscrowHeldAt)

	suite.Equal(domain.StatusPending, plan.ExpectedStatus)
	suite.Require().Len(plan.Legs, 2)
	suite.Equal("wallet-buyer", plan.Legs[0].WalletID)
	suite.True(plan.Legs[0].Amount.Equal(decimal.NewFromInt(-100)))
	suite.Equal("wallet-escrow", plan.Legs[1].WalletID)
	suite.True(plan.Legs[1].Amount.Equal(decimal.NewFromInt(100)))
	suite.True(plan.Legs[0].Amount.Add(plan.Legs[1].Amount).IsZero(), "legs must sum to zero")

	suite.Require().NotNil(plan.History.PreviousStatus)
	suite.Equal(domain.StatusPending, *plan.History.PreviousStatus)
	suite.Equal(domain.StatusEscrowHeld, plan.History.NewStatus)

	suite.Equal([]domain.EventType{domain.EventEscrowFundsHeld}, suite.publishedTypes())
}

func (suite *EscrowServiceTestSuite) TestHoldInEscrow_InsufficientFunds() {
	ctx := context.Background()
	txn := suite.baseTransaction(domain.StatusPending)
	// one cent short of the amount
	wallet := suite.buyerWallet(decimal.RequireFromString("99.99"))

	suite.mockTxRepo.On("FindTransactionByID", ctx, "txn-1").Return(txn, nil).Once()
	suite.mockWalletRepo.On("FindWalletByID", ctx, "wallet-buyer").Return(wallet, nil).Once()

	_, err := suite.service.HoldInEscrow(ctx, "txn-1", suite.userActor())

	suite.ErrorIs(err, apperrors.ErrInsufficientFunds)
	suite.mockTxRepo.AssertNotCalled(suite.T(), "CommitTransition", mock.Anything, mock.Anything)
}

func (suite *EscrowServiceTestSuite) TestHoldInEscrow_InactiveWallet() {
	ctx := context.Background()
	txn := suite.baseTransaction(domain.StatusPending)
	wallet := suite.buyerWallet(decimal.NewFromInt(500))
	wallet.Status = domain.WalletFrozen

	suite.mockTxRepo.On("FindTransactionByID", ctx, "txn-1").Return(txn, nil).Once()
	suite.mockWalletRepo.On("FindWalletByID", ctx, "wallet-buyer").Return(wallet, nil).Once()

	_, err := suite.service.HoldInEscrow(ctx, "txn-1", suite.userActor())
	suite.ErrorIs(err, apperrors.ErrWalletInactive)
}

func (suite *EscrowServiceTestSuite) TestHoldInEscrow_AlreadyHeldIsNoOp() {
	ctx := context.Background()
	txn := suite.baseTransaction(domain.StatusEscrowHeld)
	suite.mockTxRepo.On("FindTransactionByID", ctx, "txn-1").Return(txn, nil).Once()

	committed, err := suite.service.HoldInEscrow(ctx, "txn-1", suite.userActor())

	suite.Require().NoError(err)
	suite.Equal(domain.StatusEscrowHeld, committed.Status)
	suite.mockTxRepo.AssertNotCalled(suite.T(), "CommitTransition", mock.Anything, mock.Anything)
	suite.mockPublisher.AssertNotCalled(suite.T(), "Publish", mock.Anything, mock.Anything)
}

// --- Release ---

func (suite *EscrowServiceTestSuite) TestRelease_PaysSellerAndRealizesFee() {
	ctx := context.Background()
	suite.allowPublish()
	txn := suite.baseTransaction(domain.StatusEscrowHeld)

	suite.mockTxRepo.On("FindTransactionByID", ctx, "txn-1").Return(txn, nil).Once()
	suite.mockWalletRepo.On("GetOrCreateSystemWallet", ctx, domain.SystemWalletEscrow).
		Return(systemWallet(domain.SystemWalletEscrow), nil).Once()
	suite.mockWalletRepo.On("FindWalletByOwnerID", ctx, suite.sellerID).Return(suite.sellerWallet(), nil).Once()
	suite.mockWalletRepo.On("GetOrCreateSystemWallet", ctx, domain.SystemWalletFee).
		Return(systemWallet(domain.SystemWalletFee), nil).Once()

	var plan domain.TransitionPlan
	suite.mockTxRepo.On("CommitTransition", ctx, mock.AnythingOfType("domain.TransitionPlan")).
		Run(func(args mock.Arguments) { plan = args.Get(1).(domain.TransitionPlan) }).
		Return(echoCommittedPlan, nil).
		Once()

	committed, err := suite.service.Release(ctx, "txn-1", suite.userActor())

	suite.Require().NoError(err)
	suite.Equal(domain.StatusCompleted, committed.Status)
	suite.NotNil(committed.CompletedAt)

	suite.Require().Len(plan.Legs, 3)
	suite.Equal("wallet-escrow", plan.Legs[0].WalletID)
	suite.True(plan.Legs[0].Amount.Equal(decimal.NewFromInt(-100)))
	suite.Equal("wallet-seller", plan.Legs[1].WalletID)
	suite.True(plan.Legs[1].Amount.Equal(decimal.RequireFromString("97.50")))
	suite.Equal("wallet-fee", plan.Legs[2].WalletID)
	suite.True(plan.Legs[2].Amount.Equal(decimal.RequireFromString("2.50")))

	sum := decimal.Zero
	for _, leg := range plan.Legs {
		sum = sum.Add(leg.Amount)
	}
	suite.True(sum.IsZero(), "legs must sum to zero")

	suite.Equal([]domain.EventType{domain.EventEscrowFundsReleased, domain.EventTransactionCompleted}, suite.publishedTypes())
}

func (suite *EscrowServiceTestSuite) TestRelease_ZeroFeeSkipsFeeWallet() {
	ctx := context.Background()
	suite.allowPublish()
	txn := suite.baseTransaction(domain.StatusEscrowHeld)
	txn.FeeAmount = decimal.Zero
	txn.FeePercentage = decimal.Zero

	suite.mockTxRepo.On("FindTransactionByID", ctx, "txn-1").Return(txn, nil).Once()
	suite.mockWalletRepo.On("GetOrCreateSystemWallet", ctx, domain.SystemWalletEscrow).
		Return(systemWallet(domain.SystemWalletEscrow), nil).Once()
	suite.mockWalletRepo.On("FindWalletByOwnerID", ctx, suite.sellerID).Return(suite.sellerWallet(), nil).Once()

	var plan domain.TransitionPlan
	suite.mockTxRepo.On("CommitTransition", ctx, mock.AnythingOfType("domain.TransitionPlan")).
		Run(func(args mock.Arguments) { plan = args.Get(1).(domain.TransitionPlan) }).
		Return(echoCommittedPlan, nil).
		Once()

	_, err := suite.service.Release(ctx, "txn-1", suite.userActor())

	suite.Require().NoError(err)
	suite.Len(plan.Legs, 2)
	suite.mockWalletRepo.AssertNotCalled(suite.T(), "GetOrCreateSystemWallet", mock.Anything, domain.SystemWalletFee)
}

func (suite *EscrowServiceTestSuite) TestRelease_FromPendingIsInvalid() {
	ctx := context.Background()
	txn := suite.baseTransaction(domain.StatusPending)

	suite.mockTxRepo.On("FindTransactionByID", ctx, "txn-1").Return(txn, nil).Once()
	suite.mockWalletRepo.On("GetOrCreateSystemWallet", ctx, domain.SystemWalletEscrow).
		Return(systemWallet(domain.SystemWalletEscrow), nil).Once()
	suite.mockWalletRepo.On("FindWalletByOwnerID", ctx, suite.sellerID).Return(suite.sellerWallet(), nil).Once()
	suite.mockWalletRepo.On("GetOrCreateSystemWallet", ctx, domain.SystemWalletFee).
		Return(systemWallet(domain.SystemWalletFee), nil).Once()

	_, err := suite.service.Release(ctx, "txn-1", suite.userActor())

	suite.ErrorIs(err, apperrors.ErrInvalidTransition)
	suite.mockTxRepo.AssertNotCalled(suite.T(), "CommitTransition", mock.Anything, mock.Anything)
}

// --- Refund ---

func (suite *EscrowServiceTestSuite) TestRefund_ReturnsFullAmountIgnoringFee() {
	ctx := context.Background()
	suite.allowPublish()
	txn := suite.baseTransaction(domain.StatusEscrowHeld)

	suite.mockTxRepo.On("FindTransactionByID", ctx, "txn-1").Return(txn, nil).Once()
	suite.mockWalletRepo.On("GetOrCreateSystemWallet", ctx, domain.SystemWalletEscrow).
		Return(systemWallet(domain.SystemWalletEscrow), nil).Once()

	var plan domain.TransitionPlan
	suite.mockTxRepo.On("CommitTransition", ctx, mock.AnythingOfType("domain.TransitionPlan")).
		Run(func(args mock.Arguments) { plan = args.Get(1).(domain.TransitionPlan) }).
		Return(echoCommittedPlan, nil).
		Once()

	committed, err := suite.service.Refund(ctx, "txn-1", "buyer request", suite.userActor())

	suite.Require().NoError(err)
	suite.Equal(domain.StatusRefunded, committed.Status)
	suite.NotNil(committed.RefundedAt)

	suite.Require().Len(plan.Legs, 2)
	// buyer receives the full amount; the fee is realized only on COMPLETED
	suite.Equal("wallet-buyer", plan.Legs[1].WalletID)
	suite.True(plan.Legs[1].Amount.Equal(decimal.NewFromInt(100)))
	suite.Equal("buyer request", plan.History.Reason)

	suite.Equal([]domain.EventType{domain.EventEscrowFundsRefunded}, suite.publishedTypes())
}

// --- Dispute and resolution ---

func (suite *EscrowServiceTestSuite) TestDispute_MovesNoFunds() {
	ctx := context.Background()
	suite.allowPublish()
	txn := suite.baseTransaction(domain.StatusEscrowHeld)

	suite.mockTxRepo.On("FindTransactionByID", ctx, "txn-1").Return(txn, nil).Once()

	var plan domain.TransitionPlan
	suite.mockTxRepo.On("CommitTransition", ctx, mock.AnythingOfType("domain.TransitionPlan")).
		Run(func(args mock.Arguments) { plan = args.Get(1).(domain.TransitionPlan) }).
		Return(echoCommittedPlan, nil).
		Once()

	committed, err := suite.service.Dispute(ctx, "txn-1", "item not received", suite.userActor())

	suite.Require().NoError(err)
	suite.Equal(domain.StatusDisputed, committed.Status)
	suite.Empty(plan.Legs, "dispute freezes funds in place")
	suite.Equal([]domain.EventType{domain.EventTransactionDisputed}, suite.publishedTypes())
}

func (suite *EscrowServiceTestSuite) TestResolveDispute_InFavorOfSellerReleasesAsAdmin() {
	ctx := context.Background()
	suite.allowPublish()
	txn := suite.baseTransaction(domain.StatusDisputed)

	suite.mockTxRepo.On("FindTransactionByID", ctx, "txn-1").Return(txn, nil).Once()
	suite.mockWalletRepo.On("GetOrCreateSystemWallet", ctx, domain.SystemWalletEscrow).
		Return(systemWallet(domain.SystemWalletEscrow), nil).Once()
	suite.mockWalletRepo.On("FindWalletByOwnerID", ctx, suite.sellerID).Return(suite.sellerWallet(), nil).Once()
	suite.mockWalletRepo.On("GetOrCreateSystemWallet", ctx, domain.SystemWalletFee).
		Return(systemWallet(domain.SystemWalletFee), nil).Once()

	var plan domain.TransitionPlan
	suite.mockTxRepo.On("CommitTransition", ctx, mock.AnythingOfType("domain.TransitionPlan")).
		Run(func(args mock.Arguments) { plan = args.Get(1).(domain.TransitionPlan) }).
		Return(echoCommittedPlan, nil).
		Once()

	committed, err := suite.service.ResolveDispute(ctx, "txn-1", true, "evidence provided", suite.userActor())

	suite.Require().NoError(err)
	suite.Equal(domain.StatusCompleted, committed.Status)
	suite.Equal(domain.InitiatorAdmin, plan.History.InitiatorType)
	suite.Equal(domain.StatusDisputed, plan.ExpectedStatus)
}

func (suite *EscrowServiceTestSuite) TestResolveDispute_AgainstSellerRefunds() {
	ctx := context.Background()
	suite.allowPublish()
	txn := suite.baseTransaction(domain.StatusDisputed)

	suite.mockTxRepo.On("FindTransactionByID", ctx, "txn-1").Return(txn, nil).Once()
	suite.mockWalletRepo.On("GetOrCreateSystemWallet", ctx, domain.SystemWalletEscrow).
		Return(systemWallet(domain.SystemWalletEscrow), nil).Once()

	var plan domain.TransitionPlan
	suite.mockTxRepo.On("CommitTransition", ctx, mock.AnythingOfType("domain.TransitionPlan")).
		Run(func(args mock.Arguments) { plan = args.Get(1).(domain.TransitionPlan) }).
		Return(echoCommittedPlan, nil).
		Once()

	committed, err := suite.service.ResolveDispute(ctx, "txn-1", false, "no evidence", suite.userActor())

	suite.Require().NoError(err)
	suite.Equal(domain.StatusRefunded, committed.Status)
	suite.Equal(domain.InitiatorAdmin, plan.History.InitiatorType)
}

// --- Cancel ---

func (suite *EscrowServiceTestSuite) TestCancel_PendingMovesNoFunds() {
	ctx := context.Background()
	suite.allowPublish()
	txn := suite.baseTransaction(domain.StatusPending)

	suite.mockTxRepo.On("FindTransactionByID", ctx, "txn-1").Return(txn, nil).Once()

	var plan domain.TransitionPlan
	suite.mockTxRepo.On("CommitTransition", ctx, mock.AnythingOfType("domain.TransitionPlan")).
		Run(func(args mock.Arguments) { plan = args.Get(1).(domain.TransitionPlan) }).
		Return(echoCommittedPlan, nil).
		Once()

	committed, err := suite.service.Cancel(ctx, "txn-1", "changed my mind", suite.userActor())

	suite.Require().NoError(err)
	suite.Equal(domain.StatusCanceled, committed.Status)
	suite.NotNil(committed.CanceledAt)
	suite.Nil(committed.RefundedAt)
	suite.Empty(plan.Legs)
	suite.Equal([]domain.EventType{domain.EventTransactionUpdated}, suite.publishedTypes())
}

func (suite *EscrowServiceTestSuite) TestCancel_EscrowHeldRefundsInSameCommit() {
	ctx := context.Background()
	suite.allowPublish()
	txn := suite.baseTransaction(domain.StatusEscrowHeld)

	suite.mockTxRepo.On("FindTransactionByID", ctx, "txn-1").Return(txn, nil).Once()
	suite.mockWalletRepo.On("GetOrCreateSystemWallet", ctx, domain.SystemWalletEscrow).
		Return(systemWallet(domain.SystemWalletEscrow), nil).Once()

	var plan domain.TransitionPlan
	suite.mockTxRepo.On("CommitTransition", ctx, mock.AnythingOfType("domain.TransitionPlan")).
		Run(func(args mock.Arguments) { plan = args.Get(1).(domain.TransitionPlan) }).
		Return(echoCommittedPlan, nil).
		Once()

	committed, err := suite.service.Cancel(ctx, "txn-1", "expired", suite.userActor())

	suite.Require().NoError(err)
	suite.Equal(domain.StatusCanceled, committed.Status)
	suite.NotNil(committed.CanceledAt)
	suite.NotNil(committed.RefundedAt, "composite cancel records the refund instant")

	suite.Require().Len(plan.Legs, 2)
	suite.True(plan.Legs[0].Amount.Equal(decimal.NewFromInt(-100)))
	suite.Equal("wallet-buyer", plan.Legs[1].WalletID)
	suite.True(plan.Legs[1].Amount.Equal(decimal.NewFromInt(100)))

	suite.Equal([]domain.EventType{domain.EventEscrowFundsRefunded, domain.EventTransactionUpdated}, suite.publishedTypes())
}

// --- Concurrency linearization ---

func (suite *EscrowServiceTestSuite) TestConcurrentTransition_LoserGetsInvalidTransition() {
	ctx := context.Background()
	txn := suite.baseTransaction(domain.StatusEscrowHeld)

	suite.mockTxRepo.On("FindTransactionByID", ctx, "txn-1").Return(txn, nil).Once()
	suite.mockWalletRepo.On("GetOrCreateSystemWallet", ctx, domain.SystemWalletEscrow).
		Return(systemWallet(domain.SystemWalletEscrow), nil).Once()

	// A concurrent release won the row lock first: the recheck fails.
	suite.mockTxRepo.On("CommitTransition", ctx, mock.AnythingOfType("domain.TransitionPlan")).
		Return(nil, apperrors.ErrInvalidTransition).Once()

	_, err := suite.service.Refund(ctx, "txn-1", "too slow", suite.userActor())

	suite.ErrorIs(err, apperrors.ErrInvalidTransition)
	suite.mockPublisher.AssertNotCalled(suite.T(), "Publish", mock.Anything, mock.Anything)
}

func (suite *EscrowServiceTestSuite) TestRefund_AfterCompletionIsInvalid() {
	ctx := context.Background()
	txn := suite.baseTransaction(domain.StatusCompleted)

	suite.mockTxRepo.On("FindTransactionByID", ctx, "txn-1").Return(txn, nil).Once()
	suite.mockWalletRepo.On("GetOrCreateSystemWallet", ctx, domain.SystemWalletEscrow).
		Return(systemWallet(domain.SystemWalletEscrow), nil).Once()

	_, err := suite.service.Refund(ctx, "txn-1", "", suite.userActor())

	suite.ErrorIs(err, apperrors.ErrInvalidTransition)
	suite.mockTxRepo.AssertNotCalled(suite.T(), "CommitTransition", mock.Anything, mock.Anything)
}

// --- Idempotency guard integration ---

func (suite *EscrowServiceTestSuite) TestIdempotentReplayReturnsStoredSnapshot() {
	ctx := context.Background()
	stored := suite.baseTransaction(domain.StatusEscrowHeld)
	raw, err := json.Marshal(stored)
	suite.Require().NoError(err)

	actor := suite.userActor()
	actor.IdempotencyKey = "key-1"

	suite.mockIdem.On("CheckAndReserve", ctx, "key-1", services.OpHoldInEscrow).
		Return(json.RawMessage(raw), false, nil).Once()

	committed, err := suite.service.HoldInEscrow(ctx, "txn-1", actor)

	suite.Require().NoError(err)
	suite.Equal(stored.TransactionID, committed.TransactionID)
	suite.Equal(domain.StatusEscrowHeld, committed.Status)
	suite.mockTxRepo.AssertNotCalled(suite.T(), "FindTransactionByID", mock.Anything, mock.Anything)
	suite.mockIdem.AssertExpectations(suite.T())
}

func (suite *EscrowServiceTestSuite) TestIdempotencyReservationReleasedOnFailure() {
	ctx := context.Background()
	actor := suite.userActor()
	actor.IdempotencyKey = "key-2"

	suite.mockIdem.On("CheckAndReserve", ctx, "key-2", services.OpHoldInEscrow).
		Return(nil, true, nil).Once()
	suite.mockTxRepo.On("FindTransactionByID", ctx, "txn-1").
		Return(nil, apperrors.ErrTransactionNotFound).Once()
	suite.mockIdem.On("Release", ctx, "key-2").Return(nil).Once()

	_, err := suite.service.HoldInEscrow(ctx, "txn-1", actor)

	suite.ErrorIs(err, apperrors.ErrTransactionNotFound)
	suite.mockIdem.AssertExpectations(suite.T())
}

func (suite *EscrowServiceTestSuite) TestIdempotencyResponseSavedOnSuccess() {
	ctx := context.Background()
	suite.allowPublish()
	actor := suite.userActor()
	actor.IdempotencyKey = "key-3"
	txn := suite.baseTransaction(domain.StatusEscrowHeld)

	suite.mockIdem.On("CheckAndReserve", ctx, "key-3", services.OpHoldInEscrow).
		Return(nil, true, nil).Once()
	suite.mockTxRepo.On("FindTransactionByID", ctx, "txn-1").Return(txn, nil).Once()
	suite.mockIdem.On("SaveResponse", ctx, "key-3", mock.Anything).Return(nil).Once()

	// already held, so the shortcut snapshot is what gets stored
	committed, err := suite.service.HoldInEscrow(ctx, "txn-1", actor)

	suite.Require().NoError(err)
	suite.Equal(domain.StatusEscrowHeld, committed.Status)
	suite.mockIdem.AssertExpectations(suite.T())
}

// --- Introspection ---

func (suite *EscrowServiceTestSuite) TestGetAvailableActions_FollowsPersistedStatus() {
	ctx := context.Background()

	disputed := suite.baseTransaction(domain.StatusDisputed)
	suite.mockTxRepo.On("FindTransactionByID", ctx, "txn-1").Return(disputed, nil).Once()

	actions, err := suite.service.GetAvailableActions(ctx, "txn-1")
	suite.Require().NoError(err)
	suite.Equal([]string{"release", "refund"}, actions)

	completed := suite.baseTransaction(domain.StatusCompleted)
	suite.mockTxRepo.On("FindTransactionByID", ctx, "txn-1").Return(completed, nil).Once()

	actions, err = suite.service.GetAvailableActions(ctx, "txn-1")
	suite.Require().NoError(err)
	suite.Empty(actions, "terminal statuses permit nothing")
}

func (suite *EscrowServiceTestSuite) TestListHistory_RequiresExistingTransaction() {
	ctx := context.Background()
	suite.mockTxRepo.On("FindTransactionByID", ctx, "missing").
		Return(nil, apperrors.ErrTransactionNotFound).Once()

	_, err := suite.service.ListHistory(ctx, "missing")
	suite.ErrorIs(err, apperrors.ErrTransactionNotFound)
}

func TestEscrowServiceTestSuite(t *testing.T) {
	suite.Run(t, new(EscrowServiceTestSuite))
}
