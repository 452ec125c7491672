package dto

import (
	"time"

	"github.com/payflowhq/escrow_backend/internal/core/domain"
	"github.com/shopspring/decimal"
)

// CreateTransactionRequest opens a new escrow transaction in PENDING.
type CreateTransactionRequest struct {
	BuyerID       string            `json:"buyerID" binding:"required"`
	SellerID      string            `json:"sellerID" binding:"required"`
	WalletID      string            `json:"walletID" binding:"required"` // buyer's funding wallet
	Amount        decimal.Decimal   `json:"amount" binding:"required"`
	Currency      string            `json:"currency" binding:"required,len=3"`
	FeePercentage decimal.Decimal   `json:"feePercentage"`
	ExpiresIn     *time.Duration    `json:"expiresIn,omitempty"` // default applied by the engine
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// ActionRequest carries the optional reason for refund/dispute/cancel.
type ActionRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

// ResolveDisputeRequest settles a disputed transaction.
type ResolveDisputeRequest struct {
	InFavorOfSeller bool   `json:"inFavorOfSeller"`
	Reason          string `json:"reason" binding:"required,max=500"`
}

// TransactionResponse is the API shape of a transaction snapshot.
type TransactionResponse struct {
	TransactionID  string            `json:"transactionID"`
	TransactionUID string            `json:"transactionUID"`
	BuyerID        string            `json:"buyerID"`
	SellerID       string            `json:"sellerID"`
	Amount         decimal.Decimal   `json:"amount"`
	Currency       string            `json:"currency"`
	FeeAmount      decimal.Decimal   `json:"feeAmount"`
	FeePercentage  decimal.Decimal   `json:"feePercentage"`
	Status         string            `json:"status"`
	WalletID       string            `json:"walletID"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	ExpiresAt      time.Time         `json:"expiresAt"`
	EscrowHeldAt   *time.Time        `json:"escrowHeldAt,omitempty"`
	CompletedAt    *time.Time        `json:"completedAt,omitempty"`
	DisputedAt     *time.Time        `json:"disputedAt,omitempty"`
	RefundedAt     *time.Time        `json:"refundedAt,omitempty"`
	CanceledAt     *time.Time        `json:"canceledAt,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// ToTransactionResponse maps a domain transaction to its API shape.
func ToTransactionResponse(t *domain.Transaction) TransactionResponse {
	return TransactionResponse{
		TransactionID:  t.TransactionID,
		TransactionUID: t.TransactionUID,
		BuyerID:        t.BuyerID,
		SellerID:       t.SellerID,
		Amount:         t.Amount,
		Currency:       t.Currency,
		FeeAmount:      t.FeeAmount,
		FeePercentage:  t.FeePercentage,
		Status:         string(t.Status),
		WalletID:       t.WalletID,
		Metadata:       t.Metadata,
		ExpiresAt:      t.ExpiresAt,
		EscrowHeldAt:   t.EscrowHeldAt,
		CompletedAt:    t.CompletedAt,
		DisputedAt:     t.DisputedAt,
		RefundedAt:     t.RefundedAt,
		CanceledAt:     t.CanceledAt,
		CreatedAt:      t.CreatedAt,
	}
}

// HistoryEntryResponse is one row of a transaction's status audit trail.
type HistoryEntryResponse struct {
	PreviousStatus *string           `json:"previousStatus,omitempty"`
	NewStatus      string            `json:"newStatus"`
	InitiatorID    string            `json:"initiatorID"`
	InitiatorType  string            `json:"initiatorType"`
	Reason         string            `json:"reason,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// ToHistoryEntryResponses maps history rows to their API shape.
func ToHistoryEntryResponses(entries []domain.TransactionHistoryEntry) []HistoryEntryResponse {
	out := make([]HistoryEntryResponse, len(entries))
	for i, e := range entries {
		var prev *string
		if e.PreviousStatus != nil {
			s := string(*e.PreviousStatus)
			prev = &s
		}
		out[i] = HistoryEntryResponse{
			PreviousStatus: prev,
			NewStatus:      string(e.NewStatus),
			InitiatorID:    e.InitiatorID,
			InitiatorType:  string(e.InitiatorType),
			Reason:         e.Reason,
			Metadata:       e.Metadata,
			CreatedAt:      e.CreatedAt,
		}
	}
	return out
}
