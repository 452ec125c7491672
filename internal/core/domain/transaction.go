package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus is the lifecycle state of an escrow transaction.
// Statuses only ever change through the engine's transition table.
type TransactionStatus string

const (
	StatusPending    TransactionStatus = "PENDING"
	StatusEscrowHeld TransactionStatus = "ESCROW_HELD"
	StatusCompleted  TransactionStatus = "COMPLETED"
	StatusDisputed   TransactionStatus = "DISPUTED"
	StatusRefunded   TransactionStatus = "REFUNDED"
	StatusCanceled   TransactionStatus = "CANCELED"
	StatusFailed     TransactionStatus = "FAILED"
)

// IsTerminal reports whether no further transition is permitted from the status.
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case StatusPending, StatusEscrowHeld, StatusDisputed:
		return false
	}
	return true
}

// TransactionEvent is an FSM event that moves a transaction between statuses.
type TransactionEvent string

const (
	EventHold    TransactionEvent = "hold"
	EventRelease TransactionEvent = "release"
	EventRefund  TransactionEvent = "refund"
	EventDispute TransactionEvent = "dispute"
	EventCancel  TransactionEvent = "cancel"
	EventFail    TransactionEvent = "fail"
)

// Metadata keys the engine is allowed to branch on. Anything else in the
// side-channel map is carried opaquely and never interpreted.
const (
	MetaListingID = "listing_id"
	MetaItemID    = "item_id"
	MetaSaleID    = "sale_id"
)

// Transaction represents one escrow deal between a buyer and a seller.
type Transaction struct {
	TransactionID       string            `json:"transactionID"`  // Primary key (UUID)
	TransactionUID      string            `json:"transactionUID"` // External-facing UID
	BuyerID             string            `json:"buyerID"`
	SellerID            string            `json:"sellerID"`
	Amount              decimal.Decimal   `json:"amount"`        // Always > 0
	Currency            string            `json:"currency"`      // ISO 4217 code
	FeeAmount           decimal.Decimal   `json:"feeAmount"`     // <= Amount; realized only on COMPLETED
	FeePercentage       decimal.Decimal   `json:"feePercentage"` // Informational, FeeAmount is authoritative
	Status              TransactionStatus `json:"status"`
	WalletID            string            `json:"walletID"` // Buyer's funding wallet
	ParentTransactionID *string           `json:"parentTransactionID,omitempty"`
	Metadata            map[string]string `json:"metadata,omitempty"` // Opaque side-channel data
	ExpiresAt           time.Time         `json:"expiresAt"`
	EscrowHeldAt        *time.Time        `json:"escrowHeldAt,omitempty"`
	CompletedAt         *time.Time        `json:"completedAt,omitempty"`
	DisputedAt          *time.Time        `json:"disputedAt,omitempty"`
	RefundedAt          *time.Time        `json:"refundedAt,omitempty"`
	CanceledAt          *time.Time        `json:"canceledAt,omitempty"`
	AuditFields
}

// SellerAmount is the amount credited to the seller on release.
func (t Transaction) SellerAmount() decimal.Decimal {
	return t.Amount.Sub(t.FeeAmount)
}

// TransactionHistoryEntry is one committed status change, append-only.
type TransactionHistoryEntry struct {
	HistoryID      string             `json:"historyID"`
	TransactionID  string             `json:"transactionID"`
	PreviousStatus *TransactionStatus `json:"previousStatus,omitempty"` // nil for the creation row
	NewStatus      TransactionStatus  `json:"newStatus"`
	InitiatorID    string             `json:"initiatorID"`
	InitiatorType  InitiatorType      `json:"initiatorType"`
	Reason         string             `json:"reason,omitempty"`
	Metadata       map[string]string  `json:"metadata,omitempty"`
	CreatedAt      time.Time          `json:"createdAt"`
}

// LedgerLeg is one signed balance change wanted by a transition plan.
// Negative amounts debit the wallet, positive amounts credit it.
type LedgerLeg struct {
	WalletID    string
	Currency    string
	Amount      decimal.Decimal
	Description string
}

// TransitionPlan bundles everything a status transition must commit
// atomically: the updated transaction snapshot, its history row, and the
// paired ledger legs. ExpectedStatus is re-checked under the row lock so
// concurrent operations on the same transaction are linearized.
type TransitionPlan struct {
	Transaction    Transaction
	ExpectedStatus TransactionStatus
	History        TransactionHistoryEntry
	Legs           []LedgerLeg
}
