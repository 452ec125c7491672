package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is the database representation of an escrow transaction.
type Transaction struct {
	TransactionID       string
	TransactionUID      string
	BuyerID             string
	SellerID            string
	Amount              decimal.Decimal
	Currency            string
	FeeAmount           decimal.Decimal
	FeePercentage       decimal.Decimal
	Status              string
	WalletID            string
	ParentTransactionID *string
	Metadata            []byte // jsonb
	ExpiresAt           time.Time
	EscrowHeldAt        *time.Time
	CompletedAt         *time.Time
	DisputedAt          *time.Time
	RefundedAt          *time.Time
	CanceledAt          *time.Time
	CreatedAt           time.Time
	CreatedBy           string
	LastUpdatedAt       time.Time
	LastUpdatedBy       string
}

// TransactionHistory is one row of the append-only status audit trail.
type TransactionHistory struct {
	HistoryID      string
	TransactionID  string
	PreviousStatus *string
	NewStatus      string
	InitiatorID    string
	InitiatorType  string
	Reason         string
	Metadata       []byte // jsonb
	CreatedAt      time.Time
}
