package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet is the database representation of a wallet. Balances live in
// wallet_balances, one row per currency.
type Wallet struct {
	WalletID          string
	WalletUID         string
	OwnerID           string
	SystemKind        *string
	Status            string
	DailyDebitLimit   decimal.Decimal
	MonthlyDebitLimit decimal.Decimal
	CreatedAt         time.Time
	CreatedBy         string
	LastUpdatedAt     time.Time
	LastUpdatedBy     string
}

// WalletBalance is one stored (wallet, currency) balance.
type WalletBalance struct {
	WalletID string
	Currency string
	Balance  decimal.Decimal
}

// LedgerEntry is the database representation of one ledger row.
type LedgerEntry struct {
	EntryID       string
	WalletID      string
	TransactionID *string
	Amount        decimal.Decimal
	Currency      string
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	Direction     string
	Description   string
	CreatedAt     time.Time
}
