package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// WalletStatus is the administrative state of a wallet.
type WalletStatus string

const (
	WalletActive WalletStatus = "ACTIVE"
	WalletFrozen WalletStatus = "FROZEN"
	WalletClosed WalletStatus = "CLOSED" // retired, never deleted
)

// SystemWalletKind distinguishes the two singleton system wallets from
// ordinary user wallets.
type SystemWalletKind string

const (
	SystemWalletEscrow SystemWalletKind = "ESCROW"
	SystemWalletFee    SystemWalletKind = "FEE"
)

// SystemOwnerID is the reserved owner id of the system wallets.
const SystemOwnerID = "SYSTEM"

// Wallet is a multi-currency balance store. Balances are only ever mutated
// through ledger entries, one atomic commit per entry.
type Wallet struct {
	WalletID   string                     `json:"walletID"`
	WalletUID  string                     `json:"walletUID"`
	OwnerID    string                     `json:"ownerID"`
	SystemKind *SystemWalletKind          `json:"systemKind,omitempty"` // nil for user wallets
	Status     WalletStatus               `json:"status"`
	Balances   map[string]decimal.Decimal `json:"balances"` // currency -> balance

	// Per-currency debit caps for user-initiated withdrawals. Zero values mean
	// no cap. System wallets are exempt.
	DailyDebitLimit   decimal.Decimal `json:"dailyDebitLimit"`
	MonthlyDebitLimit decimal.Decimal `json:"monthlyDebitLimit"`

	AuditFields
}

// IsSystem reports whether the wallet is one of the singleton system wallets.
func (w Wallet) IsSystem() bool {
	return w.SystemKind != nil
}

// Balance returns the stored balance for a currency, zero when absent.
func (w Wallet) Balance(currency string) decimal.Decimal {
	if b, ok := w.Balances[currency]; ok {
		return b
	}
	return decimal.Zero
}

// EntryDirection tags a ledger entry as a credit or a debit.
type EntryDirection string

const (
	DirectionCredit EntryDirection = "CREDIT"
	DirectionDebit  EntryDirection = "DEBIT"
)

// LedgerEntry is one immutable, signed balance change. Entries for a
// (wallet, currency) pair chain: BalanceAfter = BalanceBefore + Amount, and
// summing all entries reconstructs the stored balance.
type LedgerEntry struct {
	EntryID       string          `json:"entryID"`
	WalletID      string          `json:"walletID"`
	TransactionID *string         `json:"transactionID,omitempty"` // nil for deposits/withdrawals
	Amount        decimal.Decimal `json:"amount"`                  // signed
	Currency      string          `json:"currency"`
	BalanceBefore decimal.Decimal `json:"balanceBefore"`
	BalanceAfter  decimal.Decimal `json:"balanceAfter"`
	Direction     EntryDirection  `json:"direction"`
	Description   string          `json:"description,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// DirectionFor derives the entry direction from a signed amount.
func DirectionFor(amount decimal.Decimal) EntryDirection {
	if amount.IsNegative() {
		return DirectionDebit
	}
	return DirectionCredit
}
