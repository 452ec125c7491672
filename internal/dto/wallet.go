package dto

import (
	"time"

	"github.com/payflowhq/escrow_backend/internal/core/domain"
	"github.com/shopspring/decimal"
)

// CreateWalletRequest onboards a new user wallet.
type CreateWalletRequest struct {
	OwnerID           string          `json:"ownerID" binding:"required"`
	DailyDebitLimit   decimal.Decimal `json:"dailyDebitLimit"`
	MonthlyDebitLimit decimal.Decimal `json:"monthlyDebitLimit"`
}

// MoveFundsRequest deposits to or withdraws from a wallet.
type MoveFundsRequest struct {
	Currency    string          `json:"currency" binding:"required,len=3"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	Description string          `json:"description" binding:"max=500"`
}

// WalletResponse is the API shape of a wallet.
type WalletResponse struct {
	WalletID   string                     `json:"walletID"`
	WalletUID  string                     `json:"walletUID"`
	OwnerID    string                     `json:"ownerID"`
	SystemKind *string                    `json:"systemKind,omitempty"`
	Status     string                     `json:"status"`
	Balances   map[string]decimal.Decimal `json:"balances"`
	CreatedAt  time.Time                  `json:"createdAt"`
}

// ToWalletResponse maps a domain wallet to its API shape.
func ToWalletResponse(w *domain.Wallet) WalletResponse {
	var kind *string
	if w.SystemKind != nil {
		s := string(*w.SystemKind)
		kind = &s
	}
	return WalletResponse{
		WalletID:   w.WalletID,
		WalletUID:  w.WalletUID,
		OwnerID:    w.OwnerID,
		SystemKind: kind,
		Status:     string(w.Status),
		Balances:   w.Balances,
		CreatedAt:  w.CreatedAt,
	}
}

// LedgerEntryResponse is the API shape of a ledger row.
type LedgerEntryResponse struct {
	EntryID       string          `json:"entryID"`
	WalletID      string          `json:"walletID"`
	TransactionID *string         `json:"transactionID,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	BalanceBefore decimal.Decimal `json:"balanceBefore"`
	BalanceAfter  decimal.Decimal `json:"balanceAfter"`
	Direction     string          `json:"direction"`
	Description   string          `json:"description,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// ToLedgerEntryResponses maps ledger rows to their API shape.
func ToLedgerEntryResponses(entries []domain.LedgerEntry) []LedgerEntryResponse {
	out := make([]LedgerEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = LedgerEntryResponse{
			EntryID:       e.EntryID,
			WalletID:      e.WalletID,
			TransactionID: e.TransactionID,
			Amount:        e.Amount,
			Currency:      e.Currency,
			BalanceBefore: e.BalanceBefore,
			BalanceAfter:  e.BalanceAfter,
			Direction:     string(e.Direction),
			Description:   e.Description,
			CreatedAt:     e.CreatedAt,
		}
	}
	return out
}

// ReconcileResult reports the ledger reconstruction check for a
// (wallet, currency) pair.
type ReconcileResult struct {
	WalletID        string          `json:"walletID"`
	Currency        string          `json:"currency"`
	StoredBalance   decimal.Decimal `json:"storedBalance"`
	ComputedBalance decimal.Decimal `json:"computedBalance"`
	Consistent      bool            `json:"consistent"`
	EntryCount      int             `json:"entryCount"`
}
