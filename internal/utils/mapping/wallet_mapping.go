package mapping

import (
	"github.com/payflowhq/escrow_backend/internal/core/domain"
	"github.com/payflowhq/escrow_backend/internal/models"
	"github.com/shopspring/decimal"
)

// ToModelWallet converts a domain Wallet to a model Wallet (balances are
// persisted separately, one row per currency).
func ToModelWallet(d domain.Wallet) models.Wallet {
	var kind *string
	if d.SystemKind != nil {
		s := string(*d.SystemKind)
		kind = &s
	}
	return models.Wallet{
		WalletID:          d.WalletID,
		WalletUID:         d.WalletUID,
		OwnerID:           d.OwnerID,
		SystemKind:        kind,
		Status:            string(d.Status),
		DailyDebitLimit:   d.DailyDebitLimit,
		MonthlyDebitLimit: d.MonthlyDebitLimit,
		CreatedAt:         d.CreatedAt,
		CreatedBy:         d.CreatedBy,
		LastUpdatedAt:     d.LastUpdatedAt,
		LastUpdatedBy:     d.LastUpdatedBy,
	}
}

// ToDomainWallet converts a model Wallet and its balance rows to a domain Wallet.
func ToDomainWallet(m models.Wallet, balances []models.WalletBalance) domain.Wallet {
	var kind *domain.SystemWalletKind
	if m.SystemKind != nil {
		k := domain.SystemWalletKind(*m.SystemKind)
		kind = &k
	}
	balanceMap := make(map[string]decimal.Decimal, len(balances))
	for _, b := range balances {
		balanceMap[b.Currency] = b.Balance
	}
	return domain.Wallet{
		WalletID:          m.WalletID,
		WalletUID:         m.WalletUID,
		OwnerID:           m.OwnerID,
		SystemKind:        kind,
		Status:            domain.WalletStatus(m.Status),
		Balances:          balanceMap,
		DailyDebitLimit:   m.DailyDebitLimit,
		MonthlyDebitLimit: m.MonthlyDebitLimit,
		AuditFields: domain.AuditFields{
			CreatedAt:     m.CreatedAt,
			CreatedBy:     m.CreatedBy,
			LastUpdatedAt: m.LastUpdatedAt,
			LastUpdatedBy: m.LastUpdatedBy,
		},
	}
}

// ToDomainLedgerEntry converts a model ledger row to its domain entry.
func ToDomainLedgerEntry(m models.LedgerEntry) domain.LedgerEntry {
	return domain.LedgerEntry{
		EntryID:       m.EntryID,
		WalletID:      m.WalletID,
		TransactionID: m.TransactionID,
		Amount:        m.Amount,
		Currency:      m.Currency,
		BalanceBefore: m.BalanceBefore,
		BalanceAfter:  m.BalanceAfter,
		Direction:     domain.EntryDirection(m.Direction),
		Description:   m.Description,
		CreatedAt:     m.CreatedAt,
	}
}

// ToDomainLedgerEntrySlice converts a slice of model ledger rows.
func ToDomainLedgerEntrySlice(ms []models.LedgerEntry) []domain.LedgerEntry {
	out := make([]domain.LedgerEntry, len(ms))
	for i, m := range ms {
		out[i] = ToDomainLedgerEntry(m)
	}
	return out
}
