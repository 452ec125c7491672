package mapping

import (
	"encoding/json"

	"github.com/payflowhq/escrow_backend/internal/core/domain"
	"github.com/payflowhq/escrow_backend/internal/models"
)

// ToModelTransaction converts a domain Transaction to a model Transaction.
func ToModelTransaction(d domain.Transaction) models.Transaction {
	return models.Transaction{
		TransactionID:       d.TransactionID,
		TransactionUID:      d.TransactionUID,
		BuyerID:             d.BuyerID,
		SellerID:            d.SellerID,
		Amount:              d.Amount,
		Currency:            d.Currency,
		FeeAmount:           d.FeeAmount,
		FeePercentage:       d.FeePercentage,
		Status:              string(d.Status),
		WalletID:            d.WalletID,
		ParentTransactionID: d.ParentTransactionID,
		Metadata:            marshalMeta(d.Metadata),
		ExpiresAt:           d.ExpiresAt,
		EscrowHeldAt:        d.EscrowHeldAt,
		CompletedAt:         d.CompletedAt,
		DisputedAt:          d.DisputedAt,
		RefundedAt:          d.RefundedAt,
		CanceledAt:          d.CanceledAt,
		CreatedAt:           d.CreatedAt,
		CreatedBy:           d.CreatedBy,
		LastUpdatedAt:       d.LastUpdatedAt,
		LastUpdatedBy:       d.LastUpdatedBy,
	}
}

// ToDomainTransaction converts a model Transaction to a domain Transaction.
func ToDomainTransaction(m models.Transaction) domain.Transaction {
	return domain.Transaction{
		TransactionID:       m.TransactionID,
		TransactionUID:      m.TransactionUID,
		BuyerID:             m.BuyerID,
		SellerID:            m.SellerID,
		Amount:              m.Amount,
		Currency:            m.Currency,
		FeeAmount:           m.FeeAmount,
		FeePercentage:       m.FeePercentage,
		Status:              domain.TransactionStatus(m.Status),
		WalletID:            m.WalletID,
		ParentTransactionID: m.ParentTransactionID,
		Metadata:            unmarshalMeta(m.Metadata),
		ExpiresAt:           m.ExpiresAt,
		EscrowHeldAt:        m.EscrowHeldAt,
		CompletedAt:         m.CompletedAt,
		DisputedAt:          m.DisputedAt,
		RefundedAt:          m.RefundedAt,
		CanceledAt:          m.CanceledAt,
		AuditFields: domain.AuditFields{
			CreatedAt:     m.CreatedAt,
			CreatedBy:     m.CreatedBy,
			LastUpdatedAt: m.LastUpdatedAt,
			LastUpdatedBy: m.LastUpdatedBy,
		},
	}
}

// ToModelHistory converts a domain history entry to its model.
func ToModelHistory(d domain.TransactionHistoryEntry) models.TransactionHistory {
	var prev *string
	if d.PreviousStatus != nil {
		s := string(*d.PreviousStatus)
		prev = &s
	}
	return models.TransactionHistory{
		HistoryID:      d.HistoryID,
		TransactionID:  d.TransactionID,
		PreviousStatus: prev,
		NewStatus:      string(d.NewStatus),
		InitiatorID:    d.InitiatorID,
		InitiatorType:  string(d.InitiatorType),
		Reason:         d.Reason,
		Metadata:       marshalMeta(d.Metadata),
		CreatedAt:      d.CreatedAt,
	}
}

// ToDomainHistory converts a model history row to its domain entry.
func ToDomainHistory(m models.TransactionHistory) domain.TransactionHistoryEntry {
	var prev *domain.TransactionStatus
	if m.PreviousStatus != nil {
		s := domain.TransactionStatus(*m.PreviousStatus)
		prev = &s
	}
	return domain.TransactionHistoryEntry{
		HistoryID:      m.HistoryID,
		TransactionID:  m.TransactionID,
		PreviousStatus: prev,
		NewStatus:      domain.TransactionStatus(m.NewStatus),
		InitiatorID:    m.InitiatorID,
		InitiatorType:  domain.InitiatorType(m.InitiatorType),
		Reason:         m.Reason,
		Metadata:       unmarshalMeta(m.Metadata),
		CreatedAt:      m.CreatedAt,
	}
}

func marshalMeta(meta map[string]string) []byte {
	if len(meta) == 0 {
		return nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return nil
	}
	return data
}

func unmarshalMeta(data []byte) map[string]string {
	if len(data) == 0 {
		return nil
	}
	meta := map[string]string{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil
	}
	return meta
}
