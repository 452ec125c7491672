package services

import (
	"github.com/payflowhq/escrow_backend/internal/core/domain"
	"github.com/payflowhq/escrow_backend/internal/core/fsm"
)

// newEscrowMachine builds a machine carrying the escrow lifecycle table.
// Every status a transaction can ever hold is reachable from PENDING solely
// through this table.
func newEscrowMachine() *fsm.Machine[domain.TransactionStatus, domain.TransactionEvent] {
	m := fsm.New[domain.TransactionStatus, domain.TransactionEvent](domain.StatusPending)

	m.AddTransition(domain.StatusPending, domain.EventHold, domain.StatusEscrowHeld)
	m.AddTransition(domain.StatusPending, domain.EventCancel, domain.StatusCanceled)
	m.AddTransition(domain.StatusPending, domain.EventFail, domain.StatusFailed)

	m.AddTransition(domain.StatusEscrowHeld, domain.EventRelease, domain.StatusCompleted)
	m.AddTransition(domain.StatusEscrowHeld, domain.EventRefund, domain.StatusRefunded)
	m.AddTransition(domain.StatusEscrowHeld, domain.EventDispute, domain.StatusDisputed)
	m.AddTransition(domain.StatusEscrowHeld, domain.EventCancel, domain.StatusCanceled)

	// Dispute resolution paths.
	m.AddTransition(domain.StatusDisputed, domain.EventRelease, domain.StatusCompleted)
	m.AddTransition(domain.StatusDisputed, domain.EventRefund, domain.StatusRefunded)

	return m
}
