package domain

import "time"

// EventType names an in-process notification. The kafka bridge derives the
// external routing key from it.
type EventType string

const (
	EventTransactionCreated   EventType = "transaction.created"
	EventTransactionCompleted EventType = "transaction.completed"
	EventTransactionDisputed  EventType = "transaction.disputed"
	EventTransactionUpdated   EventType = "transaction.updated"
	EventEscrowFundsHeld      EventType = "escrow.funds_held"
	EventEscrowFundsReleased  EventType = "escrow.funds_released"
	EventEscrowFundsRefunded  EventType = "escrow.funds_refunded"
)

// Event is an ephemeral state-change notification. Published events are kept
// only in the publisher's bounded diagnostic ring buffer.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload"`
}
