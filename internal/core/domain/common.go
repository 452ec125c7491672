package domain

import "time"

// AuditFields holds standard audit information for domain entities.
type AuditFields struct {
	CreatedAt     time.Time `json:"createdAt"`
	CreatedBy     string    `json:"createdBy"` // initiator reference
	LastUpdatedAt time.Time `json:"lastUpdatedAt"`
	LastUpdatedBy string    `json:"lastUpdatedBy"`
}

// InitiatorType identifies who triggered a transaction status change.
type InitiatorType string

const (
	InitiatorUser   InitiatorType = "USER"
	InitiatorAdmin  InitiatorType = "ADMIN"
	InitiatorSystem InitiatorType = "SYSTEM"
)
