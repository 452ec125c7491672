package models

import "time"

// IdempotencyRecord is the database representation of a key reservation.
type IdempotencyRecord struct {
	Key           string
	OperationType string
	Response      []byte // jsonb, NULL until the first call completes
	CreatedAt     time.Time
	ExpiresAt     time.Time
}
