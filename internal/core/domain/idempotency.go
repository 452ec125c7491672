package domain

import (
	"encoding/json"
	"time"
)

// IdempotencyRecord reserves a caller-supplied key for one mutating
// operation. The first writer for a key wins; the record and its stored
// response are immutable once set.
type IdempotencyRecord struct {
	Key           string          `json:"key"`
	OperationType string          `json:"operationType"`
	Response      json.RawMessage `json:"response,omitempty"` // nil until the first call completes
	CreatedAt     time.Time       `json:"createdAt"`
	ExpiresAt     time.Time       `json:"expiresAt"`
}

// Expired reports whether the record's retention window has elapsed.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
