package apperrors

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates that a requested resource could not be found.
var ErrNotFound = errors.New("resource not found")

// ErrValidation indicates that input data failed validation checks.
var ErrValidation = errors.New("validation error")

// ErrDuplicate indicates that an attempt was made to create a resource that already exists.
var ErrDuplicate = errors.New("resource already exists")

// ErrConflict indicates the operation conflicts with the current state of the resource.
var ErrConflict = errors.New("conflicting state")

// ErrForbidden indicates the caller is not allowed to perform the operation.
var ErrForbidden = errors.New("forbidden")

// Escrow lifecycle errors. These are the typed failures surfaced by the
// transaction engine and the wallet ledger.
var (
	// ErrInvalidTransition indicates the requested event is not permitted
	// from the transaction's current status.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInsufficientFunds indicates a debit would drive a wallet balance negative.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrWalletInactive indicates the wallet is frozen or closed.
	ErrWalletInactive = errors.New("wallet is not active")

	// ErrTransactionNotFound indicates no transaction exists for the given ID.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrWalletNotFound indicates no wallet exists for the given ID or owner.
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrIdempotencyKeyConflict indicates the key is already reserved for a
	// different operation type, or its first execution is still in flight.
	ErrIdempotencyKeyConflict = errors.New("idempotency key conflict")

	// ErrExpiredIdempotencyRecord indicates the key's retention window has elapsed.
	ErrExpiredIdempotencyRecord = errors.New("idempotency record expired")
)

// AppError wraps a lower-level error with a status code and message.
// Used primarily by the pgsql layer for infrastructure failures.
type AppError struct {
	Code    int
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new AppError wrapping the given error.
func NewAppError(code int, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}
