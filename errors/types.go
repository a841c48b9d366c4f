// Package errors defines the coded error taxonomy shared by the payment
// verifier, the storage layer, and the HTTP API.
package errors

import (
	"fmt"
)

// Code categorizes an error for callers and for the HTTP layer.
type Code string

const (
	// ErrCodeValidation indicates malformed input (bad signature, bad address).
	ErrCodeValidation Code = "VALIDATION"

	// ErrCodeReplay indicates a transaction signature already consumed for a
	// different payment purpose.
	ErrCodeReplay Code = "REPLAY_DETECTED"

	// ErrCodeTxNotFound indicates the ledger never confirmed the transaction
	// within the retry budget.
	ErrCodeTxNotFound Code = "TRANSACTION_NOT_FOUND"

	// ErrCodeTransferNotFound indicates the transaction exists but contains no
	// qualifying transfer.
	ErrCodeTransferNotFound Code = "TRANSFER_NOT_FOUND"

	// ErrCodeSenderMismatch indicates the transfer did not come from the
	// expected payer.
	ErrCodeSenderMismatch Code = "SENDER_MISMATCH"

	// ErrCodeRecipientMismatch indicates the transfer did not reach the
	// expected recipient.
	ErrCodeRecipientMismatch Code = "RECIPIENT_MISMATCH"

	// ErrCodeInsufficientAmount indicates a real transfer below the required
	// amount.
	ErrCodeInsufficientAmount Code = "INSUFFICIENT_AMOUNT"

	// ErrCodeNotFound indicates a missing stored object (the 404-is-not-an-error path).
	ErrCodeNotFound Code = "NOT_FOUND"

	// ErrCodeStorage indicates an object store operation failure.
	ErrCodeStorage Code = "STORAGE"

	// ErrCodeRPC indicates a ledger node RPC failure.
	ErrCodeRPC Code = "RPC"

	// ErrCodeLLM indicates a completion-provider failure.
	ErrCodeLLM Code = "LLM"

	// ErrCodeConflict indicates a state precondition failure (already started,
	// token already launched, not the agent creator).
	ErrCodeConflict Code = "CONFLICT"

	// ErrCodePaymentRequired indicates a gated action attempted without a
	// verified entitlement.
	ErrCodePaymentRequired Code = "PAYMENT_REQUIRED"

	// ErrCodeInternal indicates an unexpected internal failure.
	ErrCodeInternal Code = "INTERNAL"
)

// Severity ranks an error for log triage.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityInfo     Severity = "INFO"
)

// Error is the coded error carried across component boundaries.
type Error struct {
	Code     Code                   `json:"code"`
	Message  string                 `json:"message"`
	Severity Severity               `json:"severity"`
	Cause    error                  `json:"-"`
	Context  map[string]interface{} `json:"context,omitempty"`
}

// New creates a coded error.
func New(code Code, message string, cause error) *Error {
	return &Error{
		Code:     code,
		Message:  message,
		Severity: defaultSeverity(code),
		Cause:    cause,
		Context:  make(map[string]interface{}),
	}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext attaches a key/value pair for diagnostics.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithSeverity overrides the default severity.
func (e *Error) WithSeverity(severity Severity) *Error {
	e.Severity = severity
	return e
}

// IsRetryable reports whether retrying the operation can help.
func (e *Error) IsRetryable() bool {
	switch e.Code {
	case ErrCodeRPC, ErrCodeStorage, ErrCodeLLM:
		return true
	case ErrCodeTxNotFound:
		// The transaction may simply not have propagated yet.
		return true
	default:
		return false
	}
}

func defaultSeverity(code Code) Severity {
	switch code {
	case ErrCodeInternal:
		return SeverityCritical
	case ErrCodeStorage:
		return SeverityHigh
	case ErrCodeReplay, ErrCodeRPC, ErrCodeLLM:
		return SeverityMedium
	case ErrCodeValidation, ErrCodeConflict, ErrCodePaymentRequired:
		return SeverityLow
	case ErrCodeNotFound:
		return SeverityInfo
	default:
		return SeverityMedium
	}
}

// Common constructors.

// NewValidation creates a validation error.
func NewValidation(message string, cause error) *Error {
	return New(ErrCodeValidation, message, cause)
}

// NewNotFound creates a missing-object error.
func NewNotFound(message string, cause error) *Error {
	return New(ErrCodeNotFound, message, cause)
}

// NewStorage creates an object-store error.
func NewStorage(message string, cause error) *Error {
	return New(ErrCodeStorage, message, cause)
}

// NewRPC creates a ledger RPC error.
func NewRPC(message string, cause error) *Error {
	return New(ErrCodeRPC, message, cause)
}

// NewInternal creates an internal error.
func NewInternal(message string, cause error) *Error {
	return New(ErrCodeInternal, message, cause)
}
