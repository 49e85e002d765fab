package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain-level error handling.
// The handler layer maps these to the stable API error codes.
var (
	ErrCompanyExists        = errors.New("company_already_exists")
	ErrCompanyNotFound      = errors.New("company_not_found")
	ErrAccountExists        = errors.New("account_already_exists")
	ErrAccountNotFound      = errors.New("account_not_found")
	ErrOrderNotFound        = errors.New("order_not_found")
	ErrForbidden            = errors.New("forbidden")
	ErrOrderNotCancellable  = errors.New("order_not_cancellable")
	ErrHoldingNotFound      = errors.New("holding_not_found")
	ErrInsufficientFunds    = errors.New("insufficient_funds")
	ErrInsufficientShares   = errors.New("insufficient_shares")
	ErrSettlementFailed     = errors.New("settlement_failed")
	ErrAgentNotFound        = errors.New("agent_not_found")
	ErrInvalidAgentState    = errors.New("invalid_agent_state")
)

// ValidationError represents a request validation failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Validationf builds a ValidationError; callers use it like fmt.Errorf.
func Validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}
