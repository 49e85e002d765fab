package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"stocksim/internal/domain"
)

// Stable API error codes (spec'd taxonomy; clients switch on these).
const (
	CodeInvalidParameters  = "INVALID_PARAMETERS"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeNotFound           = "NOT_FOUND"
	CodeConflict           = "CONFLICT"
	CodeInsufficientFunds  = "INSUFFICIENT_FUNDS"
	CodeInsufficientShares = "INSUFFICIENT_SHARES"
	CodeSettlementFailed   = "SETTLEMENT_FAILED"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInternalError      = "INTERNAL_ERROR"
)

// errorBody is the wire shape of every error response.
type errorBody struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details,omitempty"`
	} `json:"error"`
	Timestamp string `json:"timestamp"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes the standard error envelope.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	var body errorBody
	body.Error.Code = code
	body.Error.Message = message
	body.Timestamp = time.Now().UTC().Format(time.RFC3339)
	WriteJSON(w, status, body)
}

// WriteUnauthorized is the auth middleware's 401 writer.
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// WriteRateLimited is the rate-limit middleware's 429 writer.
func WriteRateLimited(w http.ResponseWriter) {
	WriteError(w, http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded")
}

// ParseJSON decodes a request body into v, rejecting unknown fields and
// trailing garbage.
func ParseJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if dec.More() {
		return fmt.Errorf("invalid JSON body: trailing data")
	}
	_, _ = io.Copy(io.Discard, r.Body)
	return nil
}

// writeDomainError maps domain errors onto the error taxonomy. Handlers
// call this for any error coming out of the service layer.
func writeDomainError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		WriteError(w, http.StatusBadRequest, CodeInvalidParameters, validationErr.Message)
		return
	}

	switch {
	case errors.Is(err, domain.ErrCompanyNotFound),
		errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrHoldingNotFound):
		WriteError(w, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, domain.ErrCompanyExists),
		errors.Is(err, domain.ErrAccountExists),
		errors.Is(err, domain.ErrOrderNotCancellable):
		WriteError(w, http.StatusConflict, CodeConflict, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		WriteError(w, http.StatusForbidden, CodeForbidden, "resource belongs to another account")
	case errors.Is(err, domain.ErrInsufficientFunds):
		WriteError(w, http.StatusBadRequest, CodeInsufficientFunds, "insufficient funds for this order")
	case errors.Is(err, domain.ErrInsufficientShares):
		WriteError(w, http.StatusBadRequest, CodeInsufficientShares, "insufficient shares for this order")
	case errors.Is(err, domain.ErrSettlementFailed):
		WriteError(w, http.StatusInternalServerError, CodeSettlementFailed, err.Error())
	default:
		WriteError(w, http.StatusInternalServerError, CodeInternalError, "an unexpected error occurred")
	}
}
