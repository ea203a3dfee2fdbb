// Package handler contains the HTTP handlers of the betting API. Handlers
// declare the engine methods they need as local interfaces and translate
// domain sentinel errors to HTTP statuses.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/Mulberry-markets/mulberry-sol-vs-eth/internal/domain"
)

// identityHeader carries the caller's identity. Signature verification is
// done upstream; by the time a request reaches the API the identity is
// trusted.
const identityHeader = "X-Identity"

// writeJSON marshals v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps a domain sentinel error to an HTTP status and body.
func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrNoBetFound):
		return http.StatusNotFound

	case errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, domain.ErrInvalidAdmin):
		return http.StatusForbidden

	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests

	case errors.Is(err, domain.ErrInvalidSide),
		errors.Is(err, domain.ErrInvalidSize),
		errors.Is(err, domain.ErrMaxUserBetExceeded),
		errors.Is(err, domain.ErrNoSpaceLeft),
		errors.Is(err, domain.ErrInvalidOracle):
		return http.StatusBadRequest

	case errors.Is(err, domain.ErrStaleOracle):
		return http.StatusServiceUnavailable

	case errors.Is(err, domain.ErrMarketPaused),
		errors.Is(err, domain.ErrRoundInProgress),
		errors.Is(err, domain.ErrBettingInactive),
		errors.Is(err, domain.ErrBettingTooSoon),
		errors.Is(err, domain.ErrAnticipationTooSoon),
		errors.Is(err, domain.ErrAlreadyBet),
		errors.Is(err, domain.ErrAlreadyClaimed),
		errors.Is(err, domain.ErrBetNotSettled),
		errors.Is(err, domain.ErrBetAlreadySettled),
		errors.Is(err, domain.ErrBetsNotClaimed),
		errors.Is(err, domain.ErrVaultNotEmpty),
		errors.Is(err, domain.ErrRoundNotCloseable),
		errors.Is(err, domain.ErrHouseBankrupt),
		errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrLockHeld):
		return http.StatusConflict

	default:
		return http.StatusInternalServerError
	}
}

// identity extracts the caller's identity from the request headers.
func identity(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(identityHeader))
}

// decodeBody decodes the JSON request body into v, rejecting unknown fields.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// pathParam extracts a named path parameter via http.Request.PathValue.
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}
