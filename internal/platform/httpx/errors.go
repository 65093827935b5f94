package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/ledger-engine/internal/ledger"
)

// Transport-level sentinels for failures raised before the engine is called.
var (
	ErrBadRequest   = errors.New("malformed request")
	ErrUnauthorized = errors.New("missing actor identity")
)

// StatusOf maps an error to its HTTP status code.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	}
	switch ledger.KindOf(err) {
	case ledger.ErrValidation:
		return http.StatusBadRequest
	case ledger.ErrNotFound:
		return http.StatusNotFound
	case ledger.ErrStateConflict:
		return http.StatusConflict
	case ledger.ErrInsufficientBalance, ledger.ErrIntegrity:
		return http.StatusUnprocessableEntity
	case ledger.ErrAuthorization:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// RespondError writes err inside the failure envelope. Internal errors are
// not echoed to the client.
func RespondError(w http.ResponseWriter, err error) {
	status := StatusOf(err)
	env := Envelope{Success: false, Message: err.Error()}
	if status == http.StatusInternalServerError {
		env.Message = http.StatusText(status)
	}
	var detail *ledger.DetailError
	if errors.As(err, &detail) {
		env.Error = &ErrorDetail{
			Field:    detail.Field,
			Expected: detail.Expected,
			Actual:   detail.Actual,
		}
	}
	JSON(w, status, env)
}
