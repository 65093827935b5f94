// Package ledgerhttp exposes the posting engine over a JSON API.
package ledgerhttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odyssey-erp/ledger-engine/internal/ledger"
	"github.com/odyssey-erp/ledger-engine/internal/ledger/allocation"
	"github.com/odyssey-erp/ledger-engine/internal/ledger/budget"
	"github.com/odyssey-erp/ledger-engine/internal/ledger/journals"
	"github.com/odyssey-erp/ledger-engine/internal/ledger/periods"
	"github.com/odyssey-erp/ledger-engine/internal/ledger/recurrence"
	"github.com/odyssey-erp/ledger-engine/internal/ledger/references"
	"github.com/odyssey-erp/ledger-engine/internal/platform/httpx"
)

// ActorHeader carries the caller identity set by the upstream gateway.
const ActorHeader = "X-Actor-ID"

// Generator triggers an out-of-band recurrence run.
type Generator interface {
	GenerateNow(ctx context.Context) (recurrence.TickReport, error)
}

// Services groups the engine components served by the handler.
type Services struct {
	Journals   *journals.Service
	Rules      *allocation.Service
	Budgets    *budget.Service
	Periods    *periods.Registry
	References *references.Service
	Generator  Generator
}

// Handler serves the ledger API.
type Handler struct {
	logger    *slog.Logger
	svc       Services
	validator *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, svc Services) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, svc: svc, validator: validator.New()}
}

func actor(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get(ActorHeader))
	if id == "" {
		return "", httpx.ErrUnauthorized
	}
	return id, nil
}

// decode reads the body into dst and runs struct validation.
func (h *Handler) decode(r *http.Request, dst any) error {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		return err
	}
	if err := h.validator.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return ledger.Validation(lowerFirst(fe.Field()), fmt.Sprintf("failed %q validation", fe.Tag()))
		}
		return ledger.Validation("body", err.Error())
	}
	return nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if httpx.StatusOf(err) == http.StatusInternalServerError {
		h.logger.Error("ledger request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func pathID(r *http.Request, key string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, key))
	if err != nil {
		return uuid.Nil, ledger.Validation(key, "must be a UUID")
	}
	return id, nil
}

func pathInt(r *http.Request, key string) (int, error) {
	v, err := strconv.Atoi(chi.URLParam(r, key))
	if err != nil {
		return 0, ledger.Validation(key, "must be an integer")
	}
	return v, nil
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, ledger.Validation(key, "must be an integer")
	}
	return v, nil
}

func queryUUID(r *http.Request, key string) (*uuid.UUID, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, ledger.Validation(key, "must be a UUID")
	}
	return &id, nil
}

func queryDate(r *http.Request, key string) (*time.Time, error) {
	return parseOptionalDate(key, strings.TrimSpace(r.URL.Query().Get(key)))
}

func parseDate(field, raw string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, ledger.Validation(field, "must be YYYY-MM-DD")
	}
	return t, nil
}

func parseOptionalDate(field, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := parseDate(field, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func derefDate(field string, raw *string) (*time.Time, error) {
	if raw == nil {
		return nil, nil
	}
	return parseOptionalDate(field, strings.TrimSpace(*raw))
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
