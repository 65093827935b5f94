package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger-engine/internal/ledger"
)

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{ErrBadRequest, http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", ErrUnauthorized), http.StatusUnauthorized},
		{ledger.Validation("x", "bad"), http.StatusBadRequest},
		{ledger.ErrEntryNotFound, http.StatusNotFound},
		{ledger.ErrPeriodLocked, http.StatusConflict},
		{ledger.Insufficient("amount", decimal.NewFromInt(1), decimal.NewFromInt(2)), http.StatusUnprocessableEntity},
		{ledger.Integrity("lines", "unbalanced", decimal.Zero, decimal.NewFromInt(1)), http.StatusUnprocessableEntity},
		{ledger.Unauthorized("approval", "nope"), http.StatusForbidden},
		{errors.New("db exploded"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, StatusOf(tc.err), tc.err.Error())
	}
}

func TestRespondErrorCarriesDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, ledger.Integrity("lines", "debits must equal credits", decimal.NewFromInt(1000), decimal.NewFromInt(900)))

	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	var env Envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	require.False(t, env.Success)
	require.Contains(t, env.Message, "debits must equal credits")
	require.NotNil(t, env.Error)
	require.Equal(t, "lines", env.Error.Field)
	require.Equal(t, "1000.00", env.Error.Expected)
	require.Equal(t, "900.00", env.Error.Actual)
}

func TestRespondErrorHidesInternalErrors(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, errors.New("pq: password authentication failed"))

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.NotContains(t, rr.Body.String(), "password")
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var target struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a","extra":1}`))
	err := DecodeJSON(req, &target)
	require.ErrorIs(t, err, ErrBadRequest)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a"}`))
	require.NoError(t, DecodeJSON(req, &target))
	require.Equal(t, "a", target.Name)
}
