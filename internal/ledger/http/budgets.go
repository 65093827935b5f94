package ledgerhttp

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger-engine/internal/ledger"
	"github.com/odyssey-erp/ledger-engine/internal/ledger/budget"
	"github.com/odyssey-erp/ledger-engine/internal/platform/httpx"
)

type createBudgetRequest struct {
	AccountID    uuid.UUID       `json:"accountId" validate:"required"`
	FiscalYear   int             `json:"fiscalYear" validate:"required,min=1900,max=9999"`
	Period       string          `json:"period" validate:"max=20"`
	BudgetAmount decimal.Decimal `json:"budgetAmount"`
}

type reviseBudgetRequest struct {
	NewAmount decimal.Decimal `json:"newAmount"`
	Reason    string          `json:"reason" validate:"required,max=500"`
}

type submitBudgetRequest struct {
	Approvers []string `json:"approvers" validate:"required,min=1,dive,required"`
}

type signBudgetRequest struct {
	Level    int    `json:"level" validate:"required,min=1"`
	Comments string `json:"comments" validate:"max=1000"`
}

type transferBudgetRequest struct {
	FromID uuid.UUID       `json:"fromBudgetId" validate:"required"`
	ToID   uuid.UUID       `json:"toBudgetId" validate:"required"`
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason" validate:"max=500"`
}

type copyYearRequest struct {
	FromYear         int             `json:"fromYear" validate:"required,min=1900,max=9999"`
	ToYear           int             `json:"toYear" validate:"required,min=1900,max=9999"`
	AdjustPercentage decimal.Decimal `json:"adjustmentPercentage"`
}

func (h *Handler) listBudgets(w http.ResponseWriter, r *http.Request) {
	year, err := queryInt(r, "fiscalYear")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	account, err := queryUUID(r, "accountId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	budgets, err := h.svc.Budgets.List(r.Context(), ledger.BudgetFilter{
		FiscalYear: year,
		AccountID:  account,
		Status:     ledger.BudgetStatus(strings.ToUpper(r.URL.Query().Get("status"))),
		AlertsOnly: r.URL.Query().Get("alertsOnly") == "true",
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, budgets, "")
}

func (h *Handler) createBudget(w http.ResponseWriter, r *http.Request) {
	actorID, err := actor(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req createBudgetRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	b, err := h.svc.Budgets.Create(r.Context(), budget.CreateInput{
		AccountID:    req.AccountID,
		FiscalYear:   req.FiscalYear,
		Period:       req.Period,
		BudgetAmount: req.BudgetAmount,
		ActorID:      actorID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusCreated, b, "budget created")
}

func (h *Handler) budgetAlerts(w http.ResponseWriter, r *http.Request) {
	year, err := queryInt(r, "fiscalYear")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	budgets, err := h.svc.Budgets.Alerts(r.Context(), year)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, budgets, "")
}

func (h *Handler) transferBudget(w http.ResponseWriter, r *http.Request) {
	actorID, err := actor(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req transferBudgetRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	from, to, err := h.svc.Budgets.Transfer(r.Context(), budget.TransferInput{
		FromID:  req.FromID,
		ToID:    req.ToID,
		Amount:  req.Amount,
		Reason:  req.Reason,
		ActorID: actorID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, map[string]ledger.GLBudget{"from": from, "to": to}, "budget transferred")
}

func (h *Handler) copyBudgetYear(w http.ResponseWriter, r *http.Request) {
	actorID, err := actor(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req copyYearRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	created, err := h.svc.Budgets.CopyYear(r.Context(), req.FromYear, req.ToYear, req.AdjustPercentage, actorID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusCreated, created, "")
}

func (h *Handler) getBudget(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	b, err := h.svc.Budgets.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, b, "")
}

func (h *Handler) deleteBudget(w http.ResponseWriter, r *http.Request) {
	if _, err := actor(r); err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.svc.Budgets.Delete(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, nil, "budget deleted")
}

func (h *Handler) reviseBudget(w http.ResponseWriter, r *http.Request) {
	actorID, err := actor(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req reviseBudgetRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	b, err := h.svc.Budgets.Revise(r.Context(), id, req.NewAmount, req.Reason, actorID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, b, "budget revised")
}

func (h *Handler) submitBudget(w http.ResponseWriter, r *http.Request) {
	if _, err := actor(r); err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req submitBudgetRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	b, err := h.svc.Budgets.Submit(r.Context(), id, req.Approvers)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, b, "budget submitted")
}

func (h *Handler) approveBudget(w http.ResponseWriter, r *http.Request) {
	h.signBudget(w, r, true)
}

func (h *Handler) rejectBudget(w http.ResponseWriter, r *http.Request) {
	h.signBudget(w, r, false)
}

func (h *Handler) signBudget(w http.ResponseWriter, r *http.Request, approve bool) {
	if _, err := actor(r); err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req signBudgetRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	var b ledger.GLBudget
	if approve {
		b, err = h.svc.Budgets.Approve(r.Context(), id, req.Level, req.Comments)
	} else {
		b, err = h.svc.Budgets.Reject(r.Context(), id, req.Level, req.Comments)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, b, "")
}

func (h *Handler) freezeBudget(w http.ResponseWriter, r *http.Request) {
	h.mutateBudget(w, r, h.svc.Budgets.Freeze, "budget frozen")
}

func (h *Handler) refreshBudget(w http.ResponseWriter, r *http.Request) {
	h.mutateBudget(w, r, h.svc.Budgets.RefreshActuals, "budget actuals refreshed")
}

func (h *Handler) mutateBudget(w http.ResponseWriter, r *http.Request, fn func(context.Context, uuid.UUID) (ledger.GLBudget, error), message string) {
	if _, err := actor(r); err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	b, err := fn(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, b, message)
}
