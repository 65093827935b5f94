package ledgerhttp

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger-engine/internal/ledger"
	"github.com/odyssey-erp/ledger-engine/internal/ledger/allocation"
	"github.com/odyssey-erp/ledger-engine/internal/platform/httpx"
)

type targetRequest struct {
	AccountID  uuid.UUID       `json:"accountId" validate:"required"`
	CostCenter string          `json:"costCenter"`
	Percentage decimal.Decimal `json:"percentage"`
}

type ruleRequest struct {
	Name            string          `json:"name" validate:"required,max=200"`
	SourceAccountID uuid.UUID       `json:"sourceAccountId" validate:"required"`
	Targets         []targetRequest `json:"targets" validate:"required,min=1,dive"`
}

func (req ruleRequest) toInput(actorID string) allocation.RuleInput {
	targets := make([]ledger.AllocationTarget, len(req.Targets))
	for i, t := range req.Targets {
		targets[i] = ledger.AllocationTarget{AccountID: t.AccountID, CostCenter: t.CostCenter, Percentage: t.Percentage}
	}
	return allocation.RuleInput{Name: req.Name, SourceAccountID: req.SourceAccountID, Targets: targets, ActorID: actorID}
}

func (h *Handler) listRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.svc.Rules.ListRules(r.Context(), r.URL.Query().Get("active") == "true")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, rules, "")
}

func (h *Handler) createRule(w http.ResponseWriter, r *http.Request) {
	actorID, err := actor(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req ruleRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	rule, err := h.svc.Rules.CreateRule(r.Context(), req.toInput(actorID))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusCreated, rule, "allocation rule created")
}

func (h *Handler) getRule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rule, err := h.svc.Rules.GetRule(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, rule, "")
}

func (h *Handler) updateRule(w http.ResponseWriter, r *http.Request) {
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
	var req ruleRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	rule, err := h.svc.Rules.UpdateRule(r.Context(), id, req.toInput(actorID))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, rule, "allocation rule updated")
}

func (h *Handler) activateRule(w http.ResponseWriter, r *http.Request) {
	h.setRuleActive(w, r, true)
}

func (h *Handler) deactivateRule(w http.ResponseWriter, r *http.Request) {
	h.setRuleActive(w, r, false)
}

func (h *Handler) setRuleActive(w http.ResponseWriter, r *http.Request, active bool) {
	if _, err := actor(r); err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rule, err := h.svc.Rules.SetActive(r.Context(), id, active)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, rule, "")
}
