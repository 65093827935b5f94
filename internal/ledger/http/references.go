package ledgerhttp

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger-engine/internal/ledger"
	"github.com/odyssey-erp/ledger-engine/internal/ledger/references"
	"github.com/odyssey-erp/ledger-engine/internal/platform/httpx"
)

type allocateRequest struct {
	PaymentID   uuid.UUID       `json:"paymentId" validate:"required"`
	ReferenceID uuid.UUID       `json:"referenceId" validate:"required"`
	Amount      decimal.Decimal `json:"amount"`
}

type deallocateRequest struct {
	PaymentID   uuid.UUID `json:"paymentId" validate:"required"`
	ReferenceID uuid.UUID `json:"referenceId" validate:"required"`
}

type manualReferenceRequest struct {
	AccountID   uuid.UUID       `json:"accountId" validate:"required"`
	Reference   string          `json:"reference" validate:"required,max=100"`
	Description string          `json:"description" validate:"max=500"`
	Amount      decimal.Decimal `json:"amount"`
	Date        string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

type updateReferenceRequest struct {
	TotalAmount *decimal.Decimal `json:"totalAmount"`
	Description *string          `json:"description" validate:"omitempty,max=500"`
}

func (h *Handler) listOutstanding(w http.ResponseWriter, r *http.Request) {
	account, err := queryUUID(r, "accountId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	filter := ledger.ReferenceFilter{AccountID: account, Limit: limit}
	for _, raw := range r.URL.Query()["status"] {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				filter.Statuses = append(filter.Statuses, ledger.ReferenceStatus(strings.ToUpper(s)))
			}
		}
	}
	refs, err := h.svc.References.ListOutstanding(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, refs, "")
}

func (h *Handler) createManualReference(w http.ResponseWriter, r *http.Request) {
	if _, err := actor(r); err != nil {
		h.fail(w, r, err)
		return
	}
	var req manualReferenceRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	date, err := parseOptionalDate("date", req.Date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	in := references.ManualInput{
		AccountID:   req.AccountID,
		Reference:   req.Reference,
		Description: req.Description,
		Amount:      req.Amount,
	}
	if date != nil {
		in.Date = *date
	}
	ref, err := h.svc.References.CreateManual(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusCreated, ref, "reference created")
}

func (h *Handler) allocatePayment(w http.ResponseWriter, r *http.Request) {
	if _, err := actor(r); err != nil {
		h.fail(w, r, err)
		return
	}
	var req allocateRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	out, err := h.svc.References.Allocate(r.Context(), references.AllocateInput{
		PaymentID:   req.PaymentID,
		ReferenceID: req.ReferenceID,
		Amount:      req.Amount,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, out, "payment allocated")
}

func (h *Handler) deallocatePayment(w http.ResponseWriter, r *http.Request) {
	if _, err := actor(r); err != nil {
		h.fail(w, r, err)
		return
	}
	var req deallocateRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	out, err := h.svc.References.Deallocate(r.Context(), req.ReferenceID, req.PaymentID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, out, "payment deallocated")
}

func (h *Handler) getReference(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ref, err := h.svc.References.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, ref, "")
}

func (h *Handler) updateReference(w http.ResponseWriter, r *http.Request) {
	if _, err := actor(r); err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req updateReferenceRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	ref, err := h.svc.References.Update(r.Context(), id, references.UpdateInput{
		TotalAmount: req.TotalAmount,
		Description: req.Description,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, ref, "reference updated")
}

func (h *Handler) deleteReference(w http.ResponseWriter, r *http.Request) {
	if _, err := actor(r); err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.svc.References.Delete(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, nil, "reference deleted")
}
