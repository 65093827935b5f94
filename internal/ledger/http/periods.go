package ledgerhttp

import (
	"net/http"

	"github.com/odyssey-erp/ledger-engine/internal/platform/httpx"
)

type periodRequest struct {
	Year  int `json:"year" validate:"required,min=1900,max=9999"`
	Month int `json:"month" validate:"required,min=1,max=12"`
}

func (h *Handler) listPeriodLocks(w http.ResponseWriter, r *http.Request) {
	year, err := queryInt(r, "year")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	locks, err := h.svc.Periods.List(r.Context(), year)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, locks, "")
}

func (h *Handler) periodStatus(w http.ResponseWriter, r *http.Request) {
	year, err := pathInt(r, "year")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	month, err := pathInt(r, "month")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	locked, err := h.svc.Periods.IsLocked(r.Context(), year, month)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, map[string]any{"year": year, "month": month, "locked": locked}, "")
}

func (h *Handler) lockPeriod(w http.ResponseWriter, r *http.Request) {
	actorID, err := actor(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req periodRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	lock, err := h.svc.Periods.Lock(r.Context(), req.Year, req.Month, actorID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, lock, "period locked")
}

func (h *Handler) unlockPeriod(w http.ResponseWriter, r *http.Request) {
	actorID, err := actor(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req periodRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.svc.Periods.Unlock(r.Context(), req.Year, req.Month, actorID); err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, nil, "period unlocked")
}
