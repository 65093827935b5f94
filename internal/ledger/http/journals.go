package ledgerhttp

import (
	"context"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/odyssey-erp/ledger-engine/internal/ledger"
	"github.com/odyssey-erp/ledger-engine/internal/ledger/journals"
	"github.com/odyssey-erp/ledger-engine/internal/platform/httpx"
)

const maxImportBytes = 10 << 20

func (h *Handler) listEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ledger.EntryFilter{
		Status: ledger.EntryStatus(strings.ToUpper(q.Get("status"))),
		Type:   ledger.EntryType(strings.ToUpper(q.Get("type"))),
	}
	var err error
	if filter.Year, err = queryInt(r, "year"); err != nil {
		h.fail(w, r, err)
		return
	}
	if filter.Month, err = queryInt(r, "month"); err != nil {
		h.fail(w, r, err)
		return
	}
	if filter.Limit, err = queryInt(r, "limit"); err != nil {
		h.fail(w, r, err)
		return
	}
	if filter.Offset, err = queryInt(r, "offset"); err != nil {
		h.fail(w, r, err)
		return
	}
	if filter.From, err = queryDate(r, "from"); err != nil {
		h.fail(w, r, err)
		return
	}
	if filter.To, err = queryDate(r, "to"); err != nil {
		h.fail(w, r, err)
		return
	}
	entries, err := h.svc.Journals.List(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, entries, "")
}

func (h *Handler) createEntry(w http.ResponseWriter, r *http.Request) {
	actorID, err := actor(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req createEntryRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	in, err := req.toInput(actorID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entry, err := h.svc.Journals.Create(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusCreated, entry, "journal entry created")
}

func (h *Handler) entryStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Journals.Stats(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, stats, "")
}

func (h *Handler) validateEntry(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	date, err := parseDate("entryDate", req.EntryDate)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	warnings, err := h.svc.Journals.Validate(r.Context(), toLines(req.Lines), date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, map[string]any{"valid": true, "budgetWarnings": warnings}, "")
}

func (h *Handler) batchPost(w http.ResponseWriter, r *http.Request) {
	actorID, err := actor(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req batchPostRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	res := h.svc.Journals.BatchPost(r.Context(), req.EntryIDs, actorID)
	httpx.OK(w, http.StatusOK, toBatchView(res), "")
}

// importEntries accepts either a multipart "file" field or a raw text/csv body.
func (h *Handler) importEntries(w http.ResponseWriter, r *http.Request) {
	actorID, err := actor(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)
	var src io.Reader = r.Body
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "multipart/form-data" {
		file, _, err := r.FormFile("file")
		if err != nil {
			h.fail(w, r, ledger.Validation("file", "missing upload"))
			return
		}
		defer file.Close()
		src = file
	}
	res, err := h.svc.Journals.Import(r.Context(), src, actorID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, toBatchView(res), "")
}

func (h *Handler) createFromTemplate(w http.ResponseWriter, r *http.Request) {
	actorID, err := actor(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req fromTemplateRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	date, err := parseDate("entryDate", req.EntryDate)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entry, err := h.svc.Journals.CreateFromTemplate(r.Context(), journals.FromTemplateInput{
		TemplateID: req.TemplateID,
		EntryDate:  date,
		Variables:  req.Variables,
		ActorID:    actorID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusCreated, entry, "journal entry created from template")
}

func (h *Handler) createTemplate(w http.ResponseWriter, r *http.Request) {
	if _, err := actor(r); err != nil {
		h.fail(w, r, err)
		return
	}
	var req templateRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	tpl, err := h.svc.Journals.CreateTemplate(r.Context(), req.toInput())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusCreated, tpl, "template created")
}

func (h *Handler) generateRecurring(w http.ResponseWriter, r *http.Request) {
	if _, err := actor(r); err != nil {
		h.fail(w, r, err)
		return
	}
	if h.svc.Generator == nil {
		h.fail(w, r, ledger.Conflict("scheduler", "recurrence scheduler is not configured"))
		return
	}
	report, err := h.svc.Generator.GenerateNow(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !report.LockHeld {
		h.fail(w, r, ledger.Conflict("scheduler", "a recurrence run is already in progress"))
		return
	}
	httpx.OK(w, http.StatusOK, toTickView(report), "")
}

func (h *Handler) getEntry(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entry, err := h.svc.Journals.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, entry, "")
}

func (h *Handler) updateEntry(w http.ResponseWriter, r *http.Request) {
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
	var req updateEntryRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	date, err := derefDate("entryDate", req.EntryDate)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entry, err := h.svc.Journals.Update(r.Context(), journals.UpdateInput{
		EntryID:     id,
		ActorID:     actorID,
		Description: req.Description,
		Reference:   req.Reference,
		EntryDate:   date,
		Lines:       toLines(req.Lines),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, entry, "journal entry updated")
}

func (h *Handler) deleteEntry(w http.ResponseWriter, r *http.Request) {
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
	if err := h.svc.Journals.Delete(r.Context(), id, actorID); err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, nil, "journal entry deleted")
}

func (h *Handler) approveEntry(w http.ResponseWriter, r *http.Request) {
	h.signEntry(w, r, h.svc.Journals.Approve, "journal entry approved")
}

func (h *Handler) rejectEntry(w http.ResponseWriter, r *http.Request) {
	h.signEntry(w, r, h.svc.Journals.Reject, "journal entry rejected")
}

func (h *Handler) signEntry(w http.ResponseWriter, r *http.Request, sign func(context.Context, journals.ApproveInput) (ledger.JournalEntry, error), message string) {
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
	var req commentRequest
	if r.ContentLength != 0 {
		if err := h.decode(r, &req); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	entry, err := sign(r.Context(), journals.ApproveInput{EntryID: id, ApproverID: actorID, Comments: req.Comments})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, entry, message)
}

func (h *Handler) postEntry(w http.ResponseWriter, r *http.Request) {
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
	var req postRequest
	if r.ContentLength != 0 {
		if err := h.decode(r, &req); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	entry, err := h.svc.Journals.Post(r.Context(), journals.PostInput{
		EntryID:          id,
		ActorID:          actorID,
		CreateReferences: req.CreateReferences,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, entry, "journal entry posted")
}

func (h *Handler) reverseEntry(w http.ResponseWriter, r *http.Request) {
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
	var req reverseRequest
	if r.ContentLength != 0 {
		if err := h.decode(r, &req); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	date, err := derefDate("reversalDate", req.Date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entry, err := h.svc.Journals.Reverse(r.Context(), journals.ReverseInput{
		EntryID: id,
		ActorID: actorID,
		Reason:  req.Reason,
		Date:    date,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusCreated, entry, "journal entry reversed")
}

func (h *Handler) copyEntry(w http.ResponseWriter, r *http.Request) {
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
	var req copyRequest
	if r.ContentLength != 0 {
		if err := h.decode(r, &req); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	date, err := derefDate("entryDate", req.Date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entry, err := h.svc.Journals.Copy(r.Context(), journals.CopyInput{EntryID: id, ActorID: actorID, Date: date})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusCreated, entry, "journal entry copied")
}

func (h *Handler) addAttachment(w http.ResponseWriter, r *http.Request) {
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
	var req attachmentRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	entry, err := h.svc.Journals.AddAttachment(r.Context(), id, req.Path, actorID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, entry, "attachment added")
}
