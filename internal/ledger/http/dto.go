package ledgerhttp

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger-engine/internal/ledger"
	"github.com/odyssey-erp/ledger-engine/internal/ledger/journals"
	"github.com/odyssey-erp/ledger-engine/internal/ledger/recurrence"
)

type lineRequest struct {
	AccountID   uuid.UUID       `json:"accountId" validate:"required"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Description string          `json:"description" validate:"max=500"`
	CostCenter  string          `json:"costCenter"`
	Department  string          `json:"department"`
	Project     string          `json:"project"`
	RefType     string          `json:"refType" validate:"omitempty,oneof=new-ref against-ref on-account"`
	RefID       string          `json:"refId"`
}

func toLines(in []lineRequest) []ledger.Line {
	if in == nil {
		return nil
	}
	out := make([]ledger.Line, len(in))
	for i, l := range in {
		out[i] = ledger.Line{
			AccountID:   l.AccountID,
			Debit:       l.Debit,
			Credit:      l.Credit,
			Description: l.Description,
			CostCenter:  l.CostCenter,
			Department:  l.Department,
			Project:     l.Project,
			RefType:     ledger.RefType(l.RefType),
			RefID:       l.RefID,
		}
	}
	return out
}

type createEntryRequest struct {
	EntryDate   string        `json:"entryDate" validate:"required,datetime=2006-01-02"`
	Description string        `json:"description" validate:"max=500"`
	Reference   string        `json:"reference" validate:"max=100"`
	Lines       []lineRequest `json:"lines" validate:"required,dive"`
	Approvers   []string      `json:"approvers" validate:"omitempty,dive,required"`
	Attachments []string      `json:"attachments"`

	IsRecurring       bool    `json:"isRecurring"`
	Frequency         string  `json:"frequency" validate:"omitempty,oneof=MONTHLY QUARTERLY SEMI_ANNUALLY ANNUALLY"`
	NextRecurringDate *string `json:"nextRecurringDate" validate:"omitempty,datetime=2006-01-02"`
	RecurringEndDate  *string `json:"recurringEndDate" validate:"omitempty,datetime=2006-01-02"`
	AutoPost          bool    `json:"autoPost"`

	IsReversing bool    `json:"isReversing"`
	ReverseDate *string `json:"reverseDate" validate:"omitempty,datetime=2006-01-02"`
}

func (req createEntryRequest) toInput(actorID string) (journals.CreateInput, error) {
	date, err := parseDate("entryDate", req.EntryDate)
	if err != nil {
		return journals.CreateInput{}, err
	}
	next, err := derefDate("nextRecurringDate", req.NextRecurringDate)
	if err != nil {
		return journals.CreateInput{}, err
	}
	end, err := derefDate("recurringEndDate", req.RecurringEndDate)
	if err != nil {
		return journals.CreateInput{}, err
	}
	reverse, err := derefDate("reverseDate", req.ReverseDate)
	if err != nil {
		return journals.CreateInput{}, err
	}
	return journals.CreateInput{
		EntryDate:         date,
		Description:       req.Description,
		Reference:         req.Reference,
		Lines:             toLines(req.Lines),
		Approvers:         req.Approvers,
		Attachments:       req.Attachments,
		ActorID:           actorID,
		IsRecurring:       req.IsRecurring,
		Frequency:         ledger.Frequency(req.Frequency),
		NextRecurringDate: next,
		RecurringEndDate:  end,
		AutoPost:          req.AutoPost,
		IsReversing:       req.IsReversing,
		ReverseDate:       reverse,
	}, nil
}

type updateEntryRequest struct {
	Description *string       `json:"description" validate:"omitempty,max=500"`
	Reference   *string       `json:"reference" validate:"omitempty,max=100"`
	EntryDate   *string       `json:"entryDate" validate:"omitempty,datetime=2006-01-02"`
	Lines       []lineRequest `json:"lines" validate:"omitempty,dive"`
}

type validateRequest struct {
	EntryDate string        `json:"entryDate" validate:"required,datetime=2006-01-02"`
	Lines     []lineRequest `json:"lines" validate:"required,dive"`
}

type commentRequest struct {
	Comments string `json:"comments" validate:"max=1000"`
}

type postRequest struct {
	CreateReferences *bool `json:"createReferences"`
}

type batchPostRequest struct {
	EntryIDs []uuid.UUID `json:"entryIds" validate:"required,min=1,max=500,dive,required"`
}

type reverseRequest struct {
	Reason string  `json:"reason" validate:"max=500"`
	Date   *string `json:"reversalDate" validate:"omitempty,datetime=2006-01-02"`
}

type copyRequest struct {
	Date *string `json:"entryDate" validate:"omitempty,datetime=2006-01-02"`
}

type attachmentRequest struct {
	Path string `json:"path" validate:"required,max=1000"`
}

type templateLineRequest struct {
	AccountID       uuid.UUID       `json:"accountId"`
	AccountVariable string          `json:"accountVariable"`
	Debit           decimal.Decimal `json:"debit"`
	Credit          decimal.Decimal `json:"credit"`
	DebitFormula    string          `json:"debitFormula" validate:"max=500"`
	CreditFormula   string          `json:"creditFormula" validate:"max=500"`
	Description     string          `json:"description"`
	CostCenter      string          `json:"costCenter"`
}

type templateRequest struct {
	Name        string                `json:"name" validate:"required,max=200"`
	Description string                `json:"description"`
	Lines       []templateLineRequest `json:"lines" validate:"required,min=2,dive"`
	IsRecurring bool                  `json:"isRecurring"`
	Frequency   string                `json:"frequency" validate:"omitempty,oneof=MONTHLY QUARTERLY SEMI_ANNUALLY ANNUALLY"`
	AutoPost    bool                  `json:"autoPost"`
}

func (req templateRequest) toInput() journals.TemplateInput {
	lines := make([]ledger.TemplateLine, len(req.Lines))
	for i, l := range req.Lines {
		lines[i] = ledger.TemplateLine{
			AccountID:       l.AccountID,
			AccountVariable: l.AccountVariable,
			Debit:           l.Debit,
			Credit:          l.Credit,
			DebitFormula:    l.DebitFormula,
			CreditFormula:   l.CreditFormula,
			Description:     l.Description,
			CostCenter:      l.CostCenter,
		}
	}
	return journals.TemplateInput{
		Name:        req.Name,
		Description: req.Description,
		Lines:       lines,
		IsRecurring: req.IsRecurring,
		Frequency:   ledger.Frequency(req.Frequency),
		AutoPost:    req.AutoPost,
	}
}

type fromTemplateRequest struct {
	TemplateID uuid.UUID         `json:"templateId" validate:"required"`
	EntryDate  string            `json:"entryDate" validate:"required,datetime=2006-01-02"`
	Variables  map[string]string `json:"variables"`
}

type itemView struct {
	Index       int       `json:"index"`
	EntryID     uuid.UUID `json:"entryId"`
	EntryNumber string    `json:"entryNumber,omitempty"`
	OK          bool      `json:"ok"`
	Error       string    `json:"error,omitempty"`
}

type batchView struct {
	Succeeded int        `json:"succeeded"`
	Failed    int        `json:"failed"`
	Items     []itemView `json:"items"`
}

func toBatchView(res journals.BatchResult) batchView {
	out := batchView{Succeeded: res.Succeeded, Failed: res.Failed, Items: make([]itemView, len(res.Items))}
	for i, item := range res.Items {
		v := itemView{Index: item.Index, EntryID: item.EntryID, EntryNumber: item.EntryNumber, OK: item.OK}
		if item.Err != nil {
			v.Error = item.Err.Error()
		}
		out.Items[i] = v
	}
	return out
}

type tickItemView struct {
	EntryID     uuid.UUID `json:"entryId"`
	EntryNumber string    `json:"entryNumber"`
	ChildID     uuid.UUID `json:"childId"`
	ChildNumber string    `json:"childNumber,omitempty"`
	Outcome     string    `json:"outcome"`
	Error       string    `json:"error,omitempty"`
}

type tickView struct {
	LockHeld  bool           `json:"lockHeld"`
	Spawned   int            `json:"spawned"`
	Reversed  int            `json:"reversed"`
	Failed    int            `json:"failed"`
	Recurring []tickItemView `json:"recurring"`
	Reversals []tickItemView `json:"reversals"`
}

func toTickView(report recurrence.TickReport) tickView {
	conv := func(items []recurrence.ItemResult) []tickItemView {
		out := make([]tickItemView, len(items))
		for i, item := range items {
			v := tickItemView{
				EntryID:     item.EntryID,
				EntryNumber: item.EntryNumber,
				ChildID:     item.ChildID,
				ChildNumber: item.ChildNumber,
				Outcome:     string(item.Outcome),
			}
			if item.Err != nil {
				v.Error = item.Err.Error()
			}
			out[i] = v
		}
		return out
	}
	return tickView{
		LockHeld:  report.LockHeld,
		Spawned:   report.Spawned,
		Reversed:  report.Reversed,
		Failed:    report.Failed,
		Recurring: conv(report.Recurring),
		Reversals: conv(report.Reversals),
	}
}
