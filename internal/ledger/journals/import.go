package journals

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger-engine/internal/ledger"
)

// importLine is the JSON shape of one line inside the linesJson column.
type importLine struct {
	AccountID   uuid.UUID       `json:"accountId"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Description string          `json:"description"`
	CostCenter  string          `json:"costCenter"`
	Department  string          `json:"department"`
	Project     string          `json:"project"`
}

var importHeader = []string{"entryDate", "description", "linesJson"}

// Import creates one DRAFT entry per CSV row (entryDate, description,
// linesJson). Rows are independent; each row's outcome is reported.
func (s *Service) Import(ctx context.Context, r io.Reader, actor string) (BatchResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(importHeader)
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return BatchResult{}, ledger.Validation("file", "empty import")
		}
		return BatchResult{}, ledger.Validation("file", err.Error())
	}
	for idx, col := range importHeader {
		if !strings.EqualFold(strings.TrimSpace(header[idx]), col) {
			return BatchResult{}, ledger.Validation("file", fmt.Sprintf("column %d must be %s", idx+1, col))
		}
	}
	var result BatchResult
	for row := 0; ; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		item := ItemResult{Index: row}
		if err != nil {
			item.Err = ledger.Validation(fmt.Sprintf("row[%d]", row), err.Error())
			result.Items = append(result.Items, item)
			continue
		}
		in, err := parseImportRow(record)
		if err != nil {
			item.Err = err
			result.Items = append(result.Items, item)
			continue
		}
		in.ActorID = actor
		entry, err := s.Create(ctx, in)
		item.EntryID = entry.ID
		item.EntryNumber = entry.EntryNumber
		item.OK = err == nil
		item.Err = err
		result.Items = append(result.Items, item)
	}
	result.tally()
	s.logger.Info("journal import finished",
		slog.Int("created", result.Succeeded),
		slog.Int("failed", result.Failed))
	return result, nil
}

func parseImportRow(record []string) (CreateInput, error) {
	date, err := time.Parse(time.DateOnly, strings.TrimSpace(record[0]))
	if err != nil {
		return CreateInput{}, ledger.Validation("entryDate", "must be YYYY-MM-DD")
	}
	var raw []importLine
	if err := json.Unmarshal([]byte(record[2]), &raw); err != nil {
		return CreateInput{}, ledger.Validation("linesJson", "invalid JSON: "+err.Error())
	}
	lines := make([]ledger.Line, 0, len(raw))
	for _, l := range raw {
		lines = append(lines, ledger.Line{
			AccountID:   l.AccountID,
			Debit:       l.Debit,
			Credit:      l.Credit,
			Description: l.Description,
			CostCenter:  l.CostCenter,
			Department:  l.Department,
			Project:     l.Project,
		})
	}
	return CreateInput{
		EntryDate:   date,
		Description: strings.TrimSpace(record[1]),
		Lines:       lines,
	}, nil
}
