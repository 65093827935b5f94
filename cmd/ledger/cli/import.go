package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/odyssey-erp/ledger-engine/internal/ledger/journals"
)

// Importer creates draft entries from a CSV stream.
type Importer interface {
	Import(ctx context.Context, r io.Reader, actor string) (journals.BatchResult, error)
}

// ImportOptions defines the flags of the import command.
type ImportOptions struct {
	Path       string
	Actor      string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// ImportSummary is the JSON output of the import command.
type ImportSummary struct {
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Rows      []ImportedRow `json:"rows"`
}

// ImportedRow reports one CSV row.
type ImportedRow struct {
	Row         int    `json:"row"`
	EntryNumber string `json:"entry_number,omitempty"`
	Error       string `json:"error,omitempty"`
}

// ImportCommand runs an import and returns the process exit code: 0 when
// every row was imported, 1 when some rows failed, 2 on usage or I/O errors.
func ImportCommand(ctx context.Context, importer Importer, opts ImportOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Path == "" || opts.Actor == "" {
		fmt.Fprintln(opts.Stderr, "import: -file and -actor are required")
		return 2
	}
	f, err := os.Open(opts.Path)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "import: %v\n", err)
		return 2
	}
	defer f.Close()

	res, err := importer.Import(ctx, f, opts.Actor)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "import: %v\n", err)
		return 2
	}
	summary := ImportSummary{Succeeded: res.Succeeded, Failed: res.Failed, Rows: make([]ImportedRow, 0, len(res.Items))}
	for _, item := range res.Items {
		row := ImportedRow{Row: item.Index + 1, EntryNumber: item.EntryNumber}
		if item.Err != nil {
			row.Error = item.Err.Error()
		}
		summary.Rows = append(summary.Rows, row)
	}
	if opts.JSONOutput {
		enc := json.NewEncoder(opts.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			fmt.Fprintf(opts.Stderr, "import: %v\n", err)
			return 2
		}
	} else {
		for _, row := range summary.Rows {
			if row.Error != "" {
				fmt.Fprintf(opts.Stdout, "row %d: FAILED %s\n", row.Row, row.Error)
				continue
			}
			fmt.Fprintf(opts.Stdout, "row %d: %s\n", row.Row, row.EntryNumber)
		}
		fmt.Fprintf(opts.Stdout, "imported %d, failed %d\n", summary.Succeeded, summary.Failed)
	}
	if summary.Failed > 0 {
		return 1
	}
	return 0
}
