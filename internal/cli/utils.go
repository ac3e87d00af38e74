// Package cli provides output helpers for the kotae command.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/chitose/kotae/internal/ingest"
	"github.com/chitose/kotae/internal/models"
)

// OutputFormat selects how command results are rendered.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// WriteAnswer writes an answer to w in the given format.
func WriteAnswer(w io.Writer, resp *models.AskResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	default:
		writeAnswerText(w, resp)
		return nil
	}
}

func writeAnswerText(w io.Writer, resp *models.AskResponse) {
	fmt.Fprintf(w, "\n%s\n", resp.Answer)
	if len(resp.Citations) > 0 {
		fmt.Fprintf(w, "\nSources: %s\n", strings.Join(resp.Citations, ", "))
	}
	fmt.Fprintf(w, "(%dms)\n", resp.QueryTimeMS)
}

// WriteReport writes an ingest report to w in the given format.
func WriteReport(w io.Writer, report *ingest.Report, format OutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	default:
		writeReportText(w, report)
		return nil
	}
}

func writeReportText(w io.Writer, report *ingest.Report) {
	fmt.Fprintf(w, "Ingested %d documents (%d passages, %d skipped) in %dms\n",
		report.Ingested, report.Passages, report.Skipped, report.ElapsedMS)
	if len(report.Failures) > 0 {
		fmt.Fprintf(w, "\n%d documents failed:\n", len(report.Failures))
		for _, f := range report.Failures {
			fmt.Fprintf(w, "  %s: %s\n", f.Document, f.Reason)
		}
	}
}
