package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/argus/pkg/usecase"
)

const (
	formatText = "text"
	formatJSON = "json"
)

type batchSummary struct {
	Total   int `json:"total"`
	Valid   int `json:"valid"`
	Invalid int `json:"invalid"`
	Failed  int `json:"failed"`
}

func summarize(results []*usecase.BatchResult) batchSummary {
	s := batchSummary{Total: len(results)}
	for _, r := range results {
		switch {
		case r.Err != nil:
			s.Failed++
		case r.Result.Verdict != nil && r.Result.Verdict.IsValid:
			s.Valid++
		default:
			s.Invalid++
		}
	}
	return s
}

type jsonItem struct {
	Name   string                    `json:"name"`
	Result *usecase.ValidationResult `json:"result,omitempty"`
	Error  string                    `json:"error,omitempty"`
}

// writeReport prints the batch results and returns the summary
func writeReport(w io.Writer, format string, results []*usecase.BatchResult) (batchSummary, error) {
	summary := summarize(results)

	switch format {
	case formatJSON:
		items := make([]jsonItem, 0, len(results))
		for _, r := range results {
			item := jsonItem{Name: r.Name, Result: r.Result}
			if item.Result != nil {
				item.Result.Features = nil
			}
			if r.Err != nil {
				item.Error = r.Err.Error()
			}
			items = append(items, item)
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(map[string]any{"results": items, "summary": summary}); err != nil {
			return summary, goerr.Wrap(err, "failed to write report")
		}

	case formatText, "":
		for _, r := range results {
			writeTextItem(w, r)
		}
		fmt.Fprintf(w, "\n%d images: ", summary.Total)
		color.New(color.FgGreen).Fprintf(w, "%d valid", summary.Valid)
		fmt.Fprint(w, ", ")
		color.New(color.FgYellow).Fprintf(w, "%d invalid", summary.Invalid)
		fmt.Fprint(w, ", ")
		color.New(color.FgRed).Fprintf(w, "%d failed\n", summary.Failed)

	default:
		return summary, goerr.New("unknown output format", goerr.V("format", format))
	}
	return summary, nil
}

func writeTextItem(w io.Writer, r *usecase.BatchResult) {
	if r.Err != nil {
		color.New(color.FgRed).Fprintf(w, "✗ %s: %v\n", r.Name, r.Err)
		return
	}

	res := r.Result
	v := res.Verdict
	mark, c := "✓", color.New(color.FgGreen)
	if !v.IsValid {
		mark, c = "✗", color.New(color.FgYellow)
	}
	c.Fprintf(w, "%s %s", mark, r.Name)
	fmt.Fprintf(w, " [%s/%s/%s] confidence=%.2f mode=%s\n",
		res.Namespace, res.Category, res.ExpectedState, v.Confidence, res.Mode)

	if v.Degraded {
		color.New(color.FgYellow).Fprintf(w, "    degraded: %s\n", v.DegradedReason)
	}
	if len(v.FailedCriteria) > 0 {
		fmt.Fprintf(w, "    failed: %s\n", strings.Join(v.FailedCriteria, "; "))
	}
	if len(res.SimilarCases) > 0 {
		top := res.SimilarCases[0]
		fmt.Fprintf(w, "    nearest: %s (%s, similarity=%.3f)\n", top.ReferenceID, top.State, top.Similarity)
	}
	if res.StoredID != "" {
		fmt.Fprintf(w, "    stored: %s\n", res.StoredID)
	}
	if res.PersistenceError != "" {
		color.New(color.FgRed).Fprintf(w, "    not stored: %s\n", res.PersistenceError)
	}
}
