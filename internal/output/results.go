package output

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Aman-CERP/nocmatch/internal/search"
)

// Format selects how results are printed.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat validates a --format flag value.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown format %q: use text or json", s)
	}
}

// resultsDocument is the JSON shape of a match.
type resultsDocument struct {
	Query   string               `json:"query"`
	Count   int                  `json:"count"`
	Results []search.MatchResult `json:"results"`
}

// Results prints a ranked result list for query.
func (w *Writer) Results(query string, results []search.MatchResult, format Format) error {
	if format == FormatJSON {
		if results == nil {
			results = []search.MatchResult{}
		}
		enc := json.NewEncoder(w.out)
		enc.SetIndent("", "  ")
		return enc.Encode(resultsDocument{Query: query, Count: len(results), Results: results})
	}

	if len(results) == 0 {
		w.Status("", fmt.Sprintf("No occupations found for %q", query))
		return nil
	}

	noun := "matches"
	if len(results) == 1 {
		noun = "match"
	}
	_, _ = fmt.Fprintln(w.out, w.styles.Header.Render(fmt.Sprintf("%d %s for %q", len(results), noun, query)))
	w.Newline()

	for i, r := range results {
		_, _ = fmt.Fprintf(w.out, "%2d. %s  %s  %s\n",
			i+1,
			w.styles.Code.Render(r.Code),
			w.styles.Title.Render(r.Title),
			w.styles.Score.Render(fmt.Sprintf("%.3f", r.Score)))
		if r.SkillTier != "" {
			w.field("TEER", r.SkillTier)
		}
		if len(r.AliasTitles) > 0 {
			w.field("Also", strings.Join(r.AliasTitles, ", "))
		}
		if r.Snippet != "" {
			_, _ = fmt.Fprintf(w.out, "    %s\n", w.styles.Dim.Render(r.Snippet))
		}
	}
	return nil
}

func (w *Writer) field(label, value string) {
	_, _ = fmt.Fprintf(w.out, "    %s %s\n", w.styles.Label.Render(label+":"), value)
}
