// Package cli provides the HTTP client and output formatting used by the
// docanalysis command.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hyperjump/docanalysis/internal/entityindex"
	"github.com/hyperjump/docanalysis/internal/models"
	"github.com/hyperjump/docanalysis/pkg/utils"
)

// OutputFormat selects how results are printed.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, OutputJSON:
		return OutputFormat(s), nil
	}
	return "", fmt.Errorf("unknown output format %q; use text or json", s)
}

const maxReportLen = 160

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteJob writes a job with its progress log.
func WriteJob(w io.Writer, job *models.Job, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, job)
	}
	fmt.Fprintf(w, "Job %s\n", job.ID)
	fmt.Fprintf(w, "  Procedure: %s\n", job.Procedure)
	fmt.Fprintf(w, "  Content:   %s\n", job.ContentID)
	fmt.Fprintf(w, "  Status:    %s (%d%%)\n", job.Status, job.PercentComplete)
	if len(job.Params) > 0 {
		keys := make([]string, 0, len(job.Params))
		for k := range job.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  Param:     %s=%s\n", k, job.Params[k])
		}
	}
	for _, line := range job.Reports {
		fmt.Fprintf(w, "  > %s\n", utils.Truncate(line, maxReportLen))
	}
	if job.Error != "" {
		fmt.Fprintf(w, "  Error:\n")
		for _, line := range strings.Split(job.Error, "\n") {
			fmt.Fprintf(w, "    %s\n", line)
		}
	}
	return nil
}

// WriteContent writes a content record.
func WriteContent(w io.Writer, record *models.ContentRecord, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, record)
	}
	fmt.Fprintf(w, "Content %s\n", record.ID)
	fmt.Fprintf(w, "  Name:   %s\n", record.Name)
	fmt.Fprintf(w, "  Source: %s\n", record.SourcePath)
	if done := record.Procedures.Completed(); len(done) > 0 {
		fmt.Fprintf(w, "  Done:   %s\n", strings.Join(done, ", "))
	}
	return nil
}

// WriteLanguages writes the selectable languages.
func WriteLanguages(w io.Writer, languages []models.LanguageInfo, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, languages)
	}
	if len(languages) == 0 {
		fmt.Fprintln(w, "No languages available.")
		return nil
	}
	width := 0
	for _, l := range languages {
		if len(l.Name) > width {
			width = len(l.Name)
		}
	}
	for _, l := range languages {
		fmt.Fprintf(w, "%-*s  %s %s\n", width, l.Name, l.Model, l.Version)
	}
	return nil
}

// WriteMentions writes entity search results.
func WriteMentions(w io.Writer, mentions []entityindex.Mention, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, mentions)
	}
	fmt.Fprintf(w, "Found %d mention(s)\n", len(mentions))
	for _, m := range mentions {
		fmt.Fprintf(w, "  [%s] %s  (content %s, #%d)\n", m.Label, m.Text, m.ContentID, m.Position)
	}
	return nil
}

// WriteStatus writes a status document. Nested sections are indented under
// their key.
func WriteStatus(w io.Writer, status map[string]interface{}, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, status)
	}
	writeSection(w, status, "")
	return nil
}

func writeSection(w io.Writer, section map[string]interface{}, indent string) {
	keys := make([]string, 0, len(section))
	for k := range section {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch v := section[k].(type) {
		case map[string]interface{}:
			fmt.Fprintf(w, "%s%s:\n", indent, k)
			writeSection(w, v, indent+"  ")
		case []interface{}:
			fmt.Fprintf(w, "%s%s:\n", indent, k)
			for _, item := range v {
				fmt.Fprintf(w, "%s  - %v\n", indent, item)
			}
		case float64:
			// JSON numbers decode as float64; counts read better without a fraction.
			if v == float64(int64(v)) {
				fmt.Fprintf(w, "%s%s: %d\n", indent, k, int64(v))
			} else {
				fmt.Fprintf(w, "%s%s: %v\n", indent, k, v)
			}
		default:
			fmt.Fprintf(w, "%s%s: %v\n", indent, k, v)
		}
	}
}
