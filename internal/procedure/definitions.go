package procedure

import (
	"context"

	"github.com/hyperjump/docanalysis/internal/models"
)

// Parameter describes one input a procedure accepts.
type Parameter struct {
	Name    string   `json:"name"`
	Label   string   `json:"label"`
	Type    string   `json:"type"`
	Choices []string `json:"choices,omitempty"`
	Default string   `json:"default,omitempty"`
}

// Definition describes a procedure that can be submitted against a content record.
type Definition struct {
	Key        string      `json:"key"`
	Label      string      `json:"label"`
	Version    string      `json:"version"`
	Requires   []string    `json:"requires,omitempty"`
	Parameters []Parameter `json:"parameters,omitempty"`
}

const procedureVersion = "1.0"

// Definitions lists the implemented procedures. The language choices are the
// languages the installed model runtime can serve.
func (r *Runner) Definitions(ctx context.Context) ([]Definition, error) {
	names, err := r.languages.Names(ctx)
	if err != nil {
		return nil, err
	}
	return []Definition{
		{
			Key:     models.ProcedureReadText,
			Label:   "Read Text with spaCy",
			Version: procedureVersion,
			Parameters: []Parameter{{
				Name:    "language",
				Label:   "Language",
				Type:    "choice",
				Choices: names,
				Default: r.cfg.DefaultLanguage,
			}},
		},
		{
			Key:      models.ProcedureTagEntities,
			Label:    "Perform Named Entity Recognition with spaCy",
			Version:  procedureVersion,
			Requires: []string{models.ProcedureReadText},
		},
	}, nil
}
