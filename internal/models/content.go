// Package models defines core data structures for content records, procedure jobs, and results.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Procedure keys under which result fragments are recorded on a content record.
const (
	ProcedureReadText    = "read_text_with_spacy"
	ProcedureTagEntities = "perform_ner_with_spacy"
)

// ContentRecord is a document under analysis.
type ContentRecord struct {
	ID         string           `json:"id" db:"id"`
	Name       string           `json:"name" db:"name"`
	SourcePath string           `json:"source_path" db:"source_path"`
	Path       string           `json:"path" db:"path"`
	Procedures ProcedureResults `json:"procedures_completed" db:"procedures_completed"`
	CreatedAt  time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at" db:"updated_at"`
}

// ContentInput is the input for registering a content record.
type ContentInput struct {
	ID         string `json:"id,omitempty"`
	Name       string `json:"name"`
	SourcePath string `json:"source_path"`
}

// maxContentIDLen bounds ids, which become directory and file names.
const maxContentIDLen = 128

// Validate checks that the required fields are present and that an explicit
// id is usable as a content directory name.
func (in *ContentInput) Validate() error {
	if in.Name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if in.SourcePath == "" {
		return fmt.Errorf("source_path cannot be empty")
	}
	if in.ID != "" {
		return ValidateContentID(in.ID)
	}
	return nil
}

// ValidateContentID rejects ids that are not a single plain path element.
// Allowed characters are ASCII letters, digits, '.', '_' and '-', and the id
// may not start with a dot.
func ValidateContentID(id string) error {
	if id == "" {
		return fmt.Errorf("id cannot be empty")
	}
	if len(id) > maxContentIDLen {
		return fmt.Errorf("id is longer than %d characters", maxContentIDLen)
	}
	if id[0] == '.' {
		return fmt.Errorf("id %q may not start with a dot", id)
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '.', c == '_', c == '-':
		default:
			return fmt.Errorf("id %q contains invalid character %q", id, c)
		}
	}
	return nil
}

// LanguageInfo describes the model selected for a language.
type LanguageInfo struct {
	Name    string `json:"language_name" yaml:"language_name"`
	Code    string `json:"language_code" yaml:"language_code"`
	Model   string `json:"model" yaml:"model"`
	Version string `json:"version" yaml:"version"`
}

// ResultFragment is the structured output a procedure records on success.
type ResultFragment interface {
	ProcedureKey() string
}

// ReadTextResult is recorded by the read text procedure.
type ReadTextResult struct {
	LanguageInfo LanguageInfo `json:"language_info"`
	NLPFiles     []string     `json:"nlp_files"`
	Segments     int          `json:"segments"`
}

// ProcedureKey implements ResultFragment.
func (*ReadTextResult) ProcedureKey() string { return ProcedureReadText }

// TagEntitiesResult is recorded by the entity tagging procedure.
type TagEntitiesResult struct {
	TaggedTextFile string         `json:"tagged_text_file"`
	EntityCounts   map[string]int `json:"entity_counts,omitempty"`
	SkippedSpans   int            `json:"skipped_spans,omitempty"`
}

// ProcedureKey implements ResultFragment.
func (*TagEntitiesResult) ProcedureKey() string { return ProcedureTagEntities }

// ProcedureResults holds one typed fragment per known procedure. A nil field
// means the procedure has not completed for the record.
type ProcedureResults struct {
	ReadText    *ReadTextResult    `json:"read_text_with_spacy,omitempty"`
	TagEntities *TagEntitiesResult `json:"perform_ner_with_spacy,omitempty"`
}

// Set stores fragment in the slot for its procedure. A new read text result
// clears the entity tagging result, whose markup was derived from the
// previous artifacts.
func (p *ProcedureResults) Set(fragment ResultFragment) error {
	switch f := fragment.(type) {
	case *ReadTextResult:
		p.ReadText = f
		p.TagEntities = nil
	case *TagEntitiesResult:
		p.TagEntities = f
	default:
		return fmt.Errorf("unknown result fragment %T", fragment)
	}
	return nil
}

// Has reports whether the procedure with key has a recorded fragment.
func (p *ProcedureResults) Has(key string) bool {
	switch key {
	case ProcedureReadText:
		return p.ReadText != nil
	case ProcedureTagEntities:
		return p.TagEntities != nil
	}
	return false
}

// Completed returns the keys of procedures with recorded fragments.
func (p *ProcedureResults) Completed() []string {
	var keys []string
	for _, k := range []string{ProcedureReadText, ProcedureTagEntities} {
		if p.Has(k) {
			keys = append(keys, k)
		}
	}
	return keys
}

// Encode returns the JSON column value.
func (p *ProcedureResults) Encode() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to marshal procedure results: %w", err)
	}
	return string(data), nil
}

// DecodeProcedureResults parses a JSON column value. Empty input yields no results.
func DecodeProcedureResults(s string) (ProcedureResults, error) {
	var p ProcedureResults
	if s == "" {
		return p, nil
	}
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return p, fmt.Errorf("failed to unmarshal procedure results: %w", err)
	}
	return p, nil
}
