// Package nlp defines the model runtime used by the analysis procedures: model
// lookup and provisioning, text analysis into tokens and entity spans, and
// durable serialization of the analysis output.
package nlp

import (
	"context"
	"errors"
)

var (
	// ErrModelNotFound is returned by Load when the model is not installed locally.
	ErrModelNotFound = errors.New("model not installed")
	// ErrVocabMismatch is returned when an artifact was written with a different vocabulary.
	ErrVocabMismatch = errors.New("artifact vocabulary does not match model")
)

// Runtime provides models. Implementations must be safe for concurrent use.
type Runtime interface {
	// Compatibility returns the models advertised for the installed runtime
	// version, each with its compatible model versions (newest first).
	Compatibility(ctx context.Context) (map[string][]string, error)
	// Load returns a loaded model or an error wrapping ErrModelNotFound.
	Load(ctx context.Context, name string) (Model, error)
	// Download provisions the model so that a later Load can succeed.
	Download(ctx context.Context, name, version string) error
}

// Model analyzes text. A loaded model is shared between jobs.
type Model interface {
	Name() string
	Version() string
	Vocab() *Vocab
	Analyze(ctx context.Context, text string) (*Doc, error)
}

// Token is one token of a document with the whitespace that follows it.
type Token struct {
	Text       string
	Whitespace string
}

// Span is a labeled half-open token interval [Start, End).
type Span struct {
	Start int
	End   int
	Label string
}

// Doc is the analysis output for one segment. Entities are ordered by Start.
type Doc struct {
	Tokens []Token
	Ents   []Span
}

// Text reconstructs the analyzed text from tokens and whitespace.
func (d *Doc) Text() string {
	n := 0
	for _, t := range d.Tokens {
		n += len(t.Text) + len(t.Whitespace)
	}
	b := make([]byte, 0, n)
	for _, t := range d.Tokens {
		b = append(b, t.Text...)
		b = append(b, t.Whitespace...)
	}
	return string(b)
}
