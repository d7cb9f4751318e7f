package nlp

import (
	"context"
	"fmt"
	"sort"
)

// Package is the on-disk description of a gazetteer model.
type Package struct {
	Name     string    `yaml:"name"`
	Version  string    `yaml:"version"`
	Lang     string    `yaml:"lang"`
	Labels   []string  `yaml:"labels"`
	Patterns []Pattern `yaml:"patterns"`
}

// Pattern maps a phrase to an entity label.
type Pattern struct {
	Label  string `yaml:"label"`
	Phrase string `yaml:"phrase"`
}

// Validate checks that the package is usable.
func (p *Package) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("model package has no name")
	}
	if p.Version == "" {
		return fmt.Errorf("model package %s has no version", p.Name)
	}
	known := make(map[string]bool, len(p.Labels))
	for _, l := range p.Labels {
		known[l] = true
	}
	for _, pat := range p.Patterns {
		if !known[pat.Label] {
			return fmt.Errorf("model package %s: pattern %q uses unknown label %q", p.Name, pat.Phrase, pat.Label)
		}
	}
	return nil
}

type compiledPattern struct {
	words []string
	label string
}

// GazetteerModel recognizes entities by longest phrase match over tokens.
type GazetteerModel struct {
	name     string
	version  string
	vocab    *Vocab
	patterns map[string][]compiledPattern // first word -> patterns, longest first
}

// NewGazetteerModel compiles pkg into a model.
func NewGazetteerModel(pkg *Package) (*GazetteerModel, error) {
	if err := pkg.Validate(); err != nil {
		return nil, err
	}
	m := &GazetteerModel{
		name:     pkg.Name,
		version:  pkg.Version,
		vocab:    NewVocab(pkg.Name, pkg.Version, pkg.Labels),
		patterns: make(map[string][]compiledPattern),
	}
	for _, pat := range pkg.Patterns {
		tokens, err := Tokenize(pat.Phrase)
		if err != nil {
			return nil, fmt.Errorf("compile pattern %q: %w", pat.Phrase, err)
		}
		words := make([]string, 0, len(tokens))
		for _, t := range tokens {
			words = append(words, t.Text)
		}
		if len(words) == 0 {
			continue
		}
		m.patterns[words[0]] = append(m.patterns[words[0]], compiledPattern{words: words, label: pat.Label})
	}
	for k := range m.patterns {
		ps := m.patterns[k]
		sort.SliceStable(ps, func(i, j int) bool { return len(ps[i].words) > len(ps[j].words) })
	}
	return m, nil
}

// Name returns the model name.
func (m *GazetteerModel) Name() string { return m.name }

// Version returns the model version.
func (m *GazetteerModel) Version() string { return m.version }

// Vocab returns the model vocabulary.
func (m *GazetteerModel) Vocab() *Vocab { return m.vocab }

// Analyze tokenizes text and tags non-overlapping entity spans, scanning
// left to right and preferring the longest phrase at each position.
func (m *GazetteerModel) Analyze(ctx context.Context, text string) (*Doc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tokens, err := Tokenize(text)
	if err != nil {
		return nil, err
	}
	doc := &Doc{Tokens: tokens}
	for i := 0; i < len(tokens); {
		n, label := m.match(tokens, i)
		if n == 0 {
			i++
			continue
		}
		doc.Ents = append(doc.Ents, Span{Start: i, End: i + n, Label: label})
		i += n
	}
	return doc, nil
}

func (m *GazetteerModel) match(tokens []Token, at int) (int, string) {
	for _, p := range m.patterns[tokens[at].Text] {
		if at+len(p.words) > len(tokens) {
			continue
		}
		ok := true
		for k, w := range p.words {
			if tokens[at+k].Text != w {
				ok = false
				break
			}
		}
		if ok {
			return len(p.words), p.label
		}
	}
	return 0, ""
}
