// Package e2e provides end-to-end tests that run documents through the whole
// analysis pipeline: extraction, segmentation, model provisioning, artifact
// storage, entity tagging and entity search.
package e2e

import (
	"strings"

	"github.com/hyperjump/docanalysis/internal/nlp"
)

// corpusLine is one line of the generated corpus with the entities it holds.
type corpusLine struct {
	text     string
	entities map[string]int
}

var corpusLines = []corpusLine{
	{"Ada Lovelace corresponded with Charles Babbage in London.\n", map[string]int{"PERSON": 2, "GPE": 1}},
	{"The Royal Society met in Paris last spring.\n", map[string]int{"ORG": 1, "GPE": 1}},
	{"Nothing notable happened on this particular day at all.\n", nil},
	{"Reports from London reached The Royal Society within a week.\n", map[string]int{"GPE": 1, "ORG": 1}},
}

// Corpus is a generated document with known entity counts.
type Corpus struct {
	Text     string
	Lines    int
	Expected map[string]int
}

// BuildCorpus repeats the corpus lines until the text holds at least
// minChars characters.
func BuildCorpus(minChars int) *Corpus {
	var b strings.Builder
	b.Grow(minChars + 128)
	c := &Corpus{Expected: make(map[string]int)}
	for i := 0; b.Len() < minChars; i++ {
		line := corpusLines[i%len(corpusLines)]
		b.WriteString(line.text)
		for label, n := range line.entities {
			c.Expected[label] += n
		}
		c.Lines++
	}
	c.Text = b.String()
	return c
}

// Total returns the number of expected mentions across labels.
func (c *Corpus) Total() int {
	n := 0
	for _, v := range c.Expected {
		n += v
	}
	return n
}

// EnglishPackage is the gazetteer model that recognizes the corpus entities.
func EnglishPackage() *nlp.Package {
	return &nlp.Package{
		Name:    "en_core_web_md",
		Version: "3.8.0",
		Lang:    "en",
		Labels:  []string{"GPE", "ORG", "PERSON"},
		Patterns: []nlp.Pattern{
			{Label: "PERSON", Phrase: "Ada Lovelace"},
			{Label: "PERSON", Phrase: "Charles Babbage"},
			{Label: "GPE", Phrase: "London"},
			{Label: "GPE", Phrase: "Paris"},
			{Label: "ORG", Phrase: "The Royal Society"},
		},
	}
}
