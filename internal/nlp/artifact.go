package nlp

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ulikunitz/xz"
)

type artifactToken struct {
	T string `json:"t"`
	W string `json:"w,omitempty"`
}

type artifact struct {
	Model   string          `json:"model"`
	Version string          `json:"version"`
	Vocab   string          `json:"vocab"`
	Tokens  []artifactToken `json:"tokens"`
	Ents    [][3]int        `json:"ents"`
}

// WriteDoc serializes doc to path as xz-compressed JSON. Entity labels are
// stored as ids into vocab. The file is written to a temporary name and
// renamed into place, so readers never observe a partial artifact.
func WriteDoc(path string, doc *Doc, vocab *Vocab) error {
	a := artifact{
		Model:   vocab.model,
		Version: vocab.version,
		Vocab:   vocab.Fingerprint(),
		Tokens:  make([]artifactToken, len(doc.Tokens)),
		Ents:    make([][3]int, 0, len(doc.Ents)),
	}
	for i, t := range doc.Tokens {
		a.Tokens[i] = artifactToken{T: t.Text, W: t.Whitespace}
	}
	for _, e := range doc.Ents {
		id, ok := vocab.LabelID(e.Label)
		if !ok {
			return fmt.Errorf("write artifact: label %q not in vocabulary", e.Label)
		}
		a.Ents = append(a.Ents, [3]int{e.Start, e.End, id})
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".artifact-*")
	if err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	bw := bufio.NewWriter(tmp)
	zw, err := xz.NewWriter(bw)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := json.NewEncoder(zw).Encode(&a); err != nil {
		tmp.Close()
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := zw.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	return nil
}

// ReadDoc loads an artifact written by WriteDoc. It fails with an error
// wrapping ErrVocabMismatch when the artifact was written with a different
// vocabulary than vocab.
func ReadDoc(path string, vocab *Vocab) (*Doc, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	defer f.Close()

	zr, err := xz.NewReader(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", filepath.Base(path), err)
	}
	var a artifact
	if err := json.NewDecoder(zr).Decode(&a); err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", filepath.Base(path), err)
	}
	if a.Vocab != vocab.Fingerprint() {
		return nil, fmt.Errorf("read artifact %s (model %s %s): %w", filepath.Base(path), a.Model, a.Version, ErrVocabMismatch)
	}

	doc := &Doc{
		Tokens: make([]Token, len(a.Tokens)),
		Ents:   make([]Span, 0, len(a.Ents)),
	}
	for i, t := range a.Tokens {
		doc.Tokens[i] = Token{Text: t.T, Whitespace: t.W}
	}
	for _, e := range a.Ents {
		label, ok := vocab.Label(e[2])
		if !ok {
			return nil, fmt.Errorf("read artifact %s: label id %d: %w", filepath.Base(path), e[2], ErrVocabMismatch)
		}
		doc.Ents = append(doc.Ents, Span{Start: e[0], End: e[1], Label: label})
	}
	return doc, nil
}
