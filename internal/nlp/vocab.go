package nlp

import (
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"
)

// Vocab is the string table shared by a model and the artifacts it writes.
// Artifacts store entity labels as ids into Labels, so an artifact can only
// be read back with a vocabulary carrying the same fingerprint.
type Vocab struct {
	model       string
	version     string
	labels      []string
	ids         map[string]int
	fingerprint string
}

// NewVocab builds the vocabulary for model at version with the given labels.
func NewVocab(model, version string, labels []string) *Vocab {
	v := &Vocab{
		model:   model,
		version: version,
		labels:  append([]string(nil), labels...),
		ids:     make(map[string]int, len(labels)),
	}
	for i, l := range v.labels {
		v.ids[l] = i
	}
	h := blake3.Sum256([]byte(model + "\x00" + version + "\x00" + strings.Join(v.labels, "\x00")))
	v.fingerprint = hex.EncodeToString(h[:])
	return v
}

// Fingerprint returns a stable hash of the model identity and label table.
func (v *Vocab) Fingerprint() string { return v.fingerprint }

// Labels returns a copy of the label table.
func (v *Vocab) Labels() []string { return append([]string(nil), v.labels...) }

// LabelID returns the id of label.
func (v *Vocab) LabelID(label string) (int, bool) {
	id, ok := v.ids[label]
	return id, ok
}

// Label returns the label for id.
func (v *Vocab) Label(id int) (string, bool) {
	if id < 0 || id >= len(v.labels) {
		return "", false
	}
	return v.labels[id], true
}
