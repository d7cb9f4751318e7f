// Package extract loads the source text of a content record from the
// resource it was registered with.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	// ErrDecode is returned when a resource's bytes are not valid for its format.
	ErrDecode = errors.New("cannot decode source text")
	// ErrUnsupported is returned for extensions no format handles.
	ErrUnsupported = errors.New("unsupported source format")
)

// Format converts the raw bytes of one file type into text.
type Format func(content []byte) (string, error)

// Extractor dispatches on file extension to a Format.
type Extractor struct {
	formats map[string]Format
}

// NewExtractor returns an Extractor that knows plain text, PDF, spreadsheet,
// and the zipped office document formats.
func NewExtractor() *Extractor {
	e := &Extractor{formats: make(map[string]Format)}
	e.Register(extractPlain, ".txt", ".text", ".md", ".rst", ".csv", "")
	e.Register(extractPDF, ".pdf")
	e.Register(extractSpreadsheet, ".xlsx", ".xlsm")
	e.Register(wordprocessing.extract, ".docx")
	e.Register(presentation.extract, ".pptx")
	e.Register(openDocument.extract, ".odt", ".odp", ".ods")
	return e
}

// Register maps extensions (with leading dot, any case) to f.
func (e *Extractor) Register(f Format, exts ...string) {
	for _, ext := range exts {
		e.formats[strings.ToLower(ext)] = f
	}
}

// Supported reports whether ext has a registered format.
func (e *Extractor) Supported(ext string) bool {
	_, ok := e.formats[strings.ToLower(ext)]
	return ok
}

// Extensions returns the registered extensions in sorted order.
func (e *Extractor) Extensions() []string {
	exts := make([]string, 0, len(e.formats))
	for ext := range e.formats {
		if ext != "" {
			exts = append(exts, ext)
		}
	}
	sort.Strings(exts)
	return exts
}

// Extract reads the file at path and returns its text content.
func (e *Extractor) Extract(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read source: %w", err)
	}
	return e.ExtractBytes(content, filepath.Ext(path))
}

// ExtractBytes extracts text from content based on the given extension.
// ext should include the leading dot (e.g. ".pdf").
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	f, ok := e.formats[strings.ToLower(ext)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}
	return f(content)
}
