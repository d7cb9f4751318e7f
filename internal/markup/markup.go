// Package markup reconstructs analyzed segments into a single TEI document in
// which every entity mention is wrapped in a <name type="LABEL"> element.
package markup

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"unicode"

	"github.com/antchfx/xmlquery"
	"github.com/hyperjump/docanalysis/internal/nlp"
)

const (
	openDocument  = `<TEI xmlns="http://www.tei-c.org/ns/1.0">`
	closeDocument = `</TEI>`
	closeName     = `</name>`
)

// SegmentStats describes what WriteSegment emitted.
type SegmentStats struct {
	// Entities counts written entities per label.
	Entities map[string]int
	// Skipped lists spans that overlap an earlier span or fall outside the token range.
	Skipped []nlp.Span
	// Mentions holds the text of each written entity in order.
	Mentions []Mention
}

// Mention is one entity occurrence as it appears in the document.
type Mention struct {
	Label string
	Text  string
}

// Writer streams a document. Call WriteSegment for each segment in order,
// then Close.
type Writer struct {
	w      *bufio.Writer
	opened bool
	closed bool
}

// NewWriter returns a Writer emitting to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// WriteSegment replays doc's tokens with entity boundary tags. Spans that
// would break nesting are skipped and reported in the returned stats.
func (mw *Writer) WriteSegment(doc *nlp.Doc) (SegmentStats, error) {
	if mw.closed {
		return SegmentStats{}, fmt.Errorf("markup writer is closed")
	}
	if !mw.opened {
		mw.w.WriteString(openDocument)
		mw.opened = true
	}

	spans, skipped := validSpans(doc.Ents, len(doc.Tokens))
	stats := SegmentStats{Entities: make(map[string]int), Skipped: skipped}

	starts := make(map[int][]int, len(spans))
	ends := make(map[int][]int, len(spans))
	for i, s := range spans {
		starts[s.Start] = append(starts[s.Start], i)
		ends[s.End] = append(ends[s.End], i)
	}

	pendingSpace := ""
	for i, tok := range doc.Tokens {
		for range ends[i] {
			mw.w.WriteString(closeName)
		}
		writeEscaped(mw.w, pendingSpace)
		for _, idx := range starts[i] {
			mw.w.WriteString(`<name type="`)
			writeEscaped(mw.w, spans[idx].Label)
			mw.w.WriteString(`">`)
		}
		writeEscaped(mw.w, tok.Text)
		pendingSpace = tok.Whitespace
	}
	for range ends[len(doc.Tokens)] {
		mw.w.WriteString(closeName)
	}
	writeEscaped(mw.w, pendingSpace)

	for _, s := range spans {
		stats.Entities[s.Label]++
		stats.Mentions = append(stats.Mentions, Mention{Label: s.Label, Text: mentionText(doc.Tokens[s.Start:s.End])})
	}
	return stats, nil
}

// Close writes the closing wrapper and flushes. A document with no segments
// still gets an empty wrapper.
func (mw *Writer) Close() error {
	if mw.closed {
		return nil
	}
	if !mw.opened {
		mw.w.WriteString(openDocument)
		mw.opened = true
	}
	mw.w.WriteString(closeDocument)
	mw.closed = true
	return mw.w.Flush()
}

// validSpans keeps spans in order of appearance, dropping any that are empty,
// out of range, or overlap a span already kept.
func validSpans(ents []nlp.Span, nTokens int) (kept, skipped []nlp.Span) {
	ordered := append([]nlp.Span(nil), ents...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Start < ordered[j].Start })
	lastEnd := 0
	for _, s := range ordered {
		if s.Start < 0 || s.End > nTokens || s.Start >= s.End || s.Start < lastEnd {
			skipped = append(skipped, s)
			continue
		}
		kept = append(kept, s)
		lastEnd = s.End
	}
	return kept, skipped
}

func mentionText(tokens []nlp.Token) string {
	var b []byte
	for i, t := range tokens {
		b = append(b, t.Text...)
		if i < len(tokens)-1 {
			b = append(b, t.Whitespace...)
		}
	}
	return string(b)
}

// writeEscaped escapes markup characters and replaces characters XML cannot
// carry with U+FFFD. Unlike xml.EscapeText it writes newlines, carriage
// returns and tabs literally, so the markup keeps the source line layout.
func writeEscaped(w *bufio.Writer, s string) {
	for _, r := range s {
		switch {
		case r == '&':
			w.WriteString("&amp;")
		case r == '<':
			w.WriteString("&lt;")
		case r == '>':
			w.WriteString("&gt;")
		case r == '"':
			w.WriteString("&quot;")
		case !isXMLChar(r):
			w.WriteRune(unicode.ReplacementChar)
		default:
			w.WriteRune(r)
		}
	}
}

func isXMLChar(r rune) bool {
	return r == 0x09 || r == 0x0A || r == 0x0D ||
		r >= 0x20 && r <= 0xD7FF ||
		r >= 0xE000 && r <= 0xFFFD ||
		r >= 0x10000 && r <= 0x10FFFF
}

// ReadMentions parses a markup document and returns its entity mentions in
// document order. It fails if the document is not well-formed.
func ReadMentions(r io.Reader) ([]Mention, error) {
	doc, err := xmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse markup: %w", err)
	}
	nodes, err := xmlquery.QueryAll(doc, "//*[local-name()='name']")
	if err != nil {
		return nil, fmt.Errorf("query markup: %w", err)
	}
	mentions := make([]Mention, 0, len(nodes))
	for _, n := range nodes {
		mentions = append(mentions, Mention{Label: n.SelectAttr("type"), Text: n.InnerText()})
	}
	return mentions, nil
}
