// Package segment splits large documents into bounded, line-aligned segments.
package segment

import "unicode/utf8"

// Options controls segmentation. MaxLength is counted in runes.
type Options struct {
	MaxLength int
	// SplitLongLines allows a cut in the middle of a line when no newline
	// falls inside the current window. When false, a line longer than
	// MaxLength is kept whole as one oversized segment.
	SplitLongLines bool
}

// Segment is one ordered slice of a document.
type Segment struct {
	Index  int
	Text   string
	Offset int // byte offset of Text in the source buffer
}

type mark struct {
	rune int
	byte int
}

type splitter struct {
	text     string
	opts     Options
	start    mark
	breaks   []mark // positions just after a newline, since start
	segments []Segment
}

// Split partitions text into segments whose concatenation is text.
//
// Cutoffs are checked every MaxLength runes from the beginning of the
// buffer. At a cutoff the segment ends right after the last newline seen
// since the previous cut; without such a newline it ends at the cutoff
// itself when SplitLongLines is set. The tail left after the last cutoff is
// cut the same way while it is longer than MaxLength, so with SplitLongLines
// every segment is at most MaxLength runes long. Empty text yields no
// segments.
func Split(text string, opts Options) []Segment {
	if text == "" {
		return nil
	}
	if opts.MaxLength <= 0 {
		return []Segment{{Index: 0, Text: text}}
	}
	s := &splitter{text: text, opts: opts}
	n := 0
	for i, r := range text {
		if n > 0 && n%opts.MaxLength == 0 {
			s.checkpoint(n)
		}
		if r == '\n' {
			s.breaks = append(s.breaks, mark{rune: n + 1, byte: i + 1})
		}
		n++
	}
	if n-s.start.rune > opts.MaxLength {
		s.checkpoint(n)
	}
	if s.start.byte < len(text) {
		s.emit(mark{rune: n, byte: len(text)})
	}
	return s.segments
}

// checkpoint cuts at the cutoff rune position r, repeating while the
// pending text before r is still longer than one segment.
func (s *splitter) checkpoint(r int) {
	for {
		cut, ok := s.cutPoint(r)
		if !ok {
			return
		}
		s.emit(cut)
		if r-s.start.rune <= s.opts.MaxLength {
			return
		}
	}
}

func (s *splitter) cutPoint(r int) (mark, bool) {
	limit := r
	if s.opts.SplitLongLines && s.start.rune+s.opts.MaxLength < limit {
		limit = s.start.rune + s.opts.MaxLength
	}
	for i := len(s.breaks) - 1; i >= 0; i-- {
		b := s.breaks[i]
		if b.rune <= s.start.rune {
			break
		}
		if b.rune <= limit {
			return b, true
		}
	}
	if !s.opts.SplitLongLines || limit <= s.start.rune {
		return mark{}, false
	}
	return mark{rune: limit, byte: s.byteAt(limit)}, true
}

// byteAt returns the byte offset of rune position r, scanning from start.
func (s *splitter) byteAt(r int) int {
	b := s.start.byte
	for n := s.start.rune; n < r && b < len(s.text); n++ {
		_, size := utf8.DecodeRuneInString(s.text[b:])
		b += size
	}
	return b
}

func (s *splitter) emit(cut mark) {
	s.segments = append(s.segments, Segment{
		Index:  len(s.segments),
		Text:   s.text[s.start.byte:cut.byte],
		Offset: s.start.byte,
	})
	s.start = cut
	k := 0
	for k < len(s.breaks) && s.breaks[k].rune <= cut.rune {
		k++
	}
	s.breaks = s.breaks[k:]
}

// Texts returns the text of each segment in order.
func Texts(segments []Segment) []string {
	out := make([]string, len(segments))
	for i, seg := range segments {
		out[i] = seg.Text
	}
	return out
}
