package nlp

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/blevesearch/segment"
)

// Tokenize splits text on Unicode word boundaries (UAX #29). A single space
// after a token is kept as that token's whitespace; any other whitespace
// becomes a token of its own, so joining Text and Whitespace of all tokens
// reproduces text exactly.
func Tokenize(text string) ([]Token, error) {
	if text == "" {
		return nil, nil
	}
	seg := segment.NewWordSegmenterDirect([]byte(text))
	var tokens []Token
	var space strings.Builder
	covered := 0

	flushSpace := func() {
		if space.Len() == 0 {
			return
		}
		run := space.String()
		space.Reset()
		if len(tokens) > 0 && tokens[len(tokens)-1].Whitespace == "" && run[0] == ' ' {
			tokens[len(tokens)-1].Whitespace = " "
			run = run[1:]
		}
		if run != "" {
			tokens = append(tokens, Token{Text: run})
		}
	}

	for seg.Segment() {
		piece := seg.Text()
		covered += len(piece)
		if isSpace(piece) {
			space.WriteString(piece)
			continue
		}
		flushSpace()
		tokens = append(tokens, Token{Text: piece})
	}
	if err := seg.Err(); err != nil {
		return nil, fmt.Errorf("tokenize: %w", err)
	}
	flushSpace()
	if covered != len(text) {
		return nil, fmt.Errorf("tokenize: segmenter covered %d of %d bytes", covered, len(text))
	}
	return tokens, nil
}

func isSpace(s string) bool {
	for _, r := range s {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return s != ""
}
