package segment

import (
	"math/rand"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplit_NewlineNearestCutoff(t *testing.T) {
	got := Texts(Split("abc\ndefgh\nij", Options{MaxLength: 6, SplitLongLines: true}))
	want := []string{"abc\n", "defgh\nij"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Split() = %q, want %q", got, want)
	}
}

func TestSplit_Empty(t *testing.T) {
	if got := Split("", Options{MaxLength: 10}); got != nil {
		t.Errorf("empty text should yield no segments, got %v", got)
	}
}

func TestSplit_ShortTextSingleSegment(t *testing.T) {
	got := Split("hello\nworld", Options{MaxLength: 100, SplitLongLines: true})
	if len(got) != 1 || got[0].Text != "hello\nworld" || got[0].Index != 0 {
		t.Errorf("got %+v", got)
	}
}

func TestSplit_NoNewlineKeepLines(t *testing.T) {
	text := strings.Repeat("x", 50)
	got := Split(text, Options{MaxLength: 7})
	if len(got) != 1 {
		t.Fatalf("expected one oversized segment, got %d", len(got))
	}
	if got[0].Text != text {
		t.Error("segment should hold the whole line")
	}
}

func TestSplit_NoNewlineHardSplit(t *testing.T) {
	text := strings.Repeat("a", 2_000_000)
	got := Split(text, Options{MaxLength: 900_000, SplitLongLines: true})
	if len(got) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(got))
	}
	if len(got[0].Text) != 900_000 || len(got[1].Text) != 900_000 || len(got[2].Text) != 200_000 {
		t.Errorf("unexpected lengths %d %d %d", len(got[0].Text), len(got[1].Text), len(got[2].Text))
	}
}

func TestSplit_LongLineAfterShortLine(t *testing.T) {
	text := "a\nbcdefghi\njkl"
	split := Texts(Split(text, Options{MaxLength: 6, SplitLongLines: true}))
	if want := []string{"a\n", "bcdefg", "hi\njkl"}; !reflect.DeepEqual(split, want) {
		t.Errorf("hard split = %q, want %q", split, want)
	}
	kept := Texts(Split(text, Options{MaxLength: 6}))
	if want := []string{"a\n", "bcdefghi\n", "jkl"}; !reflect.DeepEqual(kept, want) {
		t.Errorf("line-preserving split = %q, want %q", kept, want)
	}
}

func TestSplit_TailLongerThanMaxLengthIsCut(t *testing.T) {
	got := Texts(Split("a\nbcdefghij", Options{MaxLength: 6, SplitLongLines: true}))
	if want := []string{"a\n", "bcdefg", "hij"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Split() = %q, want %q", got, want)
	}

	text := "x\n" + strings.Repeat("y", 1_799_000)
	segs := Split(text, Options{MaxLength: 900_000, SplitLongLines: true})
	for i, seg := range segs {
		if n := utf8.RuneCountInString(seg.Text); n > 900_000 {
			t.Errorf("segment %d has %d runes", i, n)
		}
	}
	if len(segs) != 3 {
		t.Errorf("expected 3 segments, got %d", len(segs))
	}

	kept := Texts(Split("a\nbcdefghij", Options{MaxLength: 6}))
	if want := []string{"a\n", "bcdefghij"}; !reflect.DeepEqual(kept, want) {
		t.Errorf("line-preserving split = %q, want %q", kept, want)
	}
}

func TestSplit_OffsetsAndIndexes(t *testing.T) {
	text := "one\ntwo\nthree\nfour\nfive\n"
	segs := Split(text, Options{MaxLength: 5, SplitLongLines: true})
	for i, seg := range segs {
		if seg.Index != i {
			t.Errorf("segment %d has index %d", i, seg.Index)
		}
		if text[seg.Offset:seg.Offset+len(seg.Text)] != seg.Text {
			t.Errorf("segment %d offset %d does not locate its text", i, seg.Offset)
		}
	}
}

func TestSplit_MultibyteNeverCutInsideRune(t *testing.T) {
	text := strings.Repeat("日本語", 10)
	for _, seg := range Split(text, Options{MaxLength: 4, SplitLongLines: true}) {
		if !utf8.ValidString(seg.Text) {
			t.Fatalf("segment %q is not valid UTF-8", seg.Text)
		}
		if n := utf8.RuneCountInString(seg.Text); n > 4 {
			t.Errorf("segment %q has %d runes", seg.Text, n)
		}
	}
}

func TestSplit_ZeroMaxLength(t *testing.T) {
	got := Split("a\nb", Options{})
	if len(got) != 1 {
		t.Errorf("non-positive max length should yield one segment, got %d", len(got))
	}
}

func TestSplit_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	alphabet := []rune("ab c\né")
	for iter := 0; iter < 300; iter++ {
		n := rng.Intn(200)
		var b strings.Builder
		for i := 0; i < n; i++ {
			b.WriteRune(alphabet[rng.Intn(len(alphabet))])
		}
		text := b.String()
		limit := 1 + rng.Intn(20)
		for _, hard := range []bool{true, false} {
			segs := Split(text, Options{MaxLength: limit, SplitLongLines: hard})
			var joined strings.Builder
			for i, seg := range segs {
				if seg.Text == "" {
					t.Fatalf("empty segment for %q (L=%d)", text, limit)
				}
				joined.WriteString(seg.Text)
				if hard && utf8.RuneCountInString(seg.Text) > limit {
					t.Fatalf("segment %d of %q has %d runes > %d", i, text, utf8.RuneCountInString(seg.Text), limit)
				}
			}
			if joined.String() != text {
				t.Fatalf("concatenation mismatch for %q (L=%d, hard=%v)", text, limit, hard)
			}
			if !strings.Contains(text, "\n") && !hard && len(text) > 0 && len(segs) != 1 {
				t.Fatalf("text without newline should stay whole, got %d segments", len(segs))
			}
		}
	}
}
