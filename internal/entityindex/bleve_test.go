package entityindex

import (
	"context"
	"path/filepath"
	"testing"
)

func newIndex(t *testing.T) *BleveIndex {
	t.Helper()
	idx, err := NewBleveIndex(filepath.Join(t.TempDir(), "entities"))
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestBleveIndex_ReplaceAndSearch(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()

	if err := idx.Replace(ctx, "c1", []Mention{
		{Label: "GPE", Text: "Paris"},
		{Label: "PERSON", Text: "Ada Lovelace"},
		{Label: "GPE", Text: "London"},
	}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Replace(ctx, "c2", []Mention{{Label: "GPE", Text: "Paris"}}); err != nil {
		t.Fatal(err)
	}

	hits, err := idx.Search(ctx, "paris", SearchOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits for paris, got %d", len(hits))
	}

	hits, _ = idx.Search(ctx, "lovelace", SearchOptions{})
	if len(hits) != 1 || hits[0].ContentID != "c1" || hits[0].Label != "PERSON" || hits[0].Text != "Ada Lovelace" {
		t.Errorf("lovelace hits = %+v", hits)
	}

	hits, _ = idx.Search(ctx, "", SearchOptions{Label: "GPE", ContentID: "c1"})
	if len(hits) != 2 || hits[0].Text != "Paris" || hits[1].Text != "London" {
		t.Errorf("GPE mentions of c1 = %+v", hits)
	}
}

func TestBleveIndex_ReplaceDropsOldMentions(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()

	idx.Replace(ctx, "c1", []Mention{{Label: "GPE", Text: "Rome"}, {Label: "GPE", Text: "Oslo"}})
	idx.Replace(ctx, "c1", []Mention{{Label: "ORG", Text: "Acme"}})

	if hits, _ := idx.Search(ctx, "rome", SearchOptions{}); len(hits) != 0 {
		t.Errorf("stale mention still indexed: %+v", hits)
	}
	n, err := idx.DocCount()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("DocCount = %d, want 1", n)
	}
}

func TestBleveIndex_Fuzzy(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()
	idx.Replace(ctx, "c1", []Mention{{Label: "PERSON", Text: "Lovelace"}})

	if hits, _ := idx.Search(ctx, "lovelase", SearchOptions{}); len(hits) != 0 {
		t.Errorf("exact search should not match a typo, got %+v", hits)
	}
	hits, err := idx.Search(ctx, "lovelase", SearchOptions{Fuzziness: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Errorf("fuzzy search hits = %+v", hits)
	}
}

func TestBleveIndex_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entities")
	idx, err := NewBleveIndex(path)
	if err != nil {
		t.Fatal(err)
	}
	idx.Replace(context.Background(), "c1", []Mention{{Label: "GPE", Text: "Paris"}})
	idx.Close()

	idx, err = NewBleveIndex(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer idx.Close()
	if n, _ := idx.DocCount(); n != 1 {
		t.Errorf("DocCount after reopen = %d", n)
	}
}
