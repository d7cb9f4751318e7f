// Package entityindex keeps a Bleve index of tagged entity mentions so that
// entities can be looked up across all analyzed documents.
package entityindex

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
)

const (
	fieldContent  = "content_id"
	fieldLabel    = "label"
	fieldText     = "text"
	fieldPosition = "position"

	pageSize = 1000
)

// Mention is one entity occurrence in a content record.
type Mention struct {
	ContentID string `json:"content_id"`
	Label     string `json:"label"`
	Text      string `json:"text"`
	// Position is the mention's ordinal within its content record.
	Position int     `json:"position"`
	Score    float64 `json:"score,omitempty"`
}

// SearchOptions narrows a mention search. Zero values mean no restriction.
type SearchOptions struct {
	Label     string
	ContentID string
	// Fuzziness enables typo tolerant matching of the text query (1 or 2).
	Fuzziness int
	Limit     int
}

// BleveIndex stores mentions in a Bleve index.
type BleveIndex struct {
	index bleve.Index
}

// NewBleveIndex creates or opens a Bleve index at path.
// If you change the index mapping in code, remove the index directory so it is rebuilt.
func NewBleveIndex(path string) (*BleveIndex, error) {
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

func newMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()

	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt(fieldText, textFieldMapping)
	docMapping.AddFieldMappingsAt(fieldContent, bleve.NewKeywordFieldMapping())
	docMapping.AddFieldMappingsAt(fieldLabel, bleve.NewKeywordFieldMapping())
	docMapping.AddFieldMappingsAt(fieldPosition, bleve.NewNumericFieldMapping())

	im.AddDocumentMapping("mention", docMapping)
	im.DefaultType = "mention"
	im.DefaultMapping = docMapping
	return im
}

// Replace drops every mention of contentID and indexes mentions in its place.
func (b *BleveIndex) Replace(ctx context.Context, contentID string, mentions []Mention) error {
	if err := b.Delete(ctx, contentID); err != nil {
		return err
	}
	batch := b.index.NewBatch()
	for i, m := range mentions {
		doc := map[string]interface{}{
			fieldContent:  contentID,
			fieldLabel:    m.Label,
			fieldText:     m.Text,
			fieldPosition: float64(i),
		}
		if err := batch.Index(mentionID(contentID, i), doc); err != nil {
			return fmt.Errorf("failed to index mention %d of %s: %w", i, contentID, err)
		}
		if batch.Size() >= pageSize {
			if err := b.index.Batch(batch); err != nil {
				return fmt.Errorf("failed to index mentions of %s: %w", contentID, err)
			}
			batch.Reset()
		}
	}
	if batch.Size() > 0 {
		if err := b.index.Batch(batch); err != nil {
			return fmt.Errorf("failed to index mentions of %s: %w", contentID, err)
		}
	}
	return nil
}

// Delete removes all mentions of contentID.
func (b *BleveIndex) Delete(ctx context.Context, contentID string) error {
	for {
		q := bleve.NewTermQuery(contentID)
		q.SetField(fieldContent)
		req := bleve.NewSearchRequest(q)
		req.Size = pageSize
		res, err := b.index.SearchInContext(ctx, req)
		if err != nil {
			return fmt.Errorf("Bleve search failed: %w", err)
		}
		if len(res.Hits) == 0 {
			return nil
		}
		batch := b.index.NewBatch()
		for _, hit := range res.Hits {
			batch.Delete(hit.ID)
		}
		if err := b.index.Batch(batch); err != nil {
			return fmt.Errorf("failed to delete mentions of %s: %w", contentID, err)
		}
	}
}

// Search finds mentions whose text matches query. An empty query matches
// every mention allowed by opts.
func (b *BleveIndex) Search(ctx context.Context, query string, opts SearchOptions) ([]Mention, error) {
	var clauses []blevequery.Query
	switch {
	case query == "":
	case opts.Fuzziness > 0:
		fq := bleve.NewFuzzyQuery(query)
		fq.SetFuzziness(opts.Fuzziness)
		fq.SetField(fieldText)
		clauses = append(clauses, fq)
	default:
		mq := bleve.NewMatchQuery(query)
		mq.SetField(fieldText)
		clauses = append(clauses, mq)
	}
	if opts.Label != "" {
		tq := bleve.NewTermQuery(opts.Label)
		tq.SetField(fieldLabel)
		clauses = append(clauses, tq)
	}
	if opts.ContentID != "" {
		tq := bleve.NewTermQuery(opts.ContentID)
		tq.SetField(fieldContent)
		clauses = append(clauses, tq)
	}

	var q blevequery.Query
	switch len(clauses) {
	case 0:
		q = bleve.NewMatchAllQuery()
	case 1:
		q = clauses[0]
	default:
		q = bleve.NewConjunctionQuery(clauses...)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	req := bleve.NewSearchRequest(q)
	req.Size = limit
	req.Fields = []string{fieldContent, fieldLabel, fieldText, fieldPosition}
	if query == "" {
		req.SortBy([]string{fieldContent, fieldPosition})
	}
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}

	out := make([]Mention, 0, len(res.Hits))
	for _, hit := range res.Hits {
		m := Mention{Score: hit.Score}
		m.ContentID, _ = hit.Fields[fieldContent].(string)
		m.Label, _ = hit.Fields[fieldLabel].(string)
		m.Text, _ = hit.Fields[fieldText].(string)
		if pos, ok := hit.Fields[fieldPosition].(float64); ok {
			m.Position = int(pos)
		}
		out = append(out, m)
	}
	return out, nil
}

// DocCount returns the total number of mentions in the index.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

func mentionID(contentID string, i int) string {
	return contentID + "#" + strconv.Itoa(i)
}
