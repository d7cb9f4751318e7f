package procedure

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"go.uber.org/multierr"

	"github.com/hyperjump/docanalysis/internal/entityindex"
	"github.com/hyperjump/docanalysis/internal/markup"
	"github.com/hyperjump/docanalysis/internal/models"
	"github.com/hyperjump/docanalysis/internal/nlp"
)

// TagEntities replays the artifacts recorded by ReadText, in order, into a
// markup document with every entity mention wrapped in a name element. The
// document is written to a temporary file and moved over the markup artifact
// only when every segment was written and the mentions were indexed.
func (r *Runner) TagEntities(ctx context.Context, job *Job) (*models.TagEntitiesResult, error) {
	content := job.Content()
	read := content.Procedures.ReadText
	if read == nil {
		return nil, fmt.Errorf("%w: %s has not completed for %s", ErrPrecondition, models.ProcedureReadText, content.Name)
	}
	dir := r.cfg.Layout.EngineDir(content.Path)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: artifact directory %s is missing", ErrPrecondition, dir)
	}

	job.Report(ctx, "Attempting to load parsed NLP data from %s...", content.Name)
	model, err := r.languages.Ensure(ctx, read.LanguageInfo)
	if err != nil {
		return nil, err
	}

	out := r.cfg.Layout.TaggedTextPath(content.Path, content.ID)
	tmp, err := os.CreateTemp(dir, ".tagged-*")
	if err != nil {
		return nil, fmt.Errorf("create markup file: %w", err)
	}
	tmpName := tmp.Name()
	discard := func(cause error) error {
		tmp.Close()
		if rmErr := os.Remove(tmpName); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			cause = multierr.Append(cause, fmt.Errorf("remove partial markup: %w", rmErr))
		}
		return cause
	}

	result := &models.TagEntitiesResult{TaggedTextFile: out, EntityCounts: make(map[string]int)}
	var mentions []entityindex.Mention
	w := markup.NewWriter(tmp)
	for i, file := range read.NLPFiles {
		if err := ctx.Err(); err != nil {
			return nil, discard(err)
		}
		stats, err := replaySegment(w, file, model.Vocab())
		if err != nil {
			return nil, discard(fmt.Errorf("write tagged text: segment %d of %d: %w", i+1, len(read.NLPFiles), err))
		}
		for label, n := range stats.Entities {
			result.EntityCounts[label] += n
		}
		for _, m := range stats.Mentions {
			mentions = append(mentions, entityindex.Mention{ContentID: content.ID, Label: m.Label, Text: m.Text, Position: len(mentions)})
		}
		if len(stats.Skipped) > 0 {
			result.SkippedSpans += len(stats.Skipped)
			job.Report(ctx, "Segment %d: skipped %d overlapping or out-of-range entity span(s): %s", i+1, len(stats.Skipped), describeSpans(stats.Skipped))
		}
		if err := job.SetProgress(ctx, segmentPercent(i, len(read.NLPFiles))); err != nil {
			return nil, discard(err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, discard(fmt.Errorf("write tagged text: %w", err))
	}
	if err := tmp.Close(); err != nil {
		return nil, discard(fmt.Errorf("write tagged text: %w", err))
	}
	if r.entities != nil {
		if err := r.entities.Replace(ctx, content.ID, mentions); err != nil {
			return nil, discard(fmt.Errorf("index entity mentions: %w", err))
		}
	}
	if err := os.Rename(tmpName, out); err != nil {
		return nil, discard(fmt.Errorf("write tagged text: %w", err))
	}
	job.Report(ctx, "Wrote tagged text with %d entit%s.", len(mentions), plural(len(mentions), "y", "ies"))
	return result, nil
}

func replaySegment(w *markup.Writer, path string, vocab *nlp.Vocab) (markup.SegmentStats, error) {
	doc, err := nlp.ReadDoc(path, vocab)
	if err != nil {
		return markup.SegmentStats{}, err
	}
	return w.WriteSegment(doc)
}

func describeSpans(spans []nlp.Span) string {
	parts := make([]string, len(spans))
	for i, s := range spans {
		parts[i] = fmt.Sprintf("%s[%d,%d)", s.Label, s.Start, s.End)
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
