package procedure

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hyperjump/docanalysis/internal/models"
	"github.com/hyperjump/docanalysis/internal/nlp"
	"github.com/hyperjump/docanalysis/internal/segment"
)

// modelLoadedPercent is the progress recorded once the model is ready.
const modelLoadedPercent = 10

// ReadText extracts the record's source text, splits it into segments, runs
// the language model over each segment in order, and writes one artifact per
// segment. The artifact directory is cleared first so artifacts of an
// earlier run never mix with new ones.
func (r *Runner) ReadText(ctx context.Context, job *Job) (*models.ReadTextResult, error) {
	content := job.Content()

	language := job.Param("language")
	if language == "" {
		language = r.cfg.DefaultLanguage
	}
	info, err := r.languages.Resolve(ctx, language)
	if err != nil {
		return nil, err
	}
	job.Report(ctx, "Using %s model %s %s.", info.Name, info.Model, info.Version)

	dir, err := r.cfg.Layout.ResetEngineDir(content.Path)
	if err != nil {
		return nil, err
	}

	job.Report(ctx, "Reading text from %s...", content.Name)
	text, err := r.extractor.Extract(content.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("load source text of %s: %w", content.Name, err)
	}
	segments := segment.Split(text, r.cfg.Segment)
	if len(segments) == 0 {
		return nil, fmt.Errorf("%s: %w", content.Name, ErrNoContent)
	}
	job.Report(ctx, "Split text into %d segment(s).", len(segments))

	model, err := r.languages.Ensure(ctx, info)
	if err != nil {
		return nil, err
	}
	if err := job.SetProgress(ctx, modelLoadedPercent); err != nil {
		return nil, err
	}

	files := make([]string, 0, len(segments))
	for i := range segments {
		if err := ctx.Err(); err != nil {
			return nil, multierr.Append(fmt.Errorf("read text interrupted at segment %d of %d", i+1, len(segments)), err)
		}
		path := r.cfg.Layout.ArtifactPath(content.Path, content.ID, i)
		if err := analyzeSegment(ctx, model, segments[i].Text, path); err != nil {
			return nil, fmt.Errorf("segment %d of %d: %w", i+1, len(segments), err)
		}
		files = append(files, path)
		if err := job.SetProgress(ctx, segmentPercent(i, len(segments))); err != nil {
			return nil, err
		}
	}
	r.logger.Debug("read text finished", zap.String("content", content.ID), zap.String("dir", dir), zap.Int("segments", len(files)))
	job.Report(ctx, "Wrote %d artifact(s).", len(files))

	return &models.ReadTextResult{
		LanguageInfo: info,
		NLPFiles:     files,
		Segments:     len(files),
	}, nil
}

// analyzeSegment keeps the analyzed doc scoped to one call so it can be
// collected before the next segment is analyzed.
func analyzeSegment(ctx context.Context, model nlp.Model, text, path string) error {
	doc, err := model.Analyze(ctx, text)
	if err != nil {
		return fmt.Errorf("analyze: %w", err)
	}
	return nlp.WriteDoc(path, doc, model.Vocab())
}

// segmentPercent is the progress after segment i of n has been written.
func segmentPercent(i, n int) int {
	return int(math.Round(100 * float64(i+1) / float64(n)))
}
