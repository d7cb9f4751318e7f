// Package procedure implements the analysis procedures that run against a
// content record: reading text into per-segment model artifacts, and tagging
// entities into a single markup document.
package procedure

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hyperjump/docanalysis/internal/entityindex"
	"github.com/hyperjump/docanalysis/internal/extract"
	"github.com/hyperjump/docanalysis/internal/models"
	"github.com/hyperjump/docanalysis/internal/nlp"
	"github.com/hyperjump/docanalysis/internal/segment"
	"github.com/hyperjump/docanalysis/internal/storage"
)

var (
	// ErrNoContent is returned when the source text yields no segments.
	ErrNoContent = errors.New("no content")
	// ErrPrecondition is returned when a procedure's inputs are not in place.
	ErrPrecondition = errors.New("precondition not met")
	// ErrUnknownProcedure is returned for a procedure key with no implementation.
	ErrUnknownProcedure = errors.New("unknown procedure")
)

// Languages resolves language names to loadable models.
type Languages interface {
	Names(ctx context.Context) ([]string, error)
	Resolve(ctx context.Context, name string) (models.LanguageInfo, error)
	Ensure(ctx context.Context, info models.LanguageInfo) (nlp.Model, error)
}

// EntityIndex receives the mentions found by entity tagging.
type EntityIndex interface {
	Replace(ctx context.Context, contentID string, mentions []entityindex.Mention) error
}

// Config holds the settings procedures run with.
type Config struct {
	Layout          storage.Layout
	Segment         segment.Options
	DefaultLanguage string
}

// Runner executes jobs.
type Runner struct {
	store     storage.Storage
	languages Languages
	extractor *extract.Extractor
	entities  EntityIndex
	cfg       Config
	logger    *zap.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets a logger for job lifecycle events.
func WithLogger(l *zap.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// WithEntityIndex makes entity tagging publish its mentions to idx.
func WithEntityIndex(idx EntityIndex) RunnerOption {
	return func(r *Runner) { r.entities = idx }
}

// NewRunner creates a Runner.
func NewRunner(store storage.Storage, languages Languages, extractor *extract.Extractor, cfg Config, opts ...RunnerOption) *Runner {
	r := &Runner{
		store:     store,
		languages: languages,
		extractor: extractor,
		cfg:       cfg,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Known reports whether key names an implemented procedure.
func Known(key string) bool {
	return key == models.ProcedureReadText || key == models.ProcedureTagEntities
}

// Execute runs job id to a terminal state. A job that is already terminal is
// left alone. The returned error covers only failures to record the outcome;
// a procedure failure is recorded on the job and not returned.
func (r *Runner) Execute(ctx context.Context, id string) error {
	job, err := OpenJob(ctx, r.store, id, r.logger)
	if err != nil {
		return err
	}
	if job.Status().Terminal() {
		return nil
	}
	if err := job.Start(ctx); err != nil {
		return err
	}

	fragment, runErr := r.run(ctx, job)
	// Record the outcome even when ctx was cancelled mid-run.
	recordCtx := context.WithoutCancel(ctx)
	if runErr != nil {
		return job.Fail(recordCtx, runErr)
	}
	return job.Complete(recordCtx, fragment)
}

// Fail records err on job id without running it.
func (r *Runner) Fail(ctx context.Context, id string, err error) error {
	job, oerr := OpenJob(ctx, r.store, id, r.logger)
	if oerr != nil {
		return oerr
	}
	return job.Fail(ctx, err)
}

func (r *Runner) run(ctx context.Context, job *Job) (fragment models.ResultFragment, err error) {
	defer func() {
		if p := recover(); p != nil {
			fragment = nil
			err = multierr.Append(err, fmt.Errorf("procedure %s panicked: %v", job.Procedure(), p))
		}
	}()
	switch job.Procedure() {
	case models.ProcedureReadText:
		res, err := r.ReadText(ctx, job)
		if err != nil {
			return nil, err
		}
		return res, nil
	case models.ProcedureTagEntities:
		res, err := r.TagEntities(ctx, job)
		if err != nil {
			return nil, err
		}
		return res, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProcedure, job.Procedure())
	}
}
