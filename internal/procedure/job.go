package procedure

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hyperjump/docanalysis/internal/models"
	"github.com/hyperjump/docanalysis/internal/storage"
)

// Job is the handle a running procedure uses to read its job and content
// record and to report back. Progress only moves forward, and only the
// first terminal call (Complete or Fail) takes effect.
type Job struct {
	store   storage.Storage
	logger  *zap.Logger
	job     *models.Job
	content *models.ContentRecord

	mu       sync.Mutex
	percent  int
	terminal bool
}

// OpenJob loads job id and its content record.
func OpenJob(ctx context.Context, store storage.Storage, id string, logger *zap.Logger) (*Job, error) {
	job, err := store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	content, err := store.GetContent(ctx, job.ContentID)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Job{
		store:    store,
		logger:   logger.With(zap.String("job", job.ID), zap.String("procedure", job.Procedure), zap.String("content", content.ID)),
		job:      job,
		content:  content,
		percent:  job.PercentComplete,
		terminal: job.Status.Terminal(),
	}, nil
}

// ID returns the job id.
func (j *Job) ID() string { return j.job.ID }

// Procedure returns the procedure key the job runs.
func (j *Job) Procedure() string { return j.job.Procedure }

// Status returns the job status as last written through this handle.
func (j *Job) Status() models.JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.job.Status
}

// Param returns a stored job parameter.
func (j *Job) Param(name string) string { return j.job.Param(name) }

// Content returns the target content record as loaded when the job was opened.
func (j *Job) Content() *models.ContentRecord { return j.content }

// Percent returns the last recorded completion percentage.
func (j *Job) Percent() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.percent
}

// Start marks the job running.
func (j *Job) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.terminal {
		return nil
	}
	if _, err := j.store.StartJob(ctx, j.job.ID); err != nil {
		return fmt.Errorf("start job: %w", err)
	}
	j.job.Status = models.JobStatusRunning
	j.logger.Debug("job started")
	return nil
}

// SetProgress records percent if it is higher than the current value.
func (j *Job) SetProgress(ctx context.Context, percent int) error {
	if percent > 100 {
		percent = 100
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.terminal || percent <= j.percent {
		return nil
	}
	if err := j.store.SetJobProgress(ctx, j.job.ID, percent); err != nil {
		return fmt.Errorf("record progress: %w", err)
	}
	j.percent = percent
	return nil
}

// Report appends a line to the job's progress log. Failures to write the log
// are logged and otherwise ignored.
func (j *Job) Report(ctx context.Context, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	j.logger.Debug("job report", zap.String("message", msg))
	if err := j.store.AppendJobReport(ctx, j.job.ID, msg); err != nil {
		j.logger.Warn("failed to append job report", zap.Error(err))
	}
}

// Complete records fragment on the content record and marks the job
// complete in one step.
func (j *Job) Complete(ctx context.Context, fragment models.ResultFragment) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.terminal {
		return nil
	}
	if fragment.ProcedureKey() != j.job.Procedure {
		return fmt.Errorf("job %s runs %s but produced a %s result", j.job.ID, j.job.Procedure, fragment.ProcedureKey())
	}
	applied, err := j.store.CompleteJob(ctx, j.job.ID, fragment)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	j.terminal = true
	if applied {
		j.job.Status = models.JobStatusComplete
		j.percent = 100
		j.logger.Info("job complete")
	}
	return nil
}

// Fail marks the job errored. Every error combined into err becomes one
// paragraph of the job's error message.
func (j *Job) Fail(ctx context.Context, err error) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.terminal {
		return nil
	}
	msg := ErrorMessage(err)
	applied, serr := j.store.FailJob(ctx, j.job.ID, msg)
	if serr != nil {
		return fmt.Errorf("fail job: %w", serr)
	}
	j.terminal = true
	if applied {
		j.job.Status = models.JobStatusError
		j.job.Error = msg
		j.logger.Warn("job failed", zap.String("error", msg))
	}
	return nil
}

// ErrorMessage renders the errors combined in err, separated by blank lines.
func ErrorMessage(err error) string {
	errs := multierr.Errors(err)
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, e.Error())
	}
	return strings.Join(parts, "\n\n")
}
