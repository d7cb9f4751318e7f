// Package storage defines the persistence interface for content records and procedure jobs.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/docanalysis/internal/models"
)

var (
	// ErrNotFound is returned when a content record or job does not exist.
	ErrNotFound = errors.New("not found")
	// ErrExists is returned when creating a content record whose id or name is taken.
	ErrExists = errors.New("already exists")
)

// Storage defines content record and job persistence operations.
type Storage interface {
	// Content operations
	CreateContent(ctx context.Context, c *models.ContentRecord) error
	GetContent(ctx context.Context, id string) (*models.ContentRecord, error)
	ListContent(ctx context.Context, offset, limit int) ([]*models.ContentRecord, error)

	// Job operations
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
	ListJobs(ctx context.Context, contentID string) ([]*models.Job, error)

	// Job transitions. Transitions on a terminal job are no-ops; the
	// returned bool reports whether the call changed anything.
	StartJob(ctx context.Context, id string) (bool, error)
	SetJobProgress(ctx context.Context, id string, percent int) error
	AppendJobReport(ctx context.Context, id, message string) error
	// CompleteJob records fragment on the job's content record and marks the
	// job complete in one transaction.
	CompleteJob(ctx context.Context, id string, fragment models.ResultFragment) (bool, error)
	FailJob(ctx context.Context, id, message string) (bool, error)

	// Stats
	CountContent(ctx context.Context) (int64, error)
	CountJobs(ctx context.Context, status models.JobStatus) (int64, error)

	Close() error
}
