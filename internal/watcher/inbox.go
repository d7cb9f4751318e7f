package watcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hyperjump/docanalysis/internal/fileid"
	"github.com/hyperjump/docanalysis/internal/models"
	"github.com/hyperjump/docanalysis/internal/storage"
)

// Submitter queues procedure jobs.
type Submitter interface {
	Submit(ctx context.Context, procedure, contentID string, params map[string]string) (*models.Job, error)
}

// Inbox registers files as content records and queues their analysis.
type Inbox struct {
	store    storage.Storage
	submit   Submitter
	layout   storage.Layout
	language string
	logger   *zap.Logger
}

// NewInbox creates an Inbox. Read text jobs it queues use language.
func NewInbox(store storage.Storage, submit Submitter, layout storage.Layout, language string, logger *zap.Logger) *Inbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Inbox{store: store, submit: submit, layout: layout, language: language, logger: logger}
}

// Ingest registers path, unless a record for it exists, and queues a read
// text job. The content ID is derived from the absolute path, so a changed
// file is re-read into its existing record.
func (in *Inbox) Ingest(ctx context.Context, path string) (*models.Job, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	id := fileid.ContentID(abs)
	if _, err := in.store.GetContent(ctx, id); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		record := &models.ContentRecord{
			ID:         id,
			Name:       abs,
			SourcePath: abs,
			Path:       in.layout.ContentDir(id),
		}
		if err := in.store.CreateContent(ctx, record); err != nil && !errors.Is(err, storage.ErrExists) {
			return nil, fmt.Errorf("register %s: %w", abs, err)
		}
		in.logger.Info("content registered", zap.String("content", id), zap.String("path", abs))
	}

	var params map[string]string
	if in.language != "" {
		params = map[string]string{"language": in.language}
	}
	job, err := in.submit.Submit(ctx, models.ProcedureReadText, id, params)
	if err != nil {
		return nil, fmt.Errorf("queue read text for %s: %w", abs, err)
	}
	return job, nil
}

// Handle is a Watcher callback. Errors are logged.
func (in *Inbox) Handle(path string) {
	job, err := in.Ingest(context.Background(), path)
	if err != nil {
		in.logger.Warn("inbox file not queued", zap.String("path", path), zap.Error(err))
		return
	}
	in.logger.Debug("inbox file queued", zap.String("path", path), zap.String("job", job.ID))
}
