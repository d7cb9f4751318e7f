// Package dispatch queues procedure jobs and runs them on a fixed pool of
// workers. Jobs that target the same content record run one at a time, in
// the order they were submitted.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/docanalysis/internal/models"
	"github.com/hyperjump/docanalysis/internal/procedure"
	"github.com/hyperjump/docanalysis/internal/storage"
)

// ErrClosed is returned by Submit after Shutdown.
var ErrClosed = errors.New("dispatcher is shut down")

const (
	defaultWorkers   = 2
	defaultQueueSize = 64
)

// Executor runs a stored job to a terminal state.
type Executor interface {
	Execute(ctx context.Context, id string) error
	Fail(ctx context.Context, id string, err error) error
}

// Config sizes the worker pool and its queue.
type Config struct {
	Workers   int
	QueueSize int
}

type task struct {
	jobID     string
	contentID string
}

// Dispatcher owns the job queue.
type Dispatcher struct {
	store  storage.Storage
	exec   Executor
	cfg    Config
	logger *zap.Logger

	queue chan task
	slots chan struct{}
	lanes *lanes

	mu      sync.RWMutex
	closed  bool
	started bool
	group   *errgroup.Group
	cancel  context.CancelFunc
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

// New creates a Dispatcher. Jobs submitted before Start wait in the queue.
func New(store storage.Storage, exec Executor, cfg Config, opts ...DispatcherOption) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	d := &Dispatcher{
		store:  store,
		exec:   exec,
		cfg:    cfg,
		logger: zap.NewNop(),
		queue:  make(chan task, cfg.QueueSize),
		slots:  make(chan struct{}, cfg.QueueSize),
		lanes:  newLanes(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches the workers. Cancelling ctx stops work in progress; queued
// jobs are then failed without running.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}
	d.started = true
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.group, runCtx = errgroup.WithContext(runCtx)
	for i := 0; i < d.cfg.Workers; i++ {
		worker := i
		d.group.Go(func() error {
			d.work(runCtx, worker)
			return nil
		})
	}
	d.logger.Debug("dispatcher started", zap.Int("workers", d.cfg.Workers), zap.Int("queue_size", d.cfg.QueueSize))
}

// Submit records a queued job for procedureKey on content contentID and
// enqueues it. It blocks while the queue is full until ctx is done, in
// which case the job is recorded as failed. A job whose record already has
// a job queued or running waits behind it and is picked up by the worker
// that finishes the earlier job.
func (d *Dispatcher) Submit(ctx context.Context, procedureKey, contentID string, params map[string]string) (*models.Job, error) {
	if !procedure.Known(procedureKey) {
		return nil, fmt.Errorf("%w: %q", procedure.ErrUnknownProcedure, procedureKey)
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, ErrClosed
	}

	if _, err := d.store.GetContent(ctx, contentID); err != nil {
		return nil, err
	}
	job := &models.Job{
		ID:        uuid.New().String(),
		ContentID: contentID,
		Procedure: procedureKey,
		Params:    params,
	}
	if err := d.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	select {
	case d.slots <- struct{}{}:
	case <-ctx.Done():
		err := fmt.Errorf("job was not queued: %w", ctx.Err())
		if ferr := d.exec.Fail(context.WithoutCancel(ctx), job.ID, err); ferr != nil {
			d.logger.Error("failed to record unqueued job", zap.String("job", job.ID), zap.Error(ferr))
		}
		return nil, err
	}
	t := task{jobID: job.ID, contentID: contentID}
	if d.lanes.enter(t) {
		// Every task in the channel holds a slot, so this never blocks.
		d.queue <- t
	}
	d.logger.Debug("job queued", zap.String("job", job.ID), zap.String("procedure", procedureKey), zap.String("content", contentID))
	return job, nil
}

// Shutdown stops accepting jobs and waits for the queue to drain. When ctx
// expires first, running jobs are cancelled and recorded as failed.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	group, cancel := d.group, d.cancel
	d.mu.Unlock()

	if group == nil {
		d.failQueued()
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- group.Wait() }()
	select {
	case err := <-done:
		cancel()
		return err
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}
}

func (d *Dispatcher) work(ctx context.Context, worker int) {
	for t := range d.queue {
		d.runLane(t, func(t task) {
			if err := ctx.Err(); err != nil {
				d.fail(ctx, t.jobID, fmt.Errorf("dispatcher stopped before the job ran: %w", err))
				return
			}
			d.run(ctx, worker, t)
		})
	}
}

// runLane handles t and then every task that queued up behind it on the
// same content record.
func (d *Dispatcher) runLane(t task, handle func(task)) {
	for {
		<-d.slots
		handle(t)
		next, ok := d.lanes.leave(t.contentID)
		if !ok {
			return
		}
		t = next
	}
}

func (d *Dispatcher) run(ctx context.Context, worker int, t task) {
	defer func() {
		if p := recover(); p != nil {
			d.fail(ctx, t.jobID, fmt.Errorf("job panicked: %v", p))
		}
	}()

	log := d.logger.With(zap.Int("worker", worker), zap.String("job", t.jobID))
	log.Debug("job picked up")
	if err := d.exec.Execute(ctx, t.jobID); err != nil {
		log.Error("failed to record job outcome", zap.Error(err))
	}
}

func (d *Dispatcher) fail(ctx context.Context, id string, err error) {
	if ferr := d.exec.Fail(context.WithoutCancel(ctx), id, err); ferr != nil {
		d.logger.Error("failed to record job failure", zap.String("job", id), zap.Error(ferr))
	}
}

func (d *Dispatcher) failQueued() {
	for t := range d.queue {
		d.runLane(t, func(t task) { d.fail(context.Background(), t.jobID, ErrClosed) })
	}
}

// lanes tracks which content records have a job queued or running, and the
// tasks waiting behind that job in submission order.
type lanes struct {
	mu      sync.Mutex
	waiting map[string][]task
}

func newLanes() *lanes {
	return &lanes{waiting: make(map[string][]task)}
}

// enter reports whether t's record was idle. Otherwise t is parked behind
// the record's current job.
func (l *lanes) enter(t task) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if q, busy := l.waiting[t.contentID]; busy {
		l.waiting[t.contentID] = append(q, t)
		return false
	}
	l.waiting[t.contentID] = nil
	return true
}

// leave hands the record to its next parked task, or marks it idle.
func (l *lanes) leave(contentID string) (task, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	q := l.waiting[contentID]
	if len(q) == 0 {
		delete(l.waiting, contentID)
		return task{}, false
	}
	l.waiting[contentID] = q[1:]
	return q[0], true
}
