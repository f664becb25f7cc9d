package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"reev-api/models"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type taskQueue interface {
	ClaimDue(ctx context.Context, workerID string) (*models.SubmissionTask, error)
	Complete(ctx context.Context, taskID uint64) error
	Fail(ctx context.Context, taskID uint64, cause error) error
	Requeue(ctx context.Context, taskID uint64, delay time.Duration) error
}

type activityReleaser interface {
	ReleaseActivity(ctx context.Context, activityID string) (bool, error)
}

type activityRunner interface {
	Run(ctx context.Context, activityID string)
}

// SubmissionWorkerOptions configures a SubmissionWorker.
type SubmissionWorkerOptions struct {
	Concurrency   int
	PollInterval  time.Duration
	RetryInterval time.Duration
	Logger        *log.Logger
}

// SubmissionWorker drains the submission task queue with a fixed number of
// loops, each handing one activity at a time to the handler.
type SubmissionWorker struct {
	queue    taskQueue
	releaser activityReleaser
	runner   activityRunner

	id            string
	concurrency   int
	pollInterval  time.Duration
	retryInterval time.Duration
	logger        *log.Logger
}

func NewSubmissionWorker(queue taskQueue, releaser activityReleaser, runner activityRunner, opts SubmissionWorkerOptions) *SubmissionWorker {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultSubmissionRetryInterval
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &SubmissionWorker{
		queue:         queue,
		releaser:      releaser,
		runner:        runner,
		id:            uuid.NewString()[:8],
		concurrency:   opts.Concurrency,
		pollInterval:  opts.PollInterval,
		retryInterval: opts.RetryInterval,
		logger:        opts.Logger,
	}
}

// Run blocks until ctx is canceled. A run that already started is allowed to
// finish its database writes.
func (w *SubmissionWorker) Run(ctx context.Context) error {
	w.logger.Printf("submission worker %s starting %d loops (poll %s)", w.id, w.concurrency, w.pollInterval)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		workerID := fmt.Sprintf("%s-%d", w.id, i)
		g.Go(func() error {
			w.loop(ctx, workerID)
			return nil
		})
	}
	err := g.Wait()
	w.logger.Printf("submission worker %s stopped", w.id)
	return err
}

func (w *SubmissionWorker) loop(ctx context.Context, workerID string) {
	for {
		if ctx.Err() != nil {
			return
		}
		processed, err := w.ProcessNext(ctx, workerID)
		if err != nil && ctx.Err() == nil {
			w.logger.Printf("worker %s: %v", workerID, err)
		}
		if processed && err == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.pollInterval):
		}
	}
}

// ProcessNext claims one due task and runs its activity. It reports false when
// no task was due.
func (w *SubmissionWorker) ProcessNext(ctx context.Context, workerID string) (bool, error) {
	task, err := w.queue.ClaimDue(ctx, workerID)
	if err != nil {
		return false, fmt.Errorf("claim submission task: %w", err)
	}
	if task == nil {
		return false, nil
	}

	// The queue bookkeeping below must survive shutdown of the loop.
	runCtx := persistentContext(ctx)

	if _, err := w.releaser.ReleaseActivity(runCtx, task.ActivityID); err != nil {
		return true, w.handleReleaseError(runCtx, task, err)
	}

	w.runner.Run(runCtx, task.ActivityID)

	if err := w.queue.Complete(runCtx, task.ID); err != nil {
		return true, fmt.Errorf("complete submission task %d: %w", task.ID, err)
	}
	submissionTasks.WithLabelValues("done").Inc()
	return true, nil
}

func (w *SubmissionWorker) handleReleaseError(ctx context.Context, task *models.SubmissionTask, cause error) error {
	switch {
	case errors.Is(cause, ErrThreadBusy):
		w.logger.Printf("thread of activity %s is busy, retrying task %d in %s", task.ActivityID, task.ID, w.retryInterval)
		submissionTasks.WithLabelValues("requeued").Inc()
		return w.queue.Requeue(ctx, task.ID, w.retryInterval)
	case errors.Is(cause, ErrActivityNotFound):
		w.logger.Printf("activity %s of task %d no longer exists, dropping", task.ActivityID, task.ID)
		submissionTasks.WithLabelValues("dropped").Inc()
		return w.queue.Complete(ctx, task.ID)
	}

	submissionTasks.WithLabelValues("failed").Inc()
	if err := w.queue.Fail(ctx, task.ID, cause); err != nil {
		return fmt.Errorf("fail submission task %d: %w (release error: %v)", task.ID, err, cause)
	}
	return fmt.Errorf("release activity %s: %w", task.ActivityID, cause)
}

func persistentContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return context.WithoutCancel(ctx)
}
