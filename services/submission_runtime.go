package services

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"reev-api/config"

	"gorm.io/gorm"
)

// SubmissionRuntime holds the submission components wired from Settings. The
// API server and the worker command build it the same way.
type SubmissionRuntime struct {
	Cipher    *TokenCipher
	Store     *GormSubmissionStore
	Scheduler *GormTaskScheduler
	Handler   *SubmissionActivityHandler
	Worker    *SubmissionWorker
	Watchdog  *SubmissionWatchdog

	sweepInterval time.Duration
	logger        *log.Logger
}

func NewSubmissionRuntime(db *gorm.DB, settings *config.Settings) (*SubmissionRuntime, error) {
	if db == nil {
		db = config.DB
	}
	cipher, err := NewTokenCipher(settings.TokenEncryptionKey)
	if err != nil {
		return nil, err
	}
	if cipher == nil && settings.IsProduction() {
		log.Printf("Warning: TOKEN_ENCRYPTION_KEY is not set, ClinVar API tokens are stored unsealed")
	}

	httpClient := &http.Client{Timeout: settings.ClinVarAPITimeout}
	store := NewGormSubmissionStore(db)
	scheduler := NewGormTaskScheduler(db, settings.TaskLease)
	handler := NewSubmissionActivityHandler(store, scheduler,
		NewClinVarClientFactory(settings.ClinVarAPIURL, cipher, httpClient),
		settings.RetryInterval)

	logger := config.ComponentLogger("submission-worker")
	worker := NewSubmissionWorker(scheduler, store, handler, SubmissionWorkerOptions{
		Concurrency:   settings.WorkerConcurrency,
		PollInterval:  settings.PollInterval,
		RetryInterval: settings.RetryInterval,
		Logger:        logger,
	})

	return &SubmissionRuntime{
		Cipher:        cipher,
		Store:         store,
		Scheduler:     scheduler,
		Handler:       handler,
		Worker:        worker,
		Watchdog:      NewSubmissionWatchdog(db, settings.SubmissionTimeout, config.ComponentLogger("submission-watchdog")),
		sweepInterval: settings.SweepInterval,
		logger:        logger,
	}, nil
}

// ProcessActivity releases and runs one activity right away, bypassing the
// queue.
func (r *SubmissionRuntime) ProcessActivity(ctx context.Context, activityID string) error {
	if _, err := r.Store.ReleaseActivity(ctx, activityID); err != nil {
		return fmt.Errorf("release activity %s: %w", activityID, err)
	}
	r.Handler.Run(ctx, activityID)
	return nil
}

// RunSweeper calls Watchdog.Sweep every sweep interval until ctx is done. It
// returns at once when no timeout is configured.
func (r *SubmissionRuntime) RunSweeper(ctx context.Context) {
	if !r.Watchdog.Enabled() || r.sweepInterval <= 0 {
		return
	}
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Watchdog.Sweep(ctx); err != nil && ctx.Err() == nil {
				r.logger.Printf("submission sweep failed: %v", err)
			}
		}
	}
}
