package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"reev-api/config"
	"reev-api/models"

	"gorm.io/gorm"
)

// SubmissionWatchdog moves threads that have been waiting on the registry for
// too long into the timeout state.
type SubmissionWatchdog struct {
	db      *gorm.DB
	timeout time.Duration
	now     func() time.Time
	logger  *log.Logger
}

func NewSubmissionWatchdog(db *gorm.DB, timeout time.Duration, logger *log.Logger) *SubmissionWatchdog {
	if db == nil {
		db = config.DB
	}
	if logger == nil {
		logger = log.Default()
	}
	return &SubmissionWatchdog{db: db, timeout: timeout, now: time.Now, logger: logger}
}

// Enabled reports whether a timeout is configured.
func (w *SubmissionWatchdog) Enabled() bool {
	return w != nil && w.timeout > 0
}

// Sweep times out every waiting thread whose latest create activity is older
// than the configured timeout, together with its open retrieve activities.
// It returns the number of threads changed.
func (w *SubmissionWatchdog) Sweep(ctx context.Context) (int, error) {
	if !w.Enabled() {
		return 0, nil
	}
	now := w.now()
	cutoff := now.Add(-w.timeout)

	db := w.db.WithContext(ctx)
	lastCreate := db.Model(&models.SubmissionActivity{}).
		Select("submissionthread_id").
		Where("kind = ?", models.ActivityKindCreate).
		Group("submissionthread_id").
		Having("MAX(created_at) < ?", cutoff)

	var threadIDs []string
	if err := db.Model(&models.SubmissionThread{}).
		Where("status = ? AND id IN (?)", models.SubmissionStatusWaiting, lastCreate).
		Pluck("id", &threadIDs).Error; err != nil {
		return 0, fmt.Errorf("find stale submission threads: %w", err)
	}

	timedOut := 0
	for _, threadID := range threadIDs {
		changed, err := w.timeoutThread(ctx, threadID, now)
		if err != nil {
			return timedOut, fmt.Errorf("time out submission thread %s: %w", threadID, err)
		}
		if changed {
			timedOut++
			w.logger.Printf("submission thread %s timed out after %s", threadID, w.timeout)
		}
	}
	return timedOut, nil
}

func (w *SubmissionWatchdog) timeoutThread(ctx context.Context, threadID string, now time.Time) (bool, error) {
	changed := false
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.SubmissionThread{}).
			Where("id = ? AND status = ?", threadID, models.SubmissionStatusWaiting).
			Update("status", models.SubmissionStatusTimeout)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		changed = true

		return tx.Model(&models.SubmissionActivity{}).
			Where("submissionthread_id = ? AND kind = ? AND status IN ?", threadID, models.ActivityKindRetrieve, []models.SubmissionStatus{
				models.SubmissionStatusInitial,
				models.SubmissionStatusWaiting,
				models.SubmissionStatusSubmitted,
			}).
			Updates(map[string]interface{}{
				"status":             models.SubmissionStatusTimeout,
				"response_status":    models.SubmissionStatusTimeout,
				"response_timestamp": now,
			}).Error
	})
	return changed, err
}
