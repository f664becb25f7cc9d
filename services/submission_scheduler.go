package services

import (
	"context"
	"errors"
	"time"

	"reev-api/config"
	"reev-api/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TaskScheduler queues submission activities for asynchronous processing.
type TaskScheduler interface {
	Schedule(ctx context.Context, activityID string) error
	ScheduleAfter(ctx context.Context, activityID string, delay time.Duration) error
}

const defaultTaskLease = 10 * time.Minute

// GormTaskScheduler keeps the queue in the submission_tasks table so that
// scheduled work survives restarts. Tasks whose worker stopped renewing the
// lease are handed out again, giving at-least-once delivery.
type GormTaskScheduler struct {
	db    *gorm.DB
	lease time.Duration
	now   func() time.Time
}

func NewGormTaskScheduler(db *gorm.DB, lease time.Duration) *GormTaskScheduler {
	if db == nil {
		db = config.DB
	}
	if lease <= 0 {
		lease = defaultTaskLease
	}
	return &GormTaskScheduler{db: db, lease: lease, now: time.Now}
}

func (s *GormTaskScheduler) Schedule(ctx context.Context, activityID string) error {
	return s.ScheduleAfter(ctx, activityID, 0)
}

func (s *GormTaskScheduler) ScheduleAfter(ctx context.Context, activityID string, delay time.Duration) error {
	if activityID == "" {
		return errors.New("activity id is required")
	}
	if delay < 0 {
		delay = 0
	}
	task := &models.SubmissionTask{
		ActivityID: activityID,
		Status:     models.SubmissionTaskStatusQueued,
		RunAt:      s.now().Add(delay),
	}
	return s.db.WithContext(ctx).Create(task).Error
}

// ClaimDue locks the oldest due task for workerID and marks it running. It
// returns nil when nothing is due.
func (s *GormTaskScheduler) ClaimDue(ctx context.Context, workerID string) (*models.SubmissionTask, error) {
	var claimed *models.SubmissionTask
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now()
		var task models.SubmissionTask
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("(status = ? AND run_at <= ?) OR (status = ? AND locked_at < ?)",
				models.SubmissionTaskStatusQueued, now,
				models.SubmissionTaskStatusRunning, now.Add(-s.lease)).
			Order("run_at ASC").
			First(&task).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		if err := tx.Model(&models.SubmissionTask{}).
			Where("id = ?", task.ID).
			Updates(map[string]interface{}{
				"status":    models.SubmissionTaskStatusRunning,
				"locked_by": workerID,
				"locked_at": now,
				"attempts":  gorm.Expr("attempts + 1"),
			}).Error; err != nil {
			return err
		}

		task.Status = models.SubmissionTaskStatusRunning
		task.LockedBy = &workerID
		task.LockedAt = &now
		task.Attempts++
		claimed = &task
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (s *GormTaskScheduler) Complete(ctx context.Context, taskID uint64) error {
	return s.finish(ctx, taskID, models.SubmissionTaskStatusDone, nil)
}

func (s *GormTaskScheduler) Fail(ctx context.Context, taskID uint64, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return s.finish(ctx, taskID, models.SubmissionTaskStatusFailed, &msg)
}

// Requeue puts a running task back into the queue after delay.
func (s *GormTaskScheduler) Requeue(ctx context.Context, taskID uint64, delay time.Duration) error {
	return s.db.WithContext(ctx).
		Model(&models.SubmissionTask{}).
		Where("id = ?", taskID).
		Updates(map[string]interface{}{
			"status":    models.SubmissionTaskStatusQueued,
			"run_at":    s.now().Add(delay),
			"locked_by": nil,
			"locked_at": nil,
		}).Error
}

func (s *GormTaskScheduler) finish(ctx context.Context, taskID uint64, status string, errMsg *string) error {
	updates := map[string]interface{}{
		"status":      status,
		"finished_at": s.now(),
		"last_error":  errMsg,
	}
	return s.db.WithContext(ctx).
		Model(&models.SubmissionTask{}).
		Where("id = ?", taskID).
		Updates(updates).Error
}
