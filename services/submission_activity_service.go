package services

import (
	"context"
	"fmt"
	"log"

	"reev-api/config"
	"reev-api/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type SubmissionActivityInput struct {
	Kind           models.ActivityKind
	Status         models.SubmissionStatus
	RequestPayload datatypes.JSON
}

// SubmissionActivityUpdate changes an activity that has not been picked up
// yet. Nil fields are left unchanged.
type SubmissionActivityUpdate struct {
	Status         *models.SubmissionStatus
	RequestPayload datatypes.JSON
}

// SubmissionActivityService is the API side of activities. Moving an activity
// into waiting hands it to the task scheduler.
type SubmissionActivityService struct {
	db        *gorm.DB
	scheduler TaskScheduler
}

func NewSubmissionActivityService(db *gorm.DB, scheduler TaskScheduler) *SubmissionActivityService {
	if db == nil {
		db = config.DB
	}
	return &SubmissionActivityService{db: db, scheduler: scheduler}
}

func (s *SubmissionActivityService) ListByThread(ctx context.Context, ownerID, threadID string) ([]models.SubmissionActivity, error) {
	db := s.db.WithContext(ctx)
	if _, err := loadOwnedThread(db, ownerID, threadID); err != nil {
		return nil, err
	}
	var activities []models.SubmissionActivity
	if err := db.Where("submissionthread_id = ?", threadID).
		Order("created_at ASC").
		Find(&activities).Error; err != nil {
		return nil, err
	}
	return activities, nil
}

func (s *SubmissionActivityService) Get(ctx context.Context, ownerID, id string) (*models.SubmissionActivity, error) {
	return loadOwnedActivity(s.db.WithContext(ctx), ownerID, id)
}

func (s *SubmissionActivityService) Create(ctx context.Context, ownerID, threadID string, input SubmissionActivityInput) (*models.SubmissionActivity, error) {
	if !input.Kind.Valid() {
		return nil, invalidField("kind", "unknown activity kind %q", input.Kind)
	}
	if input.Status == "" {
		input.Status = models.SubmissionStatusInitial
	}
	if err := validateRequestedStatus(input.Status); err != nil {
		return nil, err
	}
	if input.Kind == models.ActivityKindCreate && len(input.RequestPayload) == 0 {
		return nil, invalidField("request_payload", "is required for %s activities", models.ActivityKindCreate)
	}

	activity := &models.SubmissionActivity{
		SubmissionThreadID: threadID,
		Kind:               input.Kind,
		Status:             input.Status,
		RequestPayload:     input.RequestPayload,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadOwnedThread(tx, ownerID, threadID); err != nil {
			return err
		}
		return tx.Create(activity).Error
	})
	if err != nil {
		return nil, err
	}

	if activity.Status == models.SubmissionStatusWaiting {
		if err := s.schedule(ctx, activity, models.SubmissionStatusInitial); err != nil {
			return nil, err
		}
	}
	return activity, nil
}

func (s *SubmissionActivityService) Update(ctx context.Context, ownerID, id string, input SubmissionActivityUpdate) (*models.SubmissionActivity, error) {
	var activity *models.SubmissionActivity
	var previous models.SubmissionStatus
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		activity, err = loadOwnedActivity(tx, ownerID, id)
		if err != nil {
			return err
		}
		if !activity.Editable() {
			return ErrActivityLocked
		}
		previous = activity.Status

		updates := map[string]interface{}{}
		if input.Status != nil {
			if err := validateRequestedStatus(*input.Status); err != nil {
				return err
			}
			activity.Status = *input.Status
			updates["status"] = activity.Status
		}
		if input.RequestPayload != nil {
			activity.RequestPayload = input.RequestPayload
			updates["request_payload"] = activity.RequestPayload
		}
		if activity.Kind == models.ActivityKindCreate && len(activity.RequestPayload) == 0 {
			return invalidField("request_payload", "is required for %s activities", models.ActivityKindCreate)
		}
		if len(updates) == 0 {
			return nil
		}

		// The status condition keeps a concurrent worker release from being
		// overwritten.
		res := tx.Model(&models.SubmissionActivity{}).
			Where("id = ? AND status = ?", activity.ID, previous).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrActivityLocked
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if previous != models.SubmissionStatusWaiting && activity.Status == models.SubmissionStatusWaiting {
		if err := s.schedule(ctx, activity, previous); err != nil {
			return nil, err
		}
	}
	return activity, nil
}

// schedule queues activity for the handler. If that fails the activity is
// put back into revertTo so it does not sit in waiting with no task behind it.
func (s *SubmissionActivityService) schedule(ctx context.Context, activity *models.SubmissionActivity, revertTo models.SubmissionStatus) error {
	err := s.scheduler.Schedule(ctx, activity.ID)
	if err == nil {
		return nil
	}
	log.Printf("failed to schedule submission activity %s: %v", activity.ID, err)
	if revertErr := s.db.WithContext(persistentContext(ctx)).
		Model(&models.SubmissionActivity{}).
		Where("id = ? AND status = ?", activity.ID, models.SubmissionStatusWaiting).
		Update("status", revertTo).Error; revertErr != nil {
		log.Printf("failed to revert submission activity %s to %s: %v", activity.ID, revertTo, revertErr)
	}
	activity.Status = revertTo
	return fmt.Errorf("schedule submission activity %s: %w", activity.ID, err)
}

// validateRequestedStatus limits API writes to the states before hand-off.
func validateRequestedStatus(status models.SubmissionStatus) error {
	switch status {
	case models.SubmissionStatusInitial, models.SubmissionStatusWaiting:
		return nil
	}
	if !status.Valid() {
		return invalidField("status", "unknown status %q", status)
	}
	return invalidField("status", "may only be set to %q or %q", models.SubmissionStatusInitial, models.SubmissionStatusWaiting)
}
