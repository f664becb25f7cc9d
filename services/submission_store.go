package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"reev-api/config"
	"reev-api/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SubmissionStore is the persistence the activity handler works against.
type SubmissionStore interface {
	GetActivity(ctx context.Context, id string) (*models.SubmissionActivity, error)
	GetThread(ctx context.Context, id string) (*models.SubmissionThread, error)
	GetSubmittingOrg(ctx context.Context, id string) (*models.SubmittingOrg, error)

	// ClaimActivity moves the activity and its thread from submitted to
	// in_progress. It returns false when either was no longer submitted.
	ClaimActivity(ctx context.Context, activityID, threadID string) (bool, error)

	// LatestActivityOfKind returns the most recently created activity of kind
	// in the thread, or ErrActivityNotFound.
	LatestActivityOfKind(ctx context.Context, threadID string, kind models.ActivityKind) (*models.SubmissionActivity, error)

	SaveActivityResult(ctx context.Context, activity *models.SubmissionActivity) error
	UpdateThread(ctx context.Context, threadID string, update ThreadUpdate) error
	CreateActivity(ctx context.Context, activity *models.SubmissionActivity) error

	// MarkFailed records message on the activity and fails both records.
	MarkFailed(ctx context.Context, activityID, threadID, message string) error
}

// ThreadUpdate lists the thread columns the handler may change.
type ThreadUpdate struct {
	Status            models.SubmissionStatus
	EffectiveSCV      *string
	EffectivePresence *models.VariantPresence
}

var errClaimLost = errors.New("claim lost")

// GormSubmissionStore implements SubmissionStore on MySQL.
type GormSubmissionStore struct {
	db *gorm.DB
}

func NewGormSubmissionStore(db *gorm.DB) *GormSubmissionStore {
	if db == nil {
		db = config.DB
	}
	return &GormSubmissionStore{db: db}
}

func (s *GormSubmissionStore) GetActivity(ctx context.Context, id string) (*models.SubmissionActivity, error) {
	var activity models.SubmissionActivity
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&activity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrActivityNotFound
		}
		return nil, err
	}
	return &activity, nil
}

func (s *GormSubmissionStore) GetThread(ctx context.Context, id string) (*models.SubmissionThread, error) {
	var thread models.SubmissionThread
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&thread).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrThreadNotFound
		}
		return nil, err
	}
	return &thread, nil
}

func (s *GormSubmissionStore) GetSubmittingOrg(ctx context.Context, id string) (*models.SubmittingOrg, error) {
	var org models.SubmittingOrg
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&org).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubmittingOrgNotFound
		}
		return nil, err
	}
	return &org, nil
}

func (s *GormSubmissionStore) ClaimActivity(ctx context.Context, activityID, threadID string) (bool, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.SubmissionActivity{}).
			Where("id = ? AND status = ?", activityID, models.SubmissionStatusSubmitted).
			Update("status", models.SubmissionStatusInProgress)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errClaimLost
		}

		res = tx.Model(&models.SubmissionThread{}).
			Where("id = ? AND status = ?", threadID, models.SubmissionStatusSubmitted).
			Update("status", models.SubmissionStatusInProgress)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errClaimLost
		}
		return nil
	})
	if errors.Is(err, errClaimLost) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ReleaseActivity hands a scheduled activity over to the handler by moving it
// from initial or waiting to submitted, together with its thread. Only
// activities without a response qualify: a processed create or a pending
// retrieve also sits in waiting and must not run again on redelivery. It
// returns false when the activity was not releasable, and ErrThreadBusy while
// another activity of the thread is in progress.
func (s *GormSubmissionStore) ReleaseActivity(ctx context.Context, activityID string) (bool, error) {
	released := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var activity models.SubmissionActivity
		if err := tx.Select("id", "submissionthread_id", "status").Where("id = ?", activityID).First(&activity).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrActivityNotFound
			}
			return err
		}

		res := tx.Model(&models.SubmissionActivity{}).
			Where("id = ? AND status IN ? AND response_status IS NULL", activityID, []models.SubmissionStatus{
				models.SubmissionStatusInitial,
				models.SubmissionStatusWaiting,
			}).
			Update("status", models.SubmissionStatusSubmitted)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		res = tx.Model(&models.SubmissionThread{}).
			Where("id = ? AND status <> ?", activity.SubmissionThreadID, models.SubmissionStatusInProgress).
			Update("status", models.SubmissionStatusSubmitted)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrThreadBusy
		}
		released = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return released, nil
}

func (s *GormSubmissionStore) LatestActivityOfKind(ctx context.Context, threadID string, kind models.ActivityKind) (*models.SubmissionActivity, error) {
	var activity models.SubmissionActivity
	err := s.db.WithContext(ctx).
		Where("submissionthread_id = ? AND kind = ?", threadID, kind).
		Order("created_at DESC").
		First(&activity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrActivityNotFound
		}
		return nil, err
	}
	return &activity, nil
}

func (s *GormSubmissionStore) SaveActivityResult(ctx context.Context, activity *models.SubmissionActivity) error {
	updates := map[string]interface{}{
		"status":             activity.Status,
		"request_timestamp":  activity.RequestTimestamp,
		"response_status":    activity.ResponseStatus,
		"response_payload":   activity.ResponsePayload,
		"response_timestamp": activity.ResponseTimestamp,
	}
	return s.db.WithContext(ctx).
		Model(&models.SubmissionActivity{}).
		Where("id = ?", activity.ID).
		Updates(updates).Error
}

func (s *GormSubmissionStore) UpdateThread(ctx context.Context, threadID string, update ThreadUpdate) error {
	updates := map[string]interface{}{
		"status": update.Status,
	}
	if update.EffectiveSCV != nil {
		updates["effective_scv"] = *update.EffectiveSCV
	}
	if update.EffectivePresence != nil {
		updates["effective_presence"] = *update.EffectivePresence
	}
	return s.db.WithContext(ctx).
		Model(&models.SubmissionThread{}).
		Where("id = ?", threadID).
		Updates(updates).Error
}

func (s *GormSubmissionStore) CreateActivity(ctx context.Context, activity *models.SubmissionActivity) error {
	return s.db.WithContext(ctx).Create(activity).Error
}

func (s *GormSubmissionStore) MarkFailed(ctx context.Context, activityID, threadID, message string) error {
	payload, err := errorPayload(message)
	if err != nil {
		return err
	}
	now := time.Now()
	failed := models.SubmissionStatusFailed

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.SubmissionActivity{}).
			Where("id = ?", activityID).
			Updates(map[string]interface{}{
				"status":             failed,
				"response_status":    failed,
				"response_payload":   payload,
				"response_timestamp": now,
			}).Error; err != nil {
			return err
		}
		return tx.Model(&models.SubmissionThread{}).
			Where("id = ?", threadID).
			Update("status", failed).Error
	})
}

// errorPayload is the response_payload shape for failures.
func errorPayload(message string) (datatypes.JSON, error) {
	b, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}
