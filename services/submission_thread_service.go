package services

import (
	"context"
	"errors"

	"reev-api/config"
	"reev-api/models"
	"reev-api/utils"

	"gorm.io/gorm"
)

type SubmissionThreadInput struct {
	SubmittingOrgID  string
	PrimaryVariantID string
	DesiredPresence  models.VariantPresence
}

// SubmissionThreadUpdate lists what the API may change on an existing thread.
// Status and the effective fields belong to the activity handler.
type SubmissionThreadUpdate struct {
	DesiredPresence *models.VariantPresence
}

type SubmissionThreadService struct {
	db *gorm.DB
}

func NewSubmissionThreadService(db *gorm.DB) *SubmissionThreadService {
	if db == nil {
		db = config.DB
	}
	return &SubmissionThreadService{db: db}
}

// List returns the threads of all orgs of ownerID, or of orgID only when set.
func (s *SubmissionThreadService) List(ctx context.Context, ownerID, orgID string) ([]models.SubmissionThread, error) {
	db := s.db.WithContext(ctx)
	q := db.Model(&models.SubmissionThread{})
	if orgID != "" {
		if _, err := loadOwnedOrg(db, ownerID, orgID); err != nil {
			return nil, err
		}
		q = q.Where("submittingorg_id = ?", orgID)
	} else {
		q = q.Joins("JOIN submitting_orgs ON submitting_orgs.id = submission_threads.submittingorg_id").
			Where("submitting_orgs.owner_id = ?", ownerID)
	}

	var threads []models.SubmissionThread
	if err := q.Order("submission_threads.created_at DESC").Find(&threads).Error; err != nil {
		return nil, err
	}
	return threads, nil
}

func (s *SubmissionThreadService) Get(ctx context.Context, ownerID, id string) (*models.SubmissionThread, error) {
	return loadOwnedThread(s.db.WithContext(ctx), ownerID, id)
}

func (s *SubmissionThreadService) Create(ctx context.Context, ownerID string, input SubmissionThreadInput) (*models.SubmissionThread, error) {
	variantID := utils.NormalizeVariantID(input.PrimaryVariantID)
	if ok, msg := utils.ValidateVariantID(variantID); !ok {
		return nil, invalidField("primary_variant_id", "%s", msg)
	}
	if !input.DesiredPresence.Valid() {
		return nil, invalidField("desired_presence", "must be %q or %q", models.VariantPresencePresent, models.VariantPresenceAbsent)
	}
	if input.SubmittingOrgID == "" {
		return nil, invalidField("submittingorg", "is required")
	}

	thread := &models.SubmissionThread{
		SubmittingOrgID:  input.SubmittingOrgID,
		PrimaryVariantID: variantID,
		DesiredPresence:  input.DesiredPresence,
		Status:           models.SubmissionStatusInitial,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadOwnedOrg(tx, ownerID, input.SubmittingOrgID); err != nil {
			return err
		}
		var existing int64
		if err := tx.Model(&models.SubmissionThread{}).
			Where("submittingorg_id = ? AND primary_variant_id = ?", input.SubmittingOrgID, variantID).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrDuplicateThread
		}
		return tx.Create(thread).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, ErrDuplicateThread
	}
	if err != nil {
		return nil, err
	}
	return thread, nil
}

func (s *SubmissionThreadService) Update(ctx context.Context, ownerID, id string, input SubmissionThreadUpdate) (*models.SubmissionThread, error) {
	var thread *models.SubmissionThread
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		thread, err = loadOwnedThread(tx, ownerID, id)
		if err != nil {
			return err
		}
		if thread.Status == models.SubmissionStatusSubmitted || thread.Status == models.SubmissionStatusInProgress {
			return ErrThreadBusy
		}
		if input.DesiredPresence == nil {
			return nil
		}
		if !input.DesiredPresence.Valid() {
			return invalidField("desired_presence", "must be %q or %q", models.VariantPresencePresent, models.VariantPresenceAbsent)
		}
		thread.DesiredPresence = *input.DesiredPresence
		return tx.Model(&models.SubmissionThread{}).
			Where("id = ?", thread.ID).
			Update("desired_presence", thread.DesiredPresence).Error
	})
	if err != nil {
		return nil, err
	}
	return thread, nil
}

// Delete removes the thread and its activities.
func (s *SubmissionThreadService) Delete(ctx context.Context, ownerID, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadOwnedThread(tx, ownerID, id); err != nil {
			return err
		}
		// Schemas migrated before the activity FK existed have no cascade.
		if err := tx.Where("submissionthread_id = ?", id).Delete(&models.SubmissionActivity{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.SubmissionThread{}).Error
	})
}
