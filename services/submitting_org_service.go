package services

import (
	"context"
	"strings"

	"reev-api/config"
	"reev-api/models"
	"reev-api/utils"

	"gorm.io/gorm"
)

// SubmittingOrgInput carries the writable fields of a submitting org. Nil
// fields are left unchanged on update.
type SubmittingOrgInput struct {
	Label           *string
	ClinVarAPIToken *string
}

type SubmittingOrgService struct {
	db     *gorm.DB
	cipher *TokenCipher
}

func NewSubmittingOrgService(db *gorm.DB, cipher *TokenCipher) *SubmittingOrgService {
	if db == nil {
		db = config.DB
	}
	return &SubmittingOrgService{db: db, cipher: cipher}
}

func (s *SubmittingOrgService) List(ctx context.Context, ownerID string) ([]models.SubmittingOrg, error) {
	var orgs []models.SubmittingOrg
	if err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&orgs).Error; err != nil {
		return nil, err
	}
	return orgs, nil
}

func (s *SubmittingOrgService) Get(ctx context.Context, ownerID, id string) (*models.SubmittingOrg, error) {
	return loadOwnedOrg(s.db.WithContext(ctx), ownerID, id)
}

func (s *SubmittingOrgService) Create(ctx context.Context, ownerID string, input SubmittingOrgInput) (*models.SubmittingOrg, error) {
	if ownerID == "" {
		return nil, ErrForbidden
	}
	org := &models.SubmittingOrg{OwnerID: ownerID}
	if input.Label == nil {
		return nil, invalidField("label", "is required")
	}
	if input.ClinVarAPIToken == nil {
		return nil, invalidField("clinvar_api_token", "is required")
	}
	if err := s.apply(org, input); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Create(org).Error; err != nil {
		return nil, err
	}
	return org, nil
}

func (s *SubmittingOrgService) Update(ctx context.Context, ownerID, id string, input SubmittingOrgInput) (*models.SubmittingOrg, error) {
	var org *models.SubmittingOrg
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		org, err = loadOwnedOrg(tx, ownerID, id)
		if err != nil {
			return err
		}
		if err := s.apply(org, input); err != nil {
			return err
		}
		return tx.Model(org).Select("label", "clinvar_api_token").Updates(org).Error
	})
	if err != nil {
		return nil, err
	}
	return org, nil
}

// Delete removes the org with all of its threads and their activities.
func (s *SubmittingOrgService) Delete(ctx context.Context, ownerID, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadOwnedOrg(tx, ownerID, id); err != nil {
			return err
		}
		// Children are removed explicitly for schemas without the FK cascade.
		threads := tx.Model(&models.SubmissionThread{}).Select("id").Where("submittingorg_id = ?", id)
		if err := tx.Where("submissionthread_id IN (?)", threads).Delete(&models.SubmissionActivity{}).Error; err != nil {
			return err
		}
		if err := tx.Where("submittingorg_id = ?", id).Delete(&models.SubmissionThread{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.SubmittingOrg{}).Error
	})
}

func (s *SubmittingOrgService) apply(org *models.SubmittingOrg, input SubmittingOrgInput) error {
	if input.Label != nil {
		label := utils.SanitizeInput(*input.Label)
		if label == "" {
			return invalidField("label", "must not be empty")
		}
		if len(label) > 255 {
			return invalidField("label", "must be at most 255 characters")
		}
		org.Label = label
	}
	if input.ClinVarAPIToken != nil {
		token := strings.TrimSpace(*input.ClinVarAPIToken)
		if token == "" {
			return invalidField("clinvar_api_token", "must not be empty")
		}
		sealed, err := s.cipher.Seal(token)
		if err != nil {
			return err
		}
		org.ClinVarAPIToken = sealed
	}
	return nil
}
