package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SubmissionThread tracks the submission of one variant by one organisation.
type SubmissionThread struct {
	ID               string `json:"id" gorm:"column:id;type:char(36);primaryKey"`
	SubmittingOrgID  string `json:"submittingorg" gorm:"column:submittingorg_id;type:char(36);not null;uniqueIndex:uq_submission_threads_org_variant,priority:1"`
	PrimaryVariantID string `json:"primary_variant_id" gorm:"column:primary_variant_id;type:varchar(255);not null;uniqueIndex:uq_submission_threads_org_variant,priority:2"`

	EffectiveSCV      *string          `json:"effective_scv" gorm:"column:effective_scv;type:varchar(64)"`
	EffectivePresence *VariantPresence `json:"effective_presence" gorm:"column:effective_presence;type:varchar(16)"`
	DesiredPresence   VariantPresence  `json:"desired_presence" gorm:"column:desired_presence;type:varchar(16);not null"`
	Status            SubmissionStatus `json:"status" gorm:"column:status;type:varchar(16);not null;default:'initial'"`

	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`

	SubmittingOrg *SubmittingOrg `json:"-" gorm:"foreignKey:SubmittingOrgID;constraint:OnDelete:CASCADE"`
}

func (SubmissionThread) TableName() string { return "submission_threads" }

func (t *SubmissionThread) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = SubmissionStatusInitial
	}
	return nil
}
