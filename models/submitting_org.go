package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SubmittingOrg bundles the ClinVar credentials of one organisation. It is
// owned by exactly one user.
type SubmittingOrg struct {
	ID      string `json:"id" gorm:"column:id;type:char(36);primaryKey"`
	OwnerID string `json:"owner" gorm:"column:owner_id;type:varchar(64);not null;index"`
	Label   string `json:"label" gorm:"column:label;type:varchar(255);not null"`

	// ClinVarAPIToken holds the sealed token, see services.TokenCipher.
	ClinVarAPIToken string `json:"-" gorm:"column:clinvar_api_token;type:text;not null"`

	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

func (SubmittingOrg) TableName() string { return "submitting_orgs" }

func (o *SubmittingOrg) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return nil
}

// HasToken is exposed to API clients instead of the token itself.
func (o *SubmittingOrg) HasToken() bool {
	return o.ClinVarAPIToken != ""
}
