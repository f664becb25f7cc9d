package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SubmissionActivity is one step (create, retrieve, ...) within a thread.
type SubmissionActivity struct {
	ID                 string           `json:"id" gorm:"column:id;type:char(36);primaryKey"`
	SubmissionThreadID string           `json:"submissionthread" gorm:"column:submissionthread_id;type:char(36);not null;index:idx_submission_activities_thread_kind,priority:1"`
	Kind               ActivityKind     `json:"kind" gorm:"column:kind;type:varchar(16);not null;index:idx_submission_activities_thread_kind,priority:2"`
	Status             SubmissionStatus `json:"status" gorm:"column:status;type:varchar(16);not null;default:'initial'"`

	RequestPayload    datatypes.JSON    `json:"request_payload,omitempty" gorm:"column:request_payload"`
	RequestTimestamp  *time.Time        `json:"request_timestamp,omitempty" gorm:"column:request_timestamp"`
	ResponseStatus    *SubmissionStatus `json:"response_status,omitempty" gorm:"column:response_status;type:varchar(16)"`
	ResponsePayload   datatypes.JSON    `json:"response_payload,omitempty" gorm:"column:response_payload"`
	ResponseTimestamp *time.Time        `json:"response_timestamp,omitempty" gorm:"column:response_timestamp"`

	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime;index"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`

	SubmissionThread *SubmissionThread `json:"-" gorm:"foreignKey:SubmissionThreadID;constraint:OnDelete:CASCADE"`
}

func (SubmissionActivity) TableName() string { return "submission_activities" }

func (a *SubmissionActivity) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = SubmissionStatusInitial
	}
	return nil
}

// Editable reports whether the activity has not been handed to the handler
// yet. Once a response is recorded it stays read-only even while waiting.
func (a *SubmissionActivity) Editable() bool {
	if a.ResponseStatus != nil {
		return false
	}
	return a.Status == SubmissionStatusInitial || a.Status == SubmissionStatusWaiting
}
