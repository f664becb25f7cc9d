package models

import "time"

const (
	SubmissionTaskStatusQueued  = "queued"
	SubmissionTaskStatusRunning = "running"
	SubmissionTaskStatusDone    = "done"
	SubmissionTaskStatusFailed  = "failed"
)

// SubmissionTask is a durable queue entry asking a worker to process one
// submission activity no earlier than RunAt.
type SubmissionTask struct {
	ID         uint64     `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	ActivityID string     `json:"activity_id" gorm:"column:activity_id;type:char(36);not null;index"`
	Status     string     `json:"status" gorm:"column:status;type:enum('queued','running','done','failed');not null;default:'queued';index:idx_submission_tasks_due,priority:1"`
	RunAt      time.Time  `json:"run_at" gorm:"column:run_at;not null;index:idx_submission_tasks_due,priority:2"`
	Attempts   uint       `json:"attempts" gorm:"column:attempts;not null;default:0"`
	LastError  *string    `json:"last_error,omitempty" gorm:"column:last_error;type:text"`
	LockedBy   *string    `json:"locked_by,omitempty" gorm:"column:locked_by;type:varchar(128)"`
	LockedAt   *time.Time `json:"locked_at,omitempty" gorm:"column:locked_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" gorm:"column:finished_at"`
	CreatedAt  time.Time  `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time  `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

func (SubmissionTask) TableName() string { return "submission_tasks" }
