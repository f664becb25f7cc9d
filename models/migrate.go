package models

import "gorm.io/gorm"

// AutoMigrate creates or updates the submission tables. Order matters for
// the foreign keys.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&SubmittingOrg{},
		&SubmissionThread{},
		&SubmissionActivity{},
		&SubmissionTask{},
	)
}
