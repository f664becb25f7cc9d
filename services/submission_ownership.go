package services

import (
	"errors"

	"reev-api/models"

	"gorm.io/gorm"
)

// The loaders below tell a missing record apart from one owned by someone
// else, so handlers can answer 404 and 403 respectively.

func loadOwnedOrg(tx *gorm.DB, ownerID, orgID string) (*models.SubmittingOrg, error) {
	var org models.SubmittingOrg
	if err := tx.Where("id = ?", orgID).First(&org).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubmittingOrgNotFound
		}
		return nil, err
	}
	if org.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	return &org, nil
}

func loadOwnedThread(tx *gorm.DB, ownerID, threadID string) (*models.SubmissionThread, error) {
	var thread models.SubmissionThread
	if err := tx.Where("id = ?", threadID).First(&thread).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrThreadNotFound
		}
		return nil, err
	}
	org, err := loadOwnedOrg(tx, ownerID, thread.SubmittingOrgID)
	if err != nil {
		if errors.Is(err, ErrSubmittingOrgNotFound) {
			return nil, ErrThreadNotFound
		}
		return nil, err
	}
	thread.SubmittingOrg = org
	return &thread, nil
}

func loadOwnedActivity(tx *gorm.DB, ownerID, activityID string) (*models.SubmissionActivity, error) {
	var activity models.SubmissionActivity
	if err := tx.Where("id = ?", activityID).First(&activity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrActivityNotFound
		}
		return nil, err
	}
	thread, err := loadOwnedThread(tx, ownerID, activity.SubmissionThreadID)
	if err != nil {
		if errors.Is(err, ErrThreadNotFound) {
			return nil, ErrActivityNotFound
		}
		return nil, err
	}
	activity.SubmissionThread = thread
	return &activity, nil
}
