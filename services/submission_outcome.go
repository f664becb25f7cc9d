package services

import (
	"encoding/json"
	"errors"
	"fmt"

	"reev-api/models"

	"gorm.io/datatypes"
)

type outcomeKind int

const (
	outcomeSuccess outcomeKind = iota
	outcomePending
	outcomeFailure
)

func (k outcomeKind) String() string {
	switch k {
	case outcomeSuccess:
		return "success"
	case outcomePending:
		return "pending"
	case outcomeFailure:
		return "failure"
	}
	return "unknown"
}

// activityOutcome is what one kind handler computed. applyOutcome turns it
// into record updates and follow-up scheduling.
type activityOutcome struct {
	kind outcomeKind

	// status is written to both the activity and its thread.
	status         models.SubmissionStatus
	responseStatus models.SubmissionStatus
	payload        datatypes.JSON

	// accession is the SCV reported by the registry on completion.
	accession string
}

func successOutcome(status, responseStatus models.SubmissionStatus, result interface{}) (*activityOutcome, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode response payload: %w", err)
	}
	return &activityOutcome{
		kind:           outcomeSuccess,
		status:         status,
		responseStatus: responseStatus,
		payload:        datatypes.JSON(payload),
	}, nil
}

func pendingOutcome(result interface{}) (*activityOutcome, error) {
	outcome, err := successOutcome(models.SubmissionStatusWaiting, models.SubmissionStatusWaiting, result)
	if err != nil {
		return nil, err
	}
	outcome.kind = outcomePending
	return outcome, nil
}

func failureOutcome(message string) (*activityOutcome, error) {
	payload, err := errorPayload(message)
	if err != nil {
		return nil, err
	}
	return &activityOutcome{
		kind:           outcomeFailure,
		status:         models.SubmissionStatusFailed,
		responseStatus: models.SubmissionStatusFailed,
		payload:        payload,
	}, nil
}

// parseSubmissionID extracts the registry submission id stored by a
// successful create activity.
func parseSubmissionID(payload datatypes.JSON) (string, error) {
	if len(payload) == 0 {
		return "", errors.New("CREATE activity has no response payload")
	}
	var created CreatedResult
	if err := json.Unmarshal(payload, &created); err != nil {
		return "", fmt.Errorf("decode CREATE response payload: %w", err)
	}
	if created.SubmissionID == "" {
		return "", errors.New("CREATE response payload carries no submission id")
	}
	return created.SubmissionID, nil
}
