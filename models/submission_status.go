package models

// SubmissionStatus is shared by submission threads and their activities.
type SubmissionStatus string

const (
	SubmissionStatusInitial    SubmissionStatus = "initial"
	SubmissionStatusWaiting    SubmissionStatus = "waiting"
	SubmissionStatusSubmitted  SubmissionStatus = "submitted"
	SubmissionStatusInProgress SubmissionStatus = "in_progress"
	SubmissionStatusComplete   SubmissionStatus = "complete"
	SubmissionStatusFailed     SubmissionStatus = "failed"
	SubmissionStatusTimeout    SubmissionStatus = "timeout"
)

// Valid reports whether s is one of the known statuses.
func (s SubmissionStatus) Valid() bool {
	switch s {
	case SubmissionStatusInitial,
		SubmissionStatusWaiting,
		SubmissionStatusSubmitted,
		SubmissionStatusInProgress,
		SubmissionStatusComplete,
		SubmissionStatusFailed,
		SubmissionStatusTimeout:
		return true
	}
	return false
}

// IsTerminal reports whether no further processing happens in status s.
func (s SubmissionStatus) IsTerminal() bool {
	return s == SubmissionStatusComplete || s == SubmissionStatusFailed || s == SubmissionStatusTimeout
}

// ActivityKind selects what a submission activity does against ClinVar.
type ActivityKind string

const (
	ActivityKindRetrieve ActivityKind = "retrieve"
	ActivityKindCreate   ActivityKind = "create"
	ActivityKindUpdate   ActivityKind = "update"
	ActivityKindDelete   ActivityKind = "delete"
)

func (k ActivityKind) Valid() bool {
	switch k {
	case ActivityKindRetrieve, ActivityKindCreate, ActivityKindUpdate, ActivityKindDelete:
		return true
	}
	return false
}

// VariantPresence is the presence of a variant record in ClinVar.
type VariantPresence string

const (
	VariantPresencePresent VariantPresence = "present"
	VariantPresenceAbsent  VariantPresence = "absent"
)

func (p VariantPresence) Valid() bool {
	return p == VariantPresencePresent || p == VariantPresenceAbsent
}
