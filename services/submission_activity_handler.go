package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"reev-api/models"
)

// DefaultSubmissionRetryInterval is the fixed delay between two retrieve
// activities of a chain.
const DefaultSubmissionRetryInterval = 60 * time.Second

type activityKindHandler func(ctx context.Context, thread *models.SubmissionThread, activity *models.SubmissionActivity) (*activityOutcome, error)

// SubmissionActivityHandler executes one processing step of one submission
// activity. It runs detached from any request: every failure is recorded on
// the activity and thread, never returned.
type SubmissionActivityHandler struct {
	store         SubmissionStore
	scheduler     TaskScheduler
	newClient     RegistryClientFactory
	retryInterval time.Duration
	now           func() time.Time

	kinds map[models.ActivityKind]activityKindHandler
}

func NewSubmissionActivityHandler(store SubmissionStore, scheduler TaskScheduler, newClient RegistryClientFactory, retryInterval time.Duration) *SubmissionActivityHandler {
	if retryInterval <= 0 {
		retryInterval = DefaultSubmissionRetryInterval
	}
	h := &SubmissionActivityHandler{
		store:         store,
		scheduler:     scheduler,
		newClient:     newClient,
		retryInterval: retryInterval,
		now:           time.Now,
	}
	h.kinds = map[models.ActivityKind]activityKindHandler{
		models.ActivityKindCreate:   h.handleCreate,
		models.ActivityKindRetrieve: h.handleRetrieve,
		models.ActivityKindUpdate:   h.handleUpdate,
		models.ActivityKindDelete:   h.handleDelete,
	}
	return h
}

// Run processes the activity with activityID. Unknown activities and
// activities not in submitted state are dropped without side effects.
func (h *SubmissionActivityHandler) Run(ctx context.Context, activityID string) {
	activity, err := h.store.GetActivity(ctx, activityID)
	if err != nil {
		if errors.Is(err, ErrActivityNotFound) {
			log.Printf("submission activity %s not found, dropping", activityID)
		} else {
			log.Printf("failed to load submission activity %s: %v", activityID, err)
		}
		return
	}

	thread, err := h.store.GetThread(ctx, activity.SubmissionThreadID)
	if err != nil {
		if errors.Is(err, ErrThreadNotFound) {
			log.Printf("submission thread %s of activity %s not found, dropping", activity.SubmissionThreadID, activityID)
		} else {
			log.Printf("failed to load submission thread %s: %v", activity.SubmissionThreadID, err)
		}
		return
	}

	if activity.Status != models.SubmissionStatusSubmitted || thread.Status != models.SubmissionStatusSubmitted {
		log.Printf("Warning: skipping submission activity %s: activity status %s, thread status %s, expected %s",
			activity.ID, activity.Status, thread.Status, models.SubmissionStatusSubmitted)
		submissionActivityRuns.WithLabelValues(string(activity.Kind), "skipped").Inc()
		return
	}

	claimed, err := h.store.ClaimActivity(ctx, activity.ID, thread.ID)
	if err != nil {
		log.Printf("failed to claim submission activity %s: %v", activity.ID, err)
		return
	}
	if !claimed {
		log.Printf("Warning: submission activity %s was claimed concurrently, skipping", activity.ID)
		submissionActivityRuns.WithLabelValues(string(activity.Kind), "skipped").Inc()
		return
	}
	activity.Status = models.SubmissionStatusInProgress
	thread.Status = models.SubmissionStatusInProgress

	if err := h.process(ctx, thread, activity); err != nil {
		h.recordFailure(ctx, thread, activity, err)
	}
}

func (h *SubmissionActivityHandler) process(ctx context.Context, thread *models.SubmissionThread, activity *models.SubmissionActivity) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing submission activity %s: %v", activity.ID, r)
		}
	}()

	outcome, err := h.dispatch(ctx, thread, activity)
	if err != nil {
		return err
	}
	return h.applyOutcome(ctx, thread, activity, outcome)
}

func (h *SubmissionActivityHandler) dispatch(ctx context.Context, thread *models.SubmissionThread, activity *models.SubmissionActivity) (*activityOutcome, error) {
	handle, ok := h.kinds[activity.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidActivityKind, activity.Kind)
	}
	return handle(ctx, thread, activity)
}

// registryClient builds a client from the thread's submitting org. The token
// is read on every run since it can be rotated at any time.
func (h *SubmissionActivityHandler) registryClient(ctx context.Context, thread *models.SubmissionThread) (RegistryClient, error) {
	org, err := h.store.GetSubmittingOrg(ctx, thread.SubmittingOrgID)
	if err != nil {
		return nil, fmt.Errorf("load submitting org of thread %s: %w", thread.ID, err)
	}
	client, err := h.newClient(org.ClinVarAPIToken)
	if err != nil {
		return nil, fmt.Errorf("create registry client for submitting org %s: %w", org.ID, err)
	}
	return client, nil
}

func (h *SubmissionActivityHandler) handleCreate(ctx context.Context, thread *models.SubmissionThread, activity *models.SubmissionActivity) (*activityOutcome, error) {
	if len(activity.RequestPayload) == 0 {
		return nil, fmt.Errorf("CREATE activity %s: %w", activity.ID, ErrMissingRequestPayload)
	}
	client, err := h.registryClient(ctx, thread)
	if err != nil {
		return nil, err
	}

	requested := h.now()
	activity.RequestTimestamp = &requested
	created, err := client.SubmitData(ctx, activity.RequestPayload)
	if err != nil {
		log.Printf("clinvar submission of activity %s failed: %v", activity.ID, err)
		return failureOutcome(fmt.Sprintf("Submission failed: %v", err))
	}
	return successOutcome(models.SubmissionStatusWaiting, models.SubmissionStatusSubmitted, created)
}

func (h *SubmissionActivityHandler) handleRetrieve(ctx context.Context, thread *models.SubmissionThread, activity *models.SubmissionActivity) (*activityOutcome, error) {
	createActivity, err := h.store.LatestActivityOfKind(ctx, thread.ID, models.ActivityKindCreate)
	if err != nil {
		if errors.Is(err, ErrActivityNotFound) {
			return nil, fmt.Errorf("%w: No CREATE activity found in thread %s", ErrInvalidState, thread.ID)
		}
		return nil, err
	}
	if createActivity.Status != models.SubmissionStatusWaiting {
		return nil, fmt.Errorf("%w: CREATE activity %s has status %s, expected %s",
			ErrInvalidState, createActivity.ID, createActivity.Status, models.SubmissionStatusWaiting)
	}
	submissionID, err := parseSubmissionID(createActivity.ResponsePayload)
	if err != nil {
		return nil, err
	}

	client, err := h.registryClient(ctx, thread)
	if err != nil {
		return nil, err
	}

	requested := h.now()
	activity.RequestTimestamp = &requested
	result, err := client.RetrieveStatus(ctx, submissionID)
	if err != nil {
		log.Printf("clinvar status retrieval of activity %s failed: %v", activity.ID, err)
		return failureOutcome(fmt.Sprintf("Retrieval failed: %v", err))
	}
	if result.Pending {
		return pendingOutcome(result)
	}
	if result.Accession == "" {
		return failureOutcome(fmt.Sprintf("Retrieval failed: submission %s resolved with status %s but no accession", submissionID, result.Status))
	}

	outcome, err := successOutcome(models.SubmissionStatusComplete, models.SubmissionStatusComplete, result)
	if err != nil {
		return nil, err
	}
	outcome.accession = result.Accession
	return outcome, nil
}

func (h *SubmissionActivityHandler) handleUpdate(ctx context.Context, thread *models.SubmissionThread, activity *models.SubmissionActivity) (*activityOutcome, error) {
	return nil, fmt.Errorf("activity kind %s: %w", models.ActivityKindUpdate, ErrNotImplemented)
}

func (h *SubmissionActivityHandler) handleDelete(ctx context.Context, thread *models.SubmissionThread, activity *models.SubmissionActivity) (*activityOutcome, error) {
	return nil, fmt.Errorf("activity kind %s: %w", models.ActivityKindDelete, ErrNotImplemented)
}

func (h *SubmissionActivityHandler) applyOutcome(ctx context.Context, thread *models.SubmissionThread, activity *models.SubmissionActivity, outcome *activityOutcome) error {
	responded := h.now()
	responseStatus := outcome.responseStatus
	activity.Status = outcome.status
	activity.ResponseStatus = &responseStatus
	activity.ResponsePayload = outcome.payload
	activity.ResponseTimestamp = &responded
	if err := h.store.SaveActivityResult(ctx, activity); err != nil {
		return fmt.Errorf("save result of submission activity %s: %w", activity.ID, err)
	}

	update := ThreadUpdate{Status: outcome.status}
	if outcome.kind == outcomeSuccess && outcome.accession != "" {
		scv := outcome.accession
		presence := thread.DesiredPresence
		update.EffectiveSCV = &scv
		update.EffectivePresence = &presence
	}
	if err := h.store.UpdateThread(ctx, thread.ID, update); err != nil {
		return fmt.Errorf("update submission thread %s: %w", thread.ID, err)
	}
	thread.Status = outcome.status

	submissionActivityRuns.WithLabelValues(string(activity.Kind), outcome.kind.String()).Inc()

	if outcome.kind != outcomePending {
		return nil
	}
	return h.chainRetrieve(ctx, thread)
}

// chainRetrieve appends the next retrieve activity to the thread and schedules
// it after the retry interval.
func (h *SubmissionActivityHandler) chainRetrieve(ctx context.Context, thread *models.SubmissionThread) error {
	next := &models.SubmissionActivity{
		SubmissionThreadID: thread.ID,
		Kind:               models.ActivityKindRetrieve,
		Status:             models.SubmissionStatusInitial,
	}
	if err := h.store.CreateActivity(ctx, next); err != nil {
		return fmt.Errorf("create follow-up retrieve activity for thread %s: %w", thread.ID, err)
	}
	if err := h.scheduler.ScheduleAfter(ctx, next.ID, h.retryInterval); err != nil {
		return fmt.Errorf("schedule retrieve activity %s: %w", next.ID, err)
	}
	log.Printf("submission thread %s still pending at registry, retrieve activity %s scheduled in %s",
		thread.ID, next.ID, h.retryInterval)
	return nil
}

// recordFailure is the last resort: it fails both records and swallows any
// error doing so.
func (h *SubmissionActivityHandler) recordFailure(ctx context.Context, thread *models.SubmissionThread, activity *models.SubmissionActivity, cause error) {
	label := "error"
	if errors.Is(cause, ErrNotImplemented) {
		label = "not_implemented"
		log.Printf("Warning: submission activity %s: %v", activity.ID, cause)
	} else {
		log.Printf("submission activity %s failed: %v", activity.ID, cause)
	}
	submissionActivityRuns.WithLabelValues(string(activity.Kind), label).Inc()

	if err := h.store.MarkFailed(ctx, activity.ID, thread.ID, cause.Error()); err != nil {
		log.Printf("failed to mark submission activity %s as failed: %v", activity.ID, err)
	}
}
