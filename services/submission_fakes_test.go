package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"reev-api/models"

	"gorm.io/datatypes"
)

// memoryStore is an in-memory SubmissionStore. Getters return copies so the
// stored records only change through the store methods.
type memoryStore struct {
	mu sync.Mutex

	orgs       map[string]*models.SubmittingOrg
	threads    map[string]*models.SubmissionThread
	activities map[string]*models.SubmissionActivity
	order      []string
	clock      time.Time

	writes int

	claimLost     bool
	saveErr       error
	markFailedErr error
	markFailed    []string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		orgs:       map[string]*models.SubmittingOrg{},
		threads:    map[string]*models.SubmissionThread{},
		activities: map[string]*models.SubmissionActivity{},
		clock:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (s *memoryStore) addOrg(org models.SubmittingOrg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orgs[org.ID] = &org
}

func (s *memoryStore) addThread(thread models.SubmissionThread) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[thread.ID] = &thread
}

func (s *memoryStore) addActivity(activity models.SubmissionActivity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertLocked(&activity)
}

func (s *memoryStore) insertLocked(activity *models.SubmissionActivity) {
	if activity.ID == "" {
		activity.ID = fmt.Sprintf("activity-%d", len(s.order)+1)
	}
	if activity.Status == "" {
		activity.Status = models.SubmissionStatusInitial
	}
	s.clock = s.clock.Add(time.Second)
	activity.CreatedAt = s.clock
	s.activities[activity.ID] = activity
	s.order = append(s.order, activity.ID)
}

func (s *memoryStore) thread(id string) models.SubmissionThread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.threads[id]
}

func (s *memoryStore) activity(id string) models.SubmissionActivity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.activities[id]
}

func (s *memoryStore) activitiesOfThread(threadID string) []models.SubmissionActivity {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.SubmissionActivity
	for _, id := range s.order {
		if a := s.activities[id]; a.SubmissionThreadID == threadID {
			out = append(out, *a)
		}
	}
	return out
}

func (s *memoryStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *memoryStore) GetActivity(ctx context.Context, id string) (*models.SubmissionActivity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.activities[id]
	if !ok {
		return nil, ErrActivityNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *memoryStore) GetThread(ctx context.Context, id string) (*models.SubmissionThread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[id]
	if !ok {
		return nil, ErrThreadNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *memoryStore) GetSubmittingOrg(ctx context.Context, id string) (*models.SubmittingOrg, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orgs[id]
	if !ok {
		return nil, ErrSubmittingOrgNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *memoryStore) ClaimActivity(ctx context.Context, activityID, threadID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimLost {
		return false, nil
	}
	a, t := s.activities[activityID], s.threads[threadID]
	if a == nil || t == nil || a.Status != models.SubmissionStatusSubmitted || t.Status != models.SubmissionStatusSubmitted {
		return false, nil
	}
	a.Status = models.SubmissionStatusInProgress
	t.Status = models.SubmissionStatusInProgress
	s.writes++
	return true, nil
}

func (s *memoryStore) ReleaseActivity(ctx context.Context, activityID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.activities[activityID]
	if !ok {
		return false, ErrActivityNotFound
	}
	if !a.Editable() {
		return false, nil
	}
	t := s.threads[a.SubmissionThreadID]
	if t.Status == models.SubmissionStatusInProgress {
		return false, ErrThreadBusy
	}
	a.Status = models.SubmissionStatusSubmitted
	t.Status = models.SubmissionStatusSubmitted
	s.writes++
	return true, nil
}

func (s *memoryStore) LatestActivityOfKind(ctx context.Context, threadID string, kind models.ActivityKind) (*models.SubmissionActivity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.order) - 1; i >= 0; i-- {
		a := s.activities[s.order[i]]
		if a.SubmissionThreadID == threadID && a.Kind == kind {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrActivityNotFound
}

func (s *memoryStore) SaveActivityResult(ctx context.Context, activity *models.SubmissionActivity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	a := s.activities[activity.ID]
	a.Status = activity.Status
	a.RequestTimestamp = activity.RequestTimestamp
	a.ResponseStatus = activity.ResponseStatus
	a.ResponsePayload = activity.ResponsePayload
	a.ResponseTimestamp = activity.ResponseTimestamp
	s.writes++
	return nil
}

func (s *memoryStore) UpdateThread(ctx context.Context, threadID string, update ThreadUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.threads[threadID]
	t.Status = update.Status
	if update.EffectiveSCV != nil {
		t.EffectiveSCV = update.EffectiveSCV
	}
	if update.EffectivePresence != nil {
		t.EffectivePresence = update.EffectivePresence
	}
	s.writes++
	return nil
}

func (s *memoryStore) CreateActivity(ctx context.Context, activity *models.SubmissionActivity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *activity
	s.insertLocked(&cp)
	activity.ID = cp.ID
	activity.CreatedAt = cp.CreatedAt
	s.writes++
	return nil
}

func (s *memoryStore) MarkFailed(ctx context.Context, activityID, threadID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markFailed = append(s.markFailed, message)
	if s.markFailedErr != nil {
		return s.markFailedErr
	}
	payload, err := errorPayload(message)
	if err != nil {
		return err
	}
	failed := models.SubmissionStatusFailed
	if a, ok := s.activities[activityID]; ok {
		a.Status = failed
		a.ResponseStatus = &failed
		a.ResponsePayload = payload
	}
	if t, ok := s.threads[threadID]; ok {
		t.Status = failed
	}
	s.writes++
	return nil
}

type scheduledCall struct {
	activityID string
	delay      time.Duration
}

type fakeScheduler struct {
	mu    sync.Mutex
	calls []scheduledCall
	err   error
}

func (s *fakeScheduler) Schedule(ctx context.Context, activityID string) error {
	return s.ScheduleAfter(ctx, activityID, 0)
}

func (s *fakeScheduler) ScheduleAfter(ctx context.Context, activityID string, delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.calls = append(s.calls, scheduledCall{activityID: activityID, delay: delay})
	return nil
}

func (s *fakeScheduler) scheduled() []scheduledCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]scheduledCall(nil), s.calls...)
}

type fakeRegistry struct {
	mu       sync.Mutex
	submit   func(payload datatypes.JSON) (*CreatedResult, error)
	retrieve func(submissionID string) (*RetrievedStatusResult, error)

	submitted []string
	retrieved []string
}

func (r *fakeRegistry) SubmitData(ctx context.Context, payload datatypes.JSON) (*CreatedResult, error) {
	r.mu.Lock()
	r.submitted = append(r.submitted, string(payload))
	r.mu.Unlock()
	if r.submit == nil {
		return nil, errors.New("unexpected submit")
	}
	return r.submit(payload)
}

func (r *fakeRegistry) RetrieveStatus(ctx context.Context, submissionID string) (*RetrievedStatusResult, error) {
	r.mu.Lock()
	r.retrieved = append(r.retrieved, submissionID)
	r.mu.Unlock()
	if r.retrieve == nil {
		return nil, errors.New("unexpected retrieve")
	}
	return r.retrieve(submissionID)
}

func (r *fakeRegistry) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.submitted) + len(r.retrieved)
}

func (r *fakeRegistry) factory(tokens *[]string) RegistryClientFactory {
	return func(token string) (RegistryClient, error) {
		if tokens != nil {
			*tokens = append(*tokens, token)
		}
		return r, nil
	}
}

// handlerFixture is one org with one thread in a known state.
type handlerFixture struct {
	store     *memoryStore
	scheduler *fakeScheduler
	registry  *fakeRegistry
	tokens    []string
	handler   *SubmissionActivityHandler
}

const (
	fixtureOrgID    = "org-1"
	fixtureThreadID = "thread-1"
	fixtureToken    = "secret-token"
	fixtureRetry    = 3 * time.Second
)

func newHandlerFixture(threadStatus models.SubmissionStatus) *handlerFixture {
	f := &handlerFixture{
		store:     newMemoryStore(),
		scheduler: &fakeScheduler{},
		registry:  &fakeRegistry{},
	}
	f.store.addOrg(models.SubmittingOrg{ID: fixtureOrgID, OwnerID: "user-1", Label: "Lab", ClinVarAPIToken: fixtureToken})
	f.store.addThread(models.SubmissionThread{
		ID:               fixtureThreadID,
		SubmittingOrgID:  fixtureOrgID,
		PrimaryVariantID: "grch37-1-1000-A-G",
		DesiredPresence:  models.VariantPresencePresent,
		Status:           threadStatus,
	})
	f.handler = NewSubmissionActivityHandler(f.store, f.scheduler, f.registry.factory(&f.tokens), fixtureRetry)
	return f
}

func (f *handlerFixture) addActivity(id string, kind models.ActivityKind, status models.SubmissionStatus, payload string) {
	activity := models.SubmissionActivity{
		ID:                 id,
		SubmissionThreadID: fixtureThreadID,
		Kind:               kind,
		Status:             status,
	}
	if payload != "" {
		activity.RequestPayload = datatypes.JSON(payload)
	}
	f.store.addActivity(activity)
}

// addWaitingCreate stores a create activity that the registry accepted as
// submissionID.
func (f *handlerFixture) addWaitingCreate(id, submissionID string) {
	submitted := models.SubmissionStatusSubmitted
	f.store.addActivity(models.SubmissionActivity{
		ID:                 id,
		SubmissionThreadID: fixtureThreadID,
		Kind:               models.ActivityKindCreate,
		Status:             models.SubmissionStatusWaiting,
		RequestPayload:     datatypes.JSON(`{"clinvarSubmission":[]}`),
		ResponseStatus:     &submitted,
		ResponsePayload:    datatypes.JSON(fmt.Sprintf(`{"id":%q}`, submissionID)),
	})
}

func errorMessage(t *testing.T, payload datatypes.JSON) string {
	t.Helper()
	var decoded struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("response payload %s is not an error object: %v", payload, err)
	}
	return decoded.Error
}
