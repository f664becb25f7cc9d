package services

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"testing"

	"reev-api/models"
)

var activityColumns = []string{"id", "submissionthread_id", "kind", "status", "response_payload"}

func TestClaimActivityMovesBothRecords(t *testing.T) {
	db, state := newScriptedGormDB(t,
		execAffecting("UPDATE .submission_activities. SET .status.=\\?.*WHERE id = \\? AND status = \\?", 1),
		execAffecting("UPDATE .submission_threads. SET .status.=\\?.*WHERE id = \\? AND status = \\?", 1),
	)
	store := NewGormSubmissionStore(db)

	claimed, err := store.ClaimActivity(context.Background(), "activity-1", "thread-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !claimed {
		t.Fatalf("expected claim to succeed")
	}
	expectComplete(t, state)
	if commits, rollbacks := state.txCounts(); commits != 1 || rollbacks != 0 {
		t.Fatalf("expected one commit, got commits=%d rollbacks=%d", commits, rollbacks)
	}
}

func TestClaimActivityLostRollsBack(t *testing.T) {
	db, state := newScriptedGormDB(t,
		execAffecting("UPDATE .submission_activities. SET .status.=", 1),
		execAffecting("UPDATE .submission_threads. SET .status.=", 0),
	)
	store := NewGormSubmissionStore(db)

	claimed, err := store.ClaimActivity(context.Background(), "activity-1", "thread-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claimed {
		t.Fatalf("expected claim to be lost")
	}
	expectComplete(t, state)
	if commits, rollbacks := state.txCounts(); commits != 0 || rollbacks != 1 {
		t.Fatalf("expected rollback, got commits=%d rollbacks=%d", commits, rollbacks)
	}
}

func TestClaimActivityStopsWhenActivityNotSubmitted(t *testing.T) {
	db, state := newScriptedGormDB(t,
		execAffecting("UPDATE .submission_activities. SET .status.=", 0),
	)
	store := NewGormSubmissionStore(db)

	claimed, err := store.ClaimActivity(context.Background(), "activity-1", "thread-1")
	if err != nil || claimed {
		t.Fatalf("expected lost claim, got claimed=%v err=%v", claimed, err)
	}
	expectComplete(t, state)
}

func TestReleaseActivity(t *testing.T) {
	db, state := newScriptedGormDB(t,
		queryRows("SELECT .* FROM .submission_activities.", []string{"id", "submissionthread_id", "status"},
			[]driver.Value{"activity-1", "thread-1", "waiting"}),
		execAffecting("UPDATE .submission_activities. SET .status.=.*status IN \\(\\?,\\?\\)", 1),
		execAffecting("UPDATE .submission_threads. SET .status.=.*status <> \\?", 1),
	)
	store := NewGormSubmissionStore(db)

	released, err := store.ReleaseActivity(context.Background(), "activity-1")
	if err != nil || !released {
		t.Fatalf("expected release, got released=%v err=%v", released, err)
	}
	expectComplete(t, state)
}

func TestReleaseActivitySkipsProcessedActivity(t *testing.T) {
	// A create the registry accepted sits in waiting with a response; the
	// conditional update must not match it again.
	db, state := newScriptedGormDB(t,
		queryRows("SELECT .* FROM .submission_activities.", []string{"id", "submissionthread_id", "status"},
			[]driver.Value{"create-1", "thread-1", "waiting"}),
		execAffecting("UPDATE .submission_activities. SET .status.=.*status IN \\(\\?,\\?\\) AND response_status IS NULL", 0),
	)
	store := NewGormSubmissionStore(db)

	released, err := store.ReleaseActivity(context.Background(), "create-1")
	if err != nil || released {
		t.Fatalf("expected no release, got released=%v err=%v", released, err)
	}
	expectComplete(t, state)
}

func TestReleaseActivityBusyThread(t *testing.T) {
	db, state := newScriptedGormDB(t,
		queryRows("SELECT .* FROM .submission_activities.", []string{"id", "submissionthread_id", "status"},
			[]driver.Value{"activity-1", "thread-1", "initial"}),
		execAffecting("UPDATE .submission_activities. SET .status.=", 1),
		execAffecting("UPDATE .submission_threads. SET .status.=", 0),
	)
	store := NewGormSubmissionStore(db)

	released, err := store.ReleaseActivity(context.Background(), "activity-1")
	if !errors.Is(err, ErrThreadBusy) {
		t.Fatalf("expected ErrThreadBusy, got released=%v err=%v", released, err)
	}
	expectComplete(t, state)
	if _, rollbacks := state.txCounts(); rollbacks != 1 {
		t.Fatalf("expected the activity release to be rolled back")
	}
}

func TestReleaseActivityMissing(t *testing.T) {
	db, state := newScriptedGormDB(t,
		queryRows("SELECT .* FROM .submission_activities.", []string{"id", "submissionthread_id", "status"}),
	)
	store := NewGormSubmissionStore(db)

	if _, err := store.ReleaseActivity(context.Background(), "missing"); !errors.Is(err, ErrActivityNotFound) {
		t.Fatalf("expected ErrActivityNotFound, got %v", err)
	}
	expectComplete(t, state)
}

func TestLatestActivityOfKind(t *testing.T) {
	db, state := newScriptedGormDB(t,
		queryRows("SELECT \\* FROM .submission_activities. WHERE submissionthread_id = \\? AND kind = \\? ORDER BY created_at DESC", activityColumns,
			[]driver.Value{"create-2", "thread-1", "create", "waiting", []byte(`{"id":"SUB2"}`)}),
	)
	store := NewGormSubmissionStore(db)

	activity, err := store.LatestActivityOfKind(context.Background(), "thread-1", models.ActivityKindCreate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if activity.ID != "create-2" || activity.Status != models.SubmissionStatusWaiting {
		t.Fatalf("unexpected activity %+v", activity)
	}
	if id, err := parseSubmissionID(activity.ResponsePayload); err != nil || id != "SUB2" {
		t.Fatalf("expected submission id SUB2, got %q (%v)", id, err)
	}
	expectComplete(t, state)
}

func TestLatestActivityOfKindNone(t *testing.T) {
	db, state := newScriptedGormDB(t,
		queryRows("SELECT \\* FROM .submission_activities.", activityColumns),
	)
	store := NewGormSubmissionStore(db)

	if _, err := store.LatestActivityOfKind(context.Background(), "thread-1", models.ActivityKindCreate); !errors.Is(err, ErrActivityNotFound) {
		t.Fatalf("expected ErrActivityNotFound, got %v", err)
	}
	expectComplete(t, state)
}

func TestGetThreadNotFound(t *testing.T) {
	db, state := newScriptedGormDB(t,
		queryRows("SELECT \\* FROM .submission_threads.", []string{"id"}),
	)
	store := NewGormSubmissionStore(db)

	if _, err := store.GetThread(context.Background(), "missing"); !errors.Is(err, ErrThreadNotFound) {
		t.Fatalf("expected ErrThreadNotFound, got %v", err)
	}
	expectComplete(t, state)
}

func TestMarkFailedWritesBothRecords(t *testing.T) {
	db, state := newScriptedGormDB(t,
		execAffecting("UPDATE .submission_activities. SET .response_payload.=\\?,.response_status.=\\?,.response_timestamp.=\\?,.status.=\\?", 1),
		execAffecting("UPDATE .submission_threads. SET .status.=\\?", 1),
	)
	store := NewGormSubmissionStore(db)

	if err := store.MarkFailed(context.Background(), "activity-1", "thread-1", "Submission failed: boom"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expectComplete(t, state)
	if commits, _ := state.txCounts(); commits != 1 {
		t.Fatalf("expected a single transaction, got %d commits", commits)
	}
}

func TestErrorPayloadShape(t *testing.T) {
	encoded, err := errorPayload(`Retrieval failed: "quoted"`)
	if err != nil {
		t.Fatalf("errorPayload: %v", err)
	}
	var decoded map[string]string
	if err := json.Unmarshal(encoded, &decoded); err != nil || decoded["error"] != `Retrieval failed: "quoted"` {
		t.Fatalf("unexpected error payload %s", encoded)
	}
}

func TestUpdateThreadSetsEffectiveFields(t *testing.T) {
	db, state := newScriptedGormDB(t,
		execAffecting("UPDATE .submission_threads. SET .effective_presence.=\\?,.effective_scv.=\\?,.status.=\\?", 1),
	)
	store := NewGormSubmissionStore(db)

	scv := "SCV000000001"
	presence := models.VariantPresencePresent
	err := store.UpdateThread(context.Background(), "thread-1", ThreadUpdate{
		Status:            models.SubmissionStatusComplete,
		EffectiveSCV:      &scv,
		EffectivePresence: &presence,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expectComplete(t, state)
}
