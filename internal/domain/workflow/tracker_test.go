package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/rhu/rhu/internal/platform/apperr"
	"github.com/rhu/rhu/internal/platform/audit"
	"github.com/rhu/rhu/internal/platform/db/dbtest"
	"github.com/rhu/rhu/internal/platform/notification"
)

type memRecord struct {
	state  State
	userID int64
	note   string
}

type memRecords struct {
	rows map[int64]*memRecord
}

func (m *memRecords) Snapshot() func() {
	saved := map[int64]memRecord{}
	for id, r := range m.rows {
		saved[id] = *r
	}
	return func() {
		m.rows = map[int64]*memRecord{}
		for id, r := range saved {
			r := r
			m.rows[id] = &r
		}
	}
}

func (m *memRecords) load(_ context.Context, id int64) (*Subject, error) {
	r, ok := m.rows[id]
	if !ok {
		return nil, apperr.NotFound("record not found")
	}
	return &Subject{ID: id, Number: "CONS-2025-0001", State: r.state, PatientUserID: r.userID}, nil
}

func (m *memRecords) apply(_ context.Context, s *Subject, t Transition) (Changes, error) {
	m.rows[s.ID].state = t.To
	s.Data["consultation_number"] = s.Number
	return Changes{"status": string(t.To)}, nil
}

type recordingObserver struct {
	outcomes []string
}

func (o *recordingObserver) ObserveTransition(entity, action, outcome string) {
	o.outcomes = append(o.outcomes, entity+":"+action+":"+outcome)
}

type trackerFixture struct {
	tracker  *Tracker
	records  *memRecords
	logs     *audit.MemoryStore
	notes    *notification.MemoryStore
	runner   *dbtest.Runner
	observer *recordingObserver
}

func newTrackerFixture() *trackerFixture {
	f := &trackerFixture{
		records: &memRecords{rows: map[int64]*memRecord{
			1: {state: ConsultationInProgress, userID: 30},
			2: {state: ConsultationPending},
			3: {state: ConsultationCompleted, userID: 31},
		}},
		logs:     audit.NewMemoryStore(),
		notes:    notification.NewMemoryStore(),
		observer: &recordingObserver{},
	}
	f.runner = dbtest.NewRunner(f.records, f.logs, f.notes)
	f.tracker = NewTracker(f.runner, audit.NewRecorder(f.logs),
		notification.NewNotifier(f.notes, nil), f.observer)
	return f
}

func (f *trackerFixture) request(id int64, action Action) Request {
	return Request{
		Machine:  Consultation,
		RecordID: id,
		Action:   action,
		ActorID:  4,
		Load:     f.records.load,
		Apply:    f.records.apply,
	}
}

func TestTracker_AppliesAuditsAndNotifies(t *testing.T) {
	f := newTrackerFixture()
	res, err := f.tracker.Run(context.Background(), f.request(1, UpdateFields))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.From != ConsultationInProgress || res.To != ConsultationInProgress {
		t.Errorf("unexpected result %+v", res)
	}
	entries := f.logs.Entries()
	if len(entries) != 1 || entries[0].ActionCode != "CONSULTATION_UPDATED" {
		t.Fatalf("expected one CONSULTATION_UPDATED entry, got %v", f.logs.Actions())
	}
	if entries[0].UserID != 4 || entries[0].Module != "consultations" || entries[0].RecordID != 1 {
		t.Errorf("unexpected entry %+v", entries[0])
	}
	if entries[0].Details["from"] != "in_progress" || entries[0].Details["to"] != "in_progress" {
		t.Errorf("details should carry from/to: %v", entries[0].Details)
	}
	all := f.notes.All()
	if len(all) != 1 || all[0].UserID != 30 || all[0].Type != "consultation_updated" {
		t.Fatalf("expected one notification for user 30, got %+v", all)
	}
	if all[0].Priority != notification.PriorityLow {
		t.Errorf("expected low priority, got %s", all[0].Priority)
	}
	if res.Notification == nil {
		t.Error("result should carry the notification")
	}
}

func TestTracker_NoAccountNoNotification(t *testing.T) {
	f := newTrackerFixture()
	if _, err := f.tracker.Run(context.Background(), f.request(2, Cancel)); err != nil {
		t.Fatal(err)
	}
	if len(f.notes.All()) != 0 {
		t.Error("patient without account must not be notified")
	}
	if len(f.logs.Entries()) != 1 {
		t.Error("transition must still be audited")
	}
}

func TestTracker_IllegalSourceWritesNothing(t *testing.T) {
	f := newTrackerFixture()
	_, err := f.tracker.Run(context.Background(), f.request(3, AcceptAndSchedule))
	if !apperr.Is(err, apperr.KindInvalidState) {
		t.Fatalf("expected invalid_state, got %v", err)
	}
	if f.records.rows[3].state != ConsultationCompleted {
		t.Error("state must not change")
	}
	if len(f.logs.Entries()) != 0 || len(f.notes.All()) != 0 {
		t.Error("rejected transition must not audit or notify")
	}
	if f.observer.outcomes[0] != "consultation:accept_and_schedule:rejected" {
		t.Errorf("unexpected outcome %v", f.observer.outcomes)
	}
}

func TestTracker_FailedNotificationRollsBack(t *testing.T) {
	f := newTrackerFixture()
	req := f.request(1, MarkCompleted)
	f.tracker.notifier = failingNotifier{}

	_, err := f.tracker.Run(context.Background(), req)
	if err == nil {
		t.Fatal("expected error")
	}
	if f.records.rows[1].state != ConsultationInProgress {
		t.Error("state change must be rolled back")
	}
	if len(f.logs.Entries()) != 0 {
		t.Error("audit entry must be rolled back")
	}
	if f.runner.Rollbacks != 1 {
		t.Errorf("expected 1 rollback, got %d", f.runner.Rollbacks)
	}
	if f.observer.outcomes[0] != "consultation:mark_completed:failed" {
		t.Errorf("unexpected outcome %v", f.observer.outcomes)
	}
}

func TestTracker_ApplyErrorRollsBack(t *testing.T) {
	f := newTrackerFixture()
	req := f.request(1, MarkCompleted)
	req.Apply = func(ctx context.Context, s *Subject, tr Transition) (Changes, error) {
		f.records.rows[s.ID].state = tr.To
		return nil, apperr.Validation("diagnosis is required to complete a consultation")
	}
	_, err := f.tracker.Run(context.Background(), req)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation, got %v", err)
	}
	if f.records.rows[1].state != ConsultationInProgress {
		t.Error("partial write must be rolled back")
	}
	if len(f.notes.All()) != 0 {
		t.Error("no notification may survive a rollback")
	}
}

func TestTracker_MissingRecord(t *testing.T) {
	f := newTrackerFixture()
	_, err := f.tracker.Run(context.Background(), f.request(99, UpdateFields))
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not_found, got %v", err)
	}
}

func TestTracker_UnknownActionSkipsTransaction(t *testing.T) {
	f := newTrackerFixture()
	_, err := f.tracker.Run(context.Background(), f.request(1, "reopen"))
	if !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected validation, got %v", err)
	}
	if f.runner.Commits+f.runner.Rollbacks != 0 {
		t.Error("unknown action should not open a transaction")
	}
}

type failingNotifier struct{}

func (failingNotifier) Notify(context.Context, notification.Message) (*notification.Notification, error) {
	return nil, errors.New("notifications table unavailable")
}
