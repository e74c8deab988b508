package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/rhu/rhu/internal/platform/audit"
)

type mockRepo struct {
	active    int
	statuses  map[Table]map[string]int
	scheduled []time.Time
	unread    int
	err       error
}

func (r *mockRepo) ActivePatients(context.Context) (int, error) {
	return r.active, r.err
}

func (r *mockRepo) StatusCounts(_ context.Context, t Table) (map[string]int, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.statuses[t], nil
}

func (r *mockRepo) ScheduledBetween(_ context.Context, from, to time.Time) (int, error) {
	n := 0
	for _, at := range r.scheduled {
		if !at.Before(from) && at.Before(to) {
			n++
		}
	}
	return n, r.err
}

func (r *mockRepo) UnreadNotifications(context.Context) (int, error) {
	return r.unread, r.err
}

func newFixture(t *testing.T) (*Service, *mockRepo, *audit.MemoryStore) {
	t.Helper()
	manila := time.FixedZone("PHT", 8*3600)
	repo := &mockRepo{
		active: 12,
		statuses: map[Table]map[string]int{
			TableConsultations: {"pending": 2, "in_progress": 1},
			TableCertificates:  {"ready_for_download": 4},
		},
		scheduled: []time.Time{
			time.Date(2025, 6, 2, 9, 0, 0, 0, manila),
			time.Date(2025, 6, 2, 23, 59, 0, 0, manila),
			time.Date(2025, 6, 3, 0, 0, 0, 0, manila),
			time.Date(2025, 6, 1, 23, 0, 0, 0, manila),
		},
		unread: 3,
	}
	logs := audit.NewMemoryStore()
	rec := audit.NewRecorder(logs)
	for i := 0; i < 7; i++ {
		if err := rec.Record(context.Background(), audit.Entry{UserID: 4, ActionCode: "PATIENT_UPDATED", Module: "patients", RecordID: int64(i + 1)}); err != nil {
			t.Fatal(err)
		}
	}
	svc := NewService(repo, rec, manila)
	// 07:00 on June 2 in Manila is still June 1 in UTC.
	svc.now = func() time.Time { return time.Date(2025, 6, 1, 23, 0, 0, 0, time.UTC) }
	return svc, repo, logs
}

func TestService_Summary(t *testing.T) {
	svc, _, _ := newFixture(t)
	sum, err := svc.Summary(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.ActivePatients != 12 || sum.UnreadNotifications != 3 {
		t.Errorf("unexpected counts %+v", sum)
	}
	if sum.ScheduledToday != 2 {
		t.Errorf("expected 2 scheduled today in clinic time, got %d", sum.ScheduledToday)
	}
	if sum.Consultations["pending"] != 2 || sum.Consultations["completed"] != 0 {
		t.Errorf("unexpected consultation counts %v", sum.Consultations)
	}
	if _, ok := sum.Consultations["cancelled"]; !ok {
		t.Error("every consultation state should be listed")
	}
	if len(sum.Certificates) != 7 || sum.Certificates["ready_for_download"] != 4 {
		t.Errorf("unexpected certificate counts %v", sum.Certificates)
	}
	if len(sum.Referrals) != 4 {
		t.Errorf("expected all referral states, got %v", sum.Referrals)
	}
	if len(sum.RecentLogs) != 5 {
		t.Errorf("expected 5 recent logs, got %d", len(sum.RecentLogs))
	}
}

func TestService_Summary_Error(t *testing.T) {
	svc, repo, _ := newFixture(t)
	repo.err = errors.New("connection refused")
	if _, err := svc.Summary(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestHandler_Summary(t *testing.T) {
	svc, _, _ := newFixture(t)
	e := echo.New()
	NewHandler(svc).RegisterRoutes(e.Group("/api/v1"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/dashboard", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Success   bool    `json:"success"`
		Dashboard Summary `json:"dashboard"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if !body.Success || body.Dashboard.ActivePatients != 12 {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}
