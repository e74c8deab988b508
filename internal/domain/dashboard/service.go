package dashboard

import (
	"context"
	"time"

	"github.com/rhu/rhu/internal/domain/workflow"
	"github.com/rhu/rhu/internal/platform/audit"
)

const recentLogs = 5

type LogSearcher interface {
	Search(ctx context.Context, p audit.SearchParams) ([]*audit.Entry, int, error)
}

type Service struct {
	repo Repository
	logs LogSearcher
	loc  *time.Location
	now  func() time.Time
}

func NewService(repo Repository, logs LogSearcher, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{repo: repo, logs: logs, loc: loc, now: time.Now}
}

// Summary gathers the dashboard counts. Every state of each workflow is
// present in the status maps, zero when no record is in it.
func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	now := s.now()
	out := &Summary{GeneratedAt: now.UTC()}

	var err error
	if out.ActivePatients, err = s.repo.ActivePatients(ctx); err != nil {
		return nil, err
	}
	if out.Consultations, err = s.statusCounts(ctx, TableConsultations, workflow.Consultation); err != nil {
		return nil, err
	}
	if out.Certificates, err = s.statusCounts(ctx, TableCertificates, workflow.Certificate); err != nil {
		return nil, err
	}
	if out.Referrals, err = s.statusCounts(ctx, TableReferrals, workflow.Referral); err != nil {
		return nil, err
	}

	y, m, d := now.In(s.loc).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, s.loc)
	if out.ScheduledToday, err = s.repo.ScheduledBetween(ctx, start, start.AddDate(0, 0, 1)); err != nil {
		return nil, err
	}
	if out.UnreadNotifications, err = s.repo.UnreadNotifications(ctx); err != nil {
		return nil, err
	}
	if out.RecentLogs, _, err = s.logs.Search(ctx, audit.SearchParams{Limit: recentLogs}); err != nil {
		return nil, err
	}
	if out.RecentLogs == nil {
		out.RecentLogs = []*audit.Entry{}
	}
	return out, nil
}

func (s *Service) statusCounts(ctx context.Context, t Table, m *workflow.Machine) (map[string]int, error) {
	counts, err := s.repo.StatusCounts(ctx, t)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(m.States()))
	for _, st := range m.States() {
		out[string(st)] = counts[string(st)]
	}
	return out, nil
}
