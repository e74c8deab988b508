package certificate

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rhu/rhu/internal/domain/identity"
	"github.com/rhu/rhu/internal/platform/apperr"
)

type mockRepo struct {
	certs  map[int64]*Certificate
	nextID int64
}

func newMockRepo() *mockRepo {
	return &mockRepo{certs: map[int64]*Certificate{}, nextID: 500}
}

func (r *mockRepo) Snapshot() func() {
	saved := map[int64]Certificate{}
	for k, v := range r.certs {
		saved[k] = *v
	}
	return func() {
		r.certs = map[int64]*Certificate{}
		for k, v := range saved {
			v := v
			r.certs[k] = &v
		}
	}
}

func (r *mockRepo) Create(_ context.Context, c *Certificate) error {
	r.nextID++
	c.ID = r.nextID
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	cp := *c
	r.certs[c.ID] = &cp
	return nil
}

func (r *mockRepo) GetByID(_ context.Context, id int64) (*Certificate, error) {
	c, ok := r.certs[id]
	if !ok {
		return nil, apperr.NotFound("certificate %d not found", id)
	}
	cp := *c
	return &cp, nil
}

func (r *mockRepo) GetForUpdate(ctx context.Context, id int64) (*Certificate, error) {
	return r.GetByID(ctx, id)
}

func (r *mockRepo) Update(_ context.Context, c *Certificate) error {
	if _, ok := r.certs[c.ID]; !ok {
		return apperr.NotFound("certificate %d not found", c.ID)
	}
	c.UpdatedAt = time.Now()
	cp := *c
	r.certs[c.ID] = &cp
	return nil
}

func (r *mockRepo) Search(_ context.Context, p SearchParams) ([]*Certificate, int, error) {
	var out []*Certificate
	for _, c := range r.certs {
		if p.Status != "" && c.Status != p.Status {
			continue
		}
		if p.PatientID > 0 && c.PatientID != p.PatientID {
			continue
		}
		if p.Query != "" && !strings.Contains(strings.ToLower(c.CertificateNumber+" "+c.Purpose), strings.ToLower(p.Query)) {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	total := len(out)
	if p.Offset >= total {
		return nil, total, nil
	}
	end := p.Offset + p.Limit
	if end > total {
		end = total
	}
	return out[p.Offset:end], total, nil
}

func (r *mockRepo) ListOverdue(_ context.Context, today time.Time, limit int) ([]int64, error) {
	var ids []int64
	for _, c := range r.certs {
		if c.Released() && c.ValidUntil != nil && c.ValidUntil.Before(today) {
			ids = append(ids, c.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

type directory struct {
	patients map[int64]*identity.Patient
	staff    map[int64]*identity.Staff
}

func newDirectory() *directory {
	userID := int64(70)
	return &directory{
		patients: map[int64]*identity.Patient{
			7: {ID: 7, PatientNumber: "P-2025-0007", FirstName: "Juan", LastName: "Dela Cruz", UserID: &userID, IsActive: true},
			8: {ID: 8, PatientNumber: "P-2025-0008", FirstName: "Maria", LastName: "Santos", IsActive: true},
			9: {ID: 9, PatientNumber: "P-2025-0009", FirstName: "Pedro", LastName: "Reyes", IsActive: false},
		},
		staff: map[int64]*identity.Staff{
			3: {ID: 3, FirstName: "Jose", LastName: "Rizal", Position: identity.PositionDoctor, IsActive: true},
			5: {ID: 5, FirstName: "Old", LastName: "Timer", Position: identity.PositionDoctor, IsActive: false},
		},
	}
}

func (d *directory) GetPatient(_ context.Context, id int64) (*identity.Patient, error) {
	p, ok := d.patients[id]
	if !ok {
		return nil, apperr.NotFound("patient %d not found", id)
	}
	cp := *p
	return &cp, nil
}

func (d *directory) GetStaff(_ context.Context, id int64) (*identity.Staff, error) {
	s, ok := d.staff[id]
	if !ok {
		return nil, apperr.NotFound("staff %d not found", id)
	}
	cp := *s
	return &cp, nil
}
