package referral

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rhu/rhu/internal/domain/consultation"
	"github.com/rhu/rhu/internal/domain/identity"
	"github.com/rhu/rhu/internal/platform/apperr"
)

type mockRepo struct {
	refs   map[int64]*Referral
	nextID int64
}

func newMockRepo() *mockRepo {
	return &mockRepo{refs: map[int64]*Referral{}, nextID: 300}
}

func (r *mockRepo) Snapshot() func() {
	saved := map[int64]Referral{}
	for k, v := range r.refs {
		saved[k] = *v
	}
	return func() {
		r.refs = map[int64]*Referral{}
		for k, v := range saved {
			v := v
			r.refs[k] = &v
		}
	}
}

func (r *mockRepo) Create(_ context.Context, ref *Referral) error {
	r.nextID++
	ref.ID = r.nextID
	ref.CreatedAt = time.Now()
	ref.UpdatedAt = ref.CreatedAt
	cp := *ref
	r.refs[ref.ID] = &cp
	return nil
}

func (r *mockRepo) GetByID(_ context.Context, id int64) (*Referral, error) {
	ref, ok := r.refs[id]
	if !ok {
		return nil, apperr.NotFound("referral %d not found", id)
	}
	cp := *ref
	return &cp, nil
}

func (r *mockRepo) GetForUpdate(ctx context.Context, id int64) (*Referral, error) {
	return r.GetByID(ctx, id)
}

func (r *mockRepo) Update(_ context.Context, ref *Referral) error {
	if _, ok := r.refs[ref.ID]; !ok {
		return apperr.NotFound("referral %d not found", ref.ID)
	}
	ref.UpdatedAt = time.Now()
	cp := *ref
	r.refs[ref.ID] = &cp
	return nil
}

func (r *mockRepo) Search(_ context.Context, p SearchParams) ([]*Referral, int, error) {
	var out []*Referral
	for _, ref := range r.refs {
		if p.Status != "" && ref.Status != p.Status {
			continue
		}
		if p.PatientID > 0 && ref.PatientID != p.PatientID {
			continue
		}
		if p.Urgency != "" && ref.Urgency != p.Urgency {
			continue
		}
		if p.Query != "" && !strings.Contains(strings.ToLower(ref.ReferralNumber+" "+ref.FacilityName+" "+ref.Reason), strings.ToLower(p.Query)) {
			continue
		}
		cp := *ref
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

type directory struct {
	patients      map[int64]*identity.Patient
	staff         map[int64]*identity.Staff
	consultations map[int64]*consultation.Consultation
}

func newDirectory() *directory {
	userID := int64(70)
	diagnosis := "Suspected appendicitis"
	return &directory{
		patients: map[int64]*identity.Patient{
			7: {ID: 7, PatientNumber: "P-2025-0007", FirstName: "Juan", LastName: "Dela Cruz", UserID: &userID, IsActive: true},
			8: {ID: 8, PatientNumber: "P-2025-0008", FirstName: "Maria", LastName: "Santos", IsActive: true},
			9: {ID: 9, PatientNumber: "P-2025-0009", FirstName: "Pedro", LastName: "Reyes", IsActive: false},
		},
		staff: map[int64]*identity.Staff{
			3: {ID: 3, FirstName: "Jose", LastName: "Rizal", Position: identity.PositionDoctor, IsActive: true},
		},
		consultations: map[int64]*consultation.Consultation{
			40: {ID: 40, ConsultationNumber: "CONS-2025-0040", PatientID: 7, Diagnosis: &diagnosis},
			41: {ID: 41, ConsultationNumber: "CONS-2025-0041", PatientID: 8},
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

func (d *directory) Get(_ context.Context, id int64) (*consultation.Consultation, error) {
	c, ok := d.consultations[id]
	if !ok {
		return nil, apperr.NotFound("consultation %d not found", id)
	}
	cp := *c
	return &cp, nil
}
