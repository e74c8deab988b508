package consultation

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rhu/rhu/internal/domain/identity"
	"github.com/rhu/rhu/internal/domain/workflow"
	"github.com/rhu/rhu/internal/platform/apperr"
)

type memoryDB struct {
	consultations map[int64]*Consultation
	prescriptions map[int64]*Prescription
	medicines     map[int64]*Medicine
	nextID        int64
}

func newMemoryDB() *memoryDB {
	return &memoryDB{
		consultations: map[int64]*Consultation{},
		prescriptions: map[int64]*Prescription{},
		medicines: map[int64]*Medicine{
			1: {ID: 1, Name: "Paracetamol", StockQuantity: 500, IsActive: true},
			2: {ID: 2, Name: "Amoxicillin", StockQuantity: 200, IsActive: true},
			3: {ID: 3, Name: "Discontinued Syrup", IsActive: false},
		},
		nextID: 100,
	}
}

func (m *memoryDB) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memoryDB) Snapshot() func() {
	cons := map[int64]Consultation{}
	for k, v := range m.consultations {
		cons[k] = *v
	}
	rxs := map[int64]Prescription{}
	for k, v := range m.prescriptions {
		rxs[k] = *v
	}
	return func() {
		m.consultations = map[int64]*Consultation{}
		for k, v := range cons {
			v := v
			m.consultations[k] = &v
		}
		m.prescriptions = map[int64]*Prescription{}
		for k, v := range rxs {
			v := v
			m.prescriptions[k] = &v
		}
	}
}

func (m *memoryDB) repos() Repos {
	return Repos{
		Consultations: &mockConsultationRepo{m},
		Prescriptions: &mockPrescriptionRepo{m},
		Medicines:     &mockMedicineRepo{m},
	}
}

// -- Mock Consultation Repository --

type mockConsultationRepo struct{ m *memoryDB }

func (r *mockConsultationRepo) Create(_ context.Context, c *Consultation) error {
	if c.ScheduledAt != nil && c.DoctorID != nil && r.slotTaken(*c.DoctorID, *c.ScheduledAt, 0) {
		return ErrSlotTaken
	}
	c.ID = r.m.id()
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	cp := *c
	r.m.consultations[c.ID] = &cp
	return nil
}

func (r *mockConsultationRepo) GetByID(_ context.Context, id int64) (*Consultation, error) {
	c, ok := r.m.consultations[id]
	if !ok {
		return nil, apperr.NotFound("consultation %d not found", id)
	}
	cp := *c
	return &cp, nil
}

func (r *mockConsultationRepo) GetForUpdate(ctx context.Context, id int64) (*Consultation, error) {
	return r.GetByID(ctx, id)
}

// Update enforces the same partial unique index as the schema.
func (r *mockConsultationRepo) Update(_ context.Context, c *Consultation) error {
	if _, ok := r.m.consultations[c.ID]; !ok {
		return apperr.NotFound("consultation %d not found", c.ID)
	}
	open := c.Status == workflow.ConsultationPending || c.Status == workflow.ConsultationInProgress
	if open && c.ScheduledAt != nil && c.DoctorID != nil && r.slotTaken(*c.DoctorID, *c.ScheduledAt, c.ID) {
		return ErrSlotTaken
	}
	c.UpdatedAt = time.Now()
	cp := *c
	r.m.consultations[c.ID] = &cp
	return nil
}

func (r *mockConsultationRepo) SlotTaken(_ context.Context, doctorID int64, at time.Time, excludeID int64) (bool, error) {
	return r.slotTaken(doctorID, at, excludeID), nil
}

func (r *mockConsultationRepo) slotTaken(doctorID int64, at time.Time, excludeID int64) bool {
	for _, c := range r.m.consultations {
		if c.ID == excludeID || c.DoctorID == nil || *c.DoctorID != doctorID || c.ScheduledAt == nil {
			continue
		}
		if c.Status != workflow.ConsultationPending && c.Status != workflow.ConsultationInProgress {
			continue
		}
		if c.ScheduledAt.Equal(at) {
			return true
		}
	}
	return false
}

func (r *mockConsultationRepo) Search(_ context.Context, p SearchParams) ([]*Consultation, int, error) {
	var out []*Consultation
	for _, c := range r.m.consultations {
		if p.Status != "" && c.Status != p.Status {
			continue
		}
		if p.PatientID > 0 && c.PatientID != p.PatientID {
			continue
		}
		if p.DoctorID > 0 && (c.DoctorID == nil || *c.DoctorID != p.DoctorID) {
			continue
		}
		if p.Query != "" {
			hay := strings.ToLower(c.ConsultationNumber + " " + c.ChiefComplaint + " " + deref(c.Diagnosis))
			if !strings.Contains(hay, strings.ToLower(p.Query)) {
				continue
			}
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

// -- Mock Prescription Repository --

type mockPrescriptionRepo struct{ m *memoryDB }

func (r *mockPrescriptionRepo) Create(_ context.Context, p *Prescription) error {
	p.ID = r.m.id()
	p.CreatedAt = time.Now()
	for i := range p.Items {
		p.Items[i].ID = r.m.id()
		p.Items[i].PrescriptionID = p.ID
	}
	cp := *p
	cp.Items = append([]PrescriptionItem(nil), p.Items...)
	r.m.prescriptions[p.ID] = &cp
	return nil
}

func (r *mockPrescriptionRepo) ListByConsultation(_ context.Context, consultationID int64) ([]*Prescription, error) {
	var out []*Prescription
	for _, p := range r.m.prescriptions {
		if p.ConsultationID == consultationID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *mockPrescriptionRepo) GetByNumber(_ context.Context, number string) (*Prescription, error) {
	for _, p := range r.m.prescriptions {
		if p.PrescriptionNumber == number {
			cp := *p
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("prescription %s not found", number)
}

// -- Mock Medicine Repository --

type mockMedicineRepo struct{ m *memoryDB }

func (r *mockMedicineRepo) GetByID(_ context.Context, id int64) (*Medicine, error) {
	m, ok := r.m.medicines[id]
	if !ok {
		return nil, apperr.NotFound("medicine %d not found", id)
	}
	cp := *m
	return &cp, nil
}

func (r *mockMedicineRepo) Search(_ context.Context, query string, limit int) ([]*Medicine, error) {
	var out []*Medicine
	for _, m := range r.m.medicines {
		if !m.IsActive {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(m.Name), strings.ToLower(query)) {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// -- Directory --

// directory stands in for identity.Service.
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
			2: {ID: 2, FirstName: "Ana", LastName: "Lim", Position: identity.PositionDoctor, IsActive: true},
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
