package identity

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rhu/rhu/internal/platform/apperr"
)

// memoryDB backs all four repositories so a fake transaction can snapshot
// them together.
type memoryDB struct {
	patients  map[int64]*Patient
	users     map[int64]*User
	staff     map[int64]*Staff
	barangays map[int64]*Barangay
	nextID    int64
}

func newMemoryDB() *memoryDB {
	return &memoryDB{
		patients: map[int64]*Patient{},
		users:    map[int64]*User{},
		staff:    map[int64]*Staff{},
		barangays: map[int64]*Barangay{
			1: {ID: 1, Name: "Poblacion", IsActive: true},
			2: {ID: 2, Name: "San Isidro", IsActive: true},
			3: {ID: 3, Name: "Old Sitio", IsActive: false},
		},
		nextID: 100,
	}
}

func (m *memoryDB) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memoryDB) Snapshot() func() {
	patients := map[int64]Patient{}
	for k, v := range m.patients {
		patients[k] = *v
	}
	users := map[int64]User{}
	for k, v := range m.users {
		users[k] = *v
	}
	staff := map[int64]Staff{}
	for k, v := range m.staff {
		staff[k] = *v
	}
	return func() {
		m.patients = map[int64]*Patient{}
		for k, v := range patients {
			v := v
			m.patients[k] = &v
		}
		m.users = map[int64]*User{}
		for k, v := range users {
			v := v
			m.users[k] = &v
		}
		m.staff = map[int64]*Staff{}
		for k, v := range staff {
			v := v
			m.staff[k] = &v
		}
	}
}

func (m *memoryDB) repos() Repos {
	return Repos{
		Patients:  &mockPatientRepo{m},
		Users:     &mockUserRepo{m},
		Staff:     &mockStaffRepo{m},
		Barangays: &mockBarangayRepo{m},
	}
}

// -- Mock Patient Repository --

type mockPatientRepo struct{ m *memoryDB }

func (r *mockPatientRepo) Create(_ context.Context, p *Patient) error {
	for _, other := range r.m.patients {
		if other.PatientNumber == p.PatientNumber {
			return apperr.Conflict("patient number %s already exists", p.PatientNumber)
		}
	}
	p.ID = r.m.id()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	r.m.patients[p.ID] = &cp
	return nil
}

func (r *mockPatientRepo) GetByID(_ context.Context, id int64) (*Patient, error) {
	p, ok := r.m.patients[id]
	if !ok {
		return nil, apperr.NotFound("patient %d not found", id)
	}
	cp := *p
	if p.UserID != nil {
		if u, ok := r.m.users[*p.UserID]; ok {
			cp.Username = &u.Username
		}
	}
	return &cp, nil
}

func (r *mockPatientRepo) GetForUpdate(ctx context.Context, id int64) (*Patient, error) {
	return r.GetByID(ctx, id)
}

func (r *mockPatientRepo) Update(_ context.Context, p *Patient) error {
	if _, ok := r.m.patients[p.ID]; !ok {
		return apperr.NotFound("patient %d not found", p.ID)
	}
	p.UpdatedAt = time.Now()
	cp := *p
	r.m.patients[p.ID] = &cp
	return nil
}

func (r *mockPatientRepo) SetActive(_ context.Context, id int64, active bool) error {
	r.m.patients[id].IsActive = active
	return nil
}

func (r *mockPatientRepo) LinkUser(_ context.Context, patientID, userID int64) error {
	r.m.patients[patientID].UserID = &userID
	return nil
}

func (r *mockPatientRepo) Search(_ context.Context, q PatientSearch) ([]*Patient, int, error) {
	var out []*Patient
	for _, p := range r.m.patients {
		if q.Query != "" {
			hay := strings.ToLower(p.FirstName + " " + p.LastName + " " + p.PatientNumber)
			if !strings.Contains(hay, strings.ToLower(q.Query)) {
				continue
			}
		}
		if q.BarangayID > 0 && p.BarangayID != q.BarangayID {
			continue
		}
		if q.Active != nil && p.IsActive != *q.Active {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastName < out[j].LastName })
	total := len(out)
	if q.Offset >= total {
		return nil, total, nil
	}
	end := q.Offset + q.Limit
	if end > total {
		end = total
	}
	return out[q.Offset:end], total, nil
}

// -- Mock User Repository --

type mockUserRepo struct{ m *memoryDB }

func (r *mockUserRepo) Create(_ context.Context, u *User) error {
	for _, other := range r.m.users {
		if strings.EqualFold(other.Username, u.Username) {
			return apperr.Conflict("username already exists")
		}
	}
	u.ID = r.m.id()
	u.CreatedAt = time.Now()
	cp := *u
	r.m.users[u.ID] = &cp
	return nil
}

func (r *mockUserRepo) GetByID(_ context.Context, id int64) (*User, error) {
	u, ok := r.m.users[id]
	if !ok {
		return nil, apperr.NotFound("user %d not found", id)
	}
	cp := *u
	return &cp, nil
}

func (r *mockUserRepo) UsernameExists(_ context.Context, username string) (bool, error) {
	for _, u := range r.m.users {
		if strings.EqualFold(u.Username, username) {
			return true, nil
		}
	}
	return false, nil
}

func (r *mockUserRepo) UpdatePassword(_ context.Context, id int64, hash string) error {
	u, ok := r.m.users[id]
	if !ok {
		return apperr.NotFound("user %d not found", id)
	}
	u.PasswordHash = hash
	return nil
}

func (r *mockUserRepo) SetActive(_ context.Context, id int64, active bool) error {
	r.m.users[id].IsActive = active
	return nil
}

// -- Mock Staff Repository --

type mockStaffRepo struct{ m *memoryDB }

func (r *mockStaffRepo) Create(_ context.Context, s *Staff) error {
	s.ID = r.m.id()
	cp := *s
	r.m.staff[s.ID] = &cp
	return nil
}

func (r *mockStaffRepo) GetByID(_ context.Context, id int64) (*Staff, error) {
	s, ok := r.m.staff[id]
	if !ok {
		return nil, apperr.NotFound("staff member %d not found", id)
	}
	cp := *s
	return &cp, nil
}

func (r *mockStaffRepo) List(_ context.Context, f StaffFilter) ([]*Staff, error) {
	var out []*Staff
	for _, s := range r.m.staff {
		if f.Position != "" && !strings.EqualFold(s.Position, f.Position) {
			continue
		}
		if f.Department != "" && s.Department != f.Department {
			continue
		}
		if f.Active != nil && s.IsActive != *f.Active {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// -- Mock Barangay Repository --

type mockBarangayRepo struct{ m *memoryDB }

func (r *mockBarangayRepo) GetByID(_ context.Context, id int64) (*Barangay, error) {
	b, ok := r.m.barangays[id]
	if !ok {
		return nil, apperr.NotFound("barangay %d not found", id)
	}
	return b, nil
}

func (r *mockBarangayRepo) List(_ context.Context, activeOnly bool) ([]*Barangay, error) {
	var out []*Barangay
	for _, b := range r.m.barangays {
		if activeOnly && !b.IsActive {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
