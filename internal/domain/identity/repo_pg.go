package identity

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhu/rhu/internal/platform/apperr"
	"github.com/rhu/rhu/internal/platform/db"
)

// -- Patient Repository --

type patientRepoPG struct {
	pool *pgxpool.Pool
}

func NewPatientRepo(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const patientCols = `p.id, p.patient_number, p.user_id, u.username, p.first_name, p.middle_name, p.last_name,
	p.birth_date, p.sex, p.civil_status, p.contact_number, p.email, p.address,
	p.barangay_id, COALESCE(b.name, ''), p.philhealth_number, p.blood_type, p.allergies,
	p.emergency_contact_name, p.emergency_contact_number, p.is_active, p.created_by,
	p.created_at, p.updated_at`

const patientFrom = ` FROM patients p
	LEFT JOIN barangays b ON b.id = p.barangay_id
	LEFT JOIN users u ON u.id = p.user_id`

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (
			patient_number, first_name, middle_name, last_name, birth_date, sex, civil_status,
			contact_number, email, address, barangay_id, philhealth_number, blood_type, allergies,
			emergency_contact_name, emergency_contact_number, is_active, created_by
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		RETURNING id, created_at, updated_at`,
		p.PatientNumber, p.FirstName, p.MiddleName, p.LastName, p.BirthDate, p.Sex, p.CivilStatus,
		p.ContactNumber, p.Email, p.Address, p.BarangayID, p.PhilHealthNumber, p.BloodType, p.Allergies,
		p.EmergencyContactName, p.EmergencyContactNumber, p.IsActive, p.CreatedBy,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if db.IsUniqueViolation(err, "patients_patient_number_key") {
		return apperr.Conflict("patient number %s already exists", p.PatientNumber)
	}
	return err
}

func (r *patientRepoPG) GetByID(ctx context.Context, id int64) (*Patient, error) {
	return r.get(ctx, `SELECT `+patientCols+patientFrom+` WHERE p.id = $1`, id)
}

func (r *patientRepoPG) GetForUpdate(ctx context.Context, id int64) (*Patient, error) {
	return r.get(ctx, `SELECT `+patientCols+patientFrom+` WHERE p.id = $1 FOR UPDATE OF p`, id)
}

func (r *patientRepoPG) get(ctx context.Context, query string, id int64) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, query, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("patient %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get patient %d: %w", id, err)
	}
	return p, nil
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	return r.conn(ctx).QueryRow(ctx, `
		UPDATE patients SET
			first_name=$2, middle_name=$3, last_name=$4, birth_date=$5, sex=$6, civil_status=$7,
			contact_number=$8, email=$9, address=$10, barangay_id=$11, philhealth_number=$12,
			blood_type=$13, allergies=$14, emergency_contact_name=$15, emergency_contact_number=$16,
			updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.FirstName, p.MiddleName, p.LastName, p.BirthDate, p.Sex, p.CivilStatus,
		p.ContactNumber, p.Email, p.Address, p.BarangayID, p.PhilHealthNumber,
		p.BloodType, p.Allergies, p.EmergencyContactName, p.EmergencyContactNumber,
	).Scan(&p.UpdatedAt)
}

func (r *patientRepoPG) SetActive(ctx context.Context, id int64, active bool) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE patients SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	return err
}

func (r *patientRepoPG) LinkUser(ctx context.Context, patientID, userID int64) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE patients SET user_id = $2, updated_at = NOW() WHERE id = $1`, patientID, userID)
	if db.IsUniqueViolation(err, "patients_user_id_key") {
		return apperr.Conflict("user account is already linked to another patient")
	}
	return err
}

func (r *patientRepoPG) Search(ctx context.Context, q PatientSearch) ([]*Patient, int, error) {
	where := " WHERE 1=1"
	var args []interface{}
	idx := 1

	if q.Query != "" {
		where += fmt.Sprintf(` AND (p.first_name ILIKE $%d OR p.last_name ILIKE $%d
			OR (p.first_name || ' ' || p.last_name) ILIKE $%d OR p.patient_number ILIKE $%d)`, idx, idx, idx, idx)
		args = append(args, "%"+q.Query+"%")
		idx++
	}
	if q.BarangayID > 0 {
		where += fmt.Sprintf(" AND p.barangay_id = $%d", idx)
		args = append(args, q.BarangayID)
		idx++
	}
	if q.Active != nil {
		where += fmt.Sprintf(" AND p.is_active = $%d", idx)
		args = append(args, *q.Active)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, "SELECT COUNT(*) FROM patients p"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}

	query := "SELECT " + patientCols + patientFrom + where +
		fmt.Sprintf(" ORDER BY p.last_name, p.first_name, p.id LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, q.Limit, q.Offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search patients: %w", err)
	}
	defer rows.Close()

	var patients []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		patients = append(patients, p)
	}
	return patients, total, rows.Err()
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID, &p.PatientNumber, &p.UserID, &p.Username, &p.FirstName, &p.MiddleName, &p.LastName,
		&p.BirthDate, &p.Sex, &p.CivilStatus, &p.ContactNumber, &p.Email, &p.Address,
		&p.BarangayID, &p.BarangayName, &p.PhilHealthNumber, &p.BloodType, &p.Allergies,
		&p.EmergencyContactName, &p.EmergencyContactNumber, &p.IsActive, &p.CreatedBy,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// -- User Repository --

type userRepoPG struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) UserRepository {
	return &userRepoPG{pool: pool}
}

func (r *userRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

func (r *userRepoPG) Create(ctx context.Context, u *User) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO users (username, password_hash, role, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		u.Username, u.PasswordHash, u.Role, u.IsActive,
	).Scan(&u.ID, &u.CreatedAt)
	if db.IsUniqueViolation(err, "users_username_key") {
		return apperr.Conflict("username already exists")
	}
	return err
}

func (r *userRepoPG) GetByID(ctx context.Context, id int64) (*User, error) {
	var u User
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, username, password_hash, role, is_active, last_login_at, created_at
		FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.IsActive, &u.LastLoginAt, &u.CreatedAt)
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("user %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	return &u, nil
}

func (r *userRepoPG) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE LOWER(username) = LOWER($1))`, username).Scan(&exists)
	return exists, err
}

func (r *userRepoPG) UpdatePassword(ctx context.Context, id int64, hash string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("user %d not found", id)
	}
	return nil
}

func (r *userRepoPG) SetActive(ctx context.Context, id int64, active bool) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE users SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	return err
}

// -- Staff Repository --

type staffRepoPG struct {
	pool *pgxpool.Pool
}

func NewStaffRepo(pool *pgxpool.Pool) StaffRepository {
	return &staffRepoPG{pool: pool}
}

func (r *staffRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const staffCols = `id, user_id, first_name, last_name, position, department,
	license_number, contact_number, is_active, created_at, updated_at`

func (r *staffRepoPG) Create(ctx context.Context, s *Staff) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO staff (user_id, first_name, last_name, position, department, license_number, contact_number, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`,
		s.UserID, s.FirstName, s.LastName, s.Position, s.Department, s.LicenseNumber, s.ContactNumber, s.IsActive,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
}

func (r *staffRepoPG) GetByID(ctx context.Context, id int64) (*Staff, error) {
	s, err := scanStaff(r.conn(ctx).QueryRow(ctx, `SELECT `+staffCols+` FROM staff WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("staff member %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get staff %d: %w", id, err)
	}
	return s, nil
}

func (r *staffRepoPG) List(ctx context.Context, f StaffFilter) ([]*Staff, error) {
	query := `SELECT ` + staffCols + ` FROM staff WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.Position != "" {
		query += fmt.Sprintf(" AND LOWER(position) = LOWER($%d)", idx)
		args = append(args, f.Position)
		idx++
	}
	if f.Department != "" {
		query += fmt.Sprintf(" AND department = $%d", idx)
		args = append(args, f.Department)
		idx++
	}
	if f.Active != nil {
		query += fmt.Sprintf(" AND is_active = $%d", idx)
		args = append(args, *f.Active)
	}
	query += " ORDER BY last_name, first_name"

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list staff: %w", err)
	}
	defer rows.Close()

	var out []*Staff
	for rows.Next() {
		s, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanStaff(row pgx.Row) (*Staff, error) {
	var s Staff
	err := row.Scan(&s.ID, &s.UserID, &s.FirstName, &s.LastName, &s.Position, &s.Department,
		&s.LicenseNumber, &s.ContactNumber, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// -- Barangay Repository --

type barangayRepoPG struct {
	pool *pgxpool.Pool
}

func NewBarangayRepo(pool *pgxpool.Pool) BarangayRepository {
	return &barangayRepoPG{pool: pool}
}

func (r *barangayRepoPG) GetByID(ctx context.Context, id int64) (*Barangay, error) {
	var b Barangay
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT id, name, municipality, is_active, created_at FROM barangays WHERE id = $1`, id,
	).Scan(&b.ID, &b.Name, &b.Municipality, &b.IsActive, &b.CreatedAt)
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("barangay %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get barangay %d: %w", id, err)
	}
	return &b, nil
}

func (r *barangayRepoPG) List(ctx context.Context, activeOnly bool) ([]*Barangay, error) {
	query := `SELECT id, name, municipality, is_active, created_at FROM barangays`
	if activeOnly {
		query += ` WHERE is_active`
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query+` ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list barangays: %w", err)
	}
	defer rows.Close()

	var out []*Barangay
	for rows.Next() {
		var b Barangay
		if err := rows.Scan(&b.ID, &b.Name, &b.Municipality, &b.IsActive, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &b)
	}
	return out, rows.Err()
}
