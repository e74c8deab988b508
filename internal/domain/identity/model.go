package identity

import (
	"strings"
	"time"
)

type Sex string

const (
	SexMale   Sex = "male"
	SexFemale Sex = "female"
)

func (s Sex) Valid() bool { return s == SexMale || s == SexFemale }

// Patient maps to the patients table. UserID is set once a portal account
// has been created for the patient.
type Patient struct {
	ID                     int64     `json:"id"`
	PatientNumber          string    `json:"patient_number"`
	UserID                 *int64    `json:"user_id,omitempty"`
	Username               *string   `json:"username,omitempty"`
	FirstName              string    `json:"first_name"`
	MiddleName             *string   `json:"middle_name,omitempty"`
	LastName               string    `json:"last_name"`
	BirthDate              time.Time `json:"birth_date"`
	Sex                    Sex       `json:"sex"`
	CivilStatus            *string   `json:"civil_status,omitempty"`
	ContactNumber          *string   `json:"contact_number,omitempty"`
	Email                  *string   `json:"email,omitempty"`
	Address                *string   `json:"address,omitempty"`
	BarangayID             int64     `json:"barangay_id"`
	BarangayName           string    `json:"barangay_name,omitempty"`
	PhilHealthNumber       *string   `json:"philhealth_number,omitempty"`
	BloodType              *string   `json:"blood_type,omitempty"`
	Allergies              *string   `json:"allergies,omitempty"`
	EmergencyContactName   *string   `json:"emergency_contact_name,omitempty"`
	EmergencyContactNumber *string   `json:"emergency_contact_number,omitempty"`
	IsActive               bool      `json:"is_active"`
	CreatedBy              *int64    `json:"created_by,omitempty"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

func (p *Patient) FullName() string {
	parts := []string{p.FirstName}
	if p.MiddleName != nil && *p.MiddleName != "" {
		parts = append(parts, *p.MiddleName)
	}
	parts = append(parts, p.LastName)
	return strings.Join(parts, " ")
}

// HasAccount reports whether the patient can receive notifications.
func (p *Patient) HasAccount() bool {
	return p.UserID != nil && *p.UserID > 0
}

// AccountUserID is the linked user id, or zero.
func (p *Patient) AccountUserID() int64 {
	if !p.HasAccount() {
		return 0
	}
	return *p.UserID
}

// Age in whole years on the given day.
func (p *Patient) Age(on time.Time) int {
	years := on.Year() - p.BirthDate.Year()
	if on.Month() < p.BirthDate.Month() || (on.Month() == p.BirthDate.Month() && on.Day() < p.BirthDate.Day()) {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}

// Staff maps to the staff table.
type Staff struct {
	ID            int64     `json:"id"`
	UserID        *int64    `json:"user_id,omitempty"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	Position      string    `json:"position"`
	Department    string    `json:"department"`
	LicenseNumber *string   `json:"license_number,omitempty"`
	ContactNumber *string   `json:"contact_number,omitempty"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (s *Staff) FullName() string {
	return s.FirstName + " " + s.LastName
}

// DisplayName prefixes doctors with "Dr.".
func (s *Staff) DisplayName() string {
	if strings.EqualFold(s.Position, PositionDoctor) {
		return "Dr. " + s.FullName()
	}
	return s.FullName()
}

const PositionDoctor = "doctor"

type Barangay struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Municipality string    `json:"municipality,omitempty"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// User maps to the users table.
type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	Role         string     `json:"role"`
	IsActive     bool       `json:"is_active"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// PatientSearch filters the patient list. Query matches name or patient
// number.
type PatientSearch struct {
	Query      string
	BarangayID int64
	Active     *bool
	Limit      int
	Offset     int
}

type StaffFilter struct {
	Position   string
	Department string
	Active     *bool
}
