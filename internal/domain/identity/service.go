package identity

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rhu/rhu/internal/domain/sequence"
	"github.com/rhu/rhu/internal/platform/apperr"
	"github.com/rhu/rhu/internal/platform/audit"
	"github.com/rhu/rhu/internal/platform/auth"
	"github.com/rhu/rhu/internal/platform/db"
	"github.com/rhu/rhu/internal/platform/notification"
)

const (
	modulePatients = "patients"
	moduleStaff    = "staff"
)

type Auditor interface {
	Record(ctx context.Context, e audit.Entry) error
}

type Notifier interface {
	Notify(ctx context.Context, m notification.Message) (*notification.Notification, error)
	ListForUser(ctx context.Context, userID int64, unreadOnly bool, limit, offset int) ([]*notification.Notification, int, error)
}

type Repos struct {
	Patients  PatientRepository
	Users     UserRepository
	Staff     StaffRepository
	Barangays BarangayRepository
}

type Service struct {
	repos      Repos
	tx         db.TxRunner
	seq        *sequence.Generator
	audit      Auditor
	notifier   Notifier
	loc        *time.Location
	department string
	now        func() time.Time
}

func NewService(repos Repos, tx db.TxRunner, seq *sequence.Generator, auditor Auditor, notifier Notifier, loc *time.Location, department string) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		repos:      repos,
		tx:         tx,
		seq:        seq,
		audit:      auditor,
		notifier:   notifier,
		loc:        loc,
		department: department,
		now:        time.Now,
	}
}

// -- Patients --

// PatientInput carries the editable patient fields. On update, nil fields
// are left unchanged.
type PatientInput struct {
	FirstName              *string `json:"first_name"`
	MiddleName             *string `json:"middle_name"`
	LastName               *string `json:"last_name"`
	BirthDate              *string `json:"birth_date"`
	Sex                    *string `json:"sex"`
	CivilStatus            *string `json:"civil_status"`
	ContactNumber          *string `json:"contact_number"`
	Email                  *string `json:"email"`
	Address                *string `json:"address"`
	BarangayID             *int64  `json:"barangay_id"`
	PhilHealthNumber       *string `json:"philhealth_number"`
	BloodType              *string `json:"blood_type"`
	Allergies              *string `json:"allergies"`
	EmergencyContactName   *string `json:"emergency_contact_name"`
	EmergencyContactNumber *string `json:"emergency_contact_number"`
}

func (s *Service) RegisterPatient(ctx context.Context, actor auth.Identity, in PatientInput) (*Patient, error) {
	if blank(in.FirstName) || blank(in.LastName) {
		return nil, apperr.Validation("first name and last name are required")
	}
	if blank(in.BirthDate) {
		return nil, apperr.Validation("birth date is required")
	}
	if blank(in.Sex) {
		return nil, apperr.Validation("sex is required")
	}
	if in.BarangayID == nil || *in.BarangayID <= 0 {
		return nil, apperr.Validation("barangay is required")
	}

	p := &Patient{IsActive: true}
	if actor.StaffID > 0 {
		p.CreatedBy = &actor.StaffID
	}
	if _, err := s.applyPatientInput(ctx, p, in); err != nil {
		return nil, err
	}

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		number, err := s.seq.NextAt(ctx, sequence.PrefixPatient, s.now())
		if err != nil {
			return err
		}
		p.PatientNumber = number
		if err := s.repos.Patients.Create(ctx, p); err != nil {
			return err
		}
		return s.audit.Record(ctx, audit.Entry{
			UserID:     actor.UserID,
			ActionCode: "PATIENT_REGISTERED",
			Module:     modulePatients,
			RecordID:   p.ID,
			Details: map[string]interface{}{
				"patient_number": p.PatientNumber,
				"name":           p.FullName(),
				"barangay_id":    p.BarangayID,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) GetPatient(ctx context.Context, id int64) (*Patient, error) {
	if id <= 0 {
		return nil, apperr.Validation("invalid patient id")
	}
	return s.repos.Patients.GetByID(ctx, id)
}

// UpdatePatient applies the non-nil fields of in and records which values
// changed.
func (s *Service) UpdatePatient(ctx context.Context, actor auth.Identity, id int64, in PatientInput) (*Patient, error) {
	var out *Patient
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		p, err := s.repos.Patients.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		changes, err := s.applyPatientInput(ctx, p, in)
		if err != nil {
			return err
		}
		if len(changes) == 0 {
			return apperr.Validation("no changes to save")
		}
		if err := s.repos.Patients.Update(ctx, p); err != nil {
			return err
		}
		out = p
		return s.audit.Record(ctx, audit.Entry{
			UserID:     actor.UserID,
			ActionCode: "PATIENT_UPDATED",
			Module:     modulePatients,
			RecordID:   p.ID,
			Details: map[string]interface{}{
				"patient_number": p.PatientNumber,
				"changes":        changes,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) SearchPatients(ctx context.Context, q PatientSearch) ([]*Patient, int, error) {
	q.Query = strings.TrimSpace(q.Query)
	if q.Limit <= 0 {
		q.Limit = 20
	}
	return s.repos.Patients.Search(ctx, q)
}

func (s *Service) DeactivatePatient(ctx context.Context, actor auth.Identity, id int64) (*Patient, error) {
	return s.setPatientActive(ctx, actor, id, false)
}

func (s *Service) ActivatePatient(ctx context.Context, actor auth.Identity, id int64) (*Patient, error) {
	return s.setPatientActive(ctx, actor, id, true)
}

// setPatientActive flips is_active on the patient and its linked user in
// one transaction.
func (s *Service) setPatientActive(ctx context.Context, actor auth.Identity, id int64, active bool) (*Patient, error) {
	code, noteType, verb := "PATIENT_DEACTIVATED", "account_deactivated", "inactive"
	if active {
		code, noteType, verb = "PATIENT_ACTIVATED", "account_activated", "active"
	}

	var out *Patient
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		p, err := s.repos.Patients.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if p.IsActive == active {
			return apperr.InvalidState("patient %s is already %s", p.PatientNumber, verb)
		}
		if err := s.repos.Patients.SetActive(ctx, p.ID, active); err != nil {
			return err
		}
		if p.HasAccount() {
			if err := s.repos.Users.SetActive(ctx, *p.UserID, active); err != nil {
				return err
			}
		}
		p.IsActive = active
		out = p

		err = s.audit.Record(ctx, audit.Entry{
			UserID:     actor.UserID,
			ActionCode: code,
			Module:     modulePatients,
			RecordID:   p.ID,
			Details: map[string]interface{}{
				"patient_number": p.PatientNumber,
				"user_id":        p.AccountUserID(),
			},
		})
		if err != nil {
			return err
		}
		return s.notify(ctx, p, noteType, nil)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._]{3,50}$`)

// CreateAccount gives a registered patient a portal login.
func (s *Service) CreateAccount(ctx context.Context, actor auth.Identity, patientID int64, username, password string) (*User, error) {
	username = strings.TrimSpace(username)
	if !usernamePattern.MatchString(username) {
		return nil, apperr.Validation("username must be 3 to 50 letters, digits, dots or underscores")
	}
	if len(password) < auth.MinPasswordLength {
		return nil, apperr.Validation("password must be at least %d characters", auth.MinPasswordLength)
	}
	exists, err := s.repos.Users.UsernameExists(ctx, username)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperr.Conflict("username already exists")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	u := &User{Username: username, PasswordHash: hash, Role: auth.RolePatient, IsActive: true}
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		p, err := s.repos.Patients.GetForUpdate(ctx, patientID)
		if err != nil {
			return err
		}
		if p.HasAccount() {
			return apperr.Conflict("patient %s already has an account", p.PatientNumber)
		}
		if !p.IsActive {
			return apperr.InvalidState("patient %s is inactive", p.PatientNumber)
		}
		if err := s.repos.Users.Create(ctx, u); err != nil {
			return err
		}
		if err := s.repos.Patients.LinkUser(ctx, p.ID, u.ID); err != nil {
			return err
		}
		p.UserID = &u.ID

		err = s.audit.Record(ctx, audit.Entry{
			UserID:     actor.UserID,
			ActionCode: "PATIENT_ACCOUNT_CREATED",
			Module:     modulePatients,
			RecordID:   p.ID,
			Details: map[string]interface{}{
				"patient_number": p.PatientNumber,
				"username":       u.Username,
				"user_id":        u.ID,
			},
		})
		if err != nil {
			return err
		}
		return s.notify(ctx, p, "account_created", map[string]string{"username": u.Username})
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// ResetPassword sets a new password on the patient's account.
func (s *Service) ResetPassword(ctx context.Context, actor auth.Identity, patientID int64, password string) error {
	if len(password) < auth.MinPasswordLength {
		return apperr.Validation("password must be at least %d characters", auth.MinPasswordLength)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		p, err := s.repos.Patients.GetForUpdate(ctx, patientID)
		if err != nil {
			return err
		}
		if !p.HasAccount() {
			return apperr.InvalidState("patient %s has no account", p.PatientNumber)
		}
		if err := s.repos.Users.UpdatePassword(ctx, *p.UserID, hash); err != nil {
			return err
		}
		err = s.audit.Record(ctx, audit.Entry{
			UserID:     actor.UserID,
			ActionCode: "PATIENT_PASSWORD_RESET",
			Module:     modulePatients,
			RecordID:   p.ID,
			Details: map[string]interface{}{
				"patient_number": p.PatientNumber,
				"user_id":        *p.UserID,
			},
		})
		if err != nil {
			return err
		}
		return s.notify(ctx, p, "password_changed", nil)
	})
}

// PatientNotifications lists what the patient's account has received.
func (s *Service) PatientNotifications(ctx context.Context, patientID int64, unreadOnly bool, limit, offset int) ([]*notification.Notification, int, error) {
	p, err := s.GetPatient(ctx, patientID)
	if err != nil {
		return nil, 0, err
	}
	if !p.HasAccount() {
		return []*notification.Notification{}, 0, nil
	}
	return s.notifier.ListForUser(ctx, *p.UserID, unreadOnly, limit, offset)
}

func (s *Service) notify(ctx context.Context, p *Patient, typ string, data map[string]string) error {
	if !p.HasAccount() {
		return nil
	}
	_, err := s.notifier.Notify(ctx, notification.Message{UserID: *p.UserID, Type: typ, Data: data})
	return err
}

// applyPatientInput copies the set fields of in onto p after validating
// them, returning the changed fields with their old and new values.
func (s *Service) applyPatientInput(ctx context.Context, p *Patient, in PatientInput) (map[string]interface{}, error) {
	changes := map[string]interface{}{}
	record := func(field string, from, to interface{}) {
		changes[field] = map[string]interface{}{"from": from, "to": to}
	}
	setString := func(field string, dst *string, v *string) error {
		if v == nil {
			return nil
		}
		nv := strings.TrimSpace(*v)
		if nv == "" {
			return apperr.Validation("%s cannot be empty", strings.ReplaceAll(field, "_", " "))
		}
		if nv != *dst {
			record(field, *dst, nv)
			*dst = nv
		}
		return nil
	}
	setOptional := func(field string, dst **string, v *string) {
		if v == nil {
			return
		}
		nv := strings.TrimSpace(*v)
		old := ""
		if *dst != nil {
			old = **dst
		}
		if nv == old {
			return
		}
		record(field, old, nv)
		if nv == "" {
			*dst = nil
		} else {
			*dst = &nv
		}
	}

	if err := setString("first_name", &p.FirstName, in.FirstName); err != nil {
		return nil, err
	}
	if err := setString("last_name", &p.LastName, in.LastName); err != nil {
		return nil, err
	}
	setOptional("middle_name", &p.MiddleName, in.MiddleName)

	if in.BirthDate != nil {
		bd, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(*in.BirthDate), s.loc)
		if err != nil {
			return nil, apperr.Validation("birth date must be YYYY-MM-DD")
		}
		today := s.now().In(s.loc)
		if bd.After(today) {
			return nil, apperr.Validation("birth date cannot be in the future")
		}
		if !bd.Equal(p.BirthDate) {
			record("birth_date", p.BirthDate.Format("2006-01-02"), bd.Format("2006-01-02"))
			p.BirthDate = bd
		}
	}
	if in.Sex != nil {
		sex := Sex(strings.ToLower(strings.TrimSpace(*in.Sex)))
		if !sex.Valid() {
			return nil, apperr.Validation("sex must be male or female")
		}
		if sex != p.Sex {
			record("sex", string(p.Sex), string(sex))
			p.Sex = sex
		}
	}
	if in.BarangayID != nil && *in.BarangayID != p.BarangayID {
		b, err := s.repos.Barangays.GetByID(ctx, *in.BarangayID)
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.Validation("barangay %d does not exist", *in.BarangayID)
		}
		if err != nil {
			return nil, err
		}
		if !b.IsActive {
			return nil, apperr.Validation("barangay %s is not active", b.Name)
		}
		record("barangay_id", p.BarangayID, b.ID)
		p.BarangayID = b.ID
		p.BarangayName = b.Name
	}

	setOptional("civil_status", &p.CivilStatus, in.CivilStatus)
	setOptional("contact_number", &p.ContactNumber, in.ContactNumber)
	setOptional("email", &p.Email, in.Email)
	setOptional("address", &p.Address, in.Address)
	setOptional("philhealth_number", &p.PhilHealthNumber, in.PhilHealthNumber)
	setOptional("blood_type", &p.BloodType, in.BloodType)
	setOptional("allergies", &p.Allergies, in.Allergies)
	setOptional("emergency_contact_name", &p.EmergencyContactName, in.EmergencyContactName)
	setOptional("emergency_contact_number", &p.EmergencyContactNumber, in.EmergencyContactNumber)

	if p.Email != nil && !strings.Contains(*p.Email, "@") {
		return nil, apperr.Validation("email address is not valid")
	}
	return changes, nil
}

// -- Staff --

func (s *Service) ListStaff(ctx context.Context, f StaffFilter) ([]*Staff, error) {
	if f.Department == "" {
		f.Department = s.department
	}
	return s.repos.Staff.List(ctx, f)
}

func (s *Service) GetStaff(ctx context.Context, id int64) (*Staff, error) {
	if id <= 0 {
		return nil, apperr.Validation("invalid staff id")
	}
	return s.repos.Staff.GetByID(ctx, id)
}

type CreateStaffInput struct {
	Username      string
	Password      string
	FirstName     string
	LastName      string
	Position      string
	LicenseNumber string
	ContactNumber string
}

// CreateStaff provisions an RHU admin login and its staff row.
func (s *Service) CreateStaff(ctx context.Context, in CreateStaffInput) (*Staff, error) {
	in.Username = strings.TrimSpace(in.Username)
	if !usernamePattern.MatchString(in.Username) {
		return nil, apperr.Validation("username must be 3 to 50 letters, digits, dots or underscores")
	}
	if strings.TrimSpace(in.FirstName) == "" || strings.TrimSpace(in.LastName) == "" {
		return nil, apperr.Validation("first name and last name are required")
	}
	if strings.TrimSpace(in.Position) == "" {
		return nil, apperr.Validation("position is required")
	}
	if len(in.Password) < auth.MinPasswordLength {
		return nil, apperr.Validation("password must be at least %d characters", auth.MinPasswordLength)
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	u := &User{Username: in.Username, PasswordHash: hash, Role: auth.RoleAdmin, IsActive: true}
	st := &Staff{
		FirstName:     strings.TrimSpace(in.FirstName),
		LastName:      strings.TrimSpace(in.LastName),
		Position:      strings.ToLower(strings.TrimSpace(in.Position)),
		Department:    s.department,
		LicenseNumber: optional(in.LicenseNumber),
		ContactNumber: optional(in.ContactNumber),
		IsActive:      true,
	}
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repos.Users.Create(ctx, u); err != nil {
			return err
		}
		st.UserID = &u.ID
		if err := s.repos.Staff.Create(ctx, st); err != nil {
			return fmt.Errorf("create staff row: %w", err)
		}
		return s.audit.Record(ctx, audit.Entry{
			UserID:     u.ID,
			ActionCode: "STAFF_CREATED",
			Module:     moduleStaff,
			RecordID:   st.ID,
			Details: map[string]interface{}{
				"username": u.Username,
				"position": st.Position,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// -- Barangays --

func (s *Service) ListBarangays(ctx context.Context, activeOnly bool) ([]*Barangay, error) {
	return s.repos.Barangays.List(ctx, activeOnly)
}

func blank(v *string) bool {
	return v == nil || strings.TrimSpace(*v) == ""
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
