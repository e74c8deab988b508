package consultation

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/rhu/rhu/internal/domain/identity"
	"github.com/rhu/rhu/internal/domain/sequence"
	"github.com/rhu/rhu/internal/domain/workflow"
	"github.com/rhu/rhu/internal/platform/apperr"
	"github.com/rhu/rhu/internal/platform/audit"
	"github.com/rhu/rhu/internal/platform/auth"
	"github.com/rhu/rhu/internal/platform/db"
	"github.com/rhu/rhu/internal/platform/notification"
)

const modulePrescriptions = "prescriptions"

// PatientLookup and StaffLookup are satisfied by *identity.Service.
type PatientLookup interface {
	GetPatient(ctx context.Context, id int64) (*identity.Patient, error)
}

type StaffLookup interface {
	GetStaff(ctx context.Context, id int64) (*identity.Staff, error)
}

type Repos struct {
	Consultations Repository
	Prescriptions PrescriptionRepository
	Medicines     MedicineRepository
}

type Service struct {
	repos    Repos
	patients PatientLookup
	staff    StaffLookup
	tx       db.TxRunner
	seq      *sequence.Generator
	tracker  *workflow.Tracker
	audit    workflow.Auditor
	notifier workflow.Notifier
	loc      *time.Location
	now      func() time.Time
}

type Deps struct {
	Patients PatientLookup
	Staff    StaffLookup
	Tx       db.TxRunner
	Seq      *sequence.Generator
	Tracker  *workflow.Tracker
	Audit    workflow.Auditor
	Notifier workflow.Notifier
	Location *time.Location
}

func NewService(repos Repos, deps Deps) *Service {
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		repos:    repos,
		patients: deps.Patients,
		staff:    deps.Staff,
		tx:       deps.Tx,
		seq:      deps.Seq,
		tracker:  deps.Tracker,
		audit:    deps.Audit,
		notifier: deps.Notifier,
		loc:      loc,
		now:      time.Now,
	}
}

// ClinicalInput holds the fields a doctor fills in during the visit. Nil
// fields are left unchanged.
type ClinicalInput struct {
	HistoryOfPresentIllness *string `json:"history_of_present_illness"`
	Vitals
	PhysicalExamination *string `json:"physical_examination"`
	Diagnosis           *string `json:"diagnosis"`
	TreatmentPlan       *string `json:"treatment_plan"`
	Notes               *string `json:"notes"`
}

type WalkInInput struct {
	PatientID        int64  `json:"patient_id"`
	DoctorID         *int64 `json:"doctor_id"`
	ConsultationType string `json:"consultation_type"`
	ChiefComplaint   string `json:"chief_complaint"`
	Priority         string `json:"priority"`
	ClinicalInput
	Prescription *PrescriptionInput `json:"prescription"`
}

type RequestInput struct {
	PatientID        int64   `json:"patient_id"`
	ConsultationType string  `json:"consultation_type"`
	ChiefComplaint   string  `json:"chief_complaint"`
	PreferredDate    string  `json:"preferred_date"`
	Priority         string  `json:"priority"`
	Notes            *string `json:"notes"`
}

type PrescriptionInput struct {
	Instructions *string     `json:"instructions"`
	Items        []ItemInput `json:"items"`
}

type ItemInput struct {
	MedicineID   *int64  `json:"medicine_id"`
	MedicineName string  `json:"medicine_name"`
	Dosage       string  `json:"dosage"`
	Frequency    string  `json:"frequency"`
	Duration     *string `json:"duration"`
	Quantity     int     `json:"quantity"`
	Instructions *string `json:"instructions"`
}

// ActionInput is the body of POST /consultations/:id/actions. Which fields
// matter depends on Action.
type ActionInput struct {
	Action        string `json:"action"`
	DoctorID      *int64 `json:"doctor_id"`
	ScheduledAt   string `json:"scheduled_at"`
	ScheduledDate string `json:"scheduled_date"`
	ScheduledTime string `json:"scheduled_time"`
	Priority      string `json:"priority"`
	Reason        string `json:"reason"`
	ClinicalInput
}

// RecordWalkIn records a consultation that is happening now. It starts
// in_progress with the acting staff member as doctor unless another doctor
// is given.
func (s *Service) RecordWalkIn(ctx context.Context, actor auth.Identity, in WalkInInput) (*Consultation, *Prescription, error) {
	if in.PatientID <= 0 {
		return nil, nil, apperr.Validation("patient is required")
	}
	complaint := strings.TrimSpace(in.ChiefComplaint)
	if complaint == "" {
		return nil, nil, apperr.Validation("chief complaint is required")
	}
	priority, err := parsePriority(in.Priority)
	if err != nil {
		return nil, nil, err
	}
	if err := in.Vitals.Validate(); err != nil {
		return nil, nil, err
	}
	if in.Prescription != nil {
		if err := validateItems(in.Prescription.Items); err != nil {
			return nil, nil, err
		}
	}

	c := &Consultation{
		PatientID:        in.PatientID,
		Status:           workflow.ConsultationInProgress,
		ConsultationType: defaultString(in.ConsultationType, TypeWalkIn),
		ChiefComplaint:   complaint,
		Priority:         priority,
	}
	if actor.StaffID > 0 {
		c.CreatedBy = &actor.StaffID
	}
	applyClinical(c, in.ClinicalInput)

	var rx *Prescription
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		p, err := s.activePatient(ctx, in.PatientID)
		if err != nil {
			return err
		}
		attachPatient(c, p)

		doctorID := actor.StaffID
		if in.DoctorID != nil {
			doctorID = *in.DoctorID
		}
		if doctorID > 0 {
			doc, err := s.activeDoctor(ctx, doctorID)
			if err != nil {
				return err
			}
			c.DoctorID = &doc.ID
			c.DoctorName = doc.DisplayName()
		}

		if c.ConsultationNumber, err = s.seq.NextAt(ctx, sequence.PrefixConsultation, s.now()); err != nil {
			return err
		}
		if err := s.repos.Consultations.Create(ctx, c); err != nil {
			return err
		}
		err = s.audit.Record(ctx, audit.Entry{
			UserID:     actor.UserID,
			ActionCode: "CONSULTATION_CREATED",
			Module:     workflow.Consultation.Module,
			RecordID:   c.ID,
			Details: map[string]interface{}{
				"consultation_number": c.ConsultationNumber,
				"patient_id":          c.PatientID,
				"status":              string(c.Status),
				"chief_complaint":     c.ChiefComplaint,
				"diagnosis":           deref(c.Diagnosis),
			},
		})
		if err != nil {
			return err
		}

		if in.Prescription != nil && len(in.Prescription.Items) > 0 {
			if rx, err = s.createPrescription(ctx, actor, c, *in.Prescription); err != nil {
				return err
			}
		}
		return s.notify(ctx, c, "consultation_created", notification.PriorityNormal, nil)
	})
	if err != nil {
		return nil, nil, err
	}
	c.AllowedActions = workflow.Consultation.Allowed(c.Status)
	return c, rx, nil
}

// Request records a consultation the patient asked for. Staff accept and
// schedule it later.
func (s *Service) Request(ctx context.Context, actor auth.Identity, in RequestInput) (*Consultation, error) {
	if in.PatientID <= 0 {
		return nil, apperr.Validation("patient is required")
	}
	complaint := strings.TrimSpace(in.ChiefComplaint)
	if complaint == "" {
		return nil, apperr.Validation("chief complaint is required")
	}
	priority, err := parsePriority(in.Priority)
	if err != nil {
		return nil, err
	}
	c := &Consultation{
		PatientID:        in.PatientID,
		Status:           workflow.ConsultationPending,
		ConsultationType: defaultString(in.ConsultationType, TypeScheduled),
		ChiefComplaint:   complaint,
		Priority:         priority,
		Notes:            trimmed(in.Notes),
	}
	if actor.StaffID > 0 {
		c.CreatedBy = &actor.StaffID
	}
	if v := strings.TrimSpace(in.PreferredDate); v != "" {
		d, err := time.ParseInLocation("2006-01-02", v, s.loc)
		if err != nil {
			return nil, apperr.Validation("preferred date must be YYYY-MM-DD")
		}
		if d.Before(startOfDay(s.now().In(s.loc))) {
			return nil, apperr.Validation("preferred date cannot be in the past")
		}
		c.PreferredDate = &d
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		p, err := s.activePatient(ctx, in.PatientID)
		if err != nil {
			return err
		}
		attachPatient(c, p)
		if c.ConsultationNumber, err = s.seq.NextAt(ctx, sequence.PrefixConsultation, s.now()); err != nil {
			return err
		}
		if err := s.repos.Consultations.Create(ctx, c); err != nil {
			return err
		}
		err = s.audit.Record(ctx, audit.Entry{
			UserID:     actor.UserID,
			ActionCode: "CONSULTATION_REQUESTED",
			Module:     workflow.Consultation.Module,
			RecordID:   c.ID,
			Details: map[string]interface{}{
				"consultation_number": c.ConsultationNumber,
				"patient_id":          c.PatientID,
				"chief_complaint":     c.ChiefComplaint,
				"preferred_date":      in.PreferredDate,
			},
		})
		if err != nil {
			return err
		}
		return s.notify(ctx, c, "consultation_requested", notification.PriorityNormal, nil)
	})
	if err != nil {
		return nil, err
	}
	c.AllowedActions = workflow.Consultation.Allowed(c.Status)
	return c, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Consultation, error) {
	if id <= 0 {
		return nil, apperr.Validation("invalid consultation id")
	}
	c, err := s.repos.Consultations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.AllowedActions = workflow.Consultation.Allowed(c.Status)
	return c, nil
}

func (s *Service) Search(ctx context.Context, p SearchParams) ([]*Consultation, int, error) {
	if p.Status != "" && !workflow.Consultation.IsState(p.Status) {
		return nil, 0, apperr.Validation("unknown consultation status %q", p.Status)
	}
	if p.From != nil && p.To != nil && !p.To.After(*p.From) {
		return nil, 0, apperr.Validation("date range end must be after its start")
	}
	p.Query = strings.TrimSpace(p.Query)
	if p.Limit <= 0 {
		p.Limit = 20
	}
	items, total, err := s.repos.Consultations.Search(ctx, p)
	if err != nil {
		return nil, 0, err
	}
	for _, c := range items {
		c.AllowedActions = workflow.Consultation.Allowed(c.Status)
	}
	return items, total, nil
}

// PatientHistory lists a patient's consultations, newest first.
func (s *Service) PatientHistory(ctx context.Context, patientID int64, limit, offset int) ([]*Consultation, int, error) {
	if _, err := s.patients.GetPatient(ctx, patientID); err != nil {
		return nil, 0, err
	}
	return s.Search(ctx, SearchParams{PatientID: patientID, Limit: limit, Offset: offset})
}

// ApplyAction runs one consultation transition and returns the updated
// record.
func (s *Service) ApplyAction(ctx context.Context, actor auth.Identity, id int64, in ActionInput) (*Consultation, *workflow.Result, error) {
	action := workflow.Action(strings.TrimSpace(in.Action))
	if action == "" {
		return nil, nil, apperr.Validation("action is required")
	}

	var c *Consultation
	res, err := s.tracker.Run(ctx, workflow.Request{
		Machine:  workflow.Consultation,
		RecordID: id,
		Action:   action,
		ActorID:  actor.UserID,
		Load: func(ctx context.Context, id int64) (*workflow.Subject, error) {
			cur, err := s.repos.Consultations.GetForUpdate(ctx, id)
			if err != nil {
				return nil, err
			}
			c = cur
			return &workflow.Subject{
				ID:            c.ID,
				Number:        c.ConsultationNumber,
				State:         c.Status,
				PatientUserID: c.patientUserID(),
				Data:          map[string]string{"consultation_number": c.ConsultationNumber},
			}, nil
		},
		Apply: func(ctx context.Context, sub *workflow.Subject, t workflow.Transition) (workflow.Changes, error) {
			return s.apply(ctx, c, sub, t, in)
		},
	})
	if err != nil {
		return nil, nil, err
	}
	c.AllowedActions = workflow.Consultation.Allowed(c.Status)
	return c, res, nil
}

func (s *Service) apply(ctx context.Context, c *Consultation, sub *workflow.Subject, t workflow.Transition, in ActionInput) (workflow.Changes, error) {
	changes := workflow.Changes{}
	now := s.now()

	switch t.Action {
	case workflow.AcceptAndSchedule:
		if in.DoctorID == nil || *in.DoctorID <= 0 {
			return nil, apperr.Validation("doctor is required")
		}
		if strings.TrimSpace(in.Priority) == "" {
			return nil, apperr.Validation("priority is required")
		}
		priority, err := parsePriority(in.Priority)
		if err != nil {
			return nil, err
		}
		at, err := s.parseSchedule(in)
		if err != nil {
			return nil, err
		}
		doc, err := s.activeDoctor(ctx, *in.DoctorID)
		if err != nil {
			return nil, err
		}
		taken, err := s.repos.Consultations.SlotTaken(ctx, doc.ID, at, c.ID)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, ErrSlotTaken
		}
		c.DoctorID = &doc.ID
		c.DoctorName = doc.DisplayName()
		c.ScheduledAt = &at
		c.Priority = priority
		changes["doctor_id"] = doc.ID
		changes["scheduled_at"] = at.Format(time.RFC3339)
		changes["priority"] = string(priority)
		sub.Data["scheduled_at"] = at.In(s.loc).Format("Jan 2, 2006 3:04 PM")
		sub.Data["doctor_name"] = c.DoctorName

	case workflow.UpdateFields:
		if err := in.Vitals.Validate(); err != nil {
			return nil, err
		}
		clinical := applyClinical(c, in.ClinicalInput)
		if len(clinical) == 0 {
			return nil, apperr.Validation("no changes to save")
		}
		changes = clinical

	case workflow.MarkCompleted:
		if err := in.Vitals.Validate(); err != nil {
			return nil, err
		}
		clinical := applyClinical(c, in.ClinicalInput)
		if deref(c.Diagnosis) == "" {
			return nil, apperr.Validation("diagnosis is required to complete a consultation")
		}
		changes = clinical
		c.CompletedAt = &now
		changes["completed_at"] = now.Format(time.RFC3339)
		sub.Data["diagnosis"] = *c.Diagnosis

	case workflow.Cancel:
		reason := strings.TrimSpace(in.Reason)
		if reason == "" {
			return nil, apperr.Validation("cancellation reason is required")
		}
		c.CancelledAt = &now
		c.CancelReason = &reason
		changes["cancel_reason"] = reason
		sub.Data["reason"] = reason
	}

	c.Status = t.To
	if err := s.repos.Consultations.Update(ctx, c); err != nil {
		return nil, err
	}
	return changes, nil
}

// parseSchedule accepts an RFC 3339 timestamp, a local "2006-01-02T15:04"
// value, or separate date and time fields. The result is truncated to the
// minute and must not be in the past.
func (s *Service) parseSchedule(in ActionInput) (time.Time, error) {
	var (
		at  time.Time
		err error
	)
	switch v := strings.TrimSpace(in.ScheduledAt); {
	case v != "":
		at, err = time.Parse(time.RFC3339, v)
		if err != nil {
			at, err = time.ParseInLocation("2006-01-02T15:04", v, s.loc)
		}
	case in.ScheduledDate != "" && in.ScheduledTime != "":
		at, err = time.ParseInLocation("2006-01-02 15:04",
			strings.TrimSpace(in.ScheduledDate)+" "+strings.TrimSpace(in.ScheduledTime), s.loc)
	default:
		return time.Time{}, apperr.Validation("scheduled date and time are required")
	}
	if err != nil {
		return time.Time{}, apperr.Validation("scheduled time must be YYYY-MM-DDTHH:MM")
	}
	at = at.Truncate(time.Minute)
	if at.Before(s.now().Truncate(time.Minute)) {
		return time.Time{}, apperr.Validation("scheduled time cannot be in the past")
	}
	return at, nil
}

// -- Prescriptions --

// AddPrescription writes a prescription for a consultation that is in
// progress.
func (s *Service) AddPrescription(ctx context.Context, actor auth.Identity, consultationID int64, in PrescriptionInput) (*Prescription, error) {
	if err := validateItems(in.Items); err != nil {
		return nil, err
	}
	var rx *Prescription
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		c, err := s.repos.Consultations.GetForUpdate(ctx, consultationID)
		if err != nil {
			return err
		}
		if c.Status != workflow.ConsultationInProgress {
			return apperr.InvalidState("cannot add a prescription: consultation %s is %s",
				c.ConsultationNumber, strings.ReplaceAll(string(c.Status), "_", " "))
		}
		if rx, err = s.createPrescription(ctx, actor, c, in); err != nil {
			return err
		}
		return s.notify(ctx, c, "prescription_created", notification.PriorityNormal, map[string]string{
			"prescription_number": rx.PrescriptionNumber,
		})
	})
	if err != nil {
		return nil, err
	}
	return rx, nil
}

func (s *Service) createPrescription(ctx context.Context, actor auth.Identity, c *Consultation, in PrescriptionInput) (*Prescription, error) {
	prescriber := actor.StaffID
	if prescriber <= 0 && c.DoctorID != nil {
		prescriber = *c.DoctorID
	}
	if prescriber <= 0 {
		return nil, apperr.Validation("a prescribing staff member is required")
	}

	rx := &Prescription{
		ConsultationID:     c.ID,
		ConsultationNumber: c.ConsultationNumber,
		PatientID:          c.PatientID,
		PrescribedBy:       prescriber,
		Instructions:       trimmed(in.Instructions),
	}
	for _, it := range in.Items {
		item := PrescriptionItem{
			MedicineID:   it.MedicineID,
			MedicineName: strings.TrimSpace(it.MedicineName),
			Dosage:       strings.TrimSpace(it.Dosage),
			Frequency:    strings.TrimSpace(it.Frequency),
			Duration:     trimmed(it.Duration),
			Quantity:     it.Quantity,
			Instructions: trimmed(it.Instructions),
		}
		if it.MedicineID != nil {
			m, err := s.repos.Medicines.GetByID(ctx, *it.MedicineID)
			if apperr.Is(err, apperr.KindNotFound) {
				return nil, apperr.Validation("medicine %d does not exist", *it.MedicineID)
			}
			if err != nil {
				return nil, err
			}
			if !m.IsActive {
				return nil, apperr.Validation("medicine %s is not available", m.Name)
			}
			if item.MedicineName == "" {
				item.MedicineName = m.Name
			}
		}
		rx.Items = append(rx.Items, item)
	}

	var err error
	if rx.PrescriptionNumber, err = s.seq.NextAt(ctx, sequence.PrefixPrescription, s.now()); err != nil {
		return nil, err
	}
	if err := s.repos.Prescriptions.Create(ctx, rx); err != nil {
		return nil, err
	}
	err = s.audit.Record(ctx, audit.Entry{
		UserID:     actor.UserID,
		ActionCode: "PRESCRIPTION_CREATED",
		Module:     modulePrescriptions,
		RecordID:   rx.ID,
		Details: map[string]interface{}{
			"prescription_number": rx.PrescriptionNumber,
			"consultation_number": c.ConsultationNumber,
			"items":               len(rx.Items),
		},
	})
	if err != nil {
		return nil, err
	}
	return rx, nil
}

func (s *Service) ListPrescriptions(ctx context.Context, consultationID int64) ([]*Prescription, error) {
	if _, err := s.Get(ctx, consultationID); err != nil {
		return nil, err
	}
	out, err := s.repos.Prescriptions.ListByConsultation(ctx, consultationID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*Prescription{}
	}
	return out, nil
}

func (s *Service) GetPrescription(ctx context.Context, number string) (*Prescription, error) {
	number = strings.ToUpper(strings.TrimSpace(number))
	if prefix, _, _, err := sequence.Parse(number); err != nil || prefix != sequence.PrefixPrescription {
		return nil, apperr.Validation("invalid prescription number %q", number)
	}
	return s.repos.Prescriptions.GetByNumber(ctx, number)
}

func (s *Service) ListMedicines(ctx context.Context, query string, limit int) ([]*Medicine, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	out, err := s.repos.Medicines.Search(ctx, strings.TrimSpace(query), limit)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*Medicine{}
	}
	return out, nil
}

// -- helpers --

func (s *Service) activePatient(ctx context.Context, id int64) (*identity.Patient, error) {
	p, err := s.patients.GetPatient(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, apperr.InvalidState("patient %s is inactive", p.PatientNumber)
	}
	return p, nil
}

func (s *Service) activeDoctor(ctx context.Context, id int64) (*identity.Staff, error) {
	doc, err := s.staff.GetStaff(ctx, id)
	if apperr.Is(err, apperr.KindNotFound) {
		return nil, apperr.Validation("staff member %d does not exist", id)
	}
	if err != nil {
		return nil, err
	}
	if !doc.IsActive {
		return nil, apperr.Validation("%s is not an active staff member", doc.FullName())
	}
	return doc, nil
}

func (s *Service) notify(ctx context.Context, c *Consultation, typ string, priority notification.Priority, extra map[string]string) error {
	userID := c.patientUserID()
	if userID <= 0 {
		return nil
	}
	data := map[string]string{"consultation_number": c.ConsultationNumber}
	for k, v := range extra {
		data[k] = v
	}
	_, err := s.notifier.Notify(ctx, notification.Message{UserID: userID, Type: typ, Priority: priority, Data: data})
	return err
}

func attachPatient(c *Consultation, p *identity.Patient) {
	c.PatientNumber = p.PatientNumber
	c.PatientName = p.FullName()
	c.PatientUserID = p.UserID
}

var bloodPressurePattern = regexp.MustCompile(`^\d{2,3}/\d{2,3}$`)

// Validate checks the vitals that are present against plausible ranges.
func (v Vitals) Validate() error {
	if v.BloodPressure != nil {
		bp := strings.TrimSpace(*v.BloodPressure)
		if bp != "" && !bloodPressurePattern.MatchString(bp) {
			return apperr.Validation("blood pressure must look like 120/80")
		}
	}
	if v.Temperature != nil && (*v.Temperature < 30 || *v.Temperature > 45) {
		return apperr.Validation("temperature must be between 30 and 45 °C")
	}
	if v.PulseRate != nil && (*v.PulseRate < 20 || *v.PulseRate > 250) {
		return apperr.Validation("pulse rate must be between 20 and 250")
	}
	if v.RespiratoryRate != nil && (*v.RespiratoryRate < 5 || *v.RespiratoryRate > 80) {
		return apperr.Validation("respiratory rate must be between 5 and 80")
	}
	if v.Weight != nil && (*v.Weight <= 0 || *v.Weight > 500) {
		return apperr.Validation("weight must be between 0 and 500 kg")
	}
	if v.Height != nil && (*v.Height <= 0 || *v.Height > 300) {
		return apperr.Validation("height must be between 0 and 300 cm")
	}
	if v.OxygenSaturation != nil && (*v.OxygenSaturation < 50 || *v.OxygenSaturation > 100) {
		return apperr.Validation("oxygen saturation must be between 50 and 100")
	}
	return nil
}

// applyClinical copies the set fields of in onto c and returns the fields
// whose values changed.
func applyClinical(c *Consultation, in ClinicalInput) workflow.Changes {
	changes := workflow.Changes{}
	setText(changes, "history_of_present_illness", &c.HistoryOfPresentIllness, in.HistoryOfPresentIllness)
	setText(changes, "blood_pressure", &c.BloodPressure, in.BloodPressure)
	setValue(changes, "temperature", &c.Temperature, in.Temperature)
	setValue(changes, "pulse_rate", &c.PulseRate, in.PulseRate)
	setValue(changes, "respiratory_rate", &c.RespiratoryRate, in.RespiratoryRate)
	setValue(changes, "weight", &c.Weight, in.Weight)
	setValue(changes, "height", &c.Height, in.Height)
	setValue(changes, "oxygen_saturation", &c.OxygenSaturation, in.OxygenSaturation)
	setText(changes, "physical_examination", &c.PhysicalExamination, in.PhysicalExamination)
	setText(changes, "diagnosis", &c.Diagnosis, in.Diagnosis)
	setText(changes, "treatment_plan", &c.TreatmentPlan, in.TreatmentPlan)
	setText(changes, "notes", &c.Notes, in.Notes)
	return changes
}

// setText treats an empty string as clearing the field.
func setText(changes workflow.Changes, field string, dst **string, v *string) {
	if v == nil {
		return
	}
	nv := trimmed(v)
	if deref(nv) == deref(*dst) {
		return
	}
	changes[field] = map[string]interface{}{"from": deref(*dst), "to": deref(nv)}
	*dst = nv
}

func setValue[T comparable](changes workflow.Changes, field string, dst **T, v *T) {
	if v == nil {
		return
	}
	if *dst != nil && **dst == *v {
		return
	}
	var from interface{}
	if *dst != nil {
		from = **dst
	}
	changes[field] = map[string]interface{}{"from": from, "to": *v}
	nv := *v
	*dst = &nv
}

func validateItems(items []ItemInput) error {
	if len(items) == 0 {
		return apperr.Validation("a prescription needs at least one medicine")
	}
	for i, it := range items {
		n := i + 1
		if strings.TrimSpace(it.MedicineName) == "" && it.MedicineID == nil {
			return apperr.Validation("item %d: medicine is required", n)
		}
		if strings.TrimSpace(it.Dosage) == "" {
			return apperr.Validation("item %d: dosage is required", n)
		}
		if strings.TrimSpace(it.Frequency) == "" {
			return apperr.Validation("item %d: frequency is required", n)
		}
		if it.Quantity <= 0 {
			return apperr.Validation("item %d: quantity must be greater than zero", n)
		}
	}
	return nil
}

func parsePriority(v string) (Priority, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return PriorityNormal, nil
	}
	p := Priority(v)
	if !p.Valid() {
		return "", apperr.Validation("priority must be low, normal, high or urgent")
	}
	return p, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func defaultString(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return nil
	}
	return &s
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
