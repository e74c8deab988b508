package certificate

import (
	"context"
	"fmt"
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

const dateLayout = "2006-01-02"

type PatientLookup interface {
	GetPatient(ctx context.Context, id int64) (*identity.Patient, error)
}

type StaffLookup interface {
	GetStaff(ctx context.Context, id int64) (*identity.Staff, error)
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

type Service struct {
	repo     Repository
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

func NewService(repo Repository, deps Deps) *Service {
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		repo:     repo,
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

type RequestInput struct {
	PatientID int64  `json:"patient_id"`
	Purpose   string `json:"purpose"`
}

// ActionInput is the body of POST /certificates/:id/actions.
type ActionInput struct {
	Action string `json:"action"`

	// approve_for_checkup
	DoctorID    *int64 `json:"doctor_id"`
	CheckupAt   string `json:"checkup_at"`
	CheckupDate string `json:"checkup_date"`
	CheckupTime string `json:"checkup_time"`

	// complete_checkup and issue_certificate
	BloodPressure       *string  `json:"blood_pressure"`
	Temperature         *float64 `json:"temperature"`
	PulseRate           *int     `json:"pulse_rate"`
	Weight              *float64 `json:"weight"`
	Height              *float64 `json:"height"`
	ExaminationFindings *string  `json:"examination_findings"`
	Diagnosis           *string  `json:"diagnosis"`
	FitnessStatus       string   `json:"fitness_status"`
	Restrictions        *string  `json:"restrictions"`
	Recommendations     *string  `json:"recommendations"`
	ValidFrom           string   `json:"valid_from"`
	ValidUntil          string   `json:"valid_until"`

	Reason string `json:"reason"`
}

// Request opens a certificate request for a patient.
func (s *Service) Request(ctx context.Context, actor auth.Identity, in RequestInput) (*Certificate, error) {
	if in.PatientID <= 0 {
		return nil, apperr.Validation("patient is required")
	}
	purpose := strings.TrimSpace(in.Purpose)
	if purpose == "" {
		return nil, apperr.Validation("purpose is required")
	}

	c := &Certificate{PatientID: in.PatientID, Purpose: purpose, Status: workflow.CertificatePending}
	if actor.StaffID > 0 {
		c.CreatedBy = &actor.StaffID
	}
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		p, err := s.patients.GetPatient(ctx, in.PatientID)
		if err != nil {
			return err
		}
		if !p.IsActive {
			return apperr.InvalidState("patient %s is inactive", p.PatientNumber)
		}
		c.PatientNumber = p.PatientNumber
		c.PatientName = p.FullName()
		c.PatientUserID = p.UserID

		if c.CertificateNumber, err = s.seq.NextAt(ctx, sequence.PrefixCertificate, s.now()); err != nil {
			return err
		}
		if err := s.repo.Create(ctx, c); err != nil {
			return err
		}
		err = s.audit.Record(ctx, audit.Entry{
			UserID:     actor.UserID,
			ActionCode: "CERTIFICATE_REQUESTED",
			Module:     workflow.Certificate.Module,
			RecordID:   c.ID,
			Details: map[string]interface{}{
				"certificate_number": c.CertificateNumber,
				"patient_id":         c.PatientID,
				"purpose":            c.Purpose,
			},
		})
		if err != nil {
			return err
		}
		if c.patientUserID() <= 0 {
			return nil
		}
		_, err = s.notifier.Notify(ctx, notification.Message{
			UserID: c.patientUserID(),
			Type:   "certificate_requested",
			Data:   map[string]string{"certificate_number": c.CertificateNumber, "purpose": c.Purpose},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	c.AllowedActions = workflow.Certificate.Allowed(c.Status)
	return c, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Certificate, error) {
	if id <= 0 {
		return nil, apperr.Validation("invalid certificate id")
	}
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.AllowedActions = workflow.Certificate.Allowed(c.Status)
	return c, nil
}

func (s *Service) Search(ctx context.Context, p SearchParams) ([]*Certificate, int, error) {
	if p.Status != "" && !workflow.Certificate.IsState(p.Status) {
		return nil, 0, apperr.Validation("unknown certificate status %q", p.Status)
	}
	p.Query = strings.TrimSpace(p.Query)
	if p.Limit <= 0 {
		p.Limit = 20
	}
	items, total, err := s.repo.Search(ctx, p)
	if err != nil {
		return nil, 0, err
	}
	for _, c := range items {
		c.AllowedActions = workflow.Certificate.Allowed(c.Status)
	}
	return items, total, nil
}

// ApplyAction runs one certificate transition.
func (s *Service) ApplyAction(ctx context.Context, actor auth.Identity, id int64, in ActionInput) (*Certificate, *workflow.Result, error) {
	return s.applyAction(ctx, actor.UserID, id, in, s.now())
}

func (s *Service) applyAction(ctx context.Context, actorID, id int64, in ActionInput, now time.Time) (*Certificate, *workflow.Result, error) {
	action := workflow.Action(strings.TrimSpace(in.Action))
	if action == "" {
		return nil, nil, apperr.Validation("action is required")
	}

	var c *Certificate
	res, err := s.tracker.Run(ctx, workflow.Request{
		Machine:  workflow.Certificate,
		RecordID: id,
		Action:   action,
		ActorID:  actorID,
		Load: func(ctx context.Context, id int64) (*workflow.Subject, error) {
			cur, err := s.repo.GetForUpdate(ctx, id)
			if err != nil {
				return nil, err
			}
			c = cur
			return &workflow.Subject{
				ID:            c.ID,
				Number:        c.CertificateNumber,
				State:         c.Status,
				PatientUserID: c.patientUserID(),
				Data: map[string]string{
					"certificate_number": c.CertificateNumber,
					"purpose":            c.Purpose,
				},
			}, nil
		},
		Apply: func(ctx context.Context, sub *workflow.Subject, t workflow.Transition) (workflow.Changes, error) {
			return s.apply(ctx, c, sub, t, in, now)
		},
	})
	if err != nil {
		return nil, nil, err
	}
	c.AllowedActions = workflow.Certificate.Allowed(c.Status)
	return c, res, nil
}

func (s *Service) apply(ctx context.Context, c *Certificate, sub *workflow.Subject, t workflow.Transition, in ActionInput, now time.Time) (workflow.Changes, error) {
	changes := workflow.Changes{}
	today := s.civilDate(now)

	switch t.Action {
	case workflow.ApproveForCheckup:
		if in.DoctorID == nil || *in.DoctorID <= 0 {
			return nil, apperr.Validation("doctor is required")
		}
		at, err := s.parseCheckup(in, now)
		if err != nil {
			return nil, err
		}
		doc, err := s.staff.GetStaff(ctx, *in.DoctorID)
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.Validation("staff member %d does not exist", *in.DoctorID)
		}
		if err != nil {
			return nil, err
		}
		if !doc.IsActive {
			return nil, apperr.Validation("%s is not an active staff member", doc.FullName())
		}
		c.DoctorID = &doc.ID
		c.DoctorName = doc.DisplayName()
		c.CheckupAt = &at
		changes["doctor_id"] = doc.ID
		changes["checkup_at"] = at.Format(time.RFC3339)
		sub.Data["doctor_name"] = c.DoctorName
		sub.Data["checkup_at"] = at.In(s.loc).Format("Jan 2, 2006 3:04 PM")

	case workflow.CompleteCheckup:
		if err := applyFindings(c, in, changes); err != nil {
			return nil, err
		}

	case workflow.IssueCertificate:
		if err := applyFindings(c, in, changes); err != nil {
			return nil, err
		}
		fitness := FitnessStatus(strings.ToLower(strings.TrimSpace(in.FitnessStatus)))
		if !fitness.Valid() {
			return nil, apperr.Validation("fitness status must be fit, unfit or fit_with_restrictions")
		}
		restrictions := trimmed(in.Restrictions)
		if fitness == FitWithRestrictions && restrictions == nil {
			return nil, apperr.Validation("restrictions are required when fit with restrictions")
		}
		from := today
		if v := strings.TrimSpace(in.ValidFrom); v != "" {
			d, err := time.Parse(dateLayout, v)
			if err != nil {
				return nil, apperr.Validation("valid from must be YYYY-MM-DD")
			}
			from = d
		}
		if strings.TrimSpace(in.ValidUntil) == "" {
			return nil, apperr.Validation("valid until is required")
		}
		until, err := time.Parse(dateLayout, strings.TrimSpace(in.ValidUntil))
		if err != nil {
			return nil, apperr.Validation("valid until must be YYYY-MM-DD")
		}
		if !until.After(from) {
			return nil, apperr.Validation("valid until must be after valid from")
		}
		c.FitnessStatus = &fitness
		c.Restrictions = restrictions
		c.Recommendations = trimmed(in.Recommendations)
		c.ValidFrom = &from
		c.ValidUntil = &until
		c.IssuedAt = &now
		changes["fitness_status"] = string(fitness)
		changes["valid_from"] = from.Format(dateLayout)
		changes["valid_until"] = until.Format(dateLayout)
		sub.Data["valid_until"] = until.Format(dateLayout)

	case workflow.MarkDownloaded:
		c.DownloadedAt = &now
		changes["downloaded_at"] = now.Format(time.RFC3339)

	case workflow.Cancel:
		reason := strings.TrimSpace(in.Reason)
		if reason == "" {
			return nil, apperr.Validation("cancellation reason is required")
		}
		c.CancelledAt = &now
		c.CancelReason = &reason
		changes["cancel_reason"] = reason
		sub.Data["reason"] = reason

	case workflow.Expire:
		if c.ValidUntil == nil || !c.ValidUntil.Before(today) {
			return nil, apperr.InvalidState("certificate %s is still valid", c.CertificateNumber)
		}
		changes["valid_until"] = c.ValidUntil.Format(dateLayout)
		sub.Data["valid_until"] = c.ValidUntil.Format(dateLayout)
	}

	c.Status = t.To
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}
	return changes, nil
}

// ExpireReport summarizes one ExpireOverdue pass.
type ExpireReport struct {
	Checked int      `json:"checked"`
	Expired int      `json:"expired"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

const expireBatch = 1000

// ExpireOverdue expires every released certificate whose validity ended
// before the date of now. Each certificate is its own transition, so one
// failure does not undo the rest.
func (s *Service) ExpireOverdue(ctx context.Context, actorID int64, now time.Time) (*ExpireReport, error) {
	ids, err := s.repo.ListOverdue(ctx, s.civilDate(now), expireBatch)
	if err != nil {
		return nil, err
	}
	rep := &ExpireReport{Checked: len(ids)}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if _, _, err := s.applyAction(ctx, actorID, id, ActionInput{Action: string(workflow.Expire)}, now); err != nil {
			rep.Failed++
			rep.Errors = append(rep.Errors, fmt.Sprintf("certificate %d: %v", id, err))
			continue
		}
		rep.Expired++
	}
	return rep, nil
}

// civilDate is the clinic-local date of t as midnight UTC, the way DATE
// columns come back from the driver.
func (s *Service) civilDate(t time.Time) time.Time {
	y, m, d := t.In(s.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *Service) parseCheckup(in ActionInput, now time.Time) (time.Time, error) {
	var (
		at  time.Time
		err error
	)
	switch v := strings.TrimSpace(in.CheckupAt); {
	case v != "":
		at, err = time.Parse(time.RFC3339, v)
		if err != nil {
			at, err = time.ParseInLocation("2006-01-02T15:04", v, s.loc)
		}
	case in.CheckupDate != "" && in.CheckupTime != "":
		at, err = time.ParseInLocation("2006-01-02 15:04",
			strings.TrimSpace(in.CheckupDate)+" "+strings.TrimSpace(in.CheckupTime), s.loc)
	default:
		return time.Time{}, apperr.Validation("checkup date and time are required")
	}
	if err != nil {
		return time.Time{}, apperr.Validation("checkup time must be YYYY-MM-DDTHH:MM")
	}
	at = at.Truncate(time.Minute)
	if at.Before(now.Truncate(time.Minute)) {
		return time.Time{}, apperr.Validation("checkup time cannot be in the past")
	}
	return at, nil
}

var bloodPressurePattern = regexp.MustCompile(`^\d{2,3}/\d{2,3}$`)

// applyFindings validates and copies the examination fields that are set.
func applyFindings(c *Certificate, in ActionInput, changes workflow.Changes) error {
	if in.BloodPressure != nil {
		bp := strings.TrimSpace(*in.BloodPressure)
		if bp != "" && !bloodPressurePattern.MatchString(bp) {
			return apperr.Validation("blood pressure must look like 120/80")
		}
		c.BloodPressure = trimmed(in.BloodPressure)
		changes["blood_pressure"] = bp
	}
	if in.Temperature != nil {
		if *in.Temperature < 30 || *in.Temperature > 45 {
			return apperr.Validation("temperature must be between 30 and 45 °C")
		}
		c.Temperature = in.Temperature
		changes["temperature"] = *in.Temperature
	}
	if in.PulseRate != nil {
		if *in.PulseRate < 20 || *in.PulseRate > 250 {
			return apperr.Validation("pulse rate must be between 20 and 250")
		}
		c.PulseRate = in.PulseRate
		changes["pulse_rate"] = *in.PulseRate
	}
	if in.Weight != nil {
		if *in.Weight <= 0 || *in.Weight > 500 {
			return apperr.Validation("weight must be between 0 and 500 kg")
		}
		c.Weight = in.Weight
		changes["weight"] = *in.Weight
	}
	if in.Height != nil {
		if *in.Height <= 0 || *in.Height > 300 {
			return apperr.Validation("height must be between 0 and 300 cm")
		}
		c.Height = in.Height
		changes["height"] = *in.Height
	}
	if in.ExaminationFindings != nil {
		c.ExaminationFindings = trimmed(in.ExaminationFindings)
		changes["examination_findings"] = strings.TrimSpace(*in.ExaminationFindings)
	}
	if in.Diagnosis != nil {
		c.Diagnosis = trimmed(in.Diagnosis)
		changes["diagnosis"] = strings.TrimSpace(*in.Diagnosis)
	}
	return nil
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
