package referral

import (
	"context"
	"strings"
	"time"

	"github.com/rhu/rhu/internal/domain/consultation"
	"github.com/rhu/rhu/internal/domain/identity"
	"github.com/rhu/rhu/internal/domain/sequence"
	"github.com/rhu/rhu/internal/domain/workflow"
	"github.com/rhu/rhu/internal/platform/apperr"
	"github.com/rhu/rhu/internal/platform/audit"
	"github.com/rhu/rhu/internal/platform/auth"
	"github.com/rhu/rhu/internal/platform/db"
	"github.com/rhu/rhu/internal/platform/notification"
)

type PatientLookup interface {
	GetPatient(ctx context.Context, id int64) (*identity.Patient, error)
}

type StaffLookup interface {
	GetStaff(ctx context.Context, id int64) (*identity.Staff, error)
}

// ConsultationLookup resolves the visit a referral originates from.
type ConsultationLookup interface {
	Get(ctx context.Context, id int64) (*consultation.Consultation, error)
}

type Deps struct {
	Patients      PatientLookup
	Staff         StaffLookup
	Consultations ConsultationLookup
	Tx            db.TxRunner
	Seq           *sequence.Generator
	Tracker       *workflow.Tracker
	Audit         workflow.Auditor
	Notifier      workflow.Notifier
}

type Service struct {
	repo          Repository
	patients      PatientLookup
	staff         StaffLookup
	consultations ConsultationLookup
	tx            db.TxRunner
	seq           *sequence.Generator
	tracker       *workflow.Tracker
	audit         workflow.Auditor
	notifier      workflow.Notifier
	now           func() time.Time
}

func NewService(repo Repository, deps Deps) *Service {
	return &Service{
		repo:          repo,
		patients:      deps.Patients,
		staff:         deps.Staff,
		consultations: deps.Consultations,
		tx:            deps.Tx,
		seq:           deps.Seq,
		tracker:       deps.Tracker,
		audit:         deps.Audit,
		notifier:      deps.Notifier,
		now:           time.Now,
	}
}

type CreateInput struct {
	PatientID       int64   `json:"patient_id"`
	ConsultationID  *int64  `json:"consultation_id"`
	FacilityName    string  `json:"facility_name"`
	FacilityAddress *string `json:"facility_address"`
	Department      *string `json:"department"`
	Reason          string  `json:"reason"`
	ClinicalSummary *string `json:"clinical_summary"`
	Diagnosis       *string `json:"diagnosis"`
	Urgency         string  `json:"urgency"`
	Notes           *string `json:"notes"`
}

// ActionInput is the body of POST /referrals/:id/actions. Only the fields
// that are set are changed by update_fields.
type ActionInput struct {
	Action          string  `json:"action"`
	FacilityName    *string `json:"facility_name"`
	FacilityAddress *string `json:"facility_address"`
	Department      *string `json:"department"`
	Reason          string  `json:"reason"`
	ClinicalSummary *string `json:"clinical_summary"`
	Diagnosis       *string `json:"diagnosis"`
	Urgency         *string `json:"urgency"`
	Notes           *string `json:"notes"`
}

// Create records a new pending referral signed by the acting staff member.
func (s *Service) Create(ctx context.Context, actor auth.Identity, in CreateInput) (*Referral, error) {
	if in.PatientID <= 0 {
		return nil, apperr.Validation("patient is required")
	}
	if actor.StaffID <= 0 {
		return nil, apperr.Forbidden("only staff members can create referrals")
	}
	facility := strings.TrimSpace(in.FacilityName)
	if facility == "" {
		return nil, apperr.Validation("facility name is required")
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return nil, apperr.Validation("reason for referral is required")
	}
	urgency := UrgencyRoutine
	if v := strings.ToLower(strings.TrimSpace(in.Urgency)); v != "" {
		urgency = Urgency(v)
		if !urgency.Valid() {
			return nil, apperr.Validation("urgency must be routine, urgent or emergency")
		}
	}

	r := &Referral{
		PatientID:       in.PatientID,
		ReferredBy:      actor.StaffID,
		FacilityName:    facility,
		FacilityAddress: trimmed(in.FacilityAddress),
		Department:      trimmed(in.Department),
		Reason:          reason,
		ClinicalSummary: trimmed(in.ClinicalSummary),
		Diagnosis:       trimmed(in.Diagnosis),
		Urgency:         urgency,
		Status:          workflow.ReferralPending,
		Notes:           trimmed(in.Notes),
	}

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		p, err := s.patients.GetPatient(ctx, in.PatientID)
		if err != nil {
			return err
		}
		if !p.IsActive {
			return apperr.InvalidState("patient %s is inactive", p.PatientNumber)
		}
		r.PatientNumber = p.PatientNumber
		r.PatientName = p.FullName()
		r.PatientUserID = p.UserID

		staff, err := s.staff.GetStaff(ctx, actor.StaffID)
		if err != nil {
			return err
		}
		r.ReferredByName = staff.FullName()

		if in.ConsultationID != nil && *in.ConsultationID > 0 {
			c, err := s.consultations.Get(ctx, *in.ConsultationID)
			if err != nil {
				return err
			}
			if c.PatientID != r.PatientID {
				return apperr.Validation("consultation %s belongs to another patient", c.ConsultationNumber)
			}
			r.ConsultationID = &c.ID
			r.ConsultationNumber = c.ConsultationNumber
			if r.Diagnosis == nil {
				r.Diagnosis = c.Diagnosis
			}
		}

		if r.ReferralNumber, err = s.seq.NextAt(ctx, sequence.PrefixReferral, s.now()); err != nil {
			return err
		}
		if err := s.repo.Create(ctx, r); err != nil {
			return err
		}
		err = s.audit.Record(ctx, audit.Entry{
			UserID:     actor.UserID,
			ActionCode: "REFERRAL_CREATED",
			Module:     workflow.Referral.Module,
			RecordID:   r.ID,
			Details: map[string]interface{}{
				"referral_number": r.ReferralNumber,
				"patient_id":      r.PatientID,
				"facility_name":   r.FacilityName,
				"urgency":         string(r.Urgency),
			},
		})
		if err != nil {
			return err
		}
		if r.patientUserID() <= 0 {
			return nil
		}
		priority := notification.PriorityNormal
		if r.Urgency != UrgencyRoutine {
			priority = notification.PriorityHigh
		}
		_, err = s.notifier.Notify(ctx, notification.Message{
			UserID:   r.patientUserID(),
			Type:     "referral_created",
			Priority: priority,
			Data:     map[string]string{"referral_number": r.ReferralNumber, "facility_name": r.FacilityName},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	r.AllowedActions = workflow.Referral.Allowed(r.Status)
	return r, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Referral, error) {
	if id <= 0 {
		return nil, apperr.Validation("invalid referral id")
	}
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.AllowedActions = workflow.Referral.Allowed(r.Status)
	return r, nil
}

func (s *Service) Search(ctx context.Context, p SearchParams) ([]*Referral, int, error) {
	if p.Status != "" && !workflow.Referral.IsState(p.Status) {
		return nil, 0, apperr.Validation("unknown referral status %q", p.Status)
	}
	if p.Urgency != "" && !p.Urgency.Valid() {
		return nil, 0, apperr.Validation("unknown urgency %q", p.Urgency)
	}
	p.Query = strings.TrimSpace(p.Query)
	if p.Limit <= 0 {
		p.Limit = 20
	}
	items, total, err := s.repo.Search(ctx, p)
	if err != nil {
		return nil, 0, err
	}
	for _, r := range items {
		r.AllowedActions = workflow.Referral.Allowed(r.Status)
	}
	return items, total, nil
}

// ApplyAction runs one referral transition.
func (s *Service) ApplyAction(ctx context.Context, actor auth.Identity, id int64, in ActionInput) (*Referral, *workflow.Result, error) {
	action := workflow.Action(strings.TrimSpace(in.Action))
	if action == "" {
		return nil, nil, apperr.Validation("action is required")
	}
	now := s.now()

	var r *Referral
	res, err := s.tracker.Run(ctx, workflow.Request{
		Machine:  workflow.Referral,
		RecordID: id,
		Action:   action,
		ActorID:  actor.UserID,
		Load: func(ctx context.Context, id int64) (*workflow.Subject, error) {
			cur, err := s.repo.GetForUpdate(ctx, id)
			if err != nil {
				return nil, err
			}
			r = cur
			return &workflow.Subject{
				ID:            r.ID,
				Number:        r.ReferralNumber,
				State:         r.Status,
				PatientUserID: r.patientUserID(),
				Data: map[string]string{
					"referral_number": r.ReferralNumber,
					"facility_name":   r.FacilityName,
				},
			}, nil
		},
		Apply: func(ctx context.Context, sub *workflow.Subject, t workflow.Transition) (workflow.Changes, error) {
			return s.apply(ctx, r, sub, t, in, now)
		},
	})
	if err != nil {
		return nil, nil, err
	}
	r.AllowedActions = workflow.Referral.Allowed(r.Status)
	return r, res, nil
}

func (s *Service) apply(ctx context.Context, r *Referral, sub *workflow.Subject, t workflow.Transition, in ActionInput, now time.Time) (workflow.Changes, error) {
	changes := workflow.Changes{}

	switch t.Action {
	case workflow.UpdateFields:
		if in.FacilityName != nil {
			v := strings.TrimSpace(*in.FacilityName)
			if v == "" {
				return nil, apperr.Validation("facility name cannot be empty")
			}
			if v != r.FacilityName {
				r.FacilityName = v
				changes["facility_name"] = v
				sub.Data["facility_name"] = v
			}
		}
		if v := strings.TrimSpace(in.Reason); v != "" && v != r.Reason {
			r.Reason = v
			changes["reason"] = v
		}
		if in.Urgency != nil {
			u := Urgency(strings.ToLower(strings.TrimSpace(*in.Urgency)))
			if !u.Valid() {
				return nil, apperr.Validation("urgency must be routine, urgent or emergency")
			}
			if u != r.Urgency {
				r.Urgency = u
				changes["urgency"] = string(u)
			}
		}
		setText(&r.FacilityAddress, in.FacilityAddress, "facility_address", changes)
		setText(&r.Department, in.Department, "department", changes)
		setText(&r.ClinicalSummary, in.ClinicalSummary, "clinical_summary", changes)
		setText(&r.Diagnosis, in.Diagnosis, "diagnosis", changes)
		setText(&r.Notes, in.Notes, "notes", changes)
		if len(changes) == 0 {
			return nil, apperr.Validation("no fields to update")
		}

	case workflow.Send:
		r.SentAt = &now
		changes["sent_at"] = now.Format(time.RFC3339)

	case workflow.Complete:
		r.CompletedAt = &now
		changes["completed_at"] = now.Format(time.RFC3339)
		setText(&r.Notes, in.Notes, "notes", changes)

	case workflow.Cancel:
		reason := strings.TrimSpace(in.Reason)
		if reason == "" {
			return nil, apperr.Validation("cancellation reason is required")
		}
		r.CancelledAt = &now
		r.CancelReason = &reason
		changes["cancel_reason"] = reason
		sub.Data["reason"] = reason
	}

	r.Status = t.To
	if err := s.repo.Update(ctx, r); err != nil {
		return nil, err
	}
	return changes, nil
}

// setText overwrites dst when in is set and differs. An empty string clears it.
func setText(dst **string, in *string, key string, changes workflow.Changes) {
	if in == nil {
		return
	}
	next := trimmed(in)
	if deref(*dst) == deref(next) {
		return
	}
	*dst = next
	changes[key] = deref(next)
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
