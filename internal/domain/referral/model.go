package referral

import (
	"time"

	"github.com/rhu/rhu/internal/domain/workflow"
)

type Urgency string

const (
	UrgencyRoutine   Urgency = "routine"
	UrgencyUrgent    Urgency = "urgent"
	UrgencyEmergency Urgency = "emergency"
)

func (u Urgency) Valid() bool {
	switch u {
	case UrgencyRoutine, UrgencyUrgent, UrgencyEmergency:
		return true
	}
	return false
}

// Referral transfers a patient's care to an outside facility.
type Referral struct {
	ID                 int64          `json:"id"`
	ReferralNumber     string         `json:"referral_number"`
	PatientID          int64          `json:"patient_id"`
	PatientNumber      string         `json:"patient_number,omitempty"`
	PatientName        string         `json:"patient_name,omitempty"`
	PatientUserID      *int64         `json:"-"`
	ConsultationID     *int64         `json:"consultation_id,omitempty"`
	ConsultationNumber string         `json:"consultation_number,omitempty"`
	ReferredBy         int64          `json:"referred_by"`
	ReferredByName     string         `json:"referred_by_name,omitempty"`
	FacilityName       string         `json:"facility_name"`
	FacilityAddress    *string        `json:"facility_address,omitempty"`
	Department         *string        `json:"department,omitempty"`
	Reason             string         `json:"reason"`
	ClinicalSummary    *string        `json:"clinical_summary,omitempty"`
	Diagnosis          *string        `json:"diagnosis,omitempty"`
	Urgency            Urgency        `json:"urgency"`
	Status             workflow.State `json:"status"`
	Notes              *string        `json:"notes,omitempty"`
	SentAt             *time.Time     `json:"sent_at,omitempty"`
	CompletedAt        *time.Time     `json:"completed_at,omitempty"`
	CancelledAt        *time.Time     `json:"cancelled_at,omitempty"`
	CancelReason       *string        `json:"cancel_reason,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`

	AllowedActions []workflow.Action `json:"allowed_actions,omitempty"`
}

func (r *Referral) patientUserID() int64 {
	if r.PatientUserID == nil {
		return 0
	}
	return *r.PatientUserID
}

type SearchParams struct {
	Status    workflow.State
	PatientID int64
	Urgency   Urgency
	Query     string
	Limit     int
	Offset    int
}
