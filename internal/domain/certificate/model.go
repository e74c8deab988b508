package certificate

import (
	"time"

	"github.com/rhu/rhu/internal/domain/workflow"
)

type FitnessStatus string

const (
	Fit                 FitnessStatus = "fit"
	Unfit               FitnessStatus = "unfit"
	FitWithRestrictions FitnessStatus = "fit_with_restrictions"
)

func (f FitnessStatus) Valid() bool {
	switch f {
	case Fit, Unfit, FitWithRestrictions:
		return true
	}
	return false
}

// Certificate maps to medical_certificates. The findings are filled in by
// the checkup and issue steps.
type Certificate struct {
	ID                  int64          `json:"id"`
	CertificateNumber   string         `json:"certificate_number"`
	PatientID           int64          `json:"patient_id"`
	PatientNumber       string         `json:"patient_number,omitempty"`
	PatientName         string         `json:"patient_name,omitempty"`
	PatientUserID       *int64         `json:"-"`
	Purpose             string         `json:"purpose"`
	Status              workflow.State `json:"status"`
	DoctorID            *int64         `json:"doctor_id,omitempty"`
	DoctorName          string         `json:"doctor_name,omitempty"`
	CheckupAt           *time.Time     `json:"checkup_at,omitempty"`
	BloodPressure       *string        `json:"blood_pressure,omitempty"`
	Temperature         *float64       `json:"temperature,omitempty"`
	PulseRate           *int           `json:"pulse_rate,omitempty"`
	Weight              *float64       `json:"weight,omitempty"`
	Height              *float64       `json:"height,omitempty"`
	ExaminationFindings *string        `json:"examination_findings,omitempty"`
	Diagnosis           *string        `json:"diagnosis,omitempty"`
	FitnessStatus       *FitnessStatus `json:"fitness_status,omitempty"`
	Restrictions        *string        `json:"restrictions,omitempty"`
	Recommendations     *string        `json:"recommendations,omitempty"`
	ValidFrom           *time.Time     `json:"valid_from,omitempty"`
	ValidUntil          *time.Time     `json:"valid_until,omitempty"`
	IssuedAt            *time.Time     `json:"issued_at,omitempty"`
	DownloadedAt        *time.Time     `json:"downloaded_at,omitempty"`
	CancelledAt         *time.Time     `json:"cancelled_at,omitempty"`
	CancelReason        *string        `json:"cancel_reason,omitempty"`
	CreatedBy           *int64         `json:"created_by,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`

	AllowedActions []workflow.Action `json:"allowed_actions,omitempty"`
}

func (c *Certificate) patientUserID() int64 {
	if c.PatientUserID == nil {
		return 0
	}
	return *c.PatientUserID
}

// Released reports whether the certificate has been made available to the
// patient.
func (c *Certificate) Released() bool {
	return c.Status == workflow.CertificateReadyForDownload || c.Status == workflow.CertificateDownloaded
}

type SearchParams struct {
	Status    workflow.State
	PatientID int64
	Query     string
	Limit     int
	Offset    int
}
