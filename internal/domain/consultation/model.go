package consultation

import (
	"time"

	"github.com/rhu/rhu/internal/domain/workflow"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

const (
	TypeWalkIn    = "walk_in"
	TypeScheduled = "scheduled"
	TypeFollowUp  = "follow_up"
)

// Vitals are the measurements taken at the visit. All are optional.
type Vitals struct {
	BloodPressure    *string  `json:"blood_pressure,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	PulseRate        *int     `json:"pulse_rate,omitempty"`
	RespiratoryRate  *int     `json:"respiratory_rate,omitempty"`
	Weight           *float64 `json:"weight,omitempty"`
	Height           *float64 `json:"height,omitempty"`
	OxygenSaturation *int     `json:"oxygen_saturation,omitempty"`
}

// Consultation maps to the consultations table. Patient and doctor names
// are joined in on read.
type Consultation struct {
	ID                      int64          `json:"id"`
	ConsultationNumber      string         `json:"consultation_number"`
	PatientID               int64          `json:"patient_id"`
	PatientNumber           string         `json:"patient_number,omitempty"`
	PatientName             string         `json:"patient_name,omitempty"`
	PatientUserID           *int64         `json:"-"`
	DoctorID                *int64         `json:"doctor_id,omitempty"`
	DoctorName              string         `json:"doctor_name,omitempty"`
	Status                  workflow.State `json:"status"`
	ConsultationType        string         `json:"consultation_type"`
	ChiefComplaint          string         `json:"chief_complaint"`
	HistoryOfPresentIllness *string        `json:"history_of_present_illness,omitempty"`
	Vitals
	PhysicalExamination *string    `json:"physical_examination,omitempty"`
	Diagnosis           *string    `json:"diagnosis,omitempty"`
	TreatmentPlan       *string    `json:"treatment_plan,omitempty"`
	Notes               *string    `json:"notes,omitempty"`
	Priority            Priority   `json:"priority"`
	PreferredDate       *time.Time `json:"preferred_date,omitempty"`
	ScheduledAt         *time.Time `json:"scheduled_at,omitempty"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	CancelledAt         *time.Time `json:"cancelled_at,omitempty"`
	CancelReason        *string    `json:"cancel_reason,omitempty"`
	CreatedBy           *int64     `json:"created_by,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`

	AllowedActions []workflow.Action `json:"allowed_actions,omitempty"`
}

func (c *Consultation) patientUserID() int64 {
	if c.PatientUserID == nil {
		return 0
	}
	return *c.PatientUserID
}

type Prescription struct {
	ID                 int64              `json:"id"`
	PrescriptionNumber string             `json:"prescription_number"`
	ConsultationID     int64              `json:"consultation_id"`
	ConsultationNumber string             `json:"consultation_number,omitempty"`
	PatientID          int64              `json:"patient_id"`
	PrescribedBy       int64              `json:"prescribed_by"`
	PrescriberName     string             `json:"prescriber_name,omitempty"`
	Instructions       *string            `json:"instructions,omitempty"`
	Items              []PrescriptionItem `json:"items"`
	CreatedAt          time.Time          `json:"created_at"`
}

type PrescriptionItem struct {
	ID             int64   `json:"id"`
	PrescriptionID int64   `json:"prescription_id"`
	MedicineID     *int64  `json:"medicine_id,omitempty"`
	MedicineName   string  `json:"medicine_name"`
	Dosage         string  `json:"dosage"`
	Frequency      string  `json:"frequency"`
	Duration       *string `json:"duration,omitempty"`
	Quantity       int     `json:"quantity"`
	Instructions   *string `json:"instructions,omitempty"`
}

type Medicine struct {
	ID            int64   `json:"id"`
	Name          string  `json:"name"`
	GenericName   *string `json:"generic_name,omitempty"`
	DosageForm    *string `json:"dosage_form,omitempty"`
	Strength      *string `json:"strength,omitempty"`
	StockQuantity int     `json:"stock_quantity"`
	IsActive      bool    `json:"is_active"`
}

// SearchParams filters the consultation list. From and To bound
// created_at; To is exclusive.
type SearchParams struct {
	Status    workflow.State
	PatientID int64
	DoctorID  int64
	From      *time.Time
	To        *time.Time
	Query     string
	Limit     int
	Offset    int
}
