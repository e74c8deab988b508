package consultation

import (
	"context"
	"time"
)

type Repository interface {
	Create(ctx context.Context, c *Consultation) error
	GetByID(ctx context.Context, id int64) (*Consultation, error)
	// GetForUpdate locks the row for the rest of the transaction.
	GetForUpdate(ctx context.Context, id int64) (*Consultation, error)
	// Update writes status, schedule and clinical fields. A doctor slot
	// collision is reported as a conflict.
	Update(ctx context.Context, c *Consultation) error
	// SlotTaken reports whether another open consultation of the doctor is
	// scheduled at exactly at.
	SlotTaken(ctx context.Context, doctorID int64, at time.Time, excludeID int64) (bool, error)
	Search(ctx context.Context, p SearchParams) ([]*Consultation, int, error)
}

type PrescriptionRepository interface {
	// Create inserts the prescription and its items.
	Create(ctx context.Context, p *Prescription) error
	ListByConsultation(ctx context.Context, consultationID int64) ([]*Prescription, error)
	GetByNumber(ctx context.Context, number string) (*Prescription, error)
}

type MedicineRepository interface {
	GetByID(ctx context.Context, id int64) (*Medicine, error)
	Search(ctx context.Context, query string, limit int) ([]*Medicine, error)
}
