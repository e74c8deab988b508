package identity

import "context"

// Repositories return apperr not_found errors for missing rows.

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id int64) (*Patient, error)
	// GetForUpdate locks the row for the rest of the transaction.
	GetForUpdate(ctx context.Context, id int64) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	SetActive(ctx context.Context, id int64, active bool) error
	LinkUser(ctx context.Context, patientID, userID int64) error
	Search(ctx context.Context, q PatientSearch) ([]*Patient, int, error)
}

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	UpdatePassword(ctx context.Context, id int64, hash string) error
	SetActive(ctx context.Context, id int64, active bool) error
}

type StaffRepository interface {
	Create(ctx context.Context, s *Staff) error
	GetByID(ctx context.Context, id int64) (*Staff, error)
	List(ctx context.Context, f StaffFilter) ([]*Staff, error)
}

type BarangayRepository interface {
	GetByID(ctx context.Context, id int64) (*Barangay, error)
	List(ctx context.Context, activeOnly bool) ([]*Barangay, error)
}
