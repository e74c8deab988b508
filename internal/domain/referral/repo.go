package referral

import "context"

type Repository interface {
	Create(ctx context.Context, r *Referral) error
	GetByID(ctx context.Context, id int64) (*Referral, error)
	GetForUpdate(ctx context.Context, id int64) (*Referral, error)
	Update(ctx context.Context, r *Referral) error
	Search(ctx context.Context, p SearchParams) ([]*Referral, int, error)
}
