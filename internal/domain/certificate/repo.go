package certificate

import (
	"context"
	"time"
)

type Repository interface {
	Create(ctx context.Context, c *Certificate) error
	GetByID(ctx context.Context, id int64) (*Certificate, error)
	GetForUpdate(ctx context.Context, id int64) (*Certificate, error)
	Update(ctx context.Context, c *Certificate) error
	Search(ctx context.Context, p SearchParams) ([]*Certificate, int, error)
	// ListOverdue returns the ids of released certificates whose validity
	// ended before today.
	ListOverdue(ctx context.Context, today time.Time, limit int) ([]int64, error)
}
