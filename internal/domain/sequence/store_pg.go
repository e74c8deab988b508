package sequence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhu/rhu/internal/platform/db"
)

type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, s.pool)
}

// existing counts rows numbered before the counter table existed. Table and
// column come from the static owner registry, never from input.
func (s *PGStore) existing(ctx context.Context, owner Owner, prefix string, year int) (int, error) {
	q := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s LIKE $1`, owner.Table, owner.Column)
	var n int
	if err := s.conn(ctx).QueryRow(ctx, q, fmt.Sprintf("%s-%04d-%%", prefix, year)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count existing %s numbers: %w", prefix, err)
	}
	return n, nil
}

// Next bumps an existing counter directly. The legacy row count only runs
// when the (prefix, year) counter does not exist yet.
func (s *PGStore) Next(ctx context.Context, owner Owner, prefix string, year int) (int, error) {
	var value int
	err := s.conn(ctx).QueryRow(ctx, `
		UPDATE sequence_counters SET value = value + 1, updated_at = NOW()
		WHERE prefix = $1 AND year = $2
		RETURNING value`, prefix, year).Scan(&value)
	if err == nil {
		return value, nil
	}
	if !db.IsNoRows(err) {
		return 0, err
	}

	seed, err := s.existing(ctx, owner, prefix, year)
	if err != nil {
		return 0, err
	}
	// A concurrent first allocation may insert between the UPDATE and here;
	// the conflict branch then increments its row.
	err = s.conn(ctx).QueryRow(ctx, `
		INSERT INTO sequence_counters (prefix, year, value) VALUES ($1, $2, $3 + 1)
		ON CONFLICT (prefix, year) DO UPDATE SET value = sequence_counters.value + 1, updated_at = NOW()
		RETURNING value`, prefix, year, seed).Scan(&value)
	if err != nil {
		return 0, err
	}
	return value, nil
}

func (s *PGStore) Peek(ctx context.Context, owner Owner, prefix string, year int) (int, error) {
	var value int
	err := s.conn(ctx).QueryRow(ctx,
		`SELECT value FROM sequence_counters WHERE prefix = $1 AND year = $2`, prefix, year).Scan(&value)
	if err == nil {
		return value + 1, nil
	}
	if !db.IsNoRows(err) {
		return 0, err
	}
	seed, err := s.existing(ctx, owner, prefix, year)
	if err != nil {
		return 0, err
	}
	return seed + 1, nil
}
