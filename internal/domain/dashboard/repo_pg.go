package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhu/rhu/internal/platform/db"
)

type dashboardRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &dashboardRepoPG{pool: pool}
}

func (r *dashboardRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

var statusQueries = map[Table]string{
	TableConsultations: `SELECT status, COUNT(*) FROM consultations GROUP BY status`,
	TableCertificates:  `SELECT status, COUNT(*) FROM medical_certificates GROUP BY status`,
	TableReferrals:     `SELECT status, COUNT(*) FROM referrals GROUP BY status`,
}

func (r *dashboardRepoPG) ActivePatients(ctx context.Context) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients WHERE is_active`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active patients: %w", err)
	}
	return n, nil
}

func (r *dashboardRepoPG) StatusCounts(ctx context.Context, t Table) (map[string]int, error) {
	query, ok := statusQueries[t]
	if !ok {
		return nil, fmt.Errorf("no status counts for table %q", t)
	}
	rows, err := r.conn(ctx).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("count %s by status: %w", t, err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

func (r *dashboardRepoPG) ScheduledBetween(ctx context.Context, from, to time.Time) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM consultations
		WHERE status IN ('pending', 'in_progress') AND scheduled_at >= $1 AND scheduled_at < $2`,
		from, to,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count scheduled consultations: %w", err)
	}
	return n, nil
}

func (r *dashboardRepoPG) UnreadNotifications(ctx context.Context) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE NOT is_read`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return n, nil
}
