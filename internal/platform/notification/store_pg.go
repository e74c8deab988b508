package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhu/rhu/internal/platform/db"
)

type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const notificationCols = `id, user_id, type, title, message, data, priority, is_read, created_at, relayed_at`

func scanNotification(row pgx.Row) (*Notification, error) {
	var n Notification
	var data []byte
	if err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &data,
		&n.Priority, &n.IsRead, &n.CreatedAt, &n.RelayedAt); err != nil {
		return nil, err
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &n.Data); err != nil {
			return nil, fmt.Errorf("decode notification %d data: %w", n.ID, err)
		}
	}
	return &n, nil
}

func (s *PGStore) Enqueue(ctx context.Context, n *Notification) error {
	data, err := json.Marshal(n.Data)
	if err != nil {
		return fmt.Errorf("encode data: %w", err)
	}
	return db.Conn(ctx, s.pool).QueryRow(ctx, `
		INSERT INTO notifications (user_id, type, title, message, data, priority, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, false, $7)
		RETURNING id`,
		n.UserID, n.Type, n.Title, n.Message, data, n.Priority, n.CreatedAt,
	).Scan(&n.ID)
}

func (s *PGStore) ListForUser(ctx context.Context, userID int64, unreadOnly bool, limit, offset int) ([]*Notification, int, error) {
	where := " WHERE user_id = $1"
	if unreadOnly {
		where += " AND is_read = false"
	}
	conn := db.Conn(ctx, s.pool)

	var total int
	if err := conn.QueryRow(ctx, "SELECT COUNT(*) FROM notifications"+where, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}

	rows, err := conn.Query(ctx, "SELECT "+notificationCols+" FROM notifications"+where+
		" ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3", userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var items []*Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, n)
	}
	return items, total, rows.Err()
}

// ClaimUnrelayed locks up to limit unrelayed rows for the current
// transaction. Concurrent relays skip each other's rows.
func (s *PGStore) ClaimUnrelayed(ctx context.Context, limit int) ([]*Notification, error) {
	rows, err := db.Conn(ctx, s.pool).Query(ctx, "SELECT "+notificationCols+` FROM notifications
		WHERE relayed_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, fmt.Errorf("claim notifications: %w", err)
	}
	defer rows.Close()

	var items []*Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

func (s *PGStore) MarkRelayed(ctx context.Context, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := db.Conn(ctx, s.pool).Exec(ctx,
		`UPDATE notifications SET relayed_at = $2 WHERE id = ANY($1)`, ids, at)
	if err != nil {
		return fmt.Errorf("mark notifications relayed: %w", err)
	}
	return nil
}
