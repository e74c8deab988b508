package audit

import (
	"context"
	"encoding/json"
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

const logCols = `id, event_id, COALESCE(user_id, 0), action_code, module, COALESCE(record_id, 0),
	details, COALESCE(ip_address, ''), created_at`

func (s *PGStore) Insert(ctx context.Context, e *Entry) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return fmt.Errorf("encode details: %w", err)
	}
	return db.Conn(ctx, s.pool).QueryRow(ctx, `
		INSERT INTO system_logs (event_id, user_id, action_code, module, record_id, details, ip_address, created_at)
		VALUES ($1, NULLIF($2, 0), $3, $4, NULLIF($5, 0), $6, NULLIF($7, ''), $8)
		RETURNING id`,
		e.EventID, e.UserID, e.ActionCode, e.Module, e.RecordID, details, e.IPAddress, e.CreatedAt,
	).Scan(&e.ID)
}

func (s *PGStore) Search(ctx context.Context, p SearchParams) ([]*Entry, int, error) {
	where := " WHERE 1=1"
	var args []interface{}
	idx := 1

	if p.Module != "" {
		where += fmt.Sprintf(" AND module = $%d", idx)
		args = append(args, p.Module)
		idx++
	}
	if p.Action != "" {
		where += fmt.Sprintf(" AND action_code = $%d", idx)
		args = append(args, p.Action)
		idx++
	}
	if p.UserID != 0 {
		where += fmt.Sprintf(" AND user_id = $%d", idx)
		args = append(args, p.UserID)
		idx++
	}
	if p.RecordID != 0 {
		where += fmt.Sprintf(" AND record_id = $%d", idx)
		args = append(args, p.RecordID)
		idx++
	}
	if p.From != nil {
		where += fmt.Sprintf(" AND created_at >= $%d", idx)
		args = append(args, *p.From)
		idx++
	}
	if p.To != nil {
		where += fmt.Sprintf(" AND created_at < $%d", idx)
		args = append(args, *p.To)
		idx++
	}

	conn := db.Conn(ctx, s.pool)

	var total int
	if err := conn.QueryRow(ctx, "SELECT COUNT(*) FROM system_logs"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count system logs: %w", err)
	}

	query := "SELECT " + logCols + " FROM system_logs" + where +
		fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, p.Limit, p.Offset)

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search system logs: %w", err)
	}
	defer rows.Close()

	var items []*Entry
	for rows.Next() {
		var e Entry
		var details []byte
		if err := rows.Scan(&e.ID, &e.EventID, &e.UserID, &e.ActionCode, &e.Module, &e.RecordID,
			&details, &e.IPAddress, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, 0, fmt.Errorf("decode details of log %d: %w", e.ID, err)
			}
		}
		items = append(items, &e)
	}
	return items, total, rows.Err()
}
