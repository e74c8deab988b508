package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhu/rhu/internal/platform/db"
)

type PGCredentialStore struct {
	pool *pgxpool.Pool
}

func NewPGCredentialStore(pool *pgxpool.Pool) *PGCredentialStore {
	return &PGCredentialStore{pool: pool}
}

func (s *PGCredentialStore) FindByUsername(ctx context.Context, username string) (*Credential, error) {
	var c Credential
	err := db.Conn(ctx, s.pool).QueryRow(ctx, `
		SELECT u.id, COALESCE(s.id, 0), u.username, u.password_hash, u.role, u.is_active,
			COALESCE(s.is_active, false), COALESCE(s.first_name, ''), COALESCE(s.last_name, ''),
			COALESCE(s.department, '')
		FROM users u
		LEFT JOIN staff s ON s.user_id = u.id
		WHERE u.username = $1`, username,
	).Scan(&c.UserID, &c.StaffID, &c.Username, &c.PasswordHash, &c.Role, &c.UserActive,
		&c.StaffActive, &c.FirstName, &c.LastName, &c.Department)
	if db.IsNoRows(err) {
		return nil, ErrCredentialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find credential: %w", err)
	}
	return &c, nil
}

func (s *PGCredentialStore) TouchLastLogin(ctx context.Context, userID int64, at time.Time) error {
	_, err := db.Conn(ctx, s.pool).Exec(ctx,
		`UPDATE users SET last_login_at = $2 WHERE id = $1`, userID, at)
	if err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}
	return nil
}
