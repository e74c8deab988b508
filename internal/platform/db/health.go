package db

import (
	"context"
	"io/fs"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

type PoolStats struct {
	TotalConns    int32 `json:"total_conns"`
	IdleConns     int32 `json:"idle_conns"`
	AcquiredConns int32 `json:"acquired_conns"`
	MaxConns      int32 `json:"max_conns"`
}

func poolStats(pool *pgxpool.Pool) PoolStats {
	s := pool.Stat()
	return PoolStats{
		TotalConns:    s.TotalConns(),
		IdleConns:     s.IdleConns(),
		AcquiredConns: s.AcquiredConns(),
		MaxConns:      s.MaxConns(),
	}
}

// Health is the body of GET /health/db.
type Health struct {
	Success       bool      `json:"success"`
	Status        string    `json:"status"`
	Message       string    `json:"message,omitempty"`
	SchemaVersion int       `json:"schema_version"`
	LatestVersion int       `json:"latest_version"`
	Pool          PoolStats `json:"pool"`
}

// evaluate decides the reported status. A reachable database that is behind
// the binary's migrations is unhealthy: handlers would hit missing columns.
func evaluate(pingErr error, applied, latest int, stats PoolStats) (int, Health) {
	h := Health{SchemaVersion: applied, LatestVersion: latest, Pool: stats}
	switch {
	case pingErr != nil:
		h.Status, h.Message = "unhealthy", pingErr.Error()
		return http.StatusServiceUnavailable, h
	case applied < latest:
		h.Status, h.Message = "migrations_pending", "run \"rhu-server migrate up\""
		return http.StatusServiceUnavailable, h
	}
	h.Success, h.Status = true, "healthy"
	return http.StatusOK, h
}

// LatestVersion is the highest migration version in files.
func LatestVersion(files fs.FS) (int, error) {
	migs, err := NewMigrator(nil, files).LoadMigrations()
	if err != nil {
		return 0, err
	}
	if len(migs) == 0 {
		return 0, nil
	}
	return migs[len(migs)-1].Version, nil
}

// HealthHandler pings the database and compares the applied schema version
// with latest.
func HealthHandler(pool *pgxpool.Pool, latest int) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		applied := 0
		err := pool.Ping(ctx)
		if err == nil {
			var v *int
			if qerr := pool.QueryRow(ctx, `SELECT MAX(version) FROM _migrations`).Scan(&v); qerr == nil && v != nil {
				applied = *v
			}
		}
		status, h := evaluate(err, applied, latest, poolStats(pool))
		return c.JSON(status, h)
	}
}
