package db

import (
	"errors"
	"net/http"
	"testing"
	"testing/fstest"
)

func TestEvaluate(t *testing.T) {
	stats := PoolStats{TotalConns: 2, MaxConns: 10}
	tests := []struct {
		name       string
		pingErr    error
		applied    int
		wantCode   int
		wantStatus string
	}{
		{"current", nil, 2, http.StatusOK, "healthy"},
		{"ahead of binary", nil, 3, http.StatusOK, "healthy"},
		{"behind", nil, 1, http.StatusServiceUnavailable, "migrations_pending"},
		{"unreachable", errors.New("connection refused"), 0, http.StatusServiceUnavailable, "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, h := evaluate(tt.pingErr, tt.applied, 2, stats)
			if code != tt.wantCode || h.Status != tt.wantStatus {
				t.Errorf("got %d %q, want %d %q", code, h.Status, tt.wantCode, tt.wantStatus)
			}
			if h.Success != (tt.wantCode == http.StatusOK) {
				t.Errorf("success = %v for %d", h.Success, code)
			}
			if h.Pool != stats {
				t.Errorf("pool stats not carried through: %+v", h.Pool)
			}
		})
	}
}

func TestLatestVersion(t *testing.T) {
	files := fstest.MapFS{
		"001_core.sql":  {Data: []byte("SELECT 1;")},
		"002_seed.sql":  {Data: []byte("SELECT 2;")},
		"010_later.sql": {Data: []byte("SELECT 10;")},
		"README.md":     {Data: []byte("notes")},
	}
	got, err := LatestVersion(files)
	if err != nil {
		t.Fatal(err)
	}
	if got != 10 {
		t.Errorf("LatestVersion = %d, want 10", got)
	}

	got, err = LatestVersion(fstest.MapFS{})
	if err != nil || got != 0 {
		t.Errorf("empty FS: got %d, %v", got, err)
	}
}
