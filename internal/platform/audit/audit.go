// Package audit writes the append-only system_logs trail. Every mutating
// action records exactly one entry inside the transaction that performed it.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Entry is one system_logs row. UserID and RecordID are zero when absent.
type Entry struct {
	ID         int64                  `json:"id"`
	EventID    uuid.UUID              `json:"event_id"`
	UserID     int64                  `json:"user_id,omitempty"`
	ActionCode string                 `json:"action"`
	Module     string                 `json:"module"`
	RecordID   int64                  `json:"record_id,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	IPAddress  string                 `json:"ip_address,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// SearchParams filters the trail. Zero values are ignored.
type SearchParams struct {
	Module   string
	Action   string
	UserID   int64
	RecordID int64
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}

// Store persists entries. Entries are never updated or deleted.
type Store interface {
	Insert(ctx context.Context, e *Entry) error
	Search(ctx context.Context, p SearchParams) ([]*Entry, int, error)
}

// Recorder stamps entries with an event id, the client address from the
// request context and the current time before storing them.
type Recorder struct {
	store Store
	now   func() time.Time
}

func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store, now: time.Now}
}

// Record stores e in the caller's transaction, if ctx carries one.
func (r *Recorder) Record(ctx context.Context, e Entry) error {
	if e.ActionCode == "" {
		return fmt.Errorf("audit: action code is required")
	}
	if e.Module == "" {
		return fmt.Errorf("audit: module is required for %s", e.ActionCode)
	}
	if e.EventID == uuid.Nil {
		e.EventID = uuid.New()
	}
	if e.IPAddress == "" {
		e.IPAddress = ClientIPFromContext(ctx)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now().UTC()
	}
	if err := r.store.Insert(ctx, &e); err != nil {
		return fmt.Errorf("audit %s: %w", e.ActionCode, err)
	}
	return nil
}

// Search lists entries newest first.
func (r *Recorder) Search(ctx context.Context, p SearchParams) ([]*Entry, int, error) {
	if p.Limit <= 0 {
		p.Limit = 20
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return r.store.Search(ctx, p)
}

type ctxKey struct{}

// WithClientIP stores the caller's address for later audit entries.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxKey{}, ip)
}

func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(ctxKey{}).(string)
	return ip
}
