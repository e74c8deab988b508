// Package notification stores in-app notifications for patient accounts and
// relays them to the message bus. Rows are written in the transaction of the
// action that caused them.
package notification

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

type Notification struct {
	ID        int64             `json:"id"`
	UserID    int64             `json:"user_id"`
	Type      string            `json:"type"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Data      map[string]string `json:"data,omitempty"`
	Priority  Priority          `json:"priority"`
	IsRead    bool              `json:"is_read"`
	CreatedAt time.Time         `json:"created_at"`
	RelayedAt *time.Time        `json:"relayed_at,omitempty"`
}

// Store persists notifications. Enqueue joins the caller's transaction.
type Store interface {
	Enqueue(ctx context.Context, n *Notification) error
	ListForUser(ctx context.Context, userID int64, unreadOnly bool, limit, offset int) ([]*Notification, int, error)
}

// Notifier renders a template and enqueues the result.
type Notifier struct {
	store     Store
	templates *TemplateEngine
	now       func() time.Time
}

func NewNotifier(store Store, templates *TemplateEngine) *Notifier {
	if templates == nil {
		templates = NewTemplateEngine()
	}
	return &Notifier{store: store, templates: templates, now: time.Now}
}

// Message is a notification to render and enqueue. Priority overrides the
// template default when set.
type Message struct {
	UserID   int64
	Type     string
	Priority Priority
	Data     map[string]string
}

var ErrNoRecipient = errors.New("notification: recipient user id is required")

func (n *Notifier) Notify(ctx context.Context, m Message) (*Notification, error) {
	if m.UserID <= 0 {
		return nil, ErrNoRecipient
	}
	tpl, ok := n.templates.Lookup(m.Type)
	if !ok {
		return nil, fmt.Errorf("notification: unknown type %q", m.Type)
	}
	title, message, err := n.templates.Render(m.Type, m.Data)
	if err != nil {
		return nil, err
	}
	priority := m.Priority
	if priority == "" {
		priority = tpl.Priority
	}
	out := &Notification{
		UserID:    m.UserID,
		Type:      m.Type,
		Title:     title,
		Message:   message,
		Data:      m.Data,
		Priority:  priority,
		CreatedAt: n.now().UTC(),
	}
	if err := n.store.Enqueue(ctx, out); err != nil {
		return nil, fmt.Errorf("enqueue %s notification: %w", m.Type, err)
	}
	return out, nil
}

// ListForUser returns what a patient account has received, newest first.
func (n *Notifier) ListForUser(ctx context.Context, userID int64, unreadOnly bool, limit, offset int) ([]*Notification, int, error) {
	if limit <= 0 {
		limit = 20
	}
	return n.store.ListForUser(ctx, userID, unreadOnly, limit, offset)
}
