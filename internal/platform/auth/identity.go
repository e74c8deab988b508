package auth

import (
	"context"
	"strings"
)

const (
	RoleAdmin   = "rhu_admin"
	RolePatient = "patient"
)

// Identity is the authenticated staff member behind a request.
type Identity struct {
	UserID     int64  `json:"user_id"`
	StaffID    int64  `json:"staff_id"`
	Username   string `json:"username"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	Department string `json:"department"`
}

func (i Identity) IsStaffOf(department string) bool {
	return i.Role == RoleAdmin && i.StaffID > 0 && strings.EqualFold(i.Department, department)
}

type contextKey string

const identityKey contextKey = "identity"

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// MustIdentity returns the identity or panics. Only call it behind
// RequireStaff.
func MustIdentity(ctx context.Context) Identity {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		panic("auth: no identity in context")
	}
	return id
}
