//go:build integration

package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rhu/rhu/internal/platform/apperr"
)

func TestPatient_DeactivateAlsoDisablesAccount(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	p := s.newPatient(t, "Juan", "juan")

	_, err := s.identity.DeactivatePatient(ctx, s.staff, p.ID)
	require.NoError(t, err)

	require.Equal(t, 0, count(t, `SELECT COUNT(*) FROM patients WHERE id = $1 AND is_active`, p.ID))
	require.Equal(t, 0, count(t, `SELECT COUNT(*) FROM users WHERE id = $1 AND is_active`, *p.UserID))
	require.Equal(t, 1, count(t, `SELECT COUNT(*) FROM notifications WHERE type = 'account_deactivated' AND user_id = $1`, *p.UserID))

	_, err = s.identity.DeactivatePatient(ctx, s.staff, p.ID)
	require.True(t, apperr.Is(err, apperr.KindInvalidState))
}

func TestPatient_DuplicateUsername(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	s.newPatient(t, "Juan", "juan")
	q := s.newPatient(t, "Maria", "")

	_, err := s.identity.CreateAccount(ctx, s.staff, q.ID, "juan", "another-pass")
	require.True(t, apperr.Is(err, apperr.KindConflict), "expected conflict, got %v", err)
	require.Equal(t, 0, count(t, `SELECT COUNT(*) FROM system_logs WHERE action_code = 'PATIENT_ACCOUNT_CREATED' AND record_id = $1`, q.ID))
}
