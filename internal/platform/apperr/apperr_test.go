package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"validation", Validation("chief complaint is required"), KindValidation},
		{"wrapped conflict", fmt.Errorf("schedule: %w", Conflict("time slot already taken")), KindConflict},
		{"not found", NotFound("patient %d not found", 7), KindNotFound},
		{"invalid state", InvalidState("cannot issue"), KindInvalidState},
		{"plain error", errors.New("connection reset"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestMessage_HidesInternalCause(t *testing.T) {
	err := Internal(errors.New("pq: relation does not exist"))
	if got := Message(err); got != "an internal error occurred, please try again" {
		t.Errorf("unexpected message: %q", got)
	}
	if !errors.Is(err, err.Err) {
		t.Error("expected Unwrap to expose the cause")
	}
}

func TestMessage_Formatting(t *testing.T) {
	err := NotFound("patient %d not found", 7)
	if got := Message(err); got != "patient 7 not found" {
		t.Errorf("unexpected message: %q", got)
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindValidation:   http.StatusBadRequest,
		KindConflict:     http.StatusConflict,
		KindInvalidState: http.StatusConflict,
		KindNotFound:     http.StatusNotFound,
		KindUnauthorized: http.StatusUnauthorized,
		KindForbidden:    http.StatusForbidden,
		KindInternal:     http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := HTTPStatus(kind); got != want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", kind, got, want)
		}
	}
}

func TestIs(t *testing.T) {
	err := fmt.Errorf("wrap: %w", Conflict("username already exists"))
	if !Is(err, KindConflict) {
		t.Error("expected conflict")
	}
	if Is(err, KindNotFound) {
		t.Error("did not expect not_found")
	}
}
