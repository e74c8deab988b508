package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/rhu/rhu/internal/platform/apperr"
	"github.com/rhu/rhu/internal/platform/audit"
	"github.com/rhu/rhu/internal/platform/db/dbtest"
)

type mockCredentialStore struct {
	creds   map[string]*Credential
	touched map[int64]time.Time
}

func newMockCredentialStore(t *testing.T) *mockCredentialStore {
	t.Helper()
	hash, err := HashPassword("correct-horse")
	if err != nil {
		t.Fatal(err)
	}
	return &mockCredentialStore{
		touched: map[int64]time.Time{},
		creds: map[string]*Credential{
			"mreyes": {UserID: 4, StaffID: 2, Username: "mreyes", PasswordHash: hash, Role: RoleAdmin,
				UserActive: true, StaffActive: true, FirstName: "Maria", LastName: "Reyes", Department: "RHU"},
			"inactive": {UserID: 5, StaffID: 3, Username: "inactive", PasswordHash: hash, Role: RoleAdmin,
				UserActive: false, StaffActive: true, Department: "RHU"},
			"juan": {UserID: 9, Username: "juan", PasswordHash: hash, Role: RolePatient, UserActive: true},
		},
	}
}

func (m *mockCredentialStore) FindByUsername(_ context.Context, username string) (*Credential, error) {
	c, ok := m.creds[username]
	if !ok {
		return nil, ErrCredentialNotFound
	}
	return c, nil
}

func (m *mockCredentialStore) TouchLastLogin(_ context.Context, userID int64, at time.Time) error {
	m.touched[userID] = at
	return nil
}

func newTestLoginHandler(t *testing.T) (*LoginHandler, *mockCredentialStore, *audit.MemoryStore) {
	store := newMockCredentialStore(t)
	logs := audit.NewMemoryStore()
	h := NewLoginHandler(store, testIssuer(), audit.NewRecorder(logs), dbtest.NewRunner(logs), "RHU")
	return h, store, logs
}

func TestAuthenticate_Success(t *testing.T) {
	h, store, logs := newTestLoginHandler(t)

	id, err := h.Authenticate(context.Background(), "mreyes", "correct-horse")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.StaffID != 2 || id.Name != "Maria Reyes" {
		t.Errorf("unexpected identity %+v", id)
	}
	if _, ok := store.touched[4]; !ok {
		t.Error("expected last login to be stamped")
	}
	if got := logs.Actions(); len(got) != 1 || got[0] != "STAFF_LOGIN" {
		t.Errorf("expected one STAFF_LOGIN entry, got %v", got)
	}
}

func TestAuthenticate_Failures(t *testing.T) {
	h, _, logs := newTestLoginHandler(t)
	tests := []struct {
		name, user, pass string
		kind             apperr.Kind
	}{
		{"missing fields", "", "", apperr.KindValidation},
		{"unknown user", "nobody", "correct-horse", apperr.KindUnauthorized},
		{"wrong password", "mreyes", "wrong-horse", apperr.KindUnauthorized},
		{"inactive", "inactive", "correct-horse", apperr.KindForbidden},
		{"patient account", "juan", "correct-horse", apperr.KindForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Authenticate(context.Background(), tt.user, tt.pass)
			if !apperr.Is(err, tt.kind) {
				t.Errorf("expected %s, got %v", tt.kind, err)
			}
		})
	}
	if len(logs.Entries()) != 0 {
		t.Errorf("failed logins must not be audited as STAFF_LOGIN, got %v", logs.Actions())
	}
}

func TestLoginHandler_IssuesToken(t *testing.T) {
	h, _, _ := newTestLoginHandler(t)
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		strings.NewReader(`{"username":"mreyes","password":"correct-horse"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Login(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body struct {
		Success bool   `json:"success"`
		Token   string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if !body.Success || body.Token == "" {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
	id, err := testIssuer().Parse(body.Token)
	if err != nil || id.Username != "mreyes" {
		t.Errorf("token does not carry identity: %+v %v", id, err)
	}
}

func TestLoginHandler_Me(t *testing.T) {
	h, _, _ := newTestLoginHandler(t)
	c := contextWith(&staffIdentity)
	rec := c.Response().Writer.(*httptest.ResponseRecorder)

	if err := h.Me(c); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(rec.Body.String(), `"username":"mreyes"`) {
		t.Errorf("expected identity in body, got %s", rec.Body.String())
	}
}
