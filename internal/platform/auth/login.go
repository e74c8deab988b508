package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/rhu/rhu/internal/platform/apperr"
	"github.com/rhu/rhu/internal/platform/audit"
	"github.com/rhu/rhu/internal/platform/db"
	"github.com/rhu/rhu/internal/platform/httpx"
)

// ErrCredentialNotFound is returned by a CredentialStore for an unknown
// username.
var ErrCredentialNotFound = errors.New("credential not found")

// Credential is a users row joined to its staff row, when there is one.
type Credential struct {
	UserID       int64
	StaffID      int64
	Username     string
	PasswordHash string
	Role         string
	UserActive   bool
	StaffActive  bool
	FirstName    string
	LastName     string
	Department   string
}

type CredentialStore interface {
	FindByUsername(ctx context.Context, username string) (*Credential, error)
	TouchLastLogin(ctx context.Context, userID int64, at time.Time) error
}

type Auditor interface {
	Record(ctx context.Context, e audit.Entry) error
}

// LoginHandler exchanges staff credentials for an access token.
type LoginHandler struct {
	store      CredentialStore
	tokens     *TokenIssuer
	audit      Auditor
	tx         db.TxRunner
	department string
}

func NewLoginHandler(store CredentialStore, tokens *TokenIssuer, auditor Auditor, tx db.TxRunner, department string) *LoginHandler {
	return &LoginHandler{store: store, tokens: tokens, audit: auditor, tx: tx, department: department}
}

// RegisterRoutes mounts login on public and me on the authenticated group.
func (h *LoginHandler) RegisterRoutes(public, authed *echo.Group) {
	public.POST("/auth/login", h.Login)
	authed.GET("/auth/me", h.Me)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

const badCredentials = "invalid username or password"

// Authenticate verifies credentials and records STAFF_LOGIN.
func (h *LoginHandler) Authenticate(ctx context.Context, username, password string) (Identity, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return Identity{}, apperr.Validation("username and password are required")
	}

	cred, err := h.store.FindByUsername(ctx, username)
	if errors.Is(err, ErrCredentialNotFound) {
		return Identity{}, apperr.Unauthorized(badCredentials)
	}
	if err != nil {
		return Identity{}, apperr.Internal(err)
	}

	ok, err := CheckPassword(cred.PasswordHash, password)
	if err != nil {
		return Identity{}, apperr.Internal(err)
	}
	if !ok {
		return Identity{}, apperr.Unauthorized(badCredentials)
	}
	if !cred.UserActive || (cred.StaffID > 0 && !cred.StaffActive) {
		return Identity{}, apperr.Forbidden("account is inactive")
	}

	id := Identity{
		UserID:     cred.UserID,
		StaffID:    cred.StaffID,
		Username:   cred.Username,
		Name:       strings.TrimSpace(cred.FirstName + " " + cred.LastName),
		Role:       cred.Role,
		Department: cred.Department,
	}
	if !id.IsStaffOf(h.department) {
		return Identity{}, apperr.Forbidden(fmt.Sprintf("%s staff access only", h.department))
	}

	err = h.tx.InTx(ctx, func(ctx context.Context) error {
		if err := h.store.TouchLastLogin(ctx, id.UserID, time.Now().UTC()); err != nil {
			return err
		}
		return h.audit.Record(ctx, audit.Entry{
			UserID:     id.UserID,
			ActionCode: "STAFF_LOGIN",
			Module:     "auth",
			RecordID:   id.StaffID,
			Details:    map[string]interface{}{"username": id.Username},
		})
	})
	if err != nil {
		return Identity{}, apperr.Internal(err)
	}
	return id, nil
}

func (h *LoginHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	id, err := h.Authenticate(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return err
	}
	token, exp, err := h.tokens.Issue(id)
	if err != nil {
		return apperr.Internal(err)
	}
	return httpx.Respond(c, http.StatusOK, "Login successful", httpx.Fields{
		"token":      token,
		"token_type": "Bearer",
		"expires_at": exp.UTC(),
		"user":       id,
	})
}

func (h *LoginHandler) Me(c echo.Context) error {
	id, ok := IdentityFromContext(c.Request().Context())
	if !ok {
		return apperr.Unauthorized("authentication required")
	}
	return httpx.Respond(c, http.StatusOK, "", httpx.Fields{"user": id})
}
