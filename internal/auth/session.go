// Package auth implements the browser session layer and the authorization
// predicates from spec.md §4.3.
package auth

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cs2kz-org/cs2kz-api/internal/db"
	"github.com/cs2kz-org/cs2kz-api/internal/kz"
)

// CookieName is the browser session cookie's name.
const CookieName = "kz-auth"

// DefaultMaxAge is the session lifetime applied at creation and on every
// successful-request renewal, absent an explicit override.
const DefaultMaxAge = 7 * 24 * time.Hour

// ErrExpired is returned when a session's expires_at is in the past.
var ErrExpired = fmt.Errorf("auth: session has expired")

// Session is one authenticated browser session.
type Session struct {
	ID        uuid.UUID
	UserID    kz.UserID
	ExpiresAt time.Time
	invalid   bool
}

// Invalidate marks the session to be revoked (expires_at set to now) the
// next time it is persisted, instead of renewed.
func (s *Session) Invalidate() { s.invalid = true }

// Sessions persists browser sessions.
type Sessions struct {
	db *db.DB
}

// NewSessions constructs a Sessions store.
func NewSessions(d *db.DB) *Sessions { return &Sessions{db: d} }

// Create mints a UUIDv7 session for userID with the default lifetime.
func (s *Sessions) Create(ctx context.Context, userID kz.UserID) (*Session, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("auth: generate session id: %w", err)
	}
	expiresAt := time.Now().UTC().Add(DefaultMaxAge)

	idBytes, err := id.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("auth: marshal session id: %w", err)
	}
	_, err = s.db.Conn().ExecContext(ctx,
		`INSERT INTO browser_sessions (id, user_id, expires_at) VALUES (?, ?, ?)`,
		idBytes, uint64(userID), expiresAt.Format(time.DateTime))
	if err != nil {
		return nil, fmt.Errorf("auth: insert session: %w", err)
	}

	return &Session{ID: id, UserID: userID, ExpiresAt: expiresAt}, nil
}

// Load reads a session by id and rejects it with ErrExpired if its
// expires_at has already passed.
func (s *Sessions) Load(ctx context.Context, id uuid.UUID) (*Session, error) {
	idBytes, err := id.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("auth: marshal session id: %w", err)
	}

	var userID uint64
	var expiresAtText string
	err = s.db.Conn().QueryRowContext(ctx,
		`SELECT user_id, expires_at FROM browser_sessions WHERE id = ?`, idBytes,
	).Scan(&userID, &expiresAtText)
	if err == sql.ErrNoRows {
		return nil, ErrExpired
	}
	if err != nil {
		return nil, fmt.Errorf("auth: load session: %w", err)
	}

	expiresAt, err := time.Parse(time.DateTime, expiresAtText)
	if err != nil {
		return nil, fmt.Errorf("auth: parse session expiry: %w", err)
	}
	if expiresAt.Before(time.Now().UTC()) {
		return nil, ErrExpired
	}

	return &Session{ID: id, UserID: kz.UserID(userID), ExpiresAt: expiresAt}, nil
}

// Persist sets the session's expiry to maxAge from now, unless Invalidate
// was called on it during the request, in which case expires_at is set to
// now instead — either way in a single statement, matching spec.md §4.3's
// "in the same commit" rule.
func (s *Sessions) Persist(ctx context.Context, sess *Session, maxAge time.Duration) error {
	idBytes, err := sess.ID.MarshalBinary()
	if err != nil {
		return fmt.Errorf("auth: marshal session id: %w", err)
	}

	if sess.invalid {
		_, err := s.db.Conn().ExecContext(ctx, `UPDATE browser_sessions SET expires_at = datetime('now') WHERE id = ?`, idBytes)
		return err
	}

	expiresAt := time.Now().UTC().Add(maxAge)
	_, err = s.db.Conn().ExecContext(ctx, `UPDATE browser_sessions SET expires_at = ? WHERE id = ?`, expiresAt.Format(time.DateTime), idBytes)
	return err
}

// SetCookie writes the kz-auth cookie for sess. secure should reflect
// whether the deployment is serving over TLS.
func SetCookie(w http.ResponseWriter, sess *Session, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    sess.ID.String(),
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearCookie expires the kz-auth cookie immediately, for logout.
func ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// CookieSessionID extracts and parses the kz-auth cookie's UUID value.
func CookieSessionID(r *http.Request) (uuid.UUID, error) {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return uuid.Nil, fmt.Errorf("auth: no session cookie: %w", err)
	}
	id, err := uuid.Parse(strings.TrimSpace(c.Value))
	if err != nil {
		return uuid.Nil, fmt.Errorf("auth: malformed session cookie: %w", err)
	}
	return id, nil
}
