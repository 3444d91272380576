package onecred

import (
	"context"
	"net/http"
	"time"
)

// UserRecord is a user account as seen by the sign-in handler. The record is
// owned by the external user store; this package only reads it by email and
// creates it when auto-provisioning is enabled.
type UserRecord struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name,omitempty"`
	EmailVerified bool      `json:"email_verified"`
	Image         string    `json:"image,omitempty"`
	CreatedAt     time.Time `json:"created_at,omitempty"`
	UpdatedAt     time.Time `json:"updated_at,omitempty"`
}

// SessionRecord is a persisted session. The Token doubles as the session
// cookie value handed back to the client.
type SessionRecord struct {
	Token     string         `json:"token"`
	UserID    string         `json:"user_id"`
	ExpiresAt time.Time      `json:"expires_at"`
	IPAddress string         `json:"ip_address,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Expired reports whether the session is past its expiry.
func (s *SessionRecord) Expired() bool {
	return !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt)
}

// SessionAttributes carries everything the sign-in handler knows about a
// session at creation time. The store is responsible for minting the token.
type SessionAttributes struct {
	ExpiresAt time.Time
	IPAddress string
	UserAgent string
	Data      map[string]any
}

// UserStore manages user accounts.
type UserStore interface {
	// FindUserByEmail looks up a user by normalized (trimmed, lowercased)
	// email. Returns ErrUserNotFound when no account exists.
	FindUserByEmail(ctx context.Context, email string) (*UserRecord, error)

	// CreateUser creates a new user. A store backed by a unique email
	// constraint surfaces concurrent duplicate creation as ErrUserExists or
	// its driver's native uniqueness-violation error.
	CreateUser(ctx context.Context, user *UserRecord) (*UserRecord, error)
}

// SessionStore manages persisted sessions.
type SessionStore interface {
	// CreateSession persists a new session for userID and returns the record
	// with a non-empty token.
	CreateSession(ctx context.Context, userID string, attrs SessionAttributes) (*SessionRecord, error)

	// GetSession resolves a session token. Returns ErrSessionNotFound when
	// the token is unknown.
	GetSession(ctx context.Context, token string) (*SessionRecord, error)

	// DeleteSession removes a session. Deleting an unknown token is not an error.
	DeleteSession(ctx context.Context, token string) error
}

// CookiePolicy supplies the base cookie attributes for a cookie name. The
// sign-in handler overlays Value, Max-Age, Expires and SameSite on top.
type CookiePolicy interface {
	AttributesFor(name string) CookieAttributes
}

// VerifyResult is the outcome of the operator-supplied verifier: exactly one
// of Verified or Rejected.
type VerifyResult interface {
	verifyResult()
}

// VerifiedUser identifies the account the verifier authenticated.
type VerifiedUser struct {
	// Email is required and must be non-empty after trimming.
	Email string
	// Name is optional; used when auto-provisioning a new account.
	Name string
	// ID is an optional verifier-side identifier, kept for the operator's
	// own use (it does not override the store's user ID).
	ID string
}

// Verified means the presented credentials map to an identity.
type Verified struct {
	User VerifiedUser
	Meta map[string]any
}

// Rejected means the verifier declined the credentials.
type Rejected struct {
	Reason string
	Code   string
}

func (Verified) verifyResult() {}
func (Rejected) verifyResult() {}

// VerifyFunc decides whether the validated input authenticates an identity.
// It may perform arbitrary I/O. Returning an error (as opposed to Rejected)
// is treated as a failed verification as well, with the detail logged rather
// than returned to the client.
type VerifyFunc func(ctx context.Context, input map[string]any, r *http.Request) (VerifyResult, error)

// SessionDataFunc can attach extra data to the session being established,
// e.g. externally issued tokens or permission sets. The returned mapping is
// merged into the session's stored data.
type SessionDataFunc func(ctx context.Context, verified *Verified, user *UserRecord, r *http.Request) (map[string]any, error)
