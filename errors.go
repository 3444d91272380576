package onecred

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Sentinel errors for store implementations.
var (
	// ErrUserNotFound is returned by UserStore.FindUserByEmail when no
	// account exists for the email.
	ErrUserNotFound = errors.New("user not found")

	// ErrUserExists is returned by UserStore.CreateUser when the email is
	// already taken.
	ErrUserExists = errors.New("user already exists")

	// ErrSessionNotFound is returned by SessionStore.GetSession for unknown
	// or expired tokens.
	ErrSessionNotFound = errors.New("session not found")
)

// Error codes carried in the JSON error body.
const (
	ErrCodeInvalidInput          = "invalid_input"
	ErrCodeInvalidVerifierOutput = "invalid_verifier_output"
	ErrCodeUserNotFound          = "user_not_found"
	ErrCodeUserCreationFailed    = "user_creation_failed"
	ErrCodeSessionCreationFailed = "session_creation_failed"

	// ErrCodeInvalidCredentials is the default code for verifier rejections
	// that don't supply their own.
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
)

// AuthError is a classified sign-in failure surfaced to the client as JSON.
type AuthError struct {
	Status  int               `json:"-"`
	Code    string            `json:"code"`
	Message string            `json:"error"`
	Field   string            `json:"field,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func (e *AuthError) Error() string {
	return e.Message
}

// NewAuthError creates an AuthError with the given HTTP status.
func NewAuthError(status int, code, message string) *AuthError {
	return &AuthError{Status: status, Code: code, Message: message}
}

// AuthErrorHandler can take over error rendering. Returning true means the
// response has been written.
type AuthErrorHandler func(err *AuthError, w http.ResponseWriter, r *http.Request) bool

func writeAuthError(w http.ResponseWriter, err *AuthError) {
	w.Header().Set("Content-Type", "application/json")
	status := err.Status
	if status == 0 {
		status = http.StatusBadRequest
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(err)
}

// UniquenessViolationFunc reports whether a store error means the record's
// unique key (email) was already taken.
type UniquenessViolationFunc func(err error) bool

// uniquenessSubstrings covers stores that only expose the violation through
// their error message (sqlite, mysql, generic drivers).
var uniquenessSubstrings = []string{
	"duplicate key",
	"duplicate entry",
	"unique constraint",
	"unique_violation",
	"already exists",
	"already registered",
}

// IsUniquenessViolation is the default detector. The external store's error
// taxonomy is not ours to control, so it inspects the shapes we know about:
// the ErrUserExists sentinel, Postgres error code 23505, gorm's translated
// duplicate-key error, and well-known message substrings.
func IsUniquenessViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUserExists) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return true
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, sub := range uniquenessSubstrings {
		if strings.Contains(msg, sub) {
			return true
		}
	}
	return false
}
