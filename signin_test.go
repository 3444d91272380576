package onecred_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	oc "github.com/panyam/onecred"
)

// fakeUserStore is an in-memory UserStore with call counters and scriptable
// failure modes.
type fakeUserStore struct {
	mu          sync.Mutex
	users       map[string]*oc.UserRecord
	createErr   error
	createNil   bool
	findErr     error
	findCalls   int
	createCalls int

	// pending simulates a concurrent winner: the record becomes visible to
	// FindUserByEmail once findCalls reaches appearAfterFinds.
	pending          *oc.UserRecord
	appearAfterFinds int
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: map[string]*oc.UserRecord{}}
}

func (s *fakeUserStore) FindUserByEmail(ctx context.Context, email string) (*oc.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findCalls++
	if s.findErr != nil {
		return nil, s.findErr
	}
	if s.pending != nil && s.findCalls >= s.appearAfterFinds {
		s.users[s.pending.Email] = s.pending
		s.pending = nil
	}
	user, ok := s.users[email]
	if !ok {
		return nil, oc.ErrUserNotFound
	}
	return user, nil
}

func (s *fakeUserStore) CreateUser(ctx context.Context, user *oc.UserRecord) (*oc.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++
	if s.createErr != nil {
		return nil, s.createErr
	}
	if s.createNil {
		return nil, nil
	}
	record := *user
	record.ID = fmt.Sprintf("user-%d", len(s.users)+1)
	s.users[record.Email] = &record
	return &record, nil
}

// fakeSessionStore is an in-memory SessionStore with scriptable failures.
type fakeSessionStore struct {
	mu          sync.Mutex
	sessions    map[string]*oc.SessionRecord
	createErr   error
	emptyToken  bool
	createCalls int
	last        *oc.SessionRecord
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: map[string]*oc.SessionRecord{}}
}

func (s *fakeSessionStore) CreateSession(ctx context.Context, userID string, attrs oc.SessionAttributes) (*oc.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++
	if s.createErr != nil {
		return nil, s.createErr
	}
	session := &oc.SessionRecord{
		Token:     fmt.Sprintf("session-%d", s.createCalls),
		UserID:    userID,
		ExpiresAt: attrs.ExpiresAt,
		IPAddress: attrs.IPAddress,
		UserAgent: attrs.UserAgent,
		Data:      attrs.Data,
	}
	if s.emptyToken {
		session.Token = ""
	}
	s.sessions[session.Token] = session
	s.last = session
	return session, nil
}

func (s *fakeSessionStore) GetSession(ctx context.Context, token string) (*oc.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[token]
	if !ok {
		return nil, oc.ErrSessionNotFound
	}
	return session, nil
}

func (s *fakeSessionStore) DeleteSession(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}

func acceptAll(ctx context.Context, input map[string]any, r *http.Request) (oc.VerifyResult, error) {
	return oc.Verified{User: oc.VerifiedUser{Email: oc.InputString(input, "email")}}, nil
}

func postJSON(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/sign-in/credentials", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v (body: %s)", err, rr.Body.String())
	}
	return body
}

func TestSignInSuccess(t *testing.T) {
	users := newFakeUserStore()
	sessions := newFakeSessionStore()
	auth := oc.New(users, sessions, acceptAll, oc.Options{})

	req := httptest.NewRequest(http.MethodPost, "/sign-in/credentials",
		strings.NewReader(`{"email": "Alice@Example.com", "password": "secret123"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	req.Header.Set("User-Agent", "test-agent/1.0")
	rr := httptest.NewRecorder()
	auth.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	body := decodeBody(t, rr)
	if body["ok"] != true {
		t.Errorf("expected ok=true, got %v", body["ok"])
	}
	if body["userId"] != "user-1" {
		t.Errorf("expected userId user-1, got %v", body["userId"])
	}

	if users.createCalls != 1 {
		t.Errorf("expected exactly one user creation, got %d", users.createCalls)
	}
	if sessions.createCalls != 1 {
		t.Errorf("expected exactly one session creation, got %d", sessions.createCalls)
	}

	// Email is normalized before storage.
	user := users.users["alice@example.com"]
	if user == nil {
		t.Fatalf("expected user stored under normalized email, have %v", users.users)
	}
	if user.Name != "alice" {
		t.Errorf("expected name from email local-part, got %q", user.Name)
	}
	if !user.EmailVerified {
		t.Error("auto-provisioned user should have a verified email")
	}

	session := sessions.last
	if session.UserID != "user-1" {
		t.Errorf("session user mismatch: %q", session.UserID)
	}
	if session.IPAddress != "203.0.113.9" {
		t.Errorf("expected first X-Forwarded-For hop, got %q", session.IPAddress)
	}
	if session.UserAgent != "test-agent/1.0" {
		t.Errorf("unexpected user agent %q", session.UserAgent)
	}

	cookie := rr.Header().Get("Set-Cookie")
	if !strings.HasPrefix(cookie, "onecred_session=session-1") {
		t.Errorf("unexpected cookie %q", cookie)
	}
	if !strings.Contains(cookie, "Max-Age=604800") {
		t.Errorf("expected 7-day Max-Age, got %q", cookie)
	}
	if !strings.Contains(cookie, "SameSite=Lax") || !strings.Contains(cookie, "HttpOnly") {
		t.Errorf("expected SameSite=Lax and HttpOnly, got %q", cookie)
	}
	if !strings.Contains(cookie, "Expires=") {
		t.Errorf("expected Expires attribute, got %q", cookie)
	}
}

func TestSignInFormBody(t *testing.T) {
	users := newFakeUserStore()
	sessions := newFakeSessionStore()
	auth := oc.New(users, sessions, acceptAll, oc.Options{})

	form := url.Values{}
	form.Set("email", "bob@example.com")
	form.Set("password", "hunter22")
	form.Set("rememberMe", "on")

	req := httptest.NewRequest(http.MethodPost, "/sign-in/credentials", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	auth.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if sessions.createCalls != 1 {
		t.Errorf("expected one session, got %d", sessions.createCalls)
	}
}

func TestSignInValidation(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		wantFields  []string
	}{
		{
			name:        "missing password",
			contentType: "application/json",
			body:        `{"email": "alice@example.com"}`,
			wantFields:  []string{"password"},
		},
		{
			name:        "malformed email",
			contentType: "application/json",
			body:        `{"email": "not-an-email", "password": "x"}`,
			wantFields:  []string{"email"},
		},
		{
			name:        "empty body",
			contentType: "application/json",
			body:        ``,
			wantFields:  []string{"email", "password"},
		},
		{
			name:        "garbage body with unknown content type",
			contentType: "application/octet-stream",
			body:        "\x00\x01\x02",
			wantFields:  []string{"email", "password"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := newFakeUserStore()
			sessions := newFakeSessionStore()
			auth := oc.New(users, sessions, acceptAll, oc.Options{})

			req := httptest.NewRequest(http.MethodPost, "/sign-in/credentials", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			rr := httptest.NewRecorder()
			auth.ServeHTTP(rr, req)

			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
			}

			body := decodeBody(t, rr)
			if body["code"] != "invalid_input" {
				t.Errorf("expected invalid_input code, got %v", body["code"])
			}
			fields, _ := body["fields"].(map[string]any)
			for _, field := range tt.wantFields {
				if _, ok := fields[field]; !ok {
					t.Errorf("expected violation for %q, got %v", field, fields)
				}
			}

			// No store calls on validation failure.
			if users.findCalls != 0 || users.createCalls != 0 || sessions.createCalls != 0 {
				t.Errorf("stores were called: finds=%d creates=%d sessions=%d",
					users.findCalls, users.createCalls, sessions.createCalls)
			}
		})
	}
}

func TestSignInRejected(t *testing.T) {
	tests := []struct {
		name       string
		result     oc.VerifyResult
		verifyErr  error
		wantCode   string
		wantReason string
	}{
		{
			name:       "default rejection",
			result:     oc.Rejected{},
			wantCode:   "INVALID_CREDENTIALS",
			wantReason: "Invalid credentials",
		},
		{
			name:       "custom reason and code",
			result:     oc.Rejected{Reason: "Account locked", Code: "ACCOUNT_LOCKED"},
			wantCode:   "ACCOUNT_LOCKED",
			wantReason: "Account locked",
		},
		{
			name:       "verifier error",
			verifyErr:  errors.New("ldap unreachable"),
			wantCode:   "INVALID_CREDENTIALS",
			wantReason: "Invalid credentials",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := newFakeUserStore()
			sessions := newFakeSessionStore()
			verify := func(ctx context.Context, input map[string]any, r *http.Request) (oc.VerifyResult, error) {
				return tt.result, tt.verifyErr
			}
			auth := oc.New(users, sessions, verify, oc.Options{})

			rr := postJSON(t, auth, `{"email": "alice@example.com", "password": "wrong"}`)

			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d: %s", rr.Code, rr.Body.String())
			}
			body := decodeBody(t, rr)
			if body["code"] != tt.wantCode {
				t.Errorf("expected code %q, got %v", tt.wantCode, body["code"])
			}
			if body["error"] != tt.wantReason {
				t.Errorf("expected reason %q, got %v", tt.wantReason, body["error"])
			}
			if users.createCalls != 0 || sessions.createCalls != 0 {
				t.Errorf("rejected request must not write: users=%d sessions=%d",
					users.createCalls, sessions.createCalls)
			}
		})
	}
}

func TestSignInVerifierEmptyEmail(t *testing.T) {
	users := newFakeUserStore()
	sessions := newFakeSessionStore()
	verify := func(ctx context.Context, input map[string]any, r *http.Request) (oc.VerifyResult, error) {
		return oc.Verified{User: oc.VerifiedUser{Email: "   "}}, nil
	}
	auth := oc.New(users, sessions, verify, oc.Options{})

	rr := postJSON(t, auth, `{"email": "alice@example.com", "password": "secret123"}`)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["code"] != "invalid_verifier_output" {
		t.Errorf("expected invalid_verifier_output, got %v", body["code"])
	}
	if users.findCalls != 0 {
		t.Errorf("no lookup should happen for a contract violation, got %d", users.findCalls)
	}
}

func TestSignInAutoProvisionDisabled(t *testing.T) {
	users := newFakeUserStore()
	sessions := newFakeSessionStore()
	auth := oc.New(users, sessions, acceptAll, oc.Options{DisableAutoProvision: true})

	rr := postJSON(t, auth, `{"email": "nobody@example.com", "password": "secret123"}`)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["code"] != "user_not_found" {
		t.Errorf("expected user_not_found, got %v", body["code"])
	}
	if users.createCalls != 0 {
		t.Errorf("no user must be created, got %d creations", users.createCalls)
	}
}

func TestSignInExistingUser(t *testing.T) {
	users := newFakeUserStore()
	users.users["alice@example.com"] = &oc.UserRecord{ID: "existing-1", Email: "alice@example.com"}
	sessions := newFakeSessionStore()
	auth := oc.New(users, sessions, acceptAll, oc.Options{})

	rr := postJSON(t, auth, `{"email": "alice@example.com", "password": "secret123"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if users.createCalls != 0 {
		t.Errorf("existing user must not be re-created, got %d creations", users.createCalls)
	}
	if sessions.last.UserID != "existing-1" {
		t.Errorf("session bound to wrong user: %q", sessions.last.UserID)
	}
}

func TestSignInDuplicateRaceRecovered(t *testing.T) {
	users := newFakeUserStore()
	users.createErr = errors.New(`duplicate key value violates unique constraint "onecred_users_email_key"`)
	// The winner's record becomes visible on the second retry lookup.
	users.pending = &oc.UserRecord{ID: "winner-1", Email: "alice@example.com"}
	users.appearAfterFinds = 3

	sessions := newFakeSessionStore()
	auth := oc.New(users, sessions, acceptAll, oc.Options{RetryBackoff: time.Millisecond})

	rr := postJSON(t, auth, `{"email": "alice@example.com", "password": "secret123"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("race loser should still sign in, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["userId"] != "winner-1" {
		t.Errorf("expected the winner's record, got %v", body["userId"])
	}
	if users.createCalls != 1 {
		t.Errorf("expected a single creation attempt, got %d", users.createCalls)
	}
}

func TestSignInDuplicateRaceExhausted(t *testing.T) {
	users := newFakeUserStore()
	users.createErr = fmt.Errorf("insert: %w", oc.ErrUserExists)

	sessions := newFakeSessionStore()
	auth := oc.New(users, sessions, acceptAll, oc.Options{RetryBackoff: time.Millisecond})

	rr := postJSON(t, auth, `{"email": "alice@example.com", "password": "secret123"}`)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["code"] != "user_creation_failed" {
		t.Errorf("expected user_creation_failed, got %v", body["code"])
	}
	// Initial lookup plus three bounded retries.
	if users.findCalls != 4 {
		t.Errorf("expected 4 lookups (1 + 3 retries), got %d", users.findCalls)
	}
}

func TestSignInUserCreationFailed(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*fakeUserStore)
	}{
		{"store error", func(s *fakeUserStore) { s.createErr = errors.New("disk full") }},
		{"nil record", func(s *fakeUserStore) { s.createNil = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := newFakeUserStore()
			tt.setup(users)
			sessions := newFakeSessionStore()
			auth := oc.New(users, sessions, acceptAll, oc.Options{RetryBackoff: time.Millisecond})

			rr := postJSON(t, auth, `{"email": "alice@example.com", "password": "secret123"}`)

			if rr.Code != http.StatusInternalServerError {
				t.Fatalf("expected 500, got %d: %s", rr.Code, rr.Body.String())
			}
			body := decodeBody(t, rr)
			if body["code"] != "user_creation_failed" {
				t.Errorf("expected user_creation_failed, got %v", body["code"])
			}
			// Server errors stay generic.
			if msg, _ := body["error"].(string); strings.Contains(msg, "disk full") {
				t.Errorf("internal detail leaked to client: %q", msg)
			}
		})
	}
}

func TestSignInSessionCreationFailed(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*fakeSessionStore)
	}{
		{"store error", func(s *fakeSessionStore) { s.createErr = errors.New("session backend down") }},
		{"empty token", func(s *fakeSessionStore) { s.emptyToken = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := newFakeUserStore()
			sessions := newFakeSessionStore()
			tt.setup(sessions)
			auth := oc.New(users, sessions, acceptAll, oc.Options{})

			rr := postJSON(t, auth, `{"email": "alice@example.com", "password": "secret123"}`)

			if rr.Code != http.StatusInternalServerError {
				t.Fatalf("expected 500, got %d: %s", rr.Code, rr.Body.String())
			}
			body := decodeBody(t, rr)
			if body["code"] != "session_creation_failed" {
				t.Errorf("expected session_creation_failed, got %v", body["code"])
			}
			if cookie := rr.Header().Get("Set-Cookie"); cookie != "" {
				t.Errorf("no cookie must be set on failure, got %q", cookie)
			}
		})
	}
}

func TestSignInSessionDataHook(t *testing.T) {
	users := newFakeUserStore()
	sessions := newFakeSessionStore()
	auth := oc.New(users, sessions, acceptAll, oc.Options{})
	auth.SessionData = func(ctx context.Context, verified *oc.Verified, user *oc.UserRecord, r *http.Request) (map[string]any, error) {
		return map[string]any{"role": "admin", "plan": "pro"}, nil
	}

	rr := postJSON(t, auth, `{"email": "alice@example.com", "password": "secret123"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if sessions.last.Data["role"] != "admin" || sessions.last.Data["plan"] != "pro" {
		t.Errorf("hook data not merged into session: %v", sessions.last.Data)
	}
}

func TestSignInSessionDataHookError(t *testing.T) {
	users := newFakeUserStore()
	sessions := newFakeSessionStore()
	auth := oc.New(users, sessions, acceptAll, oc.Options{})
	auth.SessionData = func(ctx context.Context, verified *oc.Verified, user *oc.UserRecord, r *http.Request) (map[string]any, error) {
		return nil, errors.New("token service down")
	}

	rr := postJSON(t, auth, `{"email": "alice@example.com", "password": "secret123"}`)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", rr.Code, rr.Body.String())
	}
	if sessions.createCalls != 0 {
		t.Errorf("no session must be created after hook failure, got %d", sessions.createCalls)
	}
}

func TestSignInRememberMe(t *testing.T) {
	t.Run("default behavior ignores the flag", func(t *testing.T) {
		users := newFakeUserStore()
		sessions := newFakeSessionStore()
		auth := oc.New(users, sessions, acceptAll, oc.Options{})

		rr := postJSON(t, auth, `{"email": "alice@example.com", "password": "x1", "rememberMe": true}`)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		if !strings.Contains(rr.Header().Get("Set-Cookie"), "Max-Age=604800") {
			t.Errorf("rememberMe must not change expiry by default: %q", rr.Header().Get("Set-Cookie"))
		}
	})

	t.Run("extended expiry is opt-in", func(t *testing.T) {
		users := newFakeUserStore()
		sessions := newFakeSessionStore()
		auth := oc.New(users, sessions, acceptAll, oc.Options{
			ExtendedExpiresIn: 30 * 24 * time.Hour,
		})

		rr := postJSON(t, auth, `{"email": "alice@example.com", "password": "x1", "rememberMe": true}`)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		if !strings.Contains(rr.Header().Get("Set-Cookie"), "Max-Age=2592000") {
			t.Errorf("expected 30-day Max-Age, got %q", rr.Header().Get("Set-Cookie"))
		}
	})
}

func TestSignInCustomExpiry(t *testing.T) {
	users := newFakeUserStore()
	sessions := newFakeSessionStore()
	auth := oc.New(users, sessions, acceptAll, oc.Options{ExpiresIn: time.Hour})

	rr := postJSON(t, auth, `{"email": "alice@example.com", "password": "secret123"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Header().Get("Set-Cookie"), "Max-Age=3600") {
		t.Errorf("expected Max-Age=3600, got %q", rr.Header().Get("Set-Cookie"))
	}
}

func TestSignInMethodNotAllowed(t *testing.T) {
	auth := oc.New(newFakeUserStore(), newFakeSessionStore(), acceptAll, oc.Options{})

	req := httptest.NewRequest(http.MethodGet, "/sign-in/credentials", nil)
	rr := httptest.NewRecorder()
	auth.ServeHTTP(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

func TestSignInCustomErrorHandler(t *testing.T) {
	users := newFakeUserStore()
	sessions := newFakeSessionStore()
	verify := func(ctx context.Context, input map[string]any, r *http.Request) (oc.VerifyResult, error) {
		return oc.Rejected{}, nil
	}
	auth := oc.New(users, sessions, verify, oc.Options{})

	var captured *oc.AuthError
	auth.OnError = func(err *oc.AuthError, w http.ResponseWriter, r *http.Request) bool {
		captured = err
		http.Redirect(w, r, "/login?failed=1", http.StatusSeeOther)
		return true
	}

	rr := postJSON(t, auth, `{"email": "alice@example.com", "password": "wrong"}`)

	if rr.Code != http.StatusSeeOther {
		t.Fatalf("expected custom handler redirect, got %d", rr.Code)
	}
	if captured == nil || captured.Status != http.StatusUnauthorized {
		t.Errorf("expected captured 401 error, got %+v", captured)
	}
}

func TestSignOut(t *testing.T) {
	users := newFakeUserStore()
	sessions := newFakeSessionStore()
	auth := oc.New(users, sessions, acceptAll, oc.Options{})

	// Establish a session first.
	rr := postJSON(t, auth, `{"email": "alice@example.com", "password": "secret123"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("sign-in failed: %d", rr.Code)
	}
	token := sessions.last.Token

	req := httptest.NewRequest(http.MethodPost, "/sign-out", nil)
	req.AddCookie(&http.Cookie{Name: "onecred_session", Value: token})
	out := httptest.NewRecorder()
	auth.SignOut(out, req)

	if out.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", out.Code)
	}
	if _, err := sessions.GetSession(context.Background(), token); !errors.Is(err, oc.ErrSessionNotFound) {
		t.Errorf("session should be deleted, got err=%v", err)
	}
	cookie := out.Header().Get("Set-Cookie")
	if !strings.Contains(cookie, "Max-Age=-1") {
		t.Errorf("expected expired cookie, got %q", cookie)
	}
}
