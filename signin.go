package onecred

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Default values applied by Options.ensureDefaults.
const (
	DefaultPath         = "/sign-in/credentials"
	DefaultCookieName   = "onecred_session"
	DefaultExpiresIn    = 7 * 24 * time.Hour
	DefaultRetryLookups = 3
	DefaultRetryBackoff = 50 * time.Millisecond
)

// Options configures a CredentialsAuth once at construction. The value is
// treated as immutable after EnsureDefaults.
type Options struct {
	// Path the handler is mounted at. Defaults to "/sign-in/credentials".
	Path string

	// Schema validates the request body. Defaults to DefaultSchema.
	Schema Schema

	// DisableAutoProvision requires a pre-existing account: a verified email
	// with no user record fails with 401 instead of creating one.
	DisableAutoProvision bool

	// ExpiresIn is the session lifetime. Defaults to 7 days.
	ExpiresIn time.Duration

	// ExtendedExpiresIn, when set, is the session lifetime used for requests
	// carrying rememberMe=true. When zero (the default) the rememberMe flag
	// is read but does not change the expiry.
	ExtendedExpiresIn time.Duration

	// RetryLookups is how many times the reconciler re-reads the user store
	// after a duplicate-creation race. Defaults to 3.
	RetryLookups int

	// RetryBackoff is the fixed delay between race-retry lookups. Defaults
	// to 50ms.
	RetryBackoff time.Duration

	// CookieName of the session cookie. Defaults to "onecred_session".
	CookieName string

	// IsUniquenessViolation classifies store errors from CreateUser.
	// Defaults to IsUniquenessViolation.
	IsUniquenessViolation UniquenessViolationFunc
}

func (o *Options) ensureDefaults() {
	if o.Path == "" {
		o.Path = DefaultPath
	}
	if o.Schema == nil {
		o.Schema = DefaultSchema()
	}
	if o.ExpiresIn <= 0 {
		o.ExpiresIn = DefaultExpiresIn
	}
	if o.RetryLookups <= 0 {
		o.RetryLookups = DefaultRetryLookups
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = DefaultRetryBackoff
	}
	if o.CookieName == "" {
		o.CookieName = DefaultCookieName
	}
	if o.IsUniquenessViolation == nil {
		o.IsUniquenessViolation = IsUniquenessViolation
	}
}

// CredentialsAuth is the credentials sign-in handler. The operator supplies
// the verification function; users and sessions live in external stores.
type CredentialsAuth struct {
	// Verify decides whether the presented credentials are valid. Required.
	Verify VerifyFunc

	// Users resolves and provisions accounts. Required.
	Users UserStore

	// Sessions persists established sessions. Required.
	Sessions SessionStore

	// Cookies supplies base cookie attributes. Defaults to DefaultCookiePolicy.
	Cookies CookiePolicy

	// SessionData, when set, contributes extra data to the session record.
	SessionData SessionDataFunc

	// OnError can take over error rendering, e.g. for redirect-based flows.
	OnError AuthErrorHandler

	// Logger for internal diagnostics. Defaults to slog.Default.
	Logger *slog.Logger

	Opts Options
}

// New returns a CredentialsAuth with defaults applied.
func New(users UserStore, sessions SessionStore, verify VerifyFunc, opts Options) *CredentialsAuth {
	a := &CredentialsAuth{
		Verify:   verify,
		Users:    users,
		Sessions: sessions,
		Opts:     opts,
	}
	a.EnsureDefaults()
	return a
}

// EnsureDefaults fills in zero-valued configuration.
func (a *CredentialsAuth) EnsureDefaults() *CredentialsAuth {
	a.Opts.ensureDefaults()
	if a.Cookies == nil {
		a.Cookies = DefaultCookiePolicy{}
	}
	if a.Logger == nil {
		a.Logger = slog.Default()
	}
	return a
}

// ServeHTTP handles a sign-in request: normalize the body, invoke the
// verifier, reconcile the identity against the user store, and establish a
// session with its cookie.
func (a *CredentialsAuth) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.EnsureDefaults()

	if r.Method != http.MethodPost {
		a.fail(w, r, NewAuthError(http.StatusMethodNotAllowed, ErrCodeInvalidInput, "Method not allowed"))
		return
	}
	if a.Verify == nil || a.Users == nil || a.Sessions == nil {
		a.Logger.Error("sign-in not configured", "verify", a.Verify != nil, "users", a.Users != nil, "sessions", a.Sessions != nil)
		a.fail(w, r, NewAuthError(http.StatusInternalServerError, ErrCodeSessionCreationFailed, "Sign-in not configured"))
		return
	}

	ctx := r.Context()

	body := parseRequestBody(r)
	input, authErr := a.Opts.Schema.Validate(body)
	if authErr != nil {
		a.fail(w, r, authErr)
		return
	}

	result, err := a.Verify(ctx, input, r)
	if err != nil {
		a.Logger.Info("verifier returned error", "error", err)
		a.fail(w, r, NewAuthError(http.StatusUnauthorized, ErrCodeInvalidCredentials, "Invalid credentials"))
		return
	}

	var verified Verified
	switch res := result.(type) {
	case Rejected:
		a.fail(w, r, rejectionError(res))
		return
	case Verified:
		verified = res
	default:
		a.Logger.Error("verifier returned no result")
		a.fail(w, r, NewAuthError(http.StatusBadRequest, ErrCodeInvalidVerifierOutput, "Verifier returned an invalid result"))
		return
	}

	// Case-insensitive identity matching: all lookups and writes use the
	// trimmed, lowercased email.
	email := strings.ToLower(strings.TrimSpace(verified.User.Email))
	if email == "" {
		a.Logger.Error("verifier returned empty email", "verifier_user_id", verified.User.ID)
		a.fail(w, r, NewAuthError(http.StatusBadRequest, ErrCodeInvalidVerifierOutput, "Verifier returned a user without an email"))
		return
	}
	verified.User.Email = email

	user, authErr := a.reconcileUser(ctx, &verified)
	if authErr != nil {
		a.fail(w, r, authErr)
		return
	}

	session, authErr := a.establishSession(ctx, &verified, user, input, r)
	if authErr != nil {
		a.fail(w, r, authErr)
		return
	}

	a.emitSessionCookie(w, session)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"ok":     true,
		"userId": user.ID,
	})
}

// SignOut deletes the session named by the request's session cookie and
// expires the cookie.
func (a *CredentialsAuth) SignOut(w http.ResponseWriter, r *http.Request) {
	a.EnsureDefaults()

	if cookie, err := r.Cookie(a.Opts.CookieName); err == nil && cookie.Value != "" {
		if err := a.Sessions.DeleteSession(r.Context(), cookie.Value); err != nil {
			a.Logger.Error("sign-out delete session", "error", err)
		}
	}

	expired := a.Cookies.AttributesFor(a.Opts.CookieName)
	expired.Value = ""
	expired.MaxAge = -1
	expired.Expires = time.Unix(1, 0)
	expired.SameSite = SameSiteLax
	w.Header().Add("Set-Cookie", expired.String())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{"ok": true})
}

func (a *CredentialsAuth) fail(w http.ResponseWriter, r *http.Request, err *AuthError) {
	if a.OnError != nil && a.OnError(err, w, r) {
		return
	}
	writeAuthError(w, err)
}

func rejectionError(res Rejected) *AuthError {
	code := res.Code
	if code == "" {
		code = ErrCodeInvalidCredentials
	}
	reason := res.Reason
	if reason == "" {
		reason = "Invalid credentials"
	}
	return NewAuthError(http.StatusUnauthorized, code, reason)
}

// parseRequestBody turns the request body into a generic mapping. Form bodies
// are parsed as key/value pairs; everything else is attempted as JSON,
// falling back to an empty mapping. Parse failures never abort the request,
// schema validation reports the missing fields instead.
func parseRequestBody(r *http.Request) map[string]any {
	contentType := r.Header.Get("Content-Type")

	if strings.HasPrefix(contentType, "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			return map[string]any{}
		}
		body := make(map[string]any, len(r.PostForm))
		for key := range r.PostForm {
			body[key] = r.PostForm.Get(key)
		}
		return body
	}

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body == nil {
		return map[string]any{}
	}
	return body
}
