package onecred

import (
	"context"
	"net/http"
)

type sessionContextKey struct{}

// SessionMiddleware resolves the session cookie on incoming requests and
// exposes the session record to downstream handlers.
type SessionMiddleware struct {
	Sessions SessionStore

	// CookieName of the session cookie. Defaults to DefaultCookieName.
	CookieName string

	// OnAuthError is called by RequireSession when no valid session exists.
	// If nil, a plain 401 is returned.
	OnAuthError func(w http.ResponseWriter, r *http.Request)
}

func (m *SessionMiddleware) cookieName() string {
	if m.CookieName != "" {
		return m.CookieName
	}
	return DefaultCookieName
}

// ExtractSession loads the session for the request's cookie, if any, into the
// request context. It never rejects the request; use RequireSession for that.
func (m *SessionMiddleware) ExtractSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if session := m.resolveSession(r); session != nil {
			r = r.WithContext(context.WithValue(r.Context(), sessionContextKey{}, session))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireSession behaves like ExtractSession but rejects requests without a
// live session.
func (m *SessionMiddleware) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := m.resolveSession(r)
		if session == nil {
			if m.OnAuthError != nil {
				m.OnAuthError(w, r)
				return
			}
			http.Error(w, "Not authenticated", http.StatusUnauthorized)
			return
		}
		r = r.WithContext(context.WithValue(r.Context(), sessionContextKey{}, session))
		next.ServeHTTP(w, r)
	})
}

func (m *SessionMiddleware) resolveSession(r *http.Request) *SessionRecord {
	cookie, err := r.Cookie(m.cookieName())
	if err != nil || cookie.Value == "" {
		return nil
	}
	session, err := m.Sessions.GetSession(r.Context(), cookie.Value)
	if err != nil || session == nil || session.Expired() {
		return nil
	}
	return session
}

// SessionFromContext returns the session placed on the context by
// ExtractSession or RequireSession, or nil.
func SessionFromContext(ctx context.Context) *SessionRecord {
	session, _ := ctx.Value(sessionContextKey{}).(*SessionRecord)
	return session
}
