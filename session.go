package onecred

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// establishSession computes the expiry, runs the optional session-data hook,
// creates the session in the external store and validates the result.
func (a *CredentialsAuth) establishSession(ctx context.Context, verified *Verified, user *UserRecord, input map[string]any, r *http.Request) (*SessionRecord, *AuthError) {
	expiresIn := a.Opts.ExpiresIn
	if InputBool(input, "rememberMe") && a.Opts.ExtendedExpiresIn > 0 {
		expiresIn = a.Opts.ExtendedExpiresIn
	}

	var data map[string]any
	if a.SessionData != nil {
		extra, err := a.SessionData(ctx, verified, user, r)
		if err != nil {
			a.Logger.Error("session data hook failed", "error", err, "user_id", user.ID)
			return nil, serverError(ErrCodeSessionCreationFailed)
		}
		if len(extra) > 0 {
			data = make(map[string]any, len(extra))
			for k, v := range extra {
				data[k] = v
			}
		}
	}

	session, err := a.Sessions.CreateSession(ctx, user.ID, SessionAttributes{
		ExpiresAt: time.Now().Add(expiresIn),
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
		Data:      data,
	})
	if err != nil {
		a.Logger.Error("session creation failed", "error", err, "user_id", user.ID)
		return nil, serverError(ErrCodeSessionCreationFailed)
	}
	if session == nil || session.Token == "" {
		a.Logger.Error("session store returned empty token", "user_id", user.ID)
		return nil, serverError(ErrCodeSessionCreationFailed)
	}
	return session, nil
}

// emitSessionCookie overlays the computed lifetime onto the policy's base
// attributes and writes the Set-Cookie header.
func (a *CredentialsAuth) emitSessionCookie(w http.ResponseWriter, session *SessionRecord) {
	attrs := a.Cookies.AttributesFor(a.Opts.CookieName)
	attrs.Value = session.Token
	attrs.Expires = session.ExpiresAt
	attrs.MaxAge = int(time.Until(session.ExpiresAt).Round(time.Second).Seconds())
	attrs.SameSite = SameSiteLax
	w.Header().Add("Set-Cookie", attrs.String())
}

// clientIP extracts the client address from proxy headers, falling back to
// the socket address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	ip := r.RemoteAddr
	if colonIdx := strings.LastIndex(ip, ":"); colonIdx != -1 {
		ip = ip[:colonIdx]
	}
	return ip
}
