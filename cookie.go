package onecred

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// SameSite policies as they appear on the wire.
const (
	SameSiteLax    = "lax"
	SameSiteStrict = "strict"
	SameSiteNone   = "none"
)

// CookieAttributes describes a Set-Cookie header. Zero-valued attributes are
// omitted from the serialized string.
type CookieAttributes struct {
	Name     string
	Value    string
	Path     string
	Domain   string
	MaxAge   int
	Expires  time.Time
	Secure   bool
	HttpOnly bool
	SameSite string
}

// String serializes the attributes into a Set-Cookie header value:
//
//	name=value; Max-Age=..; Expires=..; Domain=..; Path=..; Secure; HttpOnly; SameSite=..
func (c CookieAttributes) String() string {
	var b strings.Builder
	b.WriteString(c.Name)
	b.WriteByte('=')
	b.WriteString(c.Value)

	if c.MaxAge != 0 {
		fmt.Fprintf(&b, "; Max-Age=%d", c.MaxAge)
	}
	if !c.Expires.IsZero() {
		b.WriteString("; Expires=")
		b.WriteString(c.Expires.UTC().Format(http.TimeFormat))
	}
	if c.Domain != "" {
		b.WriteString("; Domain=")
		b.WriteString(c.Domain)
	}
	if c.Path != "" {
		b.WriteString("; Path=")
		b.WriteString(c.Path)
	}
	if c.Secure {
		b.WriteString("; Secure")
	}
	if c.HttpOnly {
		b.WriteString("; HttpOnly")
	}
	if c.SameSite != "" {
		b.WriteString("; SameSite=")
		b.WriteString(sameSiteLabel(c.SameSite))
	}
	return b.String()
}

func sameSiteLabel(policy string) string {
	switch strings.ToLower(policy) {
	case SameSiteLax:
		return "Lax"
	case SameSiteStrict:
		return "Strict"
	case SameSiteNone:
		return "None"
	default:
		return policy
	}
}

// DefaultCookiePolicy is the fallback CookiePolicy: HttpOnly, root path, and
// Secure left to the deployment.
type DefaultCookiePolicy struct {
	Domain string
	Secure bool
}

func (p DefaultCookiePolicy) AttributesFor(name string) CookieAttributes {
	return CookieAttributes{
		Name:     name,
		Path:     "/",
		Domain:   p.Domain,
		Secure:   p.Secure,
		HttpOnly: true,
	}
}
