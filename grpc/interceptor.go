// Package grpc provides gRPC interceptors that authenticate calls with a
// onecred session token carried in request metadata.
package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	oc "github.com/panyam/onecred"
)

// DefaultMetadataKeySessionToken is the default metadata key carrying the
// session token.
const DefaultMetadataKeySessionToken = "x-session-token"

type sessionContextKey struct{}

// InterceptorConfig configures the auth interceptor behavior.
type InterceptorConfig struct {
	// Sessions resolves tokens to session records. Required.
	Sessions oc.SessionStore

	// MetadataKey for the session token. Defaults to "x-session-token".
	MetadataKey string

	// RequireAuth when true rejects calls without a live session. When
	// false, calls proceed but SessionFromContext returns nil.
	RequireAuth bool

	// PublicMethods are full method names ("/pkg.Service/Method") exempt
	// from RequireAuth.
	PublicMethods map[string]bool
}

// EnsureDefaults fills in default values for any unset fields.
func (c *InterceptorConfig) EnsureDefaults() {
	if c.MetadataKey == "" {
		c.MetadataKey = DefaultMetadataKeySessionToken
	}
	if c.PublicMethods == nil {
		c.PublicMethods = make(map[string]bool)
	}
}

// UnaryAuthInterceptor returns a unary interceptor that resolves the session
// token from metadata and, when found, attaches the session record to the
// call context.
func UnaryAuthInterceptor(config *InterceptorConfig) grpc.UnaryServerInterceptor {
	config.EnsureDefaults()

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		session := resolveSession(ctx, config)

		if config.RequireAuth && !config.PublicMethods[info.FullMethod] && session == nil {
			return nil, status.Error(codes.Unauthenticated, "authentication required")
		}

		if session != nil {
			ctx = context.WithValue(ctx, sessionContextKey{}, session)
		}
		return handler(ctx, req)
	}
}

// StreamAuthInterceptor returns the stream counterpart of
// UnaryAuthInterceptor.
func StreamAuthInterceptor(config *InterceptorConfig) grpc.StreamServerInterceptor {
	config.EnsureDefaults()

	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		session := resolveSession(ss.Context(), config)

		if config.RequireAuth && !config.PublicMethods[info.FullMethod] && session == nil {
			return status.Error(codes.Unauthenticated, "authentication required")
		}

		if session != nil {
			ss = &sessionServerStream{ServerStream: ss, session: session}
		}
		return handler(srv, ss)
	}
}

func resolveSession(ctx context.Context, config *InterceptorConfig) *oc.SessionRecord {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil
	}

	values := md.Get(config.MetadataKey)
	if len(values) == 0 || values[0] == "" {
		return nil
	}

	session, err := config.Sessions.GetSession(ctx, values[0])
	if err != nil || session == nil || session.Expired() {
		return nil
	}
	return session
}

type sessionServerStream struct {
	grpc.ServerStream
	session *oc.SessionRecord
}

func (s *sessionServerStream) Context() context.Context {
	return context.WithValue(s.ServerStream.Context(), sessionContextKey{}, s.session)
}

// SessionFromContext returns the session attached by the interceptors, or nil.
func SessionFromContext(ctx context.Context) *oc.SessionRecord {
	session, _ := ctx.Value(sessionContextKey{}).(*oc.SessionRecord)
	return session
}

// UserIDFromContext returns the authenticated user ID, or empty when the
// call is unauthenticated.
func UserIDFromContext(ctx context.Context) string {
	if session := SessionFromContext(ctx); session != nil {
		return session.UserID
	}
	return ""
}
