package onecred

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenData returns a SessionDataFunc that mints a signed JWT for the
// authenticated user and stores it under "token" in the session data. Apps
// that hand sessions to API clients can forward this token instead of the
// session cookie.
func TokenData(secretKey []byte, issuer string, ttl time.Duration) SessionDataFunc {
	return func(ctx context.Context, verified *Verified, user *UserRecord, r *http.Request) (map[string]any, error) {
		now := time.Now()
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": user.ID,
			"iss": issuer,
			"iat": now.Unix(),
			"exp": now.Add(ttl).Unix(),
		})
		signed, err := token.SignedString(secretKey)
		if err != nil {
			return nil, fmt.Errorf("signing session token: %w", err)
		}
		return map[string]any{"token": signed}, nil
	}
}

// VerifyToken validates a JWT minted by TokenData and returns its subject.
func VerifyToken(secretKey []byte, tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return secretKey, nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || claims == nil {
		return "", fmt.Errorf("claims is not a map")
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return "", err
	}
	if sub == "" {
		return "", fmt.Errorf("subject not found")
	}
	return sub, nil
}
