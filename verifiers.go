package onecred

import (
	"context"
	"errors"
	"net/http"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
)

// CredentialSource looks up the stored password hash for an email. It is the
// narrow surface a PasswordVerifier needs from the operator's credential
// storage.
type CredentialSource interface {
	PasswordHash(ctx context.Context, email string) (string, error)
}

// PasswordVerifier builds a VerifyFunc that compares the submitted password
// against a bcrypt hash from src. Unknown emails and mismatched passwords
// both reject with the same message so the response does not reveal which
// accounts exist.
func PasswordVerifier(src CredentialSource) VerifyFunc {
	return func(ctx context.Context, input map[string]any, r *http.Request) (VerifyResult, error) {
		email := InputString(input, "email")
		password := InputString(input, "password")

		hash, err := src.PasswordHash(ctx, email)
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				return Rejected{Reason: "Invalid credentials"}, nil
			}
			return nil, err
		}

		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
			return Rejected{Reason: "Invalid credentials"}, nil
		}

		return Verified{User: VerifiedUser{Email: email}}, nil
	}
}

// HashPassword bcrypt-hashes a password for storage in a CredentialSource.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// OAuth2Verifier builds a VerifyFunc that delegates verification to an OAuth2
// password-grant endpoint (e.g. a legacy identity provider). A token exchange
// failure is treated as a rejection; the provider's tokens are surfaced in
// the result's Meta for a SessionDataFunc to pick up.
func OAuth2Verifier(config *oauth2.Config) VerifyFunc {
	return func(ctx context.Context, input map[string]any, r *http.Request) (VerifyResult, error) {
		email := InputString(input, "email")
		password := InputString(input, "password")

		token, err := config.PasswordCredentialsToken(ctx, email, password)
		if err != nil {
			return Rejected{Reason: "Invalid credentials"}, nil
		}

		meta := map[string]any{"access_token": token.AccessToken}
		if token.RefreshToken != "" {
			meta["refresh_token"] = token.RefreshToken
		}
		if !token.Expiry.IsZero() {
			meta["token_expiry"] = token.Expiry
		}

		return Verified{
			User: VerifiedUser{Email: email},
			Meta: meta,
		}, nil
	}
}
