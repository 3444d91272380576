package onecred

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sethvargo/go-retry"
)

// reconcileUser maps a verified email to a user record, provisioning one on
// first use unless disabled. Two concurrent first sign-ins for the same email
// can race on creation; the loser detects the store's uniqueness violation
// and re-reads the winner's record instead of failing the request.
func (a *CredentialsAuth) reconcileUser(ctx context.Context, verified *Verified) (*UserRecord, *AuthError) {
	email := verified.User.Email

	user, err := a.Users.FindUserByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		a.Logger.Error("user lookup failed", "error", err)
		return nil, serverError(ErrCodeUserCreationFailed)
	}
	if user != nil {
		return user, nil
	}

	if a.Opts.DisableAutoProvision {
		return nil, NewAuthError(http.StatusUnauthorized, ErrCodeUserNotFound, "Invalid credentials")
	}

	name := verified.User.Name
	if name == "" {
		name = emailLocalPart(email)
	}

	created, err := a.Users.CreateUser(ctx, &UserRecord{
		Email:         email,
		Name:          name,
		EmailVerified: true,
	})
	if err == nil {
		if created == nil {
			a.Logger.Error("user store returned nil record without error", "email_domain", emailDomain(email))
			return nil, serverError(ErrCodeUserCreationFailed)
		}
		return created, nil
	}

	if !a.Opts.IsUniquenessViolation(err) {
		a.Logger.Error("user creation failed", "error", err)
		return nil, serverError(ErrCodeUserCreationFailed)
	}

	// A concurrent request created the same user first. Re-read until the
	// winner's record is visible, bounded by the configured retry budget.
	user, err = a.findAfterRace(ctx, email)
	if err != nil {
		a.Logger.Error("duplicate-user race retry exhausted", "error", err)
		return nil, serverError(ErrCodeUserCreationFailed)
	}
	if user == nil {
		return nil, serverError(ErrCodeUserCreationFailed)
	}
	return user, nil
}

func (a *CredentialsAuth) findAfterRace(ctx context.Context, email string) (*UserRecord, error) {
	var user *UserRecord
	backoff := retry.WithMaxRetries(uint64(a.Opts.RetryLookups-1), retry.NewConstant(a.Opts.RetryBackoff))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		u, err := a.Users.FindUserByEmail(ctx, email)
		if errors.Is(err, ErrUserNotFound) {
			// Winner hasn't committed yet.
			return retry.RetryableError(err)
		}
		if err != nil {
			return err
		}
		user = u
		return nil
	})
	return user, err
}

func serverError(code string) *AuthError {
	// Server-side failures stay generic; the triggering error is logged, not
	// returned.
	return NewAuthError(http.StatusInternalServerError, code, "Internal error")
}

func emailLocalPart(email string) string {
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}

func emailDomain(email string) string {
	if at := strings.Index(email, "@"); at >= 0 {
		return email[at+1:]
	}
	return ""
}
