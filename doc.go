// Package onecred is a credentials sign-in extension for session-based
// authentication. The operator plugs in an arbitrary verification backend
// (password check, OTP, LDAP, an external API); onecred handles everything
// around it: request parsing and validation, identity reconciliation against
// a user store, and session establishment with a cookie.
//
// # Architecture
//
// A sign-in request flows through four stages:
//
//  1. Input normalization: the body (JSON or form-urlencoded) is validated
//     against a declarative Schema.
//  2. Verification: the operator's VerifyFunc decides whether the credentials
//     map to an identity, returning Verified or Rejected.
//  3. Identity reconciliation: the verified email is resolved to a user
//     record, creating one on first use when auto-provisioning is enabled.
//     Concurrent first sign-ins racing on creation are resolved by a bounded
//     retry of the lookup.
//  4. Session establishment: a session is created in the session store and
//     its token is issued as a cookie.
//
// # Basic Usage
//
//	verify := func(ctx context.Context, input map[string]any, r *http.Request) (onecred.VerifyResult, error) {
//	    if !backend.Check(onecred.InputString(input, "email"), onecred.InputString(input, "password")) {
//	        return onecred.Rejected{Reason: "Invalid credentials"}, nil
//	    }
//	    return onecred.Verified{User: onecred.VerifiedUser{Email: onecred.InputString(input, "email")}}, nil
//	}
//
//	auth := onecred.New(userStore, sessionStore, verify, onecred.Options{})
//	mux.Handle(auth.Opts.Path, auth)
//
// User and session persistence stay behind the UserStore and SessionStore
// interfaces; the stores/ subpackages provide file, gorm, scs and Cloud
// Datastore backed implementations.
package onecred
