package onecred

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Mount registers the sign-in and sign-out endpoints on a gorilla/mux router.
// The sign-in path comes from Options.Path; sign-out is mounted next to it.
//
//	auth := onecred.New(users, sessions, verify, onecred.Options{})
//	router := mux.NewRouter()
//	auth.Mount(router)
func (a *CredentialsAuth) Mount(router *mux.Router) *CredentialsAuth {
	a.EnsureDefaults()
	router.Handle(a.Opts.Path, a).Methods(http.MethodPost)
	router.HandleFunc("/sign-out", a.SignOut).Methods(http.MethodPost)
	return a
}
