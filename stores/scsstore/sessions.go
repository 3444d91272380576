// Package scsstore adapts any alexedwards/scs storage backend (memstore,
// redisstore, postgresstore, ...) into a onecred SessionStore. The backend
// handles expiry-based eviction; records are stored as JSON against the
// session token.
package scsstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alexedwards/scs/v2"
	"github.com/alexedwards/scs/v2/memstore"
	"github.com/google/uuid"

	oc "github.com/panyam/onecred"
)

// SessionStore implements oc.SessionStore over an scs.Store.
type SessionStore struct {
	store scs.Store
}

// New wraps an scs backend. Passing nil uses an in-memory store.
func New(store scs.Store) *SessionStore {
	if store == nil {
		store = memstore.New()
	}
	return &SessionStore{store: store}
}

func (s *SessionStore) CreateSession(ctx context.Context, userID string, attrs oc.SessionAttributes) (*oc.SessionRecord, error) {
	session := &oc.SessionRecord{
		Token:     uuid.NewString(),
		UserID:    userID,
		ExpiresAt: attrs.ExpiresAt,
		IPAddress: attrs.IPAddress,
		UserAgent: attrs.UserAgent,
		Data:      attrs.Data,
	}

	data, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("encoding session: %w", err)
	}
	if err := s.store.Commit(session.Token, data, session.ExpiresAt); err != nil {
		return nil, fmt.Errorf("committing session: %w", err)
	}
	return session, nil
}

func (s *SessionStore) GetSession(ctx context.Context, token string) (*oc.SessionRecord, error) {
	data, found, err := s.store.Find(token)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, oc.ErrSessionNotFound
	}

	var session oc.SessionRecord
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	return &session, nil
}

func (s *SessionStore) DeleteSession(ctx context.Context, token string) error {
	return s.store.Delete(token)
}
