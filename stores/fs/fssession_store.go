package fs

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	oc "github.com/panyam/onecred"
)

// FSSessionStore stores sessions as JSON files keyed by token.
type FSSessionStore struct {
	StoragePath string
}

func NewFSSessionStore(storagePath string) *FSSessionStore {
	return &FSSessionStore{StoragePath: storagePath}
}

func (s *FSSessionStore) sessionPath(token string) string {
	return filepath.Join(s.StoragePath, "sessions", token+".json")
}

func (s *FSSessionStore) CreateSession(ctx context.Context, userID string, attrs oc.SessionAttributes) (*oc.SessionRecord, error) {
	session := &oc.SessionRecord{
		Token:     uuid.NewString(),
		UserID:    userID,
		ExpiresAt: attrs.ExpiresAt,
		IPAddress: attrs.IPAddress,
		UserAgent: attrs.UserAgent,
		Data:      attrs.Data,
	}

	path := s.sessionPath(session.Token)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := writeAtomicFile(path, data); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *FSSessionStore) GetSession(ctx context.Context, token string) (*oc.SessionRecord, error) {
	data, err := os.ReadFile(s.sessionPath(token))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, oc.ErrSessionNotFound
		}
		return nil, err
	}

	var session oc.SessionRecord
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *FSSessionStore) DeleteSession(ctx context.Context, token string) error {
	err := os.Remove(s.sessionPath(token))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
