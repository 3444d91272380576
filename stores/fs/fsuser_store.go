// Package fs provides file-backed implementations of the onecred stores.
// Records are stored as one JSON file each; suited for development and tests.
package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	oc "github.com/panyam/onecred"
)

// FSUserStore stores users as JSON files keyed by email.
type FSUserStore struct {
	StoragePath string
}

func NewFSUserStore(storagePath string) *FSUserStore {
	return &FSUserStore{StoragePath: storagePath}
}

func (s *FSUserStore) userPath(email string) string {
	// Escape the email so it is a safe file name.
	return filepath.Join(s.StoragePath, "users", url.PathEscape(email)+".json")
}

func (s *FSUserStore) FindUserByEmail(ctx context.Context, email string) (*oc.UserRecord, error) {
	data, err := os.ReadFile(s.userPath(email))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, oc.ErrUserNotFound
		}
		return nil, err
	}

	var user oc.UserRecord
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateUser writes the user file with O_EXCL so that two concurrent creates
// for the same email surface as oc.ErrUserExists for the loser.
func (s *FSUserStore) CreateUser(ctx context.Context, user *oc.UserRecord) (*oc.UserRecord, error) {
	record := *user
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record.CreatedAt = time.Now()
	record.UpdatedAt = record.CreatedAt

	path := s.userPath(record.Email)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(&record, "", "  ")
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%s: %w", record.Email, oc.ErrUserExists)
		}
		return nil, err
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, err
	}

	return &record, nil
}
