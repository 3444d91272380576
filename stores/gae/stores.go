// Package gae provides Google Cloud Datastore backed implementations of the
// onecred stores.
package gae

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/google/uuid"

	oc "github.com/panyam/onecred"
)

// Kind constants for Datastore entities.
const (
	KindUser    = "OnecredUser"
	KindSession = "OnecredSession"
)

// userEntity is keyed by normalized email, which gives Datastore a unique key
// to race on: the loser of a concurrent create sees the winner's entity
// inside the transaction.
type userEntity struct {
	ID            string    `datastore:"id"`
	Email         string    `datastore:"email"`
	Name          string    `datastore:"name,noindex"`
	EmailVerified bool      `datastore:"email_verified,noindex"`
	Image         string    `datastore:"image,noindex"`
	CreatedAt     time.Time `datastore:"created_at,noindex"`
	UpdatedAt     time.Time `datastore:"updated_at,noindex"`
}

func (e *userEntity) toRecord() *oc.UserRecord {
	return &oc.UserRecord{
		ID:            e.ID,
		Email:         e.Email,
		Name:          e.Name,
		EmailVerified: e.EmailVerified,
		Image:         e.Image,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
}

// sessionEntity is keyed by token. Data is stored as a JSON blob since
// Datastore properties can't hold arbitrary maps.
type sessionEntity struct {
	Token     string    `datastore:"token"`
	UserID    string    `datastore:"user_id"`
	ExpiresAt time.Time `datastore:"expires_at"`
	IPAddress string    `datastore:"ip_address,noindex"`
	UserAgent string    `datastore:"user_agent,noindex"`
	DataJSON  []byte    `datastore:"data,noindex"`
}

func (e *sessionEntity) toRecord() (*oc.SessionRecord, error) {
	session := &oc.SessionRecord{
		Token:     e.Token,
		UserID:    e.UserID,
		ExpiresAt: e.ExpiresAt,
		IPAddress: e.IPAddress,
		UserAgent: e.UserAgent,
	}
	if len(e.DataJSON) > 0 {
		if err := json.Unmarshal(e.DataJSON, &session.Data); err != nil {
			return nil, fmt.Errorf("decoding session data: %w", err)
		}
	}
	return session, nil
}

// UserStore implements oc.UserStore using Cloud Datastore.
type UserStore struct {
	client    *datastore.Client
	namespace string
}

func NewUserStore(client *datastore.Client, namespace string) *UserStore {
	return &UserStore{client: client, namespace: namespace}
}

func (s *UserStore) namespacedKey(kind, name string) *datastore.Key {
	key := datastore.NameKey(kind, name, nil)
	key.Namespace = s.namespace
	return key
}

func (s *UserStore) FindUserByEmail(ctx context.Context, email string) (*oc.UserRecord, error) {
	var entity userEntity
	err := s.client.Get(ctx, s.namespacedKey(KindUser, email), &entity)
	if err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, oc.ErrUserNotFound
		}
		return nil, err
	}
	return entity.toRecord(), nil
}

func (s *UserStore) CreateUser(ctx context.Context, user *oc.UserRecord) (*oc.UserRecord, error) {
	entity := &userEntity{
		ID:            user.ID,
		Email:         user.Email,
		Name:          user.Name,
		EmailVerified: user.EmailVerified,
		Image:         user.Image,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	if entity.ID == "" {
		entity.ID = uuid.NewString()
	}

	key := s.namespacedKey(KindUser, user.Email)
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var existing userEntity
		if err := tx.Get(key, &existing); err == nil {
			return fmt.Errorf("%s: %w", user.Email, oc.ErrUserExists)
		} else if !errors.Is(err, datastore.ErrNoSuchEntity) {
			return err
		}
		_, err := tx.Put(key, entity)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entity.toRecord(), nil
}

// SessionStore implements oc.SessionStore using Cloud Datastore.
type SessionStore struct {
	client    *datastore.Client
	namespace string
}

func NewSessionStore(client *datastore.Client, namespace string) *SessionStore {
	return &SessionStore{client: client, namespace: namespace}
}

func (s *SessionStore) namespacedKey(kind, name string) *datastore.Key {
	key := datastore.NameKey(kind, name, nil)
	key.Namespace = s.namespace
	return key
}

func (s *SessionStore) CreateSession(ctx context.Context, userID string, attrs oc.SessionAttributes) (*oc.SessionRecord, error) {
	entity := &sessionEntity{
		Token:     uuid.NewString(),
		UserID:    userID,
		ExpiresAt: attrs.ExpiresAt,
		IPAddress: attrs.IPAddress,
		UserAgent: attrs.UserAgent,
	}
	if len(attrs.Data) > 0 {
		data, err := json.Marshal(attrs.Data)
		if err != nil {
			return nil, fmt.Errorf("encoding session data: %w", err)
		}
		entity.DataJSON = data
	}

	if _, err := s.client.Put(ctx, s.namespacedKey(KindSession, entity.Token), entity); err != nil {
		return nil, err
	}
	return entity.toRecord()
}

func (s *SessionStore) GetSession(ctx context.Context, token string) (*oc.SessionRecord, error) {
	var entity sessionEntity
	err := s.client.Get(ctx, s.namespacedKey(KindSession, token), &entity)
	if err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, oc.ErrSessionNotFound
		}
		return nil, err
	}
	return entity.toRecord()
}

func (s *SessionStore) DeleteSession(ctx context.Context, token string) error {
	err := s.client.Delete(ctx, s.namespacedKey(KindSession, token))
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		return nil
	}
	return err
}
