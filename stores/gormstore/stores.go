package gormstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	oc "github.com/panyam/onecred"
)

// UserStore implements oc.UserStore using GORM.
type UserStore struct {
	db *gorm.DB
}

func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) FindUserByEmail(ctx context.Context, email string) (*oc.UserRecord, error) {
	var model UserModel
	err := s.db.WithContext(ctx).First(&model, "email = ?", email).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, oc.ErrUserNotFound
		}
		return nil, err
	}
	return model.toRecord(), nil
}

// CreateUser inserts the user, translating the driver's duplicate-key error
// into oc.ErrUserExists. Drivers without error translation still surface a
// uniqueness violation recognizable by oc.IsUniquenessViolation.
func (s *UserStore) CreateUser(ctx context.Context, user *oc.UserRecord) (*oc.UserRecord, error) {
	model := &UserModel{
		ID:            user.ID,
		Email:         user.Email,
		Name:          user.Name,
		EmailVerified: user.EmailVerified,
		Image:         user.Image,
	}
	if model.ID == "" {
		model.ID = uuid.NewString()
	}

	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%s: %w", user.Email, oc.ErrUserExists)
		}
		return nil, err
	}
	return model.toRecord(), nil
}

// SessionStore implements oc.SessionStore using GORM.
type SessionStore struct {
	db *gorm.DB
}

func NewSessionStore(db *gorm.DB) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) CreateSession(ctx context.Context, userID string, attrs oc.SessionAttributes) (*oc.SessionRecord, error) {
	model := &SessionModel{
		Token:     uuid.NewString(),
		UserID:    userID,
		ExpiresAt: attrs.ExpiresAt,
		IPAddress: attrs.IPAddress,
		UserAgent: attrs.UserAgent,
		Data:      JSONMap(attrs.Data),
	}
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		return nil, err
	}
	return model.toRecord(), nil
}

func (s *SessionStore) GetSession(ctx context.Context, token string) (*oc.SessionRecord, error) {
	var model SessionModel
	err := s.db.WithContext(ctx).First(&model, "token = ?", token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, oc.ErrSessionNotFound
		}
		return nil, err
	}
	return model.toRecord(), nil
}

func (s *SessionStore) DeleteSession(ctx context.Context, token string) error {
	return s.db.WithContext(ctx).Delete(&SessionModel{}, "token = ?", token).Error
}
