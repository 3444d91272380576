// Package gormstore provides GORM-backed implementations of the onecred
// stores for SQL databases.
package gormstore

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"gorm.io/gorm"

	oc "github.com/panyam/onecred"
)

// JSONMap stores a map[string]any as a JSON column.
type JSONMap map[string]any

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			bytes = []byte(s)
		} else {
			return nil
		}
	}
	return json.Unmarshal(bytes, m)
}

// UserModel is the GORM model for user records. The unique index on Email is
// what turns concurrent duplicate creation into a detectable violation.
type UserModel struct {
	ID            string `gorm:"primaryKey;size:64"`
	Email         string `gorm:"uniqueIndex;size:255;not null"`
	Name          string `gorm:"size:255"`
	EmailVerified bool
	Image         string `gorm:"size:1024"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (UserModel) TableName() string { return "onecred_users" }

func (m *UserModel) toRecord() *oc.UserRecord {
	return &oc.UserRecord{
		ID:            m.ID,
		Email:         m.Email,
		Name:          m.Name,
		EmailVerified: m.EmailVerified,
		Image:         m.Image,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

// SessionModel is the GORM model for session records.
type SessionModel struct {
	Token     string `gorm:"primaryKey;size:64"`
	UserID    string `gorm:"index;size:64;not null"`
	ExpiresAt time.Time
	IPAddress string `gorm:"size:64"`
	UserAgent string `gorm:"size:512"`
	Data      JSONMap
	CreatedAt time.Time
}

func (SessionModel) TableName() string { return "onecred_sessions" }

func (m *SessionModel) toRecord() *oc.SessionRecord {
	return &oc.SessionRecord{
		Token:     m.Token,
		UserID:    m.UserID,
		ExpiresAt: m.ExpiresAt,
		IPAddress: m.IPAddress,
		UserAgent: m.UserAgent,
		Data:      m.Data,
	}
}

// AutoMigrate runs database migrations for the onecred tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&UserModel{},
		&SessionModel{},
	)
}
