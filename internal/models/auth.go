package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User represents an operator account for the thin API surface in front of
// the pipeline (§3.4 of SPEC_FULL.md) — authentication itself is out of
// spec.md's scope, but the API needs *some* access control and this mirrors
// the teacher's own minimal User/APIKey pair.
type User struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Username  string    `json:"username" gorm:"uniqueIndex;not null;type:varchar(50)"`
	Password  string    `json:"-" gorm:"not null;type:varchar(255)"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// APIKey authenticates machine callers (other pipeline services, webhooks)
// against the API surface.
type APIKey struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Key         string    `json:"key" gorm:"uniqueIndex;not null;type:varchar(255)"`
	Name        string    `json:"name" gorm:"not null;type:varchar(100)"`
	Description *string   `json:"description,omitempty" gorm:"type:text"`
	IsActive    bool      `json:"is_active" gorm:"type:boolean;default:true"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// BeforeCreate generates the key if not already set.
func (ak *APIKey) BeforeCreate(tx *gorm.DB) error {
	if ak.Key == "" {
		ak.Key = uuid.New().String()
	}
	return nil
}
