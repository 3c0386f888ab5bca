package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User is a member profile in the user directory.
type User struct {
	ID             string            `gorm:"primaryKey;size:64" json:"id"`
	FirstName      string            `gorm:"size:100;not null" json:"first_name"`
	LastName       string            `gorm:"size:100;not null" json:"last_name"`
	Email          string            `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PicturePath    string            `gorm:"size:512" json:"picture_path"`
	Location       string            `gorm:"size:255" json:"location"`
	Occupation     string            `gorm:"size:255" json:"occupation"`
	SocialProfiles datatypes.JSONMap `gorm:"type:json" json:"social_profiles"`
	IsOnline       bool              `gorm:"not null;default:false" json:"is_online"`
	LastActive     *time.Time        `json:"last_active"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// BeforeCreate assigns a uuid when the identity provider did not supply one.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// Snapshot returns the fields other aggregates copy from the user.
func (u User) Snapshot() UserSnapshot {
	return UserSnapshot{
		ID:          u.ID,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		PicturePath: u.PicturePath,
		Location:    u.Location,
		Online:      u.IsOnline,
		LastActive:  u.LastActive,
	}
}

// UserSnapshot is the resolved view of a user handed to other components.
type UserSnapshot struct {
	ID          string     `json:"id"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	PicturePath string     `json:"picture_path"`
	Location    string     `json:"location,omitempty"`
	Online      bool       `json:"online"`
	LastActive  *time.Time `json:"last_active,omitempty"`
}

// Author converts the snapshot into the denormalised author fields.
func (s UserSnapshot) Author() AuthorSnapshot {
	return AuthorSnapshot{
		UserID:      s.ID,
		FirstName:   s.FirstName,
		LastName:    s.LastName,
		PicturePath: s.PicturePath,
	}
}
