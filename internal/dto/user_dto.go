package dto

import (
	"time"

	"github.com/noah-isme/social-go-api/internal/models"
)

// UserSearchQuery filters the user directory by name.
type UserSearchQuery struct {
	Query string `query:"q" validate:"required,min=2,max=100"`
	Limit int    `query:"limit" validate:"omitempty,min=1,max=50"`
}

// UserStatusRequest updates the caller's online flag.
type UserStatusRequest struct {
	Online *bool `json:"online" validate:"required"`
}

// UserResponse is the public view of a user.
type UserResponse struct {
	ID          string     `json:"id"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	PicturePath string     `json:"picture_path,omitempty"`
	Location    string     `json:"location,omitempty"`
	Online      bool       `json:"online"`
	LastActive  *time.Time `json:"last_active,omitempty"`
}

// NewUserResponse converts a snapshot into a DTO.
func NewUserResponse(snapshot models.UserSnapshot) UserResponse {
	return UserResponse{
		ID:          snapshot.ID,
		FirstName:   snapshot.FirstName,
		LastName:    snapshot.LastName,
		PicturePath: snapshot.PicturePath,
		Location:    snapshot.Location,
		Online:      snapshot.Online,
		LastActive:  snapshot.LastActive,
	}
}

// NewUserResponseSlice converts users into DTOs.
func NewUserResponseSlice(users []models.User) []UserResponse {
	out := make([]UserResponse, 0, len(users))
	for _, user := range users {
		out = append(out, NewUserResponse(user.Snapshot()))
	}
	return out
}

// UserProfileRequest creates or replaces the caller's directory profile.
type UserProfileRequest struct {
	FirstName      string                 `json:"first_name" validate:"required,min=1,max=100"`
	LastName       string                 `json:"last_name" validate:"required,min=1,max=100"`
	Email          string                 `json:"email" validate:"required,email,max=255"`
	PicturePath    string                 `json:"picture_path" validate:"omitempty,max=512"`
	Location       string                 `json:"location" validate:"omitempty,max=255"`
	Occupation     string                 `json:"occupation" validate:"omitempty,max=255"`
	SocialProfiles map[string]interface{} `json:"social_profiles"`
}
