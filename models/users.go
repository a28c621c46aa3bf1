package models

import (
	"time"

	"github.com/google/uuid"
)

// User is bound 1:1 to a GitHub account. The access token is refreshed on
// every OAuth callback.
type User struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	GithubId    int64     `gorm:"uniqueIndex" json:"githubId"`
	Handle      string    `json:"handle"`
	DisplayName string    `json:"displayName"`
	AvatarUrl   string    `json:"avatarUrl"`
	ProfileUrl  string    `json:"profileUrl"`
	Email       string    `json:"email"`
	AccessToken string    `json:"-"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
