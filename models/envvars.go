package models

import (
	"time"

	"github.com/google/uuid"
)

// EnvVar is a per-repository key/value configuration entry. Values are
// stored as plain text.
type EnvVar struct {
	ID         uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	UserId     uuid.UUID   `gorm:"type:uuid;index" json:"userId"`
	User       *User       `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	RepoId     int64       `gorm:"uniqueIndex:idx_repo_env_key" json:"repoId"`
	Repository *Repository `gorm:"foreignKey:RepoId;constraint:OnDelete:CASCADE" json:"-"`
	Key        string      `gorm:"uniqueIndex:idx_repo_env_key;not null" json:"key"`
	Value      string      `gorm:"not null" json:"value"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}
