package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RunStatusQueued     = "queued"
	RunStatusInProgress = "in_progress"
	RunStatusCompleted  = "completed"
)

// Deployment holds the latest workflow run observed for a repository. The
// row is unique on RepoId, so a new run overwrites the previous one; no
// deployment history is kept.
type Deployment struct {
	ID            uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	RepoId        int64       `gorm:"uniqueIndex" json:"repoId"`
	Repository    *Repository `gorm:"foreignKey:RepoId;references:RepoId;constraint:OnDelete:CASCADE" json:"-"`
	WorkflowRunId int64       `gorm:"uniqueIndex" json:"workflowRunId"`
	Status        string      `json:"status"`
	Conclusion    string      `json:"conclusion"`
	StartedAt     *time.Time  `json:"startedAt"`
	CompletedAt   *time.Time  `json:"completedAt"`
	HtmlUrl       string      `json:"htmlUrl"`
	ProjectUrl    string      `json:"projectUrl"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

// Terminal reports whether the run has reached a state from which no
// further transition occurs.
func (d *Deployment) Terminal() bool {
	return d.Status == RunStatusCompleted
}
