package models

import (
	"time"

	"github.com/google/uuid"
)

type DeployStatus string

const (
	DeployStatusNotDeployed DeployStatus = "not-deployed"
	DeployStatusPending     DeployStatus = "pending"
	DeployStatusDeploying   DeployStatus = "deploying"
	DeployStatusDeployed    DeployStatus = "deployed"
	DeployStatusFailed      DeployStatus = "failed"
)

type PipelineState string

const (
	PipelineIdle    PipelineState = "idle"
	PipelineRunning PipelineState = "running"
)

// Repository is keyed by the GitHub-assigned repository id, which is global
// across all users.
type Repository struct {
	RepoId              int64        `gorm:"primaryKey;autoIncrement:false" json:"repoId"`
	UserId              uuid.UUID    `gorm:"type:uuid;index" json:"userId"`
	User                *User        `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	RepoName            string       `gorm:"not null" json:"repoName"`
	OwnerLogin          string       `gorm:"not null" json:"ownerLogin"`
	FullName            string       `json:"fullName"`
	Private             bool         `json:"private"`
	HtmlUrl             string       `json:"htmlUrl"`
	Description         string       `json:"description"`
	Language            string       `json:"language"`
	OwnerAvatarUrl      string       `json:"ownerAvatarUrl"`
	DeployYmlInjected   bool         `gorm:"default:false" json:"deployYmlInjected"`
	DeployYmlWorkflowId *int64       `json:"deployYmlWorkflowId"`
	DeployStatus        DeployStatus `gorm:"default:not-deployed" json:"deployStatus"`
	ProjectUrl          *string      `json:"projectUrl"`
	// PipelineState is the per-repository mutual exclusion token: a
	// provisioning or upload pipeline may only start by atomically flipping
	// it from idle to running.
	PipelineState PipelineState `gorm:"default:idle" json:"-"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

func (r *Repository) Slug() string {
	return r.OwnerLogin + "-" + r.RepoName
}
