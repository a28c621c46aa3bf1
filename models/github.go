package models

import "gorm.io/gorm"

type GithubAppInstallState string

const (
	InstallationActive  GithubAppInstallState = "active"
	InstallationDeleted GithubAppInstallState = "deleted"
)

// GithubAppInstallation tracks GitHub App installs reported by webhooks, so
// App-authenticated clients can be built for repositories under an install.
type GithubAppInstallation struct {
	gorm.Model
	InstallationId int64 `gorm:"index"`
	AppId          int64
	AccountLogin   string
	AccountId      int64
	State          GithubAppInstallState
}
