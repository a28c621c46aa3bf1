package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrPipelineBusy is returned when a provisioning or upload pipeline is
// already running for the repository.
var ErrPipelineBusy = errors.New("another pipeline is already running for this repository")

// CreateOrUpdateUser records a user on first OAuth login and refreshes the
// access token and profile fields on every subsequent one.
func (db *Database) CreateOrUpdateUser(githubId int64, handle string, displayName string, avatarUrl string, profileUrl string, email string, accessToken string) (*User, error) {
	var user User
	result := db.GormDB.Where("github_id = ?", githubId).Take(&user)
	if result.Error != nil {
		if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, result.Error
		}
		user = User{
			GithubId:    githubId,
			Handle:      handle,
			DisplayName: displayName,
			AvatarUrl:   avatarUrl,
			ProfileUrl:  profileUrl,
			Email:       email,
			AccessToken: accessToken,
		}
		if err := db.GormDB.Create(&user).Error; err != nil {
			return nil, err
		}
		return &user, nil
	}

	err := db.GormDB.Model(&user).Updates(map[string]interface{}{
		"handle":       handle,
		"display_name": displayName,
		"avatar_url":   avatarUrl,
		"profile_url":  profileUrl,
		"email":        email,
		"access_token": accessToken,
	}).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (db *Database) GetUser(id uuid.UUID) (*User, error) {
	var user User
	if err := db.GormDB.Take(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (db *Database) GetUserByGithubId(githubId int64) (*User, error) {
	var user User
	if err := db.GormDB.Take(&user, "github_id = ?", githubId).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// UpsertRepository records a repository at the start of provisioning. The
// insert is idempotent on repo id; on conflict only the mutable metadata is
// refreshed, so a retried setup never resets deploy progress markers.
func (db *Database) UpsertRepository(repo *Repository) error {
	return db.GormDB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "repo_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"repo_name", "owner_login", "full_name", "private", "html_url",
			"description", "language", "owner_avatar_url", "updated_at",
		}),
	}).Create(repo).Error
}

func (db *Database) GetRepository(repoId int64) (*Repository, error) {
	var repo Repository
	if err := db.GormDB.Take(&repo, "repo_id = ?", repoId).Error; err != nil {
		return nil, err
	}
	return &repo, nil
}

func (db *Database) GetRepositoryForUser(repoId int64, userId uuid.UUID) (*Repository, error) {
	var repo Repository
	err := db.GormDB.Take(&repo, "repo_id = ? AND user_id = ?", repoId, userId).Error
	if err != nil {
		return nil, err
	}
	return &repo, nil
}

func (db *Database) ListRepositoriesForUser(userId uuid.UUID) ([]Repository, error) {
	var repos []Repository
	if err := db.GormDB.Where("user_id = ?", userId).Find(&repos).Error; err != nil {
		return nil, err
	}
	return repos, nil
}

// SetWorkflowInfo marks the workflow file as injected and stores the
// discovered workflow id.
func (db *Database) SetWorkflowInfo(repoId int64, workflowId int64) error {
	return db.GormDB.Model(&Repository{}).Where("repo_id = ?", repoId).Updates(map[string]interface{}{
		"deploy_yml_injected":    true,
		"deploy_yml_workflow_id": workflowId,
	}).Error
}

func (db *Database) SetDeployStatus(repoId int64, status DeployStatus) error {
	return db.GormDB.Model(&Repository{}).Where("repo_id = ?", repoId).
		Update("deploy_status", status).Error
}

func (db *Database) SetProjectUrl(repoId int64, projectUrl string) error {
	return db.GormDB.Model(&Repository{}).Where("repo_id = ?", repoId).Updates(map[string]interface{}{
		"deploy_status": DeployStatusDeployed,
		"project_url":   projectUrl,
	}).Error
}

// AcquirePipeline atomically flips the repository's pipeline token from
// idle to running. At most one pipeline per repository can hold it.
func (db *Database) AcquirePipeline(repoId int64) error {
	result := db.GormDB.Model(&Repository{}).
		Where("repo_id = ? AND pipeline_state = ?", repoId, PipelineIdle).
		Update("pipeline_state", PipelineRunning)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPipelineBusy
	}
	return nil
}

func (db *Database) ReleasePipeline(repoId int64) error {
	return db.GormDB.Model(&Repository{}).Where("repo_id = ?", repoId).
		Update("pipeline_state", PipelineIdle).Error
}

// ReplaceEnvVars swaps the full env set for a repository: the old set is
// deleted, not merged. Blank keys are skipped.
func (db *Database) ReplaceEnvVars(userId uuid.UUID, repoId int64, vars map[string]string) error {
	return db.GormDB.Transaction(func(tx *gorm.DB) error {
		err := tx.Where("user_id = ? AND repo_id = ?", userId, repoId).Delete(&EnvVar{}).Error
		if err != nil {
			return err
		}
		var rows []EnvVar
		for key, value := range vars {
			if strings.TrimSpace(key) == "" {
				continue
			}
			rows = append(rows, EnvVar{UserId: userId, RepoId: repoId, Key: key, Value: value})
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
}

// UpsertEnvVar sets a single key, overwriting any existing value.
func (db *Database) UpsertEnvVar(userId uuid.UUID, repoId int64, key string, value string) error {
	return db.GormDB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "repo_id"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&EnvVar{UserId: userId, RepoId: repoId, Key: key, Value: value}).Error
}

func (db *Database) DeleteEnvVar(userId uuid.UUID, repoId int64, key string) (bool, error) {
	result := db.GormDB.Where("user_id = ? AND repo_id = ? AND key = ?", userId, repoId, key).
		Delete(&EnvVar{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (db *Database) ListEnvVars(repoId int64) ([]EnvVar, error) {
	var vars []EnvVar
	if err := db.GormDB.Where("repo_id = ?", repoId).Find(&vars).Error; err != nil {
		return nil, err
	}
	return vars, nil
}

// UpsertDeployment keeps only the latest run per repository: a conflict on
// repo id overwrites the previous row in place.
func (db *Database) UpsertDeployment(deployment *Deployment) error {
	return db.GormDB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "repo_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"workflow_run_id", "status", "conclusion", "started_at",
			"completed_at", "html_url", "project_url", "updated_at",
		}),
	}).Create(deployment).Error
}

func (db *Database) GetDeployment(repoId int64) (*Deployment, error) {
	var deployment Deployment
	if err := db.GormDB.Take(&deployment, "repo_id = ?", repoId).Error; err != nil {
		return nil, err
	}
	return &deployment, nil
}

func (db *Database) GetDeploymentByRunId(runId int64) (*Deployment, error) {
	var deployment Deployment
	if err := db.GormDB.Take(&deployment, "workflow_run_id = ?", runId).Error; err != nil {
		return nil, err
	}
	return &deployment, nil
}

// UpdateDeploymentStatus writes status and conclusion for a repository's
// deployment row.
func (db *Database) UpdateDeploymentStatus(repoId int64, status string, conclusion string) (*Deployment, error) {
	err := db.GormDB.Model(&Deployment{}).Where("repo_id = ?", repoId).Updates(map[string]interface{}{
		"status":     status,
		"conclusion": conclusion,
	}).Error
	if err != nil {
		return nil, err
	}
	return db.GetDeployment(repoId)
}

func (db *Database) ListDeploymentsForUser(userId uuid.UUID) ([]Deployment, error) {
	var deployments []Deployment
	err := db.GormDB.Preload("Repository").
		Joins("INNER JOIN repositories ON repositories.repo_id = deployments.repo_id").
		Where("repositories.user_id = ?", userId).
		Order("deployments.updated_at DESC").
		Find(&deployments).Error
	if err != nil {
		return nil, err
	}
	return deployments, nil
}

func (db *Database) GithubAppInstallationAdded(installationId int64, appId int64, accountLogin string, accountId int64) error {
	var installation GithubAppInstallation
	result := db.GormDB.Take(&installation, "installation_id = ?", installationId)
	if result.Error != nil {
		if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return result.Error
		}
		return db.GormDB.Create(&GithubAppInstallation{
			InstallationId: installationId,
			AppId:          appId,
			AccountLogin:   accountLogin,
			AccountId:      accountId,
			State:          InstallationActive,
		}).Error
	}
	return db.GormDB.Model(&installation).Updates(map[string]interface{}{
		"app_id":        appId,
		"account_login": accountLogin,
		"account_id":    accountId,
		"state":         InstallationActive,
	}).Error
}

func (db *Database) GetActiveInstallation(accountLogin string) (*GithubAppInstallation, error) {
	var installation GithubAppInstallation
	err := db.GormDB.Take(&installation, "account_login = ? AND state = ?",
		accountLogin, InstallationActive).Error
	if err != nil {
		return nil, err
	}
	return &installation, nil
}

func (db *Database) GithubAppInstallationRemoved(installationId int64) error {
	result := db.GormDB.Model(&GithubAppInstallation{}).
		Where("installation_id = ?", installationId).
		Update("state", InstallationDeleted)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("installation %v not found", installationId)
	}
	return nil
}
