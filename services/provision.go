package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Vijay-papanaboina/Frontbase-Backend/models"
)

// SecretName is the repository secret the CI runner uses to authenticate
// back against this backend.
const SecretName = "ENV_ACCESS_TOKEN"

// AccessDeniedError means the acting token cannot write to the target
// repository; provisioning stops before any mutating call.
type AccessDeniedError struct {
	Reason string
}

func (e *AccessDeniedError) Error() string {
	return e.Reason
}

// EnvVarInput is one key/value pair from the setup request body.
type EnvVarInput struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// SetupRequest carries everything needed to provision a repository's
// deploy workflow.
type SetupRequest struct {
	RepoId       int64
	RepoName     string
	OwnerLogin   string
	EnvVars      []EnvVarInput
	BuildCommand string
	OutputFolder string
}

// Provisioner drives repository setup: record the repo, verify access,
// inject the callback secret, replace env vars, write the workflow file and
// discover its id. A failure at any step leaves the repository row in
// pending so a retry resumes without duplicating rows.
type Provisioner struct {
	DB         *models.Database
	Github     *GithubService
	BackendUrl string
	JwtSecret  string

	// Lifetime of the repo-scoped callback token baked into CI.
	RepoTokenTTL time.Duration
}

func NewProvisioner(db *models.Database, githubService *GithubService, backendUrl string, jwtSecret string) *Provisioner {
	return &Provisioner{
		DB:           db,
		Github:       githubService,
		BackendUrl:   backendUrl,
		JwtSecret:    jwtSecret,
		RepoTokenTTL: 365 * 24 * time.Hour,
	}
}

// Provision runs the full setup sequence and returns the discovered
// workflow id.
func (p *Provisioner) Provision(ctx context.Context, user *models.User, req SetupRequest) (int64, error) {
	err := p.DB.UpsertRepository(&models.Repository{
		RepoId:       req.RepoId,
		UserId:       user.ID,
		RepoName:     req.RepoName,
		OwnerLogin:   req.OwnerLogin,
		FullName:     req.OwnerLogin + "/" + req.RepoName,
		DeployStatus: models.DeployStatusPending,
	})
	if err != nil {
		return 0, fmt.Errorf("repository record: %v", err)
	}

	// One pipeline per repository at a time, provisioning included.
	if err := p.DB.AcquirePipeline(req.RepoId); err != nil {
		return 0, err
	}
	defer func() {
		if err := p.DB.ReleasePipeline(req.RepoId); err != nil {
			log.Printf("Failed to release pipeline for repo %v: %v", req.RepoId, err)
		}
	}()

	access, err := p.Github.VerifyAccess(ctx, user.AccessToken, req.OwnerLogin, req.RepoName)
	if err != nil {
		return 0, fmt.Errorf("access check: %v", err)
	}
	if !access.Ok {
		return 0, &AccessDeniedError{Reason: access.Reason}
	}

	repoToken, err := p.signRepoToken(req.RepoId, user.ID.String())
	if err != nil {
		return 0, fmt.Errorf("repo token: %v", err)
	}
	err = p.Github.InjectSecret(ctx, user.AccessToken, req.OwnerLogin, req.RepoName, SecretName, repoToken)
	if err != nil {
		return 0, fmt.Errorf("secret injection: %v", err)
	}

	// A nil slice means the request omitted envVars; an empty one means
	// the caller wants the stored set wiped.
	if req.EnvVars != nil {
		vars := make(map[string]string, len(req.EnvVars))
		for _, envVar := range req.EnvVars {
			vars[envVar.Key] = envVar.Value
		}
		if err := p.DB.ReplaceEnvVars(user.ID, req.RepoId, vars); err != nil {
			return 0, fmt.Errorf("env var replacement: %v", err)
		}
	}

	content, err := RenderWorkflow(WorkflowVariables{
		BackendUrl:   p.BackendUrl,
		ProjectSlug:  req.OwnerLogin + "-" + req.RepoName,
		OwnerLogin:   req.OwnerLogin,
		RepoName:     req.RepoName,
		UserEmail:    user.Email,
		GithubId:     user.GithubId,
		RepoId:       req.RepoId,
		BuildCommand: req.BuildCommand,
		OutputFolder: req.OutputFolder,
	})
	if err != nil {
		return 0, fmt.Errorf("workflow template: %w", err)
	}

	err = p.Github.CreateOrUpdateFile(ctx, user.AccessToken, req.OwnerLogin, req.RepoName,
		WorkflowPath, content, "Add Frontbase deploy workflow")
	if err != nil {
		return 0, fmt.Errorf("workflow file: %v", err)
	}

	workflowId, err := p.Github.FindWorkflowID(ctx, user.AccessToken, req.OwnerLogin, req.RepoName, WorkflowPath)
	if err != nil {
		return 0, fmt.Errorf("workflow discovery: %w", err)
	}

	if err := p.DB.SetWorkflowInfo(req.RepoId, workflowId); err != nil {
		return 0, fmt.Errorf("workflow record: %v", err)
	}

	// Kick off the first run. Best effort: provisioning already succeeded,
	// the user can redeploy manually.
	err = p.Github.DispatchWorkflow(ctx, user.AccessToken, req.OwnerLogin, req.RepoName, workflowId, "")
	if err != nil {
		log.Printf("Failed to trigger first workflow run for %v/%v: %v", req.OwnerLogin, req.RepoName, err)
	} else {
		log.Printf("Workflow triggered for %v/%v", req.OwnerLogin, req.RepoName)
	}

	return workflowId, nil
}

func (p *Provisioner) signRepoToken(repoId int64, userId string) (string, error) {
	claims := jwt.MapClaims{
		"userId": userId,
		"repoId": repoId,
		"exp":    time.Now().Add(p.RepoTokenTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(p.JwtSecret))
}
