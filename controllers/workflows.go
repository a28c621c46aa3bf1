package controllers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Vijay-papanaboina/Frontbase-Backend/metrics"
	"github.com/Vijay-papanaboina/Frontbase-Backend/middleware"
	"github.com/Vijay-papanaboina/Frontbase-Backend/models"
	"github.com/Vijay-papanaboina/Frontbase-Backend/services"
)

type WorkflowController struct {
	DB          *models.Database
	Github      *services.GithubService
	Provisioner *services.Provisioner
	Metrics     *metrics.Collector
}

func NewWorkflowController(db *models.Database, githubService *services.GithubService, provisioner *services.Provisioner, collector *metrics.Collector) *WorkflowController {
	return &WorkflowController{DB: db, Github: githubService, Provisioner: provisioner, Metrics: collector}
}

type setupWorkflowInput struct {
	RepoName     string                 `json:"repoName"`
	OwnerLogin   string                 `json:"ownerLogin"`
	EnvVars      []services.EnvVarInput `json:"envVars"`
	BuildCommand string                 `json:"buildCommand"`
	OutputFolder string                 `json:"outputFolder"`
}

// SetupWorkflow provisions the deploy workflow for a repository.
func (wc *WorkflowController) SetupWorkflow(c *gin.Context) {
	userId, ok := middleware.UserIdFromContext(c)
	if !ok {
		return
	}
	repoId, ok := repoIdParam(c)
	if !ok {
		return
	}

	var input setupWorkflowInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request body"})
		return
	}
	if input.RepoName == "" || input.OwnerLogin == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Missing required fields: repoName and ownerLogin"})
		return
	}
	if input.BuildCommand == "" || input.OutputFolder == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Missing required fields: buildCommand and outputFolder"})
		return
	}

	user, err := wc.DB.GetUser(userId)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "User not found or unauthorized"})
		return
	}
	if user.Email == "" || user.GithubId == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "User data incomplete. Please re-authenticate."})
		return
	}

	workflowId, err := wc.Provisioner.Provision(c.Request.Context(), user, services.SetupRequest{
		RepoId:       repoId,
		RepoName:     input.RepoName,
		OwnerLogin:   input.OwnerLogin,
		EnvVars:      input.EnvVars,
		BuildCommand: input.BuildCommand,
		OutputFolder: input.OutputFolder,
	})
	if err != nil {
		wc.Metrics.RecordProvision("failure")

		var accessDenied *services.AccessDeniedError
		if errors.As(err, &accessDenied) {
			c.JSON(http.StatusForbidden, gin.H{"message": accessDenied.Reason})
			return
		}
		if errors.Is(err, models.ErrPipelineBusy) {
			c.JSON(http.StatusConflict, gin.H{"message": "A pipeline is already running for this repository"})
			return
		}
		log.Printf("Workflow setup failed for repo %v: %v", repoId, err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Workflow setup failed"})
		return
	}

	wc.Metrics.RecordProvision("success")
	c.JSON(http.StatusOK, gin.H{
		"message":    "Workflow setup completed successfully",
		"workflowId": workflowId,
	})
}

type redeployInput struct {
	CommitSha string `json:"commitSha"`
}

// RedeployWorkflow triggers a new run of the already provisioned workflow.
func (wc *WorkflowController) RedeployWorkflow(c *gin.Context) {
	userId, ok := middleware.UserIdFromContext(c)
	if !ok {
		return
	}
	repoId, ok := repoIdParam(c)
	if !ok {
		return
	}

	var input redeployInput
	// body is optional
	_ = c.ShouldBindJSON(&input)

	repo, err := wc.DB.GetRepositoryForUser(repoId, userId)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "Repository not found"})
		return
	}
	if repo.DeployYmlWorkflowId == nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Repository has no deploy workflow yet"})
		return
	}

	user, err := wc.DB.GetUser(userId)
	if err != nil || user.AccessToken == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "GitHub access token not found"})
		return
	}

	err = wc.Github.DispatchWorkflow(c.Request.Context(), user.AccessToken,
		repo.OwnerLogin, repo.RepoName, *repo.DeployYmlWorkflowId, input.CommitSha)
	if err != nil {
		log.Printf("Failed to trigger workflow for %v: %v", repo.FullName, err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to trigger deployment"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Redeployment triggered successfully"})
}
