package controllers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/Vijay-papanaboina/Frontbase-Backend/middleware"
	"github.com/Vijay-papanaboina/Frontbase-Backend/models"
	"github.com/Vijay-papanaboina/Frontbase-Backend/services"
)

type DeploymentController struct {
	DB      *models.Database
	Monitor *services.Monitor
}

func NewDeploymentController(db *models.Database, monitor *services.Monitor) *DeploymentController {
	return &DeploymentController{DB: db, Monitor: monitor}
}

// ListDeployments returns every deployment for the user, newest first,
// with its repository attached.
func (dc *DeploymentController) ListDeployments(c *gin.Context) {
	userId, ok := middleware.UserIdFromContext(c)
	if !ok {
		return
	}

	deployments, err := dc.DB.ListDeploymentsForUser(userId)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to fetch deployments"})
		return
	}

	response := make([]gin.H, 0, len(deployments))
	for _, deployment := range deployments {
		item := gin.H{
			"id":            deployment.ID,
			"repoId":        deployment.RepoId,
			"workflowRunId": deployment.WorkflowRunId,
			"status":        deployment.Status,
			"conclusion":    deployment.Conclusion,
			"startedAt":     deployment.StartedAt,
			"completedAt":   deployment.CompletedAt,
			"htmlUrl":       deployment.HtmlUrl,
			"projectUrl":    deployment.ProjectUrl,
			"createdAt":     deployment.CreatedAt,
		}
		if deployment.Repository != nil {
			item["repository"] = gin.H{
				"id":       deployment.Repository.RepoId,
				"name":     deployment.Repository.RepoName,
				"owner":    deployment.Repository.OwnerLogin,
				"fullName": deployment.Repository.FullName,
				"htmlUrl":  deployment.Repository.HtmlUrl,
			}
		}
		response = append(response, item)
	}
	c.JSON(http.StatusOK, response)
}

// GetDeployment returns the latest deployment row for a repository, or
// null when none exists.
func (dc *DeploymentController) GetDeployment(c *gin.Context) {
	userId, ok := middleware.UserIdFromContext(c)
	if !ok {
		return
	}
	repoId, ok := repoIdParam(c)
	if !ok {
		return
	}

	if _, err := dc.DB.GetRepositoryForUser(repoId, userId); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "Repository not found."})
		return
	}

	deployment, err := dc.DB.GetDeployment(repoId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusOK, nil)
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to fetch deployment"})
		return
	}
	c.JSON(http.StatusOK, deployment)
}

// GetDeploymentStatus is the client polling path. A stored non-terminal
// deployment is refreshed against GitHub; when no record exists yet the
// workflow's latest run seeds one.
func (dc *DeploymentController) GetDeploymentStatus(c *gin.Context) {
	userId, ok := middleware.UserIdFromContext(c)
	if !ok {
		return
	}
	repoId, ok := repoIdParam(c)
	if !ok {
		return
	}

	repo, err := dc.DB.GetRepositoryForUser(repoId, userId)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "Repository not found."})
		return
	}

	user, err := dc.DB.GetUser(userId)
	if err != nil || user.AccessToken == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "GitHub access token not found."})
		return
	}

	deployment, err := dc.DB.GetDeployment(repoId)
	if err == nil {
		refreshed, refreshErr := dc.Monitor.RefreshStatus(c.Request.Context(), user.AccessToken, repo, deployment)
		if refreshErr != nil {
			// Stale data beats a failed poll.
			log.Printf("Error refreshing run status for %v: %v", repo.FullName, refreshErr)
			c.JSON(http.StatusOK, deployment)
			return
		}
		c.JSON(http.StatusOK, refreshed)
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to fetch deployment"})
		return
	}

	// No record yet: seed one from the workflow's most recent run.
	if repo.DeployYmlWorkflowId != nil {
		run, runErr := dc.Monitor.Github.LatestRun(c.Request.Context(), user.AccessToken,
			repo.OwnerLogin, repo.RepoName, *repo.DeployYmlWorkflowId)
		if runErr != nil {
			log.Printf("Error fetching workflow runs for %v: %v", repo.FullName, runErr)
		} else if run != nil {
			projectUrl := ""
			if repo.ProjectUrl != nil {
				projectUrl = *repo.ProjectUrl
			}
			if recordErr := dc.Monitor.RecordRun(repoId, run, projectUrl); recordErr != nil {
				log.Printf("Error recording run for %v: %v", repo.FullName, recordErr)
			} else if seeded, getErr := dc.DB.GetDeployment(repoId); getErr == nil {
				c.JSON(http.StatusOK, seeded)
				return
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     models.DeployStatusPending,
		"conclusion": nil,
		"message":    "Deployment not yet started",
	})
}
