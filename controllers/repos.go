package controllers

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Vijay-papanaboina/Frontbase-Backend/middleware"
	"github.com/Vijay-papanaboina/Frontbase-Backend/models"
	"github.com/Vijay-papanaboina/Frontbase-Backend/services"
)

type RepoController struct {
	DB     *models.Database
	Github *services.GithubService
}

func NewRepoController(db *models.Database, githubService *services.GithubService) *RepoController {
	return &RepoController{DB: db, Github: githubService}
}

// ListRepositories returns the user's GitHub repositories enriched with the
// locally stored deploy status.
func (rc *RepoController) ListRepositories(c *gin.Context) {
	user, ok := rc.userWithToken(c)
	if !ok {
		return
	}

	repos, err := rc.Github.ListUserRepos(c.Request.Context(), user.AccessToken)
	if err != nil {
		log.Printf("Error listing repositories: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to fetch repositories from GitHub"})
		return
	}

	stored, err := rc.DB.ListRepositoriesForUser(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to fetch repositories"})
		return
	}
	statusByRepo := make(map[int64]models.Repository, len(stored))
	for _, repo := range stored {
		statusByRepo[repo.RepoId] = repo
	}

	enriched := make([]gin.H, 0, len(repos))
	for _, repo := range repos {
		item := gin.H{
			"id":          repo.GetID(),
			"name":        repo.GetName(),
			"full_name":   repo.GetFullName(),
			"private":     repo.GetPrivate(),
			"html_url":    repo.GetHTMLURL(),
			"description": repo.GetDescription(),
			"language":    repo.GetLanguage(),
			"owner": gin.H{
				"login":      repo.GetOwner().GetLogin(),
				"avatar_url": repo.GetOwner().GetAvatarURL(),
			},
			"deployYmlInjected": false,
			"deployStatus":      models.DeployStatusNotDeployed,
		}
		if local, found := statusByRepo[repo.GetID()]; found {
			item["deployYmlInjected"] = local.DeployYmlInjected
			item["deployStatus"] = local.DeployStatus
			item["projectUrl"] = local.ProjectUrl
		}
		enriched = append(enriched, item)
	}

	c.JSON(http.StatusOK, gin.H{"repositories": enriched})
}

// GetRepository returns one stored repository.
func (rc *RepoController) GetRepository(c *gin.Context) {
	userId, ok := middleware.UserIdFromContext(c)
	if !ok {
		return
	}
	repoId, ok := repoIdParam(c)
	if !ok {
		return
	}

	repo, err := rc.DB.GetRepositoryForUser(repoId, userId)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "Repository not found."})
		return
	}
	c.JSON(http.StatusOK, repo)
}

// GetCommits returns the repository's recent commits from GitHub.
func (rc *RepoController) GetCommits(c *gin.Context) {
	user, ok := rc.userWithToken(c)
	if !ok {
		return
	}
	repoId, ok := repoIdParam(c)
	if !ok {
		return
	}

	repo, err := rc.DB.GetRepositoryForUser(repoId, user.ID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "Repository not found"})
		return
	}

	commits, err := rc.Github.ListCommits(c.Request.Context(), user.AccessToken, repo.OwnerLogin, repo.RepoName, 20)
	if err != nil {
		log.Printf("Error fetching commits for %v: %v", repo.FullName, err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to fetch commits"})
		return
	}
	c.JSON(http.StatusOK, commits)
}

func (rc *RepoController) userWithToken(c *gin.Context) (*models.User, bool) {
	userId, ok := middleware.UserIdFromContext(c)
	if !ok {
		return nil, false
	}
	user, err := rc.DB.GetUser(userId)
	if err != nil || user.AccessToken == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "GitHub access token not found."})
		return nil, false
	}
	return user, true
}

func repoIdParam(c *gin.Context) (int64, bool) {
	repoId, err := strconv.ParseInt(c.Param("repoId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid repository id"})
		return 0, false
	}
	return repoId, true
}
