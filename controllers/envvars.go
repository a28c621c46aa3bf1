package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Vijay-papanaboina/Frontbase-Backend/middleware"
	"github.com/Vijay-papanaboina/Frontbase-Backend/models"
)

type EnvVarController struct {
	DB *models.Database
}

func NewEnvVarController(db *models.Database) *EnvVarController {
	return &EnvVarController{DB: db}
}

// GetEnvironmentVariables returns the repository's env set as a key/value
// map. The CI runner fetches this with its repo-scoped token.
func (ec *EnvVarController) GetEnvironmentVariables(c *gin.Context) {
	repoId, ok := repoIdParam(c)
	if !ok {
		return
	}

	// A repo-scoped token may only read its own repository's env set.
	if scoped, exists := c.Get(middleware.REPO_ID_KEY); exists {
		if scoped.(int64) != repoId {
			c.JSON(http.StatusForbidden, gin.H{"message": "Token not valid for this repository"})
			return
		}
	}

	vars, err := ec.DB.ListEnvVars(repoId)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to fetch environment variables"})
		return
	}

	envs := make(map[string]string, len(vars))
	for _, envVar := range vars {
		envs[envVar.Key] = envVar.Value
	}
	c.JSON(http.StatusOK, envs)
}

type envVarInput struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// AddEnvironmentVariable upserts a single key.
func (ec *EnvVarController) AddEnvironmentVariable(c *gin.Context) {
	userId, ok := middleware.UserIdFromContext(c)
	if !ok {
		return
	}
	repoId, ok := repoIdParam(c)
	if !ok {
		return
	}

	var input envVarInput
	if err := c.ShouldBindJSON(&input); err != nil || strings.TrimSpace(input.Key) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Key is required."})
		return
	}

	if err := ec.DB.UpsertEnvVar(userId, repoId, input.Key, input.Value); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to store environment variable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Environment variable added/updated."})
}

// DeleteEnvironmentVariable removes one key.
func (ec *EnvVarController) DeleteEnvironmentVariable(c *gin.Context) {
	userId, ok := middleware.UserIdFromContext(c)
	if !ok {
		return
	}
	repoId, ok := repoIdParam(c)
	if !ok {
		return
	}

	var input envVarInput
	if err := c.ShouldBindJSON(&input); err != nil || strings.TrimSpace(input.Key) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Key is required."})
		return
	}

	deleted, err := ec.DB.DeleteEnvVar(userId, repoId, input.Key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to delete environment variable"})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"message": "Environment variable not found."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Environment variable deleted."})
}
