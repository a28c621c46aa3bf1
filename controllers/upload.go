package controllers

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/dchest/uniuri"
	"github.com/gin-gonic/gin"

	"github.com/Vijay-papanaboina/Frontbase-Backend/middleware"
	"github.com/Vijay-papanaboina/Frontbase-Backend/models"
	"github.com/Vijay-papanaboina/Frontbase-Backend/services"
)

type UploadController struct {
	DB        *models.Database
	Pipeline  *services.DeployPipeline
	UploadDir string
}

func NewUploadController(db *models.Database, pipeline *services.DeployPipeline, uploadDir string) *UploadController {
	return &UploadController{DB: db, Pipeline: pipeline, UploadDir: uploadDir}
}

// UploadArtifact receives the CI-built archive, acknowledges immediately
// and hands the rest of the pipeline to a background task. The client is
// expected to poll the status endpoint; a failure in the background task
// can only surface there.
func (uc *UploadController) UploadArtifact(c *gin.Context) {
	userId, ok := middleware.UserIdFromContext(c)
	if !ok {
		return
	}
	repoId, ok := repoIdParam(c)
	if !ok {
		return
	}

	// The ENV_ACCESS_TOKEN baked into CI is scoped to one repository.
	if scoped, exists := c.Get(middleware.REPO_ID_KEY); exists {
		if scoped.(int64) != repoId {
			c.JSON(http.StatusForbidden, gin.H{"message": "Token not valid for this repository"})
			return
		}
	}

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "No file uploaded."})
		return
	}

	// Owner, name and slug come from the stored row, never from the
	// request, so a token for one repository cannot write into another
	// project's storage prefix.
	repo, err := uc.DB.GetRepositoryForUser(repoId, userId)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "Repository not found."})
		return
	}
	projectSlug := repo.OwnerLogin + "-" + repo.RepoName

	if err := os.MkdirAll(uc.UploadDir, 0o755); err != nil {
		log.Printf("Failed to create upload directory: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to store upload"})
		return
	}
	archivePath := filepath.Join(uc.UploadDir, fmt.Sprintf("%s-%s.zip", projectSlug, uniuri.New()))
	if err := c.SaveUploadedFile(file, archivePath); err != nil {
		log.Printf("Failed to save uploaded file: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to store upload"})
		return
	}

	if err := uc.DB.AcquirePipeline(repoId); err != nil {
		os.Remove(archivePath)
		if errors.Is(err, models.ErrPipelineBusy) {
			c.JSON(http.StatusConflict, gin.H{"message": "A deployment is already in progress for this repository"})
			return
		}
		log.Printf("Failed to acquire pipeline for repo %v: %v", repoId, err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to start deployment"})
		return
	}

	// Long-running work happens off the request path.
	c.JSON(http.StatusOK, gin.H{"message": "File received, processing in background."})

	go uc.Pipeline.Run(services.DeployJob{
		ArchivePath: archivePath,
		ProjectSlug: projectSlug,
		RepoId:      repoId,
		OwnerLogin:  repo.OwnerLogin,
		RepoName:    repo.RepoName,
		UserId:      userId,
	})
}
