package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Vijay-papanaboina/Frontbase-Backend/config"
	"github.com/Vijay-papanaboina/Frontbase-Backend/controllers"
	"github.com/Vijay-papanaboina/Frontbase-Backend/metrics"
	"github.com/Vijay-papanaboina/Frontbase-Backend/middleware"
	"github.com/Vijay-papanaboina/Frontbase-Backend/models"
	"github.com/Vijay-papanaboina/Frontbase-Backend/services"
)

func main() {
	cfg := config.Load()
	gin.SetMode(cfg.GinMode)

	db, err := models.ConnectDatabase(cfg.DatabaseUrl)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	githubService := services.NewGithubService(cfg.GithubOAuthClientId, cfg.GithubOAuthClientSecret, cfg.BackendUrl)
	provisioner := services.NewProvisioner(db, githubService, cfg.BackendUrl, cfg.JwtSecret)
	monitor := services.NewMonitor(githubService, db)

	store, err := services.NewR2Store(cfg.R2AccountId, cfg.R2AccessKeyId, cfg.R2SecretAccessKey, cfg.R2BucketName)
	if err != nil {
		log.Fatalf("Failed to initialise object storage: %v", err)
	}
	mapper := services.NewKVStore(cfg.CfAccountId, cfg.KvNamespaceId, cfg.CfEmail, cfg.CfApiKey)
	ingestor := services.NewIngestor(cfg.UploadDir, store)

	collector := metrics.NewCollector(prometheus.DefaultRegisterer)

	pipeline := &services.DeployPipeline{
		DB:           db,
		Ingestor:     ingestor,
		Mapper:       mapper,
		Monitor:      monitor,
		Metrics:      collector,
		PublicDomain: cfg.PublicDomain,
	}

	secureCookies := strings.HasPrefix(cfg.BackendUrl, "https://")
	authController := controllers.NewAuthController(db, githubService, cfg.JwtSecret, cfg.FrontendUrl, secureCookies)
	repoController := controllers.NewRepoController(db, githubService)
	workflowController := controllers.NewWorkflowController(db, githubService, provisioner, collector)
	envVarController := controllers.NewEnvVarController(db)
	deploymentController := controllers.NewDeploymentController(db, monitor)
	uploadController := controllers.NewUploadController(db, pipeline, cfg.UploadDir)
	webhookController := controllers.NewWebhookController(db, cfg.GithubWebhookSecret, cfg.GithubAppId, cfg.GithubAppPrivateKey)

	r := gin.Default()
	r.Use(middleware.CORS(cfg.FrontendUrl))

	version, _ := os.ReadFile("version.txt")
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"version": string(version),
		})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	r.GET("/api/auth/github", authController.GithubLogin)
	r.GET("/api/auth/github/callback", authController.GithubCallback)
	r.POST("/api/auth/logout", authController.Logout)

	r.POST("/github/webhook", webhookController.GithubWebhook)

	authorized := r.Group("/api")
	authorized.Use(middleware.JWTAuth(cfg.JwtSecret))

	authorized.GET("/auth/me", authController.Me)

	authorized.GET("/repositories", repoController.ListRepositories)
	authorized.GET("/repositories/:repoId", repoController.GetRepository)
	authorized.GET("/repositories/:repoId/commits", repoController.GetCommits)

	authorized.POST("/workflows/:repoId/setup", workflowController.SetupWorkflow)
	authorized.POST("/workflows/:repoId/redeploy", workflowController.RedeployWorkflow)

	authorized.GET("/repositories/:repoId/env", envVarController.GetEnvironmentVariables)
	authorized.POST("/repositories/:repoId/env", envVarController.AddEnvironmentVariable)
	authorized.DELETE("/repositories/:repoId/env", envVarController.DeleteEnvironmentVariable)

	authorized.GET("/deployments", deploymentController.ListDeployments)
	authorized.GET("/deployments/:repoId", deploymentController.GetDeployment)
	authorized.GET("/deployments/:repoId/status", deploymentController.GetDeploymentStatus)

	authorized.POST("/upload/:repoId", uploadController.UploadArtifact)

	if err := r.Run(fmt.Sprintf(":%v", cfg.Port)); err != nil {
		log.Fatalf("Server exited: %v", err)
	}
}
