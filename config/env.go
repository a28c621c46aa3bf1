package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds every environment-driven setting the backend needs.
type Config struct {
	Port    string
	GinMode string

	DatabaseUrl string

	JwtSecret   string
	FrontendUrl string
	BackendUrl  string

	// Public apex domain deployments are served under, e.g. a project at
	// acme/site becomes https://acme-site.<PublicDomain>.
	PublicDomain string

	GithubOAuthClientId     string
	GithubOAuthClientSecret string
	GithubAppId             int64
	GithubAppPrivateKey     string
	GithubWebhookSecret     string

	R2AccountId       string
	R2AccessKeyId     string
	R2SecretAccessKey string
	R2BucketName      string

	CfAccountId   string
	CfEmail       string
	CfApiKey      string
	KvNamespaceId string

	UploadDir string
}

func Load() *Config {
	// .env is only present in local development
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		Port:                    getEnv("PORT", "8080"),
		GinMode:                 getEnv("GIN_MODE", "release"),
		DatabaseUrl:             os.Getenv("DATABASE_URL"),
		JwtSecret:               os.Getenv("JWT_SECRET"),
		FrontendUrl:             getEnv("FRONTEND_URL", "http://localhost:5173"),
		BackendUrl:              getEnv("BACKEND_URL", "http://localhost:8080"),
		PublicDomain:            getEnv("PUBLIC_DOMAIN", "frontbase.space"),
		GithubOAuthClientId:     os.Getenv("GITHUB_OAUTH_CLIENT_ID"),
		GithubOAuthClientSecret: os.Getenv("GITHUB_OAUTH_CLIENT_SECRET"),
		GithubAppId:             getEnvInt64("GITHUB_APP_ID"),
		GithubAppPrivateKey:     os.Getenv("GITHUB_APP_PRIVATE_KEY"),
		GithubWebhookSecret:     os.Getenv("GITHUB_WEBHOOK_SECRET"),
		R2AccountId:             os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKeyId:           os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey:       os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2BucketName:            os.Getenv("R2_BUCKET_NAME"),
		CfAccountId:             os.Getenv("CF_ACCOUNT_ID"),
		CfEmail:                 os.Getenv("CF_EMAIL"),
		CfApiKey:                os.Getenv("CF_API_KEY"),
		KvNamespaceId:           os.Getenv("KV_NAMESPACE_ID"),
		UploadDir:               getEnv("UPLOAD_DIR", "uploads"),
	}
}

func getEnv(key string, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string) int64 {
	value := os.Getenv(key)
	if value == "" {
		return 0
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		log.Printf("Invalid integer value for %v: %v", key, value)
		return 0
	}
	return n
}
