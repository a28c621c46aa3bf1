package services

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// ObjectUploader stores a local file under a key in durable object storage.
type ObjectUploader interface {
	PutFile(ctx context.Context, key string, path string) error
}

// R2Store uploads to a Cloudflare R2 bucket through the S3 API.
type R2Store struct {
	client *s3.S3
	bucket string
}

func NewR2Store(accountId string, accessKeyId string, secretAccessKey string, bucket string) (*R2Store, error) {
	sess, err := session.NewSession(&aws.Config{
		Region:      aws.String("auto"),
		Endpoint:    aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountId)),
		Credentials: credentials.NewStaticCredentials(accessKeyId, secretAccessKey, ""),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialise storage session: %v", err)
	}
	return &R2Store{client: s3.New(sess), bucket: bucket}, nil
}

func (r *R2Store) PutFile(ctx context.Context, key string, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %v: %v", path, err)
	}
	defer file.Close()

	contentType := mime.TypeByExtension(filepath.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err = r.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %v: %v", key, err)
	}
	return nil
}

// DomainMapper publishes a subdomain to storage-prefix lookup entry.
type DomainMapper interface {
	Publish(ctx context.Context, subdomain string, prefix string) error
}

// KVStore writes subdomain mappings to Cloudflare Workers KV. The edge
// proxy resolves a visitor's subdomain to its storage prefix through this
// namespace.
type KVStore struct {
	httpClient  *http.Client
	baseUrl     string
	email       string
	apiKey      string
	accountId   string
	namespaceId string
}

func NewKVStore(accountId string, namespaceId string, email string, apiKey string) *KVStore {
	return &KVStore{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		baseUrl:     "https://api.cloudflare.com",
		email:       email,
		apiKey:      apiKey,
		accountId:   accountId,
		namespaceId: namespaceId,
	}
}

// SetBaseUrl points the store at a different API host; tests use httptest.
func (kv *KVStore) SetBaseUrl(baseUrl string) {
	kv.baseUrl = baseUrl
}

func (kv *KVStore) Publish(ctx context.Context, subdomain string, prefix string) error {
	if kv.email == "" || kv.apiKey == "" {
		return fmt.Errorf("missing Cloudflare credentials")
	}

	url := fmt.Sprintf("%s/client/v4/accounts/%s/storage/kv/namespaces/%s/values/%s",
		kv.baseUrl, kv.accountId, kv.namespaceId, subdomain)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, strings.NewReader(prefix))
	if err != nil {
		return fmt.Errorf("failed to build KV request: %v", err)
	}
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("X-Auth-Email", kv.email)
	req.Header.Set("X-Auth-Key", kv.apiKey)

	resp, err := kv.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to set KV mapping: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to set KV mapping: %v", string(body))
	}
	return nil
}

// Subdomain derives the public subdomain for a repository.
func Subdomain(owner string, repo string) string {
	return strings.ToLower(owner) + "-" + strings.ToLower(repo)
}
