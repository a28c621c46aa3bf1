package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/google/go-github/v55/github"
	"github.com/migueleliasweb/go-github-mock/src/mock"
	"github.com/stretchr/testify/assert"
)

func newTestGithubService(mockedHTTPClient *http.Client) *GithubService {
	service := NewGithubService("client-id", "client-secret", "http://localhost:8080")
	service.SetClientBuilder(func(token string) *github.Client {
		return github.NewClient(mockedHTTPClient)
	})
	service.DiscoveryDelay = 0
	return service
}

func TestVerifyAccessWithPushPermission(t *testing.T) {
	mockedHTTPClient := mock.NewMockedHTTPClient(
		mock.WithRequestMatch(
			mock.GetReposByOwnerByRepo,
			github.Repository{
				Name:        github.String("site"),
				Permissions: map[string]bool{"pull": true, "push": true},
			},
		),
	)
	service := newTestGithubService(mockedHTTPClient)

	result, err := service.VerifyAccess(context.Background(), "token", "octocat", "site")
	assert.NoError(t, err)
	assert.True(t, result.Ok)
}

func TestVerifyAccessWithoutPushPermission(t *testing.T) {
	mockedHTTPClient := mock.NewMockedHTTPClient(
		mock.WithRequestMatch(
			mock.GetReposByOwnerByRepo,
			github.Repository{
				Name:        github.String("site"),
				Permissions: map[string]bool{"pull": true},
			},
		),
	)
	service := newTestGithubService(mockedHTTPClient)

	result, err := service.VerifyAccess(context.Background(), "token", "octocat", "site")
	assert.NoError(t, err)
	assert.False(t, result.Ok)
	assert.Equal(t, "No push permission to repository", result.Reason)
}

func TestVerifyAccessWithMissingRepository(t *testing.T) {
	mockedHTTPClient := mock.NewMockedHTTPClient(
		mock.WithRequestMatchHandler(
			mock.GetReposByOwnerByRepo,
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				mock.WriteError(w, http.StatusNotFound, "Not Found")
			}),
		),
	)
	service := newTestGithubService(mockedHTTPClient)

	result, err := service.VerifyAccess(context.Background(), "token", "octocat", "gone")
	assert.NoError(t, err)
	assert.False(t, result.Ok)
	assert.Equal(t, "Repository not found or no access", result.Reason)
}

func TestInjectSecretSealsAgainstRepoPublicKey(t *testing.T) {
	publicKey := make([]byte, 32)
	publicKey[31] = 1

	var uploaded *github.EncryptedSecret
	mockedHTTPClient := mock.NewMockedHTTPClient(
		mock.WithRequestMatch(
			mock.GetReposActionsSecretsPublicKeyByOwnerByRepo,
			github.PublicKey{
				KeyID: github.String("key-1"),
				Key:   github.String(base64.StdEncoding.EncodeToString(publicKey)),
			},
		),
		mock.WithRequestMatchHandler(
			mock.PutReposActionsSecretsByOwnerByRepoBySecretName,
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var secret github.EncryptedSecret
				if err := json.NewDecoder(r.Body).Decode(&secret); err == nil {
					uploaded = &secret
				}
				w.WriteHeader(http.StatusCreated)
			}),
		),
	)
	service := newTestGithubService(mockedHTTPClient)

	err := service.InjectSecret(context.Background(), "token", "octocat", "site", "ENV_ACCESS_TOKEN", "plaintext")
	assert.NoError(t, err)
	assert.NotNil(t, uploaded)
	assert.Equal(t, "key-1", uploaded.KeyID)

	sealed, err := base64.StdEncoding.DecodeString(uploaded.EncryptedValue)
	assert.NoError(t, err)
	// anonymous sealed box: 32-byte ephemeral key + 16-byte overhead
	assert.Equal(t, 32+16+len("plaintext"), len(sealed))
}

func TestInjectSecretRejectsMalformedPublicKey(t *testing.T) {
	mockedHTTPClient := mock.NewMockedHTTPClient(
		mock.WithRequestMatch(
			mock.GetReposActionsSecretsPublicKeyByOwnerByRepo,
			github.PublicKey{
				KeyID: github.String("key-1"),
				Key:   github.String(base64.StdEncoding.EncodeToString([]byte("short"))),
			},
		),
	)
	service := newTestGithubService(mockedHTTPClient)

	err := service.InjectSecret(context.Background(), "token", "octocat", "site", "ENV_ACCESS_TOKEN", "plaintext")
	assert.Error(t, err)
}

func TestFindWorkflowIDRetriesUntilListed(t *testing.T) {
	mockedHTTPClient := mock.NewMockedHTTPClient(
		mock.WithRequestMatch(
			mock.GetReposActionsWorkflowsByOwnerByRepo,
			github.Workflows{TotalCount: github.Int(0)},
			github.Workflows{
				TotalCount: github.Int(1),
				Workflows: []*github.Workflow{
					{ID: github.Int64(777), Path: github.String(WorkflowPath)},
				},
			},
		),
	)
	service := newTestGithubService(mockedHTTPClient)

	workflowId, err := service.FindWorkflowID(context.Background(), "token", "octocat", "site", WorkflowPath)
	assert.NoError(t, err)
	assert.Equal(t, int64(777), workflowId)
}

func TestFindWorkflowIDTimesOut(t *testing.T) {
	mockedHTTPClient := mock.NewMockedHTTPClient(
		mock.WithRequestMatch(
			mock.GetReposActionsWorkflowsByOwnerByRepo,
			github.Workflows{TotalCount: github.Int(0)},
		),
	)
	service := newTestGithubService(mockedHTTPClient)
	service.DiscoveryAttempts = 3

	_, err := service.FindWorkflowID(context.Background(), "token", "octocat", "site", WorkflowPath)
	assert.ErrorIs(t, err, ErrWorkflowDiscoveryTimeout)
}

func TestLatestRunWithNoRunsReturnsNil(t *testing.T) {
	mockedHTTPClient := mock.NewMockedHTTPClient(
		mock.WithRequestMatch(
			mock.GetReposActionsWorkflowsRunsByOwnerByRepoByWorkflowId,
			github.WorkflowRuns{TotalCount: github.Int(0)},
		),
	)
	service := newTestGithubService(mockedHTTPClient)

	run, err := service.LatestRun(context.Background(), "token", "octocat", "site", 777)
	assert.NoError(t, err)
	assert.Nil(t, run)
}
