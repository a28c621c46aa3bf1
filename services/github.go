package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/go-github/v55/github"
	"golang.org/x/crypto/nacl/box"
	"golang.org/x/oauth2"
	githuboauth "golang.org/x/oauth2/github"
	"golang.org/x/time/rate"
)

// ErrWorkflowDiscoveryTimeout is returned when GitHub does not list the
// injected workflow within the discovery budget. Workflow listing lags file
// creation by an unspecified settling time.
var ErrWorkflowDiscoveryTimeout = errors.New("could not get workflow id after multiple attempts")

// GithubService wraps every GitHub REST call the pipeline makes. Calls go
// through a process-wide limiter since GitHub rate-limits per token and the
// polling loops are chatty.
type GithubService struct {
	limiter   *rate.Limiter
	clientFor func(token string) *github.Client
	oauth     *oauth2.Config

	// Workflow-id discovery budget; the defaults are empirical and
	// overridden in tests.
	DiscoveryAttempts int
	DiscoveryDelay    time.Duration
}

func NewGithubService(clientId string, clientSecret string, backendUrl string) *GithubService {
	return &GithubService{
		limiter: rate.NewLimiter(rate.Limit(5), 10),
		clientFor: func(token string) *github.Client {
			ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
			return github.NewClient(oauth2.NewClient(context.Background(), ts))
		},
		oauth: &oauth2.Config{
			ClientID:     clientId,
			ClientSecret: clientSecret,
			Endpoint:     githuboauth.Endpoint,
			RedirectURL:  backendUrl + "/api/auth/github/callback",
			Scopes:       []string{"repo", "user:email", "workflow"},
		},
		DiscoveryAttempts: 5,
		DiscoveryDelay:    3 * time.Second,
	}
}

func (s *GithubService) wait(ctx context.Context) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %v", err)
	}
	return nil
}

// AuthCodeURL builds the GitHub OAuth consent URL for the given state.
func (s *GithubService) AuthCodeURL(state string) string {
	return s.oauth.AuthCodeURL(state)
}

// ExchangeCode swaps an OAuth authorization code for a user access token.
func (s *GithubService) ExchangeCode(ctx context.Context, code string) (string, error) {
	token, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("failed to get GitHub access token: %v", err)
	}
	return token.AccessToken, nil
}

// FetchUser returns the authenticated user and their primary email.
func (s *GithubService) FetchUser(ctx context.Context, token string) (*github.User, string, error) {
	if err := s.wait(ctx); err != nil {
		return nil, "", err
	}
	client := s.clientFor(token)
	user, _, err := client.Users.Get(ctx, "")
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch GitHub user: %v", err)
	}
	emails, _, err := client.Users.ListEmails(ctx, &github.ListOptions{PerPage: 50})
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch GitHub user emails: %v", err)
	}
	var primary string
	for _, email := range emails {
		if email.GetPrimary() {
			primary = email.GetEmail()
			break
		}
	}
	return user, primary, nil
}

// AccessResult is the outcome of a repository access check.
type AccessResult struct {
	Ok     bool
	Reason string
}

// VerifyAccess confirms the token can push to owner/repo. It must run
// before any mutating call so an inaccessible repository fails fast with no
// partial side effects.
func (s *GithubService) VerifyAccess(ctx context.Context, token string, owner string, repo string) (AccessResult, error) {
	if err := s.wait(ctx); err != nil {
		return AccessResult{}, err
	}
	repository, resp, err := s.clientFor(token).Repositories.Get(ctx, owner, repo)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden) {
			return AccessResult{Ok: false, Reason: "Repository not found or no access"}, nil
		}
		return AccessResult{}, fmt.Errorf("failed to fetch repository %v/%v: %v", owner, repo, err)
	}
	if !repository.GetPermissions()["push"] {
		return AccessResult{Ok: false, Reason: "No push permission to repository"}, nil
	}
	return AccessResult{Ok: true}, nil
}

// InjectSecret seals plaintext against the repository's Actions public key
// and uploads it. A pipeline without this secret cannot call back into the
// backend, so any failure here is fatal to provisioning.
func (s *GithubService) InjectSecret(ctx context.Context, token string, owner string, repo string, name string, plaintext string) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	client := s.clientFor(token)
	publicKey, _, err := client.Actions.GetRepoPublicKey(ctx, owner, repo)
	if err != nil {
		return fmt.Errorf("failed to get public key for %v/%v: %v", owner, repo, err)
	}

	keyBytes, err := base64.StdEncoding.DecodeString(publicKey.GetKey())
	if err != nil {
		return fmt.Errorf("failed to decode public key for %v/%v: %v", owner, repo, err)
	}
	if len(keyBytes) != 32 {
		return fmt.Errorf("unexpected public key length %v for %v/%v", len(keyBytes), owner, repo)
	}
	var recipient [32]byte
	copy(recipient[:], keyBytes)

	sealed, err := box.SealAnonymous(nil, []byte(plaintext), &recipient, rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to seal secret for %v/%v: %v", owner, repo, err)
	}

	secret := &github.EncryptedSecret{
		Name:           name,
		KeyID:          publicKey.GetKeyID(),
		EncryptedValue: base64.StdEncoding.EncodeToString(sealed),
	}
	if _, err := client.Actions.CreateOrUpdateRepoSecret(ctx, owner, repo, secret); err != nil {
		return fmt.Errorf("failed to set secret on %v/%v: %v", owner, repo, err)
	}
	return nil
}

// CreateOrUpdateFile writes a file via the contents API with the
// read-before-write pattern: an existing file is updated with its current
// sha, a missing one is created without.
func (s *GithubService) CreateOrUpdateFile(ctx context.Context, token string, owner string, repo string, path string, content string, message string) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	client := s.clientFor(token)

	options := &github.RepositoryContentFileOptions{
		Message: github.String(message),
		Content: []byte(content),
	}

	existing, _, resp, err := client.Repositories.GetContents(ctx, owner, repo, path, &github.RepositoryContentGetOptions{})
	if err != nil {
		if resp == nil || resp.StatusCode != http.StatusNotFound {
			return fmt.Errorf("failed to read %v in %v/%v: %v", path, owner, repo, err)
		}
		if _, _, err := client.Repositories.CreateFile(ctx, owner, repo, path, options); err != nil {
			return fmt.Errorf("failed to create %v in %v/%v: %v", path, owner, repo, err)
		}
		return nil
	}

	options.SHA = github.String(existing.GetSHA())
	if _, _, err := client.Repositories.UpdateFile(ctx, owner, repo, path, options); err != nil {
		return fmt.Errorf("failed to update %v in %v/%v: %v", path, owner, repo, err)
	}
	return nil
}

// FindWorkflowID polls the workflow list until the workflow at path shows
// up. GitHub needs a bounded settling time after file creation before the
// workflow is listed.
func (s *GithubService) FindWorkflowID(ctx context.Context, token string, owner string, repo string, path string) (int64, error) {
	client := s.clientFor(token)
	for attempt := 0; attempt < s.DiscoveryAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(s.DiscoveryDelay)
		}
		if err := s.wait(ctx); err != nil {
			return 0, err
		}
		workflows, _, err := client.Actions.ListWorkflows(ctx, owner, repo, &github.ListOptions{PerPage: 100})
		if err != nil {
			log.Printf("Error listing workflows for %v/%v: %v", owner, repo, err)
			continue
		}
		for _, workflow := range workflows.Workflows {
			if workflow.GetPath() == path {
				return workflow.GetID(), nil
			}
		}
	}
	return 0, ErrWorkflowDiscoveryTimeout
}

// DispatchWorkflow triggers a run of the workflow on ref, defaulting to
// main. No retry: a failed dispatch surfaces to the caller.
func (s *GithubService) DispatchWorkflow(ctx context.Context, token string, owner string, repo string, workflowId int64, ref string) error {
	if ref == "" {
		ref = "main"
	}
	if err := s.wait(ctx); err != nil {
		return err
	}
	event := github.CreateWorkflowDispatchEventRequest{Ref: ref}
	_, err := s.clientFor(token).Actions.CreateWorkflowDispatchEventByID(ctx, owner, repo, workflowId, event)
	if err != nil {
		return fmt.Errorf("failed to trigger deployment: %v", err)
	}
	return nil
}

// LatestRun returns the most recent run of the workflow, or nil when none
// exist yet.
func (s *GithubService) LatestRun(ctx context.Context, token string, owner string, repo string, workflowId int64) (*github.WorkflowRun, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	runs, _, err := s.clientFor(token).Actions.ListWorkflowRunsByID(ctx, owner, repo, workflowId,
		&github.ListWorkflowRunsOptions{ListOptions: github.ListOptions{PerPage: 1}})
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow runs for %v/%v: %v", owner, repo, err)
	}
	if len(runs.WorkflowRuns) == 0 {
		return nil, nil
	}
	return runs.WorkflowRuns[0], nil
}

// GetRun fetches one workflow run by id.
func (s *GithubService) GetRun(ctx context.Context, token string, owner string, repo string, runId int64) (*github.WorkflowRun, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	run, _, err := s.clientFor(token).Actions.GetWorkflowRunByID(ctx, owner, repo, runId)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch workflow run %v for %v/%v: %v", runId, owner, repo, err)
	}
	return run, nil
}

// ListCommits returns the repository's recent commits.
func (s *GithubService) ListCommits(ctx context.Context, token string, owner string, repo string, perPage int) ([]*github.RepositoryCommit, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	commits, _, err := s.clientFor(token).Repositories.ListCommits(ctx, owner, repo,
		&github.CommitsListOptions{ListOptions: github.ListOptions{PerPage: perPage}})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch commits for %v/%v: %v", owner, repo, err)
	}
	return commits, nil
}

// ListUserRepos returns the repositories the token can see.
func (s *GithubService) ListUserRepos(ctx context.Context, token string) ([]*github.Repository, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	repos, _, err := s.clientFor(token).Repositories.List(ctx, "", &github.RepositoryListOptions{
		Sort:        "updated",
		ListOptions: github.ListOptions{PerPage: 100},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch repositories from GitHub: %v", err)
	}
	return repos, nil
}

// SetClientBuilder swaps the client factory; tests point it at a mocked
// HTTP client.
func (s *GithubService) SetClientBuilder(build func(token string) *github.Client) {
	s.clientFor = build
}
