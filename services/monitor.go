package services

import (
	"context"
	"log"
	"time"

	"github.com/google/go-github/v55/github"

	"github.com/Vijay-papanaboina/Frontbase-Backend/models"
)

// Monitor watches workflow runs until they reach a terminal state and
// reconciles the deployment record store with what GitHub reports.
type Monitor struct {
	Github *GithubService
	DB     *models.Database

	// Polling budget, ~100s by default.
	Attempts int
	Delay    time.Duration
}

func NewMonitor(githubService *GithubService, db *models.Database) *Monitor {
	return &Monitor{
		Github:   githubService,
		DB:       db,
		Attempts: 20,
		Delay:    5 * time.Second,
	}
}

// AwaitCompletion polls the workflow's most recent run until it completes.
// A nil run with nil error means the budget ran out before a terminal state
// was observed: the deployment outcome is indeterminate, not failed.
// Transient fetch errors are swallowed and spend an attempt.
func (m *Monitor) AwaitCompletion(ctx context.Context, token string, owner string, repo string, workflowId int64) (*github.WorkflowRun, error) {
	for attempt := 0; attempt < m.Attempts; attempt++ {
		if attempt > 0 {
			time.Sleep(m.Delay)
		}
		run, err := m.Github.LatestRun(ctx, token, owner, repo, workflowId)
		if err != nil {
			log.Printf("Error checking workflow status for %v/%v: %v", owner, repo, err)
			continue
		}
		if run != nil && run.GetStatus() == models.RunStatusCompleted {
			return run, nil
		}
	}
	return nil, nil
}

// RefreshStatus is the synchronous status-refresh path invoked on client
// polls: when the stored deployment is non-terminal, the specific run is
// re-fetched and the record updated only if something actually changed.
func (m *Monitor) RefreshStatus(ctx context.Context, token string, repo *models.Repository, deployment *models.Deployment) (*models.Deployment, error) {
	if deployment.Terminal() {
		return deployment, nil
	}

	run, err := m.Github.GetRun(ctx, token, repo.OwnerLogin, repo.RepoName, deployment.WorkflowRunId)
	if err != nil {
		return nil, err
	}
	if run.GetStatus() == deployment.Status && run.GetConclusion() == deployment.Conclusion {
		return deployment, nil
	}
	return m.DB.UpdateDeploymentStatus(repo.RepoId, run.GetStatus(), run.GetConclusion())
}

// RecordRun folds a workflow run into the deployment store, keyed by
// repository so only the latest run survives.
func (m *Monitor) RecordRun(repoId int64, run *github.WorkflowRun, projectUrl string) error {
	startedAt := run.GetCreatedAt().Time
	completedAt := run.GetUpdatedAt().Time
	return m.DB.UpsertDeployment(&models.Deployment{
		RepoId:        repoId,
		WorkflowRunId: run.GetID(),
		Status:        run.GetStatus(),
		Conclusion:    run.GetConclusion(),
		StartedAt:     &startedAt,
		CompletedAt:   &completedAt,
		HtmlUrl:       run.GetHTMLURL(),
		ProjectUrl:    projectUrl,
	})
}
