package services

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/Vijay-papanaboina/Frontbase-Backend/metrics"
	"github.com/Vijay-papanaboina/Frontbase-Backend/models"
)

// DeployJob is one accepted artifact upload waiting to be published.
type DeployJob struct {
	ArchivePath string
	ProjectSlug string
	RepoId      int64
	OwnerLogin  string
	RepoName    string
	UserId      uuid.UUID
}

// DeployPipeline publishes an uploaded build: extract, upload to object
// storage, map the subdomain, then reconcile the workflow run outcome into
// the deployment store. It runs as a detached background task; the client
// observes progress through the status endpoint.
type DeployPipeline struct {
	DB           *models.Database
	Ingestor     *Ingestor
	Mapper       DomainMapper
	Monitor      *Monitor
	Metrics      *metrics.Collector
	PublicDomain string
}

// Run executes the pipeline for one job. Errors never escape: they are
// logged at the task boundary and reflected in the repository's deploy
// status. The pipeline token acquired by the upload handler is released on
// every exit path.
func (p *DeployPipeline) Run(job DeployJob) {
	ctx := context.Background()

	defer func() {
		if err := p.DB.ReleasePipeline(job.RepoId); err != nil {
			log.Printf("Failed to release pipeline for repo %v: %v", job.RepoId, err)
		}
	}()

	if err := p.deploy(ctx, job); err != nil {
		log.Printf("Error deploying %v/%v: %v", job.OwnerLogin, job.RepoName, err)
		p.Metrics.RecordDeployFinished("failure")
		if err := p.DB.SetDeployStatus(job.RepoId, models.DeployStatusFailed); err != nil {
			log.Printf("Failed to mark repo %v as failed: %v", job.RepoId, err)
		}
		return
	}
	p.Metrics.RecordDeployFinished("success")
}

func (p *DeployPipeline) deploy(ctx context.Context, job DeployJob) error {
	p.Metrics.RecordDeployStarted()

	if err := p.DB.SetDeployStatus(job.RepoId, models.DeployStatusDeploying); err != nil {
		return fmt.Errorf("status update: %v", err)
	}

	extractPath, distPath, err := p.Ingestor.Extract(job.ArchivePath, job.ProjectSlug)
	if err != nil {
		// Extract already cleaned up after itself.
		return err
	}
	defer p.Ingestor.Cleanup(job.ArchivePath, extractPath)

	uploaded, err := p.Ingestor.UploadDist(ctx, distPath, job.OwnerLogin, job.RepoName)
	if err != nil {
		return err
	}
	p.Metrics.RecordFilesUploaded(uploaded)
	log.Printf("Uploaded %v files for %v/%v", uploaded, job.OwnerLogin, job.RepoName)

	subdomain := Subdomain(job.OwnerLogin, job.RepoName)
	prefix := job.OwnerLogin + "/" + job.RepoName
	if err := p.Mapper.Publish(ctx, subdomain, prefix); err != nil {
		return err
	}

	projectUrl := fmt.Sprintf("https://%s.%s", subdomain, p.PublicDomain)
	if err := p.DB.SetProjectUrl(job.RepoId, projectUrl); err != nil {
		return fmt.Errorf("project url update: %v", err)
	}

	return p.reconcileRun(ctx, job, projectUrl)
}

// reconcileRun waits for the workflow run behind this upload to finish and
// records it. An indeterminate outcome (budget exhausted) is not an error;
// the status-refresh path will catch up on the next client poll.
func (p *DeployPipeline) reconcileRun(ctx context.Context, job DeployJob, projectUrl string) error {
	repo, err := p.DB.GetRepository(job.RepoId)
	if err != nil {
		return fmt.Errorf("repository lookup: %v", err)
	}
	if repo.DeployYmlWorkflowId == nil {
		return fmt.Errorf("repository %v has no workflow id", job.RepoId)
	}

	user, err := p.DB.GetUser(job.UserId)
	if err != nil {
		return fmt.Errorf("user lookup: %v", err)
	}

	run, err := p.Monitor.AwaitCompletion(ctx, user.AccessToken, repo.OwnerLogin, repo.RepoName, *repo.DeployYmlWorkflowId)
	if err != nil {
		return err
	}
	if run == nil {
		log.Printf("Workflow run for %v/%v still not terminal, leaving status to the refresh path", job.OwnerLogin, job.RepoName)
		return nil
	}
	return p.Monitor.RecordRun(job.RepoId, run, projectUrl)
}
