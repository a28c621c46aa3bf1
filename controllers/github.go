package controllers

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	webhooks "github.com/go-playground/webhooks/v6/github"
	"gorm.io/gorm"

	"github.com/Vijay-papanaboina/Frontbase-Backend/models"
	"github.com/Vijay-papanaboina/Frontbase-Backend/utils"
)

// WebhookController handles GitHub App events: installation bookkeeping,
// plus workflow_run completions folded into the deployment store so status
// converges even when the polling monitor's budget ran out.
type WebhookController struct {
	DB            *models.Database
	WebhookSecret string
	AppId         int64
	AppPrivateKey string
}

func NewWebhookController(db *models.Database, webhookSecret string, appId int64, appPrivateKey string) *WebhookController {
	return &WebhookController{
		DB:            db,
		WebhookSecret: webhookSecret,
		AppId:         appId,
		AppPrivateKey: appPrivateKey,
	}
}

func (whc *WebhookController) GithubWebhook(c *gin.Context) {
	hook, err := webhooks.New(webhooks.Options.Secret(whc.WebhookSecret))
	if err != nil {
		c.String(http.StatusInternalServerError, "Failed to initialise webhook parser")
		return
	}

	payload, err := hook.Parse(c.Request, webhooks.InstallationEvent, webhooks.WorkflowRunEvent)
	if err != nil {
		if errors.Is(err, webhooks.ErrEventNotFound) {
			// event type we didn't subscribe to, fine
			c.JSON(http.StatusOK, "ok")
			return
		}
		log.Printf("Failed to parse GitHub event: %v", err)
		c.String(http.StatusInternalServerError, "Failed to parse GitHub event")
		return
	}

	switch event := payload.(type) {
	case webhooks.InstallationPayload:
		if err := whc.handleInstallationEvent(event); err != nil {
			log.Printf("Failed to handle installation event: %v", err)
			c.String(http.StatusInternalServerError, "Failed to handle installation event")
			return
		}
	case webhooks.WorkflowRunPayload:
		if err := whc.handleWorkflowRunEvent(event); err != nil {
			log.Printf("Failed to handle workflow_run event: %v", err)
			c.String(http.StatusInternalServerError, "Failed to handle workflow_run event")
			return
		}
	}

	c.JSON(http.StatusOK, "ok")
}

func (whc *WebhookController) handleInstallationEvent(event webhooks.InstallationPayload) error {
	installationId := event.Installation.ID
	switch event.Action {
	case "created":
		log.Printf("GitHub App installed by %v (installation %v)", event.Installation.Account.Login, installationId)
		return whc.DB.GithubAppInstallationAdded(installationId, int64(event.Installation.AppID),
			event.Installation.Account.Login, event.Installation.Account.ID)
	case "deleted":
		log.Printf("GitHub App installation %v removed", installationId)
		return whc.DB.GithubAppInstallationRemoved(installationId)
	}
	return nil
}

func (whc *WebhookController) handleWorkflowRunEvent(event webhooks.WorkflowRunPayload) error {
	if event.Action != "completed" {
		return nil
	}

	deployment, err := whc.DB.GetDeploymentByRunId(event.WorkflowRun.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// run we never recorded, the polling path owns creation
			return nil
		}
		return err
	}

	status := event.WorkflowRun.Status
	conclusion := event.WorkflowRun.Conclusion

	// When running as a GitHub App, re-fetch the run through the stored
	// installation for the repository owner so the recorded state is
	// authoritative rather than whatever the webhook delivery carried.
	if whc.AppId != 0 && whc.AppPrivateKey != "" {
		installation, instErr := whc.DB.GetActiveInstallation(event.Repository.Owner.Login)
		if instErr != nil {
			if !errors.Is(instErr, gorm.ErrRecordNotFound) {
				log.Printf("Failed to look up installation for %v: %v", event.Repository.Owner.Login, instErr)
			}
		} else if client, clientErr := utils.GetGithubAppClient(whc.AppId, installation.InstallationId, whc.AppPrivateKey); clientErr != nil {
			log.Printf("Failed to build App client for installation %v: %v", installation.InstallationId, clientErr)
		} else {
			run, _, runErr := client.Actions.GetWorkflowRunByID(context.Background(),
				event.Repository.Owner.Login, event.Repository.Name, event.WorkflowRun.ID)
			if runErr != nil {
				log.Printf("Failed to fetch run %v via App installation: %v", event.WorkflowRun.ID, runErr)
			} else {
				status = run.GetStatus()
				conclusion = run.GetConclusion()
			}
		}
	}

	if status == deployment.Status && conclusion == deployment.Conclusion {
		return nil
	}
	_, err = whc.DB.UpdateDeploymentStatus(deployment.RepoId, status, conclusion)
	return err
}
