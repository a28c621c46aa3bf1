package services

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func fullWorkflowVariables() WorkflowVariables {
	return WorkflowVariables{
		BackendUrl:   "https://api.frontbase.space",
		ProjectSlug:  "octocat-site",
		OwnerLogin:   "octocat",
		RepoName:     "site",
		UserEmail:    "octocat@example.com",
		GithubId:     42,
		RepoId:       100,
		BuildCommand: "npm run build",
		OutputFolder: "dist",
	}
}

func TestRenderWorkflowResolvesEveryToken(t *testing.T) {
	content, err := RenderWorkflow(fullWorkflowVariables())
	assert.NoError(t, err)

	assert.NotContains(t, content, "{{BACKEND_URL}}")
	assert.NotContains(t, content, "{{PROJECT_SLUG}}")
	assert.NotContains(t, content, "{{BUILD_DIR}}")
	assert.Contains(t, content, "https://api.frontbase.space/api/repositories/100/env")
	assert.Contains(t, content, "npm run build")
	assert.Contains(t, content, "projectSlug=octocat-site")
}

func TestRenderWorkflowKeepsGithubActionsExpressions(t *testing.T) {
	content, err := RenderWorkflow(fullWorkflowVariables())
	assert.NoError(t, err)

	// GitHub's own expressions share the placeholder syntax and must
	// survive rendering untouched
	assert.Contains(t, content, "${{env.NODE_VERSION}}")
	assert.Contains(t, content, "${{secrets.ENV_ACCESS_TOKEN}}")
	assert.Contains(t, content, "${{env.CI}}")
}

func TestRenderWorkflowRejectsMissingVariables(t *testing.T) {
	vars := fullWorkflowVariables()
	vars.BuildCommand = ""

	_, err := RenderWorkflow(vars)
	assert.Error(t, err)

	var incomplete *TemplateIncompleteError
	assert.True(t, errors.As(err, &incomplete))
	assert.Contains(t, incomplete.Tokens, "{{BUILD_COMMAND}}")
}

func TestRenderWorkflowRejectsZeroRepoId(t *testing.T) {
	vars := fullWorkflowVariables()
	vars.RepoId = 0

	_, err := RenderWorkflow(vars)
	var incomplete *TemplateIncompleteError
	assert.True(t, errors.As(err, &incomplete))
	assert.Contains(t, incomplete.Tokens, "{{REPO_ID}}")
}

func TestSubdomainIsLowercased(t *testing.T) {
	assert.Equal(t, "octocat-my-site", Subdomain("OctoCat", "My-Site"))
	assert.True(t, strings.HasPrefix(Subdomain("a", "b"), "a-"))
}
