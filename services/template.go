package services

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"
)

//go:embed deploy.yml
var workflowTemplate string

// WorkflowPath is where the rendered pipeline definition lands in the
// target repository.
const WorkflowPath = ".github/workflows/deploy.yml"

// reservedTemplateTokens are GitHub Actions' own expressions that share the
// {{...}} syntax and must survive rendering untouched.
var reservedTemplateTokens = map[string]bool{
	"env.NODE_VERSION":         true,
	"secrets.ENV_ACCESS_TOKEN": true,
	"env.CI":                   true,
}

var templateTokenPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// TemplateIncompleteError reports placeholder tokens left unresolved after
// rendering. A workflow file shipped with one of these would fail in the
// user's CI, so rendering is aborted instead.
type TemplateIncompleteError struct {
	Tokens []string
}

func (e *TemplateIncompleteError) Error() string {
	return fmt.Sprintf("unresolved template tokens: %v", strings.Join(e.Tokens, ", "))
}

// WorkflowVariables is the fixed set of tokens the deploy template accepts.
type WorkflowVariables struct {
	BackendUrl   string
	ProjectSlug  string
	OwnerLogin   string
	RepoName     string
	UserEmail    string
	GithubId     int64
	RepoId       int64
	BuildCommand string
	OutputFolder string
}

// RenderWorkflow substitutes the recognized tokens into the deploy template
// and verifies nothing unresolved remains.
func RenderWorkflow(vars WorkflowVariables) (string, error) {
	values := map[string]string{
		"{{BACKEND_URL}}":   vars.BackendUrl,
		"{{PROJECT_SLUG}}":  vars.ProjectSlug,
		"{{OWNER_LOGIN}}":   vars.OwnerLogin,
		"{{REPO_NAME}}":     vars.RepoName,
		"{{USER_EMAIL}}":    vars.UserEmail,
		"{{GITHUB_ID}}":     fmt.Sprintf("%d", vars.GithubId),
		"{{REPO_ID}}":       fmt.Sprintf("%d", vars.RepoId),
		"{{BUILD_COMMAND}}": vars.BuildCommand,
		"{{BUILD_DIR}}":     vars.OutputFolder,
	}
	// An empty value leaves its token in place so the integrity check below
	// catches it, rather than shipping a workflow with a silent blank.
	var pairs []string
	for token, value := range values {
		if value != "" && value != "0" {
			pairs = append(pairs, token, value)
		}
	}
	content := strings.NewReplacer(pairs...).Replace(workflowTemplate)

	var unresolved []string
	for _, match := range templateTokenPattern.FindAllStringSubmatch(content, -1) {
		token := strings.TrimSpace(match[1])
		if !reservedTemplateTokens[token] {
			unresolved = append(unresolved, match[0])
		}
	}
	if len(unresolved) > 0 {
		return "", &TemplateIncompleteError{Tokens: unresolved}
	}
	return content, nil
}
