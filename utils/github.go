package utils

import (
	"fmt"
	"net/http"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v55/github"
)

// GetGithubAppClient builds a client authenticated as a GitHub App
// installation, used on webhook-driven paths where no user token is in
// hand.
func GetGithubAppClient(appId int64, installationId int64, privateKey string) (*github.Client, error) {
	itr, err := ghinstallation.New(http.DefaultTransport, appId, installationId, []byte(privateKey))
	if err != nil {
		return nil, fmt.Errorf("error initialising installation: %v", err)
	}
	return github.NewClient(&http.Client{Transport: itr}), nil
}
