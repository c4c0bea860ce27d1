// Package github fetches workflow runs and jobs from the GitHub Actions API
// and exposes them as a buildtrace.Source.
package github

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the prefix of the variables the Actions runner sets.
const EnvPrefix = "GITHUB"

// Settings is the run context GitHub Actions exposes to every step.
type Settings struct {
	Repository string `envconfig:"REPOSITORY"`
	RunID      string `envconfig:"RUN_ID"`
	RunAttempt string `envconfig:"RUN_ATTEMPT" default:"1"`
	ServerURL  string `envconfig:"SERVER_URL" default:"https://github.com"`
	APIURL     string `envconfig:"API_URL" default:"https://api.github.com"`
	Actor      string `envconfig:"ACTOR"`
	SHA        string `envconfig:"SHA"`
	Workflow   string `envconfig:"WORKFLOW"`
	RefName    string `envconfig:"REF_NAME"`
	Output     string `envconfig:"OUTPUT"`
}

// LoadSettings reads the GITHUB_* environment variables.
func LoadSettings() (*Settings, error) {
	var s Settings
	if err := envconfig.Process(EnvPrefix, &s); err != nil {
		return nil, fmt.Errorf("failed to load github settings: %w", err)
	}
	return &s, nil
}

// RunURL returns the web URL of the current run, or "" when the run is
// unknown.
func (s *Settings) RunURL() string {
	return s.RunURLFor(s.RunID)
}

// RunURLFor returns the web URL of runID in the current repository.
func (s *Settings) RunURLFor(runID string) string {
	if s.Repository == "" || runID == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s/actions/runs/%s", strings.TrimRight(s.ServerURL, "/"), s.Repository, runID)
}

// InActions reports whether the process runs inside a GitHub Actions job.
func (s *Settings) InActions() bool {
	return s.Repository != "" && s.RunID != ""
}
