// Package auth provides GitHub authentication token management.
// Tokens come from explicit configuration, the GitHub CLI, or the environment,
// and are exposed to HTTP clients as an oauth2 token source.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/oauth2"
)

// TokenProvider defines the interface for obtaining a GitHub authentication token.
// Implementations may use different sources (CLI tools, environment variables, etc).
type TokenProvider interface {
	GetToken() (string, error)
}

// StaticProvider returns a token supplied through configuration or flags.
type StaticProvider struct {
	Token string
}

// GetToken returns the configured token, or an error if it is empty.
func (s *StaticProvider) GetToken() (string, error) {
	token := strings.TrimSpace(s.Token)
	if token == "" {
		return "", errors.New("no token configured")
	}
	return token, nil
}

// GhCliProvider obtains tokens by shelling out to the GitHub CLI (`gh auth token`).
// This respects the user's gh CLI authentication state.
type GhCliProvider struct {
	Hostname string // Defaults to github.com
}

// GetToken shells out to `gh auth token` to retrieve the current token.
// Returns an error if gh CLI is not installed, not authenticated, or the command fails.
func (g *GhCliProvider) GetToken() (string, error) {
	host := g.Hostname
	if host == "" {
		host = "github.com"
	}
	cmd := exec.Command("gh", "auth", "token", "--hostname", host)
	output, err := cmd.Output()
	if err != nil {
		// Check if it's an exec error (gh not found)
		var execErr *exec.Error
		if errors.As(err, &execErr) && errors.Is(execErr.Err, exec.ErrNotFound) {
			return "", errors.New("gh CLI not found in PATH")
		}
		return "", fmt.Errorf("gh auth token failed: %w", err)
	}

	token := strings.TrimSpace(string(output))
	if token == "" {
		return "", errors.New("gh auth token returned empty token")
	}

	return token, nil
}

// EnvProvider obtains tokens from the GITHUB_TOKEN environment variable.
type EnvProvider struct{}

// GetToken reads the GITHUB_TOKEN environment variable.
// Returns an error if the variable is not set or is empty.
func (e *EnvProvider) GetToken() (string, error) {
	token := os.Getenv("GITHUB_TOKEN")
	if token == "" {
		return "", errors.New("GITHUB_TOKEN environment variable not set or empty")
	}
	return token, nil
}

// Chain tries each provider in order and returns the first token found.
type Chain []TokenProvider

// GetToken returns the first successful token. When every provider fails the
// error lists each failure.
func (c Chain) GetToken() (string, error) {
	var errs []error
	for _, p := range c {
		token, err := p.GetToken()
		if err == nil {
			return token, nil
		}
		errs = append(errs, err)
	}
	return "", fmt.Errorf(
		"failed to obtain GitHub token (%w).\n"+
			"Please either:\n"+
			"  1. Run 'gh auth login' to authenticate with GitHub CLI, or\n"+
			"  2. Set the GITHUB_TOKEN environment variable with a personal access token",
		errors.Join(errs...),
	)
}

// GetToken attempts to obtain a GitHub token using the following strategy:
// 1. Use the configured token when non-empty
// 2. Try gh CLI
// 3. Fall back to GITHUB_TOKEN environment variable
func GetToken(configured string) (string, error) {
	providers := Chain{&GhCliProvider{}, &EnvProvider{}}
	if strings.TrimSpace(configured) != "" {
		providers = append(Chain{&StaticProvider{Token: configured}}, providers...)
	}
	return providers.GetToken()
}

// TokenSource wraps a token as a reusable oauth2 token source.
func TokenSource(token string) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
}

// NewHTTPClient returns an HTTP client that authenticates every request with
// ts. base is the underlying transport; nil uses http.DefaultTransport.
func NewHTTPClient(ts oauth2.TokenSource, base http.RoundTripper) *http.Client {
	return &http.Client{
		Transport: &oauth2.Transport{Source: ts, Base: base},
	}
}
