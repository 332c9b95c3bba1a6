package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bradleyfalzon/ghinstallation/v2"
)

// ErrAppNotInstalled indicates the GitHub App has no installation on the
// target repository. This is a fatal misconfiguration, not a transient
// failure.
var ErrAppNotInstalled = errors.New("github app is not installed on repository")

// CredentialManager exchanges the App's private key for short-lived
// installation access tokens. The installation is always resolved through
// the repository-scoped endpoint, never by listing installations: when an
// App is installed on several organizations, the list endpoint's ordering
// says nothing about which installation governs a given repository.
type CredentialManager struct {
	appClient *http.Client
	baseURL   string
}

// NewCredentialManager creates a credential manager for a GitHub App.
// privateKey is the App's PEM-encoded RSA key. An unparsable key is a
// fatal misconfiguration and fails here, at construction.
func NewCredentialManager(appID int64, privateKey []byte) (*CredentialManager, error) {
	transport, err := ghinstallation.NewAppsTransport(http.DefaultTransport, appID, privateKey)
	if err != nil {
		return nil, fmt.Errorf("invalid app credentials: %w", err)
	}
	return &CredentialManager{
		appClient: &http.Client{Transport: transport, Timeout: 30 * time.Second},
		baseURL:   defaultBaseURL,
	}, nil
}

// SetBaseURL points the manager at a non-default API endpoint.
func (m *CredentialManager) SetBaseURL(baseURL string) {
	m.baseURL = baseURL
}

// GetInstallationToken resolves the installation bound to repoSlug
// ("owner/repo") and exchanges it for a ~1-hour installation token.
// The token is returned to the caller and threaded through a single run;
// it is never cached here.
func (m *CredentialManager) GetInstallationToken(ctx context.Context, repoSlug string) (*InstallationToken, error) {
	if !strings.Contains(repoSlug, "/") {
		return nil, fmt.Errorf("invalid repo slug %q: want owner/repo", repoSlug)
	}

	installationID, err := m.resolveInstallation(ctx, repoSlug)
	if err != nil {
		return nil, err
	}

	return m.exchangeToken(ctx, installationID)
}

// resolveInstallation looks up the installation for a specific repository
// using the App JWT.
func (m *CredentialManager) resolveInstallation(ctx context.Context, repoSlug string) (int64, error) {
	url := fmt.Sprintf("%s/repos/%s/installation", m.baseURL, repoSlug)

	resp, err := sendWithRetry(ctx, m.appClient, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/vnd.github+json")
		req.Header.Set("X-GitHub-Api-Version", apiVersion)
		return req, nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to resolve installation for %s: %w", repoSlug, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, fmt.Errorf("%w: %s", ErrAppNotInstalled, repoSlug)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("failed to resolve installation for %s: status %d, body: %s", repoSlug, resp.StatusCode, string(body))
	}

	var installation Installation
	if err := json.NewDecoder(resp.Body).Decode(&installation); err != nil {
		return 0, fmt.Errorf("failed to decode installation: %w", err)
	}

	if installation.ID == 0 {
		return 0, fmt.Errorf("installation response for %s has no id", repoSlug)
	}

	return installation.ID, nil
}

// exchangeToken trades an installation id for an access token.
func (m *CredentialManager) exchangeToken(ctx context.Context, installationID int64) (*InstallationToken, error) {
	url := fmt.Sprintf("%s/app/installations/%d/access_tokens", m.baseURL, installationID)

	resp, err := sendWithRetry(ctx, m.appClient, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/vnd.github+json")
		req.Header.Set("X-GitHub-Api-Version", apiVersion)
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create installation token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("failed to create installation token: status %d, body: %s", resp.StatusCode, string(body))
	}

	var token InstallationToken
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("failed to decode installation token: %w", err)
	}

	if token.Value == "" {
		return nil, errors.New("installation token response has no token")
	}

	return &token, nil
}
