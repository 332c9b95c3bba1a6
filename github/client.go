package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultBaseURL = "https://api.github.com"

	// apiVersion is sent on every request per GitHub's versioning policy.
	apiVersion = "2022-11-28"

	// maxAttempts bounds retries for rate-limited or server-side failures.
	maxAttempts = 3

	// retryBaseDelay is the initial backoff delay (doubles each attempt).
	retryBaseDelay = 1 * time.Second
)

// Client is a typed GitHub REST client. Methods take the installation
// token explicitly; the client itself holds no credentials.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a new GitHub API client.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
	}
}

// NewClientWithBaseURL creates a client against a non-default API endpoint.
// Used for GitHub Enterprise and for tests.
func NewClientWithBaseURL(baseURL string) *Client {
	c := NewClient()
	c.baseURL = baseURL
	return c
}

// retryableStatus reports whether a response status is worth retrying.
// 403 and 429 indicate rate limiting; 5xx indicates transient server
// trouble. Everything else is treated as a definitive answer.
func retryableStatus(code int) bool {
	return code == http.StatusForbidden ||
		code == http.StatusTooManyRequests ||
		code >= 500
}

// sendWithRetry executes the request built by build, retrying rate-limit
// and server errors with exponential backoff. build is called once per
// attempt so request bodies are fresh.
func sendWithRetry(ctx context.Context, client *http.Client, build func() (*http.Request, error)) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := build()
		if err != nil {
			return nil, err
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if retryableStatus(resp.StatusCode) && attempt < maxAttempts-1 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			resp.Body.Close()
			lastErr = fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxAttempts, lastErr)
}

// newRequest builds an authenticated request with the standard headers.
func (c *Client) newRequest(ctx context.Context, method, url string, tok *InstallationToken, accept string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	if tok != nil {
		req.Header.Set("Authorization", "Bearer "+tok.Value)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// FetchDiff fetches the unified diff for a pull request. The diff is the
// source of truth for position mapping.
func (c *Client) FetchDiff(ctx context.Context, tok *InstallationToken, owner, repo string, prNumber int) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/pulls/%d", c.baseURL, owner, repo, prNumber)

	resp, err := sendWithRetry(ctx, c.httpClient, func() (*http.Request, error) {
		return c.newRequest(ctx, http.MethodGet, url, tok, "application/vnd.github.v3.diff", nil)
	})
	if err != nil {
		return "", fmt.Errorf("failed to fetch diff: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("failed to fetch diff: status %d, body: %s", resp.StatusCode, string(body))
	}

	diff, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read diff: %w", err)
	}

	return string(diff), nil
}

// GetPullRequest fetches a pull request by number.
func (c *Client) GetPullRequest(ctx context.Context, tok *InstallationToken, owner, repo string, prNumber int) (*PullRequest, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/pulls/%d", c.baseURL, owner, repo, prNumber)

	var pr PullRequest
	if err := c.getJSON(ctx, tok, url, &pr); err != nil {
		return nil, fmt.Errorf("failed to fetch pull request: %w", err)
	}
	return &pr, nil
}

// GetCombinedStatus fetches the combined commit status for a ref. The
// reviewer collaborator is handed this as CI context.
func (c *Client) GetCombinedStatus(ctx context.Context, tok *InstallationToken, owner, repo, ref string) (*CombinedStatus, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/commits/%s/status", c.baseURL, owner, repo, ref)

	var status CombinedStatus
	if err := c.getJSON(ctx, tok, url, &status); err != nil {
		return nil, fmt.Errorf("failed to fetch combined status: %w", err)
	}
	return &status, nil
}

// CreateReview submits a review on a pull request. The call is atomic:
// the summary and all inline comments land together or not at all.
func (c *Client) CreateReview(ctx context.Context, tok *InstallationToken, owner, repo string, prNumber int, review *ReviewRequest) (*Review, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/pulls/%d/reviews", c.baseURL, owner, repo, prNumber)

	body, err := json.Marshal(review)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal review: %w", err)
	}

	resp, err := sendWithRetry(ctx, c.httpClient, func() (*http.Request, error) {
		return c.newRequest(ctx, http.MethodPost, url, tok, "application/vnd.github+json", body)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create review: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("failed to create review: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	var created Review
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("failed to decode review response: %w", err)
	}

	return &created, nil
}

// FetchFileContent fetches the content of a file from a repository.
// Returns an empty string if the file does not exist.
func (c *Client) FetchFileContent(ctx context.Context, tok *InstallationToken, owner, repo, path, ref string) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/contents/%s?ref=%s", c.baseURL, owner, repo, path, ref)

	resp, err := sendWithRetry(ctx, c.httpClient, func() (*http.Request, error) {
		return c.newRequest(ctx, http.MethodGet, url, tok, "application/vnd.github+json", nil)
	})
	if err != nil {
		return "", fmt.Errorf("failed to fetch file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("failed to fetch file: status %d, body: %s", resp.StatusCode, string(body))
	}

	var content FileContent
	if err := json.NewDecoder(resp.Body).Decode(&content); err != nil {
		return "", fmt.Errorf("failed to decode file content: %w", err)
	}

	if content.Encoding != "base64" {
		return "", fmt.Errorf("unsupported encoding: %s", content.Encoding)
	}

	decoded, err := base64.StdEncoding.DecodeString(content.Content)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64 content: %w", err)
	}

	return string(decoded), nil
}

// getJSON performs an authenticated GET and decodes a JSON response.
func (c *Client) getJSON(ctx context.Context, tok *InstallationToken, url string, out any) error {
	resp, err := sendWithRetry(ctx, c.httpClient, func() (*http.Request, error) {
		return c.newRequest(ctx, http.MethodGet, url, tok, "application/vnd.github+json", nil)
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d, body: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
