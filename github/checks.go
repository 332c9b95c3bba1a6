package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Check-run lifecycle states and conclusions.
const (
	CheckStatusQueued     = "queued"
	CheckStatusInProgress = "in_progress"
	CheckStatusCompleted  = "completed"

	ConclusionSuccess = "success"
	ConclusionFailure = "failure"
	ConclusionNeutral = "neutral"
)

// CreateCheckRun creates a check run against a specific head commit.
func (c *Client) CreateCheckRun(ctx context.Context, tok *InstallationToken, owner, repo string, req *CheckRunRequest) (*CheckRun, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/check-runs", c.baseURL, owner, repo)
	return c.sendCheckRun(ctx, tok, http.MethodPost, url, req)
}

// UpdateCheckRun updates an existing check run.
func (c *Client) UpdateCheckRun(ctx context.Context, tok *InstallationToken, owner, repo string, checkRunID int64, req *CheckRunRequest) (*CheckRun, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/check-runs/%d", c.baseURL, owner, repo, checkRunID)
	return c.sendCheckRun(ctx, tok, http.MethodPatch, url, req)
}

func (c *Client) sendCheckRun(ctx context.Context, tok *InstallationToken, method, url string, req *CheckRunRequest) (*CheckRun, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal check run: %w", err)
	}

	resp, err := sendWithRetry(ctx, c.httpClient, func() (*http.Request, error) {
		return c.newRequest(ctx, method, url, tok, "application/vnd.github+json", body)
	})
	if err != nil {
		return nil, fmt.Errorf("check-run call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("check-run call failed: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	var run CheckRun
	if err := json.NewDecoder(resp.Body).Decode(&run); err != nil {
		return nil, fmt.Errorf("failed to decode check run: %w", err)
	}

	return &run, nil
}
