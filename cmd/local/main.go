// Command local runs a single review against an open pull request from
// the command line, without a webhook server. Useful for trying Stitch
// on a PR before installing the App webhook.
//
// Usage:
//
//	local -repo owner/name -pr 42
//
// Requires GITHUB_APP_ID, GITHUB_PRIVATE_KEY, and ANTHROPIC_API_KEY.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/stitchhq/stitch/config"
	"github.com/stitchhq/stitch/github"
	"github.com/stitchhq/stitch/review"
)

func main() {
	repoFlag := flag.String("repo", "", "repository in owner/name form")
	prFlag := flag.Int("pr", 0, "pull request number")
	modelFlag := flag.String("model", "", "reviewer model override")
	timeoutFlag := flag.Duration("timeout", 10*time.Minute, "overall run timeout")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if err := run(logger, *repoFlag, *prFlag, *modelFlag, *timeoutFlag); err != nil {
		logger.Error("run failed", "error", err, "fatal", review.IsFatal(err))
		os.Exit(1)
	}
}

func run(logger *slog.Logger, repoSlug string, prNumber int, model string, timeout time.Duration) error {
	owner, repo, ok := strings.Cut(repoSlug, "/")
	if !ok || owner == "" || repo == "" {
		return fmt.Errorf("-repo must be owner/name, got %q", repoSlug)
	}
	if prNumber <= 0 {
		return fmt.Errorf("-pr must be a positive pull request number")
	}

	appIDStr := os.Getenv("GITHUB_APP_ID")
	privateKey := os.Getenv("GITHUB_PRIVATE_KEY")
	anthropicKey := os.Getenv("ANTHROPIC_API_KEY")
	if appIDStr == "" || privateKey == "" || anthropicKey == "" {
		return fmt.Errorf("GITHUB_APP_ID, GITHUB_PRIVATE_KEY, and ANTHROPIC_API_KEY are required")
	}

	appID, err := strconv.ParseInt(appIDStr, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid GITHUB_APP_ID: %w", err)
	}

	credentials, err := github.NewCredentialManager(appID, []byte(privateKey))
	if err != nil {
		return err
	}

	client := github.NewClient()

	reviewer := review.NewClaudeReviewer(anthropicKey, logger)
	if model != "" {
		reviewer.SetModel(model)
	}

	publisher := &review.Publisher{
		Credentials: credentials,
		GitHub:      client,
		Reviewer:    reviewer,
		Builder:     &review.PayloadBuilder{Logger: logger},
		Config:      config.NewLoader(client),
		Logger:      logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// The webhook normally carries the PR payload; here we fetch it so
	// the publisher sees the same event shape. This token covers only the
	// PR fetch: tokens are scoped to a single acquisition, so Run mints
	// its own for the review.
	tok, err := credentials.GetInstallationToken(ctx, repoSlug)
	if err != nil {
		return err
	}
	pr, err := client.GetPullRequest(ctx, tok, owner, repo, prNumber)
	if err != nil {
		return fmt.Errorf("failed to fetch pull request: %w", err)
	}

	event := &github.WebhookEvent{
		Action:      "opened",
		Number:      prNumber,
		PullRequest: pr,
		Repository: &github.Repository{
			Name:     repo,
			FullName: repoSlug,
			Owner:    &github.User{Login: owner},
		},
		Sender: pr.User,
	}

	result, err := publisher.Run(ctx, event)
	if err != nil {
		return err
	}

	if result.Skipped {
		logger.Info("review skipped", "reason", result.SkipReason)
		return nil
	}

	fmt.Printf("review %d submitted (%s): %d comments, %d unmapped\n%s\n",
		result.ReviewID, result.Verdict, result.CommentCount, result.MappingMisses, result.ReviewURL)
	return nil
}
