package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	// DefaultModel is the Claude model used for reviews.
	DefaultModel = "claude-sonnet-4-20250514"

	// reviewerTimeout bounds a single reviewer call.
	reviewerTimeout = 3 * time.Minute

	// maxRetries is the number of retries for transient API failures.
	maxRetries = 3

	// retryBase is the initial delay between retries (doubles each attempt).
	retryBase = 1 * time.Second
)

// ReviewTask is everything the reviewer collaborator is handed: repo
// coordinates, the PR's head SHA, the unified diff, and CI status.
type ReviewTask struct {
	Owner        string
	Repo         string
	Number       int
	HeadSHA      string
	Title        string
	Body         string
	Diff         string
	CIStatus     string
	Instructions string
}

// Collaborator produces a findings document for a pull request. The
// reviewer's reasoning is a black box to the orchestrator; only the
// document contract matters.
type Collaborator interface {
	Review(ctx context.Context, task *ReviewTask) (*FindingsDocument, error)
}

// ClaudeReviewer is the Claude-backed Collaborator implementation.
type ClaudeReviewer struct {
	apiKey string
	model  string
	logger *slog.Logger
}

// NewClaudeReviewer creates a reviewer using the given API key.
func NewClaudeReviewer(apiKey string, logger *slog.Logger) *ClaudeReviewer {
	return &ClaudeReviewer{
		apiKey: apiKey,
		model:  DefaultModel,
		logger: logger,
	}
}

// SetModel overrides the default model.
func (r *ClaudeReviewer) SetModel(model string) {
	if model != "" {
		r.model = model
	}
}

// Review asks the model for a findings document.
func (r *ClaudeReviewer) Review(ctx context.Context, task *ReviewTask) (*FindingsDocument, error) {
	client := anthropic.NewClient(option.WithAPIKey(r.apiKey))

	timeoutCtx, cancel := context.WithTimeout(ctx, reviewerTimeout)
	defer cancel()

	prompt := BuildReviewPrompt(task)

	message, err := retryWithBackoff(timeoutCtx, r.logger, "reviewer", func() (*anthropic.Message, error) {
		return client.Messages.New(timeoutCtx, anthropic.MessageNewParams{
			Model:     anthropic.F(anthropic.Model(r.model)),
			MaxTokens: anthropic.F(int64(4096)),
			System: anthropic.F([]anthropic.TextBlockParam{
				anthropic.NewTextBlock(systemPrompt),
			}),
			Messages: anthropic.F([]anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			}),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("reviewer call failed: %w", err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == anthropic.ContentBlockTypeText {
			text.WriteString(block.Text)
		}
	}

	doc, err := ParseFindingsDocument(text.String())
	if err != nil {
		return nil, fmt.Errorf("reviewer returned an unusable document: %w", err)
	}

	return doc, nil
}

// isRetryableError checks if an error is transient and worth retrying.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") ||
		strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "timeout") ||
		errors.Is(err, context.DeadlineExceeded)
}

// retryWithBackoff executes fn with exponential backoff on retryable errors.
func retryWithBackoff[T any](ctx context.Context, logger *slog.Logger, operation string, fn func() (T, error)) (T, error) {
	var result T
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		result, lastErr = fn()
		if lastErr == nil {
			return result, nil
		}

		if !isRetryableError(lastErr) {
			return result, lastErr
		}

		if attempt < maxRetries {
			delay := retryBase * time.Duration(1<<attempt)
			if logger != nil {
				logger.Warn("retrying after transient error",
					"operation", operation,
					"attempt", attempt+1,
					"delay", delay,
					"error", lastErr,
				)
			}

			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return result, fmt.Errorf("max retries exceeded for %s: %w", operation, lastErr)
}
