package github

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidSignature indicates the webhook signature verification failed.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrMissingSignature indicates the webhook signature header is missing.
	ErrMissingSignature = errors.New("missing webhook signature")
)

// WebhookHandler verifies and parses GitHub webhook deliveries.
type WebhookHandler struct {
	secret []byte
}

// NewWebhookHandler creates a new webhook handler with the given secret.
func NewWebhookHandler(secret string) *WebhookHandler {
	return &WebhookHandler{
		secret: []byte(secret),
	}
}

// VerifySignature verifies the webhook payload signature.
// The signature header format is "sha256=<hex-encoded-signature>".
func (h *WebhookHandler) VerifySignature(payload []byte, signatureHeader string) error {
	if signatureHeader == "" {
		return ErrMissingSignature
	}

	parts := strings.SplitN(signatureHeader, "=", 2)
	if len(parts) != 2 || parts[0] != "sha256" {
		return ErrInvalidSignature
	}

	signature, err := hex.DecodeString(parts[1])
	if err != nil {
		return fmt.Errorf("failed to decode signature: %w", err)
	}

	mac := hmac.New(sha256.New, h.secret)
	mac.Write(payload)
	expected := mac.Sum(nil)

	if !hmac.Equal(signature, expected) {
		return ErrInvalidSignature
	}

	return nil
}

// ParsePullRequestEvent parses a pull_request webhook payload.
func (h *WebhookHandler) ParsePullRequestEvent(payload []byte) (*WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to parse webhook payload: %w", err)
	}

	if event.PullRequest == nil {
		return nil, errors.New("payload is not a pull request event")
	}
	if event.Repository == nil {
		return nil, errors.New("payload is missing repository")
	}

	return &event, nil
}

// IsBotSender reports whether the event was triggered by automation.
// Bot-authored events (release bots, dependency updaters, Stitch itself)
// must never start a review run.
func IsBotSender(event *WebhookEvent) bool {
	return event.Sender != nil && event.Sender.Type == "Bot"
}

// ShouldProcess determines if the event should trigger a review run.
// Only pull_request events with actions opened, synchronize, or reopened
// qualify, and never when the sender is a bot.
func (h *WebhookHandler) ShouldProcess(eventType string, event *WebhookEvent) bool {
	if eventType != "pull_request" {
		return false
	}

	if IsBotSender(event) {
		return false
	}

	switch event.Action {
	case "opened", "synchronize", "reopened":
		return true
	default:
		return false
	}
}
