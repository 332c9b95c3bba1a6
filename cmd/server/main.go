// Package main provides the Stitch webhook server.
//
// Configuration via environment variables:
//
//	GITHUB_APP_ID         - GitHub App ID (required)
//	GITHUB_WEBHOOK_SECRET - Webhook signature verification secret (required)
//	GITHUB_PRIVATE_KEY    - GitHub App private key in PEM format (required)
//	ANTHROPIC_API_KEY     - Anthropic API key for the reviewer (required)
//	ANTHROPIC_MODEL       - Reviewer model override (optional)
//	DATABASE_URL          - PostgreSQL connection string (optional; run history)
//	REDIS_URL             - Redis URL for the fix-context store (optional)
//	LAUNCH_SIGNING_KEY    - HMAC key for launch tokens (optional)
//	LAUNCH_BASE_URL       - Public base URL for launch links (optional)
//	LAUNCH_AGENT          - Remediation agent name (default: stitch-fix)
//	PORT                  - HTTP server port (default: 8080)
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/stitchhq/stitch/anthropic"
	"github.com/stitchhq/stitch/config"
	"github.com/stitchhq/stitch/fixctx"
	"github.com/stitchhq/stitch/github"
	"github.com/stitchhq/stitch/launchtoken"
	"github.com/stitchhq/stitch/review"
	"github.com/stitchhq/stitch/storage"
	"github.com/stitchhq/stitch/storage/postgres"
)

var (
	logger         *slog.Logger
	webhookHandler *github.WebhookHandler
	publisher      *review.Publisher
	tokenService   *launchtoken.Service
	contextStore   fixctx.Store
	pgStorage      *postgres.PostgreSQL
	runStore       storage.Storage
)

func main() {
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if err := initialize(); err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	if pgStorage != nil {
		defer pgStorage.Close()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/webhooks/github", handleWebhook)
	mux.HandleFunc("/launch", handleLaunch)
	mux.HandleFunc("/runs", handleRuns)
	mux.HandleFunc("/health", handleHealth)
	mux.HandleFunc("/", handleRoot)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 600 * time.Second, // reviewer calls are slow
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("starting server", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}

func initialize() error {
	webhookSecret := os.Getenv("GITHUB_WEBHOOK_SECRET")
	if webhookSecret == "" {
		return fmt.Errorf("GITHUB_WEBHOOK_SECRET is required")
	}

	privateKey := os.Getenv("GITHUB_PRIVATE_KEY")
	if privateKey == "" {
		return fmt.Errorf("GITHUB_PRIVATE_KEY is required")
	}

	anthropicKey := os.Getenv("ANTHROPIC_API_KEY")
	if anthropicKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required")
	}

	appIDStr := os.Getenv("GITHUB_APP_ID")
	if appIDStr == "" {
		return fmt.Errorf("GITHUB_APP_ID is required")
	}

	appID, err := strconv.ParseInt(appIDStr, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid GITHUB_APP_ID: %w", err)
	}

	credentials, err := github.NewCredentialManager(appID, []byte(privateKey))
	if err != nil {
		return err
	}

	githubClient := github.NewClient()
	webhookHandler = github.NewWebhookHandler(webhookSecret)

	validateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := anthropic.ValidateAPIKey(validateCtx, anthropicKey); err != nil {
		return fmt.Errorf("anthropic key check failed: %w", err)
	}

	reviewer := review.NewClaudeReviewer(anthropicKey, logger)
	if model := os.Getenv("ANTHROPIC_MODEL"); model != "" {
		reviewer.SetModel(model)
	}

	// Run-history storage is optional.
	if databaseURL := os.Getenv("DATABASE_URL"); databaseURL != "" {
		db, err := sql.Open("postgres", databaseURL)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.Ping(); err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		pgStorage = postgres.New(db)
		if err := pgStorage.Migrate(context.Background()); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		runStore = pgStorage
	}

	// Fix-context store: Redis in production, in-memory otherwise.
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		contextStore = fixctx.NewRedisStore(redis.NewClient(opt), fixctx.DefaultTTL)
	} else {
		contextStore = fixctx.NewMemoryStore(fixctx.DefaultTTL)
	}

	builder := &review.PayloadBuilder{Logger: logger}

	// Launch links require a signing key and a public base URL.
	if signingKey := os.Getenv("LAUNCH_SIGNING_KEY"); signingKey != "" {
		baseURL := os.Getenv("LAUNCH_BASE_URL")
		if baseURL == "" {
			return fmt.Errorf("LAUNCH_BASE_URL is required when LAUNCH_SIGNING_KEY is set")
		}
		agent := os.Getenv("LAUNCH_AGENT")
		if agent == "" {
			agent = "stitch-fix"
		}
		tokenService, err = launchtoken.NewService([]byte(signingKey), launchtoken.DefaultTTL)
		if err != nil {
			return err
		}
		builder.Links = &review.DeepLinkBuilder{
			Store:   contextStore,
			Tokens:  tokenService,
			BaseURL: baseURL,
			Agent:   agent,
		}
	}

	publisher = &review.Publisher{
		Credentials: credentials,
		GitHub:      githubClient,
		Reviewer:    reviewer,
		Builder:     builder,
		Config:      config.NewLoader(githubClient),
		Logger:      logger,
	}
	if pgStorage != nil {
		publisher.Store = pgStorage
	}

	logger.Info("initialized",
		"app_id", appID,
		"run_history", pgStorage != nil,
		"launch_links", tokenService != nil,
	)

	return nil
}

func handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{
		"name":   "Stitch",
		"status": "running",
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Error("failed to read body", "error", err)
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	eventType := r.Header.Get("X-GitHub-Event")
	if eventType == "" {
		http.Error(w, "missing X-GitHub-Event header", http.StatusBadRequest)
		return
	}

	logger.Info("received webhook", "event", eventType, "size", len(payload))

	signature := r.Header.Get("X-Hub-Signature-256")
	if err := webhookHandler.VerifySignature(payload, signature); err != nil {
		logger.Error("signature verification failed", "error", err)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	if eventType == "ping" {
		jsonResponse(w, http.StatusOK, map[string]string{"message": "pong"})
		return
	}

	if eventType != "pull_request" {
		logger.Info("ignoring event", "type", eventType)
		jsonResponse(w, http.StatusOK, map[string]string{"message": "event ignored"})
		return
	}

	event, err := webhookHandler.ParsePullRequestEvent(payload)
	if err != nil {
		logger.Error("failed to parse event", "error", err)
		http.Error(w, "failed to parse event", http.StatusBadRequest)
		return
	}

	if !webhookHandler.ShouldProcess(eventType, event) {
		logger.Info("skipping event", "action", event.Action)
		jsonResponse(w, http.StatusOK, map[string]string{"message": "event skipped"})
		return
	}

	logger.Info("processing PR",
		"repo", event.Repository.FullName,
		"pr", event.Number,
		"action", event.Action,
	)

	recordInstallation(context.Background(), runStore, event)

	// Respond immediately to GitHub; the run proceeds in the background.
	jsonResponse(w, http.StatusOK, map[string]string{"message": "review started"})

	go func() {
		runCtx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		result, err := publisher.Run(runCtx, event)
		if err != nil {
			logger.Error("review run failed", "error", err, "class", review.ClassOf(err).String())
			return
		}

		if result.Skipped {
			logger.Info("review skipped", "reason", result.SkipReason)
			return
		}

		logger.Info("review run complete",
			"review_id", result.ReviewID,
			"verdict", result.Verdict,
			"comments", result.CommentCount,
			"url", result.ReviewURL,
		)
	}()
}

// recordInstallation creates the installation record for the event's
// installation if one does not exist yet. Best-effort bookkeeping; a
// storage failure never blocks the review.
func recordInstallation(ctx context.Context, store storage.Storage, event *github.WebhookEvent) {
	if store == nil || event.Installation == nil {
		return
	}

	existing, err := store.GetInstallation(ctx, event.Installation.ID)
	if err != nil {
		logger.Error("failed to look up installation", "error", err)
		return
	}
	if existing != nil {
		return
	}

	install := &storage.Installation{
		InstallationID: event.Installation.ID,
		InstalledAt:    time.Now().UTC().Format(time.RFC3339),
	}
	if event.Repository.Owner != nil {
		install.OrgLogin = event.Repository.Owner.Login
	}
	if event.Installation.Account != nil {
		install.AccountID = event.Installation.Account.ID
		if event.Installation.Account.Login != "" {
			install.OrgLogin = event.Installation.Account.Login
		}
	}
	if err := store.SaveInstallation(ctx, install); err != nil {
		logger.Error("failed to save installation", "error", err)
	}
}

// handleRuns lists the stored review runs for a pull request.
func handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if runStore == nil {
		http.Error(w, "run history is not enabled", http.StatusNotFound)
		return
	}

	q := r.URL.Query()
	owner := q.Get("owner")
	repo := q.Get("repo")
	prNumber, err := strconv.Atoi(q.Get("pr"))
	if owner == "" || repo == "" || err != nil || prNumber <= 0 {
		http.Error(w, "owner, repo, and pr query parameters are required", http.StatusBadRequest)
		return
	}

	runs, err := runStore.ListRunsForPR(r.Context(), owner, repo, prNumber)
	if err != nil {
		logger.Error("failed to list runs", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []*storage.RunRecord{}
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"owner": owner,
		"repo":  repo,
		"pr":    prNumber,
		"runs":  runs,
	})
}

// handleLaunch resolves an agent-launch deep link. Expired tokens and
// expired fix contexts are normal conditions with a plain message, not
// system errors.
func handleLaunch(w http.ResponseWriter, r *http.Request) {
	if tokenService == nil {
		http.Error(w, "launch links are not enabled", http.StatusNotFound)
		return
	}

	data := r.URL.Query().Get("data")
	if data == "" {
		http.Error(w, "malformed link", http.StatusBadRequest)
		return
	}

	agent, ref, err := tokenService.Verify(data)
	if err != nil {
		if errors.Is(err, launchtoken.ErrExpired) {
			http.Error(w, "this suggestion is no longer available", http.StatusGone)
			return
		}
		http.Error(w, "malformed link", http.StatusBadRequest)
		return
	}

	record, err := contextStore.Get(r.Context(), ref)
	if err != nil {
		if errors.Is(err, fixctx.ErrNotFound) {
			http.Error(w, "this suggestion is no longer available", http.StatusGone)
			return
		}
		logger.Error("failed to fetch fix context", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"agent":       agent,
		"fix_context": record,
	})
}

func jsonResponse(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
