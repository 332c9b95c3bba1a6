package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/stitchhq/stitch/config"
	"github.com/stitchhq/stitch/github"
	"github.com/stitchhq/stitch/storage"
)

// TokenSource acquires installation tokens for a repository.
type TokenSource interface {
	GetInstallationToken(ctx context.Context, repoSlug string) (*github.InstallationToken, error)
}

// GitHubAPI is the slice of the GitHub client the publisher uses.
type GitHubAPI interface {
	ChecksAPI
	FetchDiff(ctx context.Context, tok *github.InstallationToken, owner, repo string, prNumber int) (string, error)
	GetCombinedStatus(ctx context.Context, tok *github.InstallationToken, owner, repo, ref string) (*github.CombinedStatus, error)
	CreateReview(ctx context.Context, tok *github.InstallationToken, owner, repo string, prNumber int, review *github.ReviewRequest) (*github.Review, error)
}

// ConfigLoader loads per-repository configuration.
type ConfigLoader interface {
	Load(ctx context.Context, tok *github.InstallationToken, owner, repo, ref string) (*config.Config, error)
}

// RunResult summarizes one completed (or skipped) review run.
type RunResult struct {
	Skipped       bool
	SkipReason    string
	ReviewID      int64
	ReviewURL     string
	Verdict       string
	FindingCount  int
	CommentCount  int
	MappingMisses int
	CheckRunID    int64
}

// Publisher orchestrates a single review run: credentials, check run,
// diff and CI fetch, reviewer collaborator, position mapping, payload
// build, and the one atomic review submission.
//
// Each pull request event gets its own run with no shared state between
// runs; the installation token lives only for the run.
type Publisher struct {
	Credentials TokenSource
	GitHub      GitHubAPI
	Reviewer    Collaborator
	Builder     *PayloadBuilder
	Config      ConfigLoader    // optional
	Store       storage.Storage // optional run history
	Logger      *slog.Logger
}

// Run executes the review pipeline for one pull request event.
// Fatal failures return a non-nil error; the caller exits non-zero.
// A created check run always receives exactly one terminal update, even
// on failure paths.
func (p *Publisher) Run(ctx context.Context, event *github.WebhookEvent) (*RunResult, error) {
	if event == nil || event.Repository == nil || event.Repository.Owner == nil || event.PullRequest == nil || event.PullRequest.Head == nil {
		return nil, fatalErr("validate event", errors.New("incomplete pull request event"))
	}

	if github.IsBotSender(event) {
		p.logInfo("skipping bot-authored event", "sender", event.Sender.Login)
		return &RunResult{Skipped: true, SkipReason: "bot sender"}, nil
	}

	owner := event.Repository.Owner.Login
	repo := event.Repository.Name
	number := event.Number
	if number == 0 {
		number = event.PullRequest.Number
	}
	headSHA := event.PullRequest.Head.SHA
	slug := event.Repository.FullName
	if slug == "" {
		slug = owner + "/" + repo
	}

	p.logInfo("starting review run", "repo", slug, "pr", number, "head_sha", headSHA)

	tok, err := p.Credentials.GetInstallationToken(ctx, slug)
	if err != nil {
		return nil, fatalErr("acquire installation token", err)
	}

	cfg, err := p.loadConfig(ctx, tok, owner, repo, event.PullRequest.Head.Ref)
	if err != nil {
		return nil, err
	}
	if !cfg.ShouldReviewOnEvent() {
		p.logInfo("review disabled by repository config", "repo", slug)
		return &RunResult{Skipped: true, SkipReason: "disabled by config"}, nil
	}

	// Every run creates its own check run against its own head SHA;
	// creation failure degrades rather than aborting.
	tracker := NewCheckTracker(p.GitHub, tok, owner, repo, headSHA, p.Logger)
	tracker.Start(ctx)

	result, err := p.execute(ctx, tok, cfg, owner, repo, number, headSHA, event)
	if err != nil {
		tracker.Complete(ctx, github.ConclusionFailure)
		p.storeRun(ctx, owner, repo, number, headSHA, result, tracker.ID(), github.ConclusionFailure)
		return result, err
	}

	// Conclusion reflects pipeline success, never the review verdict.
	tracker.Complete(ctx, github.ConclusionSuccess)
	result.CheckRunID = tracker.ID()
	p.storeRun(ctx, owner, repo, number, headSHA, result, tracker.ID(), github.ConclusionSuccess)

	return result, nil
}

// execute runs the fallible middle of the pipeline so Run can complete
// the check run on every exit path.
func (p *Publisher) execute(ctx context.Context, tok *github.InstallationToken, cfg *config.Config, owner, repo string, number int, headSHA string, event *github.WebhookEvent) (*RunResult, error) {
	// The diff is required; CI status is best-effort context for the
	// reviewer.
	var diff string
	var ciStatus *github.CombinedStatus

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		diff, err = p.GitHub.FetchDiff(gctx, tok, owner, repo, number)
		return err
	})
	g.Go(func() error {
		status, err := p.GitHub.GetCombinedStatus(gctx, tok, owner, repo, headSHA)
		if err != nil {
			p.logWarn("failed to fetch CI status, reviewing without it",
				"error", degradedErr("fetch ci status", err))
			return nil
		}
		ciStatus = status
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fatalErr("fetch diff", err)
	}

	task := &ReviewTask{
		Owner:        owner,
		Repo:         repo,
		Number:       number,
		HeadSHA:      headSHA,
		Title:        event.PullRequest.Title,
		Body:         event.PullRequest.Body,
		Diff:         diff,
		CIStatus:     summarizeStatus(ciStatus),
		Instructions: cfg.Instructions,
	}

	doc, err := p.Reviewer.Review(ctx, task)
	if err != nil {
		return nil, fatalErr("reviewer", err)
	}

	doc.Findings = p.filterExcluded(doc.Findings, cfg)

	index := BuildPositionIndex(diff)

	repoCtx := RepoContext{
		Owner:     owner,
		Repo:      repo,
		Branch:    event.PullRequest.Head.Ref,
		CommitSHA: headSHA,
	}
	payload, report := p.Builder.Build(ctx, doc, index, repoCtx)

	review, err := p.GitHub.CreateReview(ctx, tok, owner, repo, number, payload)
	if err != nil {
		return nil, fatalErr("submit review", err)
	}

	p.logInfo("review published",
		"review_id", review.ID,
		"verdict", payload.Event,
		"comments", len(payload.Comments),
		"mapping_misses", len(report.Unplaced),
	)

	return &RunResult{
		ReviewID:      review.ID,
		ReviewURL:     review.HTMLURL,
		Verdict:       payload.Event,
		FindingCount:  len(doc.Findings),
		CommentCount:  len(payload.Comments),
		MappingMisses: len(report.Unplaced),
	}, nil
}

// loadConfig loads the repo config, treating a present-but-invalid file
// as fatal and a missing/unreachable one as defaults.
func (p *Publisher) loadConfig(ctx context.Context, tok *github.InstallationToken, owner, repo, ref string) (*config.Config, error) {
	if p.Config == nil {
		return config.DefaultConfig(), nil
	}

	cfg, err := p.Config.Load(ctx, tok, owner, repo, ref)
	if err != nil {
		var parseErr *config.ConfigParseError
		if errors.As(err, &parseErr) {
			return nil, fatalErr("load config", err)
		}
		p.logWarn("failed to load config, using defaults",
			"error", degradedErr("load config", err))
		return config.DefaultConfig(), nil
	}
	return cfg, nil
}

// filterExcluded drops findings on files the repo config excludes.
func (p *Publisher) filterExcluded(findings []Finding, cfg *config.Config) []Finding {
	if len(cfg.Exclude) == 0 {
		return findings
	}

	kept := findings[:0]
	for _, f := range findings {
		if cfg.ShouldExcludeFile(f.File) {
			p.logInfo("dropping finding on excluded file", "file", f.File)
			continue
		}
		kept = append(kept, f)
	}
	return kept
}

// storeRun records the run outcome; storage is best-effort.
func (p *Publisher) storeRun(ctx context.Context, owner, repo string, number int, headSHA string, result *RunResult, checkRunID int64, conclusion string) {
	if p.Store == nil {
		return
	}

	rec := &storage.RunRecord{
		Owner:      owner,
		Repo:       repo,
		PRNumber:   number,
		HeadSHA:    headSHA,
		CheckRunID: checkRunID,
		Conclusion: conclusion,
	}
	if result != nil {
		rec.ReviewID = result.ReviewID
		rec.Verdict = result.Verdict
		rec.FindingCount = result.FindingCount
		rec.CommentCount = result.CommentCount
		rec.MappingMisses = result.MappingMisses
	}

	if err := p.Store.StoreRun(ctx, rec); err != nil {
		p.logWarn("failed to store run record",
			"error", degradedErr("store run record", err))
	}
}

// summarizeStatus renders the combined status for the reviewer prompt.
func summarizeStatus(status *github.CombinedStatus) string {
	if status == nil || status.TotalCount == 0 {
		return ""
	}
	return fmt.Sprintf("%s (%d contexts)", status.State, status.TotalCount)
}

func (p *Publisher) logInfo(msg string, args ...any) {
	if p.Logger != nil {
		p.Logger.Info(msg, args...)
	}
}

func (p *Publisher) logWarn(msg string, args ...any) {
	if p.Logger != nil {
		p.Logger.Warn(msg, args...)
	}
}
