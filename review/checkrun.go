package review

import (
	"context"
	"log/slog"
	"time"

	"github.com/stitchhq/stitch/github"
)

// CheckRunName is the name every review check run is created under.
const CheckRunName = "Stitch PR Review"

// ChecksAPI is the slice of the GitHub client the check tracker uses.
type ChecksAPI interface {
	CreateCheckRun(ctx context.Context, tok *github.InstallationToken, owner, repo string, req *github.CheckRunRequest) (*github.CheckRun, error)
	UpdateCheckRun(ctx context.Context, tok *github.InstallationToken, owner, repo string, checkRunID int64, req *github.CheckRunRequest) (*github.CheckRun, error)
}

// CheckTracker drives one check run through
// absent -> in_progress -> completed. Each run creates its own check run
// scoped to its own head SHA; a synchronize event gets a fresh check run,
// never an update of a prior commit's.
//
// The check run is an observability aid: creation failure degrades the
// tracker to a no-op instead of aborting the run.
type CheckTracker struct {
	api     ChecksAPI
	tok     *github.InstallationToken
	owner   string
	repo    string
	headSHA string
	logger  *slog.Logger

	id        int64
	created   bool
	completed bool

	now func() time.Time
}

// NewCheckTracker creates a tracker for one review run.
func NewCheckTracker(api ChecksAPI, tok *github.InstallationToken, owner, repo, headSHA string, logger *slog.Logger) *CheckTracker {
	return &CheckTracker{
		api:     api,
		tok:     tok,
		owner:   owner,
		repo:    repo,
		headSHA: headSHA,
		logger:  logger,
		now:     time.Now,
	}
}

// Start creates the check run with status in_progress against the run's
// head commit. Failure is logged and the tracker degrades to a no-op.
func (t *CheckTracker) Start(ctx context.Context) {
	run, err := t.api.CreateCheckRun(ctx, t.tok, t.owner, t.repo, &github.CheckRunRequest{
		Name:      CheckRunName,
		HeadSHA:   t.headSHA,
		Status:    github.CheckStatusInProgress,
		StartedAt: t.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		if t.logger != nil {
			t.logger.Warn("failed to create check run, continuing without one",
				"head_sha", t.headSHA,
				"error", err,
			)
		}
		return
	}

	t.id = run.ID
	t.created = true
}

// Complete transitions the check run to completed with the given
// conclusion. The transition happens at most once; later calls are
// ignored so crash-path cleanup can call Complete unconditionally.
func (t *CheckTracker) Complete(ctx context.Context, conclusion string) {
	if !t.created || t.completed {
		return
	}
	t.completed = true

	_, err := t.api.UpdateCheckRun(ctx, t.tok, t.owner, t.repo, t.id, &github.CheckRunRequest{
		Status:      github.CheckStatusCompleted,
		Conclusion:  conclusion,
		CompletedAt: t.now().UTC().Format(time.RFC3339),
	})
	if err != nil && t.logger != nil {
		t.logger.Warn("failed to complete check run",
			"check_run_id", t.id,
			"conclusion", conclusion,
			"error", err,
		)
	}
}

// ID returns the created check run's id, or 0 if creation failed.
func (t *CheckTracker) ID() int64 {
	return t.id
}
