// Package github provides a typed GitHub REST client, App credential
// management, and webhook handling for Stitch.
package github

import "time"

// WebhookEvent represents a pull_request webhook event.
type WebhookEvent struct {
	Action       string        `json:"action"`
	Number       int           `json:"number"`
	PullRequest  *PullRequest  `json:"pull_request,omitempty"`
	Repository   *Repository   `json:"repository"`
	Installation *Installation `json:"installation,omitempty"`
	Sender       *User         `json:"sender"`
}

// PullRequest represents a GitHub pull request.
type PullRequest struct {
	ID      int64  `json:"id"`
	Number  int    `json:"number"`
	State   string `json:"state"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	Head    *Ref   `json:"head"`
	Base    *Ref   `json:"base"`
	User    *User  `json:"user"`
	HTMLURL string `json:"html_url"`
	DiffURL string `json:"diff_url"`
}

// Ref represents a git reference (branch/commit).
type Ref struct {
	Ref  string      `json:"ref"`
	SHA  string      `json:"sha"`
	Repo *Repository `json:"repo,omitempty"`
}

// Repository represents a GitHub repository.
type Repository struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	Owner         *User  `json:"owner"`
	Private       bool   `json:"private"`
	DefaultBranch string `json:"default_branch"`
	HTMLURL       string `json:"html_url"`
}

// User represents a GitHub user, organization, or bot account.
type User struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Type  string `json:"type"` // "User", "Organization", or "Bot"
}

// Installation identifies a GitHub App installation.
type Installation struct {
	ID      int64 `json:"id"`
	Account *User `json:"account,omitempty"`
}

// InstallationToken is a short-lived installation access token.
// It is threaded explicitly through a single review run and never cached
// across runs.
type InstallationToken struct {
	Value     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ReviewComment represents one positioned comment in a review submission.
// Either Position or Line (optionally with StartLine) anchors the comment.
type ReviewComment struct {
	Path      string `json:"path"`
	Position  int    `json:"position,omitempty"`
	Line      int    `json:"line,omitempty"`
	StartLine int    `json:"start_line,omitempty"`
	Side      string `json:"side,omitempty"`       // LEFT or RIGHT
	StartSide string `json:"start_side,omitempty"` // LEFT or RIGHT
	Body      string `json:"body"`
}

// ReviewRequest represents a request to create a pull request review.
// The reviews endpoint is atomic: the summary body and all comments are
// submitted in one call or not at all.
type ReviewRequest struct {
	CommitID string          `json:"commit_id,omitempty"`
	Body     string          `json:"body"`
	Event    string          `json:"event"` // APPROVE, REQUEST_CHANGES, COMMENT
	Comments []ReviewComment `json:"comments,omitempty"`
}

// Review represents a pull request review response.
type Review struct {
	ID          int64     `json:"id"`
	NodeID      string    `json:"node_id"`
	User        *User     `json:"user"`
	Body        string    `json:"body"`
	State       string    `json:"state"`
	HTMLURL     string    `json:"html_url"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// CheckRunRequest represents the body of a check-run create or update call.
type CheckRunRequest struct {
	Name        string          `json:"name,omitempty"`
	HeadSHA     string          `json:"head_sha,omitempty"`
	Status      string          `json:"status,omitempty"` // queued, in_progress, completed
	Conclusion  string          `json:"conclusion,omitempty"`
	StartedAt   string          `json:"started_at,omitempty"`
	CompletedAt string          `json:"completed_at,omitempty"`
	Output      *CheckRunOutput `json:"output,omitempty"`
}

// CheckRunOutput holds the title/summary shown on the check-run page.
type CheckRunOutput struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// CheckRun represents a check run returned by the Checks API.
type CheckRun struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	HeadSHA    string `json:"head_sha"`
	Status     string `json:"status"`
	Conclusion string `json:"conclusion,omitempty"`
	HTMLURL    string `json:"html_url,omitempty"`
}

// CombinedStatus represents the combined commit status for a ref.
type CombinedStatus struct {
	State      string         `json:"state"` // success, pending, failure
	TotalCount int            `json:"total_count"`
	SHA        string         `json:"sha"`
	Statuses   []CommitStatus `json:"statuses"`
}

// CommitStatus is a single status context on a commit.
type CommitStatus struct {
	State       string `json:"state"`
	Context     string `json:"context"`
	Description string `json:"description"`
	TargetURL   string `json:"target_url,omitempty"`
}

// FileContent represents the content of a file from the contents API.
type FileContent struct {
	Type     string `json:"type"`
	Encoding string `json:"encoding"`
	Size     int    `json:"size"`
	Name     string `json:"name"`
	Path     string `json:"path"`
	Content  string `json:"content"`
	SHA      string `json:"sha"`
}
