package review

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/stitchhq/stitch/github"
)

// severityEmoji renders a finding's severity as the fixed badge table.
var severityEmoji = map[Severity]string{
	SeverityCritical:   "🔴",
	SeverityImportant:  "🟠",
	SeveritySuggestion: "🟡",
	SeverityInfo:       "🔵",
}

// RepoContext identifies the repository state a review run acted on.
type RepoContext struct {
	Owner     string
	Repo      string
	Branch    string
	CommitSHA string
}

// Slug returns "owner/repo".
func (rc RepoContext) Slug() string {
	return rc.Owner + "/" + rc.Repo
}

// LaunchLinker builds a one-click deep link that hands a finding to a
// remediation agent. Optional: when absent or failing, comments are
// emitted without a launch button.
type LaunchLinker interface {
	LinkFor(ctx context.Context, finding Finding, repo RepoContext) (string, error)
}

// BuildReport records how findings were placed during payload building.
type BuildReport struct {
	Placed        int
	LineFallbacks int
	Unplaced      []Finding
}

// PayloadBuilder converts a findings document into a single review
// submission. Given identical findings and diff (and no launch linker),
// the output is byte-identical across invocations.
type PayloadBuilder struct {
	Links  LaunchLinker
	Logger *slog.Logger
}

// Build maps each finding onto the position index and assembles the
// review request. Findings that cannot be anchored to the diff are kept
// in the summary body instead of being dropped or mis-positioned.
func (b *PayloadBuilder) Build(ctx context.Context, doc *FindingsDocument, index PositionIndex, repo RepoContext) (*github.ReviewRequest, *BuildReport) {
	report := &BuildReport{}
	var comments []github.ReviewComment

	for _, f := range doc.Findings {
		comment, placed, fallback := b.placeFinding(ctx, f, index, repo)
		if !placed {
			report.Unplaced = append(report.Unplaced, f)
			b.logWarn("finding could not be mapped to the diff",
				"file", f.File,
				"line", f.EndLine,
			)
			continue
		}
		if fallback {
			report.LineFallbacks++
		}
		report.Placed++
		comments = append(comments, comment)
	}

	return &github.ReviewRequest{
		CommitID: repo.CommitSHA,
		Body:     renderSummary(doc, report.Unplaced),
		Event:    NormalizeVerdict(doc.Verdict),
		Comments: comments,
	}, report
}

// placeFinding anchors one finding. Single-line findings use diff
// positions; multi-line findings use line/start_line addressing, which is
// the only form the API accepts for ranges. Returns placed=false when the
// finding's lines are not part of the diff.
func (b *PayloadBuilder) placeFinding(ctx context.Context, f Finding, index PositionIndex, repo RepoContext) (github.ReviewComment, bool, bool) {
	start, end := f.StartLine, f.EndLine
	if f.Suggestion != "" {
		// A suggestion replaces exactly its stated range, so the comment
		// must be anchored to that range.
		start, end = f.SuggestionStart, f.SuggestionEnd
	}

	body := b.renderCommentBody(ctx, f, repo)

	if start == end {
		if pos, ok := index.Position(f.File, end); ok {
			return github.ReviewComment{
				Path:     f.File,
				Position: pos,
				Body:     body,
			}, true, false
		}
		return github.ReviewComment{}, false, false
	}

	// Multi-line: both endpoints must be commentable lines.
	_, startOK := index.Position(f.File, start)
	_, endOK := index.Position(f.File, end)
	if !startOK || !endOK {
		return github.ReviewComment{}, false, false
	}

	return github.ReviewComment{
		Path:      f.File,
		Line:      end,
		StartLine: start,
		Side:      "RIGHT",
		StartSide: "RIGHT",
		Body:      body,
	}, true, true
}

// renderCommentBody formats a finding as a review comment: severity
// badge, title, description, optional suggestion fence and launch button.
func (b *PayloadBuilder) renderCommentBody(ctx context.Context, f Finding, repo RepoContext) string {
	var sb strings.Builder

	sb.WriteString(severityEmoji[f.Severity])
	if f.Title != "" {
		sb.WriteString(" **")
		sb.WriteString(f.Title)
		sb.WriteString("**")
	}
	if f.Description != "" {
		sb.WriteString("\n\n")
		sb.WriteString(f.Description)
	}

	if f.Suggestion != "" {
		sb.WriteString("\n\n```suggestion\n")
		sb.WriteString(f.Suggestion)
		if !strings.HasSuffix(f.Suggestion, "\n") {
			sb.WriteString("\n")
		}
		sb.WriteString("```")
	}

	if b.Links != nil {
		link, err := b.Links.LinkFor(ctx, f, repo)
		if err != nil {
			b.logWarn("failed to build launch link", "file", f.File, "error", err)
		} else if link != "" {
			sb.WriteString(fmt.Sprintf("\n\n[▶ Fix with agent](%s)", link))
		}
	}

	return sb.String()
}

// renderSummary assembles the review body: overall summary, positives,
// CI analysis, and an appendix for findings that could not be anchored.
func renderSummary(doc *FindingsDocument, unplaced []Finding) string {
	var sb strings.Builder

	sb.WriteString("## Stitch PR Review\n\n")
	sb.WriteString(strings.TrimSpace(doc.Summary))

	if len(doc.Positive) > 0 {
		sb.WriteString("\n\n**Highlights**\n")
		for _, p := range doc.Positive {
			sb.WriteString("\n- ")
			sb.WriteString(p)
		}
	}

	if doc.CIAnalysis != "" {
		sb.WriteString("\n\n**CI**\n\n")
		sb.WriteString(strings.TrimSpace(doc.CIAnalysis))
	}

	if len(unplaced) > 0 {
		sb.WriteString("\n\n**Findings outside the diff**\n")
		for _, f := range unplaced {
			sb.WriteString(fmt.Sprintf("\n- %s `%s:%d`", severityEmoji[f.Severity], f.File, f.EndLine))
			if f.Title != "" {
				sb.WriteString(" - ")
				sb.WriteString(f.Title)
			}
			if f.Description != "" {
				sb.WriteString(": ")
				sb.WriteString(f.Description)
			}
		}
	}

	sb.WriteString("\n")
	return sb.String()
}

func (b *PayloadBuilder) logWarn(msg string, args ...any) {
	if b.Logger != nil {
		b.Logger.Warn(msg, args...)
	}
}
