package review

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are an expert code reviewer. Review the pull request diff and report concrete, actionable findings.

Focus on:
- Bugs and logic errors
- Security vulnerabilities
- Performance issues
- Significant clarity problems (only if code is genuinely confusing)

Do NOT report:
- Minor style preferences or formatting (formatters handle those)
- Comments on self-explanatory code
- Trivia that does not affect behavior

Severities: "critical" (must fix before merge), "important" (should fix), "suggestion" (worth considering), "info" (FYI).

When you have an exact replacement for the flagged lines, put it in "suggestion": the complete replacement text for the lines in [suggestion_start, suggestion_end], nothing more. Never include surrounding lines that already exist.`

const findingsFormat = `Respond with JSON only, in this exact shape:
{
  "summary": "Overall assessment, 1-3 sentences.",
  "verdict": "COMMENT",
  "findings": [
    {
      "severity": "important",
      "file": "path/from/diff.go",
      "start_line": 41,
      "end_line": 42,
      "title": "Short issue title",
      "description": "What is wrong and why it matters.",
      "suggestion": "replacement code",
      "suggestion_start": 42,
      "suggestion_end": 42
    }
  ],
  "positive": ["Things done well, if any."],
  "ci_analysis": "Optional reading of the CI status."
}

Rules:
- "verdict" must be APPROVE, REQUEST_CHANGES, or COMMENT. APPROVE only when there are no findings at all; REQUEST_CHANGES only for critical findings.
- "file" must exactly match a file path from the diff.
- Line numbers refer to the NEW version of the file and must be lines visible in the diff.
- Omit "suggestion" fields when you do not have an exact replacement.`

// BuildReviewPrompt assembles the user message for the reviewer model.
func BuildReviewPrompt(task *ReviewTask) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Review pull request #%d in %s/%s (head %s).\n\n", task.Number, task.Owner, task.Repo, task.HeadSHA))

	if task.Title != "" {
		sb.WriteString("**Title:** ")
		sb.WriteString(task.Title)
		sb.WriteString("\n\n")
	}
	if task.Body != "" {
		sb.WriteString("**Description:**\n")
		sb.WriteString(task.Body)
		sb.WriteString("\n\n")
	}
	if task.CIStatus != "" {
		sb.WriteString("**CI status:** ")
		sb.WriteString(task.CIStatus)
		sb.WriteString("\n\n")
	}
	if task.Instructions != "" {
		sb.WriteString("**Repository instructions:**\n")
		sb.WriteString(task.Instructions)
		sb.WriteString("\n\n")
	}

	sb.WriteString(findingsFormat)
	sb.WriteString("\n\n**Diff:**\n```diff\n")
	sb.WriteString(task.Diff)
	sb.WriteString("\n```\n")

	return sb.String()
}
