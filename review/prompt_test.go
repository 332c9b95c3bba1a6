package review

import (
	"strings"
	"testing"
)

func TestBuildReviewPrompt(t *testing.T) {
	task := &ReviewTask{
		Owner:        "acme",
		Repo:         "api",
		Number:       7,
		HeadSHA:      "abc123",
		Title:        "Add config loader",
		Body:         "Loads config from env.",
		Diff:         "diff --git a/main.go b/main.go\n+var x = 1\n",
		CIStatus:     "failure (2 contexts)",
		Instructions: "Focus on security.",
	}

	prompt := BuildReviewPrompt(task)

	for _, want := range []string{
		"pull request #7 in acme/api",
		"Add config loader",
		"Loads config from env.",
		"failure (2 contexts)",
		"Focus on security.",
		"```diff",
		"+var x = 1",
		`"verdict"`,
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildReviewPromptOmitsEmptySections(t *testing.T) {
	task := &ReviewTask{
		Owner:   "acme",
		Repo:    "api",
		Number:  7,
		HeadSHA: "abc123",
		Diff:    "diff --git a/main.go b/main.go\n",
	}

	prompt := BuildReviewPrompt(task)

	for _, absent := range []string{"**Description:**", "**CI status:**", "**Repository instructions:**"} {
		if strings.Contains(prompt, absent) {
			t.Errorf("prompt should omit %q when the task has none", absent)
		}
	}
}
