package review

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Severity classifies a finding. Unknown severities normalize to info
// rather than failing the document: the reviewer is an external
// collaborator and a single odd label should not sink a run.
type Severity string

const (
	SeverityCritical   Severity = "critical"
	SeverityImportant  Severity = "important"
	SeveritySuggestion Severity = "suggestion"
	SeverityInfo       Severity = "info"
)

// Review verdicts, mirroring GitHub's review event values.
const (
	VerdictApprove        = "APPROVE"
	VerdictRequestChanges = "REQUEST_CHANGES"
	VerdictComment        = "COMMENT"
)

// Finding is a single issue reported by the reviewer collaborator.
// File and EndLine address the new version of the file; StartLine is set
// for multi-line findings. Suggestion, when present, is the complete
// replacement text for lines [SuggestionStart, SuggestionEnd].
type Finding struct {
	Severity        Severity `json:"severity"`
	File            string   `json:"file"`
	StartLine       int      `json:"start_line,omitempty"`
	EndLine         int      `json:"end_line"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Suggestion      string   `json:"suggestion,omitempty"`
	SuggestionStart int      `json:"suggestion_start,omitempty"`
	SuggestionEnd   int      `json:"suggestion_end,omitempty"`
}

// FindingsDocument is the structured review emitted by the reviewer
// collaborator. Consumed read-only by the payload builder.
type FindingsDocument struct {
	Summary    string    `json:"summary"`
	Verdict    string    `json:"verdict"`
	Findings   []Finding `json:"findings"`
	Positive   []string  `json:"positive,omitempty"`
	CIAnalysis string    `json:"ci_analysis,omitempty"`
}

// ParseFindingsDocument parses the reviewer's JSON output into a
// validated findings document.
func ParseFindingsDocument(raw string) (*FindingsDocument, error) {
	cleaned := cleanResponse(raw)

	var doc FindingsDocument
	if err := json.Unmarshal([]byte(cleaned), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse findings document as JSON: %w", err)
	}

	if err := validateFindings(&doc); err != nil {
		return nil, err
	}

	return &doc, nil
}

// cleanResponse strips markdown code fences the reviewer may wrap its
// JSON output in.
func cleanResponse(response string) string {
	response = strings.TrimSpace(response)

	if strings.HasPrefix(response, "```json") {
		response = strings.TrimPrefix(response, "```json")
	} else if strings.HasPrefix(response, "```") {
		response = strings.TrimPrefix(response, "```")
	}

	response = strings.TrimSuffix(response, "```")

	return strings.TrimSpace(response)
}

// validateFindings checks structural requirements and normalizes the
// fields that have safe defaults.
func validateFindings(doc *FindingsDocument) error {
	doc.Verdict = NormalizeVerdict(doc.Verdict)

	for i := range doc.Findings {
		f := &doc.Findings[i]
		if f.File == "" {
			return fmt.Errorf("finding %d has empty file", i)
		}
		if f.EndLine <= 0 {
			return fmt.Errorf("finding %d has invalid end_line: %d", i, f.EndLine)
		}
		if f.StartLine == 0 {
			f.StartLine = f.EndLine
		}
		if f.StartLine > f.EndLine {
			return fmt.Errorf("finding %d has start_line %d after end_line %d", i, f.StartLine, f.EndLine)
		}
		if f.Title == "" && f.Description == "" {
			return fmt.Errorf("finding %d has no title or description", i)
		}
		switch f.Severity {
		case SeverityCritical, SeverityImportant, SeveritySuggestion, SeverityInfo:
		default:
			f.Severity = SeverityInfo
		}
		if f.Suggestion != "" {
			if f.SuggestionStart == 0 {
				f.SuggestionStart = f.StartLine
			}
			if f.SuggestionEnd == 0 {
				f.SuggestionEnd = f.EndLine
			}
			if f.SuggestionStart > f.SuggestionEnd {
				return fmt.Errorf("finding %d has invalid suggestion range %d-%d", i, f.SuggestionStart, f.SuggestionEnd)
			}
		}
	}

	return nil
}

// NormalizeVerdict maps the reviewer's verdict to a GitHub review event.
// Absent or unrecognized verdicts become COMMENT: defaulting to
// REQUEST_CHANGES would silently block merges.
func NormalizeVerdict(verdict string) string {
	switch strings.ToUpper(strings.TrimSpace(verdict)) {
	case VerdictApprove:
		return VerdictApprove
	case VerdictRequestChanges:
		return VerdictRequestChanges
	case VerdictComment:
		return VerdictComment
	default:
		return VerdictComment
	}
}
