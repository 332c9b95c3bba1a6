// Package review maps reviewer findings onto pull request diffs and
// publishes them as GitHub reviews and check runs.
package review

import (
	"regexp"
	"strconv"
	"strings"
)

// PositionIndex maps (file path, new-file line number) to the line's
// diff position: the 1-based offset of that line within the file's hunk
// stream, counting hunk headers and every added/removed/context line.
// Only lines present in the new version of the file get an entry, which
// is exactly the set of lines GitHub accepts position-anchored review
// comments on.
//
// Built once per run from a freshly fetched diff; pure and deterministic
// for a given diff text.
type PositionIndex map[string]map[int]int

// hunkHeaderRegex matches unified diff hunk headers like "@@ -10,5 +15,7 @@".
var hunkHeaderRegex = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

// BuildPositionIndex scans a unified diff and builds the position index.
// Binary files and pure renames have no hunks and therefore yield no
// entries; findings on such files fall back to the summary body.
func BuildPositionIndex(diff string) PositionIndex {
	index := make(PositionIndex)
	if diff == "" {
		return index
	}

	var (
		path     string
		position int
		newLine  int
		inHunk   bool
		hasNew   bool // file exists on the new side (not deleted)
	)

	lines := strings.Split(diff, "\n")
	// A trailing newline leaves one empty trailing element; it is not a
	// diff line.
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "diff --git "):
			path = pathFromGitHeader(line)
			position = 0
			inHunk = false
			hasNew = true

		case !inHunk && strings.HasPrefix(line, "+++ "):
			// The new-side header is authoritative for the path,
			// including renames. "/dev/null" marks a deleted file.
			if after, ok := strings.CutPrefix(line, "+++ b/"); ok {
				path = after
				hasNew = true
			} else {
				hasNew = false
			}

		case strings.HasPrefix(line, "@@"):
			m := hunkHeaderRegex.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			position++ // the header itself occupies a diff line
			newLine, _ = strconv.Atoi(m[3])
			inHunk = true

		case inHunk:
			if strings.HasPrefix(line, `\`) {
				// "\ No newline at end of file" is a marker, not content.
				continue
			}
			position++
			if strings.HasPrefix(line, "-") {
				// Removed lines occupy a diff position but do not exist
				// in the new file.
				continue
			}
			if hasNew && path != "" {
				if index[path] == nil {
					index[path] = make(map[int]int)
				}
				if _, exists := index[path][newLine]; !exists {
					index[path][newLine] = position
				}
			}
			newLine++
		}
	}

	return index
}

// Position returns the diff position for a new-file line, if the line is
// part of the diff.
func (idx PositionIndex) Position(path string, line int) (int, bool) {
	fileLines, ok := idx[path]
	if !ok {
		return 0, false
	}
	pos, ok := fileLines[line]
	return pos, ok
}

// HasFile reports whether the diff contains any commentable lines for path.
func (idx PositionIndex) HasFile(path string) bool {
	return len(idx[path]) > 0
}

// pathFromGitHeader extracts the new-side path from a
// "diff --git a/old b/new" line.
func pathFromGitHeader(line string) string {
	parts := strings.Split(line, " ")
	if len(parts) < 4 {
		return ""
	}
	return strings.TrimPrefix(parts[len(parts)-1], "b/")
}
