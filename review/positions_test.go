package review

import (
	"reflect"
	"testing"
)

func TestBuildPositionIndexSingleHunk(t *testing.T) {
	diff := `diff --git a/main.go b/main.go
index 1234567..89abcde 100644
--- a/main.go
+++ b/main.go
@@ -1,3 +1,4 @@
 package main
+import "fmt"
 func main() {
`

	index := BuildPositionIndex(diff)

	// Position 1 is the hunk header. New-file lines 1, 2, 3 land on
	// positions 2, 3, 4.
	tests := []struct {
		line int
		pos  int
	}{
		{1, 2},
		{2, 3},
		{3, 4},
	}
	for _, tt := range tests {
		pos, ok := index.Position("main.go", tt.line)
		if !ok {
			t.Fatalf("line %d: expected a position, got none", tt.line)
		}
		if pos != tt.pos {
			t.Errorf("line %d: expected position %d, got %d", tt.line, tt.pos, pos)
		}
	}

	if _, ok := index.Position("main.go", 4); ok {
		t.Error("line 4 is past the hunk, expected no position")
	}
}

func TestBuildPositionIndexRemovedLines(t *testing.T) {
	diff := `diff --git a/main.go b/main.go
--- a/main.go
+++ b/main.go
@@ -1,3 +1,3 @@
 package main
-var old = 1
+var new = 2
`

	index := BuildPositionIndex(diff)

	// The removed line occupies position 2 but has no new-file line.
	// New line 2 is the added line at position 3.
	if pos, ok := index.Position("main.go", 2); !ok || pos != 3 {
		t.Errorf("expected new line 2 at position 3, got %d (ok=%v)", pos, ok)
	}

	// Only lines 1 and 2 exist on the new side of this hunk.
	if got := len(index["main.go"]); got != 2 {
		t.Errorf("expected 2 entries, got %d", got)
	}
}

func TestBuildPositionIndexMultiHunk(t *testing.T) {
	diff := `diff --git a/app.py b/app.py
--- a/app.py
+++ b/app.py
@@ -1,2 +1,3 @@
 import os
+import sys
 import json
@@ -10,2 +11,3 @@
 def handler():
+    log()
     pass
`

	index := BuildPositionIndex(diff)

	// The position counter keeps running across hunks within a file.
	// First hunk: header=1, lines 1..3 at positions 2..4.
	// Second hunk: header=5, new lines 11..13 at positions 6..8.
	tests := []struct {
		line int
		pos  int
	}{
		{1, 2},
		{2, 3},
		{3, 4},
		{11, 6},
		{12, 7},
		{13, 8},
	}
	for _, tt := range tests {
		pos, ok := index.Position("app.py", tt.line)
		if !ok || pos != tt.pos {
			t.Errorf("line %d: expected position %d, got %d (ok=%v)", tt.line, tt.pos, pos, ok)
		}
	}
}

func TestBuildPositionIndexMultiFile(t *testing.T) {
	diff := `diff --git a/a.go b/a.go
--- a/a.go
+++ b/a.go
@@ -1,1 +1,2 @@
 package a
+var x = 1
diff --git a/b.go b/b.go
--- a/b.go
+++ b/b.go
@@ -1,1 +1,2 @@
 package b
+var y = 2
`

	index := BuildPositionIndex(diff)

	// The position counter resets at each file boundary.
	if pos, ok := index.Position("a.go", 2); !ok || pos != 3 {
		t.Errorf("a.go line 2: expected position 3, got %d (ok=%v)", pos, ok)
	}
	if pos, ok := index.Position("b.go", 2); !ok || pos != 3 {
		t.Errorf("b.go line 2: expected position 3, got %d (ok=%v)", pos, ok)
	}
}

func TestBuildPositionIndexDeletedFile(t *testing.T) {
	diff := `diff --git a/gone.go b/gone.go
deleted file mode 100644
--- a/gone.go
+++ /dev/null
@@ -1,2 +0,0 @@
-package gone
-var x = 1
`

	index := BuildPositionIndex(diff)

	if index.HasFile("gone.go") {
		t.Error("deleted file should have no commentable lines")
	}
	if len(index) != 0 {
		t.Errorf("expected empty index, got %d files", len(index))
	}
}

func TestBuildPositionIndexRename(t *testing.T) {
	diff := `diff --git a/old/name.go b/new/name.go
--- a/old/name.go
+++ b/new/name.go
@@ -1,1 +1,2 @@
 package name
+var z = 3
`

	index := BuildPositionIndex(diff)

	// Entries are recorded under the new path only.
	if !index.HasFile("new/name.go") {
		t.Fatal("expected entries under the new path")
	}
	if index.HasFile("old/name.go") {
		t.Error("old path should have no entries")
	}
	if pos, ok := index.Position("new/name.go", 2); !ok || pos != 3 {
		t.Errorf("new path line 2: expected position 3, got %d (ok=%v)", pos, ok)
	}
}

func TestBuildPositionIndexNoNewlineMarker(t *testing.T) {
	diff := `diff --git a/f.txt b/f.txt
--- a/f.txt
+++ b/f.txt
@@ -1,1 +1,1 @@
-old
\ No newline at end of file
+new
\ No newline at end of file
`

	index := BuildPositionIndex(diff)

	// Markers do not consume positions: header=1, "-old"=2, "+new"=3.
	if pos, ok := index.Position("f.txt", 1); !ok || pos != 3 {
		t.Errorf("expected line 1 at position 3, got %d (ok=%v)", pos, ok)
	}
}

func TestBuildPositionIndexEmptyDiff(t *testing.T) {
	index := BuildPositionIndex("")
	if len(index) != 0 {
		t.Errorf("expected empty index for empty diff, got %d files", len(index))
	}
}

func TestBuildPositionIndexDeterministic(t *testing.T) {
	diff := `diff --git a/a.go b/a.go
--- a/a.go
+++ b/a.go
@@ -1,2 +1,3 @@
 package a
+var x = 1
 var y = 2
`

	first := BuildPositionIndex(diff)
	for i := 0; i < 10; i++ {
		if got := BuildPositionIndex(diff); !reflect.DeepEqual(first, got) {
			t.Fatalf("iteration %d produced a different index", i)
		}
	}
}

func TestBuildPositionIndexHunkWithoutCount(t *testing.T) {
	// Single-line hunks may omit the ",count" part of the header.
	diff := `diff --git a/one.go b/one.go
--- a/one.go
+++ b/one.go
@@ -1 +1 @@
-old
+new
`

	index := BuildPositionIndex(diff)

	if pos, ok := index.Position("one.go", 1); !ok || pos != 3 {
		t.Errorf("expected line 1 at position 3, got %d (ok=%v)", pos, ok)
	}
}
