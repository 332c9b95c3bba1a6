package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchDiff(t *testing.T) {
	const diff = "diff --git a/main.go b/main.go\n"

	var gotAccept, gotAuth, gotVersion string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept")
		gotAuth = r.Header.Get("Authorization")
		gotVersion = r.Header.Get("X-GitHub-Api-Version")
		fmt.Fprint(w, diff)
	}))
	defer server.Close()

	client := NewClientWithBaseURL(server.URL)
	tok := &InstallationToken{Value: "ghs_abc"}

	got, err := client.FetchDiff(context.Background(), tok, "acme", "api", 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != diff {
		t.Errorf("wrong diff: %q", got)
	}
	if gotAccept != "application/vnd.github.v3.diff" {
		t.Errorf("wrong accept header: %s", gotAccept)
	}
	if gotAuth != "Bearer ghs_abc" {
		t.Errorf("wrong authorization: %s", gotAuth)
	}
	if gotVersion != apiVersion {
		t.Errorf("wrong api version header: %s", gotVersion)
	}
}

func TestFetchDiffRetriesServerErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, "diff --git a/x b/x\n")
	}))
	defer server.Close()

	client := NewClientWithBaseURL(server.URL)

	if _, err := client.FetchDiff(context.Background(), nil, "acme", "api", 7); err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
}

func TestFetchDiffDoesNotRetryNotFound(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClientWithBaseURL(server.URL)

	if _, err := client.FetchDiff(context.Background(), nil, "acme", "api", 7); err == nil {
		t.Fatal("expected an error")
	}
	if attempts != 1 {
		t.Errorf("404 must not be retried, got %d attempts", attempts)
	}
}

func TestCreateReview(t *testing.T) {
	var gotBody ReviewRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/acme/api/pulls/7/reviews" {
			t.Errorf("wrong path: %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		fmt.Fprint(w, `{"id": 900, "state": "COMMENTED", "html_url": "https://github.com/acme/api/pull/7#review-900"}`)
	}))
	defer server.Close()

	client := NewClientWithBaseURL(server.URL)

	review, err := client.CreateReview(context.Background(), nil, "acme", "api", 7, &ReviewRequest{
		CommitID: "abc123",
		Body:     "summary",
		Event:    "COMMENT",
		Comments: []ReviewComment{
			{Path: "main.go", Position: 3, Body: "comment one"},
			{Path: "main.go", Line: 9, StartLine: 7, Side: "RIGHT", StartSide: "RIGHT", Body: "comment two"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if review.ID != 900 {
		t.Errorf("wrong review id: %d", review.ID)
	}

	// The review is one atomic submission: body, event, and all comments.
	if gotBody.CommitID != "abc123" || gotBody.Event != "COMMENT" || len(gotBody.Comments) != 2 {
		t.Errorf("wrong submission: %+v", gotBody)
	}
	if gotBody.Comments[1].StartLine != 7 || gotBody.Comments[1].Side != "RIGHT" {
		t.Errorf("range addressing lost in transit: %+v", gotBody.Comments[1])
	}
}

func TestFetchFileContent(t *testing.T) {
	content := base64.StdEncoding.EncodeToString([]byte("enabled: true\n"))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("ref") != "main" {
			t.Errorf("wrong ref: %s", r.URL.Query().Get("ref"))
		}
		fmt.Fprintf(w, `{"type": "file", "encoding": "base64", "content": "%s"}`, content)
	}))
	defer server.Close()

	client := NewClientWithBaseURL(server.URL)

	got, err := client.FetchFileContent(context.Background(), nil, "acme", "api", ".github/stitch.yml", "main")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "enabled: true\n" {
		t.Errorf("wrong content: %q", got)
	}
}

func TestFetchFileContentMissingFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClientWithBaseURL(server.URL)

	got, err := client.FetchFileContent(context.Background(), nil, "acme", "api", ".github/stitch.yml", "main")
	if err != nil {
		t.Fatalf("missing file must not error: %v", err)
	}
	if got != "" {
		t.Errorf("expected empty content, got %q", got)
	}
}

func TestGetCombinedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/acme/api/commits/abc123/status" {
			t.Errorf("wrong path: %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"state": "failure", "total_count": 2, "statuses": [{"state": "failure", "context": "ci/test"}, {"state": "success", "context": "ci/lint"}]}`)
	}))
	defer server.Close()

	client := NewClientWithBaseURL(server.URL)

	status, err := client.GetCombinedStatus(context.Background(), nil, "acme", "api", "abc123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.State != "failure" || status.TotalCount != 2 {
		t.Errorf("wrong status: %+v", status)
	}
}
