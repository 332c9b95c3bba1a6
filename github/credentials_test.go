package github

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testPrivateKey(t *testing.T) []byte {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
}

func newTestManager(t *testing.T, baseURL string) *CredentialManager {
	t.Helper()
	m, err := NewCredentialManager(12345, testPrivateKey(t))
	if err != nil {
		t.Fatal(err)
	}
	m.SetBaseURL(baseURL)
	return m
}

func TestNewCredentialManagerBadKey(t *testing.T) {
	if _, err := NewCredentialManager(12345, []byte("not a pem key")); err == nil {
		t.Fatal("expected construction to fail on an unparsable key")
	}
}

func TestGetInstallationToken(t *testing.T) {
	var installationLookups []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/installation"):
			installationLookups = append(installationLookups, r.URL.Path)
			// Each repository resolves to its own installation; the app is
			// installed on two orgs and the lookup must be repo-scoped.
			var id int64
			if strings.Contains(r.URL.Path, "/repos/acme/") {
				id = 101
			} else {
				id = 202
			}
			fmt.Fprintf(w, `{"id": %d}`, id)

		case r.URL.Path == "/app/installations/101/access_tokens":
			if r.Method != http.MethodPost {
				t.Errorf("expected POST, got %s", r.Method)
			}
			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, `{"token": "ghs_acme_token", "expires_at": "2026-08-29T13:00:00Z"}`)

		case r.URL.Path == "/app/installations/202/access_tokens":
			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, `{"token": "ghs_other_token", "expires_at": "2026-08-29T13:00:00Z"}`)

		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	m := newTestManager(t, server.URL)

	tok, err := m.GetInstallationToken(context.Background(), "acme/api")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok.Value != "ghs_acme_token" {
		t.Errorf("got the wrong org's token: %s", tok.Value)
	}

	other, err := m.GetInstallationToken(context.Background(), "otherorg/tool")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if other.Value != "ghs_other_token" {
		t.Errorf("got the wrong org's token: %s", other.Value)
	}

	want := []string{"/repos/acme/api/installation", "/repos/otherorg/tool/installation"}
	if len(installationLookups) != 2 || installationLookups[0] != want[0] || installationLookups[1] != want[1] {
		t.Errorf("expected repo-scoped lookups %v, got %v", want, installationLookups)
	}
}

func TestGetInstallationTokenNotInstalled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message": "Not Found"}`)
	}))
	defer server.Close()

	m := newTestManager(t, server.URL)

	_, err := m.GetInstallationToken(context.Background(), "acme/unknown")
	if !errors.Is(err, ErrAppNotInstalled) {
		t.Errorf("expected ErrAppNotInstalled, got %v", err)
	}
}

func TestGetInstallationTokenBadSlug(t *testing.T) {
	m := newTestManager(t, "http://unused.invalid")

	if _, err := m.GetInstallationToken(context.Background(), "no-slash"); err == nil {
		t.Error("expected error for slug without owner")
	}
}

func TestGetInstallationTokenEmptyToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/installation") {
			fmt.Fprint(w, `{"id": 101}`)
			return
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"token": ""}`)
	}))
	defer server.Close()

	m := newTestManager(t, server.URL)

	if _, err := m.GetInstallationToken(context.Background(), "acme/api"); err == nil {
		t.Error("expected error for empty token in response")
	}
}
