package config

import (
	"context"
	"errors"
	"testing"

	"github.com/stitchhq/stitch/github"
)

func TestParse(t *testing.T) {
	content := []byte(`
enabled: true
trigger: auto
exclude:
  - "vendor/**"
  - "*.gen.go"
instructions: "Focus on security."
`)

	cfg, err := Parse(content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !cfg.Enabled {
		t.Error("expected enabled")
	}
	if cfg.Trigger != TriggerAuto {
		t.Errorf("expected auto trigger, got %s", cfg.Trigger)
	}
	if len(cfg.Exclude) != 2 {
		t.Errorf("expected 2 exclude patterns, got %d", len(cfg.Exclude))
	}
	if cfg.Instructions != "Focus on security." {
		t.Errorf("wrong instructions: %s", cfg.Instructions)
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad yaml", ":\n  - not: valid: yaml"},
		{"bad trigger", "trigger: sometimes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.content)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestParseDefaultsTrigger(t *testing.T) {
	cfg, err := Parse([]byte("enabled: true"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Trigger != TriggerAuto {
		t.Errorf("empty trigger should default to auto, got %s", cfg.Trigger)
	}
}

func TestShouldReviewOnEvent(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want bool
	}{
		{"enabled auto", Config{Enabled: true, Trigger: TriggerAuto}, true},
		{"disabled", Config{Enabled: false, Trigger: TriggerAuto}, false},
		{"on-request", Config{Enabled: true, Trigger: TriggerOnRequest}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.ShouldReviewOnEvent(); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestShouldExcludeFile(t *testing.T) {
	cfg := &Config{
		Exclude: []string{"vendor/**", "*.gen.go", "docs/*.md"},
	}

	tests := []struct {
		path string
		want bool
	}{
		{"vendor/lib/thing.go", true},
		{"api/types.gen.go", true},
		{"docs/readme.md", true},
		{"main.go", false},
		{"internal/vendor.go", false},
		{"docs/deep/nested.md", false},
	}

	for _, tt := range tests {
		if got := cfg.ShouldExcludeFile(tt.path); got != tt.want {
			t.Errorf("ShouldExcludeFile(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

type fakeFetcher struct {
	content string
	err     error
	path    string
}

func (f *fakeFetcher) FetchFileContent(ctx context.Context, tok *github.InstallationToken, owner, repo, path, ref string) (string, error) {
	f.path = path
	return f.content, f.err
}

func TestLoaderMissingFileUsesDefaults(t *testing.T) {
	fetcher := &fakeFetcher{content: ""}
	loader := NewLoader(fetcher)

	cfg, err := loader.Load(context.Background(), nil, "acme", "api", "main")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Enabled || cfg.Trigger != TriggerAuto {
		t.Errorf("expected default config, got %+v", cfg)
	}
	if fetcher.path != DefaultConfigPath {
		t.Errorf("expected fetch of %s, got %s", DefaultConfigPath, fetcher.path)
	}
}

func TestLoaderInvalidFileIsParseError(t *testing.T) {
	fetcher := &fakeFetcher{content: "trigger: whenever"}
	loader := NewLoader(fetcher)

	_, err := loader.Load(context.Background(), nil, "acme", "api", "main")
	var parseErr *ConfigParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ConfigParseError, got %v", err)
	}
	if parseErr.Path != DefaultConfigPath {
		t.Errorf("expected path %s, got %s", DefaultConfigPath, parseErr.Path)
	}
}

func TestLoaderFetchErrorPropagates(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("502")}
	loader := NewLoader(fetcher)

	_, err := loader.Load(context.Background(), nil, "acme", "api", "main")
	if err == nil {
		t.Fatal("expected an error")
	}
	var parseErr *ConfigParseError
	if errors.As(err, &parseErr) {
		t.Error("fetch errors must not look like parse errors")
	}
}
