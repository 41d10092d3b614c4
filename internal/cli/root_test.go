package cli

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestVersionNotEmpty(t *testing.T) {
	if Version == "" {
		t.Error("Version should not be empty")
	}
}

func TestExecuteVersion(t *testing.T) {
	out, err := executeCLI(t, "version")
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	requireContains(t, out, "feed2mastodon "+Version)
}

func TestRootRejectsExtraArgs(t *testing.T) {
	_, err := executeCLI(t, "https://a.example/feed", "https://b.example/feed")
	if err == nil {
		t.Fatal("expected error for two feed URLs")
	}
}

func TestRootDefaultsMatchConfig(t *testing.T) {
	setMastodonEnv(t, "token")
	resetFlags(t)

	cfg, err := loadConfig(rootCmd, []string{"https://example.com/feed.xml"})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Feed.URL != "https://example.com/feed.xml" {
		t.Errorf("feed url = %q", cfg.Feed.URL)
	}
	if cfg.State.File != stateFile {
		t.Errorf("state file = %q, flag default %q", cfg.State.File, stateFile)
	}
	if cfg.Post.Posts() != maxPosts || cfg.Post.Length() != postMaxLength || cfg.Post.Images() != postMaxImages {
		t.Errorf("post limits differ from flag defaults: %+v", cfg.Post)
	}
	if cfg.Post.Template != postTemplate || cfg.Post.Visibility != postVisibility {
		t.Errorf("post settings differ from flag defaults: %+v", cfg.Post)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadConfigPrecedence(t *testing.T) {
	setMastodonEnv(t, "token")
	t.Setenv("MASTODON_API_BASE_URL", "https://env.example")
	resetFlags(t)
	t.Cleanup(func() { resetFlags(t) })

	dir := t.TempDir()
	configFile := filepath.Join(dir, "feed2mastodon.yaml")
	writeFile(t, configFile, `
feed:
  url: https://file.example/feed.xml
state:
  file: file-state.json
post:
  max_posts: 3
  visibility: unlisted
  language: de
mastodon:
  api_base_url: https://file.example
`)

	err := rootCmd.ParseFlags([]string{
		"--config", configFile,
		"--max-posts", "7",
		"--post-max-images", "0",
		"--dry-run",
	})
	if err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := loadConfig(rootCmd, nil)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"feed url from file", cfg.Feed.URL, "https://file.example/feed.xml"},
		{"state file from file", cfg.State.File, "file-state.json"},
		{"max posts from flag", cfg.Post.Posts(), 7},
		{"max images from flag", cfg.Post.Images(), 0},
		{"visibility from file", cfg.Post.Visibility, "unlisted"},
		{"language from file", cfg.Post.Language, "de"},
		{"base url from env", cfg.Mastodon.APIBaseURL, "https://env.example"},
		{"dry run from flag", cfg.DryRun, true},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, tt.got, tt.want)
		}
	}

	cfg, err = loadConfig(rootCmd, []string{"https://arg.example/feed.xml"})
	if err != nil {
		t.Fatalf("load config with arg: %v", err)
	}
	if cfg.Feed.URL != "https://arg.example/feed.xml" {
		t.Errorf("positional FEED_URL should win, got %q", cfg.Feed.URL)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	resetFlags(t)
	t.Cleanup(func() { resetFlags(t) })
	if err := rootCmd.ParseFlags([]string{"--config", filepath.Join(t.TempDir(), "nope.yaml")}); err != nil {
		t.Fatal(err)
	}

	_, err := loadConfig(rootCmd, nil)
	if err == nil || !strings.Contains(err.Error(), "load config") {
		t.Fatalf("expected load error, got %v", err)
	}
}
