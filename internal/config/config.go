package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/feed2mastodon/internal/format"
	"github.com/ppiankov/feed2mastodon/internal/publish"
)

const (
	DefaultConfigFile      = "feed2mastodon.yaml"
	DefaultStateFile       = "state.json"
	DefaultMaxPosts        = 10
	DefaultPostTemplate    = "{title}\n\n{link}"
	DefaultPostMaxLength   = 499
	DefaultPostMaxImages   = 4
	DefaultPostVisibility  = "public"
	DefaultMastodonBaseURL = "https://mastodon.social"
	DefaultFeedTimeout     = 30 * time.Second

	// MaxImagesLimit is the number of media attachments a status accepts.
	MaxImagesLimit = 4
)

// Duration wraps time.Duration for YAML unmarshaling from strings like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

type Config struct {
	Feed     FeedConfig     `yaml:"feed"`
	State    StateConfig    `yaml:"state"`
	Post     PostConfig     `yaml:"post"`
	Mastodon MastodonConfig `yaml:"mastodon"`
	DryRun   bool           `yaml:"dry_run"`
}

type FeedConfig struct {
	URL       string   `yaml:"url"`
	Timeout   Duration `yaml:"timeout"`
	UserAgent string   `yaml:"user_agent"`
}

type StateConfig struct {
	File string `yaml:"file"`
}

type PostConfig struct {
	MaxPosts   *int     `yaml:"max_posts"`
	Template   string   `yaml:"template"`
	Hashtags   string   `yaml:"hashtags"`
	MaxLength  *int     `yaml:"max_length"`
	MaxImages  *int     `yaml:"max_images"`
	Visibility string   `yaml:"visibility"`
	Language   string   `yaml:"language"`
	Strip      []string `yaml:"strip"`
}

// Posts returns the per-run post cap, with the default when unset.
func (p PostConfig) Posts() int {
	if p.MaxPosts == nil {
		return DefaultMaxPosts
	}
	return *p.MaxPosts
}

// Length returns the status length limit, with the default when unset.
func (p PostConfig) Length() int {
	if p.MaxLength == nil {
		return DefaultPostMaxLength
	}
	return *p.MaxLength
}

// Images returns the image cap, with the default when unset.
func (p PostConfig) Images() int {
	if p.MaxImages == nil {
		return DefaultPostMaxImages
	}
	return *p.MaxImages
}

// MastodonConfig holds the instance URL and app credentials. Credentials are
// only read from the environment.
type MastodonConfig struct {
	APIBaseURL   string `yaml:"api_base_url" env:"MASTODON_API_BASE_URL"`
	ClientID     string `yaml:"-" env:"MASTODON_CLIENT_ID"`
	ClientSecret string `yaml:"-" env:"MASTODON_CLIENT_SECRET"`
	AccessToken  string `yaml:"-" env:"MASTODON_ACCESS_TOKEN"`
}

// Load reads the optional config file at path, overlays the environment and
// applies defaults. An empty path skips the file. Callers apply command-line
// overrides and then call Validate.
func Load(path string) (*Config, error) {
	var cfg Config

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cleanenv.ReadEnv(&cfg.Mastodon); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.State.File == "" {
		cfg.State.File = DefaultStateFile
	}
	if cfg.Post.Template == "" {
		cfg.Post.Template = DefaultPostTemplate
	}
	if cfg.Post.Visibility == "" {
		cfg.Post.Visibility = DefaultPostVisibility
	}
	if cfg.Feed.Timeout.Duration == 0 {
		cfg.Feed.Timeout.Duration = DefaultFeedTimeout
	}
	if cfg.Mastodon.APIBaseURL == "" {
		cfg.Mastodon.APIBaseURL = DefaultMastodonBaseURL
	}
}

// Validate checks the merged configuration.
func (c *Config) Validate() error {
	if err := validateHTTPURL(c.Feed.URL); err != nil {
		return fmt.Errorf("feed url: %w", err)
	}
	if err := validateHTTPURL(c.Mastodon.APIBaseURL); err != nil {
		return fmt.Errorf("mastodon api base url: %w", err)
	}

	if _, err := publish.ParseVisibility(c.Post.Visibility); err != nil {
		return fmt.Errorf("post visibility: %w", err)
	}
	if _, err := format.ParseTemplate(c.Post.Template); err != nil {
		return fmt.Errorf("post template: %w", err)
	}
	if _, err := format.CompileStripPatterns(c.Post.Strip); err != nil {
		return fmt.Errorf("post strip: %w", err)
	}

	maxLength := c.Post.Length()
	if maxLength <= 0 {
		return fmt.Errorf("post max length: must be positive, got %d", maxLength)
	}
	if tags := format.NormalizeHashtags(c.Post.Hashtags); tags != "" {
		if n := len([]rune(tags)); n > maxLength-2 {
			return fmt.Errorf("post hashtags: %d characters leave no room for text within %d", n, maxLength)
		}
	}
	if images := c.Post.Images(); images > MaxImagesLimit {
		return fmt.Errorf("post max images: at most %d allowed, got %d", MaxImagesLimit, images)
	}
	if c.Feed.Timeout.Duration < 0 {
		return errors.New("feed timeout: must not be negative")
	}

	if strings.TrimSpace(c.State.File) == "" {
		return errors.New("state file: path is required")
	}

	if !c.DryRun && c.Mastodon.AccessToken == "" {
		return errors.New("mastodon access token: MASTODON_ACCESS_TOKEN is required unless --dry-run is set")
	}

	return nil
}

func validateHTTPURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return errors.New("is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%q: host is missing", raw)
	}
	return nil
}
