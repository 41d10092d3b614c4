// Package cli provides the command-line interface for feed2mastodon.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/feed2mastodon/internal/config"
)

// Version and Commit are set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

var (
	configPath     string
	stateFile      string
	maxPosts       int
	postTemplate   string
	postHashtags   string
	postMaxLength  int
	postMaxImages  int
	postVisibility string
	postLanguage   string
	apiBaseURL     string
	dryRun         bool
	verbose        bool
)

var rootCmd = &cobra.Command{
	Use:   "feed2mastodon [flags] FEED_URL",
	Short: "Post new RSS/Atom feed entries to Mastodon",
	Long: "feed2mastodon fetches a feed, posts every entry it has not posted before to a Mastodon account, " +
		"and records the posted entries in a state file. Run it from cron or a systemd timer.",
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runAction,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("feed2mastodon %s (%s)\n", Version, Commit)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "YAML config file")
	pf.StringVar(&stateFile, "state-file", config.DefaultStateFile, "posted entries state file (.json, .db/.sqlite or plain text)")
	pf.IntVar(&maxPosts, "max-posts", config.DefaultMaxPosts, "maximum number of entries to post per run")
	pf.StringVar(&postTemplate, "post-template", config.DefaultPostTemplate, "post template with {title}, {link}, {summary}, {content} and {published}")
	pf.StringVar(&postHashtags, "post-hashtags", "", "hashtags appended to every post, separated by spaces or commas")
	pf.IntVar(&postMaxLength, "post-max-length", config.DefaultPostMaxLength, "maximum post length in characters")
	pf.IntVar(&postMaxImages, "post-max-images", config.DefaultPostMaxImages, "maximum number of attached images (at most 4)")
	pf.StringVar(&postVisibility, "post-visibility", config.DefaultPostVisibility, "post visibility: public, unlisted, private or direct")
	pf.StringVar(&postLanguage, "post-language", "", "ISO 639 language code of the posts")
	pf.StringVar(&apiBaseURL, "mastodon-api-base-url", "", "Mastodon instance URL (default $MASTODON_API_BASE_URL or "+config.DefaultMastodonBaseURL+")")
	pf.BoolVar(&dryRun, "dry-run", false, "format posts without publishing them or updating the state file")
	pf.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging and upstream error details")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(doctorCmd)
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// Verbose reports whether --verbose was given.
func Verbose() bool {
	return verbose
}

// loadConfig merges the config file, the environment and the flags the user
// set explicitly. A positional FEED_URL wins over the config file.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if len(args) > 0 {
		cfg.Feed.URL = args[0]
	}

	flags := cmd.Flags()
	if flags.Changed("state-file") {
		cfg.State.File = stateFile
	}
	if flags.Changed("max-posts") {
		n := maxPosts
		cfg.Post.MaxPosts = &n
	}
	if flags.Changed("post-template") {
		cfg.Post.Template = postTemplate
	}
	if flags.Changed("post-hashtags") {
		cfg.Post.Hashtags = postHashtags
	}
	if flags.Changed("post-max-length") {
		n := postMaxLength
		cfg.Post.MaxLength = &n
	}
	if flags.Changed("post-max-images") {
		n := postMaxImages
		cfg.Post.MaxImages = &n
	}
	if flags.Changed("post-visibility") {
		cfg.Post.Visibility = postVisibility
	}
	if flags.Changed("post-language") {
		cfg.Post.Language = postLanguage
	}
	if flags.Changed("mastodon-api-base-url") {
		cfg.Mastodon.APIBaseURL = apiBaseURL
	}
	if flags.Changed("dry-run") {
		cfg.DryRun = dryRun
	}

	return cfg, nil
}
