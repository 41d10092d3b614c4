package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ppiankov/feed2mastodon/internal/config"
	"github.com/ppiankov/feed2mastodon/internal/feed"
	"github.com/ppiankov/feed2mastodon/internal/format"
	"github.com/ppiankov/feed2mastodon/internal/logger"
	"github.com/ppiankov/feed2mastodon/internal/publish"
	"github.com/ppiankov/feed2mastodon/internal/relay"
	"github.com/ppiankov/feed2mastodon/internal/state"
)

func runAction(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log := logger.New(logger.Opts{Verbose: verbose})

	formatter, err := newFormatter(cfg)
	if err != nil {
		return err
	}

	pub, err := newPublisher(cfg, log)
	if err != nil {
		return err
	}

	st, err := openState(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	runner, err := relay.New(relay.Options{
		Fetcher:   newFetcher(cfg),
		Store:     st,
		Formatter: formatter,
		Publisher: pub,
		MaxPosts:  cfg.Post.Posts(),
		DryRun:    cfg.DryRun,
		Logger:    log,
	})
	if err != nil {
		return err
	}

	res, err := runner.Run(cmd.Context(), cfg.Feed.URL)
	if err != nil {
		return err
	}

	switch {
	case res.Selected == 0:
		fmt.Printf("No new entries in %s (%d in feed).\n", cfg.Feed.URL, res.Fetched)
	case cfg.DryRun:
		fmt.Printf("Dry run: %d of %d entries would be posted, state file unchanged.\n", len(res.Posted), res.Fetched)
	default:
		fmt.Printf("Posted %d of %d entries, state saved to %s.\n", len(res.Posted), res.Fetched, cfg.State.File)
	}
	return nil
}

// openState opens the state store. A dry run never writes, so it gets a
// read-only store that leaves a missing database uncreated.
func openState(cfg *config.Config) (state.Store, error) {
	if cfg.DryRun {
		return state.OpenReadOnly(cfg.State.File)
	}
	return state.Open(cfg.State.File)
}

func newFetcher(cfg *config.Config) *feed.Fetcher {
	return feed.NewFetcher(feed.Options{
		Timeout:   cfg.Feed.Timeout.Duration,
		UserAgent: cfg.Feed.UserAgent,
	})
}

func newFormatter(cfg *config.Config) (*format.Formatter, error) {
	vis, err := publish.ParseVisibility(cfg.Post.Visibility)
	if err != nil {
		return nil, err
	}
	return format.New(format.Options{
		Template:   cfg.Post.Template,
		Hashtags:   cfg.Post.Hashtags,
		MaxLength:  cfg.Post.Length(),
		MaxImages:  cfg.Post.Images(),
		Visibility: vis,
		Language:   cfg.Post.Language,
		Strip:      cfg.Post.Strip,
	})
}

func newPublisher(cfg *config.Config, log *slog.Logger) (publish.Publisher, error) {
	if cfg.DryRun {
		return publish.NewDryRun(log), nil
	}
	return newMastodon(cfg, log)
}

func newMastodon(cfg *config.Config, log *slog.Logger) (*publish.Mastodon, error) {
	m, err := publish.NewMastodon(publish.MastodonOptions{
		BaseURL:      cfg.Mastodon.APIBaseURL,
		ClientID:     cfg.Mastodon.ClientID,
		ClientSecret: cfg.Mastodon.ClientSecret,
		AccessToken:  cfg.Mastodon.AccessToken,
		Logger:       log,
	})
	if err != nil {
		return nil, fmt.Errorf("create mastodon client: %w", err)
	}
	return m, nil
}
