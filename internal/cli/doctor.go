package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/feed2mastodon/internal/state"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor [FEED_URL]",
	Short: "Check configuration, credentials, state file and feed",
	Args:  cobra.MaximumNArgs(1),
	RunE:  doctorAction,
}

func doctorAction(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	ok := true

	cfg, err := loadConfig(cmd, args)
	if err != nil {
		printCheck(false, "config: %v", err)
		return fmt.Errorf("some checks failed")
	}
	if err := cfg.Validate(); err != nil {
		printCheck(false, "config: %v", err)
		ok = false
	} else {
		printCheck(true, "config (feed %s, max %d posts, %s)", cfg.Feed.URL, cfg.Post.Posts(), cfg.Post.Visibility)
	}

	if _, err := newFormatter(cfg); err != nil {
		printCheck(false, "post template: %v", err)
		ok = false
	} else {
		printCheck(true, "post template")
	}

	// Credentials
	switch {
	case cfg.Mastodon.AccessToken == "" && cfg.DryRun:
		printInfo("no access token; dry-run only")
	case cfg.Mastodon.AccessToken == "":
		printCheck(false, "MASTODON_ACCESS_TOKEN not set")
		ok = false
	default:
		m, err := newMastodon(cfg, nil)
		if err != nil {
			printCheck(false, "mastodon: %v", err)
			ok = false
			break
		}
		acct, err := m.VerifyCredentials(ctx)
		if err != nil {
			printCheck(false, "mastodon %s: %v", cfg.Mastodon.APIBaseURL, err)
			ok = false
		} else {
			printCheck(true, "mastodon %s as @%s", cfg.Mastodon.APIBaseURL, acct)
		}
	}

	// State
	st, err := state.OpenReadOnly(cfg.State.File)
	if err != nil {
		printCheck(false, "state: %v", err)
		ok = false
	} else {
		posted, err := st.Load(ctx)
		if err != nil {
			printCheck(false, "state: %v", err)
			ok = false
		} else {
			printCheck(true, "state %s (%d posted entries)", cfg.State.File, posted.Len())
			if wm := posted.Watermark(); !wm.IsZero() {
				printInfo("entries published up to %s count as posted", wm.Format(time.RFC3339))
			}
		}
		_ = st.Close()
	}

	// Feed
	if cfg.Feed.URL == "" {
		printCheck(false, "feed: no FEED_URL given")
		ok = false
	} else {
		entries, err := newFetcher(cfg).Fetch(ctx, cfg.Feed.URL)
		if err != nil {
			printCheck(false, "feed: %v", err)
			ok = false
		} else {
			printCheck(true, "feed %s (%d entries)", cfg.Feed.URL, len(entries))
		}
	}

	if !ok {
		return fmt.Errorf("some checks failed")
	}
	fmt.Println("\nAll checks passed.")
	return nil
}

func printCheck(pass bool, format string, args ...any) {
	mark := "FAIL"
	if pass {
		mark = " OK "
	}
	fmt.Printf("[%s] %s\n", mark, fmt.Sprintf(format, args...))
}

func printInfo(format string, args ...any) {
	fmt.Printf("[INFO] %s\n", fmt.Sprintf(format, args...))
}
