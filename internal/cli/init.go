package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/feed2mastodon/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write an example config file",
	Long:  "init writes an example config to --config (default " + config.DefaultConfigFile + "). An existing file is left untouched.",
	Args:  cobra.NoArgs,
	RunE:  initAction,
}

func initAction(_ *cobra.Command, _ []string) error {
	path := configPath
	if path == "" {
		path = config.DefaultConfigFile
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}

	wrote, err := writeIfNotExists(path, []byte(exampleConfig))
	if err != nil {
		return err
	}
	if wrote {
		fmt.Printf("Initialized %s. Export MASTODON_ACCESS_TOKEN, then run: feed2mastodon --config %s\n", path, path)
	} else {
		fmt.Printf("Config %s already initialized.\n", path)
	}
	return nil
}

// writeIfNotExists writes data to path if the file does not exist.
// Returns true if the file was created.
func writeIfNotExists(path string, data []byte) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("  exists: %s\n", path)
		return false, nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Printf("  created: %s\n", path)
	return true, nil
}

const exampleConfig = `# feed2mastodon configuration
#
# Credentials are read from the environment only:
#   MASTODON_ACCESS_TOKEN (required), MASTODON_CLIENT_ID, MASTODON_CLIENT_SECRET
# MASTODON_API_BASE_URL overrides mastodon.api_base_url.
# Command-line flags override everything in this file.

feed:
  url: "https://example.com/feed.xml"
  timeout: 30s
  # user_agent: "feed2mastodon/1.0"

state:
  # .json, .db/.sqlite/.sqlite3 or any other extension for one id per line
  file: state.json

post:
  max_posts: 10
  template: "{title}\n\n{link}"
  # placeholders: {title} {link} {summary} {content} {published}
  hashtags: ""
  max_length: 499
  max_images: 4
  visibility: public   # public, unlisted, private, direct
  # language: en
  # regex patterns removed from title, summary and content
  # strip:
  #   - "(?i)the post .* appeared first on .*$"

mastodon:
  api_base_url: "https://mastodon.social"

dry_run: false
`
