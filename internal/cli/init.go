package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lpdev/bitpredector/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config directory with example files",
	RunE:  initAction,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func initAction(_ *cobra.Command, _ []string) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	files := []struct {
		name string
		data []byte
		perm os.FileMode
	}{
		{config.DefaultConfigFile, []byte(exampleConfig), 0o644},
		{config.DefaultLexiconFile, config.DefaultLexiconData(), 0o644},
		{config.DefaultEnvFile, []byte(exampleEnv), 0o600},
	}

	created := 0
	for _, f := range files {
		wrote, err := writeIfNotExists(filepath.Join(configDir, f.name), f.data, f.perm)
		if err != nil {
			return err
		}
		if wrote {
			created++
		}
	}

	if created == 0 {
		fmt.Printf("Config directory %s already initialized.\n", configDir)
	} else {
		fmt.Printf("Initialized %s with %d config files.\n", configDir, created)
	}
	return nil
}

// writeIfNotExists writes data to path if the file does not exist.
// Returns true if the file was created.
func writeIfNotExists(path string, data []byte, perm os.FileMode) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("  exists: %s\n", path)
		return false, nil
	}
	if err := os.WriteFile(path, data, perm); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Printf("  created: %s\n", path)
	return true, nil
}

const exampleConfig = `# bitpredector configuration

sources:
  microblog:
    enabled: true
    bearer_token_env: BITPREDECTOR_MICROBLOG_TOKEN
    lang: en
    max_items: 100
  forum:
    enabled: true
    community: cryptocurrency
    max_items: 100
  news:
    enabled: true
    api_key_env: BITPREDECTOR_NEWS_API_KEY
    language: en
    sort_by: publishedAt
    query: cryptocurrency
    max_items: 100
  rss:
    feeds: []
    # - "https://www.coindesk.com/arc/outboundfeeds/rss/"

cache:
  ttl: 300s
  capacity: 100
  # redis_url: redis://localhost:6379/0

scorer:
  mode: lexicon
  # mode: classifier
  # classifier:
  #   endpoint: https://api-inference.huggingface.co/models/ProsusAI/finbert
  #   token_env: BITPREDECTOR_CLASSIFIER_TOKEN
  #   timeout: 10s

aggregate:
  fetch_timeout: 30s
  score_workers: 8

storage:
  path: .bitpredector/bitpredector.db
  retain_days: 30

http:
  addr: ":8080"

log:
  level: info
  format: console
`

const exampleEnv = `# Secrets read by config.yaml *_env settings. Real environment variables win.
BITPREDECTOR_MICROBLOG_TOKEN=
BITPREDECTOR_NEWS_API_KEY=
`
