package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lpdev/bitpredector/internal/cache"
	"github.com/lpdev/bitpredector/internal/config"
)

const doctorRedisTimeout = 3 * time.Second

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, credentials and storage",
	RunE:  doctorAction,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func doctorAction(cmd *cobra.Command, _ []string) error {
	ok := true

	// Config dir
	if info, err := os.Stat(configDir); err != nil || !info.IsDir() {
		printCheck(false, "config directory %s", configDir)
		ok = false
	} else {
		printCheck(true, "config directory %s", configDir)
	}

	// Config file
	cfg, err := config.Load(configDir)
	if err != nil {
		printCheck(false, "config.yaml: %v", err)
		ok = false
	} else {
		printCheck(true, "config.yaml (scorer %s, cache ttl %s, capacity %d)",
			cfg.Scorer.Mode, cfg.Cache.TTL.Duration, cfg.Cache.Capacity)
	}

	// Lexicon
	if lx, err := config.LoadLexicon(configDir); err != nil {
		printCheck(false, "lexicon.yaml: %v", err)
		ok = false
	} else {
		printCheck(true, "lexicon (%d words)", len(lx.Words))
	}

	if cfg == nil {
		return fmt.Errorf("some checks failed")
	}

	// Credentials of enabled sources
	if !checkCredentials(cfg) {
		ok = false
	}

	// Database
	db, err := openStore(cfg)
	if err != nil {
		printCheck(false, "database: %v", err)
		ok = false
	} else {
		_ = db.Close()
		printCheck(true, "database %s", cfg.Storage.Path)
	}

	// Redis tier
	if cfg.Cache.RedisURL != "" {
		ctx, cancel := context.WithTimeout(commandContext(cmd), doctorRedisTimeout)
		client, err := cache.OpenRedis(ctx, cfg.Cache.RedisURL)
		cancel()
		if err != nil {
			printCheck(false, "redis: %v", err)
			ok = false
		} else {
			_ = client.Close()
			printCheck(true, "redis")
		}
	}

	// Classifier
	if cfg.Scorer.Mode == "classifier" {
		printCheck(true, "classifier endpoint %s", cfg.Scorer.Classifier.Endpoint)
		if cfg.Scorer.Classifier.TokenEnv != "" && cfg.Scorer.Classifier.Token == "" {
			printInfo("classifier token $%s is empty, requests go out unauthenticated", cfg.Scorer.Classifier.TokenEnv)
		}
	}

	if !ok {
		return fmt.Errorf("some checks failed")
	}
	fmt.Println("\nAll checks passed.")
	return nil
}

// checkCredentials fails for an enabled source whose secret is missing. Such a
// source would report failed on every fetch.
func checkCredentials(cfg *config.Config) bool {
	ok := true
	sc := cfg.Sources

	check := func(name string, enabled bool, secret, envName string) {
		switch {
		case !enabled:
			printInfo("%s: disabled", name)
		case envName == "":
			printCheck(false, "%s: no credentials env var configured", name)
			ok = false
		case secret == "":
			printCheck(false, "%s: $%s is not set", name, envName)
			ok = false
		default:
			printCheck(true, "%s credentials ($%s)", name, envName)
		}
	}
	check("microblog", sc.Microblog.IsEnabled(), sc.Microblog.BearerToken, sc.Microblog.BearerTokenEnv)
	check("news", sc.News.IsEnabled(), sc.News.APIKey, sc.News.APIKeyEnv)

	if sc.Forum.IsEnabled() {
		printCheck(true, "forum r/%s", sc.Forum.Community)
	} else {
		printInfo("forum: disabled")
	}
	if sc.RSS.IsEnabled() {
		printCheck(true, "rss (%d feeds)", len(sc.RSS.Feeds))
	}
	return ok
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
