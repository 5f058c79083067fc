package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lpdev/bitpredector/internal/report"
	"github.com/lpdev/bitpredector/internal/source"
	"github.com/lpdev/bitpredector/internal/store"
)

const newsListLimit = 10

var newsFormat string

var newsCmd = &cobra.Command{
	Use:   "news",
	Short: "Pull and list crypto news articles",
}

var newsPullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Fetch the latest articles from the news provider into the store",
	Args:  cobra.NoArgs,
	RunE:  newsPullAction,
}

var newsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the latest stored articles",
	Args:  cobra.NoArgs,
	RunE:  newsListAction,
}

func init() {
	newsListCmd.Flags().StringVar(&newsFormat, "format", "terminal", "output format: terminal, json, markdown")
	newsCmd.AddCommand(newsPullCmd, newsListCmd)
	rootCmd.AddCommand(newsCmd)
}

func newsPullAction(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	ctx := commandContext(cmd)
	news := newNewsSource(cfg, []source.Option{source.WithLogger(logger)})

	articles, err := news.Articles(ctx, cfg.Sources.News.Query)
	if err != nil {
		return fmt.Errorf("fetch news: %w", err)
	}

	now := time.Now().UTC()
	stored, skipped := 0, 0
	for _, a := range articles {
		in := articleInput(a, now)
		if in.URL == "" || in.Title == "" || in.PublishedAt.IsZero() {
			skipped++
			continue
		}
		if _, err := db.UpsertArticle(ctx, in); err != nil {
			return fmt.Errorf("store article: %w", err)
		}
		stored++
	}

	pruned, err := db.PruneOld(ctx, cfg.Storage.RetainDays)
	if err != nil {
		logger.Warn("prune old records failed", zap.Error(err))
	}

	fmt.Printf("Pulled %d articles", stored)
	if skipped > 0 {
		fmt.Printf(" (%d incomplete skipped)", skipped)
	}
	if pruned > 0 {
		fmt.Printf(" (%d old records pruned)", pruned)
	}
	fmt.Println()
	return nil
}

// articleInput keeps the description as content, falling back to the body.
func articleInput(a source.Article, fetchedAt time.Time) store.ArticleInput {
	content := strings.TrimSpace(a.Description)
	if content == "" {
		content = strings.TrimSpace(a.Content)
	}
	return store.ArticleInput{
		Title:       strings.TrimSpace(a.Title),
		Content:     content,
		URL:         strings.TrimSpace(a.URL),
		Source:      a.Publisher,
		PublishedAt: a.PublishedAt,
		FetchedAt:   fetchedAt,
	}
}

func newsListAction(cmd *cobra.Command, _ []string) error {
	formatter, err := report.New(newsFormat, !noColor)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	articles, err := db.LatestArticles(commandContext(cmd), newsListLimit)
	if err != nil {
		return fmt.Errorf("list articles: %w", err)
	}
	return formatter.Articles(os.Stdout, articles)
}
