package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lpdev/bitpredector/internal/httpapi"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve sentiment, news and metrics over HTTP",
	Args:  cobra.NoArgs,
	RunE:  serveAction,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides http.addr)")
	rootCmd.AddCommand(serveCmd)
}

func serveAction(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.HTTP.Addr = serveAddr
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	stopEviction := a.cache.StartEvictionTimer(cfg.Cache.TTL.Duration)
	defer stopEviction()

	srv, err := httpapi.New(httpapi.Options{
		Analyzer: a.agg,
		Store:    db,
		Registry: a.registry,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	return srv.Run(ctx, cfg.HTTP.Addr)
}
