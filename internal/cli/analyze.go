package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lpdev/bitpredector/internal/report"
)

var (
	analyzeFormat  string
	analyzeDisable []string
	analyzeNoSave  bool
	noColor        bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <keyword>",
	Short: "Score recent texts about a keyword and print the confidence",
	Args:  cobra.MinimumNArgs(1),
	RunE:  analyzeAction,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeFormat, "format", "terminal", "output format: terminal, json, markdown")
	analyzeCmd.Flags().StringSliceVar(&analyzeDisable, "disable", nil, "source to skip for this run (repeatable)")
	analyzeCmd.Flags().BoolVar(&analyzeNoSave, "no-save", false, "do not record the reading in history")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable ANSI colors")
	rootCmd.AddCommand(analyzeCmd)
}

func analyzeAction(cmd *cobra.Command, args []string) error {
	keyword := strings.TrimSpace(strings.Join(args, " "))
	if keyword == "" {
		return fmt.Errorf("keyword is required")
	}

	formatter, err := report.New(analyzeFormat, !noColor)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	if err := applyDisabled(ctx, a.agg, analyzeDisable); err != nil {
		return err
	}

	reading := a.agg.Run(ctx, keyword)

	if !analyzeNoSave {
		db, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		if err := db.SaveReading(ctx, reading); err != nil {
			return fmt.Errorf("save reading: %w", err)
		}
		if pruned, err := db.PruneOld(ctx, cfg.Storage.RetainDays); err != nil {
			logger.Warn("prune old records failed", zap.Error(err))
		} else if pruned > 0 {
			logger.Debug("pruned old records", zap.Int64("count", pruned))
		}
	}

	return formatter.Reading(os.Stdout, reading)
}

func commandContext(cmd *cobra.Command) context.Context {
	if cmd != nil && cmd.Context() != nil {
		return cmd.Context()
	}
	return context.Background()
}
