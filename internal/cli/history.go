package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lpdev/bitpredector/internal/report"
)

var (
	historyLimit  int
	historyFormat string
)

var historyCmd = &cobra.Command{
	Use:   "history <keyword>",
	Short: "List recorded readings for a keyword, newest first",
	Args:  cobra.MinimumNArgs(1),
	RunE:  historyAction,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum readings to show")
	historyCmd.Flags().StringVar(&historyFormat, "format", "terminal", "output format: terminal, json, markdown")
	rootCmd.AddCommand(historyCmd)
}

func historyAction(cmd *cobra.Command, args []string) error {
	keyword := strings.TrimSpace(strings.Join(args, " "))
	if keyword == "" {
		return fmt.Errorf("keyword is required")
	}
	formatter, err := report.New(historyFormat, !noColor)
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

	readings, err := db.ListReadings(commandContext(cmd), keyword, historyLimit)
	if err != nil {
		return fmt.Errorf("list readings: %w", err)
	}
	return formatter.History(os.Stdout, keyword, readings)
}
