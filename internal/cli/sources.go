package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lpdev/bitpredector/internal/config"
	"github.com/lpdev/bitpredector/internal/source"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List configured sources and whether they are enabled",
	Args:  cobra.NoArgs,
	RunE:  sourcesAction,
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}

func sourcesAction(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	set, _, err := buildSources(cfg, []source.Option{source.WithLogger(zap.NewNop())})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tKIND\tENABLED\tCREDENTIALS")
	for _, src := range set.All() {
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", src.Name(), src.Kind(), src.Enabled(), credentialState(cfg, src.Name()))
	}
	return w.Flush()
}

// credentialState reports whether the secret a source needs was resolved.
func credentialState(cfg *config.Config, name string) string {
	sc := cfg.Sources
	switch name {
	case "microblog":
		return present(sc.Microblog.BearerToken, sc.Microblog.BearerTokenEnv)
	case "news":
		return present(sc.News.APIKey, sc.News.APIKeyEnv)
	case "forum":
		if sc.Forum.BearerTokenEnv == "" {
			return "not needed"
		}
		return present(sc.Forum.BearerToken, sc.Forum.BearerTokenEnv)
	default:
		return "not needed"
	}
}

func present(secret, envName string) string {
	switch {
	case envName == "":
		return "not configured"
	case secret == "":
		return "missing $" + envName
	default:
		return "ok"
	}
}
