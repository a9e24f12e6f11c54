// Package cli implements the orchardscan command line tool, which runs the
// detectors on local survey exports or straight against Aerobotics.
package cli

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/samirrijal/orchardscan/internal/core/domain"
	"github.com/samirrijal/orchardscan/internal/core/usecases"
	"github.com/samirrijal/orchardscan/internal/pkg/logging"
)

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	debug       bool
	polygonPath string
	treesPath   string
	orchardID   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:          "orchardscan",
		Short:        "Find missing and unhealthy trees in an orchard survey",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := "warn"
			if opts.debug {
				level = "debug"
			}
			slog.SetDefault(logging.New(cmd.ErrOrStderr(), level, "text"))
		},
	}

	f := cmd.PersistentFlags()
	f.BoolVar(&opts.debug, "debug", false, "verbose logging on stderr")
	f.StringVarP(&opts.polygonPath, "polygon", "p", "", "orchard boundary: JSON coordinate list or Aerobotics orchard record")
	f.StringVarP(&opts.treesPath, "trees", "t", "", "trees: JSON tree list or Aerobotics tree_surveys page")
	f.StringVarP(&opts.orchardID, "orchard", "o", "", "fetch this orchard from the configured Aerobotics API instead of files")

	cmd.AddCommand(gapsCmd(opts), unhealthyCmd(opts))
	return cmd
}

// service builds an analysis service over the chosen source.
func (o *rootOptions) service() (*usecases.AnalysisService, string, error) {
	src, id, err := o.source()
	if err != nil {
		return nil, "", err
	}
	return usecases.NewAnalysisService(src, nil, domain.DefaultDetectionParams()), id, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
