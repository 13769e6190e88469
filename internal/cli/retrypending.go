package cli

import (
	"context"
	"fmt"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/jaa/ymd/internal/engine"
	"github.com/jaa/ymd/internal/exitcode"
	"github.com/jaa/ymd/internal/segments"
)

func newRetryPendingCommand(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry-pending",
		Short: "Re-run deferred segment removal across the library",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(app)
			if err != nil {
				return withExitCode(exitcode.InvalidConfig, err)
			}
			logger := buildLogger(app)
			audit := engine.NewAuditLog(cfg.Library.LogDir)
			resolver := engine.NewSegmentResolver(
				segments.NewClient(cfg.Segments.APIBase),
				segments.NewEditor(cfg.Tools.FFmpeg),
				cfg.Segments.Categories, audit, logger, segmentRetryDelay)

			ctx, stop := signal.NotifyContext(context.Background(), interruptSignals()...)
			defer stop()

			succeeded, failed, runErr := engine.NewPendingProcessor(cfg, resolver, audit, logger).Run(ctx)
			if runErr != nil {
				return runErr
			}
			fmt.Fprintf(app.IO.Out, "Resolved %d pending track(s), %d still pending.\n", succeeded, failed)
			if failed > 0 {
				return withExitCode(exitcode.PartialSuccess,
					fmt.Errorf("%d track(s) still pending", failed))
			}
			return nil
		},
	}
}
