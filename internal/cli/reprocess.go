package cli

import (
	"context"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/jaa/ymd/internal/engine"
	"github.com/jaa/ymd/internal/exitcode"
	"github.com/jaa/ymd/internal/metacache"
	"github.com/jaa/ymd/internal/tags"
)

func newReprocessCommand(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reprocess",
		Short: "Re-download every playlist folder in place",
		Long: "Re-fetches every playlist whose M3U carries a stored URL into a\n" +
			"scratch directory, then swaps files over their live counterparts\n" +
			"one by one. Failed fetches leave the existing files untouched.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(app)
			if err != nil {
				return withExitCode(exitcode.InvalidConfig, err)
			}
			logger := buildLogger(app)
			cache := metacache.New(cfg.Cache.Dir, cfg.Cache.TTLDays, cfg.Cache.Enabled, logger)

			ctx, stop := signal.NotifyContext(context.Background(), interruptSignals()...)
			defer stop()

			reprocessor := &engine.Reprocessor{
				Config: cfg,
				Meta:   engine.NewMetadataClient(cfg, cache, logger),
				Audit:  engine.NewAuditLog(cfg.Library.LogDir),
				Runner: engine.NewSubprocessRunner(),
				Tags:   tags.NewFFmpegWriter(cfg.Tools.FFmpeg),
				Logger: logger,
			}
			return reprocessor.RunAll(ctx)
		},
	}
}
