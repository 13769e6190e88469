package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jaa/ymd/internal/exitcode"
	"github.com/jaa/ymd/internal/metacache"
)

func newPurgeCacheCommand(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "purge-cache",
		Short: "Delete all cached metadata documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(app)
			if err != nil {
				return withExitCode(exitcode.InvalidConfig, err)
			}
			logger := buildLogger(app)

			cache := metacache.New(cfg.Cache.Dir, cfg.Cache.TTLDays, true, logger)
			removed := cache.Purge()
			fmt.Fprintf(app.IO.Out, "Removed %d cache entr%s from %s\n",
				removed, pluralY(removed), cfg.Cache.Dir)
			return nil
		},
	}
}

func pluralY(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
