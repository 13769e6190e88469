package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jaa/ymd/internal/exitcode"
	"github.com/jaa/ymd/internal/playlist"
)

func newRewriteM3UCommand(app *AppContext) *cobra.Command {
	all := false
	playlistURL := ""

	cmd := &cobra.Command{
		Use:   "rewrite-m3u [dir]",
		Short: "Rebuild a playlist M3U from the files on disk",
		Long: "Regenerates the M3U for a playlist folder from its audio files,\n" +
			"ordered by track number prefix. A stored playlist URL is carried\n" +
			"over unless --playlist-url replaces it.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(app)
			if err != nil {
				return withExitCode(exitcode.InvalidConfig, err)
			}

			dirs, err := targetDirs(cfg, args, all)
			if err != nil {
				return withExitCode(exitcode.InvalidUsage, err)
			}
			if all && playlistURL != "" {
				return withExitCode(exitcode.InvalidUsage,
					fmt.Errorf("--playlist-url only applies to a single directory"))
			}

			url := ""
			if playlistURL != "" {
				url = playlist.CleanURL(playlistURL)
			}

			failed := 0
			for _, dir := range dirs {
				if err := playlist.RewriteFromDir(dir, cfg.Library.BaseDir, url); err != nil {
					fmt.Fprintf(app.IO.ErrOut, "WARN: %s: %v\n", dir, err)
					failed++
					continue
				}
				fmt.Fprintf(app.IO.Out, "Rewrote %s\n", playlist.PathForDir(dir))
			}
			if failed > 0 {
				return withExitCode(exitcode.PartialSuccess,
					fmt.Errorf("%d folder(s) could not be rewritten", failed))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Rewrite the M3U of every playlist folder under the library base dir")
	cmd.Flags().StringVar(&playlistURL, "playlist-url", "", "Stamp this URL into the rewritten M3U")
	return cmd
}
