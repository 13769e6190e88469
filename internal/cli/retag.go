package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jaa/ymd/internal/config"
	"github.com/jaa/ymd/internal/exitcode"
	"github.com/jaa/ymd/internal/tags"
)

func newRetagCommand(app *AppContext) *cobra.Command {
	all := false

	cmd := &cobra.Command{
		Use:   "retag [dir]",
		Short: "Rewrite album tags for a playlist folder from its layout",
		Long: "Stamps album, album_artist, compilation, and track number onto\n" +
			"every audio file in a playlist folder, deriving the album from the\n" +
			"folder name and the track number from the filename prefix.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(app)
			if err != nil {
				return withExitCode(exitcode.InvalidConfig, err)
			}
			logger := buildLogger(app)

			dirs, err := targetDirs(cfg, args, all)
			if err != nil {
				return withExitCode(exitcode.InvalidUsage, err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), interruptSignals()...)
			defer stop()

			writer := tags.NewFFmpegWriter(cfg.Tools.FFmpeg)
			totalTagged, totalFailed := 0, 0
			for _, dir := range dirs {
				if ctx.Err() != nil {
					return withExitCode(exitcode.Interrupted, ctx.Err())
				}
				tagged, failed := tags.RetagDir(ctx, writer, dir, logger)
				totalTagged += tagged
				totalFailed += failed
			}

			fmt.Fprintf(app.IO.Out, "Tagged %d file(s) in %d folder(s), %d failure(s).\n",
				totalTagged, len(dirs), totalFailed)
			if totalFailed > 0 {
				return withExitCode(exitcode.PartialSuccess,
					fmt.Errorf("%d file(s) could not be tagged", totalFailed))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Retag every playlist folder under the library base dir")
	return cmd
}

// targetDirs resolves the [dir]/--all argument shape shared by retag and
// rewrite-m3u: exactly one of an explicit directory or --all.
func targetDirs(cfg config.Config, args []string, all bool) ([]string, error) {
	if all && len(args) > 0 {
		return nil, errors.New("pass a directory or --all, not both")
	}
	if !all {
		if len(args) == 0 {
			return nil, errors.New("a directory or --all is required")
		}
		dir := strings.TrimSpace(args[0])
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			return nil, fmt.Errorf("not a directory: %s", dir)
		}
		return []string{dir}, nil
	}

	entries, err := os.ReadDir(cfg.Library.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("read library base dir: %w", err)
	}
	dirs := []string{}
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		dirs = append(dirs, filepath.Join(cfg.Library.BaseDir, entry.Name()))
	}
	sort.Strings(dirs)
	return dirs, nil
}
