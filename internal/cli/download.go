package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/jaa/ymd/internal/engine"
	"github.com/jaa/ymd/internal/exitcode"
	"github.com/jaa/ymd/internal/metacache"
	"github.com/jaa/ymd/internal/playlist"
	"github.com/jaa/ymd/internal/segments"
	"github.com/jaa/ymd/internal/tags"
)

const segmentRetryDelay = 2 * time.Second

func runDownload(app *AppContext, args []string, cookiesFrom string) error {
	cfg, err := loadConfig(app)
	if err != nil {
		return withExitCode(exitcode.InvalidConfig, err)
	}

	url := ""
	if len(args) == 1 {
		url = strings.TrimSpace(args[0])
	}
	if url == "" {
		if app.Opts.NoInput || app.Opts.JSON || !isTTY(os.Stdin) {
			return withExitCode(exitcode.InvalidUsage, errors.New("a playlist or track URL is required"))
		}
		prompted, promptErr := promptLine(app, "Playlist or track URL: ")
		if promptErr != nil {
			return withExitCode(exitcode.RuntimeFailure, promptErr)
		}
		url = strings.TrimSpace(prompted)
		if url == "" {
			return withExitCode(exitcode.InvalidUsage, errors.New("no URL given"))
		}
	}
	url = playlist.CleanURL(url)

	if cookiesFrom != "" {
		if err := importCookies(cookiesFrom, cfg.Download.CookiesFile); err != nil {
			return withExitCode(exitcode.RuntimeFailure, err)
		}
	}

	logger := buildLogger(app)
	emitter := buildEmitter(app)

	ctx, stop := signal.NotifyContext(context.Background(), interruptSignals()...)
	defer stop()

	cache := metacache.New(cfg.Cache.Dir, cfg.Cache.TTLDays, cfg.Cache.Enabled, logger)
	meta := engine.NewMetadataClient(cfg, cache, logger)
	audit := engine.NewAuditLog(cfg.Library.LogDir)
	tagWriter := tags.NewFFmpegWriter(cfg.Tools.FFmpeg)
	resolver := engine.NewSegmentResolver(
		segments.NewClient(cfg.Segments.APIBase),
		segments.NewEditor(cfg.Tools.FFmpeg),
		cfg.Segments.Categories, audit, logger, segmentRetryDelay)

	downloader := &engine.Downloader{
		Config:    cfg,
		Meta:      meta,
		Builder:   engine.NewJobBuilder(cfg, meta, audit, logger),
		Scheduler: engine.NewScheduler(cfg, engine.NewSubprocessRunner(), tagWriter, audit, logger, emitter),
		Resolver:  resolver,
		Audit:     audit,
		Logger:    logger,
		Emitter:   emitter,
	}

	summary, runErr := downloader.Run(ctx, url)
	if !app.Opts.JSON {
		printRunSummary(app, summary)
	}

	if ctx.Err() != nil {
		return withExitCode(exitcode.Interrupted, errors.New("interrupted"))
	}
	return runErr
}

func printRunSummary(app *AppContext, summary engine.RunSummary) {
	tw := table.NewWriter()
	tw.SetOutputMirror(app.IO.Out)
	tw.AppendHeader(table.Row{"Total", "Completed", "Skipped", "Deferred", "Failed"})
	tw.AppendRow(table.Row{summary.Total, summary.Completed, summary.Skipped, summary.SoftFailed, summary.Failed})
	if app.Opts.NoColor {
		tw.SetStyle(table.StyleLight)
	} else {
		tw.SetStyle(table.StyleColoredBright)
	}
	tw.Render()
}

// importCookies copies a Netscape cookies.txt into the configured path so
// browser exports only have to be pointed at once.
func importCookies(src, dst string) error {
	if strings.TrimSpace(dst) == "" {
		return errors.New("download.cookies_file is not configured")
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open cookies file: %w", err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create cookies directory: %w", err)
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("write cookies file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy cookies file: %w", err)
	}
	return out.Close()
}

func promptLine(app *AppContext, prompt string) (string, error) {
	fmt.Fprint(app.IO.Out, prompt)
	reader := bufio.NewReader(app.IO.In)
	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return line, nil
}
