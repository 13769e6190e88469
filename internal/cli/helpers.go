package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/muesli/termenv"

	"github.com/jaa/ymd/internal/config"
	"github.com/jaa/ymd/internal/output"
	"github.com/jaa/ymd/internal/segments"
)

// loadConfig loads, validates, and resolves the effective config: all
// configured paths are expanded and the segment category list is read from
// its file, so downstream code never sees a "~" or an unresolved list.
func loadConfig(app *AppContext) (config.Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return config.Config{}, fmt.Errorf("resolve working directory: %w", err)
	}

	cfg, err := config.Load(config.LoadOptions{
		ExplicitPath: strings.TrimSpace(app.Opts.ConfigPath),
		WorkingDir:   wd,
	})
	if err != nil {
		return config.Config{}, err
	}
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}

	cfg, err = resolvePaths(cfg)
	if err != nil {
		return config.Config{}, err
	}

	if cfg.Segments.CategoriesFile != "" {
		categories, err := segments.LoadCategories(cfg.Segments.CategoriesFile)
		if err != nil {
			return config.Config{}, fmt.Errorf("load segment categories: %w", err)
		}
		cfg = cfg.WithSegmentCategories(categories)
	}
	return cfg, nil
}

func resolvePaths(cfg config.Config) (config.Config, error) {
	fields := []struct {
		name string
		dst  *string
	}{
		{"library.base_dir", &cfg.Library.BaseDir},
		{"library.log_dir", &cfg.Library.LogDir},
		{"library.archive_file", &cfg.Library.ArchiveFile},
		{"cache.dir", &cfg.Cache.Dir},
		{"download.cookies_file", &cfg.Download.CookiesFile},
		{"segments.categories_file", &cfg.Segments.CategoriesFile},
	}
	for _, field := range fields {
		expanded, err := config.ExpandPath(*field.dst)
		if err != nil {
			return config.Config{}, fmt.Errorf("expand %s: %w", field.name, err)
		}
		*field.dst = expanded
	}
	return cfg, nil
}

func buildLogger(app *AppContext) *log.Logger {
	logger := log.NewWithOptions(app.IO.ErrOut, log.Options{ReportTimestamp: true})
	switch {
	case app.Opts.Verbose:
		logger.SetLevel(log.DebugLevel)
	case app.Opts.Quiet:
		logger.SetLevel(log.ErrorLevel)
	}
	if app.Opts.NoColor {
		logger.SetColorProfile(termenv.Ascii)
	}
	return logger
}

func buildEmitter(app *AppContext) output.EventEmitter {
	if app.Opts.JSON {
		return output.NewJSONEmitter(app.IO.Out)
	}
	return output.NewHumanEmitter(app.IO.Out, app.IO.ErrOut, app.Opts.Quiet, app.Opts.Verbose)
}

func isTTY(file *os.File) bool {
	stat, err := file.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}
