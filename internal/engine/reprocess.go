package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/jaa/ymd/internal/config"
	"github.com/jaa/ymd/internal/fileops"
	"github.com/jaa/ymd/internal/playlist"
	"github.com/jaa/ymd/internal/tags"
)

// Reprocessor re-downloads whole playlists in place: every track is fetched
// fresh into a scratch directory and swapped over its live counterpart only
// when the new file actually exists, so a failed fetch never destroys a
// working file.
type Reprocessor struct {
	Config config.Config
	Meta   *MetadataClient
	Audit  *AuditLog
	Runner ExecRunner
	Tags   tags.Writer
	Logger *log.Logger
}

// RunAll reprocesses every playlist folder whose M3U carries a stored URL.
func (r *Reprocessor) RunAll(ctx context.Context) error {
	baseDir := r.Config.Library.BaseDir
	if _, err := os.Stat(baseDir); err != nil {
		return fmt.Errorf("base directory not found: %s", baseDir)
	}

	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return fmt.Errorf("read base directory: %w", err)
	}
	folders := []string{}
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			folders = append(folders, filepath.Join(baseDir, entry.Name()))
		}
	}
	sort.Strings(folders)
	if len(folders) == 0 {
		r.Logger.Info("no playlist folders found", "dir", baseDir)
		return nil
	}

	type target struct {
		dir string
		url string
	}
	targets := []target{}
	for _, folder := range folders {
		url := playlist.ReadURL(playlist.PathForDir(folder))
		if url == "" {
			r.Logger.Warn("skipping folder, M3U has no stored playlist URL, run a normal download first",
				"folder", filepath.Base(folder))
			continue
		}
		targets = append(targets, target{dir: folder, url: url})
	}
	if len(targets) == 0 {
		r.Logger.Info("no playlists with stored URLs found, nothing to reprocess")
		return nil
	}

	r.Logger.Info("reprocessing playlists", "count", len(targets))
	for _, t := range targets {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.Logger.Info("reprocessing playlist", "folder", filepath.Base(t.dir), "url", t.url)
		if err := r.reprocessPlaylist(ctx, t.dir, t.url); err != nil {
			r.Logger.Error("reprocess failed", "folder", filepath.Base(t.dir), "err", err)
		}
	}
	r.Logger.Info("reprocess complete")
	return nil
}

func (r *Reprocessor) reprocessPlaylist(ctx context.Context, playlistDir, playlistURL string) error {
	r.Logger.Info("fetching metadata for reprocess", "url", playlistURL)

	// Fresh metadata only: a stale cache would rebuild the playlist as it
	// looked on some earlier run.
	freshCfg := r.Config.WithCacheDisabled()
	meta := NewMetadataClient(freshCfg, r.Meta.Cache.Disabled(), r.Logger)
	meta.runJSON = r.Meta.runJSON

	info, err := meta.FetchDocument(ctx, playlistURL, true)
	if err != nil {
		return err
	}
	if !IsPlaylist(info) {
		r.Logger.Warn("URL did not return a playlist, skipping", "url", playlistURL)
		return nil
	}

	scratchDir := filepath.Join(filepath.Dir(playlistDir),
		".reprocess-"+filepath.Base(playlistDir)+"-"+uuid.NewString()[:8])
	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratchDir)
	r.Logger.Info("scratch download directory", "dir", scratchDir)

	builder := NewJobBuilder(freshCfg, meta, r.Audit, r.Logger)
	jobs, err := builder.BuildReprocessJobs(ctx, info, scratchDir)
	if err != nil || len(jobs) == 0 {
		r.Logger.Warn("no jobs built, skipping", "url", playlistURL)
		return err
	}

	throwawayArchive := filepath.Join(scratchDir, "reprocess_archive.txt")
	dlCfg := freshCfg.WithArchiveFile(throwawayArchive)
	scheduler := NewScheduler(dlCfg, r.Runner, r.Tags, r.Audit, r.Logger, nil)
	scheduler.Overwrite = true
	scheduler.ThrowawayArchive = throwawayArchive

	r.Logger.Info("re-downloading tracks", "count", len(jobs), "folder", filepath.Base(playlistDir))
	summary, _, runErr := scheduler.Run(ctx, jobs)
	if runErr != nil {
		r.Logger.Warn("some reprocess downloads failed", "failed", summary.Failed)
	}

	// Swap only files the scratch run actually produced; every miss keeps
	// its original.
	swapped := 0
	for _, job := range jobs {
		scratchFile := FindExistingFile(scratchDir, job.OutputStem)
		if scratchFile == "" {
			r.Logger.Warn("scratch file missing after reprocess, keeping original", "stem", job.OutputStem)
			continue
		}
		dest := filepath.Join(playlistDir, filepath.Base(scratchFile))
		if err := fileops.ReplaceFileSafely(scratchFile, dest); err != nil {
			r.Logger.Error("swap failed", "stem", job.OutputStem, "err", err)
			continue
		}
		swapped++
		r.Logger.Info("swapped", "file", filepath.Base(dest))
	}
	r.Logger.Info("reprocess summary", "folder", filepath.Base(playlistDir),
		"downloaded", summary.Completed, "total", len(jobs), "swapped", swapped)

	if swapped > 0 {
		r.Logger.Info("re-applying album tags", "folder", filepath.Base(playlistDir))
		tags.RetagDir(ctx, r.Tags, playlistDir, r.Logger)
	}
	return playlist.RewriteFromDir(playlistDir, r.Config.Library.BaseDir, "")
}
