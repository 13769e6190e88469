package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/jaa/ymd/internal/config"
	"github.com/jaa/ymd/internal/output"
	"github.com/jaa/ymd/internal/pending"
	"github.com/jaa/ymd/internal/playlist"
)

// Downloader is the top-level `ymd <url>` flow: resolve metadata, build
// jobs, run the scheduler, scrub the ledger, write the M3U, then retry any
// deferred segment work while the session is still warm.
type Downloader struct {
	Config    config.Config
	Meta      *MetadataClient
	Builder   *JobBuilder
	Scheduler *Scheduler
	Resolver  *SegmentResolver
	Audit     *AuditLog
	Logger    *log.Logger
	Emitter   output.EventEmitter
}

// Run downloads url, which may be a playlist or a single track. The
// returned error is the first job failure, surfaced only after every job
// has been given its chance.
func (d *Downloader) Run(ctx context.Context, url string) (RunSummary, error) {
	d.Logger.Info("fetching metadata")
	info, err := d.Meta.FetchDocument(ctx, url, true)
	if err != nil {
		return RunSummary{}, err
	}

	var jobs []DownloadJob
	playlistURL := ""
	if IsPlaylist(info) {
		playlistURL = PlaylistSourceURL(info, url)
		jobs, err = d.Builder.BuildPlaylistJobs(ctx, info)
		if err != nil {
			return RunSummary{}, err
		}
	} else {
		jobs = []DownloadJob{d.Builder.BuildSingleJob(info)}
	}

	d.Logger.Info("starting downloads", "items", len(jobs))
	d.emitRun(output.EventRunStarted, fmt.Sprintf("starting downloads: %d item(s)", len(jobs)))

	summary, softFailed, runErr := d.Scheduler.Run(ctx, jobs)

	// Scrub only once every job is terminal, and rewrite the listing only
	// after the scrub, so the M3U never references ledger entries that are
	// about to disappear.
	if _, err := ScrubArchive(d.Config, jobs, d.Logger); err != nil {
		d.Logger.Warn("archive scrub failed", "err", err)
	}

	if len(jobs) > 0 && jobs[0].M3UPath != "" {
		if err := d.writePlaylistM3U(jobs, playlistURL); err != nil {
			d.Logger.Warn("could not write playlist M3U", "err", err)
		}
	}

	if len(softFailed) > 0 && len(d.Config.Segments.Categories) > 0 {
		d.retrySoftFailed(ctx, softFailed)
	}

	d.emitRun(output.EventRunFinished, fmt.Sprintf(
		"done: %d completed, %d skipped, %d deferred, %d failed",
		summary.Completed, summary.Skipped, summary.SoftFailed, summary.Failed))
	return summary, runErr
}

// retrySoftFailed is the in-session segment retry pass for tracks whose
// download succeeded but whose trimming was deferred. Sidecars for tracks
// that stay unreachable are kept for `ymd retry-pending`.
func (d *Downloader) retrySoftFailed(ctx context.Context, jobs []DownloadJob) {
	d.Logger.Info("retrying segment post-processing", "tracks", len(jobs))
	stillPending := []string{}
	for _, job := range jobs {
		if ctx.Err() != nil {
			return
		}
		audioFile := FindExistingFile(job.OutputDir, job.OutputStem)
		if audioFile == "" {
			stillPending = append(stillPending, job.OutputStem)
			continue
		}
		var pf *pending.File
		if loaded, err := pending.Find(job.OutputDir, pending.TaskSegments, nil); err == nil {
			for _, candidate := range loaded {
				if candidate.OutputStem == job.OutputStem {
					pf = candidate
					break
				}
			}
		}
		sourceURL := job.SourceURL
		if sourceURL == "" {
			sourceURL = job.Meta.WebpageURL
		}
		if !d.Resolver.Resolve(ctx, sourceURL, audioFile, job.OutputStem, pf) {
			stillPending = append(stillPending, job.OutputStem)
		}
	}
	if len(stillPending) == 0 {
		d.Logger.Info("segment post-processing retry succeeded for all tracks", "count", len(jobs))
		return
	}
	d.Logger.Warn("segment post-processing still pending, files kept untrimmed",
		"count", len(stillPending))
	for _, stem := range stillPending {
		d.Audit.Append(LogErrors, stem,
			"SponsorBlock API unreachable after retries — segments not removed")
	}
}

func (d *Downloader) writePlaylistM3U(jobs []DownloadJob, playlistURL string) error {
	entries := []playlist.Entry{}
	missing := []string{}
	for _, job := range jobs {
		audioFile := FindExistingFile(job.OutputDir, job.OutputStem)
		if audioFile == "" {
			missing = append(missing, job.OutputStem)
			continue
		}
		entries = append(entries, playlist.Entry{
			Path:   audioFile,
			Artist: job.Meta.Artist,
			Title:  job.Meta.Title,
		})
	}
	if len(missing) > 0 {
		d.Logger.Warn("playlist M3U missing files", "count", len(missing))
		for _, stem := range missing {
			d.Logger.Warn("missing", "stem", stem)
		}
	}
	return playlist.Write(jobs[0].M3UPath, d.Config.Library.BaseDir, entries, playlistURL)
}

func (d *Downloader) emitRun(name output.EventName, message string) {
	if d.Emitter == nil {
		return
	}
	d.Emitter.Emit(output.Event{
		Timestamp: time.Now().UTC(),
		Level:     output.LevelInfo,
		Event:     name,
		Message:   message,
	})
}
