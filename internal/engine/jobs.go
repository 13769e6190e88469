package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/jaa/ymd/internal/config"
	"github.com/jaa/ymd/internal/playlist"
)

// placeholderTitles are extractor artifacts, not real track titles. Entries
// resolving to one of these are skipped.
var placeholderTitles = map[string]bool{
	"index":         true,
	"videoplayback": true,
}

// JobBuilder turns an info document into download jobs.
type JobBuilder struct {
	Config  config.Config
	Meta    *MetadataClient
	Audit   *AuditLog
	Logger  *log.Logger
	limiter *rate.Limiter
}

func NewJobBuilder(cfg config.Config, meta *MetadataClient, audit *AuditLog, logger *log.Logger) *JobBuilder {
	var limiter *rate.Limiter
	if cfg.Download.SleepRequests > 0 {
		// One metadata request per configured interval keeps the pacing the
		// extractor site expects.
		limiter = rate.NewLimiter(rate.Limit(1.0/float64(cfg.Download.SleepRequests)), 1)
	}
	return &JobBuilder{Config: cfg, Meta: meta, Audit: audit, Logger: logger, limiter: limiter}
}

// BuildPlaylistJobs builds one job per usable playlist entry. Entries
// without a URL, without resolvable metadata, without a title, with
// non-public availability, or with a placeholder title are skipped with a
// line in errors.log.
func (b *JobBuilder) BuildPlaylistJobs(ctx context.Context, info InfoDoc) ([]DownloadJob, error) {
	playlistTitle := Sanitize(docString(info, "title"))
	if playlistTitle == "unknown" {
		playlistTitle = "playlist"
	}
	playlistDir := filepath.Join(b.Config.Library.BaseDir, playlistTitle)
	m3uPath := filepath.Join(playlistDir, playlistTitle+".m3u")
	return b.buildPlaylistJobsInto(ctx, info, playlistTitle, playlistDir, m3uPath)
}

// BuildReprocessJobs is BuildPlaylistJobs redirected into a scratch
// directory, with no M3U attached (the M3U is rewritten after the swap).
func (b *JobBuilder) BuildReprocessJobs(ctx context.Context, info InfoDoc, scratchDir string) ([]DownloadJob, error) {
	playlistTitle := Sanitize(docString(info, "title"))
	if playlistTitle == "unknown" {
		playlistTitle = "playlist"
	}
	return b.buildPlaylistJobsInto(ctx, info, playlistTitle, scratchDir, "")
}

func (b *JobBuilder) buildPlaylistJobsInto(
	ctx context.Context, info InfoDoc, playlistTitle, outputDir, m3uPath string,
) ([]DownloadJob, error) {
	rawEntries, _ := info["entries"].([]any)
	entries := make([]map[string]any, 0, len(rawEntries))
	for _, raw := range rawEntries {
		if entry, ok := raw.(map[string]any); ok && entry != nil {
			entries = append(entries, entry)
		}
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("playlist is empty or unavailable")
	}
	total := len(entries)
	b.Logger.Info("preparing playlist items", "total", total)

	width := len(fmt.Sprint(total))
	if width < 2 {
		width = 2
	}

	jobs := make([]DownloadJob, 0, total)
	for index, entry := range entries {
		position := index + 1
		if position == 1 || position == total || position%10 == 0 {
			b.Logger.Info("preparing playlist items", "at", position, "total", total)
		}

		entryURL := entryWatchURL(entry)
		if entryURL == "" {
			b.Logger.Warn("skipping entry with no URL")
			continue
		}

		metaInfo, err := b.resolveEntryMetadata(ctx, info, entry, entryURL)
		if err != nil {
			return nil, err
		}
		if metaInfo == nil {
			continue
		}
		if docString(metaInfo, "title") == "" {
			b.Logger.Warn("skipping entry with missing title", "url", entryURL)
			b.Audit.Append(LogErrors, "metadata missing title", entryURL)
			continue
		}
		if availability := docString(metaInfo, "availability"); availability != "" &&
			!strings.EqualFold(availability, "public") {
			b.Logger.Warn("skipping unavailable entry", "url", entryURL, "availability", availability)
			b.Audit.Append(LogErrors, "metadata unavailable", entryURL, availability)
			continue
		}

		playlistIndex := docInt(entry, "playlist_index")
		if playlistIndex == 0 {
			playlistIndex = position
		}
		meta := BuildTrackMeta(metaInfo, playlistIndex, playlistTitle, true)
		if placeholderTitles[strings.ToLower(meta.Title)] {
			b.Logger.Warn("skipping entry with placeholder title", "url", entryURL, "title", meta.Title)
			b.Audit.Append(LogErrors, "metadata invalid title", entryURL, meta.Title)
			continue
		}

		sourceURL := docString(metaInfo, "webpage_url")
		if sourceURL == "" {
			sourceURL = docString(metaInfo, "original_url")
		}
		if sourceURL == "" {
			sourceURL = entryURL
		}
		if videoID := docString(metaInfo, "id"); videoID != "" {
			sourceURL = "https://music.youtube.com/watch?v=" + videoID
		}

		trackNumber := meta.TrackNumber
		if trackNumber == 0 {
			trackNumber = playlistIndex
		}
		prefix := fmt.Sprintf("%0*d", width, trackNumber)
		jobs = append(jobs, DownloadJob{
			Key:        prefix + "-" + Sanitize(meta.Title),
			OutputDir:  outputDir,
			OutputStem: MakeOutputStem(meta, prefix),
			Meta:       meta,
			SourceURL:  sourceURL,
			M3UPath:    m3uPath,
		})
	}
	return jobs, nil
}

// resolveEntryMetadata prefers metadata embedded in the flat playlist entry
// and falls back to a per-entry fetch behind the politeness limiter. A nil
// document with nil error means the entry was skipped and logged.
func (b *JobBuilder) resolveEntryMetadata(
	ctx context.Context, info InfoDoc, entry map[string]any, entryURL string,
) (InfoDoc, error) {
	enriched := make(map[string]any, len(entry)+2)
	for k, v := range entry {
		enriched[k] = v
	}
	enriched["webpage_url"] = entryURL
	if title := docString(info, "title"); title != "" {
		if _, ok := enriched["playlist"]; !ok {
			enriched["playlist"] = title
		}
	}
	if docString(enriched, "title") != "" || docString(enriched, "track") != "" {
		return enriched, nil
	}

	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	metaInfo, err := b.Meta.FetchDocument(ctx, entryURL, false)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		b.Logger.Warn("skipping unavailable entry", "url", entryURL, "err", err)
		b.Audit.Append(LogErrors, "metadata failed", entryURL, err.Error())
		return nil, nil
	}
	if len(metaInfo) == 0 {
		b.Logger.Warn("skipping entry with no metadata", "url", entryURL)
		b.Audit.Append(LogErrors, "metadata missing", entryURL)
		return nil, nil
	}
	return metaInfo, nil
}

// BuildSingleJob targets base/<artist>/<album>/ for a one-off track.
func (b *JobBuilder) BuildSingleJob(info InfoDoc) DownloadJob {
	meta := BuildTrackMeta(info, 0, "", false)
	album := meta.Album
	if album == "" {
		album = "Unknown Album"
	}
	outputDir := filepath.Join(b.Config.Library.BaseDir, Sanitize(meta.Artist), Sanitize(album))
	sourceURL := docString(info, "webpage_url")
	if sourceURL == "" {
		sourceURL = docString(info, "original_url")
	}
	return DownloadJob{
		Key:        Sanitize(meta.Title),
		OutputDir:  outputDir,
		OutputStem: MakeOutputStem(meta, ""),
		Meta:       meta,
		SourceURL:  sourceURL,
	}
}

// entryWatchURL resolves a playlist entry's watch URL. Flat entries often
// carry a bare video id instead of a URL.
func entryWatchURL(entry map[string]any) string {
	entryURL := docString(entry, "url")
	if entryURL == "" {
		entryURL = docString(entry, "id")
	}
	if entryURL == "" {
		return ""
	}
	if !strings.HasPrefix(entryURL, "http") {
		entryURL = "https://music.youtube.com/watch?v=" + entryURL
	}
	return entryURL
}

// PlaylistSourceURL resolves the canonical playlist URL for M3U stamping.
func PlaylistSourceURL(info InfoDoc, requestedURL string) string {
	raw := docString(info, "webpage_url")
	if raw == "" {
		raw = docString(info, "original_url")
	}
	if raw == "" {
		raw = requestedURL
	}
	if raw == "" {
		return ""
	}
	return playlist.CleanURL(raw)
}
