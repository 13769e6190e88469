// Package engine coordinates metadata resolution, bounded-concurrency
// downloads via yt-dlp, segment post-processing, and the durable state
// around them (download archive, audit logs, pending sidecars).
package engine

import (
	"fmt"
	"path/filepath"

	"github.com/jaa/ymd/internal/config"
)

// TrackMeta is the resolved metadata for one track, assembled from the
// extractor's info document before any download starts.
type TrackMeta struct {
	Title         string
	Artist        string
	Album         string
	AlbumArtist   string
	Compilation   bool
	TrackNumber   int
	PlaylistIndex int
	WebpageURL    string
}

// DownloadJob is one unit of download work. Jobs are immutable once built;
// the scheduler only reads them.
type DownloadJob struct {
	Key        string
	OutputDir  string
	OutputStem string
	Meta       TrackMeta
	SourceURL  string
	M3UPath    string
}

// OutputTemplate is the "-o" value handed to the fetch tool.
func (j DownloadJob) OutputTemplate() string {
	return filepath.Join(j.OutputDir, j.OutputStem+".%(ext)s")
}

// OutputFilename is the expected final name under the configured format.
func (j DownloadJob) OutputFilename(cfg config.Config) string {
	return j.OutputStem + "." + cfg.Library.AudioFormat
}

// DownloadError marks a job that failed after exhausting its attempts.
type DownloadError struct {
	Stem string
	Err  error
}

func (e *DownloadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("download failed for %s: %v", e.Stem, e.Err)
	}
	return fmt.Sprintf("download failed for %s", e.Stem)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// RunSummary aggregates per-job outcomes of one scheduler run.
type RunSummary struct {
	Total      int
	Completed  int
	Skipped    int
	SoftFailed int
	Failed     int
}
