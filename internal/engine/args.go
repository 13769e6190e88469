package engine

import (
	"os"
	"strconv"
	"strings"

	"github.com/jaa/ymd/internal/config"
)

// ytdlpArgs builds the fetch tool's argument list for a normal download.
// --no-overwrites plus --download-archive make re-runs incremental; the
// audio is extracted and tagged in one pass.
func ytdlpArgs(cfg config.Config, job DownloadJob) []string {
	args := []string{
		"--newline",
		"--continue",
		"--no-overwrites",
		"--extract-audio",
		"--audio-format", cfg.Library.AudioFormat,
		"--embed-metadata",
		"--embed-thumbnail",
		"--add-metadata",
		"-f", "bestaudio",
		"--download-archive", cfg.Library.ArchiveFile,
		"-o", job.OutputTemplate(),
	}
	args = append(args, commonFetchArgs(cfg)...)
	return args
}

// ytdlpReprocessArgs is the overwrite variant used for reprocess runs:
// no --no-overwrites, no thumbnail/extra metadata embedding, and the
// archive is a throwaway so the real ledger is never touched.
func ytdlpReprocessArgs(cfg config.Config, job DownloadJob, throwawayArchive string) []string {
	args := []string{
		"--newline",
		"--continue",
		"--extract-audio",
		"--audio-format", cfg.Library.AudioFormat,
		"--embed-metadata",
		"-f", "bestaudio",
		"--download-archive", throwawayArchive,
		"-o", job.OutputTemplate(),
	}
	args = append(args, commonFetchArgs(cfg)...)
	return args
}

func commonFetchArgs(cfg config.Config) []string {
	args := []string{}
	if cfg.Download.RateLimit != "" {
		args = append(args, "--rate-limit", cfg.Download.RateLimit)
	}
	args = append(args,
		"--sleep-interval", strconv.Itoa(cfg.Download.SleepInterval),
		"--max-sleep-interval", strconv.Itoa(cfg.Download.MaxSleepInterval),
		"--retries", strconv.Itoa(cfg.Download.Retries),
	)
	if cookies := cfg.Download.CookiesFile; cookies != "" {
		if _, err := os.Stat(cookies); err == nil {
			args = append(args, "--cookies", cookies)
		}
	}
	if len(cfg.Segments.Categories) > 0 {
		args = append(args, "--sponsorblock-remove", strings.Join(cfg.Segments.Categories, ","))
	}
	return args
}
