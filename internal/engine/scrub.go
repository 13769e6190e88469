package engine

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gofrs/flock"

	"github.com/jaa/ymd/internal/config"
)

// ScrubArchive removes download archive lines whose output file is gone
// from disk, so the fetch tool re-downloads them on this run instead of
// silently skipping. Only lines belonging to the given jobs are considered;
// everything else is preserved in order.
//
// The rewrite happens under a file lock so two concurrent runs cannot
// clobber each other's archive edits.
func ScrubArchive(cfg config.Config, jobs []DownloadJob, logger *log.Logger) (int, error) {
	archivePath := cfg.Library.ArchiveFile
	if _, err := os.Stat(archivePath); os.IsNotExist(err) {
		return 0, nil
	}

	idToJob := map[string]DownloadJob{}
	for _, job := range jobs {
		if id := videoIDFromURL(job.SourceURL); id != "" {
			idToJob[id] = job
		}
	}
	if len(idToJob) == 0 {
		return 0, nil
	}

	lock := flock.New(archivePath + ".lock")
	if err := lock.Lock(); err != nil {
		return 0, fmt.Errorf("lock archive %s: %w", archivePath, err)
	}
	defer lock.Unlock()

	payload, err := os.ReadFile(archivePath)
	if err != nil {
		return 0, fmt.Errorf("read archive %s: %w", archivePath, err)
	}

	kept := []string{}
	removed := 0
	for _, line := range strings.Split(strings.TrimRight(string(payload), "\n"), "\n") {
		parts := strings.Fields(line)
		if len(parts) >= 2 {
			if job, ok := idToJob[parts[1]]; ok {
				if FindExistingFile(job.OutputDir, job.OutputStem) == "" {
					logger.Warn("archive scrub: removing stale entry, file missing from disk",
						"id", parts[1], "stem", job.OutputStem)
					removed++
					continue
				}
			}
		}
		kept = append(kept, line)
	}

	if removed > 0 {
		content := strings.Join(kept, "\n") + "\n"
		if err := os.WriteFile(archivePath, []byte(content), 0o644); err != nil {
			return removed, fmt.Errorf("rewrite archive %s: %w", archivePath, err)
		}
		logger.Info("archive scrub removed stale entries", "count", removed)
	}
	return removed, nil
}

func videoIDFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	if id := parsed.Query().Get("v"); id != "" {
		return id
	}
	return strings.Trim(parsed.Path, "/")
}
