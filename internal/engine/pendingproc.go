package engine

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/jaa/ymd/internal/config"
	"github.com/jaa/ymd/internal/pending"
)

// softFailMarkers in errors.log identify tracks whose segment trimming never
// completed. The second marker is written by our own retry path.
var softFailMarkers = []string{
	softFailSignature,
	"SponsorBlock retry failed",
	"SponsorBlock API unreachable after retries",
}

// PendingProcessor drives `ymd retry-pending`: it re-applies deferred
// segment removal across the library without re-downloading anything.
type PendingProcessor struct {
	Config   config.Config
	Resolver *SegmentResolver
	Audit    *AuditLog
	Logger   *log.Logger
}

func NewPendingProcessor(cfg config.Config, resolver *SegmentResolver,
	audit *AuditLog, logger *log.Logger) *PendingProcessor {
	return &PendingProcessor{Config: cfg, Resolver: resolver, Audit: audit, Logger: logger}
}

// Run processes every sidecar carrying the segments task. Returns the
// counts of resolved and still-pending tracks.
func (p *PendingProcessor) Run(ctx context.Context) (succeeded int, failed int, err error) {
	if len(p.Config.Segments.Categories) == 0 {
		p.Logger.Warn("segment removal is disabled (no active categories), nothing to retry")
		return 0, 0, nil
	}

	p.cleanupTempSidecars()

	if created := p.bootstrapFromLogs(); created > 0 {
		p.Logger.Info("bootstrapped sidecars from historic log entries", "count", created)
	}

	sidecars, err := pending.Find(p.Config.Library.BaseDir, pending.TaskSegments, p.Logger)
	if err != nil {
		return 0, 0, err
	}
	if len(sidecars) == 0 {
		p.Logger.Info("no pending segment tasks found", "dir", p.Config.Library.BaseDir)
		return 0, 0, nil
	}
	p.Logger.Info("found files with pending segment post-processing", "count", len(sidecars))

	for _, pf := range sidecars {
		if ctx.Err() != nil {
			return succeeded, failed, ctx.Err()
		}
		if pf.SourceURL == "" {
			p.Logger.Warn("skipping, sidecar has no source URL", "stem", pf.OutputStem)
			failed++
			continue
		}
		if _, statErr := os.Stat(pf.AudioFile); statErr != nil {
			p.Logger.Warn("skipping, audio file no longer exists",
				"stem", pf.OutputStem, "file", pf.AudioFile)
			failed++
			continue
		}
		p.Logger.Info("retrying segment removal", "stem", pf.OutputStem)
		if p.Resolver.Resolve(ctx, pf.SourceURL, pf.AudioFile, pf.OutputStem, pf) {
			succeeded++
		} else {
			failed++
			p.Audit.Append(LogErrors, pf.OutputStem,
				"SponsorBlock retry failed — sidecar kept for next attempt")
		}
	}

	p.Logger.Info("retry-pending complete", "succeeded", succeeded, "failed", failed)
	return succeeded, failed, nil
}

// cleanupTempSidecars deletes yt-dlp temp artifacts like foo.temp.pending.json
// left behind by interrupted runs. They are safe to delete unconditionally.
func (p *PendingProcessor) cleanupTempSidecars() {
	removed := 0
	filepath.WalkDir(p.Config.Library.BaseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		name := d.Name()
		if strings.HasSuffix(name, ".temp"+pending.SidecarSuffix) {
			if err := os.Remove(path); err != nil {
				p.Logger.Warn("could not remove temp sidecar", "path", path, "err", err)
				return nil
			}
			p.Logger.Debug("removed temp sidecar artifact", "name", name)
			removed++
		}
		return nil
	})
	if removed > 0 {
		p.Logger.Info("removed temporary sidecar artifacts", "count", removed)
	}
}

// bootstrapFromLogs creates sidecars for soft failures recorded in
// errors.log before sidecars existed (or whose sidecars were lost). Stems
// later marked resolved are excluded permanently; missing source URLs and
// output dirs are supplemented from success.log.
func (p *PendingProcessor) bootstrapFromLogs() int {
	errorsPayload, err := os.ReadFile(filepath.Join(p.Config.Library.LogDir, LogErrors))
	if err != nil {
		return 0
	}

	stemToURL := map[string]string{}
	resolved := map[string]bool{}
	for _, line := range strings.Split(string(errorsPayload), "\n") {
		parts := ParseLine(line)
		if len(parts) == 0 || parts[0] == "" {
			continue
		}
		stem := parts[0]
		if strings.Contains(line, resolvedMarker) {
			resolved[stem] = true
			continue
		}
		marked := false
		for _, marker := range softFailMarkers {
			if strings.Contains(line, marker) {
				marked = true
				break
			}
		}
		if !marked {
			continue
		}
		url := ""
		if last := parts[len(parts)-1]; len(parts) >= 2 && strings.HasPrefix(last, "http") {
			url = last
		}
		stemToURL[stem] = url
	}
	for stem := range resolved {
		delete(stemToURL, stem)
	}
	if len(stemToURL) == 0 {
		return 0
	}

	// success.log lines: "TIMESTAMP stem | /abs/output/dir | https://..."
	stemToDir := map[string]string{}
	if successPayload, err := os.ReadFile(filepath.Join(p.Config.Library.LogDir, LogSuccess)); err == nil {
		for _, line := range strings.Split(string(successPayload), "\n") {
			parts := ParseLine(line)
			if len(parts) < 3 {
				continue
			}
			stem := parts[0]
			if _, interested := stemToURL[stem]; !interested {
				continue
			}
			if stemToURL[stem] == "" {
				stemToURL[stem] = parts[2]
			}
			stemToDir[stem] = parts[1]
		}
	}

	created := 0
	for stem, sourceURL := range stemToURL {
		var audioFile string
		if dir, ok := stemToDir[stem]; ok {
			audioFile = FindExistingFile(dir, stem)
		} else {
			audioFile = FindExistingFileRecursive(p.Config.Library.BaseDir, stem)
		}
		if audioFile == "" {
			p.Logger.Debug("bootstrap: audio file not found, skipping", "stem", stem)
			continue
		}
		if _, err := os.Stat(pending.SidecarPath(audioFile)); err == nil {
			p.Logger.Debug("bootstrap: sidecar already exists, skipping", "stem", stem)
			continue
		}
		if _, err := pending.Write(audioFile, sourceURL, stem,
			[]string{pending.TaskSegments}, p.Logger); err != nil {
			p.Logger.Warn("bootstrap: could not write sidecar", "stem", stem, "err", err)
			continue
		}
		p.Logger.Info("bootstrap: created sidecar", "stem", stem)
		created++
	}
	return created
}
