package engine

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/jaa/ymd/internal/config"
	"github.com/jaa/ymd/internal/output"
	"github.com/jaa/ymd/internal/pending"
	"github.com/jaa/ymd/internal/tags"
)

// softFailSignature is the fetch tool's phrase for segment-service
// connectivity problems. When it appears in the output tail the audio itself
// downloaded fine; only the segment trimming is outstanding.
const softFailSignature = "Unable to communicate with SponsorBlock API"

// retryBackoff separates download attempts after a hard failure.
const retryBackoff = 5 * time.Second

var progressRe = regexp.MustCompile(`\[download\]\s+(\d+\.\d+|\d+)%`)

type jobOutcome int

const (
	outcomeCompleted jobOutcome = iota
	outcomeSkipped
	outcomeSoftFailed
	outcomeFailed
)

type jobResult struct {
	job     DownloadJob
	outcome jobOutcome
	err     error
}

// Scheduler runs download jobs through a bounded worker pool.
type Scheduler struct {
	Config  config.Config
	Runner  ExecRunner
	Tags    tags.Writer
	Audit   *AuditLog
	Logger  *log.Logger
	Emitter output.EventEmitter

	// Overwrite switches to the reprocess argument set; ThrowawayArchive is
	// the ledger used in that mode.
	Overwrite        bool
	ThrowawayArchive string

	sleep func(time.Duration)
}

func NewScheduler(cfg config.Config, runner ExecRunner, tagWriter tags.Writer,
	audit *AuditLog, logger *log.Logger, emitter output.EventEmitter) *Scheduler {
	return &Scheduler{
		Config:  cfg,
		Runner:  runner,
		Tags:    tagWriter,
		Audit:   audit,
		Logger:  logger,
		Emitter: emitter,
		sleep:   time.Sleep,
	}
}

// Run downloads all jobs. Jobs that soft-fail (segment service unreachable)
// are returned in the second value for an in-session segment retry pass.
// The first job error encountered is returned after every job has drained.
func (s *Scheduler) Run(ctx context.Context, jobs []DownloadJob) (RunSummary, []DownloadJob, error) {
	summary := RunSummary{Total: len(jobs)}
	if len(jobs) == 0 {
		return summary, nil, nil
	}

	workers := s.Config.Download.Concurrency
	if workers < 1 {
		workers = 1
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}

	jobCh := make(chan DownloadJob)
	resultCh := make(chan jobResult, len(jobs))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobCh {
				resultCh <- s.runJob(ctx, job)
			}
		}()
	}

	go func() {
		defer close(jobCh)
		for _, job := range jobs {
			select {
			case jobCh <- job:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	var firstErr error
	softFailed := []DownloadJob{}
	for result := range resultCh {
		switch result.outcome {
		case outcomeCompleted:
			summary.Completed++
		case outcomeSkipped:
			summary.Skipped++
		case outcomeSoftFailed:
			summary.SoftFailed++
			softFailed = append(softFailed, result.job)
		case outcomeFailed:
			summary.Failed++
			if firstErr == nil {
				firstErr = result.err
			}
			s.Logger.Error("download error", "stem", result.job.OutputStem, "err", result.err)
		}
	}
	if ctx.Err() != nil && firstErr == nil {
		firstErr = ctx.Err()
	}
	return summary, softFailed, firstErr
}

func (s *Scheduler) runJob(ctx context.Context, job DownloadJob) jobResult {
	sourceURL := job.SourceURL
	if sourceURL == "" {
		sourceURL = job.Meta.WebpageURL
	}
	if err := os.MkdirAll(job.OutputDir, 0o755); err != nil {
		return jobResult{job: job, outcome: outcomeFailed,
			err: &DownloadError{Stem: job.OutputStem, Err: err}}
	}

	if !s.Overwrite {
		if existing := FindExistingFile(job.OutputDir, job.OutputStem); existing != "" {
			s.Logger.Info("skipping, already exists", "file", fileBase(existing))
			s.Audit.Append(LogSkipped, job.OutputStem, existing, sourceURL)
			// Repair album tags on files downloaded before compilation
			// tagging existed, so normal runs self-heal the library.
			s.applyAlbumTags(ctx, existing, job.Meta)
			s.emit(output.EventTrackSkipped, job, "already exists")
			return jobResult{job: job, outcome: outcomeSkipped}
		}
	}

	args := s.fetchArgs(job)
	args = append(args, sourceURL)
	s.emit(output.EventTrackStarted, job, "")

	retries := s.Config.Download.Retries
	for attempt := 1; attempt <= retries; attempt++ {
		if ctx.Err() != nil {
			return jobResult{job: job, outcome: outcomeFailed, err: ctx.Err()}
		}
		s.Logger.Debug("downloading", "stem", job.OutputStem, "attempt", attempt, "of", retries)
		if attempt > 1 {
			s.Audit.Append(LogRetries, job.OutputStem,
				fmt.Sprintf("attempt %d/%d", attempt, retries), sourceURL)
		}

		result := s.Runner.Run(ctx, ExecSpec{Bin: s.Config.Tools.YTDLP, Args: args}, func(line string) {
			if pct, ok := progressPercent(line); ok {
				s.Logger.Debug("progress", "stem", job.OutputStem, "pct", pct)
			}
		})

		if result.ExitCode == 0 {
			s.Logger.Info("completed", "stem", job.OutputStem)
			s.Audit.Append(LogSuccess, job.OutputStem, job.OutputDir, sourceURL)
			if downloaded := FindExistingFile(job.OutputDir, job.OutputStem); downloaded != "" {
				s.applyAlbumTags(ctx, downloaded, job.Meta)
			}
			s.emit(output.EventTrackFinished, job, "")
			return jobResult{job: job, outcome: outcomeCompleted}
		}
		if result.Interrupted {
			return jobResult{job: job, outcome: outcomeFailed, err: ctx.Err()}
		}

		if containsSoftFailSignature(result.TailLines) {
			s.Logger.Warn("segment service unreachable, file downloaded, trim deferred",
				"stem", job.OutputStem)
			downloaded := FindExistingFile(job.OutputDir, job.OutputStem)
			if downloaded != "" {
				s.applyAlbumTags(ctx, downloaded, job.Meta)
				if len(s.Config.Segments.Categories) > 0 {
					if _, err := pending.Write(downloaded, sourceURL, job.OutputStem,
						[]string{pending.TaskSegments}, s.Logger); err != nil {
						s.Logger.Warn("could not write sidecar", "stem", job.OutputStem, "err", err)
					}
				}
			}
			s.emit(output.EventTrackDeferred, job, "segment service unreachable")
			return jobResult{job: job, outcome: outcomeSoftFailed}
		}

		reason := failureReason(result.TailLines, result.ExitCode)
		s.Logger.Error("download failed", "stem", job.OutputStem, "reason", reason)
		s.Audit.Append(LogErrors, job.OutputStem,
			"exit "+strconv.Itoa(result.ExitCode), reason, sourceURL)
		if attempt < retries {
			s.sleep(retryBackoff)
		}
	}

	s.Audit.Append(LogErrors, job.OutputStem,
		fmt.Sprintf("failed after %d retries", retries), sourceURL)
	s.emit(output.EventTrackFailed, job, "retries exhausted")
	return jobResult{job: job, outcome: outcomeFailed,
		err: &DownloadError{Stem: job.OutputStem, Err: fmt.Errorf("failed after %d retries", retries)}}
}

func (s *Scheduler) fetchArgs(job DownloadJob) []string {
	if s.Overwrite {
		return ytdlpReprocessArgs(s.Config, job, s.ThrowawayArchive)
	}
	return ytdlpArgs(s.Config, job)
}

func (s *Scheduler) applyAlbumTags(ctx context.Context, audioFile string, meta TrackMeta) {
	if s.Tags == nil || meta.Album == "" || meta.AlbumArtist == "" {
		return
	}
	trackNumber := meta.TrackNumber
	if trackNumber == 0 {
		trackNumber = meta.PlaylistIndex
	}
	err := s.Tags.WriteAlbumTags(ctx, audioFile, tags.Tags{
		Album:       meta.Album,
		AlbumArtist: meta.AlbumArtist,
		Compilation: meta.Compilation,
		TrackNumber: trackNumber,
	})
	if err != nil {
		// Tag failures never fail the job; the audio is already on disk.
		s.Logger.Warn("tag write failed", "file", fileBase(audioFile), "err", err)
	}
}

func (s *Scheduler) emit(name output.EventName, job DownloadJob, message string) {
	if s.Emitter == nil {
		return
	}
	level := output.LevelInfo
	if name == output.EventTrackFailed {
		level = output.LevelError
	} else if name == output.EventTrackDeferred {
		level = output.LevelWarn
	}
	s.Emitter.Emit(output.Event{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Event:     name,
		TrackKey:  job.Key,
		Message:   message,
	})
}

func progressPercent(line string) (float64, bool) {
	m := progressRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	pct, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return pct, true
}

func containsSoftFailSignature(tail []string) bool {
	for _, line := range tail {
		if strings.Contains(line, softFailSignature) {
			return true
		}
	}
	return false
}

// failureReason picks the most informative line from the output tail,
// favouring error-looking lines over progress noise.
func failureReason(tail []string, exitCode int) string {
	keywords := []string{
		"ERROR", "error:", "WARNING", "429", "HTTP Error",
		"Sign in", "unavailable", "blocked", "forbidden", "private", "removed",
	}
	for i := len(tail) - 1; i >= 0; i-- {
		line := strings.TrimSpace(tail[i])
		if line == "" {
			continue
		}
		for _, kw := range keywords {
			if strings.Contains(line, kw) {
				return line
			}
		}
	}
	for i := len(tail) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(tail[i]); line != "" {
			return line
		}
	}
	return fmt.Sprintf("exit code %d", exitCode)
}

func fileBase(path string) string {
	if idx := strings.LastIndexByte(path, os.PathSeparator); idx >= 0 {
		return path[idx+1:]
	}
	return path
}
