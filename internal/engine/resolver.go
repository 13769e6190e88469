package engine

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"

	"github.com/jaa/ymd/internal/pending"
	"github.com/jaa/ymd/internal/segments"
)

// segmentAttempts bounds how often the segment database is queried per track
// before the work is left for a later run.
const segmentAttempts = 3

// resolvedMarker is appended to errors.log when the database confirms a
// track has no segments. The historic-log bootstrap treats stems carrying
// the marker as permanently clean.
const resolvedMarker = "SponsorBlock resolved — no segments in database"

// SegmentResolver applies deferred segment removal to an already-downloaded
// file: query the database directly, cut with ffmpeg, no re-download.
type SegmentResolver struct {
	Client     *segments.Client
	Editor     *segments.Editor
	Categories []string
	Audit      *AuditLog
	Logger     *log.Logger

	sleep func(time.Duration)
	delay time.Duration
}

func NewSegmentResolver(client *segments.Client, editor *segments.Editor,
	categories []string, audit *AuditLog, logger *log.Logger, attemptDelay time.Duration) *SegmentResolver {
	return &SegmentResolver{
		Client:     client,
		Editor:     editor,
		Categories: categories,
		Audit:      audit,
		Logger:     logger,
		sleep:      time.Sleep,
		delay:      attemptDelay,
	}
}

// Resolve trims segments from the track identified by sourceURL whose audio
// lives at audioFile. When pf is non-nil its segments task is cleared on
// success. Returns false when the service stayed unreachable and the work
// must remain pending.
func (r *SegmentResolver) Resolve(ctx context.Context, sourceURL, audioFile, stem string, pf *pending.File) bool {
	videoID, err := segments.VideoID(sourceURL)
	if err != nil {
		r.Logger.Warn("cannot extract video id, skipping", "stem", stem, "url", sourceURL)
		return false
	}

	var segs []segments.Segment
	fetched := false
	for attempt := 1; attempt <= segmentAttempts; attempt++ {
		if attempt > 1 {
			r.sleep(r.delay)
		}
		segs, err = r.Client.FetchSegments(ctx, videoID, r.Categories)
		if err == nil {
			fetched = true
			break
		}
		var statusErr *segments.StatusError
		if errors.As(err, &statusErr) {
			r.Logger.Warn("segment API error", "stem", stem,
				"attempt", attempt, "of", segmentAttempts, "status", statusErr.StatusCode)
		} else {
			r.Logger.Warn("segment API unreachable", "stem", stem,
				"attempt", attempt, "of", segmentAttempts, "err", err)
		}
		if ctx.Err() != nil {
			return false
		}
	}
	if !fetched {
		r.Logger.Warn("segment retry failed, API unreachable", "stem", stem, "attempts", segmentAttempts)
		return false
	}

	if len(segs) == 0 {
		r.Logger.Info("no segments in database, file already clean", "stem", stem)
		if pf != nil {
			if err := pf.RemoveTask(pending.TaskSegments); err != nil {
				r.Logger.Warn("could not update sidecar", "stem", stem, "err", err)
			}
		}
		// Permanent marker so the log bootstrap never re-creates a sidecar
		// for this stem.
		r.Audit.Append(LogErrors, stem, resolvedMarker)
		return true
	}

	if err := r.Editor.Remove(ctx, audioFile, segs); err != nil {
		r.Logger.Warn("segment removal failed", "stem", stem, "err", err)
		return false
	}
	r.Logger.Info("removed segments", "stem", stem, "count", len(segs))
	if pf != nil {
		if err := pf.RemoveTask(pending.TaskSegments); err != nil {
			r.Logger.Warn("could not update sidecar", "stem", stem, "err", err)
		}
	}
	return true
}
