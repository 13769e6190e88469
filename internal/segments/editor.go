package segments

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Editor rewrites an audio file with the given segments removed or muted.
// Work happens in a temp file beside the original; the original is only
// touched by the final atomic rename, so a failed edit leaves it intact.
type Editor struct {
	FFmpeg string

	// run is swappable in tests. Defaults to executing FFmpeg.
	run func(ctx context.Context, name string, args ...string) error
}

func NewEditor(ffmpeg string) *Editor {
	return &Editor{FFmpeg: ffmpeg}
}

// Remove applies segments to audioFile in place. Empty input is a no-op.
func (e *Editor) Remove(ctx context.Context, audioFile string, segments []Segment) error {
	if len(segments) == 0 {
		return nil
	}
	filter := buildFilter(segments)
	if filter == "" {
		return nil
	}

	ext := filepath.Ext(audioFile)
	tmp := filepath.Join(filepath.Dir(audioFile), ".ymd-edit-"+uuid.NewString()+ext)

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", audioFile,
		"-af", filter,
		"-y", tmp,
	}
	runner := e.run
	if runner == nil {
		runner = runFFmpeg
	}
	if err := runner(ctx, e.FFmpeg, args...); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("cut segments from %s: %w", filepath.Base(audioFile), err)
	}
	if _, err := os.Stat(tmp); err != nil {
		return fmt.Errorf("segment edit produced no output for %s", filepath.Base(audioFile))
	}
	if err := os.Rename(tmp, audioFile); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace %s with edited audio: %w", filepath.Base(audioFile), err)
	}
	return nil
}

func runFFmpeg(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		tail := strings.TrimSpace(string(out))
		if errors.As(err, &exitErr) && tail != "" {
			return fmt.Errorf("%s exited %d: %s", name, exitErr.ExitCode(), tail)
		}
		return err
	}
	return nil
}

// buildFilter assembles one -af expression covering all segments. Skipped
// ranges are dropped via aselect with timestamps resampled afterwards; muted
// ranges keep their duration but are silenced.
func buildFilter(segments []Segment) string {
	skips := []string{}
	mutes := []string{}
	for _, s := range segments {
		expr := fmt.Sprintf("between(t,%s,%s)", formatSeconds(s.Start), formatSeconds(s.End))
		switch s.Action {
		case ActionSkip:
			skips = append(skips, expr)
		case ActionMute:
			mutes = append(mutes, expr)
		}
	}

	parts := []string{}
	if len(skips) > 0 {
		parts = append(parts,
			fmt.Sprintf("aselect='%s==0',asetpts=N/SR/TB", strings.Join(skips, "+")))
	}
	for _, expr := range mutes {
		parts = append(parts, fmt.Sprintf("volume=0:enable='%s'", expr))
	}
	return strings.Join(parts, ",")
}

func formatSeconds(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.3f", v), "0"), ".")
}
