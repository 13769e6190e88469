// Package tags applies album-level metadata to downloaded audio so playlist
// folders group as one compilation album in media players.
package tags

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

// Tags is the album-side metadata written onto each playlist track.
type Tags struct {
	Album       string
	AlbumArtist string
	Compilation bool
	TrackNumber int
}

// Writer applies tags to an audio file in place.
type Writer interface {
	WriteAlbumTags(ctx context.Context, audioFile string, t Tags) error
}

// FFmpegWriter rewrites the metadata block with a stream copy, so no audio
// re-encoding happens. The edit lands in a temp file first and replaces the
// original atomically.
type FFmpegWriter struct {
	FFmpeg string

	run func(ctx context.Context, name string, args ...string) error
}

func NewFFmpegWriter(ffmpeg string) *FFmpegWriter {
	return &FFmpegWriter{FFmpeg: ffmpeg}
}

func (w *FFmpegWriter) WriteAlbumTags(ctx context.Context, audioFile string, t Tags) error {
	ext := filepath.Ext(audioFile)
	tmp := filepath.Join(filepath.Dir(audioFile), ".ymd-tag-"+uuid.NewString()+ext)

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", audioFile,
		"-c", "copy",
	}
	if t.Album != "" {
		args = append(args, "-metadata", "album="+t.Album)
	}
	if t.AlbumArtist != "" {
		args = append(args, "-metadata", "album_artist="+t.AlbumArtist)
	}
	if t.Compilation {
		args = append(args, "-metadata", "compilation=1")
	}
	if t.TrackNumber > 0 {
		args = append(args, "-metadata", fmt.Sprintf("track=%d", t.TrackNumber))
	}
	args = append(args, "-y", tmp)

	runner := w.run
	if runner == nil {
		runner = runTool
	}
	if err := runner(ctx, w.FFmpeg, args...); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("retag %s: %w", filepath.Base(audioFile), err)
	}
	if _, err := os.Stat(tmp); err != nil {
		return fmt.Errorf("retag produced no output for %s", filepath.Base(audioFile))
	}
	if err := os.Rename(tmp, audioFile); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace %s with retagged audio: %w", filepath.Base(audioFile), err)
	}
	return nil
}

func runTool(ctx context.Context, name string, args ...string) error {
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
