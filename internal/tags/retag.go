package tags

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
)

// AlbumArtistCompilation is the album_artist set on playlist folders so
// players group the folder under one entry instead of per-track artists.
const AlbumArtistCompilation = "Various Artists"

var trackPrefixRe = regexp.MustCompile(`^(\d+)-`)

var audioExtensions = map[string]bool{
	".opus": true,
	".m4a":  true,
	".mp3":  true,
	".ogg":  true,
	".flac": true,
	".webm": true,
	".wav":  true,
}

// IsAudioFile reports whether name looks like a downloaded track rather than
// a sidecar, playlist, thumbnail or transient artifact.
func IsAudioFile(name string) bool {
	if strings.Contains(name, ".temp.") || strings.HasSuffix(name, ".ymd.bak") {
		return false
	}
	return audioExtensions[strings.ToLower(filepath.Ext(name))]
}

// TrackNumber extracts the numeric position prefix from a track filename
// ("007-Artist-Song.opus" -> 7). Zero means no prefix.
func TrackNumber(name string) int {
	m := trackPrefixRe.FindStringSubmatch(name)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

// RetagDir re-applies album tags across every track in a playlist folder.
// The folder name becomes the album title. Per-file failures are logged and
// counted but never abort the pass.
func RetagDir(ctx context.Context, w Writer, dir string, logger *log.Logger) (tagged int, failed int) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if logger != nil {
			logger.Error("cannot read playlist folder", "dir", dir, "err", err)
		}
		return 0, 0
	}

	names := []string{}
	for _, entry := range entries {
		if entry.IsDir() || !IsAudioFile(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	album := filepath.Base(dir)
	for _, name := range names {
		t := Tags{
			Album:       album,
			AlbumArtist: AlbumArtistCompilation,
			Compilation: true,
			TrackNumber: TrackNumber(name),
		}
		if err := w.WriteAlbumTags(ctx, filepath.Join(dir, name), t); err != nil {
			failed++
			if logger != nil {
				logger.Warn("tag write failed", "file", name, "err", err)
			}
			continue
		}
		tagged++
	}
	return tagged, failed
}
