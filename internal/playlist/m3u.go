// Package playlist reads and writes the per-folder M3U files that mirror
// each downloaded playlist. The M3U doubles as durable state: a
// #PLAYLIST-URL: comment stores the source URL so later runs can refresh or
// reprocess a folder without the user re-supplying it.
package playlist

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jaa/ymd/internal/tags"
)

const URLCommentPrefix = "#PLAYLIST-URL:"

// Entry is one track line pair in an M3U file.
type Entry struct {
	Path   string // absolute path to the audio file
	Artist string
	Title  string
}

// PathForDir returns the conventional M3U location for a playlist folder:
// <dir>/<folder name>.m3u.
func PathForDir(dir string) string {
	return filepath.Join(dir, filepath.Base(dir)+".m3u")
}

// Write emits the playlist file. Paths are stored relative to baseDir when
// possible so the library can be mounted elsewhere, absolute otherwise.
func Write(m3uPath string, baseDir string, entries []Entry, playlistURL string) error {
	lines := []string{"#EXTM3U"}
	if playlistURL != "" {
		lines = append(lines, URLCommentPrefix+playlistURL)
	}
	for _, e := range entries {
		ref := e.Path
		if rel, err := filepath.Rel(baseDir, e.Path); err == nil && !strings.HasPrefix(rel, "..") {
			ref = filepath.ToSlash(rel)
		}
		lines = append(lines, fmt.Sprintf("#EXTINF:-1,%s - %s", e.Artist, e.Title), ref)
	}
	if err := os.MkdirAll(filepath.Dir(m3uPath), 0o755); err != nil {
		return fmt.Errorf("create playlist dir: %w", err)
	}
	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(m3uPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", m3uPath, err)
	}
	return nil
}

// ReadURL returns the stored #PLAYLIST-URL: value, or "" when the file or
// the comment is absent.
func ReadURL(m3uPath string) string {
	payload, err := os.ReadFile(m3uPath)
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(payload), "\n") {
		stripped := strings.TrimSpace(line)
		if strings.HasPrefix(stripped, URLCommentPrefix) {
			return strings.TrimSpace(strings.TrimPrefix(stripped, URLCommentPrefix))
		}
	}
	return ""
}

// RewriteFromDir regenerates the folder's M3U from the audio files on disk,
// sorted by position prefix. When playlistURL is empty the URL already
// stored in the file (if any) is carried over.
func RewriteFromDir(dir string, baseDir string, playlistURL string) error {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("playlist directory not found: %s", dir)
	}
	m3uPath := PathForDir(dir)

	effectiveURL := playlistURL
	if effectiveURL != "" {
		effectiveURL = CleanURL(effectiveURL)
	} else {
		effectiveURL = ReadURL(m3uPath)
	}

	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read playlist dir %s: %w", dir, err)
	}
	names := []string{}
	for _, de := range dirEntries {
		if de.IsDir() || !tags.IsAudioFile(de.Name()) {
			continue
		}
		names = append(names, de.Name())
	}
	sort.Slice(names, func(i, j int) bool {
		ni, nj := tags.TrackNumber(names[i]), tags.TrackNumber(names[j])
		if ni != nj {
			return ni < nj
		}
		return names[i] < names[j]
	})

	entries := make([]Entry, 0, len(names))
	for _, name := range names {
		artist, title := ArtistTitleFromFilename(name)
		entries = append(entries, Entry{
			Path:   filepath.Join(dir, name),
			Artist: artist,
			Title:  title,
		})
	}
	return Write(m3uPath, baseDir, entries, effectiveURL)
}

// ArtistTitleFromFilename recovers "Artist", "Title" from a track filename
// such as "007-Artist - Title.opus". Without a separator the whole stem
// becomes the title.
func ArtistTitleFromFilename(name string) (string, string) {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	if n := tags.TrackNumber(stem); n > 0 {
		if idx := strings.Index(stem, "-"); idx >= 0 {
			stem = stem[idx+1:]
		}
	}
	if artist, title, found := strings.Cut(stem, " - "); found {
		artist = strings.TrimSpace(artist)
		title = strings.TrimSpace(title)
		if artist != "" && title != "" {
			return artist, title
		}
	}
	return "Unknown Artist", strings.TrimSpace(stem)
}

// CleanURL strips tracking and session query parameters from a playlist or
// watch URL, keeping only the load-bearing ones (list, v).
func CleanURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	kept := url.Values{}
	for _, key := range []string{"list", "v"} {
		if value := parsed.Query().Get(key); value != "" {
			kept.Set(key, value)
		}
	}
	parsed.RawQuery = kept.Encode()
	return parsed.String()
}
