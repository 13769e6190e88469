package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/jaa/ymd/internal/config"
	"github.com/jaa/ymd/internal/metacache"
)

// InfoDoc is a decoded extractor info document. yt-dlp's -J output is
// free-form JSON, so it stays a generic map and access goes through the
// helpers below.
type InfoDoc = map[string]any

// MetadataClient fetches info documents via `yt-dlp -J`, backed by the
// metadata cache.
type MetadataClient struct {
	Config config.Config
	Cache  metacache.Cache
	Logger *log.Logger

	// runJSON is swappable in tests. It returns stdout, combined diagnostics
	// and the exit code.
	runJSON func(ctx context.Context, bin string, args []string) (string, string, int, error)
}

func NewMetadataClient(cfg config.Config, cache metacache.Cache, logger *log.Logger) *MetadataClient {
	return &MetadataClient{Config: cfg, Cache: cache, Logger: logger}
}

// FetchDocument returns the info document for url, from cache when fresh.
// flat requests a flat playlist listing (entries without full per-track
// metadata), the mode used for the initial playlist scan.
func (c *MetadataClient) FetchDocument(ctx context.Context, url string, flat bool) (InfoDoc, error) {
	if raw, ok := c.Cache.Read(url); ok {
		var doc InfoDoc
		if err := json.Unmarshal(raw, &doc); err == nil {
			if !playlistIncomplete(doc, c.Logger) {
				return doc, nil
			}
			c.Logger.Warn("cached playlist metadata incomplete, refetching", "url", url)
		}
	}

	args := []string{"-J", "--ignore-errors", url}
	if flat {
		args = append(args, "--flat-playlist")
	}
	if cookies := c.Config.Download.CookiesFile; cookies != "" {
		if _, err := os.Stat(cookies); err == nil {
			args = append(args, "--cookies", cookies)
		}
	}

	run := c.runJSON
	if run == nil {
		run = execJSON
	}
	stdout, diag, code, err := run(ctx, c.Config.Tools.YTDLP, args)
	if err != nil && stdout == "" {
		return nil, fmt.Errorf("metadata fetch for %s: %w", url, err)
	}
	if code != 0 && strings.TrimSpace(stdout) == "" {
		return nil, fmt.Errorf("metadata fetch for %s failed (exit %d): %s", url, code, strings.TrimSpace(diag))
	}

	var doc InfoDoc
	if err := json.Unmarshal([]byte(stdout), &doc); err != nil {
		return nil, fmt.Errorf("metadata fetch for %s failed (exit %d): %s", url, code, strings.TrimSpace(diag))
	}
	if raw, err := json.Marshal(doc); err == nil {
		if err := c.Cache.Write(url, raw); err != nil {
			c.Logger.Warn("metadata cache write failed", "url", url, "err", err)
		}
	}
	return doc, nil
}

func execJSON(ctx context.Context, bin string, args []string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	code := 0
	if err != nil {
		code = 1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
	}
	return stdout.String(), stderr.String(), code, err
}

// playlistIncomplete reports whether a cached playlist document carries
// fewer entries than its declared total. Such documents come from runs that
// were interrupted mid-scan and must be refetched.
func playlistIncomplete(doc InfoDoc, logger *log.Logger) bool {
	if !IsPlaylist(doc) {
		return false
	}
	entries, ok := doc["entries"].([]any)
	if !ok {
		return false
	}
	expected := 0
	for _, key := range []string{"playlist_count", "entry_count", "entries_count"} {
		if n := docInt(doc, key); n > 0 {
			expected = n
			break
		}
	}
	if expected > 0 && len(entries) < expected {
		if logger != nil {
			logger.Warn("cached playlist entries short of declared total",
				"have", len(entries), "want", expected)
		}
		return true
	}
	return false
}

// IsPlaylist reports whether an info document describes a playlist rather
// than a single track.
func IsPlaylist(doc InfoDoc) bool {
	if doc["_type"] == "playlist" {
		return true
	}
	_, hasEntries := doc["entries"]
	return hasEntries
}

func docString(doc InfoDoc, key string) string {
	if v, ok := doc[key]; ok && v != nil {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
	return ""
}

func docInt(doc InfoDoc, key string) int {
	switch v := doc[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		n := 0
		fmt.Sscanf(v, "%d", &n)
		return n
	}
	return 0
}

func extractArtist(doc InfoDoc) string {
	if artist := docString(doc, "artist"); artist != "" {
		return artist
	}
	if uploader := docString(doc, "uploader"); uploader != "" {
		return uploader
	}
	if artists, ok := doc["artists"].([]any); ok && len(artists) > 0 {
		switch first := artists[0].(type) {
		case map[string]any:
			if name := docString(first, "name"); name != "" {
				return name
			}
			return docString(first, "artist")
		case string:
			return first
		}
	}
	return ""
}

var albumDescRe = regexp.MustCompile(`(?im)^\s*album\s*[:\-]\s*(.+)$`)

func extractAlbum(doc InfoDoc) string {
	if album := docString(doc, "album"); album != "" {
		return album
	}
	if m := albumDescRe.FindStringSubmatch(docString(doc, "description")); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// BuildTrackMeta assembles TrackMeta from an info document. For playlist
// downloads playlistTitle becomes the shared album and compilation tagging
// is enabled so players group the folder as one various-artists album.
func BuildTrackMeta(doc InfoDoc, playlistIndex int, playlistTitle string, isCompilation bool) TrackMeta {
	title := docString(doc, "track")
	if title == "" {
		title = docString(doc, "title")
	}
	if title == "" {
		title = "Unknown Title"
	}
	artist := extractArtist(doc)
	album := playlistTitle
	if album == "" {
		album = extractAlbum(doc)
	}
	if album == "" {
		album = docString(doc, "playlist")
	}
	if artist == "" {
		parsedArtist, parsedTitle := ParseArtistTitle(docString(doc, "title"))
		if parsedArtist == "" {
			parsedArtist = "Unknown Artist"
		}
		artist = parsedArtist
		title = parsedTitle
	}
	albumArtist := artist
	if isCompilation {
		albumArtist = "Various Artists"
	}
	webpageURL := docString(doc, "webpage_url")
	if webpageURL == "" {
		webpageURL = docString(doc, "original_url")
	}
	return TrackMeta{
		Title:         title,
		Artist:        artist,
		Album:         album,
		AlbumArtist:   albumArtist,
		Compilation:   isCompilation,
		TrackNumber:   docInt(doc, "track_number"),
		PlaylistIndex: playlistIndex,
		WebpageURL:    webpageURL,
	}
}

var (
	invalidCharsRe = regexp.MustCompile(`[<>:\\|?*"` + "\n\r\t" + `]`)
	multiSpaceRe   = regexp.MustCompile(`\s+`)
)

// Sanitize makes value safe for use as a file or directory name.
func Sanitize(value string) string {
	const maxLength = 120
	if value == "" {
		return "unknown"
	}
	s := invalidCharsRe.ReplaceAllString(value, "-")
	s = strings.ReplaceAll(s, "/", "-")
	s = multiSpaceRe.ReplaceAllString(s, " ")
	s = strings.Trim(s, " .")
	if s == "" {
		return "unknown"
	}
	if len(s) > maxLength {
		s = strings.TrimRight(s[:maxLength], " .")
	}
	return s
}

// ParseArtistTitle splits "Artist - Title" video titles. The artist is empty
// when no separator is present.
func ParseArtistTitle(rawTitle string) (string, string) {
	if rawTitle == "" {
		return "", "Unknown Title"
	}
	if artist, title, found := strings.Cut(rawTitle, " - "); found {
		artist = strings.TrimSpace(artist)
		title = strings.TrimSpace(title)
		if title == "" {
			title = rawTitle
		}
		return artist, title
	}
	return "", strings.TrimSpace(rawTitle)
}

// MakeOutputStem builds the on-disk stem: [prefix-]Artist-Title, sanitized.
func MakeOutputStem(meta TrackMeta, trackPrefix string) string {
	title := Sanitize(meta.Title)
	artist := Sanitize(meta.Artist)
	if trackPrefix != "" {
		return trackPrefix + "-" + artist + "-" + title
	}
	return artist + "-" + title
}
