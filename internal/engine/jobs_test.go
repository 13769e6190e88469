package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jaa/ymd/internal/metacache"
)

func builderFixture(t *testing.T) (*JobBuilder, *MetadataClient) {
	t.Helper()
	cfg := testConfig(t)
	meta := NewMetadataClient(cfg, metacache.New(cfg.Cache.Dir, 30, false, testLogger()), testLogger())
	return NewJobBuilder(cfg, meta, NewAuditLog(cfg.Library.LogDir), testLogger()), meta
}

func flatPlaylist(entries ...map[string]any) InfoDoc {
	raw := make([]any, 0, len(entries))
	for _, entry := range entries {
		raw = append(raw, entry)
	}
	return InfoDoc{
		"_type":   "playlist",
		"title":   "Evening Mix",
		"entries": raw,
	}
}

func TestBuildPlaylistJobs(t *testing.T) {
	builder, _ := builderFixture(t)

	info := flatPlaylist(
		map[string]any{"id": "aaa", "title": "First Artist - First Song", "artist": "First Artist", "playlist_index": float64(1)},
		map[string]any{"id": "bbb", "title": "Second Artist - Second Song", "artist": "Second Artist", "playlist_index": float64(2)},
	)
	jobs, err := builder.BuildPlaylistJobs(context.Background(), info)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("jobs = %d, want 2", len(jobs))
	}

	first := jobs[0]
	wantDir := filepath.Join(builder.Config.Library.BaseDir, "Evening Mix")
	if first.OutputDir != wantDir {
		t.Fatalf("output dir = %q, want %q", first.OutputDir, wantDir)
	}
	if first.M3UPath != filepath.Join(wantDir, "Evening Mix.m3u") {
		t.Fatalf("m3u path = %q", first.M3UPath)
	}
	if !strings.HasPrefix(first.OutputStem, "01-") {
		t.Fatalf("stem = %q, want 01- prefix", first.OutputStem)
	}
	if first.SourceURL != "https://music.youtube.com/watch?v=aaa" {
		t.Fatalf("source url = %q", first.SourceURL)
	}
	if first.Meta.Album != "Evening Mix" || first.Meta.AlbumArtist != "Various Artists" || !first.Meta.Compilation {
		t.Fatalf("meta = %+v", first.Meta)
	}
}

func TestBuildPlaylistJobsPrefixWidth(t *testing.T) {
	builder, _ := builderFixture(t)

	entries := make([]map[string]any, 0, 120)
	for i := 1; i <= 120; i++ {
		entries = append(entries, map[string]any{
			"id": "id" + string(rune('a'+i%26)) + string(rune('a'+i/26)),
			"title": "Artist - Song",
			"playlist_index": float64(i),
		})
	}
	jobs, err := builder.BuildPlaylistJobs(context.Background(), flatPlaylist(entries...))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(jobs) != 120 {
		t.Fatalf("jobs = %d", len(jobs))
	}
	if !strings.HasPrefix(jobs[0].OutputStem, "001-") {
		t.Fatalf("width should match total digits, stem = %q", jobs[0].OutputStem)
	}
	if !strings.HasPrefix(jobs[119].OutputStem, "120-") {
		t.Fatalf("stem = %q", jobs[119].OutputStem)
	}
}

func TestBuildPlaylistJobsSkipRules(t *testing.T) {
	builder, meta := builderFixture(t)
	meta.runJSON = func(_ context.Context, _ string, args []string) (string, string, int, error) {
		// Per-entry fallback fetch for the entry without embedded metadata.
		return "", "ERROR: Video unavailable", 1, nil
	}

	info := flatPlaylist(
		map[string]any{"title": "No URL Entry"},
		map[string]any{"id": "ccc"}, // no embedded title, fallback fetch fails
		map[string]any{"id": "ddd", "title": "Artist - Private Song", "availability": "private"},
		map[string]any{"id": "eee", "title": "videoplayback"},
		map[string]any{"id": "fff", "title": "Real Artist - Real Song"},
	)
	jobs, err := builder.BuildPlaylistJobs(context.Background(), info)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("jobs = %d, want only the usable entry", len(jobs))
	}
	if jobs[0].SourceURL != "https://music.youtube.com/watch?v=fff" {
		t.Fatalf("source url = %q", jobs[0].SourceURL)
	}

	payload, readErr := os.ReadFile(filepath.Join(builder.Config.Library.LogDir, LogErrors))
	if readErr != nil {
		t.Fatalf("errors log: %v", readErr)
	}
	logText := string(payload)
	for _, want := range []string{"metadata failed", "metadata unavailable", "metadata invalid title"} {
		if !strings.Contains(logText, want) {
			t.Errorf("errors log missing %q:\n%s", want, logText)
		}
	}
}

func TestBuildPlaylistJobsEmpty(t *testing.T) {
	builder, _ := builderFixture(t)
	if _, err := builder.BuildPlaylistJobs(context.Background(), flatPlaylist()); err == nil {
		t.Fatalf("expected error for empty playlist")
	}
}

func TestBuildReprocessJobsUsesScratchDir(t *testing.T) {
	builder, _ := builderFixture(t)
	scratch := t.TempDir()

	info := flatPlaylist(map[string]any{"id": "aaa", "title": "Artist - Song", "playlist_index": float64(1)})
	jobs, err := builder.BuildReprocessJobs(context.Background(), info, scratch)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("jobs = %d", len(jobs))
	}
	if jobs[0].OutputDir != scratch {
		t.Fatalf("output dir = %q, want scratch", jobs[0].OutputDir)
	}
	if jobs[0].M3UPath != "" {
		t.Fatalf("reprocess jobs must not carry an M3U path")
	}
}

func TestBuildSingleJob(t *testing.T) {
	builder, _ := builderFixture(t)
	info := InfoDoc{
		"title":       "Solo Artist - Solo Song",
		"artist":      "Solo Artist",
		"album":       "Solo Album",
		"webpage_url": "https://music.youtube.com/watch?v=solo1",
	}
	job := builder.BuildSingleJob(info)
	wantDir := filepath.Join(builder.Config.Library.BaseDir, "Solo Artist", "Solo Album")
	if job.OutputDir != wantDir {
		t.Fatalf("output dir = %q, want %q", job.OutputDir, wantDir)
	}
	// With an explicit artist field the video title is kept whole; the
	// "Artist - Title" split is a fallback for untagged uploads only.
	if job.OutputStem != "Solo Artist-Solo Artist - Solo Song" {
		t.Fatalf("stem = %q", job.OutputStem)
	}
	if job.M3UPath != "" {
		t.Fatalf("single jobs carry no M3U")
	}
	if job.SourceURL != "https://music.youtube.com/watch?v=solo1" {
		t.Fatalf("source url = %q", job.SourceURL)
	}
}

func TestEntryWatchURL(t *testing.T) {
	tests := []struct {
		entry map[string]any
		want  string
	}{
		{map[string]any{"url": "https://music.youtube.com/watch?v=x"}, "https://music.youtube.com/watch?v=x"},
		{map[string]any{"id": "abc"}, "https://music.youtube.com/watch?v=abc"},
		{map[string]any{}, ""},
	}
	for _, tc := range tests {
		if got := entryWatchURL(tc.entry); got != tc.want {
			t.Errorf("entryWatchURL(%v) = %q, want %q", tc.entry, got, tc.want)
		}
	}
}

func TestPlaylistSourceURL(t *testing.T) {
	info := InfoDoc{"webpage_url": "https://music.youtube.com/playlist?list=PL1&si=tracker"}
	if got := PlaylistSourceURL(info, ""); got != "https://music.youtube.com/playlist?list=PL1" {
		t.Fatalf("got %q", got)
	}
	if got := PlaylistSourceURL(InfoDoc{}, "https://music.youtube.com/playlist?list=PL2"); got != "https://music.youtube.com/playlist?list=PL2" {
		t.Fatalf("got %q", got)
	}
}
