package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jaa/ymd/internal/config"
	"github.com/jaa/ymd/internal/metacache"
	"github.com/jaa/ymd/internal/playlist"
	"github.com/jaa/ymd/internal/segments"
)

// templateRunner pretends to be the fetch tool: it writes an .opus file at
// the path given by the -o template and exits 0.
type templateRunner struct {
	mu    sync.Mutex
	calls int
}

func (r *templateRunner) Run(_ context.Context, spec ExecSpec, _ func(string)) ExecResult {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	for i, arg := range spec.Args {
		if arg == "-o" && i+1 < len(spec.Args) {
			target := strings.Replace(spec.Args[i+1], "%(ext)s", "opus", 1)
			os.MkdirAll(filepath.Dir(target), 0o755)
			os.WriteFile(target, []byte("audio"), 0o644)
		}
	}
	return ExecResult{ExitCode: 0}
}

func downloaderFixture(t *testing.T, cfg config.Config, runner ExecRunner) *Downloader {
	t.Helper()
	logger := testLogger()
	cache := metacache.New(cfg.Cache.Dir, 30, false, logger)
	meta := NewMetadataClient(cfg, cache, logger)
	meta.runJSON = func(_ context.Context, _ string, _ []string) (string, string, int, error) {
		return `{
			"_type": "playlist",
			"title": "Morning Mix",
			"webpage_url": "https://music.youtube.com/playlist?list=PL9&si=junk",
			"entries": [
				{"id": "aaa", "title": "Artist One - Song One", "playlist_index": 1},
				{"id": "bbb", "title": "Artist Two - Song Two", "playlist_index": 2}
			]
		}`, "", 0, nil
	}
	audit := NewAuditLog(cfg.Library.LogDir)
	resolver := NewSegmentResolver(segments.NewClient("http://unreachable.invalid"),
		segments.NewEditor("ffmpeg"), nil, audit, logger, time.Millisecond)
	return &Downloader{
		Config:    cfg,
		Meta:      meta,
		Builder:   NewJobBuilder(cfg, meta, audit, logger),
		Scheduler: NewScheduler(cfg, runner, nil, audit, logger, nil),
		Resolver:  resolver,
		Audit:     audit,
		Logger:    logger,
	}
}

func TestDownloaderRunWritesLibraryAndM3U(t *testing.T) {
	cfg := testConfig(t)
	cfg.Download.Concurrency = 2
	runner := &templateRunner{}
	dl := downloaderFixture(t, cfg, runner)

	summary, err := dl.Run(context.Background(), "https://music.youtube.com/playlist?list=PL9")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Completed != 2 || summary.Failed != 0 {
		t.Fatalf("summary = %+v", summary)
	}

	playlistDir := filepath.Join(cfg.Library.BaseDir, "Morning Mix")
	if FindExistingFile(playlistDir, "01-Artist One-Song One") == "" {
		t.Fatalf("first track missing from %s", playlistDir)
	}

	m3uPath := filepath.Join(playlistDir, "Morning Mix.m3u")
	payload, err := os.ReadFile(m3uPath)
	if err != nil {
		t.Fatalf("m3u: %v", err)
	}
	text := string(payload)
	if !strings.Contains(text, "#PLAYLIST-URL:https://music.youtube.com/playlist?list=PL9") {
		t.Fatalf("m3u missing cleaned URL comment:\n%s", text)
	}
	if !strings.Contains(text, "#EXTINF:-1,Artist Two - Song Two") {
		t.Fatalf("m3u missing EXTINF line:\n%s", text)
	}
	if got := playlist.ReadURL(m3uPath); got != "https://music.youtube.com/playlist?list=PL9" {
		t.Fatalf("stored URL = %q", got)
	}
}

func TestDownloaderScrubsLedgerAfterDownloads(t *testing.T) {
	cfg := testConfig(t)
	runner := &templateRunner{}
	dl := downloaderFixture(t, cfg, runner)

	// The ledger already knows track aaa, but its file is not on disk yet.
	// The scrub must only run once every job is terminal, so the entry has
	// to survive: by then the run has produced the file.
	if err := os.MkdirAll(filepath.Dir(cfg.Library.ArchiveFile), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cfg.Library.ArchiveFile, []byte("youtube aaa\nyoutube zzz\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := dl.Run(context.Background(), "https://music.youtube.com/playlist?list=PL9"); err != nil {
		t.Fatalf("run: %v", err)
	}

	payload, err := os.ReadFile(cfg.Library.ArchiveFile)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if !strings.Contains(string(payload), "youtube aaa") {
		t.Fatalf("ledger entry for a freshly downloaded track was scrubbed:\n%s", payload)
	}
	if !strings.Contains(string(payload), "youtube zzz") {
		t.Fatalf("unrelated ledger entry lost:\n%s", payload)
	}
}

func TestDownloaderRunIsIncremental(t *testing.T) {
	cfg := testConfig(t)
	runner := &templateRunner{}
	dl := downloaderFixture(t, cfg, runner)

	if _, err := dl.Run(context.Background(), "https://music.youtube.com/playlist?list=PL9"); err != nil {
		t.Fatalf("first run: %v", err)
	}
	firstCalls := runner.calls

	summary, err := dl.Run(context.Background(), "https://music.youtube.com/playlist?list=PL9")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if runner.calls != firstCalls {
		t.Fatalf("second run should skip existing files, calls %d -> %d", firstCalls, runner.calls)
	}
	if summary.Skipped != 2 {
		t.Fatalf("summary = %+v", summary)
	}
}
