package engine

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestScrubArchiveRemovesStaleEntries(t *testing.T) {
	cfg := testConfig(t)
	dir := filepath.Join(cfg.Library.BaseDir, "Mix")
	if err := os.MkdirAll(filepath.Dir(cfg.Library.ArchiveFile), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}

	// "kept" exists on disk, "gone" does not, "other" belongs to no job.
	if err := os.WriteFile(filepath.Join(dir, "01-Artist-Kept.opus"), []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	archive := "youtube kept111\nyoutube gone222\nyoutube other333\n"
	if err := os.WriteFile(cfg.Library.ArchiveFile, []byte(archive), 0o644); err != nil {
		t.Fatal(err)
	}

	jobs := []DownloadJob{
		{OutputDir: dir, OutputStem: "01-Artist-Kept", SourceURL: "https://music.youtube.com/watch?v=kept111"},
		{OutputDir: dir, OutputStem: "02-Artist-Gone", SourceURL: "https://music.youtube.com/watch?v=gone222"},
	}
	removed, err := ScrubArchive(cfg, jobs, testLogger())
	if err != nil {
		t.Fatalf("scrub: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}

	payload, err := os.ReadFile(cfg.Library.ArchiveFile)
	if err != nil {
		t.Fatal(err)
	}
	got := string(payload)
	if strings.Contains(got, "gone222") {
		t.Fatalf("stale entry survived: %q", got)
	}
	if !strings.Contains(got, "kept111") || !strings.Contains(got, "other333") {
		t.Fatalf("live entries must be preserved: %q", got)
	}
}

func TestScrubArchiveMissingArchiveIsNoop(t *testing.T) {
	cfg := testConfig(t)
	removed, err := ScrubArchive(cfg, []DownloadJob{{SourceURL: "https://music.youtube.com/watch?v=x"}}, testLogger())
	if err != nil || removed != 0 {
		t.Fatalf("removed = %d, err = %v", removed, err)
	}
}

func TestVideoIDFromURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://music.youtube.com/watch?v=abc123", "abc123"},
		{"https://youtu.be/xyz789", "xyz789"},
		{"://bad url", ""},
	}
	for _, tc := range tests {
		if got := videoIDFromURL(tc.in); got != tc.want {
			t.Errorf("videoIDFromURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFindExistingFile(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"01-Artist-Song.opus",
		"01-Artist-Song.pending.json",
		"01-Artist-Song.temp.opus",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	got := FindExistingFile(dir, "01-Artist-Song")
	if filepath.Base(got) != "01-Artist-Song.opus" {
		t.Fatalf("got %q", got)
	}
	if FindExistingFile(dir, "02-Other-Song") != "" {
		t.Fatalf("unexpected match for unknown stem")
	}

	nested := filepath.Join(t.TempDir(), "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(nested, "03-X-Y.m4a"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := FindExistingFileRecursive(filepath.Dir(filepath.Dir(nested)), "03-X-Y"); filepath.Base(got) != "03-X-Y.m4a" {
		t.Fatalf("recursive got %q", got)
	}
}
