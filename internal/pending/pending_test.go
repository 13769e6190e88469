package pending

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeAudio(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	return path
}

func TestSidecarPath(t *testing.T) {
	got := SidecarPath("/music/P/001-Artist-Song.opus")
	want := "/music/P/001-Artist-Song.pending.json"
	if got != want {
		t.Fatalf("SidecarPath = %q, want %q", got, want)
	}
}

func TestWriteCreatesSidecar(t *testing.T) {
	dir := t.TempDir()
	audio := writeAudio(t, dir, "001-Artist-Song.opus")

	pf, err := Write(audio, "https://youtube.com/watch?v=abc", "001-Artist-Song", []string{TaskSegments}, nil)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	payload, err := os.ReadFile(pf.SidecarPath())
	if err != nil {
		t.Fatalf("read sidecar: %v", err)
	}
	var record struct {
		Version   int      `json:"version"`
		SourceURL string   `json:"source_url"`
		Pending   []string `json:"pending"`
		Created   string   `json:"created"`
	}
	if err := json.Unmarshal(payload, &record); err != nil {
		t.Fatalf("parse sidecar: %v", err)
	}
	if record.Version != 1 {
		t.Errorf("version = %d, want 1", record.Version)
	}
	if record.SourceURL != "https://youtube.com/watch?v=abc" {
		t.Errorf("source_url = %q", record.SourceURL)
	}
	if len(record.Pending) != 1 || record.Pending[0] != TaskSegments {
		t.Errorf("pending = %v", record.Pending)
	}
	if record.Created == "" {
		t.Error("created timestamp is empty")
	}
}

func TestWriteMergesExistingSidecar(t *testing.T) {
	dir := t.TempDir()
	audio := writeAudio(t, dir, "002-Song.opus")

	first, err := Write(audio, "https://youtube.com/watch?v=x", "002-Song", []string{TaskSegments}, nil)
	if err != nil {
		t.Fatalf("first Write: %v", err)
	}
	second, err := Write(audio, "https://youtube.com/watch?v=IGNORED", "002-Song", []string{TaskSegments, "other"}, nil)
	if err != nil {
		t.Fatalf("second Write: %v", err)
	}

	if second.SourceURL != first.SourceURL {
		t.Errorf("merge replaced source_url: %q", second.SourceURL)
	}
	if second.Created != first.Created {
		t.Errorf("merge replaced created timestamp")
	}
	if len(second.Tasks) != 2 {
		t.Fatalf("tasks = %v, want deduplicated union of 2", second.Tasks)
	}
}

func TestRemoveTaskDeletesEmptySidecar(t *testing.T) {
	dir := t.TempDir()
	audio := writeAudio(t, dir, "003-Song.opus")

	pf, err := Write(audio, "u", "003-Song", []string{TaskSegments}, nil)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := pf.RemoveTask(TaskSegments); err != nil {
		t.Fatalf("RemoveTask: %v", err)
	}
	if _, err := os.Stat(pf.SidecarPath()); !os.IsNotExist(err) {
		t.Fatal("empty sidecar should have been deleted")
	}
}

func TestRemoveTaskKeepsRemainingTasks(t *testing.T) {
	dir := t.TempDir()
	audio := writeAudio(t, dir, "004-Song.opus")

	pf, err := Write(audio, "u", "004-Song", []string{TaskSegments, "other"}, nil)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := pf.RemoveTask("other"); err != nil {
		t.Fatalf("RemoveTask: %v", err)
	}
	if _, err := os.Stat(pf.SidecarPath()); err != nil {
		t.Fatalf("sidecar should survive with tasks left: %v", err)
	}
	if len(pf.Tasks) != 1 || pf.Tasks[0] != TaskSegments {
		t.Errorf("tasks = %v", pf.Tasks)
	}
}

func TestFindRecursesAndFilters(t *testing.T) {
	base := t.TempDir()
	sub := filepath.Join(base, "Playlist A")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	a := writeAudio(t, base, "001-A.opus")
	b := writeAudio(t, sub, "002-B.opus")
	c := writeAudio(t, sub, "003-C.opus")

	if _, err := Write(a, "u1", "001-A", []string{TaskSegments}, nil); err != nil {
		t.Fatalf("Write a: %v", err)
	}
	if _, err := Write(b, "u2", "002-B", []string{"other"}, nil); err != nil {
		t.Fatalf("Write b: %v", err)
	}
	if _, err := Write(c, "u3", "003-C", []string{TaskSegments}, nil); err != nil {
		t.Fatalf("Write c: %v", err)
	}

	all, err := Find(base, "", nil)
	if err != nil {
		t.Fatalf("Find all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Find all = %d sidecars, want 3", len(all))
	}

	segs, err := Find(base, TaskSegments, nil)
	if err != nil {
		t.Fatalf("Find segments: %v", err)
	}
	if len(segs) != 2 {
		t.Fatalf("Find segments = %d sidecars, want 2", len(segs))
	}
}

func TestFindSkipsOrphanedAndCorruptSidecars(t *testing.T) {
	base := t.TempDir()

	// Orphan: sidecar with no audio file next to it.
	orphan := filepath.Join(base, "gone"+SidecarSuffix)
	if err := os.WriteFile(orphan, []byte(`{"version":1,"pending":["segments"]}`), 0o644); err != nil {
		t.Fatalf("write orphan: %v", err)
	}

	// Corrupt: audio exists but sidecar is not JSON.
	writeAudio(t, base, "005-Song.opus")
	corrupt := filepath.Join(base, "005-Song"+SidecarSuffix)
	if err := os.WriteFile(corrupt, []byte("not json"), 0o644); err != nil {
		t.Fatalf("write corrupt: %v", err)
	}

	// Transient yt-dlp artifact.
	tmp := filepath.Join(base, "006.temp"+SidecarSuffix)
	if err := os.WriteFile(tmp, []byte(`{}`), 0o644); err != nil {
		t.Fatalf("write temp: %v", err)
	}

	found, err := Find(base, "", nil)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(found) != 0 {
		t.Fatalf("Find = %d sidecars, want 0", len(found))
	}
}

func TestResolveAudioFileIgnoresSidecarsAndTemps(t *testing.T) {
	dir := t.TempDir()
	audio := writeAudio(t, dir, "007-Song.m4a")
	sidecar := filepath.Join(dir, "007-Song"+SidecarSuffix)
	if err := os.WriteFile(sidecar, []byte(`{}`), 0o644); err != nil {
		t.Fatalf("write sidecar: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "007-Song.temp.m4a"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write temp: %v", err)
	}

	got, ok := ResolveAudioFile(sidecar)
	if !ok {
		t.Fatal("ResolveAudioFile found nothing")
	}
	if got != audio {
		t.Fatalf("ResolveAudioFile = %q, want %q", got, audio)
	}
}
