package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jaa/ymd/internal/pending"
	"github.com/jaa/ymd/internal/segments"
)

func pendingFixture(t *testing.T, srvURL string) (*PendingProcessor, *AuditLog) {
	t.Helper()
	cfg := testConfig(t).WithSegmentCategories([]string{"sponsor"})
	audit := NewAuditLog(cfg.Library.LogDir)
	resolver := NewSegmentResolver(segments.NewClient(srvURL), segments.NewEditor("ffmpeg"),
		cfg.Segments.Categories, audit, testLogger(), time.Millisecond)
	resolver.sleep = func(time.Duration) {}
	return NewPendingProcessor(cfg, resolver, audit, testLogger()), audit
}

func TestPendingRunDisabledWithoutCategories(t *testing.T) {
	cfg := testConfig(t)
	proc := NewPendingProcessor(cfg, nil, NewAuditLog(cfg.Library.LogDir), testLogger())
	succeeded, failed, err := proc.Run(context.Background())
	if err != nil || succeeded != 0 || failed != 0 {
		t.Fatalf("got %d/%d/%v", succeeded, failed, err)
	}
}

func TestPendingRunResolvesSidecars(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	proc, _ := pendingFixture(t, srv.URL)
	dir := filepath.Join(proc.Config.Library.BaseDir, "Mix")
	audioFile, _ := writeTrackWithSidecar(t, dir, "01-A-B")

	succeeded, failed, err := proc.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if succeeded != 1 || failed != 0 {
		t.Fatalf("succeeded/failed = %d/%d", succeeded, failed)
	}
	if _, err := os.Stat(pending.SidecarPath(audioFile)); !os.IsNotExist(err) {
		t.Fatalf("sidecar should be gone after a successful resolve")
	}
}

func TestPendingRunKeepsUnreachableSidecars(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	proc, _ := pendingFixture(t, srv.URL)
	dir := filepath.Join(proc.Config.Library.BaseDir, "Mix")
	audioFile, _ := writeTrackWithSidecar(t, dir, "02-A-B")

	succeeded, failed, err := proc.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if succeeded != 0 || failed != 1 {
		t.Fatalf("succeeded/failed = %d/%d", succeeded, failed)
	}
	if _, err := os.Stat(pending.SidecarPath(audioFile)); err != nil {
		t.Fatalf("sidecar must be kept for the next attempt: %v", err)
	}
}

func TestPendingBootstrapFromLogs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	proc, audit := pendingFixture(t, srv.URL)
	dir := filepath.Join(proc.Config.Library.BaseDir, "Mix")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}

	// Two historic soft failures without sidecars: one still pending, one
	// already marked resolved in a later log line.
	for _, stem := range []string{"03-A-B", "04-A-B"} {
		if err := os.WriteFile(filepath.Join(dir, stem+".opus"), []byte("audio"), 0o644); err != nil {
			t.Fatal(err)
		}
		audit.Append(LogErrors, stem,
			"Unable to communicate with SponsorBlock API",
			"https://music.youtube.com/watch?v="+stem)
		audit.Append(LogSuccess, stem, dir, "https://music.youtube.com/watch?v="+stem)
	}
	audit.Append(LogErrors, "04-A-B", "SponsorBlock resolved — no segments in database")

	succeeded, failed, err := proc.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if succeeded != 1 || failed != 0 {
		t.Fatalf("succeeded/failed = %d/%d, want only the unresolved stem", succeeded, failed)
	}
}

func TestPendingCleanupTempSidecars(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	proc, _ := pendingFixture(t, srv.URL)
	dir := filepath.Join(proc.Config.Library.BaseDir, "Mix")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	tempSidecar := filepath.Join(dir, "05-A-B.temp.pending.json")
	if err := os.WriteFile(tempSidecar, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, _, err := proc.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, err := os.Stat(tempSidecar); !os.IsNotExist(err) {
		t.Fatalf("temp sidecar artifact should be removed")
	}
}
