package cli

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDotEnvFilesLoadsEnvAndLocalOverrides(t *testing.T) {
	tmp := t.TempDir()

	if err := os.WriteFile(filepath.Join(tmp, ".env"), []byte("YMD_BASE_DIR=/media/music-a\nYMD_CONCURRENCY=2\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	if err := os.WriteFile(filepath.Join(tmp, ".env.local"), []byte("YMD_BASE_DIR=/media/music-b\n"), 0o644); err != nil {
		t.Fatalf("write .env.local: %v", err)
	}

	values := map[string]string{}
	setenv := func(k, v string) error {
		values[k] = v
		return nil
	}

	if err := loadDotEnvFiles(tmp, nil, setenv); err != nil {
		t.Fatalf("load dotenv files: %v", err)
	}
	if values["YMD_BASE_DIR"] != "/media/music-b" {
		t.Fatalf("expected .env.local to override .env, got %q", values["YMD_BASE_DIR"])
	}
	if values["YMD_CONCURRENCY"] != "2" {
		t.Fatalf("expected YMD_CONCURRENCY from .env, got %q", values["YMD_CONCURRENCY"])
	}
}

func TestLoadDotEnvFilesDoesNotOverrideProcessEnv(t *testing.T) {
	tmp := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmp, ".env"), []byte("YMD_BASE_DIR=/media/music-a\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	values := map[string]string{}
	setenv := func(k, v string) error {
		values[k] = v
		return nil
	}

	if err := loadDotEnvFiles(tmp, []string{"YMD_BASE_DIR=/already/set"}, setenv); err != nil {
		t.Fatalf("load dotenv files: %v", err)
	}
	if _, exists := values["YMD_BASE_DIR"]; exists {
		t.Fatalf("expected existing process env to be protected")
	}
}

func TestParseDotEnvLine(t *testing.T) {
	key, value, ok, err := parseDotEnvLine("export YMD_COOKIES_FILE=\"/home/test/cookies.txt\"")
	if err != nil || !ok {
		t.Fatalf("parse export line: ok=%v err=%v", ok, err)
	}
	if key != "YMD_COOKIES_FILE" || value != "/home/test/cookies.txt" {
		t.Fatalf("got %q=%q", key, value)
	}

	if _, _, ok, _ := parseDotEnvLine("# comment"); ok {
		t.Fatalf("comment should be skipped")
	}
	if _, _, _, err := parseDotEnvLine("not a pair"); err == nil {
		t.Fatalf("expected error for missing =")
	}
	if _, _, _, err := parseDotEnvLine("9BAD=1"); err == nil {
		t.Fatalf("expected error for invalid key")
	}
}
