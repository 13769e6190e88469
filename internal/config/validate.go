package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 0 {
		return "invalid config"
	}
	return fmt.Sprintf("invalid config: %s", strings.Join(e.Problems, "; "))
}

func Validate(cfg Config) error {
	problems := []string{}

	if cfg.Version != 1 {
		problems = append(problems, "version must be 1")
	}

	for _, check := range []struct {
		name  string
		value string
	}{
		{"library.base_dir", cfg.Library.BaseDir},
		{"library.log_dir", cfg.Library.LogDir},
		{"library.archive_file", cfg.Library.ArchiveFile},
		{"cache.dir", cfg.Cache.Dir},
	} {
		expanded, err := ExpandPath(check.value)
		if err != nil || strings.TrimSpace(expanded) == "" {
			problems = append(problems, fmt.Sprintf("%s must be a valid path", check.name))
		} else if !filepath.IsAbs(expanded) {
			problems = append(problems, fmt.Sprintf("%s must resolve to an absolute path", check.name))
		}
	}

	if strings.TrimSpace(cfg.Library.AudioFormat) == "" {
		problems = append(problems, "library.audio_format must be set")
	}
	if cfg.Cache.TTLDays <= 0 {
		problems = append(problems, "cache.ttl_days must be > 0")
	}
	if cfg.Download.Concurrency <= 0 {
		problems = append(problems, "download.concurrency must be > 0")
	}
	if cfg.Download.Retries <= 0 {
		problems = append(problems, "download.retries must be > 0")
	}
	if cfg.Download.SleepInterval < 0 || cfg.Download.MaxSleepInterval < cfg.Download.SleepInterval {
		problems = append(problems, "download sleep intervals must satisfy 0 <= sleep <= max_sleep")
	}
	if cfg.Download.SleepRequests < 0 {
		problems = append(problems, "download.sleep_requests_seconds must be >= 0")
	}

	if strings.TrimSpace(cfg.Segments.APIBase) == "" {
		problems = append(problems, "segments.api_base must be set")
	} else if err := validateURL(cfg.Segments.APIBase); err != nil {
		problems = append(problems, fmt.Sprintf("segments.api_base is invalid: %v", err))
	}

	if strings.TrimSpace(cfg.Tools.YTDLP) == "" {
		problems = append(problems, "tools.ytdlp must be set")
	}
	if strings.TrimSpace(cfg.Tools.FFmpeg) == "" {
		problems = append(problems, "tools.ffmpeg must be set")
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func validateURL(raw string) error {
	parsed, err := url.ParseRequestURI(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	if strings.TrimSpace(parsed.Host) == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}
