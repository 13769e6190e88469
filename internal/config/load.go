package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type LoadOptions struct {
	ExplicitPath string
	WorkingDir   string
	Env          map[string]string
}

// fileConfig mirrors Config with pointer fields so that absent keys fall
// through to defaults instead of zeroing them.
type fileConfig struct {
	Version  *int         `yaml:"version"`
	Library  fileLibrary  `yaml:"library"`
	Cache    fileCache    `yaml:"cache"`
	Download fileDownload `yaml:"download"`
	Segments fileSegments `yaml:"segments"`
	Tools    fileTools    `yaml:"tools"`
}

type fileLibrary struct {
	BaseDir     *string `yaml:"base_dir"`
	LogDir      *string `yaml:"log_dir"`
	ArchiveFile *string `yaml:"archive_file"`
	AudioFormat *string `yaml:"audio_format"`
}

type fileCache struct {
	Dir     *string `yaml:"dir"`
	TTLDays *int    `yaml:"ttl_days"`
	Enabled *bool   `yaml:"enabled"`
}

type fileDownload struct {
	Concurrency      *int    `yaml:"concurrency"`
	Retries          *int    `yaml:"retries"`
	RateLimit        *string `yaml:"rate_limit"`
	SleepInterval    *int    `yaml:"sleep_interval_seconds"`
	MaxSleepInterval *int    `yaml:"max_sleep_interval_seconds"`
	SleepRequests    *int    `yaml:"sleep_requests_seconds"`
	CookiesFile      *string `yaml:"cookies_file"`
}

type fileSegments struct {
	APIBase        *string `yaml:"api_base"`
	CategoriesFile *string `yaml:"categories_file"`
}

type fileTools struct {
	YTDLP  *string `yaml:"ytdlp"`
	FFmpeg *string `yaml:"ffmpeg"`
}

func Load(opts LoadOptions) (Config, error) {
	cfg := DefaultConfig()

	cwd := opts.WorkingDir
	if strings.TrimSpace(cwd) == "" {
		wd, err := os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("resolve working directory: %w", err)
		}
		cwd = wd
	}

	env := opts.Env
	if env == nil {
		env = osEnvMap()
	}

	if explicit := strings.TrimSpace(opts.ExplicitPath); explicit != "" {
		if err := mergeFile(&cfg, explicit, true); err != nil {
			return Config{}, err
		}
	} else {
		userPath, err := UserConfigPath()
		if err != nil {
			return Config{}, err
		}
		if err := mergeFile(&cfg, userPath, false); err != nil {
			return Config{}, err
		}

		if err := mergeFile(&cfg, ProjectConfigPath(cwd), false); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnvOverrides(&cfg, env); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func mergeFile(cfg *Config, path string, required bool) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config file does not exist: %s", path)
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(payload, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if fc.Version != nil {
		cfg.Version = *fc.Version
	}
	mergeString(&cfg.Library.BaseDir, fc.Library.BaseDir)
	mergeString(&cfg.Library.LogDir, fc.Library.LogDir)
	mergeString(&cfg.Library.ArchiveFile, fc.Library.ArchiveFile)
	mergeString(&cfg.Library.AudioFormat, fc.Library.AudioFormat)
	mergeString(&cfg.Cache.Dir, fc.Cache.Dir)
	if fc.Cache.TTLDays != nil {
		cfg.Cache.TTLDays = *fc.Cache.TTLDays
	}
	if fc.Cache.Enabled != nil {
		cfg.Cache.Enabled = *fc.Cache.Enabled
	}
	if fc.Download.Concurrency != nil {
		cfg.Download.Concurrency = *fc.Download.Concurrency
	}
	if fc.Download.Retries != nil {
		cfg.Download.Retries = *fc.Download.Retries
	}
	if fc.Download.RateLimit != nil {
		cfg.Download.RateLimit = strings.TrimSpace(*fc.Download.RateLimit)
	}
	if fc.Download.SleepInterval != nil {
		cfg.Download.SleepInterval = *fc.Download.SleepInterval
	}
	if fc.Download.MaxSleepInterval != nil {
		cfg.Download.MaxSleepInterval = *fc.Download.MaxSleepInterval
	}
	if fc.Download.SleepRequests != nil {
		cfg.Download.SleepRequests = *fc.Download.SleepRequests
	}
	mergeString(&cfg.Download.CookiesFile, fc.Download.CookiesFile)
	mergeString(&cfg.Segments.APIBase, fc.Segments.APIBase)
	mergeString(&cfg.Segments.CategoriesFile, fc.Segments.CategoriesFile)
	mergeString(&cfg.Tools.YTDLP, fc.Tools.YTDLP)
	mergeString(&cfg.Tools.FFmpeg, fc.Tools.FFmpeg)

	return nil
}

func mergeString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func applyEnvOverrides(cfg *Config, env map[string]string) error {
	if value := strings.TrimSpace(env["YMD_BASE_DIR"]); value != "" {
		cfg.Library.BaseDir = value
	}
	if value := strings.TrimSpace(env["YMD_LOG_DIR"]); value != "" {
		cfg.Library.LogDir = value
	}
	if value := strings.TrimSpace(env["YMD_ARCHIVE_FILE"]); value != "" {
		cfg.Library.ArchiveFile = value
	}
	if value := strings.TrimSpace(env["YMD_CACHE_DIR"]); value != "" {
		cfg.Cache.Dir = value
	}
	if value := strings.TrimSpace(env["YMD_CACHE_TTL_DAYS"]); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid YMD_CACHE_TTL_DAYS value %q: %w", value, err)
		}
		cfg.Cache.TTLDays = parsed
	}
	if value := strings.TrimSpace(env["YMD_CACHE_ENABLED"]); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid YMD_CACHE_ENABLED value %q: %w", value, err)
		}
		cfg.Cache.Enabled = parsed
	}
	if value := strings.TrimSpace(env["YMD_CONCURRENCY"]); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid YMD_CONCURRENCY value %q: %w", value, err)
		}
		cfg.Download.Concurrency = parsed
	}
	if value := strings.TrimSpace(env["YMD_RETRIES"]); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid YMD_RETRIES value %q: %w", value, err)
		}
		cfg.Download.Retries = parsed
	}
	return nil
}

func osEnvMap() map[string]string {
	result := map[string]string{}
	for _, pair := range os.Environ() {
		pieces := strings.SplitN(pair, "=", 2)
		if len(pieces) == 2 {
			result[pieces[0]] = pieces[1]
		}
	}
	return result
}
