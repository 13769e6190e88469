package config

type Config struct {
	Version  int      `yaml:"version"`
	Library  Library  `yaml:"library"`
	Cache    Cache    `yaml:"cache"`
	Download Download `yaml:"download"`
	Segments Segments `yaml:"segments"`
	Tools    Tools    `yaml:"tools"`
}

type Library struct {
	BaseDir     string `yaml:"base_dir"`
	LogDir      string `yaml:"log_dir"`
	ArchiveFile string `yaml:"archive_file"`
	AudioFormat string `yaml:"audio_format"`
}

type Cache struct {
	Dir     string `yaml:"dir"`
	TTLDays int    `yaml:"ttl_days"`
	Enabled bool   `yaml:"enabled"`
}

type Download struct {
	Concurrency      int    `yaml:"concurrency"`
	Retries          int    `yaml:"retries"`
	RateLimit        string `yaml:"rate_limit"`
	SleepInterval    int    `yaml:"sleep_interval_seconds"`
	MaxSleepInterval int    `yaml:"max_sleep_interval_seconds"`
	SleepRequests    int    `yaml:"sleep_requests_seconds"`
	CookiesFile      string `yaml:"cookies_file"`
}

type Segments struct {
	APIBase        string `yaml:"api_base"`
	CategoriesFile string `yaml:"categories_file"`
	// Categories is resolved from CategoriesFile at startup, never from yaml.
	Categories []string `yaml:"-"`
}

type Tools struct {
	YTDLP  string `yaml:"ytdlp"`
	FFmpeg string `yaml:"ffmpeg"`
}

func DefaultConfig() Config {
	return Config{
		Version: 1,
		Library: Library{
			BaseDir:     "/media/music",
			LogDir:      "/media/music/.logs",
			ArchiveFile: "/media/music/.logs/download_archive.txt",
			AudioFormat: "opus",
		},
		Cache: Cache{
			Dir:     defaultCacheDir(),
			TTLDays: 30,
			Enabled: true,
		},
		Download: Download{
			Concurrency:      5,
			Retries:          3,
			RateLimit:        "2M",
			SleepInterval:    1,
			MaxSleepInterval: 3,
			SleepRequests:    2,
			CookiesFile:      "~/.config/ymd/cookies.txt",
		},
		Segments: Segments{
			APIBase:        "https://sponsor.ajay.app/api/skipSegments",
			CategoriesFile: "~/.config/ymd/segment-categories.txt",
		},
		Tools: Tools{
			YTDLP:  "yt-dlp",
			FFmpeg: "ffmpeg",
		},
	}
}

// WithCacheDisabled returns a copy whose metadata cache always misses.
// Reprocess runs use this so stale playlist snapshots never feed a re-download.
func (c Config) WithCacheDisabled() Config {
	out := c
	out.Cache.Enabled = false
	return out
}

// WithArchiveFile returns a copy pointing the download ledger at path.
func (c Config) WithArchiveFile(path string) Config {
	out := c
	out.Library.ArchiveFile = path
	return out
}

// WithSegmentCategories returns a copy carrying the resolved category list.
func (c Config) WithSegmentCategories(categories []string) Config {
	out := c
	out.Segments.Categories = append([]string{}, categories...)
	return out
}
