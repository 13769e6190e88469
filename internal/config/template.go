package config

import "fmt"

func DefaultTemplate() string {
	return fmt.Sprintf(`version: 1
library:
  base_dir: "/media/music"
  log_dir: "/media/music/.logs"
  archive_file: "/media/music/.logs/download_archive.txt"
  audio_format: "opus"
cache:
  dir: %q
  ttl_days: 30
  enabled: true
download:
  concurrency: 5
  retries: 3
  rate_limit: "2M"
  sleep_interval_seconds: 1
  max_sleep_interval_seconds: 3
  sleep_requests_seconds: 2
  cookies_file: "~/.config/ymd/cookies.txt"
segments:
  api_base: "https://sponsor.ajay.app/api/skipSegments"
  categories_file: "~/.config/ymd/segment-categories.txt"
tools:
  ytdlp: "yt-dlp"
  ffmpeg: "ffmpeg"
`, defaultCacheDir())
}
