// Package doctor verifies the external tools and filesystem state ymd
// depends on before a run can succeed.
package doctor

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"github.com/jaa/ymd/internal/config"
)

type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

type Check struct {
	Severity Severity `json:"severity"`
	Name     string   `json:"name"`
	Message  string   `json:"message"`
}

type Report struct {
	Checks []Check `json:"checks"`
}

func (r Report) HasErrors() bool {
	for _, check := range r.Checks {
		if check.Severity == SeverityError {
			return true
		}
	}
	return false
}

func (r Report) ErrorCount() int {
	count := 0
	for _, check := range r.Checks {
		if check.Severity == SeverityError {
			count++
		}
	}
	return count
}

// Checker runs the environment checks. Every probe is an injectable func
// field so tests can simulate broken environments.
type Checker struct {
	LookPath      func(string) (string, error)
	ReadVersion   func(context.Context, string) (string, error)
	CheckWritable func(string) error
	Stat          func(string) (os.FileInfo, error)
}

func NewChecker() *Checker {
	return &Checker{
		LookPath:      exec.LookPath,
		ReadVersion:   defaultReadVersion,
		CheckWritable: checkDirWritable,
		Stat:          os.Stat,
	}
}

func (c *Checker) Check(ctx context.Context, cfg config.Config) Report {
	report := Report{Checks: []Check{}}

	for _, binary := range []string{cfg.Tools.YTDLP, cfg.Tools.FFmpeg} {
		location, err := c.LookPath(binary)
		if err != nil {
			report.Checks = append(report.Checks, Check{
				Severity: SeverityError,
				Name:     "dependency",
				Message:  fmt.Sprintf("%s not found in PATH", binary),
			})
			continue
		}
		report.Checks = append(report.Checks, Check{
			Severity: SeverityInfo,
			Name:     "dependency",
			Message:  fmt.Sprintf("%s found at %s", binary, location),
		})

		raw, versionErr := c.ReadVersion(ctx, binary)
		if versionErr != nil {
			report.Checks = append(report.Checks, Check{
				Severity: SeverityWarn,
				Name:     "dependency",
				Message:  fmt.Sprintf("%s version could not be read: %v", binary, versionErr),
			})
			continue
		}
		report.Checks = append(report.Checks, Check{
			Severity: SeverityInfo,
			Name:     "dependency",
			Message:  fmt.Sprintf("%s version %s", binary, extractVersion(raw)),
		})
	}

	dirs := []struct {
		label string
		path  string
	}{
		{"base_dir", cfg.Library.BaseDir},
		{"log_dir", cfg.Library.LogDir},
		{"cache dir", cfg.Cache.Dir},
	}
	for _, dir := range dirs {
		if err := c.CheckWritable(dir.path); err != nil {
			report.Checks = append(report.Checks, Check{
				Severity: SeverityError,
				Name:     "filesystem",
				Message:  fmt.Sprintf("%s is not writable: %v", dir.label, err),
			})
			continue
		}
		report.Checks = append(report.Checks, Check{
			Severity: SeverityInfo,
			Name:     "filesystem",
			Message:  fmt.Sprintf("%s is writable (%s)", dir.label, dir.path),
		})
	}

	if cookies := cfg.Download.CookiesFile; cookies != "" {
		if _, err := c.Stat(cookies); err != nil {
			report.Checks = append(report.Checks, Check{
				Severity: SeverityWarn,
				Name:     "auth",
				Message:  fmt.Sprintf("cookies file configured but not readable: %v", err),
			})
		} else {
			report.Checks = append(report.Checks, Check{
				Severity: SeverityInfo,
				Name:     "auth",
				Message:  fmt.Sprintf("cookies file present at %s", cookies),
			})
		}
	}

	if parsed, err := url.Parse(cfg.Segments.APIBase); err != nil || parsed.Host == "" {
		report.Checks = append(report.Checks, Check{
			Severity: SeverityError,
			Name:     "config",
			Message:  fmt.Sprintf("segment API base URL is invalid: %q", cfg.Segments.APIBase),
		})
	}

	return report
}

func defaultReadVersion(ctx context.Context, binary string) (string, error) {
	cmd := exec.CommandContext(ctx, binary, "--version")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", err
	}
	return string(output), nil
}

func checkDirWritable(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return err
	}
	file, err := os.CreateTemp(path, ".ymd-write-check-*")
	if err != nil {
		return err
	}
	name := file.Name()
	_ = file.Close()
	_ = os.Remove(name)
	return nil
}

var versionPattern = regexp.MustCompile(`\d+[\w.\-]*`)

// extractVersion pulls the version token out of --version output. yt-dlp
// prints a bare date-based version, ffmpeg a "ffmpeg version N.n" banner.
func extractVersion(raw string) string {
	if m := versionPattern.FindString(raw); m != "" {
		return m
	}
	return strings.TrimSpace(strings.SplitN(raw, "\n", 2)[0])
}
