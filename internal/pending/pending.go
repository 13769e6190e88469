// Package pending persists deferred post-processing work as sidecar files.
//
// When a download finishes but a secondary step fails with a transient error
// (the segment service being unreachable), a small JSON sidecar is written
// next to the audio file recording what still needs to be done. A later
// `ymd retry-pending` run picks the work up without re-downloading anything.
//
// Sidecar naming: <audio-stem>.pending.json, colocated with the audio file.
// The suffix keeps sidecars clearly distinct from audio and thumbnail
// artifacts, and media servers ignore them.
package pending

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// TaskSegments is the only task token currently defined: segment
// post-processing against the community segment database.
const TaskSegments = "segments"

const (
	SidecarSuffix = ".pending.json"
	formatVersion = 1
)

// File is the in-memory form of one sidecar.
type File struct {
	SourceURL  string
	OutputStem string
	AudioFile  string
	Tasks      []string
	Created    string
}

type sidecarPayload struct {
	Version    int      `json:"version"`
	SourceURL  string   `json:"source_url"`
	OutputStem string   `json:"output_stem"`
	Pending    []string `json:"pending"`
	Created    string   `json:"created"`
}

func (f *File) SidecarPath() string {
	return SidecarPath(f.AudioFile)
}

func (f *File) HasTask(task string) bool {
	for _, t := range f.Tasks {
		if t == task {
			return true
		}
	}
	return false
}

// Save writes (or overwrites) the sidecar on disk.
func (f *File) Save() error {
	payload := sidecarPayload{
		Version:    formatVersion,
		SourceURL:  f.SourceURL,
		OutputStem: f.OutputStem,
		Pending:    f.Tasks,
		Created:    f.Created,
	}
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode sidecar: %w", err)
	}
	if err := os.WriteFile(f.SidecarPath(), append(encoded, '\n'), 0o644); err != nil {
		return fmt.Errorf("write sidecar %s: %w", f.SidecarPath(), err)
	}
	return nil
}

// RemoveTask marks task as done. The sidecar is deleted outright once its
// task set is empty, never left as an empty shell.
func (f *File) RemoveTask(task string) error {
	kept := f.Tasks[:0]
	for _, t := range f.Tasks {
		if t != task {
			kept = append(kept, t)
		}
	}
	f.Tasks = kept
	if len(f.Tasks) == 0 {
		return f.Delete()
	}
	return f.Save()
}

// Delete removes the sidecar file if it exists.
func (f *File) Delete() error {
	if err := os.Remove(f.SidecarPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete sidecar %s: %w", f.SidecarPath(), err)
	}
	return nil
}

// SidecarPath returns the sidecar path for audioFile
// (/music/P/001-Artist-Song.opus -> /music/P/001-Artist-Song.pending.json).
func SidecarPath(audioFile string) string {
	ext := filepath.Ext(audioFile)
	return strings.TrimSuffix(audioFile, ext) + SidecarSuffix
}

// SidecarPathForStem returns the sidecar path for a directory + stem pair.
func SidecarPathForStem(outputDir string, outputStem string) string {
	return filepath.Join(outputDir, outputStem+SidecarSuffix)
}

// Write creates or updates the sidecar for audioFile. An existing sidecar is
// merged: task tokens are unioned without duplicates and the original
// source_url and created timestamp are preserved.
func Write(audioFile string, sourceURL string, outputStem string, tasks []string, logger *log.Logger) (*File, error) {
	sidecar := SidecarPath(audioFile)
	if _, err := os.Stat(sidecar); err == nil {
		existing, loadErr := loadSidecar(sidecar, audioFile)
		if loadErr == nil {
			for _, task := range tasks {
				if !existing.HasTask(task) {
					existing.Tasks = append(existing.Tasks, task)
				}
			}
			if err := existing.Save(); err != nil {
				return nil, err
			}
			if logger != nil {
				logger.Debug("updated sidecar", "sidecar", filepath.Base(sidecar), "pending", existing.Tasks)
			}
			return existing, nil
		}
	}

	pf := &File{
		SourceURL:  sourceURL,
		OutputStem: outputStem,
		AudioFile:  audioFile,
		Tasks:      append([]string{}, tasks...),
		Created:    time.Now().Format("2006-01-02T15:04:05"),
	}
	if err := pf.Save(); err != nil {
		return nil, err
	}
	if logger != nil {
		logger.Debug("created sidecar", "sidecar", filepath.Base(sidecar), "pending", tasks)
	}
	return pf, nil
}

// Find recursively collects sidecars under baseDir. When task is non-empty
// only sidecars carrying that token are returned. Unparsable sidecars and
// sidecars whose audio file cannot be located are skipped, not raised.
func Find(baseDir string, task string, logger *log.Logger) ([]*File, error) {
	paths := []string{}
	err := filepath.WalkDir(baseDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), SidecarSuffix) {
			return nil
		}
		// yt-dlp leaves foo.temp.* artifacts behind on interrupted runs.
		if strings.Contains(d.Name(), ".temp.") {
			if logger != nil {
				logger.Debug("skipping temporary sidecar artifact", "sidecar", d.Name())
			}
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s for sidecars: %w", baseDir, err)
	}
	sort.Strings(paths)

	results := []*File{}
	for _, sidecar := range paths {
		audioFile, ok := ResolveAudioFile(sidecar)
		if !ok {
			if logger != nil {
				logger.Warn("sidecar has no matching audio file, skipping", "sidecar", sidecar)
			}
			continue
		}
		pf, loadErr := loadSidecar(sidecar, audioFile)
		if loadErr != nil {
			if logger != nil {
				logger.Warn("could not read sidecar, skipping", "sidecar", sidecar, "err", loadErr)
			}
			continue
		}
		if task == "" || pf.HasTask(task) {
			results = append(results, pf)
		}
	}
	return results, nil
}

// ResolveAudioFile locates the audio file a sidecar belongs to by stem-prefix
// match within the sidecar's directory. The audio extension is not known in
// advance, so any sibling sharing the stem qualifies except other sidecars
// and transient artifacts.
func ResolveAudioFile(sidecar string) (string, bool) {
	stem := strings.TrimSuffix(filepath.Base(sidecar), SidecarSuffix)
	entries, err := os.ReadDir(filepath.Dir(sidecar))
	if err != nil {
		return "", false
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, stem+".") {
			continue
		}
		if strings.HasSuffix(name, SidecarSuffix) || strings.Contains(name, ".temp.") {
			continue
		}
		return filepath.Join(filepath.Dir(sidecar), name), true
	}
	return "", false
}

func loadSidecar(sidecar string, audioFile string) (*File, error) {
	payload, err := os.ReadFile(sidecar)
	if err != nil {
		return nil, err
	}
	var record sidecarPayload
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("parse sidecar: %w", err)
	}
	stem := record.OutputStem
	if stem == "" {
		stem = strings.TrimSuffix(filepath.Base(audioFile), filepath.Ext(audioFile))
	}
	return &File{
		SourceURL:  record.SourceURL,
		OutputStem: stem,
		AudioFile:  audioFile,
		Tasks:      record.Pending,
		Created:    record.Created,
	}, nil
}
