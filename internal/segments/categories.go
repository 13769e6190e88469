package segments

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultCategories is the active set written to a fresh categories file.
// Lines in the file can be commented out with '#' to disable a category.
var DefaultCategories = []string{
	"music_offtopic",
	"sponsor",
	"selfpromo",
	"intro",
	"outro",
}

// LoadCategories reads the category file, one category per line, '#' for
// comments. A missing file is created with the defaults first. An existing
// file with every line commented out yields an empty set, which callers
// treat as segment removal disabled.
func LoadCategories(path string) ([]string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		if err := writeDefaultCategories(path); err != nil {
			return nil, err
		}
		return append([]string{}, DefaultCategories...), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open categories file %s: %w", path, err)
	}
	defer f.Close()

	categories := []string{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		categories = append(categories, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read categories file %s: %w", path, err)
	}
	return categories, nil
}

func writeDefaultCategories(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create categories dir: %w", err)
	}
	var b strings.Builder
	b.WriteString("# Segment categories to remove, one per line.\n")
	b.WriteString("# Comment a line out with '#' to keep that category.\n")
	for _, c := range DefaultCategories {
		b.WriteString(c)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write categories file %s: %w", path, err)
	}
	return nil
}
