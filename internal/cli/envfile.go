package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Dotenv support mirrors what YMD_* overrides expect: KEY=VALUE lines,
// optional `export` prefix, single or double quoting, `#` comments.

var dotenvKeyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// loadDotEnvFiles applies .env and then .env.local from cwd. Variables the
// process was launched with always win over file values.
func loadDotEnvFiles(cwd string, environ []string, setenv func(string, string) error) error {
	if strings.TrimSpace(cwd) == "" {
		return nil
	}
	if setenv == nil {
		return fmt.Errorf("setenv is required")
	}

	launched := map[string]struct{}{}
	for _, pair := range environ {
		if key, _, found := strings.Cut(pair, "="); found {
			launched[key] = struct{}{}
		}
	}

	for _, name := range []string{".env", ".env.local"} {
		if err := applyDotEnvFile(filepath.Join(cwd, name), launched, setenv); err != nil {
			return err
		}
	}
	return nil
}

func applyDotEnvFile(path string, launched map[string]struct{}, setenv func(string, string) error) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		key, value, ok, parseErr := parseDotEnvLine(scanner.Text())
		if parseErr != nil {
			return fmt.Errorf("%s line %d: %w", path, lineNo, parseErr)
		}
		if !ok {
			continue
		}
		if _, exists := launched[key]; exists {
			continue
		}
		if err := setenv(key, value); err != nil {
			return fmt.Errorf("apply %s from %s: %w", key, path, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}

func parseDotEnvLine(raw string) (key, value string, ok bool, err error) {
	line := strings.TrimSpace(raw)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false, nil
	}
	line = strings.TrimSpace(strings.TrimPrefix(line, "export "))

	key, value, found := strings.Cut(line, "=")
	if !found {
		return "", "", false, fmt.Errorf("expected KEY=VALUE")
	}
	key = strings.TrimSpace(key)
	if !dotenvKeyPattern.MatchString(key) {
		return "", "", false, fmt.Errorf("invalid key %q", key)
	}

	value = strings.TrimSpace(value)
	switch {
	case len(value) >= 2 && strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`):
		decoded, unquoteErr := strconv.Unquote(value)
		if unquoteErr != nil {
			return "", "", false, fmt.Errorf("invalid quoted value for %q", key)
		}
		value = decoded
	case len(value) >= 2 && strings.HasPrefix(value, "'") && strings.HasSuffix(value, "'"):
		value = value[1 : len(value)-1]
	}
	return key, value, true, nil
}
