// Package metacache is a content-addressed, TTL-expiring store for fetched
// metadata documents. Keys are derived from normalized source URLs so that
// cosmetically different URLs for the same resource share one entry.
package metacache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const DefaultTTLDays = 30

// Cache is an immutable value; a disabled cache always misses on Read and
// drops Writes so callers never branch on the enabled flag.
type Cache struct {
	Dir     string
	TTL     time.Duration
	Enabled bool
	Logger  *log.Logger
	Now     func() time.Time
}

type entry struct {
	CachedAt any             `json:"cached_at"`
	URL      string          `json:"url"`
	Data     json.RawMessage `json:"data"`
}

func New(dir string, ttlDays int, enabled bool, logger *log.Logger) Cache {
	if ttlDays <= 0 {
		ttlDays = DefaultTTLDays
	}
	return Cache{
		Dir:     dir,
		TTL:     time.Duration(ttlDays) * 24 * time.Hour,
		Enabled: enabled,
		Logger:  logger,
		Now:     time.Now,
	}
}

// Disabled returns a copy that always misses and drops writes.
func (c Cache) Disabled() Cache {
	c.Enabled = false
	return c
}

// Path returns the on-disk entry path for url.
func (c Cache) Path(rawURL string) string {
	key := hashKey(NormalizeURL(rawURL))
	return filepath.Join(c.Dir, key+".json")
}

// Read returns the cached document for url, or ok=false on a miss. Corrupt,
// expired, and timestamp-less entries are misses and are deleted on the way
// out so they cannot be trusted by a later call.
func (c Cache) Read(rawURL string) (json.RawMessage, bool) {
	if !c.Enabled {
		return nil, false
	}
	path := c.Path(rawURL)
	payload, err := os.ReadFile(path)
	if err != nil {
		c.logf("metadata cache miss (no entry): %s", filepath.Base(path))
		return nil, false
	}

	var ent entry
	if err := json.Unmarshal(payload, &ent); err != nil {
		c.logf("metadata cache miss (invalid JSON): %s", filepath.Base(path))
		c.removeEntry(path)
		return nil, false
	}
	cachedAt, ok := parseCachedAt(ent.CachedAt)
	if !ok {
		c.logf("metadata cache miss (missing timestamp): %s", filepath.Base(path))
		c.removeEntry(path)
		return nil, false
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	if now().Sub(cachedAt) > c.TTL {
		c.logf("metadata cache miss (expired): %s", filepath.Base(path))
		c.removeEntry(path)
		return nil, false
	}
	if len(ent.Data) == 0 || string(ent.Data) == "null" {
		c.logf("metadata cache miss (invalid data): %s", filepath.Base(path))
		c.removeEntry(path)
		return nil, false
	}
	c.logf("metadata cache hit: %s", filepath.Base(path))
	return ent.Data, true
}

// Write stores doc under url's key. The entry is written atomically
// (temp file + rename) so a crash mid-write never leaves a partial entry.
func (c Cache) Write(rawURL string, doc json.RawMessage) error {
	if !c.Enabled {
		return nil
	}
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return fmt.Errorf("create cache directory %s: %w", c.Dir, err)
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	ent := entry{
		CachedAt: now().UTC().Format(time.RFC3339),
		URL:      NormalizeURL(rawURL),
		Data:     doc,
	}
	// Compact marshal: MarshalIndent would re-indent Data and a later Read
	// would hand back reformatted bytes instead of the stored document.
	encoded, err := json.Marshal(ent)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	path := c.Path(rawURL)
	if err := writeFileAtomic(path, encoded); err != nil {
		return err
	}
	c.logf("metadata cache write: %s", filepath.Base(path))
	return nil
}

// Purge deletes every entry and returns the count removed.
func (c Cache) Purge() int {
	matches, err := filepath.Glob(filepath.Join(c.Dir, "*.json"))
	if err != nil {
		return 0
	}
	count := 0
	for _, path := range matches {
		if err := os.Remove(path); err != nil {
			c.logf("failed to delete cache entry %s: %v", path, err)
			continue
		}
		count++
	}
	return count
}

func (c Cache) removeEntry(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		c.logf("failed to delete cache entry %s: %v", path, err)
	}
}

func (c Cache) logf(format string, args ...any) {
	if c.Logger != nil {
		c.Logger.Debug(fmt.Sprintf(format, args...))
	}
}

func writeFileAtomic(path string, payload []byte) error {
	tempFile, err := os.CreateTemp(filepath.Dir(path), ".ymd-cache-*.tmp")
	if err != nil {
		return fmt.Errorf("create cache temp file: %w", err)
	}
	tempPath := tempFile.Name()
	if _, err := tempFile.Write(payload); err != nil {
		_ = tempFile.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("write cache temp file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("sync cache temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("close cache temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("publish cache entry: %w", err)
	}
	return nil
}

func hashKey(normalized string) string {
	digest := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(digest[:])
}

// trackingParams carry no identity for the underlying resource and are
// stripped before hashing.
var trackingParams = map[string]struct{}{
	"si":           {},
	"pp":           {},
	"feature":      {},
	"utm_source":   {},
	"utm_medium":   {},
	"utm_campaign": {},
	"utm_term":     {},
	"utm_content":  {},
}

// NormalizeURL strips tracking/session query parameters while preserving the
// order of the remaining ones.
func NormalizeURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.RawQuery == "" {
		return rawURL
	}

	kept := []string{}
	for _, pair := range strings.Split(parsed.RawQuery, "&") {
		key := pair
		if idx := strings.Index(pair, "="); idx >= 0 {
			key = pair[:idx]
		}
		if _, drop := trackingParams[key]; drop {
			continue
		}
		kept = append(kept, pair)
	}
	parsed.RawQuery = strings.Join(kept, "&")
	return parsed.String()
}

func parseCachedAt(value any) (time.Time, bool) {
	switch v := value.(type) {
	case string:
		if v == "" {
			return time.Time{}, false
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
			if parsed, err := time.Parse(layout, v); err == nil {
				return parsed, true
			}
		}
		return time.Time{}, false
	case float64:
		return time.Unix(int64(v), 0).UTC(), true
	case int64:
		return time.Unix(v, 0).UTC(), true
	default:
		return time.Time{}, false
	}
}
