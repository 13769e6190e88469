// Package segments talks to the community segment database and cuts or
// silences the reported ranges out of downloaded audio with ffmpeg.
package segments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// Segment actions the editor understands. Everything else reported by the
// API (chapters, highlights, full-video labels) is dropped at fetch time.
const (
	ActionSkip = "skip"
	ActionMute = "mute"
)

// Segment is one time range to remove or silence, in seconds.
type Segment struct {
	Start    float64
	End      float64
	Action   string
	Category string
}

// StatusError reports a non-2xx, non-404 answer from the segment API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("segment API returned HTTP %d: %s", e.StatusCode, e.Body)
}

// Client queries the segment database over HTTP.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

type apiSegment struct {
	Segment    []float64 `json:"segment"`
	Category   string    `json:"category"`
	ActionType string    `json:"actionType"`
}

// FetchSegments returns the skip/mute segments recorded for videoID in the
// given categories, sorted by start time. A 404 means the database has no
// entry for the video and yields an empty slice with a nil error.
func (c *Client) FetchSegments(ctx context.Context, videoID string, categories []string) ([]Segment, error) {
	cats, err := json.Marshal(categories)
	if err != nil {
		return nil, fmt.Errorf("encode categories: %w", err)
	}
	query := url.Values{}
	query.Set("videoID", videoID)
	query.Set("categories", string(cats))
	endpoint := c.BaseURL + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build segment request: %w", err)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query segment API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return []Segment{}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var raw []apiSegment
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode segment response: %w", err)
	}

	segments := make([]Segment, 0, len(raw))
	for _, entry := range raw {
		if len(entry.Segment) != 2 {
			continue
		}
		start, end := entry.Segment[0], entry.Segment[1]
		if end <= start {
			continue
		}
		if entry.ActionType != ActionSkip && entry.ActionType != ActionMute {
			continue
		}
		segments = append(segments, Segment{
			Start:    start,
			End:      end,
			Action:   entry.ActionType,
			Category: entry.Category,
		})
	}
	sort.Slice(segments, func(i, j int) bool { return segments[i].Start < segments[j].Start })
	return segments, nil
}

// VideoID extracts the video identifier from a watch URL. Both the long form
// (?v=ID) and the youtu.be short form are recognized.
func VideoID(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse URL %q: %w", rawURL, err)
	}
	if id := parsed.Query().Get("v"); id != "" {
		return id, nil
	}
	if strings.HasSuffix(parsed.Host, "youtu.be") {
		if id := strings.Trim(parsed.Path, "/"); id != "" {
			return id, nil
		}
	}
	return "", fmt.Errorf("no video id in URL %q", rawURL)
}
