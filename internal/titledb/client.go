// Package titledb fetches title metadata (names, regions, publishers) from a
// Tinfoil-style titledb JSON feed.
package titledb

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"gameshelf/internal/library"
)

// Config is handed to New; the client keeps no global state.
type Config struct {
	URL       string
	DeviceID  string
	Firmware  string
	UserAgent string
	Timeout   time.Duration
}

type Client struct {
	Cfg    Config
	Client *http.Client
}

// Entry is one record of the feed. The feed is keyed by an opaque store id;
// the title id lives in the record.
type Entry struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Region      *string `json:"region"`
	Publisher   *string `json:"publisher"`
	Size        int64   `json:"size"`
	ReleaseDate int     `json:"releaseDate"`
	IsDemo      *bool   `json:"isDemo"`
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "gameshelf"
	}
	return &Client{
		Cfg:    cfg,
		Client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *Client) Fetch(ctx context.Context) ([]Entry, error) {
	if c.Cfg.URL == "" {
		return nil, errors.New("titledb url not configured")
	}
	req, err := http.NewRequestWithContext(ctx, "GET", c.Cfg.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.Cfg.UserAgent)
	if c.Cfg.DeviceID != "" {
		req.Header.Set("X-Device-Id", c.Cfg.DeviceID)
	}
	if c.Cfg.Firmware != "" {
		req.Header.Set("X-Firmware", c.Cfg.Firmware)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.New("titledb fetch failed: " + resp.Status + ": " + string(b))
	}

	var raw map[string]Entry
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}

	out := make([]Entry, 0, len(raw))
	for _, e := range raw {
		if e.ID == "" {
			continue
		}
		e.ID = strings.ToUpper(e.ID)
		out = append(out, e)
	}
	return out, nil
}

// Metadata converts feed entries into catalog updates.
func Metadata(entries []Entry) []library.Metadata {
	out := make([]library.Metadata, 0, len(entries))
	for _, e := range entries {
		out = append(out, library.Metadata{
			TitleID:   e.ID,
			Name:      e.Name,
			Region:    e.Region,
			Publisher: e.Publisher,
			IsDemo:    e.IsDemo,
		})
	}
	return out
}

// MetadataStore is the part of the catalog Refresh writes to.
type MetadataStore interface {
	ApplyMetadata(ctx context.Context, entries []library.Metadata) (int, error)
}

// Refresh fetches the feed and applies it; it returns the number of titles
// that changed.
func (c *Client) Refresh(ctx context.Context, store MetadataStore) (int, error) {
	entries, err := c.Fetch(ctx)
	if err != nil {
		return 0, err
	}
	return store.ApplyMetadata(ctx, Metadata(entries))
}
