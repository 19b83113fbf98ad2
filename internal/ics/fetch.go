package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"icalevents/internal/caltime"
	appLog "icalevents/internal/log"
)

// maxBodyBytes bounds a single feed download or file.
const maxBodyBytes = 32 << 20

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Source names one calendar feed.
type Source struct {
	// ID is copied into every occurrence of the feed.
	ID string
	// URL is an http(s) endpoint, a file:// URL or a plain file path.
	URL string
}

// IsFile reports whether the source is read from the local filesystem.
func (s Source) IsFile() bool {
	return strings.HasPrefix(s.URL, "file://") || !strings.Contains(s.URL, "://")
}

// Feed is a loaded calendar body.
type Feed struct {
	Source Source
	Body   []byte
	// Cached is set when Body came from the disk cache, after a 304 or a
	// failed download.
	Cached bool
	// Stale is set when the download failed and Body is the last good copy.
	Stale bool
	// FetchedAt is when Body was downloaded; zero for files.
	FetchedAt time.Time
}

// Parse splits the feed into recurrence sources.
func (f Feed) Parse(zones caltime.Zones) ([]*RecurrenceSource, error) {
	if f.Stale {
		appLog.Warn("ics parse of stale feed", "id", f.Source.ID, "fetched_at", f.FetchedAt.Format(time.RFC3339))
	}
	return ParseICS(f.Source, f.Body, zones)
}

// Fetcher loads feeds. HTTP feeds are revalidated with ETag/Last-Modified
// against a disk cache that also serves them while the origin is failing.
type Fetcher struct {
	client *http.Client
	cache  feedCache
}

// NewFetcher returns a Fetcher caching HTTP feeds under cacheDir.
func NewFetcher(cacheDir string) *Fetcher {
	if cacheDir == "" {
		cacheDir = "./var/ics-cache"
	}
	return &Fetcher{
		client: &http.Client{Timeout: 15 * time.Second},
		cache:  feedCache{dir: cacheDir},
	}
}

// LoadAll loads every source. Feeds that could not be loaded at all are
// left out and their errors joined.
func (f *Fetcher) LoadAll(ctx context.Context, sources []Source) ([]Feed, error) {
	feeds := make([]Feed, 0, len(sources))
	var errs []error
	for _, src := range sources {
		feed, err := f.Load(ctx, src)
		if err != nil {
			errs = append(errs, fmt.Errorf("feed %s: %w", src.ID, err))
			continue
		}
		feeds = append(feeds, feed)
	}
	return feeds, errors.Join(errs...)
}

// Load reads a file source or downloads an HTTP one.
func (f *Fetcher) Load(ctx context.Context, src Source) (Feed, error) {
	if src.URL == "" {
		return Feed{}, errors.New("source URL is empty")
	}
	if src.IsFile() {
		return readFeedFile(src)
	}
	return f.download(ctx, src)
}

func (f *Fetcher) download(ctx context.Context, src Source) (Feed, error) {
	cached, hasCached := f.cache.get(src.URL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return Feed{}, err
	}
	req.Header.Set("Accept", "text/calendar, */*;q=0.5")
	req.Header.Set("User-Agent", "icalevents/1")
	if hasCached {
		if cached.ETag != "" {
			req.Header.Set("If-None-Match", cached.ETag)
		}
		if cached.LastModified != "" {
			req.Header.Set("If-Modified-Since", cached.LastModified)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return f.fallback(src, cached, hasCached, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified && hasCached:
		appLog.Debug("ics feed not modified", "id", src.ID, "url", redactURL(src.URL))
		return cached.feed(src, false), nil
	case resp.StatusCode == http.StatusOK:
		body, err := readLimited(resp.Body)
		if err != nil {
			return f.fallback(src, cached, hasCached, err)
		}
		entry := cacheEntry{
			URL:          src.URL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			FetchedAt:    time.Now().UTC(),
			Body:         body,
		}
		if err := f.cache.put(entry); err != nil {
			appLog.Error("ics cache write failed", err, "id", src.ID, "url", redactURL(src.URL))
		}
		appLog.Info("ics feed downloaded", "id", src.ID, "url", redactURL(src.URL), "bytes", len(body))
		return Feed{Source: src, Body: body, FetchedAt: entry.FetchedAt}, nil
	default:
		return f.fallback(src, cached, hasCached, fmt.Errorf("unexpected status %s", resp.Status))
	}
}

// fallback serves the cached copy after a failed download.
func (f *Fetcher) fallback(src Source, cached cacheEntry, hasCached bool, cause error) (Feed, error) {
	if !hasCached {
		return Feed{}, fmt.Errorf("fetch %s: %w", redactURL(src.URL), cause)
	}
	appLog.Error("ics fetch failed, serving cached copy", cause,
		"id", src.ID,
		"url", redactURL(src.URL),
		"fetched_at", cached.FetchedAt.Format(time.RFC3339),
	)
	return cached.feed(src, true), nil
}

func readFeedFile(src Source) (Feed, error) {
	path := src.URL
	if strings.HasPrefix(path, "file://") {
		u, err := url.Parse(path)
		if err != nil {
			return Feed{}, err
		}
		path = u.Path
	}
	file, err := os.Open(path)
	if err != nil {
		return Feed{}, err
	}
	defer file.Close()

	body, err := readLimited(file)
	if err != nil {
		return Feed{}, fmt.Errorf("%s: %w", path, err)
	}
	appLog.Debug("ics file read", "id", src.ID, "path", path, "bytes", len(body))
	return Feed{Source: src, Body: body}, nil
}

func readLimited(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, maxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("calendar exceeds %d bytes", maxBodyBytes)
	}
	return body, nil
}

// cacheEntry is the last good download of one URL, stored as one JSON file.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	FetchedAt    time.Time `json:"fetched_at"`
	Body         []byte    `json:"body"`
}

func (e cacheEntry) feed(src Source, stale bool) Feed {
	return Feed{Source: src, Body: e.Body, Cached: true, Stale: stale, FetchedAt: e.FetchedAt}
}

type feedCache struct {
	dir string
}

func (c feedCache) path(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:8])+".json")
}

// get returns the entry for rawURL. Unreadable or foreign entries count as
// missing.
func (c feedCache) get(rawURL string) (cacheEntry, bool) {
	data, err := os.ReadFile(c.path(rawURL))
	if err != nil {
		return cacheEntry{}, false
	}
	var e cacheEntry
	if err := json.Unmarshal(data, &e); err != nil || e.URL != rawURL || len(e.Body) == 0 {
		return cacheEntry{}, false
	}
	return e, true
}

// put replaces the entry atomically.
func (c feedCache) put(e cacheEntry) error {
	if err := os.MkdirAll(c.dir, 0o700); err != nil {
		return err
	}
	data, err := json.Marshal(&e)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(c.dir, ".feed-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), c.path(e.URL))
}

// redactURL keeps only scheme and host of a feed URL for logs; feed URLs
// often embed access tokens in the path or query. Paths are returned as is.
func redactURL(raw string) string {
	if !strings.Contains(raw, "://") {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "(unparseable url)"
	}
	if u.Host == "" {
		return u.Scheme + "://" + u.Path
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
