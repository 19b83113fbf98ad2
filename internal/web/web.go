package web

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/robfig/cron/v3"

	"icalevents/internal/caltime"
	"icalevents/internal/config"
	"icalevents/internal/ics"
	appLog "icalevents/internal/log"
	"icalevents/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxUploadBytes bounds POST /api/expand bodies.
const maxUploadBytes = 8 << 20

// Server exposes expanded occurrences over HTTP.
//
//	GET  /health
//	GET  /api/events   configured feeds, refreshed on the cron schedule
//	POST /api/expand   expands the ICS document in the request body
type Server struct {
	cfg     *config.Config
	mux     *http.ServeMux
	fetcher *ics.Fetcher
	now     func() time.Time

	// Parsed feeds, replaced wholesale by Refresh.
	sourcesMu sync.RWMutex
	sources   *sourcesCache
}

// sourcesCache holds the parsed configured feeds and when they were loaded.
type sourcesCache struct {
	sources []*ics.RecurrenceSource
	// stale lists feeds served from the disk cache after a failed download.
	stale     []string
	updatedAt time.Time
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config) *Server {
	s := &Server{
		cfg:     cfg,
		mux:     http.NewServeMux(),
		fetcher: ics.NewFetcher(cfg.CacheDir),
		now:     time.Now,
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured. Empty
// credentials disable it.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="icalevents", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// StartServer loads the feeds, schedules their refresh on cfg.RefreshCron and
// serves HTTP on cfg.Listen until ctx is canceled.
func StartServer(ctx context.Context, cfg *config.Config) error {
	s := NewServer(cfg)

	if err := s.Refresh(ctx); err != nil {
		appLog.Error("initial feed refresh failed", err)
	}

	c := cron.New()
	if _, err := c.AddFunc(cfg.RefreshCron, func() {
		if err := s.Refresh(ctx); err != nil {
			appLog.Error("scheduled feed refresh failed", err)
		}
	}); err != nil {
		return err
	}
	c.Start()
	defer func() { <-c.Stop().Done() }()

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen, "refresh", cfg.RefreshCron)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/events", s.handleEvents)
	s.mux.HandleFunc("/api/expand", s.handleExpand)
}

// Refresh fetches and parses every configured feed and replaces the cached
// sources. Feeds that fail are logged and left out.
func (s *Server) Refresh(ctx context.Context) error {
	feeds := make([]ics.Source, 0, len(s.cfg.ICS))
	for _, c := range s.cfg.ICS {
		if c.URL == "" {
			continue
		}
		feeds = append(feeds, ics.Source{ID: c.SourceID(), URL: c.URL})
	}

	loaded, err := s.fetcher.LoadAll(ctx, feeds)
	if err != nil {
		appLog.Error("refresh: one or more ICS feeds failed", err)
	}

	zones := s.cfg.Zones()
	sources := make([]*ics.RecurrenceSource, 0)
	var stale []string
	for _, feed := range loaded {
		if feed.Stale {
			stale = append(stale, feed.Source.ID)
		}
		parsed, err := feed.Parse(zones)
		if err != nil {
			appLog.Error("refresh: parse failed for source", err, "id", feed.Source.ID)
			continue
		}
		sources = append(sources, parsed...)
	}

	s.sourcesMu.Lock()
	s.sources = &sourcesCache{sources: sources, stale: stale, updatedAt: s.now()}
	s.sourcesMu.Unlock()

	appLog.Info("refresh completed", "feeds", len(feeds), "events", len(sources))
	if len(feeds) > 0 && len(loaded) == 0 {
		return errors.New("no feed could be loaded")
	}
	return nil
}

func (s *Server) cachedSources(ctx context.Context) *sourcesCache {
	s.sourcesMu.RLock()
	sc := s.sources
	s.sourcesMu.RUnlock()
	if sc == nil {
		if err := s.Refresh(ctx); err != nil {
			appLog.Error("on-demand feed refresh failed", err)
		}
		s.sourcesMu.RLock()
		sc = s.sources
		s.sourcesMu.RUnlock()
	}
	return sc
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// eventsResponse is the JSON response shape for /api/events and /api/expand.
type eventsResponse struct {
	Occurrences     []OccurrenceDTO `json:"occurrences"`
	TruncatedUIDs   []string        `json:"truncated_uids,omitempty"`
	RangeStart      time.Time       `json:"range_start"`
	RangeEnd        time.Time       `json:"range_end"`
	DisplayTimeZone string          `json:"display_timezone"`
	RefreshedAt     *time.Time      `json:"refreshed_at,omitempty"`
	StaleSources    []string        `json:"stale_sources,omitempty"`
}

// OccurrenceDTO is a JSON-friendly view of an occurrence. All-day starts and
// ends are rendered as dates, timed ones as RFC 3339.
type OccurrenceDTO struct {
	SourceID     string `json:"source_id"`
	UID          string `json:"uid"`
	InstanceKey  string `json:"instance_key"`
	Summary      string `json:"summary"`
	Description  string `json:"description,omitempty"`
	Location     string `json:"location,omitempty"`
	Transparency string `json:"transparency,omitempty"`
	AllDay       bool   `json:"all_day"`
	Start        string `json:"start"`
	End          string `json:"end"`
}

// NewOccurrenceDTOs converts occurrences for JSON output.
func NewOccurrenceDTOs(occ []model.Occurrence) []OccurrenceDTO {
	dtos := make([]OccurrenceDTO, 0, len(occ))
	for _, o := range occ {
		dtos = append(dtos, OccurrenceDTO{
			SourceID:     o.SourceID,
			UID:          o.UID,
			InstanceKey:  o.InstanceKey,
			Summary:      o.Summary,
			Description:  o.Description,
			Location:     o.Location,
			Transparency: o.Transparency,
			AllDay:       o.AllDay,
			Start:        o.Start.String(),
			End:          o.End.String(),
		})
	}
	return dtos
}

// EncodeJSON writes v as indented JSON.
func EncodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// handleEvents returns expanded occurrences of the configured feeds.
//
// GET /api/events?days=30&backfill=1
//   - days:     days ahead of now (default horizon_days)
//   - backfill: days before now (default backfill_days)
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "use GET")
		return
	}

	q := r.URL.Query()
	days := parseIntDefault(q.Get("days"), s.cfg.HorizonDays)
	if days <= 0 {
		days = s.cfg.HorizonDays
	}
	backfill := parseIntDefault(q.Get("backfill"), s.cfg.BackfillDays)
	if backfill < 0 {
		backfill = 0
	}

	loc := s.cfg.Zones().Location()
	now := s.now().In(loc)
	window := caltime.Interval{Start: now.AddDate(0, 0, -backfill), End: now.AddDate(0, 0, days)}

	appLog.Debug("api events request",
		"days", days,
		"backfill", backfill,
		"range_start", window.Start.Format(time.RFC3339),
		"range_end", window.End.Format(time.RFC3339),
	)

	sc := s.cachedSources(r.Context())
	resp, err := s.expand(sc.sources, window, s.cfg.IncludeDTStart)
	if err != nil {
		appLog.Error("api events: expand failed", err)
		writeError(w, http.StatusInternalServerError, "failed to expand events")
		return
	}
	refreshedAt := sc.updatedAt
	resp.RefreshedAt = &refreshedAt
	resp.StaleSources = sc.stale
	writeJSON(w, http.StatusOK, resp)
}

// handleExpand expands the ICS document posted in the body.
//
// POST /api/expand?from=2024-01-01&to=2024-12-31&include_dtstart=true
//
// from/to accept dates (in the configured zone) or RFC 3339; both default
// to the year window starting at the current month.
func (s *Server) handleExpand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "use POST")
		return
	}

	q := r.URL.Query()
	zones := s.cfg.Zones()
	window := caltime.YearFrom(s.now())
	var err error
	if v := q.Get("from"); v != "" {
		if window.Start, err = caltime.ParseBound(v, zones.Location(), false); err != nil {
			writeError(w, http.StatusBadRequest, "from: "+err.Error())
			return
		}
	}
	if v := q.Get("to"); v != "" {
		if window.End, err = caltime.ParseBound(v, zones.Location(), true); err != nil {
			writeError(w, http.StatusBadRequest, "to: "+err.Error())
			return
		}
	}
	if !window.Valid() {
		writeError(w, http.StatusBadRequest, "to is before from")
		return
	}
	includeDTStart := s.cfg.IncludeDTStart
	if v := q.Get("include_dtstart"); v != "" {
		if includeDTStart, err = strconv.ParseBool(v); err != nil {
			writeError(w, http.StatusBadRequest, "include_dtstart: "+err.Error())
			return
		}
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "body too large")
		return
	}
	sources, err := ics.ParseICS(ics.Source{ID: "upload"}, body, zones)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid calendar: "+err.Error())
		return
	}

	resp, err := s.expand(sources, window, includeDTStart)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) expand(sources []*ics.RecurrenceSource, window caltime.Interval, includeDTStart bool) (eventsResponse, error) {
	loc := s.cfg.Zones().Location()
	res, err := ics.ExpandAll(sources, ics.ExpandConfig{
		Range:                  window,
		IncludeDTStart:         includeDTStart,
		DisplayLocation:        loc,
		MaxOccurrencesPerEvent: s.cfg.MaxOccurrencesPerEvent,
	})
	if err != nil {
		return eventsResponse{}, err
	}
	return eventsResponse{
		Occurrences:     NewOccurrenceDTOs(res.Occurrences),
		TruncatedUIDs:   res.TruncatedEvents,
		RangeStart:      window.Start,
		RangeEnd:        window.End,
		DisplayTimeZone: loc.String(),
	}, nil
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
