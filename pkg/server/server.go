package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/elonfeng/rewatch/internal/scheduler"
	"github.com/elonfeng/rewatch/internal/store"
	"github.com/elonfeng/rewatch/pkg/ledger"
	"github.com/elonfeng/rewatch/pkg/metrics"
	"github.com/elonfeng/rewatch/pkg/policy"
	"github.com/elonfeng/rewatch/pkg/scoring"
	"github.com/elonfeng/rewatch/pkg/sport"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Cycler runs one polling cycle on demand. *scheduler.Scheduler implements it.
type Cycler interface {
	RunCycle(ctx context.Context) scheduler.CycleReport
}

// Deps are what the API reads from. Store, Ledger, Cycler and Gatherer are
// optional; the routes that need a missing one answer 503.
type Deps struct {
	Store    store.Store
	Ledger   ledger.Ledger
	Engine   *scoring.Engine
	Policy   *policy.Policy
	Sports   []sport.Sport
	Cycler   Cycler
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Logger   *zerolog.Logger
}

// Server provides the HTTP API.
type Server struct {
	deps   Deps
	port   int
	router chi.Router
}

// New creates a new HTTP server.
func New(deps Deps, port int) *Server {
	if port == 0 {
		port = 8080
	}
	if deps.Engine == nil {
		deps.Engine = scoring.DefaultEngine()
	}
	if deps.Policy == nil {
		deps.Policy = policy.New(nil)
	}
	if len(deps.Sports) == 0 {
		deps.Sports = sport.All()
	}
	if deps.Logger == nil {
		nop := zerolog.Nop()
		deps.Logger = &nop
	}
	s := &Server{deps: deps, port: port}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.observe)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	if s.deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/games", s.handleGames)
		r.Get("/games/{eventID}", s.handleGame)
		r.Get("/score", s.handleScore)
		r.Get("/sports", s.handleSports)
		r.Get("/ledger", s.handleLedger)
		r.Post("/cycle", s.handleCycle)
	})
	return r
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.deps.Logger.Info().Str("addr", srv.Addr).Msg("rewatch server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// observe records request counts and latency by route pattern.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.deps.Metrics.HTTPRequest(route, status, time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGames(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "history store not configured")
		return
	}

	q := r.URL.Query()
	opts := store.GameListOpts{Limit: 100, Date: q.Get("date")}
	if key := q.Get("sport"); key != "" {
		sp, err := sport.Parse(key)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		opts.Sport = sp.String()
	}
	if v := q.Get("min_score"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "min_score must be an integer")
			return
		}
		opts.MinScore = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		opts.Limit = n
	}

	games, err := s.deps.Store.ListGames(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  games,
		"count": len(games),
	})
}

func (s *Server) handleGame(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "history store not configured")
		return
	}
	g, err := s.deps.Store.GetGame(r.Context(), chi.URLParam(r, "eventID"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "game not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// handleScore maps a raw EI to a score without touching any state.
func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sp, err := sport.Parse(q.Get("sport"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ei, err := strconv.ParseFloat(q.Get("ei"), 64)
	if err != nil || ei < 0 {
		writeError(w, http.StatusBadRequest, "ei must be a non-negative number")
		return
	}

	score := s.deps.Engine.Score(sp, ei)
	writeJSON(w, http.StatusOK, map[string]any{
		"sport": sp,
		"ei":    ei,
		"score": score,
		"vibe":  scoring.Vibe(score),
	})
}

func (s *Server) handleSports(w http.ResponseWriter, r *http.Request) {
	var counts map[string]int
	if s.deps.Store != nil {
		c, err := s.deps.Store.CountGamesBySport(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		counts = c
	}

	type sportInfo struct {
		Key    string         `json:"key"`
		Name   string         `json:"name"`
		Tier   sport.Tier     `json:"tier"`
		Rule   policy.Rule    `json:"rule"`
		Curve  *scoring.Curve `json:"curve,omitempty"`
		Scored int            `json:"scored"`
	}

	infos := make([]sportInfo, 0, len(s.deps.Sports))
	for _, sp := range s.deps.Sports {
		info := sportInfo{
			Key:    sp.String(),
			Name:   sp.DisplayName(),
			Tier:   sp.Tier(),
			Rule:   s.deps.Policy.Rule(sp),
			Scored: counts[sp.String()],
		}
		if c, ok := s.deps.Engine.Curve(sp); ok {
			info.Curve = &c
		}
		infos = append(infos, info)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  infos,
		"count": len(infos),
	})
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ledger == nil {
		writeError(w, http.StatusServiceUnavailable, "ledger not configured")
		return
	}
	entries, err := s.deps.Ledger.Entries(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	type entry struct {
		EventID     string    `json:"event_id"`
		DeliveredAt time.Time `json:"delivered_at"`
	}
	out := make([]entry, 0, len(entries))
	for id, at := range entries {
		out = append(out, entry{EventID: id, DeliveredAt: at})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DeliveredAt.Equal(out[j].DeliveredAt) {
			return out[i].DeliveredAt.After(out[j].DeliveredAt)
		}
		return out[i].EventID < out[j].EventID
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  out,
		"count": len(out),
	})
}

// handleCycle runs one polling cycle synchronously and returns its report.
func (s *Server) handleCycle(w http.ResponseWriter, r *http.Request) {
	if s.deps.Cycler == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not running")
		return
	}
	report := s.deps.Cycler.RunCycle(r.Context())
	s.deps.Logger.Info().Str("cycle_id", report.ID).Msg("cycle triggered over http")
	writeJSON(w, http.StatusOK, report)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
