package admin

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vango-dev/smarthttp/internal/dev"
	"github.com/vango-dev/smarthttp/pkg/session"
)

// ReloadPath is where the live-reload socket is mounted.
const ReloadPath = "/_dev/reload"

// ClientScriptPath serves the browser half of live reload.
const ClientScriptPath = "/_dev/client.js"

// StatsSource reports session statistics. *session.Manager implements it.
type StatsSource interface {
	Stats() session.ManagerStats
}

// Config selects what the admin router exposes. Nil fields disable the
// matching endpoint.
type Config struct {
	// Gatherer backs /metrics.
	Gatherer prometheus.Gatherer

	// Sessions backs /sessions.
	Sessions StatsSource

	// Reload backs /_dev/reload and /_dev/client.js.
	Reload *dev.ReloadServer

	// ReloadURL is the socket URL baked into the client script. Defaults
	// to ws://<admin host>/_dev/reload as seen by the script request.
	ReloadURL string

	Logger *slog.Logger
}

type healthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

// NewRouter builds the admin router.
func NewRouter(cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "admin")
	started := time.Now()

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(requestLogger(logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, healthResponse{
			Status: "ok",
			Uptime: time.Since(started).Round(time.Second).String(),
		})
	})

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	if cfg.Sessions != nil {
		r.Get("/sessions", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, cfg.Sessions.Stats())
		})
	}

	if cfg.Reload != nil {
		r.Route("/_dev", func(r chi.Router) {
			r.Get("/reload", cfg.Reload.HandleWebSocket)
			r.Get("/client.js", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/javascript")
				w.Header().Set("Cache-Control", "no-store")
				url := cfg.ReloadURL
				if url == "" {
					url = "ws://" + r.Host + ReloadPath
				}
				_, _ = w.Write([]byte(dev.ClientScript(url)))
			})
		})
	}

	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// requestLogger logs each admin request at debug level.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("admin request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start))
		})
	}
}
