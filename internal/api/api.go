package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jsherman999/parknow/internal/catalog"
	"github.com/jsherman999/parknow/internal/config"
	"github.com/jsherman999/parknow/internal/exporter"
	"github.com/jsherman999/parknow/internal/webui"
	"github.com/jsherman999/parknow/internal/ws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type API struct {
	cfg      *config.Config
	cat      *catalog.Catalog
	stream   *ws.Handler
	gatherer prometheus.Gatherer
	logger   *zap.Logger
}

// New wires the HTTP surface. A nil gatherer leaves /metrics unmounted.
func New(cfg *config.Config, cat *catalog.Catalog, stream *ws.Handler, gatherer prometheus.Gatherer, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{cfg: cfg, cat: cat, stream: stream, gatherer: gatherer, logger: logger}
}

func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(a.logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   a.cfg.API.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Streams are long-lived and stay outside the request timeout.
	r.Get("/ws/slots/{id}", func(w http.ResponseWriter, r *http.Request) {
		a.stream.Serve(w, r, chi.URLParam(r, "id"))
	})
	// Legacy alias: the unparameterized stream serves the dashboard facility.
	r.Get("/ws/slots", func(w http.ResponseWriter, r *http.Request) {
		a.stream.Serve(w, r, a.cfg.API.LegacyFacility)
	})

	r.Group(func(r chi.Router) {
		if a.cfg.API.RequestTimeout > 0 {
			r.Use(chimw.Timeout(a.cfg.API.RequestTimeout))
		}

		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"message": "ParkNow Backend API", "status": "running"})
		})

		r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})

		r.Get("/locations", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, a.cat.Summaries())
		})

		r.Get("/slots/{id}", func(w http.ResponseWriter, r *http.Request) {
			a.serveSlots(w, chi.URLParam(r, "id"))
		})
		r.Get("/slots", func(w http.ResponseWriter, r *http.Request) {
			a.serveSlots(w, a.cfg.API.LegacyFacility)
		})

		r.Get("/export/locations.csv", func(w http.ResponseWriter, r *http.Request) {
			b, ct, err := exporter.ExportLocationsCSV(a.cat.Summaries())
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			writeDownload(w, ct, "locations.csv", b)
		})
		// GET /export/{id}?format=json|csv
		r.Get("/export/{id}", func(w http.ResponseWriter, r *http.Request) {
			f, ok := a.lookup(w, chi.URLParam(r, "id"))
			if !ok {
				return
			}
			format := r.URL.Query().Get("format")
			if format == "" {
				format = "json"
			}
			snap := f.Registry.Read()
			b, ct, err := exporter.Export(snap, format)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			writeDownload(w, ct, f.ID+"-"+snap.TakenAt.UTC().Format("20060102-150405")+"."+format, b)
		})

		r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, a.cat.Stats())
		})

		if a.gatherer != nil {
			r.Handle("/metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))
		}
	})

	ui, uiErr := webui.Handler()
	if uiErr == nil {
		r.Handle("/ui/*", http.StripPrefix("/ui", ui))
		r.Get("/ui", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/ui/", http.StatusMovedPermanently)
		})
	} else {
		a.logger.Warn("web ui unavailable", zap.Error(uiErr))
	}

	return r
}

func (a *API) serveSlots(w http.ResponseWriter, id string) {
	f, ok := a.lookup(w, id)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, f.Registry.Read().Slots)
}

// lookup writes the not-found payload itself when id is unknown.
func (a *API) lookup(w http.ResponseWriter, id string) (*catalog.Facility, bool) {
	f, err := a.cat.Lookup(id)
	if errors.Is(err, catalog.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": ws.NotFoundMessage})
		return nil, false
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	return f, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDownload(w http.ResponseWriter, contentType, filename string, b []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", chimw.GetReqID(r.Context())),
			)
		})
	}
}
