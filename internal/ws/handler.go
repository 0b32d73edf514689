package ws

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jsherman999/parknow/internal/catalog"
	"github.com/jsherman999/parknow/internal/metrics"
	"go.uber.org/zap"
)

// Timing follows the gorilla/websocket chat example.
const (
	DefaultWriteWait = 10 * time.Second
	DefaultPongWait  = 60 * time.Second
)

type Options struct {
	WriteWait time.Duration
	PongWait  time.Duration
	// SendInitial pushes the current snapshot as soon as the viewer attaches
	// instead of waiting for the next tick.
	SendInitial bool
	// AllowedOrigins are accepted in addition to same-origin requests. "*" accepts any.
	AllowedOrigins []string
}

func (o Options) pingPeriod() time.Duration { return (o.PongWait * 9) / 10 }

// Handler upgrades stream requests and runs one Session per connection.
type Handler struct {
	upgrader websocket.Upgrader
	catalog  *catalog.Catalog
	opts     Options
	metrics  *metrics.Metrics
	logger   *zap.Logger

	// ctx is cancelled on shutdown. Hijacked connections are not covered by
	// http.Server.Shutdown, so sessions watch it themselves.
	ctx context.Context
	wg  sync.WaitGroup

	// observe is a test hook called with every new session.
	observe func(*Session)
}

func NewHandler(ctx context.Context, cat *catalog.Catalog, opts Options, m *metrics.Metrics, logger *zap.Logger) *Handler {
	if opts.WriteWait <= 0 {
		opts.WriteWait = DefaultWriteWait
	}
	if opts.PongWait <= 0 {
		opts.PongWait = DefaultPongWait
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h := &Handler{catalog: cat, opts: opts, metrics: m, logger: logger, ctx: ctx}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 8192,
		CheckOrigin:     originChecker(opts.AllowedOrigins),
	}
	return h
}

// Serve streams facilityID to the caller. Unknown ids get one error payload and a close.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request, facilityID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		h.logger.Debug("upgrade failed", zap.Error(err), zap.String("facility", facilityID))
		return
	}
	h.wg.Add(1)
	defer h.wg.Done()

	s := newSession(conn, facilityID, h.opts, h.logger)
	if h.observe != nil {
		h.observe(s)
	}
	s.logger.Info("viewer connected", zap.String("remote", r.RemoteAddr))
	reason := s.run(h.ctx, h.catalog)
	h.metrics.SessionClosed(facilityID, reason)
	s.logger.Info("viewer disconnected", zap.String("reason", reason))
}

// Wait blocks until every running session has returned.
func (h *Handler) Wait() { h.wg.Wait() }

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		if strings.EqualFold(u.Host, r.Host) {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(strings.TrimRight(a, "/"), origin) {
				return true
			}
		}
		return false
	}
}
